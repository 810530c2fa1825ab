package msgraph

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Flow states for device-code sign-ins.
const (
	FlowPending = "pending"
	FlowSuccess = "success"
	FlowError   = "error"
)

// flowRetention controls how long terminal flows stay listable.
const flowRetention = 30 * time.Minute

// DeviceFlow captures one in-progress or finished device-code sign-in.
type DeviceFlow struct {
	ID              string    `json:"id"`
	Profile         string    `json:"profile"`
	UserCode        string    `json:"user_code"`
	VerificationURI string    `json:"verification_uri"`
	ExpiresAt       time.Time `json:"expires_at"`
	Interval        int64     `json:"interval"`
	Status          string    `json:"status"`
	Detail          string    `json:"detail,omitempty"`
	StartedAt       time.Time `json:"started_at"`
}

// DeviceFlowRegistry tracks device flows in process memory. Mutations hold
// the registry mutex; stale terminal entries are purged opportunistically on
// read.
type DeviceFlowRegistry struct {
	cache  *TokenCache
	logger *zap.Logger

	mu    sync.Mutex
	flows map[string]*DeviceFlow
}

// NewDeviceFlowRegistry builds a registry backed by the given token cache.
func NewDeviceFlowRegistry(cache *TokenCache, logger *zap.Logger) *DeviceFlowRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceFlowRegistry{
		cache:  cache,
		logger: logger,
		flows:  make(map[string]*DeviceFlow),
	}
}

// Start launches a device-code flow for the profile and returns the codes
// the admin must enter. A background poller persists the token on success.
func (r *DeviceFlowRegistry) Start(ctx context.Context, profile string) (*DeviceFlow, error) {
	cfg := r.cache.Config()
	auth, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, err
	}

	flow := &DeviceFlow{
		ID:              auth.DeviceCode,
		Profile:         profile,
		UserCode:        auth.UserCode,
		VerificationURI: auth.VerificationURI,
		ExpiresAt:       auth.Expiry,
		Interval:        auth.Interval,
		Status:          FlowPending,
		StartedAt:       time.Now().UTC(),
	}

	r.mu.Lock()
	r.flows[flow.ID] = flow
	r.mu.Unlock()

	go r.poll(profile, flow.ID, auth)

	return flow, nil
}

// List returns a snapshot of known flows, dropping terminal entries older
// than the retention window.
func (r *DeviceFlowRegistry) List() []DeviceFlow {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeLocked()
	out := make([]DeviceFlow, 0, len(r.flows))
	for _, flow := range r.flows {
		out = append(out, *flow)
	}
	return out
}

// Purge removes all terminal flows regardless of age.
func (r *DeviceFlowRegistry) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, flow := range r.flows {
		if flow.Status != FlowPending {
			delete(r.flows, id)
		}
	}
}

func (r *DeviceFlowRegistry) poll(profile, id string, auth *oauth2.DeviceAuthResponse) {
	ctx, cancel := context.WithDeadline(context.Background(), auth.Expiry)
	defer cancel()

	token, err := r.cache.Config().DeviceAccessToken(ctx, auth)
	if err != nil {
		r.finish(id, FlowError, err.Error())
		r.logger.Warn("device flow failed", zap.String("profile", profile), zap.Error(err))
		return
	}
	if err := r.cache.Put(profile, token); err != nil {
		r.finish(id, FlowError, err.Error())
		r.logger.Error("device flow token persist failed", zap.String("profile", profile), zap.Error(err))
		return
	}
	r.finish(id, FlowSuccess, "")
	r.logger.Info("device flow completed", zap.String("profile", profile))
}

func (r *DeviceFlowRegistry) finish(id, status, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if flow, ok := r.flows[id]; ok {
		flow.Status = status
		flow.Detail = detail
	}
}

func (r *DeviceFlowRegistry) purgeLocked() {
	cutoff := time.Now().UTC().Add(-flowRetention)
	for id, flow := range r.flows {
		if flow.Status != FlowPending && flow.StartedAt.Before(cutoff) {
			delete(r.flows, id)
		}
	}
}
