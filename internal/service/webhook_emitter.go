package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/config"
)

// webhookTeacher mirrors the nested teacher object in the payload.
type webhookTeacher struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LeaveWebhookPayload is the body POSTed to the schedule service on every
// leave state change, pending included.
type LeaveWebhookPayload struct {
	RequestID    string         `json:"request_id"`
	ExcuseID     string         `json:"excuse_id"`
	Email        string         `json:"email"`
	TeacherName  string         `json:"teacher_name"`
	Teacher      webhookTeacher `json:"teacher"`
	LeaveType    string         `json:"leave_type"`
	LeaveStart   string         `json:"leave_start"`
	LeaveEnd     string         `json:"leave_end"`
	SubmittedAt  string         `json:"submitted_at"`
	Status       string         `json:"status"`
	Reason       string         `json:"reason"`
	AdminComment *string        `json:"admin_comment"`
	GeneratedAt  string         `json:"generated_at"`
}

// WebhookEmitter POSTs leave state changes to the configured endpoint.
// Emission is best-effort; the leave transition is already committed when
// the POST happens and a failure is only logged.
type WebhookEmitter struct {
	cfg    config.LeaveWebhookConfig
	client *http.Client
	logger *zap.Logger
}

// NewWebhookEmitter constructs a WebhookEmitter.
func NewWebhookEmitter(cfg config.LeaveWebhookConfig, logger *zap.Logger) *WebhookEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookEmitter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Enabled reports whether an endpoint is configured.
func (e *WebhookEmitter) Enabled() bool {
	return e.cfg.URL != ""
}

// Emit serializes the leave and POSTs it. Returns nil when no endpoint is
// configured.
func (e *WebhookEmitter) Emit(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) error {
	if !e.Enabled() {
		return nil
	}

	var comment *string
	if leave.AdminComment != "" {
		comment = &leave.AdminComment
	}
	payload := LeaveWebhookPayload{
		RequestID:   "req-" + leave.ID,
		ExcuseID:    leave.ID,
		Email:       teacher.Email,
		TeacherName: teacher.FullName,
		Teacher: webhookTeacher{
			ID:    teacher.ID,
			Name:  teacher.FullName,
			Email: teacher.Email,
		},
		LeaveType:    string(leave.LeaveType),
		LeaveStart:   leave.LeaveDate.Format("2006-01-02"),
		LeaveEnd:     leave.End().Format("2006-01-02"),
		SubmittedAt:  leave.CreatedAt.Format(time.RFC3339),
		Status:       string(leave.Status),
		Reason:       leave.Reason,
		AdminComment: comment,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.Secret != "" {
		req.Header.Set("X-Leave-Webhook-Secret", e.cfg.Secret)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post leave webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("leave webhook returned %d", resp.StatusCode)
	}

	e.logger.Info("leave webhook emitted",
		zap.String("request_id", payload.RequestID),
		zap.String("status", payload.Status))
	return nil
}

// EmitAsync fires Emit on a goroutine with a detached context so request
// handlers never block on the remote endpoint.
func (e *WebhookEmitter) EmitAsync(teacher *models.Teacher, leave *models.LeaveRequest) {
	if !e.Enabled() {
		return
	}
	t := *teacher
	l := *leave
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
		defer cancel()
		if err := e.Emit(ctx, &t, &l); err != nil {
			e.logger.Warn("leave webhook emission failed",
				zap.String("leave_id", l.ID),
				zap.Error(err))
		}
	}()
}
