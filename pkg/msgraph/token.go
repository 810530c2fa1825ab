package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"

	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

// Scopes requested for every profile. offline_access keeps a refresh token
// in the cache so background flows survive restarts.
var defaultScopes = []string{"offline_access", "Files.ReadWrite.All", "Mail.Send", "User.Read"}

// TokenCache persists one OAuth token per named profile (e.g. "absence")
// as a JSON file. Write-back is guarded by a mutex and lands via atomic
// tempfile rename.
type TokenCache struct {
	dir      string
	tenantID string
	clientID string

	mu sync.Mutex
}

// NewTokenCache ensures the cache directory exists.
func NewTokenCache(dir, tenantID, clientID string) (*TokenCache, error) {
	if dir == "" {
		dir = "./tokens"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create token cache directory: %w", err)
	}
	return &TokenCache{dir: dir, tenantID: tenantID, clientID: clientID}, nil
}

// Config returns the oauth2 configuration for this app registration.
func (c *TokenCache) Config() *oauth2.Config {
	base := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0", c.tenantID)
	return &oauth2.Config{
		ClientID: c.clientID,
		Scopes:   defaultScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       base + "/authorize",
			TokenURL:      base + "/token",
			DeviceAuthURL: base + "/devicecode",
		},
	}
}

// GetTokenSilent returns a live access token for the profile, refreshing it
// through the stored refresh token when expired. An empty cache or a failed
// refresh surfaces as a reauth-required error.
func (c *TokenCache) GetTokenSilent(ctx context.Context, profile string) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, err := c.load(profile)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return nil, appErrors.Clone(appErrors.ErrReauthRequired, fmt.Sprintf("no cached token for profile %q", profile))
	}

	fresh, err := c.Config().TokenSource(ctx, cached).Token()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrReauthRequired.Code, appErrors.ErrReauthRequired.Status, fmt.Sprintf("token refresh failed for profile %q", profile))
	}
	if fresh.AccessToken != cached.AccessToken {
		if err := c.store(profile, fresh); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// Put persists a freshly acquired token for the profile.
func (c *TokenCache) Put(profile string, token *oauth2.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(profile, token)
}

func (c *TokenCache) path(profile string) string {
	return filepath.Join(c.dir, profile+".json")
}

func (c *TokenCache) load(profile string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(c.path(profile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token cache %s: %w", profile, err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("decode token cache %s: %w", profile, err)
	}
	return &token, nil
}

func (c *TokenCache) store(profile string, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token cache %s: %w", profile, err)
	}
	tmp, err := os.CreateTemp(c.dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create token temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close() //nolint:errcheck
		_ = os.Remove(tmpName)
		return fmt.Errorf("write token cache %s: %w", profile, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close token cache %s: %w", profile, err)
	}
	if err := os.Rename(tmpName, c.path(profile)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("finalize token cache %s: %w", profile, err)
	}
	return nil
}
