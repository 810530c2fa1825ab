package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Mailer sends HTML mail through the signed-in profile's mailbox.
type Mailer struct {
	tokens  *TokenCache
	profile string
	http    *http.Client
	base    string
}

// NewMailer builds a mailer with a per-call timeout.
func NewMailer(tokens *TokenCache, profile string, timeout time.Duration) *Mailer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Mailer{
		tokens:  tokens,
		profile: profile,
		http:    &http.Client{Timeout: timeout},
		base:    graphBase,
	}
}

type mailRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

// Send dispatches a single HTML message. Callers treat failures as
// non-fatal; the underlying leave mutation is already committed.
func (m *Mailer) Send(ctx context.Context, to []string, subject, html string) error {
	if len(to) == 0 {
		return nil
	}
	token, err := m.tokens.GetTokenSilent(ctx, m.profile)
	if err != nil {
		return err
	}

	recipients := make([]mailRecipient, len(to))
	for i, addr := range to {
		recipients[i].EmailAddress.Address = addr
	}
	payload, err := json.Marshal(map[string]interface{}{
		"message": map[string]interface{}{
			"subject":      subject,
			"body":         map[string]string{"contentType": "HTML", "content": html},
			"toRecipients": recipients,
		},
		"saveToSentItems": true,
	})
	if err != nil {
		return fmt.Errorf("encode mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base+"/me/sendMail", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 300 {
		return graphError("send mail", resp)
	}
	return nil
}
