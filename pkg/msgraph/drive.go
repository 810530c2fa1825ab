package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	graphBase = "https://graph.microsoft.com/v1.0"

	simpleUploadLimit = 4 << 20 // single PUT up to 4 MiB
	uploadChunkSize   = 5 << 20
)

// DriveClient talks to the signed-in user's drive for a single token
// profile.
type DriveClient struct {
	tokens  *TokenCache
	profile string
	http    *http.Client
	base    string
}

// NewDriveClient builds a drive client with a per-call timeout.
func NewDriveClient(tokens *TokenCache, profile string, timeout time.Duration) *DriveClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DriveClient{
		tokens:  tokens,
		profile: profile,
		http:    &http.Client{Timeout: timeout},
		base:    graphBase,
	}
}

// EnsureFolder walks the path segments under the drive root, creating any
// missing folder. Folder-name collisions on create are renamed by the drive.
func (c *DriveClient) EnsureFolder(ctx context.Context, segments []string) error {
	var prefix []string
	for _, segment := range segments {
		current := append(prefix, segment) //nolint:gocritic
		exists, err := c.itemExists(ctx, driveItemPath(current))
		if err != nil {
			return err
		}
		if !exists {
			if err := c.createFolder(ctx, prefix, segment); err != nil {
				return err
			}
		}
		prefix = current
	}
	return nil
}

// Upload stores content at the remote path, replacing any existing file.
// Small files go through a single PUT; larger ones use an upload session
// with 5 MiB chunks.
func (c *DriveClient) Upload(ctx context.Context, remotePath string, content io.ReaderAt, size int64) error {
	if size <= simpleUploadLimit {
		return c.simpleUpload(ctx, remotePath, io.NewSectionReader(content, 0, size), size)
	}
	return c.chunkedUpload(ctx, remotePath, content, size)
}

// Delete removes the remote file. A missing file is not an error.
func (c *DriveClient) Delete(ctx context.Context, remotePath string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, driveItemPath(splitPath(remotePath)), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("drive delete: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode >= 300 {
		return graphError("drive delete", resp)
	}
	return nil
}

// Share invites the recipients with read access without sending the
// provider's own notification email.
func (c *DriveClient) Share(ctx context.Context, remotePath string, emails []string) error {
	if len(emails) == 0 {
		return nil
	}
	recipients := make([]map[string]string, 0, len(emails))
	for _, email := range emails {
		recipients = append(recipients, map[string]string{"email": email})
	}
	body := map[string]interface{}{
		"recipients":     recipients,
		"roles":          []string{"read"},
		"sendInvitation": false,
		"requireSignIn":  true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode share payload: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, driveItemPath(splitPath(remotePath))+":/invite", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("drive share: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 300 {
		return graphError("drive share", resp)
	}
	return nil
}

func (c *DriveClient) simpleUpload(ctx context.Context, remotePath string, content io.Reader, size int64) error {
	target := driveItemPath(splitPath(remotePath)) + ":/content?@microsoft.graph.conflictBehavior=replace"
	req, err := c.newRequest(ctx, http.MethodPut, target, content)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("drive upload: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return graphError("drive upload", resp)
	}
	return nil
}

func (c *DriveClient) chunkedUpload(ctx context.Context, remotePath string, content io.ReaderAt, size int64) error {
	session, err := c.createUploadSession(ctx, remotePath)
	if err != nil {
		return err
	}

	buf := make([]byte, uploadChunkSize)
	for offset := int64(0); offset < size; {
		length := int64(len(buf))
		if offset+length > size {
			length = size - offset
		}
		if _, err := content.ReadAt(buf[:length], offset); err != nil && err != io.EOF {
			return fmt.Errorf("read upload chunk: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, bytes.NewReader(buf[:length]))
		if err != nil {
			return fmt.Errorf("build chunk request: %w", err)
		}
		req.ContentLength = length
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, size))

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("drive chunk upload: %w", err)
		}
		status := resp.StatusCode
		resp.Body.Close() //nolint:errcheck

		switch {
		case status == http.StatusOK || status == http.StatusCreated:
			return nil
		case status == http.StatusAccepted:
			offset += length
		default:
			return fmt.Errorf("drive chunk upload: unexpected status %d", status)
		}
	}
	return fmt.Errorf("drive chunk upload: session ended without completion")
}

func (c *DriveClient) createUploadSession(ctx context.Context, remotePath string) (string, error) {
	body := []byte(`{"item":{"@microsoft.graph.conflictBehavior":"replace"}}`)
	req, err := c.newRequest(ctx, http.MethodPost, driveItemPath(splitPath(remotePath))+":/createUploadSession", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("create upload session: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 300 {
		return "", graphError("create upload session", resp)
	}
	var parsed struct {
		UploadURL string `json:"uploadUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode upload session: %w", err)
	}
	if parsed.UploadURL == "" {
		return "", fmt.Errorf("upload session missing url")
	}
	return parsed.UploadURL, nil
}

func (c *DriveClient) itemExists(ctx context.Context, itemPath string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, itemPath, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("drive lookup: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, graphError("drive lookup", resp)
	}
}

func (c *DriveClient) createFolder(ctx context.Context, parent []string, name string) error {
	body := map[string]interface{}{
		"name":                              name,
		"folder":                            map[string]interface{}{},
		"@microsoft.graph.conflictBehavior": "rename",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode folder payload: %w", err)
	}

	target := "/me/drive/root/children"
	if len(parent) > 0 {
		target = driveItemPath(parent) + ":/children"
	}
	req, err := c.newRequest(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("drive folder create: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return graphError("drive folder create", resp)
	}
	return nil
}

func (c *DriveClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	token, err := c.tokens.GetTokenSilent(ctx, c.profile)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build drive request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return req, nil
}

func driveItemPath(segments []string) string {
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return "/me/drive/root:/" + strings.Join(escaped, "/")
}

func splitPath(remotePath string) []string {
	parts := strings.Split(strings.Trim(remotePath, "/"), "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func graphError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(raw)))
}
