package client

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

	"github.com/google/uuid"
)

// maxErrorBody caps how much of a failed response body is kept in APIError.
const maxErrorBody = 512

// APIError is returned for non-2xx responses.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// HTTPClient makes REST calls to the session backend.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL
// (e.g. "http://127.0.0.1:8090"). timeout bounds each request; zero means
// ten seconds.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured backend address.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

// Status fetches GET /api/sessions/{id}/status.
func (c *HTTPClient) Status(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var s SessionStatus
	if err := c.get(ctx, sessionPath(sessionID, "status"), &s); err != nil {
		return nil, err
	}
	decodeQR(&s)
	return &s, nil
}

// Screenshot fetches GET /api/sessions/{id}/screenshot. A response whose
// image is not valid base64 is returned as an error.
func (c *HTTPClient) Screenshot(ctx context.Context, sessionID string) (*Screenshot, error) {
	var s Screenshot
	path := sessionPath(sessionID, "screenshot")
	if err := c.get(ctx, path, &s); err != nil {
		return nil, err
	}
	img, err := DecodePayload(s.Base64Image)
	if err != nil {
		return nil, fmt.Errorf("GET %s: base64_image: %w", path, err)
	}
	s.Image = img
	return &s, nil
}

// Reconnect sends POST /api/sessions/{id}/reconnect and returns the
// resulting status.
func (c *HTTPClient) Reconnect(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var s SessionStatus
	if err := c.post(ctx, sessionPath(sessionID, "reconnect"), nil, &s); err != nil {
		return nil, err
	}
	decodeQR(&s)
	return &s, nil
}

// Sessions fetches GET /api/sessions.
func (c *HTTPClient) Sessions(ctx context.Context) ([]RosterEntry, error) {
	var out []RosterEntry
	if err := c.get(ctx, "/api/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetEnabled sends POST /api/sessions/{id}/enabled.
func (c *HTTPClient) SetEnabled(ctx context.Context, sessionID string, enabled bool) (*RosterEntry, error) {
	body := map[string]bool{"enabled": enabled}
	var out RosterEntry
	if err := c.post(ctx, sessionPath(sessionID, "enabled"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// decodeQR fills QRCode. A malformed QR does not fail the status: the login
// state is still worth showing, so the problem is reported through Error.
func decodeQR(s *SessionStatus) {
	qr, err := DecodePayload(s.QRCodeBase64)
	if err != nil {
		if s.Error == "" {
			s.Error = "invalid QR code payload"
		}
		return
	}
	s.QRCode = qr
}

func sessionPath(sessionID, action string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + "/" + action
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, path, out)
}

func (c *HTTPClient) do(req *http.Request, path string, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method:     req.Method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, path, err)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
