package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the backend address used when no config overrides it.
const DefaultBaseURL = "http://localhost:8080/api"

// DefaultUserAgent identifies this client to the backend.
const DefaultUserAgent = "cloudo-go/dev"

// TokenSource provides the bearer credential attached to authenticated
// requests. Defined at the consumer; *session.Session satisfies it, as does
// any oauth2.TokenSource.
type TokenSource interface {
	Token() (*oauth2.Token, error)
}

// Client is an HTTP client for the Cloudo backend.
// It handles request construction, authentication, and error classification.
// It never retries: retry is a caller policy (see transfer.RetryPolicy).
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string
}

// NewClient creates a backend client. baseURL is typically
// "http://localhost:8080/api". token may be nil for a client that only calls
// unauthenticated endpoints (login, register).
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
	}
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes an authenticated request against the backend.
// The path is appended to the client's base URL.
// For non-nil bodies, Content-Type is set to application/json.
// The caller is responsible for closing the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	contentType := ""
	if body != nil {
		contentType = "application/json"
	}

	return c.send(ctx, request{
		method:        method,
		path:          path,
		contentType:   contentType,
		body:          body,
		contentLength: -1,
		authenticated: true,
	})
}

// request describes one outbound call.
type request struct {
	method        string
	path          string
	contentType   string
	body          io.Reader
	contentLength int64 // -1 = unknown
	authenticated bool
}

// send executes a single HTTP request (no retry) and classifies the outcome.
// Non-2xx responses are read, closed and returned as *APIError.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	url := c.baseURL + r.path

	req, err := http.NewRequestWithContext(ctx, r.method, url, r.body)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}

	if r.authenticated {
		if err := c.authorize(req); err != nil {
			return nil, err
		}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	if r.contentLength >= 0 {
		req.ContentLength = r.contentLength
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Context cancellation is the caller's decision, not a network fault.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
		}

		c.logger.Error("request failed",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)

		return nil, &NetworkError{Op: r.method + " " + r.path, Err: err}
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	c.logger.Warn("request rejected",
		slog.String("method", r.method),
		slog.String("path", r.path),
		slog.Int("status", resp.StatusCode),
	)

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(errBody)),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// authorize attaches the bearer credential. A missing credential fails the
// call before anything goes on the wire.
func (c *Client) authorize(req *http.Request) error {
	if c.token == nil {
		return ErrNotLoggedIn
	}

	tok, err := c.token.Token()
	if err != nil {
		return fmt.Errorf("api: obtaining token: %w", err)
	}

	if tok == nil || tok.AccessToken == "" {
		return ErrNotLoggedIn
	}

	tok.SetAuthHeader(req)

	return nil
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain
	resp.Body.Close()
}
