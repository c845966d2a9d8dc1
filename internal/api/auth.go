package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxStatusBody caps plain-text status responses (register, delete).
const maxStatusBody = 16 << 10

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges a username and password for a bearer token. The request is
// sent without credentials. Rejected credentials surface as ErrAuth.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	c.logger.Info("logging in", slog.String("username", username))

	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("api: marshaling login request: %w", err)
	}

	resp, err := c.send(ctx, request{
		method:        http.MethodPost,
		path:          "/auth/login",
		contentType:   "application/json",
		body:          bytes.NewReader(body),
		contentLength: int64(len(body)),
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("api: decoding login response: %w", err)
	}

	if lr.Token == "" {
		return "", fmt.Errorf("%w: login response carries no token", ErrAuth)
	}

	return lr.Token, nil
}

// Register creates an account. The request is validated locally first and
// sent without credentials. Returns the backend's status text.
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	c.logger.Info("registering account", slog.String("username", req.Username))

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("api: marshaling register request: %w", err)
	}

	resp, err := c.send(ctx, request{
		method:        http.MethodPost,
		path:          "/auth/register",
		contentType:   "application/json",
		body:          bytes.NewReader(body),
		contentLength: int64(len(body)),
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return "", &NetworkError{Op: "reading register response", Err: err}
	}

	return strings.TrimSpace(string(text)), nil
}

// Me returns the profile of the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	return c.fetchUser(ctx, "/auth/me")
}

// fetchUser GETs a user object from the given path.
func (c *Client) fetchUser(ctx context.Context, path string) (*User, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ur userResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return nil, fmt.Errorf("api: decoding user response: %w", err)
	}

	u := ur.toUser()

	return &u, nil
}
