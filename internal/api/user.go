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

// userResponse mirrors the backend user object. Identifiers may be numeric.
type userResponse struct {
	ID       flexString `json:"id"`
	Username string     `json:"username"`
	Name     string     `json:"name"`
	FullName string     `json:"fullName"`
	Email    string     `json:"email"`
	Location string     `json:"location"`
	Bio      string     `json:"bio"`
	JoinDate string     `json:"joinDate"`
}

func (u *userResponse) toUser() User {
	return User{
		ID:       string(u.ID),
		Username: u.Username,
		Name:     firstNonEmpty(u.Name, u.FullName),
		Email:    u.Email,
		Location: u.Location,
		Bio:      u.Bio,
		JoinDate: u.JoinDate,
	}
}

// Profile returns the editable profile of the authenticated user.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	return c.fetchUser(ctx, "/user/me")
}

// UpdateProfile saves profile fields. When the backend echoes the stored
// profile it is returned; a plain-text acknowledgement returns the input.
func (c *Client) UpdateProfile(ctx context.Context, u *User) (*User, error) {
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	c.logger.Info("updating profile", slog.String("username", u.Username))

	body, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("api: marshaling profile: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPut, "/user/update", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return nil, &NetworkError{Op: "reading profile response", Err: err}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' ||
		!strings.Contains(resp.Header.Get("Content-Type"), "json") {
		saved := *u
		return &saved, nil
	}

	var ur userResponse
	if err := json.Unmarshal(data, &ur); err != nil {
		return nil, fmt.Errorf("api: decoding profile response: %w", err)
	}

	saved := ur.toUser()

	return &saved, nil
}
