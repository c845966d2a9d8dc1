package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the bearer token issued by a successful login.
// The token value is opaque to the client; never log it.
type Credential struct {
	Token    string
	IssuedAt time.Time
	Username string
}

// Claims are the fields of a JWT credential worth showing to a user.
type Claims struct {
	Subject   string
	ExpiresAt time.Time // zero if the token carries no exp
}

// Claims decodes the token as a JWT without verifying its signature. The
// result is for display only. Returns false for tokens that are not JWTs.
func (c Credential) Claims() (Claims, bool) {
	var rc jwt.RegisteredClaims

	if _, _, err := jwt.NewParser().ParseUnverified(c.Token, &rc); err != nil {
		return Claims{}, false
	}

	out := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		out.ExpiresAt = rc.ExpiresAt.Time
	}

	return out, true
}

// Expired reports whether the token carries an exp claim that lies before
// now. Tokens without one never expire from the client's point of view.
func (c Credential) Expired(now time.Time) bool {
	claims, ok := c.Claims()
	if !ok || claims.ExpiresAt.IsZero() {
		return false
	}

	return now.After(claims.ExpiresAt)
}
