// Package session holds the authenticated identity of a Cloudo client. The
// Session is the single owner of the bearer Credential: it creates it on
// login, destroys it on logout and hands it to the API client on every
// authenticated request by acting as its token source.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/cloudo-app/cloudo-go/internal/api"
)

// Accounts is the unauthenticated part of the backend the Session drives.
// *api.Client satisfies it.
type Accounts interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, req *api.RegisterRequest) (string, error)
}

// UserFetcher returns the profile behind the current credential.
// *api.Client satisfies it.
type UserFetcher interface {
	Me(ctx context.Context) (*api.User, error)
}

// Session holds at most one Credential. It is safe for concurrent use.
//
// Logins are not serialized: when two Login calls race on one Session the
// last one to finish wins. Callers that care must not overlap them.
type Session struct {
	mu       sync.RWMutex
	cred     *Credential
	accounts Accounts
	store    Store
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an unauthenticated Session. store may be nil for a session that
// lives only in memory.
func New(accounts Accounts, store Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		accounts: accounts,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// Restore loads a persisted credential, if any. Reports whether the session
// is authenticated afterwards.
func (s *Session) Restore() (bool, error) {
	if s.store == nil {
		return s.IsAuthenticated(), nil
	}

	cred, err := s.store.Load()
	if err != nil {
		return false, fmt.Errorf("session: restoring credential: %w", err)
	}

	if cred == nil {
		return s.IsAuthenticated(), nil
	}

	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()

	s.logger.Debug("restored credential", slog.String("username", cred.Username))

	return true, nil
}

// Login exchanges credentials for a bearer token and makes it the session's
// Credential, replacing any previous one. Every failure, including a network
// failure, matches api.ErrAuth. When the credential cannot be persisted the
// previous credential stays in place.
func (s *Session) Login(ctx context.Context, username, password string) (Credential, error) {
	token, err := s.accounts.Login(ctx, username, password)
	if err != nil {
		s.logger.Warn("login failed",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)

		if errors.Is(err, api.ErrAuth) {
			return Credential{}, fmt.Errorf("session: login: %w", err)
		}

		return Credential{}, fmt.Errorf("session: login: %w: %w", api.ErrAuth, err)
	}

	cred := Credential{
		Token:    token,
		IssuedAt: s.now(),
		Username: username,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(cred); err != nil {
			return Credential{}, fmt.Errorf("session: saving credential: %w", err)
		}
	}

	s.cred = &cred

	s.logger.Info("logged in", slog.String("username", username))

	return cred, nil
}

// Logout clears the credential. The in-memory credential is always dropped;
// an error is returned only when the persisted copy could not be removed.
// Calling Logout on an unauthenticated session is a no-op.
func (s *Session) Logout() error {
	s.mu.Lock()
	had := s.cred != nil
	s.cred = nil
	s.mu.Unlock()

	if had {
		s.logger.Info("logged out")
	}

	if s.store == nil {
		return nil
	}

	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("session: clearing stored credential: %w", err)
	}

	return nil
}

// Credential returns a copy of the current credential.
func (s *Session) Credential() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return Credential{}, false
	}

	return *s.cred, true
}

// IsAuthenticated reports whether a credential is present. Expiry is not
// checked; the backend is the authority.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cred != nil
}

// Token implements api.TokenSource. Without a credential it returns
// api.ErrNotLoggedIn so the request is never sent.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return nil, api.ErrNotLoggedIn
	}

	return &oauth2.Token{AccessToken: s.cred.Token, TokenType: "Bearer"}, nil
}

// Register creates an account. It does not log in.
func (s *Session) Register(ctx context.Context, req *api.RegisterRequest) (string, error) {
	msg, err := s.accounts.Register(ctx, req)
	if err != nil {
		return "", fmt.Errorf("session: register: %w", err)
	}

	s.logger.Info("registered account", slog.String("username", req.Username))

	return msg, nil
}

// Me fetches the profile of the logged-in user. Fails with api.ErrNotLoggedIn
// without touching the network when unauthenticated.
func (s *Session) Me(ctx context.Context, users UserFetcher) (*api.User, error) {
	if !s.IsAuthenticated() {
		return nil, api.ErrNotLoggedIn
	}

	u, err := users.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: fetching current user: %w", err)
	}

	return u, nil
}
