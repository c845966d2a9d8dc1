package session

import (
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/cloudo-app/cloudo-go/internal/tokenfile"
)

// Store persists a Credential across process restarts.
// Load returns (nil, nil) when nothing is stored.
type Store interface {
	Load() (*Credential, error)
	Save(cred Credential) error
	Clear() error
}

// FileStore keeps the credential in a token file. A credential saved for a
// different backend is ignored on load.
type FileStore struct {
	path   string
	server string
	logger *slog.Logger
}

// NewFileStore returns a Store backed by the token file at path. server is
// the backend base URL the credential belongs to.
func NewFileStore(path, server string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileStore{path: path, server: server, logger: logger}
}

// Path returns the token file location.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load() (*Credential, error) {
	tf, err := tokenfile.Load(f.path)
	if err != nil || tf == nil {
		return nil, err
	}

	if tf.Server != "" && f.server != "" && tf.Server != f.server {
		f.logger.Warn("ignoring credential issued by another server",
			slog.String("path", f.path),
			slog.String("issued_by", tf.Server),
			slog.String("server", f.server),
		)

		return nil, nil //nolint:nilnil // treated as "not logged in"
	}

	return &Credential{
		Token:    tf.Token.AccessToken,
		IssuedAt: tf.IssuedAt,
		Username: tf.Username,
	}, nil
}

func (f *FileStore) Save(cred Credential) error {
	return tokenfile.Save(f.path, &tokenfile.File{
		Token:    &oauth2.Token{AccessToken: cred.Token, TokenType: "Bearer"},
		Username: cred.Username,
		Server:   f.server,
		IssuedAt: cred.IssuedAt,
	})
}

func (f *FileStore) Clear() error {
	return tokenfile.Remove(f.path)
}
