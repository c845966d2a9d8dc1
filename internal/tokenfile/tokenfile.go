// Package tokenfile persists the session credential between CLI invocations.
// A token file holds the bearer token plus who it was issued to and by which
// backend. It is a leaf package so session/ and the CLI can share it.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// File is the on-disk token format.
type File struct {
	Token    *oauth2.Token `json:"token"`
	Username string        `json:"username,omitempty"`
	Server   string        `json:"server,omitempty"`
	IssuedAt time.Time     `json:"issued_at"`
}

// Load reads a token file. Returns (nil, nil) if the file does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil || tf.Token.AccessToken == "" {
		return nil, fmt.Errorf("tokenfile: %s has no token (log in again)", path)
	}

	return &tf, nil
}

// Save writes the token file atomically (temp file + rename) with 0600
// permissions. Never logs token values.
func Save(path string, tf *File) error {
	if tf == nil || tf.Token == nil {
		return errors.New("tokenfile: nothing to save")
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	// Same directory keeps rename(2) on one filesystem.
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	return nil
}

// writeSynced restricts permissions, writes data and flushes it to stable
// storage before the file is closed.
func writeSynced(f *os.File, data []byte) error {
	if err := f.Chmod(FilePerms); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	return nil
}

// Remove deletes the token file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}
