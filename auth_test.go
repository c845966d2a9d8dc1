package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_PersistsCredential(t *testing.T) {
	e := newCLIEnv(t)

	_, stderr, err := e.run("pw\n", "login", "-u", "alice", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Logged in as alice.")

	_, err = os.Stat(filepath.Join(e.dir, "token.json"))
	require.NoError(t, err, "credential is written to token_file")

	stdout, _, err := e.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, stdout, "User:   Alice Liddell (alice)")
	assert.Contains(t, stdout, "Email:  alice@example.com")
	assert.Contains(t, stdout, "ID:     7")
	assert.Contains(t, stdout, "Server: "+e.url)
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run("nope\n", "login", "-u", "alice", "--password-stdin")
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(e.dir, "token.json"))
	assert.True(t, os.IsNotExist(statErr), "no credential after a rejected login")
}

func TestLogin_UsernameFromStdin(t *testing.T) {
	e := newCLIEnv(t)

	_, stderr, err := e.run("alice\npw\n", "login", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Logged in as alice.")
}

func TestLogin_MissingUsername(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run("", "login", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--username is required")
}

func TestLogin_NoTerminalForPassword(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run("", "login", "-u", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--password-stdin")
}

func TestLogin_WritesConfigWhenMissing(t *testing.T) {
	e := newCLIEnv(t)
	fresh := filepath.Join(e.dir, "fresh", "config.toml")

	t.Setenv("CLOUDO_SERVER_URL", e.url)
	t.Setenv("CLOUDO_TOKEN_FILE", filepath.Join(e.dir, "token.json"))
	t.Setenv("HOME", e.dir)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(e.dir, "cache"))

	var out, errb bytes.Buffer

	err := execute(t.Context(), []string{"--config", fresh, "login", "-u", "alice", "--password-stdin"},
		strings.NewReader("pw\n"), &out, &errb)
	require.NoError(t, err)
	assert.Contains(t, errb.String(), "Wrote default configuration to "+fresh)

	data, err := os.ReadFile(fresh)
	require.NoError(t, err)
	assert.Contains(t, string(data), e.url)
}

func TestLogout(t *testing.T) {
	e := newCLIEnv(t)
	e.login()

	_, stderr, err := e.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Logged out.")

	_, stderr, err = e.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Not logged in.")

	_, _, err = e.run("", "whoami")
	require.Error(t, err)
	assert.Equal(t, errNotLoggedIn, err)
}

func TestWhoami_JSON(t *testing.T) {
	e := newCLIEnv(t)
	e.login()

	stdout, _, err := e.run("", "whoami", "--json")
	require.NoError(t, err)

	var out whoamiOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, whoamiOutput{
		ID:       "7",
		Username: "alice",
		Name:     "Alice Liddell",
		Email:    "alice@example.com",
		Server:   e.url,
	}, out)
}

func TestWhoami_RevokedToken(t *testing.T) {
	e := newCLIEnv(t)
	e.login()

	e.server.mu.Lock()
	e.server.token = "rotated"
	e.server.mu.Unlock()

	_, _, err := e.run("", "whoami")
	require.Error(t, err)
	assert.NotEqual(t, errNotLoggedIn, err)
}

func TestRegister(t *testing.T) {
	e := newCLIEnv(t)

	stdout, stderr, err := e.run("correct-horse\n", "register",
		"--username", "bob", "--name", "Bob", "--email", "bob@example.com", "--password-stdin")
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully\n", stdout)
	assert.Contains(t, stderr, "cloudo login -u bob")
	assert.Equal(t, 1, e.server.registers)
}

func TestRegister_InvalidInputNotSent(t *testing.T) {
	e := newCLIEnv(t)

	_, _, err := e.run("short\n", "register",
		"--username", "bob", "--name", "Bob", "--email", "not-an-email", "--password-stdin")
	require.Error(t, err)
	assert.Equal(t, 0, e.server.registers)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "alice", displayName("", "alice"))
	assert.Equal(t, "Alice (alice)", displayName("Alice", "alice"))
}
