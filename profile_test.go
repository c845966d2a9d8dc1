package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileShow(t *testing.T) {
	e := newCLIEnv(t)
	e.login()

	e.server.mu.Lock()
	e.server.profile["location"] = "Oxford"
	e.server.mu.Unlock()

	stdout, _, err := e.run("", "profile", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Username: alice")
	assert.Contains(t, stdout, "Location: Oxford")
	assert.NotContains(t, stdout, "Bio:")
}

func TestProfileSet_KeepsUnchangedFields(t *testing.T) {
	e := newCLIEnv(t)
	e.login()

	stdout, stderr, err := e.run("", "profile", "set", "--location", "Berlin", "--json")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Profile updated.")

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "Berlin", out["location"])
	assert.Equal(t, "Alice Liddell", out["name"])

	e.server.mu.Lock()
	defer e.server.mu.Unlock()

	assert.Equal(t, "Berlin", e.server.profile["location"])
	assert.Equal(t, "alice@example.com", e.server.profile["email"])
}

func TestProfileSet_NothingToUpdate(t *testing.T) {
	e := newCLIEnv(t)
	e.login()

	_, _, err := e.run("", "profile", "set")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")
}

func TestProfileSet_InvalidEmailRejectedLocally(t *testing.T) {
	e := newCLIEnv(t)
	e.login()

	_, _, err := e.run("", "profile", "set", "--email", "not-an-email")
	require.Error(t, err)

	e.server.mu.Lock()
	defer e.server.mu.Unlock()

	assert.Equal(t, "alice@example.com", e.server.profile["email"])
}
