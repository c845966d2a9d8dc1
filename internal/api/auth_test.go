package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Username)
		assert.Equal(t, "s3cret", req.Password)

		_, _ = w.Write([]byte(`{"token":"tok-1"}`))
	}))
	defer srv.Close()

	anon := NewClient(srv.URL, nil, nil, nil, "")
	token, err := anon.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestLogin_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil, nil, nil, "").Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestLogin_EmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token":""}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil, nil, nil, "").Login(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/register", r.URL.Path)

		var req RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bob", req.Username)

		_, _ = w.Write([]byte("User registered successfully\n"))
	}))
	defer srv.Close()

	msg, err := NewClient(srv.URL, nil, nil, nil, "").Register(context.Background(), &RegisterRequest{
		Username: "bob", Name: "Bob", Email: "bob@example.com", Password: "longenough",
	})
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully", msg)
}

func TestRegister_InvalidInputNeverSent(t *testing.T) {
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil, nil, nil, "").Register(context.Background(), &RegisterRequest{
		Username: "b", Name: "Bob", Email: "not-an-email", Password: "short",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, calls)
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/me", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":7,"username":"alice","fullName":"Alice A","email":"a@example.com"}`))
	}))
	defer srv.Close()

	u, err := newTestClient(t, srv.URL).Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7", u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "Alice A", u.Name)
}

func TestUpdateProfile_EchoedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/user/update", r.URL.Path)

		var u User
		require.NoError(t, json.NewDecoder(r.Body).Decode(&u))

		u.JoinDate = "2026-01-01"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(u)
	}))
	defer srv.Close()

	saved, err := newTestClient(t, srv.URL).UpdateProfile(context.Background(),
		&User{Username: "alice", Location: "Lisbon"})
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", saved.Location)
	assert.Equal(t, "2026-01-01", saved.JoinDate)
}

func TestUpdateProfile_PlainAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Profile updated"))
	}))
	defer srv.Close()

	in := &User{Username: "alice", Bio: "hi"}
	saved, err := newTestClient(t, srv.URL).UpdateProfile(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, *in, *saved)
	assert.NotSame(t, in, saved)
}

func TestUpdateProfile_InvalidEmail(t *testing.T) {
	_, err := newTestClient(t, "http://127.0.0.1:1").UpdateProfile(context.Background(),
		&User{Email: "nope"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
