package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI mimics the admin routes of the HTTP API.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("GET /admin/stats", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"total_users": 7, "active_sessions": 2})
	}))
	mux.HandleFunc("POST /admin/users/{id}/credit", authed(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(map[string]any{"user_id": r.PathValue("id"), "balance": 10 + req["amount"]})
	}))
	mux.HandleFunc("POST /admin/users/{id}/unban", authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "not_banned", "message": "user is not banned"})
	}))
	mux.HandleFunc("POST /admin/sessions/terminate-all", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"terminated": 3})
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun(t *testing.T) {
	srv := fakeAPI(t)
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{name: "stats", args: []string{"stats"}, want: "total_users      7"},
		{name: "credit", args: []string{"credit", "u1", "5"}, want: "User u1 balance: 15"},
		{name: "terminate all", args: []string{"terminate-all"}, want: "Terminated 3 sessions."},
		{name: "api error", args: []string{"unban", "u1"}, wantErr: "user is not banned (not_banned)"},
		{name: "bad amount", args: []string{"credit", "u1", "ten"}, wantErr: `invalid amount "ten"`},
		{name: "unknown command", args: []string{"dance"}, wantErr: `unknown command "dance"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			argv := append([]string{"--addr", srv.URL, "--password", "pw"}, tt.args...)
			err := run(context.Background(), argv, &out)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestRunWrongPassword(t *testing.T) {
	srv := fakeAPI(t)
	err := run(context.Background(), []string{"--addr", srv.URL, "--password", "nope", "stats"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login")
}
