package profile_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromarket/internal/api"
	"agromarket/internal/profile"
	"agromarket/internal/session"
	"agromarket/internal/storage"
)

func newService(t *testing.T, handler http.Handler, loggedIn bool) *profile.Service {
	t.Helper()

	st, err := storage.New(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewStore(st)
	sessions.Hydrate()

	if loggedIn {
		_, ok := sessions.Login(session.LoginPayload{
			Token: "jwt-abc",
			User:  session.User{ID: "u1", Email: "buyer@example.com"},
		}, "BUYER")
		require.True(t, ok)
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return profile.NewService(api.NewClient(srv.URL, time.Second, sessions), sessions)
}

func TestUpdate(t *testing.T) {
	var got profile.Profile
	var auth string

	mux := http.NewServeMux()
	mux.HandleFunc("/profile/update", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	svc := newService(t, mux, true)

	err := svc.Update(context.Background(), profile.Profile{
		FirstName:   "Nimal",
		LastName:    "Perera",
		PhoneNumber: "0771234567",
		City:        "Colombo",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer jwt-abc", auth)
	assert.Equal(t, "Nimal", got.FirstName)
	assert.Equal(t, "Colombo", got.City)
}

func TestUpdate_RequiresLogin(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}), false)

	err := svc.Update(context.Background(), profile.Profile{FirstName: "Nimal"})
	assert.ErrorIs(t, err, profile.ErrNotLoggedIn)
}

func TestChangePassword(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/profile/change-password", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		var req struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.CurrentPassword != "oldpass1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Current password is incorrect"))
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	svc := newService(t, mux, true)
	ctx := context.Background()

	assert.NoError(t, svc.ChangePassword(ctx, "oldpass1", "newpass1"))

	err := svc.ChangePassword(ctx, "wrong", "newpass1")
	assert.ErrorContains(t, err, "Current password is incorrect")
}

func TestChangePassword_LocalChecks(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}), true)
	ctx := context.Background()

	assert.ErrorContains(t, svc.ChangePassword(ctx, "oldpass1", "short"), "at least 6")
	assert.ErrorContains(t, svc.ChangePassword(ctx, "samepass", "samepass"), "must differ")
}
