package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{URL: srv.URL, APIKey: "test-key", Retry: &RetryConfig{}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func TestQueryBuilderEncodesFilters(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))

	var rows []struct{}
	err := c.From("venues").Select("*").Eq("region", "downtown").Order("name", true).Limit(5).Get(context.Background(), &rows)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := "limit=5&order=name.asc&region=eq.downtown&select=%2A"
	if gotQuery != want {
		t.Fatalf("unexpected query: %s", gotQuery)
	}
}

func TestUserTokenOverridesAPIKey(t *testing.T) {
	var authHeader, apiKeyHeader string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		apiKeyHeader = r.Header.Get("apikey")
		w.Write([]byte(`[]`))
	}))

	if err := c.WithToken("user-jwt").From("posts").Get(context.Background(), nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	if authHeader != "Bearer user-jwt" {
		t.Fatalf("expected user token in Authorization, got %s", authHeader)
	}
	if apiKeyHeader != "test-key" {
		t.Fatalf("apikey header should stay the API key, got %s", apiKeyHeader)
	}
}

func TestTransientAuthClassification(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"PGRST301","message":"JWT expired"}`))
	}))

	err := c.From("profiles").Get(context.Background(), nil)
	apiErr := AsAPIError(err)
	if apiErr == nil {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.IsTransientAuth() {
		t.Fatalf("401 PGRST301 should classify as transient auth")
	}
}

func TestConditionalUpdateNoMatchReturnsErrNoRows(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Single-object representation of zero rows.
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"PGRST116","message":"no rows returned"}`))
	}))

	var out struct{}
	err := c.From("coupons").Eq("id", "c1").Eq("is_used", "false").Single().Update(context.Background(), map[string]any{"is_used": true}, &out)
	if !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	retry := DefaultRetryConfig()
	retry.MaxRetries = 2
	retry.InitialBackoff = 0
	c, err := New(Config{URL: srv.URL, APIKey: "k", Retry: &retry})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := c.From("venues").Get(context.Background(), nil); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestAuthSignInAndGetUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected grant type: %s", r.URL.Query().Get("grant_type"))
		}
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","user":{"id":"u1","email":"a@b.c"}}`))
	})
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"invalid JWT"}`))
			return
		}
		w.Write([]byte(`{"id":"u1","email":"a@b.c"}`))
	})
	c, _ := newTestClient(t, mux)

	session, err := c.Auth().SignInWithPassword(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.AccessToken != "at" || session.User == nil || session.User.ID != "u1" {
		t.Fatalf("unexpected session: %+v", session)
	}

	user, err := c.Auth().GetUser(context.Background(), session.AccessToken)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestGetPublicURL(t *testing.T) {
	c, srv := newTestClient(t, http.NewServeMux())
	got := c.Storage().From("images").GetPublicURL("venues/v1.jpg")
	want := srv.URL + "/storage/v1/object/public/images/venues/v1.jpg"
	if got != want {
		t.Fatalf("unexpected public URL: %s", got)
	}
}
