package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/stuffhappens/internal/common"
)

/*************
 * Fakes
 *************/

type mapStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapStorage() *mapStorage { return &mapStorage{data: map[string][]byte{}} }

func (m *mapStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *mapStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mapStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   map[string]any
}

// fakeGoTrue routes "METHOD /path" to canned handlers and records requests.
type fakeGoTrue struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]http.HandlerFunc
}

func newFakeGoTrue(t *testing.T) (*fakeGoTrue, *httptest.Server) {
	t.Helper()
	f := &fakeGoTrue{routes: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGoTrue) on(route string, h http.HandlerFunc) { f.routes[route] = h }

func (f *fakeGoTrue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Header: r.Header.Clone(), Body: body,
	})
	h, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (f *fakeGoTrue) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeGoTrue) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func writeJSON(status int, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
}

func sessionBody(access, refresh string) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
		"expires_in":    3600,
		"user":          map[string]any{"id": "u-1", "email": "ann@example.com", "user_metadata": map[string]any{"full_name": "Ann"}},
	}
}

func newTestHTTPBackend(t *testing.T, srv *httptest.Server, storage SessionStorage) *HTTPBackend {
	t.Helper()
	b, err := NewHTTPBackend(HTTPConfig{
		URL:        srv.URL,
		AnonKey:    "anon-key",
		ClientInfo: "stuffhappens-go/test",
		Storage:    storage,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func storeSession(t *testing.T, st *mapStorage, s Session) {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), DefaultStorageKey, data))
}

/*************
 * Construction
 *************/

func TestNewHTTPBackend_Validates(t *testing.T) {
	_, err := NewHTTPBackend(HTTPConfig{URL: "", AnonKey: "k"})
	require.Error(t, err)

	_, err = NewHTTPBackend(HTTPConfig{URL: "https://x.supabase.co", AnonKey: ""})
	require.Error(t, err)

	_, err = NewHTTPBackend(HTTPConfig{URL: "not a url", AnonKey: "k"})
	require.Error(t, err)

	b, err := NewHTTPBackend(HTTPConfig{URL: "https://x.supabase.co/", AnonKey: "k"})
	require.NoError(t, err)
	require.Equal(t, "https://x.supabase.co/auth/v1", b.baseURL)
	require.NoError(t, b.Close())
}

/*************
 * Sign in / sign up
 *************/

func TestHTTPBackend_SignIn_SendsHeadersAndPersistsSession(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/token", writeJSON(200, sessionBody("A1", "R1")))

	st := newMapStorage()
	b := newTestHTTPBackend(t, srv, st)

	var events []AuthChangeEvent
	b.OnAuthStateChange(func(ev AuthChangeEvent, _ *Session) { events = append(events, ev) })

	resp, err := b.SignInWithPassword(context.Background(), "ann@example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, resp.Session)
	require.Equal(t, "A1", resp.Session.AccessToken)
	require.NotZero(t, resp.Session.ExpiresAt)
	require.Equal(t, "u-1", resp.User.ID)

	req := f.last()
	require.Equal(t, "grant_type=password", req.Query)
	require.Equal(t, "anon-key", req.Header.Get(common.APIKeyHeaderName))
	require.Equal(t, "Bearer anon-key", req.Header.Get(common.AuthorizationHeaderName))
	require.Equal(t, "stuffhappens-go/test", req.Header.Get(common.ClientInfoHeaderName))
	require.Equal(t, "ann@example.com", req.Body["email"])
	require.Equal(t, "secret1", req.Body["password"])

	require.True(t, st.has(DefaultStorageKey))
	require.Equal(t, []AuthChangeEvent{EventSignedIn}, events)
}

func TestHTTPBackend_SignIn_ProviderError(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/token", writeJSON(400, map[string]any{
		"error":             "invalid_grant",
		"error_description": MsgInvalidCredentials,
	}))

	b := newTestHTTPBackend(t, srv, nil)

	_, err := b.SignInWithPassword(context.Background(), "ann@example.com", "bad")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 400, pe.Status)
	require.Equal(t, "invalid_grant", pe.Code)
	require.Equal(t, MsgInvalidCredentials, pe.Message)
}

func TestHTTPBackend_SignUp_AwaitingConfirmation(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/signup", writeJSON(200, map[string]any{
		"id": "u-2", "email": "bob@example.com", "created_at": "2024-01-02T03:04:05Z",
	}))

	b := newTestHTTPBackend(t, srv, nil)

	resp, err := b.SignUp(context.Background(), SignUpParams{
		Email: "bob@example.com", Password: "secret1", Data: map[string]any{"full_name": "Bob"},
	})
	require.NoError(t, err)
	require.Nil(t, resp.Session)
	require.Equal(t, "u-2", resp.User.ID)
	require.Equal(t, map[string]any{"full_name": "Bob"}, f.last().Body["data"])
}

func TestHTTPBackend_SignUp_AutoConfirmed(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/signup", writeJSON(200, sessionBody("A1", "R1")))

	b := newTestHTTPBackend(t, srv, nil)

	resp, err := b.SignUp(context.Background(), SignUpParams{Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotNil(t, resp.Session)
	require.Nil(t, f.last().Body["data"])

	s, err := b.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A1", s.AccessToken)
}

/*************
 * Sign out
 *************/

func TestHTTPBackend_SignOut_RevokesAndClears(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/token", writeJSON(200, sessionBody("A1", "R1")))
	f.on("POST /auth/v1/logout", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	st := newMapStorage()
	b := newTestHTTPBackend(t, srv, st)
	ctx := context.Background()

	_, err := b.SignInWithPassword(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)

	var events []AuthChangeEvent
	b.OnAuthStateChange(func(ev AuthChangeEvent, s *Session) {
		events = append(events, ev)
		require.Nil(t, s)
	})

	require.NoError(t, b.SignOut(ctx))
	require.Equal(t, "Bearer A1", f.last().Header.Get(common.AuthorizationHeaderName))
	require.False(t, st.has(DefaultStorageKey))
	require.Equal(t, []AuthChangeEvent{EventSignedOut}, events)

	s, err := b.GetSession(ctx)
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestHTTPBackend_SignOut_StaleSessionStillSignsOut(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/logout", writeJSON(401, map[string]any{"msg": "invalid JWT"}))

	st := newMapStorage()
	storeSession(t, st, Session{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	b := newTestHTTPBackend(t, srv, st)

	require.NoError(t, b.SignOut(context.Background()))
	require.False(t, st.has(DefaultStorageKey))
}

func TestHTTPBackend_SignOut_ServerFailureKeepsSession(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/logout", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) })

	st := newMapStorage()
	storeSession(t, st, Session{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	b := newTestHTTPBackend(t, srv, st)

	err := b.SignOut(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	require.True(t, st.has(DefaultStorageKey))
}

/*************
 * Session refresh
 *************/

func TestHTTPBackend_GetSession_RefreshesExpired(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/token", writeJSON(200, map[string]any{
		"access_token": "A2", "refresh_token": "R2", "expires_in": 3600,
	}))

	st := newMapStorage()
	storeSession(t, st, Session{
		AccessToken: "A1", RefreshToken: "R1",
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
		User:      &UserRecord{ID: "u-1", Email: "ann@example.com"},
	})
	b := newTestHTTPBackend(t, srv, st)

	var events []AuthChangeEvent
	b.OnAuthStateChange(func(ev AuthChangeEvent, _ *Session) { events = append(events, ev) })

	s, err := b.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A2", s.AccessToken)
	require.Equal(t, "u-1", s.User.ID, "user carried over from the old session")

	req := f.last()
	require.Equal(t, "grant_type=refresh_token", req.Query)
	require.Equal(t, "R1", req.Body["refresh_token"])
	require.Equal(t, []AuthChangeEvent{EventTokenRefreshed}, events)
}

func TestHTTPBackend_GetSession_RejectedRefreshSignsOut(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/token", writeJSON(400, map[string]any{"msg": "Invalid Refresh Token: Already Used"}))

	st := newMapStorage()
	storeSession(t, st, Session{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: time.Now().Add(-time.Minute).Unix()})
	b := newTestHTTPBackend(t, srv, st)

	var events []AuthChangeEvent
	b.OnAuthStateChange(func(ev AuthChangeEvent, _ *Session) { events = append(events, ev) })

	_, err := b.GetSession(context.Background())
	require.Error(t, err)
	require.False(t, st.has(DefaultStorageKey))
	require.Equal(t, []AuthChangeEvent{EventSignedOut}, events)
}

// heldToken answers the refresh grant with body once release is closed and
// reports on started when a request arrives.
func heldToken(body map[string]any, started chan<- struct{}, release <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		writeJSON(200, body)(w, r)
	}
}

func TestHTTPBackend_RefreshFinishingAfterSignOutIsDropped(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	f.on("POST /auth/v1/token", heldToken(map[string]any{
		"access_token": "A2", "refresh_token": "R2", "expires_in": 3600,
	}, started, release))
	f.on("POST /auth/v1/logout", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	st := newMapStorage()
	storeSession(t, st, Session{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: time.Now().Add(-time.Minute).Unix()})
	b := newTestHTTPBackend(t, srv, st)

	var mu sync.Mutex
	var events []AuthChangeEvent
	b.OnAuthStateChange(func(ev AuthChangeEvent, _ *Session) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	type result struct {
		s   *Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := b.GetSession(context.Background())
		done <- result{s, err}
	}()

	<-started
	require.NoError(t, b.SignOut(context.Background()))
	close(release)
	res := <-done

	require.NoError(t, res.err)
	require.Nil(t, res.s)
	require.False(t, st.has(DefaultStorageKey))

	s, err := b.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, s)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []AuthChangeEvent{EventSignedOut}, events)
}

func TestHTTPBackend_ConcurrentRefreshSharesRequest(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	f.on("POST /auth/v1/token", heldToken(map[string]any{
		"access_token": "A2", "refresh_token": "R2", "expires_in": 3600,
	}, started, release))

	st := newMapStorage()
	storeSession(t, st, Session{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: time.Now().Add(-time.Minute).Unix()})
	b := newTestHTTPBackend(t, srv, st)

	var wg sync.WaitGroup
	tokens := make([]string, 2)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := b.GetSession(context.Background())
			if err == nil && s != nil {
				tokens[i] = s.AccessToken
			}
		}()
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, []string{"A2", "A2"}, tokens)
	require.Equal(t, 1, f.count(http.MethodPost, "/auth/v1/token"))
}

func TestHTTPBackend_GetSession_FreshSessionNoRequest(t *testing.T) {
	f, srv := newFakeGoTrue(t)

	st := newMapStorage()
	storeSession(t, st, Session{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	b := newTestHTTPBackend(t, srv, st)

	s, err := b.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A1", s.AccessToken)
	require.Zero(t, f.count(http.MethodPost, "/auth/v1/token"))
}

func TestHTTPBackend_AutoRefresh(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/token", writeJSON(200, map[string]any{
		"access_token": "A2", "refresh_token": "R2", "expires_in": 3600,
	}))

	st := newMapStorage()
	storeSession(t, st, Session{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: time.Now().Unix()})

	var refreshed atomic.Int32
	b, err := NewHTTPBackend(HTTPConfig{
		URL: srv.URL, AnonKey: "anon-key", Storage: st,
		AutoRefreshToken: true, RefreshTick: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	b.OnAuthStateChange(func(ev AuthChangeEvent, _ *Session) {
		if ev == EventTokenRefreshed {
			refreshed.Add(1)
		}
	})

	require.Eventually(t, func() bool { return refreshed.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, b.Close())
	require.Equal(t, 1, f.count(http.MethodPost, "/auth/v1/token"), "fresh token is not refreshed again")
}

/*************
 * User, recovery, misc
 *************/

func TestHTTPBackend_UpdateUser(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("PUT /auth/v1/user", writeJSON(200, map[string]any{
		"id": "u-1", "email": "ann@example.com", "user_metadata": map[string]any{"full_name": "Ann B"},
	}))

	st := newMapStorage()
	storeSession(t, st, Session{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	b := newTestHTTPBackend(t, srv, st)

	var events []AuthChangeEvent
	b.OnAuthStateChange(func(ev AuthChangeEvent, s *Session) {
		events = append(events, ev)
		require.Equal(t, "Ann B", s.User.UserMetadata["full_name"])
	})

	u, err := b.UpdateUser(context.Background(), UserAttributes{Data: map[string]any{"full_name": "Ann B"}})
	require.NoError(t, err)
	require.Equal(t, "u-1", u.ID)

	req := f.last()
	require.Equal(t, "Bearer A1", req.Header.Get(common.AuthorizationHeaderName))
	require.NotContains(t, req.Body, "password")
	require.Equal(t, []AuthChangeEvent{EventUserUpdated}, events)
}

func TestHTTPBackend_UpdateUser_NoSession(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	b := newTestHTTPBackend(t, srv, nil)

	_, err := b.UpdateUser(context.Background(), UserAttributes{Password: "secret2"})
	require.ErrorIs(t, err, ErrNoSession)
}

func TestHTTPBackend_ResetPassword_SendsRedirect(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/recover", writeJSON(200, map[string]any{}))

	b := newTestHTTPBackend(t, srv, nil)

	require.NoError(t, b.ResetPasswordForEmail(context.Background(), "ann@example.com", "stuffhappens://reset-password"))
	req := f.last()
	require.Equal(t, "redirect_to=stuffhappens%3A%2F%2Freset-password", req.Query)
	require.Equal(t, "ann@example.com", req.Body["email"])
}

func TestHTTPBackend_Resend_DefaultsToSignup(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("POST /auth/v1/resend", writeJSON(200, map[string]any{}))

	b := newTestHTTPBackend(t, srv, nil)

	require.NoError(t, b.Resend(context.Background(), ResendParams{Email: "ann@example.com"}))
	require.Equal(t, "signup", f.last().Body["type"])
}

func TestHTTPBackend_Ping(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.on("GET /auth/v1/health", writeJSON(200, map[string]any{"name": "GoTrue"}))

	b := newTestHTTPBackend(t, srv, nil)
	require.NoError(t, b.Ping(context.Background()))

	srv.Close()
	require.ErrorIs(t, b.Ping(context.Background()), ErrUnavailable)
}

func TestParseProviderError_Shapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
		wantMsg  string
	}{
		{"msg", `{"code":400,"error_code":"weak_password","msg":"Password should be at least 6 characters"}`, "weak_password", MsgWeakPassword},
		{"message", `{"message":"Email rate limit exceeded"}`, "", MsgEmailRateLimit},
		{"oauth", `{"error":"invalid_grant","error_description":"Email not confirmed"}`, "invalid_grant", MsgEmailNotConfirmed},
		{"bare error", `{"error":"something broke"}`, "something broke", "something broke"},
		{"not json", `<html>`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := parseProviderError(400, []byte(tt.body))
			require.Equal(t, 400, pe.Status)
			require.Equal(t, tt.wantCode, pe.Code)
			require.Equal(t, tt.wantMsg, pe.Message)
		})
	}
}
