package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/stuffhappens/internal/common"
	"github.com/dmitrijs2005/stuffhappens/internal/logging"
)

// SessionStorage persists the token bundle between runs. Get returns
// (nil, nil) when nothing is stored. metadata.Repository satisfies it.
type SessionStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

const (
	DefaultStorageKey  = "auth-token"
	DefaultTimeout     = 10 * time.Second
	DefaultRefreshTick = 30 * time.Second

	// refreshMargin is how close to expiry GetSession refreshes eagerly.
	refreshMargin = 10 * time.Second
	// refreshTicks: the auto-refresh loop renews tokens expiring within
	// this many ticks.
	refreshTicks = 3
)

// HTTPConfig configures an HTTPBackend.
type HTTPConfig struct {
	URL     string
	AnonKey string

	// Timeout bounds every request. Defaults to DefaultTimeout.
	Timeout time.Duration

	AutoRefreshToken bool
	RefreshTick      time.Duration

	ClientInfo string

	// Storage is optional; without it sessions live only in memory.
	Storage    SessionStorage
	StorageKey string

	Logger     logging.Logger
	HTTPClient *http.Client
}

// HTTPBackend talks to a GoTrue-compatible REST API (the auth service of
// Supabase). It keeps the current session, persists it through Storage, and
// optionally refreshes access tokens in the background.
type HTTPBackend struct {
	baseURL    string
	anonKey    string
	clientInfo string
	storageKey string
	storage    SessionStorage
	logger     logging.Logger
	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	session *Session
	loaded  bool

	// transitionMu orders session changes together with their events.
	transitionMu sync.Mutex
	refreshes    singleflight.Group

	events emitter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHTTPBackend validates cfg and, when AutoRefreshToken is set, starts the
// refresh loop. Call Close to stop it.
func NewHTTPBackend(cfg HTTPConfig) (*HTTPBackend, error) {
	if cfg.URL == "" || cfg.AnonKey == "" {
		return nil, errors.New("auth backend url and anon key are required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid auth backend url %q", cfg.URL)
	}

	b := &HTTPBackend{
		baseURL:    strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey:    cfg.AnonKey,
		clientInfo: cfg.ClientInfo,
		storageKey: cfg.StorageKey,
		storage:    cfg.Storage,
		logger:     cfg.Logger,
		httpClient: cfg.HTTPClient,
		now:        time.Now,
	}
	if b.storageKey == "" {
		b.storageKey = DefaultStorageKey
	}
	if b.logger == nil {
		b.logger = logging.Nop{}
	}
	if b.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		b.httpClient = &http.Client{Timeout: timeout}
	}

	if cfg.AutoRefreshToken {
		tick := cfg.RefreshTick
		if tick <= 0 {
			tick = DefaultRefreshTick
		}
		ctx, cancel := context.WithCancel(context.Background())
		b.cancel = cancel
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.autoRefresh(ctx, tick)
		}()
	}

	return b, nil
}

// ---- Backend ----

func (b *HTTPBackend) SignUp(ctx context.Context, params SignUpParams) (*AuthResponse, error) {
	body := map[string]any{"email": params.Email, "password": params.Password}
	if len(params.Data) > 0 {
		body["data"] = params.Data
	}

	var raw json.RawMessage
	if err := b.do(ctx, http.MethodPost, "/signup", nil, body, "", &raw); err != nil {
		return nil, err
	}

	// With auto-confirm the server answers with a session, otherwise with
	// the bare user awaiting confirmation.
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode sign up response: %w", err)
	}
	if s.AccessToken != "" {
		b.transition(ctx, EventSignedIn, &s, nil)
		return &AuthResponse{User: s.User, Session: &s}, nil
	}

	var u UserRecord
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode sign up response: %w", err)
	}
	if u.ID == "" {
		return &AuthResponse{}, nil
	}
	return &AuthResponse{User: &u}, nil
}

func (b *HTTPBackend) SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error) {
	q := url.Values{"grant_type": {"password"}}
	var s Session
	if err := b.do(ctx, http.MethodPost, "/token", q, map[string]any{"email": email, "password": password}, "", &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return &AuthResponse{User: s.User}, nil
	}

	b.transition(ctx, EventSignedIn, &s, nil)
	return &AuthResponse{User: s.User, Session: &s}, nil
}

// SignOut revokes the session server-side and forgets it locally. A session
// the server no longer knows (401/403/404) still counts as signed out.
func (b *HTTPBackend) SignOut(ctx context.Context) error {
	s := b.currentSession(ctx)
	if s != nil {
		err := b.do(ctx, http.MethodPost, "/logout", nil, nil, s.AccessToken, nil)
		var pe *ProviderError
		if err != nil && !(errors.As(err, &pe) && (pe.Status == 401 || pe.Status == 403 || pe.Status == 404)) {
			return err
		}
	}

	b.transition(ctx, EventSignedOut, nil, nil)
	return nil
}

func (b *HTTPBackend) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var q url.Values
	if redirectTo != "" {
		q = url.Values{"redirect_to": {redirectTo}}
	}
	return b.do(ctx, http.MethodPost, "/recover", q, map[string]any{"email": email}, "", nil)
}

func (b *HTTPBackend) UpdateUser(ctx context.Context, attrs UserAttributes) (*UserRecord, error) {
	s, err := b.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}

	body := map[string]any{}
	if attrs.Password != "" {
		body["password"] = attrs.Password
	}
	if len(attrs.Data) > 0 {
		body["data"] = attrs.Data
	}

	var u UserRecord
	if err := b.do(ctx, http.MethodPut, "/user", nil, body, s.AccessToken, &u); err != nil {
		return nil, err
	}

	// Installed only while s is still current, so a racing sign-out wins.
	updated := *s
	updated.User = &u
	b.transition(ctx, EventUserUpdated, &updated, s)
	return &u, nil
}

func (b *HTTPBackend) GetSession(ctx context.Context) (*Session, error) {
	s := b.currentSession(ctx)
	if s == nil {
		return nil, nil
	}
	if !s.ExpiresWithin(refreshMargin, b.now()) {
		return s, nil
	}
	return b.refresh(ctx, s)
}

func (b *HTTPBackend) OnAuthStateChange(listener AuthStateListener) Subscription {
	return b.events.subscribe(listener)
}

func (b *HTTPBackend) Resend(ctx context.Context, params ResendParams) error {
	t := params.Type
	if t == "" {
		t = ResendTypeSignup
	}
	return b.do(ctx, http.MethodPost, "/resend", nil, map[string]any{"type": t, "email": params.Email}, "", nil)
}

func (b *HTTPBackend) Ping(ctx context.Context) error {
	return b.do(ctx, http.MethodGet, "/health", nil, nil, "", nil)
}

// Close stops the refresh loop. It does not revoke the session.
func (b *HTTPBackend) Close() error {
	if b.cancel != nil {
		b.cancel()
		b.wg.Wait()
	}
	return nil
}

// ---- session bookkeeping ----

func (b *HTTPBackend) currentSession(ctx context.Context) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil && !b.loaded {
		b.loaded = true
		b.session = b.loadSession(ctx)
	}
	return b.session
}

func (b *HTTPBackend) loadSession(ctx context.Context) *Session {
	if b.storage == nil {
		return nil
	}
	data, err := b.storage.Get(ctx, b.storageKey)
	if err != nil {
		b.logger.Warn(ctx, "failed to load stored session", "error", err)
		return nil
	}
	if data == nil {
		return nil
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil || s.AccessToken == "" {
		b.logger.Warn(ctx, "discarding unreadable stored session", "error", err)
		return nil
	}
	return &s
}

// transition installs s, or clears the session when s is nil, and emits
// event. With expect set, nothing happens unless the current session still
// carries expect's refresh token. Listeners must not sign in or out
// synchronously.
func (b *HTTPBackend) transition(ctx context.Context, event AuthChangeEvent, s *Session, expect *Session) bool {
	b.transitionMu.Lock()
	defer b.transitionMu.Unlock()

	if expect != nil && !b.holds(expect) {
		return false
	}
	if s == nil {
		b.clearSession(ctx)
	} else {
		b.setSession(ctx, s)
	}
	b.events.emit(event, s)
	return true
}

func (b *HTTPBackend) holds(s *Session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session != nil && b.session.RefreshToken == s.RefreshToken
}

func (b *HTTPBackend) setSession(ctx context.Context, s *Session) {
	s.fillExpiry(b.now())

	b.mu.Lock()
	b.session = s
	b.loaded = true
	b.mu.Unlock()

	if b.storage == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		b.logger.Error(ctx, "failed to encode session", "error", err)
		return
	}
	if err := b.storage.Set(ctx, b.storageKey, data); err != nil {
		b.logger.Warn(ctx, "failed to persist session", "error", err)
	}
}

func (b *HTTPBackend) clearSession(ctx context.Context) {
	b.mu.Lock()
	b.session = nil
	b.loaded = true
	b.mu.Unlock()

	if b.storage == nil {
		return
	}
	if err := b.storage.Delete(ctx, b.storageKey); err != nil {
		b.logger.Warn(ctx, "failed to remove stored session", "error", err)
	}
}

// refresh exchanges the refresh token of s. Concurrent callers holding the
// same token share one request, made with the first caller's ctx; its
// cancellation is a transport failure and leaves the session in place.
func (b *HTTPBackend) refresh(ctx context.Context, s *Session) (*Session, error) {
	v, err, _ := b.refreshes.Do(s.RefreshToken, func() (any, error) {
		return b.exchange(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// exchange performs the refresh request. A rejected refresh token ends the
// session; a transport failure leaves it in place for the next attempt. When
// s stopped being current while the request was in flight, the answer is
// dropped and whatever is current now is returned.
func (b *HTTPBackend) exchange(ctx context.Context, s *Session) (*Session, error) {
	q := url.Values{"grant_type": {"refresh_token"}}
	var fresh Session
	err := b.do(ctx, http.MethodPost, "/token", q, map[string]any{"refresh_token": s.RefreshToken}, "", &fresh)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			b.transition(ctx, EventSignedOut, nil, s)
		}
		return nil, err
	}
	if fresh.User == nil {
		fresh.User = s.User
	}

	if !b.transition(ctx, EventTokenRefreshed, &fresh, s) {
		b.logger.Debug(ctx, "dropping refreshed session, session changed meanwhile")
		return b.currentSession(ctx), nil
	}
	return &fresh, nil
}

func (b *HTTPBackend) autoRefresh(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s := b.currentSession(ctx)
			if s == nil || !s.ExpiresWithin(refreshTicks*tick, b.now()) {
				continue
			}
			if _, err := b.refresh(ctx, s); err != nil {
				b.logger.Warn(ctx, "background token refresh failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// ---- transport ----

func (b *HTTPBackend) do(ctx context.Context, method, path string, q url.Values, body any, token string, out any) error {
	endpoint := b.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if token == "" {
		token = b.anonKey
	}
	req.Header.Set(common.APIKeyHeaderName, b.anonKey)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.clientInfo != "" {
		req.Header.Set(common.ClientInfoHeaderName, b.clientInfo)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented:
		if pe := parseProviderError(resp.StatusCode, data); pe.Message != "" {
			return pe
		}
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return parseProviderError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseProviderError understands the several error shapes GoTrue has used
// over time: {msg}, {message}, {error, error_description}, {error_code}.
func parseProviderError(status int, data []byte) *ProviderError {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
	}
	_ = json.Unmarshal(data, &body)

	pe := &ProviderError{Status: status, Code: body.ErrorCode}
	if pe.Code == "" {
		pe.Code = body.Error
	}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if m != "" {
			pe.Message = m
			break
		}
	}
	return pe
}
