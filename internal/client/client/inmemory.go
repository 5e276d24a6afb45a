package client

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/stuffhappens/internal/common"
	"github.com/dmitrijs2005/stuffhappens/internal/cryptox"
)

const (
	DemoEmail    = "demo@stuffhappens.com"
	DemoPassword = "demo123"
	DemoName     = "Demo User"

	DefaultAccessTokenTTL = time.Hour

	minPasswordLen = 6
)

// Claims is the payload of access tokens minted by InMemoryBackend.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// SentEmail records a message the in-memory backend would have mailed.
type SentEmail struct {
	Type       string
	Email      string
	RedirectTo string
}

type memUser struct {
	record   UserRecord
	salt     []byte
	verifier []byte
}

// InMemoryBackend is a self-contained Backend for offline use, demos and
// tests. It mimics GoTrue's responses and error messages closely enough that
// the gateway cannot tell the difference.
type InMemoryBackend struct {
	mu sync.Mutex

	users         map[string]*memUser // by email
	refreshTokens map[string]string   // token -> user id
	session       *Session
	outbox        []SentEmail
	emailCounts   map[string]int

	confirmEmail bool
	tokenTTL     time.Duration
	emailLimit   int
	signingKey   []byte
	unavailable  bool
	now          func() time.Time

	events emitter
}

type InMemoryOption func(*InMemoryBackend)

// WithEmailConfirmation makes new accounts unusable until ConfirmEmail.
func WithEmailConfirmation(required bool) InMemoryOption {
	return func(b *InMemoryBackend) { b.confirmEmail = required }
}

func WithAccessTokenTTL(d time.Duration) InMemoryOption {
	return func(b *InMemoryBackend) { b.tokenTTL = d }
}

// WithEmailRateLimit caps the number of emails sent per address.
func WithEmailRateLimit(n int) InMemoryOption {
	return func(b *InMemoryBackend) { b.emailLimit = n }
}

func WithSigningKey(key []byte) InMemoryOption {
	return func(b *InMemoryBackend) { b.signingKey = key }
}

func WithClock(now func() time.Time) InMemoryOption {
	return func(b *InMemoryBackend) { b.now = now }
}

// WithDemoAccount seeds the confirmed demo user.
func WithDemoAccount() InMemoryOption {
	return func(b *InMemoryBackend) {
		_ = b.seed(DemoEmail, DemoPassword, map[string]any{"full_name": DemoName}, true)
	}
}

func NewInMemoryBackend(opts ...InMemoryOption) *InMemoryBackend {
	b := &InMemoryBackend{
		users:         make(map[string]*memUser),
		refreshTokens: make(map[string]string),
		emailCounts:   make(map[string]int),
		tokenTTL:      DefaultAccessTokenTTL,
		signingKey:    common.GenerateRandByteArray(32),
		now:           time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// ---- test and admin helpers ----

// SeedUser creates an account directly, bypassing validation and email.
func (b *InMemoryBackend) SeedUser(email, password string, metadata map[string]any, confirmed bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seed(email, password, metadata, confirmed)
}

func (b *InMemoryBackend) seed(email, password string, metadata map[string]any, confirmed bool) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := b.users[email]; ok {
		return fmt.Errorf("user %s already exists", email)
	}
	salt, verifier := cryptox.HashPassword([]byte(password))
	u := &memUser{
		record: UserRecord{
			ID:           uuid.NewString(),
			Email:        email,
			CreatedAt:    b.now().UTC(),
			UserMetadata: maps.Clone(metadata),
		},
		salt:     salt,
		verifier: verifier,
	}
	if confirmed {
		t := b.now().UTC()
		u.record.EmailConfirmedAt = &t
	}
	b.users[email] = u
	return nil
}

// ConfirmEmail marks the account as confirmed, as following the emailed link
// would.
func (b *InMemoryBackend) ConfirmEmail(email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return fmt.Errorf("user %s: %w", email, common.ErrorNotFound)
	}
	t := b.now().UTC()
	u.record.EmailConfirmedAt = &t
	return nil
}

// SetUnavailable makes every call fail with ErrUnavailable, as if the network
// were down.
func (b *InMemoryBackend) SetUnavailable(v bool) {
	b.mu.Lock()
	b.unavailable = v
	b.mu.Unlock()
}

// RevokeSession ends the current session server-side and notifies listeners,
// as an admin sign-out from another device would.
func (b *InMemoryBackend) RevokeSession() {
	b.mu.Lock()
	b.dropSessionLocked()
	b.mu.Unlock()

	b.events.emit(EventSignedOut, nil)
}

// SentEmails returns a copy of the outbox.
func (b *InMemoryBackend) SentEmails() []SentEmail {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]SentEmail(nil), b.outbox...)
}

// ListenerCount reports the number of active auth state subscriptions.
func (b *InMemoryBackend) ListenerCount() int {
	return b.events.count()
}

// ---- Backend ----

func (b *InMemoryBackend) SignUp(ctx context.Context, params SignUpParams) (*AuthResponse, error) {
	b.mu.Lock()

	if err := b.checkLocked(ctx); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if err := validateCredentials(email, params.Password); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if _, ok := b.users[email]; ok {
		b.mu.Unlock()
		return nil, &ProviderError{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: MsgUserAlreadyExists}
	}
	if b.confirmEmail {
		if err := b.sendLocked(ResendTypeSignup, email, ""); err != nil {
			b.mu.Unlock()
			return nil, err
		}
	}

	_ = b.seed(email, params.Password, params.Data, !b.confirmEmail)
	u := b.users[email]

	if b.confirmEmail {
		rec := cloneRecord(&u.record)
		b.mu.Unlock()
		return &AuthResponse{User: rec}, nil
	}

	s, err := b.issueLocked(u)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	b.events.emit(EventSignedIn, s)
	return &AuthResponse{User: s.User, Session: s}, nil
}

func (b *InMemoryBackend) SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error) {
	b.mu.Lock()

	if err := b.checkLocked(ctx); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	u, ok := b.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok || !cryptox.CheckPassword([]byte(password), u.salt, u.verifier) {
		b.mu.Unlock()
		return nil, &ProviderError{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: MsgInvalidCredentials}
	}
	if u.record.EmailConfirmedAt == nil {
		b.mu.Unlock()
		return nil, &ProviderError{Status: http.StatusBadRequest, Code: "email_not_confirmed", Message: MsgEmailNotConfirmed}
	}

	s, err := b.issueLocked(u)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	b.events.emit(EventSignedIn, s)
	return &AuthResponse{User: s.User, Session: s}, nil
}

func (b *InMemoryBackend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	if err := b.checkLocked(ctx); err != nil {
		b.mu.Unlock()
		return err
	}
	b.dropSessionLocked()
	b.mu.Unlock()

	b.events.emit(EventSignedOut, nil)
	return nil
}

// ResetPasswordForEmail records a recovery email. Unknown addresses succeed
// silently so the endpoint cannot be used to probe for accounts.
func (b *InMemoryBackend) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkLocked(ctx); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return &ProviderError{Status: http.StatusBadRequest, Code: "validation_failed", Message: MsgInvalidEmail}
	}
	if _, ok := b.users[email]; !ok {
		return nil
	}
	return b.sendLocked("recovery", email, redirectTo)
}

func (b *InMemoryBackend) UpdateUser(ctx context.Context, attrs UserAttributes) (*UserRecord, error) {
	s, err := b.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}

	b.mu.Lock()

	if b.session == nil {
		b.mu.Unlock()
		return nil, ErrNoSession
	}
	u, err := b.authenticateLocked(s.AccessToken)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if attrs.Password != "" {
		if len(attrs.Password) < minPasswordLen {
			b.mu.Unlock()
			return nil, &ProviderError{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: MsgWeakPassword}
		}
		u.salt, u.verifier = cryptox.HashPassword([]byte(attrs.Password))
	}
	if len(attrs.Data) > 0 {
		if u.record.UserMetadata == nil {
			u.record.UserMetadata = make(map[string]any, len(attrs.Data))
		}
		maps.Copy(u.record.UserMetadata, attrs.Data)
	}

	b.session.User = cloneRecord(&u.record)
	rec := cloneRecord(&u.record)
	updated := copySession(b.session)
	b.mu.Unlock()

	b.events.emit(EventUserUpdated, updated)
	return rec, nil
}

func (b *InMemoryBackend) GetSession(ctx context.Context) (*Session, error) {
	b.mu.Lock()

	if err := b.checkLocked(ctx); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if b.session == nil {
		b.mu.Unlock()
		return nil, nil
	}
	if !b.session.ExpiresWithin(refreshMargin, b.now()) {
		s := copySession(b.session)
		b.mu.Unlock()
		return s, nil
	}

	userID, ok := b.refreshTokens[b.session.RefreshToken]
	u := b.userByIDLocked(userID)
	if !ok || u == nil {
		b.dropSessionLocked()
		b.mu.Unlock()
		b.events.emit(EventSignedOut, nil)
		return nil, &ProviderError{Status: http.StatusBadRequest, Code: "refresh_token_not_found", Message: "Invalid Refresh Token: Refresh Token Not Found"}
	}
	delete(b.refreshTokens, b.session.RefreshToken)
	s, err := b.issueLocked(u)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	b.events.emit(EventTokenRefreshed, s)
	return s, nil
}

func (b *InMemoryBackend) OnAuthStateChange(listener AuthStateListener) Subscription {
	return b.events.subscribe(listener)
}

func (b *InMemoryBackend) Resend(ctx context.Context, params ResendParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkLocked(ctx); err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if !validEmail(email) {
		return &ProviderError{Status: http.StatusBadRequest, Code: "validation_failed", Message: MsgInvalidEmail}
	}
	u, ok := b.users[email]
	if !ok || u.record.EmailConfirmedAt != nil {
		return nil
	}
	t := params.Type
	if t == "" {
		t = ResendTypeSignup
	}
	return b.sendLocked(t, email, "")
}

func (b *InMemoryBackend) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkLocked(ctx)
}

func (b *InMemoryBackend) Close() error { return nil }

// ---- internals ----

func (b *InMemoryBackend) checkLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.unavailable {
		return fmt.Errorf("%w: in-memory backend offline", ErrUnavailable)
	}
	return nil
}

func (b *InMemoryBackend) sendLocked(kind, email, redirectTo string) error {
	if b.emailLimit > 0 && b.emailCounts[email] >= b.emailLimit {
		return &ProviderError{Status: http.StatusTooManyRequests, Code: "over_email_send_rate_limit", Message: MsgEmailRateLimit}
	}
	b.emailCounts[email]++
	b.outbox = append(b.outbox, SentEmail{Type: kind, Email: email, RedirectTo: redirectTo})
	return nil
}

func (b *InMemoryBackend) issueLocked(u *memUser) (*Session, error) {
	now := b.now()
	exp := now.Add(b.tokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.record.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: u.record.Email,
		Role:  "authenticated",
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, fmt.Errorf("make refresh token: %w", err)
	}

	if b.session != nil {
		delete(b.refreshTokens, b.session.RefreshToken)
	}
	b.refreshTokens[refresh] = u.record.ID
	b.session = &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(b.tokenTTL / time.Second),
		ExpiresAt:    exp.Unix(),
		User:         cloneRecord(&u.record),
	}

	return copySession(b.session), nil
}

func (b *InMemoryBackend) authenticateLocked(token string) (*memUser, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return b.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil {
		code := "bad_jwt"
		if errors.Is(err, jwt.ErrTokenExpired) {
			code = "session_expired"
		}
		return nil, &ProviderError{Status: http.StatusUnauthorized, Code: code, Message: "invalid JWT: " + err.Error()}
	}

	u := b.userByIDLocked(claims.Subject)
	if u == nil {
		return nil, &ProviderError{Status: http.StatusForbidden, Code: "user_not_found", Message: "User from sub claim in JWT does not exist"}
	}
	return u, nil
}

func (b *InMemoryBackend) userByIDLocked(id string) *memUser {
	if id == "" {
		return nil
	}
	for _, u := range b.users {
		if u.record.ID == id {
			return u
		}
	}
	return nil
}

func (b *InMemoryBackend) dropSessionLocked() {
	if b.session != nil {
		delete(b.refreshTokens, b.session.RefreshToken)
	}
	b.session = nil
}

func validateCredentials(email, password string) error {
	if !validEmail(email) {
		return &ProviderError{Status: http.StatusBadRequest, Code: "validation_failed", Message: MsgInvalidEmail}
	}
	if password == "" {
		return &ProviderError{Status: http.StatusUnprocessableEntity, Code: "validation_failed", Message: MsgSignupNeedsPass}
	}
	if len(password) < minPasswordLen {
		return &ProviderError{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: MsgWeakPassword}
	}
	return nil
}

func validEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}

func copySession(s *Session) *Session {
	c := *s
	if s.User != nil {
		c.User = cloneRecord(s.User)
	}
	return &c
}

func cloneRecord(r *UserRecord) *UserRecord {
	c := *r
	c.UserMetadata = maps.Clone(r.UserMetadata)
	if r.EmailConfirmedAt != nil {
		t := *r.EmailConfirmedAt
		c.EmailConfirmedAt = &t
	}
	return &c
}
