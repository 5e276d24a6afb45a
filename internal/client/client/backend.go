package client

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Backend is the contract of the remote authentication provider. Every call
// may block on network I/O and must honor ctx.
type Backend interface {
	SignUp(ctx context.Context, params SignUpParams) (*AuthResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, attrs UserAttributes) (*UserRecord, error)

	// GetSession returns the current session, refreshing it first when the
	// access token is about to expire. (nil, nil) means signed out.
	GetSession(ctx context.Context) (*Session, error)

	// OnAuthStateChange registers listener for backend-initiated changes.
	// Events are delivered one at a time, in emission order. Listeners must
	// not call back into the backend synchronously.
	OnAuthStateChange(listener AuthStateListener) Subscription

	Resend(ctx context.Context, params ResendParams) error
	Ping(ctx context.Context) error
	Close() error
}

// UserRecord is the backend's native user object.
type UserRecord struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	CreatedAt        time.Time      `json:"created_at"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// Session is the backend-issued credential bundle. Callers outside this
// package pass it through without looking inside.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at,omitempty"`
	User         *UserRecord `json:"user"`
}

// Expiry returns the absolute expiry of the access token, or the zero time
// when unknown.
func (s *Session) Expiry() time.Time {
	if s == nil || s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// ExpiresWithin reports whether the access token expires before now+d.
// A session without a known expiry never expires.
func (s *Session) ExpiresWithin(d time.Duration, now time.Time) bool {
	exp := s.Expiry()
	if exp.IsZero() {
		return false
	}
	return !now.Add(d).Before(exp)
}

// fillExpiry derives ExpiresAt from ExpiresIn, or from the JWT exp claim when
// the server sent neither.
func (s *Session) fillExpiry(now time.Time) {
	if s.ExpiresAt != 0 {
		return
	}
	if s.ExpiresIn > 0 {
		s.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
		return
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Unix()
	}
}

// AuthResponse is returned by sign-up and sign-in. Session is nil when the
// account still needs email confirmation.
type AuthResponse struct {
	User    *UserRecord
	Session *Session
}

type SignUpParams struct {
	Email    string
	Password string
	Data     map[string]any
}

// UserAttributes is a partial update; zero fields are not sent.
type UserAttributes struct {
	Password string
	Data     map[string]any
}

// ResendParams selects which confirmation email to send again.
type ResendParams struct {
	Type  string
	Email string
}

const ResendTypeSignup = "signup"

// AuthChangeEvent names a backend-initiated session change.
type AuthChangeEvent string

const (
	EventSignedIn       AuthChangeEvent = "SIGNED_IN"
	EventSignedOut      AuthChangeEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthChangeEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthChangeEvent = "USER_UPDATED"
)

// AuthStateListener receives the event and the session after it; the
// session is nil on EventSignedOut.
type AuthStateListener func(event AuthChangeEvent, session *Session)

// Subscription is the handle returned by OnAuthStateChange.
type Subscription interface {
	Unsubscribe()
}
