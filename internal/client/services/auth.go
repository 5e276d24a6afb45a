// Package services contains application services for the Stuff Happens
// client. This file defines the auth gateway: the one place where backend
// users, sessions and error messages are translated into the app's own
// vocabulary.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/stuffhappens/internal/client/client"
	"github.com/dmitrijs2005/stuffhappens/internal/client/models"
	"github.com/dmitrijs2005/stuffhappens/internal/logging"
)

// AuthService defines authentication operations for the client.
//
// Contract:
//   - every failing operation returns an *AuthError whose message is fit for
//     display;
//   - GetCurrentSession and GetCurrentUser never fail, they degrade to nil;
//   - ResetClient swaps the backend handle; calls already in flight finish
//     against the handle they started with.
//
// All methods must honor context cancellation/timeouts.
type AuthService interface {
	SignUp(ctx context.Context, email, password, fullName string) (*SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (*SignInResult, error)
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, newPassword string) error
	UpdateProfile(ctx context.Context, update models.ProfileUpdate) (*models.User, error)
	GetCurrentSession(ctx context.Context) (*models.User, *client.Session)
	GetCurrentUser(ctx context.Context) *models.User
	OnAuthStateChange(cb func(user *models.User, session *client.Session)) client.Subscription
	ResendConfirmation(ctx context.Context, email string) error
	IsEmailAvailable(ctx context.Context, email string) bool
	Ping(ctx context.Context) error
	ResetClient(next client.Backend) client.Backend
	Close() error
}

// SignUpResult reports the outcome of a registration. EmailSent is true when
// the backend wants the address confirmed before issuing a session.
type SignUpResult struct {
	User      *models.User
	Session   *client.Session
	EmailSent bool
}

type SignInResult struct {
	User    *models.User
	Session *client.Session
}

const (
	opSignUp        = "sign_up"
	opSignIn        = "sign_in"
	opSignOut       = "sign_out"
	opResetPassword = "reset_password"
	opUpdatePass    = "update_password"
	opUpdateProfile = "update_profile"
	opGetSession    = "get_session"
	opResend        = "resend_confirmation"
)

// emailProbePassword is sent by IsEmailAvailable; it only needs to be wrong.
const emailProbePassword = "dummy-password-for-email-check"

type Option func(*authService)

// WithRedirectURL sets where password recovery links point to.
func WithRedirectURL(u string) Option {
	return func(a *authService) { a.redirectURL = u }
}

func WithLogger(l logging.Logger) Option {
	return func(a *authService) { a.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(a *authService) { a.metrics = m }
}

// authService is the concrete AuthService. It is stateless apart from the
// owned backend handle.
type authService struct {
	mu      sync.RWMutex
	current client.Backend

	redirectURL string
	logger      logging.Logger
	metrics     *Metrics
}

// NewAuthService constructs an AuthService that owns backend.
func NewAuthService(backend client.Backend, opts ...Option) AuthService {
	a := &authService{current: backend, logger: logging.Nop{}}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *authService) backend() client.Backend {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *authService) SignUp(ctx context.Context, email, password, fullName string) (res *SignUpResult, err error) {
	defer a.metrics.observe(opSignUp, time.Now(), &err)

	params := client.SignUpParams{Email: normalizeEmail(email), Password: password}
	if name := strings.TrimSpace(fullName); name != "" {
		params.Data = map[string]any{models.MetaFullName: name}
	}

	resp, err := a.backend().SignUp(ctx, params)
	if err != nil {
		return nil, wrapError(opSignUp, err)
	}
	if resp == nil {
		return nil, wrapError(opSignUp, ErrNoUserData)
	}

	return &SignUpResult{
		User:      NormalizeUser(resp.User),
		Session:   resp.Session,
		EmailSent: resp.Session == nil,
	}, nil
}

func (a *authService) SignIn(ctx context.Context, email, password string) (res *SignInResult, err error) {
	defer a.metrics.observe(opSignIn, time.Now(), &err)

	resp, err := a.backend().SignInWithPassword(ctx, normalizeEmail(email), password)
	if err != nil {
		return nil, wrapError(opSignIn, err)
	}
	if resp == nil || resp.User == nil || resp.Session == nil {
		return nil, wrapError(opSignIn, ErrNoUserData)
	}

	return &SignInResult{User: NormalizeUser(resp.User), Session: resp.Session}, nil
}

func (a *authService) SignOut(ctx context.Context) (err error) {
	defer a.metrics.observe(opSignOut, time.Now(), &err)

	return wrapError(opSignOut, a.backend().SignOut(ctx))
}

func (a *authService) ResetPassword(ctx context.Context, email string) (err error) {
	defer a.metrics.observe(opResetPassword, time.Now(), &err)

	return wrapError(opResetPassword, a.backend().ResetPasswordForEmail(ctx, normalizeEmail(email), a.redirectURL))
}

func (a *authService) UpdatePassword(ctx context.Context, newPassword string) (err error) {
	defer a.metrics.observe(opUpdatePass, time.Now(), &err)

	_, err = a.backend().UpdateUser(ctx, client.UserAttributes{Password: newPassword})
	return wrapError(opUpdatePass, err)
}

func (a *authService) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (u *models.User, err error) {
	defer a.metrics.observe(opUpdateProfile, time.Now(), &err)

	rec, err := a.backend().UpdateUser(ctx, client.UserAttributes{Data: update.Metadata()})
	if err != nil {
		return nil, wrapError(opUpdateProfile, err)
	}
	if rec == nil {
		return nil, wrapError(opUpdateProfile, ErrNoUserData)
	}
	return NormalizeUser(rec), nil
}

// GetCurrentSession never fails: any backend or network problem is logged and
// reported as signed out.
func (a *authService) GetCurrentSession(ctx context.Context) (*models.User, *client.Session) {
	var err error
	defer a.metrics.observe(opGetSession, time.Now(), &err)

	s, err := a.backend().GetSession(ctx)
	if err != nil {
		a.logger.Warn(ctx, "failed to get current session", "error", err)
		return nil, nil
	}
	if s == nil {
		return nil, nil
	}
	return NormalizeUser(s.User), s
}

func (a *authService) GetCurrentUser(ctx context.Context) *models.User {
	u, _ := a.GetCurrentSession(ctx)
	return u
}

// OnAuthStateChange subscribes cb to the current backend. The callback gets
// (nil, nil) on sign-out.
func (a *authService) OnAuthStateChange(cb func(*models.User, *client.Session)) client.Subscription {
	return a.backend().OnAuthStateChange(func(_ client.AuthChangeEvent, s *client.Session) {
		if s == nil {
			cb(nil, nil)
			return
		}
		cb(NormalizeUser(s.User), s)
	})
}

func (a *authService) ResendConfirmation(ctx context.Context, email string) (err error) {
	defer a.metrics.observe(opResend, time.Now(), &err)

	return wrapError(opResend, a.backend().Resend(ctx, client.ResendParams{
		Type:  client.ResendTypeSignup,
		Email: normalizeEmail(email),
	}))
}

// IsEmailAvailable probes the address with a sign-in attempt. Only the
// "invalid credentials" and "not confirmed" answers prove the account
// exists; any other outcome, including failures, counts as available.
func (a *authService) IsEmailAvailable(ctx context.Context, email string) bool {
	_, err := a.backend().SignInWithPassword(ctx, normalizeEmail(email), emailProbePassword)

	var pe *client.ProviderError
	if errors.As(err, &pe) {
		return pe.Message != client.MsgInvalidCredentials && pe.Message != client.MsgEmailNotConfirmed
	}
	return true
}

func (a *authService) Ping(ctx context.Context) error {
	return a.backend().Ping(ctx)
}

// ResetClient installs next and returns the previous handle, which the caller
// closes once it no longer needs it.
func (a *authService) ResetClient(next client.Backend) client.Backend {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.current
	a.current = next
	return prev
}

// Close releases the current backend.
func (a *authService) Close() error {
	return a.backend().Close()
}
