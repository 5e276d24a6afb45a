package client

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoSession is returned by operations that need a signed-in session
	// when there is none. The text matches the hosted backend's wording.
	ErrNoSession = errors.New("Auth session missing!")
)

// ProviderError is a rejection reported by the auth backend itself, as
// opposed to a transport failure.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth provider error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth provider error %d: %s", e.Status, e.Message)
}

// Unwrap maps 401/403 onto ErrUnauthorized so callers can use errors.Is.
func (e *ProviderError) Unwrap() error {
	if e.Status == 401 || e.Status == 403 {
		return ErrUnauthorized
	}
	return nil
}

// Backend messages the gateway knows how to translate.
const (
	MsgInvalidCredentials = "Invalid login credentials"
	MsgEmailNotConfirmed  = "Email not confirmed"
	MsgUserAlreadyExists  = "User already registered"
	MsgSignupNeedsPass    = "Signup requires a valid password"
	MsgInvalidEmail       = "Unable to validate email address: invalid format"
	MsgWeakPassword       = "Password should be at least 6 characters"
	MsgEmailRateLimit     = "Email rate limit exceeded"
)
