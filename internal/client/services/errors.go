package services

import (
	"errors"

	"github.com/dmitrijs2005/stuffhappens/internal/client/client"
)

// ErrNoUserData means the backend reported success but returned no user or
// session. There is nothing sensible to recover.
var ErrNoUserData = errors.New("no user data received")

const (
	msgUnexpected = "An unexpected error occurred. Please try again."
	msgOffline    = "Unable to reach the authentication service. Check your connection and try again."
)

var friendlyMessages = map[string]string{
	client.MsgInvalidCredentials: "Invalid email or password. Please check your credentials and try again.",
	client.MsgEmailNotConfirmed:  "Please check your email and click the confirmation link before signing in.",
	client.MsgUserAlreadyExists:  "An account with this email already exists. Try signing in instead.",
	client.MsgSignupNeedsPass:    "Password must be at least 6 characters long.",
	client.MsgInvalidEmail:       "Please enter a valid email address.",
	client.MsgWeakPassword:       "Password must be at least 6 characters long.",
	client.MsgEmailRateLimit:     "Too many emails sent. Please wait a few minutes before trying again.",
}

// AuthError is returned by every failing gateway operation. Message is fit
// for display; Err keeps the underlying cause for errors.Is/As.
type AuthError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// FormatMessage translates a raw backend message. Unknown messages pass
// through verbatim.
func FormatMessage(raw string) string {
	if m, ok := friendlyMessages[raw]; ok {
		return m
	}
	if raw == "" {
		return msgUnexpected
	}
	return raw
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return err
	}
	return &AuthError{Op: op, Message: messageFor(op, err), Err: err}
}

func messageFor(op string, err error) string {
	var pe *client.ProviderError
	switch {
	case errors.As(err, &pe):
		return FormatMessage(pe.Message)
	case errors.Is(err, client.ErrUnavailable):
		return msgOffline
	case errors.Is(err, ErrNoUserData):
		return failedMessages[op] + " - no user data received"
	}
	return FormatMessage(err.Error())
}

var failedMessages = map[string]string{
	opSignUp:        "Sign up failed",
	opSignIn:        "Sign in failed",
	opSignOut:       "Sign out failed",
	opResetPassword: "Password reset failed",
	opUpdatePass:    "Password update failed",
	opUpdateProfile: "Profile update failed",
	opResend:        "Failed to resend confirmation email",
}
