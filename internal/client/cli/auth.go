package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/stuffhappens/internal/client/client"
	"github.com/dmitrijs2005/stuffhappens/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

var (
	errNotLoggedIn      = errors.New("not logged in")
	errPasswordMismatch = errors.New("passwords do not match")
)

// report prints err for the user and hands it back. Transport failures also
// flip the app into offline mode.
func (a *App) report(err error) error {
	if errors.Is(err, client.ErrUnavailable) {
		a.setMode(ModeOffline)
	}
	fmt.Fprintln(a.out, "Error:", err.Error())
	return err
}

func (a *App) readPassword() (string, error) {
	pw, err := getPassword(a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

// Register prompts for email, display name and password and creates an
// account. When the backend wants the address confirmed first the user is
// told to check their inbox; otherwise they are signed in.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	name, err := getSimpleText(a.reader, "Enter your name (optional)", a.out)
	if err != nil {
		return err
	}
	password, err := a.readPassword()
	if err != nil {
		return err
	}

	emailSent, err := a.store.SignUp(ctx, email, password, name)
	if err != nil {
		return a.report(err)
	}

	if emailSent {
		fmt.Fprintf(a.out, "Check %s for a confirmation link, then log in.\n", email)
		return nil
	}
	fmt.Fprintf(a.out, "Welcome, %s!\n", a.store.User().Name)
	return nil
}

// Login prompts for credentials and signs in.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := a.readPassword()
	if err != nil {
		return err
	}

	if err := a.store.Login(ctx, email, password); err != nil {
		return a.report(err)
	}

	a.setMode(ModeOnline)
	fmt.Fprintf(a.out, "Welcome back, %s!\n", a.store.User().Name)
	return nil
}

// Logout signs out. Local state is cleared even when the backend call fails;
// the failure is still shown.
func (a *App) Logout(ctx context.Context) error {
	if err := a.store.Logout(ctx); err != nil {
		fmt.Fprintln(a.out, "Signed out locally.")
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func (a *App) Whoami(ctx context.Context) error {
	u := a.store.User()
	if u == nil {
		fmt.Fprintln(a.out, "Not signed in.")
		return errNotLoggedIn
	}

	fmt.Fprintf(a.out, "Name:    %s\n", u.Name)
	fmt.Fprintf(a.out, "Email:   %s\n", u.Email)
	fmt.Fprintf(a.out, "Avatar:  %s\n", u.Avatar)
	fmt.Fprintf(a.out, "Since:   %s\n", u.CreatedAt.Format("2006-01-02"))
	return nil
}

func (a *App) ResetPassword(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	if err := a.store.ResetPassword(ctx, email); err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "If an account exists for %s, a reset link is on its way.\n", email)
	return nil
}

// ChangePassword asks for the new password twice.
func (a *App) ChangePassword(ctx context.Context) error {
	if !a.isLoggedIn() {
		return a.report(errNotLoggedIn)
	}

	first, err := a.readPassword()
	if err != nil {
		return err
	}
	second, err := a.readPassword()
	if err != nil {
		return err
	}
	if first != second {
		return a.report(errPasswordMismatch)
	}

	if err := a.store.UpdatePassword(ctx, first); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Password updated.")
	return nil
}

func (a *App) Resend(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	if err := a.auth.ResendConfirmation(ctx, email); err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Confirmation email sent to %s.\n", email)
	return nil
}

func (a *App) CheckEmail(ctx context.Context, email string) error {
	if a.auth.IsEmailAvailable(ctx, email) {
		fmt.Fprintf(a.out, "%s is available.\n", email)
	} else {
		fmt.Fprintf(a.out, "%s is already registered.\n", email)
	}
	return nil
}
