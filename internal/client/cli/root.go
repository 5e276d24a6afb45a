package cli

import (
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	s := ""
	if u := a.store.User(); u != nil {
		s = u.Email + " "
	}
	if m := a.mode(); m != "" {
		s = s + string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Root restores the previous session, starts the connectivity watcher and
// runs the REPL until the user leaves.
func (a *App) Root(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintf(a.out, "Welcome to %s (type 'help' for commands)\n", a.config.AppDisplayName())

	a.start(ctx)

	go a.StartOnlineStatusWatcher(ctx)

	runREPL(ctx, a, a.getStatus, a.reader)
}

// start shows the persisted user right away, then confirms it against the
// backend.
func (a *App) start(ctx context.Context) {
	if a.store.Rehydrate(ctx) {
		fmt.Fprintf(a.out, "Restoring session for %s...\n", a.store.User().Email)
	}

	if a.health.TestConnection(ctx, connectRetries) {
		a.setMode(ModeOnline)
	} else {
		a.setMode(ModeOffline)
		fmt.Fprintln(a.out, "Backend unreachable, continuing offline.")
	}

	a.store.InitializeAuth(ctx)
	if u := a.store.User(); u != nil {
		fmt.Fprintf(a.out, "Signed in as %s.\n", u.Name)
	}
}
