package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Whoami(ctx context.Context) error
	ResetPassword(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	Profile(ctx context.Context) error
	Avatar(ctx context.Context, path string) error
	Resend(ctx context.Context) error
	CheckEmail(ctx context.Context, email string) error
	Status(ctx context.Context) error
	Metrics(ctx context.Context) error
	ShowConfig(ctx context.Context) error
	SwitchBackend(ctx context.Context, kind string) error
}

// runREPL starts a simple read–eval–print loop.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. The loop exits on EOF or when the user types
// "exit" or "quit". Prompts issued by commands read from the same reader.
//
// Commands
//
//	Always:
//	  - help                : show available commands
//	  - status              : backend reachability
//	  - metrics             : client metrics in text exposition format
//	  - config              : effective configuration, secrets masked
//	  - backend <kind>      : switch to the supabase or memory backend
//	  - exit | quit         : leave the program
//
//	Not logged in:
//	  - register            : create an account
//	  - login               : sign in
//	  - reset               : request a password reset email
//	  - resend              : resend the confirmation email
//	  - check <email>       : is the address still free
//
//	Logged in:
//	  - whoami              : show the current user
//	  - profile             : change display name or avatar URL
//	  - avatar <file>       : upload a profile picture
//	  - passwd              : change password
//	  - logout              : sign out
//
// Errors returned by command handlers are ignored here; handlers report
// their own errors. This keeps the loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("sh> %s > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: whoami, profile, avatar <file>, passwd, logout, status, metrics, config, backend <kind>, exit")
			} else {
				printlnFn("Available commands: register, login, reset, resend, check <email>, status, metrics, config, backend <kind>, exit")
			}

		case "register", "signup":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "whoami":
			_ = a.Whoami(ctx)

		case "reset":
			_ = a.ResetPassword(ctx)

		case "passwd":
			_ = a.ChangePassword(ctx)

		case "profile":
			_ = a.Profile(ctx)

		case "avatar":
			if len(args) == 0 {
				printlnFn("Usage: avatar <file>")
				continue
			}
			_ = a.Avatar(ctx, args[0])

		case "resend":
			_ = a.Resend(ctx)

		case "check":
			if len(args) == 0 {
				printlnFn("Usage: check <email>")
				continue
			}
			_ = a.CheckEmail(ctx, args[0])

		case "status":
			_ = a.Status(ctx)

		case "metrics":
			_ = a.Metrics(ctx)

		case "config":
			_ = a.ShowConfig(ctx)

		case "backend":
			if len(args) == 0 {
				printlnFn("Usage: backend <supabase|memory>")
				continue
			}
			_ = a.SwitchBackend(ctx, args[0])

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
