// Package cli provides the interactive Stuff Happens command-line client.
//
// It wires configuration, local storage, the auth gateway and the session
// store behind a small REPL. On start the persisted user is shown at once,
// the backend is probed, and the session is confirmed with InitializeAuth.
// A background watcher keeps the online/offline mode current.
//
// Key features:
//   - Register / Login / Logout, password reset and change
//   - Profile edits and avatar uploads to S3-compatible storage
//   - Backend status, client metrics and masked configuration dump
//   - Switching between the hosted and the in-memory demo backend
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
