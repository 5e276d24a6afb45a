// Package client contains the transport side of the Stuff Happens auth
// client.
//
// # Overview
//
// The package provides:
//  1. The Backend interface, the contract of the remote authentication
//     provider: sign-up, password sign-in, sign-out, password recovery, user
//     updates, session lookup and auth state notifications.
//  2. HTTPBackend, which speaks the GoTrue REST API used by Supabase. It keeps
//     the session in a SessionStorage, refreshes access tokens before they
//     expire and emits SIGNED_IN, SIGNED_OUT, TOKEN_REFRESHED and
//     USER_UPDATED events.
//  3. InMemoryBackend, a self-contained implementation for offline demos and
//     tests that mints HS256 access tokens.
//  4. Local persistence bootstrap (InitDatabase, RunMigrations,
//     EnsureInstallation) wiring an SQLite database and embedded goose
//     migrations.
//
// # Error Handling
//
// Rejections by the provider are *ProviderError values carrying the HTTP
// status and the provider's message. Transport failures wrap ErrUnavailable.
// ErrNoSession is returned by operations that need a signed-in user.
//
// Concurrency & Contexts
//
// Both backends are safe for concurrent use. Listeners registered with
// OnAuthStateChange receive events one at a time, in emission order.
package client
