// Package common contains shared constants, sentinel errors and small helpers
// used across the Stuff Happens client components.
package common

// Header names understood by the hosted auth backend.
const (
	APIKeyHeaderName        = "apikey"
	AuthorizationHeaderName = "Authorization"
	ClientInfoHeaderName    = "X-Client-Info"
)

// Metadata keys written to the local key/value store.
const (
	InstallationIDKey = "installation_id"
	InstalledAtKey    = "installed_at"
)
