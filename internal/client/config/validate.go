package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validation is the outcome of Validate. Errors make the configuration
// unusable; warnings are worth showing but do not stop startup.
type Validation struct {
	Errors   []string
	Warnings []string
}

func (v Validation) IsValid() bool { return len(v.Errors) == 0 }

func (v *Validation) errorf(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *Validation) warnf(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks the settings the selected backend depends on.
func (c *Config) Validate() Validation {
	var v Validation

	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		v.errorf("Unknown environment %q", c.Environment)
	}
	if c.RequestTimeout <= 0 {
		v.errorf("Request timeout must be positive")
	}

	switch c.Backend {
	case BackendMemory:
		v.warnf("Using the in-memory backend; accounts are lost on exit")
		return v
	case BackendSupabase:
	default:
		v.errorf("Unknown backend %q", c.Backend)
		return v
	}

	if c.IsProduction() {
		if c.SupabaseURLProd == "" && c.SupabaseURL == "" {
			v.errorf("Production Supabase URL is required")
		}
		if c.SupabaseAnonKeyProd == "" && c.SupabaseAnonKey == "" {
			v.errorf("Production Supabase anon key is required")
		}
		if c.SupabaseURLProd != "" && c.SupabaseURLProd == c.SupabaseURL {
			v.warnf("Production and development Supabase URLs are the same")
		}
	} else {
		if c.SupabaseURL == "" {
			v.errorf("Missing required environment variable: %s", envSupabaseURL)
		}
		if c.SupabaseAnonKey == "" {
			v.errorf("Missing required environment variable: %s", envSupabaseAnonKey)
		}
	}

	for name, value := range map[string]string{
		envSupabaseURL:         c.SupabaseURL,
		envSupabaseAnonKey:     c.SupabaseAnonKey,
		envSupabaseURLProd:     c.SupabaseURLProd,
		envSupabaseAnonKeyProd: c.SupabaseAnonKeyProd,
	} {
		if isPlaceholder(value) {
			v.errorf("Environment variable %s appears to be a placeholder", name)
		}
	}

	if raw := c.BackendURL(); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			v.errorf("Supabase URL is not a valid URL")
		} else {
			if !strings.Contains(u.Hostname(), "supabase") {
				v.warnf("Supabase URL does not appear to be a valid Supabase endpoint")
			}
			if u.Scheme != "https" {
				v.errorf("Supabase URL must use HTTPS")
			}
		}
	}

	if r := c.AuthRedirectURL; r != "" && !strings.HasPrefix(r, "exp://") && !strings.HasPrefix(r, "https://") {
		v.warnf("Auth redirect URL should start with exp:// or https://")
	}

	return v
}

func isPlaceholder(s string) bool {
	return strings.Contains(s, "your_") || strings.Contains(s, "_here")
}

// DebugInfo describes the effective configuration with secrets reduced to
// [SET] / [NOT SET].
func (c *Config) DebugInfo() map[string]string {
	return map[string]string{
		"environment":          c.Environment,
		"backend":              c.Backend,
		"backend_url":          c.BackendURL(),
		envSupabaseURL:         setOrNot(c.SupabaseURL),
		envSupabaseAnonKey:     setOrNot(c.SupabaseAnonKey),
		envSupabaseURLProd:     setOrNot(c.SupabaseURLProd),
		envSupabaseAnonKeyProd: setOrNot(c.SupabaseAnonKeyProd),
		envAvatarSecretKey:     setOrNot(c.AvatarSecretKey),
		"database_dsn":         c.DatabaseDSN,
		"request_timeout":      c.RequestTimeout.String(),
		"avatar_uploads":       fmt.Sprint(c.Avatars().Enabled()),
	}
}

func setOrNot(s string) string {
	if s == "" {
		return "[NOT SET]"
	}
	return "[SET]"
}
