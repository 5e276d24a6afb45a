package config

import (
	"time"

	"github.com/dmitrijs2005/stuffhappens/internal/client/avatars"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	BackendSupabase = "supabase"
	BackendMemory   = "memory"
)

// Config holds runtime settings for the Stuff Happens CLI.
//
// Fields:
//   - Environment: "development" or "production"; selects the Supabase project.
//   - SupabaseURL / SupabaseAnonKey: development project.
//   - SupabaseURLProd / SupabaseAnonKeyProd: production project, falling back to
//     the development values when unset.
//   - AuthRedirectURL: where password recovery links land.
//   - Backend: "supabase" for the hosted service, "memory" for the local demo.
//   - RequestTimeout: per-request limit for backend calls.
//   - DatabaseDSN: SQLite file holding persisted auth state.
//   - OnlineCheckInterval: how often the client probes backend reachability.
//   - Avatar*: S3-compatible bucket for profile pictures; uploads are disabled
//     when the bucket or endpoint is empty.
type Config struct {
	Environment         string
	SupabaseURL         string
	SupabaseAnonKey     string
	SupabaseURLProd     string
	SupabaseAnonKeyProd string
	AuthRedirectURL     string
	Backend             string
	RequestTimeout      time.Duration
	AutoRefreshToken    bool
	DatabaseDSN         string
	OnlineCheckInterval time.Duration
	LogFormat           string
	LogLevel            string

	AvatarBucket    string
	AvatarRegion    string
	AvatarEndpoint  string
	AvatarAccessKey string
	AvatarSecretKey string
	AvatarPublicURL string
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.Environment = EnvDevelopment
	c.AuthRedirectURL = "exp://localhost:19000/auth/callback"
	c.Backend = BackendSupabase
	c.RequestTimeout = 10 * time.Second
	c.AutoRefreshToken = true
	c.DatabaseDSN = "stuffhappens/client.db"
	c.OnlineCheckInterval = 30 * time.Second
	c.LogFormat = "text"
	c.LogLevel = "info"
	c.AvatarRegion = "us-east-1"
}

// LoadConfig constructs a Config, applies defaults, then overlays a dotenv
// file, environment variables, JSON (if present) and command-line flags.
// Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	loadDotEnv()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// BackendURL is the Supabase project URL for the selected environment.
func (c *Config) BackendURL() string {
	if c.IsProduction() && c.SupabaseURLProd != "" {
		return c.SupabaseURLProd
	}
	return c.SupabaseURL
}

// BackendAnonKey is the public API key matching BackendURL.
func (c *Config) BackendAnonKey() string {
	if c.IsProduction() && c.SupabaseAnonKeyProd != "" {
		return c.SupabaseAnonKeyProd
	}
	return c.SupabaseAnonKey
}

// AppDisplayName tags non-production builds so they are easy to tell apart.
func (c *Config) AppDisplayName() string {
	if c.IsProduction() {
		return "Stuff Happens"
	}
	return "Stuff Happens [DEV]"
}

func (c *Config) Avatars() avatars.Config {
	return avatars.Config{
		Region:        c.AvatarRegion,
		Endpoint:      c.AvatarEndpoint,
		AccessKey:     c.AvatarAccessKey,
		SecretKey:     c.AvatarSecretKey,
		Bucket:        c.AvatarBucket,
		PublicBaseURL: c.AvatarPublicURL,
	}
}
