package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/stuffhappens/internal/flagx"
)

const (
	envSupabaseURL         = "SUPABASE_URL"
	envSupabaseAnonKey     = "SUPABASE_ANON_KEY"
	envSupabaseURLProd     = "SUPABASE_URL_PROD"
	envSupabaseAnonKeyProd = "SUPABASE_ANON_KEY_PROD"
	envAvatarSecretKey     = "AVATAR_S3_SECRET_KEY"
)

const defaultDotEnv = ".env"

// EnvConfig is a DTO for environment variables. Pointer fields stay nil when
// the variable is unset, so only variables that are present override.
type EnvConfig struct {
	Environment         *string        `env:"APP_ENV"`
	SupabaseURL         *string        `env:"SUPABASE_URL"`
	SupabaseAnonKey     *string        `env:"SUPABASE_ANON_KEY"`
	SupabaseURLProd     *string        `env:"SUPABASE_URL_PROD"`
	SupabaseAnonKeyProd *string        `env:"SUPABASE_ANON_KEY_PROD"`
	AuthRedirectURL     *string        `env:"SUPABASE_AUTH_REDIRECT_URL"`
	Backend             *string        `env:"AUTH_BACKEND"`
	RequestTimeout      *time.Duration `env:"REQUEST_TIMEOUT"`
	AutoRefreshToken    *bool          `env:"AUTO_REFRESH_TOKEN"`
	DatabaseDSN         *string        `env:"DATABASE_DSN"`
	OnlineCheckInterval *time.Duration `env:"ONLINE_CHECK_INTERVAL"`
	LogFormat           *string        `env:"LOG_FORMAT"`
	LogLevel            *string        `env:"LOG_LEVEL"`
	AvatarBucket        *string        `env:"AVATAR_S3_BUCKET"`
	AvatarRegion        *string        `env:"AVATAR_S3_REGION"`
	AvatarEndpoint      *string        `env:"AVATAR_S3_ENDPOINT"`
	AvatarAccessKey     *string        `env:"AVATAR_S3_ACCESS_KEY"`
	AvatarSecretKey     *string        `env:"AVATAR_S3_SECRET_KEY"`
	AvatarPublicURL     *string        `env:"AVATAR_PUBLIC_URL"`
}

// loadDotEnv copies variables from a dotenv file into the process
// environment without overriding variables that are already set. The file
// is taken from -env; otherwise ./.env is used when it exists. An explicitly
// named file that cannot be read panics.
func loadDotEnv() {
	path := flagx.EnvFileFlags()
	if path == "" {
		if _, err := os.Stat(defaultDotEnv); errors.Is(err, fs.ErrNotExist) {
			return
		}
		path = defaultDotEnv
	}

	if err := godotenv.Load(path); err != nil {
		panic(err)
	}
}

// parseEnv overlays Config with environment variables. Malformed values
// panic, as other startup parsing errors do.
func parseEnv(cfg *Config) {
	var ec EnvConfig
	if err := env.Parse(&ec); err != nil {
		panic(err)
	}

	setString(&cfg.Environment, ec.Environment)
	setString(&cfg.SupabaseURL, ec.SupabaseURL)
	setString(&cfg.SupabaseAnonKey, ec.SupabaseAnonKey)
	setString(&cfg.SupabaseURLProd, ec.SupabaseURLProd)
	setString(&cfg.SupabaseAnonKeyProd, ec.SupabaseAnonKeyProd)
	setString(&cfg.AuthRedirectURL, ec.AuthRedirectURL)
	setString(&cfg.Backend, ec.Backend)
	setString(&cfg.DatabaseDSN, ec.DatabaseDSN)
	setString(&cfg.LogFormat, ec.LogFormat)
	setString(&cfg.LogLevel, ec.LogLevel)
	setString(&cfg.AvatarBucket, ec.AvatarBucket)
	setString(&cfg.AvatarRegion, ec.AvatarRegion)
	setString(&cfg.AvatarEndpoint, ec.AvatarEndpoint)
	setString(&cfg.AvatarAccessKey, ec.AvatarAccessKey)
	setString(&cfg.AvatarSecretKey, ec.AvatarSecretKey)
	setString(&cfg.AvatarPublicURL, ec.AvatarPublicURL)

	if ec.RequestTimeout != nil {
		cfg.RequestTimeout = *ec.RequestTimeout
	}
	if ec.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = *ec.OnlineCheckInterval
	}
	if ec.AutoRefreshToken != nil {
		cfg.AutoRefreshToken = *ec.AutoRefreshToken
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
