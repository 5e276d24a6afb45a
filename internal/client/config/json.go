package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/stuffhappens/internal/flagx"
	"github.com/dmitrijs2005/stuffhappens/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// Intervals are timex.Duration so they may be strings like "3s" or integer
// nanoseconds. Only keys present in the file are copied into Config.
type JsonConfig struct {
	Environment         *string         `json:"environment"`
	SupabaseURL         *string         `json:"supabase_url"`
	SupabaseAnonKey     *string         `json:"supabase_anon_key"`
	SupabaseURLProd     *string         `json:"supabase_url_prod"`
	SupabaseAnonKeyProd *string         `json:"supabase_anon_key_prod"`
	AuthRedirectURL     *string         `json:"auth_redirect_url"`
	Backend             *string         `json:"backend"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	AutoRefreshToken    *bool           `json:"auto_refresh_token"`
	DatabaseDSN         *string         `json:"database_dsn"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	LogFormat           *string         `json:"log_format"`
	LogLevel            *string         `json:"log_level"`
	AvatarBucket        *string         `json:"avatar_bucket"`
	AvatarRegion        *string         `json:"avatar_region"`
	AvatarEndpoint      *string         `json:"avatar_endpoint"`
	AvatarPublicURL     *string         `json:"avatar_public_url"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Without either flag nothing happens. Read or unmarshal
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.Environment, jc.Environment)
	setString(&cfg.SupabaseURL, jc.SupabaseURL)
	setString(&cfg.SupabaseAnonKey, jc.SupabaseAnonKey)
	setString(&cfg.SupabaseURLProd, jc.SupabaseURLProd)
	setString(&cfg.SupabaseAnonKeyProd, jc.SupabaseAnonKeyProd)
	setString(&cfg.AuthRedirectURL, jc.AuthRedirectURL)
	setString(&cfg.Backend, jc.Backend)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.AvatarBucket, jc.AvatarBucket)
	setString(&cfg.AvatarRegion, jc.AvatarRegion)
	setString(&cfg.AvatarEndpoint, jc.AvatarEndpoint)
	setString(&cfg.AvatarPublicURL, jc.AvatarPublicURL)

	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.AutoRefreshToken != nil {
		cfg.AutoRefreshToken = *jc.AutoRefreshToken
	}
}
