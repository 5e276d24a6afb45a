// Package config loads runtime configuration for the Stuff Happens CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. A dotenv file named by -env, or ./.env when present. Variables already
//     in the environment win over the file.
//  3. Environment variables (see EnvConfig), parsed with caarlos0/env.
//  4. Optional JSON file selected via -c or -config (see JsonConfig).
//  5. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   Supabase project URL
//	-k string   Supabase anon key
//	-e string   environment
//	-b string   backend (supabase|memory)
//	-d string   SQLite database file
//	-i int      online status check interval (seconds)
//	-l string   log level
//
// # JSON schema
//
//	{
//	  "environment": "production",
//	  "supabase_url_prod": "https://abc.supabase.co",
//	  "request_timeout": "10s",
//	  "online_check_interval": "30s"
//	}
//
// In production the *_PROD Supabase settings are used, falling back to the
// development ones. (*Config).Validate reports what is missing or suspicious
// and (*Config).DebugInfo renders the effective settings with secrets masked.
package config
