package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/stuffhappens/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   Supabase project URL
//	-k string   Supabase anon key
//	-e string   environment: development | production
//	-b string   backend: supabase | memory
//	-d string   SQLite database file
//	-i int      online check interval in seconds
//	-l string   log level
//
// os.Args is filtered with flagx.FilterArgs first so that -c/-config and
// -env, handled elsewhere, do not collide.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-k", "-e", "-b", "-d", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.SupabaseURL, "a", cfg.SupabaseURL, "Supabase project URL")
	fs.StringVar(&cfg.SupabaseAnonKey, "k", cfg.SupabaseAnonKey, "Supabase anon key")
	fs.StringVar(&cfg.Environment, "e", cfg.Environment, "environment (development|production)")
	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "auth backend (supabase|memory)")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "SQLite database file")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug|info|warn|error)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
