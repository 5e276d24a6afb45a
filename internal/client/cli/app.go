package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrijs2005/stuffhappens/internal/buildinfo"
	"github.com/dmitrijs2005/stuffhappens/internal/client/avatars"
	"github.com/dmitrijs2005/stuffhappens/internal/client/client"
	"github.com/dmitrijs2005/stuffhappens/internal/client/config"
	"github.com/dmitrijs2005/stuffhappens/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/stuffhappens/internal/client/services"
	"github.com/dmitrijs2005/stuffhappens/internal/client/session"
	"github.com/dmitrijs2005/stuffhappens/internal/logging"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const connectRetries = 3

// avatarUploader is satisfied by *avatars.Uploader.
type avatarUploader interface {
	Upload(ctx context.Context, userID, filename string, r io.Reader) (string, error)
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	storage  metadata.Repository
	auth     services.AuthService
	store    *session.Store
	health   *services.HealthMonitor
	registry *prometheus.Registry
	uploader avatarUploader

	modeMu sync.Mutex
	Mode   Mode

	reader *bufio.Reader
	out    io.Writer
}

// NewApp validates c and wires storage, the backend, the auth gateway and the
// session store.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{Format: c.LogFormat, Level: c.LogLevel, Output: os.Stderr})
	if err != nil {
		return nil, err
	}

	v := c.Validate()
	for _, w := range v.Warnings {
		logger.Warn(ctx, "configuration warning", "warning", w)
	}
	if !v.IsValid() {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(v.Errors, "; "))
	}

	db, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}
	repo := metadata.NewSQLiteRepository(db)

	inst, err := client.EnsureInstallation(ctx, repo)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger = logger.With("installation_id", inst.ID)

	backend, err := newBackend(c, c.Backend, repo, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := services.NewMetrics(registry)

	auth := services.NewAuthService(backend,
		services.WithRedirectURL(c.AuthRedirectURL),
		services.WithLogger(logger),
		services.WithMetrics(metrics),
	)

	a := &App{
		config:   c,
		logger:   logger,
		db:       db,
		storage:  repo,
		auth:     auth,
		store:    session.NewStore(auth, repo, session.WithLogger(logger), session.WithSingleFlight()),
		registry: registry,
		health: services.NewHealthMonitor(auth, services.HealthOptions{
			Interval: c.OnlineCheckInterval,
			Timeout:  c.RequestTimeout,
			Logger:   logger,
			Metrics:  metrics,
		}),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}

	if ac := c.Avatars(); ac.Enabled() {
		up, err := avatars.NewUploader(ctx, ac)
		if err != nil {
			logger.Warn(ctx, "avatar uploads disabled", "error", err)
		} else {
			a.uploader = up
		}
	}

	return a, nil
}

// newBackend builds the backend named by kind. Sessions of the HTTP backend
// are kept in storage so they survive restarts.
func newBackend(c *config.Config, kind string, storage client.SessionStorage, logger logging.Logger) (client.Backend, error) {
	switch kind {
	case config.BackendMemory:
		return client.NewInMemoryBackend(client.WithDemoAccount()), nil
	case config.BackendSupabase:
		b, err := client.NewHTTPBackend(client.HTTPConfig{
			URL:              c.BackendURL(),
			AnonKey:          c.BackendAnonKey(),
			Timeout:          c.RequestTimeout,
			AutoRefreshToken: c.AutoRefreshToken,
			ClientInfo:       buildinfo.ClientInfo(),
			Storage:          storage,
			Logger:           logger,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()

	if a.Mode != mode {
		a.Mode = mode
		a.logger.Info(context.Background(), "connection mode changed", "mode", mode)
	}
}

func (a *App) mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.Mode
}

// Run drives the REPL until the user exits, then releases resources.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error(ctx, "shutdown failed", "error", err)
		}
	}()
	a.Root(ctx)
}

func (a *App) Close() error {
	a.store.Close()
	var errs []error
	if err := a.auth.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) isLoggedIn() bool {
	return a.store.IsAuthenticated()
}

// StartOnlineStatusWatcher lets the health monitor probe the backend every
// configured interval and flips Mode accordingly. It returns when ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context) {
	a.health.Run(ctx, a.applyHealth)
}

func (a *App) checkOnline(ctx context.Context) {
	a.applyHealth(a.health.Check(ctx))
}

func (a *App) applyHealth(h services.ConnectionHealth) {
	if h.IsConnected {
		a.setMode(ModeOnline)
	} else {
		a.setMode(ModeOffline)
	}
}
