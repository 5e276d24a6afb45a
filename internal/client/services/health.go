package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dmitrijs2005/stuffhappens/internal/logging"
)

const (
	DefaultHealthInterval = 30 * time.Second
	DefaultHealthTimeout  = 10 * time.Second
	defaultRetryInterval  = time.Second
)

// Pinger is anything that can probe the backend. AuthService satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionHealth is the result of the most recent reachability check.
type ConnectionHealth struct {
	IsConnected bool
	LastChecked time.Time
	Latency     time.Duration
	Error       string
}

type HealthOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// RetryInterval is the first TestConnection back-off step; it doubles
	// after every failed attempt.
	RetryInterval time.Duration
	Logger        logging.Logger
	Metrics       *Metrics
}

// HealthMonitor tracks backend reachability.
type HealthMonitor struct {
	pinger        Pinger
	interval      time.Duration
	timeout       time.Duration
	retryInterval time.Duration
	logger        logging.Logger
	metrics       *Metrics
	now           func() time.Time

	mu   sync.RWMutex
	last ConnectionHealth
}

func NewHealthMonitor(p Pinger, opts HealthOptions) *HealthMonitor {
	m := &HealthMonitor{
		pinger:        p,
		interval:      opts.Interval,
		timeout:       opts.Timeout,
		retryInterval: opts.RetryInterval,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		now:           time.Now,
	}
	if m.interval <= 0 {
		m.interval = DefaultHealthInterval
	}
	if m.timeout <= 0 {
		m.timeout = DefaultHealthTimeout
	}
	if m.retryInterval <= 0 {
		m.retryInterval = defaultRetryInterval
	}
	if m.logger == nil {
		m.logger = logging.Nop{}
	}
	m.last = ConnectionHealth{LastChecked: m.now()}
	return m
}

// Check pings the backend once and records the outcome.
func (m *HealthMonitor) Check(ctx context.Context) ConnectionHealth {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := m.now()
	err := m.pinger.Ping(ctx)
	end := m.now()
	h := ConnectionHealth{
		IsConnected: err == nil,
		LastChecked: end,
		Latency:     end.Sub(start),
	}
	if err != nil {
		h.Error = err.Error()
	}

	m.mu.Lock()
	m.last = h
	m.mu.Unlock()

	m.metrics.setHealth(h)
	return h
}

// Health returns the last recorded result without probing.
func (m *HealthMonitor) Health() ConnectionHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Reset forgets the last result, as after switching backends.
func (m *HealthMonitor) Reset() {
	m.mu.Lock()
	m.last = ConnectionHealth{LastChecked: m.now()}
	m.mu.Unlock()
}

var errNotConnected = errors.New("backend not reachable")

// TestConnection checks up to retries times, doubling the pause between
// attempts, and reports whether any attempt succeeded.
func (m *HealthMonitor) TestConnection(ctx context.Context, retries int) bool {
	if retries <= 0 {
		retries = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retryInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = m.retryInterval << uint(retries)
	b.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		h := m.Check(ctx)
		if h.IsConnected {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		m.logger.Warn(ctx, "connection test attempt failed", "attempt", attempt, "error", h.Error)
		return errNotConnected
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries-1)), ctx))

	return err == nil
}

// Run checks the backend every interval until ctx is done, handing each
// result to onCheck when it is not nil.
func (m *HealthMonitor) Run(ctx context.Context, onCheck func(ConnectionHealth)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h := m.Check(ctx)
			if !h.IsConnected {
				m.logger.Debug(ctx, "backend unreachable", "error", h.Error)
			}
			if onCheck != nil {
				onCheck(h)
			}
		case <-ctx.Done():
			return
		}
	}
}
