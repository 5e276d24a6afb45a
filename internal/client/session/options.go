package session

import (
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/stuffhappens/internal/logging"
)

const (
	DefaultStorageKey     = "@stuff_happens/user"
	DefaultPersistTimeout = 5 * time.Second
)

type Option func(*Store)

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithStorageKey overrides the key the projection is stored under.
func WithStorageKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithPersistTimeout bounds every storage read and write.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) { s.persistTimeout = d }
}

// WithSingleFlight collapses identical concurrent Login and SignUp calls into
// one backend request. Without it concurrent actions race and the last one
// to finish wins.
func WithSingleFlight() Option {
	return func(s *Store) { s.flight = &singleflight.Group{} }
}
