package session

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/stuffhappens/internal/client/models"
)

// Storage is the key/value collaborator the projection is persisted to.
// Get returns (nil, nil) for a missing key. metadata.Repository satisfies it.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

const persistVersion = 0

// persisted is the stored envelope. The session itself is never written; it
// is re-derived by InitializeAuth.
type persisted struct {
	State   projection `json:"state"`
	Version int        `json:"version"`
}

type projection struct {
	User            *models.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
}

func encodeState(st AuthState) ([]byte, error) {
	return json.Marshal(persisted{
		State:   projection{User: st.User, IsAuthenticated: st.IsAuthenticated},
		Version: persistVersion,
	})
}

// persist writes the current projection. Writes are serialized and always
// carry the latest state, so the last write wins. Unchanged projections are
// not rewritten.
func (s *Store) persist(ctx context.Context) {
	if s.storage == nil {
		return
	}

	s.pmu.Lock()
	defer s.pmu.Unlock()

	data, err := encodeState(s.State())
	if err != nil {
		s.logger.Error(ctx, "failed to encode auth state", "error", err)
		return
	}
	if bytes.Equal(data, s.lastPersisted) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	if err := s.storage.Set(ctx, s.key, data); err != nil {
		s.logger.Warn(ctx, "failed to persist auth state", "key", s.key, "error", err)
		return
	}
	s.lastPersisted = data
}

// Rehydrate loads the persisted projection as a provisional state. A missing,
// unreadable or foreign-version record leaves the state untouched. It
// reports whether a user was restored.
func (s *Store) Rehydrate(ctx context.Context) bool {
	if s.storage == nil {
		return false
	}

	rctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	data, err := s.storage.Get(rctx, s.key)
	if err != nil {
		s.logger.Warn(ctx, "failed to read persisted auth state", "key", s.key, "error", err)
		return false
	}
	if data == nil {
		return false
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn(ctx, "discarding unreadable auth state", "key", s.key, "error", err)
		return false
	}
	if p.Version != persistVersion {
		s.logger.Warn(ctx, "discarding auth state of unknown version", "key", s.key, "version", p.Version)
		return false
	}

	s.pmu.Lock()
	s.lastPersisted = data
	s.pmu.Unlock()

	s.update(ctx, func(st *AuthState) {
		st.setUser(p.State.User, nil)
	})
	return p.State.User != nil
}
