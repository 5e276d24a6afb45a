// Package session holds the client's authentication state and the actions
// that change it. A Store is an explicit instance: create one per process
// (or per test) and hand it to whatever needs to observe or drive sign-in.
package session

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/stuffhappens/internal/client/client"
	"github.com/dmitrijs2005/stuffhappens/internal/client/models"
	"github.com/dmitrijs2005/stuffhappens/internal/client/services"
	"github.com/dmitrijs2005/stuffhappens/internal/cryptox"
	"github.com/dmitrijs2005/stuffhappens/internal/logging"
)

// Store owns AuthState. Every mutation replaces the state as a whole and is
// mirrored to Storage. Actions are not serialized against each other; when
// two overlap, the one that finishes last determines the state.
type Store struct {
	auth           services.AuthService
	storage        Storage
	logger         logging.Logger
	key            string
	persistTimeout time.Duration
	flight         *singleflight.Group

	mu       sync.RWMutex
	state    AuthState
	watchers map[uint64]func(AuthState)
	nextID   uint64

	// subMu serializes InitializeAuth's subscription swap.
	subMu sync.Mutex
	sub   client.Subscription

	pmu           sync.Mutex
	lastPersisted []byte
}

// NewStore creates a store in the initial signed-out state. storage may be
// nil, in which case nothing is persisted.
func NewStore(auth services.AuthService, storage Storage, opts ...Option) *Store {
	s := &Store{
		auth:           auth,
		storage:        storage,
		logger:         logging.Nop{},
		key:            DefaultStorageKey,
		persistTimeout: DefaultPersistTimeout,
		watchers:       make(map[uint64]func(AuthState)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ---- readers ----

// State returns a snapshot of the current state.
func (s *Store) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) User() *models.User       { return s.State().User }
func (s *Store) Session() *client.Session { return s.State().Session }
func (s *Store) IsAuthenticated() bool    { return s.State().IsAuthenticated }
func (s *Store) IsLoading() bool          { return s.State().IsLoading }

// Subscribe registers fn to receive the new state after every change. It
// returns a function that removes the registration.
func (s *Store) Subscribe(fn func(AuthState)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// ---- actions ----

// InitializeAuth loads the current session from the gateway and subscribes
// to backend-initiated changes. It never fails. Calling it again replaces the
// previous subscription.
func (s *Store) InitializeAuth(ctx context.Context) {
	_ = s.run(ctx, func() (func(*AuthState), error) {
		user, sess := s.auth.GetCurrentSession(ctx)
		return func(st *AuthState) { st.setUser(user, sess) }, nil
	})

	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	s.sub = s.auth.OnAuthStateChange(func(user *models.User, sess *client.Session) {
		s.update(context.Background(), func(st *AuthState) {
			st.setUser(user, sess)
			st.IsLoading = false
		})
	})
}

// Login signs in and, on success, makes the user current. Gateway errors are
// returned unchanged.
func (s *Store) Login(ctx context.Context, email, password string) error {
	return s.run(ctx, func() (func(*AuthState), error) {
		res, err := s.signIn(ctx, email, password)
		if err != nil {
			return nil, err
		}
		return func(st *AuthState) { st.setUser(res.User, res.Session) }, nil
	})
}

// SignUp registers an account. The user becomes current only when the
// backend issued a session right away; otherwise emailSent is true and the
// state stays signed out.
func (s *Store) SignUp(ctx context.Context, email, password, fullName string) (emailSent bool, err error) {
	err = s.run(ctx, func() (func(*AuthState), error) {
		res, err := s.signUp(ctx, email, password, fullName)
		if err != nil {
			return nil, err
		}
		emailSent = res.EmailSent
		if res.User == nil || res.Session == nil {
			return nil, nil
		}
		return func(st *AuthState) { st.setUser(res.User, res.Session) }, nil
	})
	if err != nil {
		return false, err
	}
	return emailSent, nil
}

// Logout signs out against the backend and clears local state whatever the
// outcome. A backend error is still returned so it can be shown.
func (s *Store) Logout(ctx context.Context) error {
	return s.run(ctx, func() (func(*AuthState), error) {
		err := s.auth.SignOut(ctx)
		return func(st *AuthState) { st.setUser(nil, nil) }, err
	})
}

// UpdateProfile applies a partial profile change to the current user. It
// fails with ErrNotAuthenticated, without calling the backend, when nobody is
// signed in.
func (s *Store) UpdateProfile(ctx context.Context, update models.ProfileUpdate) error {
	if s.User() == nil {
		return ErrNotAuthenticated
	}

	return s.run(ctx, func() (func(*AuthState), error) {
		u, err := s.auth.UpdateProfile(ctx, update)
		if err != nil {
			return nil, err
		}
		return func(st *AuthState) {
			st.User = u
			st.IsAuthenticated = u != nil
		}, nil
	})
}

func (s *Store) ResetPassword(ctx context.Context, email string) error {
	return s.run(ctx, func() (func(*AuthState), error) {
		return nil, s.auth.ResetPassword(ctx, email)
	})
}

func (s *Store) UpdatePassword(ctx context.Context, newPassword string) error {
	return s.run(ctx, func() (func(*AuthState), error) {
		return nil, s.auth.UpdatePassword(ctx, newPassword)
	})
}

// ClearSession resets to the initial state without contacting the backend.
func (s *Store) ClearSession() {
	s.update(context.Background(), func(st *AuthState) { *st = AuthState{} })
}

func (s *Store) SetLoading(loading bool) {
	s.update(context.Background(), func(st *AuthState) { st.IsLoading = loading })
}

// Close drops the auth state subscription. The store stays usable.
func (s *Store) Close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
}

// ---- internals ----

// run brackets an action with the loading flag. The mutation returned by fn
// is applied together with clearing the flag, on every exit path including
// panics.
func (s *Store) run(ctx context.Context, fn func() (func(*AuthState), error)) error {
	s.update(ctx, func(st *AuthState) { st.IsLoading = true })

	var mutate func(*AuthState)
	defer func() {
		s.update(ctx, func(st *AuthState) {
			if mutate != nil {
				mutate(st)
			}
			st.IsLoading = false
		})
	}()

	var err error
	mutate, err = fn()
	return err
}

// update applies fn to a copy of the state, installs the copy, notifies
// watchers and persists the result.
func (s *Store) update(ctx context.Context, fn func(*AuthState)) {
	s.mu.Lock()
	next := s.state
	fn(&next)
	next.IsAuthenticated = next.User != nil
	s.state = next

	watchers := make([]func(AuthState), 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w(next)
	}
	s.persist(ctx)
}

func (s *Store) signIn(ctx context.Context, email, password string) (*services.SignInResult, error) {
	if s.flight == nil {
		return s.auth.SignIn(ctx, email, password)
	}

	v, err := s.shared(ctx, flightKey("login", email, password), func(ctx context.Context) (any, error) {
		return s.auth.SignIn(ctx, email, password)
	})
	if err != nil {
		return nil, err
	}
	return v.(*services.SignInResult), nil
}

func (s *Store) signUp(ctx context.Context, email, password, fullName string) (*services.SignUpResult, error) {
	if s.flight == nil {
		return s.auth.SignUp(ctx, email, password, fullName)
	}

	v, err := s.shared(ctx, flightKey("signup", email, password, fullName), func(ctx context.Context) (any, error) {
		return s.auth.SignUp(ctx, email, password, fullName)
	})
	if err != nil {
		return nil, err
	}
	return v.(*services.SignUpResult), nil
}

// shared runs fn once for all concurrent callers of key. fn does not inherit
// the leader's cancellation, so one caller giving up does not fail the others;
// each caller still stops waiting when its own ctx is done. The backend's
// request timeout bounds fn.
func (s *Store) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := s.flight.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flightKey identifies identical requests without keeping the password in
// clear.
func flightKey(op, email, password string, extra ...string) string {
	parts := append([]string{op, strings.ToLower(strings.TrimSpace(email)), hex.EncodeToString(cryptox.MakeVerifier([]byte(password)))}, extra...)
	return strings.Join(parts, "\x00")
}
