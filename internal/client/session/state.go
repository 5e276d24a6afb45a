package session

import (
	"errors"

	"github.com/dmitrijs2005/stuffhappens/internal/client/client"
	"github.com/dmitrijs2005/stuffhappens/internal/client/models"
)

// ErrNotAuthenticated is returned by actions that need a signed-in user.
var ErrNotAuthenticated = errors.New("user not authenticated")

// AuthState is the store's state. IsAuthenticated always equals User != nil.
type AuthState struct {
	User            *models.User
	Session         *client.Session
	IsAuthenticated bool
	IsLoading       bool
}

// setUser replaces the identity part of the state, keeping IsAuthenticated in
// lockstep with User.
func (st *AuthState) setUser(u *models.User, s *client.Session) {
	st.User = u
	st.Session = s
	st.IsAuthenticated = u != nil
}
