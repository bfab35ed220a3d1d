// Package session tracks who is signed in on a front end. It restores the
// stored token at start-up, reacts to 401 responses from the client, and
// decides which screens a user may reach.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/casapps/landregistry/src/pkg/client"
)

// State is the authentication state
type State string

const (
	StateInitializing    State = "initializing"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// API is the part of the client a session needs
type API interface {
	Login(ctx context.Context, req client.LoginRequest) (*client.AuthResponse, error)
	Register(ctx context.Context, req client.RegisterRequest) (*client.AuthResponse, error)
	DemoLogin(ctx context.Context, kind string) (*client.AuthResponse, error)
	Profile(ctx context.Context) (*client.User, error)
}

// Listener is told about every state change
type Listener func(State, *client.User)

// Session holds the current user. It is safe for concurrent use; the lock
// is never held across a network call.
type Session struct {
	api   API
	store client.TokenStore

	mu        sync.Mutex
	state     State
	user      *client.User
	listeners map[int]Listener
	nextID    int
	closed    bool
}

// New creates a session in the initializing state
func New(api API, store client.TokenStore) *Session {
	return &Session{
		api:       api,
		store:     store,
		state:     StateInitializing,
		listeners: make(map[int]Listener),
	}
}

// Init restores a stored token by asking the server who it belongs to. Any
// failure drops the token and leaves the session unauthenticated.
func (s *Session) Init(ctx context.Context) error {
	creds, err := s.store.Load()
	if err != nil {
		s.set(StateUnauthenticated, nil)
		if errors.Is(err, client.ErrNoToken) {
			return nil
		}
		return err
	}

	user, err := s.api.Profile(ctx)
	if err != nil {
		_ = s.store.Clear()
		s.set(StateUnauthenticated, nil)
		return err
	}

	creds.User = user
	if err := s.store.Save(creds); err != nil {
		return err
	}
	s.set(StateAuthenticated, user)
	return nil
}

// Login signs in. A failed attempt leaves the state as it was.
func (s *Session) Login(ctx context.Context, req client.LoginRequest) (*client.User, error) {
	return s.signIn(s.api.Login(ctx, req))
}

// Register creates an account and signs it in
func (s *Session) Register(ctx context.Context, req client.RegisterRequest) (*client.User, error) {
	return s.signIn(s.api.Register(ctx, req))
}

// DemoLogin signs in as a seeded demo account
func (s *Session) DemoLogin(ctx context.Context, kind string) (*client.User, error) {
	return s.signIn(s.api.DemoLogin(ctx, kind))
}

func (s *Session) signIn(resp *client.AuthResponse, err error) (*client.User, error) {
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(&client.Credentials{Token: resp.Token, User: resp.User}); err != nil {
		return nil, err
	}
	s.set(StateAuthenticated, resp.User)
	return resp.User, nil
}

// Logout forgets the token locally. Revoking it server-side is up to the
// caller.
func (s *Session) Logout() error {
	err := s.store.Clear()
	s.set(StateUnauthenticated, nil)
	return err
}

// HandleUnauthorized is the client's 401 hook
func (s *Session) HandleUnauthorized() {
	s.set(StateUnauthenticated, nil)
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns the signed-in user, or nil
func (s *Session) User() *client.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// IsAuthenticated reports whether someone is signed in
func (s *Session) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

// IsAdmin reports whether the signed-in user is an admin
func (s *Session) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateAuthenticated && s.user.IsAdmin()
}

// Subscribe registers fn for state changes and returns its cancel func
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Close detaches every listener
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.listeners = make(map[int]Listener)
}

// set changes state and notifies listeners outside the lock. Repeating the
// current unauthenticated state is not a change.
func (s *Session) set(state State, user *client.User) {
	s.mu.Lock()
	if state == s.state && state != StateAuthenticated {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.user = user
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state, user)
	}
}

// Screens the guard redirects to
const (
	LoginPath     = "/login"
	RegisterPath  = "/register"
	DashboardPath = "/dashboard"
)

// Guard decides whether path may be shown. It returns the path to show
// instead, or "" when path is allowed. While the session is still
// initializing nothing is decided and wait is true.
func (s *Session) Guard(path string) (redirect string, wait bool) {
	s.mu.Lock()
	state, user := s.state, s.user
	s.mu.Unlock()

	if state == StateInitializing {
		return "", true
	}

	public := path == LoginPath || path == RegisterPath
	switch {
	case public && state == StateAuthenticated:
		return DashboardPath, false
	case public:
		return "", false
	case state != StateAuthenticated:
		return LoginPath, false
	case isAdminPath(path) && !user.IsAdmin():
		return DashboardPath, false
	}
	return "", false
}

func isAdminPath(path string) bool {
	return path == "/admin" || strings.HasPrefix(path, "/admin/")
}
