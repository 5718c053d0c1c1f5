package authctx

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/gateway"
	"github.com/example/fleet-tracker/internal/models"
)

var ErrSignInRequired = errors.New("sign in required")

// Gateway is the part of the backend client the session needs.
type Gateway interface {
	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, name, email, password string) error
	LoadUser(ctx context.Context) (models.User, error)
	Logout(ctx context.Context) error
}

// Gate tells a protected screen what to do.
type Gate int

const (
	GateWait Gate = iota
	GateRedirect
	GateRender
)

func (g Gate) String() string {
	switch g {
	case GateWait:
		return "wait"
	case GateRedirect:
		return "redirect"
	case GateRender:
		return "render"
	default:
		return "unknown"
	}
}

// Session publishes who is signed in. It starts loading with no user.
type Session struct {
	gw  Gateway
	log zerolog.Logger

	mu        sync.Mutex
	loading   bool
	user      *models.User
	loaded    chan struct{}
	teardowns map[int]func()
	nextTD    int
}

func New(gw Gateway, log zerolog.Logger) *Session {
	return &Session{
		gw:        gw,
		log:       log.With().Str("component", "auth").Logger(),
		loading:   true,
		loaded:    make(chan struct{}),
		teardowns: make(map[int]func()),
	}
}

// Start resolves the stored token into a user. Failures leave the session
// signed out; they are logged, never returned.
func (s *Session) Start(ctx context.Context) {
	u, err := s.gw.LoadUser(ctx)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrNoSession):
		s.log.Debug().Msg("no stored session")
	default:
		s.log.Warn().Err(err).Msg("failed to load user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.user = &u
	} else {
		s.user = nil
	}
	s.finishLoading()
}

// finishLoading is called with s.mu held.
func (s *Session) finishLoading() {
	if s.loading {
		s.loading = false
		close(s.loaded)
	}
}

func (s *Session) SignIn(ctx context.Context, email, password string) (models.User, error) {
	if err := s.gw.Login(ctx, email, password); err != nil {
		return models.User{}, err
	}
	return s.reload(ctx)
}

func (s *Session) SignUp(ctx context.Context, name, email, password string) (models.User, error) {
	if err := s.gw.Register(ctx, name, email, password); err != nil {
		return models.User{}, err
	}
	return s.reload(ctx)
}

func (s *Session) reload(ctx context.Context) (models.User, error) {
	u, err := s.gw.LoadUser(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.user = nil
		s.finishLoading()
		return models.User{}, err
	}
	s.user = &u
	s.finishLoading()
	return u, nil
}

// AddTeardown registers fn to run on sign-out. The returned func removes it.
func (s *Session) AddTeardown(fn func()) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTD++
	id := s.nextTD
	s.teardowns[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.teardowns, id)
		s.mu.Unlock()
	}
}

// SignOut runs teardowns, revokes the token, and clears the user. Only a
// local token failure is returned; the user is cleared either way.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	tds := s.teardowns
	s.teardowns = make(map[int]func())
	s.mu.Unlock()
	for _, fn := range tds {
		fn()
	}

	err := s.gw.Logout(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("error logging out")
	}

	s.mu.Lock()
	s.user = nil
	s.finishLoading()
	s.mu.Unlock()
	return err
}

// SetUserStatus updates the local copy after a confirmed status change.
func (s *Session) SetUserStatus(st models.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return
	}
	u := *s.user
	u.Status = st
	s.user = &u
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) User() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Gate never redirects while the session is still loading.
func (s *Session) Gate() Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.loading:
		return GateWait
	case s.user == nil:
		return GateRedirect
	default:
		return GateRender
	}
}

// Guard waits for loading to finish, then runs fn with the signed-in user.
func (s *Session) Guard(ctx context.Context, fn func(models.User) error) error {
	select {
	case <-s.loaded:
	case <-ctx.Done():
		return ctx.Err()
	}
	u, ok := s.User()
	if !ok {
		return ErrSignInRequired
	}
	return fn(u)
}
