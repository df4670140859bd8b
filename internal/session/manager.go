// Package session owns the current signed-in session. It wraps the identity
// service and tracks a small state machine:
//
//	Uninitialized -> Loading -> {Authenticated, Anonymous}
//
// Transitions are driven only by identity events; SignIn and SignUp succeed
// by causing the identity service to emit, not by writing state here.
package session

import (
	"context"
	"sync"

	"github.com/Hrithik248/busy-buy/internal/domain"
	"github.com/Hrithik248/busy-buy/internal/notify"
	"go.uber.org/zap"
)

type State int

const (
	Uninitialized State = iota
	Loading
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "uninitialized"
	}
}

// Change is delivered to subscribers on every session transition. Session is
// nil unless State is Authenticated.
type Change struct {
	Session *domain.Session
	State   State
}

// IdentityService is the slice of the identity API the manager needs.
type IdentityService interface {
	CreateAccount(ctx context.Context, displayName, email, password string) (*domain.Session, error)
	Authenticate(ctx context.Context, email, password string) (*domain.Session, error)
	EndSession(ctx context.Context, token string) error
	SubscribeSessionChanges(handler func(*domain.Session)) func()
}

type Manager struct {
	ids    IdentityService
	toasts *notify.Bus
	log    *zap.Logger

	mu      sync.RWMutex
	state   State
	current *domain.Session
	subs    map[int]func(Change)
	nextID  int
	unsub   func()
}

func NewManager(ids IdentityService, toasts *notify.Bus, log *zap.Logger) *Manager {
	return &Manager{
		ids:    ids,
		toasts: toasts,
		log:    log,
		state:  Uninitialized,
		subs:   make(map[int]func(Change)),
	}
}

// Start installs the identity subscription. Until the first event arrives
// the manager reports Loading.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.unsub != nil {
		m.mu.Unlock()
		return
	}
	m.state = Loading
	m.mu.Unlock()

	m.unsub = m.ids.SubscribeSessionChanges(m.onSessionChange)
}

// Stop tears down the identity subscription.
func (m *Manager) Stop() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

func (m *Manager) onSessionChange(s *domain.Session) {
	m.mu.Lock()
	m.current = s
	if s != nil {
		m.state = Authenticated
	} else {
		m.state = Anonymous
	}
	change := Change{Session: m.current, State: m.state}
	handlers := make([]func(Change), 0, len(m.subs))
	for _, h := range m.subs {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(change)
	}
}

// Current returns the latest known session (nil when signed out) and the
// manager state.
func (m *Manager) Current() (*domain.Session, State) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.state
}

// Subscribe registers a handler for session transitions. The returned
// function unsubscribes.
func (m *Manager) Subscribe(handler func(Change)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = handler
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SignIn authenticates with email and password. On failure the prior
// session, if any, is left as it was.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if _, err := m.ids.Authenticate(ctx, email, password); err != nil {
		m.log.Error("sign in failed", zap.String("email", email), zap.Error(err))
		m.toasts.Error("Something went wrong!")
		return err
	}
	m.toasts.Success("Signed in successfully!")
	return nil
}

// SignUp creates a new account with the given display name.
func (m *Manager) SignUp(ctx context.Context, displayName, email, password string) error {
	if _, err := m.ids.CreateAccount(ctx, displayName, email, password); err != nil {
		m.log.Error("sign up failed", zap.String("email", email), zap.Error(err))
		m.toasts.Error("Something went wrong!")
		return err
	}
	m.toasts.Success("Signed up successfully!")
	return nil
}

// SignOut ends the current session. A no-op when nobody is signed in.
func (m *Manager) SignOut(ctx context.Context) error {
	current, _ := m.Current()
	if current == nil {
		return nil
	}

	if err := m.ids.EndSession(ctx, current.Token); err != nil {
		m.log.Error("sign out failed", zap.Error(err))
		m.toasts.Error("Something went wrong!")
		return err
	}
	m.toasts.Success("Signed out successfully!")
	return nil
}
