// Package identity provides email/password accounts, opaque session tokens,
// and a subscribable stream of session changes. Sign-in and sign-out take
// effect by making the stream emit; observers never mutate session state
// directly.
package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Hrithik248/busy-buy/internal/domain"
	"github.com/Hrithik248/busy-buy/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
)

const defaultTokenTTL = 24 * time.Hour

type Service struct {
	users  repository.UserRepository
	tokens TokenStore
	log    *zap.Logger
	ttl    time.Duration

	mu     sync.Mutex
	subs   map[int]func(*domain.Session)
	nextID int
}

func NewService(users repository.UserRepository, tokens TokenStore, log *zap.Logger) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		log:    log,
		ttl:    defaultTokenTTL,
		subs:   make(map[int]func(*domain.Session)),
	}
}

// SubscribeSessionChanges registers a handler for session changes. The
// handler receives the new session, or nil when the session ends. The
// returned function unsubscribes.
func (s *Service) SubscribeSessionChanges(handler func(*domain.Session)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = handler
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Service) emit(session *domain.Session) {
	s.mu.Lock()
	handlers := make([]func(*domain.Session), 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(session)
	}
}

// CreateAccount registers a new identity and signs it in. Setting the
// display name is a secondary step: if it fails the account still exists,
// just without a name. That partial state is accepted and logged.
func (s *Service) CreateAccount(ctx context.Context, displayName, email, password string) (*domain.Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u, err := s.users.Create(ctx, domain.User{
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if err := s.users.UpdateDisplayName(ctx, u.ID, displayName); err != nil {
		s.log.Warn("account created but display name not set",
			zap.String("user_id", u.ID.Hex()),
			zap.Error(err))
		displayName = ""
	}

	return s.issue(ctx, u, displayName)
}

// Authenticate verifies credentials and issues a new session.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.Session, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, *u, u.DisplayName)
}

func (s *Service) issue(ctx context.Context, u domain.User, displayName string) (*domain.Session, error) {
	session := domain.Session{
		Token:       uuid.NewString(),
		UserID:      u.ID.Hex(),
		Email:       u.Email,
		DisplayName: displayName,
	}

	if err := s.tokens.Save(ctx, session, s.ttl); err != nil {
		return nil, err
	}

	s.emit(&session)
	return &session, nil
}

// EndSession revokes the token and emits a nil session.
func (s *Service) EndSession(ctx context.Context, token string) error {
	if err := s.tokens.Delete(ctx, token); err != nil {
		return err
	}
	s.emit(nil)
	return nil
}

// Resolve returns the session for a token, or ErrTokenNotFound if the token
// is unknown or expired.
func (s *Service) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	return s.tokens.Resolve(ctx, token)
}
