package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Hrithik248/busy-buy/internal/domain"
	"github.com/Hrithik248/busy-buy/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type mockUserRepo struct {
	mu        sync.Mutex
	users     map[string]domain.User // keyed by email
	nameErr   error
	createErr error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]domain.User)}
}

func (m *mockUserRepo) Create(_ context.Context, u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return domain.User{}, m.createErr
	}
	if _, ok := m.users[u.Email]; ok {
		return domain.User{}, repository.ErrDuplicateEmail
	}
	u.ID = primitive.NewObjectID()
	m.users[u.Email] = u
	return u, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (m *mockUserRepo) UpdateDisplayName(_ context.Context, id primitive.ObjectID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameErr != nil {
		return m.nameErr
	}
	for email, u := range m.users {
		if u.ID == id {
			u.DisplayName = name
			m.users[email] = u
			return nil
		}
	}
	return repository.ErrUserNotFound
}

type memTokenStore struct {
	mu     sync.Mutex
	tokens map[string]domain.Session
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: make(map[string]domain.Session)}
}

func (m *memTokenStore) Save(_ context.Context, s domain.Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[s.Token] = s
	return nil
}

func (m *memTokenStore) Resolve(_ context.Context, token string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &s, nil
}

func (m *memTokenStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

func newTestService() (*Service, *mockUserRepo, *memTokenStore) {
	repo := newMockUserRepo()
	tokens := newMemTokenStore()
	return NewService(repo, tokens, zap.NewNop()), repo, tokens
}

func TestCreateAccount_IssuesSessionAndEmits(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	var emitted *domain.Session
	svc.SubscribeSessionChanges(func(s *domain.Session) { emitted = s })

	s, err := svc.CreateAccount(ctx, "Ada", "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, "Ada", s.DisplayName)
	assert.Equal(t, "ada@example.com", s.Email)

	require.NotNil(t, emitted)
	assert.Equal(t, s.Token, emitted.Token)
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "Ada", "ada@example.com", "hunter22")
	require.NoError(t, err)

	_, err = svc.CreateAccount(ctx, "Other", "ada@example.com", "different")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestCreateAccount_DisplayNameFailureIsNotRolledBack(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.nameErr = errors.New("write failed")
	ctx := context.Background()

	s, err := svc.CreateAccount(ctx, "Ada", "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.Empty(t, s.DisplayName)

	// The account exists and can authenticate.
	_, err = svc.Authenticate(ctx, "ada@example.com", "hunter22")
	assert.NoError(t, err)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "Ada", "ada@example.com", "hunter22")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_UnknownEmail(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Authenticate(context.Background(), "nobody@example.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEndSession_RevokesTokenAndEmitsNil(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	s, err := svc.CreateAccount(ctx, "Ada", "ada@example.com", "hunter22")
	require.NoError(t, err)

	var got *domain.Session = s
	svc.SubscribeSessionChanges(func(s *domain.Session) { got = s })

	require.NoError(t, svc.EndSession(ctx, s.Token))
	assert.Nil(t, got)

	_, err = svc.Resolve(ctx, s.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	calls := 0
	unsub := svc.SubscribeSessionChanges(func(*domain.Session) { calls++ })

	_, err := svc.CreateAccount(ctx, "Ada", "ada@example.com", "hunter22")
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	unsub()
	_, err = svc.Authenticate(ctx, "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
