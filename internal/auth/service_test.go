package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudokim/skku-chat/internal/mocks"
	"github.com/sudokim/skku-chat/internal/models"
	"github.com/sudokim/skku-chat/internal/repositories"
)

// memoryTokenStore keeps tokens in a map so service tests run without redis.
type memoryTokenStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{values: make(map[string]string)}
}

func (m *memoryTokenStore) Put(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memoryTokenStore) Take(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrTokenNotFound
	}
	delete(m.values, key)
	return value, nil
}

func (m *memoryTokenStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok, nil
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func skkuService(users *mocks.UserRepositoryMock) *Service {
	return NewService(users, newMemoryTokenStore(), "test-secret", []string{"skku.edu", "g.skku.edu"})
}

func TestSignUpRejectsBadEmails(t *testing.T) {
	svc := skkuService(new(mocks.UserRepositoryMock))

	cases := []string{
		"not-an-email",
		"two@@skku.edu",
		"someone@gmail.com",
		"spaces in@skku.edu",
		"",
	}
	for _, email := range cases {
		_, err := svc.SignUp(context.Background(), "alice", email, "pw", "Alice")
		require.ErrorIs(t, err, ErrInvalidEmail, "email %q", email)
	}
}

func TestSignUpHashesPasswordAndLowercasesEmail(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := skkuService(users)

	var created models.User
	users.On("CreateUser", mock.Anything, mock.AnythingOfType("models.User")).
		Run(func(args mock.Arguments) { created = args.Get(1).(models.User) }).
		Return(nil).Once()
	users.On("GetUser", mock.Anything, "alice").Return(models.User{ID: "alice", Email: "alice@skku.edu"}, nil).Once()

	_, err := svc.SignUp(context.Background(), "alice", "Alice@SKKU.edu", "hunter2", "Alice")
	require.NoError(t, err)
	require.Equal(t, "alice@skku.edu", created.Email)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("hunter2")))
	users.AssertExpectations(t)
}

func TestSignUpAllowsAnyDomainWhenUnrestricted(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := NewService(users, newMemoryTokenStore(), "test-secret", nil)

	users.On("CreateUser", mock.Anything, mock.Anything).Return(nil).Once()
	users.On("GetUser", mock.Anything, "bob").Return(models.User{ID: "bob"}, nil).Once()

	_, err := svc.SignUp(context.Background(), "bob", "bob@example.org", "pw", "Bob")
	require.NoError(t, err)
	users.AssertExpectations(t)
}

func TestSignInLifecycle(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := skkuService(users)

	stored := models.User{ID: "alice", Email: "alice@skku.edu", PasswordHash: hashOf(t, "hunter2")}
	users.On("GetUserByEmail", mock.Anything, "alice@skku.edu").Return(stored, nil)
	users.On("GetUser", mock.Anything, "alice").Return(stored, nil)

	_, token, err := svc.SignIn(context.Background(), "alice@skku.edu", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	user, err := svc.CurrentIdentity(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "alice", user.ID)

	require.NoError(t, svc.SignOut(context.Background(), token))

	_, err = svc.CurrentIdentity(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignInWrongPassword(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := skkuService(users)

	stored := models.User{ID: "alice", Email: "alice@skku.edu", PasswordHash: hashOf(t, "hunter2")}
	users.On("GetUserByEmail", mock.Anything, "alice@skku.edu").Return(stored, nil).Once()

	_, _, err := svc.SignIn(context.Background(), "alice@skku.edu", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignInUnknownEmail(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := skkuService(users)

	users.On("GetUserByEmail", mock.Anything, "ghost@skku.edu").Return(models.User{}, repositories.ErrUserNotFound).Once()

	_, _, err := svc.SignIn(context.Background(), "ghost@skku.edu", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCurrentIdentityRejectsForgedToken(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := skkuService(users)
	other := NewService(users, newMemoryTokenStore(), "different-secret", nil)

	token, err := other.issueSession("alice")
	require.NoError(t, err)

	_, err = svc.CurrentIdentity(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.CurrentIdentity(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordResetFlow(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := skkuService(users)

	users.On("GetUserByEmail", mock.Anything, "alice@skku.edu").Return(models.User{ID: "alice", Email: "alice@skku.edu"}, nil).Once()

	var newHash string
	users.On("SetPasswordHash", mock.Anything, "alice", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { newHash = args.String(2) }).
		Return(nil).Once()

	token, err := svc.RequestPasswordReset(context.Background(), "alice@skku.edu")
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(context.Background(), token, "newpass"))
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(newHash), []byte("newpass")))

	// One-time: a second redemption of the same token fails.
	require.ErrorIs(t, svc.ResetPassword(context.Background(), token, "again"), ErrInvalidToken)
	users.AssertExpectations(t)
}

func TestEmailLinkFlow(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := skkuService(users)

	stored := models.User{ID: "alice", Email: "alice@skku.edu"}
	users.On("GetUserByEmail", mock.Anything, "alice@skku.edu").Return(stored, nil).Once()
	users.On("GetUser", mock.Anything, "alice").Return(stored, nil).Once()
	users.On("MarkEmailVerified", mock.Anything, "alice").Return(nil).Once()

	token, err := svc.RequestEmailLink(context.Background(), "alice@skku.edu")
	require.NoError(t, err)

	user, session, err := svc.CompleteEmailLink(context.Background(), "Alice@skku.edu", token)
	require.NoError(t, err)
	require.True(t, user.EmailVerified)
	require.NotEmpty(t, session)

	_, _, err = svc.CompleteEmailLink(context.Background(), "alice@skku.edu", token)
	require.ErrorIs(t, err, ErrInvalidToken)
	users.AssertExpectations(t)
}

func TestEmailLinkRejectsMismatchedEmail(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := skkuService(users)

	stored := models.User{ID: "alice", Email: "alice@skku.edu"}
	users.On("GetUserByEmail", mock.Anything, "alice@skku.edu").Return(stored, nil).Once()
	users.On("GetUser", mock.Anything, "alice").Return(stored, nil).Once()

	token, err := svc.RequestEmailLink(context.Background(), "alice@skku.edu")
	require.NoError(t, err)

	_, _, err = svc.CompleteEmailLink(context.Background(), "mallory@skku.edu", token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
