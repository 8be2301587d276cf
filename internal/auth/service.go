package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudokim/skku-chat/internal/models"
	"github.com/sudokim/skku-chat/internal/repositories"
)

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or revoked token")
)

// Email syntax check from the WHATWG input[type=email] definition.
var emailRE = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

const (
	sessionTTL   = 24 * time.Hour
	linkTokenTTL = 15 * time.Minute

	revokedPrefix  = "revoked:"
	resetPrefix    = "pwreset:"
	linkPrefix     = "emaillink:"
	tokenIssuer    = "skku-chat"
	bcryptCostUsed = bcrypt.DefaultCost
)

// Service is the credential collaborator: sign-up, sign-in, sign-out,
// identity lookup, password reset and passwordless links, profile edits and
// account deletion.
type Service struct {
	users   repositories.UserRepository
	tokens  TokenStore
	secret  []byte
	domains []string
}

// NewService constructs the Service. domains is the allowlist of email
// domains accepted at sign-up; empty means any domain.
func NewService(users repositories.UserRepository, tokens TokenStore, secret string, domains []string) *Service {
	return &Service{
		users:   users,
		tokens:  tokens,
		secret:  []byte(secret),
		domains: domains,
	}
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// SignUp validates the email, hashes the password and creates the account.
func (s *Service) SignUp(ctx context.Context, id, email, password, displayName string) (models.User, error) {
	if id == "" || password == "" {
		return models.User{}, errors.New("id and password are required")
	}
	if !s.validEmail(email) {
		return models.User{}, ErrInvalidEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCostUsed)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:           id,
		Email:        strings.ToLower(email),
		DisplayName:  displayName,
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return models.User{}, err
	}
	return s.users.GetUser(ctx, id)
}

// SignIn checks the password and issues a session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (models.User, string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, "", ErrInvalidCredentials
	}

	token, err := s.issueSession(user.ID)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

// SignOut revokes the session token for the remainder of its lifetime.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.parseSession(token)
	if err != nil {
		return err
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return s.tokens.Put(ctx, revokedPrefix+claims.ID, claims.Subject, ttl)
}

// CurrentIdentity resolves a session token to its account.
func (s *Service) CurrentIdentity(ctx context.Context, token string) (models.User, error) {
	claims, err := s.parseSession(token)
	if err != nil {
		return models.User{}, err
	}

	revoked, err := s.tokens.Exists(ctx, revokedPrefix+claims.ID)
	if err != nil {
		return models.User{}, err
	}
	if revoked {
		return models.User{}, ErrInvalidToken
	}

	return s.users.GetUser(ctx, claims.Subject)
}

// RequestPasswordReset creates a one-time reset token for the account. The
// token would be delivered by email; delivery itself is outside this service.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	if err := s.tokens.Put(ctx, resetPrefix+token, user.ID, linkTokenTTL); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword consumes a reset token and replaces the account password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return errors.New("password is required")
	}
	userID, err := s.tokens.Take(ctx, resetPrefix+token)
	if errors.Is(err, ErrTokenNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCostUsed)
	if err != nil {
		return err
	}
	return s.users.SetPasswordHash(ctx, userID, string(hash))
}

// RequestEmailLink creates a one-time passwordless sign-in token for the
// account.
func (s *Service) RequestEmailLink(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	if err := s.tokens.Put(ctx, linkPrefix+token, user.ID, linkTokenTTL); err != nil {
		return "", err
	}
	return token, nil
}

// CompleteEmailLink redeems a passwordless token: completing the link proves
// control of the mailbox, so the email is marked verified and a session is
// issued.
func (s *Service) CompleteEmailLink(ctx context.Context, email, token string) (models.User, string, error) {
	userID, err := s.tokens.Take(ctx, linkPrefix+token)
	if errors.Is(err, ErrTokenNotFound) {
		return models.User{}, "", ErrInvalidToken
	}
	if err != nil {
		return models.User{}, "", err
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, "", err
	}
	if !strings.EqualFold(user.Email, email) {
		return models.User{}, "", ErrInvalidToken
	}

	if !user.EmailVerified {
		if err := s.users.MarkEmailVerified(ctx, userID); err != nil {
			return models.User{}, "", err
		}
		user.EmailVerified = true
	}

	session, err := s.issueSession(user.ID)
	if err != nil {
		return models.User{}, "", err
	}
	return user, session, nil
}

// UpdateDisplayName changes the account display name.
func (s *Service) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	return s.users.UpdateDisplayName(ctx, userID, displayName)
}

// DeleteAccount removes the account. Room memberships are left behind;
// whether they should be cleaned up is an open product question.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	return s.users.DeleteUser(ctx, userID)
}

func (s *Service) issueSession(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	})
	return token.SignedString(s.secret)
}

func (s *Service) parseSession(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) validEmail(email string) bool {
	match := emailRE.FindString(email)
	if match == "" || match != email {
		return false
	}
	if len(s.domains) == 0 {
		return true
	}
	domain := strings.ToLower(email[strings.LastIndex(email, "@")+1:])
	for _, allowed := range s.domains {
		if domain == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
