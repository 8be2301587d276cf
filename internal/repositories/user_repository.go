package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sudokim/skku-chat/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUserDuplicate = errors.New("user id or email already taken")
)

// UserRepository abstracts account persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	UpdateDisplayName(ctx context.Context, userID, displayName string) error
	SetPasswordHash(ctx context.Context, userID, hash string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	DeleteUser(ctx context.Context, userID string) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a new account. A conflicting id or email yields
// ErrUserDuplicate.
func (r *UserRepo) CreateUser(ctx context.Context, user models.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, email_verified, password_hash) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, strings.ToLower(user.Email), user.DisplayName, user.EmailVerified, user.PasswordHash)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrUserDuplicate
		}
		return err
	}
	return nil
}

// GetUser fetches an account by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, email, display_name, email_verified, password_hash, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUserByEmail fetches an account by email.
func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, email, display_name, email_verified, password_hash, created_at FROM users WHERE email=$1`,
		strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UpdateDisplayName changes the visible name of the account.
func (r *UserRepo) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	return r.execOne(ctx, `UPDATE users SET display_name=$2 WHERE id=$1`, userID, displayName)
}

// SetPasswordHash replaces the stored password hash.
func (r *UserRepo) SetPasswordHash(ctx context.Context, userID, hash string) error {
	return r.execOne(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, userID, hash)
}

// MarkEmailVerified flags the account email as verified.
func (r *UserRepo) MarkEmailVerified(ctx context.Context, userID string) error {
	return r.execOne(ctx, `UPDATE users SET email_verified=TRUE WHERE id=$1`, userID)
}

// DeleteUser removes the account row. Room memberships are left in place;
// cleaning them up on account deletion is an unresolved product decision.
func (r *UserRepo) DeleteUser(ctx context.Context, userID string) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id=$1`, userID)
}

func (r *UserRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
