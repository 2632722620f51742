package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
	"github.com/lib/pq"
)

const (
	uniqueViolation = pq.ErrorCode("23505")

	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"
)

// UserRepository handles persistence for users in PostgreSQL.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const selectUser = `
		SELECT id, username, email, password_hash, permission, token_version, created_at
		FROM users`

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	return r.getOne(ctx, selectUser+`
		WHERE id = $1`, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.getOne(ctx, selectUser+`
		WHERE username = $1`, username)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	var (
		user       types.User
		permission string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&permission,
		&user.TokenVersion,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("db error: %w", err)
	}
	user.Permission, err = types.ParsePermission(permission)
	if err != nil {
		return types.User{}, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *UserRepository) Insert(ctx context.Context, user types.User) error {
	const query = `
		INSERT INTO users (id, username, email, password_hash, permission, token_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Permission.String(),
		int64(user.TokenVersion),
		user.CreatedAt,
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

// UpdatePasswordHash stores hash and bumps the token version in one
// statement, returning the new version.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) (uint64, error) {
	const query = `
		UPDATE users
		SET password_hash = $1, token_version = token_version + 1
		WHERE id = $2
		RETURNING token_version`
	return r.returningVersion(ctx, query, hash, id)
}

func (r *UserRepository) UpdateUsername(ctx context.Context, id uuid.UUID, username string) error {
	const query = `UPDATE users SET username = $1 WHERE id = $2`
	return r.execOne(ctx, query, username, id)
}

// IncrementTokenVersion bumps the version in a single statement so that
// concurrent callers never overwrite each other's increment.
func (r *UserRepository) IncrementTokenVersion(ctx context.Context, id uuid.UUID) (uint64, error) {
	const query = `
		UPDATE users
		SET token_version = token_version + 1
		WHERE id = $1
		RETURNING token_version`
	return r.returningVersion(ctx, query, id)
}

func (r *UserRepository) returningVersion(ctx context.Context, query string, args ...any) (uint64, error) {
	var version int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return uint64(version), nil
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM users WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// classify turns unique violations into ConstraintError using the
// constraint name reported by the server.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return fmt.Errorf("db error: %w", err)
	}
	switch pqErr.Constraint {
	case usernameConstraint:
		return &ConstraintError{Field: ConstraintUsername, Err: err}
	case emailConstraint:
		return &ConstraintError{Field: ConstraintEmail, Err: err}
	default:
		return &ConstraintError{Field: ConstraintOther, Err: err}
	}
}
