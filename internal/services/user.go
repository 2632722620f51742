package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/internal/hashing"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/internal/token"
	"github.com/jjudge-oj/accounts/internal/validation"
	"github.com/jjudge-oj/accounts/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Insert(ctx context.Context, user types.User) error
	// UpdatePasswordHash must store hash and increment the token version
	// atomically, returning the new version.
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) (uint64, error)
	UpdateUsername(ctx context.Context, id uuid.UUID, username string) error
	// IncrementTokenVersion must be atomic and return the new version.
	IncrementTokenVersion(ctx context.Context, id uuid.UUID) (uint64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AccountEvents receives notifications of committed account changes.
type AccountEvents interface {
	PublishAccountEvent(ctx context.Context, ev mq.AccountEvent) error
}

const eventPublishTimeout = 5 * time.Second

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	Access  token.Token
	Refresh token.Token
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo   UserRepository
	hasher *hashing.Pool
	secret []byte
	events AccountEvents
	logger *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewUserService wires the service. secret is the process-wide JWT signing
// key; events may be nil.
func NewUserService(repo UserRepository, hasher *hashing.Pool, secret []byte, events AccountEvents, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		repo:   repo,
		hasher: hasher,
		secret: secret,
		events: events,
		logger: logger,
	}
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Register validates and stores a new account.
func (s *UserService) Register(ctx context.Context, username, password, email string) (types.User, error) {
	if !validation.ValidUsername(username) {
		return types.User{}, invalid("username", ErrInvalidUsername)
	}
	if !validation.ValidPassword(password) {
		return types.User{}, invalid("password", ErrInvalidPassword)
	}
	if !validation.ValidEmail(email) {
		return types.User{}, invalid("email", ErrInvalidEmail)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return types.User{}, s.hashFailure(ctx, err)
	}

	user := types.NewUser(username, hash, email)
	if err := s.repo.Insert(ctx, user); err != nil {
		return types.User{}, conflictOr("insert user", err)
	}

	s.publish(ctx, mq.EventRegistered, user)
	return user, nil
}

// Authenticate checks a username/password pair. Callers must not reveal to
// clients whether ErrUserNotFound or ErrWrongPassword occurred.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Spend the same hashing work as a real check.
			if dummy := s.dummy(); dummy != "" {
				_, _ = s.hasher.Verify(ctx, password, dummy)
			}
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, fmt.Errorf("get user: %w", err)
	}

	ok, err := s.VerifyPassword(ctx, user, password)
	if err != nil {
		return types.User{}, err
	}
	if !ok {
		return types.User{}, ErrWrongPassword
	}
	return user, nil
}

// VerifyPassword reports whether password matches the user's stored hash.
func (s *UserService) VerifyPassword(ctx context.Context, user types.User, password string) (bool, error) {
	ok, err := s.hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return false, s.hashFailure(ctx, err)
	}
	return ok, nil
}

// UpdatePassword replaces the password after confirming the current one.
// The token version is bumped in the same write, so every token issued
// before the change stops being honored.
func (s *UserService) UpdatePassword(ctx context.Context, user types.User, oldPassword, newPassword string) (types.User, error) {
	ok, err := s.VerifyPassword(ctx, user, oldPassword)
	if err != nil {
		return types.User{}, err
	}
	if !ok {
		return types.User{}, ErrWrongPassword
	}

	if !validation.ValidPassword(newPassword) {
		return types.User{}, invalid("password", ErrInvalidPassword)
	}
	same, err := s.VerifyPassword(ctx, user, newPassword)
	if err != nil {
		return types.User{}, err
	}
	if same {
		return types.User{}, invalid("password", ErrSamePassword)
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return types.User{}, s.hashFailure(ctx, err)
	}
	if _, err := s.repo.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return types.User{}, fmt.Errorf("update password hash: %w", err)
	}

	// The change is committed; a cancelled request must not fail the reload.
	committed := context.WithoutCancel(ctx)
	updated, err := s.repo.GetByID(committed, user.ID)
	if err != nil {
		return types.User{}, fmt.Errorf("reload user: %w", err)
	}
	s.publish(committed, mq.EventPasswordChanged, updated)
	return updated, nil
}

// UpdateUsername renames the account. Tokens are bound to the id, so the
// token version is left alone.
func (s *UserService) UpdateUsername(ctx context.Context, user types.User, newUsername string) (types.User, error) {
	if !validation.ValidUsername(newUsername) {
		return types.User{}, invalid("username", ErrInvalidUsername)
	}
	if newUsername == user.Username {
		return types.User{}, invalid("username", ErrSameUsername)
	}

	if err := s.repo.UpdateUsername(ctx, user.ID, newUsername); err != nil {
		return types.User{}, conflictOr("update username", err)
	}

	updated, err := s.repo.GetByID(ctx, user.ID)
	if err != nil {
		return types.User{}, fmt.Errorf("reload user: %w", err)
	}
	s.publish(ctx, mq.EventUsernameChanged, updated)
	return updated, nil
}

// BumpTokenVersion revokes every outstanding token for the account.
func (s *UserService) BumpTokenVersion(ctx context.Context, id uuid.UUID) (types.User, error) {
	updated, err := s.bump(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	s.publish(ctx, mq.EventTokensRevoked, updated)
	return updated, nil
}

func (s *UserService) bump(ctx context.Context, id uuid.UUID) (types.User, error) {
	if _, err := s.repo.IncrementTokenVersion(ctx, id); err != nil {
		return types.User{}, fmt.Errorf("increment token version: %w", err)
	}
	updated, err := s.repo.GetByID(context.WithoutCancel(ctx), id)
	if err != nil {
		return types.User{}, fmt.Errorf("reload user: %w", err)
	}
	return updated, nil
}

// Delete removes the account. Tokens already issued for it are rejected by
// the gates once the lookup fails.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.publish(ctx, mq.EventDeleted, user)
	return nil
}

// CloseAccount deletes the account after confirming its password.
func (s *UserService) CloseAccount(ctx context.Context, user types.User, password string) error {
	ok, err := s.VerifyPassword(ctx, user, password)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWrongPassword
	}
	return s.Delete(ctx, user.ID)
}

// IssueTokens mints a fresh access/refresh pair for user.
func (s *UserService) IssueTokens(user types.User) (TokenPair, error) {
	access, err := token.Access.ForUser(user, s.secret)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := token.Refresh.ForUser(user, s.secret)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// RenewAccess mints a new access token for a user that presented a valid
// refresh token.
func (s *UserService) RenewAccess(user types.User) (token.Token, error) {
	return token.Access.ForUser(user, s.secret)
}

// RenewRefresh re-authenticates with a password and mints a new refresh
// token.
func (s *UserService) RenewRefresh(ctx context.Context, username, password string) (token.Token, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return token.Token{}, err
	}
	return token.Refresh.ForUser(user, s.secret)
}

// dummy returns a valid PHC string for a password nobody has, used to make
// lookups of unknown users cost as much as real ones.
func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(context.Background(), uuid.NewString())
		if err != nil {
			s.logger.Warn("dummy password hash unavailable", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// hashFailure keeps context errors distinguishable from hash faults.
func (s *UserService) hashFailure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return &HashError{Err: err}
}

func (s *UserService) publish(ctx context.Context, eventType mq.EventType, user types.User) {
	if s.events == nil {
		return
	}
	ev := mq.NewAccountEvent(eventType, user.ID, user.TokenVersion)
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.events.PublishAccountEvent(pubCtx, ev); err != nil {
		s.logger.WarnContext(ctx, "account event not delivered",
			"type", eventType,
			"user_id", user.ID,
			"error", err,
		)
	}
}
