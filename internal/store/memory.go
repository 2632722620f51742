package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
)

// MemoryUserRepository keeps users in process memory. It enforces the same
// uniqueness rules as the users table and is used for local development
// (DB_DRIVER=memory) and tests.
type MemoryUserRepository struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]types.User
	byUsername map[string]uuid.UUID
	byEmail    map[string]uuid.UUID
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:       make(map[uuid.UUID]types.User),
		byUsername: make(map[string]uuid.UUID),
		byEmail:    make(map[string]uuid.UUID),
	}
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byUsername[username]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepository) Insert(ctx context.Context, user types.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[user.ID]; ok {
		return &ConstraintError{Field: ConstraintOther}
	}
	if _, ok := r.byUsername[user.Username]; ok {
		return &ConstraintError{Field: ConstraintUsername}
	}
	if _, ok := r.byEmail[user.Email]; ok {
		return &ConstraintError{Field: ConstraintEmail}
	}
	r.byID[user.ID] = user
	r.byUsername[user.Username] = user.ID
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	user.PasswordHash = hash
	user.TokenVersion++
	r.byID[id] = user
	return user.TokenVersion, nil
}

func (r *MemoryUserRepository) UpdateUsername(ctx context.Context, id uuid.UUID, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := r.byUsername[username]; taken && owner != id {
		return &ConstraintError{Field: ConstraintUsername}
	}
	delete(r.byUsername, user.Username)
	user.Username = username
	r.byID[id] = user
	r.byUsername[username] = id
	return nil
}

func (r *MemoryUserRepository) IncrementTokenVersion(ctx context.Context, id uuid.UUID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	user.TokenVersion++
	r.byID[id] = user
	return user.TokenVersion, nil
}

func (r *MemoryUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byUsername, user.Username)
	delete(r.byEmail, user.Email)
	return nil
}
