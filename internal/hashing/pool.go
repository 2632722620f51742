package hashing

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool caps the number of concurrent Argon2 computations so that bursts of
// logins cannot exhaust CPU and memory. Callers block until a slot frees up
// or their context ends.
type Pool struct {
	hasher *Argon2
	sem    *semaphore.Weighted
}

// NewPool wraps hasher with a limit of workers concurrent computations.
// A non-positive workers value means GOMAXPROCS.
func NewPool(hasher *Argon2, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(workers)),
	}
}

// Hash is Argon2.Hash run under the pool limit.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	encoded, err := p.hasher.Hash(password)
	if err != nil {
		return "", err
	}
	// The caller may have gone away while we computed; drop the result so
	// nothing downstream persists it.
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return encoded, nil
}

// Verify is Argon2.Verify run under the pool limit.
func (p *Pool) Verify(ctx context.Context, password, encoded string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	ok, err := p.hasher.Verify(password, encoded)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return ok, nil
}
