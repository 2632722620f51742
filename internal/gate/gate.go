// Package gate decides whether a request carrying a token may proceed and,
// if so, on whose behalf.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/internal/token"
	"github.com/jjudge-oj/accounts/types"
)

// Reason names why a gate refused a request.
type Reason string

const (
	ReasonNoToken         Reason = "no_token"
	ReasonInvalid         Reason = "invalid_token"
	ReasonExpired         Reason = "expired"
	ReasonUserMissing     Reason = "user_missing"
	ReasonLookupFailed    Reason = "lookup_failed"
	ReasonVersionMismatch Reason = "version_mismatch"
)

// Status is the HTTP status reported to the client for r.
func (r Reason) Status() int {
	switch r {
	case ReasonUserMissing:
		return http.StatusBadRequest
	case ReasonLookupFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// Rejection is returned by Evaluate when the request must not proceed.
type Rejection struct {
	Reason Reason
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("rejected (%s): %v", r.Reason, r.Err)
	}
	return fmt.Sprintf("rejected (%s)", r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Status is the HTTP status for the rejection.
func (r *Rejection) Status() int {
	return r.Reason.Status()
}

// UserLookup resolves the subject of a token.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
}

// Gate admits requests carrying a valid token of one kind.
type Gate struct {
	kind   token.Kind
	secret []byte
	users  UserLookup
	now    func() time.Time
	logger *slog.Logger
}

// New builds a gate for tokens of kind.
func New(kind token.Kind, secret []byte, users UserLookup, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		kind:   kind,
		secret: secret,
		users:  users,
		now:    time.Now,
		logger: logger.With("gate", kind.Name),
	}
}

// Kind returns the token kind this gate checks.
func (g *Gate) Kind() token.Kind {
	return g.kind
}

// Evaluate checks the token found in src. Checks run in a fixed order and
// the first failing one decides the outcome: presence, signature, validity
// window, account existence, token version. On success the current account
// record is returned.
func (g *Gate) Evaluate(ctx context.Context, src token.Source) (types.User, error) {
	tok, err := g.kind.Lookup(src, g.secret)
	if err != nil {
		if errors.Is(err, token.ErrNoToken) {
			return types.User{}, g.reject(ctx, ReasonNoToken, nil)
		}
		return types.User{}, g.reject(ctx, ReasonInvalid, err)
	}

	if !tok.Claims.TemporallyValid(g.now()) {
		return types.User{}, g.reject(ctx, ReasonExpired, nil)
	}

	user, err := g.users.GetByID(ctx, tok.Claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, g.reject(ctx, ReasonUserMissing, err)
		}
		return types.User{}, g.reject(ctx, ReasonLookupFailed, err)
	}

	if user.TokenVersion != tok.Claims.TokenVersion {
		return types.User{}, g.reject(ctx, ReasonVersionMismatch, nil)
	}
	return user, nil
}

func (g *Gate) reject(ctx context.Context, reason Reason, err error) error {
	level := slog.LevelDebug
	if reason == ReasonLookupFailed {
		level = slog.LevelError
	}
	attrs := []any{"reason", reason}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	g.logger.Log(ctx, level, "request rejected", attrs...)
	return &Rejection{Reason: reason, Err: err}
}
