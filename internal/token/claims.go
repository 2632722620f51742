// Package token builds, signs and verifies the HS256 JWTs handed to clients.
//
// Access and refresh tokens share one implementation; a Kind carries the
// lifetime and the transport key that distinguish them.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
)

// Claims is the signed payload. Times are seconds since the epoch.
type Claims struct {
	Subject      uuid.UUID `json:"sub"`
	TokenVersion uint64    `json:"tokenversion"`
	IssuedAt     int64     `json:"iat"`
	ExpiresAt    int64     `json:"exp"`
}

var _ jwt.Claims = Claims{}

// NewClaims stamps iat with the current time and exp with iat+ttl.
func NewClaims(subject uuid.UUID, tokenVersion uint64, ttl time.Duration) Claims {
	now := time.Now().Unix()
	return Claims{
		Subject:      subject,
		TokenVersion: tokenVersion,
		IssuedAt:     now,
		ExpiresAt:    now + int64(ttl/time.Second),
	}
}

// ClaimsFromUser snapshots the user's id and current token version.
func ClaimsFromUser(user types.User, ttl time.Duration) Claims {
	return NewClaims(user.ID, user.TokenVersion, ttl)
}

// TemporallyValid reports whether now lies inside [iat, exp]. An iat in the
// future is treated as forged, independently of exp.
func (c Claims) TemporallyValid(now time.Time) bool {
	ts := now.Unix()
	if c.ExpiresAt < ts {
		return false
	}
	if c.IssuedAt > ts {
		return false
	}
	return true
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c Claims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (c Claims) GetIssuer() (string, error) {
	return "", nil
}

func (c Claims) GetSubject() (string, error) {
	return c.Subject.String(), nil
}

func (c Claims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}
