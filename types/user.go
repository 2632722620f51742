package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Permission is the coarse account level. It is carried on the record and
// in responses but not enforced by the service.
type Permission string

const (
	PermissionUser  Permission = "USER"
	PermissionAdmin Permission = "ADMIN"
)

// ParsePermission accepts any casing of "user" or "admin".
func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return PermissionUser, nil
	case "admin":
		return PermissionAdmin, nil
	default:
		return "", fmt.Errorf("unknown permission %q", s)
	}
}

func (p Permission) String() string {
	return string(p)
}

// User represents an account in the system.
// It contains identity, credentials, and the token version used for revocation.
type User struct {
	// ID is assigned once at creation and never reassigned.
	ID uuid.UUID `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the PHC-encoded Argon2id hash.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Permission indicates the user's account level.
	Permission Permission `json:"permission" db:"permission"`

	// TokenVersion only ever increases. A token is honored only when its
	// embedded version equals this value.
	TokenVersion uint64 `json:"token_version" db:"token_version"`

	// CreatedAt is the creation time in seconds since the epoch.
	CreatedAt int64 `json:"created_at" db:"created_at"`
}

// NewUser builds a fresh, unpersisted account record.
func NewUser(username, passwordHash, email string) User {
	return User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Permission:   PermissionUser,
		TokenVersion: 0,
		CreatedAt:    time.Now().Unix(),
	}
}
