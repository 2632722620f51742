// Package validation holds the shape rules for account credentials.
package validation

import (
	"net/mail"
	"strings"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 16
	minPasswordLen = 8
	maxPasswordLen = 50
	maxEmailLen    = 254
)

// passwordSpecials is the only punctuation a password may contain.
const passwordSpecials = ".-_*#%&$?"

// ValidUsername reports whether s is 3-16 characters from [A-Za-z0-9._-].
func ValidUsername(s string) bool {
	if len(s) < minUsernameLen || len(s) > maxUsernameLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isAlnum(c) && c != '.' && c != '_' && c != '-' {
			return false
		}
	}
	return true
}

// ValidPassword reports whether s is 8-50 characters of ASCII letters,
// digits and the characters in passwordSpecials, with at least one of each
// class: lowercase, uppercase, digit, special.
func ValidPassword(s string) bool {
	if len(s) < minPasswordLen || len(s) > maxPasswordLen {
		return false
	}

	var lower, upper, digit, special bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= '0' && c <= '9':
			digit = true
		case strings.IndexByte(passwordSpecials, c) >= 0:
			special = true
		default:
			return false
		}
	}
	return lower && upper && digit && special
}

// ValidEmail reports whether s is a single bare address such as
// "a@x.com". Display names ("Alice <a@x.com>") are rejected.
func ValidEmail(s string) bool {
	if s == "" || len(s) > maxEmailLen {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && addr.Name == ""
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
