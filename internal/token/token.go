package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jjudge-oj/accounts/types"
)

var (
	// ErrSign means the token could not be signed. It indicates a
	// configuration fault, never a client mistake.
	ErrSign = errors.New("token signing failed")

	ErrNoToken              = errors.New("token not presented")
	ErrMalformed            = errors.New("token malformed")
	ErrBadSignature         = errors.New("token signature invalid")
	ErrUnsupportedAlgorithm = errors.New("token algorithm unsupported")
)

var signingMethod = jwt.SigningMethodHS256

// Kind describes one flavour of token.
type Kind struct {
	Name         string
	TTL          time.Duration
	TransportKey string
}

var (
	Access = Kind{
		Name:         "access",
		TTL:          20 * time.Minute,
		TransportKey: "access_token",
	}
	Refresh = Kind{
		Name:         "refresh",
		TTL:          525600 * time.Minute,
		TransportKey: "refresh_token",
	}
)

// Source is the read side of the transport carrying tokens between client
// and server.
type Source interface {
	Get(key string) (string, bool)
}

// Token is a set of claims together with its signed compact serialization.
// Tokens are never mutated; Renew returns a new one.
type Token struct {
	Kind   Kind
	Claims Claims
	raw    string
}

// String returns the signed header.payload.signature form.
func (t Token) String() string {
	return t.raw
}

// Issue signs claims with secret.
func (k Kind) Issue(claims Claims, secret []byte) (Token, error) {
	if len(secret) == 0 {
		return Token{}, fmt.Errorf("%w: empty secret", ErrSign)
	}
	raw, err := jwt.NewWithClaims(signingMethod, claims).SignedString(secret)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrSign, err)
	}
	return Token{Kind: k, Claims: claims, raw: raw}, nil
}

// ForUser issues a token of this kind for user with a fresh validity window.
func (k Kind) ForUser(user types.User, secret []byte) (Token, error) {
	return k.Issue(ClaimsFromUser(user, k.TTL), secret)
}

// Parse verifies the signature of raw and decodes its claims. Only HS256 is
// accepted. Temporal validity is left to Claims.TemporallyValid.
func (k Kind) Parse(raw string, secret []byte) (Token, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	_, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != signingMethod.Alg() {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Token{}, classify(err)
	}
	return Token{Kind: k, Claims: claims, raw: raw}, nil
}

// Lookup reads this kind's key from src and parses it. It returns
// ErrNoToken when nothing was presented, or a Parse error.
func (k Kind) Lookup(src Source, secret []byte) (Token, error) {
	raw, ok := src.Get(k.TransportKey)
	if !ok || raw == "" {
		return Token{}, ErrNoToken
	}
	return k.Parse(raw, secret)
}

// FromTransport is Lookup with the failure reason discarded: an absent
// token and an invalid one both yield false.
func (k Kind) FromTransport(src Source, secret []byte) (Token, bool) {
	t, err := k.Lookup(src, secret)
	if err != nil {
		return Token{}, false
	}
	return t, true
}

// Renew issues a new token with the same subject and token version and a
// validity window starting now, using the token's own lifetime.
func (t Token) Renew(secret []byte) (Token, error) {
	claims := NewClaims(t.Claims.Subject, t.Claims.TokenVersion, t.Kind.TTL)
	return t.Kind.Issue(claims, secret)
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
