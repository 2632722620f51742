// Package transport carries token strings between client and server in
// HttpOnly cookies. Cookie values are authenticated and, when a block key is
// configured, encrypted with gorilla/securecookie, on top of the JWT's own
// signature.
package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// Jar is a key-value carrier for token strings.
type Jar interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Clear(key string)
}

// Codec seals cookie values with the process-wide cookie keys.
type Codec struct {
	sc     *securecookie.SecureCookie
	maxAge time.Duration
	secure bool
}

// CodecConfig configures a Codec. HashKey is required (32 or 64 bytes
// recommended); BlockKey enables AES encryption and must be 16, 24 or 32
// bytes when set. MaxAge bounds both the cookie lifetime and the accepted
// age of sealed values.
type CodecConfig struct {
	HashKey  []byte
	BlockKey []byte
	MaxAge   time.Duration
	Secure   bool
}

func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.HashKey) == 0 {
		return nil, errors.New("cookie hash key is required")
	}
	switch len(cfg.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, errors.New("cookie block key must be 16, 24 or 32 bytes")
	}
	if cfg.MaxAge <= 0 {
		return nil, errors.New("cookie max age must be positive")
	}

	var blockKey []byte
	if len(cfg.BlockKey) > 0 {
		blockKey = cfg.BlockKey
	}
	sc := securecookie.New(cfg.HashKey, blockKey)
	sc.MaxAge(int(cfg.MaxAge / time.Second))

	return &Codec{sc: sc, maxAge: cfg.MaxAge, secure: cfg.Secure}, nil
}

// Jar binds the codec to one request/response pair.
func (c *Codec) Jar(w http.ResponseWriter, r *http.Request) *CookieJar {
	return &CookieJar{codec: c, w: w, r: r}
}

// CookieJar reads sealed cookies from a request and writes them to the
// matching response.
type CookieJar struct {
	codec *Codec
	w     http.ResponseWriter
	r     *http.Request
}

var _ Jar = (*CookieJar)(nil)

// Get returns the unsealed value of the named cookie. Missing cookies and
// cookies that fail authentication or decryption are both reported as absent.
func (j *CookieJar) Get(key string) (string, bool) {
	cookie, err := j.r.Cookie(key)
	if err != nil {
		return "", false
	}
	var value string
	if err := j.codec.sc.Decode(key, cookie.Value, &value); err != nil {
		return "", false
	}
	return value, true
}

// Set seals value and adds it to the response as an HttpOnly,
// SameSite=Strict cookie.
func (j *CookieJar) Set(key, value string) error {
	sealed, err := j.codec.sc.Encode(key, value)
	if err != nil {
		return err
	}
	http.SetCookie(j.w, &http.Cookie{
		Name:     key,
		Value:    sealed,
		Path:     "/",
		MaxAge:   int(j.codec.maxAge / time.Second),
		HttpOnly: true,
		Secure:   j.codec.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// Clear instructs the client to drop the named cookie.
func (j *CookieJar) Clear(key string) {
	http.SetCookie(j.w, &http.Cookie{
		Name:     key,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.codec.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
