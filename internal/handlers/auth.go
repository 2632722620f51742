package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/accounts/internal/gate"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/internal/token"
	"github.com/jjudge-oj/accounts/internal/transport"
	"github.com/jjudge-oj/accounts/types"
)

// AuthHandler serves account and session endpoints. Tokens travel in
// sealed HttpOnly cookies; response bodies never contain them.
type AuthHandler struct {
	users   *services.UserService
	cookies *transport.Codec
	access  *gate.Gate
	refresh *gate.Gate
	logger  *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users *services.UserService, cookies *transport.Codec, access, refresh *gate.Gate, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		users:   users,
		cookies: cookies,
		access:  access,
		refresh: refresh,
		logger:  logger,
	}
}

// AuthRouter registers the /user routes on r.
func AuthRouter(r chi.Router, h *AuthHandler) {
	r.Post("/new", h.Register)
	r.Post("/login", h.Login)
	r.Post("/refresh/refresh_token", h.RenewRefresh)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAccess)
		r.Get("/auth_test", h.AuthTest)
		r.Delete("/delete", h.Delete)
		r.Put("/change/password", h.ChangePassword)
		r.Put("/change/username", h.ChangeUsername)
	})

	r.With(h.RequireRefresh).Get("/refresh/access_token", h.RenewAccess)
}

// RequireAccess admits requests carrying a current access token.
func (h *AuthHandler) RequireAccess(next http.Handler) http.Handler {
	return h.require(h.access, next)
}

// RequireRefresh admits requests carrying a current refresh token.
func (h *AuthHandler) RequireRefresh(next http.Handler) http.Handler {
	return h.require(h.refresh, next)
}

func (h *AuthHandler) require(g *gate.Gate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := g.Evaluate(r.Context(), h.cookies.Jar(w, r))
		if err != nil {
			var rej *gate.Rejection
			if errors.As(err, &rej) {
				writeError(w, rej.Status(), rejectionMessage(rej.Reason))
				return
			}
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// Every rejection that might help a caller probe tokens gets the same text.
func rejectionMessage(reason gate.Reason) string {
	switch reason {
	case gate.ReasonUserMissing:
		return "user not found"
	case gate.ReasonLookupFailed:
		return "internal server error"
	default:
		return "unauthorized"
	}
}

// Register creates an account and signs the caller in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.Register(r.Context(), strings.TrimSpace(req.Username), req.Password, strings.TrimSpace(req.Email))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !h.setSession(w, r, user) {
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and sets both session cookies.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !h.setSession(w, r, user) {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// RenewRefresh re-authenticates with a password and replaces the refresh
// cookie.
func (h *AuthHandler) RenewRefresh(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	tok, err := h.users.RenewRefresh(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !h.setToken(w, r, h.cookies.Jar(w, r), tok) {
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "refresh token renewed"})
}

// RenewAccess issues a new access cookie to a holder of a valid refresh
// token.
func (h *AuthHandler) RenewAccess(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tok, err := h.users.RenewAccess(user)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !h.setToken(w, r, h.cookies.Jar(w, r), tok) {
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "access token renewed"})
}

// AuthTest returns the account the access token belongs to.
func (h *AuthHandler) AuthTest(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Delete closes the account after a password confirmation and clears the
// session cookies.
func (h *AuthHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.users.CloseAccount(r.Context(), user, req.Password); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	jar := h.cookies.Jar(w, r)
	jar.Clear(token.Access.TransportKey)
	jar.Clear(token.Refresh.TransportKey)
	writeJSON(w, http.StatusOK, StatusResponse{Status: "account deleted"})
}

// ChangePassword replaces the password. All previously issued tokens stop
// working; the caller receives a fresh pair.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.users.UpdatePassword(r.Context(), user, req.OldPassword, req.NewPassword)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !h.setSession(w, r, updated) {
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ChangeUsername renames the account.
func (h *AuthHandler) ChangeUsername(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangeUsernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.users.UpdateUsername(r.Context(), user, strings.TrimSpace(req.NewUsername))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// setSession issues an access/refresh pair for user and writes both
// cookies. It reports false after writing an error response.
func (h *AuthHandler) setSession(w http.ResponseWriter, r *http.Request, user types.User) bool {
	pair, err := h.users.IssueTokens(user)
	if err != nil {
		h.writeServiceError(w, r, err)
		return false
	}
	jar := h.cookies.Jar(w, r)
	return h.setToken(w, r, jar, pair.Access) && h.setToken(w, r, jar, pair.Refresh)
}

func (h *AuthHandler) setToken(w http.ResponseWriter, r *http.Request, jar transport.Jar, tok token.Token) bool {
	if err := jar.Set(tok.Kind.TransportKey, tok.String()); err != nil {
		h.logger.ErrorContext(r.Context(), "set cookie failed", "cookie", tok.Kind.TransportKey, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return false
	}
	return true
}

// writeServiceError maps service errors onto responses. Server faults are
// logged and reported with a fixed message.
func (h *AuthHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *services.ValidationError
		cerr *services.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Err.Error())
	case errors.As(err, &cerr):
		writeError(w, http.StatusConflict, cerr.Error())
	case errors.Is(err, services.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, services.ErrWrongPassword):
		if isCredentialRoute(r) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusUnauthorized, "incorrect password")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// isCredentialRoute reports whether the request authenticates by username
// and password, where a wrong password must look like an unknown user.
func isCredentialRoute(r *http.Request) bool {
	_, authenticated := UserFromContext(r.Context())
	return !authenticated
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type DeleteRequest struct {
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type ChangeUsernameRequest struct {
	NewUsername string `json:"new_username"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
