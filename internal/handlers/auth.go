package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/sessionguard/internal/auth"
	"github.com/BradenHooton/sessionguard/internal/models"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
)

// AuthEngine defines the login state machine used by the handlers
type AuthEngine interface {
	Login(ctx context.Context, state *models.AuthState, identifier, password string) error
	Logout(ctx context.Context, state *models.AuthState) error
}

// PasswordResetter defines the activation-key password reset flow
type PasswordResetter interface {
	RequestReset(ctx context.Context, identifier string) error
	Reset(ctx context.Context, key, newPassword string) error
}

// AuthHandler handles authentication-related HTTP requests. Every route is mounted
// behind auth.SessionMiddleware, which supplies the request's AuthState.
type AuthHandler struct {
	engine  AuthEngine
	resets  PasswordResetter
	cookies auth.CookieConfig
	logger  *slog.Logger
}

func NewAuthHandler(engine AuthEngine, resets PasswordResetter, cookies auth.CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		engine:  engine,
		resets:  resets,
		cookies: cookies,
		logger:  logger,
	}
}

// Request DTOs

// LoginRequest accepts a username or an email address as identifier
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=255,identifier"`
	Password   string `json:"password" validate:"required,max=1024"`
}

type ForgotPasswordRequest struct {
	Identifier string `json:"identifier" validate:"required,max=255,identifier"`
}

type ResetPasswordRequest struct {
	Key      string `json:"key" validate:"required,max=1024,activationkey"`
	Password string `json:"password" validate:"required,max=1024"`
}

// Response DTOs

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	IsAdmin   bool       `json:"is_admin"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// StatusResponse reports the request's authentication state
type StatusResponse struct {
	Status      string             `json:"status"`
	User        *UserResponse      `json:"user,omitempty"`
	Permissions models.Permissions `json:"permissions,omitempty"`
	CSRFToken   string             `json:"csrf_token,omitempty"`
	Degraded    bool               `json:"degraded,omitempty"`
}

type permissionSnapshotter interface {
	Snapshot() models.Permissions
}

func (h *AuthHandler) statusResponse(state *models.AuthState) StatusResponse {
	resp := StatusResponse{
		Status:   state.Status.String(),
		Degraded: state.Degraded,
	}

	if state.IsAuthenticated() {
		u := state.CurrentUser
		resp.User = &UserResponse{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			IsAdmin:   u.IsAdmin,
			LastLogin: u.LastLogin,
		}
	}
	if snap, ok := state.Permissions.(permissionSnapshotter); ok {
		resp.Permissions = snap.Snapshot()
	}

	if state.Client.Kind == models.ClientBrowser && state.Signer != nil {
		token, err := state.Signer.Sign(auth.PurposeCSRF)
		if err != nil {
			h.logger.Warn("failed to sign csrf token", slog.Any("error", err))
		} else {
			resp.CSRFToken = token
		}
	}
	return resp
}

func writeValidationError(w http.ResponseWriter, err error) {
	pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", "Invalid request", err.Error())
}

func requireState(w http.ResponseWriter, r *http.Request) *models.AuthState {
	state := auth.StateFromContext(r.Context())
	if state == nil {
		pkghttp.WriteInternalError(w, "Internal server error")
	}
	return state
}

// Status handles GET /auth/status. It is the anonymous re-entry path: no credentials,
// just the current state (and an opportunistic purge of expired sessions).
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	state := requireState(w, r)
	if state == nil {
		return
	}

	if err := h.engine.Login(r.Context(), state, "", ""); err != nil && !errors.Is(err, models.ErrNotAuthenticated) {
		h.logger.Warn("status check failed", slog.Any("error", err))
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.statusResponse(state))
}

// Login handles POST /auth/login. Lockouts and bad credentials produce the same 401 body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := requireState(w, r)
	if state == nil {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.engine.Login(r.Context(), state, req.Identifier, req.Password); err != nil {
		switch {
		case errors.Is(err, models.ErrValidation):
			pkghttp.WriteBadRequest(w, "Username and password are required")
		case models.IsLoginFailure(err):
			pkghttp.WriteUnauthorized(w, models.PublicLoginFailure)
		case errors.Is(err, models.ErrSessionUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Session could not be established, try again later")
		default:
			h.logger.Error("login failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.WriteIssuedToken(w, state, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, h.statusResponse(state))
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	state := requireState(w, r)
	if state == nil {
		return
	}

	if err := h.engine.Logout(r.Context(), state); err != nil {
		if errors.Is(err, models.ErrNotAuthenticated) {
			pkghttp.WriteUnauthorized(w, "Not logged in")
			return
		}
		h.logger.Error("logout failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.WriteIssuedToken(w, state, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, h.statusResponse(state))
}

// ForgotPassword handles POST /auth/password/forgot. The response never reveals whether
// the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.resets.RequestReset(r.Context(), req.Identifier); err != nil {
		if errors.Is(err, models.ErrValidation) {
			pkghttp.WriteBadRequest(w, "Identifier is required")
			return
		}
		h.logger.Error("password reset request failed", slog.Any("error", err))
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "If the account exists, a reset link has been sent.",
	})
}

// ResetPassword handles POST /auth/password/reset
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.resets.Reset(r.Context(), req.Key, req.Password); err != nil {
		switch {
		case errors.Is(err, models.ErrActivationKeyInvalid):
			pkghttp.WriteError(w, http.StatusBadRequest, "activation_key_invalid", "Activation key invalid")
		case errors.Is(err, models.ErrActivationKeyExpired):
			pkghttp.WriteError(w, http.StatusBadRequest, "activation_key_expired", "Activation key expired, request a new one")
		case errors.Is(err, models.ErrWeakPassword):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		default:
			h.logger.Error("password reset failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}
