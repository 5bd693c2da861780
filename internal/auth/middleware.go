package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/sessionguard/internal/models"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
)

type contextKey string

const stateContextKey contextKey = "auth_state"

// SessionInitializer resolves the per-request authentication state
type SessionInitializer interface {
	Init(ctx context.Context, client models.ClientIdentity) (*models.AuthState, error)
}

// PermissionChecker is implemented by the per-request registry
type PermissionChecker interface {
	Has(group, name string) bool
}

// SessionMiddleware runs session init for every request and stores the resulting
// AuthState in the request context
func SessionMiddleware(init SessionInitializer, cookies CookieConfig, ipConfig *pkghttp.IPConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientIdentityFromRequest(r, cookies.Name, ipConfig)

			state, err := init.Init(r.Context(), client)
			if err != nil {
				if errors.Is(err, models.ErrSessionUnavailable) {
					pkghttp.WriteServiceUnavailable(w, "Session could not be established, try again later")
					return
				}
				logger.Error("session init failed", slog.Any("error", err))
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}

			WriteIssuedToken(w, state, cookies)
			next.ServeHTTP(w, r.WithContext(WithState(r.Context(), state)))
		})
	}
}

// WithState returns a copy of ctx carrying state
func WithState(ctx context.Context, state *models.AuthState) context.Context {
	return context.WithValue(ctx, stateContextKey, state)
}

// StateFromContext returns the request's AuthState, or nil outside SessionMiddleware
func StateFromContext(ctx context.Context) *models.AuthState {
	state, _ := ctx.Value(stateContextKey).(*models.AuthState)
	return state
}

// RequirePermission rejects requests whose registry lacks group/name. Guests get 401,
// authenticated users without the flag get 403.
func RequirePermission(group, name string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := StateFromContext(r.Context())
			if state == nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			checker, ok := state.Permissions.(PermissionChecker)
			if ok && checker.Has(group, name) {
				next.ServeHTTP(w, r)
				return
			}

			if !state.IsAuthenticated() {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}
			pkghttp.WriteForbidden(w, "Insufficient permissions")
		})
	}
}
