package middleware

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/sessionguard/internal/auth"
	"github.com/BradenHooton/sessionguard/internal/models"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
)

// CSRFHeader carries the token returned by GET /auth/status
const CSRFHeader = "X-CSRF-Token"

// CSRFProtection checks state-changing requests from browser clients against a token
// signed with the session's secret_key. API and CLI clients authenticate with a header
// the browser never attaches on its own, so they are not checked.
func CSRFProtection(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			state := auth.StateFromContext(r.Context())
			if state == nil || state.Client.Kind != models.ClientBrowser {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(CSRFHeader)
			if token == "" {
				logger.Warn("CSRF token missing in request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int64("session_id", sessionID(state)))
				pkghttp.WriteForbidden(w, "CSRF token missing")
				return
			}

			if state.Signer == nil || state.Signer.Verify(token, auth.PurposeCSRF) != nil {
				logger.Warn("CSRF token validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int64("session_id", sessionID(state)))
				pkghttp.WriteForbidden(w, "CSRF token invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func sessionID(state *models.AuthState) int64 {
	if state.Session == nil {
		return 0
	}
	return state.Session.ID
}

func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
