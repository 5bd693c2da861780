package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BradenHooton/sessionguard/internal/auth"
	"github.com/BradenHooton/sessionguard/internal/handlers"
	"github.com/BradenHooton/sessionguard/internal/metrics"
	middlewareCustom "github.com/BradenHooton/sessionguard/internal/middleware"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
)

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds everything the router needs
type Dependencies struct {
	Env            string
	Sessions       auth.SessionInitializer
	Cookies        auth.CookieConfig
	IPConfig       *pkghttp.IPConfig
	AllowedOrigins []string
	LoginRateLimit int
	AuthHandler    *handlers.AuthHandler
	AdminHandler   *handlers.AdminHandler
	Health         HealthChecker // nil for the in-memory store
	Registry       *prometheus.Registry
	Logger         *slog.Logger
}

// NewRouter builds the chi router with the global middleware stack and all routes
func NewRouter(deps Dependencies) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: deps.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(deps.AllowedOrigins)))
	router.Use(middleware.Timeout(60 * time.Second))

	// Infrastructure endpoints never open a session
	router.Get("/health", healthHandler(deps.Health))
	if deps.Registry != nil {
		router.Handle("/metrics", metrics.Handler(deps.Registry))
	}

	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(deps.Sessions, deps.Cookies, deps.IPConfig, deps.Logger))
		r.Use(middlewareCustom.SecureLogger(deps.Logger))
		r.Use(middlewareCustom.CSRFProtection(deps.Logger))
		RegisterRoutes(r, deps)
	})

	return router
}

// RegisterRoutes registers the session-aware application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	rateLimitConfig := middlewareCustom.DefaultAuthRateLimit()
	rateLimitConfig.IPConfig = deps.IPConfig
	if deps.LoginRateLimit > 0 {
		rateLimitConfig.RequestsPerMinute = deps.LoginRateLimit
	}

	router.Get("/auth/status", deps.AuthHandler.Status)

	router.Group(func(r chi.Router) {
		r.Use(middlewareCustom.RateLimitByIP(rateLimitConfig))
		r.Post("/auth/login", deps.AuthHandler.Login)
		r.Post("/auth/logout", deps.AuthHandler.Logout)
		r.Post("/auth/password/forgot", deps.AuthHandler.ForgotPassword)
		r.Post("/auth/password/reset", deps.AuthHandler.ResetPassword)
	})

	// Admin-only routes
	router.Group(func(r chi.Router) {
		r.Use(auth.RequirePermission(auth.GroupUser, auth.FlagAdmin))
		r.Get("/admin/lockdown", deps.AdminHandler.GetLockdown)
	})
}

func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "store": "memory"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	}
}
