package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/sessionguard/internal/models"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
)

// CookieConfig holds session cookie settings
type CookieConfig struct {
	Name     string
	Domain   string        // Empty string = current host only
	Secure   bool          // HTTPS only
	SameSite string        // "strict", "lax", or "none"
	MaxAge   time.Duration // Usually the session TTL
}

// SetSessionCookie sets the httpOnly session cookie, replacing any Set-Cookie for the
// same name already queued on w
func SetSessionCookie(w http.ResponseWriter, token string, config CookieConfig) {
	dropQueuedCookie(w, config.Name)
	http.SetCookie(w, &http.Cookie{
		Name:     config.Name,
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(config.MaxAge),
		MaxAge:   int(config.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// WriteIssuedToken hands a changed session token back to the client: a cookie for
// browsers, the X-Session-Token response header for API clients. It is a no-op when
// the token did not change.
func WriteIssuedToken(w http.ResponseWriter, state *models.AuthState, config CookieConfig) {
	if state == nil || state.IssuedToken == "" {
		return
	}
	switch state.Client.Kind {
	case models.ClientBrowser:
		SetSessionCookie(w, state.IssuedToken, config)
	case models.ClientAPI:
		w.Header().Set(pkghttp.SessionTokenHeader, state.IssuedToken)
	}
	state.IssuedToken = ""
}

func dropQueuedCookie(w http.ResponseWriter, name string) {
	queued := w.Header().Values("Set-Cookie")
	if len(queued) == 0 {
		return
	}
	w.Header().Del("Set-Cookie")
	for _, c := range queued {
		if !strings.HasPrefix(c, name+"=") {
			w.Header().Add("Set-Cookie", c)
		}
	}
}

func parseSameSite(sameSite string) http.SameSite {
	switch strings.ToLower(sameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
