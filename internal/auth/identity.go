package auth

import (
	"net/http"

	"github.com/BradenHooton/sessionguard/internal/models"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
)

// ClientIdentityFromRequest classifies the caller:
//   - a session cookie or a browser user agent makes a browser client
//   - a token in X-Session-Token makes an API client
//   - anything else (scripts without a token) is a CLI client and never touches the store
func ClientIdentityFromRequest(r *http.Request, cookieName string, ipConfig *pkghttp.IPConfig) models.ClientIdentity {
	userAgent := r.UserAgent()
	token, fromHeader := pkghttp.RequestToken(r, cookieName)

	kind := models.ClientCLI
	switch {
	case token != "" && !fromHeader:
		kind = models.ClientBrowser
	case fromHeader:
		kind = models.ClientAPI
	case pkghttp.LooksLikeBrowser(userAgent):
		kind = models.ClientBrowser
	}

	return models.ClientIdentity{
		IPAddress:    pkghttp.ExtractClientIP(r, ipConfig),
		UserAgent:    userAgent,
		SessionToken: token,
		Kind:         kind,
	}
}
