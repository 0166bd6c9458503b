package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	vaultgate "github.com/shopworks/vaultgate"
)

// Cookie names read by the gate.
const (
	// MFAMarkerCookie holds the MFA-completion marker minted by
	// Engine.IssueMFAMarker.
	MFAMarkerCookie = "vg_mfa"
	// ImpersonationCookie holds a signed admin:target impersonation token.
	// Path-scoped and short-lived by cookie attributes only; the token
	// itself carries no expiry.
	ImpersonationCookie = "vg_impersonate"
)

// Policy configures the gate for one deployment.
type Policy struct {
	// SessionIdentity resolves the authenticated identity id from the
	// request (session cookie, bearer token, whatever the business layer
	// owns). ok=false means unauthenticated.
	SessionIdentity func(r *http.Request) (identityID string, ok bool)

	// PublicPaths are served without authentication (prefix match).
	PublicPaths []string
	// WebhookPaths receive external POSTs and are exempt from the
	// cross-origin check (prefix match). They are NOT exempt from
	// signature verification, which the handler performs.
	WebhookPaths []string
	// AdminPaths require RoleAdmin (prefix match).
	AdminPaths []string
	// APIPrefix distinguishes JSON-error routes from redirecting page
	// routes. Default "/api/".
	APIPrefix string

	// Redirect targets for page routes.
	LoginPath          string // default "/login"
	ChangePasswordPath string // default "/account/password"
	MFAPath            string // default "/login/mfa"
}

type identityContextKey struct{}

// GateIdentity is the resolved identity attached to the request context,
// with impersonation already applied.
type GateIdentity struct {
	Identity      *vaultgate.Identity
	Impersonating bool
	ActorID       string // the real admin when Impersonating
}

// IdentityFromContext returns the gate-resolved identity.
func IdentityFromContext(ctx context.Context) (*GateIdentity, bool) {
	gi, ok := ctx.Value(identityContextKey{}).(*GateIdentity)
	return gi, ok
}

// Gate builds the access-control middleware. Checks run in a fixed order
// and short-circuit on the first failure.
func Gate(engine *vaultgate.Engine, policy Policy) func(http.Handler) http.Handler {
	policy = withDefaults(policy)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || policy.SessionIdentity == nil {
				deny(w, r, policy, http.StatusUnauthorized, "unauthorized")
				return
			}

			// (1) Cross-origin state changes, except external webhooks.
			if isStateChanging(r.Method) && !matchesPrefix(r.URL.Path, policy.WebhookPaths) {
				if !sameOrigin(r) {
					deny(w, r, policy, http.StatusForbidden, "cross-origin request rejected")
					return
				}
			}

			// (2) Public paths need no identity.
			if matchesPrefix(r.URL.Path, policy.PublicPaths) || matchesPrefix(r.URL.Path, policy.WebhookPaths) {
				next.ServeHTTP(w, r)
				return
			}

			// (3) Everything else requires an authenticated identity.
			identityID, ok := policy.SessionIdentity(r)
			if !ok {
				unauthorized(w, r, policy)
				return
			}
			identity, err := engine.Identities().IdentityByID(r.Context(), identityID)
			if err != nil || identity == nil {
				unauthorized(w, r, policy)
				return
			}

			// (4) A pending forced password change locks the account to
			// the change-password flow.
			if identity.MustChangePassword && !strings.HasPrefix(r.URL.Path, policy.ChangePasswordPath) {
				restrict(w, r, policy, policy.ChangePasswordPath, "password change required")
				return
			}

			// (5) MFA-required identities must present a valid completion
			// marker for this identity, except on the verification flow.
			if identity.MFAEnabled && !strings.HasPrefix(r.URL.Path, policy.MFAPath) {
				if !hasValidMFAMarker(engine, r, identity.ID) {
					restrict(w, r, policy, policy.MFAPath, "mfa verification required")
					return
				}
			}

			// (6) Disabled accounts are rejected even with an otherwise
			// valid session.
			if identity.Disabled {
				engine.RecordDisabledAccess(identity.ID, remoteAddr(r))
				deny(w, r, policy, http.StatusForbidden, "account disabled")
				return
			}

			// (7) Administrative paths require the elevated role.
			if matchesPrefix(r.URL.Path, policy.AdminPaths) && identity.Role != vaultgate.RoleAdmin {
				deny(w, r, policy, http.StatusForbidden, "forbidden")
				return
			}

			gi := &GateIdentity{Identity: identity}

			// An impersonation cookie swaps the effective identity to the
			// target, provided the token binds to the acting admin. An
			// invalid cookie is ignored: acting as yourself is the safe
			// fallback.
			if cookie, cErr := r.Cookie(ImpersonationCookie); cErr == nil && identity.Role == vaultgate.RoleAdmin {
				if targetID, vErr := engine.VerifyImpersonation(cookie.Value, identity.ID); vErr == nil {
					if target, tErr := engine.Identities().IdentityByID(r.Context(), targetID); tErr == nil && target != nil && !target.Disabled {
						gi = &GateIdentity{Identity: target, Impersonating: true, ActorID: identity.ID}
					}
				}
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, gi)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewMFAMarkerCookie wraps a minted marker in its required attributes:
// HTTP-only, strict same-site, multi-day lifetime.
func NewMFAMarkerCookie(marker string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     MFAMarkerCookie,
		Value:    marker,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// NewImpersonationCookie wraps a signed impersonation token: HTTP-only,
// strict same-site, short-lived, path-scoped.
func NewImpersonationCookie(token, path string, maxAge int) *http.Cookie {
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     ImpersonationCookie,
		Value:    token,
		Path:     path,
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func withDefaults(policy Policy) Policy {
	if policy.APIPrefix == "" {
		policy.APIPrefix = "/api/"
	}
	if policy.LoginPath == "" {
		policy.LoginPath = "/login"
	}
	if policy.ChangePasswordPath == "" {
		policy.ChangePasswordPath = "/account/password"
	}
	if policy.MFAPath == "" {
		policy.MFAPath = "/login/mfa"
	}
	return policy
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// sameOrigin accepts requests without an Origin header (non-browser
// clients) and requests whose Origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}

func hasValidMFAMarker(engine *vaultgate.Engine, r *http.Request, identityID string) bool {
	cookie, err := r.Cookie(MFAMarkerCookie)
	if err != nil {
		return false
	}
	markedID, err := engine.VerifyMFAMarker(cookie.Value)
	return err == nil && markedID == identityID
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isAPIRoute(r *http.Request, policy Policy) bool {
	return strings.HasPrefix(r.URL.Path, policy.APIPrefix)
}

func remoteAddr(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

// unauthorized answers check (3): JSON 401 for API routes, login redirect
// for pages.
func unauthorized(w http.ResponseWriter, r *http.Request, policy Policy) {
	if isAPIRoute(r, policy) {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	http.Redirect(w, r, policy.LoginPath, http.StatusFound)
}

// restrict answers checks (4) and (5): the account may only reach the named
// flow until it completes.
func restrict(w http.ResponseWriter, r *http.Request, policy Policy, flowPath, message string) {
	if isAPIRoute(r, policy) {
		writeJSONError(w, http.StatusForbidden, message)
		return
	}
	http.Redirect(w, r, flowPath, http.StatusFound)
}

// deny rejects outright: JSON error for API routes, login redirect for
// pages.
func deny(w http.ResponseWriter, r *http.Request, policy Policy, status int, message string) {
	if isAPIRoute(r, policy) {
		writeJSONError(w, status, message)
		return
	}
	http.Redirect(w, r, policy.LoginPath, http.StatusFound)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// WriteRateLimited renders the standard 429 with a Retry-After header from
// a *vaultgate.RateLimitError. Handlers call it when an engine operation
// reports ErrRateLimited.
func WriteRateLimited(w http.ResponseWriter, err *vaultgate.RateLimitError) {
	w.Header().Set("Retry-After", strconv.Itoa(err.RetryAfterSeconds()))
	writeJSONError(w, http.StatusTooManyRequests, "rate limited")
}
