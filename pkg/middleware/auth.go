package middleware

import (
	"net/http"
	"strings"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/contextkeys"
	"github.com/trialsite/siteaccess/pkg/httputil"
)

// TokenValidator verifies a bearer token. *auth.TokenManager implements it.
type TokenValidator interface {
	ValidateToken(token string) (*auth.AuthContext, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, r, "missing authorization header")
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.WriteUnauthorized(w, r, "invalid authorization header format")
			return
		}

		authCtx, err := m.validator.ValidateToken(parts[1])
		if err != nil || authCtx == nil || authCtx.Principal == nil {
			httputil.WriteUnauthorized(w, r, "invalid or expired token")
			return
		}
		if !authCtx.Principal.Active {
			httputil.WriteUnauthorized(w, r, "account is inactive")
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// PrincipalFrom returns the authenticated principal of the request
func PrincipalFrom(r *http.Request) (auth.Principal, bool) {
	authCtx := GetAuthContext(r)
	if authCtx == nil || authCtx.Principal == nil {
		return auth.Principal{}, false
	}
	return *authCtx.Principal, true
}

// RequireRole creates middleware that admits only the given roles
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil {
				httputil.WriteUnauthorized(w, r, "authentication required")
				return
			}
			if !authCtx.HasRole(roles...) {
				httputil.WriteForbidden(w, r, "insufficient role permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithAuthContext returns a copy of r carrying authCtx, for callers that
// authenticate by other means.
func WithAuthContext(r *http.Request, authCtx *auth.AuthContext) *http.Request {
	return r.WithContext(contextkeys.WithAuth(r.Context(), authCtx))
}
