package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/trialsite/siteaccess/pkg/access"
	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/httputil"
	"github.com/trialsite/siteaccess/pkg/middleware"
	"github.com/trialsite/siteaccess/pkg/observability"
	"github.com/trialsite/siteaccess/pkg/signatures"
)

// DefaultMaxBodyBytes caps request bodies when Deps.MaxBodyBytes is unset
const DefaultMaxBodyBytes int64 = 1 << 20

// Deps are the components the HTTP API is built from
type Deps struct {
	Catalog    *access.Catalog
	Authz      *access.Authorizer
	Signatures *signatures.Service // optional

	Tokens    middleware.TokenValidator
	Directory auth.Directory // optional; overrides token claims for known principals
	RateLimit *middleware.RateLimitMiddleware // optional

	Metrics *observability.Metrics // optional
	Logger  *observability.Logger

	CORSOrigins   []string
	MaxBodyBytes  int64
	WebhookSecret string
}

// NewRouter builds the API handler. The signature webhook is served without
// a bearer token; every other route requires one.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	router := mux.NewRouter()
	if deps.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	var sigHandlers *signatures.Handlers
	if deps.Signatures != nil {
		sigHandlers = signatures.NewHandlers(deps.Signatures, deps.WebhookSecret)
		sigHandlers.RegisterWebhook(router)
	}

	validator := deps.Tokens
	if deps.Directory != nil {
		validator = &directoryValidator{next: validator, directory: deps.Directory}
	}

	authed := router.PathPrefix("/").Subrouter()
	authed.Use(middleware.NewAuthMiddleware(validator).Handler)
	if deps.RateLimit != nil {
		authed.Use(deps.RateLimit.Handler)
	}

	access.NewHandlers(deps.Authz).RegisterRoutes(authed)
	NewCatalogHandlers(deps.Catalog).RegisterRoutes(authed)
	if sigHandlers != nil {
		sigHandlers.RegisterRoutes(authed)
	}

	maxBytes := deps.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(maxBytes),
	)(router)
	handler = otelhttp.NewHandler(handler, "trialsite-api")

	if len(deps.CORSOrigins) == 0 {
		return handler
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
	})
	return c.Handler(handler)
}

// NewHealthRouter serves liveness, readiness and Prometheus metrics
func NewHealthRouter(checker *observability.HealthChecker, registry *prometheus.Registry) http.Handler {
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, checker)
	if registry != nil {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods("GET")
	}
	return router
}

// directoryValidator replaces the token's role and active flag with the
// directory's record, so a deactivated user is refused before the token
// expires. Principals the directory does not know keep their claims.
type directoryValidator struct {
	next      middleware.TokenValidator
	directory auth.Directory
}

func (v *directoryValidator) ValidateToken(token string) (*auth.AuthContext, error) {
	authCtx, err := v.next.ValidateToken(token)
	if err != nil || authCtx == nil || authCtx.Principal == nil {
		return authCtx, err
	}

	known, ok, err := v.directory.Principal(context.Background(), authCtx.Principal.ID)
	if err != nil {
		return nil, err
	}
	if ok {
		if known.Username == "" {
			known.Username = authCtx.Principal.Username
		}
		authCtx.Principal = &known
	}
	return authCtx, nil
}
