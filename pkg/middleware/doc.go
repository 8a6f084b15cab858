// Package middleware provides HTTP middleware for bearer authentication and
// rate limiting.
//
// AuthMiddleware verifies the principal token issued by the identity
// service and stores the resulting *auth.AuthContext in the request context.
// Tokens for inactive principals are rejected with 401.
//
//	authMW := middleware.NewAuthMiddleware(tokenManager)
//	router.Use(authMW.Handler)
//	principal, ok := middleware.PrincipalFrom(r)
//
// RateLimitMiddleware counts requests per principal (or per client IP
// before authentication) in Redis so limits are shared between instances.
// When Redis is unavailable, or not configured, it falls back to an
// in-process token bucket.
//
//	rl := middleware.NewRateLimitMiddleware(redisClient, middleware.PerUserRateLimitConfig(), logger)
//	router.Use(rl.Handler)
package middleware
