// Package middleware binds requests to an account and throttles them.
//
// Ordering (outer to inner):
//
//  1. SessionMiddleware - resolves the session and stores it in the context
//  2. RateLimitMiddleware - keys the limit by the session's account id
//
// Example:
//
//	router.Use(middleware.SessionMiddleware(provider, logger))
//	router.Use(middleware.NewRateLimitMiddleware(limiter, logger).Handler)
//
// Routes that must work without a session (health, metrics, the OIDC
// login flow) are registered outside the subrouter carrying these.
package middleware
