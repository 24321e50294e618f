// Package authcore is an authorization and session-validation engine for
// clinic and practice management services: bearer-token classification,
// request-scoped identity reconstruction, role and wildcard-permission
// guards, a Redis-backed session registry, and a TOTP/backup-code MFA
// lifecycle.
//
// An [Engine] is assembled once at startup through the [Builder]:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithUserDirectory(directory).
//		Build()
//
// On every request the HTTP middleware (or a custom transport) calls
// [Engine.Authenticate] to turn the raw bearer token into an [Identity],
// then [Engine.CheckAccess] to enforce the route's [RouteAuth] metadata.
// Identity claims embedded in tokens are advisory only; roles, permissions
// and session liveness are re-checked against the live backends on every
// call, so a revocation is visible to the very next request.
//
// Security decisions fail closed: any parse, lookup or timeout failure on
// the authentication path surfaces as an error, never as an allow.
package authcore
