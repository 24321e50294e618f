// Package token signs and verifies the bearer credentials accepted by the
// engine: full access tokens, refresh tokens, and the narrowly-scoped
// mfa_setup / mfa_challenge credentials issued while a login is paused on a
// second factor.
//
// # Opaque failure
//
// [Manager.Parse] collapses every verification failure — bad signature,
// malformed payload, expired, wrong issuer or audience, unknown type — into
// [ErrInvalid]. Callers and clients never learn which check failed.
//
// # Trust boundary
//
// The signature proves the payload was issued by this system, nothing more.
// Role and permission claims inside an access token are advisory; the engine
// re-reads them from the credential directory before any authorization
// decision.
//
// # What this package must NOT do
//
//   - Decide authorization or consult any store.
//   - Accept the "none" algorithm or a method other than the configured one.
package token
