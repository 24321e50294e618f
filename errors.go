package authcore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthenticated means no credential was presented at all.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidToken covers every token failure: bad signature, malformed
	// payload, expiry, and a token type the route does not accept. The
	// message is deliberately opaque.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionInvalid means the token's session is revoked or expired.
	ErrSessionInvalid = errors.New("session revoked or expired")
	// ErrUserInactive means the user was deleted or deactivated after the
	// token was issued.
	ErrUserInactive = errors.New("user inactive or missing")
	// ErrForbidden means the caller is authenticated but lacks a required
	// role or permission.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials means the login email/password pair did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMFAVerificationFailed means a wrong TOTP or backup code; it does not
	// reveal which check failed.
	ErrMFAVerificationFailed = errors.New("mfa verification failed")
	// ErrMFAStateConflict means the MFA operation is invalid in the user's
	// current enrollment state, such as enabling when already enabled.
	ErrMFAStateConflict = errors.New("mfa state conflict")
	// ErrRefreshReuse means a refresh token was presented after it had
	// already been rotated; the session is revoked as a precaution.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrEngineNotReady means a method was called on an unbuilt engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrDirectoryUnavailable wraps user-directory backend failures.
	ErrDirectoryUnavailable = errors.New("user directory unavailable")
)

// ForbiddenError carries the requirements the identity failed to meet.
// Enumerating them to an already-authenticated caller is acceptable;
// it unwraps to [ErrForbidden].
type ForbiddenError struct {
	MissingRoles       []string
	MissingPermissions []string
}

func (e *ForbiddenError) Error() string {
	var b strings.Builder
	b.WriteString("forbidden")
	if len(e.MissingRoles) > 0 {
		fmt.Fprintf(&b, ": requires any of roles [%s]", strings.Join(e.MissingRoles, ", "))
	}
	if len(e.MissingPermissions) > 0 {
		fmt.Fprintf(&b, ": missing permissions [%s]", strings.Join(e.MissingPermissions, ", "))
	}
	return b.String()
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }
