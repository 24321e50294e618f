package authcore

import (
	"context"
	"errors"

	"github.com/clinicore/authcore/internal/audit"
	"github.com/clinicore/authcore/permission"
	"github.com/clinicore/authcore/token"
)

// TokenType aliases the token package's type so callers wiring routes do not
// need a second import.
type TokenType = token.Type

const (
	TokenAccess       = token.TypeAccess
	TokenRefresh      = token.TypeRefresh
	TokenMFASetup     = token.TypeMFASetup
	TokenMFAChallenge = token.TypeMFAChallenge
)

// AuditEvent and AuditSink re-export the audit package's event model for
// callers supplying their own sink.
type (
	AuditEvent = audit.Event
	AuditSink  = audit.Sink
)

// Identity is the request-scoped result of authentication. It is built once
// per request from verified data, read by the guards, and discarded at
// request end. For mfa_setup and mfa_challenge tokens only UserID, Email and
// SessionID are populated; roles and permissions stay empty so such requests
// can never pass an authorization-gated guard.
type Identity struct {
	UserID       string
	Email        string
	FirstName    string
	LastName     string
	Roles        []string
	Permissions  []string
	SessionID    string
	DepartmentID string
	EmployeeID   string
	TokenType    TokenType
	MFAVerified  bool
}

// HasRole reports whether the identity holds the exact role code.
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity holds at least one of the roles.
// An empty requirement passes.
func (id *Identity) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if id.HasRole(r) {
			return true
		}
	}
	return false
}

// HasPermission reports whether any held permission matches the required
// one under wildcard rules.
func (id *Identity) HasPermission(required string) bool {
	return permission.HasPermission(id.Permissions, required)
}

// HasAllPermissions requires every listed permission to be satisfied.
func (id *Identity) HasAllPermissions(required ...string) bool {
	return permission.HasAll(id.Permissions, required)
}

// HasAnyPermission requires at least one listed permission to be satisfied.
func (id *Identity) HasAnyPermission(required ...string) bool {
	return permission.HasAny(id.Permissions, required)
}

// MissingPermissions returns the required permissions the identity does not
// satisfy, in input order.
func (id *Identity) MissingPermissions(required ...string) []string {
	return permission.Missing(id.Permissions, required)
}

// RouteAuth is the declarative metadata guards evaluate for a route.
// The zero value means: authentication required, access tokens only, no
// role or permission constraints.
type RouteAuth struct {
	// Public skips authentication entirely.
	Public bool
	// Roles the identity must hold ANY of. Nil means no constraint.
	Roles []string
	// Permissions the identity must hold ALL of. Nil means no constraint.
	Permissions []string
	// TokenTypes this route accepts. Nil means access tokens only.
	TokenTypes []TokenType
}

// AcceptedTypes returns the route's accepted token set, defaulting to
// access-only.
func (r RouteAuth) AcceptedTypes() []TokenType {
	if len(r.TokenTypes) == 0 {
		return []TokenType{TokenAccess}
	}
	return r.TokenTypes
}

// Accepts reports whether the route accepts the token type.
func (r RouteAuth) Accepts(t TokenType) bool {
	for _, accepted := range r.AcceptedTypes() {
		if accepted == t {
			return true
		}
	}
	return false
}

// MergeRouteAuth combines group-level and handler-level metadata. Handler
// fields take precedence when set; nil slices inherit from the group.
func MergeRouteAuth(group, handler RouteAuth) RouteAuth {
	merged := group
	if handler.Public {
		merged.Public = true
	}
	if handler.Roles != nil {
		merged.Roles = handler.Roles
	}
	if handler.Permissions != nil {
		merged.Permissions = handler.Permissions
	}
	if handler.TokenTypes != nil {
		merged.TokenTypes = handler.TokenTypes
	}
	return merged
}

// ErrUserNotFound is returned by UserDirectory implementations when no user
// exists for the given key.
var ErrUserNotFound = errors.New("user not found")

// UserRecord is the directory's view of a user. MFASecret and
// PendingMFASecret are raw TOTP secrets; backup codes are stored only as
// per-user salted SHA-256 hashes.
type UserRecord struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	IsActive     bool
	DepartmentID string
	EmployeeID   string

	PasswordHash string

	MFAEnabled       bool
	MFASecret        []byte
	PendingMFASecret []byte
	BackupCodeHashes []string
}

// RoleRecord is a role assignment as reported by the directory. Directories
// apply time-bounded assignment windows themselves; IsActive reflects the
// role's own activation flag.
type RoleRecord struct {
	Code     string
	Name     string
	IsActive bool
}

// UserDirectory is the credential-store port. Lookups are read-only; the
// MFA mutations below are the only writes the engine performs through it.
//
// ConsumeBackupCode must be atomic: when two requests race to consume the
// same hash, exactly one may observe true.
type UserDirectory interface {
	FindUserByID(ctx context.Context, id string) (*UserRecord, error)
	FindUserByEmail(ctx context.Context, email string) (*UserRecord, error)

	// RolesAndPermissions returns the user's live role assignments and the
	// derived permission strings. Called on every authenticated request;
	// results are never cached beyond the request.
	RolesAndPermissions(ctx context.Context, userID string) ([]RoleRecord, []string, error)

	// SetPendingMFA stores a generated secret and backup-code hashes without
	// activating them; ActivateMFA promotes the pending set and flips
	// MFAEnabled; ClearMFA wipes both pending and active material.
	SetPendingMFA(ctx context.Context, userID string, secret []byte, backupCodeHashes []string) error
	ActivateMFA(ctx context.Context, userID string) error
	ClearMFA(ctx context.Context, userID string) error
	ReplaceBackupCodes(ctx context.Context, userID string, backupCodeHashes []string) error
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)
}

// PasswordVerifier checks a plaintext password against a stored hash.
// A mismatch is (false, nil); only malformed hashes are errors.
type PasswordVerifier interface {
	Verify(password, encodedHash string) (bool, error)
}

// LoginStatus tells the caller what the login produced.
type LoginStatus int

const (
	// LoginOK: full access+refresh pair and a new session.
	LoginOK LoginStatus = iota
	// LoginMFARequired: MFA is enabled; an mfa_challenge token was issued
	// and no session exists yet.
	LoginMFARequired
	// LoginMFASetupRequired: the user's role mandates MFA but none is
	// enrolled; an mfa_setup token was issued and no session exists yet.
	LoginMFASetupRequired
)

// LoginResult carries the outcome of Login and the MFA completion calls.
type LoginResult struct {
	Status       LoginStatus
	AccessToken  string
	RefreshToken string
	// MFAToken is set for LoginMFARequired / LoginMFASetupRequired.
	MFAToken  string
	SessionID string
	UserID    string
}

// MFAEnrollment is returned by EnableMFA: everything the user needs to
// finish setup. Backup codes appear in plaintext exactly once, here.
type MFAEnrollment struct {
	Secret          string
	BackupCodes     []string
	ProvisioningURI string
}

// MetricID addresses one engine counter or histogram.
type MetricID int

const (
	MetricAuthenticateSuccess MetricID = iota
	MetricAuthenticateFailure
	MetricAccessGranted
	MetricRoleDenied
	MetricPermissionDenied
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginMFARequired
	MetricLoginMFASetupRequired
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricTOTPSuccess
	MetricTOTPFailure
	MetricMFAEnabled
	MetricMFADisabled
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodeRegenerated
	MetricSessionCreated
	MetricSessionRevoked
	MetricLogout
	MetricLogoutAll

	metricCounterCount
)

// Histogram IDs occupy their own space.
const (
	MetricAuthenticateLatency MetricID = iota

	metricHistogramCount
)

// MetricsSnapshot is a point-in-time copy of all engine metrics, consumed by
// the exporters in metrics/export. Histogram buckets are non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}
