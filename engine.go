package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicore/authcore/internal/audit"
	"github.com/clinicore/authcore/internal/metrics"
	"github.com/clinicore/authcore/session"
	"github.com/clinicore/authcore/token"
)

// Engine is the authorization core. Construct via [Builder.Build]; all
// methods are safe for concurrent use.
type Engine struct {
	config    Config
	tokens    *token.Manager
	sessions  *session.Store
	directory UserDirectory
	passwords PasswordVerifier
	totp      *totpManager
	auditor   *audit.Dispatcher
	metrics   *metrics.Registry
	ready     bool
}

// Authenticate verifies a raw bearer token against the route's accepted
// token types and rebuilds the request identity.
//
// Access tokens get the full treatment: live user lookup, role/permission
// re-fetch (embedded claims are never trusted for authorization), and a
// session liveness check. MFA setup/challenge tokens yield a minimal
// identity with no roles or permissions. A refresh token is never a request
// credential.
//
// Every failure path maps to a 401-class sentinel; a directory or registry
// timeout surfaces as an error, never as an allow.
func (e *Engine) Authenticate(ctx context.Context, rawToken string, route RouteAuth) (*Identity, error) {
	if e == nil || !e.ready {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.observe(MetricAuthenticateLatency, time.Since(start))
	}()

	if rawToken == "" {
		e.count(MetricAuthenticateFailure)
		return nil, ErrUnauthenticated
	}

	claims, err := e.tokens.Parse(rawToken)
	if err != nil {
		e.count(MetricAuthenticateFailure)
		return nil, ErrInvalidToken
	}

	if !route.Accepts(claims.TokenType) {
		// A partially-authenticated MFA credential must never be
		// treated as an access token, and vice versa.
		e.count(MetricAuthenticateFailure)
		return nil, fmt.Errorf("%w: endpoint requires a full access token", ErrInvalidToken)
	}

	switch claims.TokenType {
	case TokenMFASetup, TokenMFAChallenge:
		e.count(MetricAuthenticateSuccess)
		return &Identity{
			UserID:    claims.Subject,
			Email:     claims.Email,
			SessionID: claims.SessionID,
			TokenType: claims.TokenType,
		}, nil
	case TokenAccess:
		id, err := e.buildAccessIdentity(ctx, claims)
		if err != nil {
			e.count(MetricAuthenticateFailure)
			return nil, err
		}
		e.count(MetricAuthenticateSuccess)
		return id, nil
	default:
		e.count(MetricAuthenticateFailure)
		return nil, ErrInvalidToken
	}
}

func (e *Engine) buildAccessIdentity(ctx context.Context, claims *token.Claims) (*Identity, error) {
	user, err := e.directory.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserInactive
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	sess, err := e.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	if sess.UserID != user.ID || !sess.Active(time.Now()) {
		return nil, ErrSessionInvalid
	}

	roleRecs, perms, err := e.directory.RolesAndPermissions(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	roles := make([]string, 0, len(roleRecs))
	for _, r := range roleRecs {
		if r.IsActive {
			roles = append(roles, r.Code)
		}
	}

	// Best effort; activity tracking must not fail the request.
	_ = e.sessions.Touch(ctx, sess.ID)

	return &Identity{
		UserID:       user.ID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Roles:        roles,
		Permissions:  perms,
		SessionID:    sess.ID,
		DepartmentID: user.DepartmentID,
		EmployeeID:   user.EmployeeID,
		TokenType:    TokenAccess,
		MFAVerified:  sess.MFAVerified,
	}, nil
}

// CheckAccess runs the role guard, then the permission guard, against the
// route's declared requirements. The role guard passes on ANY declared role;
// the permission guard requires ALL declared permissions. resource labels
// the audit event, conventionally "<METHOD> <path>".
//
// The outcome is audited asynchronously; audit delivery never delays or
// fails the decision.
func (e *Engine) CheckAccess(ctx context.Context, id *Identity, route RouteAuth, resource string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	if id == nil {
		return ErrUnauthenticated
	}

	if len(route.Roles) > 0 && !id.HasAnyRole(route.Roles...) {
		e.count(MetricRoleDenied)
		e.auditAccess(ctx, id, resource, false, "missing required role")
		return &ForbiddenError{MissingRoles: append([]string(nil), route.Roles...)}
	}

	if missing := id.MissingPermissions(route.Permissions...); len(missing) > 0 {
		e.count(MetricPermissionDenied)
		e.auditAccess(ctx, id, resource, false, "missing required permissions")
		return &ForbiddenError{MissingPermissions: missing}
	}

	e.count(MetricAccessGranted)
	if len(route.Roles) > 0 || len(route.Permissions) > 0 {
		e.auditAccess(ctx, id, resource, true, "")
	}
	return nil
}

func (e *Engine) auditAccess(ctx context.Context, id *Identity, resource string, success bool, reason string) {
	e.emit(ctx, AuditEvent{
		Timestamp:    time.Now(),
		Action:       AuditPermissionCheck,
		UserID:       id.UserID,
		SessionID:    id.SessionID,
		ResourceType: "Route",
		ResourceID:   resource,
		Success:      success,
		Error:        reason,
	})
}

// TokenCookieName is the cookie the middleware checks before the
// Authorization header.
func (e *Engine) TokenCookieName() string {
	return e.config.Token.CookieName
}

// MetricsSnapshot copies all engine metrics for the exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{}
	}
	raw := e.metrics.Snapshot()

	snap := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, len(raw.Counters)),
		Histograms: make(map[MetricID][]uint64, len(raw.Histograms)),
	}
	for i, v := range raw.Counters {
		snap.Counters[MetricID(i)] = v
	}
	for i, buckets := range raw.Histograms {
		snap.Histograms[MetricID(i)] = append([]uint64(nil), buckets[:]...)
	}
	return snap
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.auditor.Dropped()
}

// Close drains the audit dispatcher. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.auditor.Close()
}

func (e *Engine) count(id MetricID) {
	e.metrics.Inc(int(id))
}

func (e *Engine) observe(id MetricID, d time.Duration) {
	e.metrics.Observe(int(id), d.Seconds())
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	e.auditor.Emit(ctx, event)
}
