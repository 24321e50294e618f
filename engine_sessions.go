package authcore

import (
	"context"
	"time"

	"github.com/clinicore/authcore/session"
)

// Sessions returns every retained session record for the user, revoked and
// expired ones included.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]*session.Session, error) {
	if e == nil || !e.ready {
		return nil, ErrEngineNotReady
	}
	return e.sessions.SessionsForUser(ctx, userID)
}

// ActiveSessions filters Sessions down to currently live ones.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	all, err := e.Sessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	active := all[:0]
	for _, s := range all {
		if s.Active(now) {
			active = append(active, s)
		}
	}
	return active, nil
}

// RevokeSession is the administrative kill switch for a single session.
// Once it returns, no new request may observe the session as active.
func (e *Engine) RevokeSession(ctx context.Context, sessionID, revokedBy, reason string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	if err := e.sessions.Revoke(ctx, sessionID, revokedBy, reason); err != nil {
		return err
	}

	e.count(MetricSessionRevoked)
	e.emit(ctx, AuditEvent{
		Timestamp:    time.Now(),
		Action:       AuditSessionRevoked,
		SessionID:    sessionID,
		ResourceType: "Session",
		ResourceID:   sessionID,
		Success:      true,
		Metadata:     map[string]string{"revoked_by": revokedBy, "reason": reason},
	})
	return nil
}

// RevokeAllForUser revokes every session of a user, optionally sparing one.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID, exceptSessionID, revokedBy, reason string) (int, error) {
	if e == nil || !e.ready {
		return 0, ErrEngineNotReady
	}
	revoked, err := e.sessions.RevokeAllForUser(ctx, userID, exceptSessionID, revokedBy, reason)
	if err != nil {
		return revoked, err
	}
	e.metrics.Add(int(MetricSessionRevoked), uint64(revoked))
	return revoked, nil
}

// SweepExpiredSessions prunes index entries whose records have lapsed past
// the retention window. Run it periodically; record deletion itself is
// handled by Redis TTLs.
func (e *Engine) SweepExpiredSessions(ctx context.Context) (int, error) {
	if e == nil || !e.ready {
		return 0, ErrEngineNotReady
	}
	return e.sessions.SweepExpired(ctx)
}
