package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/authcore/session"
	"github.com/clinicore/authcore/token"
)

// LoginOptions carries per-login request metadata recorded on the session.
type LoginOptions struct {
	DeviceInfo string
	IPAddress  string
}

// Login verifies the password and either completes the login with a full
// token pair and a session, or pauses it:
//
//   - MFA enrolled: an mfa_challenge token is issued, no session yet; the
//     client follows up with VerifyMFALogin.
//   - MFA mandated by role but not enrolled: an mfa_setup token is issued,
//     no session yet; the client follows up with EnableMFA and
//     VerifyMFASetupAndCompleteLogin.
//
// Wrong email and wrong password collapse to the same ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password string, opts LoginOptions) (*LoginResult, error) {
	if e == nil || !e.ready {
		return nil, ErrEngineNotReady
	}

	user, err := e.directory.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.count(MetricLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if !user.IsActive {
		e.count(MetricLoginFailure)
		e.auditLogin(ctx, user.ID, opts, false, "user inactive")
		return nil, ErrUserInactive
	}

	ok, err := e.passwords.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.count(MetricLoginFailure)
		e.auditLogin(ctx, user.ID, opts, false, "wrong password")
		return nil, ErrInvalidCredentials
	}

	// The pending session ID rides inside the MFA token so the session
	// created on completion matches what the token announced.
	pendingSessionID := uuid.NewString()

	if user.MFAEnabled {
		mfaToken, err := e.tokens.CreateMFA(TokenMFAChallenge, user.ID, user.Email, pendingSessionID, e.config.MFA.ChallengeTTL)
		if err != nil {
			return nil, err
		}
		e.count(MetricLoginMFARequired)
		return &LoginResult{
			Status:    LoginMFARequired,
			MFAToken:  mfaToken,
			SessionID: pendingSessionID,
			UserID:    user.ID,
		}, nil
	}

	if required, err := e.mfaMandatedByRole(ctx, user.ID); err != nil {
		return nil, err
	} else if required {
		mfaToken, err := e.tokens.CreateMFA(TokenMFASetup, user.ID, user.Email, pendingSessionID, e.config.MFA.SetupTTL)
		if err != nil {
			return nil, err
		}
		e.count(MetricLoginMFASetupRequired)
		return &LoginResult{
			Status:    LoginMFASetupRequired,
			MFAToken:  mfaToken,
			SessionID: pendingSessionID,
			UserID:    user.ID,
		}, nil
	}

	return e.completeLogin(ctx, user, pendingSessionID, opts, false)
}

func (e *Engine) mfaMandatedByRole(ctx context.Context, userID string) (bool, error) {
	if len(e.config.MFA.RequiredRoles) == 0 {
		return false, nil
	}
	roleRecs, _, err := e.directory.RolesAndPermissions(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	for _, r := range roleRecs {
		if !r.IsActive {
			continue
		}
		for _, required := range e.config.MFA.RequiredRoles {
			if r.Code == required {
				return true, nil
			}
		}
	}
	return false, nil
}

// completeLogin mints the access+refresh pair and persists the session.
// Shared by Login, VerifyMFALogin, and VerifyMFASetupAndCompleteLogin.
func (e *Engine) completeLogin(ctx context.Context, user *UserRecord, sessionID string, opts LoginOptions, mfaVerified bool) (*LoginResult, error) {
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

	accessToken, err := e.tokens.CreateAccess(token.AccessParams{
		UserID:      user.ID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Roles:       roles,
		Permissions: perms,
		SessionID:   sessionID,
		MFAVerified: mfaVerified,
	})
	if err != nil {
		return nil, err
	}
	refreshToken, err := e.tokens.CreateRefresh(user.ID, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &session.Session{
		ID:               sessionID,
		UserID:           user.ID,
		AccessTokenHash:  session.HashToken(accessToken),
		RefreshTokenHash: session.HashToken(refreshToken),
		DeviceInfo:       opts.DeviceInfo,
		IPAddress:        opts.IPAddress,
		StartedAt:        now.Unix(),
		LastActivityAt:   now.Unix(),
		ExpiresAt:        now.Add(e.config.Session.Lifetime).Unix(),
		MFAVerified:      mfaVerified,
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	e.count(MetricLoginSuccess)
	e.count(MetricSessionCreated)
	e.auditLogin(ctx, user.ID, opts, true, "")

	return &LoginResult{
		Status:       LoginOK,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
		UserID:       user.ID,
	}, nil
}

// Refresh rotates the token pair. The presented refresh token must be the
// one most recently issued for the session; a stale one is treated as reuse,
// the session is revoked, and ErrRefreshReuse is returned.
func (e *Engine) Refresh(ctx context.Context, rawRefreshToken string) (*LoginResult, error) {
	if e == nil || !e.ready {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(rawRefreshToken)
	if err != nil || claims.TokenType != TokenRefresh {
		e.count(MetricRefreshFailure)
		return nil, ErrInvalidToken
	}

	user, err := e.directory.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.count(MetricRefreshFailure)
			return nil, ErrUserInactive
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if !user.IsActive {
		e.count(MetricRefreshFailure)
		return nil, ErrUserInactive
	}

	// Mint the replacement pair first so the rotation can swap both hashes
	// in one atomic step.
	return e.rotateTokens(ctx, user, claims.SessionID, session.HashToken(rawRefreshToken))
}

func (e *Engine) rotateTokens(ctx context.Context, user *UserRecord, sessionID, presentedHash string) (*LoginResult, error) {
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

	current, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.count(MetricRefreshFailure)
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	accessToken, err := e.tokens.CreateAccess(token.AccessParams{
		UserID:      user.ID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Roles:       roles,
		Permissions: perms,
		SessionID:   sessionID,
		MFAVerified: current.MFAVerified,
	})
	if err != nil {
		return nil, err
	}
	refreshToken, err := e.tokens.CreateRefresh(user.ID, sessionID)
	if err != nil {
		return nil, err
	}

	_, err = e.sessions.RotateRefreshHash(ctx, sessionID, presentedHash,
		session.HashToken(refreshToken), session.HashToken(accessToken))
	switch {
	case err == nil:
	case errors.Is(err, session.ErrRefreshMismatch):
		// Someone replayed an already-rotated refresh token. Kill the
		// session so neither party keeps access.
		_ = e.sessions.Revoke(ctx, sessionID, user.ID, "refresh token reuse")
		e.count(MetricRefreshReuseDetected)
		e.count(MetricSessionRevoked)
		e.emit(ctx, AuditEvent{
			Timestamp: time.Now(),
			Action:    AuditRefreshReuse,
			UserID:    user.ID,
			SessionID: sessionID,
			Success:   false,
			Error:     "refresh token reuse detected",
		})
		return nil, ErrRefreshReuse
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrNotActive):
		e.count(MetricRefreshFailure)
		return nil, ErrSessionInvalid
	default:
		return nil, err
	}

	e.count(MetricRefreshSuccess)
	e.emit(ctx, AuditEvent{
		Timestamp: time.Now(),
		Action:    AuditTokenRefresh,
		UserID:    user.ID,
		SessionID: sessionID,
		Success:   true,
	})

	return &LoginResult{
		Status:       LoginOK,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
		UserID:       user.ID,
	}, nil
}

// Logout revokes the identity's session.
func (e *Engine) Logout(ctx context.Context, id *Identity) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	if id == nil || id.SessionID == "" {
		return ErrUnauthenticated
	}

	err := e.sessions.Revoke(ctx, id.SessionID, id.UserID, "logout")
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}

	e.count(MetricLogout)
	e.count(MetricSessionRevoked)
	e.emit(ctx, AuditEvent{
		Timestamp: time.Now(),
		Action:    AuditLogout,
		UserID:    id.UserID,
		SessionID: id.SessionID,
		Success:   true,
	})
	return nil
}

// LogoutAll revokes every session of the identity's user. With keepCurrent
// set, the session behind this request survives.
func (e *Engine) LogoutAll(ctx context.Context, id *Identity, keepCurrent bool) (int, error) {
	if e == nil || !e.ready {
		return 0, ErrEngineNotReady
	}
	if id == nil || id.UserID == "" {
		return 0, ErrUnauthenticated
	}

	except := ""
	if keepCurrent {
		except = id.SessionID
	}
	revoked, err := e.sessions.RevokeAllForUser(ctx, id.UserID, except, id.UserID, "logout all")
	if err != nil {
		return revoked, err
	}

	e.count(MetricLogoutAll)
	e.metrics.Add(int(MetricSessionRevoked), uint64(revoked))
	e.emit(ctx, AuditEvent{
		Timestamp: time.Now(),
		Action:    AuditLogoutAll,
		UserID:    id.UserID,
		SessionID: id.SessionID,
		Success:   true,
	})
	return revoked, nil
}

func (e *Engine) auditLogin(ctx context.Context, userID string, opts LoginOptions, success bool, reason string) {
	e.emit(ctx, AuditEvent{
		Timestamp: time.Now(),
		Action:    AuditLogin,
		UserID:    userID,
		IP:        opts.IPAddress,
		Success:   success,
		Error:     reason,
		Metadata:  loginMetadata(opts),
	})
}

func loginMetadata(opts LoginOptions) map[string]string {
	if opts.DeviceInfo == "" {
		return nil
	}
	return map[string]string{"device": opts.DeviceInfo}
}
