package authcore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// EnableMFA starts enrollment for a user with MFA disabled: it generates a
// TOTP secret and a fresh set of single-use backup codes, persists both in
// pending (un-activated) state, and returns everything the user needs to
// finish setup. Enrollment completes only via VerifyMFASetup.
func (e *Engine) EnableMFA(ctx context.Context, userID string) (*MFAEnrollment, error) {
	if e == nil || !e.ready {
		return nil, ErrEngineNotReady
	}

	user, err := e.findLiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, fmt.Errorf("%w: mfa already enabled", ErrMFAStateConflict)
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	codes, hashes, err := e.newBackupCodes(userID)
	if err != nil {
		return nil, err
	}

	if err := e.directory.SetPendingMFA(ctx, userID, secret, hashes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	e.emit(ctx, AuditEvent{
		Timestamp: time.Now(),
		Action:    AuditMFAEnrollStarted,
		UserID:    userID,
		Success:   true,
	})

	return &MFAEnrollment{
		Secret:          secretBase32,
		BackupCodes:     codes,
		ProvisioningURI: e.totp.ProvisionURI(secretBase32, user.Email),
	}, nil
}

// VerifyMFASetup completes enrollment: the code must verify against the
// pending secret. On success MFA flips to enabled and every existing session
// of the user is revoked, forcing re-login under the new posture. A wrong
// code leaves the pending state untouched.
func (e *Engine) VerifyMFASetup(ctx context.Context, userID, code string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}

	user, err := e.findLiveUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAEnabled {
		return fmt.Errorf("%w: mfa already enabled", ErrMFAStateConflict)
	}
	if len(user.PendingMFASecret) == 0 {
		return fmt.Errorf("%w: no pending mfa enrollment", ErrMFAStateConflict)
	}

	ok, err := e.totp.VerifyCode(user.PendingMFASecret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		e.count(MetricTOTPFailure)
		e.auditMFA(ctx, userID, false, "setup code rejected")
		return ErrMFAVerificationFailed
	}

	if err := e.directory.ActivateMFA(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if _, err := e.sessions.RevokeAllForUser(ctx, userID, "", userID, "mfa enabled"); err != nil {
		return err
	}

	e.count(MetricTOTPSuccess)
	e.count(MetricMFAEnabled)
	e.emit(ctx, AuditEvent{
		Timestamp: time.Now(),
		Action:    AuditMFAEnabled,
		UserID:    userID,
		Success:   true,
	})
	return nil
}

// VerifyMFASetupAndCompleteLogin finishes an enrollment that paused a login
// because the user's role mandates MFA. The identity must come from an
// mfa_setup token; on success the login completes with a fresh token pair
// and a session carrying the pending session ID the token announced.
func (e *Engine) VerifyMFASetupAndCompleteLogin(ctx context.Context, id *Identity, code string, opts LoginOptions) (*LoginResult, error) {
	if e == nil || !e.ready {
		return nil, ErrEngineNotReady
	}
	if id == nil || id.TokenType != TokenMFASetup {
		return nil, ErrInvalidToken
	}

	if err := e.VerifyMFASetup(ctx, id.UserID, code); err != nil {
		return nil, err
	}

	user, err := e.findLiveUser(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	return e.completeLogin(ctx, user, id.SessionID, opts, true)
}

// DisableMFA turns MFA off for an enrolled user. Either a live TOTP code or
// an unused backup code authorizes the change; all secrets and remaining
// backup codes are wiped and every session is revoked.
func (e *Engine) DisableMFA(ctx context.Context, userID, code string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}

	user, err := e.findLiveUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return fmt.Errorf("%w: mfa not enabled", ErrMFAStateConflict)
	}

	ok, err := e.verifyTOTPOrBackupCode(ctx, user, code)
	if err != nil {
		return err
	}
	if !ok {
		e.auditMFA(ctx, userID, false, "disable code rejected")
		return ErrMFAVerificationFailed
	}

	if err := e.directory.ClearMFA(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if _, err := e.sessions.RevokeAllForUser(ctx, userID, "", userID, "mfa disabled"); err != nil {
		return err
	}

	e.count(MetricMFADisabled)
	e.emit(ctx, AuditEvent{
		Timestamp: time.Now(),
		Action:    AuditMFADisabled,
		UserID:    userID,
		Success:   true,
	})
	return nil
}

// VerifyMFALogin completes a login paused on an MFA challenge. The identity
// must come from an mfa_challenge token. TOTP is tried first, then one
// matching backup code is consumed atomically. A wrong code creates no
// session and consumes nothing.
func (e *Engine) VerifyMFALogin(ctx context.Context, id *Identity, code string, opts LoginOptions) (*LoginResult, error) {
	if e == nil || !e.ready {
		return nil, ErrEngineNotReady
	}
	if id == nil || id.TokenType != TokenMFAChallenge {
		return nil, ErrInvalidToken
	}

	user, err := e.findLiveUser(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled {
		return nil, fmt.Errorf("%w: mfa not enabled", ErrMFAStateConflict)
	}

	ok, err := e.verifyTOTPOrBackupCode(ctx, user, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.count(MetricLoginFailure)
		e.auditMFA(ctx, user.ID, false, "challenge code rejected")
		return nil, ErrMFAVerificationFailed
	}

	e.auditMFA(ctx, user.ID, true, "")
	return e.completeLogin(ctx, user, id.SessionID, opts, true)
}

// RegenerateBackupCodes replaces the whole backup-code set. A live TOTP code
// is required; backup codes cannot authorize their own regeneration.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	if e == nil || !e.ready {
		return nil, ErrEngineNotReady
	}

	user, err := e.findLiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled {
		return nil, fmt.Errorf("%w: mfa not enabled", ErrMFAStateConflict)
	}

	ok, err := e.totp.VerifyCode(user.MFASecret, totpCode, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.count(MetricTOTPFailure)
		return nil, ErrMFAVerificationFailed
	}

	codes, hashes, err := e.newBackupCodes(userID)
	if err != nil {
		return nil, err
	}
	if err := e.directory.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	e.count(MetricBackupCodeRegenerated)
	e.emit(ctx, AuditEvent{
		Timestamp: time.Now(),
		Action:    AuditBackupCodesReset,
		UserID:    userID,
		Success:   true,
	})
	return codes, nil
}

// verifyTOTPOrBackupCode tries TOTP first, then atomically consumes a
// matching backup code. Consumption races resolve in the directory: of two
// concurrent logins spending the same code, exactly one wins.
func (e *Engine) verifyTOTPOrBackupCode(ctx context.Context, user *UserRecord, code string) (bool, error) {
	if len(user.MFASecret) > 0 {
		ok, err := e.totp.VerifyCode(user.MFASecret, code, time.Now())
		if err != nil {
			return false, err
		}
		if ok {
			e.count(MetricTOTPSuccess)
			return true, nil
		}
		e.count(MetricTOTPFailure)
	}

	canonical := canonicalizeBackupCode(code)
	if len(canonical) != e.config.MFA.BackupCodeLength {
		return false, nil
	}
	consumed, err := e.directory.ConsumeBackupCode(ctx, user.ID, backupCodeHash(user.ID, canonical))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if consumed {
		e.count(MetricBackupCodeUsed)
		return true, nil
	}
	e.count(MetricBackupCodeFailed)
	return false, nil
}

func (e *Engine) findLiveUser(ctx context.Context, userID string) (*UserRecord, error) {
	user, err := e.directory.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserInactive
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

func (e *Engine) newBackupCodes(userID string) ([]string, []string, error) {
	count := e.config.MFA.BackupCodeCount
	length := e.config.MFA.BackupCodeLength

	codes := make([]string, 0, count)
	hashes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := newBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, backupCodeHash(userID, code))
	}
	return codes, hashes, nil
}

func newBackupCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
	}
	return string(out), nil
}

// canonicalizeBackupCode strips the separators users type and uppercases,
// so "abcd-2345" and "ABCD2345" hash identically.
func canonicalizeBackupCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// backupCodeHash salts with the user ID so equal codes of different users
// never share a stored hash.
func backupCodeHash(userID, canonicalCode string) string {
	sum := sha256.Sum256([]byte(userID + ":" + canonicalCode))
	return hex.EncodeToString(sum[:])
}

func (e *Engine) auditMFA(ctx context.Context, userID string, success bool, reason string) {
	e.emit(ctx, AuditEvent{
		Timestamp: time.Now(),
		Action:    AuditMFAVerify,
		UserID:    userID,
		Success:   success,
		Error:     reason,
	})
}
