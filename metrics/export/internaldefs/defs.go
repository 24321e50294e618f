package internaldefs

import (
	"github.com/clinicore/authcore"
)

// CounterDef names one engine counter for the exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs maps every engine counter to its exported name. Both
// exporters iterate this table so the two surfaces never drift.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricAuthenticateSuccess, Name: "authcore_authenticate_success_total", Help: "Requests that passed token and session validation."},
	{ID: authcore.MetricAuthenticateFailure, Name: "authcore_authenticate_failure_total", Help: "Requests rejected during token or session validation."},
	{ID: authcore.MetricAccessGranted, Name: "authcore_access_granted_total", Help: "Guard-chain evaluations that allowed the request."},
	{ID: authcore.MetricRoleDenied, Name: "authcore_role_denied_total", Help: "Requests denied by the role guard."},
	{ID: authcore.MetricPermissionDenied, Name: "authcore_permission_denied_total", Help: "Requests denied by the permission guard."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Completed logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginMFARequired, Name: "authcore_login_mfa_required_total", Help: "Logins paused for an MFA challenge."},
	{ID: authcore.MetricLoginMFASetupRequired, Name: "authcore_login_mfa_setup_required_total", Help: "Logins paused for mandatory MFA enrollment."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Refresh tokens replayed after rotation."},
	{ID: authcore.MetricTOTPSuccess, Name: "authcore_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: authcore.MetricTOTPFailure, Name: "authcore_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: authcore.MetricMFAEnabled, Name: "authcore_mfa_enabled_total", Help: "Completed MFA enrollments."},
	{ID: authcore.MetricMFADisabled, Name: "authcore_mfa_disabled_total", Help: "MFA disablements."},
	{ID: authcore.MetricBackupCodeUsed, Name: "authcore_backup_code_used_total", Help: "Backup codes consumed successfully."},
	{ID: authcore.MetricBackupCodeFailed, Name: "authcore_backup_code_failed_total", Help: "Backup-code attempts that matched nothing."},
	{ID: authcore.MetricBackupCodeRegenerated, Name: "authcore_backup_code_regenerated_total", Help: "Backup-code set regenerations."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Sessions created."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Sessions revoked."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
}

// HistogramDefs maps the engine histograms.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the bucket upper bounds, matching the engine's fixed
// 8-bucket layout.
var HistogramBounds = []string{
	"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf",
}

// HistogramBoundSuffix gives each bound a name-safe form for attribute keys.
var HistogramBoundSuffix = []string{
	"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range raw {
		running += raw[i]
		out[i] = running
	}
	return out
}
