package authcore

// Audit action names emitted by the engine.
const (
	AuditLogin            = "LOGIN"
	AuditLogout           = "LOGOUT"
	AuditLogoutAll        = "LOGOUT_ALL"
	AuditTokenRefresh     = "TOKEN_REFRESH"
	AuditRefreshReuse     = "REFRESH_REUSE"
	AuditPermissionCheck  = "PERMISSION_CHECK"
	AuditMFAEnrollStarted = "MFA_ENROLL_STARTED"
	AuditMFAEnabled       = "MFA_ENABLED"
	AuditMFADisabled      = "MFA_DISABLED"
	AuditMFAVerify        = "MFA_VERIFY"
	AuditSessionRevoked   = "SESSION_REVOKED"
	AuditBackupCodesReset = "BACKUP_CODES_REGENERATED"
)
