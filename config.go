package authcore

import (
	"errors"
	"time"
)

// Config is the engine's configuration tree. Configure once before Build;
// treat as immutable afterwards.
type Config struct {
	Token   TokenConfig
	Session SessionConfig
	MFA     MFAConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig drives the JWT codec.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	// KeyID is stamped into new tokens; VerifyKeys maps key IDs to public
	// keys still accepted during rotation.
	KeyID      string
	VerifyKeys map[string][]byte
	// CookieName is where the middleware looks for the access token before
	// falling back to the Authorization header.
	CookieName string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig drives the Redis session registry.
type SessionConfig struct {
	RedisPrefix string
	// Lifetime bounds a session independently of token TTLs.
	Lifetime time.Duration
	// Retention keeps revoked/expired records readable before Redis
	// sweeps them.
	Retention time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig drives TOTP enrollment and backup codes.
type MFAConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Skew      int
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"

	BackupCodeCount  int
	BackupCodeLength int

	// RequiredRoles lists role codes whose holders must have MFA enrolled
	// before a login can complete.
	RequiredRoles []string

	ChallengeTTL time.Duration
	SetupTTL     time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig drives the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles the in-process metric registry.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the recommended settings. Callers must still supply
// signing key material before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "authcore",
			Leeway:        30 * time.Second,
			CookieName:    "access_token",
		},
		Session: SessionConfig{
			RedisPrefix: "ac",
			Lifetime:    7 * 24 * time.Hour,
			Retention:   24 * time.Hour,
		},
		MFA: MFAConfig{
			Issuer:           "authcore",
			Digits:           6,
			Period:           30,
			Skew:             2,
			Algorithm:        "SHA1",
			BackupCodeCount:  10,
			BackupCodeLength: 8,
			ChallengeTTL:     5 * time.Minute,
			SetupTTL:         15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = append([]byte(nil), cfg.Token.PrivateKey...)
	out.Token.PublicKey = append([]byte(nil), cfg.Token.PublicKey...)
	if cfg.Token.VerifyKeys != nil {
		out.Token.VerifyKeys = make(map[string][]byte, len(cfg.Token.VerifyKeys))
		for k, v := range cfg.Token.VerifyKeys {
			out.Token.VerifyKeys[k] = append([]byte(nil), v...)
		}
	}
	out.MFA.RequiredRoles = append([]string(nil), cfg.MFA.RequiredRoles...)
	return out
}

// Validate enforces the wiring rules that must hold before any request is
// served. Violations are fatal configuration errors, not per-request errors.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("token access TTL must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("token refresh TTL must exceed access TTL")
	}
	switch c.Token.SigningMethod {
	case "ed25519", "hs256":
	default:
		return errors.New("token signing method must be ed25519 or hs256")
	}
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("token private key required")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PublicKey) == 0 {
		return errors.New("token public key required for ed25519")
	}
	if c.Token.CookieName == "" {
		return errors.New("token cookie name required")
	}

	if c.Session.RedisPrefix == "" {
		return errors.New("session redis prefix required")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if c.Session.Retention < 0 {
		return errors.New("session retention must not be negative")
	}

	if c.MFA.Digits < 6 || c.MFA.Digits > 8 {
		return errors.New("mfa digits must be 6..8")
	}
	if c.MFA.Period <= 0 {
		return errors.New("mfa period must be positive")
	}
	if c.MFA.Skew < 0 || c.MFA.Skew > 5 {
		return errors.New("mfa skew must be 0..5")
	}
	switch c.MFA.Algorithm {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("mfa algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.MFA.BackupCodeCount < 1 {
		return errors.New("mfa backup code count must be at least 1")
	}
	if c.MFA.BackupCodeLength < 6 {
		return errors.New("mfa backup code length must be at least 6")
	}
	if c.MFA.ChallengeTTL <= 0 || c.MFA.SetupTTL <= 0 {
		return errors.New("mfa token TTLs must be positive")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive when enabled")
	}

	return nil
}
