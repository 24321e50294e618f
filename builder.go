package authcore

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/clinicore/authcore/internal/audit"
	"github.com/clinicore/authcore/internal/metrics"
	"github.com/clinicore/authcore/password"
	"github.com/clinicore/authcore/session"
	"github.com/clinicore/authcore/token"
)

// Builder assembles an [Engine]. Collaborators are wired with the With*
// methods; Build validates everything and fails fast on missing wiring.
type Builder struct {
	config Config

	redis     redis.UniversalClient
	directory UserDirectory
	passwords PasswordVerifier
	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the default configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the session registry backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserDirectory supplies the credential-store port.
func (b *Builder) WithUserDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithPasswordVerifier overrides the default argon2id verifier.
func (b *Builder) WithPasswordVerifier(v PasswordVerifier) *Builder {
	b.passwords = v
	return b
}

// WithAuditSink supplies the audit event consumer. Without one, enabled
// auditing falls back to a no-op sink (drop accounting still works).
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates configuration and wiring, then constructs the Engine.
// A Builder builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("user directory required")
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:     b.config.Token.AccessTTL,
		RefreshTTL:    b.config.Token.RefreshTTL,
		SigningMethod: token.SigningMethod(b.config.Token.SigningMethod),
		PrivateKey:    b.config.Token.PrivateKey,
		PublicKey:     b.config.Token.PublicKey,
		Issuer:        b.config.Token.Issuer,
		Audience:      b.config.Token.Audience,
		Leeway:        b.config.Token.Leeway,
		KeyID:         b.config.Token.KeyID,
		VerifyKeys:    b.config.Token.VerifyKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	verifier := b.passwords
	if verifier == nil {
		hasher, err := password.NewHasher(password.DefaultParams())
		if err != nil {
			return nil, fmt.Errorf("password hasher: %w", err)
		}
		verifier = hasher
	}

	engine := &Engine{
		config:    b.config,
		tokens:    tokens,
		sessions:  session.NewStore(b.redis, b.config.Session.RedisPrefix, b.config.Session.Retention),
		directory: b.directory,
		passwords: verifier,
		totp:      newTOTPManager(b.config.MFA),
	}

	if b.config.Audit.Enabled {
		engine.auditor = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: b.config.Audit.BufferSize,
			DropIfFull: b.config.Audit.DropIfFull,
		}, b.auditSink)
	}
	if b.config.Metrics.Enabled {
		engine.metrics = metrics.NewRegistry(int(metricCounterCount), int(metricHistogramCount))
	}

	engine.ready = true
	b.built = true
	return engine, nil
}
