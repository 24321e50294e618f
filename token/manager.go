package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type discriminates the four credential kinds the engine accepts. Each
// protected route declares which types it admits; everything else is
// rejected before any identity is built.
type Type string

const (
	// TypeAccess is a short-lived credential authorizing normal API calls.
	TypeAccess Type = "access"
	// TypeRefresh is used only to mint new access tokens.
	TypeRefresh Type = "refresh"
	// TypeMFASetup is valid only on MFA enrollment endpoints.
	TypeMFASetup Type = "mfa_setup"
	// TypeMFAChallenge is valid only on MFA code-submission endpoints.
	TypeMFAChallenge Type = "mfa_challenge"
)

// Valid reports whether t is one of the four known credential kinds.
func (t Type) Valid() bool {
	switch t {
	case TypeAccess, TypeRefresh, TypeMFASetup, TypeMFAChallenge:
		return true
	}
	return false
}

// ErrInvalid is the single verification failure returned by [Manager.Parse].
var ErrInvalid = errors.New("invalid token")

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

// Claims is the signed payload. Access tokens carry the full identity
// snapshot for audit convenience; refresh tokens carry only subject, session
// and type; MFA tokens carry subject, email and session.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	FirstName   string   `json:"firstName,omitempty"`
	LastName    string   `json:"lastName,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	SessionID   string   `json:"sessionId"`
	TokenType   Type     `json:"type"`
	MFAVerified bool     `json:"mfaVerified,omitempty"`
	jwt.RegisteredClaims
}

// Config defines signing and verification behavior for a [Manager].
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte

	Issuer   string
	Audience string
	Leeway   time.Duration

	// KeyID and VerifyKeys enable rotation: tokens are signed with KeyID and
	// verified against whichever key their kid header names.
	KeyID      string
	VerifyKeys map[string][]byte
}

// Manager signs and verifies bearer tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a ready Manager. Configuration
// problems are construction-time errors, never per-request errors.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg}, nil
}

// AccessParams carries the identity snapshot embedded in an access token.
type AccessParams struct {
	UserID      string
	Email       string
	FirstName   string
	LastName    string
	Roles       []string
	Permissions []string
	SessionID   string
	MFAVerified bool
}

// CreateAccess mints a full access token for the given session.
func (m *Manager) CreateAccess(p AccessParams) (string, error) {
	claims := Claims{
		Email:       p.Email,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Roles:       p.Roles,
		Permissions: p.Permissions,
		SessionID:   p.SessionID,
		TokenType:   TypeAccess,
		MFAVerified: p.MFAVerified,
	}
	return m.sign(p.UserID, claims, m.config.AccessTTL)
}

// CreateRefresh mints a refresh token carrying only subject, session and type.
func (m *Manager) CreateRefresh(userID, sessionID string) (string, error) {
	claims := Claims{
		SessionID: sessionID,
		TokenType: TypeRefresh,
	}
	return m.sign(userID, claims, m.config.RefreshTTL)
}

// CreateMFA mints an mfa_setup or mfa_challenge token. Any other type is a
// programming error and rejected.
func (m *Manager) CreateMFA(typ Type, userID, email, sessionID string, ttl time.Duration) (string, error) {
	if typ != TypeMFASetup && typ != TypeMFAChallenge {
		return "", errors.New("mfa token type required")
	}
	if ttl <= 0 {
		return "", errors.New("mfa token ttl required")
	}
	claims := Claims{
		Email:     email,
		SessionID: sessionID,
		TokenType: typ,
	}
	return m.sign(userID, claims, ttl)
}

func (m *Manager) sign(subject string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    m.config.Issuer,
		ID:        uuid.NewString(),
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	tok := jwt.NewWithClaims(m.method(), claims)
	if m.config.KeyID != "" {
		tok.Header["kid"] = m.config.KeyID
	}

	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// Parse verifies signature, expiry, issuer/audience and type shape. Every
// failure is reported as [ErrInvalid].
func (m *Manager) Parse(raw string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(m.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := m.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return m.verifyKeyBytes(key)
		}

		return m.verifyKey()
	})
	if err != nil {
		return nil, ErrInvalid
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.Subject == "" || claims.SessionID == "" || !claims.TokenType.Valid() {
		return nil, ErrInvalid
	}

	return claims, nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func (m *Manager) verifyKeyBytes(key []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
