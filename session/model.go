package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session binds a user to an active login. Created on successful login or
// MFA completion; mutated only by activity pings, refresh rotation, and
// revocation.
type Session struct {
	ID               string `json:"id"`
	UserID           string `json:"userId"`
	AccessTokenHash  string `json:"accessTokenHash,omitempty"`
	RefreshTokenHash string `json:"refreshTokenHash,omitempty"`
	DeviceInfo       string `json:"deviceInfo,omitempty"`
	IPAddress        string `json:"ipAddress,omitempty"`

	StartedAt      int64 `json:"startedAt"`
	LastActivityAt int64 `json:"lastActivityAt"`
	ExpiresAt      int64 `json:"expiresAt"`

	RevokedAt    int64  `json:"revokedAt,omitempty"`
	RevokedBy    string `json:"revokedBy,omitempty"`
	RevokeReason string `json:"revokeReason,omitempty"`

	MFAVerified bool `json:"mfaVerified,omitempty"`
}

// Active reports the liveness invariant: not revoked and not past expiry.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == 0 && s.ExpiresAt > now.Unix()
}

// HashToken returns the hex SHA-256 of a raw bearer token. Sessions store
// token hashes only; the raw credential never touches Redis.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
