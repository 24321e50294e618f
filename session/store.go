package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session record exists for the given ID.
var ErrNotFound = errors.New("session not found")

// ErrNotActive is returned when a mutation targets a revoked or expired session.
var ErrNotActive = errors.New("session revoked or expired")

// ErrRefreshMismatch is returned when a rotation presents a stale refresh hash.
var ErrRefreshMismatch = errors.New("refresh hash mismatch")

// ErrCorrupt is returned when a stored session blob fails to decode.
var ErrCorrupt = errors.New("session record corrupt")

// ErrRedisUnavailable wraps every backend transport failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	statusNotFound    int64 = 0
	statusNotActive   int64 = 1
	statusMismatch    int64 = 2
	statusOK          int64 = 3
	statusCorrupt     int64 = 4
	statusAlreadyDone int64 = 5
)

const revokeScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local ok, sess = pcall(cjson.decode, data)
if not ok or type(sess) ~= "table" then
  return 4
end
if sess.revokedAt and sess.revokedAt ~= 0 then
  return 5
end
sess.revokedAt = tonumber(ARGV[1])
sess.revokedBy = ARGV[2]
if ARGV[3] ~= "" then
  sess.revokeReason = ARGV[3]
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  ttl = 1000
end
redis.call("SET", KEYS[1], cjson.encode(sess), "PX", ttl)
return 3
`

var revokeLua = redis.NewScript(revokeScript)

const touchScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local ok, sess = pcall(cjson.decode, data)
if not ok or type(sess) ~= "table" then
  return 4
end
local now = tonumber(ARGV[1])
if (sess.revokedAt and sess.revokedAt ~= 0) or sess.expiresAt <= now then
  return 1
end
sess.lastActivityAt = now
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  ttl = 1000
end
redis.call("SET", KEYS[1], cjson.encode(sess), "PX", ttl)
return 3
`

var touchLua = redis.NewScript(touchScript)

const rotateScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
local ok, sess = pcall(cjson.decode, data)
if not ok or type(sess) ~= "table" then
  return {4}
end
local now = tonumber(ARGV[4])
if (sess.revokedAt and sess.revokedAt ~= 0) or sess.expiresAt <= now then
  return {1}
end
if (sess.refreshTokenHash or "") ~= ARGV[1] then
  return {2}
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  ttl = 1000
end
sess.refreshTokenHash = ARGV[2]
sess.accessTokenHash = ARGV[3]
sess.lastActivityAt = now
local blob = cjson.encode(sess)
redis.call("SET", KEYS[1], blob, "PX", ttl)
redis.call("DEL", ARGV[5] .. ARGV[1])
redis.call("SET", ARGV[5] .. ARGV[2], sess.id, "PX", ttl)
return {3, blob}
`

var rotateLua = redis.NewScript(rotateScript)

// Store persists sessions in Redis.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewStore creates a session Store. prefix namespaces all keys; retention is
// how long a record outlives its own expiry for inspection before Redis
// sweeps it.
func NewStore(client redis.UniversalClient, prefix string, retention time.Duration) *Store {
	if prefix == "" {
		prefix = "ac"
	}
	if retention < 0 {
		retention = 0
	}
	return &Store{redis: client, prefix: prefix, retention: retention}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) refreshHashPrefix() string {
	return s.prefix + ":rh:"
}

// Save persists a new session and indexes it by user and refresh hash.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" || sess.UserID == "" {
		return errors.New("session id and user id required")
	}

	now := time.Now()
	ttl := time.Unix(sess.ExpiresAt, 0).Sub(now) + s.retention
	if ttl <= 0 {
		return errors.New("session already past retention")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
		if sess.RefreshTokenHash != "" {
			pipe.Set(ctx, s.refreshHashPrefix()+sess.RefreshTokenHash, sess.ID, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the stored record, revoked or expired ones included. Liveness
// is the caller's question to ask via [Session.Active] or [Store.IsActive].
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decode(data, sessionID)
}

// IsActive reports whether the session exists, is unrevoked, and is unexpired.
func (s *Store) IsActive(ctx context.Context, sessionID string) (bool, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return sess.Active(time.Now()), nil
}

// FindByRefreshHash resolves a refresh-token hash to its session record.
func (s *Store) FindByRefreshHash(ctx context.Context, hash string) (*Session, error) {
	sessionID, err := s.redis.Get(ctx, s.refreshHashPrefix()+hash).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.Get(ctx, sessionID)
}

// Touch records request activity on an active session. Inactive sessions are
// left untouched and reported via ErrNotActive.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	code, err := touchLua.Run(ctx, s.redis, []string{s.key(sessionID)}, time.Now().Unix()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	switch code {
	case statusNotFound:
		return ErrNotFound
	case statusNotActive:
		return ErrNotActive
	case statusCorrupt:
		return ErrCorrupt
	case statusOK:
		return nil
	default:
		return fmt.Errorf("%w: unknown touch status %d", ErrRedisUnavailable, code)
	}
}

// Revoke marks a session revoked exactly once. The record is kept for the
// retention window; it is never hard-deleted here. Revoking an
// already-revoked session is a no-op.
func (s *Store) Revoke(ctx context.Context, sessionID, revokedBy, reason string) error {
	code, err := revokeLua.Run(
		ctx, s.redis,
		[]string{s.key(sessionID)},
		time.Now().Unix(), revokedBy, reason,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	switch code {
	case statusNotFound:
		return ErrNotFound
	case statusCorrupt:
		return ErrCorrupt
	case statusOK, statusAlreadyDone:
		return nil
	default:
		return fmt.Errorf("%w: unknown revoke status %d", ErrRedisUnavailable, code)
	}
}

// RevokeAllForUser revokes every indexed session of a user, optionally
// sparing one (the caller's current session). Missing records are pruned
// from the index as encountered.
func (s *Store) RevokeAllForUser(ctx context.Context, userID, exceptSessionID, revokedBy, reason string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		if id == exceptSessionID {
			continue
		}
		err := s.Revoke(ctx, id, revokedBy, reason)
		if errors.Is(err, ErrNotFound) {
			_ = s.redis.SRem(ctx, s.userKey(userID), id).Err()
			continue
		}
		if err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}

// RotateRefreshHash atomically swaps the refresh and access token hashes on
// an active session. A stale provided hash yields ErrRefreshMismatch — the
// reuse-detection signal.
func (s *Store) RotateRefreshHash(ctx context.Context, sessionID, providedHash, nextRefreshHash, nextAccessHash string) (*Session, error) {
	result, err := rotateLua.Run(
		ctx, s.redis,
		[]string{s.key(sessionID)},
		providedHash, nextRefreshHash, nextAccessHash,
		time.Now().Unix(),
		s.refreshHashPrefix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case statusNotFound:
		return nil, ErrNotFound
	case statusNotActive:
		return nil, ErrNotActive
	case statusMismatch:
		return nil, ErrRefreshMismatch
	case statusCorrupt:
		return nil, ErrCorrupt
	case statusOK:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing rotated session payload", ErrRedisUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid rotated session payload", ErrRedisUnavailable)
		}
		return decode(blob, sessionID)
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status %d", ErrRedisUnavailable, code)
	}
}

// SessionsForUser returns every record still present for the user,
// revoked ones included.
func (s *Store) SessionsForUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(ids))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		sess, decErr := decode(data, ids[i])
		if decErr != nil {
			return nil, decErr
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// SweepExpired prunes user-index entries whose session records have lapsed
// past retention. The records themselves are deleted by Redis TTL; this is
// the retention sweep for the indexes. Returns the number of pruned entries.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	var (
		cursor uint64
		pruned int
	)
	pattern := s.prefix + ":u:*"

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return pruned, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for _, userKey := range keys {
			ids, err := s.redis.SMembers(ctx, userKey).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return pruned, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			for _, id := range ids {
				exists, err := s.redis.Exists(ctx, s.key(id)).Result()
				if err != nil {
					return pruned, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
				}
				if exists == 0 {
					if err := s.redis.SRem(ctx, userKey, id).Err(); err != nil {
						return pruned, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
					}
					pruned++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return pruned, nil
}

// Ping reports backend availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func decode(data []byte, sessionID string) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if sess.ID == "" {
		sess.ID = sessionID
	}
	return &sess, nil
}
