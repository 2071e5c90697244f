package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when no row exists for the session ID.
var ErrNotFound = errors.New("session not found")

// ErrExpiredSession is returned when the session's absolute lifetime has elapsed.
var ErrExpiredSession = errors.New("session expired")

// ErrRevokedSession is returned when the session carries a revocation tombstone.
var ErrRevokedSession = errors.New("session revoked")

// ErrHashMismatch is returned when the presented refresh hash does not match
// the stored one. The rotation script has already tombstoned the lineage by
// the time callers see this.
var ErrHashMismatch = errors.New("refresh hash mismatch")

// ErrCorruptBlob is returned when a stored row cannot be decoded.
var ErrCorruptBlob = errors.New("session blob corrupt")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusRevoked  int64 = 2
	rotateStatusMismatch int64 = 3
	rotateStatusRotated  int64 = 4
	rotateStatusCorrupt  int64 = 5
)

// rotateRefreshScript is the single serialization point of the refresh
// protocol. It reads the blob at the fixed offsets documented in
// encoder.go, so any layout change must be mirrored here.
const rotateRefreshScript = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local session_key = KEYS[1]
local session_id = ARGV[1]
local identity_prefix = ARGV[2]
local provided_hash = ARGV[3]
local next_hash = ARGV[4]
local now_unix = tonumber(ARGV[5])
local rotated_bytes = ARGV[6]
local tombstone_px = tonumber(ARGV[7])

local data = redis.call("GET", session_key)
if not data then
  return {0}
end

if string.byte(data, 1) ~= 1 or #data < 60 then
  return {5}
end

local id_len = string.byte(data, 59)
if not id_len or id_len == 0 or #data < 59 + id_len then
  return {5}
end
local identity_key = identity_prefix .. string.sub(data, 60, 59 + id_len)

local expires_at = read_be64(data, 51)
if not expires_at then
  return {5}
end
if expires_at <= now_unix then
  redis.call("DEL", session_key)
  redis.call("SREM", identity_key, session_id)
  return {1}
end

if string.byte(data, 2) == 1 then
  return {2}
end

if string.sub(data, 3, 34) ~= provided_hash then
  local updated = string.sub(data, 1, 1) .. "\1" .. string.sub(data, 3)
  redis.call("SET", session_key, updated, "PX", tombstone_px)
  redis.call("SREM", identity_key, session_id)
  return {3}
end

-- Sliding inactivity window: rotation renews the row TTL, capped by the
-- absolute expiry stored in the blob.
local next_px = tonumber(ARGV[8])
local remaining_ms = (expires_at - now_unix) * 1000
if next_px > remaining_ms then
  next_px = remaining_ms
end

local updated = string.sub(data, 1, 2) .. next_hash .. string.sub(data, 35, 42) .. rotated_bytes .. string.sub(data, 51)
redis.call("SET", session_key, updated, "PX", next_px)
return {4, updated}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// revokeSessionScript tombstones a session: the revoked flag is set and the
// row is re-written under the tombstone TTL so later refresh attempts can
// be distinguished from never-existed sessions.
const revokeSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if string.byte(data, 1) ~= 1 or #data < 60 then
  return -1
end
if string.byte(data, 2) == 1 then
  return 2
end
local id_len = string.byte(data, 59)
local identity = string.sub(data, 60, 59 + id_len)
local updated = string.sub(data, 1, 1) .. "\1" .. string.sub(data, 3)
redis.call("SET", KEYS[1], updated, "PX", tonumber(ARGV[2]))
redis.call("SREM", ARGV[3] .. identity, ARGV[1])
return 1
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// Store is the Redis-backed session registry. It handles persistence,
// expiry, tombstoned revocation, and atomic refresh-hash rotation.
type Store struct {
	redis        redis.UniversalClient
	prefix       string
	refreshTTL   time.Duration
	tombstoneTTL time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the key namespace. refreshTTL is the sliding inactivity
// window a rotation renews; tombstoneTTL bounds how long revoked rows
// linger for replay reporting.
func NewStore(redisClient redis.UniversalClient, prefix string, refreshTTL, tombstoneTTL time.Duration) *Store {
	if tombstoneTTL <= 0 {
		tombstoneTTL = 24 * time.Hour
	}
	return &Store{
		redis:        redisClient,
		prefix:       prefix,
		refreshTTL:   refreshTTL,
		tombstoneTTL: tombstoneTTL,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) identityKey(identity string) string {
	return s.prefix + ":u:" + identity
}

func (s *Store) identityPrefix() string {
	return s.prefix + ":u:"
}

// Save persists a session and registers it in the identity index. The row
// TTL is the refresh window, capped by the time until absolute expiry.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
	if ttl <= 0 {
		return ErrExpiredSession
	}
	if s.refreshTTL > 0 && s.refreshTTL < ttl {
		ttl = s.refreshTTL
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.identityKey(sess.Identity), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by ID. Revoked sessions are returned with the
// Revoked flag set; interpreting that is the caller's business. Expired
// rows are removed and reported as [ErrNotFound].
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	sess.SessionID = sessionID

	if sess.Expired(time.Now()) {
		if err := s.removeRow(ctx, sess.Identity, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	return sess, nil
}

// RotateRefreshHash atomically replaces the session's refresh hash via the
// Lua compare-and-swap script. Exactly one concurrent caller can win; all
// others get [ErrHashMismatch] and the lineage is already tombstoned.
func (s *Store) RotateRefreshHash(
	ctx context.Context,
	sessionID string,
	providedHash [32]byte,
	nextHash [32]byte,
	rotatedAt time.Time,
) (*Session, error) {
	var rotatedBytes [8]byte
	binary.BigEndian.PutUint64(rotatedBytes[:], uint64(rotatedAt.Unix()))

	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		sessionID,
		s.identityPrefix(),
		providedHash[:],
		nextHash[:],
		rotatedAt.Unix(),
		rotatedBytes[:],
		s.tombstoneTTL.Milliseconds(),
		s.refreshTTL.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotation script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotation script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrNotFound
	case rotateStatusExpired:
		return nil, ErrExpiredSession
	case rotateStatusRevoked:
		return nil, ErrRevokedSession
	case rotateStatusMismatch:
		return nil, ErrHashMismatch
	case rotateStatusRotated:
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

		sess, decErr := Decode(blob)
		if decErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, decErr)
		}
		sess.SessionID = sessionID
		return sess, nil
	case rotateStatusCorrupt:
		return nil, ErrCorruptBlob
	default:
		return nil, fmt.Errorf("%w: unknown rotation script status", ErrRedisUnavailable)
	}
}

// Revoke tombstones a session. Returns true if the session existed and was
// newly revoked; already-revoked and missing sessions return false without
// error, which keeps logout idempotent.
func (s *Store) Revoke(ctx context.Context, sessionID string) (bool, error) {
	result, err := revokeSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		sessionID,
		s.tombstoneTTL.Milliseconds(),
		s.identityPrefix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch result {
	case 1:
		return true, nil
	case 0, 2:
		return false, nil
	default:
		return false, ErrCorruptBlob
	}
}

// RevokeAllForIdentity tombstones every live session of an identity and
// clears the identity index. Returns the number of sessions revoked.
func (s *Store) RevokeAllForIdentity(ctx context.Context, identity string) (int, error) {
	identityKey := s.identityKey(identity)

	sessionIDs, err := s.redis.SMembers(ctx, identityKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var revoked int
	for _, sessionID := range sessionIDs {
		ok, err := s.Revoke(ctx, sessionID)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		}
	}

	if err := s.redis.Del(ctx, identityKey).Err(); err != nil {
		return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return revoked, nil
}

// ActiveSessionIDs returns the session IDs tracked for an identity.
func (s *Store) ActiveSessionIDs(ctx context.Context, identity string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.identityKey(identity)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// ActiveSessionCount returns the number of tracked session IDs for an identity.
func (s *Store) ActiveSessionCount(ctx context.Context, identity string) (int, error) {
	count, err := s.redis.SCard(ctx, s.identityKey(identity)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// SweepExpired scans the session keyspace and removes rows whose absolute
// expiry has passed, along with their index entries. Redis TTLs already
// collect most garbage; the sweep exists for rows whose stored expiry
// undercuts the key TTL and for index hygiene. O(n), not for hot paths.
func (s *Store) SweepExpired(ctx context.Context, batchSize int64) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	pattern := s.prefix + ":s:*"
	keyPrefixLen := len(s.prefix) + len(":s:")
	now := time.Now()

	var (
		cursor uint64
		swept  int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, batchSize).Result()
		if err != nil {
			return swept, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, key := range keys {
			data, err := s.redis.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return swept, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}

			sess, decErr := Decode(data)
			if decErr != nil {
				// Undecodable rows are garbage either way.
				if err := s.redis.Del(ctx, key).Err(); err != nil {
					return swept, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
				}
				swept++
				continue
			}

			if !sess.Expired(now) {
				continue
			}

			sessionID := key[keyPrefixLen:]
			if err := s.removeRow(ctx, sess.Identity, sessionID); err != nil {
				return swept, err
			}
			swept++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	removed, err := s.sweepDanglingIndexEntries(ctx, batchSize)
	if err != nil {
		return swept, err
	}

	return swept + removed, nil
}

// sweepDanglingIndexEntries drops index members whose session row already
// expired via Redis TTL.
func (s *Store) sweepDanglingIndexEntries(ctx context.Context, batchSize int64) (int, error) {
	pattern := s.prefix + ":u:*"

	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, batchSize).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, indexKey := range keys {
			members, err := s.redis.SMembers(ctx, indexKey).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}

			for _, sessionID := range members {
				exists, err := s.redis.Exists(ctx, s.key(sessionID)).Result()
				if err != nil {
					return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
				}
				if exists == 0 {
					if err := s.redis.SRem(ctx, indexKey, sessionID).Err(); err != nil {
						return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
					}
					removed++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) removeRow(ctx context.Context, identity, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.identityKey(identity), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
