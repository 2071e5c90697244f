package session

import "time"

// CurrentSchemaVersion is the binary encoding version written by Encode.
const CurrentSchemaVersion byte = 1

// Session is one refresh lineage for an identity. SessionID is not part of
// the encoded blob; it is the Redis key suffix and is restored on decode.
type Session struct {
	SchemaVersion byte
	SessionID     string
	Identity      string
	Roles         []string
	RefreshHash   [32]byte
	Revoked       bool
	CreatedAt     int64
	RotatedAt     int64
	ExpiresAt     int64
}

// Expired reports whether the session's absolute lifetime has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}
