package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Binary layout, version 1 (1-based offsets as seen by the Lua scripts):
//
//	1       schema version
//	2       revoked flag (0 or 1)
//	3-34    refresh secret hash (32 bytes)
//	35-42   created-at unix seconds (big endian)
//	43-50   rotated-at unix seconds (big endian)
//	51-58   expires-at unix seconds (big endian)
//	59      identity length, followed by identity bytes
//	then    role count, followed by length-prefixed role names
//
// The fixed-size fields lead so the rotation and revocation scripts can
// read and splice them at constant offsets.

var errBlobCorrupt = errors.New("invalid session blob")

// Encode serializes a [Session] into its binary wire form.
func Encode(s *Session) ([]byte, error) {
	if len(s.Identity) == 0 || len(s.Identity) > 255 {
		return nil, errors.New("identity length out of range")
	}
	if len(s.Roles) > 255 {
		return nil, errors.New("too many roles")
	}

	var buf bytes.Buffer

	buf.WriteByte(CurrentSchemaVersion)
	if s.Revoked {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.Write(s.RefreshHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.RotatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(len(s.Identity)))
	buf.WriteString(s.Identity)

	buf.WriteByte(byte(len(s.Roles)))
	for _, role := range s.Roles {
		if len(role) == 0 || len(role) > 255 {
			return nil, errors.New("role name length out of range")
		}
		buf.WriteByte(byte(len(role)))
		buf.WriteString(role)
	}

	return buf.Bytes(), nil
}

// Decode deserializes a binary session blob. The returned session has no
// SessionID; callers set it from the Redis key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errBlobCorrupt
	}
	if version != CurrentSchemaVersion {
		return nil, errBlobCorrupt
	}

	s := &Session{SchemaVersion: version}

	revoked, err := reader.ReadByte()
	if err != nil {
		return nil, errBlobCorrupt
	}
	s.Revoked = revoked == 1

	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, errBlobCorrupt
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, errBlobCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &s.RotatedAt); err != nil {
		return nil, errBlobCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, errBlobCorrupt
	}

	identityLen, err := reader.ReadByte()
	if err != nil || identityLen == 0 {
		return nil, errBlobCorrupt
	}
	identity := make([]byte, identityLen)
	if _, err := io.ReadFull(reader, identity); err != nil {
		return nil, errBlobCorrupt
	}
	s.Identity = string(identity)

	roleCount, err := reader.ReadByte()
	if err != nil {
		return nil, errBlobCorrupt
	}
	s.Roles = make([]string, 0, roleCount)
	for i := 0; i < int(roleCount); i++ {
		roleLen, err := reader.ReadByte()
		if err != nil || roleLen == 0 {
			return nil, errBlobCorrupt
		}
		role := make([]byte, roleLen)
		if _, err := io.ReadFull(reader, role); err != nil {
			return nil, errBlobCorrupt
		}
		s.Roles = append(s.Roles, string(role))
	}

	return s, nil
}
