package types

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// WideIDLen is the width of a 128-bit wide identifier in bytes.
const WideIDLen = 16

// NewRandomWideID returns an RFC 4122 version 4 identifier drawn from a
// cryptographically secure source. It has no ordering semantics.
func NewRandomWideID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

// NewTimeOrderedWideID returns an RFC 9562 version 7 identifier: a 48-bit
// millisecond timestamp prefix, the version and variant bits, and random fill.
// Byte-wise order approximates creation order at millisecond resolution.
func NewTimeOrderedWideID() (uuid.UUID, error) {
	return uuid.NewV7()
}

// WideIDFromBytes decodes a 16-byte wide identifier.
func WideIDFromBytes(b []byte) (uuid.UUID, error) {
	if len(b) != WideIDLen {
		return uuid.Nil, ErrEncodingLength
	}
	return uuid.FromBytes(b)
}

// IsRandomWideID reports whether id carries the version 4 / RFC variant bit pattern.
func IsRandomWideID(id uuid.UUID) bool {
	return id.Version() == 4 && id.Variant() == uuid.RFC4122
}

// IsTimeOrderedWideID reports whether id carries the version 7 / RFC variant bit pattern.
func IsTimeOrderedWideID(id uuid.UUID) bool {
	return id.Version() == 7 && id.Variant() == uuid.RFC4122
}

// WideIDTimestamp returns the millisecond prefix of a version 7 identifier.
func WideIDTimestamp(id uuid.UUID) uint64 {
	return binary.BigEndian.Uint64(id[0:8]) >> 16
}
