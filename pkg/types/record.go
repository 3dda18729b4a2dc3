package types

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// Record is the uniform view over the per-strategy row types. Strategy-specific
// id fields stay on the concrete types; reporting and verification only need
// the key as comparable bytes and the creation timestamp.
type Record interface {
	Strategy() Strategy
	// KeyBytes returns the identifier in a form whose byte-wise order matches
	// the order the storage layer sorts the id column by.
	KeyBytes() []byte
	CreatedOn() time.Time
}

// IntRecord is a row keyed by a storage-assigned integer.
// ID is zero until the insert that carries it has committed.
type IntRecord struct {
	ID      int64
	Created time.Time
}

func (r *IntRecord) Strategy() Strategy   { return StrategyInt }
func (r *IntRecord) CreatedOn() time.Time { return r.Created }

// KeyBytes encodes the id big-endian with the sign bit flipped so negative
// values sort first.
func (r *IntRecord) KeyBytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(r.ID)^(1<<63))
	return b[:]
}

// WideIDRecord is a row keyed by a 128-bit wide identifier. Kind is one of
// StrategyGUIDv4, StrategyGUIDv4ClusterOnDate or StrategyGUIDv7.
type WideIDRecord struct {
	Kind    Strategy
	ID      uuid.UUID
	Created time.Time
}

func (r *WideIDRecord) Strategy() Strategy   { return r.Kind }
func (r *WideIDRecord) KeyBytes() []byte     { return r.ID[:] }
func (r *WideIDRecord) CreatedOn() time.Time { return r.Created }

// ULIDTextRecord is a row keyed by the 26-character form of a ULID.
type ULIDTextRecord struct {
	ID      string
	Created time.Time
}

func (r *ULIDTextRecord) Strategy() Strategy   { return StrategyULIDString }
func (r *ULIDTextRecord) KeyBytes() []byte     { return []byte(r.ID) }
func (r *ULIDTextRecord) CreatedOn() time.Time { return r.Created }

// ULIDBinaryRecord is a row keyed by the 16-byte form of a ULID.
type ULIDBinaryRecord struct {
	ID      ULID
	Created time.Time
}

func (r *ULIDBinaryRecord) Strategy() Strategy   { return StrategyULIDBinary }
func (r *ULIDBinaryRecord) KeyBytes() []byte     { return r.ID.Bytes() }
func (r *ULIDBinaryRecord) CreatedOn() time.Time { return r.Created }
