package types

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"time"
)

// ULID is a 128-bit lexicographically sortable identifier:
// a 48-bit big-endian millisecond timestamp followed by an 80-bit payload.
// The raw bytes are the binary form; String returns the 26-character textual form.
type ULID [16]byte

const (
	// ULIDTextLen is the width of the textual form.
	ULIDTextLen = 26
	// ULIDBinaryLen is the width of the binary form.
	ULIDBinaryLen = 16
	// MaxULIDTimestamp is the largest timestamp representable in 48 bits.
	MaxULIDTimestamp = uint64(1)<<48 - 1
)

// Crockford's Base32 alphabet (excludes I, L, O, U). Symbols are in ascending
// ASCII order, so textual order matches numeric order.
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const invalidSymbol = 0xFF

var crockfordDecode [256]byte

func init() {
	for i := range crockfordDecode {
		crockfordDecode[i] = invalidSymbol
	}
	for i := 0; i < len(crockfordAlphabet); i++ {
		c := crockfordAlphabet[i]
		crockfordDecode[c] = byte(i)
		if c >= 'A' && c <= 'Z' {
			crockfordDecode[c+'a'-'A'] = byte(i)
		}
	}
}

// Bytes returns the 16-byte binary form.
func (u ULID) Bytes() []byte {
	return u[:]
}

// Timestamp returns the timestamp field as Unix milliseconds.
func (u ULID) Timestamp() uint64 {
	return binary.BigEndian.Uint64(u[0:8]) >> 16
}

// Time returns the timestamp field as a UTC time.
func (u ULID) Time() time.Time {
	return time.UnixMilli(int64(u.Timestamp())).UTC()
}

// String renders the 128-bit value as 26 Crockford Base32 symbols, 5 bits per
// symbol starting from the least significant end. The first symbol carries
// only the top 3 bits.
func (u ULID) String() string {
	hi := binary.BigEndian.Uint64(u[0:8])
	lo := binary.BigEndian.Uint64(u[8:16])

	var buf [ULIDTextLen]byte
	for i := ULIDTextLen - 1; i >= 0; i-- {
		buf[i] = crockfordAlphabet[lo&31]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(buf[:])
}

// Compare returns -1, 0 or 1 comparing u and other as unsigned 128-bit integers.
func (u ULID) Compare(other ULID) int {
	for i := 0; i < ULIDBinaryLen; i++ {
		switch {
		case u[i] < other[i]:
			return -1
		case u[i] > other[i]:
			return 1
		}
	}
	return 0
}

// next returns u+1 treating the whole value as a 128-bit big-endian integer,
// so payload overflow carries into the timestamp. ok is false when u is the
// maximum value.
func (u ULID) next() (ULID, bool) {
	for i := ULIDBinaryLen - 1; i >= 0; i-- {
		u[i]++
		if u[i] != 0 {
			return u, true
		}
	}
	return ULID{}, false
}

// ParseULID decodes the 26-character textual form. Lower-case symbols are accepted.
func ParseULID(s string) (ULID, error) {
	if len(s) != ULIDTextLen {
		return ULID{}, ErrEncodingLength
	}

	var hi, lo uint64
	for i := 0; i < ULIDTextLen; i++ {
		v := crockfordDecode[s[i]]
		if v == invalidSymbol {
			return ULID{}, ErrInvalidEncoding
		}
		// 26 symbols hold 130 bits; the leading symbol may only use 3.
		if i == 0 && v > 7 {
			return ULID{}, ErrInvalidEncoding
		}
		hi = hi<<5 | lo>>59
		lo = lo<<5 | uint64(v)
	}

	var u ULID
	binary.BigEndian.PutUint64(u[0:8], hi)
	binary.BigEndian.PutUint64(u[8:16], lo)
	return u, nil
}

// ULIDFromBytes decodes the 16-byte binary form.
func ULIDFromBytes(b []byte) (ULID, error) {
	if len(b) != ULIDBinaryLen {
		return ULID{}, ErrEncodingLength
	}
	var u ULID
	copy(u[:], b)
	return u, nil
}

// NewULID builds a ULID from a timestamp and a 10-byte payload.
func NewULID(timestamp uint64, payload []byte) (ULID, error) {
	if timestamp > MaxULIDTimestamp {
		return ULID{}, ErrMonotonicOverflow
	}
	if len(payload) != ULIDBinaryLen-6 {
		return ULID{}, ErrEncodingLength
	}
	var u ULID
	binary.BigEndian.PutUint64(u[0:8], timestamp<<16)
	copy(u[6:], payload)
	return u, nil
}

// MonotonicGenerator issues ULIDs that never decrease within one instance.
//
// A fresh millisecond gets a cryptographically random payload. When the clock
// reports the same millisecond as the previous value, or an earlier one, the
// previous value is reused with its payload incremented by one; a payload
// overflow carries into the timestamp field. The generator is safe for
// concurrent use: each call is a single get-and-advance under the mutex.
type MonotonicGenerator struct {
	mu          sync.Mutex
	now         func() time.Time
	entropy     io.Reader
	last        ULID
	issued      bool
	regressions uint64
}

// GeneratorOption configures a MonotonicGenerator.
type GeneratorOption func(*MonotonicGenerator)

// WithClock sets the time source used by Generate.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *MonotonicGenerator) {
		g.now = now
	}
}

// WithEntropy sets the source of payload randomness. Defaults to crypto/rand.
func WithEntropy(r io.Reader) GeneratorOption {
	return func(g *MonotonicGenerator) {
		g.entropy = r
	}
}

// NewMonotonicGenerator creates a generator reading the system clock.
func NewMonotonicGenerator(opts ...GeneratorOption) *MonotonicGenerator {
	g := &MonotonicGenerator{
		now:     time.Now,
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate issues the next identifier using the generator clock.
func (g *MonotonicGenerator) Generate() (ULID, error) {
	u, _, err := g.GenerateAt(g.now)
	return u, err
}

// GenerateAt reads now while holding the generator lock and issues the next
// identifier for that reading, which it also returns. Records stamped with
// the returned instant never see a concurrent caller issue between the
// reading and the identifier.
func (g *MonotonicGenerator) GenerateAt(now func() time.Time) (ULID, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := now()
	u, err := g.generateLocked(t)
	return u, t, err
}

// GenerateWithTime issues the next identifier for the given instant.
func (g *MonotonicGenerator) GenerateWithTime(t time.Time) (ULID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generateLocked(t)
}

func (g *MonotonicGenerator) generateLocked(t time.Time) (ULID, error) {
	ms := t.UnixMilli()
	if ms < 0 || uint64(ms) > MaxULIDTimestamp {
		return ULID{}, ErrMonotonicOverflow
	}
	timestamp := uint64(ms)

	if g.issued && timestamp <= g.last.Timestamp() {
		if timestamp < g.last.Timestamp() {
			g.regressions++
		}
		next, ok := g.last.next()
		if !ok {
			return ULID{}, ErrMonotonicOverflow
		}
		g.last = next
		return next, nil
	}

	var payload [ULIDBinaryLen - 6]byte
	if _, err := io.ReadFull(g.entropy, payload[:]); err != nil {
		return ULID{}, err
	}
	u, err := NewULID(timestamp, payload[:])
	if err != nil {
		return ULID{}, err
	}
	g.last = u
	g.issued = true
	return u, nil
}

// Regressions reports how many times the clock was observed moving backwards
// and the generator clamped to the previous timestamp.
func (g *MonotonicGenerator) Regressions() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.regressions
}
