package types

import "errors"

// Codec errors. These indicate misuse of the identifier codecs and are never retried.
var (
	// ErrEncodingLength is returned when a string or byte slice does not have the fixed width of its identifier kind.
	ErrEncodingLength = errors.New("identifier encoding has invalid length")

	// ErrInvalidEncoding is returned when a textual identifier contains characters outside its alphabet
	// or encodes a value wider than 128 bits.
	ErrInvalidEncoding = errors.New("identifier encoding contains invalid characters")

	// ErrMonotonicOverflow is returned when a monotonic identifier can no longer be advanced
	// without exceeding the 48-bit timestamp field.
	ErrMonotonicOverflow = errors.New("monotonic identifier space exhausted")
)
