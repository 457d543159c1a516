package hashing

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Imprint is an algorithm-prefixed hash value: one identifier octet
// followed by the raw digest bytes of that algorithm.
type Imprint struct {
	Algorithm Algorithm
	Digest    []byte
}

// ErrInvalidImprint is returned when an imprint's digest length does not
// match its declared algorithm.
var ErrInvalidImprint = fmt.Errorf("hashing: invalid imprint")

// NewImprint validates digest against algo's registered digest length and
// returns the resulting Imprint.
func NewImprint(algo Algorithm, digest []byte) (Imprint, error) {
	n, err := DigestLength(algo)
	if err != nil {
		return Imprint{}, err
	}
	if len(digest) != n {
		return Imprint{}, fmt.Errorf("%w: algorithm %s wants %d bytes, got %d", ErrInvalidImprint, algo, n, len(digest))
	}
	out := make([]byte, n)
	copy(out, digest)
	return Imprint{Algorithm: algo, Digest: out}, nil
}

// ComputeImprint hashes data under algo and wraps the result as an Imprint.
func ComputeImprint(algo Algorithm, data ...[]byte) (Imprint, error) {
	digest, err := Sum(algo, data...)
	if err != nil {
		return Imprint{}, err
	}
	return Imprint{Algorithm: algo, Digest: digest}, nil
}

// Bytes serializes the imprint to its wire form: one algorithm octet
// followed by the digest.
func (im Imprint) Bytes() []byte {
	out := make([]byte, 1+len(im.Digest))
	out[0] = byte(im.Algorithm)
	copy(out[1:], im.Digest)
	return out
}

// ParseImprint decodes the wire form produced by Bytes.
func ParseImprint(raw []byte) (Imprint, error) {
	if len(raw) < 1 {
		return Imprint{}, fmt.Errorf("%w: empty", ErrInvalidImprint)
	}
	return NewImprint(Algorithm(raw[0]), raw[1:])
}

// Equal reports whether two imprints carry the same algorithm and digest bytes.
func (im Imprint) Equal(other Imprint) bool {
	return im.Algorithm == other.Algorithm && bytes.Equal(im.Digest, other.Digest)
}

// String renders the imprint as "<algo-name>:<hex digest>" for diagnostics.
func (im Imprint) String() string {
	return fmt.Sprintf("%s:%s", im.Algorithm, hex.EncodeToString(im.Digest))
}

// IsZero reports whether the imprint carries no digest bytes at all.
func (im Imprint) IsZero() bool {
	return len(im.Digest) == 0
}
