// Package hashing implements the KSI hash algorithm registry and the
// data-hash imprint type used pervasively by the TLV codec and the
// hash-chain engine.
package hashing

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"
)

// Algorithm identifies a KSI hash function by its one-octet wire id.
type Algorithm byte

// Algorithm identifiers, as assigned by the KSI hash algorithm registry.
const (
	SHA1       Algorithm = 0x00
	SHA256     Algorithm = 0x01
	RIPEMD160  Algorithm = 0x02
	SHA384     Algorithm = 0x04
	SHA512     Algorithm = 0x05
	SHA3_256   Algorithm = 0x07
	SM3        Algorithm = 0x08
)

// Descriptor carries the registry metadata for one algorithm.
type Descriptor struct {
	ID               Algorithm
	Name             string
	DigestLength     int
	DeprecatedSince  int64 // unix seconds; 0 means never
	ObsoleteSince    int64 // unix seconds; 0 means never
	newHash          func() hash.Hash
}

var registry = map[Algorithm]*Descriptor{
	SHA1: {
		ID: SHA1, Name: "SHA-1", DigestLength: 20,
		DeprecatedSince: 1467331200, // 2016-07-01
		newHash:         nil,        // intentionally unsupported for new computation
	},
	SHA256: {
		ID: SHA256, Name: "SHA-256", DigestLength: 32,
		newHash: sha256.New,
	},
	SHA384: {
		ID: SHA384, Name: "SHA-384", DigestLength: 48,
		newHash: sha512.New384,
	},
	SHA512: {
		ID: SHA512, Name: "SHA-512", DigestLength: 64,
		newHash: sha512.New,
	},
	SHA3_256: {
		ID: SHA3_256, Name: "SHA3-256", DigestLength: 32,
		newHash: sha3.New256,
	},
}

// ErrUnknownAlgorithm is returned for an algorithm id absent from the registry.
type ErrUnknownAlgorithm struct{ ID Algorithm }

func (e *ErrUnknownAlgorithm) Error() string {
	return fmt.Sprintf("hashing: unknown algorithm id 0x%02x", byte(e.ID))
}

// Describe looks up an algorithm's registry entry.
func Describe(id Algorithm) (*Descriptor, error) {
	d, ok := registry[id]
	if !ok {
		return nil, &ErrUnknownAlgorithm{ID: id}
	}
	return d, nil
}

// DigestLength returns the digest length in bytes for id, or an error if unknown.
func DigestLength(id Algorithm) (int, error) {
	d, err := Describe(id)
	if err != nil {
		return 0, err
	}
	return d.DigestLength, nil
}

// Deprecated reports whether id is deprecated as of t (unix seconds).
func Deprecated(id Algorithm, t int64) bool {
	d, err := Describe(id)
	if err != nil {
		return true
	}
	return d.DeprecatedSince != 0 && t >= d.DeprecatedSince
}

// Obsolete reports whether id is obsolete as of t (unix seconds).
func Obsolete(id Algorithm, t int64) bool {
	d, err := Describe(id)
	if err != nil {
		return true
	}
	return d.ObsoleteSince != 0 && t >= d.ObsoleteSince
}

// New returns a fresh hash.Hash for id. Returns an error if the algorithm
// has no computation support (e.g. SHA-1, kept only for legacy verification
// of existing imprints via an external collaborator).
func New(id Algorithm) (hash.Hash, error) {
	d, err := Describe(id)
	if err != nil {
		return nil, err
	}
	if d.newHash == nil {
		return nil, fmt.Errorf("hashing: algorithm %s has no in-process digest support", d.Name)
	}
	return d.newHash(), nil
}

// String renders the algorithm's registry name, or its raw octet if unknown.
func (a Algorithm) String() string {
	if d, err := Describe(a); err == nil {
		return d.Name
	}
	return fmt.Sprintf("0x%02x", byte(a))
}

// Sum computes the digest of data under algorithm id.
func Sum(id Algorithm, data ...[]byte) ([]byte, error) {
	h, err := New(id)
	if err != nil {
		return nil, err
	}
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil), nil
}
