// Package chain implements hash-chain links, aggregation hash chains,
// calendar hash chains, the folding algebra that computes their outputs,
// signer-identity extraction, and a local-aggregation tree builder for
// combining multiple document hashes into one aggregator request.
package chain

import (
	"errors"
	"fmt"

	"github.com/certenio/ksi-go/pkg/hashing"
)

// Direction indicates which side of the running hash a link's sibling
// value is concatenated on during folding.
type Direction int

const (
	Left Direction = iota
	Right
)

// Metadata is the structured sibling payload carried by an aggregation
// link that records who requested aggregation, rather than a sibling
// hash. Per spec.md §3 it is serialized with a leading padding octet so
// its wire length differs from an Imprint's.
type Metadata struct {
	ClientID    string
	MachineID   string // optional; empty means absent
	SequenceNr  uint64
	HasSeqNr    bool
	RequestTime uint64
	HasReqTime  bool
	// Legacy records the sibling was a raw pre-metadata pseudo-metadata
	// blob (spec.md §9 open question) rather than a proper Metadata TLV.
	// ClientID holds the opaque legacy token in that case.
	Legacy bool
}

// SiblingKind distinguishes a link's sibling payload variant.
type SiblingKind int

const (
	SiblingImprint SiblingKind = iota
	SiblingMetadata
)

// ErrInvalidChain is returned for structurally or algebraically invalid
// chains (non-monotonic levels, unordered chain index, level overflow).
var ErrInvalidChain = errors.New("chain: invalid hash chain")

// Link is one hash-chain step: a direction, a sibling (imprint or
// metadata), and a level correction.
type Link struct {
	Direction       Direction
	SiblingKind     SiblingKind
	SiblingImprint  hashing.Imprint
	SiblingMetadata Metadata
	LevelCorrection uint8
}

// NewImprintLink builds a link whose sibling is a plain hash imprint.
func NewImprintLink(dir Direction, sibling hashing.Imprint, levelCorrection uint8) Link {
	return Link{Direction: dir, SiblingKind: SiblingImprint, SiblingImprint: sibling, LevelCorrection: levelCorrection}
}

// NewMetadataLink builds a link whose sibling records requester metadata
// instead of a sibling hash value. Metadata links may only appear in
// aggregation chains, never in calendar chains (spec.md §3 invariant).
func NewMetadataLink(dir Direction, md Metadata, levelCorrection uint8) Link {
	return Link{Direction: dir, SiblingKind: SiblingMetadata, SiblingMetadata: md, LevelCorrection: levelCorrection}
}

// siblingIsMetadata reports whether this link's sibling is metadata
// rather than an imprint. Neither kind stores a per-link level; the
// running level is threaded by Fold (see fold.go).
func (l Link) siblingIsMetadata() bool {
	return l.SiblingKind == SiblingMetadata
}

func (l Link) String() string {
	dir := "L"
	if l.Direction == Right {
		dir = "R"
	}
	if l.siblingIsMetadata() {
		return fmt.Sprintf("Link{%s meta client=%q lvl+%d}", dir, l.SiblingMetadata.ClientID, l.LevelCorrection)
	}
	return fmt.Sprintf("Link{%s sibling=%s lvl+%d}", dir, l.SiblingImprint, l.LevelCorrection)
}
