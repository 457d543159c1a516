package chain

import (
	"sync"

	"github.com/certenio/ksi-go/pkg/hashing"
)

// LocalAggregationTree combines several document-hash leaves into one
// local root hash by building a binary hash tree, the way a client can
// aggregate more than one document before submitting a single
// aggregation request. For each leaf it derives the ordered Link list
// from that leaf up to the local root, suitable for prepending to the
// links the aggregator itself returns (see SPEC_FULL.md §4.2, grounded
// on pkg/merkle.Tree's level-by-level build and pkg/merkle.Receipt's
// per-leaf proof-path extraction, adapted to emit Direction/level-
// correction-bearing Links and to use the configured hashing.Algorithm
// instead of a hardcoded SHA-256).
type LocalAggregationTree struct {
	mu     sync.RWMutex
	algo   hashing.Algorithm
	leaves []hashing.Imprint
	levels [][]hashing.Imprint
	paths  [][]Link
	root   hashing.Imprint
	built  bool
}

// BuildLocalAggregationTree constructs and folds a tree over leaves.
// Returns an error if leaves is empty or any leaf's algorithm does not
// match algo (all leaves and internal nodes share one aggregation
// algorithm, mirroring AggregationChain.Algorithm).
func BuildLocalAggregationTree(algo hashing.Algorithm, leaves []hashing.Imprint) (*LocalAggregationTree, error) {
	if len(leaves) == 0 {
		return nil, ErrInvalidChain
	}
	for _, l := range leaves {
		if l.Algorithm != algo {
			return nil, ErrInvalidChain
		}
	}
	t := &LocalAggregationTree{algo: algo, leaves: append([]hashing.Imprint(nil), leaves...)}
	if err := t.build(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *LocalAggregationTree) build() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	type node struct {
		hash  hashing.Imprint
		level int
	}
	current := make([]node, len(t.leaves))
	for i, l := range t.leaves {
		current[i] = node{hash: l, level: 0}
	}
	paths := make([][]Link, len(t.leaves))

	// indices tracks, for each current-level slot, which original leaf
	// indices it represents (so we can append the right Link to each).
	indices := make([][]int, len(current))
	for i := range current {
		indices[i] = []int{i}
	}

	for len(current) > 1 {
		var next []node
		var nextIdx [][]int
		for i := 0; i < len(current); i += 2 {
			left := current[i]
			right := current[i]
			haveRight := i+1 < len(current)
			if haveRight {
				right = current[i+1]
			}
			lvl := max(left.level, right.level) + 1

			// Mirrors FoldAggregation's own concatenation rule exactly
			// (left||right||level_byte) so that folding either child's
			// emitted Link against its own running hash reproduces this
			// same parent hash.
			concat := append(append([]byte{}, left.hash.Bytes()...), right.hash.Bytes()...)
			concat = append(concat, byte(lvl))
			h, err := hashing.ComputeImprint(t.algo, concat)
			if err != nil {
				return err
			}

			for _, leafIdx := range indices[i] {
				paths[leafIdx] = append(paths[leafIdx], NewImprintLink(Left, right.hash, uint8(lvl-left.level-1)))
			}
			if haveRight {
				for _, leafIdx := range indices[i+1] {
					paths[leafIdx] = append(paths[leafIdx], NewImprintLink(Right, left.hash, uint8(lvl-right.level-1)))
				}
				nextIdx = append(nextIdx, append(append([]int{}, indices[i]...), indices[i+1]...))
			} else {
				nextIdx = append(nextIdx, indices[i])
			}
			next = append(next, node{hash: h, level: lvl})
		}
		current = next
		indices = nextIdx
	}

	t.root = current[0].hash
	t.paths = paths
	t.built = true
	return nil
}

// Root returns the local aggregation root.
func (t *LocalAggregationTree) Root() hashing.Imprint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// LeafCount returns the number of leaves folded into this tree.
func (t *LocalAggregationTree) LeafCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.leaves)
}

// LinksFor returns the ordered leaf-to-root Link list for leaf index i,
// suitable for use as the head of an AggregationChain.Links: the
// aggregator only ever saw this tree's Root, so the links it returns
// continue the fold from there, and belong after these, not before
// (see pkg/client.Signer.SignDocuments, signature.Signature.PrependLocalLinks).
func (t *LocalAggregationTree) LinksFor(i int) []Link {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.paths) {
		return nil
	}
	out := make([]Link, len(t.paths[i]))
	copy(out, t.paths[i])
	return out
}
