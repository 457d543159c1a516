package chain

import (
	"fmt"

	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// AggregationChain is one aggregation hash chain: an ordered link list
// folding a document (or sub-chain output) hash up to a round-root hash
// at AggregationTime. Links are ordered leaf-toward-root (spec.md §3).
type AggregationChain struct {
	AggregationTime uint64
	ChainIndex      []uint64
	InputData       []byte // optional
	InputHash       hashing.Imprint
	Algorithm       hashing.Algorithm
	Links           []Link
}

// Fold computes this chain's output imprint and final level, starting
// from startLevel (the verification context's local-aggregation level,
// normally 0).
func (c AggregationChain) Fold(startLevel int) (FoldResult, error) {
	return FoldAggregation(c.Algorithm, c.InputHash, startLevel, c.Links)
}

// ToTlv serializes the chain into its TagAggregationChain element.
func (c AggregationChain) ToTlv() (*tlv.Tlv, error) {
	var children []*tlv.Tlv

	at, err := tlv.NewUint(tagAggrAggregationTime, false, false, c.AggregationTime)
	if err != nil {
		return nil, err
	}
	children = append(children, at)

	for _, idx := range c.ChainIndex {
		ci, err := tlv.NewUint(tagAggrChainIndex, false, false, idx)
		if err != nil {
			return nil, err
		}
		children = append(children, ci)
	}

	if len(c.InputData) > 0 {
		id, err := tlv.NewRaw(tagAggrInputData, true, false, c.InputData)
		if err != nil {
			return nil, err
		}
		children = append(children, id)
	}

	ih, err := tlv.NewRaw(tagAggrInputHash, false, false, c.InputHash.Bytes())
	if err != nil {
		return nil, err
	}
	children = append(children, ih)

	algo, err := tlv.NewUint(tagAggrAlgorithm, false, false, uint64(c.Algorithm))
	if err != nil {
		return nil, err
	}
	children = append(children, algo)

	for _, l := range c.Links {
		le, err := linkToTlv(l)
		if err != nil {
			return nil, err
		}
		children = append(children, le)
	}

	return tlv.NewNested(TagAggregationChain, false, false, children)
}

// AggregationChainFromTlv decodes an aggregation chain from a
// TagAggregationChain element.
func AggregationChainFromTlv(t *tlv.Tlv) (AggregationChain, error) {
	if t.Tag != TagAggregationChain {
		return AggregationChain{}, fmt.Errorf("%w: expected tag 0x%x, got 0x%x", ErrInvalidChain, TagAggregationChain, t.Tag)
	}
	if err := t.CastToNested(); err != nil {
		return AggregationChain{}, err
	}
	var c AggregationChain

	atEl := t.FirstChild(tagAggrAggregationTime)
	if atEl == nil {
		return AggregationChain{}, fmt.Errorf("%w: aggregation chain missing aggregation time", ErrInvalidChain)
	}
	at, err := atEl.CastToUint()
	if err != nil {
		return AggregationChain{}, err
	}
	c.AggregationTime = at

	for _, ci := range t.AllChildren(tagAggrChainIndex) {
		v, err := ci.CastToUint()
		if err != nil {
			return AggregationChain{}, err
		}
		c.ChainIndex = append(c.ChainIndex, v)
	}

	if idEl := t.FirstChild(tagAggrInputData); idEl != nil {
		c.InputData = idEl.RawValue()
	}

	ihEl := t.FirstChild(tagAggrInputHash)
	if ihEl == nil {
		return AggregationChain{}, fmt.Errorf("%w: aggregation chain missing input hash", ErrInvalidChain)
	}
	ih, err := hashing.ParseImprint(ihEl.RawValue())
	if err != nil {
		return AggregationChain{}, err
	}
	c.InputHash = ih

	algoEl := t.FirstChild(tagAggrAlgorithm)
	if algoEl == nil {
		return AggregationChain{}, fmt.Errorf("%w: aggregation chain missing algorithm", ErrInvalidChain)
	}
	algoV, err := algoEl.CastToUint()
	if err != nil {
		return AggregationChain{}, err
	}
	c.Algorithm = hashing.Algorithm(algoV)

	for _, child := range t.Children() {
		if child.Tag == tagLinkLeft || child.Tag == tagLinkRight {
			l, err := linkFromTlv(child)
			if err != nil {
				return AggregationChain{}, err
			}
			c.Links = append(c.Links, l)
		}
	}
	if len(c.Links) == 0 {
		return AggregationChain{}, fmt.Errorf("%w: aggregation chain has no links", ErrInvalidChain)
	}

	return c, nil
}

// IndexExtendsInto reports whether next's ChainIndex is this chain's
// index with exactly one trailing element appended, i.e. this chain's
// index is a prefix of next's index differing by exactly one element
// (spec.md §3 invariant).
func (c AggregationChain) IndexExtendsInto(next AggregationChain) bool {
	if len(next.ChainIndex) != len(c.ChainIndex)+1 {
		return false
	}
	for i := range c.ChainIndex {
		if c.ChainIndex[i] != next.ChainIndex[i] {
			return false
		}
	}
	return true
}
