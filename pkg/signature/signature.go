package signature

import (
	"fmt"

	"github.com/certenio/ksi-go/pkg/chain"
	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// Signature is a parsed KSI signature: a non-empty ordered list of
// aggregation chains, an optional calendar chain, one of a
// calendar-authentication or publication record (never both), an
// optional aggregation-authentication record, and an optional RFC3161
// record. BaseTLV is the canonical serialized form; Serialize re-emits
// it unchanged outside of whichever subtree a caller has explicitly
// replaced (spec.md §3).
type Signature struct {
	AggregationChains []chain.AggregationChain
	CalendarChain     *chain.CalendarChain
	CalAuth           *CalAuthRecord
	AggrAuth          *AggregationAuthRecord
	Publication       *PublicationRecord
	RFC3161Record     *RFC3161Record
	BaseTLV           *tlv.Tlv
}

// Parse decodes a signature from its wire form and checks every
// signature-level invariant from spec.md §3 that needs no external
// context (document hash, verification level, current time, trust
// material live in pkg/policy.InternalPolicy instead, to keep this package
// independent of pkg/policy). Children are parsed with plain
// tlv.Parse/CastToNested, no unknown-element filtering, so BaseTLV
// retains every byte of the original tree — filtering, where a caller
// wants it, is a deliberate separate call to tlv.FilterUnknown.
func Parse(data []byte) (*Signature, error) {
	root, err := tlv.Parse(data)
	if err != nil {
		return nil, err
	}
	if root.Tag != TagSignature {
		return nil, fmt.Errorf("%w: expected signature tag 0x%x, got 0x%x", ErrInvalidFormat, TagSignature, root.Tag)
	}
	if err := root.CastToNested(); err != nil {
		return nil, err
	}

	sig := &Signature{BaseTLV: root}

	for _, child := range root.Children() {
		switch child.Tag {
		case chain.TagAggregationChain:
			c, err := chain.AggregationChainFromTlv(child)
			if err != nil {
				return nil, err
			}
			sig.AggregationChains = append(sig.AggregationChains, c)
		case chain.TagCalendarChain:
			c, err := chain.CalendarChainFromTlv(child)
			if err != nil {
				return nil, err
			}
			sig.CalendarChain = &c
		case TagCalendarAuthRecV2:
			rec, err := calAuthFromTlv(child, false)
			if err != nil {
				return nil, err
			}
			sig.CalAuth = &rec
		case TagPublicationOrCalAuthV1:
			if isPublicationShaped(child) {
				rec, err := publicationFromTlv(child)
				if err != nil {
					return nil, err
				}
				sig.Publication = &rec
			} else {
				rec, err := calAuthFromTlv(child, true)
				if err != nil {
					return nil, err
				}
				sig.CalAuth = &rec
			}
		case TagAggregationAuthRec:
			rec, err := aggregationAuthFromTlv(child)
			if err != nil {
				return nil, err
			}
			sig.AggrAuth = &rec
		case TagRFC3161Record:
			sig.RFC3161Record = &RFC3161Record{raw: child}
		}
	}

	if err := sig.checkInvariants(); err != nil {
		return nil, err
	}
	return sig, nil
}

// checkInvariants enforces every self-contained invariant from spec.md
// §3's "Invariants (signature-level)" list.
func (s *Signature) checkInvariants() error {
	if len(s.AggregationChains) == 0 {
		return fmt.Errorf("%w: signature has no aggregation chains", ErrInvalidSignature)
	}

	for i := 0; i+1 < len(s.AggregationChains); i++ {
		lower, upper := s.AggregationChains[i], s.AggregationChains[i+1]
		if !lower.IndexExtendsInto(upper) {
			return fmt.Errorf("%w: chain_index %v does not extend into %v", ErrInvalidSignature, lower.ChainIndex, upper.ChainIndex)
		}
		lowerOut, err := lower.Fold(0)
		if err != nil {
			return err
		}
		if !lowerOut.Output.Equal(upper.InputHash) {
			return fmt.Errorf("%w: chain %d output does not match chain %d input hash", ErrInvalidSignature, i, i+1)
		}
	}

	topOut, err := s.AggregationChains[len(s.AggregationChains)-1].Fold(0)
	if err != nil {
		return err
	}

	if s.CalendarChain != nil {
		if !topOut.Output.Equal(s.CalendarChain.InputHash) {
			return fmt.Errorf("%w: topmost aggregation chain output does not match calendar chain input hash", ErrInvalidSignature)
		}
		derived := s.CalendarChain.DeriveAggregationTime()
		if derived != s.CalendarChain.RecordedAggregationTime() {
			return fmt.Errorf("%w: calendar chain implied aggregation time %d does not match recorded %d", ErrInvalidSignature, derived, s.CalendarChain.RecordedAggregationTime())
		}
	}

	if s.CalAuth != nil && s.Publication != nil {
		return fmt.Errorf("%w: cal_auth and publication are mutually exclusive", ErrInvalidSignature)
	}

	if s.CalAuth != nil && s.CalendarChain != nil {
		calRoot, err := s.CalendarChain.Fold()
		if err != nil {
			return err
		}
		if !s.CalAuth.PubData.PublicationHash.Equal(calRoot) {
			return fmt.Errorf("%w: cal_auth pub_hash does not match calendar-chain root", ErrInvalidSignature)
		}
	}

	if s.Publication != nil && s.CalendarChain != nil {
		calRoot, err := s.CalendarChain.Fold()
		if err != nil {
			return err
		}
		if !s.Publication.PubData.PublicationHash.Equal(calRoot) {
			return fmt.Errorf("%w: publication record pub_data does not match calendar-chain root", ErrInvalidSignature)
		}
	}

	return nil
}

// Serialize re-emits BaseTLV, which every parse/build/extend operation
// keeps in sync with the signature's logical contents.
func (s *Signature) Serialize() []byte {
	return tlv.Serialize(s.BaseTLV)
}

// SignerIdentity returns the joined client_id chain and whether any
// legacy pseudo-metadata link contributed to it (spec.md §4.2, §9).
func (s *Signature) SignerIdentity() (identity string, hadLegacy bool) {
	return chain.SignerIdentity(s.AggregationChains)
}

// Extend replaces the calendar chain with one obtained from an
// extender response, discarding the now-obsolete cal_auth and
// attaching newPublication if the caller has one available (spec.md
// §4.3 step 5). The new chain must preserve every Right-direction link
// below the original chain's length, or the extension is rejected as
// incompatible (spec.md §4.3 step 4, §8 "Extension compatibility"):
// an extended chain that silently disagrees with the original below
// the point they diverge would let a server rewrite already-attested
// history.
func (s *Signature) Extend(newChain chain.CalendarChain, newPublication *PublicationRecord) error {
	if s.CalendarChain == nil {
		return fmt.Errorf("%w: signature has no calendar chain to extend", ErrInvalidSignature)
	}
	original := s.CalendarChain.RightLinksBelow(len(s.CalendarChain.Links))
	extended := newChain.RightLinksBelow(len(s.CalendarChain.Links))
	if len(original) != len(extended) {
		return ErrIncompatibleHashChain
	}
	for i := range original {
		if !original[i].SiblingImprint.Equal(extended[i].SiblingImprint) {
			return ErrIncompatibleHashChain
		}
	}

	newChainTlv, err := newChain.ToTlv()
	if err != nil {
		return err
	}

	var oldChainTlv, oldAuthTlv *tlv.Tlv
	for _, c := range s.BaseTLV.Children() {
		switch c.Tag {
		case chain.TagCalendarChain:
			oldChainTlv = c
		case TagCalendarAuthRecV2, TagPublicationOrCalAuthV1:
			if !isPublicationShaped(c) {
				oldAuthTlv = c
			}
		}
	}
	if oldChainTlv == nil {
		return fmt.Errorf("%w: base_tlv has no calendar-chain child to replace", ErrInvalidSignature)
	}
	if err := s.BaseTLV.ReplaceChild(oldChainTlv, newChainTlv); err != nil {
		return err
	}
	if oldAuthTlv != nil {
		if err := s.BaseTLV.RemoveChild(oldAuthTlv); err != nil {
			return err
		}
	}

	s.CalendarChain = &newChain
	s.CalAuth = nil
	s.Publication = newPublication
	if newPublication != nil {
		pubTlv, err := newPublication.toTlv()
		if err != nil {
			return err
		}
		if err := s.BaseTLV.AppendChild(pubTlv); err != nil {
			return err
		}
	}

	return s.checkInvariants()
}

// PrependLocalLinks rewrites the bottommost aggregation chain so it
// starts at docHash instead of whatever root the aggregator actually
// hashed, with localLinks (leaf-to-root order, e.g. from
// chain.LocalAggregationTree.LinksFor) spliced in ahead of the
// aggregator-returned links. This is how a signature covering one leaf
// of a client-side locally aggregated batch is derived from the single
// signature the aggregator issued for the batch's root (SPEC_FULL.md
// §4.2).
func (s *Signature) PrependLocalLinks(docHash hashing.Imprint, localLinks []chain.Link) error {
	if len(s.AggregationChains) == 0 {
		return fmt.Errorf("%w: signature has no aggregation chain to prepend local links to", ErrInvalidSignature)
	}

	bottom := s.AggregationChains[0]
	merged := bottom
	merged.InputHash = docHash
	merged.Links = append(append([]chain.Link{}, localLinks...), bottom.Links...)

	newChainTlv, err := merged.ToTlv()
	if err != nil {
		return err
	}

	var oldChainTlv *tlv.Tlv
	for _, c := range s.BaseTLV.Children() {
		if c.Tag == chain.TagAggregationChain {
			oldChainTlv = c
			break
		}
	}
	if oldChainTlv == nil {
		return fmt.Errorf("%w: base_tlv has no aggregation-chain child to replace", ErrInvalidSignature)
	}
	if err := s.BaseTLV.ReplaceChild(oldChainTlv, newChainTlv); err != nil {
		return err
	}

	s.AggregationChains[0] = merged
	return s.checkInvariants()
}
