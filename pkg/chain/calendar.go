package chain

import (
	"fmt"

	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// CalendarChain is the chain from a round-root to the calendar root at
// PublicationTime. AggregationTime, if present, is the recorded
// aggregation time the chain claims to represent; DeriveAggregationTime
// computes what the chain's own shape implies, and the two must match
// for a valid signature (spec.md §4.2).
type CalendarChain struct {
	PublicationTime uint64
	AggregationTime uint64
	HasAggrTime     bool
	InputHash       hashing.Imprint
	Links           []Link
}

// Fold computes the calendar root implied by this chain.
func (c CalendarChain) Fold() (hashing.Imprint, error) {
	return FoldCalendar(c.InputHash, c.Links)
}

// RecordedAggregationTime returns the chain's recorded aggregation time,
// falling back to PublicationTime when absent (spec.md §8 "Calendar time
// derivation" property).
func (c CalendarChain) RecordedAggregationTime() uint64 {
	if c.HasAggrTime {
		return c.AggregationTime
	}
	return c.PublicationTime
}

// DeriveAggregationTime computes the aggregation time implied by the
// chain's shape: starting from PublicationTime, each link descended
// (from the root toward the leaf, i.e. iterating the link list in
// reverse) halves the remaining time window, and a Right-direction link
// (meaning the leaf subtree hangs to the left of its sibling, so the
// sibling covers the earlier half) keeps the lower half, while a Left
// link keeps the upper half. This mirrors the classic KSI calendar
// value - every round's time slot is represented by one root-to-leaf
// binary descent through calendar time, most-significant bit first.
func (c CalendarChain) DeriveAggregationTime() uint64 {
	t := c.PublicationTime
	// Walk links from the one nearest the root (last in the leaf-to-root
	// ordered list) down to the one nearest the leaf (first).
	shift := uint64(1)
	for range c.Links {
		shift <<= 1
	}
	if shift == 0 {
		return t
	}
	r := uint64(0)
	for i := len(c.Links) - 1; i >= 0; i-- {
		r <<= 1
		if c.Links[i].Direction == Right {
			r |= 1
		}
	}
	return t - r
}

// ToTlv serializes the calendar chain into its TagCalendarChain element.
func (c CalendarChain) ToTlv() (*tlv.Tlv, error) {
	var children []*tlv.Tlv

	pt, err := tlv.NewUint(tagCalPublicationTime, false, false, c.PublicationTime)
	if err != nil {
		return nil, err
	}
	children = append(children, pt)

	if c.HasAggrTime {
		at, err := tlv.NewUint(tagCalAggregationTime, false, false, c.AggregationTime)
		if err != nil {
			return nil, err
		}
		children = append(children, at)
	}

	ih, err := tlv.NewRaw(tagCalInputHash, false, false, c.InputHash.Bytes())
	if err != nil {
		return nil, err
	}
	children = append(children, ih)

	for _, l := range c.Links {
		if l.SiblingKind != SiblingImprint {
			return nil, fmt.Errorf("%w: calendar chain link carries metadata", ErrInvalidChain)
		}
		le, err := linkToTlv(l)
		if err != nil {
			return nil, err
		}
		children = append(children, le)
	}

	return tlv.NewNested(TagCalendarChain, false, false, children)
}

// CalendarChainFromTlv decodes a calendar chain from a TagCalendarChain
// element.
func CalendarChainFromTlv(t *tlv.Tlv) (CalendarChain, error) {
	if t.Tag != TagCalendarChain {
		return CalendarChain{}, fmt.Errorf("%w: expected tag 0x%x, got 0x%x", ErrInvalidChain, TagCalendarChain, t.Tag)
	}
	if err := t.CastToNested(); err != nil {
		return CalendarChain{}, err
	}
	var c CalendarChain

	ptEl := t.FirstChild(tagCalPublicationTime)
	if ptEl == nil {
		return CalendarChain{}, fmt.Errorf("%w: calendar chain missing publication time", ErrInvalidChain)
	}
	pt, err := ptEl.CastToUint()
	if err != nil {
		return CalendarChain{}, err
	}
	c.PublicationTime = pt

	if atEl := t.FirstChild(tagCalAggregationTime); atEl != nil {
		at, err := atEl.CastToUint()
		if err != nil {
			return CalendarChain{}, err
		}
		c.AggregationTime = at
		c.HasAggrTime = true
	}

	ihEl := t.FirstChild(tagCalInputHash)
	if ihEl == nil {
		return CalendarChain{}, fmt.Errorf("%w: calendar chain missing input hash", ErrInvalidChain)
	}
	ih, err := hashing.ParseImprint(ihEl.RawValue())
	if err != nil {
		return CalendarChain{}, err
	}
	c.InputHash = ih

	for _, child := range t.Children() {
		if child.Tag == tagLinkLeft || child.Tag == tagLinkRight {
			l, err := linkFromTlv(child)
			if err != nil {
				return CalendarChain{}, err
			}
			if l.SiblingKind != SiblingImprint {
				return CalendarChain{}, fmt.Errorf("%w: calendar chain link carries metadata", ErrInvalidChain)
			}
			c.Links = append(c.Links, l)
		}
	}

	return c, nil
}

// RightLinksBelow returns every Right-direction link among the first
// cutoffLinkCount links (counted from the leaf), used by
// extension-compatibility checking (spec.md §4.3, §8).
// Per this chain's encoding, link i (0-indexed from the leaf) covers a
// time window of width 2^i; a Right link "roots" a span below the
// current node, so every Right link is, by construction, already below
// the publication time its position represents. RightLinksBelow simply
// returns all Right links at indices below cutoffLinkCount, which is
// what extension compatibility compares between an original and
// extended chain.
func (c CalendarChain) RightLinksBelow(cutoffLinkCount int) []Link {
	var out []Link
	for i, l := range c.Links {
		if i >= cutoffLinkCount {
			break
		}
		if l.Direction == Right {
			out = append(out, l)
		}
	}
	return out
}
