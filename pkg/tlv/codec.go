package tlv

import (
	"encoding/binary"
	"fmt"
)

// UnknownPolicy controls how Parse treats unknown non-critical elements.
// Unknown critical elements are always rejected regardless of policy.
type UnknownPolicy int

const (
	// PolicyIgnoreNonCritical: Parse still returns unknown non-critical
	// elements; FilterUnknown drops them, so a re-serialize of its result
	// omits them.
	PolicyIgnoreNonCritical UnknownPolicy = iota
	// PolicyForward: FilterUnknown keeps unknown elements whose forward
	// bit is set and drops the rest; Parse returns an unknown element
	// without the forward bit with its payload emptied.
	PolicyForward
	// PolicyKeepAll retains every unknown non-critical element regardless
	// of its forward bit (used when the caller has no tag registry at all,
	// e.g. an opaque pass-through parse).
	PolicyKeepAll
)

// KnownTagSet reports whether a (tag) is recognized at the current nesting
// level. Parse consults this to decide whether an element is "unknown".
// A nil KnownTagSet means every tag is treated as known (no filtering).
type KnownTagSet func(tag uint16) bool

// ParseOptions configures Parse.
type ParseOptions struct {
	Known  KnownTagSet
	Policy UnknownPolicy
}

// Parse decodes exactly one TLV element from data and asserts that the
// entire input is consumed by that single element (trailing bytes are an
// error). The payload is kept raw; call CastToNested to decode it into
// children.
func Parse(data []byte) (*Tlv, error) {
	return ParseWithOptions(data, ParseOptions{})
}

// ParseWithOptions is Parse with explicit unknown-element handling.
func ParseWithOptions(data []byte, opts ParseOptions) (*Tlv, error) {
	el, n, err := parseOne(data, opts)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after element", ErrInvalidFormat, len(data)-n)
	}
	return el, nil
}

// parseSequence decodes data as a back-to-back sequence of TLV elements
// (used for CastToNested and for decoding a parent's full child list).
func parseSequence(data []byte) ([]*Tlv, error) {
	var out []*Tlv
	rest := data
	for len(rest) > 0 {
		el, n, err := parseOne(rest, ParseOptions{})
		if err != nil {
			return nil, err
		}
		out = append(out, el)
		rest = rest[n:]
	}
	return out, nil
}

// parseOne decodes one element from the front of data, returning the
// element and the number of bytes consumed.
func parseOne(data []byte, opts ParseOptions) (*Tlv, int, error) {
	if len(data) < 2 {
		return nil, 0, fmt.Errorf("%w: header truncated", ErrInvalidFormat)
	}
	first := data[0]
	longForm := first&0x80 != 0
	nonCritical := first&0x40 != 0
	forward := first&0x20 != 0

	var tag uint16
	var length int
	var headerLen int
	var payloadStart int

	if !longForm {
		tag = uint16(first & 0x1F)
		length = int(data[1])
		headerLen = 2
	} else {
		if len(data) < 4 {
			return nil, 0, fmt.Errorf("%w: long-form header truncated", ErrInvalidFormat)
		}
		tagHigh := uint16(first&0x1F) << 8
		tagLow := uint16(data[1])
		tag = tagHigh | tagLow
		length = int(binary.BigEndian.Uint16(data[2:4]))
		headerLen = 4
	}
	payloadStart = headerLen
	payloadEnd := payloadStart + length
	if payloadEnd > len(data) {
		return nil, 0, fmt.Errorf("%w: declared length %d exceeds remaining %d bytes", ErrInvalidFormat, length, len(data)-payloadStart)
	}
	payload := data[payloadStart:payloadEnd]

	known := true
	if opts.Known != nil {
		known = opts.Known(tag)
	}
	if !known && !nonCritical {
		return nil, 0, fmt.Errorf("%w: unknown critical element, tag 0x%x", ErrInvalidFormat, tag)
	}
	if !known {
		switch opts.Policy {
		case PolicyForward:
			if !forward {
				// Unknown, non-critical, not marked forward: return a
				// payload-less stub and advance past the whole element.
				return &Tlv{Tag: tag, NonCritical: true, Forward: false, kind: KindRaw, raw: nil, longForm: longForm}, payloadEnd, nil
			}
		case PolicyIgnoreNonCritical:
			// fallthrough: still keep the element in the returned tree;
			// callers using this policy for re-serialization drop it
			// themselves via a filtering pass (see FilterUnknown).
		case PolicyKeepAll:
		}
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	el := &Tlv{Tag: tag, NonCritical: nonCritical, Forward: forward, kind: KindRaw, raw: buf, longForm: longForm}
	return el, payloadEnd, nil
}

// Serialize emits the canonical wire form of t. Nested elements recurse.
// Short form is used whenever tag<=0x1F and length<=0xFF; otherwise long
// form is emitted. An element originally decoded in long form is
// re-emitted in long form even if it would now fit short form, preserving
// byte-stability for untouched subtrees (spec.md §3 "base_tlv ... all
// mutations preserve byte-stability outside the specific subtree replaced").
func Serialize(t *Tlv) []byte {
	payload := t.RawValue()
	useLong := t.longForm || t.Tag > 0x1F || len(payload) > 0xFF

	var out []byte
	first := byte(0)
	if t.NonCritical {
		first |= 0x40
	}
	if t.Forward {
		first |= 0x20
	}
	if useLong {
		first |= 0x80
		first |= byte((t.Tag >> 8) & 0x1F)
		out = append(out, first, byte(t.Tag&0xFF))
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
		out = append(out, lenBuf[:]...)
	} else {
		first |= byte(t.Tag & 0x1F)
		out = append(out, first, byte(len(payload)))
	}
	out = append(out, payload...)
	return out
}

// FilterUnknown returns a copy of t with unknown non-critical elements
// dropped from every nested level, according to known and policy. Known
// elements, and unknown elements kept per policy (Forward with forward
// bit set, or KeepAll), are retained. Critical-unknown elements should
// already have been rejected at parse time; FilterUnknown treats any
// that slipped through the same way Parse does (it is a bug if they
// appear here, so FilterUnknown errors rather than silently dropping).
func FilterUnknown(t *Tlv, known KnownTagSet, policy UnknownPolicy) (*Tlv, error) {
	if known == nil || t.kind != KindNested {
		return t, nil
	}
	filtered := make([]*Tlv, 0, len(t.children))
	for _, c := range t.children {
		if known(c.Tag) {
			fc, err := FilterUnknown(c, known, policy)
			if err != nil {
				return nil, err
			}
			filtered = append(filtered, fc)
			continue
		}
		if !c.NonCritical {
			return nil, fmt.Errorf("%w: unknown critical element, tag 0x%x", ErrInvalidFormat, c.Tag)
		}
		switch policy {
		case PolicyForward:
			if c.Forward {
				filtered = append(filtered, c)
			}
		case PolicyKeepAll:
			filtered = append(filtered, c)
		case PolicyIgnoreNonCritical:
			// drop
		}
	}
	out := *t
	out.children = filtered
	return &out, nil
}
