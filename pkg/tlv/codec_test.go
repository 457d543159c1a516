package tlv

import (
	"bytes"
	"testing"
)

func TestRoundTripShortForm(t *testing.T) {
	el, err := NewRaw(0x01, false, false, []byte("hello"))
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	wire := Serialize(el)
	if len(wire) != 2+5 {
		t.Fatalf("unexpected wire length %d", len(wire))
	}
	got, err := Parse(wire)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Tag != 0x01 || !bytes.Equal(got.RawValue(), []byte("hello")) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestRoundTripLongForm(t *testing.T) {
	el, err := NewRaw(0x0800, true, true, bytes.Repeat([]byte{0xAB}, 300))
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	wire := Serialize(el)
	got, err := Parse(wire)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Tag != 0x0800 || !got.NonCritical || !got.Forward {
		t.Fatalf("flag/tag mismatch: %+v", got)
	}
	if len(got.RawValue()) != 300 {
		t.Fatalf("payload length mismatch: %d", len(got.RawValue()))
	}
}

func TestNestedRoundTrip(t *testing.T) {
	leaf1, _ := NewUint(0x01, false, false, 42)
	leaf2, _ := NewString(0x02, false, false, "abc")
	parent, err := NewNested(0x800, false, false, []*Tlv{leaf1, leaf2})
	if err != nil {
		t.Fatalf("NewNested: %v", err)
	}
	wire := Serialize(parent)
	got, err := Parse(wire)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := got.CastToNested(); err != nil {
		t.Fatalf("CastToNested: %v", err)
	}
	children := got.Children()
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	v, err := children[0].CastToUint()
	if err != nil || v != 42 {
		t.Fatalf("child 0 uint mismatch: %v %v", v, err)
	}
	s, err := children[1].CastToString()
	if err != nil || s != "abc" {
		t.Fatalf("child 1 string mismatch: %v %v", s, err)
	}
}

func TestDeclaredLengthMismatch(t *testing.T) {
	// Short-form header declaring 5 bytes, but only 3 present.
	data := []byte{0x01, 0x05, 0x01, 0x02, 0x03}
	if _, err := Parse(data); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestTrailingGarbageRejected(t *testing.T) {
	el, _ := NewRaw(0x01, false, false, []byte("x"))
	wire := append(Serialize(el), 0xFF)
	if _, err := Parse(wire); err == nil {
		t.Fatalf("expected error for trailing garbage")
	}
}

func TestUnknownCriticalRejected(t *testing.T) {
	el, _ := NewRaw(0x09, false, false, []byte("x"))
	wire := Serialize(el)
	known := func(tag uint16) bool { return tag != 0x09 }
	_, err := ParseWithOptions(wire, ParseOptions{Known: known, Policy: PolicyIgnoreNonCritical})
	if err == nil {
		t.Fatalf("expected error for unknown critical element")
	}
}

func TestUnknownNonCriticalIgnored(t *testing.T) {
	el, _ := NewRaw(0x09, true, false, []byte("x"))
	wire := Serialize(el)
	known := func(tag uint16) bool { return tag != 0x09 }
	got, err := ParseWithOptions(wire, ParseOptions{Known: known, Policy: PolicyIgnoreNonCritical})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tag != 0x09 {
		t.Fatalf("expected parse to still return the element for inspection")
	}
}

func TestForwardPolicyDropsNonForwardedUnknown(t *testing.T) {
	leafKept, _ := NewRaw(0x09, true, true, []byte("keep"))
	leafDropped, _ := NewRaw(0x0A, true, false, []byte("drop"))
	known1, _ := NewUint(0x01, false, false, 1)
	parent, _ := NewNested(0x800, false, false, []*Tlv{known1, leafKept, leafDropped})
	wire := Serialize(parent)

	known := func(tag uint16) bool { return tag == 0x01 || tag == 0x800 }
	got, err := ParseWithOptions(wire, ParseOptions{Known: known, Policy: PolicyForward})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := got.CastToNested(); err != nil {
		t.Fatalf("CastToNested: %v", err)
	}
	filtered, err := FilterUnknown(got, known, PolicyForward)
	if err != nil {
		t.Fatalf("FilterUnknown: %v", err)
	}
	children := filtered.Children()
	if len(children) != 2 {
		t.Fatalf("expected 2 children after filtering (known + forwarded), got %d", len(children))
	}
}

func TestCastToRawDecouplesFromParent(t *testing.T) {
	leaf, _ := NewUint(0x01, false, false, 7)
	parent, _ := NewNested(0x800, false, false, []*Tlv{leaf})
	parent.CastToRaw()
	if parent.Kind() != KindRaw {
		t.Fatalf("expected raw kind after CastToRaw")
	}
	if err := parent.CastToNested(); err != nil {
		t.Fatalf("re-cast to nested: %v", err)
	}
	if len(parent.Children()) != 1 {
		t.Fatalf("expected child to survive raw round trip")
	}
}

func TestReplaceChildPreservesOrder(t *testing.T) {
	a, _ := NewUint(0x01, false, false, 1)
	b, _ := NewUint(0x02, false, false, 2)
	c, _ := NewUint(0x03, false, false, 3)
	parent, _ := NewNested(0x800, false, false, []*Tlv{a, b, c})

	newB, _ := NewUint(0x02, false, false, 99)
	if err := parent.ReplaceChild(b, newB); err != nil {
		t.Fatalf("ReplaceChild: %v", err)
	}
	children := parent.Children()
	v, _ := children[1].CastToUint()
	if v != 99 {
		t.Fatalf("replacement not applied in place, got %d", v)
	}
	if children[0] != a || children[2] != c {
		t.Fatalf("sibling order disturbed by replacement")
	}
}
