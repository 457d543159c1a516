package chain

import (
	"testing"

	"github.com/certenio/ksi-go/pkg/hashing"
)

func imprintOf(t *testing.T, data string) hashing.Imprint {
	t.Helper()
	im, err := hashing.ComputeImprint(hashing.SHA256, []byte(data))
	if err != nil {
		t.Fatalf("ComputeImprint: %v", err)
	}
	return im
}

func TestFoldAggregationSingleLeftLink(t *testing.T) {
	input := imprintOf(t, "doc")
	sib := imprintOf(t, "sibling")
	links := []Link{NewImprintLink(Left, sib, 0)}

	res, err := FoldAggregation(hashing.SHA256, input, 0, links)
	if err != nil {
		t.Fatalf("FoldAggregation: %v", err)
	}
	if res.Level != 1 {
		t.Fatalf("level = %d, want 1", res.Level)
	}
	want, err := hashing.ComputeImprint(hashing.SHA256, append(append(append([]byte{}, input.Bytes()...), sib.Bytes()...), byte(1)))
	if err != nil {
		t.Fatalf("ComputeImprint: %v", err)
	}
	if !res.Output.Equal(want) {
		t.Fatalf("output = %s, want %s", res.Output, want)
	}
}

func TestFoldAggregationLevelOverflow(t *testing.T) {
	input := imprintOf(t, "doc")
	sib := imprintOf(t, "sibling")
	links := []Link{NewImprintLink(Left, sib, 255)}
	if _, err := FoldAggregation(hashing.SHA256, input, 0, links); err == nil {
		t.Fatal("expected level overflow error")
	}
}

func TestFoldCalendarNoLevelByte(t *testing.T) {
	input := imprintOf(t, "round-root")
	sib := imprintOf(t, "calendar-sibling")
	links := []Link{NewImprintLink(Right, sib, 0)}

	got, err := FoldCalendar(input, links)
	if err != nil {
		t.Fatalf("FoldCalendar: %v", err)
	}
	want, err := hashing.ComputeImprint(hashing.SHA256, append(append([]byte{}, sib.Bytes()...), input.Bytes()...))
	if err != nil {
		t.Fatalf("ComputeImprint: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("got = %s, want %s", got, want)
	}
}

func TestFoldCalendarRejectsMetadataLink(t *testing.T) {
	input := imprintOf(t, "round-root")
	links := []Link{NewMetadataLink(Left, Metadata{ClientID: "anon"}, 0)}
	if _, err := FoldCalendar(input, links); err == nil {
		t.Fatal("expected error for metadata link in calendar chain")
	}
}

func TestAggregationChainTlvRoundTrip(t *testing.T) {
	c := AggregationChain{
		AggregationTime: 1700000000,
		ChainIndex:      []uint64{1, 2, 3},
		InputHash:       imprintOf(t, "doc"),
		Algorithm:       hashing.SHA256,
		Links: []Link{
			NewImprintLink(Left, imprintOf(t, "s1"), 0),
			NewMetadataLink(Right, Metadata{ClientID: "gw-1", HasSeqNr: true, SequenceNr: 42}, 1),
		},
	}
	el, err := c.ToTlv()
	if err != nil {
		t.Fatalf("ToTlv: %v", err)
	}
	got, err := AggregationChainFromTlv(el)
	if err != nil {
		t.Fatalf("AggregationChainFromTlv: %v", err)
	}
	if got.AggregationTime != c.AggregationTime {
		t.Errorf("AggregationTime = %d, want %d", got.AggregationTime, c.AggregationTime)
	}
	if len(got.ChainIndex) != 3 || got.ChainIndex[2] != 3 {
		t.Errorf("ChainIndex = %v, want %v", got.ChainIndex, c.ChainIndex)
	}
	if len(got.Links) != 2 {
		t.Fatalf("len(Links) = %d, want 2", len(got.Links))
	}
	if got.Links[1].SiblingMetadata.ClientID != "gw-1" || got.Links[1].SiblingMetadata.SequenceNr != 42 {
		t.Errorf("metadata round-trip mismatch: %+v", got.Links[1].SiblingMetadata)
	}
}

func TestCalendarChainRejectsMetadataLinkOnParse(t *testing.T) {
	c := CalendarChain{PublicationTime: 1700000000, InputHash: imprintOf(t, "root")}
	el, err := c.ToTlv()
	if err != nil {
		t.Fatalf("ToTlv: %v", err)
	}
	bad := NewMetadataLink(Left, Metadata{ClientID: "x"}, 0)
	child, err := linkToTlv(bad)
	if err != nil {
		t.Fatalf("linkToTlv: %v", err)
	}
	if err := el.AppendChild(child); err != nil {
		t.Fatalf("AppendChild: %v", err)
	}
	if _, err := CalendarChainFromTlv(el); err == nil {
		t.Fatal("expected error decoding calendar chain with metadata link")
	}
}

func TestIndexExtendsInto(t *testing.T) {
	a := AggregationChain{ChainIndex: []uint64{1, 2}}
	b := AggregationChain{ChainIndex: []uint64{1, 2, 3}}
	c := AggregationChain{ChainIndex: []uint64{1, 9, 3}}
	d := AggregationChain{ChainIndex: []uint64{1, 2}}

	if !a.IndexExtendsInto(b) {
		t.Error("expected a to extend into b")
	}
	if a.IndexExtendsInto(c) {
		t.Error("did not expect a to extend into c (diverges at element 1)")
	}
	if a.IndexExtendsInto(d) {
		t.Error("did not expect a to extend into d (same length)")
	}
}

func TestSignerIdentityJoinsClientIDs(t *testing.T) {
	chains := []AggregationChain{
		{Links: []Link{
			NewMetadataLink(Left, Metadata{ClientID: "gw"}, 0),
			NewImprintLink(Right, imprintOf(t, "s"), 0),
		}},
		{Links: []Link{
			NewMetadataLink(Left, Metadata{ClientID: "agg-3"}, 0),
		}},
	}
	id, legacy := SignerIdentity(chains)
	if id != "gw.agg-3" {
		t.Errorf("identity = %q, want %q", id, "gw.agg-3")
	}
	if legacy {
		t.Error("did not expect legacy flag")
	}
}

func TestSignerIdentityFlagsLegacy(t *testing.T) {
	chains := []AggregationChain{
		{Links: []Link{NewMetadataLink(Left, legacyMetadataFrom([]byte("old-token")), 0)}},
	}
	id, legacy := SignerIdentity(chains)
	if id != "old-token" {
		t.Errorf("identity = %q, want %q", id, "old-token")
	}
	if !legacy {
		t.Error("expected legacy flag")
	}
}

func TestCalendarDerivedAggregationTimeBelowPublicationTime(t *testing.T) {
	c := CalendarChain{
		PublicationTime: 1700001000,
		Links: []Link{
			NewImprintLink(Left, imprintOf(t, "s0"), 0),
			NewImprintLink(Right, imprintOf(t, "s1"), 0),
			NewImprintLink(Left, imprintOf(t, "s2"), 0),
		},
	}
	derived := c.DeriveAggregationTime()
	if derived >= c.PublicationTime {
		t.Errorf("derived aggregation time %d should be strictly below publication time %d", derived, c.PublicationTime)
	}
}

func TestLocalAggregationTreeSingleLeafIsRoot(t *testing.T) {
	leaf := imprintOf(t, "only-doc")
	tree, err := BuildLocalAggregationTree(hashing.SHA256, []hashing.Imprint{leaf})
	if err != nil {
		t.Fatalf("BuildLocalAggregationTree: %v", err)
	}
	if tree.LeafCount() != 1 {
		t.Fatalf("LeafCount = %d, want 1", tree.LeafCount())
	}
	if len(tree.LinksFor(0)) != 0 {
		t.Fatalf("single-leaf tree should have an empty path, got %d links", len(tree.LinksFor(0)))
	}
	if !tree.Root().Equal(leaf) {
		t.Fatalf("root = %s, want %s", tree.Root(), leaf)
	}
}

func TestLocalAggregationTreeEveryLeafFoldsToRoot(t *testing.T) {
	docs := []string{"a", "b", "c", "d", "e"}
	leaves := make([]hashing.Imprint, len(docs))
	for i, d := range docs {
		leaves[i] = imprintOf(t, d)
	}
	tree, err := BuildLocalAggregationTree(hashing.SHA256, leaves)
	if err != nil {
		t.Fatalf("BuildLocalAggregationTree: %v", err)
	}
	for i, leaf := range leaves {
		links := tree.LinksFor(i)
		res, err := FoldAggregation(hashing.SHA256, leaf, 0, links)
		if err != nil {
			t.Fatalf("leaf %d: FoldAggregation: %v", i, err)
		}
		if !res.Output.Equal(tree.Root()) {
			t.Errorf("leaf %d: folded root = %s, want %s", i, res.Output, tree.Root())
		}
	}
}

func TestLocalAggregationTreeRejectsEmptyLeafSet(t *testing.T) {
	if _, err := BuildLocalAggregationTree(hashing.SHA256, nil); err == nil {
		t.Fatal("expected error for empty leaf set")
	}
}
