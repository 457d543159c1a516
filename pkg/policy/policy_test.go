package policy

import (
	"testing"

	"github.com/certenio/ksi-go/pkg/chain"
	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/pubfile"
	"github.com/certenio/ksi-go/pkg/signature"
)

func imprintOf(t *testing.T, data string) hashing.Imprint {
	t.Helper()
	im, err := hashing.ComputeImprint(hashing.SHA256, []byte(data))
	if err != nil {
		t.Fatalf("ComputeImprint: %v", err)
	}
	return im
}

// singleChainSignature mirrors pkg/signature's own test fixture: one
// aggregation chain folding directly into a no-link calendar chain.
func singleChainSignature(t *testing.T) *signature.Signature {
	t.Helper()
	doc := imprintOf(t, "doc")
	sib := imprintOf(t, "sibling")

	ac := chain.AggregationChain{
		AggregationTime: 1000,
		ChainIndex:      []uint64{1},
		InputHash:       doc,
		Algorithm:       hashing.SHA256,
		Links:           []chain.Link{chain.NewImprintLink(chain.Left, sib, 0)},
	}
	out, err := ac.Fold(0)
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}

	cc := chain.CalendarChain{PublicationTime: 1000, InputHash: out.Output}

	sig, err := signature.NewBuilder().WithAggregationChain(ac).WithCalendarChain(cc).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return sig
}

func TestInternalPolicyOkOnWellFormedSignature(t *testing.T) {
	sig := singleChainSignature(t)
	result := InternalPolicy().Evaluate(&VerificationContext{Signature: sig, Now: 2000000000})
	if result.Final.Outcome != Ok {
		t.Fatalf("got %v (%s): %s", result.Final.Outcome, result.ErrorCode, result.Final.Message)
	}
}

func TestInternalPolicyIsIdempotent(t *testing.T) {
	sig := singleChainSignature(t)
	ctx := &VerificationContext{Signature: sig, Now: 2000000000}
	first := InternalPolicy().Evaluate(ctx)
	second := InternalPolicy().Evaluate(ctx)
	if first.Final.Outcome != second.Final.Outcome || first.ErrorCode != second.ErrorCode {
		t.Fatalf("internal policy is not idempotent: %v != %v", first, second)
	}
}

func TestInternalPolicyRejectsLevelBelowLocalAggregation(t *testing.T) {
	sig := singleChainSignature(t)
	result := InternalPolicy().Evaluate(&VerificationContext{Signature: sig, Level: 5, Now: 2000000000})
	if result.Final.Outcome != Fail || result.ErrorCode != "GEN-3" {
		t.Fatalf("got %v (%s), want Fail(GEN-3)", result.Final.Outcome, result.ErrorCode)
	}
}

func TestInternalPolicyRejectsDocumentHashMismatch(t *testing.T) {
	sig := singleChainSignature(t)
	wrong := imprintOf(t, "not the document")
	result := InternalPolicy().Evaluate(&VerificationContext{Signature: sig, DocumentHash: &wrong, Now: 2000000000})
	if result.Final.Outcome != Fail || result.ErrorCode != "INT-4" {
		t.Fatalf("got %v (%s), want Fail(INT-4)", result.Final.Outcome, result.ErrorCode)
	}
}

// fakeExtender returns a fixed calendar chain regardless of the
// requested aggregation/publication time, for exercising the
// calendar-based and publication-based fallback rules.
type fakeExtender struct {
	chain chain.CalendarChain
	err   error
}

func (f *fakeExtender) Extend(aggregationTime uint64, publicationTime *uint64) (chain.CalendarChain, error) {
	if f.err != nil {
		return chain.CalendarChain{}, f.err
	}
	return f.chain, nil
}

func TestCalendarPolicyNaWithoutExtender(t *testing.T) {
	sig := singleChainSignature(t)
	result := CalendarPolicy().Evaluate(&VerificationContext{Signature: sig, AllowExtending: true})
	if result.Final.Outcome != Fail || result.ErrorCode != "GEN-1" {
		t.Fatalf("got %v (%s), want the fallback-exhausted GEN-1 failure", result.Final.Outcome, result.ErrorCode)
	}
}

func TestCalendarPolicyOkWhenExtenderAgrees(t *testing.T) {
	sig := singleChainSignature(t)
	result := CalendarPolicy().Evaluate(&VerificationContext{
		Signature:      sig,
		AllowExtending: true,
		Extender:       &fakeExtender{chain: *sig.CalendarChain},
	})
	if result.Final.Outcome != Ok {
		t.Fatalf("got %v (%s): %s", result.Final.Outcome, result.ErrorCode, result.Final.Message)
	}
}

func TestCalendarPolicyFailsWhenExtendingNotAllowed(t *testing.T) {
	sig := singleChainSignature(t)
	result := CalendarPolicy().Evaluate(&VerificationContext{
		Signature: sig,
		Extender:  &fakeExtender{chain: *sig.CalendarChain},
	})
	if result.Final.Outcome != Fail {
		t.Fatalf("got %v, want Fail (extending not allowed falls through the whole chain)", result.Final.Outcome)
	}
}

func TestPublicationPolicyOkWithMatchingFile(t *testing.T) {
	sig := singleChainSignature(t)
	root, err := sig.CalendarChain.Fold()
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	pf := &pubfile.File{Publications: []pubfile.PublicationEntry{
		{PublicationTime: sig.CalendarChain.PublicationTime, PublicationHash: root},
	}}

	result := PublicationPolicy().Evaluate(&VerificationContext{
		Signature:        sig,
		PublicationsFile: pf,
		AllowExtending:   true,
		Extender:         &fakeExtender{chain: *sig.CalendarChain},
	})
	if result.Final.Outcome != Ok {
		t.Fatalf("got %v (%s): %s", result.Final.Outcome, result.ErrorCode, result.Final.Message)
	}
}

func TestPublicationPolicyFailsWithNoMatchingEntry(t *testing.T) {
	sig := singleChainSignature(t)
	pf := &pubfile.File{} // no publications at all

	result := PublicationPolicy().Evaluate(&VerificationContext{
		Signature:        sig,
		PublicationsFile: pf,
		AllowExtending:   true,
		Extender:         &fakeExtender{chain: *sig.CalendarChain},
	})
	if result.Final.Outcome != Fail || result.ErrorCode != "PUB-2" {
		t.Fatalf("got %v (%s), want Fail(PUB-2)", result.Final.Outcome, result.ErrorCode)
	}
}

func TestGeneralPolicyFallsBackToCalendar(t *testing.T) {
	sig := singleChainSignature(t)
	result := GeneralPolicy().Evaluate(&VerificationContext{
		Signature:      sig,
		AllowExtending: true,
		Extender:       &fakeExtender{chain: *sig.CalendarChain},
	})
	if result.Final.Outcome != Ok {
		t.Fatalf("got %v (%s): %s", result.Final.Outcome, result.ErrorCode, result.Final.Message)
	}
}
