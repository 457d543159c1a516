package policy

// CalendarPolicy requires access to the extender: it asks for a
// reference calendar chain rooted at the signature's aggregation time
// and checks the signature's calendar root against the reference root
// (spec.md §4.4 "Calendar-based policy").
func CalendarPolicy() *Policy {
	return &Policy{
		Name: "calendar",
		Rules: []Rule{
			ruleCalExtenderAvailable,
			ruleCalExtendingAllowed,
			ruleCalReferenceRootMatches,
		},
	}
}

func ruleCalExtenderAvailable(ctx *VerificationContext) Result {
	if ctx.Extender == nil || ctx.Signature.CalendarChain == nil {
		return NaResult()
	}
	return OkResult()
}

func ruleCalExtendingAllowed(ctx *VerificationContext) Result {
	if !ctx.AllowExtending {
		return NaResult()
	}
	return OkResult()
}

func ruleCalReferenceRootMatches(ctx *VerificationContext) Result {
	cc := ctx.Signature.CalendarChain
	ref, err := ctx.Extender.Extend(cc.RecordedAggregationTime(), nil)
	if err != nil {
		return FailResult("CAL-1", "extending for reference calendar chain: %v", err)
	}
	sigRoot, err := cc.Fold()
	if err != nil {
		return FailResult("CAL-2", "folding signature's calendar chain: %v", err)
	}
	refRoot, err := ref.Fold()
	if err != nil {
		return FailResult("CAL-3", "folding reference calendar chain: %v", err)
	}
	if !sigRoot.Equal(refRoot) {
		return FailResult("CAL-4", "signature's calendar root does not match the extender's reference root")
	}
	return OkResult()
}
