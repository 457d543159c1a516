package policy

import "github.com/certenio/ksi-go/pkg/hashing"

// InternalPolicy returns the policy always run on parse and after
// signing (spec.md §4.4 "Internal policy"). It has no fallback: every
// rule must either pass or be vacuously skipped (Ok) when its
// precondition does not hold, since Na at this level would abort the
// whole internal check rather than merely skip one inapplicable rule.
func InternalPolicy() *Policy {
	return &Policy{
		Name: "internal",
		Rules: []Rule{
			ruleAggregationOutputConsistency,
			ruleAggregationIndexContinuity,
			ruleAggregationAlgorithmNotObsolete,
			ruleDocumentHashMatch,
			ruleLevelCorrectionAboveLocalLevel,
			ruleCalendarInputMatchesAggregationOutput,
			ruleCalendarTimeDerivation,
			ruleCalAuthMatchesCalendarRoot,
			rulePublicationMatchesCalendarRoot,
		},
	}
}

func ruleAggregationOutputConsistency(ctx *VerificationContext) Result {
	chains := ctx.Signature.AggregationChains
	for i := 0; i+1 < len(chains); i++ {
		out, err := chains[i].Fold(0)
		if err != nil {
			return FailResult("INT-1", "folding aggregation chain %d: %v", i, err)
		}
		if !out.Output.Equal(chains[i+1].InputHash) {
			return FailResult("INT-1", "aggregation chain %d output does not match chain %d input", i, i+1)
		}
	}
	return OkResult()
}

func ruleAggregationIndexContinuity(ctx *VerificationContext) Result {
	chains := ctx.Signature.AggregationChains
	for i := 0; i+1 < len(chains); i++ {
		if !chains[i].IndexExtendsInto(chains[i+1]) {
			return FailResult("INT-2", "aggregation chain %d index does not extend into chain %d", i, i+1)
		}
	}
	return OkResult()
}

func ruleAggregationAlgorithmNotObsolete(ctx *VerificationContext) Result {
	for i, c := range ctx.Signature.AggregationChains {
		if hashing.Obsolete(c.Algorithm, ctx.Now) {
			return FailResult("INT-3", "aggregation chain %d uses obsolete algorithm %s", i, c.Algorithm)
		}
	}
	return OkResult()
}

func ruleDocumentHashMatch(ctx *VerificationContext) Result {
	if ctx.DocumentHash == nil || len(ctx.Signature.AggregationChains) == 0 {
		return OkResult()
	}
	first := ctx.Signature.AggregationChains[0]
	if !first.InputHash.Equal(*ctx.DocumentHash) {
		return FailResult("INT-4", "document hash does not match the first aggregation chain's input hash")
	}
	return OkResult()
}

func ruleLevelCorrectionAboveLocalLevel(ctx *VerificationContext) Result {
	if len(ctx.Signature.AggregationChains) == 0 || len(ctx.Signature.AggregationChains[0].Links) == 0 {
		return OkResult()
	}
	first := ctx.Signature.AggregationChains[0].Links[0]
	if int(first.LevelCorrection) < ctx.Level {
		return FailResult("GEN-3", "first link's level correction %d is below the requested local-aggregation level %d", first.LevelCorrection, ctx.Level)
	}
	return OkResult()
}

func ruleCalendarInputMatchesAggregationOutput(ctx *VerificationContext) Result {
	if ctx.Signature.CalendarChain == nil || len(ctx.Signature.AggregationChains) == 0 {
		return OkResult()
	}
	top := ctx.Signature.AggregationChains[len(ctx.Signature.AggregationChains)-1]
	out, err := top.Fold(0)
	if err != nil {
		return FailResult("INT-6", "folding topmost aggregation chain: %v", err)
	}
	if !out.Output.Equal(ctx.Signature.CalendarChain.InputHash) {
		return FailResult("INT-6", "calendar chain input hash does not match topmost aggregation chain output")
	}
	return OkResult()
}

func ruleCalendarTimeDerivation(ctx *VerificationContext) Result {
	if ctx.Signature.CalendarChain == nil {
		return OkResult()
	}
	cc := ctx.Signature.CalendarChain
	if cc.DeriveAggregationTime() != cc.RecordedAggregationTime() {
		return FailResult("INT-7", "calendar chain's implied aggregation time does not match its recorded aggregation time")
	}
	return OkResult()
}

func ruleCalAuthMatchesCalendarRoot(ctx *VerificationContext) Result {
	if ctx.Signature.CalAuth == nil || ctx.Signature.CalendarChain == nil {
		return OkResult()
	}
	root, err := ctx.Signature.CalendarChain.Fold()
	if err != nil {
		return FailResult("INT-8", "folding calendar chain: %v", err)
	}
	pd := ctx.Signature.CalAuth.PubData
	if !pd.PublicationHash.Equal(root) {
		return FailResult("INT-8", "cal_auth publication hash does not match the calendar root")
	}
	if pd.PublicationTime != ctx.Signature.CalendarChain.PublicationTime {
		return FailResult("INT-8", "cal_auth publication time does not match the calendar chain's publication time")
	}
	return OkResult()
}

func rulePublicationMatchesCalendarRoot(ctx *VerificationContext) Result {
	if ctx.Signature.Publication == nil || ctx.Signature.CalendarChain == nil {
		return OkResult()
	}
	root, err := ctx.Signature.CalendarChain.Fold()
	if err != nil {
		return FailResult("INT-9", "folding calendar chain: %v", err)
	}
	if !ctx.Signature.Publication.PubData.PublicationHash.Equal(root) {
		return FailResult("INT-9", "publication record's publication hash does not match the calendar root")
	}
	return OkResult()
}
