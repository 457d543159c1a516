package policy

// PublicationPolicy requires a publication record matching an entry in
// the publications file; when none is embedded but extending is
// allowed, it extends the signature to the calendar head the extender
// returns (no target publication time is requested) and checks that
// root against the file (spec.md §4.4 "Publication-based policy").
func PublicationPolicy() *Policy {
	return &Policy{
		Name: "publication",
		Rules: []Rule{
			rulePubFileAvailable,
			rulePubRecordResolvable,
			rulePubMatchesFile,
		},
	}
}

func rulePubFileAvailable(ctx *VerificationContext) Result {
	if ctx.PublicationsFile == nil {
		return NaResult()
	}
	return OkResult()
}

// rulePubRecordResolvable ensures ctx has a publication record to
// check, extending the signature to realize one if the caller allowed
// it and none is embedded.
func rulePubRecordResolvable(ctx *VerificationContext) Result {
	if ctx.Signature.Publication != nil {
		return OkResult()
	}
	if !ctx.AllowExtending || ctx.Extender == nil {
		return NaResult()
	}
	cc := ctx.Signature.CalendarChain
	if cc == nil {
		return NaResult()
	}
	extended, err := ctx.Extender.Extend(cc.RecordedAggregationTime(), nil)
	if err != nil {
		return FailResult("PUB-1", "extending to realize a publication match: %v", err)
	}
	root, err := extended.Fold()
	if err != nil {
		return FailResult("PUB-1", "folding extended calendar chain: %v", err)
	}
	ctx.resolvedPubRoot = &root
	ctx.resolvedPubTime = extended.PublicationTime
	return OkResult()
}

func rulePubMatchesFile(ctx *VerificationContext) Result {
	pubTime := ctx.resolvedPubTime
	var root = ctx.resolvedPubRoot
	if ctx.Signature.Publication != nil {
		pubTime = ctx.Signature.Publication.PubData.PublicationTime
		h := ctx.Signature.Publication.PubData.PublicationHash
		root = &h
	}
	if root == nil {
		return NaResult()
	}
	if _, ok := ctx.PublicationsFile.FindPublication(pubTime, *root); !ok {
		return FailResult("PUB-2", "no publications file entry matches publication time %d", pubTime)
	}
	return OkResult()
}
