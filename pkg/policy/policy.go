// Package policy implements the verification policy engine: a
// short-circuiting rule algebra (Ok/Na/Fail) composed into ordered
// policies with fallback chains, plus the Internal, key-based,
// publication-based, and calendar-based policies spec.md §4.4 defines.
//
// Grounded on pkg/anchor_proof/verifier.go's ordered-component-check
// shape, adapted from accumulate-all-errors to short-circuit-on-Ok-or-
// Fail, since a rule trail that keeps going after a Fail cannot express
// "stop here, try the fallback policy instead".
package policy

import "fmt"

// Outcome is a rule or policy's verdict.
type Outcome int

const (
	// Ok means the rule (or policy) is satisfied; evaluation of the
	// enclosing policy continues to its next rule.
	Ok Outcome = iota
	// Na means the rule could not be evaluated (insufficient data);
	// the enclosing policy's evaluation stops and falls back.
	Na
	// Fail means the rule is violated; evaluation stops immediately,
	// even across fallbacks.
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "Ok"
	case Na:
		return "Na"
	case Fail:
		return "Fail"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is a single rule's verdict. Code is populated only for Fail
// and names one of spec.md §4.4's fixed error codes (GEN-n, INT-n,
// CAL-n, KEY-n, PUB-n).
type Result struct {
	Outcome Outcome
	Code    string
	Message string
}

// OkResult is the passing verdict.
func OkResult() Result { return Result{Outcome: Ok} }

// NaResult is the insufficient-data verdict.
func NaResult() Result { return Result{Outcome: Na} }

// FailResult is the violation verdict, tagged with one of the fixed
// error codes.
func FailResult(code, format string, args ...any) Result {
	return Result{Outcome: Fail, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Rule inspects a VerificationContext and returns a verdict.
type Rule func(ctx *VerificationContext) Result

// RuleTrailEntry records one rule's verdict for the structured
// PolicyVerificationResult spec.md §7 requires.
type RuleTrailEntry struct {
	PolicyName string
	RuleIndex  int
	Result     Result
}

// Policy is an ordered sequence of rules plus an optional fallback
// policy, evaluated per spec.md §4.4: short-circuits on the first Fail
// (across the whole fallback chain) or the first policy whose rules all
// pass; Na advances to Fallback.
type Policy struct {
	Name     string
	Rules    []Rule
	Fallback *Policy
}

// PolicyVerificationResult is the full record of one Evaluate call,
// matching spec.md §7's structured verification error shape.
type PolicyVerificationResult struct {
	RuleTrail []RuleTrailEntry
	ErrorCode string
	Final     Result
}

// Evaluate runs p, falling back through p.Fallback on Na, and returns
// the accumulated rule trail alongside the final verdict.
func (p *Policy) Evaluate(ctx *VerificationContext) PolicyVerificationResult {
	var trail []RuleTrailEntry
	for cur := p; cur != nil; cur = cur.Fallback {
		verdict, policyTrail := cur.runRules(ctx)
		trail = append(trail, policyTrail...)
		switch verdict.Outcome {
		case Fail:
			return PolicyVerificationResult{RuleTrail: trail, ErrorCode: verdict.Code, Final: verdict}
		case Ok:
			return PolicyVerificationResult{RuleTrail: trail, Final: verdict}
		}
		// Na: try the fallback.
	}
	na := FailResult("GEN-1", "no policy in the fallback chain could reach a verdict")
	return PolicyVerificationResult{RuleTrail: trail, ErrorCode: na.Code, Final: na}
}

func (p *Policy) runRules(ctx *VerificationContext) (Result, []RuleTrailEntry) {
	trail := make([]RuleTrailEntry, 0, len(p.Rules))
	for i, rule := range p.Rules {
		res := rule(ctx)
		trail = append(trail, RuleTrailEntry{PolicyName: p.Name, RuleIndex: i, Result: res})
		if res.Outcome != Ok {
			return res, trail
		}
	}
	return OkResult(), trail
}
