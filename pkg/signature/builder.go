package signature

import (
	"errors"
	"fmt"

	"github.com/certenio/ksi-go/pkg/chain"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// Builder assembles a Signature from its components: a locally built
// aggregation chain joined to an aggregator response's embedded
// calendar chain and authentication record. Grounded on
// anchor_proof.Builder's fluent With*-then-Build shape: With* calls never
// fail, so a caller can chain every component before Build runs a single
// validate().
type Builder struct {
	aggregationChains []chain.AggregationChain
	calendarChain     *chain.CalendarChain
	calAuth           *CalAuthRecord
	calAuthV1         bool
	aggrAuth          *AggregationAuthRecord
	publication       *PublicationRecord
	rfc3161           *tlv.Tlv
	errs              []error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithAggregationChain appends an aggregation chain, leaf-toward-root
// order (spec.md §3).
func (b *Builder) WithAggregationChain(c chain.AggregationChain) *Builder {
	b.aggregationChains = append(b.aggregationChains, c)
	return b
}

// WithCalendarChain attaches the signature's single calendar chain.
func (b *Builder) WithCalendarChain(c chain.CalendarChain) *Builder {
	b.calendarChain = &c
	return b
}

// WithCalendarAuth attaches a calendar-authentication record. v1
// selects the shared TagPublicationOrCalAuthV1 tag on serialize rather
// than the unambiguous v2 tag.
func (b *Builder) WithCalendarAuth(rec CalAuthRecord, v1 bool) *Builder {
	b.calAuth = &rec
	b.calAuthV1 = v1
	return b
}

// WithAggregationAuth attaches an aggregation-authentication record.
func (b *Builder) WithAggregationAuth(rec AggregationAuthRecord) *Builder {
	b.aggrAuth = &rec
	return b
}

// WithPublication attaches a publication record.
func (b *Builder) WithPublication(rec PublicationRecord) *Builder {
	b.publication = &rec
	return b
}

// WithRFC3161 attaches an opaque RFC3161 record sub-TLV as decoded
// elsewhere; spec.md does not define its fields (see RFC3161Record).
func (b *Builder) WithRFC3161(raw *tlv.Tlv) *Builder {
	b.rfc3161 = raw
	return b
}

func (b *Builder) validate() error {
	if len(b.aggregationChains) == 0 {
		b.errs = append(b.errs, errors.New("signature builder: at least one aggregation chain is required"))
	}
	if b.calAuth != nil && b.publication != nil {
		b.errs = append(b.errs, errors.New("signature builder: cal_auth and publication are mutually exclusive"))
	}
	return errors.Join(b.errs...)
}

// Build assembles the accumulated components into a Signature,
// serializes them into BaseTLV, and runs every signature-level
// invariant (spec.md §3) before returning.
func (b *Builder) Build() (*Signature, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	var children []*tlv.Tlv
	for _, c := range b.aggregationChains {
		el, err := c.ToTlv()
		if err != nil {
			return nil, err
		}
		children = append(children, el)
	}
	if b.calendarChain != nil {
		el, err := b.calendarChain.ToTlv()
		if err != nil {
			return nil, err
		}
		children = append(children, el)
	}
	if b.calAuth != nil {
		el, err := b.calAuth.toTlv(b.calAuthV1)
		if err != nil {
			return nil, err
		}
		children = append(children, el)
	}
	if b.aggrAuth != nil {
		el, err := b.aggrAuth.toTlv()
		if err != nil {
			return nil, err
		}
		children = append(children, el)
	}
	if b.publication != nil {
		el, err := b.publication.toTlv()
		if err != nil {
			return nil, err
		}
		children = append(children, el)
	}
	if b.rfc3161 != nil {
		children = append(children, b.rfc3161)
	}

	root, err := tlv.NewNested(TagSignature, false, false, children)
	if err != nil {
		return nil, err
	}

	sig := &Signature{
		AggregationChains: b.aggregationChains,
		CalendarChain:     b.calendarChain,
		CalAuth:           b.calAuth,
		AggrAuth:          b.aggrAuth,
		Publication:       b.publication,
		BaseTLV:           root,
	}
	if b.rfc3161 != nil {
		sig.RFC3161Record = &RFC3161Record{raw: b.rfc3161}
	}

	if err := sig.checkInvariants(); err != nil {
		return nil, fmt.Errorf("signature builder: %w", err)
	}
	return sig, nil
}
