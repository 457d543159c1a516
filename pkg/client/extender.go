package client

import (
	"fmt"
	"time"

	"github.com/certenio/ksi-go/pkg/chain"
	"github.com/certenio/ksi-go/pkg/ksictx"
	"github.com/certenio/ksi-go/pkg/metrics"
	"github.com/certenio/ksi-go/pkg/pdu"
	"github.com/certenio/ksi-go/pkg/signature"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// Extender issues extension requests and replaces a signature's
// calendar chain with the extended result (spec.md §4.3 "Extending").
// It also implements policy.Extender, so the verification policy
// engine can obtain a reference calendar chain without mutating the
// caller's signature.
type Extender struct {
	Ctx     *ksictx.Context
	Metrics *metrics.Collectors
	OnConfig ConfigPushFunc
	Clock   func() time.Time
}

// NewExtender returns an Extender bound to ctx's configuration.
func NewExtender(ctx *ksictx.Context) *Extender {
	return &Extender{Ctx: ctx, Clock: time.Now}
}

func (e *Extender) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// Extend implements policy.Extender: it fetches a calendar chain rooted
// at aggregationTime, optionally targeting publicationTime, and returns
// it decoded but unattached to any signature.
func (e *Extender) Extend(aggregationTime uint64, publicationTime *uint64) (chain.CalendarChain, error) {
	resp, err := e.request(aggregationTime, publicationTime)
	if err != nil {
		return chain.CalendarChain{}, err
	}
	return chain.CalendarChainFromTlv(resp.CalendarChain)
}

// ExtendSignature performs the full extension lifecycle (spec.md §4.3
// "Extending" steps 1-5): resolve the target publication time (the head
// of the calendar when pubTime is nil), request the extended chain,
// validate compatibility against the original via signature.Extend, and
// attach a publication record from the publications file when one is
// available for the target time.
func (e *Extender) ExtendSignature(sig *signature.Signature, pubTime *uint64) (*signature.Signature, error) {
	if sig.CalendarChain == nil {
		return nil, fmt.Errorf("client: signature has no calendar chain to extend")
	}
	start := time.Now()

	resp, err := e.request(sig.CalendarChain.RecordedAggregationTime(), pubTime)
	if err != nil {
		e.observe("extend", "transport_error", start)
		e.Ctx.RecordError(err)
		return nil, err
	}

	newChain, err := chain.CalendarChainFromTlv(resp.CalendarChain)
	if err != nil {
		e.observe("extend", "error", start)
		e.Ctx.RecordError(err)
		return nil, err
	}

	var newPub *signature.PublicationRecord
	if pf, perr := e.Ctx.PublicationsFile(); perr == nil && pf != nil {
		root, ferr := newChain.Fold()
		if ferr == nil {
			if entry, ok := pf.FindPublication(newChain.PublicationTime, root); ok {
				newPub = &signature.PublicationRecord{
					PubData:        signature.PubData{PublicationTime: entry.PublicationTime, PublicationHash: entry.PublicationHash},
					PublicationRef: entry.PublicationRef,
					RepositoryURI:  entry.RepositoryURI,
				}
			}
		}
	}

	extended, err := cloneSignature(sig)
	if err != nil {
		e.observe("extend", "error", start)
		e.Ctx.RecordError(err)
		return nil, err
	}
	if err := extended.Extend(newChain, newPub); err != nil {
		e.observe("extend", "incompatible", start)
		e.Ctx.RecordError(err)
		return nil, err
	}

	e.observe("extend", "ok", start)
	return extended, nil
}

// cloneSignature re-parses sig's current serialization so Extend's
// in-place mutation never touches the caller's original value
// (spec.md §3 "signatures are immutable after construction in public
// API terms").
func cloneSignature(sig *signature.Signature) (*signature.Signature, error) {
	return signature.Parse(sig.Serialize())
}

func (e *Extender) request(aggregationTime uint64, pubTime *uint64) (*pdu.ExtendResponse, error) {
	cfg := e.Ctx.Config
	hmacAlgo, err := cfg.HashAlgorithm()
	if err != nil {
		return nil, err
	}
	now := e.now().Unix()
	requestID := e.Ctx.NextRequestID()

	header := pdu.Header{InstanceID: uint64(e.now().UnixNano()), MessageID: requestID, LoginID: cfg.ExtenderUser}
	hasPubTime := pubTime != nil
	var pt uint64
	if hasPubTime {
		pt = *pubTime
	}
	reqTlv, err := pdu.BuildExtendRequest(header, requestID, aggregationTime, pt, hasPubTime, hmacAlgo, []byte(cfg.ExtenderPass), now)
	if err != nil {
		return nil, err
	}

	respBytes, err := e.Ctx.Fetcher.Fetch(cfg.ExtenderURL, tlv.Serialize(reqTlv))
	if err != nil {
		return nil, err
	}

	resp, err := pdu.ParseExtendResponse(respBytes, requestID, hmacAlgo, []byte(cfg.ExtenderPass))
	if err != nil {
		return nil, err
	}
	if resp.Config != nil && e.OnConfig != nil {
		e.OnConfig(*resp.Config)
	}
	return resp, nil
}

func (e *Extender) observe(op, result string, start time.Time) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.ObserveRequest(op, result, time.Since(start).Seconds())
}
