// Package client implements the signer and extender: building request
// PDUs, invoking the network collaborator, authenticating and parsing
// response PDUs, and attaching the result to a signature (spec.md §4.3
// "Signing", "Extending"; §4.5).
package client

import (
	"fmt"
	"time"

	"github.com/certenio/ksi-go/pkg/chain"
	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/ksictx"
	"github.com/certenio/ksi-go/pkg/metrics"
	"github.com/certenio/ksi-go/pkg/pdu"
	"github.com/certenio/ksi-go/pkg/policy"
	"github.com/certenio/ksi-go/pkg/signature"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// ConfigPushFunc is the narrow push-configuration callback spec.md
// §4.3 describes: a single synchronous function invoked during
// response parsing, before the response's signature is returned.
type ConfigPushFunc func(pdu.ConfigPush)

// Signer issues aggregation requests and wraps their responses into
// verified signatures (spec.md §4.3 "Signing").
type Signer struct {
	Ctx        *ksictx.Context
	Metrics    *metrics.Collectors
	OnConfig   ConfigPushFunc
	Clock      func() time.Time
}

// NewSigner returns a Signer bound to ctx's configuration.
func NewSigner(ctx *ksictx.Context) *Signer {
	return &Signer{Ctx: ctx, Clock: time.Now}
}

func (s *Signer) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// Sign issues an aggregation request for hash at the given local
// aggregation level, authenticates and parses the response, and runs
// the internal verification policy over the resulting signature before
// returning it (spec.md §4.3 "Signing" steps 1-5).
func (s *Signer) Sign(hash hashing.Imprint, level uint8) (*signature.Signature, error) {
	cfg := s.Ctx.Config
	hmacAlgo, err := cfg.HashAlgorithm()
	if err != nil {
		return nil, err
	}
	now := s.now().Unix()
	requestID := s.Ctx.NextRequestID()

	header := pdu.Header{InstanceID: uint64(s.now().UnixNano()), MessageID: requestID, LoginID: cfg.AggregatorUser}
	reqTlv, err := pdu.BuildAggregationRequest(header, requestID, hash, level, hmacAlgo, []byte(cfg.AggregatorPass), now)
	if err != nil {
		s.Ctx.RecordError(err)
		return nil, err
	}

	start := time.Now()
	respBytes, err := s.Ctx.Fetcher.Fetch(cfg.AggregatorURL, tlv.Serialize(reqTlv))
	if err != nil {
		s.observe("sign", "transport_error", start)
		s.Ctx.RecordError(err)
		return nil, err
	}

	resp, err := pdu.ParseAggregationResponse(respBytes, requestID, hmacAlgo, []byte(cfg.AggregatorPass))
	if err != nil {
		s.observe("sign", "error", start)
		s.Ctx.RecordError(err)
		return nil, err
	}

	if resp.Config != nil && s.OnConfig != nil {
		s.OnConfig(*resp.Config)
	}

	sig, err := signature.Parse(tlv.Serialize(resp.Signature))
	if err != nil {
		s.observe("sign", "error", start)
		s.Ctx.RecordError(err)
		return nil, err
	}

	verdict := policy.InternalPolicy().Evaluate(&policy.VerificationContext{
		Signature: sig,
		Level:     int(level),
		Now:       now,
	})
	if verdict.Final.Outcome == policy.Fail {
		s.observe("sign", "policy_fail", start)
		err := fmt.Errorf("client: signed response failed internal policy (%s): %s", verdict.ErrorCode, verdict.Final.Message)
		s.Ctx.RecordError(err)
		return nil, err
	}

	s.observe("sign", "ok", start)
	return sig, nil
}

// SignDocuments locally aggregates hashes into a single binary hash
// tree, signs only the tree's root with one aggregation request, and
// then derives one signature per input hash by prepending that leaf's
// local path onto the aggregator's signature (spec.md §4.3; SPEC_FULL.md
// §4.2 "a client batching several documents behind one aggregation
// request"). This trades one round trip for the whole batch against N
// round trips for N documents. level is the local aggregation level
// supplied with the single request, same as Sign's.
func (s *Signer) SignDocuments(hashes []hashing.Imprint, level uint8) ([]*signature.Signature, error) {
	if len(hashes) == 0 {
		return nil, fmt.Errorf("client: SignDocuments requires at least one hash")
	}
	if len(hashes) == 1 {
		sig, err := s.Sign(hashes[0], level)
		if err != nil {
			return nil, err
		}
		return []*signature.Signature{sig}, nil
	}

	tree, err := chain.BuildLocalAggregationTree(hashes[0].Algorithm, hashes)
	if err != nil {
		s.Ctx.RecordError(err)
		return nil, err
	}

	rootSig, err := s.Sign(tree.Root(), level)
	if err != nil {
		return nil, err
	}

	sigs := make([]*signature.Signature, len(hashes))
	for i, h := range hashes {
		leafSig, err := signature.Parse(rootSig.Serialize())
		if err != nil {
			s.Ctx.RecordError(err)
			return nil, err
		}
		if err := leafSig.PrependLocalLinks(h, tree.LinksFor(i)); err != nil {
			s.Ctx.RecordError(err)
			return nil, fmt.Errorf("client: deriving signature for document %d of local batch: %w", i, err)
		}
		sigs[i] = leafSig
	}
	return sigs, nil
}

func (s *Signer) observe(op, result string, start time.Time) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.ObserveRequest(op, result, time.Since(start).Seconds())
}
