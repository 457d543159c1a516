package pdu

import (
	"fmt"

	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// BuildAggregationRequest assembles and HMAC-signs a v2 aggregation
// request PDU for the given input hash and requested local level. now
// is the caller's current time (unix seconds), used to reject a
// deprecated HMAC algorithm before dispatch (spec.md §8 boundary
// behavior).
func BuildAggregationRequest(header Header, requestID uint64, inputHash hashing.Imprint, level uint8, hmacAlgo hashing.Algorithm, key []byte, now int64) (*tlv.Tlv, error) {
	if hashing.Deprecated(hmacAlgo, now) {
		return nil, fmt.Errorf("%w: hmac algorithm %s", ErrUntrustedHashAlgorithm, hmacAlgo)
	}
	idEl, err := tlv.NewUint(tagAggrRequestID, false, false, requestID)
	if err != nil {
		return nil, err
	}
	hashEl, err := tlv.NewRaw(tagAggrRequestHash, false, false, inputHash.Bytes())
	if err != nil {
		return nil, err
	}
	var children []*tlv.Tlv
	children = append(children, idEl, hashEl)
	if level != 0 {
		lvlEl, err := tlv.NewUint(tagAggrRequestLevel, false, false, uint64(level))
		if err != nil {
			return nil, err
		}
		children = append(children, lvlEl)
	}
	reqEl, err := tlv.NewNested(tagAggrRequest, false, false, children)
	if err != nil {
		return nil, err
	}
	return buildContainer(tagAggregationRequestPDU, header, []*tlv.Tlv{reqEl}, hmacAlgo, key)
}

// AggregationResponse is the parsed, authenticated result of an
// aggregation request.
type AggregationResponse struct {
	Header    Header
	RequestID uint64
	Signature *tlv.Tlv // the embedded signature sub-TLV (tag 0x800), unparsed
	Config    *ConfigPush
	Error     *ServiceError
}

// ParseAggregationResponse decodes and authenticates an aggregation
// response, enforcing request-id matching and that an error payload with
// a non-zero status wins and suppresses any signature payload (spec.md
// §4.3 step 4). An error payload with status 0 is kept in Error and
// parsing continues.
func ParseAggregationResponse(raw []byte, expectedRequestID uint64, hmacAlgo hashing.Algorithm, key []byte) (*AggregationResponse, error) {
	pc, err := parseContainer(raw, tagAggregationResponsePDU, tagAggregationPDUv1, ErrAggrPduV1ResponseToV2, hmacAlgo, key)
	if err != nil {
		return nil, err
	}
	resp := &AggregationResponse{Header: pc.header}

	if errEl := pc.firstChild(tagErrorPayload); errEl != nil {
		se, err := errorPayloadFromTlv(KindAggregation, errEl)
		if err != nil {
			return nil, err
		}
		if se.Status != 0 {
			return nil, se
		}
		resp.Error = se
	}

	respEl := pc.firstChild(tagAggrResponse)
	if respEl == nil {
		return nil, fmt.Errorf("%w: aggregation response missing response payload", ErrInvalidFormat)
	}
	if err := respEl.CastToNested(); err != nil {
		return nil, err
	}
	idEl := respEl.FirstChild(tagAggrResponseID)
	if idEl == nil {
		return nil, fmt.Errorf("%w: aggregation response missing request id", ErrInvalidFormat)
	}
	id, err := idEl.CastToUint()
	if err != nil {
		return nil, err
	}
	if id != expectedRequestID {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrRequestIDMismatch, id, expectedRequestID)
	}
	resp.RequestID = id

	sigEl := respEl.FirstChild(tagAggrResponseSig)
	if sigEl == nil {
		return nil, fmt.Errorf("%w: aggregation response missing embedded signature", ErrInvalidFormat)
	}
	resp.Signature = sigEl

	if cfgEl := pc.firstChild(tagConfigPayload); cfgEl != nil {
		cfg, err := configPushFromTlv(cfgEl)
		if err != nil {
			return nil, err
		}
		resp.Config = &cfg
	}

	return resp, nil
}
