package pdu

import (
	"fmt"

	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// BuildExtendRequest assembles and HMAC-signs a v2 extension request for
// the given aggregation time and (optional) target publication time. With
// hasPubTime false the publication-time element is omitted, which asks
// the server for the head of the calendar (spec.md §4.3 "Extending"
// step 1).
func BuildExtendRequest(header Header, requestID uint64, aggregationTime uint64, pubTime uint64, hasPubTime bool, hmacAlgo hashing.Algorithm, key []byte, now int64) (*tlv.Tlv, error) {
	if hashing.Deprecated(hmacAlgo, now) {
		return nil, fmt.Errorf("%w: hmac algorithm %s", ErrUntrustedHashAlgorithm, hmacAlgo)
	}
	idEl, err := tlv.NewUint(tagExtendRequestID, false, false, requestID)
	if err != nil {
		return nil, err
	}
	atEl, err := tlv.NewUint(tagExtendRequestAggrTime, false, false, aggregationTime)
	if err != nil {
		return nil, err
	}
	children := []*tlv.Tlv{idEl, atEl}
	if hasPubTime {
		ptEl, err := tlv.NewUint(tagExtendRequestPubTime, false, false, pubTime)
		if err != nil {
			return nil, err
		}
		children = append(children, ptEl)
	}
	reqEl, err := tlv.NewNested(tagExtendRequest, false, false, children)
	if err != nil {
		return nil, err
	}
	return buildContainer(tagExtendRequestPDU, header, []*tlv.Tlv{reqEl}, hmacAlgo, key)
}

// ExtendResponse is the parsed, authenticated result of an extension
// request.
type ExtendResponse struct {
	Header        Header
	RequestID     uint64
	CalendarChain *tlv.Tlv // embedded calendar-chain sub-TLV (tag 0x802), unparsed
	Config        *ConfigPush
	Error         *ServiceError
}

// ParseExtendResponse decodes and authenticates an extension response.
func ParseExtendResponse(raw []byte, expectedRequestID uint64, hmacAlgo hashing.Algorithm, key []byte) (*ExtendResponse, error) {
	pc, err := parseContainer(raw, tagExtendResponsePDU, tagExtendPDUv1, ErrExtendPduV1ResponseToV2, hmacAlgo, key)
	if err != nil {
		return nil, err
	}
	resp := &ExtendResponse{Header: pc.header}

	if errEl := pc.firstChild(tagErrorPayload); errEl != nil {
		se, err := errorPayloadFromTlv(KindExtension, errEl)
		if err != nil {
			return nil, err
		}
		if se.Status != 0 {
			return nil, se
		}
		resp.Error = se
	}

	respEl := pc.firstChild(tagExtendResponse)
	if respEl == nil {
		return nil, fmt.Errorf("%w: extend response missing response payload", ErrInvalidFormat)
	}
	if err := respEl.CastToNested(); err != nil {
		return nil, err
	}
	idEl := respEl.FirstChild(tagExtendResponseID)
	if idEl == nil {
		return nil, fmt.Errorf("%w: extend response missing request id", ErrInvalidFormat)
	}
	id, err := idEl.CastToUint()
	if err != nil {
		return nil, err
	}
	if id != expectedRequestID {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrRequestIDMismatch, id, expectedRequestID)
	}
	resp.RequestID = id

	chainEl := respEl.FirstChild(tagExtendResponseChain)
	if chainEl == nil {
		return nil, fmt.Errorf("%w: extend response missing calendar chain", ErrInvalidFormat)
	}
	resp.CalendarChain = chainEl

	if cfgEl := pc.firstChild(tagConfigPayload); cfgEl != nil {
		cfg, err := configPushFromTlv(cfgEl)
		if err != nil {
			return nil, err
		}
		resp.Config = &cfg
	}

	return resp, nil
}
