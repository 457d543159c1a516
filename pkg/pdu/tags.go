package pdu

// Tag numbering below is implementation-defined: wire compatibility with
// a real aggregator/extender is explicitly out of scope (spec.md §6),
// so these values only need to be internally consistent between what
// pdu.Build* emits and what pdu.Parse* reads back. v1 top tags exist
// solely so a v1-shaped message can be recognized and rejected rather
// than misparsed as v2 (spec.md §4.5 PDU version negotiation).
const (
	tagAggregationPDUv2 = 0x0200
	tagAggregationPDUv1 = 0x0201
	tagExtendPDUv2       = 0x0300
	tagExtendPDUv1       = 0x0301

	tagAggregationRequestPDU  = tagAggregationPDUv2
	tagAggregationResponsePDU = tagAggregationPDUv2
	tagExtendRequestPDU       = tagExtendPDUv2
	tagExtendResponsePDU      = tagExtendPDUv2

	tagHeader           = 0x01
	tagHeaderInstanceID  = 0x01
	tagHeaderMessageID   = 0x02
	tagHeaderLoginID     = 0x03

	tagHmac = 0x1f

	tagAggrRequest      = 0x02
	tagAggrRequestID    = 0x01
	tagAggrRequestHash  = 0x02
	tagAggrRequestLevel = 0x03

	tagAggrResponse    = 0x06
	tagAggrResponseID  = 0x01
	tagAggrResponseSig = 0x0800 // embedded signature sub-TLV, reuses the signature top tag

	tagExtendRequest         = 0x02
	tagExtendRequestID       = 0x01
	tagExtendRequestAggrTime = 0x02
	tagExtendRequestPubTime  = 0x03

	tagExtendResponse      = 0x06
	tagExtendResponseID    = 0x01
	tagExtendResponseChain = 0x0802 // reuses the calendar-chain top tag

	tagErrorPayload = 0x03
	tagErrorStatus  = 0x01
	tagErrorMessage = 0x02

	tagConfigPayload      = 0x04
	tagConfigMaxRequests  = 0x01
	tagConfigAggrPeriod   = 0x02
	tagConfigCalFirstTime = 0x03
	tagConfigCalLastTime  = 0x04
	tagConfigParentURI    = 0x05
)
