package chain

// TLV tags used to encode hash-chain links and chains. Concrete wire tag
// numbers are not specified by spec.md beyond the top-level signature
// tags (0x800-0x806, see pkg/signature) since wire-compatibility with a
// real server is explicitly out of scope (spec.md §1 Non-goals); these
// are this implementation's internally consistent numbering, documented
// here so pkg/signature and pkg/pdu can share it.
const (
	TagAggregationChain uint16 = 0x0801
	TagCalendarChain    uint16 = 0x0802

	tagLinkLeft  uint16 = 0x07
	tagLinkRight uint16 = 0x08

	tagLevelCorrection uint16 = 0x01
	tagSiblingHash     uint16 = 0x02
	tagMetadata        uint16 = 0x03
	tagLegacyID        uint16 = 0x04

	tagMetaClientID    uint16 = 0x01
	tagMetaMachineID   uint16 = 0x02
	tagMetaSequenceNr  uint16 = 0x03
	tagMetaRequestTime uint16 = 0x04

	tagAggrAggregationTime uint16 = 0x02
	tagAggrChainIndex      uint16 = 0x03
	tagAggrInputData       uint16 = 0x04
	tagAggrInputHash       uint16 = 0x05
	tagAggrAlgorithm       uint16 = 0x06

	tagCalPublicationTime uint16 = 0x01
	tagCalAggregationTime uint16 = 0x02
	tagCalInputHash       uint16 = 0x03
)
