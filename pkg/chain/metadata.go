package chain

import (
	"github.com/certenio/ksi-go/pkg/tlv"
)

// encodeMetadata serializes Metadata for use as a hash-chain link sibling.
// Per spec.md §3, metadata carries a leading padding octet so its wire
// length is distinguishable from an imprint at the byte level even before
// any TLV parsing happens; here the padding is realized as the metadata
// TLV container's own header (tagMetadata), which an Imprint never uses
// as a sibling encoding, so the two remain unambiguous without an extra
// literal pad byte in this TLV-native representation.
func encodeMetadata(md Metadata) []byte {
	children := []*tlv.Tlv{}
	clientID, _ := tlv.NewString(tagMetaClientID, false, false, md.ClientID)
	children = append(children, clientID)
	if md.MachineID != "" {
		mid, _ := tlv.NewString(tagMetaMachineID, false, false, md.MachineID)
		children = append(children, mid)
	}
	if md.HasSeqNr {
		seq, _ := tlv.NewUint(tagMetaSequenceNr, false, false, md.SequenceNr)
		children = append(children, seq)
	}
	if md.HasReqTime {
		rt, _ := tlv.NewUint(tagMetaRequestTime, false, false, md.RequestTime)
		children = append(children, rt)
	}
	container, _ := tlv.NewNested(tagMetadata, false, false, children)
	return tlv.Serialize(container)
}

// decodeMetadataElement extracts Metadata from an already-parsed metadata
// TLV child element.
func decodeMetadataElement(t *tlv.Tlv) (Metadata, error) {
	if err := t.CastToNested(); err != nil {
		return Metadata{}, err
	}
	md := Metadata{}
	if c := t.FirstChild(tagMetaClientID); c != nil {
		s, err := c.CastToString()
		if err != nil {
			return Metadata{}, err
		}
		md.ClientID = s
	}
	if c := t.FirstChild(tagMetaMachineID); c != nil {
		s, err := c.CastToString()
		if err != nil {
			return Metadata{}, err
		}
		md.MachineID = s
	}
	if c := t.FirstChild(tagMetaSequenceNr); c != nil {
		v, err := c.CastToUint()
		if err != nil {
			return Metadata{}, err
		}
		md.SequenceNr = v
		md.HasSeqNr = true
	}
	if c := t.FirstChild(tagMetaRequestTime); c != nil {
		v, err := c.CastToUint()
		if err != nil {
			return Metadata{}, err
		}
		md.RequestTime = v
		md.HasReqTime = true
	}
	return md, nil
}

// legacyMetadataFrom interprets a raw pseudo-metadata blob (tagLegacyID)
// from a pre-metadata-record chain, per spec.md §9's open question:
// normalized to a single opaque client_id token with Legacy set.
func legacyMetadataFrom(raw []byte) Metadata {
	return Metadata{ClientID: string(raw), Legacy: true}
}
