package chain

import (
	"fmt"

	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// linkToTlv serializes a Link into its container element.
func linkToTlv(l Link) (*tlv.Tlv, error) {
	tag := tagLinkLeft
	if l.Direction == Right {
		tag = tagLinkRight
	}
	var children []*tlv.Tlv
	if l.LevelCorrection != 0 {
		lc, err := tlv.NewUint(tagLevelCorrection, false, false, uint64(l.LevelCorrection))
		if err != nil {
			return nil, err
		}
		children = append(children, lc)
	}
	switch l.SiblingKind {
	case SiblingImprint:
		sib, err := tlv.NewRaw(tagSiblingHash, false, false, l.SiblingImprint.Bytes())
		if err != nil {
			return nil, err
		}
		children = append(children, sib)
	case SiblingMetadata:
		if l.SiblingMetadata.Legacy {
			leg, err := tlv.NewRaw(tagLegacyID, false, false, []byte(l.SiblingMetadata.ClientID))
			if err != nil {
				return nil, err
			}
			children = append(children, leg)
		} else {
			mdBytes := encodeMetadata(l.SiblingMetadata)
			mdEl, err := tlv.Parse(mdBytes)
			if err != nil {
				return nil, err
			}
			children = append(children, mdEl)
		}
	}
	return tlv.NewNested(tag, false, false, children)
}

// linkFromTlv decodes a Link from its container element.
func linkFromTlv(t *tlv.Tlv) (Link, error) {
	if err := t.CastToNested(); err != nil {
		return Link{}, err
	}
	dir := Left
	switch t.Tag {
	case tagLinkLeft:
		dir = Left
	case tagLinkRight:
		dir = Right
	default:
		return Link{}, fmt.Errorf("%w: unexpected link tag 0x%x", ErrInvalidChain, t.Tag)
	}
	l := Link{Direction: dir}
	if c := t.FirstChild(tagLevelCorrection); c != nil {
		v, err := c.CastToUint()
		if err != nil {
			return Link{}, err
		}
		if v > 255 {
			return Link{}, fmt.Errorf("%w: level correction %d exceeds a single octet", ErrInvalidChain, v)
		}
		l.LevelCorrection = uint8(v)
	}
	switch {
	case t.FirstChild(tagSiblingHash) != nil:
		c := t.FirstChild(tagSiblingHash)
		im, err := hashing.ParseImprint(c.RawValue())
		if err != nil {
			return Link{}, err
		}
		l.SiblingKind = SiblingImprint
		l.SiblingImprint = im
	case t.FirstChild(tagMetadata) != nil:
		md, err := decodeMetadataElement(t.FirstChild(tagMetadata))
		if err != nil {
			return Link{}, err
		}
		l.SiblingKind = SiblingMetadata
		l.SiblingMetadata = md
	case t.FirstChild(tagLegacyID) != nil:
		c := t.FirstChild(tagLegacyID)
		l.SiblingKind = SiblingMetadata
		l.SiblingMetadata = legacyMetadataFrom(c.RawValue())
	default:
		return Link{}, fmt.Errorf("%w: link carries neither sibling hash nor metadata", ErrInvalidChain)
	}
	return l, nil
}
