package pdu

import (
	"fmt"

	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// buildContainer assembles a PDU: header first, then the caller's
// payload/config/error children in order, then a trailing HMAC computed
// over everything that precedes it (spec.md §4.5 "header is the first
// nested child, HMAC imprint is the last nested child").
func buildContainer(topTag uint16, header Header, middle []*tlv.Tlv, hmacAlgo hashing.Algorithm, key []byte) (*tlv.Tlv, error) {
	hdrEl, err := header.toTlv()
	if err != nil {
		return nil, err
	}
	children := append([]*tlv.Tlv{hdrEl}, middle...)

	unsigned, err := tlv.NewNested(topTag, false, false, children)
	if err != nil {
		return nil, err
	}
	mac, err := computeHmac(hmacAlgo, key, unsigned.RawValue())
	if err != nil {
		return nil, err
	}
	hmacEl, err := tlv.NewRaw(tagHmac, false, false, mac.Bytes())
	if err != nil {
		return nil, err
	}
	if err := unsigned.AppendChild(hmacEl); err != nil {
		return nil, err
	}
	return unsigned, nil
}

// parsedContainer is the validated, HMAC-authenticated shape common to
// every response PDU.
type parsedContainer struct {
	root   *tlv.Tlv
	header Header
	middle []*tlv.Tlv // every child between header and hmac, in order
}

// parseContainer decodes and authenticates a response PDU: rejects a
// v1-shaped message with v1Mismatch, checks the top tag, that the
// header is the first child and the HMAC the last, that the HMAC
// algorithm matches hmacAlgo, and recomputes the HMAC against key.
func parseContainer(raw []byte, topTag uint16, v1Tag uint16, v1Mismatch error, hmacAlgo hashing.Algorithm, key []byte) (*parsedContainer, error) {
	root, err := tlv.Parse(raw)
	if err != nil {
		return nil, err
	}
	if root.Tag == v1Tag {
		return nil, v1Mismatch
	}
	if root.Tag != topTag {
		return nil, fmt.Errorf("%w: expected pdu tag 0x%x, got 0x%x", ErrInvalidFormat, topTag, root.Tag)
	}
	if err := root.CastToNested(); err != nil {
		return nil, err
	}
	children := root.Children()
	if len(children) < 2 {
		return nil, fmt.Errorf("%w: pdu has fewer than 2 children", ErrInvalidFormat)
	}
	if children[0].Tag != tagHeader {
		return nil, fmt.Errorf("%w: header is not the first pdu child", ErrInvalidFormat)
	}
	last := children[len(children)-1]
	if last.Tag != tagHmac {
		return nil, fmt.Errorf("%w: hmac is not the last pdu child", ErrInvalidFormat)
	}

	hdr, err := headerFromTlv(children[0])
	if err != nil {
		return nil, err
	}

	respMac, err := hashing.ParseImprint(last.RawValue())
	if err != nil {
		return nil, err
	}
	if respMac.Algorithm != hmacAlgo {
		return nil, fmt.Errorf("%w: configured %s, response carries %s", ErrHmacAlgorithmMismatch, hmacAlgo, respMac.Algorithm)
	}

	// Recompute the HMAC over every byte that preceded it: the whole
	// container with the trailing hmac element removed.
	withoutHmac, err := tlv.NewNested(topTag, false, false, children[:len(children)-1])
	if err != nil {
		return nil, err
	}
	wantMac, err := computeHmac(hmacAlgo, key, withoutHmac.RawValue())
	if err != nil {
		return nil, err
	}
	if !wantMac.Equal(respMac) {
		return nil, ErrAuthenticationFailed
	}

	return &parsedContainer{root: root, header: hdr, middle: children[1 : len(children)-1]}, nil
}

func (p *parsedContainer) firstChild(tag uint16) *tlv.Tlv {
	for _, c := range p.middle {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}
