// Package pdu implements the HMAC-authenticated aggregator and extender
// request/response PDUs: building requests, dispatching them is left to
// pkg/client, and parsing/authenticating responses including the
// header-first / HMAC-last ordering rule, HMAC algorithm and key
// negotiation, request-id matching and PDU version negotiation from
// spec.md §4.5.
package pdu

import (
	"crypto/hmac"
	"errors"
	"fmt"
	"hash"

	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// Version distinguishes the two wire-incompatible PDU shapes this
// library recognizes. Only v2 requests are built; v1 responses are
// detected and rejected rather than guessed at.
type Version int

const (
	V1 Version = iota
	V2
)

// Kind distinguishes an aggregator PDU from an extender PDU; each has
// its own request/response/error payload tag space.
type Kind int

const (
	KindAggregation Kind = iota
	KindExtension
)

var (
	ErrInvalidFormat           = tlv.ErrInvalidFormat
	ErrHmacAlgorithmMismatch   = errors.New("pdu: hmac algorithm mismatch")
	ErrAuthenticationFailed    = errors.New("pdu: hmac authentication failed")
	ErrRequestIDMismatch       = errors.New("pdu: request id mismatch")
	ErrAggrPduV1ResponseToV2   = errors.New("pdu: v1-shaped aggregation response to v2 request")
	ErrExtendPduV1ResponseToV2 = errors.New("pdu: v1-shaped extension response to v2 request")
	ErrUntrustedHashAlgorithm  = errors.New("pdu: untrusted (deprecated/obsolete) hmac hash algorithm")
)

// ServiceError reports a non-zero status from an error payload
// (spec.md §4.5, §7 "Service" error kind).
type ServiceError struct {
	Kind    Kind
	Status  uint64
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("pdu: service error status=0x%x: %s", e.Status, e.Message)
}

// Header is the PDU's first child: instance id, message id, and the
// login identity the HMAC is keyed against.
type Header struct {
	InstanceID uint64
	MessageID  uint64
	LoginID    string
}

func (h Header) toTlv() (*tlv.Tlv, error) {
	var children []*tlv.Tlv
	inst, err := tlv.NewUint(tagHeaderInstanceID, false, false, h.InstanceID)
	if err != nil {
		return nil, err
	}
	children = append(children, inst)
	msg, err := tlv.NewUint(tagHeaderMessageID, false, false, h.MessageID)
	if err != nil {
		return nil, err
	}
	children = append(children, msg)
	login, err := tlv.NewString(tagHeaderLoginID, false, false, h.LoginID)
	if err != nil {
		return nil, err
	}
	children = append(children, login)
	return tlv.NewNested(tagHeader, false, false, children)
}

func headerFromTlv(t *tlv.Tlv) (Header, error) {
	if t.Tag != tagHeader {
		return Header{}, fmt.Errorf("%w: expected header tag 0x%x, got 0x%x", ErrInvalidFormat, tagHeader, t.Tag)
	}
	if err := t.CastToNested(); err != nil {
		return Header{}, err
	}
	var h Header
	if c := t.FirstChild(tagHeaderInstanceID); c != nil {
		v, err := c.CastToUint()
		if err != nil {
			return Header{}, err
		}
		h.InstanceID = v
	}
	if c := t.FirstChild(tagHeaderMessageID); c != nil {
		v, err := c.CastToUint()
		if err != nil {
			return Header{}, err
		}
		h.MessageID = v
	}
	if c := t.FirstChild(tagHeaderLoginID); c != nil {
		v, err := c.CastToString()
		if err != nil {
			return Header{}, err
		}
		h.LoginID = v
	}
	return h, nil
}

// computeHmac returns the HMAC imprint over data, keyed by key under algo.
func computeHmac(algo hashing.Algorithm, key []byte, data []byte) (hashing.Imprint, error) {
	// Validate algo has in-process digest support before handing hmac.New
	// a constructor closure it will invoke without a way to report errors.
	if _, err := hashing.New(algo); err != nil {
		return hashing.Imprint{}, err
	}
	mac := hmac.New(func() hash.Hash {
		h, _ := hashing.New(algo)
		return h
	}, key)
	mac.Write(data)
	return hashing.NewImprint(algo, mac.Sum(nil))
}
