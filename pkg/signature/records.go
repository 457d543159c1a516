package signature

import (
	"fmt"

	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
)

// PubData is the published (publication_time, publication_hash) pair
// carried by both a calendar authentication record and a publication
// record. Grounded on original_source's PubDataRec.
type PubData struct {
	PublicationTime uint64
	PublicationHash hashing.Imprint
}

func (p PubData) toTlv() (*tlv.Tlv, error) {
	ptEl, err := tlv.NewUint(tagPubDataTime, false, false, p.PublicationTime)
	if err != nil {
		return nil, err
	}
	phEl, err := tlv.NewRaw(tagPubDataHash, false, false, p.PublicationHash.Bytes())
	if err != nil {
		return nil, err
	}
	return tlv.NewNested(tagPubData, false, false, []*tlv.Tlv{ptEl, phEl})
}

// Bytes returns the canonical serialized form of p, the exact payload
// a cal_auth or publication record's PKI signature is computed over
// (spec.md §4.4 "key-based policy").
func (p PubData) Bytes() ([]byte, error) {
	t, err := p.toTlv()
	if err != nil {
		return nil, err
	}
	return tlv.Serialize(t), nil
}

func pubDataFromTlv(t *tlv.Tlv) (PubData, error) {
	if err := t.CastToNested(); err != nil {
		return PubData{}, err
	}
	var p PubData
	ptEl := t.FirstChild(tagPubDataTime)
	if ptEl == nil {
		return PubData{}, fmt.Errorf("%w: pub_data missing publication time", ErrInvalidFormat)
	}
	pt, err := ptEl.CastToUint()
	if err != nil {
		return PubData{}, err
	}
	p.PublicationTime = pt

	phEl := t.FirstChild(tagPubDataHash)
	if phEl == nil {
		return PubData{}, fmt.Errorf("%w: pub_data missing publication hash", ErrInvalidFormat)
	}
	ph, err := hashing.ParseImprint(phEl.RawValue())
	if err != nil {
		return PubData{}, err
	}
	p.PublicationHash = ph
	return p, nil
}

// SigData is the PKI signature over a PubData element: algorithm,
// signature bytes, the signer certificate, its CRC32 identifier, and an
// optional certificate repository URI. Grounded on original_source's
// SigDataRec.
type SigData struct {
	SignatureValue []byte
	Certificate    []byte // DER, optional when only CertID is known
	CertID         []byte // CRC32 of the certificate's DER
	CertRepURI     string
}

func (s SigData) toTlv() (*tlv.Tlv, error) {
	var children []*tlv.Tlv
	valEl, err := tlv.NewRaw(tagSigValue, false, false, s.SignatureValue)
	if err != nil {
		return nil, err
	}
	children = append(children, valEl)
	if len(s.Certificate) > 0 {
		certEl, err := tlv.NewRaw(tagSigCert, true, false, s.Certificate)
		if err != nil {
			return nil, err
		}
		children = append(children, certEl)
	}
	if len(s.CertID) > 0 {
		idEl, err := tlv.NewRaw(tagSigCertID, false, false, s.CertID)
		if err != nil {
			return nil, err
		}
		children = append(children, idEl)
	}
	if s.CertRepURI != "" {
		uriEl, err := tlv.NewString(tagSigCertRepURI, true, false, s.CertRepURI)
		if err != nil {
			return nil, err
		}
		children = append(children, uriEl)
	}
	return tlv.NewNested(tagSigData, false, false, children)
}

func sigDataFromTlv(t *tlv.Tlv) (SigData, error) {
	if err := t.CastToNested(); err != nil {
		return SigData{}, err
	}
	var s SigData
	valEl := t.FirstChild(tagSigValue)
	if valEl == nil {
		return SigData{}, fmt.Errorf("%w: sig_data missing signature value", ErrInvalidFormat)
	}
	s.SignatureValue = valEl.RawValue()
	if c := t.FirstChild(tagSigCert); c != nil {
		s.Certificate = c.RawValue()
	}
	if c := t.FirstChild(tagSigCertID); c != nil {
		s.CertID = c.RawValue()
	}
	if c := t.FirstChild(tagSigCertRepURI); c != nil {
		v, err := c.CastToString()
		if err != nil {
			return SigData{}, err
		}
		s.CertRepURI = v
	}
	return s, nil
}

// CalAuthRecord is a signature's calendar authentication record: it
// authenticates the calendar chain's root over a trusted PKI signature
// at signing time, rather than via an extended publication. Mutually
// exclusive with PublicationRecord (§3).
type CalAuthRecord struct {
	PubData       PubData
	SigAlgo       string
	SigData       SigData
	isV1Container bool // true if this record was parsed out of TagPublicationOrCalAuthV1
}

func (c CalAuthRecord) toTlv(v1 bool) (*tlv.Tlv, error) {
	pdEl, err := c.PubData.toTlv()
	if err != nil {
		return nil, err
	}
	algoEl, err := tlv.NewString(tagSigAlgo, false, false, c.SigAlgo)
	if err != nil {
		return nil, err
	}
	sdEl, err := c.SigData.toTlv()
	if err != nil {
		return nil, err
	}
	tag := uint16(TagCalendarAuthRecV2)
	if v1 {
		tag = TagPublicationOrCalAuthV1
	}
	return tlv.NewNested(tag, false, false, []*tlv.Tlv{pdEl, algoEl, sdEl})
}

func calAuthFromTlv(t *tlv.Tlv, v1 bool) (CalAuthRecord, error) {
	if err := t.CastToNested(); err != nil {
		return CalAuthRecord{}, err
	}
	var c CalAuthRecord
	c.isV1Container = v1
	pdEl := t.FirstChild(tagPubData)
	if pdEl == nil {
		return CalAuthRecord{}, fmt.Errorf("%w: cal_auth missing pub_data", ErrInvalidFormat)
	}
	pd, err := pubDataFromTlv(pdEl)
	if err != nil {
		return CalAuthRecord{}, err
	}
	c.PubData = pd

	algoEl := t.FirstChild(tagSigAlgo)
	if algoEl == nil {
		return CalAuthRecord{}, fmt.Errorf("%w: cal_auth missing sig_algo", ErrInvalidFormat)
	}
	algo, err := algoEl.CastToString()
	if err != nil {
		return CalAuthRecord{}, err
	}
	c.SigAlgo = algo

	sdEl := t.FirstChild(tagSigData)
	if sdEl == nil {
		return CalAuthRecord{}, fmt.Errorf("%w: cal_auth missing sig_data", ErrInvalidFormat)
	}
	sd, err := sigDataFromTlv(sdEl)
	if err != nil {
		return CalAuthRecord{}, err
	}
	c.SigData = sd
	return c, nil
}

// AggregationAuthRecord authenticates an aggregation chain directly,
// independent of the calendar. Grounded on original_source's
// AggrAuthRec.
type AggregationAuthRecord struct {
	AggregationTime uint64
	ChainIndex      []uint64
	InputHash       hashing.Imprint
	SigAlgo         string
	SigData         SigData
}

func (a AggregationAuthRecord) toTlv() (*tlv.Tlv, error) {
	var children []*tlv.Tlv
	atEl, err := tlv.NewUint(tagAggrAuthTime, false, false, a.AggregationTime)
	if err != nil {
		return nil, err
	}
	children = append(children, atEl)
	for _, idx := range a.ChainIndex {
		ciEl, err := tlv.NewUint(tagAggrAuthChainIndex, false, false, idx)
		if err != nil {
			return nil, err
		}
		children = append(children, ciEl)
	}
	ihEl, err := tlv.NewRaw(tagAggrAuthInputHash, false, false, a.InputHash.Bytes())
	if err != nil {
		return nil, err
	}
	children = append(children, ihEl)
	algoEl, err := tlv.NewString(tagSigAlgo, false, false, a.SigAlgo)
	if err != nil {
		return nil, err
	}
	children = append(children, algoEl)
	sdEl, err := a.SigData.toTlv()
	if err != nil {
		return nil, err
	}
	children = append(children, sdEl)
	return tlv.NewNested(TagAggregationAuthRec, false, false, children)
}

func aggregationAuthFromTlv(t *tlv.Tlv) (AggregationAuthRecord, error) {
	if err := t.CastToNested(); err != nil {
		return AggregationAuthRecord{}, err
	}
	var a AggregationAuthRecord
	atEl := t.FirstChild(tagAggrAuthTime)
	if atEl == nil {
		return AggregationAuthRecord{}, fmt.Errorf("%w: aggr_auth missing aggregation time", ErrInvalidFormat)
	}
	at, err := atEl.CastToUint()
	if err != nil {
		return AggregationAuthRecord{}, err
	}
	a.AggregationTime = at

	for _, ci := range t.AllChildren(tagAggrAuthChainIndex) {
		v, err := ci.CastToUint()
		if err != nil {
			return AggregationAuthRecord{}, err
		}
		a.ChainIndex = append(a.ChainIndex, v)
	}

	ihEl := t.FirstChild(tagAggrAuthInputHash)
	if ihEl == nil {
		return AggregationAuthRecord{}, fmt.Errorf("%w: aggr_auth missing input hash", ErrInvalidFormat)
	}
	ih, err := hashing.ParseImprint(ihEl.RawValue())
	if err != nil {
		return AggregationAuthRecord{}, err
	}
	a.InputHash = ih

	algoEl := t.FirstChild(tagSigAlgo)
	if algoEl == nil {
		return AggregationAuthRecord{}, fmt.Errorf("%w: aggr_auth missing sig_algo", ErrInvalidFormat)
	}
	algo, err := algoEl.CastToString()
	if err != nil {
		return AggregationAuthRecord{}, err
	}
	a.SigAlgo = algo

	sdEl := t.FirstChild(tagSigData)
	if sdEl == nil {
		return AggregationAuthRecord{}, fmt.Errorf("%w: aggr_auth missing sig_data", ErrInvalidFormat)
	}
	sd, err := sigDataFromTlv(sdEl)
	if err != nil {
		return AggregationAuthRecord{}, err
	}
	a.SigData = sd
	return a, nil
}

// PublicationRecord anchors a signature to a publicly published
// calendar root, found by matching PubData against a publications file
// entry. Mutually exclusive with CalAuthRecord (§3).
type PublicationRecord struct {
	PubData       PubData
	PublicationRef []string
	RepositoryURI  []string
}

func (p PublicationRecord) toTlv() (*tlv.Tlv, error) {
	pdEl, err := p.PubData.toTlv()
	if err != nil {
		return nil, err
	}
	children := []*tlv.Tlv{pdEl}
	for _, ref := range p.PublicationRef {
		el, err := tlv.NewString(tagPubRecRef, true, false, ref)
		if err != nil {
			return nil, err
		}
		children = append(children, el)
	}
	for _, uri := range p.RepositoryURI {
		el, err := tlv.NewString(tagPubRecRepoURI, true, false, uri)
		if err != nil {
			return nil, err
		}
		children = append(children, el)
	}
	return tlv.NewNested(TagPublicationOrCalAuthV1, false, false, children)
}

func publicationFromTlv(t *tlv.Tlv) (PublicationRecord, error) {
	if err := t.CastToNested(); err != nil {
		return PublicationRecord{}, err
	}
	var p PublicationRecord
	pdEl := t.FirstChild(tagPubData)
	if pdEl == nil {
		return PublicationRecord{}, fmt.Errorf("%w: publication record missing pub_data", ErrInvalidFormat)
	}
	pd, err := pubDataFromTlv(pdEl)
	if err != nil {
		return PublicationRecord{}, err
	}
	p.PubData = pd
	for _, el := range t.AllChildren(tagPubRecRef) {
		s, err := el.CastToString()
		if err != nil {
			return PublicationRecord{}, err
		}
		p.PublicationRef = append(p.PublicationRef, s)
	}
	for _, el := range t.AllChildren(tagPubRecRepoURI) {
		s, err := el.CastToString()
		if err != nil {
			return PublicationRecord{}, err
		}
		p.RepositoryURI = append(p.RepositoryURI, s)
	}
	return p, nil
}

// isPublicationShaped reports whether a TagPublicationOrCalAuthV1
// element's children indicate a publication record rather than a v1
// calendar-auth record: the two share a tag and are disambiguated
// structurally (a sig_algo/sig_data pair is cal_auth-specific).
func isPublicationShaped(t *tlv.Tlv) bool {
	return t.FirstChild(tagSigAlgo) == nil && t.FirstChild(tagSigData) == nil
}

// RFC3161Record is carried by legacy signatures produced before
// calendar-based timestamping; spec.md does not define its internal
// fields beyond "optional", so it is retained as an opaque sub-TLV
// rather than decoded, and reattached verbatim on serialize.
type RFC3161Record struct {
	raw *tlv.Tlv
}
