// Package pubfile parses and verifies the KSI publications file: a TLV
// container holding a header, certificate records, publication
// records, and a trailing PKCS#7 signature over the preceding bytes
// (spec.md §6 "Publications file format").
package pubfile

import (
	"errors"
	"fmt"

	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
	"github.com/certenio/ksi-go/pkg/trust"
	"github.com/digitorus/pkcs7"
)

// Top-level and sub-element tags. spec.md leaves the wire numbering to
// the implementation beyond "a header, a sequence of certificate
// records, a sequence of publication records, and a trailing
// signature"; numbered the same implementation-defined way as
// pkg/chain, pkg/pdu, pkg/signature.
const (
	TagPublicationsFile = 0x0700

	tagHeader       = 0x01
	tagHeaderVer    = 0x01
	tagHeaderCreate = 0x02

	tagCertRecord   = 0x02
	tagCertID       = 0x01
	tagCertDER      = 0x02

	tagPublicationRecord = 0x03
	tagPubData           = 0x10
	tagPubDataTime       = 0x02
	tagPubDataHash       = 0x04
	tagPubRecRef         = 0x09
	tagPubRecRepoURI     = 0x0a

	tagSignature = 0x04
)

var (
	// ErrInvalidFormat is returned for a structurally malformed
	// publications file.
	ErrInvalidFormat = tlv.ErrInvalidFormat
	// ErrSignatureInvalid is returned when the trailing PKCS#7
	// signature does not verify.
	ErrSignatureInvalid = errors.New("pubfile: trailing signature does not verify")
	// ErrCertificateNotFound is returned when no certificate record
	// matches a requested cert_id.
	ErrCertificateNotFound = errors.New("pubfile: no certificate record for cert_id")
)

// CertRecord is one embedded certificate, identified by its CRC32
// (spec.md §4.4 "cert_id (CRC32 of the certificate's DER)").
type CertRecord struct {
	CertID      uint32
	Certificate []byte // DER
}

// PublicationEntry is one published (time, hash) pair plus optional
// human-readable references, matched against a signature's
// PublicationRecord during publication-based verification.
type PublicationEntry struct {
	PublicationTime uint64
	PublicationHash hashing.Imprint
	PublicationRef  []string
	RepositoryURI   []string
}

// File is a parsed publications file.
type File struct {
	CreationTime uint64
	Certificates []CertRecord
	Publications []PublicationEntry

	signedBytes []byte // everything preceding the trailing signature element
	signature   []byte // the trailing PKCS#7 signature bytes
}

// Parse decodes a publications file from its wire form. The trailing
// signature is retained but not verified; call Verify separately with
// a trust store and constraints.
func Parse(data []byte) (*File, error) {
	root, err := tlv.Parse(data)
	if err != nil {
		return nil, err
	}
	if root.Tag != TagPublicationsFile {
		return nil, fmt.Errorf("%w: expected tag 0x%x, got 0x%x", ErrInvalidFormat, TagPublicationsFile, root.Tag)
	}
	if err := root.CastToNested(); err != nil {
		return nil, err
	}

	f := &File{}
	children := root.Children()
	var sigIdx = -1

	for i, child := range children {
		switch child.Tag {
		case tagHeader:
			if err := child.CastToNested(); err != nil {
				return nil, err
			}
			if ct := child.FirstChild(tagHeaderCreate); ct != nil {
				v, err := ct.CastToUint()
				if err != nil {
					return nil, err
				}
				f.CreationTime = v
			}
		case tagCertRecord:
			rec, err := certRecordFromTlv(child)
			if err != nil {
				return nil, err
			}
			f.Certificates = append(f.Certificates, rec)
		case tagPublicationRecord:
			pub, err := publicationEntryFromTlv(child)
			if err != nil {
				return nil, err
			}
			f.Publications = append(f.Publications, pub)
		case tagSignature:
			f.signature = child.RawValue()
			sigIdx = i
		}
	}

	if sigIdx < 0 {
		return nil, fmt.Errorf("%w: publications file missing trailing signature", ErrInvalidFormat)
	}
	if sigIdx != len(children)-1 {
		return nil, fmt.Errorf("%w: trailing signature is not the last element", ErrInvalidFormat)
	}

	unsigned, err := tlv.NewNested(TagPublicationsFile, false, false, children[:sigIdx])
	if err != nil {
		return nil, err
	}
	f.signedBytes = unsigned.RawValue()

	return f, nil
}

func certRecordFromTlv(t *tlv.Tlv) (CertRecord, error) {
	if err := t.CastToNested(); err != nil {
		return CertRecord{}, err
	}
	idEl := t.FirstChild(tagCertID)
	if idEl == nil {
		return CertRecord{}, fmt.Errorf("%w: cert record missing cert_id", ErrInvalidFormat)
	}
	id, err := idEl.CastToUint()
	if err != nil {
		return CertRecord{}, err
	}
	derEl := t.FirstChild(tagCertDER)
	if derEl == nil {
		return CertRecord{}, fmt.Errorf("%w: cert record missing certificate", ErrInvalidFormat)
	}
	return CertRecord{CertID: uint32(id), Certificate: derEl.RawValue()}, nil
}

func publicationEntryFromTlv(t *tlv.Tlv) (PublicationEntry, error) {
	if err := t.CastToNested(); err != nil {
		return PublicationEntry{}, err
	}
	var p PublicationEntry
	pdEl := t.FirstChild(tagPubData)
	if pdEl == nil {
		return PublicationEntry{}, fmt.Errorf("%w: publication record missing pub_data", ErrInvalidFormat)
	}
	if err := pdEl.CastToNested(); err != nil {
		return PublicationEntry{}, err
	}
	ptEl := pdEl.FirstChild(tagPubDataTime)
	if ptEl == nil {
		return PublicationEntry{}, fmt.Errorf("%w: pub_data missing publication time", ErrInvalidFormat)
	}
	pt, err := ptEl.CastToUint()
	if err != nil {
		return PublicationEntry{}, err
	}
	p.PublicationTime = pt

	phEl := pdEl.FirstChild(tagPubDataHash)
	if phEl == nil {
		return PublicationEntry{}, fmt.Errorf("%w: pub_data missing publication hash", ErrInvalidFormat)
	}
	ph, err := hashing.ParseImprint(phEl.RawValue())
	if err != nil {
		return PublicationEntry{}, err
	}
	p.PublicationHash = ph

	for _, el := range t.AllChildren(tagPubRecRef) {
		s, err := el.CastToString()
		if err != nil {
			return PublicationEntry{}, err
		}
		p.PublicationRef = append(p.PublicationRef, s)
	}
	for _, el := range t.AllChildren(tagPubRecRepoURI) {
		s, err := el.CastToString()
		if err != nil {
			return PublicationEntry{}, err
		}
		p.RepositoryURI = append(p.RepositoryURI, s)
	}
	return p, nil
}

// CertByID returns the certificate record matching id, if any.
func (f *File) CertByID(id uint32) (CertRecord, bool) {
	for _, c := range f.Certificates {
		if c.CertID == id {
			return c, true
		}
	}
	return CertRecord{}, false
}

// FindPublication reports whether pubTime/pubHash matches a publication
// entry in this file (spec.md §4.4 "publication-based policy").
func (f *File) FindPublication(pubTime uint64, pubHash hashing.Imprint) (PublicationEntry, bool) {
	for _, p := range f.Publications {
		if p.PublicationTime == pubTime && p.PublicationHash.Equal(pubHash) {
			return p, true
		}
	}
	return PublicationEntry{}, false
}

// Verify checks the file's trailing PKCS#7 signature against
// store, then checks the signing certificate against constraints
// (spec.md §6: "must verify against a cert in the configured
// trust-store and against configured cert constraints").
func (f *File) Verify(store trust.TrustStore, constraints map[string]string) error {
	p7, err := pkcs7.Parse(f.signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	p7.Content = f.signedBytes
	if err := p7.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if len(p7.Certificates) == 0 {
		return fmt.Errorf("%w: no signing certificate embedded", ErrSignatureInvalid)
	}
	signer := p7.Certificates[0]
	if err := store.IsTrusted(signer); err != nil {
		return err
	}
	if len(constraints) > 0 {
		if err := store.CheckConstraints(signer, constraints); err != nil {
			return err
		}
	}
	return nil
}
