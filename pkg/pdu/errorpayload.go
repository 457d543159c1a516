package pdu

import "github.com/certenio/ksi-go/pkg/tlv"

func errorPayloadFromTlv(kind Kind, t *tlv.Tlv) (*ServiceError, error) {
	if err := t.CastToNested(); err != nil {
		return nil, err
	}
	se := &ServiceError{Kind: kind}
	if el := t.FirstChild(tagErrorStatus); el != nil {
		v, err := el.CastToUint()
		if err != nil {
			return nil, err
		}
		se.Status = v
	}
	if el := t.FirstChild(tagErrorMessage); el != nil {
		s, err := el.CastToString()
		if err != nil {
			return nil, err
		}
		se.Message = s
	}
	return se, nil
}
