package pdu

import "github.com/certenio/ksi-go/pkg/tlv"

// ConfigPush is a server-pushed configuration payload riding inside an
// aggregation or extension response. It never produces a signature; the
// client surfaces it through an optional callback (spec.md §4.3).
type ConfigPush struct {
	MaxRequests       uint64
	HasMaxRequests    bool
	AggrPeriod        uint64
	HasAggrPeriod     bool
	CalendarFirstTime uint64
	HasCalFirstTime   bool
	CalendarLastTime  uint64
	HasCalLastTime    bool
	ParentURI         []string
}

func configPushFromTlv(t *tlv.Tlv) (ConfigPush, error) {
	if err := t.CastToNested(); err != nil {
		return ConfigPush{}, err
	}
	var c ConfigPush
	if el := t.FirstChild(tagConfigMaxRequests); el != nil {
		v, err := el.CastToUint()
		if err != nil {
			return ConfigPush{}, err
		}
		c.MaxRequests, c.HasMaxRequests = v, true
	}
	if el := t.FirstChild(tagConfigAggrPeriod); el != nil {
		v, err := el.CastToUint()
		if err != nil {
			return ConfigPush{}, err
		}
		c.AggrPeriod, c.HasAggrPeriod = v, true
	}
	if el := t.FirstChild(tagConfigCalFirstTime); el != nil {
		v, err := el.CastToUint()
		if err != nil {
			return ConfigPush{}, err
		}
		c.CalendarFirstTime, c.HasCalFirstTime = v, true
	}
	if el := t.FirstChild(tagConfigCalLastTime); el != nil {
		v, err := el.CastToUint()
		if err != nil {
			return ConfigPush{}, err
		}
		c.CalendarLastTime, c.HasCalLastTime = v, true
	}
	for _, el := range t.AllChildren(tagConfigParentURI) {
		s, err := el.CastToString()
		if err != nil {
			return ConfigPush{}, err
		}
		c.ParentURI = append(c.ParentURI, s)
	}
	return c, nil
}
