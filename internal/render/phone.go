package render

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidNumber is returned for numbers that cannot receive SMS.
var ErrInvalidNumber = errors.New("invalid mobile number")

// Number is a validated phone number.
type Number struct {
	E164        string
	CountryCode string
	Region      string
	Formatted   string
	Mobile      bool
}

// ParseNumber parses number in the context of region (e.g. "GB").
func ParseNumber(number, region string) (*Number, error) {
	p, err := phonenumbers.Parse(number, region)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidNumber, number, err)
	}
	if !phonenumbers.IsValidNumber(p) {
		return nil, fmt.Errorf("%w %q", ErrInvalidNumber, number)
	}

	kind := phonenumbers.GetNumberType(p)
	return &Number{
		E164:        phonenumbers.Format(p, phonenumbers.E164),
		CountryCode: strconv.Itoa(int(p.GetCountryCode())),
		Region:      phonenumbers.GetRegionCodeForNumber(p),
		Formatted:   phonenumbers.Format(p, phonenumbers.INTERNATIONAL),
		Mobile:      kind == phonenumbers.MOBILE || kind == phonenumbers.FIXED_LINE_OR_MOBILE,
	}, nil
}

// ParseMobile is ParseNumber that also rejects non-mobile numbers.
func ParseMobile(number, region string) (*Number, error) {
	n, err := ParseNumber(number, region)
	if err != nil {
		return nil, err
	}
	if !n.Mobile {
		return n, fmt.Errorf("%w %q: not a mobile number", ErrInvalidNumber, number)
	}
	return n, nil
}
