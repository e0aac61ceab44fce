// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when the caller does not supply one.
const DefaultRegion = "US"

// ErrInvalidPhone is returned when input cannot be read as a plausible number.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizeE164 parses input in the given region and formats it as E.164.
func NormalizeE164(input, region string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrInvalidPhone
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return "", ErrInvalidPhone
	}

	if !phonenumbers.IsPossibleNumber(number) {
		return "", ErrInvalidPhone
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}
