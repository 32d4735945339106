package transaction

import (
	"fmt"
	"strings"
)

// ValidationError marks a request rejected before any network or ledger call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NormalizeMSISDN canonicalizes a Kenyan mobile number to the 12-digit
// 254XXXXXXXXX form Daraja requires. Accepted inputs after stripping
// non-digits: local 0XXXXXXXXX (10 digits), international 254XXXXXXXXX
// (12 digits, with or without a leading +), or a bare 9-digit subscriber
// number.
func NormalizeMSISDN(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	var msisdn string
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "254"):
		msisdn = digits
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		msisdn = "254" + digits[1:]
	case len(digits) == 9:
		msisdn = "254" + digits
	default:
		return "", &ValidationError{Field: "phone", Message: fmt.Sprintf("unrecognized format %q; use 07XXXXXXXX or 2547XXXXXXXX", raw)}
	}

	if len(msisdn) != 12 {
		return "", &ValidationError{Field: "phone", Message: fmt.Sprintf("normalized number %q is not 12 digits", msisdn)}
	}
	return msisdn, nil
}
