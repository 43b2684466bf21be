package order

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// InvalidAmountError indicates a unit price that could not be parsed under
// the normalization rule implemented by ParseUnitPrice.
type InvalidAmountError struct {
	Raw string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %q", e.Raw)
}

// ParseUnitPrice normalizes the two wire representations of a unit price
// into a single canonical decimal amount in major currency units:
//
//   - a JSON string is a decimal amount in major units: "12.50" -> 12.50
//   - a JSON integer is an amount in minor units (cents): 1250 -> 12.50
//
// A fractional bare number is rejected: minor units are integral by
// definition, and accepting floats here would reintroduce the ambiguity this
// rule exists to remove. The raw bytes are taken as produced by a JSON
// decoder (quotes intact for strings).
func ParseUnitPrice(raw []byte) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return decimal.Decimal{}, &InvalidAmountError{Raw: ""}
	}

	if raw[0] == '"' {
		s, err := strconv.Unquote(string(raw))
		if err != nil {
			return decimal.Decimal{}, &InvalidAmountError{Raw: string(raw)}
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, &InvalidAmountError{Raw: s}
		}
		return d, nil
	}

	minor, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return decimal.Decimal{}, &InvalidAmountError{Raw: string(raw)}
	}
	return decimal.New(minor, -2), nil
}
