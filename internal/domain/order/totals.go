package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyMismatchError indicates an item whose currency differs from the
// currency already established for the order. Amounts are never converted.
type CurrencyMismatchError struct {
	Want string
	Got  string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: order is %s, item is %s", e.Want, e.Got)
}

// Totals is the result of a totals computation: the order's price, its
// currency, and the accumulated tax amount per rate.
type Totals struct {
	Price    decimal.Decimal
	Currency string
	Taxes    TaxBreakdown
}

// TaxBreakdown maps a canonical tax rate key (see RateKey) to the accumulated
// tax amount for that rate. Items sharing a percentage share a bucket, even
// when they come from distinct tax definitions.
type TaxBreakdown map[string]decimal.Decimal

// RateKey renders a tax percentage as its canonical bucket key: the decimal
// string with trailing fractional zeros trimmed, so 21, 21.0 and 21.00 all
// bucket together.
func RateKey(pct decimal.Decimal) string {
	s := pct.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// Calculator computes order totals from line items. It is stateless apart
// from the default currency used for orders without items.
type Calculator struct {
	defaultCurrency string
}

// NewCalculator creates a Calculator. defaultCurrency is the currency
// reported for orders with no items.
func NewCalculator(defaultCurrency string) *Calculator {
	return &Calculator{defaultCurrency: defaultCurrency}
}

// Compute derives the order total, currency and per-rate tax breakdown from
// the given items, in collection order. It is a pure function of the items.
//
// Every item must carry the same currency as the first one; a differing
// currency yields a CurrencyMismatchError rather than a conversion. Tax
// amounts are lineTotal * percentage / 100, rounded half-up to two decimals
// per item before accumulation.
func (c *Calculator) Compute(items []OrderItem) (*Totals, error) {
	totals := &Totals{
		Price:    decimal.Zero,
		Currency: c.defaultCurrency,
		Taxes:    make(TaxBreakdown),
	}

	for i, item := range items {
		if i == 0 {
			totals.Currency = item.PriceCurrency
		} else if item.PriceCurrency != totals.Currency {
			return nil, &CurrencyMismatchError{Want: totals.Currency, Got: item.PriceCurrency}
		}

		lineTotal := item.Price.Mul(decimal.NewFromInt(item.Quantity))
		totals.Price = totals.Price.Add(lineTotal)

		for _, tax := range item.Taxes {
			amount := lineTotal.Mul(tax.Percentage).Div(decimal.NewFromInt(100)).Round(2)
			key := RateKey(tax.Percentage)
			totals.Taxes[key] = totals.Taxes[key].Add(amount)
		}
	}

	totals.Price = totals.Price.Round(2)
	return totals, nil
}
