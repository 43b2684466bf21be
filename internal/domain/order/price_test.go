package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnitPrice(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "decimal string is major units", raw: `"12.50"`, want: "12.50"},
		{name: "integral string", raw: `"12"`, want: "12.00"},
		{name: "string with many decimals kept exact", raw: `"0.1"`, want: "0.10"},
		{name: "bare integer is minor units", raw: `1250`, want: "12.50"},
		{name: "zero minor units", raw: `0`, want: "0.00"},
		{name: "single cent", raw: `1`, want: "0.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseUnitPrice([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.StringFixed(2))
		})
	}
}

func TestParseUnitPrice_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ``},
		{name: "unparseable string", raw: `"twelve"`},
		{name: "fractional bare number", raw: `12.5`},
		{name: "exponent number", raw: `1e3`},
		{name: "null", raw: `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUnitPrice([]byte(tt.raw))
			var invalid *InvalidAmountError
			require.ErrorAs(t, err, &invalid)
		})
	}
}

func TestParseUnitPrice_StringTimesQuantity(t *testing.T) {
	calc := NewCalculator("EUR")
	price, err := ParseUnitPrice([]byte(`"12.50"`))
	require.NoError(t, err)

	totals, err := calc.Compute([]OrderItem{{
		Price:         price,
		PriceCurrency: "EUR",
		Quantity:      2,
	}})
	require.NoError(t, err)
	assert.Equal(t, "25.00", totals.Price.StringFixed(2))
}
