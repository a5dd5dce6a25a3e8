package cart

import (
	"encoding/json"
	"strings"

	"github.com/donpico/tienda/pkg/money"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	DefaultFreeShippingThreshold = decimal.NewFromInt(50000)
	DefaultFlatShippingFee       = decimal.NewFromInt(6000)
)

// PricingPolicy holds the shipping rule: orders whose subtotal reaches
// FreeShippingThreshold ship free, everything else pays FlatShippingFee.
type PricingPolicy struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
}

func DefaultPolicy() PricingPolicy {
	return PricingPolicy{
		FreeShippingThreshold: DefaultFreeShippingThreshold,
		FlatShippingFee:       DefaultFlatShippingFee,
	}
}

// Totals are derived from a cart and never stored.
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	ShippingFee decimal.Decimal `json:"envio"`
	Total       decimal.Decimal `json:"total"`
	// FreeShipping is set when a non-empty cart reached the threshold.
	FreeShipping bool `json:"envioGratis"`
	// Empty is set for a cart without items. Such a cart still reports the
	// flat shipping fee; callers decide whether to show it.
	Empty bool `json:"vacio"`
}

func (t Totals) MarshalJSON() ([]byte, error) {
	type alias Totals
	return json.Marshal(struct {
		alias
		Subtotal    json.Number `json:"subtotal"`
		ShippingFee json.Number `json:"envio"`
		Total       json.Number `json:"total"`
	}{alias(t), money.Number(t.Subtotal), money.Number(t.ShippingFee), money.Number(t.Total)})
}

// Equal compares the monetary values of two totals.
func (t Totals) Equal(o Totals) bool {
	return t.Subtotal.Equal(o.Subtotal) &&
		t.ShippingFee.Equal(o.ShippingFee) &&
		t.Total.Equal(o.Total)
}

// ComputeTotals is pure: subtotal = Σ price × quantity, shipping is waived at
// or above the threshold, total = subtotal + shipping. Lines with a negative
// price or a quantity below one contribute nothing.
func ComputeTotals(items []LineItem, policy PricingPolicy) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity < 1 || it.UnitPrice.IsNegative() {
			continue
		}
		subtotal = subtotal.Add(it.LineTotal())
	}

	shipping := policy.FlatShippingFee
	if subtotal.GreaterThanOrEqual(policy.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Totals{
		Subtotal:     subtotal,
		ShippingFee:  shipping,
		Total:        subtotal.Add(shipping),
		FreeShipping: shipping.IsZero() && subtotal.IsPositive(),
		Empty:        len(items) == 0,
	}
}

var (
	displayPrinter = message.NewPrinter(language.MustParse("es-CO"))
	decimalMark    = strings.Trim(displayPrinter.Sprintf("%v", number.Decimal(1.5)), "15")
)

// FormatPrice renders an amount for display the way the storefront shows
// it in es-CO: "$" prefix, locale grouping and decimal mark, at most two
// fraction digits with trailing zeros dropped. Display only.
func FormatPrice(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}

	// only the integer part goes through x/text, which takes floats, so
	// the cents stay exact
	_, frac, _ := strings.Cut(rounded.StringFixed(2), ".")
	frac = strings.TrimRight(frac, "0")

	out := sign + "$" + displayPrinter.Sprintf("%v", number.Decimal(rounded.IntPart()))
	if frac != "" {
		out += decimalMark + frac
	}
	return out
}
