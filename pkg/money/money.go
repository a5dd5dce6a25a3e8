// Package money holds the wire form of amounts.
package money

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Number renders an amount as a JSON number. Wire types use it in their
// MarshalJSON so prices never depend on decimal.MarshalJSONWithoutQuotes,
// which is process-wide.
func Number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
