package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dealer/internal/deal"
)

// gapMarker identifies GAP insurance packages, which are not taxed. It also
// matches labels such as "NAS GAP".
const gapMarker = "gap"

// Breakdown aggregates the computed components of an out-the-door price.
type Breakdown struct {
	SumPackages    decimal.Decimal `json:"sumPackages"`
	SumAccessories decimal.Decimal `json:"sumAccessories"`
	SumFees        decimal.Decimal `json:"sumFees"`
	SumTradeIns    decimal.Decimal `json:"sumTradeIns"`
	GapAmount      decimal.Decimal `json:"gapAmount"`
	TaxableAmount  decimal.Decimal `json:"taxableAmount"`
	SalesTax       decimal.Decimal `json:"salesTax"`
	Total          decimal.Decimal `json:"total"`
}

// Compute calculates quote totals from the state snapshot. No intermediate
// value is rounded; call Rounded for presentation.
func Compute(s deal.State) Breakdown {
	sumPackages := s.Packages.SumIncluded()
	sumAccessories := s.Accessories.SumIncluded()
	sumFees := s.Fees.SumIncluded()
	sumTradeIns := SumTradeIns(s.TradeIns)
	gap := GapAmount(s.Packages, s.Order[deal.Packages])

	taxable := s.SellingPrice.
		Sub(sumTradeIns).
		Add(sumPackages.Sub(gap)).
		Add(sumAccessories)
	tax := s.SalesTaxRate.Shift(-2).Mul(taxable)
	total := s.SellingPrice.
		Add(sumPackages).
		Add(sumAccessories).
		Add(tax).
		Add(sumFees).
		Sub(sumTradeIns)

	return Breakdown{
		SumPackages:    sumPackages,
		SumAccessories: sumAccessories,
		SumFees:        sumFees,
		SumTradeIns:    sumTradeIns,
		GapAmount:      gap,
		TaxableAmount:  taxable,
		SalesTax:       tax,
		Total:          total,
	}
}

// SumTradeIns adds up the equity of every included trade-in.
func SumTradeIns(trades map[string]deal.TradeIn) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range trades {
		if t.Include {
			sum = sum.Add(t.Equity())
		}
	}
	return sum
}

// GapAmount returns the value of the first included GAP package, or zero.
// Only one package is carved out of the taxable base even when several match.
// "First" follows the display order, then key order for anything not listed.
func GapAmount(packages deal.LineItems, order []string) decimal.Decimal {
	for _, key := range deal.OrderedKeys(packages, order) {
		item := packages[key]
		if item.Include && IsGap(item.Label) {
			return item.Value
		}
	}
	return decimal.Zero
}

// IsGap reports whether a package label names GAP coverage.
func IsGap(label string) bool {
	return strings.Contains(strings.ToLower(label), gapMarker)
}

// Rounded returns a copy with every component rounded half-up to cents.
func (b Breakdown) Rounded() Breakdown {
	return Breakdown{
		SumPackages:    b.SumPackages.Round(2),
		SumAccessories: b.SumAccessories.Round(2),
		SumFees:        b.SumFees.Round(2),
		SumTradeIns:    b.SumTradeIns.Round(2),
		GapAmount:      b.GapAmount.Round(2),
		TaxableAmount:  b.TaxableAmount.Round(2),
		SalesTax:       b.SalesTax.Round(2),
		Total:          b.Total.Round(2),
	}
}
