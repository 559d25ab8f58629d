package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-dealer/internal/deal"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func baseState() deal.State {
	s := deal.State{
		ListedPrice:  d("35000"),
		Discount:     d("1000"),
		SellingPrice: d("34000"),
		SalesTaxRate: d("6.25"),
	}
	s.Normalize()
	return s
}

func TestComputeExcludedItemsAndZeroTaxReturnsSellingPrice(t *testing.T) {
	s := baseState()
	s.SalesTaxRate = decimal.Zero
	s.Packages["p"] = deal.LineItem{Label: "Paint protection", Value: d("899"), Include: false}
	s.Accessories["a"] = deal.LineItem{Label: "Mats", Value: d("150"), Include: false}
	s.Fees["f"] = deal.LineItem{Label: "Doc fee", Value: d("85"), Include: false}
	s.TradeIns["t"] = deal.TradeIn{Allowance: d("5000"), Include: false}

	got := Compute(s)
	require.True(t, s.SellingPrice.Equal(got.Total), "total %s", got.Total)
	require.True(t, got.SalesTax.IsZero())
}

func TestComputeFullDeal(t *testing.T) {
	s := baseState()
	s.Packages["p1"] = deal.LineItem{Label: "Service contract", Value: d("1500"), Include: true}
	s.Accessories["a1"] = deal.LineItem{Label: "Roof rack", Value: d("400"), Include: true}
	s.Fees["f1"] = deal.LineItem{Label: "Title & registration", Value: d("250.50"), Include: true}
	s.TradeIns["t1"] = deal.TradeIn{Status: deal.StatusFinanced, Allowance: d("9000"), PayoffAmount: d("4000"), Include: true}
	s.TradeIns["t2"] = deal.TradeIn{Status: deal.StatusPaidOff, Allowance: d("1000"), PayoffAmount: d("700"), Include: true}

	got := Compute(s)
	require.Equal(t, "6000", got.SumTradeIns.String())
	// 34000 - 6000 + 1500 + 400
	require.Equal(t, "29900", got.TaxableAmount.String())
	require.Equal(t, "1868.75", got.SalesTax.StringFixed(2))
	// 34000 + 1500 + 400 + 1868.75 + 250.50 - 6000
	require.Equal(t, "32019.25", got.Total.StringFixed(2))
}

func TestComputeGapCarveOut(t *testing.T) {
	without := baseState()
	before := Compute(without)

	with := baseState()
	with.Packages["g"] = deal.LineItem{Label: "GAP", Value: d("795"), Include: true}
	after := Compute(with)

	require.True(t, after.SumPackages.Sub(before.SumPackages).Equal(d("795")))
	require.True(t, after.TaxableAmount.Equal(before.TaxableAmount))
	require.True(t, after.GapAmount.Equal(d("795")))
	require.True(t, after.Total.Sub(before.Total).Equal(d("795")))
}

func TestComputeGapOnlyFirstMatchCarvedOut(t *testing.T) {
	s := baseState()
	s.Packages["k1"] = deal.LineItem{Label: "NAS Gap", Value: d("600"), Include: true}
	s.Packages["k2"] = deal.LineItem{Label: "gap plus", Value: d("400"), Include: true}
	s.Order[deal.Packages] = []string{"k2", "k1"}

	got := Compute(s)
	require.True(t, got.GapAmount.Equal(d("400")))
	// 34000 + (1000 - 400)
	require.True(t, got.TaxableAmount.Equal(d("34600")))
}

func TestComputeExcludedGapNotCarvedOut(t *testing.T) {
	s := baseState()
	s.Packages["g"] = deal.LineItem{Label: "GAP", Value: d("795"), Include: false}
	s.Packages["w"] = deal.LineItem{Label: "Wheel & tire", Value: d("500"), Include: true}

	got := Compute(s)
	require.True(t, got.GapAmount.IsZero())
	require.True(t, got.TaxableAmount.Equal(d("34500")))
}

func TestRoundedHalfUp(t *testing.T) {
	b := Breakdown{SalesTax: d("10.005"), Total: d("100.125")}.Rounded()
	require.Equal(t, "10.01", b.SalesTax.StringFixed(2))
	require.Equal(t, "100.13", b.Total.StringFixed(2))
}

func TestIsGap(t *testing.T) {
	require.True(t, IsGap("GAP"))
	require.True(t, IsGap("NAS GAP Insurance"))
	require.False(t, IsGap("Tire & wheel"))
}
