package quote

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dealer/internal/amortization"
	"github.com/noah-isme/backend-dealer/internal/deal"
	"github.com/noah-isme/backend-dealer/internal/financing"
	"github.com/noah-isme/backend-dealer/internal/pricing"
)

// Snapshot is the quote as the desk sees it after a change: the state, its
// rounded totals, and the full editing matrix.
type Snapshot struct {
	State    deal.State        `json:"state"`
	Pricing  pricing.Breakdown `json:"pricing"`
	Matrix   financing.Matrix  `json:"matrix"`
	Outcome  Outcome           `json:"outcome,omitempty"`
	Warnings []string          `json:"warnings"`
}

// NewSnapshot derives totals and the payment matrix from s. The matrix is
// financed off the out-the-door total rounded to cents.
func NewSnapshot(s deal.State, res Result) Snapshot {
	breakdown := pricing.Compute(s).Rounded()
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return Snapshot{
		State:    s,
		Pricing:  breakdown,
		Matrix:   financing.Build(s.Terms, s.DownPayments, breakdown.Total, s.DaysToFirstPayment, financing.ModeEdit),
		Outcome:  res.Outcome,
		Warnings: warnings,
	}
}

// PaymentSummary is the disclosure line for one printed payment option.
type PaymentSummary struct {
	DownPaymentID  string          `json:"downPaymentId"`
	DownPayment    decimal.Decimal `json:"downPayment"`
	TermID         string          `json:"termId"`
	DurationMonths int             `json:"durationMonths"`
	APR            decimal.Decimal `json:"apr"`
	Principal      decimal.Decimal `json:"principal"`
	amortization.Summary
}

// Sheet is the print-ready quote: selected options only.
type Sheet struct {
	VIN                string            `json:"vin"`
	ListedPrice        decimal.Decimal   `json:"listedPrice"`
	Discount           decimal.Decimal   `json:"discount"`
	SellingPrice       decimal.Decimal   `json:"sellingPrice"`
	SalesTaxRate       decimal.Decimal   `json:"salesTaxRate"`
	Packages           []deal.LineItem   `json:"packages"`
	Accessories        []deal.LineItem   `json:"accessories"`
	Fees               []deal.LineItem   `json:"fees"`
	TradeIns           []deal.TradeIn    `json:"tradeIns"`
	Pricing            pricing.Breakdown `json:"pricing"`
	Matrix             financing.Matrix  `json:"matrix"`
	Summaries          []PaymentSummary  `json:"summaries"`
	DaysToFirstPayment int               `json:"daysToFirstPayment"`
	GeneratedAt        time.Time         `json:"generatedAt"`
}

// NewSheet builds the printable quote for s. Excluded line items and
// trade-ins are left off.
func NewSheet(s deal.State, now time.Time) Sheet {
	breakdown := pricing.Compute(s).Rounded()
	matrix := financing.Build(s.Terms, s.DownPayments, breakdown.Total, s.DaysToFirstPayment, financing.ModePrint)

	sheet := Sheet{
		VIN:                s.VIN,
		ListedPrice:        s.ListedPrice,
		Discount:           s.Discount,
		SellingPrice:       s.SellingPrice,
		SalesTaxRate:       s.SalesTaxRate,
		Packages:           includedItems(s, deal.Packages),
		Accessories:        includedItems(s, deal.Accessories),
		Fees:               includedItems(s, deal.Fees),
		TradeIns:           includedTrades(s.TradeIns),
		Pricing:            breakdown,
		Matrix:             matrix,
		Summaries:          []PaymentSummary{},
		DaysToFirstPayment: s.DaysToFirstPayment,
		GeneratedAt:        now.UTC(),
	}
	for _, row := range matrix.Rows {
		for i, cell := range row.Cells {
			if cell.Payment == nil {
				continue
			}
			col := matrix.Columns[i]
			summary, err := amortization.Summarize(row.Principal, col.DurationMonths, col.APR, s.DaysToFirstPayment)
			if err != nil {
				continue
			}
			sheet.Summaries = append(sheet.Summaries, PaymentSummary{
				DownPaymentID:  row.DownPaymentID,
				DownPayment:    row.DownPayment,
				TermID:         col.TermID,
				DurationMonths: col.DurationMonths,
				APR:            col.APR,
				Principal:      row.Principal,
				Summary:        summary,
			})
		}
	}
	return sheet
}

func includedItems(s deal.State, c deal.Collection) []deal.LineItem {
	items := s.Items(c)
	out := make([]deal.LineItem, 0, len(items))
	for _, key := range deal.OrderedKeys(items, s.Order[c]) {
		if it := items[key]; it.Include {
			out = append(out, it)
		}
	}
	return out
}

func includedTrades(trades map[string]deal.TradeIn) []deal.TradeIn {
	out := make([]deal.TradeIn, 0, len(trades))
	for _, t := range trades {
		if t.Include {
			out = append(out, t)
		}
	}
	sortTrades(out)
	return out
}

func sortTrades(trades []deal.TradeIn) {
	sort.Slice(trades, func(i, j int) bool {
		if !trades[i].CreatedAt.Equal(trades[j].CreatedAt) {
			return trades[i].CreatedAt.Before(trades[j].CreatedAt)
		}
		return trades[i].ID < trades[j].ID
	})
}
