package deal

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dealer/internal/amortization"
)

// Defaults seeds a freshly opened quote.
type Defaults struct {
	SalesTaxRate       decimal.Decimal
	DaysToFirstPayment int
	TermMonths         []int
	SelectedTerms      int
	DownPayments       []decimal.Decimal
}

// StandardDefaults returns the defaults used when no store configuration is provided.
func StandardDefaults() Defaults {
	return Defaults{
		SalesTaxRate:       decimal.Zero,
		DaysToFirstPayment: amortization.DefaultDaysToFirstPayment,
		TermMonths:         []int{36, 48, 60, 72},
		SelectedTerms:      3,
		DownPayments: []decimal.Decimal{
			decimal.Zero,
			decimal.NewFromInt(1000),
			decimal.NewFromInt(2500),
		},
	}
}

// NewState builds the default quote for a vehicle listed at listedPrice.
func NewState(vin string, listedPrice decimal.Decimal, d Defaults, now time.Time) State {
	days := d.DaysToFirstPayment
	if days < 0 {
		days = 0
	}
	s := State{
		VIN:                strings.ToUpper(strings.TrimSpace(vin)),
		ListedPrice:        listedPrice,
		Discount:           decimal.Zero,
		SellingPrice:       listedPrice,
		SalesTaxRate:       d.SalesTaxRate,
		DaysToFirstPayment: days,
		UpdatedAt:          now.UTC(),
	}
	s.Normalize()

	months := d.TermMonths
	if len(months) > MaxLoanTerms {
		months = months[:MaxLoanTerms]
	}
	for i, m := range months {
		s.Terms = append(s.Terms, LoanTerm{
			ID:             uuid.NewString(),
			DurationMonths: m,
			APR:            decimal.Zero,
			Selected:       i < d.SelectedTerms,
		})
	}
	for _, amount := range d.DownPayments {
		s.DownPayments = append(s.DownPayments, DownPaymentOption{
			ID:       uuid.NewString(),
			Amount:   amount,
			Selected: true,
		})
	}
	return s
}
