package amortization

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultDaysToFirstPayment is the first payment delay assumed when the caller has none.
const DefaultDaysToFirstPayment = 45

// InvalidDurationLabel is the placeholder shown in place of a payment that could not be computed.
const InvalidDurationLabel = "Invalid Duration"

// precision is the number of decimal places kept for every intermediate step.
const precision int32 = 50

// graceDays is the delay covered by the first month's interest.
const graceDays = 30

var (
	// ErrInvalidDuration is returned when a loan duration is not positive.
	ErrInvalidDuration = errors.New("amortization: invalid duration")

	hundred   = decimal.NewFromInt(100)
	dayBasis  = decimal.NewFromInt(360)
	monthsPer = decimal.NewFromInt(12)
)

// InvalidDurationError reports the offending duration and unwraps to ErrInvalidDuration.
type InvalidDurationError struct {
	Months int
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("amortization: invalid duration %d months", e.Months)
}

func (e *InvalidDurationError) Unwrap() error { return ErrInvalidDuration }

// MonthlyPayment returns the level monthly payment for principal financed over
// durationMonths at apr percent. When the first payment falls more than 30
// days out, simple interest on a 360-day year is added to the principal for
// each extra day. The result is rounded half-up to cents once, at the end.
func MonthlyPayment(principal decimal.Decimal, durationMonths int, apr decimal.Decimal, daysToFirstPayment int) (decimal.Decimal, error) {
	if durationMonths <= 0 {
		return decimal.Zero, &InvalidDurationError{Months: durationMonths}
	}
	payment := levelPayment(EffectivePrincipal(principal, apr, daysToFirstPayment), durationMonths, apr)
	return payment.Round(2), nil
}

// EffectivePrincipal is the financed amount after per-diem interest for days
// beyond the 30 day grace period.
func EffectivePrincipal(principal, apr decimal.Decimal, daysToFirstPayment int) decimal.Decimal {
	extraDays := daysToFirstPayment - graceDays
	if extraDays <= 0 {
		return principal
	}
	dailyRate := apr.DivRound(hundred, precision).DivRound(dayBasis, precision)
	accrued := principal.Mul(dailyRate).Mul(decimal.NewFromInt(int64(extraDays)))
	return principal.Add(accrued)
}

func levelPayment(principal decimal.Decimal, months int, apr decimal.Decimal) decimal.Decimal {
	n := decimal.NewFromInt(int64(months))
	if apr.IsZero() {
		return principal.DivRound(n, precision)
	}
	r := apr.DivRound(hundred, precision).DivRound(monthsPer, precision)
	growth := compound(decimal.NewFromInt(1).Add(r), months)
	numerator := principal.Mul(r).Mul(growth)
	denominator := growth.Sub(decimal.NewFromInt(1))
	return numerator.DivRound(denominator, precision)
}

// compound raises base to a positive integer power by squaring, holding the
// working precision at every multiplication.
func compound(base decimal.Decimal, exp int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base).Round(precision)
		}
		base = base.Mul(base).Round(precision)
		exp >>= 1
	}
	return result
}

// Summary describes the cost of a loan at its computed payment.
type Summary struct {
	Payment         decimal.Decimal `json:"payment"`
	TotalOfPayments decimal.Decimal `json:"totalOfPayments"`
	FinanceCharge   decimal.Decimal `json:"financeCharge"`
}

// Summarize computes the monthly payment along with the total paid over the
// life of the loan and the finance charge relative to principal.
func Summarize(principal decimal.Decimal, durationMonths int, apr decimal.Decimal, daysToFirstPayment int) (Summary, error) {
	payment, err := MonthlyPayment(principal, durationMonths, apr, daysToFirstPayment)
	if err != nil {
		return Summary{}, err
	}
	total := payment.Mul(decimal.NewFromInt(int64(durationMonths)))
	return Summary{
		Payment:         payment,
		TotalOfPayments: total,
		FinanceCharge:   total.Sub(principal),
	}, nil
}
