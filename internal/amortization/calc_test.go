package amortization

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}

func TestMonthlyPaymentKnownVectors(t *testing.T) {
	cases := []struct {
		principal string
		months    int
		apr       string
		want      string
	}{
		{"38800", 36, "2.49", "1120.81"},
		{"38800", 60, "3.49", "706.69"},
		{"38800", 72, "4.49", "616.89"},
		{"28800", 36, "2.49", "831.94"},
	}
	for _, tc := range cases {
		got, err := MonthlyPayment(dec(t, tc.principal), tc.months, dec(t, tc.apr), DefaultDaysToFirstPayment)
		require.NoError(t, err)
		require.Equal(t, tc.want, got.StringFixed(2), "%s over %d at %s", tc.principal, tc.months, tc.apr)
	}
}

func TestMonthlyPaymentDeterministic(t *testing.T) {
	p, apr := dec(t, "41234.57"), dec(t, "6.99")
	first, err := MonthlyPayment(p, 66, apr, 52)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MonthlyPayment(p, 66, apr, 52)
		require.NoError(t, err)
		require.Equal(t, first.String(), again.String())
	}
}

func TestMonthlyPaymentZeroAPRIsLinear(t *testing.T) {
	for _, tc := range []struct {
		principal string
		months    int
	}{
		{"38800", 36},
		{"10000", 7},
		{"1", 3},
		{"25999.99", 84},
	} {
		p := dec(t, tc.principal)
		got, err := MonthlyPayment(p, tc.months, decimal.Zero, 30)
		require.NoError(t, err)
		want := p.DivRound(decimal.NewFromInt(int64(tc.months)), 2)
		require.True(t, want.Equal(got), "want %s got %s", want, got)
	}
}

func TestMonthlyPaymentZeroAPRIgnoresDelay(t *testing.T) {
	a, err := MonthlyPayment(dec(t, "12000"), 12, decimal.Zero, 30)
	require.NoError(t, err)
	b, err := MonthlyPayment(dec(t, "12000"), 12, decimal.Zero, 90)
	require.NoError(t, err)
	require.True(t, a.Equal(b))
	require.Equal(t, "1000.00", a.StringFixed(2))
}

func TestMonthlyPaymentDelayNeutralWithinGrace(t *testing.T) {
	p, apr := dec(t, "38800"), dec(t, "4.49")
	base, err := MonthlyPayment(p, 72, apr, 30)
	require.NoError(t, err)
	for _, days := range []int{-5, 0, 1, 15, 29, 30} {
		got, err := MonthlyPayment(p, 72, apr, days)
		require.NoError(t, err)
		require.True(t, base.Equal(got), "days=%d", days)
	}
}

func TestMonthlyPaymentIncreasesWithDelay(t *testing.T) {
	p, apr := dec(t, "38800"), dec(t, "3.49")
	prev, err := MonthlyPayment(p, 60, apr, 30)
	require.NoError(t, err)
	for days := 31; days <= 120; days++ {
		got, err := MonthlyPayment(p, 60, apr, days)
		require.NoError(t, err)
		require.True(t, got.GreaterThan(prev), "days=%d: %s <= %s", days, got, prev)
		prev = got
	}
}

func TestMonthlyPaymentInvalidDuration(t *testing.T) {
	for _, months := range []int{0, -12} {
		_, err := MonthlyPayment(dec(t, "1000"), months, dec(t, "5"), 45)
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrInvalidDuration))
		var ide *InvalidDurationError
		require.True(t, errors.As(err, &ide))
		require.Equal(t, months, ide.Months)
	}
}

func TestMonthlyPaymentRoundsHalfUp(t *testing.T) {
	// 100.005 split over one month must round up, not to even.
	got, err := MonthlyPayment(dec(t, "100.005"), 1, decimal.Zero, 30)
	require.NoError(t, err)
	require.Equal(t, "100.01", got.StringFixed(2))

	got, err = MonthlyPayment(dec(t, "100.015"), 1, decimal.Zero, 30)
	require.NoError(t, err)
	require.Equal(t, "100.02", got.StringFixed(2))
}

func TestEffectivePrincipal(t *testing.T) {
	// 15 extra days at 3.6% on a 360-day year is 0.15% of principal.
	got := EffectivePrincipal(dec(t, "10000"), dec(t, "3.6"), 45)
	require.True(t, dec(t, "10015").Equal(got), "got %s", got)
	require.True(t, dec(t, "10000").Equal(EffectivePrincipal(dec(t, "10000"), dec(t, "3.6"), 30)))
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(dec(t, "38800"), 36, dec(t, "2.49"), 45)
	require.NoError(t, err)
	require.Equal(t, "1120.81", s.Payment.StringFixed(2))
	require.Equal(t, "40349.16", s.TotalOfPayments.StringFixed(2))
	require.Equal(t, "1549.16", s.FinanceCharge.StringFixed(2))

	_, err = Summarize(dec(t, "38800"), 0, dec(t, "2.49"), 45)
	require.ErrorIs(t, err, ErrInvalidDuration)
}
