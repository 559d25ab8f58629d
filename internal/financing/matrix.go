package financing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dealer/internal/amortization"
	"github.com/noah-isme/backend-dealer/internal/deal"
)

// Mode selects which rows and columns a matrix carries.
type Mode string

const (
	// ModeEdit includes every down payment and every term; unselected terms render as empty cells.
	ModeEdit Mode = "edit"
	// ModePrint includes only selected down payments and selected terms.
	ModePrint Mode = "print"
)

// ParseMode maps request input onto a Mode, defaulting to ModeEdit.
func ParseMode(value string) Mode {
	if Mode(value) == ModePrint {
		return ModePrint
	}
	return ModeEdit
}

// Column describes one loan term in the matrix header.
type Column struct {
	TermID         string          `json:"termId"`
	DurationMonths int             `json:"durationMonths"`
	APR            decimal.Decimal `json:"apr"`
	Selected       bool            `json:"selected"`
}

// Cell holds the payment for one down payment and term. Payment is nil for
// unselected terms and for terms whose payment could not be computed, in which
// case Error carries the placeholder text.
type Cell struct {
	TermID  string           `json:"termId"`
	Payment *decimal.Decimal `json:"payment"`
	Error   string           `json:"error,omitempty"`
}

// Row holds the payments for one down payment option.
type Row struct {
	DownPaymentID string          `json:"downPaymentId"`
	DownPayment   decimal.Decimal `json:"downPayment"`
	Principal     decimal.Decimal `json:"principal"`
	Selected      bool            `json:"selected"`
	Cells         []Cell          `json:"cells"`
}

// Matrix is a grid of monthly payments, down payments by loan terms.
type Matrix struct {
	Mode               Mode            `json:"mode"`
	TotalOTD           decimal.Decimal `json:"totalOtd"`
	DaysToFirstPayment int             `json:"daysToFirstPayment"`
	Columns            []Column        `json:"columns"`
	Rows               []Row           `json:"rows"`
}

// Stats counts cell outcomes, mostly for metrics.
type Stats struct {
	Computed int
	Invalid  int
	Skipped  int
}

// Build computes the payment grid for totalOTD. Each cell is computed
// independently: an invalid term only blanks its own column.
func Build(terms []deal.LoanTerm, downs []deal.DownPaymentOption, totalOTD decimal.Decimal, daysToFirstPayment int, mode Mode) Matrix {
	m := Matrix{
		Mode:               mode,
		TotalOTD:           totalOTD,
		DaysToFirstPayment: daysToFirstPayment,
		Columns:            make([]Column, 0, len(terms)),
		Rows:               make([]Row, 0, len(downs)),
	}
	cols := make([]deal.LoanTerm, 0, len(terms))
	for _, term := range terms {
		if mode == ModePrint && !term.Selected {
			continue
		}
		cols = append(cols, term)
		m.Columns = append(m.Columns, Column{
			TermID:         term.ID,
			DurationMonths: term.DurationMonths,
			APR:            term.APR,
			Selected:       term.Selected,
		})
	}
	for _, down := range downs {
		if mode == ModePrint && !down.Selected {
			continue
		}
		principal := totalOTD.Sub(down.Amount)
		row := Row{
			DownPaymentID: down.ID,
			DownPayment:   down.Amount,
			Principal:     principal,
			Selected:      down.Selected,
			Cells:         make([]Cell, 0, len(cols)),
		}
		for _, term := range cols {
			row.Cells = append(row.Cells, buildCell(term, principal, daysToFirstPayment))
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

func buildCell(term deal.LoanTerm, principal decimal.Decimal, days int) Cell {
	cell := Cell{TermID: term.ID}
	if !term.Selected {
		return cell
	}
	payment, err := amortization.MonthlyPayment(principal, term.DurationMonths, term.APR, days)
	if err != nil {
		if errors.Is(err, amortization.ErrInvalidDuration) {
			cell.Error = amortization.InvalidDurationLabel
		} else {
			cell.Error = err.Error()
		}
		return cell
	}
	cell.Payment = &payment
	return cell
}

// Stats tallies the cells of m by outcome.
func (m Matrix) Stats() Stats {
	var s Stats
	for _, row := range m.Rows {
		for _, cell := range row.Cells {
			switch {
			case cell.Payment != nil:
				s.Computed++
			case cell.Error != "":
				s.Invalid++
			default:
				s.Skipped++
			}
		}
	}
	return s
}
