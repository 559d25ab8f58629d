package financing

import (
	"errors"
	"fmt"

	"github.com/noah-isme/backend-dealer/internal/deal"
)

// ErrTermLimit is returned when a quote already carries the maximum number of loan terms.
var ErrTermLimit = errors.New("financing: loan term limit reached")

// TermLimitMessage is the advisory shown when a term is rejected by the cap.
var TermLimitMessage = fmt.Sprintf("A quote can offer at most %d loan terms", deal.MaxLoanTerms)

// AddTerm appends term unless the collection already holds deal.MaxLoanTerms
// distinct ids. A term whose id is already present replaces the existing one.
// On ErrTermLimit the input slice is returned unchanged.
func AddTerm(terms []deal.LoanTerm, term deal.LoanTerm) ([]deal.LoanTerm, error) {
	for i, existing := range terms {
		if existing.ID == term.ID {
			out := append([]deal.LoanTerm(nil), terms...)
			out[i] = term
			return out, nil
		}
	}
	if distinctTermIDs(terms) >= deal.MaxLoanTerms {
		return terms, ErrTermLimit
	}
	out := make([]deal.LoanTerm, 0, len(terms)+1)
	out = append(out, terms...)
	return append(out, term), nil
}

func distinctTermIDs(terms []deal.LoanTerm) int {
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		seen[t.ID] = struct{}{}
	}
	return len(seen)
}
