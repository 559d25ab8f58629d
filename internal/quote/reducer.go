package quote

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-dealer/internal/deal"
	"github.com/noah-isme/backend-dealer/internal/financing"
)

// Outcome classifies what a command did to the state.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the command referenced a key that does not exist.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeRejected means a constraint refused the change.
	OutcomeRejected Outcome = "rejected"
)

// Result reports advisory information about an applied command.
type Result struct {
	Outcome  Outcome  `json:"outcome"`
	Warnings []string `json:"warnings"`
}

func (r *Result) warn(outcome Outcome, format string, args ...any) {
	r.Outcome = outcome
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Reducer applies commands to quote states.
type Reducer struct {
	Defaults deal.Defaults
	NewID    func() string
}

// Apply runs cmd against s with the standard defaults.
func Apply(s deal.State, cmd Command, now time.Time) (deal.State, Result) {
	return Reducer{Defaults: deal.StandardDefaults()}.Apply(s, cmd, now)
}

// Apply returns the state that results from cmd. The input is never mutated;
// when the command is ignored or rejected the input is returned as is.
func (r Reducer) Apply(s deal.State, cmd Command, now time.Time) (deal.State, Result) {
	next := s.Clone()
	next.Normalize()
	res := Result{Outcome: OutcomeApplied, Warnings: []string{}}

	switch c := cmd.(type) {
	case SetListedPrice:
		next.ListedPrice = c.Value.Decimal
		next.SellingPrice = next.ListedPrice.Sub(next.Discount)
	case SetDiscount:
		next.Discount = c.Value.Decimal
		next.SellingPrice = next.ListedPrice.Sub(next.Discount)
	case SetSellingPrice:
		next.SellingPrice = c.Value.Decimal
	case SetSalesTaxRate:
		next.SalesTaxRate = c.Value.Decimal
	case SetDaysToFirstPayment:
		next.DaysToFirstPayment = max(c.Days, 0)

	case AddLineItem:
		if !c.Collection.Valid() {
			res.warn(OutcomeIgnored, "unknown collection %q", c.Collection)
			break
		}
		key := r.id()
		next.Items(c.Collection)[key] = deal.LineItem{
			Label:   strings.TrimSpace(c.Label),
			Value:   c.Value.Decimal,
			Include: boolOr(c.Include, true),
		}
		next.Order[c.Collection] = append(next.Order[c.Collection], key)
	case UpdateLineItem:
		items := next.Items(c.Collection)
		item, ok := items[c.Key]
		if !ok {
			res.warn(OutcomeIgnored, "%s item %q not found", c.Collection, c.Key)
			break
		}
		if c.Label != nil {
			item.Label = strings.TrimSpace(*c.Label)
		}
		if c.Value != nil {
			item.Value = c.Value.Decimal
		}
		items[c.Key] = item
	case ToggleLineItem:
		items := next.Items(c.Collection)
		item, ok := items[c.Key]
		if !ok {
			res.warn(OutcomeIgnored, "%s item %q not found", c.Collection, c.Key)
			break
		}
		item.Include = !item.Include
		items[c.Key] = item
	case DeleteLineItem:
		items := next.Items(c.Collection)
		if _, ok := items[c.Key]; !ok {
			res.warn(OutcomeIgnored, "%s item %q not found", c.Collection, c.Key)
			break
		}
		delete(items, c.Key)
		next.Order[c.Collection] = removeKey(next.Order[c.Collection], c.Key)

	case AddTradeIn:
		id := r.id()
		trade := deal.TradeIn{
			ID:        id,
			Status:    deal.StatusUnknown,
			Include:   boolOr(c.Include, true),
			CreatedAt: now.UTC(),
		}
		c.TradeInFields.applyTo(&trade)
		next.TradeIns[id] = trade
	case UpdateTradeIn:
		trade, ok := next.TradeIns[c.ID]
		if !ok {
			res.warn(OutcomeIgnored, "trade-in %q not found", c.ID)
			break
		}
		c.TradeInFields.applyTo(&trade)
		next.TradeIns[c.ID] = trade
	case ToggleTradeIn:
		trade, ok := next.TradeIns[c.ID]
		if !ok {
			res.warn(OutcomeIgnored, "trade-in %q not found", c.ID)
			break
		}
		trade.Include = !trade.Include
		next.TradeIns[c.ID] = trade
	case DeleteTradeIn:
		if _, ok := next.TradeIns[c.ID]; !ok {
			res.warn(OutcomeIgnored, "trade-in %q not found", c.ID)
			break
		}
		delete(next.TradeIns, c.ID)

	case AddTerm:
		id := c.ID
		if id == "" {
			id = r.id()
		}
		terms, err := financing.AddTerm(next.Terms, deal.LoanTerm{
			ID:             id,
			DurationMonths: c.DurationMonths,
			APR:            c.APR.Decimal,
			Selected:       boolOr(c.Selected, true),
		})
		if errors.Is(err, financing.ErrTermLimit) {
			res.warn(OutcomeRejected, "%s", financing.TermLimitMessage)
			break
		}
		next.Terms = terms
	case UpdateTerm:
		i := termIndex(next.Terms, c.ID)
		if i < 0 {
			res.warn(OutcomeIgnored, "term %q not found", c.ID)
			break
		}
		if c.DurationMonths != nil {
			next.Terms[i].DurationMonths = *c.DurationMonths
		}
		if c.APR != nil {
			next.Terms[i].APR = c.APR.Decimal
		}
	case ToggleTerm:
		i := termIndex(next.Terms, c.ID)
		if i < 0 {
			res.warn(OutcomeIgnored, "term %q not found", c.ID)
			break
		}
		next.Terms[i].Selected = !next.Terms[i].Selected
	case ToggleAllTerms:
		all := true
		for _, t := range next.Terms {
			all = all && t.Selected
		}
		selected := boolOr(c.Selected, !all)
		for i := range next.Terms {
			next.Terms[i].Selected = selected
		}
	case DeleteTerm:
		i := termIndex(next.Terms, c.ID)
		if i < 0 {
			res.warn(OutcomeIgnored, "term %q not found", c.ID)
			break
		}
		next.Terms = append(next.Terms[:i], next.Terms[i+1:]...)

	case AddDownPayment:
		id := c.ID
		if id == "" {
			id = r.id()
		}
		option := deal.DownPaymentOption{ID: id, Amount: c.Amount.Decimal, Selected: boolOr(c.Selected, true)}
		if i := downIndex(next.DownPayments, id); i >= 0 {
			next.DownPayments[i] = option
			break
		}
		next.DownPayments = append(next.DownPayments, option)
	case UpdateDownPayment:
		i := downIndex(next.DownPayments, c.ID)
		if i < 0 {
			res.warn(OutcomeIgnored, "down payment %q not found", c.ID)
			break
		}
		if c.Amount != nil {
			next.DownPayments[i].Amount = c.Amount.Decimal
		}
	case ToggleDownPayment:
		i := downIndex(next.DownPayments, c.ID)
		if i < 0 {
			res.warn(OutcomeIgnored, "down payment %q not found", c.ID)
			break
		}
		next.DownPayments[i].Selected = !next.DownPayments[i].Selected
	case ToggleAllDownPayments:
		all := true
		for _, d := range next.DownPayments {
			all = all && d.Selected
		}
		selected := boolOr(c.Selected, !all)
		for i := range next.DownPayments {
			next.DownPayments[i].Selected = selected
		}
	case DeleteDownPayment:
		i := downIndex(next.DownPayments, c.ID)
		if i < 0 {
			res.warn(OutcomeIgnored, "down payment %q not found", c.ID)
			break
		}
		next.DownPayments = append(next.DownPayments[:i], next.DownPayments[i+1:]...)

	case Reset:
		next = deal.NewState(s.VIN, s.ListedPrice, r.Defaults, now)
	default:
		res.warn(OutcomeIgnored, "unsupported command %T", cmd)
	}

	if res.Outcome != OutcomeApplied {
		return s, res
	}
	next.UpdatedAt = now.UTC()
	return next, res
}

func (r Reducer) id() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func (f TradeInFields) applyTo(t *deal.TradeIn) {
	if f.VIN != nil {
		t.VIN = strings.ToUpper(strings.TrimSpace(*f.VIN))
	}
	if f.Year != nil {
		t.Year = *f.Year
	}
	if f.Make != nil {
		t.Make = *f.Make
	}
	if f.Model != nil {
		t.Model = *f.Model
	}
	if f.Trim != nil {
		t.Trim = *f.Trim
	}
	if f.Color != nil {
		t.Color = *f.Color
	}
	if f.Miles != nil {
		t.Miles = max(*f.Miles, 0)
	}
	if f.Status != nil {
		t.Status = deal.ParseTradeInStatus(*f.Status)
	}
	if f.Lienholder != nil {
		t.Lienholder = *f.Lienholder
	}
	if f.PayoffAmount != nil {
		t.PayoffAmount = f.PayoffAmount.Decimal
	}
	if f.PayoffGoodThrough != nil {
		ts := f.PayoffGoodThrough.UTC()
		t.PayoffGoodThrough = &ts
	}
	if f.Allowance != nil {
		t.Allowance = f.Allowance.Decimal
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func termIndex(terms []deal.LoanTerm, id string) int {
	for i, t := range terms {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func downIndex(downs []deal.DownPaymentOption, id string) int {
	for i, d := range downs {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func removeKey(keys []string, key string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}
