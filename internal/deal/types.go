package deal

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxLoanTerms caps the number of distinct loan terms a quote may carry.
const MaxLoanTerms = 10

// Collection names the line item groups on a quote.
type Collection string

const (
	Packages    Collection = "packages"
	Accessories Collection = "accessories"
	Fees        Collection = "fees"
)

// Valid reports whether c names a known line item collection.
func (c Collection) Valid() bool {
	switch c {
	case Packages, Accessories, Fees:
		return true
	default:
		return false
	}
}

// LineItem is one package, accessory or fee. Excluded items stay on the quote
// so they can be re-included later.
type LineItem struct {
	Label   string          `json:"label"`
	Value   decimal.Decimal `json:"value"`
	Include bool            `json:"include"`
}

// LineItems maps an opaque stable key to a line item.
type LineItems map[string]LineItem

// SumIncluded adds up the value of every included item.
func (items LineItems) SumIncluded() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if it.Include {
			sum = sum.Add(it.Value)
		}
	}
	return sum
}

// TradeInStatus describes the lien situation of a traded vehicle.
type TradeInStatus string

const (
	StatusUnknown  TradeInStatus = "unknown"
	StatusPaidOff  TradeInStatus = "paid_off"
	StatusFinanced TradeInStatus = "financed"
	StatusLeased   TradeInStatus = "leased"
)

// ParseTradeInStatus normalises free-form input, falling back to StatusUnknown.
func ParseTradeInStatus(value string) TradeInStatus {
	normalised := strings.ToLower(strings.TrimSpace(value))
	normalised = strings.NewReplacer(" ", "_", "-", "_").Replace(normalised)
	switch normalised {
	case "paid_off", "paidoff":
		return StatusPaidOff
	case "financed":
		return StatusFinanced
	case "leased":
		return StatusLeased
	default:
		return StatusUnknown
	}
}

// UnmarshalJSON accepts any spelling ParseTradeInStatus understands, e.g.
// "Financed" or "paid off".
func (s *TradeInStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = StatusUnknown
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseTradeInStatus(raw)
	return nil
}

// CarriesPayoff reports whether a payoff balance is owed against the trade.
func (s TradeInStatus) CarriesPayoff() bool {
	return s == StatusFinanced || s == StatusLeased
}

// TradeIn is a customer vehicle taken in as part of the deal.
type TradeIn struct {
	ID                string          `json:"id"`
	VIN               string          `json:"vin"`
	Year              int             `json:"year"`
	Make              string          `json:"make"`
	Model             string          `json:"model"`
	Trim              string          `json:"trim"`
	Color             string          `json:"color"`
	Miles             int             `json:"miles"`
	Status            TradeInStatus   `json:"status"`
	Lienholder        string          `json:"lienholder"`
	PayoffAmount      decimal.Decimal `json:"payoffAmount"`
	PayoffGoodThrough *time.Time      `json:"payoffGoodThrough,omitempty"`
	Allowance         decimal.Decimal `json:"allowance"`
	Include           bool            `json:"include"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Equity is the credit the trade contributes: the allowance, less the payoff
// when the vehicle is financed or leased.
func (t TradeIn) Equity() decimal.Decimal {
	if t.Status.CarriesPayoff() {
		return t.Allowance.Sub(t.PayoffAmount)
	}
	return t.Allowance
}

// LoanTerm is one financing duration offered on the quote.
type LoanTerm struct {
	ID             string          `json:"id"`
	DurationMonths int             `json:"durationMonths"`
	APR            decimal.Decimal `json:"apr"`
	Selected       bool            `json:"selected"`
}

// DownPaymentOption is one cash-down amount offered on the quote.
type DownPaymentOption struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Selected bool            `json:"selected"`
}

// State is the full quote for one vehicle.
type State struct {
	VIN                string                  `json:"vin"`
	ListedPrice        decimal.Decimal         `json:"listedPrice"`
	Discount           decimal.Decimal         `json:"discount"`
	SellingPrice       decimal.Decimal         `json:"sellingPrice"`
	Packages           LineItems               `json:"packages"`
	Accessories        LineItems               `json:"accessories"`
	Fees               LineItems               `json:"fees"`
	TradeIns           map[string]TradeIn      `json:"tradeIns"`
	SalesTaxRate       decimal.Decimal         `json:"salesTaxRate"`
	DaysToFirstPayment int                     `json:"daysToFirstPayment"`
	Terms              []LoanTerm              `json:"terms"`
	DownPayments       []DownPaymentOption     `json:"downPayments"`
	Order              map[Collection][]string `json:"order,omitempty"`
	UpdatedAt          time.Time               `json:"updatedAt"`
}

// Items returns the line item collection named by c, or nil when c is not a
// known collection.
func (s *State) Items(c Collection) LineItems {
	if !c.Valid() {
		return nil
	}
	switch c {
	case Packages:
		return s.Packages
	case Accessories:
		return s.Accessories
	case Fees:
		return s.Fees
	default:
		return nil
	}
}

// Clone returns a deep copy so reducers can hand out new states without
// aliasing maps or slices of the previous one.
func (s State) Clone() State {
	out := s
	out.Packages = cloneItems(s.Packages)
	out.Accessories = cloneItems(s.Accessories)
	out.Fees = cloneItems(s.Fees)
	out.TradeIns = make(map[string]TradeIn, len(s.TradeIns))
	for k, v := range s.TradeIns {
		if v.PayoffGoodThrough != nil {
			ts := *v.PayoffGoodThrough
			v.PayoffGoodThrough = &ts
		}
		out.TradeIns[k] = v
	}
	out.Terms = append([]LoanTerm(nil), s.Terms...)
	out.DownPayments = append([]DownPaymentOption(nil), s.DownPayments...)
	out.Order = make(map[Collection][]string, len(s.Order))
	for k, v := range s.Order {
		out.Order[k] = append([]string(nil), v...)
	}
	return out
}

// Normalize fills nil collections so a decoded state is safe to mutate.
func (s *State) Normalize() {
	if s.Packages == nil {
		s.Packages = LineItems{}
	}
	if s.Accessories == nil {
		s.Accessories = LineItems{}
	}
	if s.Fees == nil {
		s.Fees = LineItems{}
	}
	if s.TradeIns == nil {
		s.TradeIns = map[string]TradeIn{}
	}
	if s.Order == nil {
		s.Order = map[Collection][]string{}
	}
	for id, t := range s.TradeIns {
		if t.Status == "" {
			t.Status = StatusUnknown
			s.TradeIns[id] = t
		}
	}
}

func cloneItems(items LineItems) LineItems {
	out := make(LineItems, len(items))
	for k, v := range items {
		out[k] = v
	}
	return out
}

// OrderedKeys lists the keys of items in display order: keys named in order
// first, then any remaining keys sorted.
func OrderedKeys(items LineItems, order []string) []string {
	keys := make([]string, 0, len(items))
	listed := make(map[string]struct{}, len(order))
	for _, key := range order {
		if _, ok := items[key]; !ok {
			continue
		}
		if _, dup := listed[key]; dup {
			continue
		}
		listed[key] = struct{}{}
		keys = append(keys, key)
	}
	rest := make([]string, 0, len(items)-len(keys))
	for key := range items {
		if _, ok := listed[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
