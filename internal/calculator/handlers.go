package calculator

import (
	"errors"
	"net/http"

	"github.com/noah-isme/backend-dealer/internal/amortization"
	"github.com/noah-isme/backend-dealer/internal/common"
	"github.com/noah-isme/backend-dealer/internal/deal"
	"github.com/noah-isme/backend-dealer/internal/financing"
	"github.com/noah-isme/backend-dealer/internal/pricing"
)

// Handler exposes stateless pricing and payment calculations.
type Handler struct{}

// PaymentRequest is the body of POST /api/v1/calc/payment.
type PaymentRequest struct {
	Principal          common.Decimal `json:"principal"`
	DurationMonths     int            `json:"durationMonths"`
	APR                common.Decimal `json:"apr"`
	DaysToFirstPayment *int           `json:"daysToFirstPayment,omitempty" validate:"omitempty,gte=0,lte=365"`
}

// Payment handles POST /api/v1/calc/payment.
func (Handler) Payment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	days := amortization.DefaultDaysToFirstPayment
	if req.DaysToFirstPayment != nil {
		days = *req.DaysToFirstPayment
	}
	summary, err := amortization.Summarize(req.Principal.Decimal, req.DurationMonths, req.APR.Decimal, days)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, summary)
}

// TermInput is one loan term in a matrix request.
type TermInput struct {
	ID             string         `json:"id" validate:"required"`
	DurationMonths int            `json:"durationMonths"`
	APR            common.Decimal `json:"apr"`
	Selected       bool           `json:"selected"`
}

// DownPaymentInput is one down payment in a matrix request.
type DownPaymentInput struct {
	ID       string         `json:"id" validate:"required"`
	Amount   common.Decimal `json:"amount"`
	Selected bool           `json:"selected"`
}

// MatrixRequest is the body of POST /api/v1/calc/matrix.
type MatrixRequest struct {
	Terms              []TermInput        `json:"terms" validate:"max=10,dive"`
	DownPayments       []DownPaymentInput `json:"downPayments" validate:"dive"`
	TotalOTD           common.Decimal     `json:"totalOTD"`
	DaysToFirstPayment *int               `json:"daysToFirstPayment,omitempty" validate:"omitempty,gte=0,lte=365"`
	Mode               string             `json:"mode" validate:"omitempty,oneof=edit print"`
}

// Matrix handles POST /api/v1/calc/matrix.
func (Handler) Matrix(w http.ResponseWriter, r *http.Request) {
	var req MatrixRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	terms := make([]deal.LoanTerm, 0, len(req.Terms))
	for _, t := range req.Terms {
		terms = append(terms, deal.LoanTerm{ID: t.ID, DurationMonths: t.DurationMonths, APR: t.APR.Decimal, Selected: t.Selected})
	}
	downs := make([]deal.DownPaymentOption, 0, len(req.DownPayments))
	for _, d := range req.DownPayments {
		downs = append(downs, deal.DownPaymentOption{ID: d.ID, Amount: d.Amount.Decimal, Selected: d.Selected})
	}
	days := amortization.DefaultDaysToFirstPayment
	if req.DaysToFirstPayment != nil {
		days = *req.DaysToFirstPayment
	}
	common.Data(w, http.StatusOK, financing.Build(terms, downs, req.TotalOTD.Decimal, days, financing.ParseMode(req.Mode)))
}

// LineItemInput is one package, accessory or fee in a total request.
type LineItemInput struct {
	Label   string         `json:"label"`
	Value   common.Decimal `json:"value"`
	Include bool           `json:"include"`
}

// TradeInInput is one trade-in in a total request. Status accepts the same
// spellings as the quote commands.
type TradeInInput struct {
	Status       deal.TradeInStatus `json:"status"`
	Allowance    common.Decimal     `json:"allowance"`
	PayoffAmount common.Decimal     `json:"payoffAmount"`
	Include      bool               `json:"include"`
}

// StateInput carries the priced fields of a quote. Money fields are coerced
// like every other calculator input, so "$30,000" reads as 30000.
type StateInput struct {
	ListedPrice  common.Decimal               `json:"listedPrice"`
	Discount     common.Decimal               `json:"discount"`
	SellingPrice common.Decimal               `json:"sellingPrice"`
	SalesTaxRate common.Decimal               `json:"salesTaxRate"`
	Packages     map[string]LineItemInput     `json:"packages"`
	Accessories  map[string]LineItemInput     `json:"accessories"`
	Fees         map[string]LineItemInput     `json:"fees"`
	TradeIns     map[string]TradeInInput      `json:"tradeIns"`
	Order        map[deal.Collection][]string `json:"order"`
}

// TotalRequest is the body of POST /api/v1/calc/total.
type TotalRequest struct {
	State StateInput `json:"state"`
}

// State maps the request onto a normalised quote state.
func (in StateInput) State() deal.State {
	s := deal.State{
		ListedPrice:  in.ListedPrice.Decimal,
		Discount:     in.Discount.Decimal,
		SellingPrice: in.SellingPrice.Decimal,
		SalesTaxRate: in.SalesTaxRate.Decimal,
		Packages:     lineItems(in.Packages),
		Accessories:  lineItems(in.Accessories),
		Fees:         lineItems(in.Fees),
		TradeIns:     make(map[string]deal.TradeIn, len(in.TradeIns)),
		Order:        in.Order,
	}
	for id, t := range in.TradeIns {
		s.TradeIns[id] = deal.TradeIn{
			ID:           id,
			Status:       t.Status,
			Allowance:    t.Allowance.Decimal,
			PayoffAmount: t.PayoffAmount.Decimal,
			Include:      t.Include,
		}
	}
	s.Normalize()
	return s
}

func lineItems(in map[string]LineItemInput) deal.LineItems {
	out := make(deal.LineItems, len(in))
	for key, it := range in {
		out[key] = deal.LineItem{Label: it.Label, Value: it.Value.Decimal, Include: it.Include}
	}
	return out
}

// Total handles POST /api/v1/calc/total.
func (Handler) Total(w http.ResponseWriter, r *http.Request) {
	var req TotalRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, pricing.Compute(req.State.State()).Rounded())
}

func writeError(w http.ResponseWriter, err error) {
	var invalid *amortization.InvalidDurationError
	if errors.As(err, &invalid) {
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_DURATION", amortization.InvalidDurationLabel,
			map[string]any{"durationMonths": invalid.Months})
		return
	}
	common.WriteError(w, err)
}
