package quote

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/backend-dealer/internal/common"
	"github.com/noah-isme/backend-dealer/internal/deal"
)

// ErrUnknownCommand is returned by DecodeCommand for an unrecognised type.
var ErrUnknownCommand = errors.New("quote: unknown command")

// Command is one user intent against a quote. The set is closed; see the
// types below.
type Command interface {
	Kind() string
	command()
}

// Envelope is the wire form of a command.
type Envelope struct {
	Type    string          `json:"type" validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SetListedPrice struct {
	Value common.Decimal `json:"value"`
}

type SetDiscount struct {
	Value common.Decimal `json:"value"`
}

// SetSellingPrice overrides the negotiated price without touching the discount.
type SetSellingPrice struct {
	Value common.Decimal `json:"value"`
}

type SetSalesTaxRate struct {
	Value common.Decimal `json:"value"`
}

type SetDaysToFirstPayment struct {
	Days int `json:"days"`
}

type AddLineItem struct {
	Collection deal.Collection `json:"collection" validate:"required,oneof=packages accessories fees"`
	Label      string          `json:"label"`
	Value      common.Decimal  `json:"value"`
	Include    *bool           `json:"include,omitempty"`
}

// UpdateLineItem patches the label and/or value of an existing item.
type UpdateLineItem struct {
	Collection deal.Collection `json:"collection" validate:"required,oneof=packages accessories fees"`
	Key        string          `json:"key" validate:"required"`
	Label      *string         `json:"label,omitempty"`
	Value      *common.Decimal `json:"value,omitempty"`
}

type ToggleLineItem struct {
	Collection deal.Collection `json:"collection" validate:"required,oneof=packages accessories fees"`
	Key        string          `json:"key" validate:"required"`
}

type DeleteLineItem struct {
	Collection deal.Collection `json:"collection" validate:"required,oneof=packages accessories fees"`
	Key        string          `json:"key" validate:"required"`
}

// TradeInFields carries the editable trade-in attributes. Nil fields are left
// untouched on update.
type TradeInFields struct {
	VIN               *string         `json:"vin,omitempty"`
	Year              *int            `json:"year,omitempty"`
	Make              *string         `json:"make,omitempty"`
	Model             *string         `json:"model,omitempty"`
	Trim              *string         `json:"trim,omitempty"`
	Color             *string         `json:"color,omitempty"`
	Miles             *int            `json:"miles,omitempty"`
	Status            *string         `json:"status,omitempty"`
	Lienholder        *string         `json:"lienholder,omitempty"`
	PayoffAmount      *common.Decimal `json:"payoffAmount,omitempty"`
	PayoffGoodThrough *time.Time      `json:"payoffGoodThrough,omitempty"`
	Allowance         *common.Decimal `json:"allowance,omitempty"`
}

type AddTradeIn struct {
	TradeInFields
	Include *bool `json:"include,omitempty"`
}

type UpdateTradeIn struct {
	ID string `json:"id" validate:"required"`
	TradeInFields
}

type ToggleTradeIn struct {
	ID string `json:"id" validate:"required"`
}

type DeleteTradeIn struct {
	ID string `json:"id" validate:"required"`
}

// AddTerm appends a loan term. An ID matching an existing term replaces it.
type AddTerm struct {
	ID             string         `json:"id,omitempty"`
	DurationMonths int            `json:"durationMonths"`
	APR            common.Decimal `json:"apr"`
	Selected       *bool          `json:"selected,omitempty"`
}

type UpdateTerm struct {
	ID             string          `json:"id" validate:"required"`
	DurationMonths *int            `json:"durationMonths,omitempty"`
	APR            *common.Decimal `json:"apr,omitempty"`
}

type ToggleTerm struct {
	ID string `json:"id" validate:"required"`
}

// ToggleAllTerms sets every term's selection. Without Selected it selects all
// unless all are already selected, in which case it clears them.
type ToggleAllTerms struct {
	Selected *bool `json:"selected,omitempty"`
}

type DeleteTerm struct {
	ID string `json:"id" validate:"required"`
}

type AddDownPayment struct {
	ID       string         `json:"id,omitempty"`
	Amount   common.Decimal `json:"amount"`
	Selected *bool          `json:"selected,omitempty"`
}

type UpdateDownPayment struct {
	ID     string          `json:"id" validate:"required"`
	Amount *common.Decimal `json:"amount,omitempty"`
}

type ToggleDownPayment struct {
	ID string `json:"id" validate:"required"`
}

type ToggleAllDownPayments struct {
	Selected *bool `json:"selected,omitempty"`
}

type DeleteDownPayment struct {
	ID string `json:"id" validate:"required"`
}

// Reset returns the quote to its defaults. The listed price is kept.
type Reset struct{}

func (SetListedPrice) Kind() string        { return "set_listed_price" }
func (SetDiscount) Kind() string           { return "set_discount" }
func (SetSellingPrice) Kind() string       { return "set_selling_price" }
func (SetSalesTaxRate) Kind() string       { return "set_sales_tax_rate" }
func (SetDaysToFirstPayment) Kind() string { return "set_days_to_first_payment" }
func (AddLineItem) Kind() string           { return "add_line_item" }
func (UpdateLineItem) Kind() string        { return "update_line_item" }
func (ToggleLineItem) Kind() string        { return "toggle_line_item" }
func (DeleteLineItem) Kind() string        { return "delete_line_item" }
func (AddTradeIn) Kind() string            { return "add_trade_in" }
func (UpdateTradeIn) Kind() string         { return "update_trade_in" }
func (ToggleTradeIn) Kind() string         { return "toggle_trade_in" }
func (DeleteTradeIn) Kind() string         { return "delete_trade_in" }
func (AddTerm) Kind() string               { return "add_term" }
func (UpdateTerm) Kind() string            { return "update_term" }
func (ToggleTerm) Kind() string            { return "toggle_term" }
func (ToggleAllTerms) Kind() string        { return "toggle_all_terms" }
func (DeleteTerm) Kind() string            { return "delete_term" }
func (AddDownPayment) Kind() string        { return "add_down_payment" }
func (UpdateDownPayment) Kind() string     { return "update_down_payment" }
func (ToggleDownPayment) Kind() string     { return "toggle_down_payment" }
func (ToggleAllDownPayments) Kind() string { return "toggle_all_down_payments" }
func (DeleteDownPayment) Kind() string     { return "delete_down_payment" }
func (Reset) Kind() string                 { return "reset" }

func (SetListedPrice) command()        {}
func (SetDiscount) command()           {}
func (SetSellingPrice) command()       {}
func (SetSalesTaxRate) command()       {}
func (SetDaysToFirstPayment) command() {}
func (AddLineItem) command()           {}
func (UpdateLineItem) command()        {}
func (ToggleLineItem) command()        {}
func (DeleteLineItem) command()        {}
func (AddTradeIn) command()            {}
func (UpdateTradeIn) command()         {}
func (ToggleTradeIn) command()         {}
func (DeleteTradeIn) command()         {}
func (AddTerm) command()               {}
func (UpdateTerm) command()            {}
func (ToggleTerm) command()            {}
func (ToggleAllTerms) command()        {}
func (DeleteTerm) command()            {}
func (AddDownPayment) command()        {}
func (UpdateDownPayment) command()     {}
func (ToggleDownPayment) command()     {}
func (ToggleAllDownPayments) command() {}
func (DeleteDownPayment) command()     {}
func (Reset) command()                 {}

var decoders = map[string]func(json.RawMessage) (Command, error){
	SetListedPrice{}.Kind():        decodeAs[SetListedPrice],
	SetDiscount{}.Kind():           decodeAs[SetDiscount],
	SetSellingPrice{}.Kind():       decodeAs[SetSellingPrice],
	SetSalesTaxRate{}.Kind():       decodeAs[SetSalesTaxRate],
	SetDaysToFirstPayment{}.Kind(): decodeAs[SetDaysToFirstPayment],
	AddLineItem{}.Kind():           decodeAs[AddLineItem],
	UpdateLineItem{}.Kind():        decodeAs[UpdateLineItem],
	ToggleLineItem{}.Kind():        decodeAs[ToggleLineItem],
	DeleteLineItem{}.Kind():        decodeAs[DeleteLineItem],
	AddTradeIn{}.Kind():            decodeAs[AddTradeIn],
	UpdateTradeIn{}.Kind():         decodeAs[UpdateTradeIn],
	ToggleTradeIn{}.Kind():         decodeAs[ToggleTradeIn],
	DeleteTradeIn{}.Kind():         decodeAs[DeleteTradeIn],
	AddTerm{}.Kind():               decodeAs[AddTerm],
	UpdateTerm{}.Kind():            decodeAs[UpdateTerm],
	ToggleTerm{}.Kind():            decodeAs[ToggleTerm],
	ToggleAllTerms{}.Kind():        decodeAs[ToggleAllTerms],
	DeleteTerm{}.Kind():            decodeAs[DeleteTerm],
	AddDownPayment{}.Kind():        decodeAs[AddDownPayment],
	UpdateDownPayment{}.Kind():     decodeAs[UpdateDownPayment],
	ToggleDownPayment{}.Kind():     decodeAs[ToggleDownPayment],
	ToggleAllDownPayments{}.Kind(): decodeAs[ToggleAllDownPayments],
	DeleteDownPayment{}.Kind():     decodeAs[DeleteDownPayment],
	Reset{}.Kind():                 decodeAs[Reset],
}

// DecodeCommand parses a {"type", "payload"} envelope. Unknown types wrap
// ErrUnknownCommand; malformed or invalid payloads are AppErrors.
func DecodeCommand(data []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, common.BadRequest("invalid command envelope", err)
	}
	return env.Decode()
}

// Decode resolves the envelope payload into its concrete command.
func (e Envelope) Decode() (Command, error) {
	decode, ok := decoders[e.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, e.Type)
	}
	cmd, err := decode(e.Payload)
	if err != nil {
		return nil, common.BadRequest(fmt.Sprintf("invalid %s payload", e.Type), err)
	}
	if err := common.ValidateStruct(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// EncodeCommand renders cmd in its envelope form.
func EncodeCommand(cmd Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: cmd.Kind(), Payload: payload})
}

// Kinds lists every command type accepted by DecodeCommand.
func Kinds() []string {
	out := make([]string, 0, len(decoders))
	for kind := range decoders {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

func decodeAs[T Command](raw json.RawMessage) (Command, error) {
	var cmd T
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, err
		}
	}
	return cmd, nil
}
