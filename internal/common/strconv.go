package common

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// AtoiDefault converts the provided string to an integer falling back to the default when parsing fails.
func AtoiDefault(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// DecimalDefault parses a money or rate string the way users and upstream
// feeds write them ("$38,800.00", " 4.49% ") and falls back to def on
// anything unparseable.
func DecimalDefault(value string, def decimal.Decimal) decimal.Decimal {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(cleaned)
	if cleaned == "" {
		return def
	}
	parsed, err := decimal.NewFromString(cleaned)
	if err != nil {
		return def
	}
	return parsed
}

// Decimal coerces a loosely typed JSON value to a decimal. Numbers and numeric
// strings are accepted; null, missing, and garbage become zero.
type Decimal struct {
	decimal.Decimal
}

// UnmarshalJSON never fails on malformed numbers; it stores zero instead.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	d.Decimal = decimal.Zero
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		d.Decimal = DecimalDefault(s, decimal.Zero)
		return nil
	}
	d.Decimal = DecimalDefault(raw, decimal.Zero)
	return nil
}

// MarshalJSON renders the wrapped decimal.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return d.Decimal.MarshalJSON()
}
