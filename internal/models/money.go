package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places every Money amount is normalized to.
const MoneyScale = 2

// Money is an immutable fixed-point currency amount.
// Amounts are always rounded half-to-even to two decimal places.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney creates a Money value from an amount and an ISO currency code
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{
		amount:   amount.RoundBank(MoneyScale),
		currency: currency,
	}
}

// Zero returns a zero amount in the given currency
func Zero(currency string) Money {
	return NewMoney(decimal.Zero, currency)
}

// ParseMoney parses a decimal string like "49.99"
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return NewMoney(d, currency), nil
}

// MustParseMoney is ParseMoney for constants and tests; it panics on bad input
func MustParseMoney(amount, currency string) Money {
	m, err := ParseMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Amount returns the rounded decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the ISO currency code
func (m Money) Currency() string {
	return m.currency
}

// Add returns m + other
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: cannot add %s to %s", ErrCurrencyMismatch, other.currency, m.currency)
	}
	return NewMoney(m.amount.Add(other.amount), m.currency), nil
}

// Subtract returns m - other
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: cannot subtract %s from %s", ErrCurrencyMismatch, other.currency, m.currency)
	}
	return NewMoney(m.amount.Sub(other.amount), m.currency), nil
}

// Multiply returns m * factor
func (m Money) Multiply(factor int) Money {
	return NewMoney(m.amount.Mul(decimal.NewFromInt(int64(factor))), m.currency)
}

// Equal reports structural equality of amount and currency
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// IsZero reports whether the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsNegative reports whether the amount is below zero
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// IsUnset reports whether the value was never assigned a currency
func (m Money) IsUnset() bool {
	return m.currency == ""
}

func (m Money) String() string {
	return m.amount.StringFixed(MoneyScale) + " " + m.currency
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON encodes the amount as a fixed two-place string
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Amount:   m.amount.StringFixed(MoneyScale),
		Currency: m.currency,
	})
}

// UnmarshalJSON decodes {"amount":"12.50","currency":"USD"}
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseMoney(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
