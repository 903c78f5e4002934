/*
money.go - Decimal money type for the ledger

PURPOSE:
  All peso amounts in the ledger use Money, a thin wrapper around
  decimal.Decimal. Debt balances are the result of many sequential
  additions and subtractions; floating point would drift, decimal
  does not.

CONVENTIONS:
  - Amounts are stored in the database as decimal strings.
  - Display rounding (2 places) happens at the API boundary only.
  - Negative ledger amounts never persist; use ClampZero after
    subtraction where the invariant requires balance >= 0.

SEE ALSO:
  - types.go: Entities holding Money fields
  - allocation.go: Strategy arithmetic on Money
*/
package ledger

import "github.com/shopspring/decimal"

// Money is an exact decimal peso amount.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

// ParseMoney parses a decimal string. Invalid input yields zero.
// Storage reads use this; user input is validated before parsing.
func ParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money        { return Money{Value: m.Value.Neg()} }

func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money { return Money{Value: m.Value.Div(s)} }

func (m Money) IsZero() bool     { return m.Value.IsZero() }
func (m Money) IsPositive() bool { return m.Value.IsPositive() }
func (m Money) IsNegative() bool { return m.Value.IsNegative() }

func (m Money) Equal(o Money) bool              { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool        { return m.Value.GreaterThan(o.Value) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.Value.GreaterThanOrEqual(o.Value) }
func (m Money) LessThan(o Money) bool           { return m.Value.LessThan(o.Value) }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

// ClampZero floors the amount at zero. Net pay and balances are
// never allowed to go negative.
func (m Money) ClampZero() Money {
	if m.IsNegative() {
		return ZeroMoney()
	}
	return m
}

// Round2 rounds to centavos for display and per-debt share splitting.
func (m Money) Round2() Money { return Money{Value: m.Value.Round(2)} }

// RoundDown2 truncates toward zero at 2 places. Allocation shares use
// this: rounding a share up could make the shares sum past the amount
// being split.
func (m Money) RoundDown2() Money { return Money{Value: m.Value.RoundDown(2)} }

// String returns the exact decimal representation used for storage.
func (m Money) String() string { return m.Value.String() }

// MarshalJSON/UnmarshalJSON delegate to decimal so Money serializes as
// a plain number string in stored breakdowns.
func (m Money) MarshalJSON() ([]byte, error) { return m.Value.MarshalJSON() }

func (m *Money) UnmarshalJSON(data []byte) error { return m.Value.UnmarshalJSON(data) }

// Float64 is for DTO conversion only; ledger arithmetic never uses it.
func (m Money) Float64() float64 {
	f, _ := m.Value.Float64()
	return f
}
