package engine

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"trade-mirror-bot/internal/types"
)

// DefaultCloseMultiplier pads close orders for spread and slippage.
const DefaultCloseMultiplier = 1.05

var errNonPositive = errors.New("scaler: quantities and portfolio sizes must be positive")

// Scaler converts a source quantity into an order quantity for the follower account.
type Scaler struct {
	YourPortfolio   float64
	TraderPortfolio float64
	CloseMultiplier float64
}

func NewScaler(yours, trader, closeMultiplier float64) *Scaler {
	if closeMultiplier <= 0 {
		closeMultiplier = DefaultCloseMultiplier
	}
	return &Scaler{YourPortfolio: yours, TraderPortfolio: trader, CloseMultiplier: closeMultiplier}
}

// Scale returns raw*yours/trader (times the close multiplier for closes), rounded to the
// step's decimal precision and floored at the symbol's minimum.
func (s *Scaler) Scale(raw float64, close bool, rules types.SymbolRules) (float64, error) {
	if raw <= 0 || s.YourPortfolio <= 0 || s.TraderPortfolio <= 0 {
		return 0, fmt.Errorf("%w: raw=%v yours=%v trader=%v", errNonPositive, raw, s.YourPortfolio, s.TraderPortfolio)
	}

	q := raw * s.YourPortfolio / s.TraderPortfolio
	if close {
		q *= s.CloseMultiplier
	}
	q = roundTo(q, Precision(rules.StepSize))

	if q < rules.MinNotional {
		q = rules.MinNotional
	}
	if q <= 0 {
		return 0, fmt.Errorf("scaler: %s quantity rounds to zero with step %v and no minimum", rules.Symbol, rules.StepSize)
	}
	return q, nil
}

// Precision is round(-log10(step)). Steps above 1 give negative precision (rounding to tens, hundreds).
func Precision(step float64) int {
	if step <= 0 {
		return 0
	}
	return int(math.Round(-math.Log10(step)))
}

// FormatQuantity renders q with the step's decimals for an order request.
func FormatQuantity(q, step float64) string {
	prec := Precision(step)
	decimals := prec
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(roundTo(q, prec), 'f', decimals, 64)
}

func roundTo(x float64, decimals int) float64 {
	if decimals < 0 {
		p := math.Pow(10, float64(-decimals))
		return math.Round(x/p) * p
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
