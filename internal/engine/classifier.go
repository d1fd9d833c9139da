package engine

import (
	"strings"

	"trade-mirror-bot/internal/types"
)

// Policy holds the per-task flags that shape which intents are produced.
type Policy struct {
	CloseOnly   bool
	ReverseCopy bool
	// MirrorBoth emits the base intent alongside the reversed one when ReverseCopy is set.
	MirrorBoth bool
}

type rule struct {
	label  types.SideLabel
	profit bool // true: realized profit must be non-zero
	base   types.OrderIntent
	rev    types.OrderIntent
}

// Reversed opens take the opposite leg at close size; reversed closes do not.
var rules = []rule{
	{
		label: types.OpenLong,
		base:  types.OrderIntent{Action: types.Buy, PositionSide: types.Long},
		rev:   types.OrderIntent{Action: types.Sell, PositionSide: types.Short, Close: true, Reversed: true},
	},
	{
		label:  types.CloseLong,
		profit: true,
		base:   types.OrderIntent{Action: types.Sell, PositionSide: types.Long, Close: true},
		rev:    types.OrderIntent{Action: types.Buy, PositionSide: types.Short, Reversed: true},
	},
	{
		label: types.OpenShort,
		base:  types.OrderIntent{Action: types.Sell, PositionSide: types.Short},
		rev:   types.OrderIntent{Action: types.Buy, PositionSide: types.Long, Close: true, Reversed: true},
	},
	{
		label:  types.CloseShort,
		profit: true,
		base:   types.OrderIntent{Action: types.Buy, PositionSide: types.Short, Close: true},
		rev:    types.OrderIntent{Action: types.Sell, PositionSide: types.Long, Reversed: true},
	},
}

// NormalizeSide maps the page's side text onto the four-label vocabulary.
// One-way labels resolve by realized profit: zero opens, non-zero closes.
func NormalizeSide(label string, realizedProfit float64) types.SideLabel {
	l := types.SideLabel(strings.Join(strings.Fields(label), " "))
	switch l {
	case types.BuyLong:
		if realizedProfit == 0 {
			return types.OpenLong
		}
		return types.CloseShort
	case types.SellShort:
		if realizedProfit == 0 {
			return types.OpenShort
		}
		return types.CloseLong
	}
	return l
}

// IsOpen reports whether a label opens a position.
func IsOpen(label types.SideLabel) bool {
	return label == types.OpenLong || label == types.OpenShort
}

// Classify maps one event to the intents the follower should execute.
// An empty result means the event is recorded but not mirrored.
func Classify(ev types.TradeEvent, p Policy) []types.OrderIntent {
	label := NormalizeSide(string(ev.Side), ev.RealizedProfit)
	hasProfit := ev.RealizedProfit != 0

	for _, r := range rules {
		if r.label != label {
			continue
		}
		if r.profit != hasProfit {
			return nil
		}
		if p.CloseOnly && IsOpen(r.label) {
			return nil
		}
		if !p.ReverseCopy {
			return []types.OrderIntent{r.base}
		}
		if p.MirrorBoth {
			return []types.OrderIntent{r.base, r.rev}
		}
		return []types.OrderIntent{r.rev}
	}
	return nil
}
