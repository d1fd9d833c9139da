package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trade-mirror-bot/internal/types"
)

func ev(side types.SideLabel, profit float64) types.TradeEvent {
	return types.TradeEvent{Symbol: "BTCUSDT", Side: side, Price: 100, Quantity: 1, RealizedProfit: profit}
}

func TestClassifyBase(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		ev     types.TradeEvent
		action types.Action
		side   types.PositionSide
		close  bool
	}{
		{"open long", ev(types.OpenLong, 0), types.Buy, types.Long, false},
		{"close long", ev(types.CloseLong, 12.5), types.Sell, types.Long, true},
		{"open short", ev(types.OpenShort, 0), types.Sell, types.Short, false},
		{"close short", ev(types.CloseShort, -3), types.Buy, types.Short, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.ev, Policy{})
			if assert.Len(t, got, 1) {
				assert.Equal(t, tc.action, got[0].Action)
				assert.Equal(t, tc.side, got[0].PositionSide)
				assert.Equal(t, tc.close, got[0].Close)
				assert.False(t, got[0].Reversed)
			}
		})
	}
}

func TestClassifyProfitMismatch(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Classify(ev(types.OpenLong, 5), Policy{}))
	assert.Empty(t, Classify(ev(types.CloseLong, 0), Policy{}))
	assert.Empty(t, Classify(ev(types.OpenShort, -1), Policy{}))
	assert.Empty(t, Classify(ev(types.CloseShort, 0), Policy{}))
}

func TestClassifyCloseOnly(t *testing.T) {
	t.Parallel()

	p := Policy{CloseOnly: true}
	assert.Empty(t, Classify(ev(types.OpenLong, 0), p))
	assert.Empty(t, Classify(ev(types.OpenShort, 0), p))

	got := Classify(ev(types.CloseLong, 1), p)
	if assert.Len(t, got, 1) {
		assert.Equal(t, types.Sell, got[0].Action)
		assert.Equal(t, types.Long, got[0].PositionSide)
	}
}

func TestClassifyReverse(t *testing.T) {
	t.Parallel()

	p := Policy{ReverseCopy: true}

	got := Classify(ev(types.OpenLong, 0), p)
	if assert.Len(t, got, 1) {
		assert.Equal(t, types.OrderIntent{Action: types.Sell, PositionSide: types.Short, Close: true, Reversed: true}, got[0])
	}

	got = Classify(ev(types.CloseLong, 2), p)
	if assert.Len(t, got, 1) {
		assert.Equal(t, types.OrderIntent{Action: types.Buy, PositionSide: types.Short, Reversed: true}, got[0])
	}

	got = Classify(ev(types.OpenShort, 0), p)
	if assert.Len(t, got, 1) {
		assert.Equal(t, types.OrderIntent{Action: types.Buy, PositionSide: types.Long, Close: true, Reversed: true}, got[0])
	}

	got = Classify(ev(types.CloseShort, 2), p)
	if assert.Len(t, got, 1) {
		assert.Equal(t, types.OrderIntent{Action: types.Sell, PositionSide: types.Long, Reversed: true}, got[0])
	}
}

// Close-only filters on the source label, so a reversed close still goes out.
func TestClassifyCloseOnlyWithReverse(t *testing.T) {
	t.Parallel()

	p := Policy{CloseOnly: true, ReverseCopy: true}
	assert.Empty(t, Classify(ev(types.OpenLong, 0), p))

	got := Classify(ev(types.CloseShort, 4), p)
	if assert.Len(t, got, 1) {
		assert.Equal(t, types.Sell, got[0].Action)
		assert.Equal(t, types.Long, got[0].PositionSide)
	}
}

func TestClassifyMirrorBoth(t *testing.T) {
	t.Parallel()

	got := Classify(ev(types.OpenLong, 0), Policy{ReverseCopy: true, MirrorBoth: true})
	if assert.Len(t, got, 2) {
		assert.False(t, got[0].Reversed)
		assert.True(t, got[1].Reversed)
	}
}

func TestClassifyUnknownLabel(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Classify(ev("Liquidation", 0), Policy{}))
}

func TestNormalizeSide(t *testing.T) {
	t.Parallel()

	assert.Equal(t, types.OpenLong, NormalizeSide("Buy/Long", 0))
	assert.Equal(t, types.CloseShort, NormalizeSide("Buy/Long", 3))
	assert.Equal(t, types.OpenShort, NormalizeSide("Sell/Short", 0))
	assert.Equal(t, types.CloseLong, NormalizeSide("Sell/Short", -3))
	assert.Equal(t, types.OpenLong, NormalizeSide("  Open\n  Long ", 0))
}
