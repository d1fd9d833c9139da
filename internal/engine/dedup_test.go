package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trade-mirror-bot/internal/types"
)

func timedEvent(at time.Time, price float64) types.TradeEvent {
	return types.TradeEvent{
		Time:     at,
		RawTime:  at.Format("2006-01-02 15:04:05"),
		Symbol:   "BTCUSDT",
		Side:     types.OpenLong,
		Price:    price,
		Quantity: 1,
	}
}

func TestDedupAcceptsOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduplicator(2 * time.Minute)
	e := timedEvent(now.Add(-30*time.Second), 100)

	assert.True(t, d.Accept(e, now))
	assert.False(t, d.Accept(e, now))
	assert.False(t, d.Accept(e, now.Add(10*time.Second)))
	assert.Equal(t, 1, d.Len())
}

func TestDedupWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduplicator(2 * time.Minute)

	assert.True(t, d.Accept(timedEvent(now.Add(-2*time.Minute), 1), now), "boundary is inclusive")
	assert.False(t, d.Accept(timedEvent(now.Add(-2*time.Minute-time.Second), 2), now))
	assert.True(t, d.Accept(timedEvent(now.Add(90*time.Second), 3), now), "clock skew ahead is tolerated")
	assert.False(t, d.Accept(timedEvent(now.Add(3*time.Minute), 4), now))

	// Out-of-window rows are not remembered.
	assert.Equal(t, 2, d.Len())
}

func TestDedupDistinctPrice(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduplicator(0)

	assert.True(t, d.Accept(timedEvent(now, 100), now))
	assert.True(t, d.Accept(timedEvent(now, 100.5), now))
}

func TestDedupRetention(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	d := NewDeduplicator(2*time.Minute, WithRetention(10*time.Minute))
	assert.True(t, d.Accept(timedEvent(now, 100), now))
	assert.Equal(t, 0, d.Evict(now.Add(5*time.Minute)))
	assert.Equal(t, 1, d.Evict(now.Add(11*time.Minute)))
	assert.Equal(t, 0, d.Len())

	unbounded := NewDeduplicator(2 * time.Minute)
	assert.True(t, unbounded.Accept(timedEvent(now, 100), now))
	assert.Equal(t, 0, unbounded.Evict(now.Add(24*time.Hour)))
	assert.Equal(t, 1, unbounded.Len())
}
