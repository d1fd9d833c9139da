// Package summary keeps the rolling per-task trade summary and its snapshot file.
package summary

import (
	"fmt"
	"strconv"
	"sync"

	"trade-mirror-bot/internal/types"
)

// Record aggregates every event sharing (symbol, side, price).
type Record struct {
	Time           string  `json:"Time"`
	Symbol         string  `json:"Symbol"`
	Side           string  `json:"Side"`
	Price          float64 `json:"Price"`
	Quantity       float64 `json:"Quantity"`
	RealizedProfit float64 `json:"RealizedProfit"`
}

// Key is the aggregation key, e.g. BTCUSDT_Open Long_63120.5.
func Key(symbol, side string, price float64) string {
	return fmt.Sprintf("%s_%s_%s", symbol, side, strconv.FormatFloat(price, 'f', -1, 64))
}

// Summarize folds events into records ordered by first appearance.
// Time is taken from the first event of each key.
func Summarize(events []types.TradeEvent) []Record {
	out := make([]Record, 0, len(events))
	index := make(map[string]int, len(events))

	for _, ev := range events {
		k := Key(ev.Symbol, string(ev.Side), ev.Price)
		if i, ok := index[k]; ok {
			out[i].Quantity += ev.Quantity
			out[i].RealizedProfit += ev.RealizedProfit
			continue
		}
		index[k] = len(out)
		out = append(out, Record{
			Time:           ev.RawTime,
			Symbol:         ev.Symbol,
			Side:           string(ev.Side),
			Price:          ev.Price,
			Quantity:       ev.Quantity,
			RealizedProfit: ev.RealizedProfit,
		})
	}
	return out
}

// History is the in-memory list of accepted events for one task.
// The expiry timer clears it from its own goroutine, hence the lock.
type History struct {
	mu     sync.Mutex
	events []types.TradeEvent
}

func (h *History) Append(ev types.TradeEvent) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *History) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Summarize(h.events)
}

func (h *History) Clear() {
	h.mu.Lock()
	h.events = nil
	h.mu.Unlock()
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}
