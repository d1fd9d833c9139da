package mirror

import (
	"context"

	"trade-mirror-bot/internal/engine"
	"trade-mirror-bot/internal/logger"
	"trade-mirror-bot/internal/metrics"
	"trade-mirror-bot/internal/tradelog"
	"trade-mirror-bot/internal/types"
)

const (
	statusSubmitted = "submitted"
	statusFailed    = "failed"
	statusSkipped   = "skipped"
)

// execute classifies one accepted event and submits each resulting intent.
// Failures are recorded and never retried; the event stays processed.
func (t *Task) execute(ctx context.Context, cycleID string, ev types.TradeEvent) {
	intents := engine.Classify(ev, t.policy)
	if len(intents) == 0 {
		logger.Debug(ctx, "Event not mirrored", "task_id", t.cfg.ID, "symbol", ev.Symbol, "side", ev.Side, "realized_profit", ev.RealizedProfit)
		return
	}

	for _, in := range intents {
		logger.Intent(ctx, t.cfg.ID, ev.Symbol, string(ev.Side), in.String(), "cycle_id", cycleID)
		t.submit(ctx, cycleID, ev, in)
	}
}

func (t *Task) submit(ctx context.Context, cycleID string, ev types.TradeEvent, in types.OrderIntent) {
	entry := tradelog.Entry{
		TaskID:       t.cfg.ID,
		CycleID:      cycleID,
		EventKey:     string(ev.Key()),
		Symbol:       ev.Symbol,
		Action:       string(in.Action),
		PositionSide: string(in.PositionSide),
		Leverage:     t.cfg.Leverage,
		Reversed:     in.Reversed,
	}

	rules, err := t.gateway.SymbolRules(ctx, ev.Symbol)
	if err != nil {
		t.record(ctx, entry, statusSkipped, err)
		return
	}

	qty, err := t.scaler.Scale(ev.Quantity, in.Close, rules)
	if err != nil {
		t.record(ctx, entry, statusSkipped, err)
		return
	}
	entry.Quantity = qty

	req := types.OrderReq{
		Symbol:        ev.Symbol,
		Action:        in.Action,
		PositionSide:  in.PositionSide,
		Quantity:      qty,
		QuantityText:  engine.FormatQuantity(qty, rules.StepSize),
		Leverage:      t.cfg.Leverage,
		ClientOrderID: ClientOrderID(t.cfg.ID, ev.Key(), in),
	}
	entry.ClientOrderID = req.ClientOrderID

	resp, err := t.gateway.SubmitMarketOrder(ctx, req)
	if err != nil {
		t.record(ctx, entry, statusFailed, err)
		return
	}

	t.orders.Add(1)
	entry.OrderID = resp.OrderID
	t.record(ctx, entry, statusSubmitted, nil)
	logger.Trade(ctx, t.cfg.ID, ev.Symbol, string(in.Action), string(in.PositionSide), qty, resp.OrderID,
		"leverage", t.cfg.Leverage,
		"reversed", in.Reversed,
		"cycle_id", cycleID,
	)
}

func (t *Task) record(ctx context.Context, entry tradelog.Entry, status string, err error) {
	entry.Status = status
	if err != nil {
		entry.Reason = err.Error()
		logger.ErrorWithErr(ctx, "Order not placed", err,
			"task_id", entry.TaskID,
			"symbol", entry.Symbol,
			"action", entry.Action,
			"position_side", entry.PositionSide,
			"status", status,
		)
	}
	metrics.Orders.WithLabelValues(entry.Action, entry.PositionSide, status).Inc()

	if t.tradeLog == nil {
		return
	}
	if werr := t.tradeLog.Append(entry); werr != nil {
		logger.ErrorWithErr(ctx, "Failed to append trade log", werr, "task_id", entry.TaskID)
	}
}
