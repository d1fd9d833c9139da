// Package paper is the DRY_RUN gateway: orders are recorded, never sent.
package paper

import (
	"context"
	"fmt"
	"sync"

	"trade-mirror-bot/internal/interfaces"
	"trade-mirror-bot/internal/types"
)

// DefaultRules apply to any symbol without an explicit entry.
var DefaultRules = types.SymbolRules{StepSize: 0.001, MinNotional: 0.001}

type Gateway struct {
	mu       sync.Mutex
	rules    map[string]types.SymbolRules
	orders   []types.OrderReq
	byClient map[string]types.OrderResp
	seq      int64
	failNext error
}

var _ interfaces.Gateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		rules:    make(map[string]types.SymbolRules),
		byClient: make(map[string]types.OrderResp),
	}
}

// SetRules overrides the rules returned for rules.Symbol.
func (g *Gateway) SetRules(rules types.SymbolRules) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules[rules.Symbol] = rules
}

// FailNext makes the next submission return err.
func (g *Gateway) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = err
}

func (g *Gateway) SymbolRules(_ context.Context, symbol string) (types.SymbolRules, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.rules[symbol]; ok {
		return r, nil
	}
	r := DefaultRules
	r.Symbol = symbol
	return r, nil
}

// SubmitMarketOrder records the request. A repeated client order id returns the first response.
func (g *Gateway) SubmitMarketOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if err := ctx.Err(); err != nil {
		return types.OrderResp{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failNext; err != nil {
		g.failNext = nil
		return types.OrderResp{}, err
	}
	if req.ClientOrderID != "" {
		if resp, ok := g.byClient[req.ClientOrderID]; ok {
			return resp, nil
		}
	}

	g.seq++
	resp := types.OrderResp{OrderID: fmt.Sprintf("paper-%d", g.seq), Status: "FILLED"}
	g.orders = append(g.orders, req)
	if req.ClientOrderID != "" {
		g.byClient[req.ClientOrderID] = resp
	}
	return resp, nil
}

// Orders returns a copy of every accepted request in submission order.
func (g *Gateway) Orders() []types.OrderReq {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.OrderReq(nil), g.orders...)
}
