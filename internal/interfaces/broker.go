package interfaces

import (
	"context"

	"trade-mirror-bot/internal/types"
)

// Gateway is the follower account on the derivatives exchange.
type Gateway interface {
	// SymbolRules returns lot size and minimum order size for a symbol
	SymbolRules(ctx context.Context, symbol string) (types.SymbolRules, error)

	// SubmitMarketOrder places a market order and returns the exchange response
	SubmitMarketOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
}
