package brokerobs

import (
	"context"

	"trade-mirror-bot/internal/interfaces"
	"trade-mirror-bot/internal/logger"
	"trade-mirror-bot/internal/trace"
	"trade-mirror-bot/internal/types"
)

// observableGateway wraps a Gateway with observability (logging & tracing)
type observableGateway struct {
	gateway interfaces.Gateway
}

// Compile-time interface check
var _ interfaces.Gateway = (*observableGateway)(nil)

// Wrap wraps a gateway with observability middleware
func Wrap(gateway interfaces.Gateway) interfaces.Gateway {
	return &observableGateway{
		gateway: gateway,
	}
}

// SymbolRules fetches trading rules with observability
func (og *observableGateway) SymbolRules(ctx context.Context, symbol string) (types.SymbolRules, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.SymbolRules")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching symbol rules", "symbol", symbol)

	rules, err := og.gateway.SymbolRules(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch symbol rules", err, "symbol", symbol)
		return types.SymbolRules{}, err
	}

	logger.DebugSkip(ctx, 1, "Symbol rules fetched",
		"symbol", symbol,
		"step_size", rules.StepSize,
		"min_qty", rules.MinNotional,
	)
	return rules, nil
}

// SubmitMarketOrder places an order with observability
func (og *observableGateway) SubmitMarketOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.SubmitMarketOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Submitting market order",
		"symbol", req.Symbol,
		"action", req.Action,
		"position_side", req.PositionSide,
		"qty", req.QuantityText,
		"leverage", req.Leverage,
		"client_order_id", req.ClientOrderID,
	)

	resp, err := og.gateway.SubmitMarketOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to submit order", err,
			"symbol", req.Symbol,
			"action", req.Action,
			"position_side", req.PositionSide,
		)
		return types.OrderResp{}, err
	}

	logger.InfoSkip(ctx, 1, "Order submitted",
		"symbol", req.Symbol,
		"order_id", resp.OrderID,
		"status", resp.Status,
	)
	return resp, nil
}
