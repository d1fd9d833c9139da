// Package binance places mirrored orders on a Binance USDⓈ-M futures account.
package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"trade-mirror-bot/internal/engine"
	"trade-mirror-bot/internal/interfaces"
	"trade-mirror-bot/internal/logger"
	"trade-mirror-bot/internal/types"
)

type Config struct {
	APIKey            string
	APISecret         string
	Testnet           bool
	RulesTTL          time.Duration
	RequestsPerSecond int
	// BaseURL overrides the REST endpoint; empty uses production or testnet.
	BaseURL string
}

type Gateway struct {
	client  *futures.Client
	limiter *RateLimiter
	rules   *rulesCache

	mu       sync.Mutex
	leverage map[string]int
}

var _ interfaces.Gateway = (*Gateway)(nil)

var testnetOnce sync.Once

func New(cfg Config) *Gateway {
	if cfg.Testnet {
		// package-level switch in go-binance; every task in a process shares the exchange config
		testnetOnce.Do(func() { futures.UseTestnet = true })
	}
	client := gobinance.NewFuturesClient(cfg.APIKey, cfg.APISecret)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	if cfg.RulesTTL <= 0 {
		cfg.RulesTTL = time.Hour
	}

	return &Gateway{
		client:   client,
		limiter:  NewRateLimiter(cfg.RequestsPerSecond),
		rules:    newRulesCache(cfg.RulesTTL),
		leverage: make(map[string]int),
	}
}

// Verify makes one signed call so bad keys surface before a task starts.
// A rejection by the exchange wraps types.ErrInvalidConfig; transport failures do not.
func (g *Gateway) Verify(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := g.client.NewGetBalanceService().Do(ctx); err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%w: exchange rejected credentials: code %d: %s", types.ErrInvalidConfig, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("verify credentials: %w", err)
	}
	logger.Debug(ctx, "Exchange credentials verified")
	return nil
}

// SymbolRules returns the lot step and the smallest accepted quantity in base units.
// The exchange states its minimum as a quote notional, so it is converted at the last price.
func (g *Gateway) SymbolRules(ctx context.Context, symbol string) (types.SymbolRules, error) {
	if r, ok := g.rules.get(symbol); ok {
		return r, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return types.SymbolRules{}, err
	}
	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return types.SymbolRules{}, fmt.Errorf("exchange info: %w", err)
	}

	var (
		found                      bool
		stepSize, minQty, notional float64
	)
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		found = true
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "LOT_SIZE":
				stepSize = filterFloat(f, "stepSize")
				minQty = filterFloat(f, "minQty")
			case "MIN_NOTIONAL":
				notional = filterFloat(f, "notional")
			}
		}
		break
	}
	if !found {
		return types.SymbolRules{}, fmt.Errorf("symbol %s not listed on futures exchange", symbol)
	}

	minimum := minQty
	if notional > 0 {
		price, err := g.lastPrice(ctx, symbol)
		if err != nil {
			return types.SymbolRules{}, err
		}
		if q := ceilToStep(notional/price, stepSize); q > minimum {
			minimum = q
		}
	}

	rules := types.SymbolRules{Symbol: symbol, StepSize: stepSize, MinNotional: minimum}
	g.rules.set(rules)
	logger.Debug(ctx, "Symbol rules loaded", "symbol", symbol, "step_size", stepSize, "min_qty", minimum, "min_notional", notional)
	return rules, nil
}

func (g *Gateway) lastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	prices, err := g.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("price %s: %w", symbol, err)
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		v, err := strconv.ParseFloat(p.Price, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("price %s: invalid %q", symbol, p.Price)
		}
		return v, nil
	}
	return 0, fmt.Errorf("price %s: not returned", symbol)
}

// SubmitMarketOrder sets leverage for the symbol if it changed, then sends a hedge-mode market order.
func (g *Gateway) SubmitMarketOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if err := g.ensureLeverage(ctx, req.Symbol, req.Leverage); err != nil {
		return types.OrderResp{}, err
	}

	side := futures.SideTypeBuy
	if req.Action == types.Sell {
		side = futures.SideTypeSell
	}
	posSide := futures.PositionSideTypeLong
	if req.PositionSide == types.Short {
		posSide = futures.PositionSideTypeShort
	}
	qty := req.QuantityText
	if qty == "" {
		qty = strconv.FormatFloat(req.Quantity, 'f', -1, 64)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return types.OrderResp{}, err
	}
	svc := g.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		PositionSide(posSide).
		Type(futures.OrderTypeMarket).
		Quantity(qty)
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return types.OrderResp{}, fmt.Errorf("create order %s %s/%s %s: %w", req.Symbol, req.Action, req.PositionSide, qty, err)
	}
	return types.OrderResp{
		OrderID: strconv.FormatInt(res.OrderID, 10),
		Status:  string(res.Status),
	}, nil
}

func (g *Gateway) ensureLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage <= 0 {
		return nil
	}
	g.mu.Lock()
	current := g.leverage[symbol]
	g.mu.Unlock()
	if current == leverage {
		return nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := g.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx); err != nil {
		return fmt.Errorf("set leverage %dx on %s: %w", leverage, symbol, err)
	}

	g.mu.Lock()
	g.leverage[symbol] = leverage
	g.mu.Unlock()
	return nil
}

func filterFloat(f map[string]interface{}, key string) float64 {
	s, ok := f[key].(string)
	if !ok {
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func ceilToStep(q, step float64) float64 {
	if step <= 0 {
		return q
	}
	n := math.Ceil(q/step - 1e-9)
	v, _ := strconv.ParseFloat(engine.FormatQuantity(n*step, step), 64)
	return v
}
