package mirror

import (
	"context"

	"trade-mirror-bot/internal/broker/binance"
	"trade-mirror-bot/internal/broker/brokerobs"
	"trade-mirror-bot/internal/broker/paper"
	"trade-mirror-bot/internal/interfaces"
	"trade-mirror-bot/internal/page"
	"trade-mirror-bot/internal/store"
	"trade-mirror-bot/internal/tradelog"
	"trade-mirror-bot/internal/types"
)

// NewFactory returns a constructor that wires each task to its own page driver and gateway.
// LIVE mode trades on Binance with the task's credentials, which are checked with a
// signed call before the task is built; DRY_RUN uses a paper gateway.
func NewFactory(cfg *store.Config, tl *tradelog.Log) func(context.Context, types.TaskConfig) (interfaces.Task, error) {
	return func(ctx context.Context, tc types.TaskConfig) (interfaces.Task, error) {
		if err := tc.Validate(); err != nil {
			return nil, err
		}
		gw, err := newGateway(ctx, cfg, tc)
		if err != nil {
			return nil, err
		}
		drv, err := page.NewDriver(cfg.Source.Driver, cfg.HeadlessEnabled(), cfg.Source.UserAgent, cfg.Source.RequestTimeout)
		if err != nil {
			return nil, err
		}
		return New(tc, OptionsFromConfig(cfg, tc.ID, tc.Link), Deps{
			Driver:   drv,
			Gateway:  gw,
			TradeLog: tl,
		})
	}
}

func newGateway(ctx context.Context, cfg *store.Config, tc types.TaskConfig) (interfaces.Gateway, error) {
	if cfg.Mode != "LIVE" {
		return brokerobs.Wrap(paper.New()), nil
	}

	gw := binance.New(binance.Config{
		APIKey:            tc.APIKey,
		APISecret:         tc.APISecret,
		Testnet:           cfg.Exchange.Testnet,
		RulesTTL:          cfg.Exchange.RulesTTL,
		RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
		BaseURL:           cfg.Exchange.BaseURL,
	})
	ctx, cancel := context.WithTimeout(ctx, cfg.Source.RequestTimeout)
	defer cancel()
	if err := gw.Verify(ctx); err != nil {
		return nil, err
	}
	return brokerobs.Wrap(gw), nil
}
