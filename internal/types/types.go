package types

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidConfig is returned when a task configuration cannot be used to start mirroring.
var ErrInvalidConfig = errors.New("invalid task config")

// SideLabel is the side text shown in the source trade-history table.
type SideLabel string

const (
	OpenLong   SideLabel = "Open Long"
	CloseLong  SideLabel = "Close Long"
	OpenShort  SideLabel = "Open Short"
	CloseShort SideLabel = "Close Short"

	// Older page revisions render one-way labels; their meaning depends on realized profit.
	BuyLong   SideLabel = "Buy/Long"
	SellShort SideLabel = "Sell/Short"
)

type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// TradeEvent is one parsed row of the source trade history.
type TradeEvent struct {
	Time           time.Time
	RawTime        string
	Symbol         string
	Side           SideLabel
	Price          float64
	Quantity       float64
	RealizedProfit float64
}

// EventKey identifies a trade across polls: (timestamp, symbol, side, price).
type EventKey string

func (e TradeEvent) Key() EventKey {
	return EventKey(fmt.Sprintf("%s-%s-%s-%s", e.RawTime, e.Symbol, e.Side, strconv.FormatFloat(e.Price, 'f', -1, 64)))
}

// OrderIntent is what a trade event asks the follower account to do.
type OrderIntent struct {
	Action       Action
	PositionSide PositionSide
	Close        bool // applies the close quantity multiplier
	Reversed     bool
}

func (i OrderIntent) String() string {
	s := string(i.Action) + "/" + string(i.PositionSide)
	if i.Reversed {
		s += " (reversed)"
	}
	return s
}

// SymbolRules are the exchange trading rules the scaler needs.
type SymbolRules struct {
	Symbol      string
	MinNotional float64
	StepSize    float64
}

type OrderReq struct {
	Symbol        string
	Action        Action
	PositionSide  PositionSide
	Quantity      float64
	QuantityText  string
	Leverage      int
	ClientOrderID string
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ExecutedOrder is the outcome of one submitted intent.
type ExecutedOrder struct {
	Symbol        string       `json:"symbol"`
	Action        Action       `json:"action"`
	PositionSide  PositionSide `json:"position_side"`
	Quantity      float64      `json:"quantity"`
	Leverage      int          `json:"leverage"`
	Time          time.Time    `json:"time"`
	OrderID       string       `json:"order_id,omitempty"`
	ClientOrderID string       `json:"client_order_id,omitempty"`
}

// TaskConfig is captured once when a mirror task is created.
type TaskConfig struct {
	ID                  string  `json:"task_id"`
	Link                string  `json:"link"`
	APIKey              string  `json:"api_key"`
	APISecret           string  `json:"api_secret"`
	Leverage            int     `json:"leverage"`
	TraderPortfolioSize float64 `json:"trader_portfolio_size"`
	YourPortfolioSize   float64 `json:"your_portfolio_size"`
	CloseOnly           bool    `json:"close_only_mode"`
	ReverseCopy         bool    `json:"reverse_copy"`
}

// Validate rejects configurations that would fail later inside the loop.
func (c TaskConfig) Validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: task_id is required", ErrInvalidConfig)
	case c.Link == "":
		return fmt.Errorf("%w: link is required", ErrInvalidConfig)
	case c.APIKey == "" || c.APISecret == "":
		return fmt.Errorf("%w: exchange credentials are required", ErrInvalidConfig)
	case c.Leverage < 1:
		return fmt.Errorf("%w: leverage must be >= 1, got %d", ErrInvalidConfig, c.Leverage)
	case c.TraderPortfolioSize <= 0:
		return fmt.Errorf("%w: trader_portfolio_size must be > 0, got %v", ErrInvalidConfig, c.TraderPortfolioSize)
	case c.YourPortfolioSize <= 0:
		return fmt.Errorf("%w: your_portfolio_size must be > 0, got %v", ErrInvalidConfig, c.YourPortfolioSize)
	}
	return nil
}

// TaskStatus is the externally visible state of a mirror task.
type TaskStatus struct {
	ID         string `json:"task_id"`
	Link       string `json:"link"`
	Running    bool   `json:"running"`
	Cycles     int64  `json:"cycles"`
	Processed  int64  `json:"processed"`
	Orders     int64  `json:"orders"`
	Recoveries int64  `json:"recoveries"`
	LastError  string `json:"last_error,omitempty"`
}
