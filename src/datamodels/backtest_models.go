package datamodels

import (
	"encoding/json"
	"fmt"
)

type SignalDirection int

const (
	SignalDirectionBuy  SignalDirection = 1
	SignalDirectionSell SignalDirection = -1
)

// TradeSignal is a proposed buy or sell of a quantity of a symbol, not yet
// applied to the ledger. Signals generated by the settlement rebalance step
// carry FromRebalance so their proceeds are not booked twice; the flag never
// crosses a transport boundary.
type TradeSignal struct {
	Direction SignalDirection
	Symbol    string
	Quantity  int64

	FromRebalance bool `json:"-"`
}

func NewBuySignal(symbol string, quantity int64) TradeSignal {
	return TradeSignal{Direction: SignalDirectionBuy, Symbol: symbol, Quantity: quantity}
}

func NewSellSignal(symbol string, quantity int64) TradeSignal {
	return TradeSignal{Direction: SignalDirectionSell, Symbol: symbol, Quantity: quantity}
}

// MarshalJSON encodes the signal as the [direction, symbol, quantity] triple
// used on the wire between stages.
func (s TradeSignal) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{int(s.Direction), s.Symbol, s.Quantity})
}

func (s *TradeSignal) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return fmt.Errorf("trade signal must have 3 elements, got %d", len(parts))
	}
	var direction int
	if err := json.Unmarshal(parts[0], &direction); err != nil {
		return err
	}
	if err := json.Unmarshal(parts[1], &s.Symbol); err != nil {
		return err
	}
	if err := json.Unmarshal(parts[2], &s.Quantity); err != nil {
		return err
	}
	s.Direction = SignalDirection(direction)
	return nil
}

func (s TradeSignal) String() string {
	side := "Buy"
	if s.Direction == SignalDirectionSell {
		side = "Sell"
	}
	return fmt.Sprintf("<%s, %s, %d>", side, s.Symbol, s.Quantity)
}

// Frame holds the price and volume of every symbol for one period.
type Frame struct {
	Prices  map[string]float64
	Volumes map[string]int64
}

func NewFrame() *Frame {
	return &Frame{
		Prices:  make(map[string]float64),
		Volumes: make(map[string]int64),
	}
}

// Clone seeds the next period's frame; entries not touched by the strategy
// pass carry over unchanged.
func (f *Frame) Clone() *Frame {
	next := &Frame{
		Prices:  make(map[string]float64, len(f.Prices)),
		Volumes: make(map[string]int64, len(f.Volumes)),
	}
	for k, v := range f.Prices {
		next.Prices[k] = v
	}
	for k, v := range f.Volumes {
		next.Volumes[k] = v
	}
	return next
}

// PeriodStats is the per-period statistics snapshot appended by the
// settlement stage. Prices is populated only on the final period and holds
// the full per-period price history restricted to symbols ever held, so
// external readers can reconstruct balances.
type PeriodStats struct {
	Period       int                  `json:"time"`
	InitialFunds float64              `json:"initial_funds"`
	Funds        float64              `json:"funds"`
	Shares       map[string]int64     `json:"shares"`
	Balance      float64              `json:"balance"`
	Net          float64              `json:"net"`
	BuyCount     int64                `json:"buy_count"`
	SellCount    int64                `json:"sell_count"`
	Prices       []map[string]float64 `json:"prices"`
}

// Stage names double as the run-scoped queue name suffixes.
const (
	StageAName = "STAGEA"
	StageBName = "STAGEB"
	StageCName = "STAGEC"
)

// StageAMessage announces one period's universe to stage B.
type StageAMessage struct {
	Time     int      `json:"time"`
	Universe []string `json:"universe"`
}

// StageBMessage carries everything stage C needs to settle one period.
type StageBMessage struct {
	Time         int                `json:"time"`
	TradeSignals []TradeSignal      `json:"trade_signals"`
	Prices       map[string]float64 `json:"prices"`
	Volumes      map[string]int64   `json:"volumes"`
	Funds        float64            `json:"funds"`
	Shares       map[string]int64   `json:"shares"`
	BuyCount     int64              `json:"buy_count"`
	SellCount    int64              `json:"sell_count"`
}

// StageCMessage confirms one period is settled; stage B gates on Time and
// carries the settled funds and shares into the next period's frame.
type StageCMessage struct {
	Time         int                `json:"time"`
	TradeSignals []TradeSignal      `json:"trade_signals"`
	Prices       map[string]float64 `json:"prices"`
	Volumes      map[string]int64   `json:"volumes"`
	Funds        float64            `json:"funds"`
	Shares       map[string]int64   `json:"shares"`
	BuyCount     int64              `json:"buy_count"`
	SellCount    int64              `json:"sell_count"`
}

// RunParams identifies one backtest run and carries its trading constants.
type RunParams struct {
	UserID             string
	StrategyID         string
	BacktestID         string
	Periods            int
	InitialFunds       float64
	TransactionCost    float64
	MaxStockPercentage float64
	Seed               int64
}

// QueuePrefix scopes the durable stage queues to this run.
func (p RunParams) QueuePrefix() string {
	return fmt.Sprintf("<%s><%s><%s>", p.UserID, p.StrategyID, p.BacktestID)
}

// RunKey names the run's result file.
func (p RunParams) RunKey() string {
	return fmt.Sprintf("%s-%s-%s", p.UserID, p.StrategyID, p.BacktestID)
}
