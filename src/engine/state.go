package engine

import (
	"log/slog"
	"time"

	"tradesim/src/datamodels"
	"tradesim/src/ledger"
	"tradesim/src/stages"
	"tradesim/src/utils/errors"
)

// RunState holds the per-period artefacts of a single backtest run. Ownership
// is split by stage: the selection stage writes universes, the strategy stage
// writes frames and signals, and the settlement stage writes the ledger and
// stats history. The shared-memory engine relies on that single-writer split
// together with the watermark gates for safe publication.
type RunState struct {
	Params datamodels.RunParams

	Universes  [][]string
	Frames     []*datamodels.Frame
	Signals    [][]datamodels.TradeSignal
	BuyCounts  []int64
	SellCounts []int64

	Ledger        *ledger.Ledger
	SharesHistory []map[string]int64
	Stats         []datamodels.PeriodStats
}

func NewRunState(params datamodels.RunParams, initial *datamodels.Frame) *RunState {
	n := params.Periods
	s := &RunState{
		Params:        params,
		Universes:     make([][]string, n),
		Frames:        make([]*datamodels.Frame, n+1),
		Signals:       make([][]datamodels.TradeSignal, n),
		BuyCounts:     make([]int64, n),
		SellCounts:    make([]int64, n),
		Ledger:        ledger.New(params.InitialFunds),
		SharesHistory: make([]map[string]int64, 0, n),
		Stats:         make([]datamodels.PeriodStats, 0, n),
	}
	s.Frames[0] = initial.Clone()
	return s
}

// SeedFrame materialises the working frame for period p as a copy of the
// settled frame of period p-1. Prices chain across the whole run through
// these copies; the strategy stage then mutates the copy in place.
func (s *RunState) SeedFrame(p int) *datamodels.Frame {
	if s.Frames[p+1] == nil {
		s.Frames[p+1] = s.Frames[p].Clone()
	}
	return s.Frames[p+1]
}

// FrameFor returns the frame the strategy stage produced for period p.
func (s *RunState) FrameFor(p int) *datamodels.Frame {
	return s.Frames[p+1]
}

// Settle runs the full settlement step for period p against the run ledger:
// rebalance, order application, counter accumulation, stats capture. Shared
// by the sequential and shared-memory engines; the distributed settlement
// runner mirrors it over message payloads.
func (s *RunState) Settle(settlement *stages.SettlementStage, p int) error {
	frame := s.FrameFor(p)
	if frame == nil {
		return errors.Newf("settle period %d: no frame", p)
	}
	signals := append([]datamodels.TradeSignal(nil), s.Signals[p]...)
	signals = settlement.Rebalance(frame.Prices, s.Ledger, signals)
	settlement.ApplyOrders(frame.Prices, s.Ledger, signals)
	s.Ledger.BuyCount += s.BuyCounts[p]
	s.Ledger.SellCount += s.SellCounts[p]
	s.SharesHistory = append(s.SharesHistory, s.Ledger.SharesCopy())

	final := p == s.Params.Periods-1
	var priceHistory []map[string]float64
	if final {
		priceHistory = s.priceHistory()
	}
	stat := settlement.Stats(p, frame.Prices, s.Ledger, final, priceHistory, s.SharesHistory)
	s.Stats = append(s.Stats, stat)
	return nil
}

func (s *RunState) priceHistory() []map[string]float64 {
	history := make([]map[string]float64, 0, s.Params.Periods)
	for p := 0; p < s.Params.Periods; p++ {
		history = append(history, s.Frames[p+1].Prices)
	}
	return history
}

// RunResult summarises a finished run for reporting.
type RunResult struct {
	Params         datamodels.RunParams
	Periods        int
	InitialBalance float64
	FinalFunds     float64
	FinalBalance   float64
	Net            float64
	FinalShares    map[string]int64
	Stats          []datamodels.PeriodStats
	Elapsed        time.Duration
}

func (s *RunState) Result(elapsed time.Duration) *RunResult {
	final := s.Frames[s.Params.Periods]
	balance := s.Ledger.Balance(final.Prices)
	return &RunResult{
		Params:         s.Params,
		Periods:        s.Params.Periods,
		InitialBalance: s.Params.InitialFunds,
		FinalFunds:     s.Ledger.Funds,
		FinalBalance:   balance,
		Net:            balance - s.Params.InitialFunds,
		FinalShares:    s.Ledger.SharesCopy(),
		Stats:          s.Stats,
		Elapsed:        elapsed,
	}
}

func (r *RunResult) Log(log *slog.Logger) {
	log.Info("backtest finished",
		slog.String("run", r.Params.RunKey()),
		slog.Int("periods", r.Periods),
		slog.Float64("initial_balance", r.InitialBalance),
		slog.Float64("final_funds", r.FinalFunds),
		slog.Float64("final_balance", r.FinalBalance),
		slog.Float64("net", r.Net),
		slog.Any("final_shares", r.FinalShares),
		slog.Duration("elapsed", r.Elapsed))
}
