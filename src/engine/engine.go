package engine

import (
	"context"
	"log/slog"

	"tradesim/src/datamodels"
	"tradesim/src/marketdata"
	"tradesim/src/results"
	"tradesim/src/stages"
	"tradesim/src/utils/errors"
	"tradesim/src/utils/symbols"
)

// Engine drives one complete backtest run under a particular coordination
// substrate. All engines produce the same result for the same parameters and
// seed; they differ only in how the three stages are scheduled.
type Engine interface {
	Run(ctx context.Context) (*RunResult, error)
}

// Pipeline bundles the three stage implementations with the run parameters
// and starting market frame. Engines share it; it holds no per-run mutable
// state of its own.
type Pipeline struct {
	Log        *slog.Logger
	Params     datamodels.RunParams
	Provider   *symbols.Provider
	Selector   stages.UniverseSelector
	Strategy   *stages.StrategyStage
	Settlement *stages.SettlementStage
	Initial    *datamodels.Frame
	Results    results.ResultsWriter
}

type PipelineBuilder struct {
	params   datamodels.RunParams
	log      *slog.Logger
	provider *symbols.Provider
	selector stages.UniverseSelector
	evolver  stages.PriceEvolver
	sizing   stages.SizingPolicy
	initial  *datamodels.Frame
	results  results.ResultsWriter
}

func NewPipelineBuilder(params datamodels.RunParams) *PipelineBuilder {
	return &PipelineBuilder{params: params}
}

func (b *PipelineBuilder) WithLogger(log *slog.Logger) *PipelineBuilder {
	b.log = log
	return b
}

func (b *PipelineBuilder) WithProvider(provider *symbols.Provider) *PipelineBuilder {
	b.provider = provider
	return b
}

func (b *PipelineBuilder) WithSelector(selector stages.UniverseSelector) *PipelineBuilder {
	b.selector = selector
	return b
}

func (b *PipelineBuilder) WithEvolver(evolver stages.PriceEvolver) *PipelineBuilder {
	b.evolver = evolver
	return b
}

func (b *PipelineBuilder) WithSizing(sizing stages.SizingPolicy) *PipelineBuilder {
	b.sizing = sizing
	return b
}

func (b *PipelineBuilder) WithInitialFrame(frame *datamodels.Frame) *PipelineBuilder {
	b.initial = frame
	return b
}

// WithResultsWriter attaches the sink that receives the cumulative stats
// history after every settled period. Optional; a nil writer skips
// persistence entirely.
func (b *PipelineBuilder) WithResultsWriter(writer results.ResultsWriter) *PipelineBuilder {
	b.results = writer
	return b
}

func (b *PipelineBuilder) Build() (*Pipeline, error) {
	if b.provider == nil {
		return nil, errors.New("pipeline requires a symbol provider")
	}
	if b.initial == nil {
		return nil, errors.New("pipeline requires an initial market frame")
	}
	if b.params.Periods <= 0 {
		return nil, errors.Newf("pipeline requires a positive period count, got %d", b.params.Periods)
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.selector == nil {
		b.selector = stages.SingleCharSelector
	}
	if b.evolver == nil || b.sizing == nil {
		gen := marketdata.NewGenerator(b.params.Seed)
		if b.evolver == nil {
			b.evolver = gen
		}
		if b.sizing == nil {
			b.sizing = stages.NewRandomSizing(gen.Rand())
		}
	}
	return &Pipeline{
		Log:        b.log,
		Params:     b.params,
		Provider:   b.provider,
		Selector:   b.selector,
		Strategy:   stages.NewStrategyStage(b.evolver, b.provider, b.sizing, b.params.TransactionCost),
		Settlement: stages.NewSettlementStage(b.params.TransactionCost, b.params.MaxStockPercentage, b.params.InitialFunds),
		Initial:    b.initial,
		Results:    b.results,
	}, nil
}

// runSelection executes the universe selection stage for period p.
func (pl *Pipeline) runSelection(st *RunState, p int) {
	st.Universes[p] = pl.Selector(pl.Provider.List())
}

// runStrategy executes the strategy stage for period p. The working frame is
// seeded from the prior period's settled frame here, so price chains survive
// regardless of how far ahead the selection stage has run.
func (pl *Pipeline) runStrategy(st *RunState, p int) {
	frame := st.SeedFrame(p)
	signals, buys, sells := pl.Strategy.Evaluate(p, st.Universes[p], frame, st.Ledger.SharesCopy(), st.Ledger.Funds)
	st.Signals[p] = signals
	st.BuyCounts[p] = buys
	st.SellCounts[p] = sells
}

// runSettlement executes the settlement stage for period p and persists the
// cumulative stats history before the period is considered settled, so an
// interrupted run leaves a result file covering every completed period.
func (pl *Pipeline) runSettlement(ctx context.Context, st *RunState, p int) error {
	if err := st.Settle(pl.Settlement, p); err != nil {
		return err
	}
	if pl.Results != nil {
		if err := pl.Results.Write(ctx, pl.Params, st.Stats); err != nil {
			return errors.Wrapf(err, "persisting results after period %d", p)
		}
	}
	return nil
}
