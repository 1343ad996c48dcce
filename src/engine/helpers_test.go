package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tradesim/src/datamodels"
	"tradesim/src/stages"
	"tradesim/src/utils/symbols"
)

// scriptedEvolver replays a fixed price path: prices[period][symbol] is the
// price after evolution. Volumes are left untouched.
type scriptedEvolver struct {
	prices []map[string]float64
}

func (e *scriptedEvolver) EvolveSymbol(frame *datamodels.Frame, period, symbolIndex int, symbol string) (float64, float64, float64) {
	oldPrice := frame.Prices[symbol]
	newPrice := e.prices[period][symbol]
	frame.Prices[symbol] = newPrice
	return oldPrice, newPrice, newPrice - oldPrice
}

func engineProvider(t *testing.T, list string) *symbols.Provider {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbols")
	if err := os.WriteFile(path, []byte(list), 0644); err != nil {
		t.Fatalf("failed to write symbols file: %v", err)
	}
	provider, err := symbols.NewProviderFromConfig(&datamodels.SymbolsConfig{FilePath: path})
	require.NoError(t, err)
	return provider
}

func goldenParams(periods int) datamodels.RunParams {
	return datamodels.RunParams{
		UserID:             "u",
		StrategyID:         "s",
		BacktestID:         "b",
		Periods:            periods,
		InitialFunds:       10000,
		TransactionCost:    6,
		MaxStockPercentage: 0.2,
		Seed:               1,
	}
}

func goldenInitialFrame() *datamodels.Frame {
	frame := datamodels.NewFrame()
	frame.Prices["A"] = 10
	frame.Prices["B"] = 20
	frame.Volumes["A"] = 100
	frame.Volumes["B"] = 50
	return frame
}

// goldenPipeline pins a fully deterministic three period run: scripted
// prices, max sizing, two symbols.
func goldenPipeline(t *testing.T) *Pipeline {
	t.Helper()
	evolver := &scriptedEvolver{prices: []map[string]float64{
		{"A": 11, "B": 22},
		{"A": 10, "B": 24},
		{"A": 10, "B": 20},
	}}
	pipeline, err := NewPipelineBuilder(goldenParams(3)).
		WithProvider(engineProvider(t, "A\nB\n")).
		WithInitialFrame(goldenInitialFrame()).
		WithEvolver(evolver).
		WithSizing(stages.MaxSizing{}).
		Build()
	require.NoError(t, err)
	return pipeline
}

// seededPipeline uses the production generator and random sizing so runs
// exercise the real draw stream; two pipelines from the same seed must
// produce identical runs.
func seededPipeline(t *testing.T, periods int, seed int64) *Pipeline {
	t.Helper()
	params := goldenParams(periods)
	params.Seed = seed
	pipeline, err := NewPipelineBuilder(params).
		WithProvider(engineProvider(t, "A\nB\nC\nD\nE\n")).
		WithInitialFrame(goldenInitialFrame5()).
		Build()
	require.NoError(t, err)
	return pipeline
}

func goldenInitialFrame5() *datamodels.Frame {
	frame := datamodels.NewFrame()
	for i, symbol := range []string{"A", "B", "C", "D", "E"} {
		frame.Prices[symbol] = float64(10 * (i + 1))
		frame.Volumes[symbol] = int64(1000 - 100*i)
	}
	return frame
}
