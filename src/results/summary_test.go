package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/src/datamodels"
)

func historyWithBalances(initial float64, balances ...float64) []datamodels.PeriodStats {
	history := make([]datamodels.PeriodStats, len(balances))
	for i, balance := range balances {
		history[i] = datamodels.PeriodStats{
			Period:       i,
			InitialFunds: initial,
			Balance:      balance,
			Net:          balance - initial,
		}
	}
	return history
}

func TestSummarizeComputesReturns(t *testing.T) {
	// 1000 -> 1100 (+10%) -> 990 (-10%)
	history := historyWithBalances(1000, 1100, 990)
	summary, err := Summarize(history)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Periods)
	assert.InDelta(t, 990, summary.FinalBalance, 1e-9)
	assert.InDelta(t, -10, summary.Net, 1e-9)
	assert.InDelta(t, 0.0, summary.MeanReturn, 1e-9) // (+0.1 - 0.1) / 2
	assert.InDelta(t, 0.1*2/1.4142135623, summary.ReturnStdDev, 1e-6)
}

func TestSummarizeMaxDrawdown(t *testing.T) {
	// Peak 1200, trough 900: drawdown 25%.
	history := historyWithBalances(1000, 1200, 900, 1100)
	summary, err := Summarize(history)
	require.NoError(t, err)

	assert.InDelta(t, 0.25, summary.MaxDrawdown, 1e-9)
}

func TestSummarizeMonotonicRiseHasZeroDrawdown(t *testing.T) {
	history := historyWithBalances(1000, 1010, 1020, 1030)
	summary, err := Summarize(history)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, summary.MaxDrawdown, 1e-9)
	assert.Greater(t, summary.MeanReturn, 0.0)
}

func TestSummarizeCarriesTradeCounters(t *testing.T) {
	history := historyWithBalances(1000, 1010)
	history[len(history)-1].BuyCount = 7
	history[len(history)-1].SellCount = 3

	summary, err := Summarize(history)
	require.NoError(t, err)
	assert.Equal(t, int64(7), summary.TotalBuys)
	assert.Equal(t, int64(3), summary.TotalSells)
}

func TestSummarizeRejectsEmptyHistory(t *testing.T) {
	_, err := Summarize(nil)
	assert.Error(t, err)
}

func TestSummarizeSinglePeriod(t *testing.T) {
	summary, err := Summarize(historyWithBalances(1000, 1050))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Periods)
	assert.InDelta(t, 0.05, summary.MeanReturn, 1e-9)
	assert.InDelta(t, 0.0, summary.ReturnStdDev, 1e-9)
}
