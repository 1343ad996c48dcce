package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/src/datamodels"
	"tradesim/src/ledger"
)

func TestRebalanceAutoSellsOverCapPosition(t *testing.T) {
	settlement := NewSettlementStage(6, 0.25, 1024)
	led := ledger.New(0)
	led.Shares["A"] = 512
	prices := map[string]float64{"A": 2} // balance 1024, A is 100% of it

	out := settlement.Rebalance(prices, led, nil)

	require.Len(t, out, 1)
	auto := out[0]
	assert.Equal(t, datamodels.SignalDirectionSell, auto.Direction)
	assert.Equal(t, "A", auto.Symbol)
	assert.Equal(t, int64(384), auto.Quantity) // down to 25% of 1024
	assert.True(t, auto.FromRebalance)
	// Proceeds minus the fee are booked immediately.
	assert.InDelta(t, 384*2-6, led.Funds, 1e-9)
}

func TestRebalanceDropsBuyIntoOverCapPosition(t *testing.T) {
	settlement := NewSettlementStage(6, 0.25, 1024)
	led := ledger.New(0)
	led.Shares["A"] = 512
	prices := map[string]float64{"A": 2}
	pending := []datamodels.TradeSignal{datamodels.NewBuySignal("A", 10)}

	out := settlement.Rebalance(prices, led, pending)

	require.Len(t, out, 1)
	assert.True(t, out[0].FromRebalance)
	assert.Equal(t, int64(384), out[0].Quantity)
}

func TestRebalanceCreditsPendingSellAgainstAutoSell(t *testing.T) {
	settlement := NewSettlementStage(6, 0.25, 1024)
	led := ledger.New(0)
	led.Shares["A"] = 512
	prices := map[string]float64{"A": 2}
	pending := []datamodels.TradeSignal{datamodels.NewSellSignal("A", 128)}

	out := settlement.Rebalance(prices, led, pending)

	// The strategy sell already sheds 128, the auto-sell covers the rest.
	require.Len(t, out, 2)
	assert.Equal(t, datamodels.NewSellSignal("A", 128), out[0])
	assert.True(t, out[1].FromRebalance)
	assert.Equal(t, int64(256), out[1].Quantity)
	assert.InDelta(t, 256*2-6, led.Funds, 1e-9)
}

func TestRebalanceShrinksOvershootingBuy(t *testing.T) {
	settlement := NewSettlementStage(6, 0.25, 1024)
	led := ledger.New(896)
	led.Shares["A"] = 64
	prices := map[string]float64{"A": 2} // balance 1024, A is 12.5% of it
	pending := []datamodels.TradeSignal{datamodels.NewBuySignal("A", 256)}

	out := settlement.Rebalance(prices, led, pending)

	require.Len(t, out, 1)
	assert.Equal(t, datamodels.SignalDirectionBuy, out[0].Direction)
	assert.Equal(t, int64(64), out[0].Quantity) // 320 post shares exceed the cap by 192
	assert.InDelta(t, 896, led.Funds, 1e-9)     // shrinking books nothing
}

func TestRebalanceLeavesCompliantSignalsAlone(t *testing.T) {
	settlement := NewSettlementStage(6, 0.25, 1024)
	led := ledger.New(896)
	led.Shares["A"] = 64
	prices := map[string]float64{"A": 2}
	pending := []datamodels.TradeSignal{datamodels.NewBuySignal("A", 32)}

	out := settlement.Rebalance(prices, led, pending)
	assert.Equal(t, pending, out)
}

func TestRebalanceSkipsNonPositiveBalance(t *testing.T) {
	settlement := NewSettlementStage(6, 0.2, 1000)
	led := ledger.New(0)
	pending := []datamodels.TradeSignal{datamodels.NewBuySignal("A", 5)}

	out := settlement.Rebalance(map[string]float64{}, led, pending)
	assert.Equal(t, pending, out)
}

func TestApplyOrdersMovesSharesAndFunds(t *testing.T) {
	settlement := NewSettlementStage(6, 0.2, 1000)
	led := ledger.New(1000)
	led.Shares["B"] = 10
	prices := map[string]float64{"A": 11, "B": 22}

	signals := []datamodels.TradeSignal{
		datamodels.NewBuySignal("A", 10),
		datamodels.NewSellSignal("B", 5),
	}
	settlement.ApplyOrders(prices, led, signals)

	assert.Equal(t, int64(10), led.Shares["A"])
	assert.Equal(t, int64(5), led.Shares["B"])
	// -110 for the buy, +110 for the sell, two fees of 6.
	assert.InDelta(t, 1000-110+110-12, led.Funds, 1e-9)
}

func TestApplyOrdersSkipsFundsForRebalanceSells(t *testing.T) {
	settlement := NewSettlementStage(6, 0.2, 1000)
	led := ledger.New(500)
	led.Shares["A"] = 100
	prices := map[string]float64{"A": 10}

	auto := datamodels.NewSellSignal("A", 80)
	auto.FromRebalance = true
	settlement.ApplyOrders(prices, led, []datamodels.TradeSignal{auto})

	// Shares move, funds and fee were already booked at rebalance time.
	assert.Equal(t, int64(20), led.Shares["A"])
	assert.InDelta(t, 500, led.Funds, 1e-9)
}

func TestApplyOrdersInitializesUnseenSymbol(t *testing.T) {
	settlement := NewSettlementStage(6, 0.2, 1000)
	led := ledger.New(1000)
	settlement.ApplyOrders(map[string]float64{"A": 10},
		led, []datamodels.TradeSignal{datamodels.NewBuySignal("A", 3)})

	quantity, ok := led.Shares["A"]
	require.True(t, ok)
	assert.Equal(t, int64(3), quantity)
}

func TestStatsSnapshotsLedger(t *testing.T) {
	settlement := NewSettlementStage(6, 0.2, 1000)
	led := ledger.New(700)
	led.Shares["A"] = 10
	led.BuyCount = 4
	led.SellCount = 1
	prices := map[string]float64{"A": 15}

	stats := settlement.Stats(3, prices, led, false, nil, nil)

	assert.Equal(t, 3, stats.Period)
	assert.InDelta(t, 1000, stats.InitialFunds, 1e-9)
	assert.InDelta(t, 700, stats.Funds, 1e-9)
	assert.InDelta(t, 850, stats.Balance, 1e-9)
	assert.InDelta(t, -150, stats.Net, 1e-9)
	assert.Equal(t, int64(4), stats.BuyCount)
	assert.Equal(t, int64(1), stats.SellCount)
	assert.Empty(t, stats.Prices)

	// The snapshot must not alias the ledger's share map.
	stats.Shares["A"] = 0
	assert.Equal(t, int64(10), led.Shares["A"])
}

func TestStatsFinalPeriodFiltersPriceHistoryToHeldSymbols(t *testing.T) {
	settlement := NewSettlementStage(6, 0.2, 1000)
	led := ledger.New(700)
	led.Shares["A"] = 10

	priceHistory := []map[string]float64{
		{"A": 10, "B": 20},
		{"A": 11, "B": 21},
	}
	sharesHistory := []map[string]int64{
		{"A": 5},
		{"A": 10, "B": 0},
	}

	stats := settlement.Stats(1, priceHistory[1], led, true, priceHistory, sharesHistory)

	require.Len(t, stats.Prices, 2)
	assert.Equal(t, map[string]float64{"A": 10}, stats.Prices[0])
	assert.Equal(t, map[string]float64{"A": 11, "B": 21}, stats.Prices[1])
}
