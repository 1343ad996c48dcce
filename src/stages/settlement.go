package stages

import (
	"log/slog"
	"sort"

	"tradesim/src/datamodels"
	"tradesim/src/ledger"
)

// SettlementStage clamps a period's signals to the position-size limit,
// applies them to the ledger and computes the statistics snapshot. It is the
// only writer of the ledger.
type SettlementStage struct {
	transactionCost    float64
	maxStockPercentage float64
	initialFunds       float64
}

func NewSettlementStage(transactionCost, maxStockPercentage, initialFunds float64) *SettlementStage {
	return &SettlementStage{
		transactionCost:    transactionCost,
		maxStockPercentage: maxStockPercentage,
		initialFunds:       initialFunds,
	}
}

// Rebalance enforces the per-symbol position cap against the pending
// signals. Over-concentrated positions shed pending buys and gain an
// auto-generated sell sized to bring the position exactly to the cap; the
// auto-sell's proceeds (minus the transaction cost) are booked into funds
// here, so ApplyOrders must not book them again. Under-cap positions with a
// buy that would overshoot get the buy shrunk; a shrink that would invert
// the sign is an inconsistency and drops the signal. Returns the surviving
// signal list.
func (s *SettlementStage) Rebalance(prices map[string]float64, led *ledger.Ledger, signals []datamodels.TradeSignal) []datamodels.TradeSignal {
	balance := led.Balance(prices)
	if balance <= 0 {
		return signals
	}

	pending := make([]datamodels.TradeSignal, len(signals))
	copy(pending, signals)
	removed := make(map[int]bool)
	var autoSells []datamodels.TradeSignal

	findSignal := func(symbol string) int {
		for i := range pending {
			if !removed[i] && pending[i].Symbol == symbol {
				return i
			}
		}
		return -1
	}

	// Ledger map iteration order must not leak into the signal list.
	held := make([]string, 0, len(led.Shares))
	for symbol := range led.Shares {
		held = append(held, symbol)
	}
	sort.Strings(held)

	for _, symbol := range held {
		holding := led.Shares[symbol]
		price := prices[symbol]
		idx := findSignal(symbol)
		stockPct := price * float64(holding) / balance

		if stockPct > s.maxStockPercentage {
			postQuantity := holding
			if idx >= 0 {
				sig := pending[idx]
				switch sig.Direction {
				case datamodels.SignalDirectionSell:
					postQuantity -= sig.Quantity
				case datamodels.SignalDirectionBuy:
					postPct := price * float64(holding+sig.Quantity) / balance
					if postPct > s.maxStockPercentage {
						removed[idx] = true
					}
				}
			}
			postPct := price * float64(postQuantity) / balance
			if postPct > s.maxStockPercentage {
				sellQuantity := int64((postPct - s.maxStockPercentage) * balance / price)
				if sellQuantity > 0 {
					auto := datamodels.NewSellSignal(symbol, sellQuantity)
					auto.FromRebalance = true
					autoSells = append(autoSells, auto)
					led.Funds += float64(sellQuantity)*price - s.transactionCost
				}
			}
		} else if stockPct < s.maxStockPercentage {
			if idx < 0 || pending[idx].Direction != datamodels.SignalDirectionBuy {
				continue
			}
			postQuantity := holding + pending[idx].Quantity
			postPct := price * float64(postQuantity) / balance
			if postPct <= s.maxStockPercentage {
				continue
			}
			reduce := int64((postPct - s.maxStockPercentage) * balance / price)
			switch {
			case pending[idx].Quantity > reduce:
				pending[idx].Quantity -= reduce
			case pending[idx].Quantity < reduce:
				slog.Error("Rebalance would shrink buy below zero, dropping signal",
					"symbol", symbol,
					"quantity", pending[idx].Quantity,
					"reduce", reduce)
				removed[idx] = true
			default:
				removed[idx] = true
			}
		}
	}

	kept := make([]datamodels.TradeSignal, 0, len(pending)+len(autoSells))
	for i := range pending {
		if !removed[i] {
			kept = append(kept, pending[i])
		}
	}
	return append(kept, autoSells...)
}

// ApplyOrders executes the surviving signals against the ledger: share
// counts move for every signal, funds move only for strategy-originated
// signals, and one aggregate fee of transactionCost per strategy-originated
// signal is charged at the end. Rebalance-generated sells were already
// booked into funds by Rebalance.
func (s *SettlementStage) ApplyOrders(prices map[string]float64, led *ledger.Ledger, signals []datamodels.TradeSignal) {
	feeCount := 0
	for _, sig := range signals {
		if _, ok := led.Shares[sig.Symbol]; !ok {
			led.Shares[sig.Symbol] = 0
		}
		led.Shares[sig.Symbol] += int64(sig.Direction) * sig.Quantity
		if sig.FromRebalance {
			continue
		}
		led.Funds -= float64(sig.Direction) * float64(sig.Quantity) * prices[sig.Symbol]
		feeCount++
	}
	led.Funds -= s.transactionCost * float64(feeCount)
}

// Stats computes the period's statistics snapshot from the settled ledger.
// On the final period the snapshot additionally carries the full per-period
// price history restricted to the symbols held in each period, so external
// readers can reconstruct balances without the frames.
func (s *SettlementStage) Stats(period int, prices map[string]float64, led *ledger.Ledger, finalPeriod bool, priceHistory []map[string]float64, sharesHistory []map[string]int64) datamodels.PeriodStats {
	balance := led.Balance(prices)
	stats := datamodels.PeriodStats{
		Period:       period,
		InitialFunds: s.initialFunds,
		Funds:        led.Funds,
		Shares:       led.SharesCopy(),
		Balance:      balance,
		Net:          balance - s.initialFunds,
		BuyCount:     led.BuyCount,
		SellCount:    led.SellCount,
		Prices:       []map[string]float64{},
	}
	if finalPeriod {
		stats.Prices = make([]map[string]float64, len(priceHistory))
		for i := range priceHistory {
			heldPrices := make(map[string]float64, len(sharesHistory[i]))
			for symbol := range sharesHistory[i] {
				heldPrices[symbol] = priceHistory[i][symbol]
			}
			stats.Prices[i] = heldPrices
		}
	}
	return stats
}
