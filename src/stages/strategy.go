package stages

import (
	"tradesim/src/datamodels"
	"tradesim/src/utils/symbols"
)

// PriceEvolver advances one symbol's price and volume in a frame and
// returns the old price, the new price and their difference.
// marketdata.Generator is the production implementation.
type PriceEvolver interface {
	EvolveSymbol(frame *datamodels.Frame, period, symbolIndex int, symbol string) (oldPrice, newPrice, delta float64)
}

// StrategyStage evaluates the price and volume change of every symbol in a
// period's universe and emits trade signals. It forecasts funds usage in a
// local balance buffer that is never written back to the ledger; the
// settlement stage owns the authoritative funds value.
type StrategyStage struct {
	evolver         PriceEvolver
	provider        *symbols.Provider
	sizing          SizingPolicy
	transactionCost float64
}

func NewStrategyStage(evolver PriceEvolver, provider *symbols.Provider, sizing SizingPolicy, transactionCost float64) *StrategyStage {
	return &StrategyStage{
		evolver:         evolver,
		provider:        provider,
		sizing:          sizing,
		transactionCost: transactionCost,
	}
}

// Evaluate runs the strategy pass for one period. It mutates the frame
// entries of the evaluated symbols and returns the ordered signal list plus
// the period's buy and sell counts. holdings and funds are read-only inputs
// taken from the last settled ledger state.
func (s *StrategyStage) Evaluate(period int, universe []string, frame *datamodels.Frame, holdings map[string]int64, funds float64) ([]datamodels.TradeSignal, int64, int64) {
	signals := make([]datamodels.TradeSignal, 0, len(universe))
	balanceBuffer := funds
	var buyCount, sellCount int64

	for _, symbol := range universe {
		oldPrice, newPrice, _ := s.evolver.EvolveSymbol(frame, period, s.provider.Index(symbol), symbol)
		holding := holdings[symbol]
		volume := frame.Volumes[symbol]

		switch {
		case newPrice < oldPrice:
			if holding <= 0 {
				continue
			}
			quantity := s.sizing.SellQuantity(holding)
			if quantity > 0 && float64(quantity)*newPrice >= s.transactionCost {
				signals = append(signals, datamodels.NewSellSignal(symbol, quantity))
				balanceBuffer += float64(quantity)*newPrice - s.transactionCost
				sellCount++
			}
		case newPrice > oldPrice:
			maxByVolume := volume / 10
			maxByCapital := int64((balanceBuffer - s.transactionCost) / newPrice)
			quantity := s.sizing.BuyQuantity(maxByVolume, maxByCapital)
			if quantity > 0 {
				signals = append(signals, datamodels.NewBuySignal(symbol, quantity))
				balanceBuffer -= float64(quantity)*newPrice + s.transactionCost
				buyCount++
			}
		}
		// unchanged price emits nothing
	}

	return signals, buyCount, sellCount
}
