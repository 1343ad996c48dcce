package results

import (
	"github.com/montanaflynn/stats"

	"tradesim/src/datamodels"
	"tradesim/src/utils/errors"
)

// Summary aggregates a run's stats history into a handful of headline
// numbers.
type Summary struct {
	Periods       int     `json:"periods"`
	FinalBalance  float64 `json:"final_balance"`
	Net           float64 `json:"net"`
	MeanReturn    float64 `json:"mean_return"`
	ReturnStdDev  float64 `json:"return_std_dev"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	TotalBuys     int64   `json:"total_buys"`
	TotalSells    int64   `json:"total_sells"`
}

// Summarize computes per-period balance returns and the maximum peak to
// trough drawdown over the run. Drawdown is expressed as a fraction of the
// peak balance.
func Summarize(history []datamodels.PeriodStats) (*Summary, error) {
	if len(history) == 0 {
		return nil, errors.New("cannot summarize an empty stats history")
	}

	balances := make([]float64, 0, len(history)+1)
	balances = append(balances, history[0].InitialFunds)
	for _, stat := range history {
		balances = append(balances, stat.Balance)
	}

	returns := make([]float64, 0, len(history))
	for i := 1; i < len(balances); i++ {
		if balances[i-1] != 0 {
			returns = append(returns, balances[i]/balances[i-1]-1)
		}
	}

	meanReturn, err := stats.Mean(returns)
	if err != nil {
		return nil, errors.Wrap(err, "computing mean return")
	}
	stdDev := 0.0
	if len(returns) > 1 {
		stdDev, err = stats.StandardDeviationSample(returns)
		if err != nil {
			return nil, errors.Wrap(err, "computing return deviation")
		}
	}

	peak := balances[0]
	maxDrawdown := 0.0
	for _, balance := range balances[1:] {
		if balance > peak {
			peak = balance
		} else if peak > 0 {
			drawdown := (peak - balance) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	last := history[len(history)-1]
	return &Summary{
		Periods:      len(history),
		FinalBalance: last.Balance,
		Net:          last.Net,
		MeanReturn:   meanReturn,
		ReturnStdDev: stdDev,
		MaxDrawdown:  maxDrawdown,
		TotalBuys:    last.BuyCount,
		TotalSells:   last.SellCount,
	}, nil
}
