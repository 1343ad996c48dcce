package database

import (
	"encoding/json"
	"time"

	"tradesim/src/datamodels"
	"tradesim/src/utils/errors"
)

var DbTables = []interface{}{
	&PeriodStatRecord{},
}

// PeriodStatRecord is one settled period of one run. Shares is stored as a
// JSON blob; the queryable columns are the scalar ones.
type PeriodStatRecord struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     string    `gorm:"index:idx_run_period,unique"`
	StrategyID string    `gorm:"index:idx_run_period,unique"`
	BacktestID string    `gorm:"index:idx_run_period,unique"`
	Period     int       `gorm:"index:idx_run_period,unique"`
	Funds      float64
	Balance    float64
	Net        float64
	BuyCount   int64
	SellCount  int64
	Shares     []byte    `gorm:"type:jsonb"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func NewPeriodStatRecord(params datamodels.RunParams, stat datamodels.PeriodStats) (PeriodStatRecord, error) {
	shares, err := json.Marshal(stat.Shares)
	if err != nil {
		return PeriodStatRecord{}, errors.Wrap(err, "encoding shares")
	}
	return PeriodStatRecord{
		UserID:     params.UserID,
		StrategyID: params.StrategyID,
		BacktestID: params.BacktestID,
		Period:     stat.Period,
		Funds:      stat.Funds,
		Balance:    stat.Balance,
		Net:        stat.Net,
		BuyCount:   stat.BuyCount,
		SellCount:  stat.SellCount,
		Shares:     shares,
	}, nil
}
