package results

import (
	"context"

	"tradesim/src/database"
	"tradesim/src/datamodels"
)

type DBResultsWriter struct {
	db database.TradesimDatabase
}

func NewDBResultsWriter(db database.TradesimDatabase) *DBResultsWriter {
	return &DBResultsWriter{db: db}
}

func (w *DBResultsWriter) Write(ctx context.Context, params datamodels.RunParams, stats []datamodels.PeriodStats) error {
	return w.db.WritePeriodStats(ctx, params, stats)
}

func (w *DBResultsWriter) Close() error {
	return nil
}
