// Package results persists and publishes the per-period statistics of a
// finished run: a JSON result file, optionally a database table and a
// websocket feed, plus summary statistics and a balance plot.
package results

import (
	"context"
	"log/slog"

	"tradesim/src/database"
	"tradesim/src/datamodels"
)

// ResultsWriter sinks the full stats history of one run.
type ResultsWriter interface {
	Write(ctx context.Context, params datamodels.RunParams, stats []datamodels.PeriodStats) error
	// Close cleans up any resources
	Close() error
}

func BuildResultsWriter(config *datamodels.ResultsConfig, db database.TradesimDatabase) (ResultsWriter, error) {
	if config == nil {
		slog.Warn("ResultsConfig is nil, skipping results writer")
		return nil, nil
	}
	writers := []ResultsWriter{}
	fileWriter, err := NewFileResultsWriter(config.BaseDir)
	if err != nil {
		return nil, err
	}
	writers = append(writers, fileWriter)
	if config.DbWriter && db != nil {
		writers = append(writers, NewDBResultsWriter(db))
	}
	if config.WsWriter {
		wsWriter, err := NewWebSocketResultsWriter(config.WsPort)
		if err != nil {
			return nil, err
		}
		writers = append(writers, wsWriter)
	}
	return NewMultiResultsWriter(writers...), nil
}
