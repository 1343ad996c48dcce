package results

import (
	"context"
	"log/slog"
	"sync"

	"tradesim/src/datamodels"
)

// MultiResultsWriter writes results to multiple destinations
type MultiResultsWriter struct {
	writers []ResultsWriter
	mu      sync.RWMutex
}

func NewMultiResultsWriter(writers ...ResultsWriter) *MultiResultsWriter {
	return &MultiResultsWriter{
		writers: writers,
	}
}

func (w *MultiResultsWriter) AddWriter(writer ResultsWriter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writers = append(w.writers, writer)
}

func (w *MultiResultsWriter) Write(ctx context.Context, params datamodels.RunParams, stats []datamodels.PeriodStats) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var lastErr error
	for _, writer := range w.writers {
		if err := writer.Write(ctx, params, stats); err != nil {
			lastErr = err
			slog.Error("Failed to write results",
				"writer", writer,
				"error", err)
		}
	}
	return lastErr
}

func (w *MultiResultsWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var lastErr error
	for _, writer := range w.writers {
		if err := writer.Close(); err != nil {
			lastErr = err
			slog.Error("Failed to close results writer",
				"writer", writer,
				"error", err)
		}
	}
	return lastErr
}
