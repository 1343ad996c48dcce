package results

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"tradesim/src/datamodels"
	"tradesim/src/utils/errors"
)

// FileResultsWriter writes each run's stats history as one JSON array at
// <baseDir>/<user>-<strategy>-<backtest>. Re-running a backtest overwrites
// its previous result file.
type FileResultsWriter struct {
	baseDir string
}

func NewFileResultsWriter(baseDir string) (*FileResultsWriter, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating results directory")
	}
	return &FileResultsWriter{baseDir: baseDir}, nil
}

func (w *FileResultsWriter) Write(ctx context.Context, params datamodels.RunParams, stats []datamodels.PeriodStats) error {
	body, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "encoding stats")
	}
	filename := filepath.Join(w.baseDir, params.RunKey())
	if err := os.WriteFile(filename, body, 0644); err != nil {
		return errors.Wrapf(err, "writing result file %s", filename)
	}
	return nil
}

func (w *FileResultsWriter) Close() error {
	return nil
}

// ReadRunFile loads a previously written result file.
func ReadRunFile(baseDir string, params datamodels.RunParams) ([]datamodels.PeriodStats, error) {
	filename := filepath.Join(baseDir, params.RunKey())
	body, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading result file %s", filename)
	}
	var stats []datamodels.PeriodStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, errors.Wrapf(err, "decoding result file %s", filename)
	}
	return stats, nil
}
