package engine

import (
	"context"
	"log/slog"
	"time"
)

// SequentialEngine runs the three stages strictly in order within a single
// goroutine. It is the reference substrate: the concurrent engines must
// produce byte-identical results to it for the same parameters and seed.
type SequentialEngine struct {
	pipeline *Pipeline
}

func NewSequentialEngine(pipeline *Pipeline) *SequentialEngine {
	return &SequentialEngine{pipeline: pipeline}
}

func (e *SequentialEngine) Run(ctx context.Context) (*RunResult, error) {
	pl := e.pipeline
	start := time.Now()
	st := NewRunState(pl.Params, pl.Initial)
	for p := 0; p < pl.Params.Periods; p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		periodStart := time.Now()
		pl.runSelection(st, p)
		pl.runStrategy(st, p)
		if err := pl.runSettlement(ctx, st, p); err != nil {
			return nil, err
		}
		pl.Log.Debug("period settled",
			slog.Int("period", p),
			slog.Float64("funds", st.Ledger.Funds),
			slog.Duration("took", time.Since(periodStart)))
	}
	return st.Result(time.Since(start)), nil
}
