package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// SharedMemEngine runs the three stages as goroutines over one shared
// RunState, coordinated by the watermark board. Selection runs arbitrarily
// far ahead; strategy and settlement advance in lockstep at most one period
// apart. A stage waiting on its gate suspends on the board's condition
// variable rather than polling.
type SharedMemEngine struct {
	pipeline *Pipeline
}

func NewSharedMemEngine(pipeline *Pipeline) *SharedMemEngine {
	return &SharedMemEngine{pipeline: pipeline}
}

func (e *SharedMemEngine) Run(ctx context.Context) (*RunResult, error) {
	pl := e.pipeline
	start := time.Now()
	st := NewRunState(pl.Params, pl.Initial)
	board := NewWatermarks()
	defer board.Close()

	group, ctx := errgroup.WithContext(ctx)

	// Wake any gated stage when the run is cancelled or a sibling fails.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			board.Close()
		case <-done:
		}
	}()

	group.Go(func() error {
		for p := 0; p < pl.Params.Periods; p++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			pl.runSelection(st, p)
			board.AdvanceA()
		}
		return nil
	})

	group.Go(func() error {
		for p := 0; p < pl.Params.Periods; p++ {
			if err := board.Wait(ctx, func(wa, wb, wc int) bool {
				return wa > p && wc == p
			}); err != nil {
				return err
			}
			pl.runStrategy(st, p)
			board.AdvanceB()
		}
		return nil
	})

	group.Go(func() error {
		for p := 0; p < pl.Params.Periods; p++ {
			if err := board.Wait(ctx, func(wa, wb, wc int) bool {
				return wb > p
			}); err != nil {
				return err
			}
			if err := pl.runSettlement(ctx, st, p); err != nil {
				return err
			}
			board.AdvanceC()
			pl.Log.Debug("period settled",
				slog.Int("period", p),
				slog.Float64("funds", st.Ledger.Funds))
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return st.Result(time.Since(start)), nil
}
