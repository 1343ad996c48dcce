package engine

import (
	"context"
	"sync"

	"tradesim/src/utils/errors"
)

// Watermarks tracks how many periods each stage has fully completed. Each
// counter has exactly one writer (its owning stage); gated stages suspend on
// the condition variable instead of polling, and every advance wakes all
// waiters. The invariant 0 ≤ Wc ≤ Wb ≤ Wa ≤ N holds at all times because a
// stage only advances its own counter after its gate held.
type Watermarks struct {
	mu     sync.Mutex
	cond   *sync.Cond
	wa     int
	wb     int
	wc     int
	closed bool
}

func NewWatermarks() *Watermarks {
	w := &Watermarks{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *Watermarks) AdvanceA() {
	w.mu.Lock()
	w.wa++
	w.mu.Unlock()
	w.cond.Broadcast()
}

func (w *Watermarks) AdvanceB() {
	w.mu.Lock()
	w.wb++
	w.mu.Unlock()
	w.cond.Broadcast()
}

func (w *Watermarks) AdvanceC() {
	w.mu.Lock()
	w.wc++
	w.mu.Unlock()
	w.cond.Broadcast()
}

// Snapshot returns a consistent (Wa, Wb, Wc) triple.
func (w *Watermarks) Snapshot() (int, int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wa, w.wb, w.wc
}

// Wait suspends until pred holds for a consistent snapshot, or until the
// board is closed (run cancelled or torn down).
func (w *Watermarks) Wait(ctx context.Context, pred func(wa, wb, wc int) bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for !pred(w.wa, w.wb, w.wc) {
		if w.closed {
			if err := ctx.Err(); err != nil {
				return err
			}
			return errors.New("watermark board closed")
		}
		w.cond.Wait()
	}
	if w.closed && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// Close wakes every waiter and makes further waits fail. Used for
// cancellation and end-of-run teardown.
func (w *Watermarks) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Broadcast()
}
