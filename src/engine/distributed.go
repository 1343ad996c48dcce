package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"tradesim/src/broker"
	"tradesim/src/datamodels"
	"tradesim/src/utils/errors"
)

// DistributedEngine runs the three stages as independent broker clients
// wired through durable run-scoped queues. Each stage runner opens its own
// connection and can live in its own process; Run hosts all three in one
// process for convenience. Messages are persistent and acknowledged only
// after processing, so a crashed stage resumes from its queue.
type DistributedEngine struct {
	pipeline *Pipeline
	url      string
}

func NewDistributedEngine(pipeline *Pipeline, url string) *DistributedEngine {
	return &DistributedEngine{pipeline: pipeline, url: url}
}

func (e *DistributedEngine) Run(ctx context.Context) (*RunResult, error) {
	group, ctx := errgroup.WithContext(ctx)
	var result *RunResult
	group.Go(func() error {
		return e.RunSelectionStage(ctx)
	})
	group.Go(func() error {
		return e.RunStrategyStage(ctx)
	})
	group.Go(func() error {
		r, err := e.RunSettlementStage(ctx)
		result = r
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	e.cleanup(ctx)
	return result, nil
}

// cleanup drops the run's queues after a successful run so re-running the
// same ids starts clean. Best effort; leftover queues only cost redelivered
// skips on the next run.
func (e *DistributedEngine) cleanup(ctx context.Context) {
	pl := e.pipeline
	conn, err := broker.Dial(ctx, e.url, pl.Log)
	if err != nil {
		pl.Log.Warn("queue cleanup skipped", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	for _, stage := range []string{datamodels.StageAName, datamodels.StageBName, datamodels.StageCName} {
		queue, err := conn.DeclareStageQueue(pl.Params, stage)
		if err != nil {
			continue
		}
		if err := queue.Delete(); err != nil {
			pl.Log.Warn("queue delete failed", slog.String("stage", stage), slog.String("error", err.Error()))
		}
		queue.Close()
	}
}

// RunSelectionStage publishes one universe announcement per period. It has
// no gate of its own; queue durability absorbs however far ahead it runs.
func (e *DistributedEngine) RunSelectionStage(ctx context.Context) error {
	pl := e.pipeline
	conn, err := broker.Dial(ctx, e.url, pl.Log)
	if err != nil {
		return err
	}
	defer conn.Close()

	queue, err := conn.DeclareStageQueue(pl.Params, datamodels.StageAName)
	if err != nil {
		return err
	}
	defer queue.Close()

	for p := 0; p < pl.Params.Periods; p++ {
		universe := pl.Selector(pl.Provider.List())
		msg := datamodels.StageAMessage{Time: p, Universe: universe}
		if err := queue.PublishJSON(ctx, msg); err != nil {
			return err
		}
	}
	pl.Log.Info("selection stage done", slog.Int("periods", pl.Params.Periods))
	return nil
}

// RunStrategyStage consumes universe announcements and settlement
// confirmations, evaluates the strategy one period at a time and publishes
// the signals. It owns the market frame chain: each period's frame starts as
// a copy of the one it evolved for the previous period, while funds and
// holdings are carried in from the settlement confirmations.
func (e *DistributedEngine) RunStrategyStage(ctx context.Context) error {
	pl := e.pipeline
	conn, err := broker.Dial(ctx, e.url, pl.Log)
	if err != nil {
		return err
	}
	defer conn.Close()

	queueA, err := conn.DeclareStageQueue(pl.Params, datamodels.StageAName)
	if err != nil {
		return err
	}
	defer queueA.Close()
	queueB, err := conn.DeclareStageQueue(pl.Params, datamodels.StageBName)
	if err != nil {
		return err
	}
	defer queueB.Close()
	queueC, err := conn.DeclareStageQueue(pl.Params, datamodels.StageCName)
	if err != nil {
		return err
	}
	defer queueC.Close()

	universeDeliveries, err := queueA.Consume()
	if err != nil {
		return err
	}
	settleDeliveries, err := queueC.Consume()
	if err != nil {
		return err
	}

	frame := pl.Initial.Clone()
	funds := pl.Params.InitialFunds
	shares := make(map[string]int64)
	universes := make(map[int][]string)
	pending := make(map[int]amqp.Delivery)
	settled := -1
	next := 0

	for next < pl.Params.Periods {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-universeDeliveries:
			if !ok {
				return errors.New("universe consumer closed")
			}
			var msg datamodels.StageAMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				return errors.Wrap(err, "decoding universe message")
			}
			if msg.Time < next {
				// Redelivery of an already-evaluated period.
				d.Ack(false)
				continue
			}
			universes[msg.Time] = msg.Universe
			pending[msg.Time] = d
		case d, ok := <-settleDeliveries:
			if !ok {
				return errors.New("settlement consumer closed")
			}
			var msg datamodels.StageCMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				return errors.Wrap(err, "decoding settlement message")
			}
			if msg.Time > settled {
				settled = msg.Time
				funds = msg.Funds
				shares = make(map[string]int64, len(msg.Shares))
				for k, v := range msg.Shares {
					shares[k] = v
				}
			}
			d.Ack(false)
		}

		// The strategy gate: period next is ready once its universe arrived
		// and the previous period is settled.
		for next < pl.Params.Periods && settled == next-1 && universes[next] != nil {
			working := frame.Clone()
			signals, buys, sells := pl.Strategy.Evaluate(next, universes[next], working, shares, funds)
			msg := datamodels.StageBMessage{
				Time:         next,
				TradeSignals: signals,
				Prices:       working.Prices,
				Volumes:      working.Volumes,
				Funds:        funds,
				Shares:       shares,
				BuyCount:     buys,
				SellCount:    sells,
			}
			if err := queueB.PublishJSON(ctx, msg); err != nil {
				return err
			}
			if d, ok := pending[next]; ok {
				d.Ack(false)
				delete(pending, next)
			}
			delete(universes, next)
			frame = working
			next++
		}
	}
	pl.Log.Info("strategy stage done", slog.Int("periods", pl.Params.Periods))
	return nil
}

// RunSettlementStage consumes signal batches in period order, settles each
// against the run ledger and confirms with a settlement message. Settling is
// idempotent: a redelivered batch for an already-settled period is
// acknowledged and skipped, so crash-and-resume never double-applies orders.
func (e *DistributedEngine) RunSettlementStage(ctx context.Context) (*RunResult, error) {
	pl := e.pipeline
	conn, err := broker.Dial(ctx, e.url, pl.Log)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	queueB, err := conn.DeclareStageQueue(pl.Params, datamodels.StageBName)
	if err != nil {
		return nil, err
	}
	defer queueB.Close()
	queueC, err := conn.DeclareStageQueue(pl.Params, datamodels.StageCName)
	if err != nil {
		return nil, err
	}
	defer queueC.Close()

	signalDeliveries, err := queueB.Consume()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	st := NewRunState(pl.Params, pl.Initial)
	settled := -1

	for settled < pl.Params.Periods-1 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-signalDeliveries:
			if !ok {
				return nil, errors.New("signal consumer closed")
			}
			var msg datamodels.StageBMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				return nil, errors.Wrap(err, "decoding signal message")
			}
			if msg.Time <= settled {
				d.Ack(false)
				continue
			}
			if msg.Time != settled+1 {
				return nil, errors.Newf("signal batch for period %d arrived before period %d settled", msg.Time, settled+1)
			}
			p := msg.Time
			st.Frames[p+1] = &datamodels.Frame{Prices: msg.Prices, Volumes: msg.Volumes}
			st.Signals[p] = msg.TradeSignals
			st.BuyCounts[p] = msg.BuyCount
			st.SellCounts[p] = msg.SellCount
			if err := pl.runSettlement(ctx, st, p); err != nil {
				return nil, err
			}
			confirm := datamodels.StageCMessage{
				Time:      p,
				Prices:    msg.Prices,
				Volumes:   msg.Volumes,
				Funds:     st.Ledger.Funds,
				Shares:    st.Ledger.SharesCopy(),
				BuyCount:  st.Ledger.BuyCount,
				SellCount: st.Ledger.SellCount,
			}
			if err := queueC.PublishJSON(ctx, confirm); err != nil {
				return nil, err
			}
			d.Ack(false)
			settled = p
			pl.Log.Debug("period settled",
				slog.Int("period", p),
				slog.Float64("funds", st.Ledger.Funds))
		}
	}
	pl.Log.Info("settlement stage done", slog.Int("periods", pl.Params.Periods))
	return st.Result(time.Since(start)), nil
}
