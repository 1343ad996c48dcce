// Package broker wraps the AMQP client with the small surface the
// distributed engine needs: durable run-scoped queues, persistent JSON
// publishing and manually acknowledged consumption.
package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"tradesim/src/datamodels"
	"tradesim/src/utils/errors"
)

type Connection struct {
	conn *amqp.Connection
	log  *slog.Logger
}

// Dial connects to the broker, retrying with exponential backoff so stage
// processes can start before the broker is up.
func Dial(ctx context.Context, url string, log *slog.Logger) (*Connection, error) {
	var conn *amqp.Connection
	operation := func() error {
		var err error
		conn, err = amqp.Dial(url)
		if err != nil {
			log.Warn("broker not reachable yet, retrying", slog.String("error", err.Error()))
			return err
		}
		return nil
	}
	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(2*time.Minute)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, errors.Wrap(err, "dialing broker")
	}
	return &Connection{conn: conn, log: log}, nil
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

// StageQueue is one durable run-scoped queue with its own channel. Channels
// are not safe for concurrent use, so each stage runner opens its own.
type StageQueue struct {
	ch   *amqp.Channel
	name string
}

// DeclareStageQueue opens a channel and declares the durable queue for the
// given stage of the given run. Declaration is idempotent, so every stage
// process declares the queues it touches.
func (c *Connection) DeclareStageQueue(params datamodels.RunParams, stage string) (*StageQueue, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "opening channel")
	}
	name := params.QueuePrefix() + stage
	_, err = ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, errors.Wrapf(err, "declaring queue %s", name)
	}
	return &StageQueue{ch: ch, name: name}, nil
}

func (q *StageQueue) Name() string {
	return q.name
}

func (q *StageQueue) Close() error {
	return q.ch.Close()
}

// PublishJSON publishes the payload as a persistent JSON message, so it
// survives a broker restart alongside the durable queue.
func (q *StageQueue) PublishJSON(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding message")
	}
	err = q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		return errors.Wrapf(err, "publishing to %s", q.name)
	}
	return nil
}

// Consume starts a manually acknowledged consumer on the queue. Callers ack
// each delivery only after fully processing it; unacked messages are
// redelivered after a crash.
func (q *StageQueue) Consume() (<-chan amqp.Delivery, error) {
	deliveries, err := q.ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "consuming from %s", q.name)
	}
	return deliveries, nil
}

// Delete removes the queue. Used to clear a run's queues once its result is
// written so re-running the same ids starts clean.
func (q *StageQueue) Delete() error {
	_, err := q.ch.QueueDelete(q.name, false, false, false)
	if err != nil {
		return errors.Wrapf(err, "deleting queue %s", q.name)
	}
	return nil
}
