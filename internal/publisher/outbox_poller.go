// Package publisher moves order events from the outbox to Kafka.
package publisher

import (
	"context"
	"time"

	"github.com/mlionhart/hartmart/internal/metrics"
	"github.com/mlionhart/hartmart/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	OrdersTopic         = "orders"
	ReconciliationTopic = "orders-reconciliation"

	batchSize = 100
)

// MessageWriter is the part of *kafka.Writer the publishers use.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

type OutboxPoller struct {
	tick    time.Duration
	timeout time.Duration
	outbox  orders.Outbox
	writer  MessageWriter
	metrics *metrics.Registry
	log     *zap.Logger
}

// NewOutboxPoller builds a poller; reg and log may be nil.
func NewOutboxPoller(outbox orders.Outbox, writer MessageWriter, reg *metrics.Registry, log *zap.Logger) *OutboxPoller {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxPoller{
		tick:    time.Second,
		timeout: 5 * time.Second,
		outbox:  outbox,
		writer:  writer,
		metrics: reg,
		log:     log,
	}
}

// Run publishes pending events every tick until ctx is done.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.PublishPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PublishPending sends one batch of unpublished events and returns how many
// were published. Failed events stay in the outbox for the next pass.
func (p *OutboxPoller) PublishPending(ctx context.Context) int {
	events, err := p.outbox.GetUnpublishedEvents(ctx, batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.Warn("failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("aggregate_id", event.AggregateID),
				zap.Error(err))
			if p.metrics != nil {
				p.metrics.OutboxFailures.Inc()
			}
			continue
		}

		if err := p.outbox.MarkEventPublished(ctx, event.ID); err != nil {
			// the event goes out again next pass; consumers dedupe on order id
			p.log.Error("failed to mark outbox event as published",
				zap.Int64("event_id", event.ID),
				zap.Error(err))
			continue
		}
		if p.metrics != nil {
			p.metrics.OutboxPublished.Inc()
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event orders.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
