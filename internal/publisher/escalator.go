package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mlionhart/hartmart/internal/domain"
	"github.com/mlionhart/hartmart/internal/metrics"
	"github.com/mlionhart/hartmart/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const EventReconciliationRequired = "order.reconciliation_required"

type reconciliationEvent struct {
	Order  domain.Order `json:"order"`
	Cause  string       `json:"cause"`
	Raised time.Time    `json:"raised_at"`
}

// Escalator reports paid orders that could not be saved, both to the log and
// to the reconciliation topic.
type Escalator struct {
	writer  MessageWriter
	metrics *metrics.Registry
	log     *zap.Logger
	now     func() time.Time
}

func NewEscalator(writer MessageWriter, reg *metrics.Registry, log *zap.Logger) *Escalator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Escalator{writer: writer, metrics: reg, log: log, now: time.Now}
}

func (e *Escalator) Escalate(ctx context.Context, order domain.Order, cause error) {
	log := logger.WithContext(ctx, e.log).With(
		zap.String("order_id", order.ID.String()),
		zap.String("payment_session_id", order.PaymentSessionID),
		zap.String("buyer", order.BuyerEmail),
		zap.Int64("total_cents", order.TotalCents))
	log.Error("paid order could not be saved, manual reconciliation required", zap.Error(cause))

	if e.metrics != nil {
		e.metrics.Reconciliations.Inc()
	}

	payload, err := json.Marshal(reconciliationEvent{Order: order, Cause: cause.Error(), Raised: e.now().UTC()})
	if err != nil {
		log.Error("failed to encode reconciliation event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err = e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(order.ID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventReconciliationRequired)},
		},
	})
	if err != nil {
		log.Error("failed to publish reconciliation event", zap.Error(err))
	}
}
