package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mlionhart/hartmart/internal/domain"
	"github.com/mlionhart/hartmart/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEscalator_PublishesAndLogs(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	writer := &MockWriter{}
	reg := metrics.NewRegistry()
	e := NewEscalator(writer, reg, zap.New(core))
	order := domain.Order{ID: uuid.New(), PaymentSessionID: "cs_paid", BuyerEmail: "a@example.com", TotalCents: 500}

	e.Escalate(context.Background(), order, errors.New("connection reset"))

	require.Len(t, writer.Messages, 1)
	msg := writer.Messages[0]
	assert.Equal(t, order.ID.String(), string(msg.Key))
	assert.Equal(t, EventReconciliationRequired, string(msg.Headers[0].Value))

	var event reconciliationEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "cs_paid", event.Order.PaymentSessionID)
	assert.Equal(t, "connection reset", event.Cause)

	entries := logs.FilterMessage("paid order could not be saved, manual reconciliation required").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "cs_paid", entries[0].ContextMap()["payment_session_id"])
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.Reconciliations))
}

func TestEscalator_WriteFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	e := NewEscalator(&MockWriter{Err: errors.New("broker down")}, nil, zap.New(core))

	e.Escalate(context.Background(), domain.Order{ID: uuid.New()}, errors.New("boom"))

	assert.Equal(t, 1, logs.FilterMessage("failed to publish reconciliation event").Len())
}

func TestEscalator_IgnoresCanceledContext(t *testing.T) {
	writer := &MockWriter{}
	e := NewEscalator(writer, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e.Escalate(ctx, domain.Order{ID: uuid.New()}, errors.New("boom"))

	assert.Equal(t, 1, writer.count())
}
