package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	block    bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if w.err != nil {
		return w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerPublish(t *testing.T) {
	writer := &fakeWriter{}
	ep := NewEventPublisher(newProducer(writer, time.Second))

	orderID := uuid.New()
	event := &models.OrderPlacedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:     orderID,
		CustomerID:  uuid.New(),
		TotalAmount: decimal.RequireFromString("100.00"),
		Currency:    "USD",
	}
	require.NoError(t, ep.PublishOrderPlaced(context.Background(), event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, models.TopicOrdersPlaced, msg.Topic)
	assert.Equal(t, orderID.String(), string(msg.Key))

	var decoded models.OrderPlacedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, orderID, decoded.OrderID)
	assert.True(t, decoded.TotalAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "USD", decoded.Currency)
}

func TestProducerPublishTimeout(t *testing.T) {
	p := newProducer(&fakeWriter{block: true}, 20*time.Millisecond)

	start := time.Now()
	err := p.Publish(context.Background(), models.TopicOrdersPlaced, "k", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, models.ErrEventPublish)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProducerPublishRejected(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("not leader for partition")}, time.Second)

	err := p.Publish(context.Background(), models.TopicPaymentsFailed, "k", struct{}{})
	assert.ErrorIs(t, err, models.ErrEventPublish)
}

func TestEventHandlerRoutesByTopic(t *testing.T) {
	eh := NewEventHandler()
	orderID := uuid.New()

	var captured *models.PaymentCapturedEvent
	var failed *models.PaymentFailedEvent
	eh.OnPaymentCaptured(func(_ context.Context, e *models.PaymentCapturedEvent) error {
		captured = e
		return nil
	})
	eh.OnPaymentFailed(func(_ context.Context, e *models.PaymentFailedEvent) error {
		failed = e
		return nil
	})

	// unknown fields are tolerated
	capturedJSON := `{"event_id":"e1","order_id":"` + orderID.String() + `","amount":"80","currency":"USD","gateway":"x"}`
	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{
		Topic: models.TopicPaymentsCaptured,
		Value: []byte(capturedJSON),
	}))
	require.NotNil(t, captured)
	assert.Equal(t, orderID, captured.OrderID)
	assert.Equal(t, "e1", captured.EventID)

	failedJSON := `{"event_id":"e2","order_id":"` + orderID.String() + `","reason":"declined"}`
	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{
		Topic: models.TopicPaymentsFailed,
		Value: []byte(failedJSON),
	}))
	require.NotNil(t, failed)
	assert.Equal(t, "declined", failed.Reason)

	// no handler registered
	assert.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{
		Topic: models.TopicOrdersPlaced,
		Value: []byte(`{}`),
	}))

	err := eh.HandleMessage(context.Background(), kafka.Message{
		Topic: models.TopicPaymentsFailed,
		Value: []byte(`{not json`),
	})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []kafka.Message
	done      chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	close(r.done)
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumerRetriesUntilHandled(t *testing.T) {
	reader := &fakeReader{
		messages: []kafka.Message{
			{Topic: "t", Offset: 1},
			{Topic: "t", Offset: 2},
		},
		done: make(chan struct{}),
	}
	c := newConsumer(reader, "test-group")
	c.minBackoff = time.Millisecond
	c.maxBackoff = 2 * time.Millisecond

	attempts := map[int64]int{}
	handler := func(_ context.Context, msg kafka.Message) error {
		attempts[msg.Offset]++
		if msg.Offset == 1 && attempts[msg.Offset] < 3 {
			return errors.New("store unavailable")
		}
		if msg.Offset == 2 {
			return ErrMalformedEvent
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.StartConsuming(ctx, handler) }()

	select {
	case <-reader.done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	assert.Equal(t, 3, attempts[1])
	assert.Equal(t, 1, attempts[2], "malformed messages are not retried")

	reader.mu.Lock()
	defer reader.mu.Unlock()
	require.Len(t, reader.committed, 2)
	assert.Equal(t, int64(1), reader.committed[0].Offset)
	assert.Equal(t, int64(2), reader.committed[1].Offset)
}

func TestHeaderCarrier(t *testing.T) {
	carrier := headerCarrier{}
	carrier.Set("traceparent", "a")
	carrier.Set("traceparent", "b")
	carrier.Set("tracestate", "c")

	assert.Equal(t, "b", carrier.Get("traceparent"))
	assert.Equal(t, "", carrier.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate"}, carrier.Keys())
}
