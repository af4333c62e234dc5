package workerpresentation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/notification"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type captureSink struct {
	mu   sync.Mutex
	got  []notification.Envelope
	fail bool
	seen chan struct{}
}

func newCaptureSink() *captureSink { return &captureSink{seen: make(chan struct{}, 16)} }

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Send(_ context.Context, env notification.Envelope) error {
	s.mu.Lock()
	s.got = append(s.got, env)
	s.mu.Unlock()
	s.seen <- struct{}{}
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func (s *captureSink) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i+1)
		}
	}
}

func paidOrder(t *testing.T) *domorder.Order {
	t.Helper()
	o, err := domorder.NewPaidFromBalance("order-1", "cust-1", domorder.Line{
		ProductID:   "prod-1",
		MerchantID:  "merchant-1",
		ProductName: "Lamp",
		Count:       2,
		Total:       decimal.RequireFromString("200"),
	}, "")
	require.NoError(t, err)
	return o
}

func TestWorkerDeliversOrderEvents(t *testing.T) {
	sink := newCaptureSink()
	bus := outbox.NewBus(observability.Nop())
	NewNotificationWorker(bus, notification.NewDeliverUseCase(observability.Nop(), sink), observability.Nop()).Start()
	bus.Start(context.Background())

	o := paidOrder(t)
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, domorder.NewOrderCreatedEvent(o, "n-1", "New order #order-1 created for Lamp")))

	from := o.Status
	require.NoError(t, o.RejectByMerchant())
	require.NoError(t, bus.Publish(ctx, domorder.NewOrderStatusChangedEvent(o, from, 2, decimal.RequireFromString("200"))))

	sink.wait(t, 2)
	require.NoError(t, bus.Stop(ctx))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.got, 2)
	assert.Equal(t, "order.created", sink.got[0].Event)
	assert.Equal(t, "order-1", sink.got[0].Key)
	assert.Equal(t, "order.status_changed", sink.got[1].Event)
}

func TestWorkerSwallowsSinkFailures(t *testing.T) {
	sink := newCaptureSink()
	sink.fail = true
	w := NewNotificationWorker(nil, notification.NewDeliverUseCase(observability.Nop(), sink), nil)

	err := w.handle(context.Background(), domorder.NewOrderCreatedEvent(paidOrder(t), "n-1", "msg"))
	assert.NoError(t, err)
	sink.wait(t, 1)
}

type recordingLogger struct {
	observability.Logger
	fields []observability.Field
}

func (l *recordingLogger) With(fields ...observability.Field) observability.Logger {
	l.fields = append(l.fields, fields...)
	return l
}

func TestWithEventContextGeneratesEventID(t *testing.T) {
	base := &recordingLogger{Logger: observability.NopLogger()}
	ctx := WithEventContext(context.Background(), base, map[string]string{"event": "order.created", "tenant": ""})

	require.Same(t, base, logctx.From(ctx))
	keys := map[string]any{}
	for _, f := range base.fields {
		keys[f.Key] = f.Value
	}
	assert.NotEmpty(t, keys["event_id"])
	assert.Equal(t, "order.created", keys["event"])
	assert.NotContains(t, keys, "tenant")
	assert.NotContains(t, keys, "trace_id")
}
