package notification

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseDeliver = "notification.deliver"
	sinkTimeout    = 2 * time.Second
)

// Envelope is what a sink puts on the wire.
type Envelope struct {
	Event   string `json:"event"`
	Key     string `json:"key"`
	Payload any    `json:"payload"`
}

// Payload is the feed entry pushed to live subscribers.
type Payload struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	OrderID     string    `json:"orderId"`
	ProductID   string    `json:"productId"`
	MerchantID  string    `json:"merchantId"`
	Count       int       `json:"count"`
	TotalAmount string    `json:"totalAmount"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StatusPayload describes a committed order status change.
type StatusPayload struct {
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	MerchantID string    `json:"merchantId"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Restocked  int       `json:"restocked"`
	Refunded   string    `json:"refunded"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Sink is a best-effort broadcast transport.
type Sink interface {
	Name() string
	Send(ctx context.Context, env Envelope) error
}

type DeliverResult struct {
	Delivered int
	Failed    int
}

// DeliverUseCase pushes committed order events to every configured sink.
// Sink failures are logged and counted, never returned.
type DeliverUseCase struct {
	sinks []Sink
	ins   *application.Instruments
}

var _ application.UseCase[domoutbox.Event, DeliverResult] = (*DeliverUseCase)(nil)

func NewDeliverUseCase(tel observability.Observability, sinks ...Sink) *DeliverUseCase {
	return &DeliverUseCase{sinks: sinks, ins: application.NewInstruments(notificationService, tel)}
}

func (uc *DeliverUseCase) Execute(ctx context.Context, e domoutbox.Event) (_ DeliverResult, err error) {
	ctx, run := uc.ins.Begin(ctx, useCaseDeliver, "DeliverNotification",
		attribute.String("event", eventName(e)),
		attribute.Int("sinks", len(uc.sinks)),
	)
	defer func() { run.End(err) }()

	env, ok := envelopeFor(e)
	if !ok {
		run.SetStatus("IGNORED")
		return DeliverResult{}, nil
	}

	var res DeliverResult
	for _, sink := range uc.sinks {
		sendErr := uc.ins.External(ctx, sink.Name(), env.Event, sinkTimeout, func(ctx context.Context) error {
			return sink.Send(ctx, env)
		})
		if sendErr != nil {
			res.Failed++
			run.Logger().Warn("notification_sink_failed",
				observability.F("sink", sink.Name()),
				observability.F("event", env.Event),
				observability.F("error", sendErr.Error()),
			)
			continue
		}
		res.Delivered++
	}
	run.Field("delivered", res.Delivered)
	if res.Failed > 0 {
		run.SetStatus("PARTIAL_DELIVERY")
		run.Field("failed", res.Failed)
	}
	return res, nil
}

func envelopeFor(e domoutbox.Event) (Envelope, bool) {
	switch evt := e.(type) {
	case domorder.OrderCreatedEvent:
		return Envelope{
			Event: evt.EventName(),
			Key:   evt.OrderID,
			Payload: Payload{
				ID:          evt.NotificationID,
				Message:     evt.Message,
				OrderID:     evt.OrderID,
				ProductID:   evt.ProductID,
				MerchantID:  evt.MerchantID,
				Count:       evt.Count,
				TotalAmount: evt.TotalAmount.StringFixed(2),
				CreatedAt:   evt.OccurredAt,
			},
		}, true
	case domorder.OrderStatusChangedEvent:
		return Envelope{
			Event: evt.EventName(),
			Key:   evt.OrderID,
			Payload: StatusPayload{
				OrderID:    evt.OrderID,
				CustomerID: evt.CustomerID,
				MerchantID: evt.MerchantID,
				From:       string(evt.From),
				To:         string(evt.To),
				Restocked:  evt.Restocked,
				Refunded:   evt.Refunded.StringFixed(2),
				OccurredAt: evt.OccurredAt,
			},
		}, true
	}
	return Envelope{}, false
}

func eventName(e domoutbox.Event) string {
	if e == nil {
		return "<nil>"
	}
	return e.EventName()
}
