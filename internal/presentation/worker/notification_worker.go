package workerpresentation

import (
	"context"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/notification"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const workerService = "notification_worker"

// NotificationWorker forwards committed order events to the notification
// sinks.
type NotificationWorker struct {
	subscriber domoutbox.Subscriber
	useCase    application.UseCase[domoutbox.Event, notification.DeliverResult]
	log        observability.Logger
}

func NewNotificationWorker(
	subscriber domoutbox.Subscriber,
	useCase application.UseCase[domoutbox.Event, notification.DeliverResult],
	tel observability.Observability,
) *NotificationWorker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &NotificationWorker{
		subscriber: subscriber,
		useCase:    useCase,
		log:        tel.Logger().With(observability.F("service", workerService)),
	}
}

func (w *NotificationWorker) Start() {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderCreatedEvent{}.EventName(), w.handle)
	w.subscriber.Subscribe(domorder.OrderStatusChangedEvent{}.EventName(), w.handle)
}

func (w *NotificationWorker) handle(ctx context.Context, e domoutbox.Event) error {
	attrs := map[string]string{"event": e.EventName()}
	switch evt := e.(type) {
	case domorder.OrderCreatedEvent:
		attrs["order_id"] = evt.OrderID
		attrs["event_id"] = evt.NotificationID
	case domorder.OrderStatusChangedEvent:
		attrs["order_id"] = evt.OrderID
		attrs["status"] = string(evt.To)
	}
	ctx = WithEventContext(ctx, w.log, attrs)

	// Delivery failures are already logged and counted per sink.
	_, err := w.useCase.Execute(ctx, e)
	return err
}
