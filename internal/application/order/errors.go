package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const (
	orderService   = "order-service"
	publishPeer    = "outbox"
	publishTimeout = 300 * time.Millisecond
)

var ErrRepository = errors.New("order: repository failure")

func wrapRepositoryError(err error) error {
	if err == nil || failure.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRepository, err)
}

// publish hands committed events to the bus. Failures are logged and counted
// but never returned: the orders already exist.
func publish(ctx context.Context, ins *application.Instruments, run *application.Run, publisher domoutbox.Publisher, events []domoutbox.Event) {
	if publisher == nil || len(events) == 0 {
		return
	}
	failed := 0
	for _, e := range events {
		err := ins.External(context.WithoutCancel(ctx), publishPeer, e.EventName(), publishTimeout, func(ctx context.Context) error {
			return publisher.Publish(ctx, e)
		})
		if err != nil {
			failed++
			run.Logger().Warn("event_publish_failed",
				observability.F("event", e.EventName()),
				observability.F("error", err.Error()),
			)
		}
	}
	if failed > 0 {
		run.Field("event_publish_failures", failed)
	}
}
