package order

import (
	"context"
	"errors"
	"sort"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/balance"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	domcart "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const useCaseCheckout = "order.checkout"

type CheckoutInput struct {
	CustomerID     string
	IdempotencyKey string
}

type CheckoutResult struct {
	Orders []*domain.Order
	// Replayed is set when the idempotency key matched an earlier checkout.
	Replayed bool
}

// CheckoutUseCase turns a customer's cart into paid orders. The whole cart
// succeeds or nothing changes.
type CheckoutUseCase struct {
	uow       application.UnitOfWork
	ids       application.IDGenerator
	publisher domoutbox.Publisher
	ins       *application.Instruments
}

var _ application.UseCase[CheckoutInput, *CheckoutResult] = (*CheckoutUseCase)(nil)

func NewCheckoutUseCase(
	uow application.UnitOfWork,
	ids application.IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *CheckoutUseCase {
	return &CheckoutUseCase{
		uow:       uow,
		ids:       ids,
		publisher: publisher,
		ins:       application.NewInstruments(orderService, tel),
	}
}

func (uc *CheckoutUseCase) Execute(ctx context.Context, cmd CheckoutInput) (_ *CheckoutResult, err error) {
	ctx, run := uc.ins.Begin(ctx, useCaseCheckout, "CreateOrdersFromCart",
		attribute.String("customer.id", cmd.CustomerID),
		attribute.Bool("order.idempotent", cmd.IdempotencyKey != ""),
	)
	defer func() { run.End(err) }()

	result := &CheckoutResult{Orders: []*domain.Order{}}
	var events []domoutbox.Event

	err = uc.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		// Customer first, then products in id order.
		if _, err := tx.Customers().GetForUpdate(ctx, cmd.CustomerID); err != nil {
			return wrapRepositoryError(err)
		}

		if cmd.IdempotencyKey != "" {
			existing, err := tx.Orders().FindByIdempotency(ctx, cmd.CustomerID, cmd.IdempotencyKey)
			if err != nil {
				return wrapRepositoryError(err)
			}
			if len(existing) > 0 {
				result.Orders = existing
				result.Replayed = true
				return nil
			}
		}

		c, err := tx.Carts().GetByCustomer(ctx, cmd.CustomerID)
		if errors.Is(err, domcart.ErrNotFound) {
			return nil
		}
		if err != nil {
			return wrapRepositoryError(err)
		}
		items, err := tx.Carts().Items(ctx, c.ID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if len(items) == 0 {
			return nil
		}

		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
		products := make(map[string]*product.Product, len(items))
		for _, item := range items {
			p, err := tx.Products().GetForUpdate(ctx, item.ProductID)
			if err != nil {
				return wrapRepositoryError(err)
			}
			products[p.ID] = p
		}
		for _, item := range items {
			if err := products[item.ProductID].CheckAvailable(item.Count); err != nil {
				return err
			}
		}

		for _, item := range items {
			p := products[item.ProductID]
			total := p.Total(item.Count)

			if _, err := balance.DebitWithin(ctx, tx, cmd.CustomerID, total); err != nil {
				return err
			}
			if _, err := inventory.DecrementWithin(ctx, tx, p.ID, item.Count); err != nil {
				return err
			}

			o, err := domain.NewPaidFromBalance(uc.ids.NewID(), cmd.CustomerID, domain.Line{
				ProductID:   p.ID,
				MerchantID:  p.MerchantID,
				ProductName: p.Name,
				Count:       item.Count,
				Total:       total,
			}, cmd.IdempotencyKey)
			if err != nil {
				return err
			}
			if err := tx.Orders().Insert(ctx, o); err != nil {
				return wrapRepositoryError(err)
			}

			n := notification.ForOrderCreated(uc.ids.NewID(), o.ID, o.ProductName)
			if err := tx.Notifications().Insert(ctx, n); err != nil {
				return wrapRepositoryError(err)
			}

			if err := tx.Carts().DeleteItem(ctx, item.ID); err != nil {
				return wrapRepositoryError(err)
			}

			result.Orders = append(result.Orders, o)
			events = append(events, domain.NewOrderCreatedEvent(o, n.ID, n.Message))
		}

		c.Touch()
		return wrapRepositoryError(tx.Carts().Update(ctx, c))
	})
	if err != nil {
		return nil, err
	}

	run.Field("orders", len(result.Orders))
	if result.Replayed {
		run.SetStatus("IDEMPOTENT_REPLAY")
		run.Span().AddEvent("order.idempotent_replay")
		return result, nil
	}
	for _, o := range result.Orders {
		run.Span().AddEvent("order.created", trace.WithAttributes(attribute.String("order.id", o.ID)))
	}

	publish(ctx, uc.ins, run, uc.publisher, events)
	return result, nil
}
