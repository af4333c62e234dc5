package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/balance"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseUpdateStatus = "order.update_status"
	useCaseCancel       = "order.cancel"
)

var (
	errMerchantCannotCancel = failure.New(failure.CodeInvalidTransition, "Merchant cannot set status to REJECT_BY_CUSTOMER")
	errNotYourOrder         = failure.New(failure.CodeForbidden, "You can only cancel your own orders")
)

type UpdateStatusInput struct {
	MerchantID string
	OrderID    string
	Status     string
}

// UpdateStatusUseCase applies a merchant-requested status change.
type UpdateStatusUseCase struct {
	uow       application.UnitOfWork
	publisher domoutbox.Publisher
	ins       *application.Instruments
}

var _ application.UseCase[UpdateStatusInput, *domain.Order] = (*UpdateStatusUseCase)(nil)

func NewUpdateStatusUseCase(uow application.UnitOfWork, publisher domoutbox.Publisher, tel observability.Observability) *UpdateStatusUseCase {
	return &UpdateStatusUseCase{uow: uow, publisher: publisher, ins: application.NewInstruments(orderService, tel)}
}

func (uc *UpdateStatusUseCase) Execute(ctx context.Context, cmd UpdateStatusInput) (_ *domain.Order, err error) {
	ctx, run := uc.ins.Begin(ctx, useCaseUpdateStatus, "UpdateOrderStatus",
		attribute.String("merchant.id", cmd.MerchantID),
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.target_status", cmd.Status),
	)
	defer func() { run.End(err) }()

	target, err := domain.ParseStatus(cmd.Status)
	if err != nil {
		return nil, err
	}
	if target == domain.StatusRejectByCustomer {
		return nil, errMerchantCannotCancel
	}

	var (
		updated *domain.Order
		event   domoutbox.Event
	)
	err = uc.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		o, err := tx.Orders().Get(ctx, cmd.OrderID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if o.MerchantID != cmd.MerchantID {
			return domain.ErrForbidden
		}

		o, err = lockOrder(ctx, tx, o)
		if err != nil {
			return err
		}
		from := o.Status
		if err := o.TransitionTo(target); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, o); err != nil {
			return wrapRepositoryError(err)
		}

		restocked, refunded := 0, decimal.Zero
		if target == domain.StatusRejectByMerchant {
			if restocked, refunded, err = compensate(ctx, tx, o); err != nil {
				return err
			}
		}
		updated = o
		event = domain.NewOrderStatusChangedEvent(o, from, restocked, refunded)
		return nil
	})
	if err != nil {
		return nil, err
	}

	run.Field("order_status", string(updated.Status))
	publish(ctx, uc.ins, run, uc.publisher, []domoutbox.Event{event})
	return updated, nil
}

type CancelInput struct {
	CustomerID string
	OrderID    string
}

// CancelUseCase lets a customer withdraw an order that has not been
// delivered or rejected.
type CancelUseCase struct {
	uow       application.UnitOfWork
	publisher domoutbox.Publisher
	ins       *application.Instruments
}

var _ application.UseCase[CancelInput, *domain.Order] = (*CancelUseCase)(nil)

func NewCancelUseCase(uow application.UnitOfWork, publisher domoutbox.Publisher, tel observability.Observability) *CancelUseCase {
	return &CancelUseCase{uow: uow, publisher: publisher, ins: application.NewInstruments(orderService, tel)}
}

func (uc *CancelUseCase) Execute(ctx context.Context, cmd CancelInput) (_ *domain.Order, err error) {
	ctx, run := uc.ins.Begin(ctx, useCaseCancel, "CancelOrder",
		attribute.String("customer.id", cmd.CustomerID),
		attribute.String("order.id", cmd.OrderID),
	)
	defer func() { run.End(err) }()

	var (
		updated *domain.Order
		event   domoutbox.Event
	)
	err = uc.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		o, err := tx.Orders().Get(ctx, cmd.OrderID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if o.CustomerID != cmd.CustomerID {
			return errNotYourOrder
		}

		o, err = lockOrder(ctx, tx, o)
		if err != nil {
			return err
		}
		from := o.Status
		if err := o.RejectByCustomer(); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, o); err != nil {
			return wrapRepositoryError(err)
		}
		restocked, refunded, err := compensate(ctx, tx, o)
		if err != nil {
			return err
		}
		updated = o
		event = domain.NewOrderStatusChangedEvent(o, from, restocked, refunded)
		return nil
	})
	if err != nil {
		return nil, err
	}

	run.Field("order_status", string(updated.Status))
	publish(ctx, uc.ins, run, uc.publisher, []domoutbox.Event{event})
	return updated, nil
}

// lockOrder takes the lock of the order's customer, which every status
// change of that order shares, and re-reads the order under it.
func lockOrder(ctx context.Context, tx application.Tx, o *domain.Order) (*domain.Order, error) {
	if _, err := tx.Customers().GetForUpdate(ctx, o.CustomerID); err != nil {
		return nil, wrapRepositoryError(err)
	}
	fresh, err := tx.Orders().Get(ctx, o.ID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return fresh, nil
}

// compensate returns the stock and, for paid orders, the money.
func compensate(ctx context.Context, tx application.Tx, o *domain.Order) (int, decimal.Decimal, error) {
	if _, err := inventory.RestockWithin(ctx, tx, o.ProductID, o.Count); err != nil {
		return 0, decimal.Zero, err
	}
	if !o.Refundable() {
		return o.Count, decimal.Zero, nil
	}
	if _, err := balance.CreditWithin(ctx, tx, o.CustomerID, o.TotalAmount); err != nil {
		return 0, decimal.Zero, err
	}
	return o.Count, o.TotalAmount, nil
}
