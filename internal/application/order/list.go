package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseListCustomer = "order.list_customer"
	useCaseListMerchant = "order.list_merchant"
)

// ListCustomerOrdersUseCase returns every order a customer placed, newest first.
type ListCustomerOrdersUseCase struct {
	uow application.UnitOfWork
	ins *application.Instruments
}

var _ application.UseCase[string, []*domain.Order] = (*ListCustomerOrdersUseCase)(nil)

func NewListCustomerOrdersUseCase(uow application.UnitOfWork, tel observability.Observability) *ListCustomerOrdersUseCase {
	return &ListCustomerOrdersUseCase{uow: uow, ins: application.NewInstruments(orderService, tel)}
}

func (uc *ListCustomerOrdersUseCase) Execute(ctx context.Context, customerID string) (_ []*domain.Order, err error) {
	ctx, run := uc.ins.Begin(ctx, useCaseListCustomer, "ListForCustomer",
		attribute.String("customer.id", customerID),
	)
	defer func() { run.End(err) }()

	var orders []*domain.Order
	err = uc.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		found, err := tx.Orders().ListByCustomer(ctx, customerID)
		orders = found
		return wrapRepositoryError(err)
	})
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	run.Field("orders", len(orders))
	return orders, nil
}

// ListMerchantOrdersUseCase returns orders on a merchant's products, newest
// first. Orders the customer cancelled are hidden.
type ListMerchantOrdersUseCase struct {
	uow application.UnitOfWork
	ins *application.Instruments
}

var _ application.UseCase[string, []*domain.Order] = (*ListMerchantOrdersUseCase)(nil)

func NewListMerchantOrdersUseCase(uow application.UnitOfWork, tel observability.Observability) *ListMerchantOrdersUseCase {
	return &ListMerchantOrdersUseCase{uow: uow, ins: application.NewInstruments(orderService, tel)}
}

func (uc *ListMerchantOrdersUseCase) Execute(ctx context.Context, merchantID string) (_ []*domain.Order, err error) {
	ctx, run := uc.ins.Begin(ctx, useCaseListMerchant, "ListForMerchant",
		attribute.String("merchant.id", merchantID),
	)
	defer func() { run.End(err) }()

	orders := []*domain.Order{}
	err = uc.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		found, err := tx.Orders().ListByMerchant(ctx, merchantID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		for _, o := range found {
			if o.Status != domain.StatusRejectByCustomer {
				orders = append(orders, o)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Field("orders", len(orders))
	return orders, nil
}
