package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

// Service is the order lifecycle manager: it groups the order use cases
// behind the operation names callers use.
type Service struct {
	checkout     *CheckoutUseCase
	updateStatus *UpdateStatusUseCase
	cancel       *CancelUseCase
	listCustomer *ListCustomerOrdersUseCase
	listMerchant *ListMerchantOrdersUseCase
}

func NewService(
	uow application.UnitOfWork,
	ids application.IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Service {
	return &Service{
		checkout:     NewCheckoutUseCase(uow, ids, publisher, tel),
		updateStatus: NewUpdateStatusUseCase(uow, publisher, tel),
		cancel:       NewCancelUseCase(uow, publisher, tel),
		listCustomer: NewListCustomerOrdersUseCase(uow, tel),
		listMerchant: NewListMerchantOrdersUseCase(uow, tel),
	}
}

// CreateOrdersFromCart checks out the customer's cart. An empty or missing
// cart yields no orders and no error.
func (s *Service) CreateOrdersFromCart(ctx context.Context, customerID, idempotencyKey string) (*CheckoutResult, error) {
	return s.checkout.Execute(ctx, CheckoutInput{CustomerID: customerID, IdempotencyKey: idempotencyKey})
}

func (s *Service) UpdateOrderStatus(ctx context.Context, merchantID, orderID, status string) (*domain.Order, error) {
	return s.updateStatus.Execute(ctx, UpdateStatusInput{MerchantID: merchantID, OrderID: orderID, Status: status})
}

func (s *Service) CancelOrder(ctx context.Context, customerID, orderID string) (*domain.Order, error) {
	return s.cancel.Execute(ctx, CancelInput{CustomerID: customerID, OrderID: orderID})
}

func (s *Service) ListForCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return s.listCustomer.Execute(ctx, customerID)
}

func (s *Service) ListForMerchant(ctx context.Context, merchantID string) ([]*domain.Order, error) {
	return s.listMerchant.Execute(ctx, merchantID)
}
