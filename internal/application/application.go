package application

import (
	"context"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

type IDGenerator interface {
	NewID() string
}

// Tx exposes repositories bound to one unit of work. Locks taken through
// GetForUpdate are held until the unit of work commits or rolls back.
type Tx interface {
	Customers() customer.Repository
	Products() product.Repository
	Carts() cart.Repository
	Orders() order.Repository
	Notifications() notification.Repository
}

// UnitOfWork runs fn in a transaction. fn returning an error, or panicking,
// rolls back every write made through tx. The panic is re-raised.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
