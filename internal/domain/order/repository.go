package order

import "context"

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
	// ListByCustomer returns the customer's orders, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]*Order, error)
	// ListByMerchant returns orders on the merchant's products, newest first.
	ListByMerchant(ctx context.Context, merchantID string) ([]*Order, error)
	FindByIdempotency(ctx context.Context, customerID, key string) ([]*Order, error)
	ExistsForProduct(ctx context.Context, productID string) (bool, error)
}
