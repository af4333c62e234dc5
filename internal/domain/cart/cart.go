package cart

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
)

var (
	ErrNotFound        = failure.New(failure.CodeNotFound, "Cart not found")
	ErrItemNotFound    = failure.New(failure.CodeNotFound, "Cart item not found")
	ErrForbidden       = failure.New(failure.CodeForbidden, "Item does not belong to your cart")
	ErrInvalidQuantity = failure.New(failure.CodeInvalidArgument, "Count must be >= 1")
)

// Cart belongs to exactly one customer and is created on first access.
type Cart struct {
	ID         string
	CustomerID string
	UpdatedAt  time.Time
}

func New(id, customerID string) *Cart {
	return &Cart{
		ID:         id,
		CustomerID: customerID,
		UpdatedAt:  time.Now().UTC(),
	}
}

func (c *Cart) Touch() {
	c.UpdatedAt = time.Now().UTC()
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Item is a pending selection; at most one per product in a cart.
type Item struct {
	ID        string
	CartID    string
	ProductID string
	Count     int
}

func NewItem(id, cartID, productID string) *Item {
	return &Item{ID: id, CartID: cartID, ProductID: productID}
}

// Add increases the item's count by n.
func (i *Item) Add(n int) error {
	if n <= 0 {
		return ErrInvalidQuantity
	}
	i.Count += n
	return nil
}

func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}

type Repository interface {
	GetByCustomer(ctx context.Context, customerID string) (*Cart, error)
	Insert(ctx context.Context, c *Cart) error
	Update(ctx context.Context, c *Cart) error

	Items(ctx context.Context, cartID string) ([]*Item, error)
	GetItem(ctx context.Context, itemID string) (*Item, error)
	FindItem(ctx context.Context, cartID, productID string) (*Item, error)
	SaveItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, itemID string) error
}
