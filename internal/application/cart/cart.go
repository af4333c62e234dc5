package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	cartService       = "cart-service"
	useCaseAddToCart  = "cart.add"
	useCaseRemoveItem = "cart.remove"
	useCaseGetCart    = "cart.get"
)

var ErrRepository = errors.New("cart: repository failure")

// ItemView is a cart line priced at the product's current price.
type ItemView struct {
	ID          string
	ProductID   string
	ProductName string
	UnitPrice   decimal.Decimal
	Count       int
	LineTotal   decimal.Decimal
}

type View struct {
	CartID string
	Items  []ItemView
	Total  decimal.Decimal
}

// Service is the cart store. Every mutation holds the owning customer's
// lock, which also serializes it against that customer's checkout.
type Service struct {
	uow application.UnitOfWork
	ids application.IDGenerator
	ins *application.Instruments
}

func NewService(uow application.UnitOfWork, ids application.IDGenerator, tel observability.Observability) *Service {
	return &Service{uow: uow, ids: ids, ins: application.NewInstruments(cartService, tel)}
}

// AddToCart adds count units of a product. The stock check here is advisory;
// checkout validates again under the product lock.
func (s *Service) AddToCart(ctx context.Context, customerID, productID string, count int) (_ *ItemView, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseAddToCart, "AddToCart",
		attribute.String("customer.id", customerID),
		attribute.String("product.id", productID),
		attribute.Int("count", count),
	)
	defer func() { run.End(err) }()

	if count <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var view *ItemView
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		if _, err := tx.Customers().GetForUpdate(ctx, customerID); err != nil {
			return wrapRepositoryError(err)
		}
		p, err := tx.Products().Get(ctx, productID)
		if err != nil {
			return wrapRepositoryError(err)
		}

		c, err := s.cartFor(ctx, tx, customerID)
		if err != nil {
			return err
		}

		item, err := tx.Carts().FindItem(ctx, c.ID, productID)
		switch {
		case errors.Is(err, domain.ErrItemNotFound):
			item = domain.NewItem(s.ids.NewID(), c.ID, productID)
		case err != nil:
			return wrapRepositoryError(err)
		}

		if item.Count+count > p.StockCount {
			return failure.Newf(failure.CodeOutOfStock,
				"Only %d left in stock. You already have %d in cart. Cannot add %d more.",
				p.StockCount, item.Count, count)
		}
		if err := item.Add(count); err != nil {
			return err
		}
		if err := tx.Carts().SaveItem(ctx, item); err != nil {
			return wrapRepositoryError(err)
		}
		c.Touch()
		if err := tx.Carts().Update(ctx, c); err != nil {
			return wrapRepositoryError(err)
		}

		v := viewOf(item, p)
		view = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Field("cart_item_id", view.ID)
	return view, nil
}

// RemoveItem deletes one line from the customer's own cart.
func (s *Service) RemoveItem(ctx context.Context, customerID, itemID string) (err error) {
	ctx, run := s.ins.Begin(ctx, useCaseRemoveItem, "RemoveItem",
		attribute.String("customer.id", customerID),
		attribute.String("cart_item.id", itemID),
	)
	defer func() { run.End(err) }()

	return s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		if _, err := tx.Customers().GetForUpdate(ctx, customerID); err != nil {
			return wrapRepositoryError(err)
		}
		item, err := tx.Carts().GetItem(ctx, itemID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		c, err := tx.Carts().GetByCustomer(ctx, customerID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrForbidden
		}
		if err != nil {
			return wrapRepositoryError(err)
		}
		if item.CartID != c.ID {
			return domain.ErrForbidden
		}
		if err := tx.Carts().DeleteItem(ctx, item.ID); err != nil {
			return wrapRepositoryError(err)
		}
		c.Touch()
		return wrapRepositoryError(tx.Carts().Update(ctx, c))
	})
}

// GetCart returns the customer's cart. A customer without a cart gets an
// empty view.
func (s *Service) GetCart(ctx context.Context, customerID string) (_ *View, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseGetCart, "GetCart",
		attribute.String("customer.id", customerID),
	)
	defer func() { run.End(err) }()

	view := &View{Items: []ItemView{}, Total: decimal.Zero}
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		c, err := tx.Carts().GetByCustomer(ctx, customerID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return wrapRepositoryError(err)
		}
		view.CartID = c.ID

		items, err := tx.Carts().Items(ctx, c.ID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		for _, item := range items {
			p, err := tx.Products().Get(ctx, item.ProductID)
			if err != nil {
				return wrapRepositoryError(err)
			}
			line := viewOf(item, p)
			view.Items = append(view.Items, line)
			view.Total = view.Total.Add(line.LineTotal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Field("items", len(view.Items))
	return view, nil
}

func (s *Service) cartFor(ctx context.Context, tx application.Tx, customerID string) (*domain.Cart, error) {
	c, err := tx.Carts().GetByCustomer(ctx, customerID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, wrapRepositoryError(err)
	}
	c = domain.New(s.ids.NewID(), customerID)
	if err := tx.Carts().Insert(ctx, c); err != nil {
		return nil, wrapRepositoryError(err)
	}
	return c, nil
}

func viewOf(item *domain.Item, p *product.Product) ItemView {
	return ItemView{
		ID:          item.ID,
		ProductID:   p.ID,
		ProductName: p.Name,
		UnitPrice:   p.Price,
		Count:       item.Count,
		LineTotal:   p.Total(item.Count),
	}
}

func wrapRepositoryError(err error) error {
	if err == nil || failure.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRepository, err)
}
