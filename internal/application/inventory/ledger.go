package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	inventoryService  = "inventory-service"
	useCaseDecrement  = "inventory.decrement"
	useCaseRestock    = "inventory.restock"
	useCaseGetProduct = "inventory.get"
)

var ErrRepository = errors.New("inventory: repository failure")

// Ledger owns every mutation of a product's stock count.
type Ledger struct {
	uow application.UnitOfWork
	ins *application.Instruments
}

// StockInput names a stock change. A non-empty MerchantID restricts the
// change to that merchant's own product.
type StockInput struct {
	ProductID  string
	MerchantID string
	Count      int
}

func NewLedger(uow application.UnitOfWork, tel observability.Observability) *Ledger {
	return &Ledger{uow: uow, ins: application.NewInstruments(inventoryService, tel)}
}

func (l *Ledger) Decrement(ctx context.Context, cmd StockInput) (*product.Product, error) {
	return l.change(ctx, useCaseDecrement, "Decrement", cmd, DecrementWithin)
}

func (l *Ledger) Restock(ctx context.Context, cmd StockInput) (*product.Product, error) {
	return l.change(ctx, useCaseRestock, "Restock", cmd, RestockWithin)
}

type stockFunc func(ctx context.Context, tx application.Tx, productID string, count int) (*product.Product, error)

func (l *Ledger) change(ctx context.Context, useCase, op string, cmd StockInput, apply stockFunc) (_ *product.Product, err error) {
	ctx, run := l.ins.Begin(ctx, useCase, op,
		attribute.String("product.id", cmd.ProductID),
		attribute.String("merchant.id", cmd.MerchantID),
		attribute.Int("count", cmd.Count),
	)
	defer func() { run.End(err) }()

	var snapshot *product.Product
	err = l.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		if cmd.MerchantID != "" {
			p, err := tx.Products().GetForUpdate(ctx, cmd.ProductID)
			if err != nil {
				return wrapRepositoryError(err)
			}
			if err := p.OwnedBy(cmd.MerchantID); err != nil {
				return err
			}
		}
		p, err := apply(ctx, tx, cmd.ProductID, cmd.Count)
		snapshot = p
		return err
	})
	if err != nil {
		return nil, err
	}
	run.Field("stock_count", snapshot.StockCount)
	return snapshot, nil
}

func (l *Ledger) Get(ctx context.Context, productID string) (_ *product.Product, err error) {
	ctx, run := l.ins.Begin(ctx, useCaseGetProduct, "GetProduct",
		attribute.String("product.id", productID),
	)
	defer func() { run.End(err) }()

	var snapshot *product.Product
	err = l.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		p, err := tx.Products().Get(ctx, productID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		snapshot = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// DecrementWithin removes count units inside the caller's unit of work and
// keeps the product locked until it ends.
func DecrementWithin(ctx context.Context, tx application.Tx, productID string, count int) (*product.Product, error) {
	if count <= 0 {
		return nil, product.ErrInvalidQuantity
	}
	p, err := tx.Products().GetForUpdate(ctx, productID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	if err := p.Deduct(count); err != nil {
		return nil, err
	}
	if err := tx.Products().Update(ctx, p); err != nil {
		return nil, wrapRepositoryError(err)
	}
	return p.Clone(), nil
}

// RestockWithin returns count units inside the caller's unit of work.
func RestockWithin(ctx context.Context, tx application.Tx, productID string, count int) (*product.Product, error) {
	p, err := tx.Products().GetForUpdate(ctx, productID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	if err := p.Restock(count); err != nil {
		return nil, err
	}
	if err := tx.Products().Update(ctx, p); err != nil {
		return nil, wrapRepositoryError(err)
	}
	return p.Clone(), nil
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
