package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	catalogService = "catalog-service"
	useCaseList    = "catalog.list"
	useCaseCreate  = "catalog.create"
	useCaseUpdate  = "catalog.update"
	useCaseDelete  = "catalog.delete"
)

var (
	ErrRepository = errors.New("catalog: repository failure")

	errZeroAdjustment = failure.New(failure.CodeInvalidArgument, "Stock adjustment must not be zero")
)

type CreateInput struct {
	MerchantID string
	Name       string
	Price      decimal.Decimal
	StockCount int
}

type UpdateInput struct {
	MerchantID string
	ProductID  string
	Name       string
	Price      decimal.Decimal
	StockCount int
}

// Service is the product catalog. Reads are public; every write is limited
// to the merchant that listed the product and holds the product lock, so
// edits serialize with checkouts of the same product.
type Service struct {
	uow    application.UnitOfWork
	ids    application.IDGenerator
	ledger *inventory.Ledger
	ins    *application.Instruments
}

func NewService(uow application.UnitOfWork, ids application.IDGenerator, ledger *inventory.Ledger, tel observability.Observability) *Service {
	return &Service{uow: uow, ids: ids, ledger: ledger, ins: application.NewInstruments(catalogService, tel)}
}

func (s *Service) List(ctx context.Context) (_ []*domain.Product, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseList, "ListProducts")
	defer func() { run.End(err) }()

	out := []*domain.Product{}
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		list, err := tx.Products().List(ctx)
		if err != nil {
			return wrapRepositoryError(err)
		}
		out = append(out, list...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Field("products", len(out))
	return out, nil
}

func (s *Service) Get(ctx context.Context, productID string) (*domain.Product, error) {
	return s.ledger.Get(ctx, productID)
}

func (s *Service) Create(ctx context.Context, cmd CreateInput) (_ *domain.Product, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseCreate, "CreateProduct",
		attribute.String("merchant.id", cmd.MerchantID),
	)
	defer func() { run.End(err) }()

	p, err := domain.New(s.ids.NewID(), cmd.MerchantID, cmd.Name, cmd.Price, cmd.StockCount)
	if err != nil {
		return nil, err
	}
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		return wrapRepositoryError(tx.Products().Insert(ctx, p))
	})
	if err != nil {
		return nil, err
	}
	run.Field("product_id", p.ID)
	return p, nil
}

// Update replaces name, price and stock of the merchant's own product.
// Orders already placed keep the price they were charged.
func (s *Service) Update(ctx context.Context, cmd UpdateInput) (_ *domain.Product, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseUpdate, "UpdateProduct",
		attribute.String("merchant.id", cmd.MerchantID),
		attribute.String("product.id", cmd.ProductID),
	)
	defer func() { run.End(err) }()

	var updated *domain.Product
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		p, err := tx.Products().GetForUpdate(ctx, cmd.ProductID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if err := p.OwnedBy(cmd.MerchantID); err != nil {
			return err
		}
		if err := p.Revise(cmd.Name, cmd.Price, cmd.StockCount); err != nil {
			return err
		}
		if err := tx.Products().Update(ctx, p); err != nil {
			return wrapRepositoryError(err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a product nobody has ordered yet. Cart lines holding it go
// with it.
func (s *Service) Delete(ctx context.Context, merchantID, productID string) (err error) {
	ctx, run := s.ins.Begin(ctx, useCaseDelete, "DeleteProduct",
		attribute.String("merchant.id", merchantID),
		attribute.String("product.id", productID),
	)
	defer func() { run.End(err) }()

	return s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		p, err := tx.Products().GetForUpdate(ctx, productID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if err := p.OwnedBy(merchantID); err != nil {
			return err
		}
		ordered, err := tx.Orders().ExistsForProduct(ctx, productID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if ordered {
			return domain.ErrReferenced
		}
		return wrapRepositoryError(tx.Products().Delete(ctx, productID))
	})
}

// AdjustStock restocks (delta > 0) or writes off (delta < 0) units of the
// merchant's own product. A write-off never takes stock below zero.
func (s *Service) AdjustStock(ctx context.Context, merchantID, productID string, delta int) (*domain.Product, error) {
	cmd := inventory.StockInput{ProductID: productID, MerchantID: merchantID, Count: delta}
	switch {
	case delta > 0:
		return s.ledger.Restock(ctx, cmd)
	case delta < 0:
		cmd.Count = -delta
		return s.ledger.Decrement(ctx, cmd)
	}
	return nil, errZeroAdjustment
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
