package product

import (
	"context"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = failure.New(failure.CodeNotFound, "Product not found")
	ErrInvalidQuantity = failure.New(failure.CodeInvalidArgument, "product: quantity must be greater than zero")
	ErrInvalidPrice    = failure.New(failure.CodeInvalidArgument, "product: price must be zero or greater")
	ErrInvalidStock    = failure.New(failure.CodeInvalidArgument, "Stock count cannot be negative")
	ErrInvalidName     = failure.New(failure.CodeInvalidArgument, "product: name is required")
	ErrOutOfStock      = failure.New(failure.CodeOutOfStock, "product: out of stock")
	ErrForbidden       = failure.New(failure.CodeForbidden, "You cannot modify this product")
	ErrReferenced      = failure.New(failure.CodeForbidden, "This product is already part of existing orders and cannot be deleted")
)

const moneyScale = 2

type Product struct {
	ID         string
	MerchantID string
	Name       string
	Price      decimal.Decimal
	StockCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func New(id, merchantID, name string, price decimal.Decimal, stock int) (*Product, error) {
	if err := validate(name, price, stock); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Product{
		ID:         id,
		MerchantID: merchantID,
		Name:       strings.TrimSpace(name),
		Price:      price.Round(moneyScale),
		StockCount: stock,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Revise replaces the catalog fields in one step. Nothing changes when the
// new values are invalid.
func (p *Product) Revise(name string, price decimal.Decimal, stock int) error {
	if err := validate(name, price, stock); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(name)
	p.Price = price.Round(moneyScale)
	p.StockCount = stock
	p.touch()
	return nil
}

// OwnedBy reports ErrForbidden unless merchantID listed the product.
func (p *Product) OwnedBy(merchantID string) error {
	if p.MerchantID != merchantID {
		return ErrForbidden
	}
	return nil
}

func validate(name string, price decimal.Decimal, stock int) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if price.IsNegative() {
		return ErrInvalidPrice
	}
	if stock < 0 {
		return ErrInvalidStock
	}
	return nil
}

// CheckAvailable reports OutOfStock when count exceeds the current stock.
func (p *Product) CheckAvailable(count int) error {
	if count <= 0 {
		return failure.Newf(failure.CodeInvalidArgument, "Invalid quantity for %s", p.Name)
	}
	if count > p.StockCount {
		return failure.Derive(ErrOutOfStock, "Product '%s' only %d left", p.Name, p.StockCount)
	}
	return nil
}

// Deduct removes count units from stock. Stock never goes below zero.
func (p *Product) Deduct(count int) error {
	if err := p.CheckAvailable(count); err != nil {
		return err
	}
	p.StockCount -= count
	p.touch()
	return nil
}

// Restock returns count units to stock.
func (p *Product) Restock(count int) error {
	if count <= 0 {
		return ErrInvalidQuantity
	}
	p.StockCount += count
	p.touch()
	return nil
}

// Total is the amount charged for count units at the current price.
func (p *Product) Total(count int) decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(count))).Round(moneyScale)
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}

type Repository interface {
	Insert(ctx context.Context, p *Product) error
	Get(ctx context.Context, id string) (*Product, error)
	// List returns every product, newest first.
	List(ctx context.Context) ([]*Product, error)
	// GetForUpdate loads the product and holds its exclusive lock until the
	// enclosing unit of work ends.
	GetForUpdate(ctx context.Context, id string) (*Product, error)
	Update(ctx context.Context, p *Product) error
	// Delete removes the product together with any cart lines holding it.
	Delete(ctx context.Context, id string) error
}
