package customer

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = failure.New(failure.CodeNotFound, "customer: not found")
	ErrInvalidAmount       = failure.New(failure.CodeInvalidArgument, "customer: invalid amount")
	ErrNoBalance           = failure.New(failure.CodeNoBalance, "You have no balance to continue order")
	ErrInsufficientBalance = failure.New(failure.CodeInsufficientBalance, "Your balance is not enough to cover this order")
)

// MoneyScale is the number of fractional digits kept for balances and prices.
const MoneyScale = 2

type Customer struct {
	ID        string
	UserID    string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns a freshly registered customer with a zero balance.
func New(id, userID string) *Customer {
	now := time.Now().UTC()
	return &Customer{
		ID:        id,
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Debit subtracts amount from the balance. Callers must hold the customer's
// exclusive lock for the whole read-then-write window.
func (c *Customer) Debit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return failure.New(failure.CodeInvalidArgument, "Amount must not be negative")
	}
	if !c.Balance.IsPositive() {
		return ErrNoBalance
	}
	if c.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	c.Balance = c.Balance.Sub(amount).Round(MoneyScale)
	c.touch()
	return nil
}

// Credit adds a strictly positive amount to the balance.
func (c *Customer) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return failure.New(failure.CodeInvalidArgument, "Amount must be greater than zero")
	}
	c.Balance = c.Balance.Add(amount).Round(MoneyScale)
	c.touch()
	return nil
}

func (c *Customer) Clone() *Customer {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func (c *Customer) touch() {
	c.UpdatedAt = time.Now().UTC()
}

type Repository interface {
	Insert(ctx context.Context, c *Customer) error
	Get(ctx context.Context, id string) (*Customer, error)
	// GetForUpdate loads the customer and holds its exclusive lock until the
	// enclosing unit of work ends.
	GetForUpdate(ctx context.Context, id string) (*Customer, error)
	Update(ctx context.Context, c *Customer) error
}
