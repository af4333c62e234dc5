package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	balanceService = "balance-service"
	useCaseDebit   = "balance.debit"
	useCaseCredit  = "balance.credit"
	useCaseProfile = "balance.profile"
)

var ErrRepository = errors.New("balance: repository failure")

// Ledger owns every mutation of a customer's balance.
type Ledger struct {
	uow application.UnitOfWork
	ins *application.Instruments
}

func NewLedger(uow application.UnitOfWork, tel observability.Observability) *Ledger {
	return &Ledger{uow: uow, ins: application.NewInstruments(balanceService, tel)}
}

// Debit subtracts amount from the customer's balance in its own unit of work.
func (l *Ledger) Debit(ctx context.Context, customerID string, amount decimal.Decimal) (_ *customer.Customer, err error) {
	ctx, run := l.ins.Begin(ctx, useCaseDebit, "Debit",
		attribute.String("customer.id", customerID),
		attribute.String("amount", amount.StringFixed(customer.MoneyScale)),
	)
	defer func() { run.End(err) }()

	var snapshot *customer.Customer
	err = l.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		c, err := DebitWithin(ctx, tx, customerID, amount)
		snapshot = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Credit adds amount to the customer's balance in its own unit of work.
func (l *Ledger) Credit(ctx context.Context, customerID string, amount decimal.Decimal) (_ *customer.Customer, err error) {
	ctx, run := l.ins.Begin(ctx, useCaseCredit, "Credit",
		attribute.String("customer.id", customerID),
		attribute.String("amount", amount.StringFixed(customer.MoneyScale)),
	)
	defer func() { run.End(err) }()

	var snapshot *customer.Customer
	err = l.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		c, err := CreditWithin(ctx, tx, customerID, amount)
		snapshot = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Get returns the customer's current profile and balance.
func (l *Ledger) Get(ctx context.Context, customerID string) (_ *customer.Customer, err error) {
	ctx, run := l.ins.Begin(ctx, useCaseProfile, "GetCustomer",
		attribute.String("customer.id", customerID),
	)
	defer func() { run.End(err) }()

	var snapshot *customer.Customer
	err = l.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		c, err := tx.Customers().Get(ctx, customerID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		snapshot = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// DebitWithin debits inside the caller's unit of work. The customer stays
// locked until that unit of work ends.
func DebitWithin(ctx context.Context, tx application.Tx, customerID string, amount decimal.Decimal) (*customer.Customer, error) {
	c, err := tx.Customers().GetForUpdate(ctx, customerID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	if err := c.Debit(amount); err != nil {
		return nil, err
	}
	if err := tx.Customers().Update(ctx, c); err != nil {
		return nil, wrapRepositoryError(err)
	}
	return c.Clone(), nil
}

// CreditWithin credits inside the caller's unit of work.
func CreditWithin(ctx context.Context, tx application.Tx, customerID string, amount decimal.Decimal) (*customer.Customer, error) {
	c, err := tx.Customers().GetForUpdate(ctx, customerID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	if err := c.Credit(amount); err != nil {
		return nil, err
	}
	if err := tx.Customers().Update(ctx, c); err != nil {
		return nil, wrapRepositoryError(err)
	}
	return c.Clone(), nil
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
