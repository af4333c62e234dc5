// Package apptest seeds an in-memory store for use-case tests.
package apptest

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type T interface {
	require.TestingT
	Helper()
}

type Seed func(ctx context.Context, tx application.Tx) error

func Customer(id, balance string) Seed {
	return func(ctx context.Context, tx application.Tx) error {
		c := customer.New(id, "user-"+id)
		c.Balance = decimal.RequireFromString(balance)
		return tx.Customers().Insert(ctx, c)
	}
}

func Product(id, merchantID, name, price string, stock int) Seed {
	return func(ctx context.Context, tx application.Tx) error {
		p, err := product.New(id, merchantID, name, decimal.RequireFromString(price), stock)
		if err != nil {
			return err
		}
		return tx.Products().Insert(ctx, p)
	}
}

func NewStore(t T, seeds ...Seed) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	Apply(t, store, seeds...)
	return store
}

// Apply runs the seeds in one transaction against any store.
func Apply(t T, uow application.UnitOfWork, seeds ...Seed) {
	t.Helper()
	err := uow.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		for _, seed := range seeds {
			if err := seed(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func Balance(t T, store application.UnitOfWork, customerID string) decimal.Decimal {
	t.Helper()
	var out decimal.Decimal
	require.NoError(t, store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		c, err := tx.Customers().Get(ctx, customerID)
		if err != nil {
			return err
		}
		out = c.Balance
		return nil
	}))
	return out
}

func Stock(t T, store application.UnitOfWork, productID string) int {
	t.Helper()
	var out int
	require.NoError(t, store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		p, err := tx.Products().Get(ctx, productID)
		if err != nil {
			return err
		}
		out = p.StockCount
		return nil
	}))
	return out
}

// IDs issues predictable identifiers: prefix-1, prefix-2, ...
type IDs struct {
	prefix string
	n      atomic.Int64
}

func NewIDs(prefix string) *IDs { return &IDs{prefix: prefix} }

func (g *IDs) NewID() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
