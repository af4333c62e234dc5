package inventory

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newLedger(t *testing.T, stock int) *Ledger {
	t.Helper()
	store := memory.NewStore()
	p, err := product.New("p1", "m1", "Desk Lamp", decimal.RequireFromString("12.50"), stock)
	require.NoError(t, err)
	require.NoError(t, store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Products().Insert(ctx, p)
	}))
	return NewLedger(store, observability.Nop())
}

func TestDecrement(t *testing.T) {
	ledger := newLedger(t, 5)

	p, err := ledger.Decrement(context.Background(), StockInput{ProductID: "p1", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, p.StockCount)

	_, err = ledger.Decrement(context.Background(), StockInput{ProductID: "p1", Count: 3})
	require.Error(t, err)
	assert.Equal(t, failure.CodeOutOfStock, failure.CodeOf(err))
	assert.Equal(t, "Product 'Desk Lamp' only 2 left", failure.MessageOf(err))

	_, err = ledger.Decrement(context.Background(), StockInput{ProductID: "p1"})
	assert.ErrorIs(t, err, product.ErrInvalidQuantity)

	_, err = ledger.Decrement(context.Background(), StockInput{ProductID: "missing", Count: 1})
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestRestockHasNoUpperBound(t *testing.T) {
	ledger := newLedger(t, 0)

	p, err := ledger.Restock(context.Background(), StockInput{ProductID: "p1", Count: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, 1_000_000, p.StockCount)

	_, err = ledger.Restock(context.Background(), StockInput{ProductID: "p1"})
	assert.ErrorIs(t, err, product.ErrInvalidQuantity)
}

func TestMerchantMayOnlyChangeOwnStock(t *testing.T) {
	ledger := newLedger(t, 4)
	ctx := context.Background()

	_, err := ledger.Restock(ctx, StockInput{ProductID: "p1", MerchantID: "m2", Count: 1})
	assert.ErrorIs(t, err, product.ErrForbidden)
	_, err = ledger.Decrement(ctx, StockInput{ProductID: "p1", MerchantID: "m2", Count: 1})
	assert.ErrorIs(t, err, product.ErrForbidden)
	_, err = ledger.Restock(ctx, StockInput{ProductID: "missing", MerchantID: "m1", Count: 1})
	assert.ErrorIs(t, err, product.ErrNotFound)

	p, err := ledger.Restock(ctx, StockInput{ProductID: "p1", MerchantID: "m1", Count: 6})
	require.NoError(t, err)
	assert.Equal(t, 10, p.StockCount)
	p, err = ledger.Decrement(ctx, StockInput{ProductID: "p1", MerchantID: "m1", Count: 10})
	require.NoError(t, err)
	assert.Zero(t, p.StockCount)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	const stock, buyers = 10, 50
	ledger := newLedger(t, stock)

	var sold atomic.Int32
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			_, err := ledger.Decrement(context.Background(), StockInput{ProductID: "p1", Count: 1})
			if err == nil {
				sold.Add(1)
				return nil
			}
			if failure.CodeOf(err) != failure.CodeOutOfStock {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(stock), sold.Load())
	p, err := ledger.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Zero(t, p.StockCount)
}
