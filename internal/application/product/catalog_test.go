package product

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/apptest"
	appcart "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
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

var discard = domoutbox.PublisherFunc(func(context.Context, domoutbox.Event) error { return nil })

type fixture struct {
	store   *memory.Store
	catalog *Service
	carts   *appcart.Service
	orders  *apporder.Service
}

func newFixture(t *testing.T, seeds ...apptest.Seed) *fixture {
	t.Helper()
	store := apptest.NewStore(t, seeds...)
	ids := apptest.NewIDs("id")
	tel := observability.Nop()
	return &fixture{
		store:   store,
		catalog: NewService(store, ids, inventory.NewLedger(store, tel), tel),
		carts:   appcart.NewService(store, ids, tel),
		orders:  apporder.NewService(store, ids, discard, tel),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateListGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lamp, err := f.catalog.Create(ctx, CreateInput{MerchantID: "m1", Name: "Lamp", Price: dec("19.99"), StockCount: 3})
	require.NoError(t, err)
	assert.Equal(t, "m1", lamp.MerchantID)

	_, err = f.catalog.Create(ctx, CreateInput{MerchantID: "m1", Name: "Free Sample", Price: decimal.Zero})
	require.NoError(t, err)

	list, err := f.catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	got, err := f.catalog.Get(ctx, lamp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", got.Name)
	assert.Equal(t, "19.99", got.Price.String())
	assert.Equal(t, 3, got.StockCount)

	_, err = f.catalog.Get(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListEmpty(t *testing.T) {
	f := newFixture(t)
	list, err := f.catalog.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestCreateValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.Create(ctx, CreateInput{MerchantID: "m1", Name: "Lamp", Price: dec("-1"), StockCount: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	_, err = f.catalog.Create(ctx, CreateInput{MerchantID: "m1", Name: "Lamp", Price: dec("1"), StockCount: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidStock)
	_, err = f.catalog.Create(ctx, CreateInput{MerchantID: "m1", Price: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	list, err := f.catalog.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, apptest.Product("lamp", "m1", "Lamp", "10", 5))
	ctx := context.Background()

	_, err := f.catalog.Update(ctx, UpdateInput{MerchantID: "m2", ProductID: "lamp", Name: "Mine", Price: dec("1"), StockCount: 1})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.catalog.Update(ctx, UpdateInput{MerchantID: "m1", ProductID: "ghost", Name: "x", Price: dec("1")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.catalog.Update(ctx, UpdateInput{MerchantID: "m1", ProductID: "lamp", Name: "Lamp", Price: dec("1"), StockCount: -2})
	assert.ErrorIs(t, err, domain.ErrInvalidStock)
	assert.Equal(t, 5, apptest.Stock(t, f.store, "lamp"))

	p, err := f.catalog.Update(ctx, UpdateInput{MerchantID: "m1", ProductID: "lamp", Name: "Desk Lamp", Price: dec("12.5"), StockCount: 8})
	require.NoError(t, err)
	assert.Equal(t, "Desk Lamp", p.Name)

	got, err := f.catalog.Get(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, "Desk Lamp", got.Name)
	assert.True(t, got.Price.Equal(dec("12.50")))
	assert.Equal(t, 8, got.StockCount)
}

func TestDelete(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "100"),
		apptest.Product("lamp", "m1", "Lamp", "10", 5),
		apptest.Product("desk", "m1", "Desk", "40", 5),
	)
	ctx := context.Background()

	_, err := f.carts.AddToCart(ctx, "alice", "lamp", 1)
	require.NoError(t, err)
	_, err = f.orders.CreateOrdersFromCart(ctx, "alice", "")
	require.NoError(t, err)
	_, err = f.carts.AddToCart(ctx, "alice", "desk", 1)
	require.NoError(t, err)

	err = f.catalog.Delete(ctx, "m1", "lamp")
	assert.ErrorIs(t, err, domain.ErrReferenced)
	assert.Equal(t, failure.CodeForbidden, failure.CodeOf(err))

	assert.ErrorIs(t, f.catalog.Delete(ctx, "m2", "desk"), domain.ErrForbidden)
	assert.ErrorIs(t, f.catalog.Delete(ctx, "m1", "ghost"), domain.ErrNotFound)

	require.NoError(t, f.catalog.Delete(ctx, "m1", "desk"))
	_, err = f.catalog.Get(ctx, "desk")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	view, err := f.carts.GetCart(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, view.Items, "cart lines go with the deleted product")
}

func TestAdjustStock(t *testing.T) {
	f := newFixture(t, apptest.Product("lamp", "m1", "Lamp", "10", 5))
	ctx := context.Background()

	p, err := f.catalog.AdjustStock(ctx, "m1", "lamp", 7)
	require.NoError(t, err)
	assert.Equal(t, 12, p.StockCount)

	p, err = f.catalog.AdjustStock(ctx, "m1", "lamp", -2)
	require.NoError(t, err)
	assert.Equal(t, 10, p.StockCount)

	_, err = f.catalog.AdjustStock(ctx, "m1", "lamp", -11)
	assert.Equal(t, failure.CodeOutOfStock, failure.CodeOf(err))
	_, err = f.catalog.AdjustStock(ctx, "m1", "lamp", 0)
	assert.Equal(t, failure.CodeInvalidArgument, failure.CodeOf(err))
	_, err = f.catalog.AdjustStock(ctx, "m2", "lamp", 1)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Equal(t, 10, apptest.Stock(t, f.store, "lamp"))
}

// A merchant cutting stock while a customer checks out must land in one of
// the two serial orders: the checkout at the old price and stock, or a
// refused checkout that charges nothing.
func TestStockEditRacingCheckout(t *testing.T) {
	for i := 0; i < 25; i++ {
		f := newFixture(t,
			apptest.Customer("alice", "100"),
			apptest.Product("lamp", "m1", "Lamp", "10", 5),
		)
		ctx := context.Background()
		_, err := f.carts.AddToCart(ctx, "alice", "lamp", 3)
		require.NoError(t, err)

		var placed int
		var g errgroup.Group
		g.Go(func() error {
			_, err := f.catalog.Update(ctx, UpdateInput{MerchantID: "m1", ProductID: "lamp", Name: "Lamp", Price: dec("20"), StockCount: 1})
			return err
		})
		g.Go(func() error {
			res, err := f.orders.CreateOrdersFromCart(ctx, "alice", "")
			if failure.CodeOf(err) == failure.CodeOutOfStock {
				return nil
			}
			if err != nil {
				return err
			}
			placed = len(res.Orders)
			if placed == 1 {
				assert.True(t, res.Orders[0].TotalAmount.Equal(dec("30")))
			}
			return nil
		})
		require.NoError(t, g.Wait())

		assert.Equal(t, 1, apptest.Stock(t, f.store, "lamp"))
		if placed == 1 {
			assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("70")))
		} else {
			assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("100")))
		}
	}
}
