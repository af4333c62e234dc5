package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/apptest"
	appcart "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
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

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type fixture struct {
	store  *memory.Store
	orders *Service
	carts  *appcart.Service
	events *recordingPublisher
}

func newFixture(t *testing.T, seeds ...apptest.Seed) *fixture {
	t.Helper()
	store := apptest.NewStore(t, seeds...)
	ids := apptest.NewIDs("id")
	events := &recordingPublisher{}
	return &fixture{
		store:  store,
		orders: NewService(store, ids, events, observability.Nop()),
		carts:  appcart.NewService(store, ids, observability.Nop()),
		events: events,
	}
}

func (f *fixture) add(t *testing.T, customerID, productID string, count int) {
	t.Helper()
	_, err := f.carts.AddToCart(context.Background(), customerID, productID, count)
	require.NoError(t, err)
}

func (f *fixture) notifications(t *testing.T) []*notification.Notification {
	t.Helper()
	var out []*notification.Notification
	require.NoError(t, f.store.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		list, err := tx.Notifications().List(ctx)
		out = list
		return err
	}))
	return out
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCheckoutSingleItem(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "500"),
		apptest.Product("chair", "m1", "Chair", "100", 10),
	)
	f.add(t, "alice", "chair", 2)

	res, err := f.orders.CreateOrdersFromCart(context.Background(), "alice", "")
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)

	o := res.Orders[0]
	assert.Equal(t, domain.StatusPaidFromBalance, o.Status)
	assert.True(t, o.Paid)
	assert.True(t, o.TotalAmount.Equal(dec("200")))
	assert.Equal(t, "m1", o.MerchantID)
	assert.Equal(t, "Chair", o.ProductName)
	assert.Equal(t, 2, o.Count)

	assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("300")))
	assert.Equal(t, 8, apptest.Stock(t, f.store, "chair"))

	view, err := f.carts.GetCart(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	notes := f.notifications(t)
	require.Len(t, notes, 1)
	assert.Equal(t, fmt.Sprintf("New order #%s created for Chair", o.ID), notes[0].Message)
	assert.Equal(t, o.ID, notes[0].OrderID)
	assert.False(t, notes[0].Read)

	assert.Equal(t, []string{"order.created"}, f.events.names())
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t, apptest.Customer("alice", "10"))

	res, err := f.orders.CreateOrdersFromCart(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Empty(t, res.Orders)
	assert.Empty(t, f.events.names())
}

func TestCheckoutUnknownCustomer(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.CreateOrdersFromCart(context.Background(), "ghost", "")
	assert.Equal(t, failure.CodeNotFound, failure.CodeOf(err))
}

func TestCheckoutIsAllOrNothing(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "500"),
		apptest.Product("a-chair", "m1", "Chair", "100", 10),
		apptest.Product("b-desk", "m2", "Desk", "400", 10),
	)
	f.add(t, "alice", "a-chair", 2)
	f.add(t, "alice", "b-desk", 1)

	_, err := f.orders.CreateOrdersFromCart(context.Background(), "alice", "")
	require.Error(t, err)
	assert.Equal(t, failure.CodeInsufficientBalance, failure.CodeOf(err))

	assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("500")))
	assert.Equal(t, 10, apptest.Stock(t, f.store, "a-chair"))
	assert.Equal(t, 10, apptest.Stock(t, f.store, "b-desk"))

	list, err := f.orders.ListForCustomer(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.notifications(t))

	view, err := f.carts.GetCart(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, view.Items, 2, "cart must survive a failed checkout")
	assert.Empty(t, f.events.names())
}

func TestCheckoutValidatesStockBeforeCharging(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "1000"),
		apptest.Customer("bob", "1000"),
		apptest.Product("a-chair", "m1", "Chair", "100", 3),
		apptest.Product("b-desk", "m1", "Desk", "50", 3),
	)
	f.add(t, "alice", "a-chair", 1)
	f.add(t, "alice", "b-desk", 3)
	// bob buys the desks first; alice's cart is now stale.
	f.add(t, "bob", "b-desk", 2)
	_, err := f.orders.CreateOrdersFromCart(context.Background(), "bob", "")
	require.NoError(t, err)

	_, err = f.orders.CreateOrdersFromCart(context.Background(), "alice", "")
	require.Error(t, err)
	assert.Equal(t, failure.CodeOutOfStock, failure.CodeOf(err))
	assert.Equal(t, "Product 'Desk' only 1 left", failure.MessageOf(err))

	assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("1000")))
	assert.Equal(t, 3, apptest.Stock(t, f.store, "a-chair"))
}

func TestCheckoutNoBalance(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "0"),
		apptest.Product("chair", "m1", "Chair", "100", 1),
	)
	f.add(t, "alice", "chair", 1)

	_, err := f.orders.CreateOrdersFromCart(context.Background(), "alice", "")
	assert.Equal(t, failure.CodeNoBalance, failure.CodeOf(err))
	assert.Equal(t, "You have no balance to continue order", failure.MessageOf(err))
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "500"),
		apptest.Product("chair", "m1", "Chair", "100", 10),
	)
	f.add(t, "alice", "chair", 1)

	first, err := f.orders.CreateOrdersFromCart(context.Background(), "alice", "key-1")
	require.NoError(t, err)
	require.Len(t, first.Orders, 1)

	f.add(t, "alice", "chair", 1)
	replay, err := f.orders.CreateOrdersFromCart(context.Background(), "alice", "key-1")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	require.Len(t, replay.Orders, 1)
	assert.Equal(t, first.Orders[0].ID, replay.Orders[0].ID)

	assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("400")))
	assert.Equal(t, 9, apptest.Stock(t, f.store, "chair"))
	assert.Len(t, f.events.names(), 1)
}

func TestCheckoutSucceedsWhenPublishFails(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "500"),
		apptest.Product("chair", "m1", "Chair", "100", 10),
	)
	f.events.err = errors.New("broker down")
	f.add(t, "alice", "chair", 1)

	res, err := f.orders.CreateOrdersFromCart(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Len(t, res.Orders, 1)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	const stock, buyers = 5, 20
	seeds := []apptest.Seed{apptest.Product("chair", "m1", "Chair", "10", stock)}
	for i := 0; i < buyers; i++ {
		seeds = append(seeds, apptest.Customer(fmt.Sprintf("c%02d", i), "100"))
	}
	f := newFixture(t, seeds...)
	for i := 0; i < buyers; i++ {
		f.add(t, fmt.Sprintf("c%02d", i), "chair", 1)
	}

	var placed atomic.Int32
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		customerID := fmt.Sprintf("c%02d", i)
		g.Go(func() error {
			res, err := f.orders.CreateOrdersFromCart(context.Background(), customerID, "")
			if err != nil {
				if failure.CodeOf(err) == failure.CodeOutOfStock {
					assert.True(t, apptest.Balance(t, f.store, customerID).Equal(dec("100")))
					return nil
				}
				return err
			}
			placed.Add(int32(len(res.Orders)))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(stock), placed.Load())
	assert.Zero(t, apptest.Stock(t, f.store, "chair"))
}

func TestConcurrentCheckoutsOfOneCartChargeOnce(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "500"),
		apptest.Product("chair", "m1", "Chair", "100", 10),
	)
	f.add(t, "alice", "chair", 2)

	var placed atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			res, err := f.orders.CreateOrdersFromCart(context.Background(), "alice", "")
			if err != nil {
				return err
			}
			placed.Add(int32(len(res.Orders)))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), placed.Load())
	assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("300")))
	assert.Equal(t, 8, apptest.Stock(t, f.store, "chair"))
}

func placeOrder(t *testing.T, f *fixture, customerID, productID string, count int) *domain.Order {
	t.Helper()
	f.add(t, customerID, productID, count)
	res, err := f.orders.CreateOrdersFromCart(context.Background(), customerID, "")
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	return res.Orders[0]
}

func TestMerchantRejectCompensates(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "500"),
		apptest.Product("chair", "m1", "Chair", "100", 10),
	)
	o := placeOrder(t, f, "alice", "chair", 2)

	rejected, err := f.orders.UpdateOrderStatus(context.Background(), "m1", o.ID, "REJECT_BY_MERCHANT")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejectByMerchant, rejected.Status)
	assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("500")))
	assert.Equal(t, 10, apptest.Stock(t, f.store, "chair"))

	_, err = f.orders.UpdateOrderStatus(context.Background(), "m1", o.ID, "REJECT_BY_MERCHANT")
	assert.Equal(t, failure.CodeInvalidTransition, failure.CodeOf(err))
	_, err = f.orders.CancelOrder(context.Background(), "alice", o.ID)
	assert.Equal(t, failure.CodeInvalidTransition, failure.CodeOf(err))
	assert.Equal(t, "This order is already rejected by merchant", failure.MessageOf(err))

	assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("500")))
	assert.Equal(t, 10, apptest.Stock(t, f.store, "chair"))
	assert.Equal(t, []string{"order.created", "order.status_changed"}, f.events.names())
}

func TestDoubleCancelCompensatesOnce(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "500"),
		apptest.Product("chair", "m1", "Chair", "100", 10),
	)
	o := placeOrder(t, f, "alice", "chair", 1)

	cancelled, err := f.orders.CancelOrder(context.Background(), "alice", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejectByCustomer, cancelled.Status)

	_, err = f.orders.CancelOrder(context.Background(), "alice", o.ID)
	assert.Equal(t, failure.CodeInvalidTransition, failure.CodeOf(err))
	assert.Equal(t, "This order is already cancelled by customer", failure.MessageOf(err))

	assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("500")))
	assert.Equal(t, 10, apptest.Stock(t, f.store, "chair"))
}

func TestConcurrentRejectAndCancelCompensateOnce(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "500"),
		apptest.Product("chair", "m1", "Chair", "100", 10),
	)
	o := placeOrder(t, f, "alice", "chair", 3)

	var succeeded atomic.Int32
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		merchant := i%2 == 0
		g.Go(func() error {
			var err error
			if merchant {
				_, err = f.orders.UpdateOrderStatus(context.Background(), "m1", o.ID, "REJECT_BY_MERCHANT")
			} else {
				_, err = f.orders.CancelOrder(context.Background(), "alice", o.ID)
			}
			if err == nil {
				succeeded.Add(1)
				return nil
			}
			if failure.CodeOf(err) != failure.CodeInvalidTransition {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), succeeded.Load())
	assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("500")))
	assert.Equal(t, 10, apptest.Stock(t, f.store, "chair"))
}

func TestMerchantLifecycle(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "500"),
		apptest.Product("chair", "m1", "Chair", "100", 10),
	)
	o := placeOrder(t, f, "alice", "chair", 1)
	ctx := context.Background()

	_, err := f.orders.UpdateOrderStatus(ctx, "m1", o.ID, "DELIVERED")
	assert.Equal(t, failure.CodeInvalidTransition, failure.CodeOf(err), "delivery requires acceptance")

	accepted, err := f.orders.UpdateOrderStatus(ctx, "m1", o.ID, "accepted")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, accepted.Status)

	delivered, err := f.orders.UpdateOrderStatus(ctx, "m1", o.ID, "DELIVERED")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, delivered.Status)

	_, err = f.orders.CancelOrder(ctx, "alice", o.ID)
	assert.Equal(t, failure.CodeInvalidTransition, failure.CodeOf(err))
	_, err = f.orders.UpdateOrderStatus(ctx, "m1", o.ID, "REJECT_BY_MERCHANT")
	assert.Equal(t, failure.CodeInvalidTransition, failure.CodeOf(err))

	assert.True(t, apptest.Balance(t, f.store, "alice").Equal(dec("400")))
	assert.Equal(t, 9, apptest.Stock(t, f.store, "chair"))
}

func TestUpdateOrderStatusGuards(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "500"),
		apptest.Product("chair", "m1", "Chair", "100", 10),
	)
	o := placeOrder(t, f, "alice", "chair", 1)
	ctx := context.Background()

	tests := []struct {
		name     string
		merchant string
		orderID  string
		status   string
		code     failure.Code
	}{
		{"unknown status", "m1", o.ID, "SHIPPED", failure.CodeInvalidArgument},
		{"merchant cannot cancel for customer", "m1", o.ID, "REJECT_BY_CUSTOMER", failure.CodeInvalidTransition},
		{"unknown order", "m1", "missing", "ACCEPTED", failure.CodeNotFound},
		{"other merchant", "m2", o.ID, "ACCEPTED", failure.CodeForbidden},
		{"back to paid", "m1", o.ID, "PAID_FROM_BALANCE", failure.CodeInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.UpdateOrderStatus(ctx, tt.merchant, tt.orderID, tt.status)
			require.Error(t, err)
			assert.Equal(t, tt.code, failure.CodeOf(err))
		})
	}
}

func TestCancelOrderGuards(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "500"),
		apptest.Customer("bob", "500"),
		apptest.Product("chair", "m1", "Chair", "100", 10),
	)
	o := placeOrder(t, f, "alice", "chair", 1)

	_, err := f.orders.CancelOrder(context.Background(), "bob", o.ID)
	assert.Equal(t, failure.CodeForbidden, failure.CodeOf(err))
	_, err = f.orders.CancelOrder(context.Background(), "alice", "missing")
	assert.Equal(t, failure.CodeNotFound, failure.CodeOf(err))
}

func TestListings(t *testing.T) {
	f := newFixture(t,
		apptest.Customer("alice", "1000"),
		apptest.Product("chair", "m1", "Chair", "10", 10),
		apptest.Product("desk", "m2", "Desk", "10", 10),
	)
	first := placeOrder(t, f, "alice", "chair", 1)
	second := placeOrder(t, f, "alice", "chair", 1)
	other := placeOrder(t, f, "alice", "desk", 1)
	ctx := context.Background()

	_, err := f.orders.CancelOrder(ctx, "alice", first.ID)
	require.NoError(t, err)

	mine, err := f.orders.ListForCustomer(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, mine, 3)
	assert.Equal(t, other.ID, mine[0].ID)

	forM1, err := f.orders.ListForMerchant(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, forM1, 1)
	assert.Equal(t, second.ID, forM1[0].ID)

	none, err := f.orders.ListForMerchant(ctx, "m3")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
