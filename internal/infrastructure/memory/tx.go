package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
)

const (
	lockCustomer = "customer"
	lockProduct  = "product"
)

type tx struct {
	s *Store

	// mu guards the write set; a tx is normally used by one goroutine.
	mu       sync.Mutex
	closed   bool
	held     map[string]func()
	released bool

	customers     staged[*customer.Customer]
	products      staged[*product.Product]
	carts         staged[*cart.Cart]
	items         staged[*cart.Item]
	orders        staged[*order.Order]
	notifications staged[*notification.Notification]
}

var _ application.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{s: s, held: make(map[string]func())}
}

func (t *tx) Customers() customer.Repository         { return customerRepo{t} }
func (t *tx) Products() product.Repository           { return productRepo{t} }
func (t *tx) Carts() cart.Repository                 { return cartRepo{t} }
func (t *tx) Orders() order.Repository               { return orderRepo{t} }
func (t *tx) Notifications() notification.Repository { return notificationRepo{t} }

func (t *tx) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *tx) releaseLocks() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	for _, release := range t.held {
		release()
	}
	t.held = nil
}

// lock takes the exclusive lock once per transaction; repeated calls for a
// key already held return immediately.
func (t *tx) lock(ctx context.Context, kind, id string) error {
	key := kind + ":" + id
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTxClosed
	}
	if _, ok := t.held[key]; ok {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	release, err := t.s.lock(ctx, kind, id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		release()
		return ErrTxClosed
	}
	t.held[key] = release
	return nil
}

// read runs fn with the store read-locked and the write set guarded.
func (t *tx) read(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTxClosed
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return fn()
}

// write runs fn with the write set guarded.
func (t *tx) write(fn func() error) error {
	return t.read(fn)
}

func requireID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("memory: %s id is required", kind)
	}
	return nil
}

type customerRepo struct{ t *tx }

func (r customerRepo) Insert(_ context.Context, c *customer.Customer) error {
	if c == nil {
		return fmt.Errorf("memory: customer is nil")
	}
	if err := requireID("customer", c.ID); err != nil {
		return err
	}
	return r.t.write(func() error {
		if _, exists := lookup(r.t.s.customers, &r.t.customers, c.ID); exists {
			return fmt.Errorf("memory: customer %s already exists", c.ID)
		}
		r.t.customers.put(c.ID, c)
		return nil
	})
}

func (r customerRepo) Get(_ context.Context, id string) (*customer.Customer, error) {
	var out *customer.Customer
	err := r.t.read(func() error {
		c, ok := lookup(r.t.s.customers, &r.t.customers, id)
		if !ok {
			return customer.ErrNotFound
		}
		out = c
		return nil
	})
	return out, err
}

func (r customerRepo) GetForUpdate(ctx context.Context, id string) (*customer.Customer, error) {
	if err := r.t.lock(ctx, lockCustomer, id); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r customerRepo) Update(_ context.Context, c *customer.Customer) error {
	if c == nil {
		return fmt.Errorf("memory: customer is nil")
	}
	return r.t.write(func() error {
		if _, ok := lookup(r.t.s.customers, &r.t.customers, c.ID); !ok {
			return customer.ErrNotFound
		}
		r.t.customers.put(c.ID, c)
		return nil
	})
}

type productRepo struct{ t *tx }

func (r productRepo) Insert(_ context.Context, p *product.Product) error {
	if p == nil {
		return fmt.Errorf("memory: product is nil")
	}
	if err := requireID("product", p.ID); err != nil {
		return err
	}
	return r.t.write(func() error {
		if _, exists := lookup(r.t.s.products, &r.t.products, p.ID); exists {
			return fmt.Errorf("memory: product %s already exists", p.ID)
		}
		r.t.products.put(p.ID, p)
		return nil
	})
}

func (r productRepo) Get(_ context.Context, id string) (*product.Product, error) {
	var out *product.Product
	err := r.t.read(func() error {
		p, ok := lookup(r.t.s.products, &r.t.products, id)
		if !ok {
			return product.ErrNotFound
		}
		out = p
		return nil
	})
	return out, err
}

func (r productRepo) GetForUpdate(ctx context.Context, id string) (*product.Product, error) {
	if err := r.t.lock(ctx, lockProduct, id); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r productRepo) Update(_ context.Context, p *product.Product) error {
	if p == nil {
		return fmt.Errorf("memory: product is nil")
	}
	return r.t.write(func() error {
		if _, ok := lookup(r.t.s.products, &r.t.products, p.ID); !ok {
			return product.ErrNotFound
		}
		r.t.products.put(p.ID, p)
		return nil
	})
}

// List returns every product, newest first.
func (r productRepo) List(_ context.Context) ([]*product.Product, error) {
	var out []*product.Product
	err := r.t.read(func() error {
		out = scan(r.t.s.products, &r.t.products, func(*product.Product) bool { return true })
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func (r productRepo) Delete(_ context.Context, id string) error {
	return r.t.write(func() error {
		if _, ok := lookup(r.t.s.products, &r.t.products, id); !ok {
			return product.ErrNotFound
		}
		r.t.products.remove(id)
		for _, item := range scan(r.t.s.items, &r.t.items, func(i *cart.Item) bool { return i.ProductID == id }) {
			r.t.items.remove(item.ID)
		}
		return nil
	})
}

type cartRepo struct{ t *tx }

func (r cartRepo) GetByCustomer(_ context.Context, customerID string) (*cart.Cart, error) {
	var out *cart.Cart
	err := r.t.read(func() error {
		found := scan(r.t.s.carts, &r.t.carts, func(c *cart.Cart) bool { return c.CustomerID == customerID })
		if len(found) == 0 {
			return cart.ErrNotFound
		}
		out = found[0]
		return nil
	})
	return out, err
}

func (r cartRepo) Insert(_ context.Context, c *cart.Cart) error {
	if c == nil {
		return fmt.Errorf("memory: cart is nil")
	}
	if err := requireID("cart", c.ID); err != nil {
		return err
	}
	return r.t.write(func() error {
		dup := scan(r.t.s.carts, &r.t.carts, func(x *cart.Cart) bool {
			return x.ID == c.ID || x.CustomerID == c.CustomerID
		})
		if len(dup) > 0 {
			return fmt.Errorf("memory: cart for customer %s already exists", c.CustomerID)
		}
		r.t.carts.put(c.ID, c)
		return nil
	})
}

func (r cartRepo) Update(_ context.Context, c *cart.Cart) error {
	if c == nil {
		return fmt.Errorf("memory: cart is nil")
	}
	return r.t.write(func() error {
		if _, ok := lookup(r.t.s.carts, &r.t.carts, c.ID); !ok {
			return cart.ErrNotFound
		}
		r.t.carts.put(c.ID, c)
		return nil
	})
}

func (r cartRepo) Items(_ context.Context, cartID string) ([]*cart.Item, error) {
	var out []*cart.Item
	err := r.t.read(func() error {
		out = scan(r.t.s.items, &r.t.items, func(i *cart.Item) bool { return i.CartID == cartID })
		return nil
	})
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, err
}

func (r cartRepo) GetItem(_ context.Context, itemID string) (*cart.Item, error) {
	var out *cart.Item
	err := r.t.read(func() error {
		i, ok := lookup(r.t.s.items, &r.t.items, itemID)
		if !ok {
			return cart.ErrItemNotFound
		}
		out = i
		return nil
	})
	return out, err
}

func (r cartRepo) FindItem(_ context.Context, cartID, productID string) (*cart.Item, error) {
	var out *cart.Item
	err := r.t.read(func() error {
		found := scan(r.t.s.items, &r.t.items, func(i *cart.Item) bool {
			return i.CartID == cartID && i.ProductID == productID
		})
		if len(found) == 0 {
			return cart.ErrItemNotFound
		}
		out = found[0]
		return nil
	})
	return out, err
}

func (r cartRepo) SaveItem(_ context.Context, item *cart.Item) error {
	if item == nil {
		return fmt.Errorf("memory: cart item is nil")
	}
	if err := requireID("cart item", item.ID); err != nil {
		return err
	}
	return r.t.write(func() error {
		dup := scan(r.t.s.items, &r.t.items, func(i *cart.Item) bool {
			return i.ID != item.ID && i.CartID == item.CartID && i.ProductID == item.ProductID
		})
		if len(dup) > 0 {
			return fmt.Errorf("memory: product %s already in cart %s", item.ProductID, item.CartID)
		}
		r.t.items.put(item.ID, item)
		return nil
	})
}

func (r cartRepo) DeleteItem(_ context.Context, itemID string) error {
	return r.t.write(func() error {
		if _, ok := lookup(r.t.s.items, &r.t.items, itemID); !ok {
			return cart.ErrItemNotFound
		}
		r.t.items.remove(itemID)
		return nil
	})
}

type orderRepo struct{ t *tx }

func (r orderRepo) Insert(_ context.Context, o *order.Order) error {
	if o == nil {
		return fmt.Errorf("memory: order is nil")
	}
	if err := requireID("order", o.ID); err != nil {
		return err
	}
	return r.t.write(func() error {
		if _, exists := lookup(r.t.s.orders, &r.t.orders, o.ID); exists {
			return order.ErrConflict
		}
		r.t.orders.put(o.ID, o)
		return nil
	})
}

func (r orderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	var out *order.Order
	err := r.t.read(func() error {
		o, ok := lookup(r.t.s.orders, &r.t.orders, id)
		if !ok {
			return order.ErrNotFound
		}
		out = o
		return nil
	})
	return out, err
}

func (r orderRepo) Update(_ context.Context, o *order.Order) error {
	if o == nil {
		return fmt.Errorf("memory: order is nil")
	}
	return r.t.write(func() error {
		if _, ok := lookup(r.t.s.orders, &r.t.orders, o.ID); !ok {
			return order.ErrNotFound
		}
		r.t.orders.put(o.ID, o)
		return nil
	})
}

func (r orderRepo) ListByCustomer(_ context.Context, customerID string) ([]*order.Order, error) {
	return r.list(func(o *order.Order) bool { return o.CustomerID == customerID }, newestFirst)
}

func (r orderRepo) ListByMerchant(_ context.Context, merchantID string) ([]*order.Order, error) {
	return r.list(func(o *order.Order) bool { return o.MerchantID == merchantID }, newestFirst)
}

func (r orderRepo) FindByIdempotency(_ context.Context, customerID, key string) ([]*order.Order, error) {
	if key == "" {
		return nil, nil
	}
	return r.list(func(o *order.Order) bool {
		return o.CustomerID == customerID && o.IdempotencyKey == key
	}, oldestFirst)
}

func (r orderRepo) ExistsForProduct(_ context.Context, productID string) (bool, error) {
	found, err := r.list(func(o *order.Order) bool { return o.ProductID == productID }, newestFirst)
	return len(found) > 0, err
}

func (r orderRepo) list(keep func(*order.Order) bool, less func(a, b *order.Order) bool) ([]*order.Order, error) {
	var out []*order.Order
	err := r.t.read(func() error {
		out = scan(r.t.s.orders, &r.t.orders, keep)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, err
}

func newestFirst(a, b *order.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func oldestFirst(a, b *order.Order) bool {
	return newestFirst(b, a)
}

type notificationRepo struct{ t *tx }

func (r notificationRepo) Insert(_ context.Context, n *notification.Notification) error {
	if n == nil {
		return fmt.Errorf("memory: notification is nil")
	}
	if err := requireID("notification", n.ID); err != nil {
		return err
	}
	return r.t.write(func() error {
		if _, exists := lookup(r.t.s.notifications, &r.t.notifications, n.ID); exists {
			return fmt.Errorf("memory: notification %s already exists", n.ID)
		}
		r.t.notifications.put(n.ID, n)
		return nil
	})
}

func (r notificationRepo) Get(_ context.Context, id string) (*notification.Notification, error) {
	var out *notification.Notification
	err := r.t.read(func() error {
		n, ok := lookup(r.t.s.notifications, &r.t.notifications, id)
		if !ok {
			return notification.ErrNotFound
		}
		out = n
		return nil
	})
	return out, err
}

func (r notificationRepo) Update(_ context.Context, n *notification.Notification) error {
	if n == nil {
		return fmt.Errorf("memory: notification is nil")
	}
	return r.t.write(func() error {
		if _, ok := lookup(r.t.s.notifications, &r.t.notifications, n.ID); !ok {
			return notification.ErrNotFound
		}
		r.t.notifications.put(n.ID, n)
		return nil
	})
}

func (r notificationRepo) List(_ context.Context) ([]*notification.Notification, error) {
	var out []*notification.Notification
	err := r.t.read(func() error {
		out = scan(r.t.s.notifications, &r.t.notifications, func(*notification.Notification) bool { return true })
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Read != b.Read {
			return !a.Read
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out, err
}

func (r notificationRepo) MarkAllRead(_ context.Context) (int, error) {
	changed := 0
	err := r.t.write(func() error {
		unread := scan(r.t.s.notifications, &r.t.notifications, func(n *notification.Notification) bool { return !n.Read })
		for _, n := range unread {
			if n.MarkRead() {
				r.t.notifications.put(n.ID, n)
				changed++
			}
		}
		return nil
	})
	return changed, err
}
