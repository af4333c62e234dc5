package postgres

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Money columns travel as text so no precision is lost between NUMERIC and
// decimal.Decimal.

type customerRepo struct{ q querier }

const customerColumns = `id, user_id, balance::text, created_at, updated_at`

func scanCustomer(row pgx.Row) (*customer.Customer, error) {
	var (
		c       customer.Customer
		balance string
	)
	if err := row.Scan(&c.ID, &c.UserID, &balance, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("postgres: customer %s balance: %w", c.ID, err)
	}
	c.Balance = amount
	return &c, nil
}

func (r customerRepo) Insert(ctx context.Context, c *customer.Customer) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO customers (id, user_id, balance, created_at, updated_at)
		 VALUES ($1, $2, $3::numeric, $4, $5)`,
		c.ID, c.UserID, c.Balance.String(), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r customerRepo) Get(ctx context.Context, id string) (*customer.Customer, error) {
	c, err := scanCustomer(r.q.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	return c, notFound(err, customer.ErrNotFound)
}

func (r customerRepo) GetForUpdate(ctx context.Context, id string) (*customer.Customer, error) {
	c, err := scanCustomer(r.q.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id))
	return c, notFound(err, customer.ErrNotFound)
}

func (r customerRepo) Update(ctx context.Context, c *customer.Customer) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE customers SET balance = $2::numeric, updated_at = $3 WHERE id = $1`,
		c.ID, c.Balance.String(), c.UpdatedAt)
	return expectOne(tag, err, customer.ErrNotFound)
}

type productRepo struct{ q querier }

const productColumns = `id, merchant_id, name, price::text, stock_count, created_at, updated_at`

func scanProduct(row pgx.Row) (*product.Product, error) {
	var (
		p     product.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.MerchantID, &p.Name, &price, &p.StockCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("postgres: product %s price: %w", p.ID, err)
	}
	p.Price = amount
	return &p, nil
}

func (r productRepo) Insert(ctx context.Context, p *product.Product) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO products (id, merchant_id, name, price, stock_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`,
		p.ID, p.MerchantID, p.Name, p.Price.String(), p.StockCount, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r productRepo) Get(ctx context.Context, id string) (*product.Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	return p, notFound(err, product.ErrNotFound)
}

func (r productRepo) GetForUpdate(ctx context.Context, id string) (*product.Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	return p, notFound(err, product.ErrNotFound)
}

func (r productRepo) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE products SET name = $2, price = $3::numeric, stock_count = $4, updated_at = $5 WHERE id = $1`,
		p.ID, p.Name, p.Price.String(), p.StockCount, p.UpdatedAt)
	return expectOne(tag, err, product.ErrNotFound)
}

func (r productRepo) List(ctx context.Context) ([]*product.Product, error) {
	rows, err := r.q.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanProduct)
}

func (r productRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE product_id = $1`, id); err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	return expectOne(tag, err, product.ErrNotFound)
}

type cartRepo struct{ q querier }

func (r cartRepo) GetByCustomer(ctx context.Context, customerID string) (*cart.Cart, error) {
	var c cart.Cart
	err := r.q.QueryRow(ctx,
		`SELECT id, customer_id, updated_at FROM carts WHERE customer_id = $1`, customerID,
	).Scan(&c.ID, &c.CustomerID, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err, cart.ErrNotFound)
	}
	return &c, nil
}

func (r cartRepo) Insert(ctx context.Context, c *cart.Cart) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO carts (id, customer_id, updated_at) VALUES ($1, $2, $3)`,
		c.ID, c.CustomerID, c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: cart for customer %s already exists: %w", c.CustomerID, err)
	}
	return err
}

func (r cartRepo) Update(ctx context.Context, c *cart.Cart) error {
	tag, err := r.q.Exec(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, c.ID, c.UpdatedAt)
	return expectOne(tag, err, cart.ErrNotFound)
}

func scanItem(row pgx.Row) (*cart.Item, error) {
	var i cart.Item
	if err := row.Scan(&i.ID, &i.CartID, &i.ProductID, &i.Count); err != nil {
		return nil, err
	}
	return &i, nil
}

func (r cartRepo) Items(ctx context.Context, cartID string) ([]*cart.Item, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, cart_id, product_id, count FROM cart_items WHERE cart_id = $1 ORDER BY id`, cartID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanItem)
}

func (r cartRepo) GetItem(ctx context.Context, itemID string) (*cart.Item, error) {
	i, err := scanItem(r.q.QueryRow(ctx,
		`SELECT id, cart_id, product_id, count FROM cart_items WHERE id = $1`, itemID))
	return i, notFound(err, cart.ErrItemNotFound)
}

func (r cartRepo) FindItem(ctx context.Context, cartID, productID string) (*cart.Item, error) {
	i, err := scanItem(r.q.QueryRow(ctx,
		`SELECT id, cart_id, product_id, count FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID))
	return i, notFound(err, cart.ErrItemNotFound)
}

func (r cartRepo) SaveItem(ctx context.Context, item *cart.Item) error {
	if item.Count < 1 {
		return cart.ErrInvalidQuantity
	}
	_, err := r.q.Exec(ctx,
		`INSERT INTO cart_items (id, cart_id, product_id, count) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET count = EXCLUDED.count`,
		item.ID, item.CartID, item.ProductID, item.Count)
	return err
}

func (r cartRepo) DeleteItem(ctx context.Context, itemID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	return expectOne(tag, err, cart.ErrItemNotFound)
}

type orderRepo struct{ q querier }

const orderColumns = `id, customer_id, product_id, merchant_id, product_name, count,
	total_amount::text, paid, idempotency_key, status, created_at, updated_at`

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o      order.Order
		total  string
		status string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.ProductID, &o.MerchantID, &o.ProductName, &o.Count,
		&total, &o.Paid, &o.IdempotencyKey, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("postgres: order %s total: %w", o.ID, err)
	}
	o.TotalAmount = amount
	o.Status = order.Status(status)
	return &o, nil
}

func (r orderRepo) Insert(ctx context.Context, o *order.Order) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO orders (id, customer_id, product_id, merchant_id, product_name, count,
			total_amount, paid, idempotency_key, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12)`,
		o.ID, o.CustomerID, o.ProductID, o.MerchantID, o.ProductName, o.Count,
		o.TotalAmount.String(), o.Paid, o.IdempotencyKey, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		return order.ErrConflict
	}
	return err
}

func (r orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	return o, notFound(err, order.ErrNotFound)
}

func (r orderRepo) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		o.ID, string(o.Status), o.UpdatedAt)
	return expectOne(tag, err, order.ErrNotFound)
}

func (r orderRepo) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`,
		customerID)
}

func (r orderRepo) ListByMerchant(ctx context.Context, merchantID string) ([]*order.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE merchant_id = $1 ORDER BY created_at DESC, id DESC`,
		merchantID)
}

func (r orderRepo) FindByIdempotency(ctx context.Context, customerID, key string) ([]*order.Order, error) {
	if key == "" {
		return nil, nil
	}
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 AND idempotency_key = $2
		 ORDER BY created_at, id`,
		customerID, key)
}

func (r orderRepo) ExistsForProduct(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE product_id = $1)`, productID).Scan(&exists)
	return exists, err
}

func (r orderRepo) list(ctx context.Context, sql string, args ...any) ([]*order.Order, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrder)
}

type notificationRepo struct{ q querier }

const notificationColumns = `id, COALESCE(order_id, ''), message, read, created_at`

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var n notification.Notification
	if err := row.Scan(&n.ID, &n.OrderID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r notificationRepo) Insert(ctx context.Context, n *notification.Notification) error {
	var orderID *string
	if n.OrderID != "" {
		orderID = &n.OrderID
	}
	_, err := r.q.Exec(ctx,
		`INSERT INTO notifications (id, order_id, message, read, created_at) VALUES ($1, $2, $3, $4, $5)`,
		n.ID, orderID, n.Message, n.Read, n.CreatedAt)
	return err
}

func (r notificationRepo) Get(ctx context.Context, id string) (*notification.Notification, error) {
	n, err := scanNotification(r.q.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	return n, notFound(err, notification.ErrNotFound)
}

func (r notificationRepo) Update(ctx context.Context, n *notification.Notification) error {
	tag, err := r.q.Exec(ctx, `UPDATE notifications SET read = $2 WHERE id = $1`, n.ID, n.Read)
	return expectOne(tag, err, notification.ErrNotFound)
}

func (r notificationRepo) List(ctx context.Context) ([]*notification.Notification, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications ORDER BY read ASC, created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanNotification)
}

func (r notificationRepo) MarkAllRead(ctx context.Context) (int, error) {
	tag, err := r.q.Exec(ctx, `UPDATE notifications SET read = true WHERE NOT read`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
