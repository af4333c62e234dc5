package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

var ErrTxClosed = errors.New("memory: unit of work already finished")

const storeName = "memory"

// Store keeps every table in process memory and implements
// application.UnitOfWork. Writes made inside Do are staged and become
// visible to other callers only on commit.
type Store struct {
	mu            sync.RWMutex
	customers     map[string]*customer.Customer
	products      map[string]*product.Product
	carts         map[string]*cart.Cart
	items         map[string]*cart.Item
	orders        map[string]*order.Order
	notifications map[string]*notification.Notification

	locks    *Locker
	lockWait map[string]observability.BoundHistogram
	log      observability.Logger
}

var _ application.UnitOfWork = (*Store)(nil)

type Option func(*Store)

// WithObservability records lock wait time and logs rollbacks.
func WithObservability(tel observability.Observability) Option {
	return func(s *Store) {
		if tel == nil {
			return
		}
		s.lockWait = bindLockWait(tel.Metrics().Histogram(observability.MLockWait))
		s.log = tel.Logger().With(observability.F("component", "memory_store"))
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		customers:     make(map[string]*customer.Customer),
		products:      make(map[string]*product.Product),
		carts:         make(map[string]*cart.Cart),
		items:         make(map[string]*cart.Item),
		orders:        make(map[string]*order.Order),
		notifications: make(map[string]*notification.Notification),
		locks:         NewLocker(),
		lockWait:      bindLockWait(observability.NopHistogram()),
		log:           observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do runs fn against a fresh transaction. Staged writes are applied
// atomically when fn returns nil; otherwise they are discarded. Locks taken
// by fn are released in every case.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := newTx(s)
	defer t.releaseLocks()
	defer func() {
		if r := recover(); r != nil {
			t.close()
			s.log.Warn("unit_of_work_panic", observability.F("panic", fmt.Sprint(r)))
			panic(r)
		}
	}()

	if err := fn(ctx, t); err != nil {
		t.close()
		return err
	}
	if err := ctx.Err(); err != nil {
		t.close()
		return err
	}

	s.commit(t)
	t.close()
	return nil
}

func (s *Store) lock(ctx context.Context, kind, id string) (func(), error) {
	start := time.Now()
	release, err := s.locks.Lock(ctx, kind+":"+id)
	s.lockWait[kind].Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("memory: lock %s %s: %w", kind, id, err)
	}
	return release, nil
}

func bindLockWait(h observability.Histogram) map[string]observability.BoundHistogram {
	bound := make(map[string]observability.BoundHistogram, 2)
	for _, kind := range []string{lockCustomer, lockProduct} {
		bound[kind] = h.Bind(observability.L("store", storeName), observability.L("kind", kind))
	}
	return bound
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apply(s.customers, &t.customers)
	apply(s.products, &t.products)
	apply(s.carts, &t.carts)
	apply(s.items, &t.items)
	apply(s.orders, &t.orders)
	apply(s.notifications, &t.notifications)
}

type entity[T any] interface {
	comparable
	Clone() T
}

// staged is the write set of one table inside a transaction.
type staged[T entity[T]] struct {
	writes  map[string]T
	deleted map[string]struct{}
}

func (st *staged[T]) put(id string, v T) {
	if st.writes == nil {
		st.writes = make(map[string]T)
	}
	delete(st.deleted, id)
	st.writes[id] = v.Clone()
}

func (st *staged[T]) remove(id string) {
	if st.deleted == nil {
		st.deleted = make(map[string]struct{})
	}
	delete(st.writes, id)
	st.deleted[id] = struct{}{}
}

func apply[T entity[T]](table map[string]T, st *staged[T]) {
	for id := range st.deleted {
		delete(table, id)
	}
	for id, v := range st.writes {
		table[id] = v
	}
}

// lookup reads id through the write set, falling back to committed state.
// Caller must hold s.mu for reading.
func lookup[T entity[T]](table map[string]T, st *staged[T], id string) (T, bool) {
	var zero T
	if _, gone := st.deleted[id]; gone {
		return zero, false
	}
	if v, ok := st.writes[id]; ok {
		return v.Clone(), true
	}
	if v, ok := table[id]; ok {
		return v.Clone(), true
	}
	return zero, false
}

// scan returns clones of every row visible to the transaction that keep
// reports true for. Caller must hold s.mu for reading.
func scan[T entity[T]](table map[string]T, st *staged[T], keep func(T) bool) []T {
	out := make([]T, 0)
	for id, v := range table {
		if _, gone := st.deleted[id]; gone {
			continue
		}
		if _, overwritten := st.writes[id]; overwritten {
			continue
		}
		if keep(v) {
			out = append(out, v.Clone())
		}
	}
	for _, v := range st.writes {
		if keep(v) {
			out = append(out, v.Clone())
		}
	}
	return out
}
