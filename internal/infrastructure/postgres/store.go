package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Store implements application.UnitOfWork on a pgx pool. Every Do call is one
// READ COMMITTED transaction; GetForUpdate issues SELECT ... FOR UPDATE so row
// locks last until commit or rollback.
type Store struct {
	pool *pgxpool.Pool
	log  observability.Logger
}

var _ application.UnitOfWork = (*Store)(nil)

type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func New(ctx context.Context, cfg Config, tel observability.Observability) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if tel == nil {
		tel = observability.Nop()
	}
	return &Store{
		pool: pool,
		log:  tel.Logger().With(observability.F("component", "postgres_store")),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) (err error) {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = pgtx.Rollback(context.WithoutCancel(ctx))
			s.log.Warn("unit_of_work_panic", observability.F("panic", fmt.Sprint(r)))
			panic(r)
		}
	}()

	if err := fn(ctx, &tx{q: pgtx}); err != nil {
		if rbErr := pgtx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Warn("unit_of_work_rollback_failed", observability.F("error", rbErr.Error()))
		}
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type tx struct{ q querier }

var _ application.Tx = (*tx)(nil)

func (t *tx) Customers() customer.Repository         { return customerRepo{t.q} }
func (t *tx) Products() product.Repository           { return productRepo{t.q} }
func (t *tx) Carts() cart.Repository                 { return cartRepo{t.q} }
func (t *tx) Orders() order.Repository               { return orderRepo{t.q} }
func (t *tx) Notifications() notification.Repository { return notificationRepo{t.q} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFound maps pgx.ErrNoRows onto the domain sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

func expectOne(tag pgconn.CommandTag, err error, sentinel error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return sentinel
	}
	return nil
}
