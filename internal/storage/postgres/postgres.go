// Package postgres persists positions and the trade journal in PostgreSQL via pgx.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Client wraps a pgx connection pool.
type Client struct {
	pool *pgxpool.Pool
}

// New connects to dsn and applies the schema migrations.
func New(ctx context.Context, dsn string, maxConns int32) (*Client, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: parse config")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres: ping")
	}

	c := &Client{pool: pool}
	if err := c.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// Close shuts down the pool.
func (c *Client) Close() {
	c.pool.Close()
}

// migrate applies the embedded migrations in name order. Migrations are idempotent.
func (c *Client) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "postgres: read migrations")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	for _, name := range names {
		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return errors.Wrapf(err, "postgres: read migration %s", name)
		}
		if _, err := c.pool.Exec(ctx, string(data)); err != nil {
			return errors.Wrapf(err, "postgres: exec migration %s", name)
		}
	}
	return nil
}

// PositionStore positions keyed by asset address and pending orders keyed by tx id.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a position store on the client's pool.
func NewPositionStore(c *Client) *PositionStore {
	return &PositionStore{pool: c.pool}
}

// Upsert inserts or replaces the position of the address.
func (s *PositionStore) Upsert(ctx context.Context, p *domain.PortfolioPosition) error {
	if p == nil || p.Asset.Address == "" {
		return errors.New("position address is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal position")
	}

	const query = `
		INSERT INTO positions (address, symbol, quantity, cost_basis, data, updated_at)
		VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, NOW())
		ON CONFLICT (address) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			quantity = EXCLUDED.quantity,
			cost_basis = EXCLUDED.cost_basis,
			data = EXCLUDED.data,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query, p.Asset.Address, p.Asset.Symbol, p.Quantity.String(), p.CostBasis.String(), data)
	if err != nil {
		return errors.Wrapf(err, "postgres: upsert position %s", p.Asset.Address)
	}
	return nil
}

// Delete removes the position of the address.
func (s *PositionStore) Delete(ctx context.Context, address string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE address = $1`, address); err != nil {
		return errors.Wrapf(err, "postgres: delete position %s", address)
	}
	return nil
}

// Load returns all stored positions ordered by address.
func (s *PositionStore) Load(ctx context.Context) ([]*domain.PortfolioPosition, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM positions ORDER BY address`)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: load positions")
	}
	return collect(rows, func(data []byte) (*domain.PortfolioPosition, error) {
		var p domain.PortfolioPosition
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, errors.Wrap(err, "decode position")
		}
		return &p, nil
	})
}

// SavePending inserts or replaces the pending order.
func (s *PositionStore) SavePending(ctx context.Context, o domain.PendingOrder) error {
	if o.TxID == "" {
		return errors.New("pending order tx id is required")
	}
	data, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "marshal pending order")
	}

	const query = `
		INSERT INTO pending_orders (tx_id, address, data, submitted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tx_id) DO UPDATE SET
			address = EXCLUDED.address,
			data = EXCLUDED.data`

	if _, err := s.pool.Exec(ctx, query, o.TxID, o.Address, data, o.SubmittedAt); err != nil {
		return errors.Wrapf(err, "postgres: save pending order %s", o.TxID)
	}
	return nil
}

// DeletePending removes the pending order.
func (s *PositionStore) DeletePending(ctx context.Context, txID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_orders WHERE tx_id = $1`, txID); err != nil {
		return errors.Wrapf(err, "postgres: delete pending order %s", txID)
	}
	return nil
}

// LoadPending returns all pending orders, oldest first.
func (s *PositionStore) LoadPending(ctx context.Context) ([]domain.PendingOrder, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM pending_orders ORDER BY submitted_at, tx_id`)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: load pending orders")
	}
	return collect(rows, func(data []byte) (domain.PendingOrder, error) {
		var o domain.PendingOrder
		if err := json.Unmarshal(data, &o); err != nil {
			return domain.PendingOrder{}, errors.Wrap(err, "decode pending order")
		}
		return o, nil
	})
}

// TradeJournal append-only trade table.
type TradeJournal struct {
	pool *pgxpool.Pool
}

// NewTradeJournal creates a trade journal on the client's pool.
func NewTradeJournal(c *Client) *TradeJournal {
	return &TradeJournal{pool: c.pool}
}

// Append inserts the trade. Re-appending a trade id is a no-op.
func (j *TradeJournal) Append(ctx context.Context, t domain.Trade) error {
	if t.ID == "" {
		return errors.New("trade id is required")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "marshal trade")
	}

	const query = `
		INSERT INTO trades (id, address, profit_loss, exit_time, data)
		VALUES ($1, $2, $3::NUMERIC, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	if _, err := j.pool.Exec(ctx, query, t.ID, t.Address, t.ProfitLoss.String(), t.ExitTime, data); err != nil {
		return errors.Wrapf(err, "postgres: append trade %s", t.ID)
	}
	return nil
}

// Load returns all trades in insertion order.
func (j *TradeJournal) Load(ctx context.Context) ([]domain.Trade, error) {
	rows, err := j.pool.Query(ctx, `SELECT data FROM trades ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: load trades")
	}
	return collect(rows, func(data []byte) (domain.Trade, error) {
		var t domain.Trade
		if err := json.Unmarshal(data, &t); err != nil {
			return domain.Trade{}, errors.Wrap(err, "decode trade")
		}
		return t, nil
	})
}

func collect[T any](rows pgx.Rows, decode func([]byte) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "postgres: scan row")
		}
		v, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres: iterate rows")
	}
	return out, nil
}
