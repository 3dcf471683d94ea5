// Package walstore persists open positions and the trade journal in write-ahead logs.
package walstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

const (
	DefaultDir = "./wal"

	positionsKey = "positions"
	pendingKey   = "pending"
	tradeKey     = "trade_"

	segmentLimit = 100
	// positions are stored as full snapshots, so only the newest segments matter
	positionSegments = 5
	journalSegments  = 10000
)

func openWAL(dir, prefix string, maxSegments int) (*gowal.Wal, error) {
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           prefix,
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "init %s WAL in %s", strings.TrimSuffix(prefix, "_"), dir)
	}
	return wal, nil
}

// PositionStore keeps open positions and pending orders. Every change writes a snapshot
// of both; loading reads the newest snapshots.
type PositionStore struct {
	mu        sync.Mutex
	wal       *gowal.Wal
	positions map[string]*domain.PortfolioPosition
	pending   map[string]domain.PendingOrder
}

// NewPositionStore opens the position log under dir/positions.
func NewPositionStore(dir string) (*PositionStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	wal, err := openWAL(filepath.Join(dir, "positions"), "positions_", positionSegments)
	if err != nil {
		return nil, err
	}
	s := &PositionStore{
		wal:       wal,
		positions: make(map[string]*domain.PortfolioPosition),
		pending:   make(map[string]domain.PendingOrder),
	}

	loaded, pending, err := s.latest()
	if err != nil {
		return nil, err
	}
	for _, p := range loaded {
		s.positions[p.Asset.Address] = p
	}
	for _, o := range pending {
		s.pending[o.TxID] = o
	}
	return s, nil
}

// Upsert stores the position under its address.
func (s *PositionStore) Upsert(_ context.Context, p *domain.PortfolioPosition) error {
	if p == nil || p.Asset.Address == "" {
		return errors.New("position address is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[p.Asset.Address] = p.Clone()
	return s.writeSnapshot()
}

// Delete removes the position of the address. Unknown addresses are ignored.
func (s *PositionStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[address]; !ok {
		return nil
	}
	delete(s.positions, address)
	return s.writeSnapshot()
}

// Load returns copies of the stored positions ordered by address.
func (s *PositionStore) Load(context.Context) ([]*domain.PortfolioPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.PortfolioPosition, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b *domain.PortfolioPosition) int {
		return strings.Compare(a.Asset.Address, b.Asset.Address)
	})
	return out, nil
}

// SavePending stores the order under its tx id.
func (s *PositionStore) SavePending(_ context.Context, o domain.PendingOrder) error {
	if o.TxID == "" {
		return errors.New("pending order tx id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[o.TxID] = o
	return s.writeSnapshot()
}

// DeletePending removes the order. Unknown tx ids are ignored.
func (s *PositionStore) DeletePending(_ context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[txID]; !ok {
		return nil
	}
	delete(s.pending, txID)
	return s.writeSnapshot()
}

// LoadPending returns the stored pending orders ordered by tx id.
func (s *PositionStore) LoadPending(context.Context) ([]domain.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.PendingOrder, 0, len(s.pending))
	for _, o := range s.pending {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b domain.PendingOrder) int {
		return strings.Compare(a.TxID, b.TxID)
	})
	return out, nil
}

// Close closes the underlying WAL.
func (s *PositionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}

// writeSnapshot writes both snapshots, so the newest segments always hold them.
func (s *PositionStore) writeSnapshot() error {
	snapshot := make([]*domain.PortfolioPosition, 0, len(s.positions))
	for _, p := range s.positions {
		snapshot = append(snapshot, p)
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal positions")
	}
	if err := s.wal.Write(s.wal.CurrentIndex()+1, positionsKey, payload); err != nil {
		return err
	}

	orders := make([]domain.PendingOrder, 0, len(s.pending))
	for _, o := range s.pending {
		orders = append(orders, o)
	}
	payload, err = json.Marshal(orders)
	if err != nil {
		return errors.Wrap(err, "marshal pending orders")
	}
	return s.wal.Write(s.wal.CurrentIndex()+1, pendingKey, payload)
}

func (s *PositionStore) latest() ([]*domain.PortfolioPosition, []domain.PendingOrder, error) {
	var (
		positions []*domain.PortfolioPosition
		pending   []domain.PendingOrder
	)
	for msg := range s.wal.Iterator() {
		switch msg.Key {
		case positionsKey:
			var snapshot []*domain.PortfolioPosition
			if err := json.Unmarshal(msg.Value, &snapshot); err != nil {
				return nil, nil, errors.Wrap(err, "decode positions snapshot")
			}
			positions = snapshot
		case pendingKey:
			var snapshot []domain.PendingOrder
			if err := json.Unmarshal(msg.Value, &snapshot); err != nil {
				return nil, nil, errors.Wrap(err, "decode pending orders snapshot")
			}
			pending = snapshot
		}
	}
	return positions, pending, nil
}

// TradeJournal append-only log of realized trades.
type TradeJournal struct {
	mu  sync.RWMutex
	wal *gowal.Wal
}

// NewTradeJournal opens the trade log under dir/trades.
func NewTradeJournal(dir string) (*TradeJournal, error) {
	if dir == "" {
		dir = DefaultDir
	}
	wal, err := openWAL(filepath.Join(dir, "trades"), "trades_", journalSegments)
	if err != nil {
		return nil, err
	}
	return &TradeJournal{wal: wal}, nil
}

// Append writes the trade to the log.
func (j *TradeJournal) Append(_ context.Context, trade domain.Trade) error {
	if trade.ID == "" {
		return errors.New("trade id is required")
	}
	payload, err := json.Marshal(trade)
	if err != nil {
		return errors.Wrap(err, "marshal trade")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Write(j.wal.CurrentIndex()+1, tradeKey+trade.ID, payload)
}

// Load returns all journaled trades in write order.
func (j *TradeJournal) Load(context.Context) ([]domain.Trade, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	trades := make([]domain.Trade, 0, j.wal.CurrentIndex())
	for msg := range j.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, tradeKey) {
			continue
		}
		var t domain.Trade
		if err := json.Unmarshal(msg.Value, &t); err != nil {
			return nil, errors.Wrapf(err, "decode trade %s", strings.TrimPrefix(msg.Key, tradeKey))
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Close closes the underlying WAL.
func (j *TradeJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Close()
}
