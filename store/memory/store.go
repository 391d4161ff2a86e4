// Package memory is an in-process Store for tests, local runs and single
// instance deployments. Records are copied in and out so callers never
// share memory with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/tablebill"
	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/store"
	"github.com/xraph/tablebill/types"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Dish storage, insertion order per table
	dishes      map[string]*dish.DishOrder
	tableDishes map[string][]string

	// Split storage
	splits      map[string]*split.SplitPayment
	tableSplits map[string][]string

	// Transaction log
	transactions []*payment.Transaction
	txIndex      map[string]struct{}
	intentIndex  map[string]struct{}

	// Pending intents
	intents map[string]*payment.Intent

	closed bool
}

func New() *Store {
	return &Store{
		dishes:      make(map[string]*dish.DishOrder),
		tableDishes: make(map[string][]string),
		splits:      make(map[string]*split.SplitPayment),
		tableSplits: make(map[string][]string),
		txIndex:     make(map[string]struct{}),
		intentIndex: make(map[string]struct{}),
		intents:     make(map[string]*payment.Intent),
	}
}

// ──────────────────────────────────────────────────
// Dish Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateDishOrder(_ context.Context, d *dish.DishOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := d.ID.String()
	if _, exists := s.dishes[key]; exists {
		return tablebill.ErrAlreadyExists
	}
	s.dishes[key] = cloneDish(d)
	s.tableDishes[d.TableID] = append(s.tableDishes[d.TableID], key)
	return nil
}

func (s *Store) GetDishOrder(_ context.Context, dishID id.DishOrderID) (*dish.DishOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.dishes[dishID.String()]; ok {
		return cloneDish(d), nil
	}
	return nil, tablebill.ErrDishNotFound
}

func (s *Store) ListDishOrders(_ context.Context, tableID string, opts dish.ListOpts) ([]*dish.DishOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dish.DishOrder, 0, len(s.tableDishes[tableID]))
	for _, key := range s.tableDishes[tableID] {
		d := s.dishes[key]
		if opts.Status == "" || d.PaymentStatus == opts.Status {
			result = append(result, cloneDish(d))
		}
	}

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) CountDishOrders(_ context.Context, tableID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.tableDishes[tableID])), nil
}

func (s *Store) MarkDishOrdersPaid(_ context.Context, tableID string, c dish.Criteria, paidAt time.Time) ([]id.DishOrderID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make([]id.DishOrderID, 0)
	for _, key := range s.tableDishes[tableID] {
		d := s.dishes[key]
		if !c.Matches(d) {
			continue
		}
		at := paidAt
		d.PaymentStatus = dish.StatusPaid
		d.PaidAt = &at
		d.UpdatedAt = paidAt
		changed = append(changed, d.ID)
	}
	return changed, nil
}

// ──────────────────────────────────────────────────
// Split Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateSplitPayments(_ context.Context, entries []*split.SplitPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if _, exists := s.splits[e.ID.String()]; exists {
			return tablebill.ErrAlreadyExists
		}
	}
	if _, opens := split.ActiveSession(entries); opens && len(entries) > 0 {
		current := make([]*split.SplitPayment, 0, len(s.tableSplits[entries[0].TableID]))
		for _, key := range s.tableSplits[entries[0].TableID] {
			current = append(current, s.splits[key])
		}
		if _, active := split.ActiveSession(current); active {
			return tablebill.ErrSplitActive
		}
	}
	for _, e := range entries {
		key := e.ID.String()
		s.splits[key] = cloneSplit(e)
		s.tableSplits[e.TableID] = append(s.tableSplits[e.TableID], key)
	}
	return nil
}

func (s *Store) ListSplitPayments(_ context.Context, tableID string, opts split.ListOpts) ([]*split.SplitPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*split.SplitPayment, 0)
	for _, key := range s.tableSplits[tableID] {
		e := s.splits[key]
		if opts.OpenOnly && e.Settled {
			continue
		}
		if opts.Mode != "" && e.Mode != opts.Mode {
			continue
		}
		result = append(result, cloneSplit(e))
	}
	return result, nil
}

func (s *Store) MarkSplitPaid(_ context.Context, tableID, participantKey string, mode split.Mode, amount types.Money, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.tableSplits[tableID] {
		e := s.splits[key]
		if e.ParticipantKey != participantKey || e.Mode != mode || !e.IsPending() {
			continue
		}
		at := paidAt
		e.Status = split.StatusPaid
		e.PaidAmount = amount
		e.PaidAt = &at
		e.UpdatedAt = paidAt
		return true, nil
	}
	return false, nil
}

func (s *Store) CancelSplitPayments(_ context.Context, tableID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, key := range s.tableSplits[tableID] {
		e := s.splits[key]
		if !e.IsPending() {
			continue
		}
		settledAt := at
		e.Settled = true
		e.SettledAt = &settledAt
		e.UpdatedAt = at
		n++
	}
	return n, nil
}

func (s *Store) SettleSplitPayments(_ context.Context, tableID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, key := range s.tableSplits[tableID] {
		e := s.splits[key]
		if e.Settled {
			continue
		}
		settledAt := at
		e.Settled = true
		e.SettledAt = &settledAt
		e.UpdatedAt = at
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Payment Store implementation
// ──────────────────────────────────────────────────

func (s *Store) AppendTransaction(_ context.Context, tx *payment.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txIndex[tx.ID.String()]; exists {
		return tablebill.ErrAlreadyExists
	}
	if !tx.IntentID.IsNil() {
		if _, exists := s.intentIndex[tx.IntentID.String()]; exists {
			return tablebill.ErrAlreadyExists
		}
	}
	cp := *tx
	cp.DishesPaid = append([]id.DishOrderID(nil), tx.DishesPaid...)
	s.transactions = append(s.transactions, &cp)
	s.txIndex[tx.ID.String()] = struct{}{}
	if !tx.IntentID.IsNil() {
		s.intentIndex[tx.IntentID.String()] = struct{}{}
	}
	return nil
}

func (s *Store) ListTransactions(_ context.Context, tableID string, opts payment.ListOpts) ([]*payment.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Transaction, 0)
	for _, tx := range s.transactions {
		if tx.TableID == tableID {
			cp := *tx
			cp.DishesPaid = append([]id.DishOrderID(nil), tx.DishesPaid...)
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) SaveIntent(_ context.Context, in *payment.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *in
	s.intents[in.ID.String()] = &cp
	return nil
}

func (s *Store) GetIntent(_ context.Context, intentID id.IntentID) (*payment.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if in, ok := s.intents[intentID.String()]; ok {
		cp := *in
		return &cp, nil
	}
	return nil, tablebill.ErrIntentNotFound
}

func (s *Store) DeleteIntent(_ context.Context, intentID id.IntentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.intents, intentID.String())
	return nil
}

func (s *Store) PurgeExpiredIntents(_ context.Context, before time.Time) ([]*payment.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := make([]*payment.Intent, 0)
	for key, in := range s.intents {
		if in.Expired(before) {
			purged = append(purged, in)
			delete(s.intents, key)
		}
	}
	sort.Slice(purged, func(i, j int) bool { return purged[i].ExpiresAt.Before(purged[j].ExpiresAt) })
	return purged, nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return tablebill.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func cloneDish(d *dish.DishOrder) *dish.DishOrder {
	cp := *d
	if d.PaidAt != nil {
		at := *d.PaidAt
		cp.PaidAt = &at
	}
	if d.Metadata != nil {
		cp.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func cloneSplit(e *split.SplitPayment) *split.SplitPayment {
	cp := *e
	if e.PaidAt != nil {
		at := *e.PaidAt
		cp.PaidAt = &at
	}
	if e.SettledAt != nil {
		at := *e.SettledAt
		cp.SettledAt = &at
	}
	return &cp
}
