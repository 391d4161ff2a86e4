package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"
	modsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/tablebill"
	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/store"
	"github.com/xraph/tablebill/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tablebill/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tablebill/sqlite: %w: %w", tablebill.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Dish Store ====================

func (s *Store) CreateDishOrder(ctx context.Context, d *dish.DishOrder) error {
	_, err := s.sdb.NewInsert(toDishOrderModel(d)).Exec(ctx)
	return err
}

func (s *Store) GetDishOrder(ctx context.Context, dishID id.DishOrderID) (*dish.DishOrder, error) {
	m := new(dishOrderModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", dishID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tablebill.ErrDishNotFound
		}
		return nil, err
	}
	return fromDishOrderModel(m)
}

func (s *Store) ListDishOrders(ctx context.Context, tableID string, opts dish.ListOpts) ([]*dish.DishOrder, error) {
	var models []dishOrderModel
	q := s.sdb.NewSelect(&models).Where("table_id = ?", tableID)

	if opts.Status != "" {
		q = q.Where("payment_status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*dish.DishOrder, len(models))
	for i := range models {
		d, err := fromDishOrderModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) CountDishOrders(ctx context.Context, tableID string) (int64, error) {
	var count int64
	err := s.sdb.NewRaw(
		`SELECT COUNT(*) FROM tablebill_dish_orders WHERE table_id = ?`, tableID,
	).Scan(ctx, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkDishOrdersPaid loads the unpaid candidates, filters them with the
// criteria and flips each one with a conditional update. A row that another
// writer flipped first reports zero rows and is left out of the result.
func (s *Store) MarkDishOrdersPaid(ctx context.Context, tableID string, c dish.Criteria, paidAt time.Time) ([]id.DishOrderID, error) {
	unpaid, err := s.ListDishOrders(ctx, tableID, dish.ListOpts{Status: dish.StatusNotPaid})
	if err != nil {
		return nil, err
	}

	changed := make([]id.DishOrderID, 0, len(unpaid))
	for _, d := range unpaid {
		if !c.Matches(d) {
			continue
		}
		res, err := s.sdb.NewUpdate((*dishOrderModel)(nil)).
			Set("payment_status = ?", string(dish.StatusPaid)).
			Set("paid_at = ?", paidAt).
			Set("updated_at = ?", paidAt).
			Where("id = ?", d.ID.String()).
			Where("payment_status = ?", string(dish.StatusNotPaid)).
			Exec(ctx)
		if err != nil {
			return changed, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return changed, err
		}
		if rows == 1 {
			changed = append(changed, d.ID)
		}
	}
	return changed, nil
}

// ==================== Split Store ====================

func (s *Store) CreateSplitPayments(ctx context.Context, entries []*split.SplitPayment) error {
	if len(entries) == 0 {
		return nil
	}
	if _, opens := split.ActiveSession(entries); opens {
		var open int64
		err := s.sdb.NewRaw(
			`SELECT COUNT(*) FROM tablebill_split_payments
WHERE table_id = ? AND status = ? AND settled = ? AND mode IN (?, ?)`,
			entries[0].TableID, string(split.StatusPending), false,
			string(split.ModeEqualShares), string(split.ModeUserItems),
		).Scan(ctx, &open)
		if err != nil {
			return err
		}
		if open > 0 {
			return tablebill.ErrSplitActive
		}
	}

	models := make([]splitPaymentModel, len(entries))
	for i, e := range entries {
		models[i] = *toSplitPaymentModel(e)
	}
	// The pending-share index catches a session opened between the count
	// and this insert.
	if _, err := s.sdb.NewInsert(&models).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return tablebill.ErrSplitActive
		}
		return err
	}
	return nil
}

func (s *Store) ListSplitPayments(ctx context.Context, tableID string, opts split.ListOpts) ([]*split.SplitPayment, error) {
	var models []splitPaymentModel
	q := s.sdb.NewSelect(&models).Where("table_id = ?", tableID)

	if opts.OpenOnly {
		q = q.Where("settled = ?", false)
	}
	if opts.Mode != "" {
		q = q.Where("mode = ?", string(opts.Mode))
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromSplitPaymentModels(models)
}

func (s *Store) MarkSplitPaid(ctx context.Context, tableID, participantKey string, mode split.Mode, amount types.Money, paidAt time.Time) (bool, error) {
	m := new(splitPaymentModel)
	err := s.sdb.NewSelect(m).
		Where("table_id = ?", tableID).
		Where("participant_key = ?", participantKey).
		Where("mode = ?", string(mode)).
		Where("status = ?", string(split.StatusPending)).
		Where("settled = ?", false).
		OrderExpr("created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}

	res, err := s.sdb.NewUpdate((*splitPaymentModel)(nil)).
		Set("status = ?", string(split.StatusPaid)).
		Set("paid_cents = ?", amount.Amount).
		Set("paid_at = ?", paidAt).
		Set("updated_at = ?", paidAt).
		Where("id = ?", m.ID).
		Where("status = ?", string(split.StatusPending)).
		Where("settled = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *Store) CancelSplitPayments(ctx context.Context, tableID string, at time.Time) (int64, error) {
	res, err := s.sdb.NewUpdate((*splitPaymentModel)(nil)).
		Set("settled = ?", true).
		Set("settled_at = ?", at).
		Set("updated_at = ?", at).
		Where("table_id = ?", tableID).
		Where("status = ?", string(split.StatusPending)).
		Where("settled = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) SettleSplitPayments(ctx context.Context, tableID string, at time.Time) (int64, error) {
	res, err := s.sdb.NewUpdate((*splitPaymentModel)(nil)).
		Set("settled = ?", true).
		Set("settled_at = ?", at).
		Set("updated_at = ?", at).
		Where("table_id = ?", tableID).
		Where("settled = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Payment Store ====================

func (s *Store) AppendTransaction(ctx context.Context, tx *payment.Transaction) error {
	_, err := s.sdb.NewInsert(toTransactionModel(tx)).Exec(ctx)
	if isUniqueViolation(err) {
		return tablebill.ErrAlreadyExists
	}
	return err
}

func (s *Store) ListTransactions(ctx context.Context, tableID string, opts payment.ListOpts) ([]*payment.Transaction, error) {
	var models []transactionModel
	q := s.sdb.NewSelect(&models).Where("table_id = ?", tableID)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*payment.Transaction, len(models))
	for i := range models {
		tx, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = tx
	}
	return result, nil
}

func (s *Store) SaveIntent(ctx context.Context, in *payment.Intent) error {
	m := toIntentModel(in)
	m.UpdatedAt = now()
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("attempts = EXCLUDED.attempts").
		Set("redirect_url = EXCLUDED.redirect_url").
		Set("gateway_ref = EXCLUDED.gateway_ref").
		Set("payment_method_ref = EXCLUDED.payment_method_ref").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error) {
	m := new(intentModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", intentID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tablebill.ErrIntentNotFound
		}
		return nil, err
	}
	return fromIntentModel(m)
}

func (s *Store) DeleteIntent(ctx context.Context, intentID id.IntentID) error {
	_, err := s.sdb.NewDelete((*intentModel)(nil)).
		Where("id = ?", intentID.String()).
		Exec(ctx)
	return err
}

// PurgeExpiredIntents deletes expired intents one by one so that each
// returned intent is one this call actually removed.
func (s *Store) PurgeExpiredIntents(ctx context.Context, before time.Time) ([]*payment.Intent, error) {
	var models []intentModel
	err := s.sdb.NewSelect(&models).
		Where("expires_at <= ?", before).
		OrderExpr("expires_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	purged := make([]*payment.Intent, 0, len(models))
	for i := range models {
		res, err := s.sdb.NewDelete((*intentModel)(nil)).
			Where("id = ?", models[i].ID).
			Where("expires_at <= ?", before).
			Exec(ctx)
		if err != nil {
			return purged, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return purged, err
		}
		if rows == 0 {
			continue
		}
		in, err := fromIntentModel(&models[i])
		if err != nil {
			return purged, err
		}
		purged = append(purged, in)
	}
	return purged, nil
}

// ==================== Helpers ====================

func fromSplitPaymentModels(models []splitPaymentModel) ([]*split.SplitPayment, error) {
	result := make([]*split.SplitPayment, len(models))
	for i := range models {
		e, err := fromSplitPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a unique index conflict.
func isUniqueViolation(err error) bool {
	var sqlErr *modsqlite.Error
	return errors.As(err, &sqlErr) && sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
