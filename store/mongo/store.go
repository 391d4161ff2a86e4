package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tablebill"
	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/store"
	"github.com/xraph/tablebill/types"
)

// Collection name constants.
const (
	colDishOrders    = "tablebill_dish_orders"
	colSplitPayments = "tablebill_split_payments"
	colTransactions  = "tablebill_transactions"
	colIntents       = "tablebill_intents"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tablebill collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("tablebill/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toDishOrderModel(d)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tablebill.ErrAlreadyExists
		}
		return fmt.Errorf("tablebill/mongo: create dish order: %w", err)
	}
	return nil
}

func (s *Store) GetDishOrder(ctx context.Context, dishID id.DishOrderID) (*dish.DishOrder, error) {
	var m dishOrderModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": dishID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tablebill.ErrDishNotFound
		}
		return nil, fmt.Errorf("tablebill/mongo: get dish order: %w", err)
	}
	return fromDishOrderModel(&m)
}

func (s *Store) ListDishOrders(ctx context.Context, tableID string, opts dish.ListOpts) ([]*dish.DishOrder, error) {
	var models []dishOrderModel

	filter := bson.M{"table_id": tableID}
	if opts.Status != "" {
		filter["payment_status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tablebill/mongo: list dish orders: %w", err)
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
	n, err := s.mdb.Collection(colDishOrders).CountDocuments(ctx, bson.M{"table_id": tableID})
	if err != nil {
		return 0, fmt.Errorf("tablebill/mongo: count dish orders: %w", err)
	}
	return n, nil
}

// MarkDishOrdersPaid flips each matching dish with a filter that still
// requires not_paid, so a concurrent payer cannot flip the same dish twice.
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
		res, err := s.mdb.NewUpdate((*dishOrderModel)(nil)).
			Filter(bson.M{"_id": d.ID.String(), "payment_status": string(dish.StatusNotPaid)}).
			Set("payment_status", string(dish.StatusPaid)).
			Set("paid_at", paidAt).
			Set("updated_at", paidAt).
			Exec(ctx)
		if err != nil {
			return changed, fmt.Errorf("tablebill/mongo: mark dish paid: %w", err)
		}
		if res.MatchedCount() == 1 {
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
	col := s.mdb.Collection(colSplitPayments)

	_, opens := split.ActiveSession(entries)
	if opens {
		n, err := col.CountDocuments(ctx, bson.M{
			"table_id": entries[0].TableID,
			"status":   string(split.StatusPending),
			"settled":  false,
			"mode":     bson.M{"$in": bson.A{string(split.ModeEqualShares), string(split.ModeUserItems)}},
		})
		if err != nil {
			return fmt.Errorf("tablebill/mongo: count open split payments: %w", err)
		}
		if n > 0 {
			return tablebill.ErrSplitActive
		}
	}

	inserted := make([]string, 0, len(entries))
	for _, e := range entries {
		_, err := s.mdb.NewInsert(toSplitPaymentModel(e)).Exec(ctx)
		if err == nil {
			inserted = append(inserted, e.ID.String())
			continue
		}

		// Inserts are per document: undo this batch so a rejected
		// session leaves nothing behind.
		if len(inserted) > 0 {
			if _, derr := col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": inserted}}); derr != nil {
				err = errors.Join(err, derr)
			}
		}
		switch {
		case mongo.IsDuplicateKeyError(err) && opens:
			return tablebill.ErrSplitActive
		case mongo.IsDuplicateKeyError(err):
			return tablebill.ErrAlreadyExists
		}
		return fmt.Errorf("tablebill/mongo: create split payment: %w", err)
	}
	return nil
}

func (s *Store) ListSplitPayments(ctx context.Context, tableID string, opts split.ListOpts) ([]*split.SplitPayment, error) {
	var models []splitPaymentModel

	filter := bson.M{"table_id": tableID}
	if opts.OpenOnly {
		filter["settled"] = false
	}
	if opts.Mode != "" {
		filter["mode"] = string(opts.Mode)
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tablebill/mongo: list split payments: %w", err)
	}

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

func (s *Store) MarkSplitPaid(ctx context.Context, tableID, participantKey string, mode split.Mode, amount types.Money, paidAt time.Time) (bool, error) {
	res, err := s.mdb.NewUpdate((*splitPaymentModel)(nil)).
		Filter(bson.M{
			"table_id":        tableID,
			"participant_key": participantKey,
			"mode":            string(mode),
			"status":          string(split.StatusPending),
			"settled":         false,
		}).
		Set("status", string(split.StatusPaid)).
		Set("paid_cents", amount.Amount).
		Set("paid_at", paidAt).
		Set("updated_at", paidAt).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("tablebill/mongo: mark split paid: %w", err)
	}
	return res.MatchedCount() > 0, nil
}

func (s *Store) CancelSplitPayments(ctx context.Context, tableID string, at time.Time) (int64, error) {
	return s.closeSplits(ctx, bson.M{
		"table_id": tableID,
		"status":   string(split.StatusPending),
		"settled":  false,
	}, at)
}

func (s *Store) SettleSplitPayments(ctx context.Context, tableID string, at time.Time) (int64, error) {
	return s.closeSplits(ctx, bson.M{"table_id": tableID, "settled": false}, at)
}

func (s *Store) closeSplits(ctx context.Context, filter bson.M, at time.Time) (int64, error) {
	res, err := s.mdb.Collection(colSplitPayments).UpdateMany(ctx, filter, bson.M{"$set": bson.M{
		"settled":    true,
		"settled_at": at,
		"updated_at": at,
	}})
	if err != nil {
		return 0, fmt.Errorf("tablebill/mongo: close split payments: %w", err)
	}
	return res.ModifiedCount, nil
}

// ==================== Payment Store ====================

func (s *Store) AppendTransaction(ctx context.Context, tx *payment.Transaction) error {
	_, err := s.mdb.NewInsert(toTransactionModel(tx)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tablebill.ErrAlreadyExists
		}
		return fmt.Errorf("tablebill/mongo: append transaction: %w", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, tableID string, opts payment.ListOpts) ([]*payment.Transaction, error) {
	var models []transactionModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"table_id": tableID}).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tablebill/mongo: list transactions: %w", err)
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

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":                m.ID,
			"table_id":           m.TableID,
			"restaurant_id":      m.RestaurantID,
			"branch_id":          m.BranchID,
			"participant_key":    m.ParticipantKey,
			"currency":           m.Currency,
			"table_order_id":     m.TableOrderID,
			"strategy":           m.Strategy,
			"params":             m.Params,
			"base_cents":         m.BaseCents,
			"tip_cents":          m.TipCents,
			"charge_cents":       m.ChargeCents,
			"months":             m.Months,
			"card_brand":         m.CardBrand,
			"payment_method_ref": m.PaymentMethodRef,
			"attempts":           m.Attempts,
			"redirect_url":       m.RedirectURL,
			"gateway_ref":        m.GatewayRef,
			"expires_at":         m.ExpiresAt,
			"created_at":         m.CreatedAt,
			"updated_at":         m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tablebill/mongo: save intent: %w", err)
	}
	return nil
}

func (s *Store) GetIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error) {
	var m intentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": intentID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tablebill.ErrIntentNotFound
		}
		return nil, fmt.Errorf("tablebill/mongo: get intent: %w", err)
	}
	return fromIntentModel(&m)
}

func (s *Store) DeleteIntent(ctx context.Context, intentID id.IntentID) error {
	_, err := s.mdb.NewDelete((*intentModel)(nil)).
		Filter(bson.M{"_id": intentID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tablebill/mongo: delete intent: %w", err)
	}
	return nil
}

func (s *Store) PurgeExpiredIntents(ctx context.Context, before time.Time) ([]*payment.Intent, error) {
	var models []intentModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"expires_at": bson.M{"$lte": before}}).
		Sort(bson.D{{Key: "expires_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tablebill/mongo: find expired intents: %w", err)
	}

	purged := make([]*payment.Intent, 0, len(models))
	for i := range models {
		res, err := s.mdb.NewDelete((*intentModel)(nil)).
			Filter(bson.M{"_id": models[i].ID, "expires_at": bson.M{"$lte": before}}).
			Exec(ctx)
		if err != nil {
			return purged, fmt.Errorf("tablebill/mongo: purge intent: %w", err)
		}
		if res.DeletedCount() == 0 {
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

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tablebill collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colDishOrders: {
			{Keys: bson.D{{Key: "table_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "table_id", Value: 1}, {Key: "payment_status", Value: 1}}},
		},
		colSplitPayments: {
			{Keys: bson.D{{Key: "table_id", Value: 1}, {Key: "settled", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "table_id", Value: 1}, {Key: "participant_key", Value: 1}, {Key: "mode", Value: 1}}},
			{
				// One pending share per participant and table.
				Keys: bson.D{{Key: "table_id", Value: 1}, {Key: "participant_key", Value: 1}},
				Options: options.Index().
					SetName("tablebill_split_payments_pending").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(split.StatusPending), "settled": false}),
			},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "table_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "restaurant_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{
				Keys:    bson.D{{Key: "intent_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		colIntents: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
	}
}
