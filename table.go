package tablebill

import (
	"context"
	"strings"

	"github.com/xraph/tablebill/commission"
	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/summary"
	"github.com/xraph/tablebill/types"
)

// ──────────────────────────────────────────────────
// Dish ledger
// ──────────────────────────────────────────────────

// AddDish validates and stores a new unpaid dish.
func (e *Engine) AddDish(ctx context.Context, d *dish.DishOrder) error {
	d.TableID = strings.TrimSpace(d.TableID)
	d.GuestName = strings.TrimSpace(d.GuestName)
	d.Item = strings.TrimSpace(d.Item)

	switch {
	case d.TableID == "":
		return types.Invalid("table_id", "is required")
	case d.GuestName == "":
		return types.Invalid("guest_name", "is required")
	case d.Item == "":
		return types.Invalid("item", "is required")
	case d.Quantity < 0:
		return types.Invalid("quantity", "must not be negative")
	case !d.TotalPrice.IsPositive():
		return types.Invalid("total_price", "must be greater than zero")
	}
	if d.Quantity == 0 {
		d.Quantity = 1
	}
	if d.TotalPrice.Currency == "" {
		d.TotalPrice.Currency = types.DefaultCurrency
	}

	existing, err := e.store.ListDishOrders(ctx, d.TableID, dish.ListOpts{Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if cur := existing[0].TotalPrice.Currency; cur != d.TotalPrice.Currency {
			return types.Invalid("total_price", "currency %s does not match table currency %s", d.TotalPrice.Currency, cur)
		}
		if d.TableOrderID.IsNil() {
			d.TableOrderID = existing[0].TableOrderID
		}
	}

	if d.ID.IsNil() {
		d.ID = id.NewDishOrderID()
	}
	if d.TableOrderID.IsNil() {
		d.TableOrderID = id.NewTableOrderID()
	}
	d.PaymentStatus = dish.StatusNotPaid
	d.PaidAt = nil
	d.Entity = types.NewEntity()

	if err := e.store.CreateDishOrder(ctx, d); err != nil {
		return err
	}

	snap, err := e.snapshot(ctx, TableSession{TableID: d.TableID, Currency: d.TotalPrice.Currency})
	if err != nil {
		e.logger.Warn("dish created but summary unavailable", "table_id", d.TableID, "error", err)
		return nil
	}

	e.plugins.EmitDishCreated(ctx, d, snap.summary)
	return nil
}

// GetDish retrieves a dish by ID.
func (e *Engine) GetDish(ctx context.Context, dishID id.DishOrderID) (*dish.DishOrder, error) {
	return e.store.GetDishOrder(ctx, dishID)
}

// ListDishes returns every dish at the table, oldest first.
func (e *Engine) ListDishes(ctx context.Context, tableID string) ([]*dish.DishOrder, error) {
	return e.store.ListDishOrders(ctx, tableID, dish.ListOpts{})
}

// ListUnpaid returns the table's unpaid dishes.
func (e *Engine) ListUnpaid(ctx context.Context, tableID string) ([]*dish.DishOrder, error) {
	return e.store.ListDishOrders(ctx, tableID, dish.ListOpts{Status: dish.StatusNotPaid})
}

// ListPaid returns the table's paid dishes.
func (e *Engine) ListPaid(ctx context.Context, tableID string) ([]*dish.DishOrder, error) {
	return e.store.ListDishOrders(ctx, tableID, dish.ListOpts{Status: dish.StatusPaid})
}

// MarkPaid flips the unpaid dishes matched by c to paid and returns how many
// changed in this call. Repeating a call is safe and returns 0.
func (e *Engine) MarkPaid(ctx context.Context, tableID string, c dish.Criteria) (int, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	n, err := e.store.CountDishOrders(ctx, tableID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrTableNotFound
	}

	changed, err := e.markPaid(ctx, tableID, c)
	if err != nil {
		return 0, err
	}

	if len(changed) > 0 {
		if snap, err := e.snapshot(ctx, TableSession{TableID: tableID}); err == nil {
			e.plugins.EmitDishesPaid(ctx, tableID, changed, snap.summary)
		}
	}
	return len(changed), nil
}

func (e *Engine) markPaid(ctx context.Context, tableID string, c dish.Criteria) ([]id.DishOrderID, error) {
	return e.store.MarkDishOrdersPaid(ctx, tableID, c, e.now().UTC())
}

// ──────────────────────────────────────────────────
// Summary and resolution
// ──────────────────────────────────────────────────

// tableSnapshot is one consistent read of a table.
type tableSnapshot struct {
	dishes  []*dish.DishOrder
	splits  []*split.SplitPayment
	summary summary.TableSummary
}

func (e *Engine) snapshot(ctx context.Context, sess TableSession) (*tableSnapshot, error) {
	dishes, err := e.store.ListDishOrders(ctx, sess.TableID, dish.ListOpts{})
	if err != nil {
		return nil, err
	}
	splits, err := e.store.ListSplitPayments(ctx, sess.TableID, split.ListOpts{OpenOnly: true})
	if err != nil {
		return nil, err
	}

	currency := sess.CurrencyOrDefault()
	if len(dishes) > 0 && dishes[0].TotalPrice.Currency != "" {
		currency = dishes[0].TotalPrice.Currency
	}

	return &tableSnapshot{
		dishes:  dishes,
		splits:  splits,
		summary: summary.Compute(sess.TableID, currency, dishes, split.Credits(currency, splits)),
	}, nil
}

// Summarize recomputes the table's totals from the ledger.
func (e *Engine) Summarize(ctx context.Context, sess TableSession) (summary.TableSummary, error) {
	snap, err := e.snapshot(ctx, sess)
	if err != nil {
		return summary.TableSummary{}, err
	}
	return snap.summary, nil
}

// Resolve returns what the session's participant owes right now under the
// chosen strategy.
func (e *Engine) Resolve(ctx context.Context, sess TableSession, params split.Params) (types.Money, error) {
	snap, err := e.snapshot(ctx, sess)
	if err != nil {
		return types.Money{}, err
	}
	return snap.resolve(sess, params)
}

func (s *tableSnapshot) resolve(sess TableSession, params split.Params) (types.Money, error) {
	return split.Resolve(split.Input{
		Summary:        s.summary,
		Dishes:         s.dishes,
		Splits:         s.splits,
		ParticipantKey: sess.ParticipantKey,
		Params:         params,
	})
}

// Quote is the full price of a payment before it is charged.
type Quote struct {
	Strategy     split.Strategy           `json:"strategy"`
	BaseAmount   types.Money              `json:"base_amount"`
	Breakdown    commission.Breakdown     `json:"breakdown"`
	Installments []commission.Installment `json:"installments"`
	Summary      summary.TableSummary     `json:"summary"`
}

// Quote resolves the amount owed and prices it: commission, taxes and the
// installment plans available for the card brand.
func (e *Engine) Quote(ctx context.Context, sess TableSession, params split.Params, tip types.Money, brand string) (*Quote, error) {
	snap, err := e.snapshot(ctx, sess)
	if err != nil {
		return nil, err
	}
	base, err := snap.resolve(sess, params)
	if err != nil {
		return nil, err
	}
	tip, err = normalizeTip(tip, base.Currency)
	if err != nil {
		return nil, err
	}

	b := e.calculator.Compute(base, tip)
	return &Quote{
		Strategy:     params.Strategy,
		BaseAmount:   base,
		Breakdown:    b,
		Installments: e.calculator.InstallmentOptions(b.TotalAmountCharged, brand),
		Summary:      snap.summary,
	}, nil
}

func normalizeTip(tip types.Money, currency string) (types.Money, error) {
	if tip.Currency == "" {
		tip.Currency = currency
	}
	if tip.Currency != currency {
		return tip, types.Invalid("tip", "currency %s does not match table currency %s", tip.Currency, currency)
	}
	if tip.IsNegative() {
		return tip, types.Invalid("tip", "must not be negative")
	}
	return tip, nil
}
