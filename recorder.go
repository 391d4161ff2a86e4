package tablebill

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/types"
)

// RecordPayment applies a captured payment to the table.
//
// The ledger changes happen before it returns and any failure there is
// returned. The audit transaction is written afterwards in the background;
// its failures are logged and reported to plugins only.
func (e *Engine) RecordPayment(ctx context.Context, req payment.Request) (*payment.Receipt, error) {
	sess := req.Session
	if sess.TableID == "" {
		return nil, types.Invalid("table_id", "is required")
	}
	if !req.Params.Strategy.Valid() {
		return nil, types.Invalid("strategy", "unknown strategy %q", req.Params.Strategy)
	}

	snap, err := e.snapshot(ctx, sess)
	if err != nil {
		return nil, err
	}
	if len(snap.dishes) == 0 {
		return nil, ErrTableNotFound
	}

	base, err := snap.resolve(sess, req.Params)
	if req.Amount.Currency == "" {
		req.Amount.Currency = base.Currency
	}
	if !req.Amount.IsZero() && (err != nil || !base.Equal(req.Amount)) {
		return nil, e.amountChanged(req, base)
	}
	if err != nil {
		return nil, err
	}
	if !base.IsPositive() {
		return nil, ErrNothingToPay
	}
	tip, err := normalizeTip(req.Tip, base.Currency)
	if err != nil {
		return nil, err
	}

	// Critical path
	changed, splitChanged, err := e.applyPayment(ctx, snap, sess, req.Params, base)
	var mismatch *AmountMismatchError
	if errors.As(err, &mismatch) {
		mismatch.IntentID = req.IntentID
	}
	if err != nil {
		return nil, err
	}

	after, err := e.snapshot(ctx, sess)
	if err != nil {
		return nil, err
	}
	if after.summary.Settled() && (after.summary.UnpaidCount > 0 || len(after.splits) > 0) {
		ids, err := e.settle(ctx, sess.TableID)
		if err != nil {
			return nil, err
		}
		changed = append(changed, ids...)
		splitChanged = true
		if after, err = e.snapshot(ctx, sess); err != nil {
			return nil, err
		}
	}

	b := e.calculator.Compute(base, tip)
	receipt := &payment.Receipt{
		TransactionID: id.NewTransactionID(),
		Strategy:      req.Params.Strategy,
		BaseAmount:    base,
		Breakdown:     b,
		DishesPaid:    changed,
		Summary:       after.summary,
		Settled:       after.summary.Settled(),
	}

	if len(changed) > 0 {
		e.plugins.EmitDishesPaid(ctx, sess.TableID, changed, after.summary)
	}
	if splitChanged {
		if entries, err := e.store.ListSplitPayments(ctx, sess.TableID, split.ListOpts{}); err == nil {
			e.plugins.EmitSplitUpdated(ctx, sess.TableID, entries)
		}
	}
	e.plugins.EmitPaymentRecorded(ctx, receipt)

	e.logger.Info("payment recorded",
		"table_id", sess.TableID,
		"participant", sess.ParticipantKey,
		"strategy", req.Params.Strategy,
		"base", base.String(),
		"dishes_paid", len(changed),
		"remaining", after.summary.RemainingAmount.String(),
	)

	// Non-critical path
	tx := e.buildTransaction(req, snap, receipt)
	bg := context.WithoutCancel(ctx)
	e.goBackground(func() { e.recordTransaction(bg, tx) })

	return receipt, nil
}

// applyPayment performs the ledger mutation for one strategy. It returns the
// dishes flipped to paid and whether any split entry changed.
func (e *Engine) applyPayment(ctx context.Context, snap *tableSnapshot, sess TableSession, params split.Params, base types.Money) ([]id.DishOrderID, bool, error) {
	switch params.Strategy {
	case split.FullBill:
		ids, err := e.markPaid(ctx, sess.TableID, dish.AllUnpaid())
		return ids, false, err

	case split.UserItems:
		ids, err := e.markPaid(ctx, sess.TableID, dish.ByGuests(sess.ParticipantKey))
		if err != nil {
			return nil, false, err
		}
		flipped, err := e.store.MarkSplitPaid(ctx, sess.TableID, sess.ParticipantKey, split.ModeUserItems, base, e.now().UTC())
		return ids, flipped, err

	case split.SelectItems:
		ids, err := e.markPaid(ctx, sess.TableID, dish.ByIDs(params.DishIDs...))
		return ids, false, err

	case split.EqualShares:
		mode, active := split.ActiveSession(snap.splits)
		if !active && sess.ParticipantKey != "" {
			// The first equal-shares payment fixes who shares the rest.
			keys := uniqueKeys(append(append([]string(nil), snap.summary.Participants...), sess.ParticipantKey))
			entries, err := e.openSplit(ctx, snap, sess.TableID, split.ModeEqualShares, keys)
			switch {
			case errors.Is(err, ErrSplitActive):
				// Another payer opened the session first.
				if mode, err = e.joinSplit(ctx, sess, params, base); err != nil {
					return nil, false, err
				}
				active = true
			case err != nil:
				return nil, false, err
			default:
				e.plugins.EmitSplitStarted(ctx, sess.TableID, split.ModeEqualShares, entries)
				mode, active = split.ModeEqualShares, true
			}
		}
		if !active {
			return nil, true, e.credit(ctx, sess, base)
		}
		if mode != split.ModeEqualShares {
			return nil, false, types.Invalid("strategy", "a %s session is open at this table", mode)
		}
		flipped, err := e.store.MarkSplitPaid(ctx, sess.TableID, sess.ParticipantKey, split.ModeEqualShares, base, e.now().UTC())
		if err != nil {
			return nil, false, err
		}
		if !flipped {
			return nil, false, types.Invalid("participant", "%q has no pending share at this table", sess.ParticipantKey)
		}
		return nil, true, nil

	case split.ChooseAmount:
		return nil, true, e.credit(ctx, sess, base)

	default:
		return nil, false, types.Invalid("strategy", "unknown strategy %q", params.Strategy)
	}
}

// joinSplit re-reads a table whose session was opened concurrently and
// checks the caller still owes base under it.
func (e *Engine) joinSplit(ctx context.Context, sess TableSession, params split.Params, base types.Money) (split.Mode, error) {
	snap, err := e.snapshot(ctx, sess)
	if err != nil {
		return "", err
	}
	mode, _ := split.ActiveSession(snap.splits)
	owed, err := snap.resolve(sess, params)
	if err != nil || !owed.Equal(base) {
		return "", &AmountMismatchError{Charged: base, Owed: owed}
	}
	e.logger.Debug("joined concurrently opened split session",
		"table_id", sess.TableID,
		"participant", sess.ParticipantKey,
	)
	return mode, nil
}

// amountChanged reports a priced charge that no longer matches the table.
func (e *Engine) amountChanged(req payment.Request, owed types.Money) error {
	if owed.Currency == "" {
		owed = types.Zero(req.Amount.Currency)
	}
	err := &AmountMismatchError{IntentID: req.IntentID, Charged: req.Amount, Owed: owed}
	e.logger.Error("captured amount no longer matches the table",
		"table_id", req.Session.TableID,
		"participant", req.Session.ParticipantKey,
		"intent_id", req.IntentID.String(),
		"charged", req.Amount.String(),
		"owed", owed.String(),
	)
	return err
}

// credit records money collected against the table as a whole rather than
// specific dishes.
func (e *Engine) credit(ctx context.Context, sess TableSession, amount types.Money) error {
	now := e.now().UTC()
	entry := &split.SplitPayment{
		Entity:         types.NewEntity(),
		ID:             id.NewSplitPaymentID(),
		TableID:        sess.TableID,
		ParticipantKey: sess.ParticipantKey,
		Mode:           split.ModeAmount,
		Status:         split.StatusPaid,
		ShareAmount:    amount,
		PaidAmount:     amount,
		PaidAt:         &now,
	}
	return e.store.CreateSplitPayments(ctx, []*split.SplitPayment{entry})
}

// settle closes a table whose remaining amount reached zero: every unpaid
// dish is marked paid and open split entries are retired.
func (e *Engine) settle(ctx context.Context, tableID string) ([]id.DishOrderID, error) {
	ids, err := e.markPaid(ctx, tableID, dish.AllUnpaid())
	if err != nil {
		return nil, err
	}
	if _, err := e.store.SettleSplitPayments(ctx, tableID, e.now().UTC()); err != nil {
		return nil, err
	}
	return ids, nil
}

func (e *Engine) buildTransaction(req payment.Request, snap *tableSnapshot, r *payment.Receipt) *payment.Transaction {
	sess := req.Session

	tableOrderID := req.TableOrderID
	if tableOrderID.IsNil() && len(snap.dishes) > 0 {
		tableOrderID = snap.dishes[0].TableOrderID
	}

	tx := &payment.Transaction{
		ID:                   r.TransactionID,
		PaymentMethodRef:     req.PaymentMethodRef,
		GatewayRef:           req.GatewayRef,
		IntentID:             req.IntentID,
		RestaurantID:         sess.RestaurantID,
		BranchID:             sess.BranchID,
		TableID:              sess.TableID,
		TableOrderID:         tableOrderID,
		ParticipantKey:       sess.ParticipantKey,
		Strategy:             r.Strategy,
		DishesPaid:           append([]id.DishOrderID(nil), r.DishesPaid...),
		Breakdown:            r.Breakdown,
		Months:               req.Months,
		InstallmentSurcharge: types.Zero(r.BaseAmount.Currency),
		Currency:             r.BaseAmount.Currency,
		RemainingAfter:       r.Summary.RemainingAmount,
	}
	if req.Months > 0 {
		if opt, ok := e.calculator.FindInstallment(r.Breakdown.TotalAmountCharged, req.CardBrand, req.Months); ok {
			tx.InstallmentSurcharge = opt.SurchargeTotal.Add(opt.IVAOnSurcharge)
		}
	}
	return tx
}

// recordTransaction writes the audit record. It never returns an error: the
// payment has already been applied and the caller has its receipt.
func (e *Engine) recordTransaction(ctx context.Context, tx *payment.Transaction) {
	ctx, cancel := context.WithTimeout(ctx, e.recordTimeout)
	defer cancel()

	// Remaining as of the write, not as of the payment.
	if s, err := e.Summarize(ctx, TableSession{TableID: tx.TableID, Currency: tx.Currency}); err == nil {
		tx.RemainingAfter = s.RemainingAmount
	}
	tx.CreatedAt = e.now().UTC()

	if err := e.store.AppendTransaction(ctx, tx); err != nil {
		nerr := &NonCriticalRecordingError{Op: "append transaction", Err: fmt.Errorf("%s: %w", tx.ID, err)}
		e.logger.Error("failed to record payment transaction",
			"table_id", tx.TableID,
			"transaction_id", tx.ID.String(),
			"error", nerr,
		)
		e.plugins.EmitTransactionFailed(ctx, tx.TableID, nerr)
		return
	}

	e.plugins.EmitTransactionRecorded(ctx, tx)
}

// ListTransactions returns the table's payment audit records, oldest first.
func (e *Engine) ListTransactions(ctx context.Context, tableID string, opts payment.ListOpts) ([]*payment.Transaction, error) {
	return e.store.ListTransactions(ctx, tableID, opts)
}
