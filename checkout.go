package tablebill

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/gateway"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/types"
)

// ErrNoGateway is returned by Checkout when the engine has no gateway.
var ErrNoGateway = errors.New("tablebill: no payment gateway configured")

// Checkout charges the participant's share through the gateway and records
// the payment once the charge succeeds.
//
// A new checkout resolves the amount from a fresh read, prices it and
// persists an intent before calling the gateway. Passing IntentID retries
// an existing intent with the next idempotency key, repricing it first. A charge that needs
// verification returns the redirect and leaves the intent pending for
// ConfirmIntent.
func (e *Engine) Checkout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutResult, error) {
	if e.gateway == nil {
		return nil, ErrNoGateway
	}
	if req.PaymentMethodRef == "" {
		return nil, types.Invalid("payment_method_ref", "is required")
	}

	var in *payment.Intent
	var err error
	if req.IntentID.IsNil() {
		in, err = e.newIntent(ctx, req)
	} else {
		in, err = e.retryIntent(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	out, err := e.gateway.Charge(ctx, gateway.Charge{
		IdempotencyKey:   in.IdempotencyKey(),
		IntentID:         in.ID,
		Amount:           in.ChargeAmount,
		PaymentMethodRef: in.PaymentMethodRef,
		CardBrand:        in.CardBrand,
		Months:           in.Months,
		Description:      "table " + in.TableID,
		Metadata: map[string]string{
			"table_id":      in.TableID,
			"restaurant_id": in.RestaurantID,
			"participant":   in.ParticipantKey,
			"strategy":      string(in.Strategy),
		},
	})
	if err != nil {
		return nil, e.failAttempt(ctx, in, "", err)
	}

	switch out.Status {
	case gateway.StatusSucceeded:
		receipt, err := e.complete(ctx, in, out.Reference)
		if err != nil {
			return nil, err
		}
		return &payment.CheckoutResult{
			Status:  payment.CheckoutSucceeded,
			Intent:  in,
			Receipt: receipt,
		}, nil

	case gateway.StatusRequiresVerification:
		in.RedirectURL = out.RedirectURL
		in.GatewayRef = out.Reference
		in.Touch()
		if err := e.store.SaveIntent(ctx, in); err != nil {
			return nil, err
		}
		return &payment.CheckoutResult{
			Status:      payment.CheckoutRequiresVerification,
			Intent:      in,
			RedirectURL: out.RedirectURL,
		}, nil

	default:
		return nil, e.failAttempt(ctx, in, out.FailureReason, ErrPaymentDeclined)
	}
}

// ConfirmIntent records a payment whose verification finished outside the
// request that started it.
func (e *Engine) ConfirmIntent(ctx context.Context, intentID id.IntentID, gatewayRef string) (*payment.Receipt, error) {
	in, err := e.loadIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if gatewayRef == "" {
		gatewayRef = in.GatewayRef
	}
	return e.complete(ctx, in, gatewayRef)
}

// GetIntent returns a pending intent.
func (e *Engine) GetIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error) {
	return e.loadIntent(ctx, intentID)
}

func (e *Engine) newIntent(ctx context.Context, req payment.CheckoutRequest) (*payment.Intent, error) {
	sess := req.Session
	if sess.TableID == "" {
		return nil, types.Invalid("table_id", "is required")
	}

	q, charge, err := e.price(ctx, sess, req.Params, req.Tip, req.CardBrand, req.Months)
	if err != nil {
		return nil, err
	}

	dishes, err := e.store.ListDishOrders(ctx, sess.TableID, dish.ListOpts{Limit: 1})
	if err != nil {
		return nil, err
	}
	tableOrderID := id.NewTableOrderID()
	if len(dishes) > 0 && !dishes[0].TableOrderID.IsNil() {
		tableOrderID = dishes[0].TableOrderID
	}

	now := e.now().UTC()
	in := &payment.Intent{
		Entity:           types.NewEntity(),
		ID:               id.NewIntentID(),
		TableID:          sess.TableID,
		RestaurantID:     sess.RestaurantID,
		BranchID:         sess.BranchID,
		ParticipantKey:   sess.ParticipantKey,
		Currency:         q.BaseAmount.Currency,
		TableOrderID:     tableOrderID,
		Strategy:         req.Params.Strategy,
		Params:           req.Params,
		BaseAmount:       q.BaseAmount,
		TipAmount:        q.Breakdown.TipAmount,
		ChargeAmount:     charge,
		Months:           req.Months,
		CardBrand:        req.CardBrand,
		PaymentMethodRef: req.PaymentMethodRef,
		ExpiresAt:        now.Add(e.intentTTL),
	}
	if err := e.store.SaveIntent(ctx, in); err != nil {
		return nil, err
	}

	e.plugins.EmitIntentCreated(ctx, in)
	return in, nil
}

// retryIntent reloads an intent for another charge attempt and prices it
// again from a fresh read. When the price moved, the intent is updated and
// moved to the next attempt so the gateway never replays the old amount.
func (e *Engine) retryIntent(ctx context.Context, req payment.CheckoutRequest) (*payment.Intent, error) {
	in, err := e.loadIntent(ctx, req.IntentID)
	if err != nil {
		return nil, err
	}

	q, charge, err := e.price(ctx, in.Session(), in.Params, in.TipAmount, in.CardBrand, in.Months)
	if err != nil {
		return nil, err
	}
	if !q.BaseAmount.Equal(in.BaseAmount) || !charge.Equal(in.ChargeAmount) {
		e.logger.Info("intent repriced before retry",
			"intent_id", in.ID.String(),
			"base_was", in.BaseAmount.String(),
			"base", q.BaseAmount.String(),
			"charge", charge.String(),
		)
		in.BaseAmount = q.BaseAmount
		in.TipAmount = q.Breakdown.TipAmount
		in.ChargeAmount = charge
		in.Attempts++
	}

	in.PaymentMethodRef = req.PaymentMethodRef
	in.Touch()
	if err := e.store.SaveIntent(ctx, in); err != nil {
		return nil, err
	}
	return in, nil
}

// price quotes what the participant owes now and the amount to charge,
// installment surcharge included.
func (e *Engine) price(ctx context.Context, sess TableSession, params split.Params, tip types.Money, brand string, months int) (*Quote, types.Money, error) {
	q, err := e.Quote(ctx, sess, params, tip, brand)
	if err != nil {
		return nil, types.Money{}, err
	}
	if q.Summary.DishCount == 0 {
		return nil, types.Money{}, ErrTableNotFound
	}
	if !q.BaseAmount.IsPositive() {
		return nil, types.Money{}, ErrNothingToPay
	}

	charge := q.Breakdown.TotalAmountCharged
	if months > 0 {
		opt, ok := e.calculator.FindInstallment(charge, brand, months)
		if !ok {
			return nil, types.Money{}, fmt.Errorf("%w: %d months for %s", ErrInstallmentRejected, months, charge)
		}
		charge = opt.TotalWithSurcharge
	}
	return q, charge, nil
}

func (e *Engine) loadIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error) {
	in, err := e.store.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if in.Expired(e.now()) {
		_ = e.store.DeleteIntent(ctx, in.ID) //nolint:errcheck // the sweeper retries
		e.plugins.EmitIntentExpired(ctx, in)
		return nil, ErrIntentExpired
	}
	return in, nil
}

// failAttempt advances and saves the attempt counter before reporting the
// failure, so the next try gets a fresh idempotency key.
func (e *Engine) failAttempt(ctx context.Context, in *payment.Intent, reason string, cause error) error {
	attempt := in.Attempts
	in.Attempts++
	in.Touch()
	if err := e.store.SaveIntent(ctx, in); err != nil {
		e.logger.Error("failed to save intent attempt",
			"intent_id", in.ID.String(),
			"error", err,
		)
	}

	gerr := &GatewayError{IntentID: in.ID, Attempt: attempt, Reason: reason, Err: cause}
	e.plugins.EmitGatewayFailed(ctx, in, gerr)
	e.logger.Warn("gateway charge failed",
		"intent_id", in.ID.String(),
		"attempt", attempt,
		"reason", reason,
		"error", cause,
	)

	if errors.Is(cause, gateway.ErrTransient) || errors.Is(cause, context.DeadlineExceeded) {
		return &TransientError{Op: "checkout", Err: gerr}
	}
	return gerr
}

// complete records the captured charge and retires the intent.
func (e *Engine) complete(ctx context.Context, in *payment.Intent, gatewayRef string) (*payment.Receipt, error) {
	receipt, err := e.RecordPayment(ctx, in.Request(gatewayRef))
	if err != nil {
		return nil, err
	}
	if err := e.store.DeleteIntent(ctx, in.ID); err != nil {
		e.logger.Warn("failed to delete completed intent",
			"intent_id", in.ID.String(),
			"error", err,
		)
	}
	return receipt, nil
}
