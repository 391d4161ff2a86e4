// Package payment holds the records produced when a diner pays: the
// immutable transaction audit log and the pending intents that wait on the
// gateway.
package payment

import (
	"time"

	"github.com/xraph/tablebill/commission"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/summary"
	"github.com/xraph/tablebill/types"
)

// Transaction is the audit record of one completed payment. It is written
// once and never updated or deleted.
type Transaction struct {
	ID               id.TransactionID `json:"id"`
	PaymentMethodRef string           `json:"payment_method_ref,omitempty"`
	GatewayRef       string           `json:"gateway_ref,omitempty"`
	IntentID         id.IntentID      `json:"intent_id,omitempty"`
	RestaurantID     string           `json:"restaurant_id"`
	BranchID         string           `json:"branch_id,omitempty"`
	TableID          string           `json:"table_id"`
	TableOrderID     id.TableOrderID  `json:"table_order_id,omitempty"`
	ParticipantKey   string           `json:"participant_key,omitempty"`
	Strategy         split.Strategy   `json:"strategy"`
	DishesPaid       []id.DishOrderID `json:"dishes_paid"`

	commission.Breakdown

	Months               int         `json:"months,omitempty"`
	InstallmentSurcharge types.Money `json:"installment_surcharge"`
	Currency             string      `json:"currency"`
	RemainingAfter       types.Money `json:"remaining_after"`
	CreatedAt            time.Time   `json:"created_at"`
}

type ListOpts struct {
	Limit  int
	Offset int
}

// Request asks the engine to record a payment that the gateway has already
// captured. Amount, when set, is the base the charge was priced at: the
// payment is only applied if a fresh read still resolves to exactly that.
type Request struct {
	Session          types.TableSession `json:"session"`
	Params           split.Params       `json:"params"`
	Amount           types.Money        `json:"amount"`
	Tip              types.Money        `json:"tip"`
	PaymentMethodRef string             `json:"payment_method_ref,omitempty"`
	GatewayRef       string             `json:"gateway_ref,omitempty"`
	IntentID         id.IntentID        `json:"intent_id,omitempty"`
	TableOrderID     id.TableOrderID    `json:"table_order_id,omitempty"`
	Months           int                `json:"months,omitempty"`
	CardBrand        string             `json:"card_brand,omitempty"`
}

// Receipt is what the caller gets back once the critical path committed.
// The audit transaction is written afterwards and is not part of it.
type Receipt struct {
	TransactionID id.TransactionID     `json:"transaction_id"`
	Strategy      split.Strategy       `json:"strategy"`
	BaseAmount    types.Money          `json:"base_amount"`
	Breakdown     commission.Breakdown `json:"breakdown"`
	DishesPaid    []id.DishOrderID     `json:"dishes_paid"`
	Summary       summary.TableSummary `json:"summary"`
	Settled       bool                 `json:"settled"`
}

// CheckoutRequest starts a gateway charge for the amount the strategy
// resolves to.
type CheckoutRequest struct {
	Session          types.TableSession `json:"session"`
	Params           split.Params       `json:"params"`
	Tip              types.Money        `json:"tip"`
	PaymentMethodRef string             `json:"payment_method_ref"`
	CardBrand        string             `json:"card_brand,omitempty"`
	Months           int                `json:"months,omitempty"`
	// IntentID retries an existing intent instead of creating a new one.
	IntentID id.IntentID `json:"intent_id,omitempty"`
}

type CheckoutStatus string

const (
	CheckoutSucceeded            CheckoutStatus = "succeeded"
	CheckoutRequiresVerification CheckoutStatus = "requires_verification"
)

// CheckoutResult is returned for both a completed charge and one waiting on
// verification. Failures come back as errors.
type CheckoutResult struct {
	Status      CheckoutStatus `json:"status"`
	Intent      *Intent        `json:"intent"`
	Receipt     *Receipt       `json:"receipt,omitempty"`
	RedirectURL string         `json:"redirect_url,omitempty"`
}
