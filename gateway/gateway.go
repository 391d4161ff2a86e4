// Package gateway defines the boundary to the payment processor that moves
// money. The engine never talks to a processor directly; it hands a Charge
// to a Gateway and acts on the Outcome.
package gateway

import (
	"context"
	"errors"

	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/types"
)

// ErrTransient marks a failure the caller may retry with the same intent,
// such as a timeout talking to the processor.
var ErrTransient = errors.New("gateway: transient failure")

type Status string

const (
	StatusSucceeded            Status = "succeeded"
	StatusFailed               Status = "failed"
	StatusRequiresVerification Status = "requires_verification"
)

// Charge is one attempt to capture money. IdempotencyKey is stable for the
// attempt, so a replayed request must not charge twice.
type Charge struct {
	IdempotencyKey   string            `json:"idempotency_key"`
	IntentID         id.IntentID       `json:"intent_id"`
	Amount           types.Money       `json:"amount"`
	PaymentMethodRef string            `json:"payment_method_ref"`
	CardBrand        string            `json:"card_brand,omitempty"`
	Months           int               `json:"months,omitempty"`
	Description      string            `json:"description,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Outcome is the processor's answer. RedirectURL is set when Status is
// StatusRequiresVerification.
type Outcome struct {
	Status        Status `json:"status"`
	Reference     string `json:"reference,omitempty"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Gateway captures charges.
type Gateway interface {
	Charge(ctx context.Context, c Charge) (*Outcome, error)
}

// Func adapts a plain function to the Gateway interface.
type Func func(ctx context.Context, c Charge) (*Outcome, error)

// Charge implements Gateway.
func (f Func) Charge(ctx context.Context, c Charge) (*Outcome, error) {
	return f(ctx, c)
}
