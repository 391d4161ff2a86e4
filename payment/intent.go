package payment

import (
	"fmt"
	"time"

	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/types"
)

// DefaultIntentTTL is how long an unconfirmed intent stays valid.
const DefaultIntentTTL = 15 * time.Minute

// Intent is a payment that has been sent to the gateway but not recorded
// yet. It outlives the request so a verification redirect can come back to
// it, and expires after its TTL.
type Intent struct {
	types.Entity
	ID               id.IntentID     `json:"id"`
	TableID          string          `json:"table_id"`
	RestaurantID     string          `json:"restaurant_id"`
	BranchID         string          `json:"branch_id,omitempty"`
	ParticipantKey   string          `json:"participant_key,omitempty"`
	Currency         string          `json:"currency"`
	TableOrderID     id.TableOrderID `json:"table_order_id"`
	Strategy         split.Strategy  `json:"strategy"`
	Params           split.Params    `json:"params"`
	BaseAmount       types.Money     `json:"base_amount"`
	TipAmount        types.Money     `json:"tip_amount"`
	ChargeAmount     types.Money     `json:"charge_amount"`
	Months           int             `json:"months,omitempty"`
	CardBrand        string          `json:"card_brand,omitempty"`
	PaymentMethodRef string          `json:"payment_method_ref,omitempty"`
	Attempts         int             `json:"attempts"`
	RedirectURL      string          `json:"redirect_url,omitempty"`
	GatewayRef       string          `json:"gateway_ref,omitempty"`
	ExpiresAt        time.Time       `json:"expires_at"`
}

// IdempotencyKey is unique per gateway attempt: a retry after a failure
// gets a new key, a replay of the same attempt reuses it.
func (i *Intent) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d", i.ID, i.Attempts)
}

func (i *Intent) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Session rebuilds the table session the intent was created for.
func (i *Intent) Session() types.TableSession {
	return types.TableSession{
		TableID:        i.TableID,
		RestaurantID:   i.RestaurantID,
		BranchID:       i.BranchID,
		ParticipantKey: i.ParticipantKey,
		Currency:       i.Currency,
	}
}

// Request converts the intent into a record request for the captured charge.
func (i *Intent) Request(gatewayRef string) Request {
	return Request{
		Session:          i.Session(),
		Params:           i.Params,
		Amount:           i.BaseAmount,
		Tip:              i.TipAmount,
		PaymentMethodRef: i.PaymentMethodRef,
		GatewayRef:       gatewayRef,
		IntentID:         i.ID,
		TableOrderID:     i.TableOrderID,
		Months:           i.Months,
		CardBrand:        i.CardBrand,
	}
}
