package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tablebill/commission"
	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/types"
)

// ==================== Dish models ====================

type dishOrderModel struct {
	grove.BaseModel `grove:"table:tablebill_dish_orders"`

	ID            string            `grove:"id,pk"          bson:"_id"`
	TableID       string            `grove:"table_id"       bson:"table_id"`
	RestaurantID  string            `grove:"restaurant_id"  bson:"restaurant_id"`
	BranchID      string            `grove:"branch_id"      bson:"branch_id,omitempty"`
	TableOrderID  string            `grove:"table_order_id" bson:"table_order_id,omitempty"`
	GuestName     string            `grove:"guest_name"     bson:"guest_name"`
	Item          string            `grove:"item"           bson:"item"`
	Quantity      int               `grove:"quantity"       bson:"quantity"`
	PriceCents    int64             `grove:"price_cents"    bson:"price_cents"`
	PriceCurrency string            `grove:"price_currency" bson:"price_currency"`
	PaymentStatus string            `grove:"payment_status" bson:"payment_status"`
	PaidAt        *time.Time        `grove:"paid_at"        bson:"paid_at,omitempty"`
	Metadata      map[string]string `grove:"metadata"       bson:"metadata,omitempty"`
	CreatedAt     time.Time         `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"     bson:"updated_at"`
}

func toDishOrderModel(d *dish.DishOrder) *dishOrderModel {
	return &dishOrderModel{
		ID:            d.ID.String(),
		TableID:       d.TableID,
		RestaurantID:  d.RestaurantID,
		BranchID:      d.BranchID,
		TableOrderID:  d.TableOrderID.String(),
		GuestName:     d.GuestName,
		Item:          d.Item,
		Quantity:      d.Quantity,
		PriceCents:    d.TotalPrice.Amount,
		PriceCurrency: d.TotalPrice.Currency,
		PaymentStatus: string(d.PaymentStatus),
		PaidAt:        d.PaidAt,
		Metadata:      d.Metadata,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func fromDishOrderModel(m *dishOrderModel) (*dish.DishOrder, error) {
	dishID, err := id.ParseDishOrderID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse dish id: %w", err)
	}
	tableOrderID, err := parseOptional(m.TableOrderID, id.ParseTableOrderID)
	if err != nil {
		return nil, fmt.Errorf("parse table order id: %w", err)
	}

	return &dish.DishOrder{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            dishID,
		TableID:       m.TableID,
		RestaurantID:  m.RestaurantID,
		BranchID:      m.BranchID,
		TableOrderID:  tableOrderID,
		GuestName:     m.GuestName,
		Item:          m.Item,
		Quantity:      m.Quantity,
		TotalPrice:    types.Money{Amount: m.PriceCents, Currency: m.PriceCurrency},
		PaymentStatus: dish.PaymentStatus(m.PaymentStatus),
		PaidAt:        m.PaidAt,
		Metadata:      m.Metadata,
	}, nil
}

// ==================== Split models ====================

type splitPaymentModel struct {
	grove.BaseModel `grove:"table:tablebill_split_payments"`

	ID             string     `grove:"id,pk"           bson:"_id"`
	TableID        string     `grove:"table_id"        bson:"table_id"`
	ParticipantKey string     `grove:"participant_key" bson:"participant_key"`
	Mode           string     `grove:"mode"            bson:"mode"`
	Status         string     `grove:"status"          bson:"status"`
	ShareCents     int64      `grove:"share_cents"     bson:"share_cents"`
	PaidCents      int64      `grove:"paid_cents"      bson:"paid_cents"`
	Currency       string     `grove:"currency"        bson:"currency"`
	Settled        bool       `grove:"settled"         bson:"settled"`
	PaidAt         *time.Time `grove:"paid_at"         bson:"paid_at,omitempty"`
	SettledAt      *time.Time `grove:"settled_at"      bson:"settled_at,omitempty"`
	CreatedAt      time.Time  `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"      bson:"updated_at"`
}

func toSplitPaymentModel(e *split.SplitPayment) *splitPaymentModel {
	currency := e.ShareAmount.Currency
	if currency == "" {
		currency = e.PaidAmount.Currency
	}
	return &splitPaymentModel{
		ID:             e.ID.String(),
		TableID:        e.TableID,
		ParticipantKey: e.ParticipantKey,
		Mode:           string(e.Mode),
		Status:         string(e.Status),
		ShareCents:     e.ShareAmount.Amount,
		PaidCents:      e.PaidAmount.Amount,
		Currency:       currency,
		Settled:        e.Settled,
		PaidAt:         e.PaidAt,
		SettledAt:      e.SettledAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromSplitPaymentModel(m *splitPaymentModel) (*split.SplitPayment, error) {
	splitID, err := id.ParseSplitPaymentID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse split payment id: %w", err)
	}
	return &split.SplitPayment{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             splitID,
		TableID:        m.TableID,
		ParticipantKey: m.ParticipantKey,
		Mode:           split.Mode(m.Mode),
		Status:         split.Status(m.Status),
		ShareAmount:    types.Money{Amount: m.ShareCents, Currency: m.Currency},
		PaidAmount:     types.Money{Amount: m.PaidCents, Currency: m.Currency},
		Settled:        m.Settled,
		PaidAt:         m.PaidAt,
		SettledAt:      m.SettledAt,
	}, nil
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:tablebill_transactions"`

	ID               string         `grove:"id,pk"              bson:"_id"`
	PaymentMethodRef string         `grove:"payment_method_ref" bson:"payment_method_ref,omitempty"`
	GatewayRef       string         `grove:"gateway_ref"        bson:"gateway_ref,omitempty"`
	IntentID         string         `grove:"intent_id"          bson:"intent_id,omitempty"`
	RestaurantID     string         `grove:"restaurant_id"      bson:"restaurant_id"`
	BranchID         string         `grove:"branch_id"          bson:"branch_id,omitempty"`
	TableID          string         `grove:"table_id"           bson:"table_id"`
	TableOrderID     string         `grove:"table_order_id"     bson:"table_order_id,omitempty"`
	ParticipantKey   string         `grove:"participant_key"    bson:"participant_key,omitempty"`
	Strategy         string         `grove:"strategy"           bson:"strategy"`
	DishesPaid       []string       `grove:"dishes_paid"        bson:"dishes_paid"`
	Breakdown        breakdownModel `grove:"breakdown"          bson:"breakdown"`
	Months           int            `grove:"months"             bson:"months,omitempty"`
	SurchargeCents   int64          `grove:"surcharge_cents"    bson:"surcharge_cents"`
	Currency         string         `grove:"currency"           bson:"currency"`
	RemainingCents   int64          `grove:"remaining_cents"    bson:"remaining_cents"`
	CreatedAt        time.Time      `grove:"created_at"         bson:"created_at"`
}

// breakdownModel keeps every commission figure in minor units of the
// transaction currency.
type breakdownModel struct {
	BaseCents                 int64   `bson:"base_cents"`
	TipCents                  int64   `bson:"tip_cents"`
	TipIVACents               int64   `bson:"tip_iva_cents"`
	CommissionTotalCents      int64   `bson:"commission_total_cents"`
	CommissionClientCents     int64   `bson:"commission_client_cents"`
	CommissionRestaurantCents int64   `bson:"commission_restaurant_cents"`
	IVAOnClientCents          int64   `bson:"iva_on_client_cents"`
	IVAOnRestaurantCents      int64   `bson:"iva_on_restaurant_cents"`
	ClientChargeCents         int64   `bson:"client_charge_cents"`
	RestaurantChargeCents     int64   `bson:"restaurant_charge_cents"`
	TotalChargedCents         int64   `bson:"total_charged_cents"`
	EffectiveRate             float64 `bson:"effective_rate"`
	Tier                      string  `bson:"tier"`
}

func toBreakdownModel(b commission.Breakdown) breakdownModel {
	return breakdownModel{
		BaseCents:                 b.BaseAmount.Amount,
		TipCents:                  b.TipAmount.Amount,
		TipIVACents:               b.TipIVA.Amount,
		CommissionTotalCents:      b.PlatformCommissionTotal.Amount,
		CommissionClientCents:     b.PlatformCommissionClientPortion.Amount,
		CommissionRestaurantCents: b.PlatformCommissionRestaurantPortion.Amount,
		IVAOnClientCents:          b.IVAOnClientPortion.Amount,
		IVAOnRestaurantCents:      b.IVAOnRestaurantPortion.Amount,
		ClientChargeCents:         b.ClientCharge.Amount,
		RestaurantChargeCents:     b.RestaurantCharge.Amount,
		TotalChargedCents:         b.TotalAmountCharged.Amount,
		EffectiveRate:             b.EffectiveRate,
		Tier:                      b.Tier,
	}
}

func fromBreakdownModel(m breakdownModel, currency string) commission.Breakdown {
	money := func(cents int64) types.Money { return types.Money{Amount: cents, Currency: currency} }
	return commission.Breakdown{
		BaseAmount:                          money(m.BaseCents),
		TipAmount:                           money(m.TipCents),
		TipIVA:                              money(m.TipIVACents),
		PlatformCommissionTotal:             money(m.CommissionTotalCents),
		PlatformCommissionClientPortion:     money(m.CommissionClientCents),
		PlatformCommissionRestaurantPortion: money(m.CommissionRestaurantCents),
		IVAOnClientPortion:                  money(m.IVAOnClientCents),
		IVAOnRestaurantPortion:              money(m.IVAOnRestaurantCents),
		ClientCharge:                        money(m.ClientChargeCents),
		RestaurantCharge:                    money(m.RestaurantChargeCents),
		TotalAmountCharged:                  money(m.TotalChargedCents),
		EffectiveRate:                       m.EffectiveRate,
		Tier:                                m.Tier,
	}
}

func toTransactionModel(tx *payment.Transaction) *transactionModel {
	dishes := make([]string, 0, len(tx.DishesPaid))
	for _, dishID := range tx.DishesPaid {
		dishes = append(dishes, dishID.String())
	}

	return &transactionModel{
		ID:               tx.ID.String(),
		PaymentMethodRef: tx.PaymentMethodRef,
		GatewayRef:       tx.GatewayRef,
		IntentID:         tx.IntentID.String(),
		RestaurantID:     tx.RestaurantID,
		BranchID:         tx.BranchID,
		TableID:          tx.TableID,
		TableOrderID:     tx.TableOrderID.String(),
		ParticipantKey:   tx.ParticipantKey,
		Strategy:         string(tx.Strategy),
		DishesPaid:       dishes,
		Breakdown:        toBreakdownModel(tx.Breakdown),
		Months:           tx.Months,
		SurchargeCents:   tx.InstallmentSurcharge.Amount,
		Currency:         tx.Currency,
		RemainingCents:   tx.RemainingAfter.Amount,
		CreatedAt:        tx.CreatedAt,
	}
}

func fromTransactionModel(m *transactionModel) (*payment.Transaction, error) {
	txID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse transaction id: %w", err)
	}
	intentID, err := parseOptional(m.IntentID, id.ParseIntentID)
	if err != nil {
		return nil, fmt.Errorf("parse intent id: %w", err)
	}
	tableOrderID, err := parseOptional(m.TableOrderID, id.ParseTableOrderID)
	if err != nil {
		return nil, fmt.Errorf("parse table order id: %w", err)
	}

	dishes := make([]id.DishOrderID, 0, len(m.DishesPaid))
	for _, s := range m.DishesPaid {
		dishID, err := id.ParseDishOrderID(s)
		if err != nil {
			return nil, fmt.Errorf("parse dish id: %w", err)
		}
		dishes = append(dishes, dishID)
	}

	return &payment.Transaction{
		ID:                   txID,
		PaymentMethodRef:     m.PaymentMethodRef,
		GatewayRef:           m.GatewayRef,
		IntentID:             intentID,
		RestaurantID:         m.RestaurantID,
		BranchID:             m.BranchID,
		TableID:              m.TableID,
		TableOrderID:         tableOrderID,
		ParticipantKey:       m.ParticipantKey,
		Strategy:             split.Strategy(m.Strategy),
		DishesPaid:           dishes,
		Breakdown:            fromBreakdownModel(m.Breakdown, m.Currency),
		Months:               m.Months,
		InstallmentSurcharge: types.Money{Amount: m.SurchargeCents, Currency: m.Currency},
		Currency:             m.Currency,
		RemainingAfter:       types.Money{Amount: m.RemainingCents, Currency: m.Currency},
		CreatedAt:            m.CreatedAt,
	}, nil
}

// ==================== Intent models ====================

type intentModel struct {
	grove.BaseModel `grove:"table:tablebill_intents"`

	ID               string      `grove:"id,pk"              bson:"_id"`
	TableID          string      `grove:"table_id"           bson:"table_id"`
	RestaurantID     string      `grove:"restaurant_id"      bson:"restaurant_id"`
	BranchID         string      `grove:"branch_id"          bson:"branch_id,omitempty"`
	ParticipantKey   string      `grove:"participant_key"    bson:"participant_key,omitempty"`
	Currency         string      `grove:"currency"           bson:"currency"`
	TableOrderID     string      `grove:"table_order_id"     bson:"table_order_id,omitempty"`
	Strategy         string      `grove:"strategy"           bson:"strategy"`
	Params           paramsModel `grove:"params"             bson:"params"`
	BaseCents        int64       `grove:"base_cents"         bson:"base_cents"`
	TipCents         int64       `grove:"tip_cents"          bson:"tip_cents"`
	ChargeCents      int64       `grove:"charge_cents"       bson:"charge_cents"`
	Months           int         `grove:"months"             bson:"months,omitempty"`
	CardBrand        string      `grove:"card_brand"         bson:"card_brand,omitempty"`
	PaymentMethodRef string      `grove:"payment_method_ref" bson:"payment_method_ref,omitempty"`
	Attempts         int         `grove:"attempts"           bson:"attempts"`
	RedirectURL      string      `grove:"redirect_url"       bson:"redirect_url,omitempty"`
	GatewayRef       string      `grove:"gateway_ref"        bson:"gateway_ref,omitempty"`
	ExpiresAt        time.Time   `grove:"expires_at"         bson:"expires_at"`
	CreatedAt        time.Time   `grove:"created_at"         bson:"created_at"`
	UpdatedAt        time.Time   `grove:"updated_at"         bson:"updated_at"`
}

type paramsModel struct {
	Strategy    string   `bson:"strategy"`
	AmountCents int64    `bson:"amount_cents,omitempty"`
	DishIDs     []string `bson:"dish_ids,omitempty"`
}

func toIntentModel(in *payment.Intent) *intentModel {
	dishIDs := make([]string, 0, len(in.Params.DishIDs))
	for _, dishID := range in.Params.DishIDs {
		dishIDs = append(dishIDs, dishID.String())
	}

	return &intentModel{
		ID:             in.ID.String(),
		TableID:        in.TableID,
		RestaurantID:   in.RestaurantID,
		BranchID:       in.BranchID,
		ParticipantKey: in.ParticipantKey,
		Currency:       in.Currency,
		TableOrderID:   in.TableOrderID.String(),
		Strategy:       string(in.Strategy),
		Params: paramsModel{
			Strategy:    string(in.Params.Strategy),
			AmountCents: in.Params.Amount.Amount,
			DishIDs:     dishIDs,
		},
		BaseCents:        in.BaseAmount.Amount,
		TipCents:         in.TipAmount.Amount,
		ChargeCents:      in.ChargeAmount.Amount,
		Months:           in.Months,
		CardBrand:        in.CardBrand,
		PaymentMethodRef: in.PaymentMethodRef,
		Attempts:         in.Attempts,
		RedirectURL:      in.RedirectURL,
		GatewayRef:       in.GatewayRef,
		ExpiresAt:        in.ExpiresAt,
		CreatedAt:        in.CreatedAt,
		UpdatedAt:        in.UpdatedAt,
	}
}

func fromIntentModel(m *intentModel) (*payment.Intent, error) {
	intentID, err := id.ParseIntentID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse intent id: %w", err)
	}
	tableOrderID, err := parseOptional(m.TableOrderID, id.ParseTableOrderID)
	if err != nil {
		return nil, fmt.Errorf("parse table order id: %w", err)
	}

	var dishIDs []id.DishOrderID
	for _, s := range m.Params.DishIDs {
		dishID, err := id.ParseDishOrderID(s)
		if err != nil {
			return nil, fmt.Errorf("parse dish id: %w", err)
		}
		dishIDs = append(dishIDs, dishID)
	}

	return &payment.Intent{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             intentID,
		TableID:        m.TableID,
		RestaurantID:   m.RestaurantID,
		BranchID:       m.BranchID,
		ParticipantKey: m.ParticipantKey,
		Currency:       m.Currency,
		TableOrderID:   tableOrderID,
		Strategy:       split.Strategy(m.Strategy),
		Params: split.Params{
			Strategy: split.Strategy(m.Params.Strategy),
			Amount:   types.Money{Amount: m.Params.AmountCents, Currency: m.Currency},
			DishIDs:  dishIDs,
		},
		BaseAmount:       types.Money{Amount: m.BaseCents, Currency: m.Currency},
		TipAmount:        types.Money{Amount: m.TipCents, Currency: m.Currency},
		ChargeAmount:     types.Money{Amount: m.ChargeCents, Currency: m.Currency},
		Months:           m.Months,
		CardBrand:        m.CardBrand,
		PaymentMethodRef: m.PaymentMethodRef,
		Attempts:         m.Attempts,
		RedirectURL:      m.RedirectURL,
		GatewayRef:       m.GatewayRef,
		ExpiresAt:        m.ExpiresAt,
	}, nil
}

func parseOptional(s string, parse func(string) (id.ID, error)) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return parse(s)
}
