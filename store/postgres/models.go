package postgres

import (
	"encoding/json"
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

	ID            string            `grove:"id,pk"`
	TableID       string            `grove:"table_id"`
	RestaurantID  string            `grove:"restaurant_id"`
	BranchID      string            `grove:"branch_id"`
	TableOrderID  string            `grove:"table_order_id"`
	GuestName     string            `grove:"guest_name"`
	Item          string            `grove:"item"`
	Quantity      int               `grove:"quantity"`
	PriceCents    int64             `grove:"price_cents"`
	PriceCurrency string            `grove:"price_currency"`
	PaymentStatus string            `grove:"payment_status"`
	PaidAt        *time.Time        `grove:"paid_at"`
	Metadata      map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt     time.Time         `grove:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"`
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
		return nil, err
	}
	var tableOrderID id.TableOrderID
	if m.TableOrderID != "" {
		if tableOrderID, err = id.ParseTableOrderID(m.TableOrderID); err != nil {
			return nil, err
		}
	}

	return &dish.DishOrder{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
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

	ID             string     `grove:"id,pk"`
	TableID        string     `grove:"table_id"`
	ParticipantKey string     `grove:"participant_key"`
	Mode           string     `grove:"mode"`
	Status         string     `grove:"status"`
	ShareCents     int64      `grove:"share_cents"`
	PaidCents      int64      `grove:"paid_cents"`
	Currency       string     `grove:"currency"`
	Settled        bool       `grove:"settled"`
	PaidAt         *time.Time `grove:"paid_at"`
	SettledAt      *time.Time `grove:"settled_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
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
		return nil, err
	}
	return &split.SplitPayment{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
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

	ID                string          `grove:"id,pk"`
	PaymentMethodRef  string          `grove:"payment_method_ref"`
	GatewayRef        string          `grove:"gateway_ref"`
	IntentID          string          `grove:"intent_id"`
	RestaurantID      string          `grove:"restaurant_id"`
	BranchID          string          `grove:"branch_id"`
	TableID           string          `grove:"table_id"`
	TableOrderID      string          `grove:"table_order_id"`
	ParticipantKey    string          `grove:"participant_key"`
	Strategy          string          `grove:"strategy"`
	DishesPaid        []string        `grove:"dishes_paid,type:jsonb"`
	BaseCents         int64           `grove:"base_cents"`
	TipCents          int64           `grove:"tip_cents"`
	TotalChargedCents int64           `grove:"total_charged_cents"`
	Breakdown         json.RawMessage `grove:"breakdown,type:jsonb"`
	Months            int             `grove:"months"`
	SurchargeCents    int64           `grove:"surcharge_cents"`
	Currency          string          `grove:"currency"`
	RemainingCents    int64           `grove:"remaining_cents"`
	CreatedAt         time.Time       `grove:"created_at"`
}

func toTransactionModel(tx *payment.Transaction) *transactionModel {
	breakdown, _ := json.Marshal(tx.Breakdown) //nolint:errcheck // best-effort

	dishes := make([]string, 0, len(tx.DishesPaid))
	for _, dishID := range tx.DishesPaid {
		dishes = append(dishes, dishID.String())
	}

	return &transactionModel{
		ID:                tx.ID.String(),
		PaymentMethodRef:  tx.PaymentMethodRef,
		GatewayRef:        tx.GatewayRef,
		IntentID:          tx.IntentID.String(),
		RestaurantID:      tx.RestaurantID,
		BranchID:          tx.BranchID,
		TableID:           tx.TableID,
		TableOrderID:      tx.TableOrderID.String(),
		ParticipantKey:    tx.ParticipantKey,
		Strategy:          string(tx.Strategy),
		DishesPaid:        dishes,
		BaseCents:         tx.BaseAmount.Amount,
		TipCents:          tx.TipAmount.Amount,
		TotalChargedCents: tx.TotalAmountCharged.Amount,
		Breakdown:         breakdown,
		Months:            tx.Months,
		SurchargeCents:    tx.InstallmentSurcharge.Amount,
		Currency:          tx.Currency,
		RemainingCents:    tx.RemainingAfter.Amount,
		CreatedAt:         tx.CreatedAt,
	}
}

func fromTransactionModel(m *transactionModel) (*payment.Transaction, error) {
	txID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	intentID, err := parseOptional(m.IntentID, id.ParseIntentID)
	if err != nil {
		return nil, err
	}
	tableOrderID, err := parseOptional(m.TableOrderID, id.ParseTableOrderID)
	if err != nil {
		return nil, err
	}

	dishes := make([]id.DishOrderID, 0, len(m.DishesPaid))
	for _, s := range m.DishesPaid {
		dishID, err := id.ParseDishOrderID(s)
		if err != nil {
			return nil, err
		}
		dishes = append(dishes, dishID)
	}

	var b commission.Breakdown
	if len(m.Breakdown) > 0 {
		_ = json.Unmarshal(m.Breakdown, &b) //nolint:errcheck // best-effort
	}
	b.BaseAmount = types.Money{Amount: m.BaseCents, Currency: m.Currency}
	b.TipAmount = types.Money{Amount: m.TipCents, Currency: m.Currency}
	b.TotalAmountCharged = types.Money{Amount: m.TotalChargedCents, Currency: m.Currency}

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
		Breakdown:            b,
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

	ID               string          `grove:"id,pk"`
	TableID          string          `grove:"table_id"`
	RestaurantID     string          `grove:"restaurant_id"`
	BranchID         string          `grove:"branch_id"`
	ParticipantKey   string          `grove:"participant_key"`
	Currency         string          `grove:"currency"`
	TableOrderID     string          `grove:"table_order_id"`
	Strategy         string          `grove:"strategy"`
	Params           json.RawMessage `grove:"params,type:jsonb"`
	BaseCents        int64           `grove:"base_cents"`
	TipCents         int64           `grove:"tip_cents"`
	ChargeCents      int64           `grove:"charge_cents"`
	Months           int             `grove:"months"`
	CardBrand        string          `grove:"card_brand"`
	PaymentMethodRef string          `grove:"payment_method_ref"`
	Attempts         int             `grove:"attempts"`
	RedirectURL      string          `grove:"redirect_url"`
	GatewayRef       string          `grove:"gateway_ref"`
	ExpiresAt        time.Time       `grove:"expires_at"`
	CreatedAt        time.Time       `grove:"created_at"`
	UpdatedAt        time.Time       `grove:"updated_at"`
}

func toIntentModel(in *payment.Intent) *intentModel {
	params, _ := json.Marshal(in.Params) //nolint:errcheck // best-effort

	return &intentModel{
		ID:               in.ID.String(),
		TableID:          in.TableID,
		RestaurantID:     in.RestaurantID,
		BranchID:         in.BranchID,
		ParticipantKey:   in.ParticipantKey,
		Currency:         in.Currency,
		TableOrderID:     in.TableOrderID.String(),
		Strategy:         string(in.Strategy),
		Params:           params,
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
		return nil, err
	}
	tableOrderID, err := parseOptional(m.TableOrderID, id.ParseTableOrderID)
	if err != nil {
		return nil, err
	}

	var params split.Params
	if len(m.Params) > 0 {
		_ = json.Unmarshal(m.Params, &params) //nolint:errcheck // best-effort
	}

	return &payment.Intent{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               intentID,
		TableID:          m.TableID,
		RestaurantID:     m.RestaurantID,
		BranchID:         m.BranchID,
		ParticipantKey:   m.ParticipantKey,
		Currency:         m.Currency,
		TableOrderID:     tableOrderID,
		Strategy:         split.Strategy(m.Strategy),
		Params:           params,
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

// parseOptional parses s with parse, mapping "" to the nil id.
func parseOptional(s string, parse func(string) (id.ID, error)) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return parse(s)
}
