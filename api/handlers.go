package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/xraph/tablebill"
	"github.com/xraph/tablebill/commission"
	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/realtime"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/types"
)

// ──────────────────────────────────────────────────
// Request bodies
// ──────────────────────────────────────────────────

// Amounts are integer minor units in the body's currency (the table
// currency when omitted).

type dishRequest struct {
	GuestName    string            `json:"guest_name"`
	Item         string            `json:"item"`
	Quantity     int               `json:"quantity"`
	Price        int64             `json:"price"`
	Currency     string            `json:"currency"`
	BranchID     string            `json:"branch_id"`
	TableOrderID string            `json:"table_order_id"`
	Metadata     map[string]string `json:"metadata"`
}

type paymentRequest struct {
	Strategy         split.Strategy `json:"strategy"`
	Amount           int64          `json:"amount"`
	BaseAmount       int64          `json:"base_amount"`
	DishIDs          []string       `json:"dish_ids"`
	Tip              int64          `json:"tip"`
	Currency         string         `json:"currency"`
	BranchID         string         `json:"branch_id"`
	CardBrand        string         `json:"card_brand"`
	Months           int            `json:"months"`
	PaymentMethodRef string         `json:"payment_method_ref"`
	GatewayRef       string         `json:"gateway_ref"`
	IntentID         string         `json:"intent_id"`
	TableOrderID     string         `json:"table_order_id"`
}

type splitRequest struct {
	Mode         split.Mode `json:"mode"`
	Participants []string   `json:"participants"`
	Currency     string     `json:"currency"`
}

type confirmRequest struct {
	GatewayRef string `json:"gateway_ref"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return types.Invalid("body", "%v", err)
	}
	return nil
}

func (s *Server) session(r *http.Request, currency, branchID string) tablebill.TableSession {
	ident, _ := IdentityFrom(r.Context())
	return tablebill.TableSession{
		TableID:        mux.Vars(r)["tableID"],
		RestaurantID:   ident.RestaurantID,
		BranchID:       branchID,
		ParticipantKey: ident.ParticipantKey,
		Currency:       strings.ToLower(currency),
	}
}

func (p paymentRequest) params() (split.Params, error) {
	params := split.Params{
		Strategy: p.Strategy,
		Amount:   types.Money{Amount: p.Amount, Currency: strings.ToLower(p.Currency)},
	}
	if params.Strategy == "" {
		params.Strategy = split.FullBill
	}
	for _, raw := range p.DishIDs {
		dishID, err := id.ParseDishOrderID(raw)
		if err != nil {
			return params, types.Invalid("dish_ids", "%q is not a dish id", raw)
		}
		params.DishIDs = append(params.DishIDs, dishID)
	}
	return params, nil
}

func (p paymentRequest) tip() types.Money {
	return types.Money{Amount: p.Tip, Currency: strings.ToLower(p.Currency)}
}

func parseOptionalID(raw, field string, parse func(string) (id.ID, error)) (id.ID, error) {
	if raw == "" {
		return id.Nil, nil
	}
	v, err := parse(raw)
	if err != nil {
		return id.Nil, types.Invalid(field, "%v", err)
	}
	return v, nil
}

// ──────────────────────────────────────────────────
// Dishes and summary
// ──────────────────────────────────────────────────

func (s *Server) handleListDishes(w http.ResponseWriter, r *http.Request) {
	tableID := mux.Vars(r)["tableID"]

	var (
		dishes []*dish.DishOrder
		err    error
	)
	switch dish.PaymentStatus(r.URL.Query().Get("status")) {
	case "":
		dishes, err = s.engine.ListDishes(r.Context(), tableID)
	case dish.StatusNotPaid:
		dishes, err = s.engine.ListUnpaid(r.Context(), tableID)
	case dish.StatusPaid:
		dishes, err = s.engine.ListPaid(r.Context(), tableID)
	default:
		err = types.Invalid("status", "must be %q or %q", dish.StatusNotPaid, dish.StatusPaid)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dishes)
}

func (s *Server) handleAddDish(w http.ResponseWriter, r *http.Request) {
	var req dishRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tableOrderID, err := parseOptionalID(req.TableOrderID, "table_order_id", id.ParseTableOrderID)
	if err != nil {
		writeError(w, err)
		return
	}

	sess := s.session(r, req.Currency, req.BranchID)
	guest := req.GuestName
	if guest == "" {
		guest = sess.ParticipantKey
	}

	d := &dish.DishOrder{
		TableID:      sess.TableID,
		RestaurantID: sess.RestaurantID,
		BranchID:     sess.BranchID,
		TableOrderID: tableOrderID,
		GuestName:    guest,
		Item:         req.Item,
		Quantity:     req.Quantity,
		TotalPrice:   types.Money{Amount: req.Price, Currency: sess.Currency},
		Metadata:     req.Metadata,
	}
	if err := s.engine.AddDish(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.Summarize(r.Context(), s.session(r, r.URL.Query().Get("currency"), ""))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ──────────────────────────────────────────────────
// Pricing
// ──────────────────────────────────────────────────

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, err)
		return
	}

	amount, err := s.engine.Resolve(r.Context(), s.session(r, req.Currency, req.BranchID), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"strategy": params.Strategy,
		"amount":   amount,
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, err)
		return
	}

	q, err := s.engine.Quote(r.Context(), s.session(r, req.Currency, req.BranchID), params, req.tip(), req.CardBrand)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleCommission(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	base, err := queryInt(q.Get("base"), "base")
	if err != nil {
		writeError(w, err)
		return
	}
	if base <= 0 {
		writeError(w, types.Invalid("base", "must be greater than zero"))
		return
	}
	tip, err := queryInt(q.Get("tip"), "tip")
	if err != nil {
		writeError(w, err)
		return
	}
	currency := strings.ToLower(q.Get("currency"))
	if currency == "" {
		currency = tablebill.DefaultCurrency
	}

	calc := s.engine.Calculator()
	writeJSON(w, http.StatusOK, map[string]any{
		"breakdown": calc.Compute(types.Money{Amount: base, Currency: currency}, types.Money{Amount: tip, Currency: currency}),
		"tiers":     calc.Tiers(),
	})
}

func (s *Server) handleInstallments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	total, err := queryInt(q.Get("total"), "total")
	if err != nil {
		writeError(w, err)
		return
	}
	currency := strings.ToLower(q.Get("currency"))
	if currency == "" {
		currency = tablebill.DefaultCurrency
	}

	brand := q.Get("brand")
	opts := s.engine.Calculator().InstallmentOptions(types.Money{Amount: total, Currency: currency}, brand)
	if opts == nil {
		opts = []commission.Installment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"premium": s.engine.Calculator().IsPremium(brand),
		"options": opts,
	})
}

func queryInt(raw, field string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, types.Invalid(field, "must be an integer amount in minor units")
	}
	if v < 0 {
		return 0, types.Invalid(field, "must not be negative")
	}
	return v, nil
}

// ──────────────────────────────────────────────────
// Splits
// ──────────────────────────────────────────────────

func (s *Server) handleListSplits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := split.ListOpts{
		Mode:     split.Mode(q.Get("mode")),
		OpenOnly: q.Get("open") == "true",
	}
	entries, err := s.engine.ListSplits(r.Context(), mux.Vars(r)["tableID"], opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStartSplit(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.engine.StartSplit(r.Context(), s.session(r, req.Currency, ""), req.Mode, req.Participants)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entries)
}

func (s *Server) handleCancelSplit(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.CancelSplit(r.Context(), mux.Vars(r)["tableID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cancelled": n})
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, err)
		return
	}
	intentID, err := parseOptionalID(req.IntentID, "intent_id", id.ParseIntentID)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.engine.Checkout(r.Context(), payment.CheckoutRequest{
		Session:          s.session(r, req.Currency, req.BranchID),
		Params:           params,
		Tip:              req.tip(),
		PaymentMethodRef: req.PaymentMethodRef,
		CardBrand:        req.CardBrand,
		Months:           req.Months,
		IntentID:         intentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Status == payment.CheckoutRequiresVerification {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (s *Server) handleConfirmIntent(w http.ResponseWriter, r *http.Request) {
	intentID, err := id.ParseIntentID(mux.Vars(r)["intentID"])
	if err != nil {
		writeError(w, types.Invalid("intent_id", "%v", err))
		return
	}
	var req confirmRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.engine.ConfirmIntent(r.Context(), intentID, req.GatewayRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleRecordPayment records a charge the caller already captured. Only
// authenticated callers may do this.
func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	if ident, _ := IdentityFrom(r.Context()); !ident.Authenticated {
		writeError(w, fmt.Errorf("%w: recording a payment requires a bearer token", tablebill.ErrUnauthorized))
		return
	}

	var req paymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, err)
		return
	}
	tableOrderID, err := parseOptionalID(req.TableOrderID, "table_order_id", id.ParseTableOrderID)
	if err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.engine.RecordPayment(r.Context(), payment.Request{
		Session:          s.session(r, req.Currency, req.BranchID),
		Params:           params,
		Amount:           types.Money{Amount: req.BaseAmount, Currency: strings.ToLower(req.Currency)},
		Tip:              req.tip(),
		PaymentMethodRef: req.PaymentMethodRef,
		GatewayRef:       req.GatewayRef,
		TableOrderID:     tableOrderID,
		Months:           req.Months,
		CardBrand:        req.CardBrand,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	txs, err := s.engine.ListTransactions(r.Context(), mux.Vars(r)["tableID"], payment.ListOpts{
		Limit:  int(limit),
		Offset: int(offset),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// ──────────────────────────────────────────────────
// Realtime and health
// ──────────────────────────────────────────────────

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	users := s.hub.Presence(mux.Vars(r)["tableID"])
	if users == nil {
		users = []realtime.ActiveUser{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFrom(r.Context())
	s.ws.Serve(w, r, mux.Vars(r)["tableID"], ident.ParticipantKey, ident.DisplayName)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store().Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
