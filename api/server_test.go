package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tablebill"
	"github.com/xraph/tablebill/api"
	"github.com/xraph/tablebill/gateway"
	"github.com/xraph/tablebill/realtime"
	"github.com/xraph/tablebill/store/memory"
)

const testSecret = "test-secret"

type harness struct {
	t      *testing.T
	engine *tablebill.Engine
	server *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hub := realtime.NewHub(realtime.WithLogger(logger))
	eng := tablebill.New(memory.New(),
		tablebill.WithLogger(logger),
		tablebill.WithGateway(gateway.NewSandbox()),
		tablebill.WithPlugin(realtime.NewBroadcaster(hub, logger)),
	)
	require.NoError(t, eng.Start(context.Background()))

	srv := api.New(eng,
		api.WithJWTSecret(testSecret),
		api.WithHub(hub),
		api.WithLogger(logger),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = eng.Stop()
		_ = hub.Close()
	})
	return &harness{t: t, engine: eng, server: ts}
}

func (h *harness) do(method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.server.URL+path, rd)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(h.t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func guest(name string) map[string]string {
	return map[string]string{"X-Guest-Name": name, "X-Restaurant-ID": "rest_1"}
}

func bearer(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, err := api.IssueToken(testSecret, userID, "rest_1")
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (h *harness) addDish(table, guestName, item string, price int64) {
	h.t.Helper()
	resp, _ := h.do(http.MethodPost, "/tables/"+table+"/dishes", map[string]any{
		"guest_name": guestName,
		"item":       item,
		"price":      price,
	}, guest(guestName))
	require.Equal(h.t, http.StatusCreated, resp.StatusCode)
}

func amountOf(t *testing.T, v any) float64 {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "expected money object, got %T", v)
	return m["amount"].(float64)
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestAddDishAndSummary(t *testing.T) {
	h := newHarness(t)
	h.addDish("t1", "ana", "tacos", 15000)
	h.addDish("t1", "beto", "agua", 5000)

	resp, sum := h.do(http.MethodGet, "/tables/t1/summary", nil, guest("ana"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(20000), amountOf(t, sum["total_amount"]))
	assert.Equal(t, float64(20000), amountOf(t, sum["remaining_amount"]))
	assert.Equal(t, float64(2), sum["unpaid_count"])
}

func TestResolveUserItems(t *testing.T) {
	h := newHarness(t)
	h.addDish("t1", "ana", "tacos", 15000)
	h.addDish("t1", "beto", "agua", 5000)

	resp, body := h.do(http.MethodPost, "/tables/t1/resolve", map[string]any{
		"strategy": "user-items",
	}, guest("ana"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(15000), amountOf(t, body["amount"]))
}

func TestValidationErrorsAreBadRequest(t *testing.T) {
	h := newHarness(t)
	h.addDish("t1", "ana", "tacos", 15000)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		field  string
	}{
		{"zero price", http.MethodPost, "/tables/t1/dishes", map[string]any{"guest_name": "ana", "item": "x", "price": 0}, "total_price"},
		{"unknown strategy", http.MethodPost, "/tables/t1/resolve", map[string]any{"strategy": "half"}, "strategy"},
		{"amount over remaining", http.MethodPost, "/tables/t1/resolve", map[string]any{"strategy": "choose-amount", "amount": 99999}, "amount"},
		{"bad dish id", http.MethodPost, "/tables/t1/resolve", map[string]any{"strategy": "select-items", "dish_ids": []string{"nope"}}, "dish_ids"},
		{"unknown field", http.MethodPost, "/tables/t1/quote", map[string]any{"bogus": true}, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(tt.method, tt.path, tt.body, guest("ana"))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.field, body["field"])
		})
	}
}

func TestCheckoutFullBillSettlesTable(t *testing.T) {
	h := newHarness(t)
	h.addDish("t1", "ana", "tacos", 15000)
	h.addDish("t1", "beto", "agua", 5000)

	resp, body := h.do(http.MethodPost, "/tables/t1/checkout", map[string]any{
		"strategy":           "full-bill",
		"tip":                2000,
		"payment_method_ref": "tok_visa",
	}, guest("ana"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "succeeded", body["status"])

	receipt := body["receipt"].(map[string]any)
	assert.Equal(t, true, receipt["settled"])
	assert.Equal(t, float64(20000), amountOf(t, receipt["base_amount"]))

	resp, sum := h.do(http.MethodGet, "/tables/t1/summary", nil, guest("ana"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), amountOf(t, sum["remaining_amount"]))

	// The transaction record is written after the response.
	var txs []map[string]any
	require.Eventually(t, func() bool {
		req, err := http.NewRequest(http.MethodGet, h.server.URL+"/tables/t1/transactions", nil)
		if err != nil {
			return false
		}
		req.Header.Set("X-Guest-Name", "ana")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		txs = nil
		return json.NewDecoder(resp.Body).Decode(&txs) == nil && len(txs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "full-bill", txs[0]["strategy"])
}

func TestCheckoutVerificationThenConfirm(t *testing.T) {
	h := newHarness(t)
	h.addDish("t1", "ana", "tacos", 15000)

	resp, body := h.do(http.MethodPost, "/tables/t1/checkout", map[string]any{
		"strategy":           "full-bill",
		"payment_method_ref": gateway.SandboxVerify,
	}, guest("ana"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "requires_verification", body["status"])
	assert.NotEmpty(t, body["redirect_url"])

	intentID := body["intent"].(map[string]any)["id"].(string)
	resp, receipt := h.do(http.MethodPost, "/intents/"+intentID+"/confirm", map[string]any{
		"gateway_ref": "ref_1",
	}, guest("ana"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, receipt["settled"])
}

func TestConfirmAfterTableChangedIsConflict(t *testing.T) {
	h := newHarness(t)
	h.addDish("t1", "ana", "tacos", 5000)
	h.addDish("t1", "bob", "agua", 3000)

	resp, body := h.do(http.MethodPost, "/tables/t1/checkout", map[string]any{
		"strategy":           "full-bill",
		"payment_method_ref": gateway.SandboxVerify,
	}, guest("ana"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	intentID := body["intent"].(map[string]any)["id"].(string)

	resp, _ = h.do(http.MethodPost, "/tables/t1/checkout", map[string]any{
		"strategy":           "user-items",
		"payment_method_ref": "tok_visa",
	}, guest("bob"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(http.MethodPost, "/intents/"+intentID+"/confirm", map[string]any{}, guest("ana"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCheckoutDeclinedIsPaymentRequired(t *testing.T) {
	h := newHarness(t)
	h.addDish("t1", "ana", "tacos", 15000)

	resp, _ := h.do(http.MethodPost, "/tables/t1/checkout", map[string]any{
		"strategy":           "full-bill",
		"payment_method_ref": gateway.SandboxDeclined,
	}, guest("ana"))
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(http.MethodPost, "/tables/empty/checkout", map[string]any{
		"strategy":           "full-bill",
		"payment_method_ref": "tok_visa",
	}, guest("ana"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(http.MethodPost, "/intents/pint_01h455vb4pex5vsknk084sn02q/confirm", map[string]any{}, guest("ana"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecordPaymentRequiresToken(t *testing.T) {
	h := newHarness(t)
	h.addDish("t1", "ana", "tacos", 15000)
	body := map[string]any{"strategy": "full-bill", "gateway_ref": "ext_1"}

	resp, _ := h.do(http.MethodPost, "/tables/t1/payments", body, guest("ana"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(http.MethodPost, "/tables/t1/payments", body, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, receipt := h.do(http.MethodPost, "/tables/t1/payments", body, bearer(t, "user_1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, receipt["settled"])
}

func TestSplitLifecycle(t *testing.T) {
	h := newHarness(t)
	h.addDish("t1", "ana", "tacos", 10000)
	h.addDish("t1", "beto", "agua", 10000)

	resp, _ := h.do(http.MethodPost, "/tables/t1/splits", map[string]any{
		"mode":         "equal-shares",
		"participants": []string{"ana", "beto"},
	}, guest("ana"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = h.do(http.MethodPost, "/tables/t1/splits", map[string]any{
		"mode":         "equal-shares",
		"participants": []string{"ana", "beto"},
	}, guest("ana"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := h.do(http.MethodDelete, "/tables/t1/splits", nil, guest("ana"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["cancelled"])
}

func TestCommissionEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(http.MethodGet, "/commission?base=10000&tip=1000", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b := body["breakdown"].(map[string]any)
	assert.Equal(t, float64(10000), amountOf(t, b["base_amount"]))
	assert.NotEmpty(t, body["tiers"])

	resp, _ = h.do(http.MethodGet, "/commission?base=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestPresenceEmptyRoom(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/tables/t1/presence", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	assert.Empty(t, users)
}
