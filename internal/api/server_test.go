package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodesale/internal/issuance"
	"nodesale/internal/oracle"
	"nodesale/internal/payment"
	"nodesale/internal/sale"
	"nodesale/internal/storage"
)

const (
	rootKey    = "root-key"
	signingKey = "signing-key"
	backKey    = "back-key"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	ledger  *payment.Ledger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := storage.NewSqliteStorage(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Unix(1_700_000_000, 0)
	prices := oracle.NewStaticSource()
	prices.Set(oracle.Quote{FeedID: "feed01", Price: 2, Exponent: -1, PublishedAt: now})

	reg := prometheus.NewRegistry()
	ledger := payment.NewLedger(store, nil)
	registry := issuance.NewRegistry(store, nil)
	engine := sale.New(store, oracle.NewAdapter(prices), ledger, registry,
		sale.WithClock(func() time.Time { return now }),
		sale.WithNativeDecimals(0),
		sale.WithRegisterer(reg),
	)
	srv := New(Config{Engine: engine, Registry: registry, Ledger: ledger, Gatherer: reg})
	return &testServer{t: t, handler: srv.Handler(), ledger: ledger}
}

func (ts *testServer) do(method, path, key, body string) *httptest.ResponseRecorder {
	ts.t.Helper()
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(AuthorityHeader, key)
	}
	ts.handler.ServeHTTP(recorder, req)
	return recorder
}

func (ts *testServer) setup() {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/v1/config", "", `{"main_signing_authority":"`+rootKey+`"}`)
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/api/v1/phases", rootKey, `{
		"name":"genesis","total_tiers":1,"signing_authority":"`+signingKey+`",
		"back_authority":"`+backKey+`","price_feed_id":"0xfeed01","payment_receiver":"treasury",
		"display_name":"Genesis Node","symbol":"GN"}`)
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/api/v1/phases/genesis/tiers", signingKey,
		`{"tier_id":1,"price":100,"quantity":4,"whitelist_quantity":1,"mint_limit":4}`)
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NoError(ts.t, ts.ledger.Deposit(context.Background(), "alice", payment.NativeAsset, 10_000))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestOrderLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()

	rec := ts.do(http.MethodPost, "/api/v1/phases/genesis/buy", signingKey, `{
		"tier_id":1,"user":"alice","order_id":1,"quantity":2,"price_feed_id":"feed01",
		"receivers":{"payment_receiver":"treasury"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeBody[storage.Order](t, rec)
	assert.Equal(t, []uint64{1, 2}, order.TokenIDs)
	assert.Equal(t, uint64(1_000), order.PaymentNative)

	rec = ts.do(http.MethodPost, "/api/v1/phases/genesis/fill", signingKey,
		`{"user":"alice","order_id":1,"item_id":2,"collection":"genesis/tier-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[sale.FillResult](t, rec)
	assert.Equal(t, "Genesis Node #2", result.Asset.Name)
	assert.Equal(t, "alice", result.Asset.Owner)

	rec = ts.do(http.MethodGet, "/api/v1/phases/genesis/users/alice/orders/1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	order = decodeBody[storage.Order](t, rec)
	assert.Equal(t, []bool{false, true}, order.IsTokenIDsMinted)

	rec = ts.do(http.MethodGet, "/api/v1/phases/genesis/tiers/1/items", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody[[]issuance.Asset](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, uint64(2), items[0].ItemID)

	rec = ts.do(http.MethodGet, "/api/v1/accounts/treasury/balances/native", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1_000, balance["amount"])

	rec = ts.do(http.MethodGet, "/api/v1/phases/genesis/events?limit=50", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sale.order_created"`)
	assert.Contains(t, rec.Body.String(), `"sale.order_filled"`)

	rec = ts.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nodesale_operation_duration_seconds_count{operation="buy"} 1`)
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()

	buy := func(key string, orderID, quantity int) *httptest.ResponseRecorder {
		return ts.do(http.MethodPost, "/api/v1/phases/genesis/buy", key, fmt.Sprintf(`{
			"tier_id":1,"user":"alice","order_id":%d,"quantity":%d,"price_feed_id":"feed01",
			"receivers":{"payment_receiver":"treasury"}}`, orderID, quantity))
	}

	cases := []struct {
		name   string
		rec    *httptest.ResponseRecorder
		status int
		code   string
	}{
		{"wrong authority", buy(backKey, 1, 1), http.StatusForbidden, "InvalidSigningAuthority"},
		{"over capacity", buy(signingKey, 1, 5), http.StatusConflict, "TierOutOfRange"},
		{"order out of sequence", buy(signingKey, 3, 1), http.StatusConflict, "InvalidOrderId"},
		{"missing phase", ts.do(http.MethodGet, "/api/v1/phases/nope", "", ""), http.StatusNotFound, "PhaseNotFound"},
		{"bad tier param", ts.do(http.MethodGet, "/api/v1/phases/genesis/tiers/x", "", ""), http.StatusBadRequest, "InvalidArgument"},
		{"malformed body", ts.do(http.MethodPost, "/api/v1/phases/genesis/buy", signingKey, "{"), http.StatusBadRequest, "InvalidArgument"},
		{"already initialized", ts.do(http.MethodPost, "/api/v1/config", "", `{"main_signing_authority":"x"}`), http.StatusBadRequest, "AlreadyInitialized"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, tc.rec.Code, tc.rec.Body.String())
			body := decodeBody[errorResponse](t, tc.rec)
			assert.Equal(t, tc.code, string(body.Code))
		})
	}
}

func TestPaymentFailureStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()

	rec := ts.do(http.MethodPost, "/api/v1/phases/genesis/buy", signingKey, `{
		"tier_id":1,"user":"bob","order_id":1,"quantity":1,"price_feed_id":"feed01",
		"receivers":{"payment_receiver":"treasury"}}`)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "InsufficientFunds", string(decodeBody[errorResponse](t, rec).Code))

	rec = ts.do(http.MethodGet, "/api/v1/phases/genesis/tiers/1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decodeBody[storage.Tier](t, rec).Totals.TotalMint)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()

	rec := ts.do(http.MethodPut, "/api/v1/phases/genesis/tiers/1", signingKey,
		`{"price":120,"mint_limit":2,"whitelist_quantity":1,"buy_enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tier := decodeBody[storage.Tier](t, rec)
	assert.Equal(t, uint64(120), tier.Price)
	assert.Equal(t, uint64(4), tier.Quantity)
	assert.False(t, tier.AirdropEnabled)

	rec = ts.do(http.MethodPost, "/api/v1/phases/genesis/tokens", signingKey,
		`{"mint":"usdc","decimals":6,"price_feed_id":"feed02"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodPut, "/api/v1/phases/genesis/tokens/usdc", signingKey, `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeBody[storage.PaymentToken](t, rec).Enabled)

	rec = ts.do(http.MethodPost, "/api/v1/phases/genesis/keys", rootKey, `{"back_authority":"back-key-2"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodPost, "/api/v1/phases/genesis/receipts", backKey,
		`{"tier_id":1,"user":"dave","order_id":1,"quantity":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(http.MethodPost, "/api/v1/phases/genesis/receipts", "back-key-2",
		`{"tier_id":1,"user":"dave","order_id":1,"quantity":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/api/v1/config/rotate", rootKey, `{"next":"root-key-2"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
