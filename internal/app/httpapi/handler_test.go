package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	app "github.com/minted-network/escrow_layer/internal/app"
	"github.com/minted-network/escrow_layer/pkg/testutil"
)

const (
	testProtocolAddr = "escrow1controller"
	testCreator      = "wallet-creator"
	testAssetDenom   = "factory/escrow1controller/moon"
)

func newTestHandler(t *testing.T) (http.Handler, *testutil.MockLedger) {
	t.Helper()
	ledger := testutil.NewMockLedger()
	application, err := app.New(app.Stores{}, ledger, testProtocolAddr, nil)
	require.NoError(t, err)
	return NewHandler(application, nil), ledger
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func bootstrap(t *testing.T, handler http.Handler, ledger *testutil.MockLedger) {
	t.Helper()
	resp := doJSON(t, handler, http.MethodPost, "/escrow/initialize", map[string]any{
		"creator": testCreator,
		"name":    "moon",
		"royalty": map[string]any{"num": 1, "den": 100},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	correlationID, err := ledger.LastCorrelationID()
	require.NoError(t, err)

	resp = doJSON(t, handler, http.MethodPost, "/hooks/asset-created", map[string]any{
		"correlation_id": correlationID,
		"asset_id":       testAssetDenom,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestHandler_FullLifecycle(t *testing.T) {
	handler, ledger := newTestHandler(t)
	bootstrap(t, handler, ledger)

	// The single unit was minted to the creator.
	mints := ledger.CallsTo("Mint")
	require.Len(t, mints, 1)
	require.EqualValues(t, 1, mints[0].MintAmount)
	require.Equal(t, testCreator, mints[0].To)

	// List the unit for sale.
	resp := doJSON(t, handler, http.MethodPost, "/escrow/sell", map[string]any{
		"seller": testCreator,
		"price":  map[string]any{"denom": "uosmo", "amount": 100},
		"funds":  []map[string]any{{"denom": testAssetDenom, "amount": 1}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = doJSON(t, handler, http.MethodGet, "/escrow/listing", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var listing struct {
		Seller string `json:"seller"`
		Price  struct {
			Denom  string `json:"denom"`
			Amount uint64 `json:"amount"`
		} `json:"price"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listing))
	require.Equal(t, testCreator, listing.Seller)
	require.EqualValues(t, 100, listing.Price.Amount)

	// Settle the purchase.
	resp = doJSON(t, handler, http.MethodPost, "/escrow/buy", map[string]any{
		"buyer": "wallet-buyer",
		"funds": []map[string]any{{"denom": "uosmo", "amount": 100}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var result struct {
		Transfers []struct {
			To     string `json:"to"`
			Amount struct {
				Amount uint64 `json:"amount"`
			} `json:"amount"`
		} `json:"transfers"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Len(t, result.Transfers, 2)
	require.EqualValues(t, 99, result.Transfers[0].Amount.Amount)
	require.EqualValues(t, 1, result.Transfers[1].Amount.Amount)

	// The listing is consumed.
	resp = doJSON(t, handler, http.MethodGet, "/escrow/listing", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandler_BuyWithoutListing(t *testing.T) {
	handler, ledger := newTestHandler(t)
	bootstrap(t, handler, ledger)

	resp := doJSON(t, handler, http.MethodPost, "/escrow/buy", map[string]any{
		"buyer": "wallet-buyer",
		"funds": []map[string]any{{"denom": "uosmo", "amount": 100}},
	})
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandler_DoubleInitializeConflicts(t *testing.T) {
	handler, ledger := newTestHandler(t)
	bootstrap(t, handler, ledger)

	resp := doJSON(t, handler, http.MethodPost, "/escrow/initialize", map[string]any{
		"creator": testCreator,
		"name":    "moon",
		"royalty": map[string]any{"num": 1, "den": 100},
	})
	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestHandler_UnknownCorrelationUnprocessable(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := doJSON(t, handler, http.MethodPost, "/hooks/asset-created", map[string]any{
		"correlation_id": "bogus",
		"asset_id":       testAssetDenom,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestHandler_BeforeSendHook(t *testing.T) {
	handler, ledger := newTestHandler(t)
	bootstrap(t, handler, ledger)

	// Movement into the controller's custody is allowed.
	resp := doJSON(t, handler, http.MethodPost, "/hooks/before-send", map[string]any{
		"denom":  testAssetDenom,
		"from":   testCreator,
		"to":     testProtocolAddr,
		"amount": 1,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// Peer-to-peer movement is denied; the ledger aborts the transfer.
	resp = doJSON(t, handler, http.MethodPost, "/hooks/before-send", map[string]any{
		"denom":  testAssetDenom,
		"from":   testCreator,
		"to":     "wallet-other",
		"amount": 1,
	})
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestHandler_SellPaymentErrors(t *testing.T) {
	handler, ledger := newTestHandler(t)
	bootstrap(t, handler, ledger)

	resp := doJSON(t, handler, http.MethodPost, "/escrow/sell", map[string]any{
		"seller": testCreator,
		"price":  map[string]any{"denom": "uosmo", "amount": 100},
		"funds": []map[string]any{
			{"denom": testAssetDenom, "amount": 1},
			{"denom": "uosmo", "amount": 5},
		},
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := doJSON(t, handler, http.MethodGet, "/escrow/sell", nil)
	require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestHandler_PayoutQueueLifecycle(t *testing.T) {
	handler, ledger := newTestHandler(t)
	bootstrap(t, handler, ledger)

	resp := doJSON(t, handler, http.MethodPost, "/escrow/sell", map[string]any{
		"seller": testCreator,
		"price":  map[string]any{"denom": "uosmo", "amount": 100},
		"funds":  []map[string]any{{"denom": testAssetDenom, "amount": 1}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// The royalty leg bounces; the settlement still commits and the leg is
	// queued for redelivery.
	ledger.FailOn("Send", 2, fmt.Errorf("bank unavailable"))
	resp = doJSON(t, handler, http.MethodPost, "/escrow/buy", map[string]any{
		"buyer": "wallet-buyer",
		"funds": []map[string]any{{"denom": "uosmo", "amount": 100}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = doJSON(t, handler, http.MethodGet, "/escrow/payouts", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var pending []struct {
		To     string `json:"to"`
		Amount struct {
			Amount uint64 `json:"amount"`
		} `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	require.Equal(t, testCreator, pending[0].To)
	require.EqualValues(t, 1, pending[0].Amount.Amount)

	resp = doJSON(t, handler, http.MethodPost, "/escrow/payouts/retry", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var retried struct {
		Delivered int `json:"delivered"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &retried))
	require.Equal(t, 1, retried.Delivered)

	resp = doJSON(t, handler, http.MethodGet, "/escrow/payouts", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, "[]", resp.Body.String())
}

func TestHandler_AuditTrail(t *testing.T) {
	handler, ledger := newTestHandler(t)
	bootstrap(t, handler, ledger)

	resp := doJSON(t, handler, http.MethodGet, "/escrow/audit", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var entries []AuditEntry
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, "/escrow/initialize", entries[0].Path)
	require.Equal(t, http.StatusCreated, entries[0].Status)
	require.Equal(t, "/hooks/asset-created", entries[1].Path)

	resp = doJSON(t, handler, http.MethodGet, "/escrow/audit?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	entries = nil
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "/hooks/asset-created", entries[0].Path)

	resp = doJSON(t, handler, http.MethodGet, "/escrow/audit?limit=nope", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandler_Health(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.Code)
}
