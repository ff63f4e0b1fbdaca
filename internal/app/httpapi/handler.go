package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	app "github.com/minted-network/escrow_layer/internal/app"
	"github.com/minted-network/escrow_layer/internal/app/domain/token"
	"github.com/minted-network/escrow_layer/internal/app/metrics"
	"github.com/minted-network/escrow_layer/internal/app/services/escrow"
)

// handler bundles HTTP endpoints for the escrow controller.
type handler struct {
	app   *app.Application
	audit *AuditLog
}

// NewHandler returns a mux exposing the controller API: the state-changing
// entry points, the hooks invoked by the ledger, and the read-only queries.
// Every request is recorded in the audit trail; a nil audit gets an in-memory
// default.
func NewHandler(application *app.Application, audit *AuditLog) http.Handler {
	if audit == nil {
		audit = NewAuditLog(0, nil)
	}
	h := &handler{app: application, audit: audit}
	mux := http.NewServeMux()
	mux.HandleFunc("/escrow/initialize", h.initialize)
	mux.HandleFunc("/escrow/sell", h.sell)
	mux.HandleFunc("/escrow/buy", h.buy)
	mux.HandleFunc("/escrow/state", h.state)
	mux.HandleFunc("/escrow/listing", h.listing)
	mux.HandleFunc("/escrow/payouts", h.payouts)
	mux.HandleFunc("/escrow/payouts/retry", h.retryPayouts)
	mux.HandleFunc("/escrow/audit", h.auditTrail)
	mux.HandleFunc("/hooks/asset-created", h.assetCreated)
	mux.HandleFunc("/hooks/before-send", h.beforeSend)
	mux.HandleFunc("/healthz", h.health)
	return wrapWithAudit(mux, audit)
}

func (h *handler) initialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Creator string     `json:"creator"`
		Name    string     `json:"name"`
		Royalty token.Rate `json:"royalty"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.app.Escrow.Initialize(r.Context(), payload.Creator, payload.Name, payload.Royalty)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) sell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Seller string       `json:"seller"`
		Price  token.Coin   `json:"price"`
		Funds  []token.Coin `json:"funds"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.app.Escrow.Sell(r.Context(), payload.Seller, payload.Price, payload.Funds)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.RecordListing()
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) buy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Buyer string       `json:"buyer"`
		Funds []token.Coin `json:"funds"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.app.Escrow.Buy(r.Context(), payload.Buyer, payload.Funds)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if len(res.Transfers) == 2 {
		metrics.RecordSettlement(res.Transfers[1].Amount.Denom, res.Transfers[1].Amount.Amount)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) state(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	st, err := h.app.Escrow.State(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) listing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	lst, err := h.app.Escrow.ActiveListing(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lst)
}

func (h *handler) payouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pending, err := h.app.Escrow.PendingPayouts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if pending == nil {
		pending = []token.Payout{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// retryPayouts redelivers settlement legs the ledger previously rejected.
func (h *handler) retryPayouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	delivered, err := h.app.Escrow.RetryPayouts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"delivered": delivered})
}

// assetCreated is the issuance service's confirmation callback for the
// asynchronous asset-class creation requested during Initialize.
func (h *handler) assetCreated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		CorrelationID string `json:"correlation_id"`
		AssetID       string `json:"asset_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.app.Escrow.OnAssetClassCreated(r.Context(), payload.CorrelationID, payload.AssetID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// beforeSend is invoked synchronously by the ledger before it commits any
// movement of the tracked asset. A non-200 response aborts the transfer.
func (h *handler) beforeSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Denom  string `json:"denom"`
		From   string `json:"from"`
		To     string `json:"to"`
		Amount uint64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.app.Escrow.AuthorizeTransfer(r.Context(), payload.Denom, payload.From, payload.To, payload.Amount); err != nil {
		if errors.Is(err, escrow.ErrUnauthorized) {
			metrics.RecordBlockedTransfer()
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "allow"})
}

func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "escrow-layer"})
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err)
}

// statusForError maps service error families to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, escrow.ErrAlreadyInitialized):
		return http.StatusConflict
	case errors.Is(err, escrow.ErrValidation), errors.Is(err, escrow.ErrPayment):
		return http.StatusBadRequest
	case errors.Is(err, escrow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrProtocol):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
