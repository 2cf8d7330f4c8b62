package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	app "github.com/agoramesh/ledger/internal/app"
	"github.com/agoramesh/ledger/internal/app/domain/account"
	domledger "github.com/agoramesh/ledger/internal/app/domain/ledger"
	domredemption "github.com/agoramesh/ledger/internal/app/domain/redemption"
	transfersvc "github.com/agoramesh/ledger/internal/app/services/transfer"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	r.HandleFunc("/accounts", h.createAccount).Methods(http.MethodPost)
	r.HandleFunc("/principals/{principal}/balance", h.balance).Methods(http.MethodGet)
	r.HandleFunc("/principals/{principal}/history", h.history).Methods(http.MethodGet)
	r.HandleFunc("/principals/{principal}/deposits", h.deposit).Methods(http.MethodPost)
	r.HandleFunc("/principals/{principal}/credits", h.creditBalance).Methods(http.MethodGet)
	r.HandleFunc("/principals/{principal}/payout-profile", h.upsertProfile).Methods(http.MethodPut)

	r.HandleFunc("/transfers", h.transfer).Methods(http.MethodPost)
	r.HandleFunc("/purchases", h.purchase).Methods(http.MethodPost)

	r.HandleFunc("/redemptions", h.createRedemption).Methods(http.MethodPost)
	r.HandleFunc("/redemptions", h.listRedemptions).Methods(http.MethodGet)
	r.HandleFunc("/redemptions/methods", h.redemptionMethods).Methods(http.MethodGet)
	r.HandleFunc("/redemptions/{id}", h.getRedemption).Methods(http.MethodGet)
	r.HandleFunc("/redemptions/{id}/cancel", h.cancelRedemption).Methods(http.MethodPost)

	r.HandleFunc("/admin/redemptions/{id}/approve", h.approveRedemption).Methods(http.MethodPost)
	r.HandleFunc("/admin/redemptions/{id}/reject", h.rejectRedemption).Methods(http.MethodPost)
	r.HandleFunc("/admin/redemptions/{id}/complete", h.completeRedemption).Methods(http.MethodPost)
	r.HandleFunc("/admin/payouts/run", h.runPayoutSweep).Methods(http.MethodPost)
	r.HandleFunc("/admin/payouts/process-pending", h.processPending).Methods(http.MethodPost)

	r.HandleFunc("/ledger/verify", h.verifyLedger).Methods(http.MethodGet)

	return r
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- accounts ---------------------------------------------------------------

func (h *handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PrincipalID string `json:"principal_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.PrincipalID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("principal_id is required"))
		return
	}

	acct, err := h.app.Accounts.CreateAccount(r.Context(), payload.PrincipalID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *handler) balance(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]
	summary, err := h.app.Accounts.GetBalance(r.Context(), principal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 50)

	hist, err := h.app.Accounts.GetHistory(r.Context(), principal, page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]
	var payload struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		Memo     string `json:"memo"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	acct, err := h.app.Accounts.GetAccountByPrincipal(r.Context(), principal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	entry, err := h.app.Transfers.Deposit(r.Context(), acct.ID, amount, payload.Currency, payload.Memo)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *handler) creditBalance(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]
	bal, err := h.app.Redemptions.CreditBalance(r.Context(), principal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (h *handler) upsertProfile(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]
	var payload struct {
		Method  string                      `json:"method"`
		Details domredemption.MethodDetails `json:"details"`
		Active  *bool                       `json:"active"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	profile, err := h.app.Redemptions.UpsertProfile(r.Context(), domredemption.Profile{
		PrincipalID: principal,
		Method:      domredemption.PayoutMethod(payload.Method),
		Details:     payload.Details,
		Active:      active,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// --- transfers --------------------------------------------------------------

func (h *handler) transfer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FromAccount    string `json:"from_account"`
		ToAccount      string `json:"to_account"`
		Amount         string `json:"amount"`
		TxType         string `json:"tx_type"`
		IdempotencyKey string `json:"idempotency_key"`
		ReferenceID    string `json:"reference_id"`
		ReferenceType  string `json:"reference_type"`
		Memo           string `json:"memo"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts := transfersvc.Options{
		IdempotencyKey: payload.IdempotencyKey,
		ReferenceID:    payload.ReferenceID,
		ReferenceType:  payload.ReferenceType,
		Memo:           payload.Memo,
	}

	entry, err := h.app.Transfers.Transfer(r.Context(), payload.FromAccount, payload.ToAccount, amount, domledger.TxType(payload.TxType), opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *handler) purchase(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BuyerPrincipal  string `json:"buyer_principal"`
		SellerPrincipal string `json:"seller_principal"`
		Amount          string `json:"amount"`
		TransactionID   string `json:"transaction_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.TransactionID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("transaction_id is required"))
		return
	}

	result, err := h.app.Transfers.DebitForPurchase(r.Context(), payload.BuyerPrincipal, payload.SellerPrincipal, amount, payload.TransactionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// --- redemptions ------------------------------------------------------------

func (h *handler) createRedemption(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PrincipalID string `json:"principal_id"`
		Type        string `json:"type"`
		Amount      string `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := h.app.Redemptions.Create(r.Context(), payload.PrincipalID, domredemption.Type(payload.Type), amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *handler) listRedemptions(w http.ResponseWriter, r *http.Request) {
	principal := strings.TrimSpace(r.URL.Query().Get("principal_id"))
	if principal == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("principal_id is required"))
		return
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 50)

	result, err := h.app.Redemptions.List(r.Context(), principal, page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) redemptionMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Redemptions.Methods())
}

func (h *handler) getRedemption(w http.ResponseWriter, r *http.Request) {
	req, err := h.app.Redemptions.GetRequest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) cancelRedemption(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PrincipalID string `json:"principal_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := h.app.Redemptions.Cancel(r.Context(), mux.Vars(r)["id"], payload.PrincipalID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) approveRedemption(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Notes string `json:"notes"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := h.app.Redemptions.AdminApprove(r.Context(), mux.Vars(r)["id"], payload.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) rejectRedemption(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Reason) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("reason is required"))
		return
	}

	req, err := h.app.Redemptions.AdminReject(r.Context(), mux.Vars(r)["id"], payload.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) completeRedemption(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Success   bool   `json:"success"`
		PayoutRef string `json:"payout_ref"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := h.app.Redemptions.CompletePayout(r.Context(), mux.Vars(r)["id"], payload.Success, payload.PayoutRef)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) runPayoutSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Redemptions.RunMonthlyPayout(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) processPending(w http.ResponseWriter, r *http.Request) {
	processed, err := h.app.Redemptions.ProcessPendingPayouts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

// --- ledger -----------------------------------------------------------------

func (h *handler) verifyLedger(w http.ResponseWriter, r *http.Request) {
	report, err := h.app.Audit.VerifyChain(r.Context(), strings.TrimSpace(r.URL.Query().Get("from")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- helpers ----------------------------------------------------------------

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// writeServiceError maps domain errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, domledger.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, domredemption.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, account.ErrNotFound),
		errors.Is(err, domredemption.ErrNotFound),
		errors.Is(err, transfersvc.ErrSenderNotFound),
		errors.Is(err, transfersvc.ErrReceiverNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domledger.ErrInvalidAmount),
		errors.Is(err, domredemption.ErrInvalidType),
		errors.Is(err, domredemption.ErrBelowMinimum),
		errors.Is(err, domredemption.ErrNotPending),
		errors.Is(err, domredemption.ErrNotActive):
		status = http.StatusBadRequest
	}
	writeError(w, status, err)
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
