package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"garments-erp/internal/app"
)

// postJournal handles POST /api/ledger/journals.
// Body: { date?, reference?, description, entries: [{account_code, debit, credit}] }
func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	var req app.JournalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	batch, err := h.svc.PostJournal(r.Context(), req, actor(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, batch)
}

// getBatch handles GET /api/ledger/batches/{id}.
func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	batch, err := h.svc.GetBatch(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, batch)
}

// reverseBatch handles POST /api/ledger/batches/{id}/reverse.
// Body: { reason }
func (h *Handler) reverseBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req app.ReverseBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	batch, err := h.svc.ReverseBatch(r.Context(), id, req, actor(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, batch)
}

// trialBalance handles GET /api/ledger/balances.
func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.svc.GetTrialBalance(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, tb)
}

// verifyAccount handles GET /api/ledger/accounts/{code}/verify.
func (h *Handler) verifyAccount(w http.ResponseWriter, r *http.Request) {
	check, err := h.svc.VerifyAccount(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, checkResponse{Check: check, Consistent: check.Consistent()})
}

// accountStatement handles GET /api/ledger/accounts/{code}/statement?from=&to=.
func (h *Handler) accountStatement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st, err := h.svc.GetAccountStatement(r.Context(), chi.URLParam(r, "code"), q.Get("from"), q.Get("to"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, st)
}

// profitAndLoss handles GET /api/reports/profit-and-loss?from=&to=.
func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.svc.GetProfitAndLoss(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, report)
}

// balanceSheet handles GET /api/reports/balance-sheet?as_of=.
func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.GetBalanceSheet(r.Context(), r.URL.Query().Get("as_of"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, report)
}

// getStock handles GET /api/stock/{variantID}.
func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "variantID")
	if !ok {
		return
	}
	stock, err := h.svc.GetStock(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, stock)
}

// verifyStock handles GET /api/stock/{variantID}/verify.
func (h *Handler) verifyStock(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "variantID")
	if !ok {
		return
	}
	check, err := h.svc.VerifyStock(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, checkResponse{Check: check, Consistent: check.Consistent()})
}

// adjustStock handles POST /api/stock/adjustments.
func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockAdjustmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.AdjustStock(r.Context(), req, actor(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, entry)
}

// checkResponse wraps a verification result with its verdict.
type checkResponse struct {
	Check      any  `json:"check"`
	Consistent bool `json:"consistent"`
}
