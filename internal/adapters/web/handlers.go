package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"garments-erp/internal/app"
	"garments-erp/internal/config"
	ierr "garments-erp/internal/errors"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, server config.ServerConfig, auth config.AuthConfig) http.Handler {
	h := &Handler{
		svc:       svc,
		jwtSecret: auth.JWTSecret,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(server.AllowedOrigins))

	// ── Health (public) ───────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		if auth.Enabled {
			r.Use(h.RequireAuth)
		}
		r.Use(RequestBodyLimit(server.BodyLimitBytes))

		// ── Sales bills ───────────────────────────────────────────────────────
		r.Post("/api/sales-bills", h.createBill)
		r.Get("/api/sales-bills/{id}", h.getBill)
		r.Post("/api/sales-bills/{id}/confirm", h.confirmBill)
		r.Post("/api/sales-bills/{id}/status", h.updateBillStatus)
		r.Post("/api/sales-bills/{id}/cancel", h.cancelBill)
		r.Post("/api/sales-bills/{id}/post", h.postBill)
		r.Post("/api/sales-bills/{id}/payments", h.addPayment)

		// ── Bill books ────────────────────────────────────────────────────────
		r.Get("/api/bill-books/{id}/next-number", h.previewBillNumber)
		r.Post("/api/bill-books/{id}/reserve", h.reserveBillNumber)

		// ── Purchases ─────────────────────────────────────────────────────────
		r.Post("/api/purchases", h.createPurchase)
		r.Get("/api/purchases/{id}", h.getPurchase)
		r.Post("/api/purchases/{id}/post", h.postPurchase)
		r.Post("/api/purchase-returns", h.createPurchaseReturn)
		r.Get("/api/purchase-returns/{id}", h.getPurchaseReturn)
		r.Post("/api/purchase-returns/{id}/post", h.postPurchaseReturn)

		// ── Supplier payments ─────────────────────────────────────────────────
		r.Get("/api/suppliers/{id}/outstanding", h.supplierOutstanding)
		r.Post("/api/supplier-payments", h.paySupplier)
		r.Get("/api/supplier-payments/{id}", h.getSupplierPayment)

		// ── Ledger ────────────────────────────────────────────────────────────
		r.Post("/api/ledger/journals", h.postJournal)
		r.Get("/api/ledger/batches/{id}", h.getBatch)
		r.Post("/api/ledger/batches/{id}/reverse", h.reverseBatch)
		r.Get("/api/ledger/balances", h.trialBalance)
		r.Get("/api/ledger/accounts/{code}/verify", h.verifyAccount)
		r.Get("/api/ledger/accounts/{code}/statement", h.accountStatement)

		// ── Reports ───────────────────────────────────────────────────────────
		r.Get("/api/reports/profit-and-loss", h.profitAndLoss)
		r.Get("/api/reports/balance-sheet", h.balanceSheet)

		// ── Stock ─────────────────────────────────────────────────────────────
		r.Get("/api/stock/{variantID}", h.getStock)
		r.Get("/api/stock/{variantID}/verify", h.verifyStock)
		r.Post("/api/stock/adjustments", h.adjustStock)
	})

	h.router = r
	return r
}

// health reports liveness; a failed database ping returns 503.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}

	if err := h.svc.Health(r.Context()); err != nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, response{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, response{Status: "ok", Database: "ok"})
}

// idParam parses a positive integer URL parameter. On failure it writes a 400
// and returns false.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		writeErr(w, r, ierr.NewErrorf("invalid %s %q", name, raw).
			WithHintf("%s must be a positive integer", name).
			Mark(ierr.ErrInvalidInput))
		return 0, false
	}
	return id, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "request_too_large", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), ierr.KindInvalidInput, http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptionalJSON accepts an empty body as the zero value of v.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return decodeJSON(w, r, v)
}
