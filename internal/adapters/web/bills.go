package web

import (
	"net/http"

	"garments-erp/internal/app"
)

// createBill handles POST /api/sales-bills.
func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	var req app.CreateBillRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	bill, err := h.svc.CreateBill(r.Context(), req, actor(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, bill)
}

// getBill handles GET /api/sales-bills/{id}.
func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	h.respondBill(w, r)(h.svc.GetBill(r.Context(), id))
}

// confirmBill handles POST /api/sales-bills/{id}/confirm.
func (h *Handler) confirmBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	h.respondBill(w, r)(h.svc.ConfirmBill(r.Context(), id, actor(r)))
}

// updateBillStatus handles POST /api/sales-bills/{id}/status.
// Body: { status, reason? }
func (h *Handler) updateBillStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req app.UpdateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondBill(w, r)(h.svc.UpdateBillStatus(r.Context(), id, req, actor(r)))
}

// cancelBill handles POST /api/sales-bills/{id}/cancel.
func (h *Handler) cancelBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req app.CancelBillRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondBill(w, r)(h.svc.CancelBill(r.Context(), id, req, actor(r)))
}

// postBill handles POST /api/sales-bills/{id}/post, which retries posting for
// a confirmed bill whose ledger or stock effects are missing.
func (h *Handler) postBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	h.respondBill(w, r)(h.svc.PostBill(r.Context(), id, actor(r)))
}

// addPayment handles POST /api/sales-bills/{id}/payments.
func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req app.PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondBill(w, r)(h.svc.AddPayment(r.Context(), id, req, actor(r)))
}

func (h *Handler) respondBill(w http.ResponseWriter, r *http.Request) func(*app.BillResult, error) {
	return func(bill *app.BillResult, err error) {
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, bill)
	}
}

// previewBillNumber handles GET /api/bill-books/{id}/next-number. Nothing is consumed.
func (h *Handler) previewBillNumber(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	n, err := h.svc.PreviewBillNumber(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, n)
}

// reserveBillNumber handles POST /api/bill-books/{id}/reserve.
func (h *Handler) reserveBillNumber(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	n, err := h.svc.ReserveBillNumber(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, n)
}
