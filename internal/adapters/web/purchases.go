package web

import (
	"net/http"

	"garments-erp/internal/app"
)

// createPurchase handles POST /api/purchases.
func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req app.CreatePurchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.CreatePurchase(r.Context(), req, actor(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, p)
}

// getPurchase handles GET /api/purchases/{id}.
func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetPurchase(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, p)
}

// postPurchase handles POST /api/purchases/{id}/post.
// Body (optional): { to_stock?, to_ledger? }, both default to true.
func (h *Handler) postPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req app.PostPurchaseRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	p, err := h.svc.PostPurchase(r.Context(), id, req, actor(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, p)
}

// createPurchaseReturn handles POST /api/purchase-returns.
func (h *Handler) createPurchaseReturn(w http.ResponseWriter, r *http.Request) {
	var req app.CreatePurchaseReturnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ret, err := h.svc.CreatePurchaseReturn(r.Context(), req, actor(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, ret)
}

// getPurchaseReturn handles GET /api/purchase-returns/{id}.
func (h *Handler) getPurchaseReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	ret, err := h.svc.GetPurchaseReturn(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, ret)
}

// postPurchaseReturn handles POST /api/purchase-returns/{id}/post.
func (h *Handler) postPurchaseReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	ret, err := h.svc.PostPurchaseReturn(r.Context(), id, actor(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, ret)
}

// supplierOutstanding handles GET /api/suppliers/{id}/outstanding.
func (h *Handler) supplierOutstanding(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	open, err := h.svc.GetSupplierOutstanding(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, open)
}

// paySupplier handles POST /api/supplier-payments.
// Body: { supplier_id, payment_method, payment_amount?, allocations?: [{purchase_id, amount}], ... }
func (h *Handler) paySupplier(w http.ResponseWriter, r *http.Request) {
	var req app.SupplierPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.PaySupplier(r.Context(), req, actor(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, p)
}

// getSupplierPayment handles GET /api/supplier-payments/{id}.
func (h *Handler) getSupplierPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetSupplierPayment(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, p)
}
