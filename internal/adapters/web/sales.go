package web

import (
	"net/http"

	"bookkeeper/internal/core"
)

// ── Invoices ──────────────────────────────────────────────────────────────────

// apiListInvoices handles GET /api/companies/{code}/invoices?status=.
func (h *Handler) apiListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.svc.ListInvoices(r.Context(), companyCode(r), core.InvoiceStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoices)
}

// apiOverdueInvoices handles GET /api/companies/{code}/invoices/overdue?as_of=.
func (h *Handler) apiOverdueInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.svc.ListOverdueInvoices(r.Context(), companyCode(r), r.URL.Query().Get("as_of"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoices)
}

// apiGetInvoice handles GET /api/companies/{code}/invoices/{id}.
func (h *Handler) apiGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.svc.GetInvoice(r.Context(), companyCode(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

// apiCreateInvoice handles POST /api/companies/{code}/invoices.
func (h *Handler) apiCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req core.InvoiceInput
	if !decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.svc.CreateInvoice(r.Context(), companyCode(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, inv)
}

// apiUpdateInvoice handles PUT /api/companies/{code}/invoices/{id}. Drafts only.
func (h *Handler) apiUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req core.InvoiceInput
	if !decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.svc.UpdateInvoice(r.Context(), companyCode(r), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

// apiDeleteInvoice handles DELETE /api/companies/{code}/invoices/{id}. Drafts only.
func (h *Handler) apiDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteInvoice(r.Context(), companyCode(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiIssueInvoice handles POST /api/companies/{code}/invoices/{id}/issue.
func (h *Handler) apiIssueInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.svc.IssueInvoice(r.Context(), companyCode(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

type payInvoiceRequest struct {
	PaidDate string `json:"paid_date"`
}

// apiPayInvoice handles POST /api/companies/{code}/invoices/{id}/pay.
// An empty body pays on the issue date.
func (h *Handler) apiPayInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req payInvoiceRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.svc.MarkInvoicePaid(r.Context(), companyCode(r), id, req.PaidDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

// apiVoidInvoice handles POST /api/companies/{code}/invoices/{id}/void.
func (h *Handler) apiVoidInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.svc.VoidInvoice(r.Context(), companyCode(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

// ── Receipts ──────────────────────────────────────────────────────────────────

// apiListReceipts handles GET /api/companies/{code}/receipts?status=.
func (h *Handler) apiListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := h.svc.ListReceipts(r.Context(), companyCode(r), core.ReceiptStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, receipts)
}

// apiGetReceipt handles GET /api/companies/{code}/receipts/{id}.
func (h *Handler) apiGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rc, err := h.svc.GetReceipt(r.Context(), companyCode(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rc)
}

// apiCreateReceipt handles POST /api/companies/{code}/receipts.
func (h *Handler) apiCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req core.ReceiptInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Source = core.ReceiptManual
	rc, err := h.svc.CreateReceipt(r.Context(), companyCode(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, rc)
}

type scanReceiptRequest struct {
	Text string `json:"text" validate:"required|maxLen:20000"`
}

// apiScanReceipt handles POST /api/companies/{code}/receipts/scan.
func (h *Handler) apiScanReceipt(w http.ResponseWriter, r *http.Request) {
	var req scanReceiptRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	res, err := h.svc.ScanReceipt(r.Context(), companyCode(r), req.Text)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, res)
}

// apiPostReceipt handles POST /api/companies/{code}/receipts/{id}/post.
func (h *Handler) apiPostReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rc, err := h.svc.PostReceipt(r.Context(), companyCode(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rc)
}

// apiDeleteReceipt handles DELETE /api/companies/{code}/receipts/{id}. Drafts only.
func (h *Handler) apiDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteReceipt(r.Context(), companyCode(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
