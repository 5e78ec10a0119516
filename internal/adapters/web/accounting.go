package web

import (
	"fmt"
	"net/http"
	"strings"

	"bookkeeper/internal/app"
	"bookkeeper/internal/core"
	"bookkeeper/internal/export"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ── Company ───────────────────────────────────────────────────────────────────

// apiGetCompany handles GET /api/companies/{code}.
func (h *Handler) apiGetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCompany(r.Context(), companyCode(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, c)
}

// apiUpdateSettings handles PATCH /api/companies/{code}/settings.
func (h *Handler) apiUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req core.CompanySettings
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.UpdateCompanySettings(r.Context(), companyCode(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, c)
}

// ── Chart of accounts ─────────────────────────────────────────────────────────

// apiListAccounts handles GET /api/companies/{code}/accounts?include_inactive=true.
func (h *Handler) apiListAccounts(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("include_inactive") == "true"
	accounts, err := h.svc.ListAccounts(r.Context(), companyCode(r), all)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, accounts)
}

// apiAccountGroups handles GET /api/companies/{code}/accounts/groups.
func (h *Handler) apiAccountGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.GetAccountGroups(r.Context(), companyCode(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, groups)
}

type createAccountRequest struct {
	Code   string `json:"code" validate:"required|maxLen:20"`
	NameEN string `json:"name_en" validate:"required|maxLen:200"`
	NameAR string `json:"name_ar" validate:"maxLen:200"`
	Type   string `json:"type" validate:"required|in:asset,liability,equity,income,expense"`
}

// apiCreateAccount handles POST /api/companies/{code}/accounts.
func (h *Handler) apiCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	a, err := h.svc.CreateAccount(r.Context(), companyCode(r), core.AccountInput{
		Code:   req.Code,
		NameEN: req.NameEN,
		NameAR: req.NameAR,
		Type:   core.AccountType(req.Type),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, a)
}

// apiUpdateAccount handles PATCH /api/companies/{code}/accounts/{accountCode}.
func (h *Handler) apiUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req core.AccountUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.svc.UpdateAccount(r.Context(), companyCode(r), chi.URLParam(r, "accountCode"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, a)
}

// apiDeactivateAccount handles DELETE /api/companies/{code}/accounts/{accountCode}.
// Accounts with postings are kept for history, so this only deactivates.
func (h *Handler) apiDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeactivateAccount(r.Context(), companyCode(r), chi.URLParam(r, "accountCode")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiAccountStatement handles GET /api/companies/{code}/accounts/{accountCode}/statement.
// When format=csv, streams CSV instead of JSON.
func (h *Handler) apiAccountStatement(w http.ResponseWriter, r *http.Request) {
	accountCode := chi.URLParam(r, "accountCode")
	stmt, err := h.svc.GetAccountStatement(r.Context(),
		companyCode(r),
		accountCode,
		r.URL.Query().Get("from"),
		r.URL.Query().Get("to"),
	)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		writeCSV(w, "statement-"+accountCode, export.AccountStatement(stmt))
		return
	}
	writeJSON(w, stmt)
}

// ── Journal ───────────────────────────────────────────────────────────────────

// journalEntryRequest is the JSON body for manual journal entry posting and validation.
// Amounts are strings so blank cells from an entry form decode cleanly.
type journalEntryRequest struct {
	Memo           string             `json:"memo" validate:"required|maxLen:500"`
	PostingDate    string             `json:"posting_date" validate:"required"`
	DocumentDate   string             `json:"document_date"`
	Reference      string             `json:"reference" validate:"maxLen:100"`
	Currency       string             `json:"currency" validate:"maxLen:3"`
	ExchangeRate   string             `json:"exchange_rate"`
	IdempotencyKey string             `json:"idempotency_key" validate:"maxLen:100"`
	Lines          []journalLineInput `json:"lines"`
}

type journalLineInput struct {
	AccountCode string `json:"account_code"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid %s amount %q", core.ErrInvalid, field, s)
	}
	return d, nil
}

// entryLines converts form lines, skipping rows with no account.
func entryLines(in []journalLineInput) ([]core.EntryLine, error) {
	lines := make([]core.EntryLine, 0, len(in))
	for _, l := range in {
		if strings.TrimSpace(l.AccountCode) == "" {
			continue
		}
		debit, err := parseAmount("debit", l.Debit)
		if err != nil {
			return nil, err
		}
		credit, err := parseAmount("credit", l.Credit)
		if err != nil {
			return nil, err
		}
		lines = append(lines, core.EntryLine{AccountCode: strings.TrimSpace(l.AccountCode), Debit: debit, Credit: credit})
	}
	return lines, nil
}

func (req journalEntryRequest) toInput(code string) (core.JournalEntryInput, error) {
	lines, err := entryLines(req.Lines)
	if err != nil {
		return core.JournalEntryInput{}, err
	}
	rate, err := parseAmount("exchange rate", req.ExchangeRate)
	if err != nil {
		return core.JournalEntryInput{}, err
	}
	return core.JournalEntryInput{
		CompanyCode:    code,
		PostingDate:    req.PostingDate,
		DocumentDate:   req.DocumentDate,
		Memo:           req.Memo,
		Reference:      req.Reference,
		Currency:       strings.ToUpper(req.Currency),
		ExchangeRate:   rate,
		IdempotencyKey: req.IdempotencyKey,
		SourceType:     "manual",
		Lines:          lines,
	}, nil
}

func (h *Handler) decodeJournalEntry(w http.ResponseWriter, r *http.Request) (core.JournalEntryInput, bool) {
	var req journalEntryRequest
	if !h.decodeValid(w, r, &req) {
		return core.JournalEntryInput{}, false
	}
	in, err := req.toInput(companyCode(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return core.JournalEntryInput{}, false
	}
	return in, true
}

// apiPostJournalEntry handles POST /api/companies/{code}/journal-entries.
func (h *Handler) apiPostJournalEntry(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeJournalEntry(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.PostJournalEntry(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, entry)
}

// apiValidateJournalEntry handles POST /api/companies/{code}/journal-entries/validate.
func (h *Handler) apiValidateJournalEntry(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeJournalEntry(w, r)
	if !ok {
		return
	}
	if err := h.svc.ValidateJournalEntry(r.Context(), in); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "valid"})
}

// checkResponse is the result of the offline balance check. Valid is false for
// entries with fewer than two lines even when they sum to zero.
type checkResponse struct {
	core.BalanceCheck
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// apiCheckJournalEntry handles POST /api/companies/{code}/journal-entries/check.
// It only sums the lines; nothing is looked up or written. A rejected entry is
// still a 200 so forms can show the totals.
func (h *Handler) apiCheckJournalEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lines []journalLineInput `json:"lines"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	lines, err := entryLines(req.Lines)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	check, err := h.svc.CheckBalance(lines)
	resp := checkResponse{BalanceCheck: check, Valid: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

// apiReverseJournalEntry handles POST /api/companies/{code}/journal-entries/{id}/reverse.
func (h *Handler) apiReverseJournalEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Memo string `json:"memo"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.ReverseJournalEntry(r.Context(), companyCode(r), id, req.Memo)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, entry)
}

// apiGetJournalEntry handles GET /api/companies/{code}/journal-entries/{id}.
func (h *Handler) apiGetJournalEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.GetJournalEntry(r.Context(), companyCode(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

// apiListJournalEntries handles GET /api/companies/{code}/journal-entries?from=&to=.
func (h *Handler) apiListJournalEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.svc.ListJournalEntries(r.Context(), companyCode(r), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entries)
}

// apiListDocuments handles GET /api/companies/{code}/documents?type=.
func (h *Handler) apiListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context(), companyCode(r), r.URL.Query().Get("type"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, docs)
}

// ── Reports ───────────────────────────────────────────────────────────────────

// apiTrialBalance handles GET /api/companies/{code}/reports/trial-balance?as_of=.
func (h *Handler) apiTrialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.svc.GetTrialBalance(r.Context(), companyCode(r), r.URL.Query().Get("as_of"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, tb)
}

// apiProfitAndLoss handles GET /api/companies/{code}/reports/pl?from=&to=.
func (h *Handler) apiProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.svc.GetProfitAndLoss(r.Context(), companyCode(r), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}

// apiBalanceSheet handles GET /api/companies/{code}/reports/balance-sheet?as_of=.
func (h *Handler) apiBalanceSheet(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.GetBalanceSheet(r.Context(), companyCode(r), r.URL.Query().Get("as_of"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}

// apiVATSummary handles GET /api/companies/{code}/reports/vat?from=&to=.
func (h *Handler) apiVATSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	summary, err := h.svc.GetVATSummary(r.Context(), companyCode(r), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

// apiExportReport handles GET /api/companies/{code}/reports/export?report=&from=&to=&as_of=&format=.
// format=csv (the default) returns one sheet; format=json returns the whole workbook.
func (h *Handler) apiExportReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := app.ExportRequest{
		Report: q.Get("report"),
		From:   q.Get("from"),
		To:     q.Get("to"),
		AsOf:   q.Get("as_of"),
	}
	format := q.Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		writeError(w, r, "format must be csv or json", "INVALID", http.StatusUnprocessableEntity)
		return
	}
	if format == "csv" && req.Report == app.ReportAll {
		writeError(w, r, "csv export carries one report; use format=json for all", "INVALID", http.StatusUnprocessableEntity)
		return
	}

	wb, err := h.svc.ExportReport(r.Context(), companyCode(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if format == "json" {
		writeJSON(w, wb)
		return
	}
	writeCSV(w, companyCode(r)+"-"+req.Report, wb.Sheets[0])
}

// writeCSV streams sheet as a CSV attachment.
func writeCSV(w http.ResponseWriter, filename string, sheet export.Sheet) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.csv"`)
	_ = export.WriteCSV(w, sheet)
}
