package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookkeeper/internal/app"
	"bookkeeper/internal/core"
	"bookkeeper/internal/export"
	"bookkeeper/internal/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// stubApp implements only what each test calls; anything else panics through
// the nil embedded interface and is caught by Recoverer.
type stubApp struct {
	app.ApplicationService
	posted  []core.JournalEntryInput
	postErr error
	invited string
	docType string
}

func (s *stubApp) AuthenticateUser(_ context.Context, username, password string) (*app.UserSession, error) {
	if username != "fatima" || password != "correct horse" {
		return nil, core.ErrUnauthorized
	}
	return &app.UserSession{UserID: 1, Username: "fatima", Role: core.RoleOwner, CompanyID: 1, CompanyCode: "1000"}, nil
}

func (s *stubApp) GetTrialBalance(_ context.Context, code, asOf string) (*core.TrialBalance, error) {
	return core.NewTrialBalance(code, asOf, nil), nil
}

func (s *stubApp) PostJournalEntry(_ context.Context, in core.JournalEntryInput) (*core.JournalEntry, error) {
	if s.postErr != nil {
		return nil, s.postErr
	}
	s.posted = append(s.posted, in)
	return &core.JournalEntry{ID: 9, Memo: in.Memo}, nil
}

func (s *stubApp) CheckBalance(lines []core.EntryLine) (core.BalanceCheck, error) {
	return core.ValidateBalance(lines)
}

func (s *stubApp) GetInvoice(context.Context, string, int) (*core.Invoice, error) {
	return nil, fmt.Errorf("%w: invoice 42", core.ErrNotFound)
}

func (s *stubApp) InviteMember(_ context.Context, _ string, _ int, email string, role core.Role) (*core.Invitation, error) {
	s.invited = email
	return &core.Invitation{ID: 3, Email: email, Role: role, Status: core.InvitationPending}, nil
}

func (s *stubApp) ExportReport(_ context.Context, code string, req app.ExportRequest) (*export.Workbook, error) {
	tb := core.NewTrialBalance(code, "2026-03-31", []core.AccountBalance{
		{Code: "1010", NameEN: "=HYPERLINK()", Type: core.Asset, Debit: decimal.NewFromInt(140), Credit: decimal.NewFromInt(40), Balance: decimal.NewFromInt(100)},
		{Code: "3000", NameEN: "Capital", Type: core.Equity, Credit: decimal.NewFromInt(100), Balance: decimal.NewFromInt(-100)},
	})
	wb := export.NewWorkbook(export.TrialBalance(tb))
	return &wb, nil
}

func (s *stubApp) ListMembers(_ context.Context, code string) ([]core.User, error) {
	return []core.User{{ID: 7, CompanyCode: code, Username: "omar", Email: "omar@example.ae", PasswordHash: "secret", Role: core.RoleAdmin, IsActive: true}}, nil
}

func (s *stubApp) ListDocuments(_ context.Context, _, typeCode string) ([]core.Document, error) {
	s.docType = typeCode
	number := "INV-2026-00001"
	return []core.Document{{ID: 1, TypeCode: core.DocTypeInvoice, Status: core.DocumentStatusPosted, DocumentNumber: &number}}, nil
}

func newTestServer(t *testing.T, svc app.ApplicationService) http.Handler {
	t.Helper()
	return NewHandler(svc, Options{JWTSecret: testSecret, TokenTTL: time.Hour, MaxBodyBytes: 4 << 10, Log: logging.Discard()})
}

func tokenFor(t *testing.T, code string, role core.Role) string {
	t.Helper()
	h := &Handler{jwtSecret: testSecret, tokenTTL: time.Hour}
	resp, err := h.issueToken(&app.UserSession{UserID: 7, Username: "omar", Role: role, CompanyID: 1, CompanyCode: code})
	require.NoError(t, err)
	return resp.Token
}

func do(t *testing.T, srv http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubApp{})
	rec := do(t, srv, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoedWhenSafe(t *testing.T) {
	srv := newTestServer(t, &stubApp{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	req.Header.Set("X-Request-ID", "<script>")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.NotEqual(t, "<script>", rec.Header().Get("X-Request-ID"))
}

func TestLoginIssuesBearerToken(t *testing.T) {
	srv := newTestServer(t, &stubApp{})

	rec := do(t, srv, http.MethodPost, "/api/auth/login", "", `{"username":"fatima","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/auth/login", "", `{"username":"fatima","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1000", resp.User.CompanyCode)
	require.NotEmpty(t, resp.Token)

	rec = do(t, srv, http.MethodGet, "/api/companies/1000/reports/trial-balance?as_of=2026-03-31", resp.Token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRequiresFields(t *testing.T) {
	srv := newTestServer(t, &stubApp{})
	rec := do(t, srv, http.MethodPost, "/api/auth/login", "", `{"username":"fatima"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", e.Code)
	assert.NotEmpty(t, e.Fields)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	srv := newTestServer(t, &stubApp{})

	rec := do(t, srv, http.MethodGet, "/api/companies/1000/reports/trial-balance", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "UNAUTHORIZED", e.Code)
	assert.NotEmpty(t, e.RequestID)

	rec = do(t, srv, http.MethodGet, "/api/companies/1000/reports/trial-balance", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := &Handler{jwtSecret: "another-secret", tokenTTL: time.Hour}
	forged, err := other.issueToken(&app.UserSession{UserID: 1, Role: core.RoleOwner, CompanyCode: "1000"})
	require.NoError(t, err)
	rec = do(t, srv, http.MethodGet, "/api/companies/1000/reports/trial-balance", forged.Token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	srv := newTestServer(t, &stubApp{})
	h := &Handler{jwtSecret: testSecret, tokenTTL: -time.Minute}
	resp, err := h.issueToken(&app.UserSession{UserID: 1, Role: core.RoleOwner, CompanyCode: "1000"})
	require.NoError(t, err)

	rec := do(t, srv, http.MethodGet, "/api/companies/1000/reports/trial-balance", resp.Token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCompanyScoping(t *testing.T) {
	srv := newTestServer(t, &stubApp{})
	token := tokenFor(t, "1000", core.RoleOwner)

	rec := do(t, srv, http.MethodGet, "/api/companies/2000/reports/trial-balance", token, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Code)
}

const balancedEntry = `{
	"memo": "office rent",
	"posting_date": "2026-02-01",
	"lines": [
		{"account_code": "5100", "debit": "5,000.00"},
		{"account_code": "1010", "credit": "5000"},
		{"account_code": "", "debit": "1"}
	]
}`

func TestPostJournalEntryNeedsAccountant(t *testing.T) {
	stub := &stubApp{}
	srv := newTestServer(t, stub)

	rec := do(t, srv, http.MethodPost, "/api/companies/1000/journal-entries", tokenFor(t, "1000", core.RoleViewer), balancedEntry)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, stub.posted)

	rec = do(t, srv, http.MethodPost, "/api/companies/1000/journal-entries", tokenFor(t, "1000", core.RoleAccountant), balancedEntry)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, stub.posted, 1)

	in := stub.posted[0]
	assert.Equal(t, "1000", in.CompanyCode)
	assert.Equal(t, "manual", in.SourceType)
	require.Len(t, in.Lines, 2, "rows without an account are dropped")
	assert.Equal(t, "5000", in.Lines[0].Debit.String())
}

func TestPostJournalEntryErrors(t *testing.T) {
	token := tokenFor(t, "1000", core.RoleAccountant)

	srv := newTestServer(t, &stubApp{postErr: fmt.Errorf("%w: debits 100.00 credits 90.00", core.ErrUnbalanced)})
	rec := do(t, srv, http.MethodPost, "/api/companies/1000/journal-entries", token, balancedEntry)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "UNBALANCED", decodeError(t, rec).Code)

	srv = newTestServer(t, &stubApp{postErr: fmt.Errorf("%w: duplicate entry", core.ErrConflict)})
	rec = do(t, srv, http.MethodPost, "/api/companies/1000/journal-entries", token, balancedEntry)
	assert.Equal(t, http.StatusConflict, rec.Code)

	srv = newTestServer(t, &stubApp{postErr: fmt.Errorf("failed to insert entry: connection reset")})
	rec = do(t, srv, http.MethodPost, "/api/companies/1000/journal-entries", token, balancedEntry)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset", "internal details stay in the log")

	rec = do(t, srv, http.MethodPost, "/api/companies/1000/journal-entries", token,
		`{"memo":"x","posting_date":"2026-02-01","lines":[{"account_code":"5100","debit":"abc"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/companies/1000/journal-entries", token, `{"memo":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckJournalEntry(t *testing.T) {
	srv := newTestServer(t, &stubApp{})
	token := tokenFor(t, "1000", core.RoleViewer)

	check := func(body string) checkResponse {
		t.Helper()
		rec := do(t, srv, http.MethodPost, "/api/companies/1000/journal-entries/check", token, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp checkResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := check(`{"lines":[{"account_code":"5100","debit":"100.004"},{"account_code":"1010","credit":"100"}]}`)
	assert.True(t, resp.Valid)
	assert.True(t, resp.Balanced)
	assert.Equal(t, 2, resp.LineCount)
	assert.Empty(t, resp.Error)

	resp = check(`{"lines":[{"account_code":"5100","debit":"100.01"},{"account_code":"1010","credit":"100"}]}`)
	assert.False(t, resp.Valid)
	assert.False(t, resp.Balanced)
	assert.Contains(t, resp.Error, "not balanced")

	t.Run("fewer than two lines is rejected", func(t *testing.T) {
		for _, body := range []string{
			`{"lines":[]}`,
			`{"lines":[{"account_code":"5100","debit":"0"}]}`,
			`{"lines":[{"account_code":"5100","debit":"50"},{"account_code":"","credit":"50"}]}`,
		} {
			resp := check(body)
			assert.False(t, resp.Valid, body)
			assert.Contains(t, resp.Error, "at least 2 lines", body)
		}
	})
}

func TestNotFoundAndBadID(t *testing.T) {
	srv := newTestServer(t, &stubApp{})
	token := tokenFor(t, "1000", core.RoleViewer)

	rec := do(t, srv, http.MethodGet, "/api/companies/1000/invoices/42", token, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "invoice 42")

	rec = do(t, srv, http.MethodGet, "/api/companies/1000/invoices/abc", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInviteValidation(t *testing.T) {
	stub := &stubApp{}
	srv := newTestServer(t, stub)
	token := tokenFor(t, "1000", core.RoleAdmin)

	rec := do(t, srv, http.MethodPost, "/api/companies/1000/invitations", token, `{"email":"not-an-email","role":"auditor"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", e.Code)
	assert.Len(t, e.Fields, 2)
	assert.Empty(t, stub.invited)

	rec = do(t, srv, http.MethodPost, "/api/companies/1000/invitations", token, `{"email":"sara@example.ae","role":"accountant"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "sara@example.ae", stub.invited)

	rec = do(t, srv, http.MethodPost, "/api/companies/1000/invitations", tokenFor(t, "1000", core.RoleAccountant), `{"email":"a@b.ae","role":"viewer"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(t, &stubApp{})
	token := tokenFor(t, "1000", core.RoleViewer)

	rec := do(t, srv, http.MethodGet, "/api/companies/1000/reports/export?report=trial-balance", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "1000-trial-balance.csv")
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "Code,Account,Account (AR),Type,Debit,Credit\n"))
	assert.Contains(t, body, "'=HYPERLINK()", "formula cells are neutralised")
	assert.Contains(t, body, "1010,'=HYPERLINK(),,asset,100.00,0.00\n")
	assert.True(t, strings.HasSuffix(body, ",Total,,,100.00,100.00\n"), body)

	rec = do(t, srv, http.MethodGet, "/api/companies/1000/reports/export?report=all", token, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/companies/1000/reports/export?report=all&format=json", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var wb export.Workbook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wb))
	assert.Len(t, wb.Sheets, 1)
}

func TestRecovererTurnsPanicsInto500(t *testing.T) {
	srv := newTestServer(t, &stubApp{})
	token := tokenFor(t, "1000", core.RoleViewer)

	// ListAccounts is not stubbed, so the nil embedded interface panics.
	rec := do(t, srv, http.MethodGet, "/api/companies/1000/accounts", token, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}

func TestRequestBodyLimit(t *testing.T) {
	srv := newTestServer(t, &stubApp{})
	big := `{"username":"` + strings.Repeat("x", 8<<10) + `","password":"p"}`
	rec := do(t, srv, http.MethodPost, "/api/auth/login", "", big)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "REQUEST_TOO_LARGE", decodeError(t, rec).Code)
}

func TestCORS(t *testing.T) {
	srv := NewHandler(&stubApp{}, Options{JWTSecret: testSecret, AllowedOrigins: "https://books.example.ae, https://admin.example.ae", Log: logging.Discard()})

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://admin.example.ae")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://admin.example.ae", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServiceErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrForbidden, http.StatusForbidden},
		{core.ErrConflict, http.StatusConflict},
		{core.ErrInvalid, http.StatusUnprocessableEntity},
		{core.ErrTooFewLines, http.StatusUnprocessableEntity},
		{core.ErrUnbalanced, http.StatusUnprocessableEntity},
		{core.ErrUnauthorized, http.StatusUnauthorized},
		{app.ErrScannerDisabled, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: dial tcp: timeout", app.ErrScannerUnavailable), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		status, _ := serviceErrorStatus(fmt.Errorf("wrapped: %w", c.err))
		assert.Equal(t, c.status, status, c.err.Error())
	}
}

func TestListDocumentsForViewer(t *testing.T) {
	stub := &stubApp{}
	srv := newTestServer(t, stub)
	rec := do(t, srv, http.MethodGet, "/api/companies/1000/documents?type=INV", tokenFor(t, "1000", core.RoleViewer), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "INV", stub.docType)

	var docs []core.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "INV-2026-00001", *docs[0].DocumentNumber)
}

func TestListMembersRequiresAdmin(t *testing.T) {
	srv := newTestServer(t, &stubApp{})

	for _, role := range []core.Role{core.RoleViewer, core.RoleAccountant} {
		rec := do(t, srv, http.MethodGet, "/api/companies/1000/members", tokenFor(t, "1000", role), "")
		assert.Equal(t, http.StatusForbidden, rec.Code, string(role))
	}

	rec := do(t, srv, http.MethodGet, "/api/companies/1000/members", tokenFor(t, "1000", core.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "omar@example.ae")
	assert.NotContains(t, rec.Body.String(), "secret")
}
