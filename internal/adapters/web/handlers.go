package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"bookkeeper/internal/app"
	"bookkeeper/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/gookit/validate"
	"github.com/sirupsen/logrus"
)

// Options configures NewHandler.
type Options struct {
	AllowedOrigins   string
	JWTSecret        string
	TokenTTL         time.Duration
	MaxBodyBytes     int64
	// ReminderLeadDays is used by reminder runs that do not name their own.
	ReminderLeadDays int
	Log              logrus.FieldLogger
}

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	tokenTTL  time.Duration
	leadDays  int
	log       logrus.FieldLogger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, opts Options) http.Handler {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20 // 1 MB
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	h := &Handler{
		svc:       svc,
		jwtSecret: opts.JWTSecret,
		tokenTTL:  opts.TokenTTL,
		leadDays:  opts.ReminderLeadDays,
		log:       opts.Log,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(opts.Log))
	r.Use(Recoverer(opts.Log))
	r.Use(CORS(opts.AllowedOrigins))
	r.Use(RequestBodyLimit(opts.MaxBodyBytes))

	// ── Public ────────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	r.Post("/api/auth/login", h.login)
	r.Post("/api/invitations/accept", h.acceptInvitation)

	// ── Protected ─────────────────────────────────────────────────────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)

		r.Get("/api/auth/me", h.me)

		r.Route("/api/companies/{code}", func(r chi.Router) {
			r.Use(RequireCompany)

			viewer := r.With(RequireRole(core.RoleViewer))
			accountant := r.With(RequireRole(core.RoleAccountant))
			admin := r.With(RequireRole(core.RoleAdmin))

			// Company
			viewer.Get("/", h.apiGetCompany)
			admin.Patch("/settings", h.apiUpdateSettings)

			// Chart of accounts
			viewer.Get("/accounts", h.apiListAccounts)
			viewer.Get("/accounts/groups", h.apiAccountGroups)
			viewer.Get("/accounts/{accountCode}/statement", h.apiAccountStatement)
			admin.Post("/accounts", h.apiCreateAccount)
			admin.Patch("/accounts/{accountCode}", h.apiUpdateAccount)
			admin.Delete("/accounts/{accountCode}", h.apiDeactivateAccount)

			// Journal
			viewer.Get("/journal-entries", h.apiListJournalEntries)
			viewer.Get("/journal-entries/{id}", h.apiGetJournalEntry)
			viewer.Post("/journal-entries/check", h.apiCheckJournalEntry)
			accountant.Post("/journal-entries", h.apiPostJournalEntry)
			accountant.Post("/journal-entries/validate", h.apiValidateJournalEntry)
			accountant.Post("/journal-entries/{id}/reverse", h.apiReverseJournalEntry)
			viewer.Get("/documents", h.apiListDocuments)

			// Reports
			viewer.Get("/reports/trial-balance", h.apiTrialBalance)
			viewer.Get("/reports/pl", h.apiProfitAndLoss)
			viewer.Get("/reports/balance-sheet", h.apiBalanceSheet)
			viewer.Get("/reports/vat", h.apiVATSummary)
			viewer.Get("/reports/export", h.apiExportReport)

			// Invoices
			viewer.Get("/invoices", h.apiListInvoices)
			viewer.Get("/invoices/overdue", h.apiOverdueInvoices)
			viewer.Get("/invoices/{id}", h.apiGetInvoice)
			accountant.Post("/invoices", h.apiCreateInvoice)
			accountant.Put("/invoices/{id}", h.apiUpdateInvoice)
			accountant.Delete("/invoices/{id}", h.apiDeleteInvoice)
			accountant.Post("/invoices/{id}/issue", h.apiIssueInvoice)
			accountant.Post("/invoices/{id}/pay", h.apiPayInvoice)
			accountant.Post("/invoices/{id}/void", h.apiVoidInvoice)

			// Receipts
			viewer.Get("/receipts", h.apiListReceipts)
			viewer.Get("/receipts/{id}", h.apiGetReceipt)
			accountant.Post("/receipts", h.apiCreateReceipt)
			accountant.Post("/receipts/scan", h.apiScanReceipt)
			accountant.Post("/receipts/{id}/post", h.apiPostReceipt)
			accountant.Delete("/receipts/{id}", h.apiDeleteReceipt)

			// Team
			admin.Get("/members", h.apiListMembers)
			admin.Patch("/members/{id}", h.apiChangeMemberRole)
			admin.Delete("/members/{id}", h.apiRemoveMember)
			admin.Get("/invitations", h.apiListInvitations)
			admin.Post("/invitations", h.apiInviteMember)
			admin.Delete("/invitations/{id}", h.apiRevokeInvitation)

			// Referrals & feedback
			viewer.Get("/referral", h.apiReferralCode)
			viewer.Get("/referral/redemptions", h.apiReferralRedemptions)
			admin.Post("/referral/redeem", h.apiRedeemReferral)
			viewer.Post("/feedback", h.apiSubmitFeedback)
			admin.Get("/feedback", h.apiListFeedback)

			// Compliance & reminders
			viewer.Get("/compliance-tasks", h.apiListComplianceTasks)
			accountant.Post("/compliance-tasks", h.apiCreateComplianceTask)
			accountant.Post("/compliance-tasks/generate-vat", h.apiGenerateVATTasks)
			accountant.Post("/compliance-tasks/{id}/complete", h.apiCompleteComplianceTask)
			accountant.Delete("/compliance-tasks/{id}", h.apiDeleteComplianceTask)
			viewer.Get("/reminders", h.apiListReminders)
			viewer.Post("/reminders/{id}/read", h.apiMarkReminderRead)
			accountant.Post("/reminders/run", h.apiRunReminders)

			// Backups
			admin.Get("/backups", h.apiListBackups)
			admin.Post("/backups", h.apiCreateBackup)
			admin.Get("/backups/{id}/download", h.apiDownloadBackup)
			admin.Delete("/backups/{id}", h.apiDeleteBackup)
		})
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// companyCode extracts the {code} URL parameter.
func companyCode(r *http.Request) string {
	return chi.URLParam(r, "code")
}

// pathID parses the {id} URL parameter, writing a 400 when it is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, r, "id must be a positive integer", "BAD_REQUEST", http.StatusBadRequest)
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
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeValid decodes v and runs its validate tags, writing a 422 with the
// failing fields when any rule fails.
func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if !decodeJSON(w, r, v) {
		return false
	}
	if fields := validationErrors(v); len(fields) > 0 {
		writeValidationError(w, r, fields)
		return false
	}
	return true
}

// validationErrors runs gookit/validate on v and returns messages per field.
func validationErrors(v any) map[string][]string {
	vd := validate.Struct(v)
	vd.StopOnError = false
	if vd.Validate() {
		return nil
	}
	fields := make(map[string][]string)
	for field, rules := range vd.Errors.All() {
		for _, msg := range rules {
			fields[field] = append(fields[field], msg)
		}
		sort.Strings(fields[field])
	}
	return fields
}
