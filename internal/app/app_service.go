package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookkeeper/internal/ai"
	"bookkeeper/internal/cache"
	"bookkeeper/internal/core"
	"bookkeeper/internal/export"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

var (
	// ErrScannerDisabled is returned by ScanReceipt when no model is configured.
	ErrScannerDisabled = errors.New("receipt scanning is not configured")
	// ErrScannerUnavailable wraps failures reaching the model.
	ErrScannerUnavailable = errors.New("receipt scanner unavailable")
)

// ReceiptScanner reads receipt text into a validated draft.
type ReceiptScanner interface {
	Scan(ctx context.Context, receiptText string, accounts []core.Account) (*ai.ReceiptDraft, error)
}

// Services are the domain services the application layer is built from.
type Services struct {
	Companies  core.CompanyService
	Accounts   core.AccountService
	Ledger     core.LedgerService
	Documents  core.DocumentService
	Reporting  core.ReportingService
	Invoices   core.InvoiceService
	Receipts   core.ReceiptService
	Users      core.UserService
	Team       core.TeamService
	Referrals  core.ReferralService
	Feedback   core.FeedbackService
	Compliance core.ComplianceService
	Reminders  core.ReminderService
	Backups    core.BackupService
}

// NewServices wires every PostgreSQL-backed service onto one pool.
func NewServices(pool *pgxpool.Pool) Services {
	docs := core.NewDocumentService(pool)
	ledger := core.NewLedger(pool, docs)
	rules := core.NewRuleEngine()
	users := core.NewUserService(pool)
	return Services{
		Companies:  core.NewCompanyService(pool),
		Accounts:   core.NewAccountService(pool),
		Ledger:     ledger,
		Documents:  docs,
		Reporting:  core.NewReportingService(pool),
		Invoices:   core.NewInvoiceService(pool, ledger, docs, rules),
		Receipts:   core.NewReceiptService(pool, ledger, docs, rules),
		Users:      users,
		Team:       core.NewTeamService(pool, users),
		Referrals:  core.NewReferralService(pool),
		Feedback:   core.NewFeedbackService(pool),
		Compliance: core.NewComplianceService(pool),
		Reminders:  core.NewReminderService(pool),
		Backups:    core.NewBackupService(pool),
	}
}

type appService struct {
	Services
	cache   *cache.Store
	scanner ReceiptScanner
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewAppService constructs an appService that satisfies ApplicationService.
// store may be nil to disable caching; scanner may be nil to disable scanning.
func NewAppService(svcs Services, store *cache.Store, scanner ReceiptScanner, log logrus.FieldLogger) ApplicationService {
	return &appService{Services: svcs, cache: store, scanner: scanner, log: log, now: time.Now}
}

func (s *appService) today() string {
	return s.now().Format("2006-01-02")
}

func (s *appService) orToday(date string) string {
	if date == "" {
		return s.today()
	}
	return date
}

// invalidate drops every cached report of the company.
func (s *appService) invalidate(companyCode string) {
	if s.cache == nil {
		return
	}
	if n := s.cache.InvalidatePrefix(cache.CompanyPrefix(companyCode)); n > 0 {
		s.log.WithFields(logrus.Fields{"company": companyCode, "entries": n}).Debug("cache invalidated")
	}
}

// mutated invalidates the company when err is nil and passes err through.
func (s *appService) mutated(companyCode string, err error) error {
	if err == nil {
		s.invalidate(companyCode)
	}
	return err
}

// ── Auth ──────────────────────────────────────────────────────────────────────

func (s *appService) AuthenticateUser(ctx context.Context, username, password string) (*UserSession, error) {
	u, err := s.Users.Authenticate(ctx, strings.TrimSpace(username), password)
	if err != nil {
		return nil, err
	}
	return sessionFor(u), nil
}

func (s *appService) GetUser(ctx context.Context, userID int) (*core.User, error) {
	return s.Users.GetByID(ctx, userID)
}

func (s *appService) AcceptInvitation(ctx context.Context, token, username, password string) (*UserSession, error) {
	u, err := s.Team.AcceptInvitation(ctx, token, username, password)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"company": u.CompanyCode, "user": u.Username, "role": u.Role}).Info("invitation accepted")
	return sessionFor(u), nil
}

// ── Companies ─────────────────────────────────────────────────────────────────

func (s *appService) CreateCompany(ctx context.Context, req CreateCompanyRequest) (*core.Company, error) {
	c, err := s.Companies.Create(ctx, req.Company)
	if err != nil {
		return nil, err
	}
	n, err := s.Accounts.SeedDefaultChart(ctx, c.CompanyCode)
	if err != nil {
		return nil, fmt.Errorf("company %s created but chart seeding failed: %w", c.CompanyCode, err)
	}
	if req.OwnerUsername != "" {
		if _, err := s.Users.Create(ctx, c.CompanyCode, req.OwnerUsername, req.OwnerEmail, req.OwnerPassword, core.RoleOwner); err != nil {
			return nil, fmt.Errorf("company %s created but owner could not be added: %w", c.CompanyCode, err)
		}
	}
	s.log.WithFields(logrus.Fields{"company": c.CompanyCode, "accounts": n}).Info("company created")
	return c, nil
}

func (s *appService) GetCompany(ctx context.Context, companyCode string) (*core.Company, error) {
	return s.Companies.Get(ctx, companyCode)
}

func (s *appService) ListCompanies(ctx context.Context) ([]core.Company, error) {
	return s.Companies.List(ctx)
}

func (s *appService) UpdateCompanySettings(ctx context.Context, companyCode string, in core.CompanySettings) (*core.Company, error) {
	c, err := s.Companies.UpdateSettings(ctx, companyCode, in)
	return c, s.mutated(companyCode, err)
}

// ── Chart of accounts ─────────────────────────────────────────────────────────

func (s *appService) ListAccounts(ctx context.Context, companyCode string, includeInactive bool) ([]core.Account, error) {
	return s.Accounts.List(ctx, companyCode, includeInactive)
}

func (s *appService) CreateAccount(ctx context.Context, companyCode string, in core.AccountInput) (*core.Account, error) {
	a, err := s.Accounts.Create(ctx, companyCode, in)
	return a, s.mutated(companyCode, err)
}

func (s *appService) UpdateAccount(ctx context.Context, companyCode, accountCode string, in core.AccountUpdate) (*core.Account, error) {
	a, err := s.Accounts.Update(ctx, companyCode, accountCode, in)
	return a, s.mutated(companyCode, err)
}

func (s *appService) DeactivateAccount(ctx context.Context, companyCode, accountCode string) error {
	return s.mutated(companyCode, s.Accounts.Deactivate(ctx, companyCode, accountCode))
}

func (s *appService) GetAccountGroups(ctx context.Context, companyCode string) ([]core.AccountGroup, error) {
	return cache.Fetch(s.cache, cache.Key(companyCode, "groups", s.today()), func() ([]core.AccountGroup, error) {
		balances, err := s.Ledger.GetBalances(ctx, companyCode)
		if err != nil {
			return nil, err
		}
		return core.GroupByType(balances), nil
	})
}

// ── Journal ───────────────────────────────────────────────────────────────────

func (s *appService) PostJournalEntry(ctx context.Context, in core.JournalEntryInput) (*core.JournalEntry, error) {
	e, err := s.Ledger.Post(ctx, in)
	return e, s.mutated(in.CompanyCode, err)
}

func (s *appService) ValidateJournalEntry(ctx context.Context, in core.JournalEntryInput) error {
	return s.Ledger.Validate(ctx, in)
}

func (s *appService) CheckBalance(lines []core.EntryLine) (core.BalanceCheck, error) {
	return core.ValidateBalance(lines)
}

func (s *appService) ReverseJournalEntry(ctx context.Context, companyCode string, entryID int, memo string) (*core.JournalEntry, error) {
	e, err := s.Ledger.Reverse(ctx, companyCode, entryID, memo)
	return e, s.mutated(companyCode, err)
}

func (s *appService) GetJournalEntry(ctx context.Context, companyCode string, entryID int) (*core.JournalEntry, error) {
	return s.Ledger.GetEntry(ctx, companyCode, entryID)
}

func (s *appService) ListJournalEntries(ctx context.Context, companyCode, fromDate, toDate string) ([]core.JournalEntry, error) {
	return s.Ledger.ListEntries(ctx, companyCode, fromDate, toDate)
}

func (s *appService) ListDocuments(ctx context.Context, companyCode, typeCode string) ([]core.Document, error) {
	return s.Documents.ListDocuments(ctx, companyCode, strings.ToUpper(strings.TrimSpace(typeCode)))
}

// ── Reports ───────────────────────────────────────────────────────────────────

func (s *appService) GetTrialBalance(ctx context.Context, companyCode, asOfDate string) (*core.TrialBalance, error) {
	asOf := s.orToday(asOfDate)
	return cache.Fetch(s.cache, cache.Key(companyCode, "tb", asOf), func() (*core.TrialBalance, error) {
		return s.Reporting.GetTrialBalance(ctx, companyCode, asOf)
	})
}

func (s *appService) GetAccountStatement(ctx context.Context, companyCode, accountCode, fromDate, toDate string) (*core.AccountStatement, error) {
	return s.Reporting.GetAccountStatement(ctx, companyCode, accountCode, fromDate, toDate)
}

func (s *appService) GetProfitAndLoss(ctx context.Context, companyCode, fromDate, toDate string) (*core.PLReport, error) {
	to := s.orToday(toDate)
	return cache.Fetch(s.cache, cache.Key(companyCode, "pl", fromDate, to), func() (*core.PLReport, error) {
		return s.Reporting.GetProfitAndLoss(ctx, companyCode, fromDate, to)
	})
}

func (s *appService) GetBalanceSheet(ctx context.Context, companyCode, asOfDate string) (*core.BSReport, error) {
	asOf := s.orToday(asOfDate)
	return cache.Fetch(s.cache, cache.Key(companyCode, "bs", asOf), func() (*core.BSReport, error) {
		return s.Reporting.GetBalanceSheet(ctx, companyCode, asOf)
	})
}

func (s *appService) GetVATSummary(ctx context.Context, companyCode, fromDate, toDate string) (*core.VATSummary, error) {
	to := s.orToday(toDate)
	return cache.Fetch(s.cache, cache.Key(companyCode, "vat", fromDate, to), func() (*core.VATSummary, error) {
		return s.Reporting.GetVATSummary(ctx, companyCode, fromDate, to)
	})
}

func (s *appService) ExportReport(ctx context.Context, companyCode string, req ExportRequest) (*export.Workbook, error) {
	want := func(name string) bool { return req.Report == name || req.Report == ReportAll }
	switch req.Report {
	case ReportProfitAndLoss, ReportBalanceSheet, ReportVATSummary, ReportTrialBalance, ReportAll:
	default:
		return nil, fmt.Errorf("%w: unknown report %q", core.ErrInvalid, req.Report)
	}

	var sheets []export.Sheet
	if want(ReportProfitAndLoss) {
		r, err := s.GetProfitAndLoss(ctx, companyCode, req.From, req.To)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, export.ProfitAndLoss(r))
	}
	if want(ReportBalanceSheet) {
		r, err := s.GetBalanceSheet(ctx, companyCode, req.AsOf)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, export.BalanceSheet(r))
	}
	if want(ReportVATSummary) {
		r, err := s.GetVATSummary(ctx, companyCode, req.From, req.To)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, export.VATSummary(r))
	}
	if want(ReportTrialBalance) {
		r, err := s.GetTrialBalance(ctx, companyCode, req.AsOf)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, export.TrialBalance(r))
	}
	wb := export.NewWorkbook(sheets...)
	return &wb, nil
}

// ── Invoices ──────────────────────────────────────────────────────────────────

func (s *appService) CreateInvoice(ctx context.Context, companyCode string, in core.InvoiceInput) (*core.Invoice, error) {
	return s.Invoices.Create(ctx, companyCode, in)
}

func (s *appService) UpdateInvoice(ctx context.Context, companyCode string, invoiceID int, in core.InvoiceInput) (*core.Invoice, error) {
	return s.Invoices.Update(ctx, companyCode, invoiceID, in)
}

func (s *appService) DeleteInvoice(ctx context.Context, companyCode string, invoiceID int) error {
	return s.Invoices.Delete(ctx, companyCode, invoiceID)
}

// Drafts never reach the ledger or the VAT summary, so only issue, pay and
// void invalidate.

func (s *appService) IssueInvoice(ctx context.Context, companyCode string, invoiceID int) (*core.Invoice, error) {
	inv, err := s.Invoices.Issue(ctx, companyCode, invoiceID)
	return inv, s.mutated(companyCode, err)
}

func (s *appService) MarkInvoicePaid(ctx context.Context, companyCode string, invoiceID int, paidDate string) (*core.Invoice, error) {
	inv, err := s.Invoices.MarkPaid(ctx, companyCode, invoiceID, paidDate)
	return inv, s.mutated(companyCode, err)
}

func (s *appService) VoidInvoice(ctx context.Context, companyCode string, invoiceID int) (*core.Invoice, error) {
	inv, err := s.Invoices.Void(ctx, companyCode, invoiceID)
	return inv, s.mutated(companyCode, err)
}

func (s *appService) GetInvoice(ctx context.Context, companyCode string, invoiceID int) (*core.Invoice, error) {
	return s.Invoices.Get(ctx, companyCode, invoiceID)
}

func (s *appService) ListInvoices(ctx context.Context, companyCode string, status core.InvoiceStatus) ([]core.Invoice, error) {
	return s.Invoices.List(ctx, companyCode, status)
}

func (s *appService) ListOverdueInvoices(ctx context.Context, companyCode, asOfDate string) ([]core.Invoice, error) {
	return s.Invoices.Overdue(ctx, companyCode, s.orToday(asOfDate))
}

// ── Receipts ──────────────────────────────────────────────────────────────────

func (s *appService) CreateReceipt(ctx context.Context, companyCode string, in core.ReceiptInput) (*core.Receipt, error) {
	return s.Receipts.Create(ctx, companyCode, in)
}

// fallbackScanAccount is the catch-all expense account of the default chart.
const fallbackScanAccount = "5950"

// scanAccount keeps the suggested account when it is an active expense or
// asset account, otherwise falls back to the catch-all or the first expense.
func scanAccount(suggested string, accounts []core.Account) string {
	fallback, firstExpense := "", ""
	for _, a := range accounts {
		if !a.IsActive || (a.Type != core.Expense && a.Type != core.Asset) {
			continue
		}
		if a.Code == suggested {
			return suggested
		}
		if a.Code == fallbackScanAccount {
			fallback = a.Code
		}
		if firstExpense == "" && a.Type == core.Expense {
			firstExpense = a.Code
		}
	}
	if fallback != "" {
		return fallback
	}
	return firstExpense
}

func (s *appService) ScanReceipt(ctx context.Context, companyCode, receiptText string) (*ScanResult, error) {
	if s.scanner == nil {
		return nil, ErrScannerDisabled
	}
	accounts, err := s.Accounts.List(ctx, companyCode, false)
	if err != nil {
		return nil, err
	}
	draft, err := s.scanner.Scan(ctx, receiptText, accounts)
	switch {
	case err == nil:
	case errors.Is(err, ai.ErrUnreadable):
		return nil, fmt.Errorf("%w: %v", core.ErrInvalid, err)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		s.log.WithError(err).WithField("company", companyCode).Warn("receipt scan failed")
		return nil, fmt.Errorf("%w: %v", ErrScannerUnavailable, err)
	}
	draft.SuggestedAccountCode = scanAccount(draft.SuggestedAccountCode, accounts)
	in, err := draft.ToReceiptInput(fallbackScanAccount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalid, err)
	}
	r, err := s.Receipts.Create(ctx, companyCode, in)
	if err != nil {
		return nil, err
	}
	return &ScanResult{Receipt: r, Draft: draft}, nil
}

func (s *appService) PostReceipt(ctx context.Context, companyCode string, receiptID int) (*core.Receipt, error) {
	r, err := s.Receipts.Post(ctx, companyCode, receiptID)
	return r, s.mutated(companyCode, err)
}

func (s *appService) DeleteReceipt(ctx context.Context, companyCode string, receiptID int) error {
	return s.Receipts.Delete(ctx, companyCode, receiptID)
}

func (s *appService) GetReceipt(ctx context.Context, companyCode string, receiptID int) (*core.Receipt, error) {
	return s.Receipts.Get(ctx, companyCode, receiptID)
}

func (s *appService) ListReceipts(ctx context.Context, companyCode string, status core.ReceiptStatus) ([]core.Receipt, error) {
	return s.Receipts.List(ctx, companyCode, status)
}

// ── Team ──────────────────────────────────────────────────────────────────────

func (s *appService) ListMembers(ctx context.Context, companyCode string) ([]core.User, error) {
	return s.Team.ListMembers(ctx, companyCode)
}

func (s *appService) ChangeMemberRole(ctx context.Context, companyCode string, userID int, role core.Role) (*core.User, error) {
	return s.Team.ChangeRole(ctx, companyCode, userID, role)
}

func (s *appService) RemoveMember(ctx context.Context, companyCode string, userID int) error {
	return s.Team.RemoveMember(ctx, companyCode, userID)
}

func (s *appService) InviteMember(ctx context.Context, companyCode string, invitedBy int, email string, role core.Role) (*core.Invitation, error) {
	inv, err := s.Team.Invite(ctx, companyCode, invitedBy, email, role)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"company": companyCode, "email": inv.Email, "role": inv.Role}).Info("member invited")
	return inv, nil
}

func (s *appService) ListInvitations(ctx context.Context, companyCode, status string) ([]core.Invitation, error) {
	return s.Team.ListInvitations(ctx, companyCode, status)
}

func (s *appService) RevokeInvitation(ctx context.Context, companyCode string, invitationID int) error {
	return s.Team.RevokeInvitation(ctx, companyCode, invitationID)
}

// ── Referrals & feedback ──────────────────────────────────────────────────────

func (s *appService) GetReferralCode(ctx context.Context, companyCode string) (*core.ReferralCode, error) {
	return s.Referrals.GetOrCreateCode(ctx, companyCode)
}

func (s *appService) RedeemReferral(ctx context.Context, companyCode, code string) (*core.ReferralRedemption, error) {
	return s.Referrals.Redeem(ctx, code, companyCode)
}

func (s *appService) ListReferralRedemptions(ctx context.Context, companyCode string) ([]core.ReferralRedemption, error) {
	return s.Referrals.ListRedemptions(ctx, companyCode)
}

func (s *appService) SubmitFeedback(ctx context.Context, companyCode string, userID int, in core.FeedbackInput) (*core.Feedback, error) {
	return s.Feedback.Submit(ctx, companyCode, userID, in)
}

func (s *appService) ListFeedback(ctx context.Context, companyCode string) ([]core.Feedback, error) {
	return s.Feedback.List(ctx, companyCode)
}

// ── Compliance & reminders ────────────────────────────────────────────────────

func (s *appService) CreateComplianceTask(ctx context.Context, companyCode string, in core.ComplianceTaskInput) (*core.ComplianceTask, error) {
	return s.Compliance.Create(ctx, companyCode, in)
}

func (s *appService) ListComplianceTasks(ctx context.Context, companyCode, status string) ([]core.ComplianceTask, error) {
	return s.Compliance.List(ctx, companyCode, status)
}

func (s *appService) CompleteComplianceTask(ctx context.Context, companyCode string, taskID int) (*core.ComplianceTask, error) {
	return s.Compliance.Complete(ctx, companyCode, taskID)
}

func (s *appService) DeleteComplianceTask(ctx context.Context, companyCode string, taskID int) error {
	return s.Compliance.Delete(ctx, companyCode, taskID)
}

func (s *appService) GenerateVATTasks(ctx context.Context, companyCode string, year int) (int, error) {
	return s.Compliance.GenerateVATTasks(ctx, companyCode, year)
}

func (s *appService) RunReminders(ctx context.Context, companyCode, asOfDate string, leadDays int) (int, error) {
	return s.Reminders.Scan(ctx, companyCode, s.orToday(asOfDate), leadDays)
}

func (s *appService) ListReminders(ctx context.Context, companyCode string, unreadOnly bool) ([]core.Reminder, error) {
	return s.Reminders.List(ctx, companyCode, unreadOnly)
}

func (s *appService) MarkReminderRead(ctx context.Context, companyCode string, reminderID int) error {
	return s.Reminders.MarkRead(ctx, companyCode, reminderID)
}

// ── Backups ───────────────────────────────────────────────────────────────────

func (s *appService) CreateBackup(ctx context.Context, companyCode string, createdBy int) (*core.Backup, error) {
	b, err := s.Backups.Create(ctx, companyCode, createdBy)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"company": companyCode, "backup": b.ID, "bytes": b.SizeBytes}).Info("backup created")
	return b, nil
}

func (s *appService) ListBackups(ctx context.Context, companyCode string) ([]core.Backup, error) {
	return s.Backups.List(ctx, companyCode)
}

func (s *appService) DownloadBackup(ctx context.Context, companyCode string, backupID int) (*core.Backup, []byte, error) {
	return s.Backups.Download(ctx, companyCode, backupID)
}

func (s *appService) DeleteBackup(ctx context.Context, companyCode string, backupID int) error {
	return s.Backups.Delete(ctx, companyCode, backupID)
}
