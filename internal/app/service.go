package app

import (
	"context"

	"bookkeeper/internal/core"
	"bookkeeper/internal/export"
)

// ApplicationService is the single interface the adapters (CLI, Web, jobs) call.
// It decouples presentation from business logic. Implementations must contain
// no display logic of any kind.
//
// Report reads are served from the query cache; every mutation drops the cached
// reports of the company it touched.
type ApplicationService interface {
	// ── Auth ────────────────────────────────────────────────────────────────
	// AuthenticateUser verifies credentials and returns a session on success.
	AuthenticateUser(ctx context.Context, username, password string) (*UserSession, error)
	GetUser(ctx context.Context, userID int) (*core.User, error)
	// AcceptInvitation creates the invited user and returns their session.
	AcceptInvitation(ctx context.Context, token, username, password string) (*UserSession, error)

	// ── Companies ───────────────────────────────────────────────────────────
	// CreateCompany creates the company, seeds the default chart and adds the owner.
	CreateCompany(ctx context.Context, req CreateCompanyRequest) (*core.Company, error)
	GetCompany(ctx context.Context, companyCode string) (*core.Company, error)
	ListCompanies(ctx context.Context) ([]core.Company, error)
	UpdateCompanySettings(ctx context.Context, companyCode string, s core.CompanySettings) (*core.Company, error)

	// ── Chart of accounts ───────────────────────────────────────────────────
	ListAccounts(ctx context.Context, companyCode string, includeInactive bool) ([]core.Account, error)
	CreateAccount(ctx context.Context, companyCode string, in core.AccountInput) (*core.Account, error)
	UpdateAccount(ctx context.Context, companyCode, accountCode string, in core.AccountUpdate) (*core.Account, error)
	DeactivateAccount(ctx context.Context, companyCode, accountCode string) error
	// GetAccountGroups returns current balances grouped by account type.
	GetAccountGroups(ctx context.Context, companyCode string) ([]core.AccountGroup, error)

	// ── Journal ─────────────────────────────────────────────────────────────
	PostJournalEntry(ctx context.Context, in core.JournalEntryInput) (*core.JournalEntry, error)
	// ValidateJournalEntry runs the full posting path without committing.
	ValidateJournalEntry(ctx context.Context, in core.JournalEntryInput) error
	// CheckBalance is the offline balance check used to gate entry forms. The
	// error is ErrTooFewLines or ErrUnbalanced; the totals are returned either way.
	CheckBalance(lines []core.EntryLine) (core.BalanceCheck, error)
	ReverseJournalEntry(ctx context.Context, companyCode string, entryID int, memo string) (*core.JournalEntry, error)
	GetJournalEntry(ctx context.Context, companyCode string, entryID int) (*core.JournalEntry, error)
	ListJournalEntries(ctx context.Context, companyCode, fromDate, toDate string) ([]core.JournalEntry, error)
	// ListDocuments returns numbered documents (JE, INV, RCT), optionally of one type.
	ListDocuments(ctx context.Context, companyCode, typeCode string) ([]core.Document, error)

	// ── Reports ─────────────────────────────────────────────────────────────
	GetTrialBalance(ctx context.Context, companyCode, asOfDate string) (*core.TrialBalance, error)
	// GetAccountStatement returns a chronological statement with running balance.
	// fromDate and toDate are optional (empty string means unbounded).
	GetAccountStatement(ctx context.Context, companyCode, accountCode, fromDate, toDate string) (*core.AccountStatement, error)
	GetProfitAndLoss(ctx context.Context, companyCode, fromDate, toDate string) (*core.PLReport, error)
	// GetBalanceSheet returns the balance sheet as of the given date.
	// If asOfDate is empty, today's date is used.
	GetBalanceSheet(ctx context.Context, companyCode, asOfDate string) (*core.BSReport, error)
	GetVATSummary(ctx context.Context, companyCode, fromDate, toDate string) (*core.VATSummary, error)
	// ExportReport shapes one report (or all of them) into spreadsheet sheets.
	ExportReport(ctx context.Context, companyCode string, req ExportRequest) (*export.Workbook, error)

	// ── Invoices ────────────────────────────────────────────────────────────
	CreateInvoice(ctx context.Context, companyCode string, in core.InvoiceInput) (*core.Invoice, error)
	UpdateInvoice(ctx context.Context, companyCode string, invoiceID int, in core.InvoiceInput) (*core.Invoice, error)
	DeleteInvoice(ctx context.Context, companyCode string, invoiceID int) error
	IssueInvoice(ctx context.Context, companyCode string, invoiceID int) (*core.Invoice, error)
	MarkInvoicePaid(ctx context.Context, companyCode string, invoiceID int, paidDate string) (*core.Invoice, error)
	VoidInvoice(ctx context.Context, companyCode string, invoiceID int) (*core.Invoice, error)
	GetInvoice(ctx context.Context, companyCode string, invoiceID int) (*core.Invoice, error)
	ListInvoices(ctx context.Context, companyCode string, status core.InvoiceStatus) ([]core.Invoice, error)
	ListOverdueInvoices(ctx context.Context, companyCode, asOfDate string) ([]core.Invoice, error)

	// ── Receipts ────────────────────────────────────────────────────────────
	CreateReceipt(ctx context.Context, companyCode string, in core.ReceiptInput) (*core.Receipt, error)
	// ScanReceipt extracts a receipt from text and saves it as a draft.
	// Returns ErrScannerDisabled when no model is configured.
	ScanReceipt(ctx context.Context, companyCode, receiptText string) (*ScanResult, error)
	PostReceipt(ctx context.Context, companyCode string, receiptID int) (*core.Receipt, error)
	DeleteReceipt(ctx context.Context, companyCode string, receiptID int) error
	GetReceipt(ctx context.Context, companyCode string, receiptID int) (*core.Receipt, error)
	ListReceipts(ctx context.Context, companyCode string, status core.ReceiptStatus) ([]core.Receipt, error)

	// ── Team ────────────────────────────────────────────────────────────────
	ListMembers(ctx context.Context, companyCode string) ([]core.User, error)
	ChangeMemberRole(ctx context.Context, companyCode string, userID int, role core.Role) (*core.User, error)
	RemoveMember(ctx context.Context, companyCode string, userID int) error
	InviteMember(ctx context.Context, companyCode string, invitedBy int, email string, role core.Role) (*core.Invitation, error)
	ListInvitations(ctx context.Context, companyCode, status string) ([]core.Invitation, error)
	RevokeInvitation(ctx context.Context, companyCode string, invitationID int) error

	// ── Referrals & feedback ────────────────────────────────────────────────
	GetReferralCode(ctx context.Context, companyCode string) (*core.ReferralCode, error)
	RedeemReferral(ctx context.Context, companyCode, code string) (*core.ReferralRedemption, error)
	ListReferralRedemptions(ctx context.Context, companyCode string) ([]core.ReferralRedemption, error)
	SubmitFeedback(ctx context.Context, companyCode string, userID int, in core.FeedbackInput) (*core.Feedback, error)
	ListFeedback(ctx context.Context, companyCode string) ([]core.Feedback, error)

	// ── Compliance & reminders ──────────────────────────────────────────────
	CreateComplianceTask(ctx context.Context, companyCode string, in core.ComplianceTaskInput) (*core.ComplianceTask, error)
	ListComplianceTasks(ctx context.Context, companyCode, status string) ([]core.ComplianceTask, error)
	CompleteComplianceTask(ctx context.Context, companyCode string, taskID int) (*core.ComplianceTask, error)
	DeleteComplianceTask(ctx context.Context, companyCode string, taskID int) error
	GenerateVATTasks(ctx context.Context, companyCode string, year int) (int, error)
	// RunReminders records reminders as of asOfDate (empty = today) and returns
	// how many are new.
	RunReminders(ctx context.Context, companyCode, asOfDate string, leadDays int) (int, error)
	ListReminders(ctx context.Context, companyCode string, unreadOnly bool) ([]core.Reminder, error)
	MarkReminderRead(ctx context.Context, companyCode string, reminderID int) error

	// ── Backups ─────────────────────────────────────────────────────────────
	CreateBackup(ctx context.Context, companyCode string, createdBy int) (*core.Backup, error)
	ListBackups(ctx context.Context, companyCode string) ([]core.Backup, error)
	DownloadBackup(ctx context.Context, companyCode string, backupID int) (*core.Backup, []byte, error)
	DeleteBackup(ctx context.Context, companyCode string, backupID int) error
}
