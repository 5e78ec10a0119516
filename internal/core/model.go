package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	Asset     AccountType = "asset"
	Liability AccountType = "liability"
	Equity    AccountType = "equity"
	Income    AccountType = "income"
	Expense   AccountType = "expense"
)

// AccountTypes lists every account type in chart-of-accounts display order.
var AccountTypes = []AccountType{Asset, Liability, Equity, Income, Expense}

// Valid reports whether t is one of the five account types.
func (t AccountType) Valid() bool {
	switch t {
	case Asset, Liability, Equity, Income, Expense:
		return true
	}
	return false
}

// DebitNormal reports whether accounts of this type carry a debit balance.
func (t AccountType) DebitNormal() bool {
	return t == Asset || t == Expense
}

type Account struct {
	ID        int         `json:"id"`
	CompanyID int         `json:"company_id"`
	Code      string      `json:"code"`
	NameEN    string      `json:"name_en"`
	NameAR    string      `json:"name_ar"`
	Type      AccountType `json:"type"`
	IsActive  bool        `json:"is_active"`
}

// Company is the tenant boundary. Every other record belongs to exactly one company.
type Company struct {
	ID                   int             `json:"id"`
	CompanyCode          string          `json:"company_code"`
	Name                 string          `json:"name"`
	NameAR               string          `json:"name_ar"`
	BaseCurrency         string          `json:"base_currency"`
	TRN                  string          `json:"trn,omitempty"`
	VATRegistered        bool            `json:"vat_registered"`
	VATRate              decimal.Decimal `json:"vat_rate"`
	FiscalYearStartMonth int             `json:"fiscal_year_start_month"`
	CreatedAt            time.Time       `json:"created_at"`
}

type JournalEntry struct {
	ID              int           `json:"id"`
	CompanyID       int           `json:"company_id"`
	EntryNumber     string        `json:"entry_number"`
	IdempotencyKey  string        `json:"idempotency_key,omitempty"`
	PostingDate     time.Time     `json:"posting_date"`
	DocumentDate    time.Time     `json:"document_date"`
	Memo            string        `json:"memo"`
	Reference       string        `json:"reference,omitempty"`
	SourceType      string        `json:"source_type"`
	ReversedEntryID *int          `json:"reversed_entry_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	Lines           []JournalLine `json:"lines"`
}

type JournalLine struct {
	ID                  int             `json:"id"`
	EntryID             int             `json:"entry_id"`
	LineNo              int             `json:"line_no"`
	AccountID           int             `json:"account_id"`
	AccountCode         string          `json:"account_code"`
	TransactionCurrency string          `json:"transaction_currency"`
	ExchangeRate        decimal.Decimal `json:"exchange_rate"`
	AmountTransaction   decimal.Decimal `json:"amount_transaction"`
	DebitBase           decimal.Decimal `json:"debit_base"`
	CreditBase          decimal.Decimal `json:"credit_base"`
}

type DocumentStatus string

const (
	DocumentStatusDraft     DocumentStatus = "DRAFT"
	DocumentStatusPosted    DocumentStatus = "POSTED"
	DocumentStatusCancelled DocumentStatus = "CANCELLED"
)

// Document type codes seeded by the first migration.
const (
	DocTypeJournal = "JE"
	DocTypeInvoice = "INV"
	DocTypeReceipt = "RCT"
)

type DocumentType struct {
	Code              string `json:"code"`
	Name              string `json:"name"`
	NumberingStrategy string `json:"numbering_strategy"` // 'global', 'per_fy'
	ResetsEveryFY     bool   `json:"resets_every_fy"`
}

type Document struct {
	ID             int            `json:"id"`
	CompanyID      int            `json:"company_id"`
	TypeCode       string         `json:"type_code"`
	Status         DocumentStatus `json:"status"`
	DocumentNumber *string        `json:"document_number,omitempty"`
	FinancialYear  *int           `json:"financial_year,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	PostedAt       *time.Time     `json:"posted_at,omitempty"`
}

const dateLayout = "2006-01-02"
