package core

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceDraft  InvoiceStatus = "draft"
	InvoiceIssued InvoiceStatus = "issued"
	InvoicePaid   InvoiceStatus = "paid"
	InvoiceVoid   InvoiceStatus = "void"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceIssued, InvoicePaid, InvoiceVoid:
		return true
	}
	return false
}

type InvoiceLine struct {
	ID          int             `json:"id"`
	LineNo      int             `json:"line_no"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VATCategory VATCategory     `json:"vat_category"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
}

// Invoice is a tax invoice. Number is assigned on issue.
type Invoice struct {
	ID             int             `json:"id"`
	CompanyID      int             `json:"company_id"`
	Number         string          `json:"number,omitempty"`
	CustomerName   string          `json:"customer_name"`
	CustomerTRN    string          `json:"customer_trn,omitempty"`
	IssueDate      string          `json:"issue_date"`
	DueDate        string          `json:"due_date"`
	Currency       string          `json:"currency"`
	Status         InvoiceStatus   `json:"status"`
	Lines          []InvoiceLine   `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	VATTotal       decimal.Decimal `json:"vat_total"`
	Total          decimal.Decimal `json:"total"`
	Notes          string          `json:"notes,omitempty"`
	JournalEntryID *int            `json:"journal_entry_id,omitempty"`
	PaymentEntryID *int            `json:"payment_entry_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type InvoiceLineInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VATCategory VATCategory     `json:"vat_category"`
}

type InvoiceInput struct {
	CustomerName string             `json:"customer_name"`
	CustomerTRN  string             `json:"customer_trn"`
	IssueDate    string             `json:"issue_date"`
	DueDate      string             `json:"due_date"`
	Currency     string             `json:"currency"`
	Notes        string             `json:"notes"`
	Lines        []InvoiceLineInput `json:"lines"`
}

// Normalize trims fields and defaults the due date to the issue date and the
// VAT category to standard.
func (in *InvoiceInput) Normalize() {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerTRN = strings.TrimSpace(in.CustomerTRN)
	in.IssueDate = strings.TrimSpace(in.IssueDate)
	in.DueDate = strings.TrimSpace(in.DueDate)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.Notes = strings.TrimSpace(in.Notes)
	if in.DueDate == "" {
		in.DueDate = in.IssueDate
	}
	for i := range in.Lines {
		in.Lines[i].Description = strings.TrimSpace(in.Lines[i].Description)
		if in.Lines[i].VATCategory == "" {
			in.Lines[i].VATCategory = VATStandard
		}
	}
}

// Price validates the input and computes line and document totals at rate percent.
func (in *InvoiceInput) Price(rate decimal.Decimal) ([]InvoiceLine, InvoiceTotals, error) {
	var totals InvoiceTotals
	if in.CustomerName == "" {
		return nil, totals, invalid("customer name is required")
	}
	if in.CustomerTRN != "" && !trnPattern.MatchString(in.CustomerTRN) {
		return nil, totals, invalid("customer TRN must be 15 digits")
	}
	issue, err := time.Parse(dateLayout, in.IssueDate)
	if err != nil {
		return nil, totals, invalid("issue date %q must be YYYY-MM-DD", in.IssueDate)
	}
	due, err := time.Parse(dateLayout, in.DueDate)
	if err != nil {
		return nil, totals, invalid("due date %q must be YYYY-MM-DD", in.DueDate)
	}
	if due.Before(issue) {
		return nil, totals, invalid("due date cannot be before issue date")
	}
	if len(in.Lines) == 0 {
		return nil, totals, invalid("an invoice needs at least one line")
	}

	totals = InvoiceTotals{Subtotal: decimal.Zero, VATTotal: decimal.Zero, Total: decimal.Zero}
	lines := make([]InvoiceLine, 0, len(in.Lines))
	for i, l := range in.Lines {
		if l.Description == "" {
			return nil, totals, invalid("line %d: description is required", i+1)
		}
		if !l.Quantity.IsPositive() {
			return nil, totals, invalid("line %d: quantity must be > 0", i+1)
		}
		if l.UnitPrice.IsNegative() {
			return nil, totals, invalid("line %d: unit price cannot be negative", i+1)
		}
		if !l.VATCategory.Valid() {
			return nil, totals, invalid("line %d: unknown VAT category %q", i+1, l.VATCategory)
		}
		net := l.Quantity.Mul(l.UnitPrice).Round(2)
		vat := ComputeVAT(net, l.VATCategory, rate)
		lines = append(lines, InvoiceLine{
			LineNo:      i + 1,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			VATCategory: l.VATCategory,
			NetAmount:   net,
			VATAmount:   vat,
		})
		totals.Subtotal = totals.Subtotal.Add(net)
		totals.VATTotal = totals.VATTotal.Add(vat)
	}
	totals.Total = totals.Subtotal.Add(totals.VATTotal)
	return lines, totals, nil
}

type InvoiceTotals struct {
	Subtotal decimal.Decimal
	VATTotal decimal.Decimal
	Total    decimal.Decimal
}

// FiscalYear returns the fiscal year d falls in, named by the calendar year it starts in.
func FiscalYear(d time.Time, startMonth int) int {
	if startMonth <= 1 || int(d.Month()) >= startMonth {
		return d.Year()
	}
	return d.Year() - 1
}

type InvoiceService interface {
	Create(ctx context.Context, companyCode string, in InvoiceInput) (*Invoice, error)
	Update(ctx context.Context, companyCode string, invoiceID int, in InvoiceInput) (*Invoice, error)
	Delete(ctx context.Context, companyCode string, invoiceID int) error
	// Issue assigns the gapless invoice number and posts
	// DR receivable / CR sales / CR VAT output.
	Issue(ctx context.Context, companyCode string, invoiceID int) (*Invoice, error)
	// MarkPaid posts DR bank / CR receivable on paidDate (empty = issue date).
	MarkPaid(ctx context.Context, companyCode string, invoiceID int, paidDate string) (*Invoice, error)
	// Void reverses the issue entry of an unpaid invoice.
	Void(ctx context.Context, companyCode string, invoiceID int) (*Invoice, error)
	Get(ctx context.Context, companyCode string, invoiceID int) (*Invoice, error)
	List(ctx context.Context, companyCode string, status InvoiceStatus) ([]Invoice, error)
	// Overdue lists issued invoices whose due date is before asOfDate.
	Overdue(ctx context.Context, companyCode, asOfDate string) ([]Invoice, error)
}
