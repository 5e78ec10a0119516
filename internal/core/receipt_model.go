package core

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ReceiptStatus string

const (
	ReceiptDraft  ReceiptStatus = "draft"
	ReceiptPosted ReceiptStatus = "posted"
)

type ReceiptSource string

const (
	ReceiptManual ReceiptSource = "manual"
	ReceiptScan   ReceiptSource = "scan"
)

// Receipt is a purchase or expense receipt. Number is assigned on posting.
type Receipt struct {
	ID                 int             `json:"id"`
	CompanyID          int             `json:"company_id"`
	Number             string          `json:"number,omitempty"`
	VendorName         string          `json:"vendor_name"`
	VendorTRN          string          `json:"vendor_trn,omitempty"`
	ReceiptDate        string          `json:"receipt_date"`
	ExpenseAccountCode string          `json:"expense_account_code"`
	VATCategory        VATCategory     `json:"vat_category"`
	NetAmount          decimal.Decimal `json:"net_amount"`
	VATAmount          decimal.Decimal `json:"vat_amount"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	Currency           string          `json:"currency"`
	Status             ReceiptStatus   `json:"status"`
	Source             ReceiptSource   `json:"source"`
	Notes              string          `json:"notes,omitempty"`
	JournalEntryID     *int            `json:"journal_entry_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ReceiptInput creates a draft receipt. Either NetAmount or TotalAmount must be
// given; a nil VATAmount is derived from the company rate.
type ReceiptInput struct {
	VendorName         string           `json:"vendor_name"`
	VendorTRN          string           `json:"vendor_trn"`
	ReceiptDate        string           `json:"receipt_date"`
	ExpenseAccountCode string           `json:"expense_account_code"`
	VATCategory        VATCategory      `json:"vat_category"`
	NetAmount          decimal.Decimal  `json:"net_amount"`
	VATAmount          *decimal.Decimal `json:"vat_amount"`
	TotalAmount        decimal.Decimal  `json:"total_amount"`
	Currency           string           `json:"currency"`
	Notes              string           `json:"notes"`
	Source             ReceiptSource    `json:"source"`
}

func (in *ReceiptInput) Normalize() {
	in.VendorName = strings.TrimSpace(in.VendorName)
	in.VendorTRN = strings.TrimSpace(in.VendorTRN)
	in.ReceiptDate = strings.TrimSpace(in.ReceiptDate)
	in.ExpenseAccountCode = strings.TrimSpace(in.ExpenseAccountCode)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.Notes = strings.TrimSpace(in.Notes)
	if in.VATCategory == "" {
		in.VATCategory = VATStandard
	}
	if in.Source == "" {
		in.Source = ReceiptManual
	}
}

// Amounts validates the input and resolves net, VAT and total at rate percent.
// A given total must match net + VAT within BalanceTolerance; the returned total
// is always exactly net + VAT.
func (in *ReceiptInput) Amounts(rate decimal.Decimal) (net, vat, total decimal.Decimal, err error) {
	if in.VendorName == "" {
		return net, vat, total, invalid("vendor name is required")
	}
	if in.VendorTRN != "" && !trnPattern.MatchString(in.VendorTRN) {
		return net, vat, total, invalid("vendor TRN must be 15 digits")
	}
	if _, perr := time.Parse(dateLayout, in.ReceiptDate); perr != nil {
		return net, vat, total, invalid("receipt date %q must be YYYY-MM-DD", in.ReceiptDate)
	}
	if in.ExpenseAccountCode == "" {
		return net, vat, total, invalid("expense account is required")
	}
	if !in.VATCategory.Valid() {
		return net, vat, total, invalid("unknown VAT category %q", in.VATCategory)
	}
	if in.Source != ReceiptManual && in.Source != ReceiptScan {
		return net, vat, total, invalid("unknown receipt source %q", in.Source)
	}
	if in.NetAmount.IsNegative() || in.TotalAmount.IsNegative() || (in.VATAmount != nil && in.VATAmount.IsNegative()) {
		return net, vat, total, invalid("amounts cannot be negative")
	}
	if in.VATAmount != nil && in.VATAmount.IsPositive() && in.VATCategory != VATStandard {
		return net, vat, total, invalid("%s receipts carry no VAT", in.VATCategory)
	}

	net = in.NetAmount.Round(2)
	given := in.TotalAmount.Round(2)
	switch {
	case net.IsZero() && given.IsZero():
		return net, vat, total, invalid("a net or total amount is required")
	case net.IsZero():
		if in.VATAmount != nil {
			vat = in.VATAmount.Round(2)
		} else if in.VATCategory == VATStandard {
			// Back out the tax from a tax-inclusive total.
			vat = given.Sub(given.Mul(hundred).Div(hundred.Add(rate)).Round(2))
		}
		net = given.Sub(vat)
		if net.IsNegative() {
			return net, vat, total, invalid("VAT exceeds the total")
		}
	default:
		if in.VATAmount != nil {
			vat = in.VATAmount.Round(2)
		} else {
			vat = ComputeVAT(net, in.VATCategory, rate)
		}
		if !given.IsZero() && net.Add(vat).Sub(given).Abs().GreaterThanOrEqual(BalanceTolerance) {
			return net, vat, total, invalid("net %s + VAT %s does not match total %s",
				net.StringFixed(2), vat.StringFixed(2), given.StringFixed(2))
		}
	}
	if !net.IsPositive() {
		return net, vat, total, invalid("net amount must be > 0")
	}
	return net, vat, net.Add(vat), nil
}

type ReceiptService interface {
	Create(ctx context.Context, companyCode string, in ReceiptInput) (*Receipt, error)
	// Post assigns the receipt number and posts DR expense / DR VAT input / CR bank.
	Post(ctx context.Context, companyCode string, receiptID int) (*Receipt, error)
	Delete(ctx context.Context, companyCode string, receiptID int) error
	Get(ctx context.Context, companyCode string, receiptID int) (*Receipt, error)
	List(ctx context.Context, companyCode string, status ReceiptStatus) ([]Receipt, error)
}
