package ai

import (
	"context"
	"errors"
	"testing"

	"bookkeeper/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply  string
	err    error
	prompt string
	schema map[string]any
}

func (f *fakeCompleter) complete(_ context.Context, prompt string, schema map[string]any) (string, error) {
	f.prompt = prompt
	f.schema = schema
	return f.reply, f.err
}

var chart = []core.Account{
	{Code: "1010", NameEN: "Bank", Type: core.Asset},
	{Code: "4000", NameEN: "Sales", Type: core.Income},
	{Code: "5300", NameEN: "Utilities", Type: core.Expense},
}

func TestScan(t *testing.T) {
	llm := &fakeCompleter{reply: `{
		"vendor_name": " DEWA ",
		"vendor_trn": "100 0123 4567 8903",
		"receipt_date": "2026-02-03",
		"currency": "aed",
		"net_amount": "1,000.00",
		"vat_amount": "50.00",
		"total_amount": "1050.00",
		"vat_category": "Standard",
		"suggested_account_code": "5300",
		"confidence": 0.92
	}`}
	s := &ReceiptScanner{llm: llm}

	draft, err := s.Scan(context.Background(), "DEWA bill ... total 1,050.00", chart)
	require.NoError(t, err)
	assert.Equal(t, "DEWA", draft.VendorName)
	assert.Equal(t, "100012345678903", draft.VendorTRN)
	assert.Equal(t, "AED", draft.Currency)
	assert.Equal(t, "1000.00", draft.NetAmount)
	assert.Equal(t, "standard", draft.VATCategory)

	assert.Contains(t, llm.prompt, "5300 Utilities (expense)")
	assert.NotContains(t, llm.prompt, "4000 Sales", "income accounts are not offered")
	assert.Equal(t, false, llm.schema["additionalProperties"])

	in, err := draft.ToReceiptInput("5950")
	require.NoError(t, err)
	assert.Equal(t, core.ReceiptScan, in.Source)
	assert.Equal(t, "5300", in.ExpenseAccountCode)
	require.NotNil(t, in.VATAmount)
	assert.Equal(t, "50.00", in.VATAmount.StringFixed(2))
	assert.Equal(t, "1050.00", in.TotalAmount.StringFixed(2))
}

func TestScanRejectsBadDrafts(t *testing.T) {
	cases := map[string]string{
		"totals disagree": `{"vendor_name":"X","receipt_date":"2026-02-03","net_amount":"100","vat_amount":"5","total_amount":"110","vat_category":"standard","confidence":0.5}`,
		"bad date":        `{"vendor_name":"X","receipt_date":"03/02/2026","net_amount":"100","vat_amount":"5","total_amount":"105","vat_category":"standard","confidence":0.5}`,
		"no vendor":       `{"vendor_name":"","receipt_date":"2026-02-03","net_amount":"100","vat_amount":"5","total_amount":"105","vat_category":"standard","confidence":0.5}`,
		"not json":        `I could not read this receipt`,
		"bad amount":      `{"vendor_name":"X","receipt_date":"2026-02-03","net_amount":"abc","vat_amount":"5","total_amount":"105","vat_category":"standard","confidence":0.5}`,
		"zero total":      `{"vendor_name":"X","receipt_date":"2026-02-03","net_amount":"0","vat_amount":"0","total_amount":"0","vat_category":"exempt","confidence":0.5}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			s := &ReceiptScanner{llm: &fakeCompleter{reply: reply}}
			_, err := s.Scan(context.Background(), "receipt", chart)
			assert.ErrorIs(t, err, ErrUnreadable)
		})
	}
}

func TestScanPropagatesErrors(t *testing.T) {
	s := &ReceiptScanner{llm: &fakeCompleter{err: errors.New("rate limited")}}
	_, err := s.Scan(context.Background(), "receipt", chart)
	assert.ErrorContains(t, err, "rate limited")
	assert.NotErrorIs(t, err, ErrUnreadable, "transport failures are not the receipt's fault")

	s = &ReceiptScanner{llm: &fakeCompleter{}}
	_, err = s.Scan(context.Background(), "receipt", chart)
	assert.ErrorContains(t, err, "empty response")
	assert.ErrorIs(t, err, ErrUnreadable)

	_, err = s.Scan(context.Background(), "   ", chart)
	assert.ErrorContains(t, err, "empty")
}

func TestDraftToleratesRoundingWithinACent(t *testing.T) {
	d := ReceiptDraft{VendorName: "Cafe", ReceiptDate: "2026-02-03", NetAmount: "9.52", VATAmount: "0.48", TotalAmount: "10.005"}
	d.Normalize()
	assert.NoError(t, d.Validate())

	in, err := d.ToReceiptInput("5950")
	require.NoError(t, err)
	assert.Equal(t, "5950", in.ExpenseAccountCode)
}
