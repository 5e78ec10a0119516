package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiptInput() ReceiptInput {
	return ReceiptInput{
		VendorName:         "ENOC Station 214",
		ReceiptDate:        "2026-03-04",
		ExpenseAccountCode: "5600",
	}
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestReceiptInput_Amounts(t *testing.T) {
	tests := []struct {
		name               string
		mutate             func(in *ReceiptInput)
		net, vat, total    string
	}{
		{
			name:   "vat derived from net",
			mutate: func(in *ReceiptInput) { in.NetAmount = dec("200") },
			net:    "200", vat: "10", total: "210",
		},
		{
			name:   "vat backed out of total",
			mutate: func(in *ReceiptInput) { in.TotalAmount = dec("105") },
			net:    "100", vat: "5", total: "105",
		},
		{
			name: "explicit vat with total",
			mutate: func(in *ReceiptInput) {
				in.TotalAmount = dec("52.50")
				in.VATAmount = decPtr("2.50")
			},
			net: "50", vat: "2.5", total: "52.5",
		},
		{
			name: "total within tolerance",
			mutate: func(in *ReceiptInput) {
				in.NetAmount = dec("99.99")
				in.TotalAmount = dec("104.99")
			},
			net: "99.99", vat: "5", total: "104.99",
		},
		{
			name: "exempt total",
			mutate: func(in *ReceiptInput) {
				in.VATCategory = VATExempt
				in.TotalAmount = dec("80")
			},
			net: "80", vat: "0", total: "80",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := receiptInput()
			tt.mutate(&in)
			in.Normalize()
			net, vat, total, err := in.Amounts(dec("5"))
			require.NoError(t, err)
			assert.True(t, net.Equal(dec(tt.net)), "net = %s", net)
			assert.True(t, vat.Equal(dec(tt.vat)), "vat = %s", vat)
			assert.True(t, total.Equal(dec(tt.total)), "total = %s", total)
			assert.True(t, net.Add(vat).Equal(total))
		})
	}
}

func TestReceiptInput_AmountsRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *ReceiptInput)
	}{
		{"no amounts", func(in *ReceiptInput) {}},
		{"total mismatch", func(in *ReceiptInput) { in.NetAmount = dec("100"); in.TotalAmount = dec("110") }},
		{"negative", func(in *ReceiptInput) { in.NetAmount = dec("-5") }},
		{"vat on exempt", func(in *ReceiptInput) {
			in.VATCategory = VATExempt
			in.NetAmount = dec("10")
			in.VATAmount = decPtr("0.5")
		}},
		{"vat above total", func(in *ReceiptInput) { in.TotalAmount = dec("5"); in.VATAmount = decPtr("6") }},
		{"no vendor", func(in *ReceiptInput) { in.VendorName = ""; in.NetAmount = dec("1") }},
		{"bad date", func(in *ReceiptInput) { in.ReceiptDate = "2026-13-01"; in.NetAmount = dec("1") }},
		{"bad source", func(in *ReceiptInput) { in.Source = "email"; in.NetAmount = dec("1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := receiptInput()
			tt.mutate(&in)
			in.Normalize()
			_, _, _, err := in.Amounts(dec("5"))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}
