package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplianceTaskInput_Validate(t *testing.T) {
	in := ComplianceTaskInput{Title: " Renew trade licence ", DueDate: "2026-06-30"}
	require.NoError(t, in.Validate())
	assert.Equal(t, KindOther, in.Kind)
	assert.Equal(t, "Renew trade licence", in.Title)

	bad := []ComplianceTaskInput{
		{Title: "", DueDate: "2026-06-30"},
		{Title: "x", Kind: "payroll", DueDate: "2026-06-30"},
		{Title: "x", DueDate: "30/06/2026"},
		{Title: "x", DueDate: "2026-06-30", PeriodStart: "2026-01-01"},
		{Title: "x", DueDate: "2026-06-30", PeriodStart: "2026-03-31", PeriodEnd: "2026-01-01"},
	}
	for _, b := range bad {
		assert.ErrorIs(t, b.Validate(), ErrInvalid, "%+v", b)
	}
}

func TestReminderMessages(t *testing.T) {
	assert.Equal(t, "VAT return Q1 2026 is due on 2026-04-28",
		complianceMessage("VAT return Q1 2026", "2026-04-28", "2026-04-21"))
	assert.Equal(t, "VAT return Q1 2026 was due on 2026-04-28 and is still open",
		complianceMessage("VAT return Q1 2026", "2026-04-28", "2026-05-01"))
	assert.Equal(t, "Invoice INV-2026-00003 to Gulf Foods is overdue since 2026-03-15",
		overdueInvoiceMessage("INV-2026-00003", "Gulf Foods", "2026-03-15"))
}
