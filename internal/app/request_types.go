package app

import (
	"bookkeeper/internal/core"
)

// CreateCompanyRequest is the input for registering a new company with its owner.
type CreateCompanyRequest struct {
	Company       core.Company
	OwnerUsername string
	OwnerEmail    string
	OwnerPassword string
}

// Report names accepted by ExportReport.
const (
	ReportProfitAndLoss = "pl"
	ReportBalanceSheet  = "balance-sheet"
	ReportVATSummary    = "vat"
	ReportTrialBalance  = "trial-balance"
	ReportAll           = "all"
)

// ExportRequest selects the report(s) to export. From/To bound P&L and VAT;
// AsOf is used by the balance sheet and trial balance.
type ExportRequest struct {
	Report string
	From   string
	To     string
	AsOf   string
}
