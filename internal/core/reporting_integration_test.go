package core_test

import (
	"context"
	"testing"

	"bookkeeper/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporting_GetAccountStatement(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewLedger(pool, core.NewDocumentService(pool))
	reporting := core.NewReportingService(pool)
	ctx := context.Background()

	// Bank: +100 on 01-01, +200 on 01-15, -50 on 02-01
	for _, in := range []core.JournalEntryInput{
		je("", "2026-01-01", dr("1010", "100"), cr("4000", "100")),
		je("", "2026-01-15", dr("1010", "200"), cr("4000", "200")),
		je("", "2026-02-01", dr("5800", "50"), cr("1010", "50")),
	} {
		_, err := ledger.Post(ctx, in)
		require.NoError(t, err)
	}

	st, err := reporting.GetAccountStatement(ctx, "1000", "1010", "", "")
	require.NoError(t, err)
	require.Len(t, st.Lines, 3)
	want := []string{"100.00", "300.00", "250.00"}
	for i, l := range st.Lines {
		assert.Equal(t, want[i], l.RunningBalance.StringFixed(2), "line %d", i)
	}
	assert.Equal(t, "250.00", st.ClosingBalance.StringFixed(2))

	st, err = reporting.GetAccountStatement(ctx, "1000", "1010", "2026-01-10", "2026-01-31")
	require.NoError(t, err)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, "100.00", st.OpeningBalance.StringFixed(2))
	assert.Equal(t, "300.00", st.Lines[0].RunningBalance.StringFixed(2))

	_, err = reporting.GetAccountStatement(ctx, "1000", "0000", "", "")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestReporting_ProfitLossAndBalanceSheet(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewLedger(pool, core.NewDocumentService(pool))
	reporting := core.NewReportingService(pool)
	ctx := context.Background()

	for _, in := range []core.JournalEntryInput{
		je("", "2026-01-01", dr("1010", "10000"), cr("3000", "10000")),
		je("", "2026-01-20", dr("1200", "1050"), cr("4000", "1000"), cr("2100", "50")),
		je("", "2026-02-01", dr("5100", "400"), cr("1010", "400")),
		je("", "2026-03-01", dr("5200", "300"), cr("1010", "300")),
	} {
		_, err := ledger.Post(ctx, in)
		require.NoError(t, err)
	}

	pl, err := reporting.GetProfitAndLoss(ctx, "1000", "2026-01-01", "2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", pl.TotalIncome.StringFixed(2))
	assert.Equal(t, "400.00", pl.TotalExpenses.StringFixed(2))
	assert.Equal(t, "600.00", pl.NetIncome.StringFixed(2))

	bs, err := reporting.GetBalanceSheet(ctx, "1000", "2026-03-31")
	require.NoError(t, err)
	assert.True(t, bs.IsBalanced, "assets %s != liabilities %s + equity %s", bs.TotalAssets, bs.TotalLiabilities, bs.TotalEquity)
	assert.Equal(t, "10350.00", bs.TotalAssets.StringFixed(2))
	assert.Equal(t, "50.00", bs.TotalLiabilities.StringFixed(2))
	assert.Equal(t, "300.00", bs.CurrentEarnings.StringFixed(2))

	tb, err := reporting.GetTrialBalance(ctx, "1000", "2026-01-31")
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	assert.True(t, tb.TotalDebit.Equal(decimal.NewFromInt(11050)))
}
