package core_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"bookkeeper/internal/core"
	"bookkeeper/internal/db"
	"bookkeeper/internal/logging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err, "failed to connect to test database")
	require.NoError(t, db.Migrate(ctx, pool, logging.Discard()))

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE backups, reminders, compliance_tasks, feedback, referral_redemptions, referral_codes,
			invitations, users, receipts, invoice_lines, invoices, account_rules, journal_lines, journal_entries,
			document_sequences, documents, accounts, companies RESTART IDENTITY CASCADE;

		INSERT INTO companies (company_code, name, name_ar, base_currency, trn, vat_registered, vat_rate)
		VALUES ('1000', 'Test Trading LLC', 'شركة الاختبار للتجارة', 'AED', '100000000000003', true, 5.00);
	`)
	require.NoError(t, err, "failed to seed test database")

	_, err = core.NewAccountService(pool).SeedDefaultChart(ctx, "1000")
	require.NoError(t, err, "failed to seed default chart")

	return pool
}

func je(key string, date string, lines ...core.EntryLine) core.JournalEntryInput {
	return core.JournalEntryInput{
		CompanyCode:    "1000",
		PostingDate:    date,
		Currency:       "AED",
		Memo:           "test entry",
		IdempotencyKey: key,
		Lines:          lines,
	}
}

func dr(code, amount string) core.EntryLine {
	return core.EntryLine{AccountCode: code, Debit: decimal.RequireFromString(amount)}
}

func cr(code, amount string) core.EntryLine {
	return core.EntryLine{AccountCode: code, Credit: decimal.RequireFromString(amount)}
}

func TestLedger_PostAndGet(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewLedger(pool, core.NewDocumentService(pool))
	ctx := context.Background()

	entry, err := ledger.Post(ctx, je("", "2026-01-05", dr("5100", "4000"), cr("1010", "4000")))
	require.NoError(t, err)
	assert.Equal(t, "JE-GLOBAL-00001", entry.EntryNumber)
	require.Len(t, entry.Lines, 2)

	got, err := ledger.GetEntry(ctx, "1000", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.EntryNumber, got.EntryNumber)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "5100", got.Lines[0].AccountCode)
	assert.True(t, got.Lines[0].DebitBase.Equal(decimal.NewFromInt(4000)))
	assert.True(t, got.Lines[1].CreditBase.Equal(decimal.NewFromInt(4000)))

	second, err := ledger.Post(ctx, je("", "2026-01-06", dr("5300", "120"), cr("1000", "120")))
	require.NoError(t, err)
	assert.Equal(t, "JE-GLOBAL-00002", second.EntryNumber)

	entries, err := ledger.ListEntries(ctx, "1000", "2026-01-06", "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.ID, entries[0].ID)
}

func TestLedger_Idempotency(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewLedger(pool, core.NewDocumentService(pool))
	ctx := context.Background()

	key := uuid.NewString()
	in := je(key, "2026-01-05", dr("1010", "150"), cr("3000", "150"))

	_, err := ledger.Post(ctx, in)
	require.NoError(t, err)

	_, err = ledger.Post(ctx, in)
	require.ErrorIs(t, err, core.ErrConflict)

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM journal_entries").Scan(&count))
	assert.Equal(t, 1, count)

	// The rolled back attempt released its number.
	next, err := ledger.Post(ctx, je("", "2026-01-06", dr("1010", "1"), cr("3000", "1")))
	require.NoError(t, err)
	assert.Equal(t, "JE-GLOBAL-00002", next.EntryNumber)
}

func TestLedger_IdempotencyKeyIsPerCompany(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewLedger(pool, core.NewDocumentService(pool))
	ctx := context.Background()

	_, err := pool.Exec(ctx, "INSERT INTO companies (company_code, name) VALUES ('2000', 'Other Company')")
	require.NoError(t, err)
	_, err = core.NewAccountService(pool).SeedDefaultChart(ctx, "2000")
	require.NoError(t, err)

	key := uuid.NewString()
	_, err = ledger.Post(ctx, je(key, "2026-01-05", dr("1010", "10"), cr("3000", "10")))
	require.NoError(t, err)

	other := je(key, "2026-01-05", dr("1010", "20"), cr("3000", "20"))
	other.CompanyCode = "2000"
	entry, err := ledger.Post(ctx, other)
	require.NoError(t, err, "another company may use the same key")
	assert.Equal(t, companyIDOf(t, pool, "2000"), entry.CompanyID)

	_, err = ledger.Post(ctx, other)
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestLedger_Reversal(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewLedger(pool, core.NewDocumentService(pool))
	ctx := context.Background()

	in := je("", "2026-02-01", dr("1010", "500"), cr("4000", "500"))
	in.Currency = "USD"
	in.ExchangeRate = decimal.RequireFromString("3.6725")
	original, err := ledger.Post(ctx, in)
	require.NoError(t, err)

	rev, err := ledger.Reverse(ctx, "1000", original.ID, "")
	require.NoError(t, err)
	require.NotNil(t, rev.ReversedEntryID)
	assert.Equal(t, original.ID, *rev.ReversedEntryID)
	require.Len(t, rev.Lines, 2)
	assert.True(t, rev.Lines[0].CreditBase.Equal(original.Lines[0].DebitBase))
	assert.True(t, rev.Lines[1].DebitBase.Equal(original.Lines[1].CreditBase))

	_, err = ledger.Reverse(ctx, "1000", original.ID, "again")
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = ledger.Reverse(ctx, "1000", rev.ID, "reverse the reversal")
	assert.ErrorIs(t, err, core.ErrConflict)

	balances, err := ledger.GetBalances(ctx, "1000")
	require.NoError(t, err)
	for _, b := range balances {
		assert.True(t, b.Balance.IsZero(), "account %s not cleared: %s", b.Code, b.Balance)
	}
}

func TestLedger_ConcurrentReversal(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewLedger(pool, core.NewDocumentService(pool))
	ctx := context.Background()

	original, err := ledger.Post(ctx, je("", "2026-02-01", dr("1010", "75"), cr("4000", "75")))
	require.NoError(t, err)

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Reverse(ctx, "1000", original.ID, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, core.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestLedger_CrossCompanyScoping(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewLedger(pool, core.NewDocumentService(pool))
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO companies (company_code, name) VALUES ('2000', 'Other Company');
		INSERT INTO accounts (company_id, code, name, type)
		SELECT id, '7777', 'Other Cash', 'asset' FROM companies WHERE company_code = '2000';
	`)
	require.NoError(t, err)

	_, err = ledger.Post(ctx, je("", "2026-01-05", dr("7777", "100"), cr("4000", "100")))
	require.ErrorIs(t, err, core.ErrInvalid)
	assert.Contains(t, err.Error(), "account code 7777 not found for company 1000")

	first, err := ledger.Post(ctx, je("", "2026-01-05", dr("1010", "100"), cr("4000", "100")))
	require.NoError(t, err)
	_, err = ledger.GetEntry(ctx, "2000", first.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLedger_RejectsBadEntries(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewLedger(pool, core.NewDocumentService(pool))
	accounts := core.NewAccountService(pool)
	ctx := context.Background()

	require.NoError(t, accounts.Deactivate(ctx, "1000", "5950"))

	_, err := ledger.Post(ctx, je("", "2026-01-05", dr("5950", "10"), cr("1000", "10")))
	assert.ErrorIs(t, err, core.ErrInvalid)

	_, err = ledger.Post(ctx, je("", "2026-01-05", dr("5100", "10"), cr("1000", "9")))
	assert.ErrorIs(t, err, core.ErrUnbalanced)

	_, err = ledger.Post(ctx, je("", "2026-01-05", dr("5100", "10")))
	assert.ErrorIs(t, err, core.ErrTooFewLines)

	_, err = ledger.Post(ctx, core.JournalEntryInput{CompanyCode: "9999", PostingDate: "2026-01-05", Currency: "AED",
		Lines: []core.EntryLine{dr("5100", "1"), cr("1000", "1")}})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLedger_ValidateRollsBack(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewLedger(pool, core.NewDocumentService(pool))
	ctx := context.Background()

	require.NoError(t, ledger.Validate(ctx, je("", "2026-01-05", dr("5100", "10"), cr("1000", "10"))))

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM journal_entries").Scan(&count))
	assert.Zero(t, count)

	entry, err := ledger.Post(ctx, je("", "2026-01-05", dr("5100", "10"), cr("1000", "10")))
	require.NoError(t, err)
	assert.Equal(t, "JE-GLOBAL-00001", entry.EntryNumber)
}

func TestLedger_GetBalances(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := core.NewLedger(pool, core.NewDocumentService(pool))
	ctx := context.Background()

	_, err := ledger.Post(ctx, je("", "2023-10-01", dr("1000", "250"), cr("4000", "250")))
	require.NoError(t, err)

	balances, err := ledger.GetBalances(ctx, "1000")
	require.NoError(t, err)

	balanceMap := make(map[string]string)
	for _, b := range balances {
		balanceMap[b.Code] = b.Balance.StringFixed(2)
	}
	assert.Equal(t, "250.00", balanceMap["1000"])
	assert.Equal(t, "-250.00", balanceMap["4000"])
	assert.Equal(t, "0.00", balanceMap["5100"])
}
