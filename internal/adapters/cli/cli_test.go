package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"bookkeeper/internal/app"
	"bookkeeper/internal/config"
	"bookkeeper/internal/core"
	"bookkeeper/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubApp struct {
	app.ApplicationService
	companies []core.Company
	reminded  map[string]int
	created   *app.CreateCompanyRequest
	vatYear   int
	closed    bool
}

func (s *stubApp) ListCompanies(context.Context) ([]core.Company, error) {
	return s.companies, nil
}

func (s *stubApp) RunReminders(_ context.Context, code, _ string, leadDays int) (int, error) {
	if code == "bad" {
		return 0, errors.New("company bad not found")
	}
	s.reminded[code] = leadDays
	return 1, nil
}

func (s *stubApp) CreateCompany(_ context.Context, req app.CreateCompanyRequest) (*core.Company, error) {
	s.created = &req
	c := req.Company
	return &c, nil
}

func (s *stubApp) GenerateVATTasks(_ context.Context, _ string, year int) (int, error) {
	s.vatYear = year
	return 4, nil
}

func run(t *testing.T, stub *stubApp, stdin string, args ...string) (string, error) {
	t.Helper()
	env := &Env{
		Config: &config.Config{ReminderLeadDays: 10},
		Log:    logging.Discard(),
		Open: func(context.Context) (app.ApplicationService, func(), error) {
			return stub, func() { stub.closed = true }, nil
		},
	}
	root := NewRootCommand(env, nil)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheckEntry(t *testing.T) {
	out, err := run(t, &stubApp{}, `{"account_code":"5100","debit":"5000"}

{"account_code":"1010","credit":"4999.995"}
`, "check-entry")
	require.NoError(t, err)
	assert.Contains(t, out, "lines        2")
	assert.Contains(t, out, "total debit  5000.00")
	assert.Contains(t, out, "balanced")
}

func TestCheckEntryRejects(t *testing.T) {
	_, err := run(t, &stubApp{}, `{"account_code":"5100","debit":"100"}
{"account_code":"1010","credit":"99.99"}`, "check-entry")
	assert.ErrorIs(t, err, core.ErrUnbalanced)

	_, err = run(t, &stubApp{}, `{"account_code":"5100","debit":"0"}`, "check-entry")
	assert.ErrorIs(t, err, core.ErrTooFewLines)

	_, err = run(t, &stubApp{}, `not json`, "check-entry")
	assert.ErrorContains(t, err, "line 1")
}

func TestVATDeadlines(t *testing.T) {
	stub := &stubApp{}
	out, err := run(t, stub, "", "vat-deadlines", "--year", "2026")
	require.NoError(t, err)
	assert.Contains(t, out, "Q1  2026-01-01 .. 2026-03-31  due 2026-04-28")
	assert.Contains(t, out, "Q4  2026-10-01 .. 2026-12-31  due 2027-01-28")
	assert.Zero(t, stub.vatYear, "no company, no tasks")

	out, err = run(t, stub, "", "vat-deadlines", "--year", "2026", "--company", "1000")
	require.NoError(t, err)
	assert.Equal(t, 2026, stub.vatYear)
	assert.Contains(t, out, "4 compliance task(s) created for 1000")
	assert.True(t, stub.closed)

	_, err = run(t, stub, "", "vat-deadlines")
	assert.Error(t, err, "--year is required")
}

func TestRemindersRunAllCompanies(t *testing.T) {
	stub := &stubApp{
		companies: []core.Company{{CompanyCode: "1000"}, {CompanyCode: "bad"}, {CompanyCode: "2000"}},
		reminded:  map[string]int{},
	}
	out, err := run(t, stub, "", "reminders", "run")
	assert.ErrorContains(t, err, "bad")
	assert.Equal(t, map[string]int{"1000": 10, "2000": 10}, stub.reminded, "lead days come from config")
	assert.Contains(t, out, "2000  1 new reminder(s)")

	stub.reminded = map[string]int{}
	_, err = run(t, stub, "", "reminders", "run", "--company", "1000", "--lead-days", "3")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"1000": 3}, stub.reminded)
}

func TestCompanyCreate(t *testing.T) {
	stub := &stubApp{}
	out, err := run(t, stub, "", "company", "create",
		"--code", "1000", "--name", "Al Noor Trading LLC", "--vat-registered", "--trn", "100234567800003",
		"--owner", "fatima", "--password", "s3cret-pass")
	require.NoError(t, err)
	require.NotNil(t, stub.created)
	assert.True(t, stub.created.Company.VATRegistered)
	assert.Equal(t, "fatima", stub.created.OwnerUsername)
	assert.Contains(t, out, "company 1000 (Al Noor Trading LLC) created")

	_, err = run(t, &stubApp{}, "", "company", "create", "--code", "1000")
	assert.Error(t, err)
}
