// Package cli is the bookkeeper command line: the HTTP server, migrations and
// one-shot maintenance commands.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"bookkeeper/internal/app"
	"bookkeeper/internal/config"
	"bookkeeper/internal/core"
	"bookkeeper/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Env is what commands run against. Open connects to the database and builds
// the application; the returned func releases it.
type Env struct {
	Config *config.Config
	Log    *logrus.Logger
	Open   func(ctx context.Context) (app.ApplicationService, func(), error)
}

// NewRootCommand creates the root CLI command with all subcommands registered.
// env is filled in by the root's PersistentPreRunE unless load is nil, which
// tests use to supply their own.
func NewRootCommand(env *Env, load func() (*config.Config, error)) *cobra.Command {
	root := &cobra.Command{
		Use:   "bookkeeper",
		Short: "Bookkeeping and VAT backend for UAE small businesses",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if load == nil {
				return nil
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			env.Config = cfg
			env.Log = logging.New(cfg.LogLevel, cfg.LogFormat)
			if env.Open == nil {
				env.Open = openApp(env)
			}
			return nil
		},
	}

	root.AddCommand(
		newServeCommand(env),
		newMigrateCommand(env),
		newCheckEntryCommand(),
		newVATDeadlinesCommand(env),
		newBackupCommand(env),
		newRemindersCommand(env),
		newCompanyCommand(env),
	)
	return root
}

func newCheckEntryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-entry",
		Short: "Check that journal lines read from stdin balance",
		Long: `Reads one JSON line per journal line from stdin, for example
  {"account_code":"5100","debit":"5000"}
  {"account_code":"1010","credit":"5000"}
and prints the totals. Exits non-zero when the entry would be rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := readEntryLines(cmd.InOrStdin())
			if err != nil {
				return err
			}
			check, err := core.ValidateBalance(lines)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "lines        %d\n", check.LineCount)
			fmt.Fprintf(out, "total debit  %s\n", check.TotalDebit.StringFixed(2))
			fmt.Fprintf(out, "total credit %s\n", check.TotalCredit.StringFixed(2))
			fmt.Fprintf(out, "discrepancy  %s\n", check.Discrepancy.StringFixed(2))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "balanced")
			return nil
		},
	}
}

// readEntryLines decodes JSON lines, skipping blanks.
func readEntryLines(r io.Reader) ([]core.EntryLine, error) {
	var lines []core.EntryLine
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var l core.EntryLine
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		lines = append(lines, l)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return lines, nil
}

func newVATDeadlinesCommand(env *Env) *cobra.Command {
	var year int
	var company string

	cmd := &cobra.Command{
		Use:   "vat-deadlines",
		Short: "List the quarterly VAT return deadlines of a year",
		Long:  "Prints the four return periods. With --company the matching compliance tasks are created.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, p := range core.VATDeadlines(year) {
				fmt.Fprintf(out, "Q%d  %s .. %s  due %s\n", p.Quarter, p.Start, p.End, p.DueDate)
			}
			if company == "" {
				return nil
			}
			svc, closeFn, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := svc.GenerateVATTasks(cmd.Context(), company, year)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d compliance task(s) created for %s\n", n, company)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "calendar year (required)")
	_ = cmd.MarkFlagRequired("year")
	cmd.Flags().StringVar(&company, "company", "", "create the tasks for this company code")
	return cmd
}

func newBackupCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Company snapshots",
	}

	var company string
	create := &cobra.Command{
		Use:   "create",
		Short: "Snapshot a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			b, err := svc.CreateBackup(cmd.Context(), company, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup %d  %d bytes  sha256 %s\n", b.ID, b.SizeBytes, b.Checksum)
			return nil
		},
	}
	create.Flags().StringVar(&company, "company", "", "company code (required)")
	_ = create.MarkFlagRequired("company")

	cmd.AddCommand(create)
	return cmd
}

func newRemindersCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Due-date reminders",
	}

	var company, asOf string
	var leadDays int
	run := &cobra.Command{
		Use:   "run",
		Short: "Record reminders for one company or all of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if !cmd.Flags().Changed("lead-days") && env.Config != nil {
				leadDays = env.Config.ReminderLeadDays
			}
			codes := []string{company}
			if company == "" {
				companies, err := svc.ListCompanies(cmd.Context())
				if err != nil {
					return err
				}
				codes = codes[:0]
				for _, c := range companies {
					codes = append(codes, c.CompanyCode)
				}
			}

			var errs []error
			for _, code := range codes {
				n, err := svc.RunReminders(cmd.Context(), code, asOf, leadDays)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", code, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %d new reminder(s)\n", code, n)
			}
			return errors.Join(errs...)
		},
	}
	run.Flags().StringVar(&company, "company", "", "company code (default all)")
	run.Flags().StringVar(&asOf, "as-of", "", "scan date YYYY-MM-DD (default today)")
	run.Flags().IntVar(&leadDays, "lead-days", 7, "days ahead of a due date to remind")

	cmd.AddCommand(run)
	return cmd
}

func newCompanyCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Companies",
	}

	var req app.CreateCompanyRequest
	var vatRegistered bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a company with the default chart and its owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			req.Company.VATRegistered = vatRegistered
			c, err := svc.CreateCompany(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "company %s (%s) created, owner %s\n", c.CompanyCode, c.Name, req.OwnerUsername)
			return nil
		},
	}
	f := create.Flags()
	f.StringVar(&req.Company.CompanyCode, "code", "", "company code (required)")
	f.StringVar(&req.Company.Name, "name", "", "legal name (required)")
	f.StringVar(&req.Company.NameAR, "name-ar", "", "Arabic name")
	f.StringVar(&req.Company.TRN, "trn", "", "tax registration number")
	f.BoolVar(&vatRegistered, "vat-registered", false, "company is registered for VAT")
	f.StringVar(&req.OwnerUsername, "owner", "", "owner username (required)")
	f.StringVar(&req.OwnerEmail, "email", "", "owner email")
	f.StringVar(&req.OwnerPassword, "password", "", "owner password (required)")
	for _, name := range []string{"code", "name", "owner", "password"} {
		_ = create.MarkFlagRequired(name)
	}

	cmd.AddCommand(create)
	return cmd
}
