package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"example.com/fincap/backend/internal/analytics"
	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/models"
	"example.com/fincap/backend/internal/money"
)

type draftFile struct {
	Description string `json:"description"`
	Amount      any    `json:"amount"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	IsRecurring bool   `json:"is_recurring"`
	NextDueDate string `json:"next_due_date"`
}

type snapshotCmd struct {
	file     string
	asOf     string
	risk     string
	locale   string
	company  string
	jsonOnly bool
}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "load transactions into a fresh ledger and print the financial snapshot" }
func (*snapshotCmd) Usage() string {
	return `ledgerctl snapshot -f <drafts.json> [-as-of YYYY-MM-DD] [-risk 5000] [-locale en-US]

  Posts every draft of the JSON array to a demo user and prints the
  snapshot: cash, burn, runway, safe-to-spend and the monthly series.
  Drafts that fail validation are reported on stderr and skipped.
`
}

func (p *snapshotCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.file, "f", "", "JSON file with an array of transaction drafts.")
	f.StringVar(&p.asOf, "as-of", "2025-11-18", "The as-of date of the ledger.")
	f.StringVar(&p.risk, "risk", "5000", "The reserve floor subtracted from cash for safe-to-spend.")
	f.StringVar(&p.locale, "locale", "en-US", "Locale used to format the summary (en-US or es-MX).")
	f.StringVar(&p.company, "company", "Demo Co", "Company name of the demo user.")
	f.BoolVar(&p.jsonOnly, "json", false, "Print the full snapshot as JSON instead of a summary.")
}

func (p *snapshotCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.file == "" {
		fmt.Fprintln(os.Stderr, "missing -f")
		return subcommands.ExitUsageError
	}

	asOf, err := ledger.ParseDate(p.asOf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing -as-of: %v\n", err)
		return subcommands.ExitUsageError
	}
	risk, err := decimal.NewFromString(p.risk)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing -risk: %v\n", err)
		return subcommands.ExitUsageError
	}

	drafts, amountErrs, err := readDrafts(p.file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	store := ledger.NewStore(ledger.Config{AsOf: asOf})
	user, err := store.Register(ctx, ledger.RegisterInput{
		Email:       "demo@fincap.local",
		DisplayName: "Demo",
		CompanyName: p.company,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	results, err := store.BulkPost(ctx, user.ID, drafts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	for _, result := range results {
		if result.Err != nil {
			reason := result.Err
			if amountErr, ok := amountErrs[result.Index]; ok {
				reason = amountErr
			}
			fmt.Fprintf(os.Stderr, "draft %d skipped: %v\n", result.Index, reason)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	engine := analytics.NewEngine(store, risk, asOf, logger)
	snapshot, err := engine.ComputeSnapshot(ctx, user.ID, asOf)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if p.jsonOnly {
		return printJSON(snapshot)
	}
	printSummary(snapshot, p.locale)
	return subcommands.ExitSuccess
}

// readDrafts returns the drafts in file order. Unparseable amounts stay zero so the
// store still reports the draft by index; the parse error is returned keyed by that index.
func readDrafts(name string) ([]ledger.Draft, map[int]error, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", name, err)
	}

	var items []draftFile
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", name, err)
	}

	drafts := make([]ledger.Draft, 0, len(items))
	amountErrs := make(map[int]error)
	for i, item := range items {
		draft := ledger.Draft{
			Description: item.Description,
			Type:        models.TransactionType(item.Type),
			Category:    item.Category,
			IsRecurring: item.IsRecurring,
		}
		if draft.Amount, err = ledger.ParseAmount(item.Amount); err != nil {
			amountErrs[i] = err
		}
		if item.Date != "" {
			if draft.Date, err = ledger.ParseDate(item.Date); err != nil {
				return nil, nil, fmt.Errorf("draft %d: %w", i, err)
			}
		}
		if item.NextDueDate != "" {
			due, err := ledger.ParseDate(item.NextDueDate)
			if err != nil {
				return nil, nil, fmt.Errorf("draft %d: %w", i, err)
			}
			draft.NextDueDate = &due
		}
		drafts = append(drafts, draft)
	}
	return drafts, amountErrs, nil
}

func printSummary(snapshot analytics.Snapshot, locale string) {
	fmt.Printf("%s as of %s\n", snapshot.CompanyName, snapshot.AsOf.Format(ledger.DateLayout))
	fmt.Printf("  cash           %s\n", money.Format(snapshot.CurrentCash, locale))
	fmt.Printf("  monthly burn   %s\n", money.Format(snapshot.MonthlyBurn, locale))
	fmt.Printf("  runway         %.1f months\n", snapshot.RunwayMonths)
	fmt.Printf("  safe to spend  %s\n", money.Format(snapshot.SafeToSpend, locale))
	fmt.Println()
	for _, bucket := range snapshot.MonthlyData {
		fmt.Printf("  %s  in %14s  out %14s  burn %14s\n",
			bucket.Month,
			money.Format(bucket.Revenue, locale),
			money.Format(bucket.Expenses, locale),
			money.Format(bucket.BurnRate, locale),
		)
	}
}

func printJSON(value any) subcommands.ExitStatus {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
