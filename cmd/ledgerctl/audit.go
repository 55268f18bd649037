package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fincap/backend/internal/repository"
)

type auditCmd struct {
	dsn         string
	user        string
	requestType string
	failedOnly  bool
	limit       int
}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "list recent AI requests from the audit log" }
func (*auditCmd) Usage() string {
	return `ledgerctl audit [-dsn <postgres-url>] [-user <uuid>] [-type chat_turn|document_analysis] [-failed] [-n 20]

  Prints the most recent AI requests recorded by the server when
  DB_ENABLED=true. The DSN defaults to DATABASE_URL.
`
}

func (p *auditCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.dsn, "dsn", os.Getenv("DATABASE_URL"), "PostgreSQL connection string.")
	f.StringVar(&p.user, "user", "", "Only requests of this user id.")
	f.StringVar(&p.requestType, "type", "", "Only requests of this type.")
	f.BoolVar(&p.failedOnly, "failed", false, "Only failed requests.")
	f.IntVar(&p.limit, "n", 20, "Maximum number of records.")
}

func (p *auditCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.dsn == "" {
		fmt.Fprintln(os.Stderr, "missing -dsn (or DATABASE_URL)")
		return subcommands.ExitUsageError
	}
	if p.limit <= 0 {
		fmt.Fprintln(os.Stderr, "-n must be greater than 0")
		return subcommands.ExitUsageError
	}

	var filter repository.AIRequestFilter
	if p.user != "" {
		userID, err := uuid.Parse(p.user)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing -user: %v\n", err)
			return subcommands.ExitUsageError
		}
		filter.UserID = &userID
	}
	if p.requestType != "" {
		filter.RequestType = &p.requestType
	}
	if p.failedOnly {
		failed := false
		filter.Success = &failed
	}

	pool, err := pgxpool.New(ctx, p.dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer pool.Close()

	records, err := repository.NewAIRepository(pool).ListRecent(ctx, filter, p.limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	return printJSON(records)
}
