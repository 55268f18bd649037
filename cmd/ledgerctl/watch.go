package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/subcommands"

	"example.com/fincap/backend/internal/config"
	"example.com/fincap/backend/internal/events"
)

type watchCmd struct {
	url        string
	exchange   string
	routingKey string
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "print ledger events published to the message broker" }
func (*watchCmd) Usage() string {
	return `ledgerctl watch [-amqp <url>] [-exchange fincap.ledger] [-key ledger_updated]

  Binds a private queue to the ledger exchange and prints every
  ledger_updated event until interrupted.
`
}

func (p *watchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.url, "amqp", os.Getenv("AMQP_URL"), "AMQP broker URL.")
	f.StringVar(&p.exchange, "exchange", "fincap.ledger", "Exchange the server publishes to.")
	f.StringVar(&p.routingKey, "key", "ledger_updated", "Routing key of ledger events.")
}

func (p *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.url == "" {
		fmt.Fprintln(os.Stderr, "missing -amqp (or AMQP_URL)")
		return subcommands.ExitUsageError
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	client, err := events.NewClient(config.EventsConfig{
		AMQPURL:    p.url,
		Exchange:   p.exchange,
		RoutingKey: p.routingKey,
	}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	err = client.Consume(ctx, func(msg *events.Message) error {
		fmt.Printf("%s %s user=%s %s\n", msg.Timestamp.Format("2006-01-02T15:04:05Z07:00"), msg.Type, msg.UserID, msg.Data)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
