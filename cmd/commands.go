package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/NgigiN/budget/internal/discord"
	"github.com/NgigiN/budget/internal/storage"
)

type serveCmd struct{}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the Discord bot and the monthly rollover" }
func (*serveCmd) Usage() string {
	return `budget serve

  Connects the Discord bot, serves /health, and rolls monthly transactions
  forward every ROLLOVER_INTERVAL until interrupted.
`
}

func (*serveCmd) SetFlags(*flag.FlagSet) {}

func (*serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a, status := openApp(args)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer a.close()

	bot, err := discord.NewBot(a.cfg, discord.Services{
		DB:       a.db,
		Expander: a.expander,
		Roller:   a.roller,
		Importer: a.importer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize the discord bot: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := bot.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start bot: %v\n", err)
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	go a.roller.Run(ctx, a.cfg.RolloverInterval)

	fmt.Println("Bot is running...")
	<-ctx.Done()

	bot.Stop()
	fmt.Println("Bot stopped.")
	return subcommands.ExitSuccess
}

type addCmd struct {
	kind        string
	value       string
	date        string
	description string
	from        uint
	to          uint
	category    uint
	monthly     bool
	update      uint
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "record a transaction, expanding monthly ones" }
func (*addCmd) Usage() string {
	return `budget add -type <type> -value <value> -desc <text> [-d <date>] [-from <id>] [-to <id>] [-cat <id>] [-monthly] [-update <id>]

  Records a transaction. A monthly transaction dated in the past is
  expanded into one transaction per elapsed month. With -update the
  transaction <id> is rewritten instead.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "type", string(storage.TypeExpense), "Transaction type (income, expense, transfer)")
	f.StringVar(&c.value, "value", "", "Amount")
	f.StringVar(&c.date, "d", "", "Date (yyyy-mm-dd), defaults to today")
	f.StringVar(&c.description, "desc", "", "Description")
	f.UintVar(&c.from, "from", 0, "Source account id")
	f.UintVar(&c.to, "to", 0, "Destination account id")
	f.UintVar(&c.category, "cat", 0, "Category id")
	f.BoolVar(&c.monthly, "monthly", false, "Repeat every month")
	f.UintVar(&c.update, "update", 0, "Rewrite this transaction instead of creating one")
}

func (c *addCmd) draft() (storage.Transaction, error) {
	value, err := decimal.NewFromString(c.value)
	if err != nil {
		return storage.Transaction{}, fmt.Errorf("invalid value %q: %w", c.value, err)
	}
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if c.date != "" {
		if date, err = time.Parse(time.DateOnly, c.date); err != nil {
			return storage.Transaction{}, fmt.Errorf("invalid date %q: %w", c.date, err)
		}
	}
	tx := storage.Transaction{
		Description: c.description,
		Type:        storage.TransactionType(c.kind),
		Value:       value,
		Date:        date,
		IsMonthly:   c.monthly,
	}
	if c.from != 0 {
		tx.SourceAccountID = storage.Ref(c.from)
	}
	if c.to != 0 {
		tx.DestinationAccountID = storage.Ref(c.to)
	}
	if c.category != 0 {
		tx.CategoryID = storage.Ref(c.category)
	}
	return tx, tx.Validate()
}

func (c *addCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	draft, err := c.draft()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	a, status := openApp(args)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer a.close()

	var rows []storage.Transaction
	if c.update != 0 {
		rows, err = a.expander.Update(ctx, draft, c.update)
	} else {
		rows, err = a.expander.Create(ctx, draft)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printTransactions(rows)
	return subcommands.ExitSuccess
}

type listCmd struct {
	account uint
	monthly bool
	series  string
	since   string
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list transactions" }
func (*listCmd) Usage() string {
	return `budget list [-account <id> | -monthly | -series <series> | -since <date>]

  Lists all transactions, or those of an account, the monthly templates,
  one recurrence series, or those dated on or after a day.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.UintVar(&c.account, "account", 0, "Only transactions leaving this account or transferred to it")
	f.BoolVar(&c.monthly, "monthly", false, "Only monthly templates")
	f.StringVar(&c.series, "series", "", "Only the occurrences of this series")
	f.StringVar(&c.since, "since", "", "Only transactions dated on or after this day (yyyy-mm-dd)")
}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a, status := openApp(args)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer a.close()

	var txs []storage.Transaction
	var err error
	switch {
	case c.account != 0:
		txs, err = a.db.Transactions.FindFrom(ctx, c.account)
	case c.monthly:
		txs, err = a.db.Transactions.FindMonthly(ctx)
	case c.series != "":
		txs, err = a.db.Transactions.FindSeries(ctx, c.series)
	case c.since != "":
		var from time.Time
		if from, err = time.Parse(time.DateOnly, c.since); err == nil {
			txs, err = a.db.Transactions.Since(ctx, from)
		}
	default:
		txs, err = a.db.Transactions.FindAllFull(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printTransactions(txs)
	return subcommands.ExitSuccess
}

type rolloverCmd struct{}

func (*rolloverCmd) Name() string     { return "rollover" }
func (*rolloverCmd) Synopsis() string { return "materialize the months owed by monthly transactions" }
func (*rolloverCmd) Usage() string {
	return `budget rollover

  Creates one transaction per month elapsed since each monthly template.
`
}

func (*rolloverCmd) SetFlags(*flag.FlagSet) {}

func (*rolloverCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a, status := openApp(args)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer a.close()

	n, err := a.roller.RollForward(ctx)
	fmt.Printf("Created %d monthly occurrences\n", n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type importCmd struct{}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import M-PESA confirmations" }
func (*importCmd) Usage() string {
	return `budget import [file...]

  Imports the M-PESA confirmations found in the files, or in stdin when no
  file is given. Confirmations already recorded are skipped.
`
}

func (*importCmd) SetFlags(*flag.FlagSet) {}

func (*importCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	var content []byte
	var err error
	if f.NArg() == 0 {
		content, err = io.ReadAll(os.Stdin)
	} else {
		for _, name := range f.Args() {
			var b []byte
			if b, err = os.ReadFile(name); err != nil {
				break
			}
			content = append(append(content, b...), '\n')
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		return subcommands.ExitFailure
	}

	a, status := openApp(args)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer a.close()

	res := a.importer.Import(ctx, string(content))
	printTransactions(res.Imported)
	for _, code := range res.Skipped {
		fmt.Printf("skipped %s: already recorded\n", code)
	}
	for _, failure := range res.Failed {
		fmt.Fprintln(os.Stderr, failure.Error())
	}
	if len(res.Failed) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
