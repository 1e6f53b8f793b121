package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/NgigiN/budget/internal/config"
	"github.com/NgigiN/budget/internal/importer"
	"github.com/NgigiN/budget/internal/recurrence"
	"github.com/NgigiN/budget/internal/storage"
)

// app bundles the services every command works with.
type app struct {
	cfg      *config.Config
	db       *storage.Database
	expander *recurrence.Expander
	roller   *recurrence.Roller
	importer *importer.Importer
}

func openApp(args []interface{}) (*app, subcommands.ExitStatus) {
	cfg := args[0].(*config.Config)
	db, err := storage.NewDatabase(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize the database: %v\n", err)
		return nil, subcommands.ExitFailure
	}
	expander := recurrence.NewExpander(db.Transactions)
	return &app{
		cfg:      cfg,
		db:       db,
		expander: expander,
		roller:   recurrence.NewRoller(db.Transactions, expander),
		importer: importer.New(db.Transactions, expander, db.Accounts, db.Categories, cfg.ImportAccount),
	}, subcommands.ExitSuccess
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close the database: %v\n", err)
	}
}

func printTransactions(txs []storage.Transaction) {
	if len(txs) == 0 {
		fmt.Println("No transactions found.")
		return
	}
	for _, tx := range txs {
		line := []string{
			fmt.Sprintf("%5d", tx.ID),
			tx.Date.Format(time.DateOnly),
			fmt.Sprintf("%12s", tx.Value.StringFixed(2)),
			fmt.Sprintf("%-8s", tx.Type),
			tx.Description,
		}
		if tx.SourceAccount != nil {
			line = append(line, "from:"+tx.SourceAccount.Name)
		}
		if tx.DestinationAccount != nil {
			line = append(line, "to:"+tx.DestinationAccount.Name)
		}
		if tx.Category != nil {
			line = append(line, "cat:"+tx.Category.Name)
		}
		if tx.IsMonthly {
			line = append(line, "monthly")
		}
		fmt.Println(strings.Join(line, "  "))
	}
}
