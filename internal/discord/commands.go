package discord

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NgigiN/budget/internal/storage"
)

const usage = "Usage:\n" +
	"`!add <type> <value> <yyyy-mm-dd> <description> [from=<account>] [to=<account>] [cat=<category>] [monthly]`\n" +
	"`!edit <id> <type> <value> <yyyy-mm-dd> <description> [...]`\n" +
	"`!show <id>` `!list [n]` `!monthly` `!account <id>` `!series <series>` `!stop <id>`\n" +
	"`!accounts [add <name>]` `!categories [add <name>]` `!summary [category]` `!rollover`\n" +
	"Paste M-PESA confirmations (with optional `c:` and `r:` lines) to import them."

// parseDraft reads "<type> <value> <date> <description...>" followed or
// interleaved with from=, to=, cat= references and the monthly keyword.
func parseDraft(args []string) (storage.Transaction, error) {
	var tx storage.Transaction
	var positional []string
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok {
			if strings.EqualFold(arg, "monthly") {
				tx.IsMonthly = true
				continue
			}
			positional = append(positional, arg)
			continue
		}
		id, err := strconv.ParseUint(val, 10, 0)
		if err != nil {
			return tx, fmt.Errorf("invalid %s reference %q", key, val)
		}
		ref := storage.Ref(uint(id))
		switch strings.ToLower(key) {
		case "from":
			tx.SourceAccountID = ref
		case "to":
			tx.DestinationAccountID = ref
		case "cat":
			tx.CategoryID = ref
		default:
			return tx, fmt.Errorf("unknown option %q", key)
		}
	}

	if len(positional) < 4 {
		return tx, fmt.Errorf("expected type, value, date and description")
	}
	tx.Type = storage.TransactionType(strings.ToLower(positional[0]))
	value, err := decimal.NewFromString(positional[1])
	if err != nil {
		return tx, fmt.Errorf("invalid value %q", positional[1])
	}
	tx.Value = value
	date, err := time.Parse(time.DateOnly, positional[2])
	if err != nil {
		return tx, fmt.Errorf("invalid date %q, want yyyy-mm-dd", positional[2])
	}
	tx.Date = date
	tx.Description = strings.Join(positional[3:], " ")
	return tx, tx.Validate()
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(id), nil
}

func formatTransaction(tx storage.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s **%s** %s %q", tx.ID, tx.Date.Format(time.DateOnly), tx.Value.StringFixed(2), tx.Type, tx.Description)
	if tx.SourceAccount != nil {
		fmt.Fprintf(&b, " from %s", tx.SourceAccount.Name)
	}
	if tx.DestinationAccount != nil {
		fmt.Fprintf(&b, " to %s", tx.DestinationAccount.Name)
	}
	if tx.Category != nil {
		fmt.Fprintf(&b, " [%s]", tx.Category.Name)
	}
	if tx.IsMonthly {
		b.WriteString(" (monthly)")
	}
	return b.String()
}

// formatList renders the last limit transactions, oldest first.
func formatList(title string, txs []storage.Transaction, limit int) string {
	if len(txs) == 0 {
		return "No transactions found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", title)
	shown := txs
	if limit > 0 && len(txs) > limit {
		shown = txs[len(txs)-limit:]
		fmt.Fprintf(&b, "... %d older transactions\n", len(txs)-limit)
	}
	for _, tx := range shown {
		b.WriteString(formatTransaction(tx))
		b.WriteString("\n")
	}
	return b.String()
}
