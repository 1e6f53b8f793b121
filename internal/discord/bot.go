package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"

	"github.com/NgigiN/budget/internal/config"
	"github.com/NgigiN/budget/internal/importer"
	"github.com/NgigiN/budget/internal/mpesa"
	"github.com/NgigiN/budget/internal/recurrence"
	"github.com/NgigiN/budget/internal/storage"
)

const listLimit = 10

type Bot struct {
	session    *discordgo.Session
	db         *storage.Database
	expander   *recurrence.Expander
	roller     *recurrence.Roller
	importer   *importer.Importer
	channelID  string
	healthAddr string
	startTime  time.Time
	health     *http.Server
}

// Services are the pieces of the application the bot drives.
type Services struct {
	DB       *storage.Database
	Expander *recurrence.Expander
	Roller   *recurrence.Roller
	Importer *importer.Importer
}

func NewBot(cfg *config.Config, svc Services) (*Bot, error) {
	if err := cfg.RequireDiscord(); err != nil {
		return nil, err
	}
	session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	bot := newBot(svc, cfg.DiscordChannelId)
	bot.session = session
	bot.healthAddr = cfg.HealthAddr

	session.AddHandler(bot.handleMessage)
	session.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	return bot, nil
}

func newBot(svc Services, channelID string) *Bot {
	return &Bot{
		db:        svc.DB,
		expander:  svc.Expander,
		roller:    svc.Roller,
		importer:  svc.Importer,
		channelID: channelID,
		startTime: time.Now(),
	}
}

func (b *Bot) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", b.handleHealth)
	b.health = &http.Server{Addr: b.healthAddr, Handler: mux}
	go b.serveHealth()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

func (b *Bot) Stop() {
	b.session.Close()
	b.health.Close()
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return //bot's messages
	}
	if m.ChannelID != b.channelID {
		return //specific to the channel
	}

	reply := b.dispatch(context.Background(), m.Content)
	if reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		log.Printf("failed to reply in %s: %v", m.ChannelID, err)
	}
}

// dispatch runs the command held by content and returns the reply.
func (b *Bot) dispatch(ctx context.Context, content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "!") {
		return b.handleImport(ctx, content)
	}

	args := strings.Fields(content)
	cmd, args := strings.ToLower(args[0]), args[1:]
	var reply string
	var err error
	switch cmd {
	case "!add":
		reply, err = b.handleAdd(ctx, args)
	case "!edit":
		reply, err = b.handleEdit(ctx, args)
	case "!show":
		reply, err = b.handleShow(ctx, args)
	case "!list":
		reply, err = b.handleList(ctx, args)
	case "!monthly":
		reply, err = b.handleMonthly(ctx)
	case "!account":
		reply, err = b.handleAccount(ctx, args)
	case "!series":
		reply, err = b.handleSeries(ctx, args)
	case "!stop":
		reply, err = b.handleStop(ctx, args)
	case "!accounts":
		reply, err = handleNamed(ctx, b.db.Accounts, args, "Accounts",
			func(name string) *storage.Account { return &storage.Account{Name: name} },
			func(a storage.Account) (uint, string) { return a.ID, a.Name })
	case "!categories":
		reply, err = handleNamed(ctx, b.db.Categories, args, "Categories",
			func(name string) *storage.Category { return &storage.Category{Name: name} },
			func(c storage.Category) (uint, string) { return c.ID, c.Name })
	case "!summary":
		reply, err = b.handleSummary(ctx, args)
	case "!rollover":
		reply, err = b.handleRollover(ctx)
	case "!help":
		reply = usage
	default:
		reply = fmt.Sprintf("Unknown command %s.\n%s", cmd, usage)
	}
	if err != nil {
		return "Error: " + err.Error()
	}
	return reply
}

func (b *Bot) handleAdd(ctx context.Context, args []string) (string, error) {
	draft, err := parseDraft(args)
	if err != nil {
		return "", err
	}
	rows, err := b.expander.Create(ctx, draft)
	if err != nil {
		return "", err
	}
	return formatList(fmt.Sprintf("Saved %d transaction(s)", len(rows)), rows, 0), nil
}

func (b *Bot) handleEdit(ctx context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "", errors.New("missing transaction id")
	}
	id, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	draft, err := parseDraft(args[1:])
	if err != nil {
		return "", err
	}
	rows, err := b.expander.Update(ctx, draft, id)
	if err != nil {
		return "", err
	}
	return formatList(fmt.Sprintf("Updated %d transaction(s)", len(rows)), rows, 0), nil
}

func (b *Bot) handleShow(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: !show <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	tx, err := b.db.Transactions.FindOneFull(ctx, id)
	if err != nil {
		return "", err
	}
	reply := formatTransaction(*tx)
	if tx.SeriesID != "" {
		reply += "\nseries " + tx.SeriesID
	}
	return reply, nil
}

func (b *Bot) handleList(ctx context.Context, args []string) (string, error) {
	limit := listLimit
	if len(args) == 1 {
		n, err := parseID(args[0])
		if err != nil {
			return "", err
		}
		limit = int(n)
	}
	txs, err := b.db.Transactions.FindAllFull(ctx)
	if err != nil {
		return "", err
	}
	return formatList("Transactions", txs, limit), nil
}

func (b *Bot) handleMonthly(ctx context.Context) (string, error) {
	txs, err := b.db.Transactions.FindMonthly(ctx)
	if err != nil {
		return "", err
	}
	return formatList("Monthly transactions", txs, 0), nil
}

func (b *Bot) handleAccount(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: !account <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	acc, err := b.db.Accounts.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	txs, err := b.db.Transactions.FindFrom(ctx, id)
	if err != nil {
		return "", err
	}
	return formatList("Transactions from "+acc.Name, txs, listLimit), nil
}

func (b *Bot) handleSeries(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: !series <series>")
	}
	txs, err := b.db.Transactions.FindSeries(ctx, args[0])
	if err != nil {
		return "", err
	}
	return formatList("Series "+args[0], txs, 0), nil
}

func (b *Bot) handleStop(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: !stop <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	if err := b.db.Transactions.SetNonMonthly(ctx, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("Transaction #%d no longer repeats.", id), nil
}

// handleSummary totals every category, or lists one category with "!summary <name>".
func (b *Bot) handleSummary(ctx context.Context, args []string) (string, error) {
	if len(args) > 0 {
		return b.handleCategorySummary(ctx, strings.Join(args, " "))
	}
	totals, err := b.db.Transactions.SummarizeByCategory(ctx)
	if err != nil {
		return "", err
	}
	if len(totals) == 0 {
		return "No transactions found.", nil
	}

	byType := make(map[storage.TransactionType]decimal.Decimal)
	var sb strings.Builder
	sb.WriteString("**Transaction Summary**\n\n")
	for _, t := range totals {
		name := t.Name
		if name == "" {
			name = "uncategorized"
		}
		fmt.Fprintf(&sb, "**%s** %s: %s (%d)\n", name, t.Type, t.Total.StringFixed(2), t.Count)
		byType[t.Type] = byType[t.Type].Add(t.Total)
	}
	sb.WriteString("\n")
	for _, typ := range []storage.TransactionType{storage.TypeIncome, storage.TypeExpense, storage.TypeTransfer} {
		if total, ok := byType[typ]; ok {
			fmt.Fprintf(&sb, "**Total %s**: %s\n", typ, total.StringFixed(2))
		}
	}
	return sb.String(), nil
}

func (b *Bot) handleCategorySummary(ctx context.Context, name string) (string, error) {
	cat, err := b.db.Categories.FindOne(ctx, storage.Category{Name: name})
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Sprintf("No category named %q. Type !categories to list them.", name), nil
	}
	if err != nil {
		return "", err
	}
	txs, err := b.db.Transactions.FindByCategory(ctx, cat.ID)
	if err != nil {
		return "", err
	}
	if len(txs) == 0 {
		return fmt.Sprintf("No transactions found for category: %s", cat.Name), nil
	}

	var total decimal.Decimal
	for _, tx := range txs {
		total = total.Add(tx.Value)
	}
	reply := formatList(cat.Name+" Transactions", txs, listLimit)
	return reply + fmt.Sprintf("**Total %s**: %s (%d transactions)", cat.Name, total.StringFixed(2), len(txs)), nil
}

func (b *Bot) handleRollover(ctx context.Context) (string, error) {
	n, err := b.roller.RollForward(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created %d monthly occurrence(s).", n), nil
}

// handleNamed lists accounts or categories, or creates one with "add <name>".
func handleNamed[T any](ctx context.Context, p *storage.Proxy[T], args []string, title string, build func(string) *T, show func(T) (uint, string)) (string, error) {
	if len(args) >= 2 && strings.EqualFold(args[0], "add") {
		v := build(strings.Join(args[1:], " "))
		if err := p.Create(ctx, v); err != nil {
			return "", err
		}
		id, name := show(*v)
		return fmt.Sprintf("Created #%d %s", id, name), nil
	}

	all, err := p.FindAll(ctx)
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return fmt.Sprintf("No %s yet.", strings.ToLower(title)), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n", title)
	for _, v := range all {
		id, name := show(v)
		fmt.Fprintf(&sb, "#%d %s\n", id, name)
	}
	return sb.String(), nil
}

func (b *Bot) handleImport(ctx context.Context, content string) string {
	if len(mpesa.Split(content)) == 0 {
		return "Invalid M-PESA message. Type !help for commands."
	}
	res := b.importer.Import(ctx, content)

	var sb strings.Builder
	sb.WriteString("**Import complete**\n")
	fmt.Fprintf(&sb, "Saved: %d transactions\n", len(res.Imported))
	if len(res.Skipped) > 0 {
		fmt.Fprintf(&sb, "Already recorded: %s\n", strings.Join(res.Skipped, ", "))
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(&sb, "Failed: %d\n", len(res.Failed))
		for _, f := range res.Failed {
			fmt.Fprintf(&sb, "- %s\n", f.Error())
		}
	}
	for _, tx := range res.Imported {
		sb.WriteString(formatTransaction(tx))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *Bot) serveHealth() {
	if err := b.health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("health server: %v", err)
	}
}

func (b *Bot) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(b.startTime)
	status := "healthy"
	connected := b.session != nil && b.session.State != nil

	if !connected {
		status = "unhealthy"
	}
	if _, err := b.db.Transactions.FindMonthly(r.Context()); err != nil {
		status = "unhealthy"
	}

	response := fmt.Sprintf(`{
			"status": "%s",
			"uptime": "%s",
			"discord_connected": %t,
			"timestamp": "%s"
		}`, status, uptime.String(), connected, time.Now().Format(time.RFC3339))

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write([]byte(response))
}
