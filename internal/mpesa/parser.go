package mpesa

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells which way the money moved.
type Direction string

const (
	Sent     Direction = "sent"
	Paid     Direction = "paid"
	Received Direction = "received"
)

// Outgoing reports whether money left the wallet.
func (d Direction) Outgoing() bool { return d == Sent || d == Paid }

// Message is one parsed M-PESA confirmation.
type Message struct {
	Code         string
	Direction    Direction
	Amount       decimal.Decimal
	Counterparty string
	At           time.Time
	Balance      decimal.Decimal
	Cost         decimal.Decimal
}

// Money captures are Ksh<number>[,number]* with an optional fraction, kept
// tight so trailing punctuation is not swallowed.
const money = `Ksh[\d,]+(?:\.\d+)?`

// The patterns tolerate the variants seen in the wild: missing or doubled
// spaces and periods, "for account ..." inside the recipient, "M-PESA" or
// "business" balance, no space before AM/PM or before "New".
var (
	outgoingRe = regexp.MustCompile(`(?i)(\w+)\s+Confirmed\.?\s+(` + money + `)\s+(sent|paid)\s+to\s+(.*?)\s*\.?\s+on\s+(\d{1,2}/\d{1,2}/\d{2})\s+at\s+(\d{1,2}:\d{2}\s?(?:AM|PM))\.?\s*New\s+(?:M-PESA|business)\s+balance\s+is\s+(` + money + `)\.\s*Transaction\s+cost,?\s*(` + money + `)(?:\.|\b)`)
	incomingRe = regexp.MustCompile(`(?i)(\w+)\s+Confirmed\.?\s*You\s+have\s+received\s+(` + money + `)\s+from\s+(.*?)\s*\.?\s+on\s+(\d{1,2}/\d{1,2}/\d{2})\s+at\s+(\d{1,2}:\d{2}\s?(?:AM|PM))\.?\s*New\s+(?:M-PESA|business)\s+balance\s+is\s+(` + money + `)`)
)

// Parse reads a sent, paid or received confirmation.
func Parse(msg string) (*Message, error) {
	if m := outgoingRe.FindStringSubmatch(msg); m != nil {
		return build(m[1], Direction(strings.ToLower(m[3])), m[2], m[4], m[5], m[6], m[7], m[8])
	}
	if m := incomingRe.FindStringSubmatch(msg); m != nil {
		return build(m[1], Received, m[2], m[3], m[4], m[5], m[6], "Ksh0")
	}
	return nil, fmt.Errorf("not a valid M-PESA confirmation")
}

func build(code string, dir Direction, amount, party, date, clock, balance, cost string) (*Message, error) {
	amt, err := parseMoney(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	at, err := parseTime(date, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date/time: %w", err)
	}
	bal, err := parseMoney(balance)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	fee, err := parseMoney(cost)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cost: %w", err)
	}
	return &Message{
		Code:         code,
		Direction:    dir,
		Amount:       amt,
		Counterparty: strings.Join(strings.Fields(strings.TrimSuffix(strings.TrimSpace(party), ".")), " "),
		At:           at,
		Balance:      bal,
		Cost:         fee,
	}, nil
}

func parseMoney(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimPrefix(s, "Ksh"), ",", ""))
}

// parseTime reads d/m/yy and h:mm[ ]AM|PM.
func parseTime(date, clock string) (time.Time, error) {
	parts := strings.Split(date, "/")
	day, _ := strconv.Atoi(parts[0])
	month, _ := strconv.Atoi(parts[1])
	year, _ := strconv.Atoi(parts[2])

	clock = strings.ToUpper(strings.ReplaceAll(clock, " ", ""))
	clock = clock[:len(clock)-2] + " " + clock[len(clock)-2:]
	return time.Parse("2006-01-02 3:04 PM", fmt.Sprintf("%d-%02d-%02d %s", 2000+year, month, day, clock))
}

// IsConfirmation reports whether line opens an M-PESA confirmation.
func IsConfirmation(line string) bool {
	if !strings.Contains(line, "Confirmed.") {
		return false
	}
	return strings.Contains(line, "sent to") ||
		strings.Contains(line, "paid to") ||
		strings.Contains(line, "received")
}

// Entry is a confirmation with the metadata lines written under it.
type Entry struct {
	Message  string
	Category string
	Reason   string
}

// Split cuts a pasted batch into entries. Lines before the first
// confirmation are ignored.
func Split(content string) []Entry {
	var entries []Entry
	var meta []string
	var current string

	flush := func() {
		if current == "" {
			return
		}
		category, reason := ParseMetadata(meta)
		entries = append(entries, Entry{Message: current, Category: category, Reason: reason})
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if IsConfirmation(line) {
			flush()
			current, meta = line, nil
			continue
		}
		if current != "" {
			meta = append(meta, line)
		}
	}
	flush()
	return entries
}

// ParseMetadata reads "Category:"/"c:" and "Reason:"/"r:" lines. The
// category defaults to "uncategorized".
func ParseMetadata(lines []string) (category, reason string) {
	category = "uncategorized"
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Category:"):
			category = strings.TrimSpace(strings.TrimPrefix(line, "Category:"))
		case strings.HasPrefix(line, "c:"):
			category = strings.TrimSpace(strings.TrimPrefix(line, "c:"))
		case strings.HasPrefix(line, "Reason:"):
			reason = strings.TrimSpace(strings.TrimPrefix(line, "Reason:"))
		case strings.HasPrefix(line, "r:"):
			reason = strings.TrimSpace(strings.TrimPrefix(line, "r:"))
		}
	}
	return strings.ToLower(category), reason
}
