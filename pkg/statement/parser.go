package statement

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrMalformedDocument is returned when a notification document has no
// recognizable date header. A document with a header but no matching
// rows is not malformed; it simply describes no transfers.
var ErrMalformedDocument = errors.New("malformed notification document")

var (
	headerRe = regexp.MustCompile(`(?s)<h5[^>]*>(.*?)</h5>`)
	rowRe    = regexp.MustCompile(`(?s)<tr[^>]*>(.*?)</tr>`)
	cellRe   = regexp.MustCompile(`(?s)<td[^>]*>(.*?)</td>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)

	// lineItemRe is the grammar of one notification line item. Two shapes
	// exist: "przych." (incoming) and "wych." (outgoing). Both encode the
	// sender account, recipient account, amount, counterparty name, a
	// free-text description and the post-transfer balance.
	lineItemRe = regexp.MustCompile(
		`^mBank: Przelew (przych|wych)\.` +
			` z rach\. ([0-9.]{8,26})` +
			` na rach\. ([0-9.]{8,26})` +
			` kwota ([0-9 \x{00a0}]+,[0-9]{2}) PLN` +
			` (?:od|dla) ([^;]+); ` +
			`(.+); ` +
			`Dost\. ([0-9 \x{00a0}]+,[0-9]{2}) PLN$`)
)

// headerDateLayouts covers the date formats observed in notification
// headers across bank template revisions.
var headerDateLayouts = []string{"2006-01-02", "02-01-2006", "02.01.2006"}

// ParseAmount normalizes a decimal-comma formatted amount such as
// "1 234,56" to an exact decimal value.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.NewReplacer(" ", "", " ", "", ",", ".").Replace(strings.TrimSpace(s))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// Parser extracts transfer records from notification documents.
type Parser struct {
	log zerolog.Logger
}

// NewParser creates a Parser that reports skipped rows on log.
func NewParser(log zerolog.Logger) *Parser {
	return &Parser{log: log}
}

// Parse turns a raw notification document into the transfers it lists,
// in row order. The notification date comes from the single document
// header; each data row contributes its own time of day. Rows that do
// not match the line-item grammar are informational and are skipped.
func (p *Parser) Parse(document []byte) ([]Transfer, error) {
	header := headerRe.FindSubmatch(document)
	if header == nil {
		return nil, fmt.Errorf("%w: no date header", ErrMalformedDocument)
	}
	headerText := cleanCell(string(header[1]))
	date, err := parseHeaderDate(headerText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	rows := rowRe.FindAllSubmatch(document, -1)
	if len(rows) <= 2 {
		return nil, nil
	}

	var transfers []Transfer
	// The first two rows are table headers.
	for _, row := range rows[2:] {
		cells := cellRe.FindAllSubmatch(row[1], -1)
		if len(cells) < 2 {
			p.log.Debug().Msg("row has no data cells, skipping")
			continue
		}
		timeText := cleanCell(string(cells[0][1]))
		desc := cleanCell(string(cells[1][1]))

		m := lineItemRe.FindStringSubmatch(desc)
		if m == nil {
			p.log.Debug().Str("description", desc).Msg("row does not describe a transfer, skipping")
			continue
		}

		amount, err := ParseAmount(m[4])
		if err != nil {
			return nil, fmt.Errorf("row amount: %w", err)
		}
		balance, err := ParseAmount(m[7])
		if err != nil {
			return nil, fmt.Errorf("row balance: %w", err)
		}
		ts, err := combineTimestamp(date, timeText)
		if err != nil {
			return nil, fmt.Errorf("row time: %w", err)
		}

		direction := Incoming
		if m[1] == "wych" {
			direction = Outgoing
		}
		transfers = append(transfers, Transfer{
			SenderAccount:    m[2],
			RecipientAccount: m[3],
			Amount:           amount,
			Counterparty:     strings.TrimSpace(m[5]),
			Description:      strings.TrimSpace(m[6]),
			ReportedBalance:  balance,
			Timestamp:        ts,
			Direction:        direction,
		})
	}
	return transfers, nil
}

// parseHeaderDate reads the notification date out of the header text,
// which looks like "2021-09-01 - dzienne zestawienie operacji".
func parseHeaderDate(headerText string) (time.Time, error) {
	datePart := strings.TrimSpace(strings.SplitN(headerText, " - ", 2)[0])
	for _, layout := range headerDateLayouts {
		if d, err := time.Parse(layout, datePart); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized header date %q", datePart)
}

// combineTimestamp joins the document date with a row's "HH:MM" cell.
func combineTimestamp(date time.Time, timeText string) (time.Time, error) {
	t, err := time.Parse("15:04", timeText)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized row time %q: %w", timeText, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

// cleanCell strips markup and collapses whitespace in a table cell.
func cleanCell(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
