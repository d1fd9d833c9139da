package page

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"trade-mirror-bot/internal/types"
)

// TimeLayout is how the history table renders trade times.
const TimeLayout = "2006-01-02 15:04:05"

const rowCells = 6

// RawRow is the trimmed text of one history table row:
// time, symbol, side, price, quantity, realized profit.
type RawRow []string

var (
	perpetualRe = regexp.MustCompile(` ?Perpetual`)
	nonPriceRe  = regexp.MustCompile(`[^\d.]`)
)

// ParseRows extracts rows matched by selector from an HTML document.
// Rows with fewer than six cells are skipped.
func ParseRows(html, selector string) ([]RawRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}

	var rows []RawRow
	doc.Find(selector).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < rowCells {
			return
		}
		row := make(RawRow, 0, rowCells)
		cells.EachWithBreak(func(i int, td *goquery.Selection) bool {
			row = append(row, strings.TrimSpace(td.Text()))
			return i < rowCells-1
		})
		rows = append(rows, row)
	})
	return rows, nil
}

// ParseEvent converts a row into a TradeEvent in loc. The event time is truncated to the minute.
func ParseEvent(row RawRow, loc *time.Location) (types.TradeEvent, error) {
	if len(row) < rowCells {
		return types.TradeEvent{}, fmt.Errorf("row has %d cells, want %d", len(row), rowCells)
	}
	if loc == nil {
		loc = time.Local
	}

	at, err := time.ParseInLocation(TimeLayout, row[0], loc)
	if err != nil {
		return types.TradeEvent{}, fmt.Errorf("parse time %q: %w", row[0], err)
	}

	price, err := strconv.ParseFloat(nonPriceRe.ReplaceAllString(strings.ReplaceAll(row[3], ",", ""), ""), 64)
	if err != nil {
		return types.TradeEvent{}, fmt.Errorf("parse price %q: %w", row[3], err)
	}

	qtyText := row[4]
	if i := strings.IndexByte(qtyText, ' '); i >= 0 {
		qtyText = qtyText[:i]
	}
	qty, err := strconv.ParseFloat(strings.ReplaceAll(qtyText, ",", ""), 64)
	if err != nil {
		return types.TradeEvent{}, fmt.Errorf("parse quantity %q: %w", row[4], err)
	}

	profitText := strings.TrimSpace(strings.ReplaceAll(row[5], "USDT", ""))
	profit, err := strconv.ParseFloat(strings.ReplaceAll(profitText, ",", ""), 64)
	if err != nil {
		return types.TradeEvent{}, fmt.Errorf("parse realized profit %q: %w", row[5], err)
	}

	return types.TradeEvent{
		Time:           at.Truncate(time.Minute),
		RawTime:        row[0],
		Symbol:         strings.TrimSpace(perpetualRe.ReplaceAllString(row[1], "")),
		Side:           types.SideLabel(row[2]),
		Price:          price,
		Quantity:       qty,
		RealizedProfit: profit,
	}, nil
}
