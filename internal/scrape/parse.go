package scrape

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// cleanPrice normalizes an upstream numeric string. Thousands separators
// are stripped; placeholder dashes and blanks mean the value is missing.
// Never fails: anything unparseable is treated as missing.
func cleanPrice(s string) *decimal.Decimal {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// cleanVolume applies the exchange convention for share counts: a dash is
// a zero-volume day, not a missing value.
func cleanVolume(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.IntPart()
}

// dayFirstFormats covers the date spellings the exchange downloads use.
// Day always precedes month on these sources.
var dayFirstFormats = []string{
	"2/1/2006",
	"2-1-2006",
	"2-Jan-2006",
	"2-January-2006",
	"2 January 2006",
	"2006-01-02",
}

func parseDayFirstDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dayFirstFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// dateOnly truncates to a calendar date in UTC. Records carry no
// time-of-day precision.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// symbolTag picks the value the symbol column is stamped with.
func symbolTag(inst Instrument) string {
	if inst.Symbol != "" {
		return inst.Symbol
	}
	return inst.Description
}

// historyColumns maps a cleaned header row to field indices. Index -1
// means the column is absent.
type historyColumns struct {
	date, open, high, low, close, volume int
}

func mapHistoryColumns(headers []string) (historyColumns, error) {
	cols := historyColumns{date: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h))
		switch {
		case cols.date < 0 && strings.Contains(name, "date"):
			cols.date = i
		case cols.open < 0 && strings.Contains(name, "open"):
			cols.open = i
		case cols.high < 0 && strings.Contains(name, "high"):
			cols.high = i
		case cols.low < 0 && strings.Contains(name, "low"):
			cols.low = i
		case cols.close < 0 && strings.Contains(name, "close") && !strings.Contains(name, "prev"):
			cols.close = i
		case cols.volume < 0 && (strings.Contains(name, "volume") ||
			strings.Contains(name, "shares") || strings.Contains(name, "traded quantity")):
			cols.volume = i
		}
	}
	if cols.date < 0 || cols.close < 0 {
		return cols, fmt.Errorf("%w: no recognizable header row", ErrParse)
	}
	return cols, nil
}

// rowToRecord converts one cell row under a column mapping. Numeric
// coercion never fails; only an unreadable date rejects the row.
func rowToRecord(cells []string, cols historyColumns, inst Instrument) (HistoricalRecord, error) {
	get := func(i int) string {
		if i < 0 || i >= len(cells) {
			return ""
		}
		return cells[i]
	}
	date, err := parseDayFirstDate(get(cols.date))
	if err != nil {
		return HistoricalRecord{}, err
	}
	return HistoricalRecord{
		Date:         date,
		Open:         cleanPrice(get(cols.open)),
		High:         cleanPrice(get(cols.high)),
		Low:          cleanPrice(get(cols.low)),
		Close:        cleanPrice(get(cols.close)),
		Volume:       cleanVolume(get(cols.volume)),
		Symbol:       symbolTag(inst),
		InstrumentID: inst.ID,
	}, nil
}

// parseCSVHistory extracts records from a CSV attachment. Header names
// arrive padded with stray whitespace; dates are day-first. Malformed rows
// are collected on a side channel for diagnosis instead of aborting the
// whole parse.
func parseCSVHistory(r io.Reader, inst Instrument, log zerolog.Logger) ([]HistoricalRecord, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: empty CSV body", ErrParse)
	}
	cols, err := mapHistoryColumns(header)
	if err != nil {
		return nil, nil, err
	}

	var records []HistoricalRecord
	var badRows []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			badRows = append(badRows, err.Error())
			continue
		}
		rec, err := rowToRecord(row, cols, inst)
		if err != nil {
			log.Warn().Err(err).Msg("skipping malformed CSV row")
			badRows = append(badRows, strings.Join(row, ","))
			continue
		}
		records = append(records, rec)
	}
	return records, badRows, nil
}

// Scraped pages decorate the header row; headerCellClass/dataRowClass are
// the markers the price-history table carries.
const (
	headerCellClass = "innertable_header1"
	dataRowClass    = "TTRow"
)

// parseHTMLTable is the fallback when a form source answers with a full
// page instead of a CSV attachment. It locates the first table mentioning
// a date column alongside open/close headers and scrapes it.
func parseHTMLTable(body []byte, inst Instrument) ([]HistoricalRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var table *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, "Date") && (strings.Contains(text, "Open") || strings.Contains(text, "Close")) {
			if s.Find("tr." + dataRowClass).Length() > 0 {
				table = s
				return false
			}
		}
		return true
	})
	if table == nil {
		return nil, fmt.Errorf("%w: no data table found", ErrParse)
	}

	var headers []string
	table.Find("td." + headerCellClass).Each(func(_ int, cell *goquery.Selection) {
		h := strings.ReplaceAll(strings.TrimSpace(cell.Text()), "\n", " ")
		if h == "* Spread" || h == "" {
			return
		}
		headers = append(headers, h)
	})
	cols, err := mapHistoryColumns(headers)
	if err != nil {
		return nil, err
	}

	var records []HistoricalRecord
	table.Find("tr." + dataRowClass).Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) < 5 {
			return
		}
		rec, err := rowToRecord(cells, cols, inst)
		if err != nil {
			return
		}
		records = append(records, rec)
	})
	return records, nil
}

// clampAndSort enforces the fetch postcondition: records inside
// [start, end] inclusive, ascending by date.
func clampAndSort(records []HistoricalRecord, start, end time.Time) []HistoricalRecord {
	start, end = dateOnly(start), dateOnly(end)
	out := records[:0]
	for _, rec := range records {
		d := dateOnly(rec.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
