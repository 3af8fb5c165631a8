// Package export is the sink the core hands finished data to: one
// workbook with a sheet per instrument plus the reconciled panel. It only
// consumes FetchResults and a Panel; nothing in here talks to the network.
package export

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/vslabs/scripscrapo/internal/panel"
	"github.com/vslabs/scripscrapo/internal/scrape"
)

// maxSheetName is the xlsx hard limit on sheet name length.
const maxSheetName = 31

var sheetNameSanitizer = strings.NewReplacer(
	"[", "", "]", "", ":", "", "*", "", "?", "", "/", "-", "\\", "-",
)

// SafeSheetName makes a label usable as an xlsx sheet name: forbidden
// characters stripped, truncated to the 31-char limit, deduplicated with
// a numeric suffix against names already in use.
func SafeSheetName(label string, used map[string]bool) string {
	name := sheetNameSanitizer.Replace(strings.TrimSpace(label))
	if name == "" {
		name = "Sheet"
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	base := name
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf(" %d", n)
		trimmed := base
		if len(trimmed)+len(suffix) > maxSheetName {
			trimmed = trimmed[:maxSheetName-len(suffix)]
		}
		name = trimmed + suffix
	}
	used[name] = true
	return name
}

// WriteWorkbook writes one sheet per successful instrument and a "Panel"
// sheet with the aligned close/volume table. Failed instruments are the
// caller's report to make; they leave no trace in the workbook.
func WriteWorkbook(path string, results []scrape.FetchResult, pnl *panel.Panel) error {
	f := excelize.NewFile()
	defer f.Close()

	const panelSheet = "Panel"
	if err := f.SetSheetName("Sheet1", panelSheet); err != nil {
		return err
	}
	used := map[string]bool{panelSheet: true}

	if err := writePanelSheet(f, panelSheet, pnl); err != nil {
		return err
	}
	for _, r := range results {
		if !r.OK() {
			continue
		}
		name := SafeSheetName(r.Instrument.Label(), used)
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
		if err := writeInstrumentSheet(f, name, r); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func writeInstrumentSheet(f *excelize.File, sheet string, r scrape.FetchResult) error {
	headers := []interface{}{"Date", "Open", "High", "Low", "Close", "Volume"}
	if err := setRow(f, sheet, 1, headers); err != nil {
		return err
	}
	for i, rec := range r.Records {
		row := []interface{}{
			rec.Date.Format("2006-01-02"),
			decimalCell(rec.Open),
			decimalCell(rec.High),
			decimalCell(rec.Low),
			decimalCell(rec.Close),
			rec.Volume,
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writePanelSheet(f *excelize.File, sheet string, pnl *panel.Panel) error {
	headers := []interface{}{"Date"}
	for _, col := range pnl.Columns {
		label := col.Instrument.Label()
		headers = append(headers, label+" Close", label+" Volume")
	}
	if err := setRow(f, sheet, 1, headers); err != nil {
		return err
	}
	for i, date := range pnl.Dates {
		row := []interface{}{date.Format("2006-01-02")}
		for _, col := range pnl.Columns {
			cell := col.Cells[i]
			row = append(row, decimalCell(cell.Close))
			if cell.Volume != nil {
				row = append(row, *cell.Volume)
			} else {
				row = append(row, nil)
			}
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func decimalCell(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.InexactFloat64()
}
