package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/vslabs/scripscrapo/internal/panel"
	"github.com/vslabs/scripscrapo/internal/scrape"
)

func TestSafeSheetName(t *testing.T) {
	used := map[string]bool{}

	if got := SafeSheetName("RELIANCE", used); got != "RELIANCE" {
		t.Errorf("plain label mangled: %q", got)
	}

	long := "A VERY LONG COMPANY NAME THAT EXCEEDS THE SHEET LIMIT"
	got := SafeSheetName(long, used)
	if len(got) != 31 {
		t.Errorf("long label not truncated to 31: %q (%d)", got, len(got))
	}

	// Same long label again must not collide.
	again := SafeSheetName(long, used)
	if again == got {
		t.Errorf("duplicate label not deduplicated: %q", again)
	}
	if len(again) > 31 {
		t.Errorf("deduplicated name exceeds limit: %q (%d)", again, len(again))
	}

	if got := SafeSheetName("A/B[C]:D*E?", used); got != "A-BCDE" {
		t.Errorf("forbidden characters survived: %q", got)
	}

	if got := SafeSheetName("   ", used); got != "Sheet" {
		t.Errorf("blank label fallback = %q", got)
	}
}

func TestWriteWorkbook(t *testing.T) {
	d2 := decimal.RequireFromString("101.5")
	d3 := decimal.RequireFromString("102.25")
	vol := int64(1000)

	inst := scrape.Instrument{ID: "101", Symbol: "RELI", Description: "Reliance Industries Ltd"}
	jan2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	jan3 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	results := []scrape.FetchResult{
		{Instrument: inst, Records: []scrape.HistoricalRecord{
			{Date: jan2, Close: &d2, Volume: 1000, Symbol: "RELI", InstrumentID: "101"},
			{Date: jan3, Close: &d3, Volume: 1200, Symbol: "RELI", InstrumentID: "101"},
		}},
		{Instrument: scrape.Instrument{ID: "999", Symbol: "DEAD"}, Err: scrape.ErrNoData},
	}
	pnl := &panel.Panel{
		Dates: []time.Time{jan2, jan3},
		Columns: []panel.ColumnGroup{{
			Instrument: inst,
			Cells: []panel.Cell{
				{Close: &d2, Volume: &vol},
				{Close: &d3, Volume: nil},
			},
		}},
	}

	path := filepath.Join(t.TempDir(), "prices.xlsx")
	if err := WriteWorkbook(path, results, pnl); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopening workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 {
		t.Fatalf("expected Panel plus one instrument sheet, got %v", sheets)
	}
	if sheets[0] != "Panel" {
		t.Errorf("first sheet = %q, want Panel", sheets[0])
	}

	got, err := f.GetCellValue("Panel", "B1")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if got != "RELI Close" {
		t.Errorf("panel header B1 = %q", got)
	}
	got, err = f.GetCellValue("RELI", "E2")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if got != "101.5" {
		t.Errorf("instrument close E2 = %q", got)
	}

	// The failed instrument must not have a sheet.
	for _, s := range sheets {
		if s == "DEAD" {
			t.Error("failed instrument got a sheet")
		}
	}
}
