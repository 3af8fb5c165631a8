package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseNSESearchFlat(t *testing.T) {
	body := `{"symbols":[
		{"symbol":"RELIANCE","symbol_info":"Reliance Industries Limited","result_sub_type":"equity"},
		{"symbol":"RELINFRA","symbol_info":"Reliance Infrastructure Limited","result_sub_type":"equity"},
		{"symbol":"","symbol_info":"ghost row"}
	]}`
	instruments := parseNSESearch([]byte(body), zerolog.Nop())
	if len(instruments) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(instruments))
	}
	if instruments[0].ID != "RELIANCE" || instruments[0].Description != "Reliance Industries Limited" {
		t.Errorf("first hit = %+v", instruments[0])
	}
	if instruments[0].Exchange != "NSE" {
		t.Errorf("exchange = %q", instruments[0].Exchange)
	}
}

func TestParseNSESearchNested(t *testing.T) {
	body := `{"data":{"symbols":[{"symbol":"TCS","symbol_info":"Tata Consultancy Services Limited"}]}}`
	instruments := parseNSESearch([]byte(body), zerolog.Nop())
	if len(instruments) != 1 || instruments[0].ID != "TCS" {
		t.Fatalf("nested shape not handled: %+v", instruments)
	}
}

func TestParseNSESearchJunk(t *testing.T) {
	if got := parseNSESearch([]byte("<html>blocked</html>"), zerolog.Nop()); len(got) != 0 {
		t.Fatalf("junk payload should yield nothing, got %+v", got)
	}
}

const nseCandleJSON = `{"data":[
	{"chSymbol":"RELIANCE","chOpeningPrice":2340.00,"chTradeHighPrice":2360.00,"chTradeLowPrice":2330.00,"chClosingPrice":2355.25,"chTotTradedQuantity":98765,"mtimestamp":"03-Jan-2024"},
	{"chSymbol":"RELIANCE","chOpeningPrice":2300.05,"chTradeHighPrice":2350.00,"chTradeLowPrice":2290.10,"chClosingPrice":2340.55,"chTotTradedQuantity":120456,"mtimestamp":"02-Jan-2024"},
	{"chSymbol":"RELIANCE","chOpeningPrice":2200.00,"chTradeHighPrice":2210.00,"chTradeLowPrice":2190.00,"chClosingPrice":2205.00,"chTotTradedQuantity":5,"mtimestamp":"15-Dec-2023"}
]}`

func TestNSEFetchHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "tok"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/historical/cm/equity", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "RELIANCE" {
			t.Errorf("symbol param = %q", got)
		}
		if got := r.URL.Query().Get("series"); got != `["EQ"]` {
			t.Errorf("series param = %q", got)
		}
		if got := r.URL.Query().Get("from"); got != "01-01-2024" {
			t.Errorf("from param = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(nseCandleJSON))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig()
	cfg.NSE.HomeURL = srv.URL + "/"
	cfg.NSE.SearchURL = srv.URL + "/api/search/autocomplete"
	cfg.NSE.HistoryURL = srv.URL + "/api/historical/cm/equity"

	c := NewNSEClient(cfg, newLockedRand(1), zerolog.Nop())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	records, err := c.FetchHistory(context.Background(), Instrument{ID: "RELIANCE", Symbol: "RELIANCE"}, start, end)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	// The December candle falls outside the window.
	if len(records) != 2 {
		t.Fatalf("expected 2 records inside the window, got %d", len(records))
	}
	if !records[0].Date.Before(records[1].Date) {
		t.Error("records not ascending")
	}
	if records[0].Close == nil || records[0].Close.String() != "2340.55" {
		t.Errorf("first close = %v, want 2340.55", records[0].Close)
	}
	if records[0].Volume != 120456 {
		t.Errorf("first volume = %d", records[0].Volume)
	}
	if records[0].Symbol != "RELIANCE" {
		t.Errorf("symbol tag = %q", records[0].Symbol)
	}
}

func TestNSEParseHistoryNotJSON(t *testing.T) {
	c := NewNSEClient(newTestConfig(), newLockedRand(1), zerolog.Nop())
	_, err := c.parseHistory([]byte("<html>maintenance</html>"), Instrument{ID: "X"}, zerolog.Nop())
	if !IsParseError(err) {
		t.Fatalf("expected parse error for HTML body, got %v", err)
	}
}
