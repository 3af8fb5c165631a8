package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const investingQuotesJSON = `{"quotes":[
	{"id":18426,"description":"Reliance Industries Ltd","symbol":"RELI","exchange":"NSE","flag":"India","type":"Stock - NSE Mumbai","url":"/equities/reliance-industries"},
	{"id":18427,"description":"Reliance Infrastructure Ltd","symbol":"RELIN","exchange":"NSE","flag":"India","type":"Stock - NSE Mumbai","url":"/equities/reliance-infrastructure"}
]}`

func TestInvestingSearchFallbackChain(t *testing.T) {
	var primary, secondary, tertiary int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/search/v2/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primary, 1)
		w.Write([]byte(`{"quotes":[]}`))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondary, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/searchTopResults", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tertiary, 1)
		if got := r.URL.Query().Get("q"); got != "reliance" {
			t.Errorf("query param = %q", got)
		}
		w.Write([]byte(investingQuotesJSON))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig()
	cfg.Investing.HomeURL = srv.URL + "/"
	cfg.Investing.SearchURLs = []string{
		srv.URL + "/search/v2/search",
		srv.URL + "/search",
		srv.URL + "/searchTopResults",
	}

	c := NewInvestingClient(cfg, newLockedRand(1), zerolog.Nop())
	instruments, err := c.Search(context.Background(), "reliance")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(instruments) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(instruments))
	}
	if instruments[0].ID != "18426" || instruments[1].ID != "18427" {
		t.Errorf("ids = %q, %q", instruments[0].ID, instruments[1].ID)
	}
	if instruments[0].ID == instruments[1].ID {
		t.Error("hits share an id")
	}
	if primary != 1 || secondary != 1 || tertiary != 1 {
		t.Errorf("fallback chain walked %d/%d/%d times, want 1/1/1", primary, secondary, tertiary)
	}
}

func TestInvestingSearchAllEndpointsEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/s1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quotes":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig()
	cfg.Investing.HomeURL = srv.URL + "/"
	cfg.Investing.SearchURLs = []string{srv.URL + "/s1"}

	c := NewInvestingClient(cfg, newLockedRand(1), zerolog.Nop())
	instruments, err := c.Search(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("exhausted chain should not error: %v", err)
	}
	if len(instruments) != 0 {
		t.Fatalf("expected no matches, got %d", len(instruments))
	}
}

const investingHistoryJSON = `{"data":[
	{"rowDate":"Jan 03, 2024","last_openRaw":2340.0,"last_maxRaw":2360.0,"last_minRaw":2330.0,"last_closeRaw":2355.25,"volumeRaw":98765},
	{"rowDate":"Jan 02, 2024","last_openRaw":2300.05,"last_maxRaw":2350.0,"last_minRaw":2290.1,"last_closeRaw":2340.55,"volumeRaw":120456},
	{"rowDate":"Dec 15, 2023","last_openRaw":2200.0,"last_maxRaw":2210.0,"last_minRaw":2190.0,"last_closeRaw":2205.0,"volumeRaw":5}
]}`

func TestInvestingFetchHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/financialdata/historical/18426", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("start-date"); got != "2024-01-01" {
			t.Errorf("start-date = %q", got)
		}
		if got := q.Get("time-frame"); got != "Daily" {
			t.Errorf("time-frame = %q", got)
		}
		if got := q.Get("add-missing-rows"); got != "false" {
			t.Errorf("add-missing-rows = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(investingHistoryJSON))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig()
	cfg.Investing.HomeURL = srv.URL + "/"
	cfg.Investing.HistoryURL = srv.URL + "/api/financialdata/historical/"

	c := NewInvestingClient(cfg, newLockedRand(1), zerolog.Nop())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	records, err := c.FetchHistory(context.Background(), Instrument{ID: "18426", Symbol: "RELI"}, start, end)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records inside the window, got %d", len(records))
	}
	if !records[0].Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first date = %s", records[0].Date)
	}
	if records[0].Close == nil || records[0].Close.String() != "2340.55" {
		t.Errorf("first close = %v", records[0].Close)
	}
	if records[1].Volume != 98765 {
		t.Errorf("second volume = %d", records[1].Volume)
	}
}

func TestInvestingParseHistoryShapes(t *testing.T) {
	c := NewInvestingClient(newTestConfig(), newLockedRand(1), zerolog.Nop())
	inst := Instrument{ID: "1", Symbol: "X"}

	bare := `[{"rowDate":"Jan 02, 2024","last_closeRaw":10.5,"volumeRaw":3}]`
	records := c.parseHistory([]byte(bare), inst, zerolog.Nop())
	if len(records) != 1 {
		t.Fatalf("bare list not accepted: %d records", len(records))
	}
	if records[0].Close == nil || records[0].Close.String() != "10.5" {
		t.Errorf("close = %v", records[0].Close)
	}

	if got := c.parseHistory([]byte(`"maintenance"`), inst, zerolog.Nop()); len(got) != 0 {
		t.Fatalf("unknown shape should degrade to empty, got %d records", len(got))
	}
}
