// Package config carries every externally tunable knob: source endpoints,
// identity pools, pacing, retry ceilings and pool sizes. Nothing in here
// is business logic; callers may override any field before wiring clients.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SourceConfig holds the per-source endpoints. SearchURLs is a fallback
// chain tried in order; sources with a single search endpoint leave it nil
// and use SearchURL.
type SourceConfig struct {
	HomeURL    string
	SearchURL  string
	SearchURLs []string
	HistoryURL string
}

type Config struct {
	// Anti-blocking identity pools.
	UserAgents []string
	Profiles   []string

	// Pacing and retry.
	DelayMin        time.Duration
	DelayMax        time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
	SessionAttempts int
	SessionGrace    time.Duration

	// Concurrency and timeouts.
	Workers          int
	BootstrapTimeout time.Duration
	FormTimeout      time.Duration

	// DebugDir, when set, receives raw copies of responses that failed to
	// parse. Empty disables the dump entirely.
	DebugDir string

	BSE       SourceConfig
	NSE       SourceConfig
	Investing SourceConfig
	Yahoo     SourceConfig
}

func DefaultConfig() *Config {
	return &Config{
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36",
		},
		Profiles: []string{"chrome", "safari", "firefox", "edge99", "edge101"},

		DelayMin:        2 * time.Second,
		DelayMax:        5 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    5 * time.Second,
		SessionAttempts: 3,
		SessionGrace:    5 * time.Second,

		Workers:          5,
		BootstrapTimeout: 30 * time.Second,
		FormTimeout:      60 * time.Second,

		BSE: SourceConfig{
			HomeURL:    "https://www.bseindia.com/index.html",
			SearchURL:  "https://api.bseindia.com/Msource/1D/getQouteSearch.aspx",
			HistoryURL: "https://www.bseindia.com/markets/equity/EQReports/StockPrcHistori.aspx",
		},
		NSE: SourceConfig{
			HomeURL:    "https://www.nseindia.com/",
			SearchURL:  "https://www.nseindia.com/api/NextApi/search/autocomplete",
			HistoryURL: "https://www.nseindia.com/api/historical/cm/equity",
		},
		Investing: SourceConfig{
			HomeURL: "https://www.investing.com/",
			SearchURLs: []string{
				"https://api.investing.com/api/search/v2/search",
				"https://api.investing.com/api/search",
				"https://www.investing.com/search/service/searchTopResults",
			},
			HistoryURL: "https://api.investing.com/api/financialdata/historical/",
		},
		Yahoo: SourceConfig{
			SearchURL: "https://query2.finance.yahoo.com/v1/finance/search",
		},
	}
}

// LoadEnv layers .env and environment overrides on top of the defaults.
// Only operational knobs are overridable this way; endpoint URLs change
// through direct field assignment.
func (c *Config) LoadEnv() {
	_ = godotenv.Load()

	if v, ok := lookupInt("SCRIPSCRAPO_WORKERS"); ok {
		c.Workers = v
	}
	if v, ok := lookupInt("SCRIPSCRAPO_RETRY_ATTEMPTS"); ok {
		c.RetryAttempts = v
	}
	if v, ok := lookupSeconds("SCRIPSCRAPO_RETRY_BACKOFF"); ok {
		c.RetryBackoff = v
	}
	if v, ok := lookupSeconds("SCRIPSCRAPO_DELAY_MIN"); ok {
		c.DelayMin = v
	}
	if v, ok := lookupSeconds("SCRIPSCRAPO_DELAY_MAX"); ok {
		c.DelayMax = v
	}
	if v := os.Getenv("SCRIPSCRAPO_DEBUG_DIR"); v != "" {
		c.DebugDir = v
	}
}

func lookupInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupSeconds(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(n * float64(time.Second)), true
}
