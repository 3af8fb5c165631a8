package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/vslabs/scripscrapo/internal/config"
)

// NSEClient talks to the National Stock Exchange. Both the autocomplete
// and the candle API refuse requests without the cookies the home page
// sets, so every call rides on the managed session.
type NSEClient struct {
	cfg      *config.Config
	src      config.SourceConfig
	sessions *sessionManager
	r        rng
	log      zerolog.Logger
}

func NewNSEClient(cfg *config.Config, r rng, log zerolog.Logger) *NSEClient {
	return &NSEClient{
		cfg: cfg,
		src: cfg.NSE,
		sessions: newSessionManager(SourceNSE, cfg.NSE.HomeURL, cfg.SessionAttempts,
			cfg.SessionGrace, cfg.BootstrapTimeout, r, cfg.UserAgents, cfg.Profiles, log),
		r:   r,
		log: log.With().Str("source", "nse").Logger(),
	}
}

func (c *NSEClient) Kind() SourceKind { return SourceNSE }

func (c *NSEClient) newClient(sess *Session) *resty.Client {
	id := PickIdentity(c.r, c.cfg.UserAgents, c.cfg.Profiles)
	return resty.New().
		SetTimeout(c.cfg.BootstrapTimeout).
		SetHeaders(apiHeaders(id, hostOf(c.src.SearchURL), originOf(c.src.HomeURL))).
		SetCookies(sess.Cookies)
}

// nseSymbol is one autocomplete hit. The API nests hits under either
// "symbols" or "data.symbols" depending on endpoint revision.
type nseSymbol struct {
	Symbol        string `json:"symbol"`
	SymbolInfo    string `json:"symbol_info"`
	ResultSubType string `json:"result_sub_type"`
}

func (c *NSEClient) Search(ctx context.Context, query string) ([]Instrument, error) {
	sess, err := c.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}

	var out []Instrument
	err = withRetry(ctx, policyFrom(c.cfg), func() error {
		if err := sleepJitter(ctx, c.r, c.cfg.DelayMin, c.cfg.DelayMax); err != nil {
			return err
		}
		resp, err := c.newClient(sess).R().SetContext(ctx).
			SetQueryParam("q", query).
			Get(c.src.SearchURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		switch resp.StatusCode() {
		case http.StatusOK:
			out = parseNSESearch(resp.Body(), c.log)
			return nil
		case http.StatusForbidden:
			c.log.Warn().Msg("search rejected, refreshing session")
			if sess, err = c.sessions.Refresh(ctx, sess); err != nil {
				return err
			}
			return fmt.Errorf("%w: search got 403", ErrTransient)
		default:
			return fmt.Errorf("%w: search status %d", ErrTransient, resp.StatusCode())
		}
	})
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("query", query).Int("results", len(out)).Msg("search complete")
	return out, nil
}

func parseNSESearch(body []byte, log zerolog.Logger) []Instrument {
	var flat struct {
		Symbols []nseSymbol `json:"symbols"`
	}
	var nested struct {
		Data struct {
			Symbols []nseSymbol `json:"symbols"`
		} `json:"data"`
	}
	var symbols []nseSymbol
	if err := json.Unmarshal(body, &flat); err == nil && len(flat.Symbols) > 0 {
		symbols = flat.Symbols
	} else if err := json.Unmarshal(body, &nested); err == nil {
		symbols = nested.Data.Symbols
	} else {
		log.Warn().Msg("unexpected autocomplete payload shape")
		return nil
	}

	out := make([]Instrument, 0, len(symbols))
	for _, s := range symbols {
		if s.Symbol == "" {
			continue
		}
		out = append(out, Instrument{
			ID:          s.Symbol,
			Description: s.SymbolInfo,
			Symbol:      s.Symbol,
			Exchange:    "NSE",
			Type:        "Stock - NSE",
		})
	}
	return out
}

// nseCandle is one row of the candle API payload.
type nseCandle struct {
	Symbol    string      `json:"chSymbol"`
	Open      json.Number `json:"chOpeningPrice"`
	High      json.Number `json:"chTradeHighPrice"`
	Low       json.Number `json:"chTradeLowPrice"`
	Close     json.Number `json:"chClosingPrice"`
	Volume    json.Number `json:"chTotTradedQuantity"`
	Timestamp string      `json:"mtimestamp"`
}

func (c *NSEClient) FetchHistory(ctx context.Context, inst Instrument, start, end time.Time) ([]HistoricalRecord, error) {
	if err := validateFetch(inst, start, end); err != nil {
		return nil, err
	}
	sess, err := c.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}
	log := c.log.With().Str("symbol", inst.ID).Logger()

	var records []HistoricalRecord
	err = withRetry(ctx, policyFrom(c.cfg), func() error {
		if err := sleepJitter(ctx, c.r, c.cfg.DelayMin, c.cfg.DelayMax); err != nil {
			return err
		}
		resp, err := c.newClient(sess).R().SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol": inst.ID,
				"series": `["EQ"]`,
				"from":   start.Format("02-01-2006"),
				"to":     end.Format("02-01-2006"),
			}).
			Get(c.src.HistoryURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		switch resp.StatusCode() {
		case http.StatusOK:
			records, err = c.parseHistory(resp.Body(), inst, log)
			return err
		case http.StatusForbidden:
			log.Warn().Msg("history rejected, refreshing session")
			if sess, err = c.sessions.Refresh(ctx, sess); err != nil {
				return err
			}
			return fmt.Errorf("%w: history got 403", ErrTransient)
		default:
			return fmt.Errorf("%w: history status %d", ErrTransient, resp.StatusCode())
		}
	})
	if err != nil {
		return nil, err
	}
	records = clampAndSort(records, start, end)
	log.Info().Int("rows", len(records)).Msg("history fetched")
	return records, nil
}

func (c *NSEClient) parseHistory(body []byte, inst Instrument, log zerolog.Logger) ([]HistoricalRecord, error) {
	var envelope struct {
		Data []nseCandle `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		dumpDebug(c.cfg.DebugDir, "nse_"+inst.ID+".json", body, log)
		return nil, fmt.Errorf("%w: candle payload not JSON", ErrParse)
	}

	records := make([]HistoricalRecord, 0, len(envelope.Data))
	for _, candle := range envelope.Data {
		date, err := parseDayFirstDate(candle.Timestamp)
		if err != nil {
			log.Warn().Str("mtimestamp", candle.Timestamp).Msg("skipping candle with unreadable date")
			continue
		}
		records = append(records, HistoricalRecord{
			Date:         date,
			Open:         numberPrice(candle.Open),
			High:         numberPrice(candle.High),
			Low:          numberPrice(candle.Low),
			Close:        numberPrice(candle.Close),
			Volume:       numberVolume(candle.Volume),
			Symbol:       symbolTag(inst),
			InstrumentID: inst.ID,
		})
	}
	return records, nil
}
