package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/rs/zerolog"

	"github.com/vslabs/scripscrapo/internal/config"
)

// YahooClient covers the consumer aggregator. Search hits the public
// search API; history goes through the finance-go chart iterator, which
// manages Yahoo's crumb handshake itself, so no cookie session of ours is
// involved.
type YahooClient struct {
	cfg *config.Config
	src config.SourceConfig
	r   rng
	log zerolog.Logger
}

func NewYahooClient(cfg *config.Config, r rng, log zerolog.Logger) *YahooClient {
	return &YahooClient{
		cfg: cfg,
		src: cfg.Yahoo,
		r:   r,
		log: log.With().Str("source", "yahoo").Logger(),
	}
}

func (c *YahooClient) Kind() SourceKind { return SourceYahoo }

// yahooQuote is one search hit. Longname is preferred for display;
// shortname fills in for instruments that lack one.
type yahooQuote struct {
	Symbol    string `json:"symbol"`
	ShortName string `json:"shortname"`
	LongName  string `json:"longname"`
	Exchange  string `json:"exchange"`
	QuoteType string `json:"quoteType"`
}

func (c *YahooClient) Search(ctx context.Context, query string) ([]Instrument, error) {
	var out []Instrument
	err := withRetry(ctx, policyFrom(c.cfg), func() error {
		if err := sleepJitter(ctx, c.r, c.cfg.DelayMin, c.cfg.DelayMax); err != nil {
			return err
		}
		id := PickIdentity(c.r, c.cfg.UserAgents, c.cfg.Profiles)
		client := resty.New().
			SetTimeout(c.cfg.BootstrapTimeout).
			SetHeader("User-Agent", id.UserAgent).
			SetHeader("Accept", "application/json")

		resp, err := client.R().SetContext(ctx).
			SetQueryParam("q", query).
			Get(c.src.SearchURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("%w: search status %d", ErrTransient, resp.StatusCode())
		}

		var payload struct {
			Quotes []yahooQuote `json:"quotes"`
		}
		if err := json.Unmarshal(resp.Body(), &payload); err != nil {
			c.log.Warn().Msg("unexpected search payload shape")
			return nil
		}
		out = make([]Instrument, 0, len(payload.Quotes))
		for _, q := range payload.Quotes {
			if q.Symbol == "" {
				continue
			}
			desc := q.LongName
			if desc == "" {
				desc = q.ShortName
			}
			out = append(out, Instrument{
				ID:          q.Symbol,
				Description: desc,
				Symbol:      q.Symbol,
				Exchange:    q.Exchange,
				Type:        q.QuoteType,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("query", query).Int("results", len(out)).Msg("search complete")
	return out, nil
}

func (c *YahooClient) FetchHistory(ctx context.Context, inst Instrument, start, end time.Time) ([]HistoricalRecord, error) {
	if err := validateFetch(inst, start, end); err != nil {
		return nil, err
	}
	log := c.log.With().Str("symbol", inst.ID).Logger()

	var records []HistoricalRecord
	err := withRetry(ctx, policyFrom(c.cfg), func() error {
		if err := sleepJitter(ctx, c.r, c.cfg.DelayMin, c.cfg.DelayMax); err != nil {
			return err
		}
		params := &chart.Params{
			Symbol:   inst.ID,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}
		iter := chart.Get(params)

		records = records[:0]
		for iter.Next() {
			bar := iter.Bar()
			o, h, l, cl := bar.Open, bar.High, bar.Low, bar.Close
			records = append(records, HistoricalRecord{
				Date:         dateOnly(time.Unix(int64(bar.Timestamp), 0).UTC()),
				Open:         &o,
				High:         &h,
				Low:          &l,
				Close:        &cl,
				Volume:       int64(bar.Volume),
				Symbol:       symbolTag(inst),
				InstrumentID: inst.ID,
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	records = clampAndSort(records, start, end)
	log.Info().Int("rows", len(records)).Msg("history fetched")
	return records, nil
}
