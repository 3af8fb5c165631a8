package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vslabs/scripscrapo/internal/config"
)

// InvestingClient talks to the Investing.com financial portal. Search
// walks a fallback chain of endpoints (the portal keeps moving it);
// history is a single parameterized GET returning a JSON envelope.
type InvestingClient struct {
	cfg      *config.Config
	src      config.SourceConfig
	sessions *sessionManager
	r        rng
	log      zerolog.Logger
}

func NewInvestingClient(cfg *config.Config, r rng, log zerolog.Logger) *InvestingClient {
	return &InvestingClient{
		cfg: cfg,
		src: cfg.Investing,
		sessions: newSessionManager(SourceInvesting, cfg.Investing.HomeURL, cfg.SessionAttempts,
			cfg.SessionGrace, cfg.BootstrapTimeout, r, cfg.UserAgents, cfg.Profiles, log),
		r:   r,
		log: log.With().Str("source", "investing").Logger(),
	}
}

func (c *InvestingClient) Kind() SourceKind { return SourceInvesting }

func (c *InvestingClient) newClient(sess *Session, searchHost string, timeout time.Duration) *resty.Client {
	id := PickIdentity(c.r, c.cfg.UserAgents, c.cfg.Profiles)
	return resty.New().
		SetTimeout(timeout).
		SetHeaders(apiHeaders(id, searchHost, originOf(c.src.HomeURL))).
		SetHeader("Domain-Id", "www").
		SetCookies(sess.Cookies)
}

type investingQuote struct {
	ID          json.Number `json:"id"`
	Description string      `json:"description"`
	Symbol      string      `json:"symbol"`
	Exchange    string      `json:"exchange"`
	Flag        string      `json:"flag"`
	Type        string      `json:"type"`
	URL         string      `json:"url"`
}

func (c *InvestingClient) Search(ctx context.Context, query string) ([]Instrument, error) {
	sess, err := c.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}

	for _, searchURL := range c.src.SearchURLs {
		if err := sleepJitter(ctx, c.r, c.cfg.DelayMin, c.cfg.DelayMax); err != nil {
			return nil, err
		}
		client := c.newClient(sess, hostOf(searchURL), c.cfg.BootstrapTimeout)
		resp, err := client.R().SetContext(ctx).
			SetQueryParam("q", query).
			Get(searchURL)
		if err != nil {
			c.log.Warn().Err(err).Str("url", searchURL).Msg("search endpoint unreachable")
			continue
		}

		switch resp.StatusCode() {
		case http.StatusOK:
			var payload struct {
				Quotes []investingQuote `json:"quotes"`
			}
			if err := json.Unmarshal(resp.Body(), &payload); err != nil {
				c.log.Warn().Err(err).Str("url", searchURL).Msg("search payload not JSON")
				continue
			}
			if len(payload.Quotes) == 0 {
				continue
			}
			out := make([]Instrument, 0, len(payload.Quotes))
			for _, q := range payload.Quotes {
				out = append(out, Instrument{
					ID:          q.ID.String(),
					Description: q.Description,
					Symbol:      q.Symbol,
					Exchange:    q.Exchange,
					Type:        q.Type,
				})
			}
			c.log.Info().Str("query", query).Int("results", len(out)).Msg("search complete")
			return out, nil
		case http.StatusForbidden:
			c.log.Warn().Str("url", searchURL).Msg("search rejected, refreshing session")
			if sess, err = c.sessions.Refresh(ctx, sess); err != nil {
				return nil, err
			}
		default:
			c.log.Warn().Int("status", resp.StatusCode()).Str("url", searchURL).Msg("search endpoint failed")
		}
	}
	// Every endpoint came back empty or unusable: report no matches.
	return nil, nil
}

func (c *InvestingClient) FetchHistory(ctx context.Context, inst Instrument, start, end time.Time) ([]HistoricalRecord, error) {
	if err := validateFetch(inst, start, end); err != nil {
		return nil, err
	}
	sess, err := c.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}

	histURL := c.src.HistoryURL + inst.ID
	log := c.log.With().Str("id", inst.ID).Logger()

	var records []HistoricalRecord
	err = withRetry(ctx, policyFrom(c.cfg), func() error {
		if err := sleepJitter(ctx, c.r, c.cfg.DelayMin, c.cfg.DelayMax); err != nil {
			return err
		}
		client := c.newClient(sess, hostOf(histURL), c.cfg.BootstrapTimeout)
		resp, err := client.R().SetContext(ctx).
			SetQueryParams(map[string]string{
				"start-date": start.Format("2006-01-02"),
				"end-date":   end.Format("2006-01-02"),
				"time-frame": "Daily",
				// Skip non-trading days instead of padding them.
				"add-missing-rows": "false",
			}).
			Get(histURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}

		switch resp.StatusCode() {
		case http.StatusOK:
			records = c.parseHistory(resp.Body(), inst, log)
			return nil
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

// investingRow is one element of the portal's historical payload. Raw
// fields carry machine values; the display fields repeat them with
// thousands separators and are ignored here.
type investingRow struct {
	RowDate     string      `json:"rowDate"`
	LastOpenRaw json.Number `json:"last_openRaw"`
	LastMaxRaw  json.Number `json:"last_maxRaw"`
	LastMinRaw  json.Number `json:"last_minRaw"`
	LastClose   json.Number `json:"last_closeRaw"`
	VolumeRaw   json.Number `json:"volumeRaw"`
}

// parseHistory accepts either the {"data": [...]} envelope or a bare
// list. Unknown shapes yield an empty series with a warning rather than
// an error: the portal occasionally answers with decorated variants and a
// missing day is recoverable, a crashed batch is not.
func (c *InvestingClient) parseHistory(body []byte, inst Instrument, log zerolog.Logger) []HistoricalRecord {
	var envelope struct {
		Data []investingRow `json:"data"`
	}
	var rows []investingRow
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		rows = envelope.Data
	} else if err := json.Unmarshal(body, &rows); err != nil {
		log.Warn().Msg("unexpected history payload shape, returning empty series")
		dumpDebug(c.cfg.DebugDir, "investing_"+inst.ID+".json", body, log)
		return nil
	}

	records := make([]HistoricalRecord, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse("Jan 02, 2006", row.RowDate)
		if err != nil {
			log.Warn().Str("rowDate", row.RowDate).Msg("skipping row with unreadable date")
			continue
		}
		records = append(records, HistoricalRecord{
			Date:         dateOnly(date),
			Open:         numberPrice(row.LastOpenRaw),
			High:         numberPrice(row.LastMaxRaw),
			Low:          numberPrice(row.LastMinRaw),
			Close:        numberPrice(row.LastClose),
			Volume:       numberVolume(row.VolumeRaw),
			Symbol:       symbolTag(inst),
			InstrumentID: inst.ID,
		})
	}
	return records
}

func numberPrice(n json.Number) *decimal.Decimal {
	if n.String() == "" {
		return nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil
	}
	return &d
}

func numberVolume(n json.Number) int64 {
	if n.String() == "" {
		return 0
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0
	}
	return d.IntPart()
}
