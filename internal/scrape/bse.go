package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/vslabs/scripscrapo/internal/config"
)

// BSEClient talks to the Bombay Stock Exchange. Search scrapes the quote
// autocomplete markup; history drives the ASPX price-history page through
// its GET-then-POST form flow and accepts either a CSV attachment or, as
// fallback, the rendered HTML table.
type BSEClient struct {
	cfg      *config.Config
	src      config.SourceConfig
	sessions *sessionManager
	r        rng
	log      zerolog.Logger
}

func NewBSEClient(cfg *config.Config, r rng, log zerolog.Logger) *BSEClient {
	return &BSEClient{
		cfg: cfg,
		src: cfg.BSE,
		sessions: newSessionManager(SourceBSE, cfg.BSE.HomeURL, cfg.SessionAttempts,
			cfg.SessionGrace, cfg.BootstrapTimeout, r, cfg.UserAgents, cfg.Profiles, log),
		r:   r,
		log: log.With().Str("source", "bse").Logger(),
	}
}

func (c *BSEClient) Kind() SourceKind { return SourceBSE }

func (c *BSEClient) Search(ctx context.Context, query string) ([]Instrument, error) {
	sess, err := c.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}

	var out []Instrument
	err = withRetry(ctx, policyFrom(c.cfg), func() error {
		if err := sleepJitter(ctx, c.r, c.cfg.DelayMin, c.cfg.DelayMax); err != nil {
			return err
		}
		id := PickIdentity(c.r, c.cfg.UserAgents, c.cfg.Profiles)
		client := resty.New().
			SetTimeout(c.cfg.BootstrapTimeout).
			SetHeaders(apiHeaders(id, hostOf(c.src.SearchURL), originOf(c.src.HomeURL))).
			SetCookies(sess.Cookies)

		resp, err := client.R().SetContext(ctx).
			SetQueryParams(map[string]string{"Type": "EQ", "text": query, "flag": "site"}).
			Get(c.src.SearchURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		if resp.StatusCode() == http.StatusForbidden {
			c.log.Warn().Msg("search rejected, refreshing session")
			if sess, err = c.sessions.Refresh(ctx, sess); err != nil {
				return err
			}
			return fmt.Errorf("%w: search got 403", ErrTransient)
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("%w: search status %d", ErrTransient, resp.StatusCode())
		}
		out, err = parseBSESearch(resp.Body())
		return err
	})
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("query", query).Int("results", len(out)).Msg("search complete")
	return out, nil
}

// parseBSESearch extracts instruments from the quote-search list items.
// Each hit is an anchor whose text up to the first <br> is the company
// name, with ISIN and scrip code inside a trailing span.
func parseBSESearch(body []byte) ([]Instrument, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var out []Instrument
	doc.Find("li[class*='quotemenu']").Each(func(_ int, li *goquery.Selection) {
		anchor := li.Find("a").First()
		if anchor.Length() == 0 {
			return
		}

		var name strings.Builder
		anchor.Contents().EachWithBreak(func(_ int, n *goquery.Selection) bool {
			if goquery.NodeName(n) == "br" {
				return false
			}
			if goquery.NodeName(n) == "span" {
				return true
			}
			name.WriteString(strings.TrimSpace(n.Text()))
			return true
		})
		desc := name.String()
		if desc == "" || desc == "No Match Found" {
			return
		}

		var isin, scrip string
		for _, part := range strings.Fields(anchor.Find("span").Text()) {
			switch {
			case isin == "" && strings.HasPrefix(part, "INE"):
				isin = part
			case scrip == "" && isDigits(part):
				scrip = part
			}
		}
		if scrip == "" {
			return
		}
		out = append(out, Instrument{
			ID:          scrip,
			Description: desc,
			Symbol:      scrip,
			Exchange:    "BSE",
			Type:        "Stock - BSE",
			ISIN:        isin,
		})
	})
	return out, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *BSEClient) FetchHistory(ctx context.Context, inst Instrument, start, end time.Time) ([]HistoricalRecord, error) {
	if err := validateFetch(inst, start, end); err != nil {
		return nil, err
	}
	sess, err := c.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("expandable", "7")
	params.Set("scripcode", inst.ID)
	params.Set("flag", "sp")
	params.Set("Submit", "G")
	pageURL := c.src.HistoryURL + "?" + params.Encode()
	log := c.log.With().Str("scrip", inst.ID).Logger()

	var records []HistoricalRecord
	err = withRetry(ctx, policyFrom(c.cfg), func() error {
		if err := sleepJitter(ctx, c.r, c.cfg.DelayMin, c.cfg.DelayMax); err != nil {
			return err
		}
		id := PickIdentity(c.r, c.cfg.UserAgents, c.cfg.Profiles)
		client := resty.New().
			SetTimeout(c.cfg.FormTimeout).
			SetHeaders(documentHeaders(id, c.src.HistoryURL, params)).
			SetCookies(sess.Cookies)

		resp, err := client.R().SetContext(ctx).Get(pageURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		if refreshed, err := c.handleStatus(ctx, resp.StatusCode(), &sess, log); refreshed || err != nil {
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: form page got 403", ErrTransient)
		}

		tokens, err := extractFormTokens(resp.Body())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}

		post, err := client.R().SetContext(ctx).
			SetFormDataFromValues(bseHistoryPayload(tokens, inst, start, end)).
			Post(pageURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		if refreshed, err := c.handleStatus(ctx, post.StatusCode(), &sess, log); refreshed || err != nil {
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: form submit got 403", ErrTransient)
		}

		records, err = c.parseHistoryResponse(post, inst, log)
		return err
	})
	if err != nil {
		return nil, err
	}
	records = clampAndSort(records, start, end)
	log.Info().Int("rows", len(records)).Msg("history fetched")
	return records, nil
}

// handleStatus folds the shared status handling: 403 invalidates the
// session and re-acquires it synchronously before the next attempt; any
// other non-200 is left to the caller as transient.
func (c *BSEClient) handleStatus(ctx context.Context, status int, sess **Session, log zerolog.Logger) (bool, error) {
	switch {
	case status == http.StatusForbidden:
		log.Warn().Msg("access forbidden, refreshing session")
		refreshed, err := c.sessions.Refresh(ctx, *sess)
		if err != nil {
			return true, err
		}
		*sess = refreshed
		return true, nil
	case status != http.StatusOK:
		return false, fmt.Errorf("%w: status %d", ErrTransient, status)
	}
	return false, nil
}

// bseFormTokens are the anti-forgery fields the ASPX page embeds; a
// submission must replay all three verbatim.
type bseFormTokens struct {
	viewState          string
	viewStateGenerator string
	eventValidation    string
}

func extractFormTokens(body []byte) (bseFormTokens, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return bseFormTokens{}, err
	}
	tokens := bseFormTokens{}
	fields := map[string]*string{
		"__VIEWSTATE":          &tokens.viewState,
		"__VIEWSTATEGENERATOR": &tokens.viewStateGenerator,
		"__EVENTVALIDATION":    &tokens.eventValidation,
	}
	for name, dst := range fields {
		val, ok := doc.Find(fmt.Sprintf("input[name=%q]", name)).Attr("value")
		if !ok {
			return bseFormTokens{}, fmt.Errorf("form token %s missing", name)
		}
		*dst = val
	}
	return tokens, nil
}

// bseHistoryPayload assembles the full postback the price-history form
// expects: replayed tokens, scrip identity, day-first dates and the daily
// frequency selection that makes the server emit per-day rows.
func bseHistoryPayload(tokens bseFormTokens, inst Instrument, start, end time.Time) url.Values {
	const dayFirst = "02/01/2006"
	from := start.Format(dayFirst)
	to := end.Format(dayFirst)

	v := url.Values{}
	v.Set("__EVENTTARGET", "")
	v.Set("__EVENTARGUMENT", "")
	v.Set("__VIEWSTATE", tokens.viewState)
	v.Set("__VIEWSTATEGENERATOR", tokens.viewStateGenerator)
	v.Set("__VIEWSTATEENCRYPTED", "")
	v.Set("__EVENTVALIDATION", tokens.eventValidation)

	v.Set("ctl00$ContentPlaceHolder1$hdnCode", inst.ID)
	v.Set("ctl00$ContentPlaceHolder1$hiddenScripCode", inst.ID)
	v.Set("ctl00$ContentPlaceHolder1$hidCompanyVal", inst.Description)

	v.Set("ctl00$ContentPlaceHolder1$txtFromDate", from)
	v.Set("ctl00$ContentPlaceHolder1$txtToDate", to)
	v.Set("ctl00$ContentPlaceHolder1$hidFromDate", from)
	v.Set("ctl00$ContentPlaceHolder1$hidToDate", to)
	v.Set("ctl00$ContentPlaceHolder1$hidCurrentDate", time.Now().Format("02/01/2006 12:00:00 AM"))

	// Daily frequency; anything else collapses the series.
	v.Set("ctl00$ContentPlaceHolder1$DMY", "rdbDaily")
	v.Set("ctl00$ContentPlaceHolder1$hidDMY", "D")
	v.Set("ctl00$ContentPlaceHolder1$hdflag", "0")

	v.Set("ctl00$ContentPlaceHolder1$smartSearch", inst.Description)
	v.Set("ctl00$ContentPlaceHolder1$scripname", inst.Description)
	v.Set("ctl00$ContentPlaceHolder1$Hidden4", inst.Description)

	v.Set("ctl00$ContentPlaceHolder1$ddlsetllementcal", "0")

	v.Set("ctl00$ContentPlaceHolder1$DDate", "")
	v.Set("ctl00$ContentPlaceHolder1$hidYear", "")
	v.Set("ctl00$ContentPlaceHolder1$hidOldDMY", "")
	v.Set("ctl00$ContentPlaceHolder1$Hidden1", "")

	v.Set("ctl00$ContentPlaceHolder1$btnSubmit", "Submit")
	return v
}

// parseHistoryResponse decides between the CSV attachment and the HTML
// fallback by the response headers, exactly as a browser download would.
func (c *BSEClient) parseHistoryResponse(resp *resty.Response, inst Instrument, log zerolog.Logger) ([]HistoricalRecord, error) {
	contentType := strings.ToLower(resp.Header().Get("Content-Type"))
	disposition := strings.ToLower(resp.Header().Get("Content-Disposition"))

	if strings.Contains(contentType, "excel") || strings.Contains(contentType, "csv") ||
		strings.Contains(disposition, "csv") {
		records, badRows, err := parseCSVHistory(bytes.NewReader(resp.Body()), inst, log)
		if err != nil {
			dumpDebug(c.cfg.DebugDir, "bse_csv_"+inst.ID+".txt", resp.Body(), log)
			return nil, err
		}
		if len(badRows) > 0 {
			log.Warn().Int("rows", len(badRows)).Msg("malformed CSV rows skipped")
			dumpDebug(c.cfg.DebugDir, "bse_badrows_"+inst.ID+".txt",
				[]byte(strings.Join(badRows, "\n")), log)
		}
		return records, nil
	}

	log.Debug().Msg("response is HTML, scraping table")
	records, err := parseHTMLTable(resp.Body(), inst)
	if err != nil {
		dumpDebug(c.cfg.DebugDir, "bse_response_"+inst.ID+".html", resp.Body(), log)
		return nil, err
	}
	return records, nil
}
