package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Session is one established browsing session against a source: the
// cookie set captured from a successful bootstrap plus the identity it was
// acquired under. Sessions live in memory only and are recreated on
// demand; they are never persisted across process restarts.
type Session struct {
	Cookies  []*http.Cookie
	Identity Identity
}

// sessionManager owns the per-source cookie lifecycle. Acquisition runs a
// bootstrap GET against the source home page under a fresh identity; a 403
// carrying a challenge form gets one in-attempt grace retry before the
// attempt counts as failed. Refresh is single-flight: when concurrent
// workers hit 403 together, the first refresh wins and the rest adopt its
// result instead of re-bootstrapping.
type sessionManager struct {
	mu  sync.Mutex
	cur *Session

	homeURL    string
	attempts   int
	grace      time.Duration
	timeout    time.Duration
	r          rng
	userAgents []string
	profiles   []string
	log        zerolog.Logger
}

func newSessionManager(kind SourceKind, homeURL string, attempts int, grace, timeout time.Duration, r rng, userAgents, profiles []string, log zerolog.Logger) *sessionManager {
	return &sessionManager{
		homeURL:    homeURL,
		attempts:   attempts,
		grace:      grace,
		timeout:    timeout,
		r:          r,
		userAgents: userAgents,
		profiles:   profiles,
		log:        log.With().Str("source", string(kind)).Logger(),
	}
}

// Get returns the live session, bootstrapping one lazily on first need.
func (m *sessionManager) Get(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		return m.cur, nil
	}
	s, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	m.cur = s
	return s, nil
}

// Refresh replaces the session the caller found stale. If another worker
// already swapped it, the current session is returned untouched, so one
// burst of concurrent 403s triggers exactly one re-acquisition.
func (m *sessionManager) Refresh(ctx context.Context, stale *Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil && m.cur != stale {
		return m.cur, nil
	}
	m.cur = nil
	s, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	m.cur = s
	return s, nil
}

// acquire runs the bootstrap sequence. Caller holds the lock.
func (m *sessionManager) acquire(ctx context.Context) (*Session, error) {
	for attempt := 1; attempt <= m.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.grace):
			}
		}

		id := PickIdentity(m.r, m.userAgents, m.profiles)
		client := resty.New().
			SetTimeout(m.timeout).
			SetHeader("User-Agent", id.UserAgent).
			SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
			SetHeader("Accept-Language", "en-US,en;q=0.6")

		resp, err := client.R().SetContext(ctx).Get(m.homeURL)
		if err != nil {
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("session bootstrap request failed")
			continue
		}
		m.log.Debug().Int("attempt", attempt).Int("status", resp.StatusCode()).Msg("session bootstrap response")

		if resp.StatusCode() == http.StatusForbidden && hasChallengeForm(resp.Body()) {
			m.log.Warn().Int("attempt", attempt).Msg("challenge page detected, waiting it out")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.grace):
			}
			resp, err = client.R().SetContext(ctx).Get(m.homeURL)
			if err != nil {
				m.log.Warn().Err(err).Int("attempt", attempt).Msg("post-challenge request failed")
				continue
			}
		}

		if resp.StatusCode() == http.StatusOK {
			m.log.Info().Int("attempt", attempt).Str("profile", id.Profile).Msg("session established")
			return &Session{Cookies: m.jarCookies(client, resp), Identity: id}, nil
		}
		m.log.Warn().Int("attempt", attempt).Int("status", resp.StatusCode()).Msg("session bootstrap rejected")
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrSession, m.attempts)
}

// jarCookies collects everything the bootstrap exchange set, preferring
// the accumulated jar over the final response's Set-Cookie alone.
func (m *sessionManager) jarCookies(client *resty.Client, resp *resty.Response) []*http.Cookie {
	if jar := client.GetClient().Jar; jar != nil {
		if u, err := url.Parse(m.homeURL); err == nil {
			if cs := jar.Cookies(u); len(cs) > 0 {
				return cs
			}
		}
	}
	return resp.Cookies()
}

// hasChallengeForm reports whether a 403 body is an anti-bot interstitial
// rather than a plain rejection.
func hasChallengeForm(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find("form#challenge-form").Length() > 0
}
