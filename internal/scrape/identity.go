package scrape

import (
	"math/rand"
	"net/url"
	"sync"
)

// rng is the random source identity selection and delay jitter draw from.
// *rand.Rand satisfies it; tests pass a seeded instance for reproducible
// draws. There is deliberately no package-level random state.
type rng interface {
	Intn(n int) int
	Float64() float64
}

// lockedRand makes one rand.Rand usable from concurrent workers.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Identity is one randomized client identity: a user agent plus a browser
// impersonation profile. Identities are drawn fresh per use and are not
// stable across retries; that instability is the anti-fingerprinting
// property, not a bug.
type Identity struct {
	UserAgent string
	Profile   string
}

// PickIdentity draws an identity from the given pools. Pure given r: the
// same seed and pools always produce the same identity.
func PickIdentity(r rng, userAgents, profiles []string) Identity {
	id := Identity{}
	if len(userAgents) > 0 {
		id.UserAgent = userAgents[r.Intn(len(userAgents))]
	}
	if len(profiles) > 0 {
		id.Profile = profiles[r.Intn(len(profiles))]
	}
	return id
}

// apiHeaders builds the header set the exchanges expect on their JSON/XHR
// endpoints. host and origin come from the source profile.
func apiHeaders(id Identity, host, origin string) map[string]string {
	return map[string]string{
		"Accept":             "application/json, text/plain, */*",
		"Accept-Language":    "en-US,en;q=0.6",
		"Connection":         "keep-alive",
		"Host":               host,
		"Origin":             origin,
		"Referer":            origin + "/",
		"Sec-Ch-Ua-Mobile":   "?0",
		"Sec-Ch-Ua-Platform": `"Windows"`,
		"Sec-Fetch-Dest":     "empty",
		"Sec-Fetch-Mode":     "cors",
		"Sec-Fetch-Site":     "same-site",
		"Sec-Gpc":            "1",
		"User-Agent":         id.UserAgent,
	}
}

// documentHeaders builds the header set for full-page navigations, i.e.
// the ASPX form GET/POST sequence. The referer replays the parameterized
// page URL the way a browser resubmitting the form would.
func documentHeaders(id Identity, pageURL string, params url.Values) map[string]string {
	referer := pageURL
	if len(params) > 0 {
		referer += "?" + params.Encode()
	}
	u, err := url.Parse(pageURL)
	host := ""
	origin := ""
	if err == nil {
		host = u.Host
		origin = u.Scheme + "://" + u.Host
	}
	return map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.6",
		"Cache-Control":             "no-cache",
		"Connection":                "keep-alive",
		"Content-Type":              "application/x-www-form-urlencoded",
		"Host":                      host,
		"Origin":                    origin,
		"Pragma":                    "no-cache",
		"Referer":                   referer,
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "same-origin",
		"Sec-Fetch-User":            "?1",
		"Upgrade-Insecure-Requests": "1",
		"User-Agent":                id.UserAgent,
	}
}
