package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/newsgrid/crawler/cmn"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Result is everything a fetch needs to hand back to the planner and
// store: a direct reflection of http_responses's columns plus the
// decoded body.
type Result struct {
	URL             string
	FinalURL        string
	HTTPStatus      int
	ContentType     string
	ContentEncoding string
	ETag            string
	LastModified    string
	RedirectChain   []string
	Body            []byte
	RequestStarted  time.Time
	Fetched         time.Time
	TTFBMs          int64
	DownloadMs      int64
	TotalMs         int64
	BytesDownloaded int64
	TransferKbps    float64
}

// Outcome classifies a fetch for the queue state machine:
// which of completed/retriable/terminal it maps to, and why.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeRetriable
	OutcomeTerminal
)

// Conditional carries the previous response's validators, sent back as
// If-None-Match/If-Modified-Since on a re-fetch.
type Conditional struct {
	ETag         string
	LastModified string
}

// Fetcher is the host-aware pipeline: one shared *http.Client, one
// global concurrency semaphore, one hostLimiters set, one robots cache.
type Fetcher struct {
	cfg    cmn.FetchConfig
	client *http.Client
	global *semaphore.Weighted
	hosts  *hostLimiters
	robots *robotsCache
	ua     string
}

func New(cfg cmn.FetchConfig, userAgent string) *Fetcher {
	client := newClient(cfg)
	return &Fetcher{
		cfg:    cfg,
		client: client,
		global: semaphore.NewWeighted(int64(cfg.MaxGlobalConcurrency)),
		hosts:  newHostLimiters(time.Duration(cfg.DefaultHostDelayMs)*time.Millisecond, cfg.MaxHostConcurrency),
		robots: newRobotsCache(client, userAgent, cfg.RobotsTTLSeconds),
		ua:     userAgent,
	}
}

// Fetch retrieves rawURL, honoring robots.txt, global/per-host
// concurrency, redirect chains, and conditional headers. It never
// retries internally - retry/backoff scheduling is the queue's job
// (queue.Retry); Fetch reports a terminal decision via Outcome and lets
// the caller act on it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, cond Conditional) (*Result, Outcome, error) {
	if err := f.global.Acquire(ctx, 1); err != nil {
		return nil, OutcomeRetriable, errors.Wrap(err, "fetch: acquire global slot")
	}
	defer f.global.Release(1)

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, OutcomeTerminal, errors.Wrap(err, "fetch: parse url")
	}

	if !f.robots.Allowed(u.Host, u.Scheme, u.Path) {
		return nil, OutcomeTerminal, errors.New("fetch: disallowed by robots.txt")
	}

	f.hosts.Wait(u.Host)

	start := time.Now()
	chain := []string{rawURL}
	current := rawURL
	var resp *http.Response

	for redirects := 0; ; redirects++ {
		req, rErr := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if rErr != nil {
			return nil, OutcomeTerminal, errors.Wrap(rErr, "fetch: build request")
		}
		req.Header.Set("User-Agent", f.ua)
		if cond.ETag != "" {
			req.Header.Set("If-None-Match", cond.ETag)
		}
		if cond.LastModified != "" {
			req.Header.Set("If-Modified-Since", cond.LastModified)
		}

		resp, err = f.client.Do(req)
		if err != nil {
			return nil, OutcomeRetriable, errors.Wrap(err, "fetch: do request")
		}

		if isRedirect(resp.StatusCode) {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return nil, OutcomeTerminal, errors.New("fetch: redirect with no Location header")
			}
			if redirects >= f.cfg.MaxRedirects {
				return nil, OutcomeTerminal, errors.New("fetch: too many redirects")
			}
			next, pErr := url.Parse(loc)
			if pErr != nil {
				return nil, OutcomeTerminal, errors.Wrap(pErr, "fetch: parse redirect location")
			}
			absolute := u.ResolveReference(next)
			current = absolute.String()
			chain = append(chain, current)
			if absolute.Host != u.Host {
				f.hosts.Wait(absolute.Host)
			}
			u = absolute
			continue
		}
		break
	}
	defer resp.Body.Close()

	ttfb := time.Since(start)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	downloadDone := time.Since(start)
	if err != nil {
		return nil, OutcomeRetriable, errors.Wrap(err, "fetch: read body")
	}

	outcome, oErr := f.classify(u.Host, resp)
	if outcome != OutcomeCompleted {
		return nil, outcome, oErr
	}

	now := time.Now()
	total := now.Sub(start)
	result := &Result{
		URL:             rawURL,
		FinalURL:        current,
		HTTPStatus:      resp.StatusCode,
		ContentType:     resp.Header.Get("Content-Type"),
		ContentEncoding: resp.Header.Get("Content-Encoding"),
		ETag:            resp.Header.Get("ETag"),
		LastModified:    resp.Header.Get("Last-Modified"),
		RedirectChain:   chain,
		Body:            body,
		RequestStarted:  start,
		Fetched:         now,
		TTFBMs:          ttfb.Milliseconds(),
		DownloadMs:      (downloadDone - ttfb).Milliseconds(),
		TotalMs:         total.Milliseconds(),
		BytesDownloaded: int64(len(body)),
	}
	if total > 0 {
		result.TransferKbps = float64(len(body)) / 1024 / total.Seconds()
	}
	return result, OutcomeCompleted, nil
}

// classify maps an HTTP status to a queue outcome: 2xx/304 complete;
// 429 and 5xx are retriable with backoff; other 4xx (except 408) are
// terminal.
func (f *Fetcher) classify(host string, resp *http.Response) (Outcome, error) {
	switch {
	case resp.StatusCode == http.StatusNotModified:
		f.hosts.Relax(host)
		return OutcomeCompleted, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		f.hosts.Relax(host)
		return OutcomeCompleted, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		f.hosts.Penalize(host, retryAfter(resp, f.cfg.BackoffMaxMs))
		return OutcomeRetriable, errors.Errorf("fetch: 429 from %s", host)
	case resp.StatusCode == http.StatusRequestTimeout:
		return OutcomeRetriable, errors.Errorf("fetch: 408 from %s", host)
	case resp.StatusCode >= 500:
		return OutcomeRetriable, errors.Errorf("fetch: %d from %s", resp.StatusCode, host)
	case resp.StatusCode >= 400:
		return OutcomeTerminal, errors.Errorf("fetch: %d from %s", resp.StatusCode, host)
	default:
		return OutcomeCompleted, nil
	}
}

func retryAfter(resp *http.Response, maxMs int) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return time.Duration(maxMs) * time.Millisecond
	}
	if secs, err := strconv.Atoi(h); err == nil {
		d := time.Duration(secs) * time.Second
		if d > time.Duration(maxMs)*time.Millisecond {
			return time.Duration(maxMs) * time.Millisecond
		}
		return d
	}
	if when, err := http.ParseTime(h); err == nil {
		d := time.Until(when)
		if d < 0 {
			d = 0
		}
		if d > time.Duration(maxMs)*time.Millisecond {
			return time.Duration(maxMs) * time.Millisecond
		}
		return d
	}
	return time.Duration(maxMs) * time.Millisecond
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// BackoffForAttempt computes the exponential backoff delay for a
// retriable fetch failure, capped at BackoffMaxMs.
func BackoffForAttempt(cfg cmn.FetchConfig, attempt int) time.Duration {
	base := time.Duration(cfg.BackoffBaseMs) * time.Millisecond
	max := time.Duration(cfg.BackoffMaxMs) * time.Millisecond
	d := base << uint(attempt)
	if d <= 0 || d > max { // overflow or cap
		return max
	}
	return d
}
