// Package fetch implements the host-aware fetch pipeline:
// a global concurrency cap, a per-host limiter with adaptive backoff,
// robots.txt enforcement, conditional requests, and redirect-chain
// recording. One long-lived HTTP client is shared across hosts; pacing
// is per host, through one rate limiter each.
package fetch

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/newsgrid/crawler/cmn"
)

// newClient builds the single long-lived *http.Client, from the
// configured connect/total timeouts, reused across all hosts. Redirects are never
// auto-followed: Fetcher.Fetch walks the chain itself so each hop can be
// recorded and rate-limited against its own host.
func newClient(cfg cmn.FetchConfig) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   cfg.MaxHostConcurrency * 2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: cfg.TotalTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.TotalTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
