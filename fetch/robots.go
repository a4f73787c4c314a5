package fetch

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/newsgrid/crawler/cmn"
	"github.com/temoto/robotstxt"
)

// robotsCache fetches and caches /robots.txt per host for
// RobotsTTLSeconds, parsed with temoto/robotstxt. A fetch failure (network
// error, non-2xx other than 404) is treated permissively: the host is
// cached as "allow all" for a short grace period rather than blocking the
// whole host on a transient robots.txt outage.
type robotsCache struct {
	client *http.Client
	ttl    time.Duration
	ua     string

	mu      sync.Mutex
	entries map[string]*robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData // nil means "allow all"
	expiresAt time.Time
}

func newRobotsCache(client *http.Client, ua string, ttlSeconds int) *robotsCache {
	return &robotsCache{
		client:  client,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		ua:      ua,
		entries: make(map[string]*robotsEntry),
	}
}

// Allowed reports whether path may be fetched on host under the
// configured user agent, transparently refreshing the cached robots.txt
// once its TTL has elapsed.
func (c *robotsCache) Allowed(host, scheme, path string) bool {
	entry := c.get(host, scheme)
	if entry.data == nil {
		return true
	}
	return entry.data.TestAgent(path, c.ua)
}

func (c *robotsCache) get(host, scheme string) *robotsEntry {
	c.mu.Lock()
	entry, ok := c.entries[host]
	c.mu.Unlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry
	}

	fresh := c.fetch(host, scheme)
	c.mu.Lock()
	c.entries[host] = fresh
	c.mu.Unlock()
	return fresh
}

func (c *robotsCache) fetch(host, scheme string) *robotsEntry {
	url := scheme + "://" + host + "/robots.txt"
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return &robotsEntry{expiresAt: time.Now().Add(c.ttl)}
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.client.Do(req)
	if err != nil {
		return &robotsEntry{expiresAt: time.Now().Add(cmn.RobotsErrorGrace)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &robotsEntry{expiresAt: time.Now().Add(c.ttl)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &robotsEntry{expiresAt: time.Now().Add(cmn.RobotsErrorGrace)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &robotsEntry{expiresAt: time.Now().Add(cmn.RobotsErrorGrace)}
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return &robotsEntry{expiresAt: time.Now().Add(c.ttl)}
	}
	return &robotsEntry{data: data, expiresAt: time.Now().Add(c.ttl)}
}
