// Package queue implements the URL/queue state machine:
// each CrawlJob owns a persistent queue of URLs annotated with depth,
// origin and role, progressing through
// new -> queued -> in-flight -> {completed | error-retriable | error-terminal}.
// Each job gets one bounded in-memory window backed by durable state,
// spilling to the db when full.
package queue

import (
	"time"

	"github.com/newsgrid/crawler/cmn"
)

// Entry is a URL queued within a single job. URLID is the shared
// urls.id; JobID scopes everything else, since queue state is job-scoped
// while the URL table is shared reference data.
type Entry struct {
	URLID    int64
	JobID    string
	URL      string
	Host     string
	Depth    int
	Origin   string // seed | sitemap | link | pattern-probe
	Role     string // frontier | retry | probe
	Priority int    // lower value dequeues first
	NotBefore time.Time // retry delay: entry is not eligible until this time
	RetryCount int
}

// State aliases the cmn.URLState* constants for readability within this
// package; crawl_tasks.status stores these values verbatim.
const (
	StateNew            = cmn.URLStateNew
	StateQueued         = cmn.URLStateQueued
	StateInFlight       = cmn.URLStateInFlight
	StateCompleted      = cmn.URLStateCompleted
	StateErrorRetriable = cmn.URLStateErrorRetriable
	StateErrorTerminal  = cmn.URLStateErrorTerminal
)
