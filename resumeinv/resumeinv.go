// Package resumeinv implements resume admission: given a
// list of paused jobs and the currently running set, compute which may
// safely resume now. It is a pure function of its inputs - no I/O, no
// clock, no db: callers gather the snapshot (queue.RunningHostsAndJobs)
// and hand it in as plain data.
package resumeinv

import (
	"net/url"
	"strings"
)

// QueueCandidate is one paused job under admission consideration.
// StartedAt is informational only (surfaced in Info, not used for
// ordering - admission order is input order).
type QueueCandidate struct {
	ID        string
	URL       string
	Args      string
	StartedAt string
}

// Decision is the per-candidate outcome recorded in Info.
type Decision struct {
	ID     string
	Domain string
	Status string // selected | blocked | queued
	Reason string // missing-source | already-running | domain-conflict | capacity-exceeded | "" (selected)
}

// Result is PlanResumeQueues's output.
type Result struct {
	Selected        []string
	Processed       []string
	Info            map[string]Decision
	BlockedDomains  []string
	RecommendedIDs  []string
}

const (
	ReasonMissingSource    = "missing-source"
	ReasonAlreadyRunning   = "already-running"
	ReasonDomainConflict   = "domain-conflict"
	ReasonCapacityExceeded = "capacity-exceeded"
)

// PlanResumeQueues is the pure admission function queues
// is evaluated in order; availableSlots caps how many may be selected;
// runningJobIDs and runningDomains reflect jobs already executing.
func PlanResumeQueues(queues []QueueCandidate, availableSlots int, runningJobIDs, runningDomains []string) Result {
	runningIDSet := toSet(runningJobIDs)
	runningDomainSet := toSet(runningDomains)
	selectedDomains := make(map[string]bool)

	res := Result{Info: make(map[string]Decision)}

	for _, q := range queues {
		res.Processed = append(res.Processed, q.ID)

		if q.ID == "" || (q.URL == "" && q.Args == "") {
			res.Info[q.ID] = Decision{ID: q.ID, Status: "blocked", Reason: ReasonMissingSource}
			continue
		}

		domain := domainOf(q.URL, q.Args)

		if runningIDSet[q.ID] {
			res.Info[q.ID] = Decision{ID: q.ID, Domain: domain, Status: "blocked", Reason: ReasonAlreadyRunning}
			continue
		}

		if domain != "" && (runningDomainSet[domain] || selectedDomains[domain]) {
			res.Info[q.ID] = Decision{ID: q.ID, Domain: domain, Status: "blocked", Reason: ReasonDomainConflict}
			res.BlockedDomains = appendUnique(res.BlockedDomains, domain)
			continue
		}

		if len(res.Selected) >= availableSlots {
			res.Info[q.ID] = Decision{ID: q.ID, Domain: domain, Status: "queued", Reason: ReasonCapacityExceeded}
			continue
		}

		res.Selected = append(res.Selected, q.ID)
		res.RecommendedIDs = append(res.RecommendedIDs, q.ID)
		if domain != "" {
			selectedDomains[domain] = true
		}
		res.Info[q.ID] = Decision{ID: q.ID, Domain: domain, Status: "selected"}
	}

	return res
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

// domainOf resolves a host from url, falling back to a bare substring
// scan of args when url is empty, for jobs whose seed is only recorded
// in their invocation args.
func domainOf(rawURL, args string) string {
	if rawURL != "" {
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			return u.Host
		}
	}
	if args != "" {
		if u, err := url.Parse(firstURLLike(args)); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return ""
}

// firstURLLike extracts the first http(s):// token from an argv-style
// string, the best-effort fallback for jobs whose seed is only recorded
// in their invocation args.
func firstURLLike(args string) string {
	idx := strings.Index(args, "http://")
	if httpsIdx := strings.Index(args, "https://"); httpsIdx != -1 && (idx == -1 || httpsIdx < idx) {
		idx = httpsIdx
	}
	if idx == -1 {
		return ""
	}
	end := len(args)
	if sp := strings.IndexAny(args[idx:], " \"'"); sp != -1 {
		end = idx + sp
	}
	return args[idx:end]
}
