// Control-plane surface exposed to collaborators: startJob,
// pauseJob, resumeJob, cancelJob, listJobs, getJob, listQueueEvents,
// getResumeInventory, resumeAll, clearQueues. Every lower-case stage
// method in job.go does the actual work; these exported wrappers are the
// only entry points a cmd/ process should call.
package planner

import (
	"database/sql"

	"github.com/newsgrid/crawler/cmn"
	"github.com/newsgrid/crawler/resumeinv"
	"github.com/pkg/errors"
)

// JobSummary is one row of ListJobs/GetJob's result.
type JobSummary struct {
	ID          string
	URL         string
	Status      string
	StartedAt   string
	EndedAt     string
	CrawlType   string
}

// QueueEvent is one row of ListQueueEvents's result, mirroring the
// queue_events table.
type QueueEvent struct {
	ID        int64
	Ts        string
	Action    string
	URL       string
	Depth     int
	Host      string
	Reason    string
	QueueSize int
	Origin    string
	Role      string
}

// StartJob creates the crawl_jobs row and launches its fetch loop
//: synchronous creation, asynchronous execution.
func (p *Planner) StartJob(args JobArgs) (jobID string, err error) {
	jobID, err = p.startJob(args)
	if err != nil {
		return "", err
	}
	if err := p.runJob(jobID); err != nil {
		return "", err
	}
	return jobID, nil
}

// PauseJob drains the job's in-flight fetch and persists its queue
// state.
func (p *Planner) PauseJob(jobID string) error { return p.pauseJob(jobID) }

// ResumeJob restarts a paused job's fetch loop. Callers should have
// already checked GetResumeInventory to confirm admission;
// ResumeJob does not itself consult resumeinv, it only rebuilds state.
func (p *Planner) ResumeJob(jobID string) error { return p.resumeJob(jobID) }

// CancelJob cooperatively stops a running job; final status=aborted.
func (p *Planner) CancelJob(jobID string) error { return p.cancelJob(jobID) }

// ListJobs returns every crawl_jobs row, most recent first.
func (p *Planner) ListJobs() ([]JobSummary, error) {
	rows, err := p.db.SQL().Query(`
		SELECT j.id, u.url, j.status, j.started_at, COALESCE(j.ended_at, ''), COALESCE(t.name, '')
		FROM crawl_jobs j
		JOIN urls u ON u.id = j.url_id
		LEFT JOIN crawl_types t ON t.id = j.crawl_type_id
		ORDER BY j.started_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "planner: list jobs")
	}
	defer rows.Close()

	var out []JobSummary
	for rows.Next() {
		var s JobSummary
		if err := rows.Scan(&s.ID, &s.URL, &s.Status, &s.StartedAt, &s.EndedAt, &s.CrawlType); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetJob returns one crawl_jobs row by id.
func (p *Planner) GetJob(jobID string) (JobSummary, error) {
	var s JobSummary
	s.ID = jobID
	row := p.db.SQL().QueryRow(`
		SELECT u.url, j.status, j.started_at, COALESCE(j.ended_at, ''), COALESCE(t.name, '')
		FROM crawl_jobs j
		JOIN urls u ON u.id = j.url_id
		LEFT JOIN crawl_types t ON t.id = j.crawl_type_id
		WHERE j.id = ?`, jobID)
	err := row.Scan(&s.URL, &s.Status, &s.StartedAt, &s.EndedAt, &s.CrawlType)
	if errors.Is(err, sql.ErrNoRows) {
		return JobSummary{}, errors.Errorf("planner: job %s not found", jobID)
	}
	if err != nil {
		return JobSummary{}, err
	}
	return s, nil
}

// ListQueueEvents returns a job's queue_events, most recent first,
// capped at limit.
func (p *Planner) ListQueueEvents(jobID string, limit int) ([]QueueEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.SQL().Query(`
		SELECT e.id, e.ts, e.action, u.url, e.depth, e.host,
			COALESCE(e.reason, ''), e.queue_size, COALESCE(e.origin, ''), COALESCE(e.role, '')
		FROM queue_events e
		JOIN urls u ON u.id = e.url_id
		WHERE e.job_id = ?
		ORDER BY e.id DESC
		LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "planner: list queue events")
	}
	defer rows.Close()

	var out []QueueEvent
	for rows.Next() {
		var e QueueEvent
		if err := rows.Scan(&e.ID, &e.Ts, &e.Action, &e.URL, &e.Depth, &e.Host,
			&e.Reason, &e.QueueSize, &e.Origin, &e.Role); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetResumeInventory gathers every paused, resume-eligible job along with
// the currently running set and hands both to
// resumeinv.PlanResumeQueues. availableSlots bounds how many
// jobs the plan may select; callers pass cmn.PlannerConfig-derived
// capacity or their own override.
func (p *Planner) GetResumeInventory(availableSlots int) (resumeinv.Result, error) {
	candidates, err := p.pausedCandidates()
	if err != nil {
		return resumeinv.Result{}, err
	}
	runningJobIDs, hostsByJob, err := p.q.RunningHostsAndJobs()
	if err != nil {
		return resumeinv.Result{}, errors.Wrap(err, "planner: running hosts")
	}
	var runningDomains []string
	for _, hosts := range hostsByJob {
		runningDomains = append(runningDomains, hosts...)
	}
	return resumeinv.PlanResumeQueues(candidates, availableSlots, runningJobIDs, runningDomains), nil
}

// ResumeAll runs admission over queueIDs (or every paused job, if
// empty) and resumes every selected one. It returns the admission result
// so callers can see what was blocked and why.
func (p *Planner) ResumeAll(queueIDs []string, maxConcurrent int) (resumeinv.Result, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = p.fetchCfg.MaxGlobalConcurrency
		if maxConcurrent <= 0 {
			maxConcurrent = 1
		}
	}

	candidates, err := p.pausedCandidates()
	if err != nil {
		return resumeinv.Result{}, err
	}
	if len(queueIDs) > 0 {
		wanted := make(map[string]bool, len(queueIDs))
		for _, id := range queueIDs {
			wanted[id] = true
		}
		filtered := candidates[:0]
		for _, c := range candidates {
			if wanted[c.ID] {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	runningJobIDs, hostsByJob, err := p.q.RunningHostsAndJobs()
	if err != nil {
		return resumeinv.Result{}, errors.Wrap(err, "planner: running hosts")
	}
	var runningDomains []string
	for _, hosts := range hostsByJob {
		runningDomains = append(runningDomains, hosts...)
	}

	plan := resumeinv.PlanResumeQueues(candidates, maxConcurrent, runningJobIDs, runningDomains)
	for _, id := range plan.Selected {
		if err := p.resumeJob(id); err != nil {
			return plan, errors.Wrapf(err, "planner: resume job %s", id)
		}
	}
	return plan, nil
}

// ClearQueues releases every job's in-memory queue state. Durable rows
// are untouched; paused jobs remain
// resume-eligible and rebuild their window from the db on the next
// ResumeJob, exactly as an ordinary resume does.
func (p *Planner) ClearQueues() {
	p.q.ClearAll()
}

// pausedCandidates loads every status=paused, not-yet-ended job as a
// resumeinv.QueueCandidate.
func (p *Planner) pausedCandidates() ([]resumeinv.QueueCandidate, error) {
	rows, err := p.db.SQL().Query(`
		SELECT j.id, u.url, j.args, j.started_at
		FROM crawl_jobs j
		JOIN urls u ON u.id = j.url_id
		WHERE j.status = ? AND j.ended_at IS NULL`, cmn.JobStatusPaused)
	if err != nil {
		return nil, errors.Wrap(err, "planner: paused candidates")
	}
	defer rows.Close()

	var out []resumeinv.QueueCandidate
	for rows.Next() {
		var c resumeinv.QueueCandidate
		if err := rows.Scan(&c.ID, &c.URL, &c.Args, &c.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
