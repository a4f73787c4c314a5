package queue

import (
	"database/sql"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/pkg/errors"
	"github.com/seiflotfy/cuckoofilter"
)

// Queue is the persistent, resumable per-job URL queue. One Queue
// instance serves every job in the process;
// per-job state (the bounded window and its cuckoo-filter dedup
// prefilter) is created lazily on first use.
type Queue struct {
	db  *crawlerdb.DB
	cfg cmn.QueueConfig

	mu   sync.Mutex
	jobs map[string]*jobState
}

type jobState struct {
	mu     sync.Mutex
	window *window
	seen   *cuckoo.Filter // probabilistic "definitely not enqueued before" prefilter
}

func New(database *crawlerdb.DB, cfg cmn.QueueConfig) *Queue {
	return &Queue{db: database, cfg: cfg, jobs: make(map[string]*jobState)}
}

func (q *Queue) jobStateFor(jobID string) *jobState {
	q.mu.Lock()
	defer q.mu.Unlock()
	js, ok := q.jobs[jobID]
	if !ok {
		js = &jobState{
			window: newWindow(q.cfg.WindowSize),
			seen:   cuckoo.NewFilter(1 << 16),
		}
		q.jobs[jobID] = js
	}
	return js
}

// DropJob releases a job's in-memory state (window + filter) once the job
// reaches a terminal status; persistent rows are untouched.
func (q *Queue) DropJob(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, jobID)
}

// ClearAll releases every job's in-memory window and dedup filter, the
// control-plane clearQueues() operation. Persistent rows are
// untouched; a subsequent resumeJob rebuilds in-memory state from the db
// exactly as Resume already does.
func (q *Queue) ClearAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = make(map[string]*jobState)
}

// resolveURL gets-or-creates the shared urls row for raw; the URL table
// is shared reference data owned by the process, not by one job.
func (q *Queue) resolveURL(raw string) (id int64, host string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, "", errors.Wrap(err, "queue: parse url")
	}
	host = u.Host

	err = q.db.WithURLWrite(func() error {
		row := q.db.SQL().QueryRow(`SELECT id FROM urls WHERE url=?`, raw)
		scanErr := row.Scan(&id)
		if scanErr == nil {
			_, uerr := q.db.SQL().Exec(`UPDATE urls SET last_seen_at=? WHERE id=?`, cmn.NowString(), id)
			return uerr
		}
		if !errors.Is(scanErr, sql.ErrNoRows) {
			return scanErr
		}
		res, iErr := q.db.SQL().Exec(
			`INSERT INTO urls(url, host, created_at, last_seen_at) VALUES (?,?,?,?)`,
			raw, host, cmn.NowString(), cmn.NowString())
		if iErr != nil {
			return iErr
		}
		id, iErr = res.LastInsertId()
		return iErr
	})
	return id, host, err
}

// Enqueue performs the new -> queued transition. If raw
// already has state in {queued, in-flight, completed} within jobID, this
// is a no-op and the existing state is returned unchanged, so a URL
// transitions new -> queued at most once per job.
func (q *Queue) Enqueue(jobID, raw string, depth int, origin, role string, priority int) (state string, err error) {
	urlID, host, err := q.resolveURL(raw)
	if err != nil {
		return "", err
	}

	js := q.jobStateFor(jobID)
	js.mu.Lock()
	defer js.mu.Unlock()

	filterKey := []byte(jobID + "|" + raw)
	if js.seen.Lookup(filterKey) {
		// Possibly already enqueued (or a false positive) - confirm
		// against the authoritative table before skipping.
		if existing, ferr := q.existingState(jobID, urlID); ferr != nil {
			return "", ferr
		} else if existing != "" {
			return existing, nil
		}
	}

	var existingState string
	err = q.db.WithJobWrite(func() error {
		row := q.db.SQL().QueryRow(
			`SELECT status FROM crawl_tasks WHERE job_id=? AND url=? ORDER BY id DESC LIMIT 1`, jobID, raw)
		scanErr := row.Scan(&existingState)
		if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
			return scanErr
		}
		if existingState == StateQueued || existingState == StateInFlight || existingState == StateCompleted {
			return nil
		}
		now := cmn.NowString()
		if _, iErr := q.db.SQL().Exec(`
			INSERT INTO crawl_tasks(job_id, host, kind, status, url, payload, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			jobID, host, "fetch", StateQueued, raw, cmn.MustMarshalString(taskPayload{
				Depth: depth, Origin: origin, Role: role, Priority: priority,
			}), now, now); iErr != nil {
			return iErr
		}
		return q.writeEvent(jobID, cmn.QueueActionEnqueued, urlID, depth, host, "", origin, role)
	})
	if err != nil {
		return "", err
	}
	if existingState == StateQueued || existingState == StateInFlight || existingState == StateCompleted {
		return existingState, nil
	}

	js.seen.InsertUnique(filterKey)
	if !js.window.full() {
		js.window.push(&Entry{
			URLID: urlID, JobID: jobID, URL: raw, Host: host, Depth: depth,
			Origin: origin, Role: role, Priority: priority,
		})
	}
	// else: spilled - remains `queued` in the persistent table only,
	// drained into the window later by fillWindow.
	return StateQueued, nil
}

type taskPayload struct {
	Depth    int    `json:"depth"`
	Origin   string `json:"origin"`
	Role     string `json:"role"`
	Priority int    `json:"priority"`
	Retry    int    `json:"retry,omitempty"`
}

func (q *Queue) existingState(jobID string, urlID int64) (string, error) {
	var u string
	if err := q.db.SQL().QueryRow(`SELECT url FROM urls WHERE id=?`, urlID).Scan(&u); err != nil {
		return "", err
	}
	var state string
	row := q.db.SQL().QueryRow(
		`SELECT status FROM crawl_tasks WHERE job_id=? AND url=? ORDER BY id DESC LIMIT 1`, jobID, u)
	err := row.Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return state, err
}

// Dequeue hands the next ready URL to a fetch worker, transitioning it
// queued -> in-flight. It refills the in-memory window from spilled,
// still-queued persistent rows when the window runs dry.
func (q *Queue) Dequeue(jobID string) (*Entry, bool, error) {
	js := q.jobStateFor(jobID)
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.window.len() == 0 {
		if err := q.fillWindowLocked(jobID, js); err != nil {
			return nil, false, err
		}
	}
	e := js.window.pop(cmn.Now())
	if e == nil {
		return nil, false, nil
	}

	err := q.db.WithJobWrite(func() error {
		if _, iErr := q.db.SQL().Exec(
			`UPDATE crawl_tasks SET status=?, updated_at=? WHERE job_id=? AND url=? AND status=?`,
			StateInFlight, cmn.NowString(), jobID, e.URL, StateQueued); iErr != nil {
			return iErr
		}
		return q.writeEvent(jobID, cmn.QueueActionDequeued, e.URLID, e.Depth, e.Host, "", e.Origin, e.Role)
	})
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// fillWindowLocked pulls queued-but-not-windowed rows back into memory up
// to the window's capacity. Caller holds js.mu.
func (q *Queue) fillWindowLocked(jobID string, js *jobState) error {
	room := q.cfg.WindowSize - js.window.len()
	if room <= 0 {
		return nil
	}
	rows, err := q.db.SQL().Query(`
		SELECT ct.url, ct.payload, u.id, u.host
		FROM crawl_tasks ct JOIN urls u ON u.url = ct.url
		WHERE ct.job_id=? AND ct.status=?
		ORDER BY ct.id ASC LIMIT ?`, jobID, StateQueued, room)
	if err != nil {
		return errors.Wrap(err, "queue: fill window")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rawURL, payload, host string
			urlID                 int64
		)
		if err := rows.Scan(&rawURL, &payload, &urlID, &host); err != nil {
			return err
		}
		var tp taskPayload
		_ = cmn.Unmarshal([]byte(payload), &tp)
		js.window.push(&Entry{
			URLID: urlID, JobID: jobID, URL: rawURL, Host: host,
			Depth: tp.Depth, Origin: tp.Origin, Role: tp.Role, Priority: tp.Priority,
			RetryCount: tp.Retry,
		})
	}
	return rows.Err()
}

// Complete performs in-flight -> completed.
func (q *Queue) Complete(jobID, rawURL string) error {
	return q.db.WithJobWrite(func() error {
		_, err := q.db.SQL().Exec(
			`UPDATE crawl_tasks SET status=?, updated_at=? WHERE job_id=? AND url=? AND status=?`,
			StateCompleted, cmn.NowString(), jobID, rawURL, StateInFlight)
		return err
	})
}

// Retry performs in-flight -> error-retriable and re-enqueues with
// increased retry count and a delay until now + backoff.
func (q *Queue) Retry(jobID string, e *Entry, delay time.Duration) error {
	e.RetryCount++
	e.NotBefore = cmn.Now().Add(delay)
	e.Role = cmn.RoleRetry

	err := q.db.WithJobWrite(func() error {
		now := cmn.NowString()
		payload := cmn.MustMarshalString(taskPayload{
			Depth: e.Depth, Origin: e.Origin, Role: e.Role, Priority: e.Priority, Retry: e.RetryCount,
		})
		if _, iErr := q.db.SQL().Exec(
			`UPDATE crawl_tasks SET status=?, payload=?, note=?, updated_at=? WHERE job_id=? AND url=? AND status=?`,
			StateQueued, payload, "retry "+strconv.Itoa(e.RetryCount), now, jobID, e.URL, StateInFlight); iErr != nil {
			return iErr
		}
		return q.writeEvent(jobID, cmn.QueueActionEnqueued, e.URLID, e.Depth, e.Host, "retry", e.Origin, e.Role)
	})
	if err != nil {
		return err
	}

	js := q.jobStateFor(jobID)
	js.mu.Lock()
	defer js.mu.Unlock()
	if !js.window.full() {
		js.window.push(e)
	}
	return nil
}

// Terminal performs in-flight -> error-terminal: 4xx other
// than 408/429, robots-blocked, or retry budget exhausted.
func (q *Queue) Terminal(jobID, rawURL, reason string) error {
	return q.db.WithJobWrite(func() error {
		_, err := q.db.SQL().Exec(
			`UPDATE crawl_tasks SET status=?, note=?, updated_at=? WHERE job_id=? AND url=? AND status=?`,
			StateErrorTerminal, reason, cmn.NowString(), jobID, rawURL, StateInFlight)
		return err
	})
}

func (q *Queue) writeEvent(jobID, action string, urlID int64, depth int, host, reason, origin, role string) error {
	var size int
	if err := q.db.SQL().QueryRow(
		`SELECT COUNT(*) FROM crawl_tasks WHERE job_id=? AND status=?`, jobID, StateQueued).Scan(&size); err != nil {
		return err
	}
	_, err := q.db.SQL().Exec(`
		INSERT INTO queue_events(job_id, ts, action, url_id, depth, host, reason, queue_size, origin, role, depth_bucket)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		jobID, cmn.NowString(), action, urlID, depth, host, reason, size, origin, role, depthBucket(depth))
	return err
}

func depthBucket(depth int) string {
	switch {
	case depth == 0:
		return "seed"
	case depth <= 2:
		return "shallow"
	case depth <= 5:
		return "mid"
	default:
		return "deep"
	}
}
