package queue

import (
	"path/filepath"
	"testing"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *crawlerdb.DB) {
	t.Helper()
	d, err := crawlerdb.Open(filepath.Join(t.TempDir(), "crawler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	cfg := cmn.DefaultConfig().Queue
	return New(d, cfg), d
}

func insertJob(t *testing.T, d *crawlerdb.DB, jobID, seedURL string) int64 {
	t.Helper()
	res, err := d.SQL().Exec(`INSERT INTO urls(url, host, created_at, last_seen_at) VALUES (?,?,?,?)`,
		seedURL, "example.invalid", cmn.NowString(), cmn.NowString())
	require.NoError(t, err)
	urlID, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = d.SQL().Exec(
		`INSERT INTO crawl_jobs(id, url_id, args, pid, started_at, status) VALUES (?,?,?,?,?,?)`,
		jobID, urlID, "[]", 1, cmn.NowString(), cmn.JobStatusRunning)
	require.NoError(t, err)
	return urlID
}

// TestEnqueueDedup is the dedup property: enqueueing the
// same URL twice within one job must not create a second crawl_tasks row
// nor change the URL's state.
func TestEnqueueDedup(t *testing.T) {
	q, d := newTestQueue(t)
	insertJob(t, d, "job-1", "https://example.invalid/seed")

	const u = "https://example.invalid/a"
	state1, err := q.Enqueue("job-1", u, 1, cmn.OriginLink, cmn.RoleFrontier, 0)
	require.NoError(t, err)
	require.Equal(t, StateQueued, state1)

	state2, err := q.Enqueue("job-1", u, 1, cmn.OriginLink, cmn.RoleFrontier, 0)
	require.NoError(t, err)
	require.Equal(t, StateQueued, state2)

	var count int
	require.NoError(t, d.SQL().QueryRow(
		`SELECT COUNT(*) FROM crawl_tasks WHERE job_id=? AND url=?`, "job-1", u).Scan(&count))
	require.Equal(t, 1, count, "duplicate enqueue must not create a second row")

	var events int
	require.NoError(t, d.SQL().QueryRow(
		`SELECT COUNT(*) FROM queue_events WHERE job_id=? AND action=?`, "job-1", cmn.QueueActionEnqueued).Scan(&events))
	require.Equal(t, 1, events, "duplicate enqueue must not emit a second event")
}

// TestExactlyOnceCompletion is the exactly-once-completion property from
// a URL dequeued once and completed cannot be re-dequeued or completed
// a second time.
func TestExactlyOnceCompletion(t *testing.T) {
	q, d := newTestQueue(t)
	insertJob(t, d, "job-1", "https://example.invalid/seed")

	const u = "https://example.invalid/a"
	_, err := q.Enqueue("job-1", u, 0, cmn.OriginSeed, cmn.RoleFrontier, 0)
	require.NoError(t, err)

	e, ok, err := q.Dequeue("job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, u, e.URL)

	require.NoError(t, q.Complete("job-1", u))

	var status string
	require.NoError(t, d.SQL().QueryRow(
		`SELECT status FROM crawl_tasks WHERE job_id=? AND url=?`, "job-1", u).Scan(&status))
	require.Equal(t, StateCompleted, status)

	// A second Complete call must not regress or duplicate state: the
	// UPDATE's WHERE status=in-flight guard makes it a no-op.
	require.NoError(t, q.Complete("job-1", u))
	require.NoError(t, d.SQL().QueryRow(
		`SELECT status FROM crawl_tasks WHERE job_id=? AND url=?`, "job-1", u).Scan(&status))
	require.Equal(t, StateCompleted, status)

	// Nothing left to dequeue - the window and the persisted table agree.
	_, ok, err = q.Dequeue("job-1")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestResumeReclassifiesInFlight is the resume-fidelity property from
// a URL left in-flight when the process "died" is reclassified as
// queued/role=retry on Resume, and is dequeueable again.
func TestResumeReclassifiesInFlight(t *testing.T) {
	q, d := newTestQueue(t)
	insertJob(t, d, "job-1", "https://example.invalid/seed")

	const u = "https://example.invalid/a"
	_, err := q.Enqueue("job-1", u, 2, cmn.OriginLink, cmn.RoleFrontier, 0)
	require.NoError(t, err)

	e, ok, err := q.Dequeue("job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, u, e.URL)

	var status string
	require.NoError(t, d.SQL().QueryRow(
		`SELECT status FROM crawl_tasks WHERE job_id=? AND url=?`, "job-1", u).Scan(&status))
	require.Equal(t, StateInFlight, status)

	// Simulate a restart: a fresh Queue instance over the same db, with no
	// in-memory window state for job-1.
	q2 := New(d, cmn.DefaultConfig().Queue)
	require.NoError(t, q2.Resume("job-1"))

	require.NoError(t, d.SQL().QueryRow(
		`SELECT status FROM crawl_tasks WHERE job_id=? AND url=?`, "job-1", u).Scan(&status))
	require.Equal(t, StateQueued, status)

	e2, ok, err := q2.Dequeue("job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, u, e2.URL)
	require.Equal(t, cmn.RoleRetry, e2.Role)
}

func TestRunningHostsAndJobs(t *testing.T) {
	q, d := newTestQueue(t)
	insertJob(t, d, "job-1", "https://a.example.invalid/seed")
	_, err := q.Enqueue("job-1", "https://a.example.invalid/x", 1, cmn.OriginLink, cmn.RoleFrontier, 0)
	require.NoError(t, err)

	jobIDs, hostsByJob, err := q.RunningHostsAndJobs()
	require.NoError(t, err)
	require.Contains(t, jobIDs, "job-1")
	require.Contains(t, hostsByJob["job-1"], "a.example.invalid")
}
