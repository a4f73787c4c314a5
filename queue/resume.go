package queue

import (
	"github.com/newsgrid/crawler/cmn"
	"github.com/pkg/errors"
)

// Resume rebuilds a job's in-memory window from the persistent
// crawl_tasks/queue_events log. A job is resumable while its crawl_jobs
// row has ended_at IS NULL; URLs left in-flight at the moment of
// shutdown are re-queued with role=retry rather than assumed lost or
// assumed complete. It does not
// decide WHETHER to resume a job - that is resumeinv's admission
// decision - only how to repopulate this job's queue state once
// admitted.
func (q *Queue) Resume(jobID string) error {
	js := q.jobStateFor(jobID)
	js.mu.Lock()
	defer js.mu.Unlock()

	// Reclassify anything still `in-flight` (the process died mid-fetch)
	// back to `queued` with role=retry, preserving the original depth via
	// the payload already stored on the row.
	if err := q.db.WithJobWrite(func() error {
		rows, qErr := q.db.SQL().Query(
			`SELECT id, payload FROM crawl_tasks WHERE job_id=? AND status=?`, jobID, StateInFlight)
		if qErr != nil {
			return qErr
		}
		var ids []int64
		var payloads []string
		for rows.Next() {
			var id int64
			var p string
			if err := rows.Scan(&id, &p); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
			payloads = append(payloads, p)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for i, id := range ids {
			var tp taskPayload
			_ = cmn.Unmarshal([]byte(payloads[i]), &tp)
			tp.Role = cmn.RoleRetry
			now := cmn.NowString()
			if _, err := q.db.SQL().Exec(
				`UPDATE crawl_tasks SET status=?, payload=?, note=?, updated_at=? WHERE id=?`,
				StateQueued, cmn.MustMarshalString(tp), "resumed: reclassified in-flight as retry", now, id); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "queue: resume reclassify in-flight")
	}

	return q.fillWindowLocked(jobID, js)
}

// RunningHostsAndJobs reports, for every crawl_jobs row with
// status=running, the job id and the set of hosts it currently holds
// in-flight or queued work for. Paused jobs are excluded - they are the
// admission candidates, not the running set. This is the authoritative
// source resumeinv consumes to compute `running_domains` for its
// admission decision.
func (q *Queue) RunningHostsAndJobs() (jobIDs []string, hostsByJob map[string][]string, err error) {
	hostsByJob = make(map[string][]string)

	rows, err := q.db.SQL().Query(
		`SELECT id FROM crawl_jobs WHERE ended_at IS NULL AND status=?`, cmn.JobStatusRunning)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, nil, err
		}
		jobIDs = append(jobIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	for _, id := range jobIDs {
		hrows, hErr := q.db.SQL().Query(
			`SELECT DISTINCT host FROM crawl_tasks WHERE job_id=? AND status IN (?,?)`,
			id, StateQueued, StateInFlight)
		if hErr != nil {
			return nil, nil, hErr
		}
		var hosts []string
		for hrows.Next() {
			var h string
			if err := hrows.Scan(&h); err != nil {
				hrows.Close()
				return nil, nil, err
			}
			hosts = append(hosts, h)
		}
		err = hrows.Err()
		hrows.Close()
		if err != nil {
			return nil, nil, err
		}
		hostsByJob[id] = hosts
	}
	return jobIDs, hostsByJob, nil
}
