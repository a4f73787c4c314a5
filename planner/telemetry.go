package planner

import (
	"github.com/newsgrid/crawler/cmn"
)

// nextSequence returns the next monotonic sequence number for a job's
// planner_stage_events, keeping a job's stage events totally ordered.
func (p *Planner) nextSequence(jobID string) (int, error) {
	var seq int
	err := p.db.SQL().QueryRow(
		`SELECT COALESCE(MAX(sequence), 0) FROM planner_stage_events WHERE job_id=?`, jobID).Scan(&seq)
	return seq + 1, err
}

func (p *Planner) emitStage(jobID, stage, status string, durationMs int64, details string) error {
	return p.db.WithJobWrite(func() error {
		seq, err := p.nextSequence(jobID)
		if err != nil {
			return err
		}
		_, err = p.db.SQL().Exec(`
			INSERT INTO planner_stage_events(job_id, ts, stage, status, sequence, duration_ms, details)
			VALUES (?,?,?,?,?,?,?)`,
			jobID, cmn.NowString(), stage, status, seq, durationMs, details)
		return err
	})
}

// Milestone records a positive, externally-interesting fact, e.g. "first article fetched".
func (p *Planner) Milestone(jobID, kind, scope, target, message string, details string) error {
	_, err := p.db.SQL().Exec(`
		INSERT INTO crawl_milestones(job_id, ts, kind, scope, target, message, details)
		VALUES (?,?,?,?,?,?,?)`,
		jobID, cmn.NowString(), kind, scope, target, message, details)
	return err
}

// Problem records a correctable condition, e.g. "domain
// returned 5 consecutive 429s".
func (p *Planner) Problem(jobID, kind, scope, target, message string, details string) error {
	_, err := p.db.SQL().Exec(`
		INSERT INTO crawl_problems(job_id, ts, kind, scope, target, message, details)
		VALUES (?,?,?,?,?,?,?)`,
		jobID, cmn.NowString(), kind, scope, target, message, details)
	return err
}
