package planner

import (
	"context"
	"database/sql"
	"net/http"
	"net/url"
	"time"

	"github.com/newsgrid/crawler/cmn"
	"github.com/newsgrid/crawler/fetch"
	"github.com/newsgrid/crawler/queue"
	"github.com/newsgrid/crawler/store"
	"github.com/golang/glog"
)

// runFetchLoop is the fetch-loop/extract stage pair: dequeue, fetch,
// store, analyze, extract links, re-enqueue, repeat, until the queue is
// drained or a pause/cancel event arrives.
func (p *Planner) runFetchLoop(ctx context.Context, jobID string, jc *jobControl) (loopOutcome, error) {
	start := time.Now()
	if err := p.emitStage(jobID, StageFetchLoop, cmn.StageStarted, 0, ""); err != nil {
		return outcomeCancelled, err
	}

	fetched := 0
	idleTicks := 0
	firstMilestoneDone := false

	for {
		select {
		case <-ctx.Done():
			return outcomeCancelled, p.emitStage(jobID, StageFetchLoop, cmn.StageFailed, time.Since(start).Milliseconds(), "cancelled")
		case <-jc.pause:
			return outcomePaused, p.emitStage(jobID, StageFetchLoop, cmn.StageCompleted, time.Since(start).Milliseconds(), "paused")
		default:
		}

		entry, ok, err := p.q.Dequeue(jobID)
		if err != nil {
			return outcomeCancelled, err
		}
		if !ok {
			idleTicks++
			if idleTicks > fetchLoopIdleLimit {
				return outcomeDrained, p.emitStage(jobID, StageFetchLoop, cmn.StageCompleted, time.Since(start).Milliseconds(), "drained")
			}
			time.Sleep(fetchLoopIdleSleep)
			continue
		}
		idleTicks = 0

		if err := p.fetchOne(ctx, jobID, entry); err != nil {
			glog.Warningf("planner: job %s url %s: %v", jobID, entry.URL, err)
		}
		fetched++

		if fetched%domainHealthInterval == 0 {
			if _, hErr := p.fetcher.ApplyDomainHealth(p.db, entry.Host); hErr != nil {
				glog.Warningf("planner: job %s domain health %s: %v", jobID, entry.Host, hErr)
			}
		}

		if !firstMilestoneDone {
			firstMilestoneDone = true
			_ = p.Milestone(jobID, "first-fetch", "job", jobID, "first article fetched", "")
		}
		if fetched%fetchProgressInterval == 0 {
			_ = p.emitStage(jobID, StageFetchLoop, cmn.StageProgress, time.Since(start).Milliseconds(), "")
		}
		if fetched == p.cfg.PatternLearningThreshold {
			p.learnPatterns(jobID)
		}
	}
}

const (
	fetchLoopIdleLimit    = 3
	fetchLoopIdleSleep    = 200 * time.Millisecond
	fetchProgressInterval = 25
	domainHealthInterval  = 10
)

// fetchOne fetches a single queue entry end to end: fetch -> classify ->
// store -> analyze -> extract links -> queue transition. Errors are
// recovered locally; only terminal fetch outcomes (including an exhausted
// retry budget) and storage failures surface as Problems.
func (p *Planner) fetchOne(ctx context.Context, jobID string, entry *queue.Entry) error {
	requestStarted := time.Now()
	res, outcome, fErr := p.fetcher.Fetch(ctx, entry.URL, p.priorValidators(entry.URLID))

	switch outcome {
	case fetch.OutcomeRetriable:
		if entry.RetryCount >= p.fetchCfg.RetryBudget {
			_ = p.q.Terminal(jobID, entry.URL, "retry budget exhausted")
			_ = p.Problem(jobID, "fetch-exhausted", "url", entry.URL, fErr.Error(), "")
			return fErr
		}
		delay := fetch.BackoffForAttempt(p.fetchCfg, entry.RetryCount)
		return p.q.Retry(jobID, entry, delay)
	case fetch.OutcomeTerminal:
		_ = p.q.Terminal(jobID, entry.URL, fErr.Error())
		_ = p.Problem(jobID, "fetch-terminal", "url", entry.URL, fErr.Error(), "")
		return fErr
	}

	respID, err := p.recordResponse(jobID, entry, res, requestStarted)
	if err != nil {
		return err
	}

	if res.HTTPStatus == http.StatusNotModified {
		// The body was not re-sent; reference the prior fetch's payload
		// instead of storing the empty 304 response.
		if hash, ok := p.priorContentHash(entry.URLID); ok {
			if _, lErr := p.store.LinkByHash(hash, store.PutMeta{HTTPResponseID: respID}); lErr != nil {
				_ = p.Problem(jobID, "storage-failure", "url", entry.URL, lErr.Error(), "")
				return lErr
			}
		}
		return p.q.Complete(jobID, entry.URL)
	}

	ref, err := p.store.Put(res.Body, store.PutMeta{HTTPResponseID: respID})
	if err != nil {
		_ = p.Problem(jobID, "storage-failure", "url", entry.URL, err.Error(), "")
		return err
	}

	if p.analyzer != nil {
		if err := p.analyzeAndExtract(jobID, entry, ref.ContentStorageID, res); err != nil {
			glog.Warningf("planner: job %s analyze %s: %v", jobID, entry.URL, err)
		}
	}

	return p.q.Complete(jobID, entry.URL)
}

// priorValidators looks up the most recent successful response's cache
// validators for a URL so the next fetch can send
// If-None-Match/If-Modified-Since.
func (p *Planner) priorValidators(urlID int64) fetch.Conditional {
	var etag, lastMod sql.NullString
	err := p.db.SQL().QueryRow(`
		SELECT etag, last_modified FROM http_responses
		WHERE url_id=? AND http_status >= 200 AND http_status < 300
		ORDER BY id DESC LIMIT 1`, urlID).Scan(&etag, &lastMod)
	if err != nil {
		return fetch.Conditional{}
	}
	return fetch.Conditional{ETag: etag.String, LastModified: lastMod.String}
}

// priorContentHash returns the content hash most recently stored for a
// URL, the reference target for a 304 Not Modified response.
func (p *Planner) priorContentHash(urlID int64) (string, bool) {
	var hash string
	err := p.db.SQL().QueryRow(`
		SELECT cs.content_sha256 FROM content_storage cs
		JOIN http_responses hr ON hr.id = cs.http_response_id
		WHERE hr.url_id=? ORDER BY cs.id DESC LIMIT 1`, urlID).Scan(&hash)
	return hash, err == nil
}

func (p *Planner) recordResponse(jobID string, entry *queue.Entry, res *fetch.Result, requestStarted time.Time) (int64, error) {
	var urlID int64
	if err := p.db.SQL().QueryRow(`SELECT id FROM urls WHERE url=?`, entry.URL).Scan(&urlID); err != nil {
		urlID = entry.URLID
	}

	var respID int64
	err := p.db.WithURLWrite(func() error {
		result, err := p.db.SQL().Exec(`
			INSERT INTO http_responses(
				url_id, job_id, request_started_at, fetched_at, http_status, content_type,
				content_encoding, etag, last_modified, redirect_chain, ttfb_ms, download_ms,
				total_ms, bytes_downloaded, transfer_kbps)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			urlID, jobID, cmn.FormatTime(requestStarted), cmn.FormatTime(res.Fetched), res.HTTPStatus,
			res.ContentType, res.ContentEncoding, res.ETag, res.LastModified,
			cmn.MustMarshalString(res.RedirectChain), res.TTFBMs, res.DownloadMs, res.TotalMs,
			res.BytesDownloaded, res.TransferKbps)
		if err != nil {
			return err
		}
		respID, err = result.LastInsertId()
		return err
	})
	return respID, err
}

// analyzeAndExtract runs the content analyzer, persists its
// content_analysis row, discovers place mentions, and enqueues discovered
// links within the job's step budget.
func (p *Planner) analyzeAndExtract(jobID string, entry *queue.Entry, contentID int64, res *fetch.Result) error {
	result, err := p.analyzer.Analyze(res.Body, AnalysisMeta{URL: entry.URL, ContentType: res.ContentType})
	if err != nil {
		return err
	}

	if err := p.db.WithJobWrite(func() error {
		_, err := p.db.SQL().Exec(`
			INSERT INTO content_analysis(
				content_id, analysis_version, classification, title, date, section,
				word_count, language, analysis_json, analyzed_at)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			contentID, 1, result.Classification, result.Title, result.Date, result.Section,
			result.WordCount, result.Language, result.AnalysisJSON, cmn.NowString())
		return err
	}); err != nil {
		return err
	}

	if p.places != nil && result.Text != "" {
		if mentions, mErr := p.places.ResolveMentions(result.Text); mErr == nil && len(mentions) > 0 {
			resolved := 0
			for _, m := range mentions {
				if !m.Excluded {
					resolved++
				}
			}
			if resolved > 0 {
				_ = p.Milestone(jobID, "places-resolved", "url", entry.URL,
					"resolved place mentions in article", cmn.MustMarshalString(mentions))
			}
		}
	}

	return p.discoverLinks(jobID, entry, result.Links)
}

// discoverLinks persists the links table rows and enqueues on-domain
// targets, bounded by a StepBudget so a pathological page (thousands of
// links) cannot starve the rest of the job.
func (p *Planner) discoverLinks(jobID string, entry *queue.Entry, links []ExtractedLink) error {
	if len(links) == 0 {
		return nil
	}
	budget := NewStepBudget(p.cfg.StepBudget, p.cfg.StepBudgetTimeout)

	for _, l := range links {
		if err := budget.Consume(); err != nil {
			_ = p.Problem(jobID, "budget-exceeded", "discovery", entry.URL, err.Error(), "")
			break
		}
		if _, pErr := url.Parse(l.URL); pErr != nil {
			continue
		}
		dstID, dErr := p.resolveURLID(l.URL)
		if dErr != nil {
			glog.Warningf("planner: job %s resolve link %s: %v", jobID, l.URL, dErr)
			continue
		}
		if _, err := p.db.SQL().Exec(`
			INSERT OR IGNORE INTO links(src_url_id, dst_url_id, anchor, rel, type, depth, on_domain, discovered_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			entry.URLID, dstID, l.Anchor, l.Rel, l.Type, entry.Depth+1, boolToInt(l.OnDomain), cmn.NowString()); err != nil {
			glog.Warningf("planner: job %s record link %s: %v", jobID, l.URL, err)
		}

		if l.OnDomain {
			if _, err := p.q.Enqueue(jobID, l.URL, entry.Depth+1, cmn.OriginLink, cmn.RoleFrontier, entry.Priority); err != nil {
				glog.Warningf("planner: job %s enqueue %s: %v", jobID, l.URL, err)
			}
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
