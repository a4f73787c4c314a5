package planner

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/newsgrid/crawler/fetch"
	"github.com/newsgrid/crawler/queue"
	"github.com/newsgrid/crawler/store"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// JobArgs is startJob's input: the seed and the crawl-type declaration
// selecting the discovery sub-stage.
type JobArgs struct {
	SeedURL     string
	CrawlType   string // sitemap-only | intelligent | gazetteer-ingest
	Declaration string // opaque JSON, passed straight through to crawl_types.declaration
}

// Planner ties together every collaborator a running job needs: the
// queue, fetcher, storage engine, and the analyzer/places interfaces.
// One Planner instance serves every job in
// the process.
type Planner struct {
	db      *crawlerdb.DB
	q       *queue.Queue
	fetcher *fetch.Fetcher
	store   *store.Store
	analyzer Analyzer
	places   PlaceResolver
	cfg      cmn.PlannerConfig
	fetchCfg cmn.FetchConfig

	mu   sync.Mutex
	jobs map[string]*jobControl
}

type jobControl struct {
	cancel context.CancelFunc
	pause  chan struct{}
	done   chan struct{}
}

func New(database *crawlerdb.DB, q *queue.Queue, fetcher *fetch.Fetcher, st *store.Store,
	analyzer Analyzer, places PlaceResolver, cfg cmn.PlannerConfig, fetchCfg cmn.FetchConfig) *Planner {
	return &Planner{
		db: database, q: q, fetcher: fetcher, store: st,
		analyzer: analyzer, places: places, cfg: cfg, fetchCfg: fetchCfg,
		jobs: make(map[string]*jobControl),
	}
}

// startJob performs synchronous creation: a crawl_jobs row with
// status=running and the seed URL enqueued. It does not
// start the fetch loop - call runJob to do that.
func (p *Planner) startJob(args JobArgs) (jobID string, err error) {
	u, err := url.Parse(args.SeedURL)
	if err != nil {
		return "", errors.Wrap(err, "planner: parse seed url")
	}

	var crawlTypeID sql.NullInt64
	if args.CrawlType != "" {
		id, cErr := p.getOrCreateCrawlType(args.CrawlType, args.Declaration)
		if cErr != nil {
			return "", cErr
		}
		crawlTypeID = sql.NullInt64{Int64: id, Valid: true}
	}

	jobID = cmn.NewJobID()
	err = p.db.WithJobWrite(func() error {
		var urlID int64
		row := p.db.SQL().QueryRow(`SELECT id FROM urls WHERE url=?`, args.SeedURL)
		scanErr := row.Scan(&urlID)
		if errors.Is(scanErr, sql.ErrNoRows) {
			res, iErr := p.db.SQL().Exec(
				`INSERT INTO urls(url, host, created_at, last_seen_at) VALUES (?,?,?,?)`,
				args.SeedURL, u.Host, cmn.NowString(), cmn.NowString())
			if iErr != nil {
				return iErr
			}
			urlID, iErr = res.LastInsertId()
			if iErr != nil {
				return iErr
			}
		} else if scanErr != nil {
			return scanErr
		}

		_, err := p.db.SQL().Exec(`
			INSERT INTO crawl_jobs(id, url_id, args, pid, started_at, status, crawl_type_id)
			VALUES (?,?,?,?,?,?,?)`,
			jobID, urlID, args.Declaration, os.Getpid(), cmn.NowString(), cmn.JobStatusRunning, crawlTypeID)
		return err
	})
	if err != nil {
		return "", err
	}

	if _, err := p.q.Enqueue(jobID, args.SeedURL, 0, cmn.OriginSeed, cmn.RoleFrontier, 0); err != nil {
		return "", errors.Wrap(err, "planner: enqueue seed")
	}
	return jobID, nil
}

func (p *Planner) getOrCreateCrawlType(name, declaration string) (int64, error) {
	var id int64
	row := p.db.SQL().QueryRow(`SELECT id FROM crawl_types WHERE name=?`, name)
	err := row.Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := p.db.SQL().Exec(
		`INSERT INTO crawl_types(name, description, declaration) VALUES (?,?,?)`, name, "", declaration)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// runJob starts the asynchronous stage sequence startup -> discovery ->
// fetch-loop -> extract -> shutdown for an already-started job. It
// returns once the goroutine is launched; the job itself suspends at
// every I/O point.
func (p *Planner) runJob(jobID string) error {
	ctx, cancel := context.WithCancel(context.Background())
	jc := &jobControl{cancel: cancel, pause: make(chan struct{}, 1), done: make(chan struct{})}

	p.mu.Lock()
	p.jobs[jobID] = jc
	p.mu.Unlock()

	go p.loop(ctx, jobID, jc)
	return nil
}

func (p *Planner) loop(ctx context.Context, jobID string, jc *jobControl) {
	defer close(jc.done)
	defer func() {
		p.mu.Lock()
		delete(p.jobs, jobID)
		p.mu.Unlock()
	}()

	if err := p.runStartup(jobID); err != nil {
		p.failJob(jobID, StageStartup, err)
		return
	}
	if err := p.runDiscovery(ctx, jobID); err != nil {
		p.failJob(jobID, StageDiscovery, err)
		return
	}

	status, err := p.runFetchLoop(ctx, jobID, jc)
	if err != nil {
		p.failJob(jobID, StageFetchLoop, err)
		return
	}

	if status == outcomeDrained {
		if err := p.runExtract(jobID); err != nil {
			p.failJob(jobID, StageExtract, err)
			return
		}
	}

	if err := p.runShutdown(jobID, status); err != nil {
		glog.Errorf("planner: job %s shutdown: %v", jobID, err)
	}
}

// runExtract is the post-drain extract stage: per-page
// extraction already ran inline during the fetch loop, so this stage
// rolls the job's analyses up into layout families and records the
// grouping as a milestone - the final pattern-learning pass over
// everything fetched, not just the mid-loop threshold snapshot.
func (p *Planner) runExtract(jobID string) error {
	start := time.Now()
	if err := p.emitStage(jobID, StageExtract, cmn.StageStarted, 0, ""); err != nil {
		return err
	}
	p.learnPatterns(jobID)
	return p.emitStage(jobID, StageExtract, cmn.StageCompleted, time.Since(start).Milliseconds(), "")
}

func (p *Planner) runStartup(jobID string) error {
	start := time.Now()
	if err := p.emitStage(jobID, StageStartup, cmn.StageStarted, 0, ""); err != nil {
		return err
	}
	return p.emitStage(jobID, StageStartup, cmn.StageCompleted, time.Since(start).Milliseconds(), "")
}

// runDiscovery seeds the initial frontier from the news_websites
// allowlist: the already-enqueued seed stays, and the url_pattern of each
// matching row is queued as a probe. Sitemaps are not consulted, and the
// crawl type does not change what this stage does.
func (p *Planner) runDiscovery(ctx context.Context, jobID string) error {
	start := time.Now()
	if err := p.emitStage(jobID, StageDiscovery, cmn.StageStarted, 0, ""); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := p.consultNewsWebsites(jobID); err != nil {
		return err
	}
	return p.emitStage(jobID, StageDiscovery, cmn.StageCompleted, time.Since(start).Milliseconds(), "")
}

// consultNewsWebsites implements the news website registry: when the enabled rows of news_websites are non-empty, the
// seed host must match one of them (by exact host or a parent_domain
// suffix) or discovery is terminal for the job - an unlisted host is not
// crawlable at all. Matching rows that carry a url_pattern are queued as
// additional pattern-probe discovery candidates alongside the seed.
func (p *Planner) consultNewsWebsites(jobID string) error {
	var seedRaw string
	if err := p.db.SQL().QueryRow(`
		SELECT u.url FROM crawl_jobs j JOIN urls u ON u.id = j.url_id WHERE j.id=?`, jobID).Scan(&seedRaw); err != nil {
		return errors.Wrap(err, "planner: resolve seed url")
	}
	seed, err := url.Parse(seedRaw)
	if err != nil {
		return errors.Wrap(err, "planner: parse seed url")
	}
	seedHost := seed.Host

	rows, err := p.db.SQL().Query(`SELECT url, parent_domain, url_pattern FROM news_websites WHERE enabled=1`)
	if err != nil {
		return errors.Wrap(err, "planner: query news_websites")
	}
	defer rows.Close()

	var (
		total    int
		matched  bool
		patterns []string
	)
	for rows.Next() {
		var siteURL, parentDomain, pattern sql.NullString
		if sErr := rows.Scan(&siteURL, &parentDomain, &pattern); sErr != nil {
			return sErr
		}
		total++
		siteHost := siteURL.String
		if u, pErr := url.Parse(siteURL.String); pErr == nil && u.Host != "" {
			siteHost = u.Host
		}
		if siteHost == seedHost || (parentDomain.Valid && parentDomain.String != "" && strings.HasSuffix(seedHost, parentDomain.String)) {
			matched = true
			if pattern.Valid && pattern.String != "" {
				patterns = append(patterns, pattern.String)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if total > 0 && !matched {
		_ = p.Problem(jobID, "host-not-allowlisted", "host", seedHost,
			"seed host is not present in the enabled news_websites registry", "")
		return errors.Errorf("planner: host %s is not in the news_websites allowlist", seedHost)
	}

	for _, pattern := range patterns {
		probeURL := seed.Scheme + "://" + seedHost + pattern
		if _, eErr := p.q.Enqueue(jobID, probeURL, 0, cmn.OriginProbe, cmn.RoleProbe, 0); eErr != nil {
			glog.Warningf("planner: job %s enqueue news_websites pattern %s: %v", jobID, probeURL, eErr)
		}
	}
	return nil
}

// loopOutcome is what runFetchLoop reports back to loop() so runShutdown
// can record the right terminal status.
type loopOutcome int

const (
	outcomeDrained loopOutcome = iota
	outcomePaused
	outcomeCancelled
)

func (p *Planner) runShutdown(jobID string, outcome loopOutcome) error {
	start := time.Now()
	if err := p.emitStage(jobID, StageShutdown, cmn.StageStarted, 0, ""); err != nil {
		return err
	}

	status := cmn.JobStatusDone
	var endedAt interface{} = cmn.NowString()
	switch outcome {
	case outcomePaused:
		status = cmn.JobStatusPaused
		endedAt = nil // a paused job keeps ended_at NULL so it is resume-eligible
	case outcomeCancelled:
		status = cmn.JobStatusAborted
	}

	if err := p.db.WithJobWrite(func() error {
		_, err := p.db.SQL().Exec(
			`UPDATE crawl_jobs SET status=?, ended_at=? WHERE id=?`, status, endedAt, jobID)
		return err
	}); err != nil {
		return err
	}
	return p.emitStage(jobID, StageShutdown, cmn.StageCompleted, time.Since(start).Milliseconds(), "")
}

func (p *Planner) failJob(jobID, stage string, cause error) {
	glog.Errorf("planner: job %s stage %s failed: %v", jobID, stage, cause)
	_ = p.emitStage(jobID, stage, cmn.StageFailed, 0, cause.Error())
	_ = p.Problem(jobID, "stage-failure", stage, jobID, cause.Error(), "")
	_ = p.db.WithJobWrite(func() error {
		_, err := p.db.SQL().Exec(
			`UPDATE crawl_jobs SET status=?, ended_at=? WHERE id=?`, cmn.JobStatusError, cmn.NowString(), jobID)
		return err
	})
}

// pauseJob sets status=paused: it signals the loop to drain any in-flight
// fetch and stop dequeuing further work, then waits for the goroutine to
// exit.
func (p *Planner) pauseJob(jobID string) error {
	jc, ok := p.jobControl(jobID)
	if !ok {
		return errors.Errorf("planner: job %s is not running", jobID)
	}
	select {
	case jc.pause <- struct{}{}:
	default:
	}
	<-jc.done
	return nil
}

// cancelJob cooperatively cancels a running job; final status=aborted.
func (p *Planner) cancelJob(jobID string) error {
	jc, ok := p.jobControl(jobID)
	if !ok {
		return errors.Errorf("planner: job %s is not running", jobID)
	}
	jc.cancel()
	<-jc.done
	return nil
}

// resumeJob requires the caller to have already cleared resume admission
// (resumeinv.PlanResumeQueues); it rebuilds the in-memory queue state
// and restarts the fetch loop.
func (p *Planner) resumeJob(jobID string) error {
	var status string
	var endedAt sql.NullString
	if err := p.db.SQL().QueryRow(
		`SELECT status, ended_at FROM crawl_jobs WHERE id=?`, jobID).Scan(&status, &endedAt); err != nil {
		return errors.Wrap(err, "planner: resume lookup")
	}
	if endedAt.Valid || status != cmn.JobStatusPaused {
		return errors.Errorf("planner: job %s is not resume-eligible", jobID)
	}

	if err := p.q.Resume(jobID); err != nil {
		return errors.Wrap(err, "planner: resume queue state")
	}
	if err := p.db.WithJobWrite(func() error {
		_, err := p.db.SQL().Exec(`UPDATE crawl_jobs SET status=? WHERE id=?`, cmn.JobStatusRunning, jobID)
		return err
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	jc := &jobControl{cancel: cancel, pause: make(chan struct{}, 1), done: make(chan struct{})}
	p.mu.Lock()
	p.jobs[jobID] = jc
	p.mu.Unlock()

	go func() {
		defer close(jc.done)
		defer func() {
			p.mu.Lock()
			delete(p.jobs, jobID)
			p.mu.Unlock()
		}()
		outcome, err := p.runFetchLoop(ctx, jobID, jc)
		if err != nil {
			p.failJob(jobID, StageFetchLoop, err)
			return
		}
		if outcome == outcomeDrained {
			if err := p.runExtract(jobID); err != nil {
				p.failJob(jobID, StageExtract, err)
				return
			}
		}
		if err := p.runShutdown(jobID, outcome); err != nil {
			glog.Errorf("planner: job %s shutdown: %v", jobID, err)
		}
	}()
	return nil
}

// resolveURLID gets-or-creates the shared urls row for raw, the same
// ownership rule queue.resolveURL enforces: the URL table is
// shared reference data, not scoped to one package.
func (p *Planner) resolveURLID(raw string) (int64, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, err
	}
	var id int64
	err = p.db.WithURLWrite(func() error {
		row := p.db.SQL().QueryRow(`SELECT id FROM urls WHERE url=?`, raw)
		scanErr := row.Scan(&id)
		if scanErr == nil {
			return nil
		}
		if !errors.Is(scanErr, sql.ErrNoRows) {
			return scanErr
		}
		res, iErr := p.db.SQL().Exec(
			`INSERT INTO urls(url, host, created_at, last_seen_at) VALUES (?,?,?,?)`,
			raw, u.Host, cmn.NowString(), cmn.NowString())
		if iErr != nil {
			return iErr
		}
		id, iErr = res.LastInsertId()
		return iErr
	})
	return id, err
}

func (p *Planner) jobControl(jobID string) (*jobControl, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	jc, ok := p.jobs[jobID]
	return jc, ok
}
