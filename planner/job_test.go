package planner

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/newsgrid/crawler/fetch"
	"github.com/newsgrid/crawler/queue"
	"github.com/newsgrid/crawler/store"
	"github.com/stretchr/testify/require"
)

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(body []byte, meta AnalysisMeta) (*AnalysisResult, error) {
	return &AnalysisResult{
		Classification: "news",
		Title:          "stub title",
		WordCount:      len(body),
		AnalysisJSON:   `{"skeleton_hash":"abc123"}`,
		Text:           string(body),
	}, nil
}

func newTestPlanner(t *testing.T, handler http.Handler) (*Planner, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	d, err := crawlerdb.Open(filepath.Join(t.TempDir(), "crawler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	cfg := cmn.DefaultConfig()
	cfg.Fetch.DefaultHostDelayMs = 1
	cfg.Fetch.RobotsTTLSeconds = 60
	cfg.Planner.PatternLearningThreshold = 1000 // effectively disabled for these tests

	q := queue.New(d, cfg.Queue)
	f := fetch.New(cfg.Fetch, cfg.UserAgent)
	st, err := store.Open(d, t.TempDir(), cfg.Storage, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p := New(d, q, f, st, stubAnalyzer{}, nil, cfg.Planner, cfg.Fetch)
	return p, srv.URL
}

func TestJobLifecycleDrains(t *testing.T) {
	p, base := newTestPlanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("<html><body>hi</body></html>"))
	}))

	jobID, err := p.startJob(JobArgs{SeedURL: base + "/seed"})
	require.NoError(t, err)

	require.NoError(t, p.runJob(jobID))

	require.Eventually(t, func() bool {
		var status string
		var ended interface{}
		err := p.db.SQL().QueryRow(`SELECT status FROM crawl_jobs WHERE id=?`, jobID).Scan(&status)
		_ = ended
		return err == nil && status == cmn.JobStatusDone
	}, 5*time.Second, 20*time.Millisecond)

	var stageCount int
	require.NoError(t, p.db.SQL().QueryRow(
		`SELECT COUNT(*) FROM planner_stage_events WHERE job_id=?`, jobID).Scan(&stageCount))
	require.Greater(t, stageCount, 0)

	var milestoneCount int
	require.NoError(t, p.db.SQL().QueryRow(
		`SELECT COUNT(*) FROM crawl_milestones WHERE job_id=? AND kind=?`, jobID, "first-fetch").Scan(&milestoneCount))
	require.Equal(t, 1, milestoneCount)
}

func TestJobPauseAndResume(t *testing.T) {
	block := make(chan struct{})
	var once bool
	p, base := newTestPlanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !once {
			once = true
			<-block
		}
		_, _ = w.Write([]byte("<html><body>hi</body></html>"))
	}))

	jobID, err := p.startJob(JobArgs{SeedURL: base + "/seed"})
	require.NoError(t, err)
	require.NoError(t, p.runJob(jobID))

	time.Sleep(50 * time.Millisecond)
	close(block)
	require.NoError(t, p.pauseJob(jobID))

	var status string
	require.NoError(t, p.db.SQL().QueryRow(`SELECT status FROM crawl_jobs WHERE id=?`, jobID).Scan(&status))
	require.Equal(t, cmn.JobStatusPaused, status)

	require.NoError(t, p.resumeJob(jobID))
	require.Eventually(t, func() bool {
		var s string
		err := p.db.SQL().QueryRow(`SELECT status FROM crawl_jobs WHERE id=?`, jobID).Scan(&s)
		return err == nil && s == cmn.JobStatusDone
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDiscoveryBlocksHostNotInNewsWebsiteAllowlist(t *testing.T) {
	p, base := newTestPlanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("<html><body>hi</body></html>"))
	}))

	_, err := p.db.SQL().Exec(`
		INSERT INTO news_websites(url, label, parent_domain, url_pattern, website_type, enabled)
		VALUES (?,?,?,?,?,?)`,
		"https://allowed.invalid", "Allowed", "allowed.invalid", "", "news", 1)
	require.NoError(t, err)

	jobID, err := p.startJob(JobArgs{SeedURL: base + "/seed"})
	require.NoError(t, err)
	require.NoError(t, p.runJob(jobID))

	require.Eventually(t, func() bool {
		var status string
		err := p.db.SQL().QueryRow(`SELECT status FROM crawl_jobs WHERE id=?`, jobID).Scan(&status)
		return err == nil && status == cmn.JobStatusError
	}, 5*time.Second, 20*time.Millisecond)

	var problemCount int
	require.NoError(t, p.db.SQL().QueryRow(
		`SELECT COUNT(*) FROM crawl_problems WHERE job_id=? AND kind=?`, jobID, "host-not-allowlisted").Scan(&problemCount))
	require.Equal(t, 1, problemCount)
}

func TestDiscoveryEnqueuesNewsWebsitePatterns(t *testing.T) {
	p, base := newTestPlanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("<html><body>hi</body></html>"))
	}))

	seedURL, err := url.Parse(base + "/seed")
	require.NoError(t, err)

	_, err = p.db.SQL().Exec(`
		INSERT INTO news_websites(url, label, parent_domain, url_pattern, website_type, enabled)
		VALUES (?,?,?,?,?,?)`,
		base, "Test Site", seedURL.Host, "/topics/texas", "news", 1)
	require.NoError(t, err)

	jobID, err := p.startJob(JobArgs{SeedURL: base + "/seed"})
	require.NoError(t, err)
	require.NoError(t, p.runJob(jobID))

	require.Eventually(t, func() bool {
		var taskCount int
		err := p.db.SQL().QueryRow(
			`SELECT COUNT(*) FROM crawl_tasks WHERE job_id=? AND url=?`, jobID, base+"/topics/texas").Scan(&taskCount)
		return err == nil && taskCount == 1
	}, 5*time.Second, 20*time.Millisecond, "news_websites url_pattern must be queued as a discovery candidate")

	require.Eventually(t, func() bool {
		var status string
		err := p.db.SQL().QueryRow(`SELECT status FROM crawl_jobs WHERE id=?`, jobID).Scan(&status)
		return err == nil && status == cmn.JobStatusDone
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCancelJob(t *testing.T) {
	block := make(chan struct{})
	p, base := newTestPlanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		<-block
		_, _ = w.Write([]byte("ok"))
	}))
	defer close(block)

	jobID, err := p.startJob(JobArgs{SeedURL: base + "/seed"})
	require.NoError(t, err)
	require.NoError(t, p.runJob(jobID))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.cancelJob(jobID))

	var status string
	require.NoError(t, p.db.SQL().QueryRow(`SELECT status FROM crawl_jobs WHERE id=?`, jobID).Scan(&status))
	require.Equal(t, cmn.JobStatusAborted, status)
}
