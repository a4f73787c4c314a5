package fetch

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/stretchr/testify/require"
)

func newDomainHealthTestDB(t *testing.T) *crawlerdb.DB {
	t.Helper()
	d, err := crawlerdb.Open(filepath.Join(t.TempDir(), "crawler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func seedResponse(t *testing.T, d *crawlerdb.DB, host string, status int, fetchedAt time.Time) {
	t.Helper()
	var urlID int64
	err := d.SQL().QueryRow(`SELECT id FROM urls WHERE host=? LIMIT 1`, host).Scan(&urlID)
	if err != nil {
		res, iErr := d.SQL().Exec(`INSERT INTO urls(url, host, created_at, last_seen_at) VALUES (?,?,?,?)`,
			"https://"+host+"/x", host, cmn.NowString(), cmn.NowString())
		require.NoError(t, iErr)
		urlID, err = res.LastInsertId()
		require.NoError(t, err)
	}

	var jobExists int
	require.NoError(t, d.SQL().QueryRow(`SELECT COUNT(*) FROM crawl_jobs WHERE id='job-health'`).Scan(&jobExists))
	if jobExists == 0 {
		_, jErr := d.SQL().Exec(`
			INSERT INTO crawl_jobs(id, url_id, args, pid, started_at, status) VALUES ('job-health',?,?,?,?,?)`,
			urlID, "{}", 1, cmn.NowString(), cmn.JobStatusRunning)
		require.NoError(t, jErr)
	}

	_, err = d.SQL().Exec(`
		INSERT INTO http_responses(url_id, job_id, request_started_at, fetched_at, http_status)
		VALUES (?,?,?,?,?)`,
		urlID, "job-health", cmn.FormatTime(fetchedAt), cmn.FormatTime(fetchedAt), status)
	require.NoError(t, err)
}

func TestAnalyzeDomainHealthComputesRatesAndUpserts(t *testing.T) {
	d := newDomainHealthTestDB(t)
	now := time.Now()
	seedResponse(t, d, "slow.invalid", 200, now.Add(-1*time.Minute))
	seedResponse(t, d, "slow.invalid", 429, now.Add(-2*time.Minute))
	seedResponse(t, d, "slow.invalid", 200, now.Add(-3*time.Minute))
	seedResponse(t, d, "slow.invalid", 500, now.Add(-4*time.Minute))

	health, err := AnalyzeDomainHealth(d, "slow.invalid")
	require.NoError(t, err)
	require.Equal(t, 4, health.RequestCount)
	require.Equal(t, 2, health.ErrorCount)
	require.InDelta(t, 0.5, health.ErrorRate, 0.001)
	require.Greater(t, health.RequestsPerMinute, 0.0)

	var analysisJSON string
	require.NoError(t, d.SQL().QueryRow(`SELECT analysis_json FROM domains WHERE host=?`, "slow.invalid").Scan(&analysisJSON))
	require.Contains(t, analysisJSON, `"error_rate"`)
}

func TestAnalyzeDomainHealthIgnoresStaleResponses(t *testing.T) {
	d := newDomainHealthTestDB(t)
	seedResponse(t, d, "old.invalid", 500, time.Now().Add(-domainHealthWindow*3))

	health, err := AnalyzeDomainHealth(d, "old.invalid")
	require.NoError(t, err)
	require.Equal(t, 0, health.RequestCount)
	require.Equal(t, 0.0, health.ErrorRate)
}

func TestApplyDomainHealthPenalizesUnhealthyHost(t *testing.T) {
	d := newDomainHealthTestDB(t)
	now := time.Now()
	for i := 0; i < 4; i++ {
		seedResponse(t, d, "flaky.invalid", 500, now.Add(-time.Duration(i)*time.Minute))
	}

	f := New(testConfig(), "test-bot/1.0")
	health, err := f.ApplyDomainHealth(d, "flaky.invalid")
	require.NoError(t, err)
	require.Equal(t, 1.0, health.ErrorRate)

	hl := f.hosts.get("flaky.invalid")
	hl.mu.Lock()
	defer hl.mu.Unlock()
	require.Greater(t, hl.penalty, time.Duration(0))
}
