package fetch

import (
	"net/http"
	"time"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/pkg/errors"
)

// DomainHealth is the Rate-Limit Analyzer's per-host rollup:
// request throughput and error rate over a trailing window, persisted to
// domains.analysis_json.
type DomainHealth struct {
	Host              string  `json:"host"`
	WindowMinutes     int     `json:"window_minutes"`
	RequestCount      int     `json:"request_count"`
	RequestsPerMinute float64 `json:"requests_per_minute"`
	ErrorCount        int     `json:"error_count"`
	ErrorRate         float64 `json:"error_rate"`
}

// domainHealthWindow is the trailing window AnalyzeDomainHealth
// aggregates over; short enough that a host's recent behavior (not its
// whole crawl history) drives the computed rate.
const domainHealthWindow = 10 * time.Minute

// domainHealthErrorRateThreshold is the error_rate at or above which
// Fetcher.ApplyDomainHealth treats the host as unhealthy and escalates
// its delay the same way a 429 response would.
const domainHealthErrorRateThreshold = 0.25

// AnalyzeDomainHealth aggregates http_responses for host over a trailing
// window, computing requests_per_minute and error_rate (429s and 5xx
// count as errors), and upserts the result into domains, joining
// url_id -> urls.host the same way planner records responses.
func AnalyzeDomainHealth(db *crawlerdb.DB, host string) (*DomainHealth, error) {
	since := cmn.FormatTime(time.Now().Add(-domainHealthWindow))

	rows, err := db.SQL().Query(`
		SELECT hr.http_status FROM http_responses hr
		JOIN urls u ON u.id = hr.url_id
		WHERE u.host = ? AND hr.fetched_at >= ?`, host, since)
	if err != nil {
		return nil, errors.Wrap(err, "fetch: query http_responses for domain health")
	}
	defer rows.Close()

	var total, errCount int
	for rows.Next() {
		var status int
		if sErr := rows.Scan(&status); sErr != nil {
			return nil, sErr
		}
		total++
		if status == http.StatusTooManyRequests || status >= 500 {
			errCount++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	health := &DomainHealth{
		Host:          host,
		WindowMinutes: int(domainHealthWindow / time.Minute),
		RequestCount:  total,
	}
	if total > 0 {
		health.RequestsPerMinute = float64(total) / (float64(domainHealthWindow) / float64(time.Minute))
		health.ErrorCount = errCount
		health.ErrorRate = float64(errCount) / float64(total)
	}

	if err := upsertDomain(db, host, cmn.MustMarshalString(health)); err != nil {
		return nil, err
	}
	return health, nil
}

func upsertDomain(db *crawlerdb.DB, host, analysisJSON string) error {
	now := cmn.NowString()
	_, err := db.SQL().Exec(`
		INSERT INTO domains(host, created_at, last_seen_at, analysis_json) VALUES (?,?,?,?)
		ON CONFLICT(host) DO UPDATE SET last_seen_at=excluded.last_seen_at, analysis_json=excluded.analysis_json`,
		host, now, now, analysisJSON)
	return errors.Wrap(err, "fetch: upsert domains")
}

// ApplyDomainHealth analyzes host's recent domain health and, if its
// error_rate crosses domainHealthErrorRateThreshold, escalates the host's
// delay through the same consecutive-429 path Penalize uses - an
// unhealthy host gets throttled harder even when individual responses
// are 200s mixed with scattered 5xx/429s rather than a clean 429 streak.
func (f *Fetcher) ApplyDomainHealth(db *crawlerdb.DB, host string) (*DomainHealth, error) {
	health, err := AnalyzeDomainHealth(db, host)
	if err != nil {
		return nil, err
	}
	if health.RequestCount > 0 && health.ErrorRate >= domainHealthErrorRateThreshold {
		f.hosts.Penalize(host, 0)
	}
	return health, nil
}
