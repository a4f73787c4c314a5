package planner

import (
	"sort"

	"github.com/newsgrid/crawler/cmn"
	"github.com/golang/glog"
)

// skeletonFamily is one layout cluster discovered by grouping recently
// analyzed pages by their level-2 (structure) skeleton hash.
type skeletonFamily struct {
	SkeletonHash string `json:"skeleton_hash"`
	Count        int    `json:"count"`
	SampleTitle  string `json:"sample_title"`
}

// learnPatterns is the pattern-learning sub-stage: once
// PatternLearningThreshold pages have been fetched, and again in the
// extract stage, it groups the job's recent content_analysis rows by
// skeleton hash into layout families and records them as a
// patterns-learned milestone for the seed host. The crawl_type
// declaration is not modified. Best-effort: a failure here never fails
// the job.
func (p *Planner) learnPatterns(jobID string) {
	families, err := p.skeletonFamilies(jobID)
	if err != nil {
		glog.Warningf("planner: job %s pattern learning: %v", jobID, err)
		return
	}
	if len(families) == 0 {
		return
	}

	var host string
	_ = p.db.SQL().QueryRow(`
		SELECT u.host FROM crawl_jobs j JOIN urls u ON u.id = j.url_id WHERE j.id=?`, jobID).Scan(&host)

	if err := p.Milestone(jobID, "patterns-learned", "host", host,
		"patterns learned for host "+host, cmn.MustMarshalString(families)); err != nil {
		glog.Warningf("planner: job %s record pattern milestone: %v", jobID, err)
	}
}

// skeletonFamilies groups this job's content_analysis rows (joined
// through content_storage/http_responses) by the skeleton hash stashed in
// analysis_json, returning the largest families first.
func (p *Planner) skeletonFamilies(jobID string) ([]skeletonFamily, error) {
	rows, err := p.db.SQL().Query(`
		SELECT ca.analysis_json, ca.title
		FROM content_analysis ca
		JOIN content_storage cs ON cs.id = ca.content_id
		JOIN http_responses hr ON hr.id = cs.http_response_id
		WHERE hr.job_id = ?
		ORDER BY ca.analyzed_at DESC
		LIMIT 500`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]*skeletonFamily)
	for rows.Next() {
		var analysisJSON, title string
		if err := rows.Scan(&analysisJSON, &title); err != nil {
			return nil, err
		}
		var view struct {
			SkeletonHash string `json:"skeleton_hash"`
		}
		if err := cmn.Unmarshal([]byte(analysisJSON), &view); err != nil || view.SkeletonHash == "" {
			continue
		}
		fam, ok := counts[view.SkeletonHash]
		if !ok {
			fam = &skeletonFamily{SkeletonHash: view.SkeletonHash, SampleTitle: title}
			counts[view.SkeletonHash] = fam
		}
		fam.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]skeletonFamily, 0, len(counts))
	for _, fam := range counts {
		out = append(out, *fam)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}
