package places

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/newsgrid/crawler/fetch"
	"github.com/pkg/errors"
)

// HubTemplates are the candidate URL path templates probed for each
// gazetteer place during hub discovery. `%s` is
// substituted with Slugify(place's preferred name); a template without a
// `%s` verb (e.g. a literal news_websites.url_pattern) is probed as-is.
var HubTemplates = []string{
	"/world/%s",
	"/topics/%s",
	"/news/%s",
	"/tag/%s",
}

// hubScoreThreshold is the minimum score above which a
// probed candidate is inserted as status=verified rather than candidate.
const hubScoreThreshold = 0.6

var articleDatePath = regexp.MustCompile(`/20\d{2}/\d{2}(/\d{2})?/`)

// NewsWebsiteTemplates returns the enabled news_websites.url_pattern
// values that apply to host (matched by exact url host or a
// parent_domain suffix), so hub discovery can probe deployment-declared
// paths in addition to the built-in HubTemplates.
func NewsWebsiteTemplates(db *crawlerdb.DB, host string) ([]string, error) {
	rows, err := db.SQL().Query(`SELECT url, parent_domain, url_pattern FROM news_websites WHERE enabled=1`)
	if err != nil {
		return nil, errors.Wrap(err, "places: query news_websites")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var siteURL, parentDomain, pattern sql.NullString
		if err := rows.Scan(&siteURL, &parentDomain, &pattern); err != nil {
			return nil, err
		}
		if !pattern.Valid || pattern.String == "" {
			continue
		}
		siteHost := siteURL.String
		if u, pErr := url.Parse(siteURL.String); pErr == nil && u.Host != "" {
			siteHost = u.Host
		}
		if siteHost == host || (parentDomain.Valid && parentDomain.String != "" && strings.HasSuffix(host, parentDomain.String)) {
			out = append(out, pattern.String)
		}
	}
	return out, rows.Err()
}

// DiscoverHubs probes host for every candidate template x place, scores
// the response, and returns the PlaceHub rows to persist.
// extraTemplates (e.g. from NewsWebsiteTemplates) are probed alongside
// the built-in HubTemplates. It does not itself write to the db -
// callers own the transaction boundary (mirrors store/queue's separation
// of I/O from persistence).
func DiscoverHubs(ctx context.Context, fetcher *fetch.Fetcher, host string, candidates []*Place, preferredName func(*Place) string, extraTemplates ...string) ([]Hub, error) {
	templates := HubTemplates
	if len(extraTemplates) > 0 {
		templates = append(append([]string{}, HubTemplates...), extraTemplates...)
	}
	var out []Hub
	for _, p := range candidates {
		name := preferredName(p)
		if name == "" {
			continue
		}
		slug := Slugify(name)
		if slug == "" {
			continue
		}
		for _, tmpl := range templates {
			path := tmpl
			if strings.Contains(tmpl, "%s") {
				path = fmt.Sprintf(tmpl, slug)
			}
			probeURL := "https://" + host + path

			res, outcome, err := fetcher.Fetch(ctx, probeURL, fetch.Conditional{})
			if err != nil || outcome != fetch.OutcomeCompleted {
				continue
			}
			score, title := scoreHubPage(res.Body, name, probeURL)
			status := HubCandidate
			if score >= hubScoreThreshold {
				status = HubVerified
			} else if score <= 0 {
				status = HubRejected
			}
			out = append(out, Hub{
				Host: host, URL: probeURL, PlaceSlug: slug, PlaceKind: p.Kind,
				Title: title, Status: status,
				Evidence: cmn.MustMarshalString(map[string]interface{}{"score": score, "template": tmpl}),
			})
			if status == HubVerified {
				break // one verified hub per place is enough
			}
		}
	}
	return out, nil
}

// scoreHubPage implements the three signals: place name in
// <title>, count of internal links to date-pattern URLs (penalized - a
// hub lists many articles, but the hub page itself should not look like
// one), and absence of article-date path segments in its own URL/content.
func scoreHubPage(body []byte, placeName, pageURL string) (score float64, title string) {
	html := string(body)
	title = extractTitle(html)

	if title != "" && strings.Contains(strings.ToLower(title), strings.ToLower(placeName)) {
		score += 0.5
	}

	dateLinkCount := len(articleDatePath.FindAllString(html, -1))
	if dateLinkCount > 0 {
		score += 0.3
	}
	if !articleDatePath.MatchString(pageURL) {
		score += 0.2 // the hub's own URL lacks an article-date segment
	}
	if score > 1 {
		score = 1
	}
	return score, title
}

var titleTagRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func extractTitle(html string) string {
	m := titleTagRe.FindStringSubmatch(html)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// PersistHubs upserts the discovered rows into place_hubs, keyed by
// UNIQUE(host, url).
func PersistHubs(db *crawlerdb.DB, hubs []Hub) error {
	for _, h := range hubs {
		if _, err := db.SQL().Exec(`
			INSERT INTO place_hubs(host, url, place_slug, place_kind, title, evidence, status)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(host, url) DO UPDATE SET
				place_slug=excluded.place_slug, place_kind=excluded.place_kind,
				title=excluded.title, evidence=excluded.evidence, status=excluded.status`,
			h.Host, h.URL, h.PlaceSlug, h.PlaceKind, h.Title, h.Evidence, h.Status); err != nil {
			return errors.Wrapf(err, "places: persist hub %s", h.URL)
		}
	}
	return nil
}
