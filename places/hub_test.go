package places

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTitle(t *testing.T) {
	html := `<html><head><title>  Texas News Hub  </title></head><body></body></html>`
	require.Equal(t, "Texas News Hub", extractTitle(html))
	require.Equal(t, "", extractTitle("<html><body>no title</body></html>"))
}

func TestScoreHubPageMatchesTitleAndLacksArticleDate(t *testing.T) {
	html := `<title>Texas - Latest News</title><body>
		<a href="/world/texas/2024/01/02/story">one</a>
		<a href="/world/texas/2024/03/04/story">two</a>
	</body>`
	score, title := scoreHubPage([]byte(html), "Texas", "https://example.com/world/texas")
	require.Equal(t, "Texas - Latest News", title)
	require.InDelta(t, 1.0, score, 0.001)
}

func TestScoreHubPageLowScoreForArticlePage(t *testing.T) {
	html := `<title>Local news roundup</title><body>no internal date links</body>`
	score, _ := scoreHubPage([]byte(html), "Texas", "https://example.com/2024/01/02/some-story")
	require.Less(t, score, hubScoreThreshold)
}

func TestNewsWebsiteTemplatesMatchesHostAndParentDomain(t *testing.T) {
	d := newTestDB(t)

	_, err := d.SQL().Exec(`
		INSERT INTO news_websites(url, label, parent_domain, url_pattern, website_type, enabled)
		VALUES (?,?,?,?,?,?)`,
		"https://news.example.com", "Example News", "example.com", "/places/%s", "news", 1)
	require.NoError(t, err)
	_, err = d.SQL().Exec(`
		INSERT INTO news_websites(url, label, parent_domain, url_pattern, website_type, enabled)
		VALUES (?,?,?,?,?,?)`,
		"https://other.invalid", "Disabled Site", "other.invalid", "/ignored/%s", "news", 0)
	require.NoError(t, err)

	tmpls, err := NewsWebsiteTemplates(d, "news.example.com")
	require.NoError(t, err)
	require.Equal(t, []string{"/places/%s"}, tmpls)

	tmpls, err = NewsWebsiteTemplates(d, "other.invalid")
	require.NoError(t, err)
	require.Empty(t, tmpls, "disabled rows must not be returned")

	tmpls, err = NewsWebsiteTemplates(d, "unrelated.invalid")
	require.NoError(t, err)
	require.Empty(t, tmpls)
}

func TestPersistHubsUpsert(t *testing.T) {
	d := newTestDB(t)

	hubs := []Hub{
		{Host: "example.com", URL: "https://example.com/world/texas", PlaceSlug: "texas", PlaceKind: "admin1", Title: "Texas", Status: HubCandidate, Evidence: "{}"},
	}
	require.NoError(t, PersistHubs(d, hubs))

	hubs[0].Status = HubVerified
	hubs[0].Title = "Texas - Latest News"
	require.NoError(t, PersistHubs(d, hubs))

	var count int
	require.NoError(t, d.SQL().QueryRow(`SELECT COUNT(*) FROM place_hubs`).Scan(&count))
	require.Equal(t, 1, count, "upsert must not create a duplicate row")

	var status, title string
	require.NoError(t, d.SQL().QueryRow(`SELECT status, title FROM place_hubs WHERE url=?`, hubs[0].URL).Scan(&status, &title))
	require.Equal(t, string(HubVerified), status)
	require.Equal(t, "Texas - Latest News", title)
}
