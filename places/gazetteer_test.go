package places

import (
	"path/filepath"
	"testing"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *crawlerdb.DB {
	t.Helper()
	d, err := crawlerdb.Open(filepath.Join(t.TempDir(), "crawler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func insertPlace(t *testing.T, d *crawlerdb.DB, kind, country, qid string, population int64, names ...string) int64 {
	t.Helper()
	var qidArg interface{}
	if qid != "" {
		qidArg = qid
	}
	res, err := d.SQL().Exec(`
		INSERT INTO places(kind, country_code, wikidata_qid, population, status) VALUES (?,?,?,?,'active')`,
		kind, country, qidArg, population)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	for i, n := range names {
		nameKind := cmn.NameKindPreferred
		if i > 0 {
			nameKind = cmn.NameKindExonym
		}
		_, err := d.SQL().Exec(`
			INSERT INTO place_names(place_id, name, normalized, name_kind, is_preferred) VALUES (?,?,?,?,?)`,
			id, n, NormalizeName(n), nameKind, boolToInt(i == 0))
		require.NoError(t, err)
	}
	return id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestGazetteerLoadAndLookup(t *testing.T) {
	d := newTestDB(t)
	insertPlace(t, d, cmn.PlaceKindAdmin1, "US", "Q1439", 29000000, "Texas")
	insertPlace(t, d, cmn.PlaceKindCity, "FR", "Q90", 2100000, "Paris")

	gaz := New(cmn.DefaultConfig().Places)
	require.NoError(t, gaz.Load(d))

	places := gaz.ByNormalizedName("texas")
	require.Len(t, places, 1)
	require.Equal(t, "US", places[0].CountryCode)

	require.True(t, gaz.MaybeKnownName("texas"))
	require.Empty(t, gaz.ByNormalizedName("nowhereland"))

	slugPlaces := gaz.BySlug("paris")
	require.Len(t, slugPlaces, 1)
	require.Equal(t, "FR", slugPlaces[0].CountryCode)
}

func TestGazetteerAmbiguousNameTieBreak(t *testing.T) {
	d := newTestDB(t)
	insertPlace(t, d, cmn.PlaceKindCity, "US", "Q-small", 50000, "Springfield")
	insertPlace(t, d, cmn.PlaceKindCity, "US", "Q-big", 500000, "Springfield")

	gaz := New(cmn.DefaultConfig().Places)
	require.NoError(t, gaz.Load(d))

	places := gaz.ByNormalizedName("springfield")
	require.Len(t, places, 2)
	require.Equal(t, int64(500000), places[0].Population, "larger population must sort first")
}

func TestGazetteerReset(t *testing.T) {
	d := newTestDB(t)
	insertPlace(t, d, cmn.PlaceKindCity, "FR", "Q90", 2100000, "Paris")

	gaz := New(cmn.DefaultConfig().Places)
	require.NoError(t, gaz.Load(d))
	require.NotEmpty(t, gaz.ByNormalizedName("paris"))

	gaz.Reset()
	require.Empty(t, gaz.ByNormalizedName("paris"))
}

func TestGazetteerLoadsExternalIDsAndFindsDuplicates(t *testing.T) {
	d := newTestDB(t)
	id1 := insertPlace(t, d, cmn.PlaceKindCity, "US", "", 800000, "Austin")
	id2 := insertPlace(t, d, cmn.PlaceKindCity, "US", "", 800000, "Austin")

	_, err := d.SQL().Exec(`INSERT INTO place_external_ids(place_id, source, ext_id) VALUES (?,?,?)`,
		id1, "geonames", "4671654")
	require.NoError(t, err)
	_, err = d.SQL().Exec(`INSERT INTO place_external_ids(place_id, source, ext_id) VALUES (?,?,?)`,
		id2, "geonames", "4671654")
	require.NoError(t, err)

	gaz := New(cmn.DefaultConfig().Places)
	require.NoError(t, gaz.Load(d))

	groups := gaz.FindDuplicateCandidates(0.05)
	require.Len(t, groups, 1)
	require.Equal(t, DupExternalID, groups[0].Reason)
	require.ElementsMatch(t, []int64{id1, id2}, []int64{groups[0].A, groups[0].B})
}

func TestReportDuplicatesRecordsProblems(t *testing.T) {
	d := newTestDB(t)
	id1 := insertPlace(t, d, cmn.PlaceKindCity, "US", "", 800000, "Austin")
	id2 := insertPlace(t, d, cmn.PlaceKindCity, "US", "", 800000, "Austin")
	_, err := d.SQL().Exec(`INSERT INTO place_external_ids(place_id, source, ext_id) VALUES (?,?,?)`,
		id1, "geonames", "4671654")
	require.NoError(t, err)
	_, err = d.SQL().Exec(`INSERT INTO place_external_ids(place_id, source, ext_id) VALUES (?,?,?)`,
		id2, "geonames", "4671654")
	require.NoError(t, err)

	jobID := insertTestJob(t, d, "https://example.com/seed")

	gaz := New(cmn.DefaultConfig().Places)
	require.NoError(t, gaz.Load(d))

	n, err := ReportDuplicates(d, gaz, jobID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var count int
	require.NoError(t, d.SQL().QueryRow(`SELECT COUNT(*) FROM crawl_problems WHERE kind=? AND job_id=?`, cmn.ErrKindDuplicateAmbig, jobID).Scan(&count))
	require.Equal(t, 1, count)
}

func insertTestJob(t *testing.T, d *crawlerdb.DB, seedURL string) string {
	t.Helper()
	res, err := d.SQL().Exec(`
		INSERT INTO urls(url, host, created_at, last_seen_at) VALUES (?,?,?,?)`,
		seedURL, "example.com", cmn.NowString(), cmn.NowString())
	require.NoError(t, err)
	urlID, err := res.LastInsertId()
	require.NoError(t, err)

	jobID := "test-job-1"
	_, err = d.SQL().Exec(`
		INSERT INTO crawl_jobs(id, url_id, args, pid, started_at, status) VALUES (?,?,?,?,?,?)`,
		jobID, urlID, "{}", 1, cmn.NowString(), cmn.JobStatusRunning)
	require.NoError(t, err)
	return jobID
}
