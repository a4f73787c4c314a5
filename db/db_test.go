package db

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crawler.db")
	d, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpenCreatesAllTables(t *testing.T) {
	d := openTestDB(t)

	rows, err := d.SQL().Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	got := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		got[name] = true
	}

	want := []string{
		"urls", "domains", "links", "crawl_jobs", "crawl_types",
		"queue_events", "crawl_problems", "crawl_milestones",
		"planner_stage_events", "crawl_tasks", "compression_types",
		"compression_buckets", "bucket_entries", "http_responses",
		"content_storage", "content_analysis", "places", "place_names",
		"place_external_ids", "place_hierarchy", "place_hubs",
		"place_exclusions", "news_websites",
	}
	for _, w := range want {
		require.Truef(t, got[w], "missing table %s", w)
	}
}

func TestWriterSerialisesAccess(t *testing.T) {
	d := openTestDB(t)

	const n = 50
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			errs <- d.WithURLWrite(func() error {
				_, err := d.SQL().Exec(
					`INSERT INTO urls(url, host, created_at, last_seen_at) VALUES (?,?,?,?)`,
					"https://example.invalid/p/"+strconv.Itoa(i), "example.invalid", "2026-01-01T00:00:00.000Z", "2026-01-01T00:00:00.000Z")
				return err
			})
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	var count int
	require.NoError(t, d.SQL().QueryRow(`SELECT COUNT(*) FROM urls`).Scan(&count))
	require.Equal(t, n, count)
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := OpenCache("")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("gazetteer", "austin", `{"id":1}`))
	v, err := c.Get("gazetteer", "austin")
	require.NoError(t, err)
	require.Equal(t, `{"id":1}`, v)

	_, err = c.Get("gazetteer", "missing")
	require.Error(t, err)

	require.NoError(t, c.Set("gazetteer", "austin-tx", `{"id":2}`))
	all, err := c.List("gazetteer", "austin")
	require.NoError(t, err)
	require.Len(t, all, 2)
}
