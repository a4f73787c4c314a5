package store

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, cfg cmn.StorageConfig) (*Store, *crawlerdb.DB) {
	t.Helper()
	dbase, err := crawlerdb.Open(filepath.Join(t.TempDir(), "crawler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbase.Close() })

	s, err := Open(dbase, t.TempDir(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dbase
}

func insertResponse(t *testing.T, d *crawlerdb.DB) int64 {
	t.Helper()
	res, err := d.SQL().Exec(`INSERT INTO urls(url, host, created_at, last_seen_at) VALUES (?,?,?,?)`,
		"https://example.invalid/a", "example.invalid", cmn.NowString(), cmn.NowString())
	require.NoError(t, err)
	urlID, err := res.LastInsertId()
	require.NoError(t, err)
	res, err = d.SQL().Exec(`
		INSERT INTO crawl_jobs(id, url_id, args, pid, started_at, status) VALUES (?,?,?,?,?,?)`,
		"job-1", urlID, "[]", 1, cmn.NowString(), cmn.JobStatusRunning)
	require.NoError(t, err)
	res, err = d.SQL().Exec(`
		INSERT INTO http_responses(url_id, job_id, request_started_at, fetched_at, http_status)
		VALUES (?,?,?,?,?)`, urlID, "job-1", cmn.NowString(), cmn.NowString(), 200)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestIdempotentStorageAndRoundTrip(t *testing.T) {
	cfg := cmn.DefaultConfig().Storage
	cfg.InlineThresholdBytes = 8 // force bucketed path for our test payloads
	s, d := newTestStore(t, cfg)

	respID := insertResponse(t, d)
	payload := []byte("the quick brown fox jumps over the lazy dog")

	ref1, err := s.Put(payload, PutMeta{HTTPResponseID: respID})
	require.NoError(t, err)
	ref2, err := s.Put(payload, PutMeta{HTTPResponseID: respID})
	require.NoError(t, err)

	require.Equal(t, ref1.ContentSHA256, ref2.ContentSHA256)
	require.Equal(t, ref1.BucketID, ref2.BucketID)
	require.Equal(t, ref1.BucketEntryKey, ref2.BucketEntryKey)

	var entryCount int
	require.NoError(t, d.SQL().QueryRow(
		`SELECT COUNT(*) FROM bucket_entries WHERE entry_key=?`, ref1.ContentSHA256).Scan(&entryCount))
	require.Equal(t, 1, entryCount, "second Put must not add bytes")

	got, err := s.Get(ref1)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	got2, err := s.Get(ref2)
	require.NoError(t, err)
	require.Equal(t, payload, got2)
}

// TestConcurrentPutSameHash races many Puts of one payload: exactly one
// set of bytes may land (first writer wins), every caller gets a ref to
// the same bucket entry, and losers link the winner's row instead of
// storing a second copy.
func TestConcurrentPutSameHash(t *testing.T) {
	cfg := cmn.DefaultConfig().Storage
	cfg.InlineThresholdBytes = 8 // force the bucketed path
	s, d := newTestStore(t, cfg)
	respID := insertResponse(t, d)

	payload := []byte("syndicated wire copy fetched by many jobs at once")

	const n = 8
	refs := make([]*ContentRef, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			refs[i], errs[i] = s.Put(payload, PutMeta{HTTPResponseID: respID})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, refs[0].ContentSHA256, refs[i].ContentSHA256)
		require.Equal(t, refs[0].BucketID, refs[i].BucketID)
		require.Equal(t, refs[0].BucketEntryKey, refs[i].BucketEntryKey)
	}

	var entryCount int
	require.NoError(t, d.SQL().QueryRow(
		`SELECT COUNT(*) FROM bucket_entries WHERE entry_key=?`, refs[0].ContentSHA256).Scan(&entryCount))
	require.Equal(t, 1, entryCount, "racing Puts must store the payload's bytes exactly once")

	for i := 0; i < n; i++ {
		got, err := s.Get(refs[i])
		require.NoError(t, err)
		require.Equal(t, payload, got)
	}
}

func TestInlineRoundTrip(t *testing.T) {
	cfg := cmn.DefaultConfig().Storage
	s, d := newTestStore(t, cfg)
	respID := insertResponse(t, d)

	payload := []byte("tiny")
	ref, err := s.Put(payload, PutMeta{HTTPResponseID: respID})
	require.NoError(t, err)
	require.Equal(t, cmn.StorageInline, ref.StorageType)

	got, err := s.Get(ref)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestBucketSealing exercises threshold-driven sealing: with
// bucketMaxEntries=3, put payloads a, b, c, d. Bucket B1 holds {a,b,c} and
// is sealed; bucket B2 holds {d} and is active; Get on any returns the
// original bytes.
func TestBucketSealing(t *testing.T) {
	cfg := cmn.DefaultConfig().Storage
	cfg.InlineThresholdBytes = 0 // everything goes through the bucket path
	cfg.BucketMaxEntries = 3
	s, d := newTestStore(t, cfg)
	respID := insertResponse(t, d)

	payloads := map[string][]byte{
		"a": []byte("payload-a-unique-bytes"),
		"b": []byte("payload-b-unique-bytes"),
		"c": []byte("payload-c-unique-bytes"),
		"d": []byte("payload-d-unique-bytes"),
	}
	refs := make(map[string]*ContentRef)
	for _, k := range []string{"a", "b", "c", "d"} {
		ref, err := s.Put(payloads[k], PutMeta{HTTPResponseID: respID})
		require.NoError(t, err)
		refs[k] = ref
	}

	require.Equal(t, refs["a"].BucketID, refs["b"].BucketID)
	require.Equal(t, refs["a"].BucketID, refs["c"].BucketID)
	require.NotEqual(t, refs["a"].BucketID, refs["d"].BucketID, "4th entry must roll to a new bucket")

	var status1, status2 string
	require.NoError(t, d.SQL().QueryRow(`SELECT status FROM compression_buckets WHERE id=?`, refs["a"].BucketID).Scan(&status1))
	require.NoError(t, d.SQL().QueryRow(`SELECT status FROM compression_buckets WHERE id=?`, refs["d"].BucketID).Scan(&status2))
	require.Equal(t, cmn.BucketSealed, status1)
	require.Equal(t, cmn.BucketActive, status2)

	for k, ref := range refs {
		got, err := s.Get(ref)
		require.NoError(t, err)
		require.Equal(t, payloads[k], got, "round trip for %s", k)
	}
}
