package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/newsgrid/crawler/cmn"
	"github.com/pkg/errors"
)

func (s *Store) bucketPath(name string) string {
	return filepath.Join(s.baseDir, "buckets", name+".bin")
}

// activeBucketLocked returns the currently-active bucket for
// compressionType, opening its file handle if needed, creating a new
// bucket row (and file) if none is active. Caller holds the writer lane
// and s.mu.
func (s *Store) activeBucketLocked(compressionType string) (*bucketHandle, error) {
	if bh, ok := s.active[compressionType]; ok {
		return bh, nil
	}

	ctID, err := s.compressionTypeID(compressionType)
	if err != nil {
		return nil, errors.Wrap(err, "store: compression type lookup")
	}

	var (
		id   int64
		name string
	)
	row := s.db.SQL().QueryRow(`
		SELECT id, name FROM compression_buckets
		WHERE compression_type_id = ? AND status = 'active'
		ORDER BY id DESC LIMIT 1`, ctID)
	err = row.Scan(&id, &name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id, name, err = s.createBucketLocked(compressionType, ctID)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, errors.Wrap(err, "store: query active bucket")
	}

	f, err := os.OpenFile(s.bucketPath(name), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "store: open bucket file")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "store: stat bucket file")
	}

	bh := &bucketHandle{id: id, name: name, file: f, offset: info.Size()}
	s.active[compressionType] = bh
	return bh, nil
}

// createBucketLocked inserts a fresh active bucket row. Caller holds the
// writer lane and s.mu.
func (s *Store) createBucketLocked(compressionType string, ctID int64) (id int64, name string, err error) {
	name = compressionType + "-" + cmn.NewJobID()
	res, err := s.db.SQL().Exec(`
		INSERT INTO compression_buckets(name, compression_type_id, status, created_at)
		VALUES (?, ?, 'active', ?)`, name, ctID, cmn.NowString())
	if err != nil {
		return 0, "", err
	}
	id, err = res.LastInsertId()
	return id, name, err
}

// sealIfFullLocked seals bh when either sealing threshold
// (BucketMaxEntries or BucketMaxBytes) is reached, and clears it from
// the active map so the next put for this compression type opens or
// creates a fresh bucket.
func (s *Store) sealIfFullLocked(bh *bucketHandle) error {
	var entries, compressedBytes int64
	err := s.db.SQL().QueryRow(
		`SELECT total_entries, total_compressed_bytes FROM compression_buckets WHERE id=?`,
		bh.id).Scan(&entries, &compressedBytes)
	if err != nil {
		return errors.Wrap(err, "store: read bucket totals")
	}
	if entries < s.cfg.BucketMaxEntries && compressedBytes < s.cfg.BucketMaxBytes {
		return nil
	}
	return s.sealLocked(bh)
}

// Seal atomically marks the named bucket sealed; subsequent Put calls
// for that bucket's compression type open or create a new active
// bucket. It enters the writer lane before taking s.mu, same order as
// every other store mutation.
func (s *Store) Seal(bucketID int64) error {
	return s.write(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for ct, bh := range s.active {
			if bh.id == bucketID {
				if err := s.sealLocked(bh); err != nil {
					return err
				}
				delete(s.active, ct)
				return nil
			}
		}
		// Not currently active in this process (e.g. already sealed
		// elsewhere, or this is a cross-process request) - seal by id
		// alone.
		_, err := s.db.SQL().Exec(
			`UPDATE compression_buckets SET status='sealed', sealed_at=? WHERE id=? AND status='active'`,
			cmn.NowString(), bucketID)
		return errors.Wrap(err, "store: seal bucket")
	})
}

// ArchiveBucket uploads a sealed bucket's file to the external tier at
// uri and marks the bucket archived, the final step of the
// active -> sealed -> archived lifecycle. The local file is
// left in place and uri is not recorded in the db: Get reads bucketed
// entries from the local file only and does not fall back to the
// archived copy.
func (s *Store) ArchiveBucket(ctx context.Context, bucketID int64, uri string) error {
	if s.external == nil {
		return errors.New("store: external tier not configured")
	}
	var name, status string
	err := s.db.SQL().QueryRow(
		`SELECT name, status FROM compression_buckets WHERE id=?`, bucketID).Scan(&name, &status)
	if err != nil {
		return errors.Wrap(err, "store: archive lookup")
	}
	if status != cmn.BucketSealed {
		return errors.Errorf("store: bucket %d is %s, only sealed buckets can be archived", bucketID, status)
	}
	data, err := os.ReadFile(s.bucketPath(name))
	if err != nil {
		return errors.Wrap(err, "store: read sealed bucket")
	}
	// The upload happens outside the writer lane - never hold a storage
	// lock across a network call. Only the status flip takes the lane,
	// guarded so a bucket that changed state mid-upload is left alone.
	if err := s.external.Archive(ctx, uri, data); err != nil {
		return err
	}
	return s.write(func() error {
		_, err := s.db.SQL().Exec(
			`UPDATE compression_buckets SET status='archived' WHERE id=? AND status='sealed'`, bucketID)
		return err
	})
}

// sealLocked flips bh to sealed and closes its file. Caller holds the
// writer lane and s.mu.
func (s *Store) sealLocked(bh *bucketHandle) error {
	if _, err := s.db.SQL().Exec(
		`UPDATE compression_buckets SET status='sealed', sealed_at=? WHERE id=?`,
		cmn.NowString(), bh.id); err != nil {
		return errors.Wrap(err, "store: seal")
	}
	if err := bh.file.Close(); err != nil {
		return errors.Wrap(err, "store: close sealed bucket file")
	}
	for ct, cur := range s.active {
		if cur.id == bh.id {
			delete(s.active, ct)
		}
	}
	return nil
}
