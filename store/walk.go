package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// recoverOrphans walks the bucket directory at startup and truncates any
// bytes written past the last offset actually committed to bucket_entries,
// so a partial append interrupted by a crash never surfaces as a
// readable bucket entry. godirwalk keeps the traversal fast and
// allocation-light; this is a one-shot startup scan, not a resident
// worker pool.
func (s *Store) recoverOrphans() error {
	dir := filepath.Join(s.baseDir, "buckets")
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() || !strings.HasSuffix(path, ".bin") {
				return nil
			}
			return s.truncateOrphan(path)
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			glog.Errorf("store: recover orphans: %s: %v", path, err)
			return godirwalk.SkipNode
		},
		Unsorted: true,
	})
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "store: recover orphans")
	}
	return nil
}

func (s *Store) truncateOrphan(path string) error {
	name := strings.TrimSuffix(filepath.Base(path), ".bin")

	var committed int64
	err := s.db.SQL().QueryRow(`
		SELECT COALESCE(MAX(offset + compressed_size), 0)
		FROM bucket_entries be
		JOIN compression_buckets cb ON cb.id = be.bucket_id
		WHERE cb.name = ?`, name).Scan(&committed)
	if err != nil {
		return errors.Wrapf(err, "store: committed offset for %s", name)
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "store: stat %s", path)
	}
	if info.Size() <= committed {
		return nil
	}

	glog.Warningf("store: truncating orphan bytes in %s: %d -> %d", path, info.Size(), committed)
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "store: open %s for truncation", path)
	}
	defer f.Close()
	return f.Truncate(committed)
}
