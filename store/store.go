// Package store implements the content-addressed storage engine: every
// fetched payload gets a durable identity keyed by its SHA-256, stored
// inline for small payloads and appended to a sealed-on-threshold
// compression bucket otherwise. Bucket appends write the bytes, fsync,
// then commit the index row in the same unit, so a partial append never
// produces a readable entry.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/newsgrid/crawler/cmn"
	crawlerdb "github.com/newsgrid/crawler/db"
	"github.com/pkg/errors"
)

// ContentRef identifies a stored payload, returned by Put and consumed by
// Get. It carries enough of content_storage's row to avoid a second query
// on the hot Get path.
type ContentRef struct {
	ContentStorageID   int64
	StorageType        string // inline | bucketed | external
	ContentSHA256      string
	UncompressedSize   int64
	BucketID           int64
	BucketEntryKey     string
	ExternalURI        string
}

// PutMeta carries the caller-supplied context Put needs beyond the bytes
// themselves: which http_response row this payload belongs to and which
// compression type should own a new bucket if one is needed.
type PutMeta struct {
	HTTPResponseID  int64
	CompressionType string
}

// Store is the storage engine. One Store owns one base directory of
// bucket files and the content_storage/compression_buckets/bucket_entries
// rows in the shared db.DB.
type Store struct {
	db      *crawlerdb.DB
	baseDir string

	cfg cmn.StorageConfig

	mu      sync.Mutex // guards active + open bucket file handles
	active  map[string]*bucketHandle
	codecs  map[string]Codec
	external *ExternalTier

	// writer is the store's own single-writer lane for the tables it
	// owns (content_storage, bucket_entries, compression_buckets), one
	// coordinator per table owner. It is deliberately NOT one of db.DB's
	// domain/url/job lanes: store's commits must never contend with the
	// url table's writer, and this lane sits outside the
	// domain -> url -> job lock order entirely.
	writer *crawlerdb.Writer
}

// write runs fn on the store's writer lane. Every mutation of a
// store-owned table goes through here; in particular Put's
// check-then-insert runs as ONE fn so two concurrent Puts of the same
// hash cannot both pass the existence check. Lock order within the
// store is writer lane first, then s.mu - never the reverse.
func (s *Store) write(fn func() error) error {
	return s.writer.Do(fn)
}

type bucketHandle struct {
	id     int64
	name   string
	file   *os.File
	offset int64
}

func Open(database *crawlerdb.DB, baseDir string, cfg cmn.StorageConfig, ext *ExternalTier) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "buckets"), 0o755); err != nil {
		return nil, errors.Wrap(err, "store: mkdir base dir")
	}
	s := &Store{
		db:       database,
		baseDir:  baseDir,
		cfg:      cfg,
		active:   make(map[string]*bucketHandle),
		codecs:   make(map[string]Codec),
		external: ext,
		writer:   crawlerdb.NewWriter(),
	}
	if err := s.ensureCompressionType(cfg.CompressionType); err != nil {
		return nil, err
	}
	if err := s.recoverOrphans(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close stops the writer coordinator and releases any open active-bucket
// file handles. Sealed buckets were already closed at seal time.
func (s *Store) Close() error {
	s.writer.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for ct, bh := range s.active {
		if err := bh.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.active, ct)
	}
	return firstErr
}

func (s *Store) codecFor(name string) (Codec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.codecs[name]; ok {
		return c, nil
	}
	c, err := CodecFor(name)
	if err != nil {
		return nil, err
	}
	s.codecs[name] = c
	return c, nil
}

func (s *Store) ensureCompressionType(name string) error {
	codec, err := CodecFor(name)
	if err != nil {
		return err
	}
	_, err = s.db.SQL().Exec(
		`INSERT OR IGNORE INTO compression_types(name, algorithm, level) VALUES (?,?,?)`,
		name, codec.Name(), 0)
	return err
}

func (s *Store) compressionTypeID(name string) (int64, error) {
	var id int64
	err := s.db.SQL().QueryRow(`SELECT id FROM compression_types WHERE name=?`, name).Scan(&id)
	return id, err
}

// Put computes the SHA-256 of data and chooses a storage policy: inline
// below the configured threshold, bucketed otherwise. If the hash
// already exists it returns the existing logical payload's location
// without writing any new bytes, so Put is idempotent per hash. The
// existence check and the chosen insert run as one critical section on
// the writer lane: when two Puts race on the same hash, the first writer
// wins and the loser links the winner's row instead of storing a second
// copy.
func (s *Store) Put(data []byte, meta PutMeta) (*ContentRef, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	var ref *ContentRef
	err := s.write(func() error {
		existing, err := s.findExisting(hash)
		if err != nil {
			return err
		}
		if existing != nil {
			ref, err = s.linkExistingLocked(existing, meta)
			return err
		}
		if int64(len(data)) < s.cfg.InlineThresholdBytes {
			ref, err = s.putInlineLocked(data, hash, meta)
			return err
		}
		ref, err = s.putBucketedLocked(data, hash, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// findExisting returns any prior content_storage row for hash, used both
// as the "already stored" fast path and as the template for new rows that
// reference the same bytes from a different http_response. For
// check-then-insert decisions the caller must hold the writer lane, or
// the answer may be stale by the time it acts on it.
func (s *Store) findExisting(hash string) (*ContentRef, error) {
	row := s.db.SQL().QueryRow(`
		SELECT id, storage_type, content_sha256, uncompressed_size,
		       COALESCE(compression_bucket_id, 0), COALESCE(bucket_entry_key, '')
		FROM content_storage WHERE content_sha256=? LIMIT 1`, hash)
	var ref ContentRef
	err := row.Scan(&ref.ContentStorageID, &ref.StorageType, &ref.ContentSHA256,
		&ref.UncompressedSize, &ref.BucketID, &ref.BucketEntryKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: find existing")
	}
	return &ref, nil
}

// linkExistingLocked inserts a new content_storage row for
// meta.HTTPResponseID that points at the same bytes as existing, without
// touching bucket storage - this is how a single content_sha256
// legitimately ends up referenced by multiple http_responses. Caller
// holds the writer lane.
func (s *Store) linkExistingLocked(existing *ContentRef, meta PutMeta) (*ContentRef, error) {
	res, err := s.db.SQL().Exec(`
		INSERT INTO content_storage(
			storage_type, http_response_id, compression_bucket_id, bucket_entry_key,
			content_blob, content_sha256, uncompressed_size, compressed_size,
			compression_ratio, created_at)
		SELECT storage_type, ?, compression_bucket_id, bucket_entry_key,
		       content_blob, content_sha256, uncompressed_size, compressed_size,
		       compression_ratio, ?
		FROM content_storage WHERE id=?`,
		meta.HTTPResponseID, cmn.NowString(), existing.ContentStorageID)
	if err != nil {
		return nil, errors.Wrap(err, "store: link existing")
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "store: link existing")
	}
	ref := *existing
	ref.ContentStorageID = newID
	return &ref, nil
}

// putInlineLocked stores data in the content_storage row itself. Caller
// holds the writer lane.
func (s *Store) putInlineLocked(data []byte, hash string, meta PutMeta) (*ContentRef, error) {
	res, err := s.db.SQL().Exec(`
		INSERT INTO content_storage(
			storage_type, http_response_id, content_blob, content_sha256,
			uncompressed_size, created_at)
		VALUES ('inline', ?, ?, ?, ?, ?)`,
		meta.HTTPResponseID, data, hash, len(data), cmn.NowString())
	if err != nil {
		return nil, errors.Wrap(err, "store: put inline")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "store: put inline")
	}
	return &ContentRef{
		ContentStorageID: id,
		StorageType:      cmn.StorageInline,
		ContentSHA256:    hash,
		UncompressedSize: int64(len(data)),
	}, nil
}

// putBucketedLocked compresses data and appends it to the active bucket
// for the chosen compression type. Caller holds the writer lane; s.mu is
// taken inside it for the bucket-handle map (writer lane first, then
// s.mu, everywhere).
func (s *Store) putBucketedLocked(data []byte, hash string, meta PutMeta) (*ContentRef, error) {
	compressionType := meta.CompressionType
	if compressionType == "" {
		compressionType = s.cfg.CompressionType
	}
	codec, err := s.codecFor(compressionType)
	if err != nil {
		return nil, err
	}
	compressed, err := codec.Compress(data)
	if err != nil {
		return nil, errors.Wrap(err, "store: compress")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bh, err := s.activeBucketLocked(compressionType)
	if err != nil {
		return nil, err
	}

	offset := bh.offset
	n, err := bh.file.Write(compressed)
	if err != nil {
		return nil, errors.Wrap(err, "store: write bucket entry")
	}
	if err := bh.file.Sync(); err != nil {
		return nil, errors.Wrap(err, "store: fsync bucket")
	}
	// Only advance the in-memory offset once fsync succeeded; a crash
	// before this point leaves bytes on disk past the last committed
	// offset, which recoverOrphans truncates on the next Open.
	bh.offset += int64(n)

	ctID, err := s.compressionTypeID(compressionType)
	if err != nil {
		return nil, err
	}

	var contentID int64
	tx, err := s.db.SQL().Begin()
	if err != nil {
		return nil, errors.Wrap(err, "store: commit bucket entry")
	}
	if err := func() error {
		if _, err := tx.Exec(`
			INSERT INTO bucket_entries(bucket_id, entry_key, uncompressed_size, compressed_size, offset)
			VALUES (?,?,?,?,?)`,
			bh.id, hash, len(data), len(compressed), offset); err != nil {
			return err
		}
		ratio := float64(len(compressed)) / float64(len(data))
		res, err := tx.Exec(`
			INSERT INTO content_storage(
				storage_type, http_response_id, compression_type_id, compression_bucket_id,
				bucket_entry_key, content_sha256, uncompressed_size, compressed_size,
				compression_ratio, created_at)
			VALUES ('bucketed', ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			meta.HTTPResponseID, ctID, bh.id, hash, hash, len(data), len(compressed), ratio, cmn.NowString())
		if err != nil {
			return err
		}
		if contentID, err = res.LastInsertId(); err != nil {
			return err
		}
		_, err = tx.Exec(`
			UPDATE compression_buckets
			SET total_entries = total_entries + 1,
			    total_uncompressed_bytes = total_uncompressed_bytes + ?,
			    total_compressed_bytes = total_compressed_bytes + ?
			WHERE id = ?`, len(data), len(compressed), bh.id)
		return err
	}(); err != nil {
		tx.Rollback()
		return nil, errors.Wrap(err, "store: commit bucket entry")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "store: commit bucket entry")
	}

	if err := s.sealIfFullLocked(bh); err != nil {
		return nil, err
	}

	return &ContentRef{
		ContentStorageID: contentID,
		StorageType:      cmn.StorageBucketed,
		ContentSHA256:    hash,
		UncompressedSize: int64(len(data)),
		BucketID:         bh.id,
		BucketEntryKey:   hash,
	}, nil
}

// LinkByHash attaches meta.HTTPResponseID to an already-stored payload
// identified by hash, without writing any bytes - how a 304 Not Modified
// response synthesises its ContentStorage reference to the prior fetch's
// payload. Lookup and insert share one writer-lane critical section,
// same as Put.
func (s *Store) LinkByHash(hash string, meta PutMeta) (*ContentRef, error) {
	var ref *ContentRef
	err := s.write(func() error {
		existing, err := s.findExisting(hash)
		if err != nil {
			return err
		}
		if existing == nil {
			return errors.Errorf("store: no stored payload for hash %s", hash)
		}
		ref, err = s.linkExistingLocked(existing, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// Get returns the original bytes for ref, decompressing from its bucket
// if necessary. For all ref in the image of Put,
// Get(Put(bytes)) == bytes.
func (s *Store) Get(ref *ContentRef) ([]byte, error) {
	switch ref.StorageType {
	case cmn.StorageInline:
		var blob []byte
		err := s.db.SQL().QueryRow(`SELECT content_blob FROM content_storage WHERE id=?`, ref.ContentStorageID).Scan(&blob)
		if err != nil {
			return nil, errors.Wrap(err, "store: get inline")
		}
		return blob, nil
	case cmn.StorageBucketed:
		return s.getBucketed(ref)
	case cmn.StorageExternal:
		if s.external == nil {
			return nil, errors.New("store: external tier not configured")
		}
		return s.external.Get(ref.ExternalURI)
	default:
		return nil, errors.Errorf("store: unknown storage type %q", ref.StorageType)
	}
}

func (s *Store) getBucketed(ref *ContentRef) ([]byte, error) {
	var (
		bucketName                          string
		offset, compressedSize, uncompSize int64
		compressionTypeName                string
	)
	err := s.db.SQL().QueryRow(`
		SELECT cb.name, be.offset, be.compressed_size, be.uncompressed_size, ct.name
		FROM bucket_entries be
		JOIN compression_buckets cb ON cb.id = be.bucket_id
		JOIN compression_types ct ON ct.id = cb.compression_type_id
		WHERE be.bucket_id = ? AND be.entry_key = ?`,
		ref.BucketID, ref.BucketEntryKey).
		Scan(&bucketName, &offset, &compressedSize, &uncompSize, &compressionTypeName)
	if err != nil {
		return nil, errors.Wrap(err, "store: locate bucket entry")
	}

	f, err := os.Open(s.bucketPath(bucketName))
	if err != nil {
		return nil, errors.Wrap(err, "store: open bucket file")
	}
	defer f.Close()

	buf := make([]byte, compressedSize)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, errors.Wrap(err, "store: read bucket entry")
	}
	codec, err := s.codecFor(compressionTypeName)
	if err != nil {
		return nil, err
	}
	return codec.Decompress(buf, int(uncompSize))
}
