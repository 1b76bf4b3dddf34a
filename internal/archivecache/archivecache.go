// Package archivecache is a persistent index over a packed directory's
// manifest.jsonl: a cheap rel-path -> archive-name lookup backed by
// bbolt, so a caller that resolves one file at a time (rather than
// walking the whole tree) doesn't re-scan the whole manifest for every
// lookup. EnsureBuilt rebuilds it whenever the manifest's stat
// fingerprint changes. The CLI's `dir unpack`/`dir verify` do not use
// it; they read manifest.jsonl directly.
//
// Follows a DB wrapper-with-buckets idiom: bbolt.Open,
// CreateBucketIfNotExists inside an Update transaction, a thin *bbolt.DB
// embed.
package archivecache

import (
	"fmt"
	"os"

	"go.etcd.io/bbolt"
)

var (
	bucketRelToArchive = []byte("rel_to_archive")
	bucketMeta         = []byte("meta")
)

const manifestFingerprintKey = "manifest_fingerprint"

// Cache wraps a bbolt database holding one packed directory's
// rel-path -> archive-name index plus the manifest fingerprint it was
// built from.
type Cache struct{ *bbolt.DB }

// Open opens (creating if absent) the bbolt file at path and ensures
// its buckets exist.
func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0o666, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, e := tx.CreateBucketIfNotExists(bucketRelToArchive); e != nil {
			return e
		}
		if _, e := tx.CreateBucketIfNotExists(bucketMeta); e != nil {
			return e
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db}, nil
}

func (c *Cache) Close() error { return c.DB.Close() }

// PutArchiveForRel records which archive file holds rel.
func (c *Cache) PutArchiveForRel(rel, archiveName string) error {
	return c.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRelToArchive).Put([]byte(rel), []byte(archiveName))
	})
}

// ArchiveForRel looks up which archive file holds rel.
func (c *Cache) ArchiveForRel(rel string) (name string, found bool, err error) {
	err = c.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRelToArchive).Get([]byte(rel))
		if v != nil {
			name = string(v)
			found = true
		}
		return nil
	})
	return name, found, err
}

// ManifestFingerprint returns the stat fingerprint the cache's index
// was last built from, or "" if never built.
func (c *Cache) ManifestFingerprint() (string, error) {
	var fp string
	err := c.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get([]byte(manifestFingerprintKey))
		fp = string(v)
		return nil
	})
	return fp, err
}

// SetManifestFingerprint records the stat fingerprint the cache's index
// was built from, used by EnsureBuilt to detect a stale cache.
func (c *Cache) SetManifestFingerprint(fp string) error {
	return c.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(manifestFingerprintKey), []byte(fp))
	})
}

// StatFingerprint returns a fingerprint of path's size and modification
// time, cheap enough to recompute on every open and sufficient to
// detect a manifest.jsonl that has been rewritten since the cache was
// last built.
func StatFingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano()), nil
}
