package archivecache

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.etcd.io/bbolt"
)

// manifestRecord mirrors only the fields of a manifest.jsonl file-kind
// line this package needs to build its rel->archive index.
type manifestRecord struct {
	Kind    string `json:"kind"`
	Rel     string `json:"rel"`
	Archive string `json:"archive"`
	Error   string `json:"error"`
}

// EnsureBuilt opens (or creates) the bbolt cache file at cachePath and
// rebuilds its rel->archive index from dir's manifest.jsonl whenever
// the manifest's stat fingerprint differs from the one the cache was
// last built from. Callers should Close the returned Cache when done.
func EnsureBuilt(dir, cachePath string) (*Cache, error) {
	manifestPath := filepath.Join(dir, "manifest.jsonl")
	fp, err := StatFingerprint(manifestPath)
	if err != nil {
		return nil, err
	}

	c, err := Open(cachePath)
	if err != nil {
		return nil, err
	}

	stored, err := c.ManifestFingerprint()
	if err != nil {
		c.Close()
		return nil, err
	}
	if stored == fp {
		return c, nil
	}

	if err := c.rebuild(manifestPath); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.SetManifestFingerprint(fp); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) rebuild(manifestPath string) error {
	f, err := os.Open(manifestPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return c.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketRelToArchive); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		bucket, err := tx.CreateBucket(bucketRelToArchive)
		if err != nil {
			return err
		}

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			var rec manifestRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				continue
			}
			if rec.Kind == "bucket_summary" || rec.Rel == "" || rec.Error != "" || rec.Archive == "" {
				continue
			}
			if err := bucket.Put([]byte(rec.Rel), []byte(rec.Archive)); err != nil {
				return err
			}
		}
		return sc.Err()
	})
}
