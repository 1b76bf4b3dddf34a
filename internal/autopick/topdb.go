package autopick

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/layer"
)

// TopKDefault / TopDBMaxDefault are how many diverse plans
// ChoosePlanForBucket returns, and how many scored entries per bucket
// type the db retains.
const (
	TopKDefault     = 2
	TopDBMaxDefault = 12
)

type planJSON struct {
	Layer        string            `json:"layer"`
	Codec        string            `json:"codec"`
	StreamCodecs map[string]string `json:"stream_codecs,omitempty"`
	Note         string            `json:"note,omitempty"`
}

func (p Plan) toJSON() planJSON {
	var sc map[string]string
	if len(p.StreamCodecs) > 0 {
		sc = make(map[string]string, len(p.StreamCodecs))
		for name, id := range p.StreamCodecs {
			sc[name] = id.Name()
		}
	}
	return planJSON{Layer: p.LayerID.Name(), Codec: p.CodecText.Name(), StreamCodecs: sc, Note: p.Note}
}

func planFromJSON(j planJSON) (Plan, error) {
	layerID, err := layer.ByName(j.Layer)
	if err != nil {
		return Plan{}, err
	}
	codecID, err := codec.ByName(j.Codec)
	if err != nil {
		return Plan{}, err
	}
	var sc map[string]codec.ID
	if len(j.StreamCodecs) > 0 {
		sc = make(map[string]codec.ID, len(j.StreamCodecs))
		for name, cname := range j.StreamCodecs {
			cid, err := codec.ByName(cname)
			if err != nil {
				return Plan{}, err
			}
			sc[name] = cid
		}
	}
	return Plan{LayerID: layerID, CodecText: codecID, StreamCodecs: sc, Note: j.Note}, nil
}

type topEntry struct {
	Key   string   `json:"key"`
	Plan  planJSON `json:"plan"`
	Score float64  `json:"score"`
	Seen  int      `json:"seen"`
}

// TopDB is the persisted best-known-plans database, one scored entry
// list per bucket type, best (lowest) score first.
type TopDB struct {
	entries map[BucketType][]topEntry
}

// NewTopDB returns an empty database.
func NewTopDB() *TopDB {
	return &TopDB{entries: make(map[BucketType][]topEntry)}
}

// LoadTopDB reads a TOP-K db from disk; a missing or unparseable file
// yields an empty db rather than an error, matching a first-run db.
func LoadTopDB(path string) *TopDB {
	db := NewTopDB()
	raw, err := os.ReadFile(path)
	if err != nil {
		return db
	}
	var onDisk map[string][]topEntry
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return db
	}
	for bt, entries := range onDisk {
		db.entries[BucketType(bt)] = entries
	}
	return db
}

// SaveTopDB writes the db as deterministic, sorted-key JSON via a
// temp-file-then-rename so a crash mid-write never corrupts the
// existing file.
func SaveTopDB(path string, db *TopDB) error {
	onDisk := make(map[string][]topEntry, len(db.entries))
	for bt, entries := range db.entries {
		onDisk[string(bt)] = entries
	}
	raw, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".topdb-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// TopCandidates returns up to topK diverse plans for bucketType: the
// db's best-scored entries (deduplicated, diversity-picked) when any
// exist, else the fixed bootstrap set.
func TopCandidates(db *TopDB, bucketType BucketType, haveZstd bool, topK, topDBMax int) []Plan {
	var plans []Plan
	if db != nil {
		entries := db.entries[bucketType]
		if len(entries) > topDBMax {
			entries = entries[:topDBMax]
		}
		for _, e := range entries {
			p, err := planFromJSON(e.Plan)
			if err != nil {
				continue
			}
			plans = append(plans, p)
		}
	}

	seen := make(map[string]bool, len(plans))
	uniq := make([]Plan, 0, len(plans))
	for _, p := range plans {
		sig := PlanSig(p)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		uniq = append(uniq, p)
	}

	if len(uniq) > 0 {
		return PickTopDiverse(uniq, topK)
	}

	bs := BootstrapPlans(bucketType, haveZstd)
	if topK < len(bs) {
		bs = bs[:topK]
	}
	return bs
}

// UpdateTopDB records ratio as the observed score for plan under
// bucketType, keeping the best (lowest) score seen for that exact plan,
// then re-sorts ascending and trims to topDBMax entries.
func UpdateTopDB(db *TopDB, bucketType BucketType, plan Plan, score float64, topDBMax int) {
	if db == nil {
		return
	}
	pj := plan.toJSON()
	key, err := json.Marshal(pj)
	if err != nil {
		return
	}
	keyStr := string(key)

	lst := db.entries[bucketType]
	var found *topEntry
	for i := range lst {
		if lst[i].Key == keyStr {
			found = &lst[i]
			break
		}
	}
	if found == nil {
		lst = append(lst, topEntry{Key: keyStr, Plan: pj, Score: score, Seen: 1})
	} else {
		found.Seen++
		if score < found.Score {
			found.Score = score
		}
	}

	sort.SliceStable(lst, func(i, j int) bool { return lst[i].Score < lst[j].Score })
	if len(lst) > topDBMax {
		lst = lst[:topDBMax]
	}
	db.entries[bucketType] = lst
}
