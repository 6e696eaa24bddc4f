/*
	Package persist reads and writes the pipeline's named slots to a
	versioned project container backed by an embedded BadgerDB.  Each slot
	is an independently (de)serializable unit with a stable name: label
	class metadata under "classes", per-lane bookmarks under
	"laneNNN/bookmarks", and each label block under
	"laneNNN/LabelSets/labelsNNN".  The container carries a semver format
	version; files written by a different major version are rejected.
*/
package persist

import (
	"bytes"
	"fmt"
	"os"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"
	"github.com/dustin/go-humanize"

	"github.com/yutiansut/ilastik/pipeline"
	"github.com/yutiansut/ilastik/pixel"
)

// FormatVersion is the project container format written by this package.
var FormatVersion = semver.MustParse("1.0.0")

const (
	formatKey  = "format"
	idKey      = "id"
	classesKey = "classes"
)

func lanePrefix(lane int) string {
	return fmt.Sprintf("lane%03d/", lane)
}

func bookmarksKey(lane int) string {
	return lanePrefix(lane) + "bookmarks"
}

func labelBlockKey(lane, n int) string {
	return fmt.Sprintf("%sLabelSets/labels%03d", lanePrefix(lane), n)
}

// classRecord is the gob payload of the "classes" slot.
type classRecord struct {
	LabelNames  []string
	LabelColors []pipeline.Color
	PmapColors  []pipeline.Color
}

// laneRecord is the gob payload of a lane's bookmark slot.
type laneRecord struct {
	Bookmarks []pipeline.Bookmark
}

// blockRecord is the gob payload of one label block slot.
type blockRecord struct {
	Chunk []int32
	Data  []uint8
}

// ProjectFile is an open project container.
type ProjectFile struct {
	db   *badger.DB
	path string
}

// Open opens or creates a project container at path.
func Open(path string) (*ProjectFile, error) {
	created := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		created = true
		if err := os.MkdirAll(path, 0744); err != nil {
			return nil, fmt.Errorf("can't make project directory at %s: %v", path, err)
		}
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.NumVersionsToKeep = 1
	opts.SyncWrites = false
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	pf := &ProjectFile{db: db, path: path}
	if err := pf.checkFormat(created); err != nil {
		db.Close()
		return nil, err
	}
	pixel.Infof("opened project container at %s (format %s)\n", path, FormatVersion)
	return pf, nil
}

func (pf *ProjectFile) checkFormat(created bool) error {
	return pf.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(formatKey))
		if err == badger.ErrKeyNotFound {
			if !created {
				pixel.Warningf("project at %s has no format key, stamping %s\n", pf.path, FormatVersion)
			}
			return txn.Set([]byte(formatKey), []byte(FormatVersion.String()))
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		stored, err := semver.Parse(string(val))
		if err != nil {
			return fmt.Errorf("bad format version %q in project at %s: %v", string(val), pf.path, err)
		}
		if stored.Major != FormatVersion.Major {
			return fmt.Errorf("project format %s is incompatible with supported format %s", stored, FormatVersion)
		}
		return nil
	})
}

// Close closes the underlying container.
func (pf *ProjectFile) Close() error {
	return pf.db.Close()
}

// SaveProject writes the pipeline's persisted slots: pipeline id, label
// class metadata, and per-lane bookmarks and label blocks.  Raw images are
// dataset I/O and stay external.
func (pf *ProjectFile) SaveProject(p *pipeline.Pipeline) error {
	tlog := pixel.NewTimeLog()

	if err := pf.deletePrefix([]byte("lane")); err != nil {
		return err
	}
	if err := pf.put(idKey, []byte(p.ID())); err != nil {
		return err
	}
	classes := classRecord{
		LabelNames:  p.LabelNames(),
		LabelColors: p.LabelColors(),
		PmapColors:  p.PmapColors(),
	}
	if err := pf.putGob(classesKey, classes); err != nil {
		return err
	}

	var totalBytes uint64
	for i := 0; i < p.NumLanes(); i++ {
		lane, err := p.Lane(i)
		if err != nil {
			return err
		}
		if err := pf.putGob(bookmarksKey(i), laneRecord{Bookmarks: lane.Bookmarks()}); err != nil {
			return err
		}
		store := lane.Labels()
		if store == nil {
			continue
		}
		for n, chunk := range store.NonzeroBlocks() {
			data, _, err := store.ReadBlock(chunk)
			if err != nil {
				return err
			}
			rec := blockRecord{Chunk: []int32(chunk), Data: data}
			serialization, err := pixel.Serialize(rec, pixel.DefaultCompression, pixel.CRC32)
			if err != nil {
				return err
			}
			totalBytes += uint64(len(serialization))
			if err := pf.put(labelBlockKey(i, n), serialization); err != nil {
				return err
			}
		}
	}
	tlog.Infof("saved project %s (%d lanes, %s of label blocks)",
		p.ID(), p.NumLanes(), humanize.Bytes(totalBytes))
	return nil
}

// LoadProject restores label classes, bookmarks, and label blocks into a
// pipeline whose lanes and images have already been set up by the dataset
// I/O collaborator.
func (pf *ProjectFile) LoadProject(p *pipeline.Pipeline) error {
	var classes classRecord
	found, err := pf.getGob(classesKey, &classes)
	if err != nil {
		return err
	}
	if found {
		for i, name := range classes.LabelNames {
			var labelCol, pmapCol pipeline.Color
			if i < len(classes.LabelColors) {
				labelCol = classes.LabelColors[i]
			}
			if i < len(classes.PmapColors) {
				pmapCol = classes.PmapColors[i]
			}
			if err := p.SetLabelClass(i+1, name, labelCol, pmapCol); err != nil {
				return err
			}
		}
	}

	for i := 0; i < p.NumLanes(); i++ {
		lane, err := p.Lane(i)
		if err != nil {
			return err
		}
		var rec laneRecord
		if found, err := pf.getGob(bookmarksKey(i), &rec); err != nil {
			return err
		} else if found {
			if err := p.SetBookmarks(i, rec.Bookmarks); err != nil {
				return err
			}
		}
		store := lane.Labels()
		if store == nil {
			continue
		}
		prefix := []byte(lanePrefix(i) + "LabelSets/")
		err = pf.db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				val, err := it.Item().ValueCopy(nil)
				if err != nil {
					return err
				}
				var rec blockRecord
				if err := pixel.Deserialize(val, &rec); err != nil {
					return fmt.Errorf("corrupt label block %q: %v", string(it.Item().Key()), err)
				}
				if err := store.WriteBlock(pixel.ChunkPointNd(rec.Chunk), rec.Data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	pixel.Infof("loaded project from %s into pipeline %s\n", pf.path, p.ID())
	return nil
}

func (pf *ProjectFile) put(key string, val []byte) error {
	return pf.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

func (pf *ProjectFile) putGob(key string, obj interface{}) error {
	serialization, err := pixel.Serialize(obj, pixel.DefaultCompression, pixel.CRC32)
	if err != nil {
		return err
	}
	return pf.put(key, serialization)
}

func (pf *ProjectFile) getGob(key string, obj interface{}) (bool, error) {
	found := false
	err := pf.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		found = true
		return pixel.Deserialize(val, obj)
	})
	return found, err
}

func (pf *ProjectFile) deletePrefix(prefix []byte) error {
	var keys [][]byte
	err := pf.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := pf.db.Update(func(txn *badger.Txn) error {
			if bytes.HasPrefix(key, prefix) {
				return txn.Delete(key)
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
