package images

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const bucketImages = "images"

// manifestRecord is what the manifest remembers about one source
// image. It lets restarts skip probe decodes for unchanged sources.
type manifestRecord struct {
	ContentHash   string `msgpack:"content_hash"`
	NaturalWidth  int    `msgpack:"natural_width"`
	NaturalHeight int    `msgpack:"natural_height"`
	Sizes         []int  `msgpack:"sizes"`
	UpdatedAt     int64  `msgpack:"updated_at"`
}

// Manifest is the on-disk derivative manifest. It is an accelerator:
// deleting the file only costs re-probing every image on next start.
type Manifest struct {
	db *bolt.DB
}

// OpenManifest opens or creates the manifest database.
func OpenManifest(dir string) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, "images.db"), 0644, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open image manifest: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketImages))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init image manifest: %w", err)
	}
	return &Manifest{db: db}, nil
}

func (m *Manifest) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *Manifest) get(resolvedPath string) (*manifestRecord, error) {
	var rec *manifestRecord
	err := m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketImages)).Get([]byte(resolvedPath))
		if data == nil {
			return nil
		}
		rec = &manifestRecord{}
		return msgpack.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("manifest get %s: %w", resolvedPath, err)
	}
	return rec, nil
}

func (m *Manifest) put(resolvedPath string, rec *manifestRecord) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("manifest encode %s: %w", resolvedPath, err)
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketImages)).Put([]byte(resolvedPath), data)
	})
}

func (m *Manifest) delete(resolvedPath string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketImages)).Delete([]byte(resolvedPath))
	})
}
