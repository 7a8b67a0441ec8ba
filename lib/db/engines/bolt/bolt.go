package bolt

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/db/util"
	bbolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	boltFileMode   os.FileMode = 0o600
	defaultTimeout             = 5 * time.Second // max wait for the file lock on open
)

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// boltImpl stores every namespace in its own top-level bucket
type boltImpl struct {
	db     *bbolt.DB
	path   string
	closed atomic.Bool
}

// DBOptions configures the bolt engine
type DBOptions struct {
	Path    string        // Database file (required)
	Timeout time.Duration // Wait for the file lock (0 = default)
	NoSync  bool          // Skip fsync after commits (tests only)
}

// NewBoltDB opens (or creates) the database file at opts.Path.
func NewBoltDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil || opts.Path == "" {
		return nil, fmt.Errorf("bolt: path is required")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	handle, err := bbolt.Open(opts.Path, boltFileMode, &bbolt.Options{
		Timeout:    timeout,
		NoGrowSync: true,
		NoSync:     opts.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: opening %s: %w", opts.Path, err)
	}

	return &boltImpl{db: handle, path: opts.Path}, nil
}

func (b *boltImpl) ensureOpen() error {
	if b.closed.Load() {
		return db.ErrClosed
	}
	return nil
}

// lookup returns the value stored under key. It seeks instead of using Bucket.Get
// so that empty values and missing keys stay distinguishable.
func lookup(tx *bbolt.Tx, namespace, key string) ([]byte, bool) {
	bucket := tx.Bucket([]byte(namespace))
	if bucket == nil {
		return nil, false
	}
	k, v := bucket.Cursor().Seek([]byte(key))
	if k == nil || !bytes.Equal(k, []byte(key)) {
		return nil, false
	}
	return v, true
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Write Operations
// --------------------------------------------------------------------------

// Apply runs the whole transaction inside one bbolt read-write transaction.
// Buckets that become empty are dropped, so Namespaces only reports live namespaces.
func (b *boltImpl) Apply(tx *db.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if err := b.ensureOpen(); err != nil {
		return err
	}
	if tx.Empty() {
		return nil
	}

	return b.db.Update(func(btx *bbolt.Tx) error {
		touched := make(map[string]struct{})

		for _, op := range tx.Ops {
			switch op.Type {
			case db.OpPut:
				bucket, err := btx.CreateBucketIfNotExists([]byte(op.Namespace))
				if err != nil {
					return fmt.Errorf("bolt: bucket %q: %w", op.Namespace, err)
				}
				value := op.Value
				if value == nil {
					value = []byte{}
				}
				if err := bucket.Put([]byte(op.Key), value); err != nil {
					return fmt.Errorf("bolt: put %q: %w", op.Key, err)
				}
			case db.OpErase:
				bucket := btx.Bucket([]byte(op.Namespace))
				if bucket == nil {
					continue
				}
				if err := bucket.Delete([]byte(op.Key)); err != nil {
					return fmt.Errorf("bolt: delete %q: %w", op.Key, err)
				}
				touched[op.Namespace] = struct{}{}
			}
		}

		for ns := range touched {
			bucket := btx.Bucket([]byte(ns))
			if bucket == nil {
				continue
			}
			if k, _ := bucket.Cursor().First(); k == nil {
				if err := btx.DeleteBucket([]byte(ns)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Query Operations
// --------------------------------------------------------------------------

func (b *boltImpl) Get(namespace, key string) ([]byte, bool, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, false, err
	}

	var (
		value  []byte
		exists bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw, ok := lookup(tx, namespace, key)
		if ok {
			// raw points into the mmap and is only valid inside the transaction
			value = make([]byte, len(raw))
			copy(value, raw)
			exists = true
		}
		return nil
	})
	return value, exists, err
}

func (b *boltImpl) Has(namespace, key string) (bool, error) {
	if err := b.ensureOpen(); err != nil {
		return false, err
	}

	var exists bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		_, exists = lookup(tx, namespace, key)
		return nil
	})
	return exists, err
}

// NewCursor opens a read-only bbolt transaction that lives until the cursor is closed.
func (b *boltImpl) NewCursor(namespace string) (db.Cursor, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	tx, err := b.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("bolt: begin read transaction: %w", err)
	}

	c := &cursor{tx: tx}
	if bucket := tx.Bucket([]byte(namespace)); bucket != nil {
		c.c = bucket.Cursor()
	}
	c.SeekToFirst()
	return c, nil
}

func (b *boltImpl) Namespaces() ([]string, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	var namespaces []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, bucket *bbolt.Bucket) error {
			if k, _ := bucket.Cursor().First(); k != nil {
				namespaces = append(namespaces, string(name))
			}
			return nil
		})
	})
	return namespaces, err
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Persistence
// --------------------------------------------------------------------------

// Save streams one read-only transaction, so the snapshot is consistent.
func (b *boltImpl) Save(w io.Writer) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.db.View(func(tx *bbolt.Tx) error {
		return db.WriteSnapshot(w, func(fn db.EntryFunc) error {
			return tx.ForEach(func(name []byte, bucket *bbolt.Bucket) error {
				return bucket.ForEach(func(k, v []byte) error {
					return fn(string(name), string(k), v)
				})
			})
		})
	})
}

// Load drops all buckets and restores the snapshot inside a single read-write
// transaction. A malformed snapshot rolls back and leaves the old state untouched.
func (b *boltImpl) Load(r io.Reader) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		var existing [][]byte
		if err := tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			existing = append(existing, append([]byte{}, name...))
			return nil
		}); err != nil {
			return err
		}
		for _, name := range existing {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}

		return db.ReadSnapshot(r, func(ns, key string, value []byte) error {
			bucket, err := tx.CreateBucketIfNotExists([]byte(ns))
			if err != nil {
				return err
			}
			return bucket.Put([]byte(key), value)
		})
	})
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

const supportedFeatures = db.FeatureGet |
	db.FeatureHas |
	db.FeatureCursor |
	db.FeatureApply |
	db.FeatureSave |
	db.FeatureLoad |
	db.FeaturePersistent

func (b *boltImpl) GetInfo() db.DatabaseInfo {
	collector := util.NewStatsCollector()
	var fileSize int64

	if b.ensureOpen() == nil {
		_ = b.db.View(func(tx *bbolt.Tx) error {
			fileSize = tx.Size()
			return tx.ForEach(func(name []byte, bucket *bbolt.Bucket) error {
				return bucket.ForEach(func(k, v []byte) error {
					collector.Add(string(name), len(k), len(v))
					return nil
				})
			})
		})
	}

	stats := collector.Result()

	meta := &struct {
		Path     string          `json:"path"`
		FileSize int64           `json:"file_size"`
		Stats    util.EntryStats `json:"stats"`
	}{
		Path:     b.path,
		FileSize: fileSize,
		Stats:    stats,
	}

	return db.DatabaseInfo{
		SizeBytes: int(fileSize),
		DbType:    db.ImplBolt,
		SupportedFeatures: []db.Feature{
			db.FeatureGet, db.FeatureHas,
			db.FeatureCursor, db.FeatureApply,
			db.FeatureSave, db.FeatureLoad,
			db.FeaturePersistent,
		},
		Metadata: meta,
	}
}

func (b *boltImpl) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

// Close closes the bbolt file. It blocks until all cursors are closed.
func (b *boltImpl) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.db.Close()
}

// --------------------------------------------------------------------------
// Cursor
// --------------------------------------------------------------------------

type cursor struct {
	tx    *bbolt.Tx
	c     *bbolt.Cursor // nil if the namespace does not exist
	key   []byte
	value []byte
}

func (c *cursor) set(k, v []byte) {
	c.key, c.value = k, v
}

func (c *cursor) SeekToFirst() {
	if c.c == nil {
		c.set(nil, nil)
		return
	}
	c.set(c.c.First())
}

func (c *cursor) Seek(key string) {
	if c.c == nil {
		c.set(nil, nil)
		return
	}
	c.set(c.c.Seek([]byte(key)))
}

func (c *cursor) Valid() bool {
	return c.key != nil
}

func (c *cursor) Key() string {
	return string(c.key)
}

func (c *cursor) Value() []byte {
	value := make([]byte, len(c.value))
	copy(value, c.value)
	return value
}

func (c *cursor) Next() {
	if c.c == nil || c.key == nil {
		return
	}
	c.set(c.c.Next())
}

func (c *cursor) Err() error {
	return nil
}

func (c *cursor) Close() error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx, c.c = nil, nil
	c.set(nil, nil)
	return err
}
