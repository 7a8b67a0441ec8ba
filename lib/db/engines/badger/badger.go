package badger

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/db/util"
	"github.com/dgraph-io/badger/v3"
	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Key Encoding
// --------------------------------------------------------------------------

// separator between namespace and key, it sorts below every printable byte so that
// all keys of one namespace are contiguous and namespaces keep their own order
const separator = "\x00"

func nsPrefix(namespace string) []byte {
	return []byte(namespace + separator)
}

func encodeKey(namespace, key string) []byte {
	return []byte(namespace + separator + key)
}

func decodeKey(raw []byte) (namespace, key string, ok bool) {
	s := string(raw)
	i := strings.Index(s, separator)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

type badgerImpl struct {
	db       *badger.DB
	dir      string
	inMemory bool
	closed   atomic.Bool
}

// DBOptions configures the badger engine
type DBOptions struct {
	Dir        string // Data directory ("" = in-memory)
	SyncWrites bool   // fsync every commit
}

// NewBadgerDB opens a badger database. Badger's own log output goes through the
// "badger" dragonboat logger.
func NewBadgerDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = &DBOptions{}
	}

	var dbOpts badger.Options
	if opts.Dir == "" {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbOpts = badger.DefaultOptions(opts.Dir).WithSyncWrites(opts.SyncWrites)
	}
	dbOpts = dbOpts.WithLogger(logger.GetLogger("badger"))

	handle, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	return &badgerImpl{db: handle, dir: opts.Dir, inMemory: opts.Dir == ""}, nil
}

func (b *badgerImpl) ensureOpen() error {
	if b.closed.Load() {
		return db.ErrClosed
	}
	return nil
}

func validate(tx *db.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	for i, op := range tx.Ops {
		if strings.Contains(op.Namespace, separator) {
			return fmt.Errorf("op %d: namespace %q contains a NUL byte", i, op.Namespace)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Write Operations
// --------------------------------------------------------------------------

// Apply commits the transaction as one badger read-write transaction.
func (b *badgerImpl) Apply(tx *db.Transaction) error {
	if err := validate(tx); err != nil {
		return err
	}
	if err := b.ensureOpen(); err != nil {
		return err
	}
	if tx.Empty() {
		return nil
	}

	return b.db.Update(func(txn *badger.Txn) error {
		for _, op := range tx.Ops {
			var err error
			switch op.Type {
			case db.OpPut:
				err = txn.Set(encodeKey(op.Namespace, op.Key), op.Value)
			case db.OpErase:
				err = txn.Delete(encodeKey(op.Namespace, op.Key))
			}
			if err != nil {
				return fmt.Errorf("badger: %s %q: %w", op.Type, op.Key, err)
			}
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Query Operations
// --------------------------------------------------------------------------

func (b *badgerImpl) Get(namespace, key string) ([]byte, bool, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, false, err
	}

	var (
		value  []byte
		exists bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(namespace, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if value == nil {
			value = []byte{}
		}
		exists = true
		return nil
	})
	return value, exists, err
}

func (b *badgerImpl) Has(namespace, key string) (bool, error) {
	if err := b.ensureOpen(); err != nil {
		return false, err
	}

	var exists bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(encodeKey(namespace, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		exists = err == nil
		return err
	})
	return exists, err
}

// NewCursor opens a read-only badger transaction, which pins the snapshot for the
// lifetime of the cursor.
func (b *badgerImpl) NewCursor(namespace string) (db.Cursor, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	prefix := nsPrefix(namespace)
	txn := b.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	c := &cursor{txn: txn, it: txn.NewIterator(opts), prefix: prefix}
	c.SeekToFirst()
	return c, nil
}

func (b *badgerImpl) Namespaces() ([]string, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	var namespaces []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); {
			ns, _, ok := decodeKey(it.Item().Key())
			if !ok {
				return fmt.Errorf("badger: malformed key %q", it.Item().Key())
			}
			namespaces = append(namespaces, ns)
			// first key after every key of ns
			it.Seek([]byte(ns + "\x01"))
		}
		return nil
	})
	return namespaces, err
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Persistence
// --------------------------------------------------------------------------

func (b *badgerImpl) scan(txn *badger.Txn, fn db.EntryFunc) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		ns, key, ok := decodeKey(item.Key())
		if !ok {
			return fmt.Errorf("badger: malformed key %q", item.Key())
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(ns, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Save streams a single read transaction in the shared snapshot format. Badger's
// native backup format is not used so snapshots stay portable between engines.
func (b *badgerImpl) Save(w io.Writer) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.db.View(func(txn *badger.Txn) error {
		return db.WriteSnapshot(w, func(fn db.EntryFunc) error {
			return b.scan(txn, fn)
		})
	})
}

// Load decodes the whole snapshot first, then drops all data and writes the entries
// with a write batch. A malformed snapshot leaves the current state untouched.
func (b *badgerImpl) Load(r io.Reader) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}

	tx := db.NewTransaction()
	err := db.ReadSnapshot(r, func(ns, key string, value []byte) error {
		tx.Ops = append(tx.Ops, db.Op{Type: db.OpPut, Namespace: ns, Key: key, Value: value})
		return nil
	})
	if err != nil {
		return err
	}
	if err := validate(tx); err != nil {
		return fmt.Errorf("%w: %v", db.ErrBadSnapshot, err)
	}

	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("badger: drop all: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, op := range tx.Ops {
		if err := wb.Set(encodeKey(op.Namespace, op.Key), op.Value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

func (b *badgerImpl) features() db.Feature {
	f := db.FeatureGet |
		db.FeatureHas |
		db.FeatureCursor |
		db.FeatureApply |
		db.FeatureSave |
		db.FeatureLoad
	if !b.inMemory {
		f |= db.FeaturePersistent
	}
	return f
}

func (b *badgerImpl) GetInfo() db.DatabaseInfo {
	collector := util.NewStatsCollector()
	var lsmSize, vlogSize int64

	if b.ensureOpen() == nil {
		lsmSize, vlogSize = b.db.Size()
		_ = b.db.View(func(txn *badger.Txn) error {
			return b.scan(txn, func(ns, key string, value []byte) error {
				collector.Add(ns, len(key), len(value))
				return nil
			})
		})
	}

	stats := collector.Result()

	meta := &struct {
		Dir          string          `json:"dir"`
		InMemory     bool            `json:"in_memory"`
		LSMSize      int64           `json:"lsm_size"`
		ValueLogSize int64           `json:"value_log_size"`
		Stats        util.EntryStats `json:"stats"`
	}{
		Dir:          b.dir,
		InMemory:     b.inMemory,
		LSMSize:      lsmSize,
		ValueLogSize: vlogSize,
		Stats:        stats,
	}

	size := int(lsmSize + vlogSize)
	if b.inMemory {
		size = stats.SizeBytes()
	}

	supported := []db.Feature{
		db.FeatureGet, db.FeatureHas,
		db.FeatureCursor, db.FeatureApply,
		db.FeatureSave, db.FeatureLoad,
	}
	if !b.inMemory {
		supported = append(supported, db.FeaturePersistent)
	}

	return db.DatabaseInfo{
		SizeBytes:         size,
		DbType:            db.ImplBadger,
		SupportedFeatures: supported,
		Metadata:          meta,
	}
}

func (b *badgerImpl) SupportsFeature(feature db.Feature) bool {
	return b.features()&feature == feature
}

func (b *badgerImpl) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.db.Close()
}

// --------------------------------------------------------------------------
// Cursor
// --------------------------------------------------------------------------

type cursor struct {
	txn    *badger.Txn
	it     *badger.Iterator
	prefix []byte
	err    error
}

func (c *cursor) SeekToFirst() {
	if c.it == nil {
		return
	}
	c.it.Seek(c.prefix)
}

func (c *cursor) Seek(key string) {
	if c.it == nil {
		return
	}
	c.it.Seek(append(append([]byte{}, c.prefix...), key...))
}

func (c *cursor) Valid() bool {
	return c.it != nil && c.err == nil && c.it.ValidForPrefix(c.prefix)
}

func (c *cursor) Key() string {
	return string(c.it.Item().Key()[len(c.prefix):])
}

func (c *cursor) Value() []byte {
	value, err := c.it.Item().ValueCopy(nil)
	if err != nil {
		c.err = err
		return nil
	}
	if value == nil {
		value = []byte{}
	}
	return value
}

func (c *cursor) Next() {
	if !c.Valid() {
		return
	}
	c.it.Next()
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close() error {
	if c.it == nil {
		return nil
	}
	c.it.Close()
	c.txn.Discard()
	c.it, c.txn = nil, nil
	return nil
}
