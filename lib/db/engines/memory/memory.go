package memory

import (
	"io"
	"sync"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/db/util"
	"github.com/google/btree"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const defaultDegree = 32 // btree node degree

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// entry is a single key-value pair, ordered by (namespace, key)
type entry struct {
	ns    string
	key   string
	value []byte
}

func lessEntry(a, b entry) bool {
	if a.ns != b.ns {
		return a.ns < b.ns
	}
	return a.key < b.key
}

// memoryImpl is an in-memory KVDB based on a copy-on-write btree
type memoryImpl struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[entry]
	degree int
	closed bool
}

// DBOptions configures the memory engine
type DBOptions struct {
	Degree int // btree degree (0 = default)
}

// DefaultOptions returns the default memory engine options
func DefaultOptions() *DBOptions {
	return &DBOptions{Degree: defaultDegree}
}

// NewMemoryDB creates a new in-memory engine with the specified options (optional)
func NewMemoryDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	degree := opts.Degree
	if degree < 2 {
		degree = defaultDegree
	}
	return &memoryImpl{
		tree:   btree.NewG[entry](degree, lessEntry),
		degree: degree,
	}
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Write Operations
// --------------------------------------------------------------------------

// Apply executes all operations of the transaction under the write lock.
// The transaction is validated up front, so a rejected transaction leaves no trace.
func (m *memoryImpl) Apply(tx *db.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return db.ErrClosed
	}

	for _, op := range tx.Ops {
		switch op.Type {
		case db.OpPut:
			value := make([]byte, len(op.Value))
			copy(value, op.Value)
			m.tree.ReplaceOrInsert(entry{ns: op.Namespace, key: op.Key, value: value})
		case db.OpErase:
			m.tree.Delete(entry{ns: op.Namespace, key: op.Key})
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Query Operations
// --------------------------------------------------------------------------

func (m *memoryImpl) Get(namespace, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, db.ErrClosed
	}

	e, ok := m.tree.Get(entry{ns: namespace, key: key})
	if !ok {
		return nil, false, nil
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, true, nil
}

func (m *memoryImpl) Has(namespace, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, db.ErrClosed
	}
	return m.tree.Has(entry{ns: namespace, key: key}), nil
}

// NewCursor clones the tree (O(1), copy-on-write) and iterates the clone.
// Clone mutates the copy-on-write context of the source, so it needs the write lock.
func (m *memoryImpl) NewCursor(namespace string) (db.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, db.ErrClosed
	}

	c := &cursor{tree: m.tree.Clone(), ns: namespace}
	c.SeekToFirst()
	return c, nil
}

func (m *memoryImpl) Namespaces() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, db.ErrClosed
	}

	var namespaces []string
	pivot := entry{}
	for {
		var next entry
		found := false
		m.tree.AscendGreaterOrEqual(pivot, func(e entry) bool {
			next, found = e, true
			return false
		})
		if !found {
			return namespaces, nil
		}
		namespaces = append(namespaces, next.ns)
		// smallest possible entry of the following namespace
		pivot = entry{ns: next.ns + "\x00"}
	}
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Persistence
// --------------------------------------------------------------------------

// Save writes a clone of the tree, writers are only blocked while the clone is taken.
func (m *memoryImpl) Save(w io.Writer) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return db.ErrClosed
	}
	snapshot := m.tree.Clone()
	m.mu.Unlock()

	return db.WriteSnapshot(w, func(fn db.EntryFunc) error {
		var err error
		snapshot.Ascend(func(e entry) bool {
			err = fn(e.ns, e.key, e.value)
			return err == nil
		})
		return err
	})
}

// Load builds a fresh tree from the snapshot and swaps it in, the old state stays
// readable until the snapshot has been decoded completely.
func (m *memoryImpl) Load(r io.Reader) error {
	tree := btree.NewG[entry](m.degree, lessEntry)
	err := db.ReadSnapshot(r, func(ns, key string, value []byte) error {
		tree.ReplaceOrInsert(entry{ns: ns, key: key, value: value})
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return db.ErrClosed
	}
	m.tree = tree
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

const supportedFeatures = db.FeatureGet |
	db.FeatureHas |
	db.FeatureCursor |
	db.FeatureApply |
	db.FeatureSave |
	db.FeatureLoad

func (m *memoryImpl) GetInfo() db.DatabaseInfo {
	collector := util.NewStatsCollector()

	m.mu.RLock()
	m.tree.Ascend(func(e entry) bool {
		collector.Add(e.ns, len(e.key), len(e.value))
		return true
	})
	m.mu.RUnlock()

	stats := collector.Result()

	meta := &struct {
		Degree int             `json:"degree"`
		Stats  util.EntryStats `json:"stats"`
	}{
		Degree: m.degree,
		Stats:  stats,
	}

	return db.DatabaseInfo{
		SizeBytes: stats.SizeBytes(),
		DbType:    db.ImplMemory,
		SupportedFeatures: []db.Feature{
			db.FeatureGet, db.FeatureHas,
			db.FeatureCursor, db.FeatureApply,
			db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

func (m *memoryImpl) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

func (m *memoryImpl) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.tree.Clear(false)
	return nil
}

// --------------------------------------------------------------------------
// Cursor
// --------------------------------------------------------------------------

// cursor iterates a private clone of the tree, so it never blocks or observes writers
type cursor struct {
	tree    *btree.BTreeG[entry]
	ns      string
	current entry
	valid   bool
}

// seek positions the cursor at the first entry >= pivot within the namespace
func (c *cursor) seek(pivot entry, skipEqual bool) {
	c.valid = false
	if c.tree == nil {
		return
	}
	c.tree.AscendGreaterOrEqual(pivot, func(e entry) bool {
		if skipEqual && e.ns == pivot.ns && e.key == pivot.key {
			return true
		}
		if e.ns == c.ns {
			c.current, c.valid = e, true
		}
		return false
	})
}

func (c *cursor) SeekToFirst() {
	c.seek(entry{ns: c.ns}, false)
}

func (c *cursor) Seek(key string) {
	c.seek(entry{ns: c.ns, key: key}, false)
}

func (c *cursor) Valid() bool {
	return c.valid
}

func (c *cursor) Key() string {
	return c.current.key
}

func (c *cursor) Value() []byte {
	value := make([]byte, len(c.current.value))
	copy(value, c.current.value)
	return value
}

func (c *cursor) Next() {
	if !c.valid {
		return
	}
	c.seek(c.current, true)
}

func (c *cursor) Err() error {
	return nil
}

func (c *cursor) Close() error {
	c.tree = nil
	c.valid = false
	return nil
}
