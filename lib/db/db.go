package db

import (
	"errors"
	"io"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMemory Implementation = "memory"
	ImplBolt   Implementation = "bolt"
	ImplBadger Implementation = "badger"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureGet        Feature = 1 << iota // Support for Get operations
	FeatureHas                            // Support for Has operations
	FeatureCursor                         // Support for ordered cursors
	FeatureApply                          // Support for atomic transaction batches
	FeatureSave                           // Support for Save operations
	FeatureLoad                           // Support for Load operations
	FeaturePersistent                     // Data survives a process restart
)

func (f Feature) String() string {
	switch f {
	case FeatureGet:
		return "Get"
	case FeatureHas:
		return "Has"
	case FeatureCursor:
		return "Cursor"
	case FeatureApply:
		return "Apply"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	case FeaturePersistent:
		return "Persistent"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

var (
	// ErrClosed is returned by every operation on a closed database.
	ErrClosed = errors.New("db: database is closed")
	// ErrNamespaceRequired is returned when an operation is issued without a namespace.
	ErrNamespaceRequired = errors.New("db: namespace required")
	// ErrKeyRequired is returned when a put or erase is issued with an empty key.
	ErrKeyRequired = errors.New("db: key required")
)

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines the interface of an ordered, namespaced key-value engine.
// Keys inside a namespace are ordered by plain byte-wise string comparison, so all keys
// sharing a literal prefix are contiguous. Writes are never issued one by one: they are
// collected in a Transaction and applied atomically with Apply.
//
// All implementations must be safe for concurrent use: the replication layer applies
// transactions on its own goroutine while readers iterate on theirs.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Apply executes all operations of the transaction in order.
	// Either every operation becomes visible or none does.
	Apply(tx *Transaction) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned slice is a copy and safe to modify.
	Get(namespace, key string) (value []byte, loaded bool, err error)

	// Has checks whether a key exists in the namespace.
	Has(namespace, key string) (loaded bool, err error)

	// NewCursor returns an ordered cursor over one namespace, positioned at its first key.
	// The cursor observes a consistent snapshot taken when it was created and must be closed.
	NewCursor(namespace string) (cursor Cursor, err error)

	// Namespaces returns the names of all namespaces holding at least one key, in order.
	Namespaces() (namespaces []string, err error)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load replaces the database state with the data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}

// Cursor is a forward-only iterator over the keys of one namespace.
//
//	c, err := database.NewCursor("ns")
//	if err != nil { ... }
//	defer c.Close()
//	for c.Seek("prefix"); c.Valid(); c.Next() {
//		use(c.Key(), c.Value())
//	}
type Cursor interface {
	// SeekToFirst positions the cursor at the first key of the namespace.
	SeekToFirst()
	// Seek positions the cursor at the first key that is >= key (lower bound).
	Seek(key string)
	// Valid reports whether the cursor points at an entry.
	Valid() bool
	// Key returns the key of the current entry.
	Key() string
	// Value returns a copy of the value of the current entry.
	Value() []byte
	// Next advances to the following key.
	Next()
	// Err returns the first error the cursor ran into (the cursor is invalid after an error).
	Err() error
	// Close releases the snapshot held by the cursor. It is safe to call more than once.
	Close() error
}

// Factory creates the engine for a node. It is called once per replica.
type Factory func() (KVDB, error)
