package configkey

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/ValentinKolb/dCfg/lib/db"
)

// Namespace is the engine namespace holding all config-key entries.
const Namespace = "config_key"

// Store runs the config-key operations against one namespace of the engine.
//
// Reads go straight to the engine. Mutations are only staged into a transaction, they
// become visible once the quorum committed it.
type Store struct {
	engine    db.KVDB
	namespace string
}

// NewStore creates a store over the config-key namespace of engine.
func NewStore(engine db.KVDB) *Store {
	return &Store{engine: engine, namespace: Namespace}
}

// Engine returns the underlying engine.
func (s *Store) Engine() db.KVDB {
	return s.engine
}

// engineError maps an engine failure to a reply code
func engineError(op string, err error) *Error {
	if errors.Is(err, db.ErrNamespaceRequired) || errors.Is(err, db.ErrKeyRequired) {
		return NewError(RetCInvalid, fmt.Sprintf("%s: %v", op, err))
	}
	return NewError(RetCIO, fmt.Sprintf("%s: %v", op, err))
}

// --------------------------------------------------------------------------
// Point operations
// --------------------------------------------------------------------------

// Get returns the value stored under key. A missing key is reported as RetCNotFound,
// an engine failure as RetCIO.
func (s *Store) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, NewError(RetCInvalid, "key required")
	}
	value, ok, err := s.engine.Get(s.namespace, key)
	if err != nil {
		return nil, engineError("get", err)
	}
	if !ok {
		return nil, NewError(RetCNotFound, fmt.Sprintf("no such key '%s'", key))
	}
	return value, nil
}

// Put stages key=value into tx.
func (s *Store) Put(tx *db.Transaction, key string, value []byte) {
	tx.Put(s.namespace, key, value)
}

// Delete stages the removal of key into tx.
func (s *Store) Delete(tx *db.Transaction, key string) {
	tx.Erase(s.namespace, key)
}

// Exists reports whether key is stored. An engine failure is returned as RetCIO.
func (s *Store) Exists(key string) (bool, error) {
	ok, err := s.engine.Has(s.namespace, key)
	if err != nil {
		return false, engineError("exists", err)
	}
	return ok, nil
}

// --------------------------------------------------------------------------
// Scans
// --------------------------------------------------------------------------

// HasPrefix reports whether any key starts with prefix. It walks the namespace from its
// first key, the namespace is small enough that this never needs an index.
func (s *Store) HasPrefix(prefix string) bool {
	c, err := s.engine.NewCursor(s.namespace)
	if err != nil {
		log.Warningf("has prefix '%s': %v", prefix, err)
		return false
	}
	defer c.Close()

	for ; c.Valid(); c.Next() {
		if strings.HasPrefix(c.Key(), prefix) {
			return true
		}
	}
	if err := c.Err(); err != nil {
		log.Warningf("has prefix '%s': %v", prefix, err)
	}
	return false
}

// ListKeys returns all keys in order. The cursor is opened right away, so the keys
// reflect the store at the time of the call. The sequence can be ranged over once and
// must be ranged over to release the cursor.
func (s *Store) ListKeys() (iter.Seq[string], error) {
	c, err := s.engine.NewCursor(s.namespace)
	if err != nil {
		return nil, engineError("list", err)
	}

	used := false
	return func(yield func(string) bool) {
		if used {
			return
		}
		used = true
		defer c.Close()

		for ; c.Valid(); c.Next() {
			if !yield(c.Key()) {
				return
			}
		}
		if err := c.Err(); err != nil {
			log.Warningf("list keys: %v", err)
		}
	}, nil
}

// Dump returns key and rendered value of every entry whose key starts with prefix, in
// key order. The scan starts at the first key >= prefix and ends at the first key that
// does not match. Like ListKeys the sequence is single use.
func (s *Store) Dump(prefix string) (iter.Seq2[string, string], error) {
	c, err := s.engine.NewCursor(s.namespace)
	if err != nil {
		return nil, engineError("dump", err)
	}
	if prefix != "" {
		c.Seek(prefix)
	}

	used := false
	return func(yield func(string, string) bool) {
		if used {
			return
		}
		used = true
		defer c.Close()

		for ; c.Valid(); c.Next() {
			key := c.Key()
			if !strings.HasPrefix(key, prefix) {
				return
			}
			if !yield(key, RenderValue(c.Value())) {
				return
			}
		}
		if err := c.Err(); err != nil {
			log.Warningf("dump '%s': %v", prefix, err)
		}
	}, nil
}

// DeletePrefix stages the removal of every key starting with prefix into tx and returns
// how many keys it staged. Nothing is staged if the scan fails.
//
// Keys put under prefix by a transaction that commits while the scan runs may or may
// not be included.
func (s *Store) DeletePrefix(tx *db.Transaction, prefix string) (int, error) {
	c, err := s.engine.NewCursor(s.namespace)
	if err != nil {
		return 0, engineError("delete prefix", err)
	}
	defer c.Close()

	var keys []string
	for ; c.Valid(); c.Next() {
		if key := c.Key(); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if err := c.Err(); err != nil {
		return 0, engineError("delete prefix", err)
	}

	for _, key := range keys {
		s.Delete(tx, key)
	}
	return len(keys), nil
}

// --------------------------------------------------------------------------
// Value rendering
// --------------------------------------------------------------------------

// IsBinary reports whether v contains a byte that is neither printable ASCII nor \n or \t.
func IsBinary(v []byte) bool {
	for _, c := range v {
		if (c < 0x20 && c != '\n' && c != '\t') || c >= 0x7f {
			return true
		}
	}
	return false
}

// RenderValue returns v as a string, or a placeholder naming its length if v is binary.
func RenderValue(v []byte) string {
	if IsBinary(v) {
		return fmt.Sprintf("<<< binary blob of length %d >>>", len(v))
	}
	return string(v)
}
