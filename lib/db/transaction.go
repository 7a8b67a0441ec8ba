package db

import (
	"encoding/binary"
	"fmt"
)

// OpType defines the possible operations inside a transaction.
type OpType uint8

const (
	OpPut   OpType = iota + 1 // Insert or replace an entry.
	OpErase                   // Remove an entry (no-op if absent).
)

func (t OpType) String() string {
	switch t {
	case OpPut:
		return "Put"
	case OpErase:
		return "Erase"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// Op is a single staged write.
type Op struct {
	Type      OpType
	Namespace string
	Key       string
	Value     []byte
}

// Transaction is an append-only, ordered batch of writes.
// It is built by the caller and handed to KVDB.Apply (or to the replication layer, which
// serializes it into a single log entry and applies it on every replica).
type Transaction struct {
	Ops []Op
}

// NewTransaction returns an empty transaction.
func NewTransaction() *Transaction {
	return &Transaction{}
}

// Put stages an insert or update. The value is copied.
func (t *Transaction) Put(namespace, key string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	t.Ops = append(t.Ops, Op{Type: OpPut, Namespace: namespace, Key: key, Value: v})
}

// Erase stages a removal.
func (t *Transaction) Erase(namespace, key string) {
	t.Ops = append(t.Ops, Op{Type: OpErase, Namespace: namespace, Key: key})
}

// Append moves all operations of other to the end of t.
func (t *Transaction) Append(other *Transaction) {
	if other == nil {
		return
	}
	t.Ops = append(t.Ops, other.Ops...)
}

// Empty reports whether nothing has been staged.
func (t *Transaction) Empty() bool {
	return len(t.Ops) == 0
}

// Len returns the number of staged operations.
func (t *Transaction) Len() int {
	return len(t.Ops)
}

// Validate checks that every operation is well-formed.
func (t *Transaction) Validate() error {
	for i, op := range t.Ops {
		if op.Namespace == "" {
			return fmt.Errorf("op %d (%s): %w", i, op.Type, ErrNamespaceRequired)
		}
		if op.Key == "" {
			return fmt.Errorf("op %d (%s): %w", i, op.Type, ErrKeyRequired)
		}
		if op.Type != OpPut && op.Type != OpErase {
			return fmt.Errorf("op %d: unknown op type %d", i, op.Type)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Serialization
// --------------------------------------------------------------------------

// SizeBytes returns the exact number of bytes needed to serialize this transaction
func (t *Transaction) SizeBytes() int {
	size := 4 // op count
	for _, op := range t.Ops {
		size += 1 + 4 + len(op.Namespace) + 4 + len(op.Key) + 4 + len(op.Value)
	}
	return size
}

// Serialize encodes the transaction with the format:
// 4 bytes op count (big endian), then for every op:
// 1 byte op type,
// 4 bytes namespace length + namespace,
// 4 bytes key length + key,
// 4 bytes value length + value
func (t *Transaction) Serialize() []byte {
	result := make([]byte, t.SizeBytes())
	binary.BigEndian.PutUint32(result[0:4], uint32(len(t.Ops)))
	pos := 4

	writeField := func(b []byte) {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(b)))
		pos += 4
		copy(result[pos:pos+len(b)], b)
		pos += len(b)
	}

	for _, op := range t.Ops {
		result[pos] = byte(op.Type)
		pos++
		writeField([]byte(op.Namespace))
		writeField([]byte(op.Key))
		writeField(op.Value)
	}
	return result
}

// Deserialize replaces the content of t with the transaction encoded in data.
func (t *Transaction) Deserialize(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("data too short for transaction")
	}
	count := binary.BigEndian.Uint32(data[0:4])
	pos := 4

	readField := func(name string) ([]byte, error) {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("data too short for %s length", name)
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+n > len(data) {
			return nil, fmt.Errorf("data too short for %s of length %d", name, n)
		}
		b := data[pos : pos+n]
		pos += n
		return b, nil
	}

	// every op needs at least 13 bytes, bounds the allocation for corrupt input
	capacity := int(count)
	if maxOps := (len(data) - 4) / 13; capacity > maxOps {
		capacity = maxOps
	}
	ops := make([]Op, 0, capacity)
	for i := uint32(0); i < count; i++ {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for op %d", i)
		}
		op := Op{Type: OpType(data[pos])}
		pos++

		ns, err := readField("namespace")
		if err != nil {
			return err
		}
		key, err := readField("key")
		if err != nil {
			return err
		}
		val, err := readField("value")
		if err != nil {
			return err
		}
		op.Namespace = string(ns)
		op.Key = string(key)
		if op.Type == OpPut {
			op.Value = make([]byte, len(val))
			copy(op.Value, val)
		}
		ops = append(ops, op)
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after transaction", len(data)-pos)
	}
	t.Ops = ops
	return nil
}
