package db

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	snapshotMagic   = "DCFGSNAP"
	snapshotVersion = uint32(1)

	recordEntry = byte(1)
	recordEnd   = byte(0)
)

// ErrBadSnapshot is returned by ReadSnapshot if the stream is not a snapshot written by WriteSnapshot.
var ErrBadSnapshot = errors.New("db: malformed snapshot")

// EntryFunc receives one entry of a snapshot scan.
type EntryFunc func(namespace, key string, value []byte) error

// ScanFunc walks every entry of an engine in (namespace, key) order and calls fn for
// each of them. Engines implement it on top of one consistent read view, so the stream
// written by WriteSnapshot is a point-in-time image even while transactions are applied.
type ScanFunc func(fn EntryFunc) error

// WriteSnapshot writes every entry produced by scan to w.
//
// The stream layout is:
// 8 bytes magic "DCFGSNAP", 4 bytes version (big endian), then per entry
// 1 byte marker (1), 4 bytes namespace length + namespace, 4 bytes key length + key,
// 4 bytes value length + value, and finally a single 0 marker byte.
func WriteSnapshot(w io.Writer, scan ScanFunc) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, snapshotVersion); err != nil {
		return err
	}

	err := scan(func(ns, key string, value []byte) error {
		if err := bw.WriteByte(recordEntry); err != nil {
			return err
		}
		for _, field := range [][]byte{[]byte(ns), []byte(key), value} {
			if err := binary.Write(bw, binary.BigEndian, uint32(len(field))); err != nil {
				return err
			}
			if _, err := bw.Write(field); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("snapshot scan: %w", err)
	}

	if err := bw.WriteByte(recordEnd); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadSnapshot decodes a stream written by WriteSnapshot and calls fn for every entry in
// the order they were written.
func ReadSnapshot(r io.Reader, fn EntryFunc) error {
	br := bufio.NewReader(r)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if string(magic) != snapshotMagic {
		return fmt.Errorf("%w: bad magic %q", ErrBadSnapshot, magic)
	}

	var version uint32
	if err := binary.Read(br, binary.BigEndian, &version); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, version)
	}

	readField := func() ([]byte, error) {
		var n uint32
		if err := binary.Read(br, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(br, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	for {
		marker, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
		}
		switch marker {
		case recordEnd:
			return nil
		case recordEntry:
		default:
			return fmt.Errorf("%w: unknown record marker %d", ErrBadSnapshot, marker)
		}

		ns, err := readField()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
		}
		key, err := readField()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
		}
		value, err := readField()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
		}

		if err := fn(string(ns), string(key), value); err != nil {
			return err
		}
	}
}
