package db

import (
	"bytes"
	"errors"
	"testing"
)

type record struct {
	ns, key string
	value   []byte
}

func scanOf(records []record) ScanFunc {
	return func(fn EntryFunc) error {
		for _, r := range records {
			if err := fn(r.ns, r.key, r.value); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	records := []record{
		{"config_key", "a", []byte("1")},
		{"config_key", "dm-crypt/x/luks", []byte{0x00, 0xff}},
		{"other", "empty", []byte{}},
	}

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, scanOf(records)); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	var got []record
	err := ReadSnapshot(&buf, func(ns, key string, value []byte) error {
		got = append(got, record{ns, key, value})
		return nil
	})
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}

	if len(got) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(got))
	}
	for i := range records {
		if got[i].ns != records[i].ns || got[i].key != records[i].key || !bytes.Equal(got[i].value, records[i].value) {
			t.Errorf("record %d: want %+v, got %+v", i, records[i], got[i])
		}
	}
}

func TestSnapshotEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, scanOf(nil)); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	calls := 0
	if err := ReadSnapshot(&buf, func(string, string, []byte) error { calls++; return nil }); err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no records, got %d", calls)
	}
}

func TestSnapshotMalformed(t *testing.T) {
	var valid bytes.Buffer
	_ = WriteSnapshot(&valid, scanOf([]record{{"ns", "k", []byte("v")}}))
	data := valid.Bytes()

	testCases := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"BadMagic", append([]byte("NOTASNAP"), data[8:]...)},
		{"BadVersion", append(append([]byte{}, data[:8]...), 0, 0, 0, 9, 0)},
		{"Truncated", data[:len(data)-3]},
		{"MissingEndMarker", data[:len(data)-1]},
		{"UnknownMarker", append(append([]byte{}, data[:12]...), 7)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ReadSnapshot(bytes.NewReader(tc.data), func(string, string, []byte) error { return nil })
			if !errors.Is(err, ErrBadSnapshot) {
				t.Errorf("expected ErrBadSnapshot, got %v", err)
			}
		})
	}
}

func TestSnapshotCallbackError(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteSnapshot(&buf, scanOf([]record{{"ns", "k", []byte("v")}}))

	stop := errors.New("stop")
	if err := ReadSnapshot(&buf, func(string, string, []byte) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("expected callback error to be returned, got %v", err)
	}

	if err := WriteSnapshot(&bytes.Buffer{}, func(EntryFunc) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("expected scan error to be returned, got %v", err)
	}
}
