package util

import "testing"

func TestHashString(t *testing.T) {
	tests := []struct {
		in   string
		seed uint64
		want UintKey
	}{
		{"", 0, 0xcbf29ce484222325},
		{"a", 0, 0xaf63dc4c8601ec8c},
		{"foobar", 0, 0x85944171f73967e8},
	}
	for _, tt := range tests {
		if got := HashString(tt.in, tt.seed); got != tt.want {
			t.Errorf("HashString(%q, %d) = %#x, want %#x", tt.in, tt.seed, got, tt.want)
		}
	}

	if HashString("node-1", 0) == HashString("node-1", 1) {
		t.Errorf("seed is not mixed into the hash")
	}
}
