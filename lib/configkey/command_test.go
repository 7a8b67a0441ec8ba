package configkey

import "testing"

func TestParseKind(t *testing.T) {
	testCases := []struct {
		prefix   string
		expected CommandKind
	}{
		{"get", CommandGet},
		{"config-key get", CommandGet},
		{"  config-key   put ", CommandPut},
		{"set", CommandPut},
		{"config-key rm", CommandDel},
		{"del", CommandDel},
		{"exists", CommandExists},
		{"ls", CommandList},
		{"config-key list", CommandList},
		{"dump", CommandDump},
		{"config-keyget", CommandUnknown},
		{"config-key", CommandUnknown},
		{"frobnicate", CommandUnknown},
		{"", CommandUnknown},
		{"GET", CommandUnknown},
	}
	for _, tc := range testCases {
		t.Run(tc.prefix, func(t *testing.T) {
			if got := ParseKind(tc.prefix); got != tc.expected {
				t.Errorf("ParseKind(%q) = %s, expected %s", tc.prefix, got, tc.expected)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		name     string
		prefix   string
		args     map[string]string
		data     []byte
		key      string
		expected string
	}{
		{"ValArgument", "put", map[string]string{"key": "k", "val": "v"}, nil, "k", "v"},
		{"DataPayload", "put", map[string]string{"key": "k"}, []byte("payload"), "k", "payload"},
		{"ValWins", "put", map[string]string{"key": "k", "val": "v"}, []byte("payload"), "k", "v"},
		{"EmptyVal", "put", map[string]string{"key": "k", "val": ""}, []byte("payload"), "k", ""},
		{"GetIgnoresValue", "get", map[string]string{"key": "k", "val": "v"}, []byte("payload"), "k", ""},
		{"NoArgs", "ls", nil, nil, "", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := ParseCommand(tc.prefix, tc.args, tc.data)
			if cmd.Key != tc.key || string(cmd.Value) != tc.expected {
				t.Errorf("Expected key %q value %q, got %q %q", tc.key, tc.expected, cmd.Key, cmd.Value)
			}
			if cmd.Prefix != tc.prefix {
				t.Errorf("Prefix should be kept as received")
			}
		})
	}
}

func TestCommandKindIsWrite(t *testing.T) {
	for _, k := range []CommandKind{CommandGet, CommandExists, CommandList, CommandDump, CommandUnknown} {
		if k.IsWrite() {
			t.Errorf("%s should not be a write", k)
		}
	}
	for _, k := range []CommandKind{CommandPut, CommandDel} {
		if !k.IsWrite() {
			t.Errorf("%s should be a write", k)
		}
	}
}
