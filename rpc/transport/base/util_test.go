package base

import (
	"bytes"
	"net"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		shardID uint64
		reqID   uint64
		data    []byte
		buf     []byte
	}{
		{"Empty", 1, 2, nil, nil},
		{"NoBuffer", 100, 1 << 40, []byte("payload"), nil},
		{"LargeBuffer", 7, 3, []byte("payload"), make([]byte, 1024)},
		{"SmallBuffer", 7, 4, bytes.Repeat([]byte("x"), 100), make([]byte, 24)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			errCh := make(chan error, 1)
			go func() { errCh <- writeFrame(client, tc.shardID, tc.reqID, tc.data) }()

			shardID, reqID, data, err := readFrame(server, tc.buf)
			if err != nil {
				t.Fatalf("readFrame failed: %v", err)
			}
			if err := <-errCh; err != nil {
				t.Fatalf("writeFrame failed: %v", err)
			}
			if shardID != tc.shardID || reqID != tc.reqID {
				t.Errorf("Expected shard %d request %d, got %d %d", tc.shardID, tc.reqID, shardID, reqID)
			}
			if !bytes.Equal(data, tc.data) {
				t.Errorf("Expected data %q, got %q", tc.data, data)
			}
		})
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte{0, 1, 2})
		_ = client.Close()
	}()

	if _, _, _, err := readFrame(server, nil); err == nil {
		t.Errorf("Expected error for truncated header")
	}
}
