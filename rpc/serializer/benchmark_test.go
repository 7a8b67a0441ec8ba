package serializer

import (
	"testing"

	"github.com/ValentinKolb/dCfg/rpc/common"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"SmallKeyOnly": *common.NewConfigKeyRequest("get", "k", nil),
		"MediumKeyOnly": *common.NewConfigKeyRequest("get", "mgr/dashboard/server_addr", nil),
		"LargeKeyOnly": *common.NewConfigKeyRequest("get",
			"dm-crypt/osd/5f7a1e52-9b1c-4c1e-8a55-2f1f8c6d2b11/luks/and-a-very-long-suffix-used-for-benchmarking", nil),
		"SmallValue":     *common.NewConfigKeyRequest("put", "key", []byte("v")),
		"MediumValue":    *common.NewConfigKeyRequest("put", "key", []byte("medium length value for testing serialization")),
		"LargeValue":     *common.NewConfigKeyRequest("put", "key", make([]byte, 1024)),    // 1KB of data
		"VeryLargeValue": *common.NewConfigKeyRequest("put", "key", make([]byte, 1024*16)), // 16KB of data
		"DeviceCreate":   *common.NewDeviceRequest("create", "5f7a1e52-9b1c-4c1e-8a55-2f1f8c6d2b11", 12, []byte("secret")),
		"Reply":          *common.NewReplyResponse(common.MsgTConfigKey, -2, "error obtaining 'key': no such key", nil),
		"CompleteMessage": {
			MsgType: common.MsgTDevice,
			Prefix:  "create",
			Key:     "complete-test-key",
			Value:   []byte("test-value-data"),
			UUID:    "5f7a1e52-9b1c-4c1e-8a55-2f1f8c6d2b11",
			ID:      20000,
			Code:    -17,
			Status:  "conflict",
			Err:     "This is a test error message",
			Hops:    1,
			Peer:    true,
			Meta:    []byte("test-meta-data-for-benchmarking"),
		},
		"ErrorMessage": {
			MsgType: common.MsgTError,
			Err:     "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					_, err := serializer.Serialize(msg)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()
	serializedData := make(map[string]map[string][]byte)

	// Pre-serialize all messages with all serializers
	for name, factory := range testSerializers {
		serializer := factory()
		serializedData[name] = make(map[string][]byte)

		for msgName, msg := range messages {
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}
			serializedData[name][msgName] = data
		}
	}

	// Benchmark deserialization
	for name, factory := range testSerializers {
		for msgName := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data := serializedData[name][msgName]
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var msg common.Message
					err := serializer.Deserialize(data, &msg)
					if err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize measures and reports the serialized size for each message type
func BenchmarkSize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		serializer := factory()

		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}

				// Report the size as a custom metric
				b.ReportMetric(float64(len(data)), "bytes")

				// Minimal loop to satisfy benchmark requirements
				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
