package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dCfg/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: 1 byte MsgType, 2 bytes flags (big endian), then every present field in
// flag order. Strings and byte slices are prefixed by a 4 byte length.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasPrefix uint16 = 1 << 0
	hasKey    uint16 = 1 << 1
	hasValue  uint16 = 1 << 2
	hasUUID   uint16 = 1 << 3
	hasID     uint16 = 1 << 4
	hasCode   uint16 = 1 << 5
	hasStatus uint16 = 1 << 6
	hasErr    uint16 = 1 << 7
	hasHops   uint16 = 1 << 8
	hasPeer   uint16 = 1 << 9 // flag only, no payload
	hasMeta   uint16 = 1 << 10
)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	var flags uint16
	pos := headerSize

	if msg.Prefix != "" {
		flags |= hasPrefix
		pos = putString(result, pos, msg.Prefix)
	}
	if msg.Key != "" {
		flags |= hasKey
		pos = putString(result, pos, msg.Key)
	}
	if msg.Value != nil {
		flags |= hasValue
		pos = putBytes(result, pos, msg.Value)
	}
	if msg.UUID != "" {
		flags |= hasUUID
		pos = putString(result, pos, msg.UUID)
	}
	if msg.ID != 0 {
		flags |= hasID
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.ID))
		pos += 8
	}
	if msg.Code != 0 {
		flags |= hasCode
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(msg.Code))
		pos += 4
	}
	if msg.Status != "" {
		flags |= hasStatus
		pos = putString(result, pos, msg.Status)
	}
	if msg.Err != "" {
		flags |= hasErr
		pos = putString(result, pos, msg.Err)
	}
	if msg.Hops != 0 {
		flags |= hasHops
		result[pos] = msg.Hops
		pos++
	}
	if msg.Peer {
		flags |= hasPeer
	}
	if msg.Meta != nil {
		flags |= hasMeta
		putBytes(result, pos, msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])
	pos := headerSize
	var err error

	msg.Prefix = ""
	if flags&hasPrefix != 0 {
		if msg.Prefix, pos, err = readString(data, pos, "prefix"); err != nil {
			return err
		}
	}

	msg.Key = ""
	if flags&hasKey != 0 {
		if msg.Key, pos, err = readString(data, pos, "key"); err != nil {
			return err
		}
	}

	if flags&hasValue != 0 {
		if msg.Value, pos, err = readBytes(data, pos, msg.Value, "value"); err != nil {
			return err
		}
	} else {
		msg.Value = nil
	}

	msg.UUID = ""
	if flags&hasUUID != 0 {
		if msg.UUID, pos, err = readString(data, pos, "uuid"); err != nil {
			return err
		}
	}

	msg.ID = 0
	if flags&hasID != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for ID")
		}
		msg.ID = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	}

	msg.Code = 0
	if flags&hasCode != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for code")
		}
		msg.Code = int32(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
	}

	msg.Status = ""
	if flags&hasStatus != 0 {
		if msg.Status, pos, err = readString(data, pos, "status"); err != nil {
			return err
		}
	}

	msg.Err = ""
	if flags&hasErr != 0 {
		if msg.Err, pos, err = readString(data, pos, "error"); err != nil {
			return err
		}
	}

	msg.Hops = 0
	if flags&hasHops != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for hops")
		}
		msg.Hops = data[pos]
		pos++
	}

	msg.Peer = flags&hasPeer != 0

	if flags&hasMeta != 0 {
		if msg.Meta, _, err = readBytes(data, pos, msg.Meta, "meta"); err != nil {
			return err
		}
	} else {
		msg.Meta = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	// 4 bytes length prefix for strings and byte slices
	if msg.Prefix != "" {
		size += 4 + len(msg.Prefix)
	}
	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.UUID != "" {
		size += 4 + len(msg.UUID)
	}
	if msg.ID != 0 {
		size += 8
	}
	if msg.Code != 0 {
		size += 4
	}
	if msg.Status != "" {
		size += 4 + len(msg.Status)
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Hops != 0 {
		size++
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}

func putString(buf []byte, pos int, s string) int {
	binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(len(s)))
	pos += 4
	return pos + copy(buf[pos:], s)
}

func putBytes(buf []byte, pos int, b []byte) int {
	binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(len(b)))
	pos += 4
	return pos + copy(buf[pos:], b)
}

func readString(data []byte, pos int, field string) (string, int, error) {
	if pos+4 > len(data) {
		return "", pos, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n < 0 || pos+n > len(data) {
		return "", pos, fmt.Errorf("data too short for %s data", field)
	}
	return string(data[pos : pos+n]), pos + n, nil
}

// readBytes reuses dst when it is large enough, an empty field yields an empty (not nil) slice
func readBytes(data []byte, pos int, dst []byte, field string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return dst, pos, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n < 0 || pos+n > len(data) {
		return dst, pos, fmt.Errorf("data too short for %s data", field)
	}
	if dst == nil || cap(dst) < n {
		dst = make([]byte, n)
	} else {
		dst = dst[:n]
	}
	copy(dst, data[pos:pos+n])
	return dst, pos + n, nil
}
