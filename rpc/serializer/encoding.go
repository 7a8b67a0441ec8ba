package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"

	"github.com/ValentinKolb/dCfg/rpc/common"
)

// NewJSONSerializer creates a serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializer{}
}

// NewGOBSerializer creates a serializer using Go's gob encoding
func NewGOBSerializer() IRPCSerializer {
	return gobSerializer{}
}

type jsonSerializer struct{}

func (jsonSerializer) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonSerializer) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return json.Unmarshal(b, msg)
}

// gob drops zero values, a decoded message only carries the fields that were set
type gobSerializer struct{}

func (gobSerializer) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobSerializer) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
}
