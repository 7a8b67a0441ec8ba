package serializer

import (
	"fmt"

	"github.com/ValentinKolb/dCfg/rpc/common"
)

// IRPCSerializer converts messages to and from their wire representation.
// Deserialize overwrites every field of msg, so a message can be reused.
type IRPCSerializer interface {
	Serialize(msg common.Message) ([]byte, error)
	Deserialize(b []byte, msg *common.Message) error
}

// Names lists the serializers accepted by New
var Names = []string{"binary", "json", "gob"}

// New returns the serializer registered under name
func New(name string) (IRPCSerializer, error) {
	switch name {
	case "binary":
		return NewBinarySerializer(), nil
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s (expected one of %v)", name, Names)
	}
}
