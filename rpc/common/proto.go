package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Command fields
	Prefix string `json:"prefix,omitempty"` // Used for: ConfigKey (command name), Device (operation name)
	Key    string `json:"key,omitempty"`    // Used for: ConfigKey
	Value  []byte `json:"value,omitempty"`  // Used for: ConfigKey put (request), Device create secret (request), reply data (response)

	// Device fields
	UUID string `json:"uuid,omitempty"` // Used for: Device
	ID   int64  `json:"id,omitempty"`   // Used for: Device

	// Response only fields
	Code   int32  `json:"code,omitempty"`   // Reply code, 0 or positive on success
	Status string `json:"status,omitempty"` // Human-readable reply status
	Err    string `json:"err,omitempty"`    // Empty if no error, otherwise contains the error message

	// Routing
	Hops uint8 `json:"hops,omitempty"` // Number of times the request was forwarded to a leader
	Peer bool  `json:"peer,omitempty"` // Set on requests issued by another node, these are never answered

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Status (response, engine info as json)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewConfigKeyRequest creates a new config-key request. value is only used by put.
func NewConfigKeyRequest(prefix, key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTConfigKey,
		Prefix:  prefix,
		Key:     key,
		Value:   value,
	}
}

// NewDeviceRequest creates a new device request. secret is only used by create.
func NewDeviceRequest(op, uuid string, id int64, secret []byte) *Message {
	return &Message{
		MsgType: MsgTDevice,
		Prefix:  op,
		UUID:    uuid,
		ID:      id,
		Value:   secret,
	}
}

// NewReplyResponse creates the response to a config-key or device request
func NewReplyResponse(msgType MessageType, code int32, status string, data []byte) *Message {
	return &Message{
		MsgType: msgType,
		Code:    code,
		Status:  status,
		Value:   data,
	}
}

// NewStatusRequest creates a new Status request
func NewStatusRequest() *Message {
	return &Message{
		MsgType: MsgTStatus,
	}
}

// NewStatusResponse creates a new Status response
func NewStatusResponse(status string, info []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTStatus,
		Status:  status,
		Meta:    info,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTSuccess:
		return "success"
	case MsgTError:
		return "error"
	case MsgTConfigKey:
		return "config-key"
	case MsgTDevice:
		return "device"
	case MsgTStatus:
		return "status"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "success":
		*t = MsgTSuccess
	case "error":
		*t = MsgTError
	case "config-key":
		*t = MsgTConfigKey
	case "device":
		*t = MsgTDevice
	case "status":
		*t = MsgTStatus
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Service operations

	MsgTConfigKey // A config-key command (get, put, del, exists, list, dump)
	MsgTDevice    // A device lifecycle operation (create, destroy)
	MsgTStatus    // Role, epoch and engine info of the node
)
