package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dCfg/lib/configkey"
	"github.com/google/uuid"
)

// Kind is a device lifecycle operation.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindCreate
	KindDestroy
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// ParseKind resolves an operation name. "new" and "purge" are accepted as aliases.
func ParseKind(name string) Kind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "create", "new":
		return KindCreate
	case "destroy", "purge":
		return KindDestroy
	default:
		return KindUnknown
	}
}

var (
	// ErrInvalidUUID is returned for a device uuid that does not parse or is the nil uuid.
	ErrInvalidUUID = errors.New("invalid device uuid")
	// ErrInvalidID is returned for a negative device id.
	ErrInvalidID = errors.New("invalid device id")
)

// Request describes one create or destroy of a device.
type Request struct {
	Kind Kind
	// UUID identifies the device, its dm-crypt secrets live under dm-crypt/<UUID>/.
	UUID uuid.UUID
	// ID is the numeric id of the daemon serving the device, its private entries live
	// under daemon-private/<ID>/.
	ID int
	// Secret is the dm-crypt secret bound on create. Unused by destroy.
	Secret []byte
}

func (r Request) String() string {
	return fmt.Sprintf("%s %s (id %d)", r.Kind, r.UUID, r.ID)
}

// ParseRequest validates and normalizes the parts of a request.
func ParseRequest(kind, device string, id int, secret []byte) (Request, error) {
	k := ParseKind(kind)
	if k == KindUnknown {
		return Request{}, fmt.Errorf("unknown device operation '%s'", kind)
	}
	u, err := uuid.Parse(device)
	if err != nil {
		return Request{}, fmt.Errorf("%w '%s': %v", ErrInvalidUUID, device, err)
	}
	if u == uuid.Nil {
		return Request{}, fmt.Errorf("%w: nil uuid", ErrInvalidUUID)
	}
	if id < 0 {
		return Request{}, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	return Request{Kind: k, UUID: u, ID: id, Secret: secret}, nil
}

// Op is an inbound device request.
type Op interface {
	configkey.Replier
	Request() Request
}
