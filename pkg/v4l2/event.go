package v4l2

import (
	"encoding/binary"
	"fmt"

	"github.com/kevmo314/go-uvc-gadget/pkg/requests"
)

const eventPrivateStart = 0x08000000

// EventType identifies a UVC gadget event.
type EventType uint32

const (
	EventConnect EventType = eventPrivateStart + iota
	EventDisconnect
	EventStreamOn
	EventStreamOff
	EventSetup
	EventData
)

// Events is the set of events a gadget node subscribes to.
var Events = []EventType{
	EventConnect,
	EventDisconnect,
	EventSetup,
	EventData,
	EventStreamOn,
	EventStreamOff,
}

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventStreamOn:
		return "streamon"
	case EventStreamOff:
		return "streamoff"
	case EventSetup:
		return "setup"
	case EventData:
		return "data"
	}
	return fmt.Sprintf("event(%#x)", uint32(t))
}

// MaxDataLength is the largest data phase the kernel delivers in one event.
const MaxDataLength = 60

// Event is a dequeued gadget event. Speed is set for connect events, Setup
// for setup events and Data for data events.
type Event struct {
	Type     EventType
	Sequence uint32
	Speed    uint32
	Setup    requests.ControlRequest
	Data     []byte
}

// DecodeEvent decodes the type and the 64 byte payload of a v4l2_event.
func DecodeEvent(typ uint32, u []byte) (Event, error) {
	ev := Event{Type: EventType(typ)}
	switch ev.Type {
	case EventConnect:
		if len(u) < 4 {
			return ev, fmt.Errorf("connect event: %w", requests.ErrShortBuffer)
		}
		ev.Speed = binary.LittleEndian.Uint32(u)
	case EventSetup:
		if err := ev.Setup.UnmarshalBinary(u); err != nil {
			return ev, fmt.Errorf("setup event: %w", err)
		}
	case EventData:
		if len(u) < 4 {
			return ev, fmt.Errorf("data event: %w", requests.ErrShortBuffer)
		}
		n := int(int32(binary.LittleEndian.Uint32(u)))
		n = max(0, min(n, MaxDataLength, len(u)-4))
		ev.Data = append([]byte(nil), u[4:4+n]...)
	}
	return ev, nil
}
