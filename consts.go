package uvc

// Entity IDs of the gadget's video control topology. They must match the
// unit and terminal IDs in the function's control descriptors.
const (
	EntityInterface      uint8 = 0x00
	EntityCameraTerminal uint8 = 0x01
	EntityProcessingUnit uint8 = 0x02
	EntityExtensionUnit  uint8 = 0x06
)

// State is the protocol state of an engine.
type State int32

const (
	StateIdle State = iota
	StateNegotiating
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
