package requests

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortBuffer = errors.New("short control request")

	// ErrStall is returned by request handlers that reject a request. The
	// gadget answers it by stalling the control endpoint.
	ErrStall = errors.New("control request stalled")
)

type RequestType uint8

const (
	RequestTypeVideoInterfaceSetRequest RequestType = 0b00100001
	RequestTypeDataEndpointSetRequest   RequestType = 0b00100010
	RequestTypeVideoInterfaceGetRequest RequestType = 0b10100001
	RequestTypeDataEndpointGetRequest   RequestType = 0b10100010
)

const (
	typeMask      = 0x60
	typeStandard  = 0x00
	typeClass     = 0x20
	recipientMask = 0x1f
	recipientIntf = 0x01
)

func (rt RequestType) IsStandard() bool { return rt&typeMask == typeStandard }
func (rt RequestType) IsClass() bool    { return rt&typeMask == typeClass }

// IsInterface reports whether the request is addressed to an interface
// rather than an endpoint or the device.
func (rt RequestType) IsInterface() bool { return rt&recipientMask == recipientIntf }

type RequestCode uint8

const (
	RequestCodeUndefined RequestCode = 0x00
	RequestCodeSetCur    RequestCode = 0x01
	RequestCodeSetCurAll RequestCode = 0x11
	RequestCodeGetCur    RequestCode = 0x81
	RequestCodeGetMin    RequestCode = 0x82
	RequestCodeGetMax    RequestCode = 0x83
	RequestCodeGetRes    RequestCode = 0x84
	RequestCodeGetLen    RequestCode = 0x85
	RequestCodeGetInfo   RequestCode = 0x86
	RequestCodeGetDef    RequestCode = 0x87
	RequestCodeGetCurAll RequestCode = 0x91
	RequestCodeGetMinAll RequestCode = 0x92
	RequestCodeGetMaxAll RequestCode = 0x93
	RequestCodeGetResAll RequestCode = 0x94
	RequestCodeGetDefAll RequestCode = 0x97
)

func (rc RequestCode) String() string {
	switch rc {
	case RequestCodeSetCur:
		return "SET_CUR"
	case RequestCodeGetCur:
		return "GET_CUR"
	case RequestCodeGetMin:
		return "GET_MIN"
	case RequestCodeGetMax:
		return "GET_MAX"
	case RequestCodeGetRes:
		return "GET_RES"
	case RequestCodeGetLen:
		return "GET_LEN"
	case RequestCodeGetInfo:
		return "GET_INFO"
	case RequestCodeGetDef:
		return "GET_DEF"
	default:
		return fmt.Sprintf("REQUEST(0x%02x)", uint8(rc))
	}
}

// ErrorCode is the value reported through the interface's request error
// code control after a request completes or stalls. UVC 1.5, 4.2.1.2.
type ErrorCode uint8

const (
	ErrorCodeNone                    ErrorCode = 0x00
	ErrorCodeNotReady                ErrorCode = 0x01
	ErrorCodeWrongState              ErrorCode = 0x02
	ErrorCodePower                   ErrorCode = 0x03
	ErrorCodeOutOfRange              ErrorCode = 0x04
	ErrorCodeInvalidUnit             ErrorCode = 0x05
	ErrorCodeInvalidControl          ErrorCode = 0x06
	ErrorCodeInvalidRequest          ErrorCode = 0x07
	ErrorCodeInvalidValueWithinRange ErrorCode = 0x08
	ErrorCodeUnknown                 ErrorCode = 0xFF
)

// GET_INFO capability bits.
const (
	InfoSupportsGet uint8 = 1 << 0
	InfoSupportsSet uint8 = 1 << 1
	InfoDisabled    uint8 = 1 << 2
	InfoAutoUpdate  uint8 = 1 << 3
	InfoAsync       uint8 = 1 << 4
)

// Interface numbers the kernel UVC function reports in the low byte of wIndex.
const (
	InterfaceControl   = 0
	InterfaceStreaming = 1
)

// ControlRequest is the 8-byte SETUP packet delivered with a UVC setup event.
type ControlRequest struct {
	RequestType RequestType
	Request     RequestCode
	Value       uint16
	Index       uint16
	Length      uint16
}

const ControlRequestSize = 8

func (cr *ControlRequest) UnmarshalBinary(buf []byte) error {
	if len(buf) < ControlRequestSize {
		return ErrShortBuffer
	}
	cr.RequestType = RequestType(buf[0])
	cr.Request = RequestCode(buf[1])
	cr.Value = binary.LittleEndian.Uint16(buf[2:4])
	cr.Index = binary.LittleEndian.Uint16(buf[4:6])
	cr.Length = binary.LittleEndian.Uint16(buf[6:8])
	return nil
}

func (cr *ControlRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ControlRequestSize)
	buf[0] = byte(cr.RequestType)
	buf[1] = byte(cr.Request)
	binary.LittleEndian.PutUint16(buf[2:4], cr.Value)
	binary.LittleEndian.PutUint16(buf[4:6], cr.Index)
	binary.LittleEndian.PutUint16(buf[6:8], cr.Length)
	return buf, nil
}

// Selector is the control selector carried in the high byte of wValue.
func (cr *ControlRequest) Selector() uint8 { return uint8(cr.Value >> 8) }

// Entity is the unit or terminal id carried in the high byte of wIndex.
func (cr *ControlRequest) Entity() uint8 { return uint8(cr.Index >> 8) }

func (cr *ControlRequest) Interface() uint8 { return uint8(cr.Index) }

func (cr *ControlRequest) String() string {
	return fmt.Sprintf("%s intf=%d entity=%d cs=%d len=%d", cr.Request, cr.Interface(), cr.Entity(), cr.Selector(), cr.Length)
}
