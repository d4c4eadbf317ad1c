package streaming

import (
	"fmt"
	"strings"
)

// Transport is the transfer type of the video streaming endpoint.
type Transport int

const (
	TransportIsochronous Transport = iota
	TransportBulk
)

func (t Transport) String() string {
	if t == TransportBulk {
		return "bulk"
	}
	return "isochronous"
}

func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(s) {
	case "bulk":
		return TransportBulk, nil
	case "iso", "isoc", "isochronous":
		return TransportIsochronous, nil
	}
	return TransportBulk, fmt.Errorf("unknown transport %q", s)
}

// Speed is the USB connection speed of the gadget controller.
type Speed int

const (
	SpeedFull Speed = iota
	SpeedHigh
	SpeedSuper
)

func (s Speed) String() string {
	switch s {
	case SpeedFull:
		return "full"
	case SpeedSuper:
		return "super"
	default:
		return "high"
	}
}

func ParseSpeed(s string) (Speed, error) {
	switch strings.ToLower(s) {
	case "full", "fs":
		return SpeedFull, nil
	case "high", "hs":
		return SpeedHigh, nil
	case "super", "ss":
		return SpeedSuper, nil
	}
	return SpeedHigh, fmt.Errorf("unknown usb speed %q", s)
}

// SpeedFromKernel maps the usb_device_speed value carried by a connect event.
func SpeedFromKernel(v uint32) Speed {
	switch {
	case v <= 2:
		return SpeedFull
	case v <= 4:
		return SpeedHigh
	default:
		return SpeedSuper
	}
}

// MaxPacketSize is the endpoint packet size the gadget uses when the function
// configuration does not say otherwise.
func MaxPacketSize(s Speed, t Transport) uint32 {
	switch s {
	case SpeedFull:
		if t == TransportBulk {
			return 64
		}
		return 1023
	case SpeedHigh:
		if t == TransportBulk {
			return 512
		}
		return 1024
	default:
		return 1024
	}
}

// MaxBulkPayload is advertised as dwMaxPayloadTransferSize on bulk endpoints.
const MaxBulkPayload = 0x10000

// PayloadSize returns dwMaxPayloadTransferSize for the endpoint parameters.
func PayloadSize(t Transport, maxPacket, mult, burst uint32) uint32 {
	if t == TransportBulk {
		return MaxBulkPayload
	}
	return maxPacket * (mult + 1) * (burst + 1)
}
