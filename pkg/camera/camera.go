package camera

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
	"github.com/kevmo314/go-uvc-gadget/pkg/streaming"
)

// Role routes an instance's frames and recovery requests downstream. It has
// no effect on the protocol.
type Role int

const (
	RoleUnknown Role = iota
	RoleDepth
	RoleRGB
	RoleIR
)

func (r Role) String() string {
	switch r {
	case RoleDepth:
		return "depth"
	case RoleRGB:
		return "rgb"
	case RoleIR:
		return "ir"
	default:
		return "unknown"
	}
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "depth":
		return RoleDepth, nil
	case "rgb":
		return RoleRGB, nil
	case "ir":
		return RoleIR, nil
	case "", "unknown":
		return RoleUnknown, nil
	}
	return RoleUnknown, fmt.Errorf("unknown camera role %q", s)
}

// RoleFromName derives the role from a gadget function or stream name. Only
// whole words count, so "uvc.ir0" and "DepthIRCam" match but "firmware" does
// not. depth wins over rgb, and rgb over ir.
func RoleFromName(name string) Role {
	role := RoleUnknown
	for _, w := range words(name) {
		switch w {
		case "depth":
			return RoleDepth
		case "rgb", "color":
			role = RoleRGB
		case "ir", "infrared":
			if role == RoleUnknown {
				role = RoleIR
			}
		}
	}
	return role
}

// words splits name into lower case words at punctuation, digits and camel
// case boundaries.
func words(name string) []string {
	var out []string
	rs := []rune(name)
	start := -1
	flush := func(end int) {
		if start >= 0 {
			out = append(out, strings.ToLower(string(rs[start:end])))
			start = -1
		}
	}
	for i, r := range rs {
		if !unicode.IsLetter(r) {
			flush(i)
			continue
		}
		if start >= 0 && unicode.IsUpper(r) {
			prev := rs[i-1]
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && i+1 < len(rs) && unicode.IsLower(rs[i+1])) {
				flush(i)
			}
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(rs))
	return out
}

// Function describes one configured UVC gadget function.
type Function struct {
	// ID is the index of the function's kernel video node, /dev/video<ID>.
	ID         int
	Name       string
	DevicePath string
	Role       Role
	Formats    formats.Table

	// Interface numbers the host addresses in wIndex.
	ControlInterface   uint8
	StreamingInterface uint8

	Transport streaming.Transport
	Speed     streaming.Speed

	// Streaming endpoint limits from the function configuration. A zero
	// MaxPacket means the default for Speed and Transport.
	MaxPacket uint32
	MaxBurst  uint32
	Mult      uint32
}

// Negotiator builds the probe/commit negotiator for this function.
func (f Function) Negotiator() *streaming.Negotiator {
	table := f.Formats
	if len(table) == 0 {
		table = formats.DefaultTable()
	}
	maxPacket := f.MaxPacket
	if maxPacket == 0 {
		maxPacket = streaming.MaxPacketSize(f.Speed, f.Transport)
	}
	return streaming.NewNegotiator(table, f.Transport, maxPacket, f.Mult, f.MaxBurst)
}

func (f Function) String() string {
	return fmt.Sprintf("%s (video%d, %s)", f.Name, f.ID, f.Role)
}
