package streaming

import (
	"github.com/kevmo314/go-uvc-gadget/pkg/descriptors"
	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
)

// Max selects the last format or frame when passed as an index to Fill.
const Max = -1

// Negotiator fills probe/commit controls from a function's capability table.
// It holds no mutable state.
type Negotiator struct {
	table     formats.Table
	transport Transport
	maxPacket uint32
	mult      uint32
	burst     uint32
}

func NewNegotiator(table formats.Table, transport Transport, maxPacket, mult, burst uint32) *Negotiator {
	return &Negotiator{
		table:     table,
		transport: transport,
		maxPacket: maxPacket,
		mult:      mult,
		burst:     burst,
	}
}

func (n *Negotiator) Table() formats.Table {
	return n.table
}

func (n *Negotiator) Transport() Transport {
	return n.transport
}

// PayloadSize is the dwMaxPayloadTransferSize every filled control carries.
func (n *Negotiator) PayloadSize() uint32 {
	return PayloadSize(n.transport, n.maxPacket, n.mult, n.burst)
}

// clamp maps a 1-based index into [1, count]. Negative values select count.
func clamp(i, count int) int {
	switch {
	case i < 0 || i > count:
		return count
	case i == 0:
		return 1
	default:
		return i
	}
}

// nearestInterval returns the smallest supported interval not below want,
// or the largest supported interval if want exceeds them all.
func nearestInterval(intervals []uint32, want uint32) uint32 {
	for _, iv := range intervals {
		if want <= iv {
			return iv
		}
	}
	return intervals[len(intervals)-1]
}

func (n *Negotiator) resolve(formatIndex, frameIndex int) (int, int) {
	fi := clamp(formatIndex, len(n.table))
	fj := clamp(frameIndex, len(n.table[fi-1].Frames))
	return fi, fj
}

// Fill returns the control the device answers for the requested indices and
// interval. Indices are clamped, never rejected.
func (n *Negotiator) Fill(formatIndex, frameIndex int, interval uint32) descriptors.VideoProbeCommitControl {
	fi, fj := n.resolve(formatIndex, frameIndex)
	format := n.table[fi-1]
	frame := format.Frames[fj-1]

	return descriptors.VideoProbeCommitControl{
		HintBitmask:            1,
		FormatIndex:            uint8(fi),
		FrameIndex:             uint8(fj),
		FrameInterval:          nearestInterval(frame.Intervals, interval),
		MaxVideoFrameSize:      formats.FrameSize(format.Format, frame.Width, frame.Height),
		MaxPayloadTransferSize: n.PayloadSize(),
		FramingInfoBitmask:     3,
		PreferedVersion:        1,
		MaxVersion:             1,
	}
}

// Selection is the stream configuration a control resolves to.
type Selection struct {
	Format    formats.Format
	Width     uint16
	Height    uint16
	Interval  uint32
	FrameSize uint32
}

func (n *Negotiator) Select(ctrl descriptors.VideoProbeCommitControl) Selection {
	fi, fj := n.resolve(int(ctrl.FormatIndex), int(ctrl.FrameIndex))
	format := n.table[fi-1]
	frame := format.Frames[fj-1]
	return Selection{
		Format:    format.Format,
		Width:     frame.Width,
		Height:    frame.Height,
		Interval:  nearestInterval(frame.Intervals, ctrl.FrameInterval),
		FrameSize: formats.FrameSize(format.Format, frame.Width, frame.Height),
	}
}
