package formats

import "fmt"

// Frame is one discrete resolution of a format with its supported frame
// intervals in 100ns units, ascending.
type Frame struct {
	Width     uint16   `yaml:"width"`
	Height    uint16   `yaml:"height"`
	Intervals []uint32 `yaml:"intervals"`
}

// FormatDescriptor is one format entry of a function's streaming header.
// Formats and frames are addressed by 1-based index on the wire.
type FormatDescriptor struct {
	Format Format
	Frames []Frame
}

// Table is the static capability table of one camera function.
type Table []FormatDescriptor

// FrameSize is the dwMaxVideoFrameSize bound for the format at the given
// resolution. Compressed formats use a 12 bits per pixel upper bound.
func FrameSize(f Format, width, height uint16) uint32 {
	w, h := uint32(width), uint32(height)
	switch f {
	case FormatYUYV:
		return w * h * 2
	case FormatNV12, FormatMJPEG, FormatH264:
		return w * h * 3 / 2
	default:
		return w * h * 2
	}
}

func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("capability table has no formats")
	}
	for i, fd := range t {
		if fd.Format == FormatUnknown {
			return fmt.Errorf("format %d: unknown pixel format", i+1)
		}
		if len(fd.Frames) == 0 {
			return fmt.Errorf("format %d (%s): no frames", i+1, fd.Format)
		}
		for j, fr := range fd.Frames {
			if fr.Width == 0 || fr.Height == 0 {
				return fmt.Errorf("format %d frame %d: zero dimension", i+1, j+1)
			}
			if len(fr.Intervals) == 0 {
				return fmt.Errorf("format %d frame %d: no frame intervals", i+1, j+1)
			}
			for k := 1; k < len(fr.Intervals); k++ {
				if fr.Intervals[k] < fr.Intervals[k-1] {
					return fmt.Errorf("format %d frame %d: intervals not ascending", i+1, j+1)
				}
			}
		}
	}
	return nil
}

// DefaultTable is used when a function declares no formats of its own.
func DefaultTable() Table {
	return Table{
		{
			Format: FormatYUYV,
			Frames: []Frame{
				{Width: 640, Height: 480, Intervals: []uint32{666666, 1000000, 2000000}},
				{Width: 1280, Height: 720, Intervals: []uint32{1000000, 2000000}},
			},
		},
		{
			Format: FormatMJPEG,
			Frames: []Frame{
				{Width: 640, Height: 480, Intervals: []uint32{666666, 1000000, 2000000}},
				{Width: 1280, Height: 720, Intervals: []uint32{1000000, 2000000}},
			},
		},
		{
			Format: FormatH264,
			Frames: []Frame{
				{Width: 1920, Height: 1080, Intervals: []uint32{333333, 400000, 500000, 666666, 1000000, 2000000}},
			},
		},
	}
}
