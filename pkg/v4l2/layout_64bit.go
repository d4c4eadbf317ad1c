//go:build linux && (amd64 || arm64)

package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	_ [0]struct{} = [unsafe.Sizeof(event{}) - 136]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(buffer{}) - 88]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(format{}) - 208]struct{}{}
)

// format mirrors struct v4l2_format. The union holds pointers, so it starts
// 8 byte aligned.
type format struct {
	Type uint32
	_    uint32
	Pix  pixFormat
	_    [200 - unsafe.Sizeof(pixFormat{})]byte
}

// event mirrors struct v4l2_event. The union is 8 byte aligned.
type event struct {
	Type      uint32
	_         uint32
	U         [64]byte
	Pending   uint32
	Sequence  uint32
	Timestamp unix.Timespec
	ID        uint32
	Reserved  [8]uint32
}

// buffer mirrors struct v4l2_buffer. M holds the mmap offset in its low
// 32 bits.
type buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32
	_         uint32
	Timestamp unix.Timeval
	Timecode  timecode
	Sequence  uint32
	Memory    uint32
	M         uint64
	Length    uint32
	Reserved2 uint32
	RequestFD int32
	_         uint32
}
