//go:build linux && arm

package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// The 32-bit time layouts the kernel accepts under CONFIG_COMPAT_32BIT_TIME.
var (
	_ [0]struct{} = [unsafe.Sizeof(event{}) - 128]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(buffer{}) - 68]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(format{}) - 204]struct{}{}
)

type format struct {
	Type uint32
	Pix  pixFormat
	_    [200 - unsafe.Sizeof(pixFormat{})]byte
}

// event mirrors struct v4l2_event with a 32-bit timespec. The union holds an
// s64, so EABI aligns it and the whole struct to 8 bytes.
type event struct {
	Type      uint32
	_         uint32
	U         [64]byte
	Pending   uint32
	Sequence  uint32
	Timestamp unix.Timespec
	ID        uint32
	Reserved  [8]uint32
	_         uint32
}

// buffer mirrors struct v4l2_buffer with a 32-bit timeval. M is the mmap
// offset.
type buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32
	Timestamp unix.Timeval
	Timecode  timecode
	Sequence  uint32
	Memory    uint32
	M         uint32
	Length    uint32
	Reserved2 uint32
	RequestFD int32
}
