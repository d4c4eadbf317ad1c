//go:build linux && (amd64 || arm64 || arm)

package v4l2

import (
	"unsafe"

	"github.com/paypal/gatt/linux/gioctl"
	"golang.org/x/sys/unix"
)

const (
	typeV4L2 = 'V'
	typeUVC  = 'U'
)

const (
	bufTypeVideoOutput = 2
	memoryMMAP         = 1
	fieldNone          = 1
)

type eventSubscription struct {
	Type     uint32
	ID       uint32
	Flags    uint32
	Reserved [5]uint32
}

// requestData mirrors struct uvc_request_data.
type requestData struct {
	Length int32
	Data   [60]byte
}

type pixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

type requestBuffers struct {
	Count        uint32
	Type         uint32
	Memory       uint32
	Capabilities uint32
	Flags        uint8
	Reserved     [3]uint8
}

type timecode struct {
	Type     uint32
	Flags    uint32
	Frames   uint8
	Seconds  uint8
	Minutes  uint8
	Hours    uint8
	UserBits [4]uint8
}

var (
	vidiocSFmt           = gioctl.IoRW(typeV4L2, 5, unsafe.Sizeof(format{}))
	vidiocReqBufs        = gioctl.IoRW(typeV4L2, 8, unsafe.Sizeof(requestBuffers{}))
	vidiocQueryBuf       = gioctl.IoRW(typeV4L2, 9, unsafe.Sizeof(buffer{}))
	vidiocQBuf           = gioctl.IoRW(typeV4L2, 15, unsafe.Sizeof(buffer{}))
	vidiocDQBuf          = gioctl.IoRW(typeV4L2, 17, unsafe.Sizeof(buffer{}))
	vidiocStreamOn       = gioctl.IoW(typeV4L2, 18, unsafe.Sizeof(int32(0)))
	vidiocStreamOff      = gioctl.IoW(typeV4L2, 19, unsafe.Sizeof(int32(0)))
	vidiocDQEvent        = gioctl.IoR(typeV4L2, 89, unsafe.Sizeof(event{}))
	vidiocSubscribeEvent = gioctl.IoW(typeV4L2, 90, unsafe.Sizeof(eventSubscription{}))
	uvciocSendResponse   = gioctl.IoW(typeUVC, 1, unsafe.Sizeof(requestData{}))
)

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
