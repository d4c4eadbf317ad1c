package formats

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type CompressionFormat [16]byte

var (
	CompressionFormatYUY2 = CompressionFormat(uuid.MustParse("32595559-0000-0010-8000-00AA00389B71"))
	CompressionFormatNV12 = CompressionFormat(uuid.MustParse("3231564E-0000-0010-8000-00AA00389B71"))
	CompressionFormatMJPG = CompressionFormat(uuid.MustParse("47504A4D-0000-0010-8000-00AA00389B71"))
	CompressionFormatH264 = CompressionFormat(uuid.MustParse("34363248-0000-0010-8000-00AA00389B71"))
)

// CompressionFormatFromDescriptor converts the mixed-endian guidFormat bytes
// found in a format descriptor, UVC 1.5 section 2.9, into a CompressionFormat.
func CompressionFormatFromDescriptor(src []byte) (CompressionFormat, error) {
	var cf CompressionFormat
	if len(src) != 16 {
		return cf, fmt.Errorf("guidFormat has %d bytes, want 16", len(src))
	}
	cf[0], cf[1], cf[2], cf[3] = src[3], src[2], src[1], src[0]
	cf[4], cf[5] = src[5], src[4]
	cf[6], cf[7] = src[7], src[6]
	copy(cf[8:], src[8:])
	return cf, nil
}

func (cf CompressionFormat) String() string {
	return uuid.UUID(cf).String()
}

// Format is a pixel format the gadget can stream.
type Format int

const (
	FormatUnknown Format = iota
	FormatYUYV
	FormatNV12
	FormatMJPEG
	FormatH264
)

func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// FourCC returns the V4L2 pixel format code.
func (f Format) FourCC() uint32 {
	switch f {
	case FormatYUYV:
		return fourcc('Y', 'U', 'Y', 'V')
	case FormatNV12:
		return fourcc('N', 'V', '1', '2')
	case FormatMJPEG:
		return fourcc('M', 'J', 'P', 'G')
	case FormatH264:
		return fourcc('H', '2', '6', '4')
	default:
		return 0
	}
}

func (f Format) GUID() CompressionFormat {
	switch f {
	case FormatYUYV:
		return CompressionFormatYUY2
	case FormatNV12:
		return CompressionFormatNV12
	case FormatMJPEG:
		return CompressionFormatMJPG
	case FormatH264:
		return CompressionFormatH264
	default:
		return CompressionFormat{}
	}
}

// Compressed reports whether frames of this format have a variable size.
func (f Format) Compressed() bool {
	return f == FormatMJPEG || f == FormatH264
}

func (f Format) String() string {
	switch f {
	case FormatYUYV:
		return "YUYV"
	case FormatNV12:
		return "NV12"
	case FormatMJPEG:
		return "MJPEG"
	case FormatH264:
		return "H264"
	default:
		return "unknown"
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(s) {
	case "YUYV", "YUY2":
		return FormatYUYV, nil
	case "NV12":
		return FormatNV12, nil
	case "MJPEG", "MJPG":
		return FormatMJPEG, nil
	case "H264":
		return FormatH264, nil
	}
	return FormatUnknown, fmt.Errorf("unknown pixel format %q", s)
}

func FormatFromGUID(cf CompressionFormat) Format {
	for _, f := range []Format{FormatYUYV, FormatNV12, FormatMJPEG, FormatH264} {
		if f.GUID() == cf {
			return f
		}
	}
	return FormatUnknown
}

func FormatFromFourCC(code uint32) Format {
	for _, f := range []Format{FormatYUYV, FormatNV12, FormatMJPEG, FormatH264} {
		if f.FourCC() == code {
			return f
		}
	}
	return FormatUnknown
}
