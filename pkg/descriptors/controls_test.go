package descriptors

import (
	"bytes"
	"testing"
)

func TestVideoProbeCommitControl_UnmarshalBinary_UVC10(t *testing.T) {
	// UVC 1.0 format: 26 bytes
	buf := make([]byte, 26)
	buf[2] = 1                                                  // FormatIndex
	buf[3] = 2                                                  // FrameIndex
	buf[4], buf[5], buf[6], buf[7] = 0x15, 0x16, 0x05, 0x00     // FrameInterval = 333333 (30fps in 100ns units)
	buf[18], buf[19], buf[20], buf[21] = 0x00, 0x00, 0x10, 0x00 // MaxVideoFrameSize = 1048576

	vpcc := &VideoProbeCommitControl{}
	if err := vpcc.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}

	if vpcc.FormatIndex != 1 {
		t.Errorf("FormatIndex = %d, want 1", vpcc.FormatIndex)
	}
	if vpcc.FrameIndex != 2 {
		t.Errorf("FrameIndex = %d, want 2", vpcc.FrameIndex)
	}
	if vpcc.FrameInterval != 333333 {
		t.Errorf("FrameInterval = %d, want 333333", vpcc.FrameInterval)
	}
	if vpcc.MaxVideoFrameSize != 1048576 {
		t.Errorf("MaxVideoFrameSize = %d, want 1048576", vpcc.MaxVideoFrameSize)
	}
}

func TestVideoProbeCommitControl_UnmarshalBinary_Short(t *testing.T) {
	vpcc := &VideoProbeCommitControl{}
	if err := vpcc.UnmarshalBinary(make([]byte, 10)); err != ErrShortBuffer {
		t.Errorf("UnmarshalBinary(10 bytes) = %v, want %v", err, ErrShortBuffer)
	}
}

func TestVideoProbeCommitControl_MarshalInto(t *testing.T) {
	vpcc := &VideoProbeCommitControl{
		FormatIndex:       1,
		FrameIndex:        3,
		MaxVideoFrameSize: 1024,
	}

	// Test marshaling into a 26-byte buffer (UVC 1.0)
	buf26 := make([]byte, 26)
	if err := vpcc.MarshalInto(buf26); err != nil {
		t.Fatalf("MarshalInto(26) failed: %v", err)
	}
	if buf26[2] != 1 {
		t.Errorf("buf26[2] (FormatIndex) = %d, want 1", buf26[2])
	}
	if buf26[3] != 3 {
		t.Errorf("buf26[3] (FrameIndex) = %d, want 3", buf26[3])
	}

	// Test marshaling into a 34-byte buffer (UVC 1.1)
	vpcc.FramingInfoBitmask = 0x03
	vpcc.PreferedVersion = 0x01
	vpcc.MaxVersion = 0x01
	buf34 := make([]byte, 34)
	if err := vpcc.MarshalInto(buf34); err != nil {
		t.Fatalf("MarshalInto(34) failed: %v", err)
	}
	if buf34[30] != 0x03 {
		t.Errorf("buf34[30] (FramingInfoBitmask) = %d, want 3", buf34[30])
	}
	if buf34[31] != 0x01 {
		t.Errorf("buf34[31] (PreferedVersion) = %d, want 1", buf34[31])
	}
	if buf34[33] != 0x01 {
		t.Errorf("buf34[33] (MaxVersion) = %d, want 1", buf34[33])
	}
}

func TestVideoProbeCommitControl_MarshalBinary_Length(t *testing.T) {
	vpcc := &VideoProbeCommitControl{}
	data, err := vpcc.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	// The gadget always answers with the UVC 1.1 layout.
	if len(data) != ProbeCommitSize11 {
		t.Errorf("MarshalBinary length = %d, want %d", len(data), ProbeCommitSize11)
	}
}

func TestVideoProbeCommitControl_ByteOrder(t *testing.T) {
	// Verify little-endian byte order
	vpcc := &VideoProbeCommitControl{
		HintBitmask:       0x1234,
		FrameInterval:     666666,
		MaxVideoFrameSize: 0xDEADBEEF,
	}

	data, _ := vpcc.MarshalBinary()

	// HintBitmask at bytes 0-1 (little endian: 0x34, 0x12)
	if data[0] != 0x34 || data[1] != 0x12 {
		t.Errorf("HintBitmask bytes = [%02x, %02x], want [34, 12]", data[0], data[1])
	}

	// FrameInterval at bytes 4-7 (666666 = 0x000A2C2A)
	if !bytes.Equal(data[4:8], []byte{0x2A, 0x2C, 0x0A, 0x00}) {
		t.Errorf("FrameInterval bytes = %x, want 2a2c0a00", data[4:8])
	}

	// MaxVideoFrameSize at bytes 18-21 (little endian: EF, BE, AD, DE)
	if !bytes.Equal(data[18:22], []byte{0xEF, 0xBE, 0xAD, 0xDE}) {
		t.Errorf("MaxVideoFrameSize bytes = %x, want EFBEADDE", data[18:22])
	}
}
