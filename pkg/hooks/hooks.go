package hooks

import "github.com/kevmo314/go-uvc-gadget/pkg/camera"

// Camera is implemented by the capture side of the device. Calls are made
// from an instance's event loop and must return promptly.
type Camera interface {
	OpenCamera(id int)
	CloseCamera(id int)
	StreamControl(id int, on bool)
	// RestartPipeline is called when an instance's producer stops delivering
	// frames. It is expected to restart capture out of band.
	RestartPipeline(role camera.Role)
}

// IQMode selects the image tuning profile of the sensor pipeline.
type IQMode int

const (
	IQModeDefault IQMode = 0
	IQModeNight   IQMode = 1
	IQModeFocus   IQMode = 3
)

// FrameOutput is the encoder output selection carried by vendor commands.
type FrameOutput int

// Vendor handles extension unit commands and forwarded attribute writes.
type Vendor interface {
	SetIQMode(mode IQMode)
	SetFocus(position uint8)
	SetImageEffect(effect int)
	SetFrameOutput(output FrameOutput)
	SetAttribute(id int, selector uint8, value uint32)
	Reboot(loader bool)
	WriteEEPROM()

	// QueryData fills out with the response to a query header. out is
	// sized to the length the header declares.
	QueryData(header []byte, out []byte)
	// SubmitData consumes a completed, checksum-verified data write.
	SubmitData(data []byte) error
	// DeviceInfo returns the device information block for a query id.
	DeviceInfo(query uint32) []byte
	VendorSetting(command uint32, args []byte)
	SetMirror(id int, mode uint8)
	GetFilter(scene, level uint8)
}

// Hooks is the full set of callbacks an instance is constructed with.
type Hooks interface {
	Camera
	Vendor
}

// Nop implements Hooks with no side effects.
type Nop struct{}

var _ Hooks = Nop{}

func (Nop) OpenCamera(int)                  {}
func (Nop) CloseCamera(int)                 {}
func (Nop) StreamControl(int, bool)         {}
func (Nop) RestartPipeline(camera.Role)     {}
func (Nop) SetIQMode(IQMode)                {}
func (Nop) SetFocus(uint8)                  {}
func (Nop) SetImageEffect(int)              {}
func (Nop) SetFrameOutput(FrameOutput)      {}
func (Nop) SetAttribute(int, uint8, uint32) {}
func (Nop) Reboot(bool)                     {}
func (Nop) WriteEEPROM()                    {}
func (Nop) QueryData([]byte, []byte)        {}
func (Nop) SubmitData([]byte) error         { return nil }
func (Nop) DeviceInfo(uint32) []byte        { return nil }
func (Nop) VendorSetting(uint32, []byte)    {}
func (Nop) SetMirror(int, uint8)            {}
func (Nop) GetFilter(uint8, uint8)          {}
