package control

import (
	"encoding/binary"
	"fmt"

	"github.com/kevmo314/go-uvc-gadget/pkg/descriptors"
	"github.com/kevmo314/go-uvc-gadget/pkg/hooks"
	"github.com/kevmo314/go-uvc-gadget/pkg/requests"
	"go.uber.org/zap"
)

// Extension unit buffer sizes.
const (
	CommandSize     = 4
	QueryHeaderSize = 16
	DeviceInfoSize  = 60
	QueryBufferSize = 4096
)

// Query header commands.
const (
	QueryResult = 0x82
	QueryFilter = 0xC5
)

// Query results reported through the result query.
const (
	ResultNone    uint8 = 0
	ResultOK      uint8 = 1
	ResultFailure uint8 = 0xFF
)

// Vendor commands written to the command selector.
const (
	CommandRebootLoader   uint32 = 0xFFFFFFFF
	CommandReboot         uint32 = 0xFFFFFFFE
	CommandWriteEEPROM    uint32 = 0xFFFFFFFB
	CommandIQModeNight    uint32 = 0xFFFFFFFA
	CommandIQModeFocus    uint32 = 0xFFFFFFF9
	CommandIQModeDefault  uint32 = 0xFFFFFFF7
	CommandEffectOn       uint32 = 0xFFFFFFF5
	CommandEffectOff      uint32 = 0xFFFFFFF4
	CommandStreamOpen     uint32 = 0xFFFFFFF3
	CommandStreamClose    uint32 = 0xFFFFFFF2
	CommandRestart        uint32 = 0xFFFFFFF1
	CommandRestartAlt     uint32 = 0xFFFFFFF0
	CommandOutputContinue uint32 = 0xFFFFFFEF
	CommandOutputTwo      uint32 = 0xFFFFFFEE
	CommandOutputThree    uint32 = 0xFFFFFFED
	CommandOutputSix      uint32 = 0xFFFFFFEC
	CommandCropOff        uint32 = 0xFFFFFFEA
	CommandCropOn         uint32 = 0xFFFFFFE9

	// Focus commands carry the position in the high byte.
	commandFocusMask uint32 = 0x00FFFFFF
	commandFocus     uint32 = 0x00FFFFF8
)

// Device info queries written to the device info selector.
const (
	InfoReleaseVersion uint32 = 0x00
	InfoSerialNumber   uint32 = 0x01
	InfoCalibration    uint32 = 0x02
	InfoModelName      uint32 = 0x06
	InfoMirror         uint32 = 0x07
	InfoSupportList    uint32 = 0x08
	InfoCurrentOutput  uint32 = 0x09
	InfoVendorFirst    uint32 = 0x0A
	InfoVendorLast     uint32 = 0x0C
)

const defaultFocusPosition = 56

// Session is the per-instance state the extension unit reads and changes.
type Session interface {
	ID() int
	Output() (fourcc uint32, width, height uint16)
	SetMirror(mode uint8)
	SetDigitalCrop(on bool)
	StopStream()
	RequestRestart()
}

// Extension implements the vendor extension unit: a command selector, a
// query header and chunked data selector pair, and a device info selector.
type Extension struct {
	logger  *zap.Logger
	hooks   hooks.Hooks
	session Session

	command [CommandSize]byte
	header  [QueryHeaderSize]byte
	info    [DeviceInfoSize]byte

	data     [QueryBufferSize]byte
	length   int
	index    int
	checksum uint16
	readSum  uint16
	result   uint8
}

func NewExtension(logger *zap.Logger, h hooks.Hooks, s Session) *Extension {
	if logger == nil {
		logger = zap.NewNop()
	}
	if h == nil {
		h = hooks.Nop{}
	}
	return &Extension{logger: logger, hooks: h, session: s}
}

// Register installs the extension unit's selectors on d under entity.
func (x *Extension) Register(d *Dispatcher, entity uint8) {
	d.Register(entity, uint8(descriptors.ExtensionUnitControlSelectorCommand), &commandControl{x})
	d.Register(entity, uint8(descriptors.ExtensionUnitControlSelectorQueryHeader), &headerControl{x})
	d.Register(entity, uint8(descriptors.ExtensionUnitControlSelectorQueryData), &dataControl{x})
	d.Register(entity, uint8(descriptors.ExtensionUnitControlSelectorDeviceInfo), &infoControl{x})
}

// Result returns the latched result of the last query or data write.
func (x *Extension) Result() uint8 { return x.result }

// Remaining returns the number of query bytes not yet read or written.
func (x *Extension) Remaining() int {
	if x.length > x.index {
		return x.length - x.index
	}
	return 0
}

func byteSum(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return sum
}

func filled(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func le16(v int) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

type commandControl struct{ x *Extension }

func (c *commandControl) Request(code requests.RequestCode, length uint16) ([]byte, error) {
	switch code {
	case requests.RequestCodeSetCur:
		return nil, nil
	case requests.RequestCodeGetCur:
		return append([]byte(nil), c.x.command[:]...), nil
	case requests.RequestCodeGetLen:
		return le16(CommandSize), nil
	case requests.RequestCodeGetMin, requests.RequestCodeGetDef:
		return make([]byte, CommandSize), nil
	case requests.RequestCodeGetMax:
		return filled(CommandSize, 0xFF), nil
	case requests.RequestCodeGetRes:
		return []byte{1, 0, 0, 0}, nil
	case requests.RequestCodeGetInfo:
		return []byte{requests.InfoSupportsGet | requests.InfoSupportsSet}, nil
	}
	return nil, ErrStall
}

func (c *commandControl) Data(b []byte) error {
	if len(b) > CommandSize {
		return fmt.Errorf("%d byte vendor command", len(b))
	}
	c.x.command = [CommandSize]byte{}
	copy(c.x.command[:], b)
	c.x.runCommand(binary.LittleEndian.Uint32(c.x.command[:]))
	return nil
}

func (x *Extension) runCommand(cmd uint32) {
	id := x.session.ID()
	x.logger.Debug("vendor command", zap.Uint32("command", cmd))

	if cmd&commandFocusMask == commandFocus {
		x.hooks.SetIQMode(hooks.IQModeFocus)
		x.hooks.SetFocus(uint8(cmd >> 24))
		return
	}

	switch cmd {
	case CommandRebootLoader:
		x.hooks.Reboot(true)
	case CommandReboot:
		x.hooks.Reboot(false)
	case CommandWriteEEPROM:
		x.hooks.WriteEEPROM()
	case CommandIQModeNight:
		x.hooks.SetIQMode(hooks.IQModeNight)
	case CommandIQModeFocus:
		x.hooks.SetIQMode(hooks.IQModeFocus)
		x.hooks.SetFocus(defaultFocusPosition)
	case CommandIQModeDefault:
		x.hooks.SetIQMode(hooks.IQModeDefault)
	case CommandEffectOn:
		x.hooks.SetImageEffect(1)
	case CommandEffectOff:
		x.hooks.SetImageEffect(0)
	case CommandStreamOpen:
		x.hooks.StreamControl(id, true)
		x.hooks.OpenCamera(id)
	case CommandStreamClose:
		x.hooks.StreamControl(id, false)
		x.hooks.CloseCamera(id)
		x.session.StopStream()
	case CommandRestart, CommandRestartAlt:
		x.session.RequestRestart()
	case CommandOutputContinue:
		x.hooks.SetFrameOutput(-1)
	case CommandOutputTwo:
		x.hooks.SetFrameOutput(-2)
	case CommandOutputThree:
		x.hooks.SetFrameOutput(-3)
	case CommandOutputSix:
		x.hooks.SetFrameOutput(-6)
	case CommandCropOff:
		x.session.SetDigitalCrop(false)
	case CommandCropOn:
		x.session.SetDigitalCrop(true)
	default:
		x.logger.Info("unsupported vendor command", zap.Uint32("command", cmd))
	}
}

type headerControl struct{ x *Extension }

func (c *headerControl) Request(code requests.RequestCode, length uint16) ([]byte, error) {
	switch code {
	case requests.RequestCodeSetCur:
		return nil, nil
	case requests.RequestCodeGetCur:
		return append([]byte(nil), c.x.header[:]...), nil
	case requests.RequestCodeGetLen:
		return le16(QueryHeaderSize), nil
	case requests.RequestCodeGetMin, requests.RequestCodeGetDef:
		return make([]byte, length), nil
	case requests.RequestCodeGetMax:
		return filled(int(length), 0xFF), nil
	case requests.RequestCodeGetRes:
		return append([]byte{1}, make([]byte, max(int(length)-1, 0))...), nil
	case requests.RequestCodeGetInfo:
		return []byte{requests.InfoSupportsGet | requests.InfoSupportsSet}, nil
	}
	return nil, ErrStall
}

// Data accepts a query header: command, LE16 length, LE16 checksum and
// command arguments. Any command but the result query asks the vendor hook
// for length bytes of query data.
func (c *headerControl) Data(b []byte) error {
	x := c.x
	if len(b) > QueryHeaderSize {
		return fmt.Errorf("%d byte query header", len(b))
	}
	x.header = [QueryHeaderSize]byte{}
	copy(x.header[:], b)

	cmd := x.header[0]
	x.length = int(binary.LittleEndian.Uint16(x.header[1:3]))
	x.checksum = binary.LittleEndian.Uint16(x.header[3:5])
	x.index = 0
	if cmd != QueryResult {
		x.result = ResultNone
	}
	x.data = [QueryBufferSize]byte{}

	if x.length > QueryBufferSize {
		x.logger.Warn("query length exceeds buffer", zap.Int("length", x.length))
		x.length = 0
		x.result = ResultFailure
		return nil
	}

	if cmd == QueryFilter {
		x.hooks.GetFilter(x.header[5], x.header[6])
	}
	if cmd != QueryResult {
		x.hooks.QueryData(append([]byte(nil), x.header[:]...), x.data[:x.length])
		x.readSum = byteSum(x.data[:x.length])
	}
	return nil
}

type dataControl struct{ x *Extension }

func (c *dataControl) Request(code requests.RequestCode, length uint16) ([]byte, error) {
	x := c.x
	switch code {
	case requests.RequestCodeSetCur:
		return nil, nil
	case requests.RequestCodeGetCur:
		if x.header[0] == QueryResult {
			if length != 4 {
				return make([]byte, length), nil
			}
			resp := []byte{QueryResult, x.result, byte(x.readSum), byte(x.readSum >> 8)}
			x.result = ResultNone
			return resp, nil
		}
		n := min(int(length), x.Remaining())
		resp := append([]byte(nil), x.data[x.index:x.index+n]...)
		x.index += n
		return resp, nil
	case requests.RequestCodeGetLen:
		return le16(x.Remaining()), nil
	case requests.RequestCodeGetMin, requests.RequestCodeGetDef:
		return make([]byte, length), nil
	case requests.RequestCodeGetMax:
		return filled(int(length), 0xFF), nil
	case requests.RequestCodeGetRes:
		return append([]byte{1}, make([]byte, max(int(length)-1, 0))...), nil
	case requests.RequestCodeGetInfo:
		return []byte{requests.InfoSupportsGet | requests.InfoSupportsSet}, nil
	}
	return nil, ErrStall
}

// Data appends one chunk of a data write. When the declared length has been
// received the byte sum is checked against the header checksum and only a
// matching write is submitted.
func (c *dataControl) Data(b []byte) error {
	x := c.x
	if x.index+len(b) > x.length {
		x.result = ResultFailure
		return fmt.Errorf("data write overflows declared length %d", x.length)
	}
	copy(x.data[x.index:], b)
	x.index += len(b)
	if x.index != x.length || x.length == 0 {
		return nil
	}

	if sum := byteSum(x.data[:x.length]); sum != x.checksum {
		x.logger.Warn("data write checksum mismatch",
			zap.Uint16("want", x.checksum),
			zap.Uint16("got", sum))
		x.result = ResultFailure
		return nil
	}
	if err := x.hooks.SubmitData(append([]byte(nil), x.data[:x.length]...)); err != nil {
		x.logger.Warn("submit data failed", zap.Error(err))
		x.result = ResultFailure
		return nil
	}
	x.result = ResultOK
	return nil
}

type infoControl struct{ x *Extension }

func (c *infoControl) Request(code requests.RequestCode, length uint16) ([]byte, error) {
	switch code {
	case requests.RequestCodeSetCur:
		return nil, nil
	case requests.RequestCodeGetCur:
		return append([]byte(nil), c.x.info[:]...), nil
	case requests.RequestCodeGetLen:
		return le16(DeviceInfoSize), nil
	case requests.RequestCodeGetMin, requests.RequestCodeGetDef:
		return make([]byte, DeviceInfoSize), nil
	case requests.RequestCodeGetMax:
		return filled(DeviceInfoSize, 0xFF), nil
	case requests.RequestCodeGetRes:
		resp := make([]byte, DeviceInfoSize)
		resp[0] = 1
		return resp, nil
	case requests.RequestCodeGetInfo:
		return []byte{requests.InfoSupportsGet | requests.InfoSupportsSet}, nil
	}
	return nil, ErrStall
}

// Data runs a device info query. Queries that return information leave it
// in the buffer for the following GET_CUR.
func (c *infoControl) Data(b []byte) error {
	x := c.x
	if len(b) > DeviceInfoSize {
		return fmt.Errorf("%d byte device info query", len(b))
	}
	x.info = [DeviceInfoSize]byte{}
	copy(x.info[:], b)
	query := binary.LittleEndian.Uint32(x.info[0:4])

	switch {
	case query == InfoReleaseVersion, query == InfoSerialNumber, query == InfoCalibration,
		query == InfoModelName, query == InfoSupportList:
		out := x.hooks.DeviceInfo(query)
		x.info = [DeviceInfoSize]byte{}
		copy(x.info[:], out)
	case query == InfoMirror:
		mode := x.info[4]
		x.session.SetMirror(mode)
		x.hooks.SetMirror(x.session.ID(), mode)
	case query == InfoCurrentOutput:
		fourcc, width, height := x.session.Output()
		x.info = [DeviceInfoSize]byte{}
		binary.LittleEndian.PutUint32(x.info[0:4], fourcc)
		binary.LittleEndian.PutUint32(x.info[4:8], uint32(width))
		binary.LittleEndian.PutUint32(x.info[8:12], uint32(height))
	case query >= InfoVendorFirst && query <= InfoVendorLast:
		x.hooks.VendorSetting(query, append([]byte(nil), x.info[4:]...))
	default:
		x.logger.Info("unsupported device info query", zap.Uint32("query", query))
		x.info = [DeviceInfoSize]byte{}
	}
	return nil
}
