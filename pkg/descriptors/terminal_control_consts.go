package descriptors

type InterfaceControlSelector uint8

const (
	InterfaceControlSelectorUndefined               InterfaceControlSelector = 0x00
	InterfaceControlSelectorVideoPowerModeControl   InterfaceControlSelector = 0x01
	InterfaceControlSelectorRequestErrorCodeControl InterfaceControlSelector = 0x02
)

type CameraTerminalControlSelector uint8

const (
	CameraTerminalControlSelectorUndefined                   CameraTerminalControlSelector = 0x00
	CameraTerminalControlSelectorScanningModeControl         CameraTerminalControlSelector = 0x01
	CameraTerminalControlSelectorAutoExposureModeControl     CameraTerminalControlSelector = 0x02
	CameraTerminalControlSelectorAutoExposurePriorityControl CameraTerminalControlSelector = 0x03
	CameraTerminalControlSelectorExposureTimeAbsoluteControl CameraTerminalControlSelector = 0x04
	CameraTerminalControlSelectorExposureTimeRelativeControl CameraTerminalControlSelector = 0x05
	CameraTerminalControlSelectorFocusAbsoluteControl        CameraTerminalControlSelector = 0x06
	CameraTerminalControlSelectorFocusRelativeControl        CameraTerminalControlSelector = 0x07
	CameraTerminalControlSelectorFocusAutoControl            CameraTerminalControlSelector = 0x08
	CameraTerminalControlSelectorIrisAbsoluteControl         CameraTerminalControlSelector = 0x09
	CameraTerminalControlSelectorIrisRelativeControl         CameraTerminalControlSelector = 0x0A
	CameraTerminalControlSelectorZoomAbsoluteControl         CameraTerminalControlSelector = 0x0B
	CameraTerminalControlSelectorZoomRelativeControl         CameraTerminalControlSelector = 0x0C
	CameraTerminalControlSelectorPanTiltAbsoluteControl      CameraTerminalControlSelector = 0x0D
	CameraTerminalControlSelectorPanTiltRelativeControl      CameraTerminalControlSelector = 0x0E
	CameraTerminalControlSelectorRollAbsoluteControl         CameraTerminalControlSelector = 0x0F
	CameraTerminalControlSelectorRollRelativeControl         CameraTerminalControlSelector = 0x10
	CameraTerminalControlSelectorPrivacyControl              CameraTerminalControlSelector = 0x11
)

type AutoExposureMode uint8

const (
	AutoExposureModeManual           AutoExposureMode = 1
	AutoExposureModeAuto             AutoExposureMode = 2
	AutoExposureModeShutterPriority  AutoExposureMode = 4
	AutoExposureModeAperturePriority AutoExposureMode = 8
)

type VideoStreamingControlSelector uint8

const (
	VideoStreamingControlSelectorUndefined       VideoStreamingControlSelector = 0x00
	VideoStreamingControlSelectorProbe           VideoStreamingControlSelector = 0x01
	VideoStreamingControlSelectorCommit          VideoStreamingControlSelector = 0x02
	VideoStreamingControlSelectorStillProbe      VideoStreamingControlSelector = 0x03
	VideoStreamingControlSelectorStillCommit     VideoStreamingControlSelector = 0x04
	VideoStreamingControlSelectorStillTrigger    VideoStreamingControlSelector = 0x05
	VideoStreamingControlSelectorStreamErrorCode VideoStreamingControlSelector = 0x06
)

// ExtensionUnitControlSelector values are vendor defined. These are the
// selectors this camera's extension unit exposes.
type ExtensionUnitControlSelector uint8

const (
	ExtensionUnitControlSelectorUndefined   ExtensionUnitControlSelector = 0x00
	ExtensionUnitControlSelectorCommand     ExtensionUnitControlSelector = 0x01
	ExtensionUnitControlSelectorQueryHeader ExtensionUnitControlSelector = 0x02
	ExtensionUnitControlSelectorQueryData   ExtensionUnitControlSelector = 0x03
	ExtensionUnitControlSelectorDeviceInfo  ExtensionUnitControlSelector = 0x04
)
