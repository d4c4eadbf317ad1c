package uvc

import (
	"github.com/kevmo314/go-uvc-gadget/pkg/control"
	"github.com/kevmo314/go-uvc-gadget/pkg/descriptors"
	"github.com/kevmo314/go-uvc-gadget/pkg/requests"
)

func canned(v ...byte) map[requests.RequestCode][]byte {
	info := []byte{requests.InfoSupportsGet | requests.InfoSupportsSet}
	return map[requests.RequestCode][]byte{
		requests.RequestCodeGetCur:  v,
		requests.RequestCodeGetMin:  v,
		requests.RequestCodeGetMax:  v,
		requests.RequestCodeGetDef:  v,
		requests.RequestCodeGetRes:  v,
		requests.RequestCodeGetInfo: info,
	}
}

// registerCameraTerminal installs the camera terminal controls. The sensor
// runs its own exposure loop, so the terminal reports fixed values.
func registerCameraTerminal(d *control.Dispatcher) {
	ae := byte(descriptors.AutoExposureModeAuto)
	d.Register(EntityCameraTerminal, uint8(descriptors.CameraTerminalControlSelectorAutoExposureModeControl), &control.Fixed{
		Responses: map[requests.RequestCode][]byte{
			requests.RequestCodeGetCur:  {ae},
			requests.RequestCodeGetDef:  {ae},
			requests.RequestCodeGetRes:  {ae},
			requests.RequestCodeGetInfo: {requests.InfoSupportsGet | requests.InfoSupportsSet},
		},
		Settable: true,
	})
	d.Register(EntityCameraTerminal, uint8(descriptors.CameraTerminalControlSelectorExposureTimeAbsoluteControl), &control.Fixed{
		Responses: canned(100),
		Settable:  true,
	})
	d.Register(EntityCameraTerminal, uint8(descriptors.CameraTerminalControlSelectorIrisAbsoluteControl), &control.Fixed{
		Responses: canned(10),
		Settable:  true,
	})
}
