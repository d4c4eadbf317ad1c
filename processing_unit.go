package uvc

import (
	"github.com/kevmo314/go-uvc-gadget/pkg/control"
	"github.com/kevmo314/go-uvc-gadget/pkg/descriptors"
	"github.com/kevmo314/go-uvc-gadget/pkg/hooks"
)

type puControl struct {
	selector descriptors.ProcessingUnitControlSelector
	size     int
	min      int32
	max      int32
	def      int32
	res      int32
	// forward sends SET_CUR values to the vendor hook.
	forward bool
}

var puControls = []puControl{
	{descriptors.ProcessingUnitBrightnessControl, 2, 0, 255, 127, 1, false},
	{descriptors.ProcessingUnitContrastControl, 2, 0, 65535, 127, 1, true},
	{descriptors.ProcessingUnitHueControl, 2, -32768, 32767, 0, 1, true},
	{descriptors.ProcessingUnitSaturationControl, 2, 0, 65535, 0, 1, true},
	{descriptors.ProcessingUnitSharpnessControl, 2, 0, 255, 127, 1, false},
	{descriptors.ProcessingUnitGammaControl, 2, 0, 255, 127, 1, false},
	{descriptors.ProcessingUnitWhiteBalanceTemperatureControl, 2, 0, 255, 127, 1, false},
	{descriptors.ProcessingUnitGainControl, 2, 0, 255, 0, 1, true},
	{descriptors.ProcessingUnitHueAutoControl, 2, 0, 255, 127, 1, false},
}

// registerProcessingUnit installs the processing unit attributes for
// instance id.
func registerProcessingUnit(d *control.Dispatcher, h hooks.Vendor, id int) {
	for _, c := range puControls {
		a := control.NewAttribute(c.size, c.min, c.max, c.def, c.res)
		if c.forward {
			selector := uint8(c.selector)
			a.OnSet = func(v uint32) { h.SetAttribute(id, selector, v) }
		}
		d.Register(EntityProcessingUnit, uint8(c.selector), a)
	}

	plf := control.NewAttribute(1, 0, 0, int32(descriptors.PowerLineFrequency50Hz), 0)
	plf.NoRange = true
	d.Register(EntityProcessingUnit, uint8(descriptors.ProcessingUnitPowerLineFrequencyControl), plf)
}
