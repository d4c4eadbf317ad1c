package descriptors

type ProcessingUnitControlSelector uint8

const (
	ProcessingUnitControlSelectorUndefined           ProcessingUnitControlSelector = 0x00
	ProcessingUnitBacklightCompensationControl       ProcessingUnitControlSelector = 0x01
	ProcessingUnitBrightnessControl                  ProcessingUnitControlSelector = 0x02
	ProcessingUnitContrastControl                    ProcessingUnitControlSelector = 0x03
	ProcessingUnitGainControl                        ProcessingUnitControlSelector = 0x04
	ProcessingUnitPowerLineFrequencyControl          ProcessingUnitControlSelector = 0x05
	ProcessingUnitHueControl                         ProcessingUnitControlSelector = 0x06
	ProcessingUnitSaturationControl                  ProcessingUnitControlSelector = 0x07
	ProcessingUnitSharpnessControl                   ProcessingUnitControlSelector = 0x08
	ProcessingUnitGammaControl                       ProcessingUnitControlSelector = 0x09
	ProcessingUnitWhiteBalanceTemperatureControl     ProcessingUnitControlSelector = 0x0A
	ProcessingUnitWhiteBalanceTemperatureAutoControl ProcessingUnitControlSelector = 0x0B
	ProcessingUnitWhiteBalanceComponentControl       ProcessingUnitControlSelector = 0x0C
	ProcessingUnitWhiteBalanceComponentAutoControl   ProcessingUnitControlSelector = 0x0D
	ProcessingUnitDigitalMultiplierControl           ProcessingUnitControlSelector = 0x0E
	ProcessingUnitDigitalMultiplierLimitControl      ProcessingUnitControlSelector = 0x0F
	ProcessingUnitHueAutoControl                     ProcessingUnitControlSelector = 0x10
	ProcessingUnitAnalogVideoStandardControl         ProcessingUnitControlSelector = 0x11
	ProcessingUnitAnalogVideoLockStatusControl       ProcessingUnitControlSelector = 0x12
	ProcessingUnitContrastAutoControl                ProcessingUnitControlSelector = 0x13
)

func (s ProcessingUnitControlSelector) String() string {
	switch s {
	case ProcessingUnitBacklightCompensationControl:
		return "backlight compensation"
	case ProcessingUnitBrightnessControl:
		return "brightness"
	case ProcessingUnitContrastControl:
		return "contrast"
	case ProcessingUnitGainControl:
		return "gain"
	case ProcessingUnitPowerLineFrequencyControl:
		return "power line frequency"
	case ProcessingUnitHueControl:
		return "hue"
	case ProcessingUnitSaturationControl:
		return "saturation"
	case ProcessingUnitSharpnessControl:
		return "sharpness"
	case ProcessingUnitGammaControl:
		return "gamma"
	case ProcessingUnitWhiteBalanceTemperatureControl:
		return "white balance temperature"
	case ProcessingUnitWhiteBalanceTemperatureAutoControl:
		return "white balance temperature auto"
	case ProcessingUnitHueAutoControl:
		return "hue auto"
	default:
		return "unknown"
	}
}

// PowerLineFrequency values for ProcessingUnitPowerLineFrequencyControl.
type PowerLineFrequency uint8

const (
	PowerLineFrequencyDisabled PowerLineFrequency = 0
	PowerLineFrequency50Hz     PowerLineFrequency = 1
	PowerLineFrequency60Hz     PowerLineFrequency = 2
	PowerLineFrequencyAuto     PowerLineFrequency = 3
)
