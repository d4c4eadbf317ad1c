//go:build linux

package main

import (
	"os"

	"github.com/kevmo314/go-uvc-gadget/pkg/camera"
	"github.com/kevmo314/go-uvc-gadget/pkg/control"
	"github.com/kevmo314/go-uvc-gadget/pkg/hooks"
	"go.uber.org/zap"
)

const modelName = "uvc-gadget"

// gadgetHooks logs vendor requests and restarts producers when an instance
// stalls. It has no sensor behind it.
type gadgetHooks struct {
	logger *zap.Logger
	pipes  *pipelines
}

var _ hooks.Hooks = (*gadgetHooks)(nil)

func newGadgetHooks(logger *zap.Logger, pipes *pipelines) *gadgetHooks {
	return &gadgetHooks{logger: logger, pipes: pipes}
}

func (h *gadgetHooks) OpenCamera(id int) {
	h.logger.Info("open camera", zap.Int("id", id))
}

func (h *gadgetHooks) CloseCamera(id int) {
	h.logger.Info("close camera", zap.Int("id", id))
}

func (h *gadgetHooks) StreamControl(id int, on bool) {
	h.logger.Info("stream control", zap.Int("id", id), zap.Bool("on", on))
}

func (h *gadgetHooks) RestartPipeline(role camera.Role) {
	h.logger.Warn("restart pipeline", zap.Stringer("role", role))
	h.pipes.restart(role)
}

func (h *gadgetHooks) SetIQMode(mode hooks.IQMode) {
	h.logger.Info("iq mode", zap.Int("mode", int(mode)))
}

func (h *gadgetHooks) SetFocus(position uint8) {
	h.logger.Info("focus", zap.Uint8("position", position))
}

func (h *gadgetHooks) SetImageEffect(effect int) {
	h.logger.Info("image effect", zap.Int("effect", effect))
}

func (h *gadgetHooks) SetFrameOutput(output hooks.FrameOutput) {
	h.logger.Info("frame output", zap.Int("output", int(output)))
}

func (h *gadgetHooks) SetAttribute(id int, selector uint8, value uint32) {
	h.logger.Debug("attribute", zap.Int("id", id), zap.Uint8("selector", selector), zap.Uint32("value", value))
}

func (h *gadgetHooks) Reboot(loader bool) {
	h.logger.Warn("reboot requested, ignoring", zap.Bool("loader", loader))
}

func (h *gadgetHooks) WriteEEPROM() {
	h.logger.Warn("eeprom write requested, ignoring")
}

func (h *gadgetHooks) QueryData(header []byte, out []byte) {
	h.logger.Debug("query", zap.Binary("header", header), zap.Int("length", len(out)))
	clear(out)
}

func (h *gadgetHooks) SubmitData(data []byte) error {
	h.logger.Info("data submitted", zap.Int("length", len(data)))
	return nil
}

func (h *gadgetHooks) DeviceInfo(query uint32) []byte {
	out := make([]byte, control.DeviceInfoSize)
	switch query {
	case control.InfoReleaseVersion:
		copy(out, version)
	case control.InfoSerialNumber:
		host, _ := os.Hostname()
		copy(out, host)
	case control.InfoModelName:
		copy(out, modelName)
	default:
		h.logger.Debug("unknown device info query", zap.Uint32("query", query))
	}
	return out
}

func (h *gadgetHooks) VendorSetting(command uint32, args []byte) {
	h.logger.Info("vendor setting", zap.Uint32("command", command), zap.Binary("args", args))
}

func (h *gadgetHooks) SetMirror(id int, mode uint8) {
	h.logger.Info("mirror", zap.Int("id", id), zap.Uint8("mode", mode))
}

func (h *gadgetHooks) GetFilter(scene, level uint8) {
	h.logger.Info("filter", zap.Uint8("scene", scene), zap.Uint8("level", level))
}
