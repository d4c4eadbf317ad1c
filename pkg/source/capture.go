//go:build linux

package source

import (
	"context"
	"fmt"
	"time"

	"github.com/kevmo314/go-uvc-gadget/pkg/buffer"
	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"
)

// Capture passes frames from a V4L2 capture device through to the stream,
// reopening the device whenever the host negotiates a new output. Frames are
// decoded and zoomed only while the stream asks for a digital crop.
type Capture struct {
	logger *zap.Logger
	path   string
	fps    uint32
}

func NewCapture(logger *zap.Logger, path string, fps uint32) *Capture {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capture{
		logger: logger.Named("capture").With(zap.String("device", path)),
		path:   path,
		fps:    fps,
	}
}

type output struct {
	format formats.Format
	width  uint16
	height uint16
}

func (c *Capture) Run(ctx context.Context, s Stream) error {
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	for {
		f, w, h, ok := s.Negotiated()
		if ok {
			want := output{f, w, h}
			if err := c.stream(ctx, s, want); err != nil {
				c.logger.Warn("capture failed", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
		}
	}
}

// stream captures until ctx is done or the stream's output changes.
func (c *Capture) stream(ctx context.Context, s Stream, want output) error {
	opts := []device.Option{
		device.WithIOType(v4l2.IOTypeMMAP),
		device.WithPixFormat(v4l2.PixFormat{
			Width:       uint32(want.width),
			Height:      uint32(want.height),
			PixelFormat: v4l2.FourCCType(want.format.FourCC()),
			Field:       v4l2.FieldNone,
		}),
	}
	if c.fps > 0 {
		opts = append(opts, device.WithFPS(c.fps))
	}
	dev, err := device.Open(c.path, opts...)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.path, err)
	}
	defer dev.Close()

	pix, err := dev.GetPixFormat()
	if err != nil {
		return fmt.Errorf("get format: %w", err)
	}
	got := output{formats.FormatFromFourCC(uint32(pix.PixelFormat)), uint16(pix.Width), uint16(pix.Height)}
	if got.width != want.width || got.height != want.height {
		return fmt.Errorf("device captures %dx%d, stream wants %dx%d", got.width, got.height, want.width, want.height)
	}
	if got.format != want.format && !(got.format == formats.FormatNV12 && want.format == formats.FormatYUYV) {
		return fmt.Errorf("device captures %s, stream wants %s", got.format, want.format)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := dev.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	c.logger.Info("capturing",
		zap.Stringer("format", got.format),
		zap.Uint16("width", got.width),
		zap.Uint16("height", got.height))

	check := time.NewTicker(time.Second)
	defer check.Stop()
	frames := dev.GetOutput()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-check.C:
			if f, w, h, ok := s.Negotiated(); !ok || (output{f, w, h}) != want {
				c.logger.Info("output changed, reopening")
				return nil
			}
		case data, ok := <-frames:
			if !ok {
				return fmt.Errorf("capture stopped")
			}
			if s.DigitalCrop() {
				cropped, err := cropFrame(got.format, data, int(got.width), int(got.height))
				if err != nil {
					c.logger.Debug("crop failed", zap.Error(err))
				} else {
					data = cropped
				}
			}
			s.Produce(buffer.Frame{Data: data, Width: got.width, Height: got.height, Format: got.format})
		}
	}
}
