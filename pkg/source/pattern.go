package source

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/kevmo314/go-uvc-gadget/pkg/buffer"
	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var bars = []color.RGBA{
	{0xC0, 0xC0, 0xC0, 0xFF},
	{0xC0, 0xC0, 0x00, 0xFF},
	{0x00, 0xC0, 0xC0, 0xFF},
	{0x00, 0xC0, 0x00, 0xFF},
	{0xC0, 0x00, 0xC0, 0xFF},
	{0xC0, 0x00, 0x00, 0xFF},
	{0x00, 0x00, 0xC0, 0xFF},
	{0x10, 0x10, 0x10, 0xFF},
}

// Pattern produces SMPTE style color bars with a frame counter.
type Pattern struct {
	logger   *zap.Logger
	interval time.Duration
	label    string
}

func NewPattern(logger *zap.Logger, fps int, label string) *Pattern {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fps <= 0 {
		fps = 30
	}
	return &Pattern{
		logger:   logger.Named("pattern"),
		interval: time.Second / time.Duration(fps),
		label:    label,
	}
}

func (p *Pattern) Run(ctx context.Context, s Stream) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		f, w, h, ok := s.Negotiated()
		if !ok {
			continue
		}
		data, err := p.Render(f, w, h, n, s.DigitalCrop())
		if err != nil {
			p.logger.Debug("cannot render", zap.Stringer("format", f), zap.Error(err))
			continue
		}
		s.Produce(buffer.Frame{Data: data, Width: w, Height: h, Format: f})
	}
}

// Render draws frame n at the given resolution and encodes it as f. With
// crop set the center of the frame is zoomed in.
func (p *Pattern) Render(f formats.Format, width, height uint16, n int, crop bool) ([]byte, error) {
	if width == 0 || height == 0 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("pattern cannot render %dx%d", width, height)
	}
	img := p.image(int(width), int(height), n)
	if crop {
		img = zoom(img, int(width), int(height))
	}
	return encode(f, img)
}

func (p *Pattern) image(w, h, n int) *image.RGBA {
	src := image.NewRGBA(image.Rect(0, 0, len(bars), 1))
	for i, c := range bars {
		src.SetRGBA((i+n/8)%len(bars), 0, c)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(8, 16),
	}
	d.DrawString(fmt.Sprintf("%s %dx%d #%d", p.label, w, h, n))
	return dst
}

func toYUYV(img *image.RGBA) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*2)
	for y := 0; y < h; y++ {
		for x := 0; x+1 < w; x += 2 {
			y0, u, v := ycc(img.RGBAAt(x, y))
			y1, _, _ := ycc(img.RGBAAt(x+1, y))
			o := (y*w + x) * 2
			out[o], out[o+1], out[o+2], out[o+3] = y0, u, y1, v
		}
	}
	return out
}

func toNV12(img *image.RGBA) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*3/2)
	uv := out[w*h:]
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			yy, u, v := ycc(img.RGBAAt(x, y))
			out[y*w+x] = yy
			if y%2 == 0 && x%2 == 0 {
				o := (y/2)*w + x
				uv[o], uv[o+1] = u, v
			}
		}
	}
	return out
}

func ycc(c color.RGBA) (y, cb, cr uint8) {
	return color.RGBToYCbCr(c.R, c.G, c.B)
}
