package source

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
	"golang.org/x/image/draw"
)

// zoom scales the central half of src up to w x h.
func zoom(src image.Image, w, h int) *image.RGBA {
	b := src.Bounds()
	r := image.Rect(b.Dx()/4, b.Dy()/4, b.Dx()*3/4, b.Dy()*3/4).Add(b.Min)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, r, draw.Src, nil)
	return dst
}

// cropFrame applies the digital crop to an encoded frame, keeping its size
// and format.
func cropFrame(f formats.Format, data []byte, w, h int) ([]byte, error) {
	img, err := decode(f, data, w, h)
	if err != nil {
		return nil, err
	}
	return encode(f, zoom(img, w, h))
}

func decode(f formats.Format, data []byte, w, h int) (image.Image, error) {
	switch f {
	case formats.FormatYUYV:
		if len(data) < w*h*2 {
			return nil, fmt.Errorf("short YUYV frame: %d bytes", len(data))
		}
		img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
		for y := 0; y < h; y++ {
			for x := 0; x+1 < w; x += 2 {
				o := (y*w + x) * 2
				img.Y[y*img.YStride+x] = data[o]
				img.Y[y*img.YStride+x+1] = data[o+2]
				c := y*img.CStride + x/2
				img.Cb[c] = data[o+1]
				img.Cr[c] = data[o+3]
			}
		}
		return img, nil
	case formats.FormatNV12:
		if len(data) < w*h*3/2 {
			return nil, fmt.Errorf("short NV12 frame: %d bytes", len(data))
		}
		img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
		for y := 0; y < h; y++ {
			copy(img.Y[y*img.YStride:y*img.YStride+w], data[y*w:])
		}
		uv := data[w*h:]
		for y := 0; y < h/2; y++ {
			for x := 0; x < w/2; x++ {
				c := y*img.CStride + x
				img.Cb[c] = uv[y*w+2*x]
				img.Cr[c] = uv[y*w+2*x+1]
			}
		}
		return img, nil
	case formats.FormatMJPEG:
		return jpeg.Decode(bytes.NewReader(data))
	}
	return nil, fmt.Errorf("cannot crop %s", f)
}

func encode(f formats.Format, img *image.RGBA) ([]byte, error) {
	switch f {
	case formats.FormatYUYV:
		return toYUYV(img), nil
	case formats.FormatNV12:
		return toNV12(img), nil
	case formats.FormatMJPEG:
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("cannot encode %s", f)
}
