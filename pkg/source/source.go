// Package source holds reference frame producers that feed an instance's
// buffer channel.
package source

import (
	"context"

	"github.com/kevmo314/go-uvc-gadget/pkg/buffer"
	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
)

// Stream is the producer side of one camera instance.
type Stream interface {
	// Negotiated reports the format and resolution. ok is false
	// until the host has committed a format.
	Negotiated() (f formats.Format, width, height uint16, ok bool)
	// DigitalCrop reports whether the host asked for the zoomed center of
	// the frame.
	DigitalCrop() bool
	Produce(buffer.Frame) bool
}

// Producer generates frames for a stream until ctx is done.
type Producer interface {
	Run(ctx context.Context, s Stream) error
}
