// Package v4l2 drives the video node of a UVC gadget function: event
// subscription, control responses and the output buffer queue.
package v4l2

import "github.com/pkg/errors"

// ErrDeviceRemoved is returned once the gadget node has gone away, either
// because the UDC was unbound or the function was torn down.
var ErrDeviceRemoved = errors.New("video device removed")

// IsDeviceRemoved reports whether err means the node is gone.
func IsDeviceRemoved(err error) bool {
	return errors.Is(err, ErrDeviceRemoved)
}
