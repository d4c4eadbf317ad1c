//go:build linux && (amd64 || arm64 || arm)

package v4l2

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Node is an open UVC gadget video node.
type Node struct {
	fd      int
	path    string
	buffers [][]byte
}

func Open(path string) (*Node, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &Node{fd: fd, path: path}, nil
}

func (n *Node) Path() string { return n.path }

func wrap(err error, op string) error {
	if err == unix.ENODEV || err == unix.ESHUTDOWN || err == unix.EBADF {
		return errors.Wrapf(ErrDeviceRemoved, "%s: %v", op, err)
	}
	return errors.Wrap(err, op)
}

// Subscribe subscribes the node to each of the gadget event types.
func (n *Node) Subscribe(types ...EventType) error {
	for _, t := range types {
		sub := eventSubscription{Type: uint32(t)}
		if err := ioctl(n.fd, vidiocSubscribeEvent, unsafe.Pointer(&sub)); err != nil {
			return wrap(err, "subscribe "+t.String())
		}
	}
	return nil
}

// WaitEvent waits up to timeout for a pending event. An interrupted wait
// reports none.
func (n *Node) WaitEvent(timeout time.Duration) (bool, error) {
	re, err := n.poll(unix.POLLPRI, timeout)
	return re&unix.POLLPRI != 0, err
}

// WaitWritable waits up to timeout for an output buffer the driver is done
// with.
func (n *Node) WaitWritable(timeout time.Duration) (bool, error) {
	re, err := n.poll(unix.POLLOUT, timeout)
	return re&unix.POLLOUT != 0 && re&unix.POLLERR == 0, err
}

func (n *Node) poll(events int16, timeout time.Duration) (int16, error) {
	fds := []unix.PollFd{{Fd: int32(n.fd), Events: events}}
	if _, err := unix.Poll(fds, int(timeout/time.Millisecond)); err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, wrap(err, "poll")
	}
	if fds[0].Revents&unix.POLLNVAL != 0 {
		return 0, wrap(unix.EBADF, "poll")
	}
	return fds[0].Revents, nil
}

// DequeueEvent dequeues and decodes the next pending event.
func (n *Node) DequeueEvent() (Event, error) {
	var ev event
	if err := ioctl(n.fd, vidiocDQEvent, unsafe.Pointer(&ev)); err != nil {
		return Event{}, wrap(err, "dequeue event")
	}
	out, err := DecodeEvent(ev.Type, ev.U[:])
	out.Sequence = ev.Sequence
	return out, err
}

// SendResponse answers the pending setup request. A stall response makes the
// gadget stall the control endpoint; otherwise data is sent, truncated by the
// kernel to the host's wLength.
func (n *Node) SendResponse(data []byte, stall bool) error {
	var resp requestData
	if stall {
		resp.Length = -int32(unix.EL2HLT)
	} else {
		resp.Length = int32(copy(resp.Data[:], data))
	}
	if err := ioctl(n.fd, uvciocSendResponse, unsafe.Pointer(&resp)); err != nil {
		return wrap(err, "send response")
	}
	return nil
}

// SetFormat sets the output format of the streaming queue.
func (n *Node) SetFormat(fourcc uint32, width, height uint16, sizeImage uint32) error {
	f := format{Type: bufTypeVideoOutput}
	f.Pix.Width = uint32(width)
	f.Pix.Height = uint32(height)
	f.Pix.PixelFormat = fourcc
	f.Pix.Field = fieldNone
	f.Pix.SizeImage = sizeImage
	if err := ioctl(n.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return wrap(err, "set format")
	}
	return nil
}

// RequestBuffers allocates and maps count output buffers, releasing any
// previously mapped ones. It returns the number the driver granted. A count
// of zero only releases.
func (n *Node) RequestBuffers(count int) (int, error) {
	if err := n.unmap(); err != nil {
		return 0, err
	}
	req := requestBuffers{Count: uint32(count), Type: bufTypeVideoOutput, Memory: memoryMMAP}
	if err := ioctl(n.fd, vidiocReqBufs, unsafe.Pointer(&req)); err != nil {
		return 0, wrap(err, "request buffers")
	}
	for i := uint32(0); i < req.Count; i++ {
		b := buffer{Index: i, Type: bufTypeVideoOutput, Memory: memoryMMAP}
		if err := ioctl(n.fd, vidiocQueryBuf, unsafe.Pointer(&b)); err != nil {
			n.unmap()
			return 0, wrap(err, "query buffer")
		}
		mem, err := unix.Mmap(n.fd, int64(uint32(b.M)), int(b.Length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			n.unmap()
			return 0, wrap(err, "mmap buffer")
		}
		n.buffers = append(n.buffers, mem)
	}
	return int(req.Count), nil
}

func (n *Node) unmap() error {
	var first error
	for _, b := range n.buffers {
		if err := unix.Munmap(b); err != nil && first == nil {
			first = errors.Wrap(err, "munmap buffer")
		}
	}
	n.buffers = nil
	return first
}

// Buffer returns the mapped memory of buffer i.
func (n *Node) Buffer(i int) []byte {
	if i < 0 || i >= len(n.buffers) {
		return nil
	}
	return n.buffers[i]
}

func (n *Node) NumBuffers() int { return len(n.buffers) }

// QueueBuffer hands buffer i, holding bytesUsed bytes, to the driver.
func (n *Node) QueueBuffer(i, bytesUsed int) error {
	b := buffer{
		Index:     uint32(i),
		Type:      bufTypeVideoOutput,
		Memory:    memoryMMAP,
		BytesUsed: uint32(bytesUsed),
		Field:     fieldNone,
	}
	if err := ioctl(n.fd, vidiocQBuf, unsafe.Pointer(&b)); err != nil {
		return wrap(err, "queue buffer")
	}
	return nil
}

// DequeueBuffer reclaims a buffer the driver has sent. It returns an error
// wrapping unix.EAGAIN when none is done.
func (n *Node) DequeueBuffer() (int, error) {
	b := buffer{Type: bufTypeVideoOutput, Memory: memoryMMAP}
	if err := ioctl(n.fd, vidiocDQBuf, unsafe.Pointer(&b)); err != nil {
		return 0, wrap(err, "dequeue buffer")
	}
	return int(b.Index), nil
}

func (n *Node) StreamOn() error {
	typ := int32(bufTypeVideoOutput)
	if err := ioctl(n.fd, vidiocStreamOn, unsafe.Pointer(&typ)); err != nil {
		return wrap(err, "stream on")
	}
	return nil
}

func (n *Node) StreamOff() error {
	typ := int32(bufTypeVideoOutput)
	if err := ioctl(n.fd, vidiocStreamOff, unsafe.Pointer(&typ)); err != nil {
		return wrap(err, "stream off")
	}
	return nil
}

// Close releases the buffers and closes the node.
func (n *Node) Close() error {
	if n.fd < 0 {
		return nil
	}
	n.unmap()
	err := unix.Close(n.fd)
	n.fd = -1
	if err != nil {
		return errors.Wrapf(err, "close %s", n.path)
	}
	return nil
}
