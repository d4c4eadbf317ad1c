package uvc

import (
	"fmt"

	"github.com/kevmo314/go-uvc-gadget/pkg/buffer"
	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
	"github.com/kevmo314/go-uvc-gadget/pkg/streaming"
	"github.com/kevmo314/go-uvc-gadget/pkg/v4l2"
	"go.uber.org/zap"
)

// pump keeps the node's output queue full until stop is closed. It owns the
// kernel buffers while it runs.
func (e *Engine) pump(count int, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for i := 0; i < count; i++ {
		if !e.fillAndQueue(i, stop) {
			return
		}
	}

	timeouts := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		ok, err := e.node.WaitWritable(e.opts.EventTimeout)
		if err != nil {
			if v4l2.IsDeviceRemoved(err) {
				e.logger.Error("gadget node removed while streaming", zap.Error(err))
				e.fail(err)
				return
			}
			e.logger.Warn("buffer wait failed", zap.Error(err))
			continue
		}
		if !ok {
			if e.fn.Transport == streaming.TransportBulk {
				timeouts++
				if timeouts >= e.opts.BulkTimeoutLimit {
					e.logger.Error("bulk endpoint stalled", zap.Int("timeouts", timeouts))
					e.fail(fmt.Errorf("%w after %d waits", ErrBulkStalled, timeouts))
					return
				}
			}
			continue
		}
		timeouts = 0

		idx, err := e.node.DequeueBuffer()
		if err != nil {
			if v4l2.IsDeviceRemoved(err) {
				e.logger.Error("gadget node removed while streaming", zap.Error(err))
				e.fail(err)
				return
			}
			e.logger.Debug("dequeue buffer failed", zap.Error(err))
			continue
		}
		e.dequeued.Add(1)
		if !e.fillAndQueue(idx, stop) {
			return
		}
	}
}

// fillAndQueue writes the next frame into kernel buffer idx and queues it.
// It returns false when the pump must exit.
func (e *Engine) fillAndQueue(idx int, stop <-chan struct{}) bool {
	buf := e.node.Buffer(idx)
	n, err := e.fill(buf)
	for err == buffer.ErrInterrupted {
		select {
		case <-stop:
			return false
		default:
		}
		n, err = e.fill(buf)
	}
	if err != nil {
		return false
	}

	if err := e.node.QueueBuffer(idx, n); err != nil {
		if v4l2.IsDeviceRemoved(err) {
			e.logger.Error("gadget node removed while streaming", zap.Error(err))
			e.fail(err)
			return false
		}
		e.dropped.Add(1)
		e.logger.Warn("queue buffer failed, dropping frame", zap.Int("index", idx), zap.Error(err))
		return true
	}
	e.queued.Add(1)
	return true
}

// fill copies the next produced frame into buf, repeating the previous
// frame when the producer is late.
func (e *Engine) fill(buf []byte) (int, error) {
	slot, err := e.channel.Consume(e.opts.ConsumeTimeout)
	if err == buffer.ErrTimedOut {
		return e.repeat(buf), nil
	}
	if err != nil {
		return 0, err
	}
	defer e.channel.Release(slot)

	sel, _ := e.Selection()
	n := copyFrame(buf, slot, sel)
	if n < 0 {
		e.dropped.Add(1)
		e.logger.Debug("dropping mismatched frame",
			zap.Stringer("format", slot.Format),
			zap.Uint16("width", slot.Width),
			zap.Uint16("height", slot.Height))
		return e.repeat(buf), nil
	}
	e.lastLen = copy(e.last, buf[:n])
	e.frames.Add(1)
	return n, nil
}

func (e *Engine) repeat(buf []byte) int {
	e.repeated.Add(1)
	if e.lastLen > 0 {
		return copy(buf, e.last[:e.lastLen])
	}
	sel, _ := e.Selection()
	return blank(buf, sel)
}

// copyFrame converts or copies slot into buf for the negotiated selection.
// It returns -1 if the frame cannot be used.
func copyFrame(buf []byte, slot *buffer.Slot, sel streaming.Selection) int {
	if slot.Width != sel.Width || slot.Height != sel.Height {
		return -1
	}
	if slot.Format == formats.FormatNV12 && sel.Format == formats.FormatYUYV {
		n := formats.NV12ToYUYV(buf, slot.Bytes(), int(sel.Width), int(sel.Height))
		if n == 0 {
			return -1
		}
		return n
	}
	if slot.Format != formats.FormatUnknown && slot.Format != sel.Format {
		return -1
	}
	if slot.Len() > len(buf) {
		return -1
	}
	return copy(buf, slot.Bytes())
}

// blank writes a black frame for uncompressed formats. Compressed formats
// get an empty payload.
func blank(buf []byte, sel streaming.Selection) int {
	n := min(len(buf), int(sel.FrameSize))
	switch sel.Format {
	case formats.FormatYUYV:
		for i := 0; i+1 < n; i += 2 {
			buf[i], buf[i+1] = 0x10, 0x80
		}
		return n
	case formats.FormatNV12:
		luma := min(n, int(sel.Width)*int(sel.Height))
		for i := 0; i < n; i++ {
			if i < luma {
				buf[i] = 0x10
			} else {
				buf[i] = 0x80
			}
		}
		return n
	}
	return 0
}
