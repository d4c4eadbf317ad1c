package uvc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kevmo314/go-uvc-gadget/pkg/v4l2"
)

type response struct {
	data  []byte
	stall bool
}

type nodeFormat struct {
	fourcc    uint32
	width     uint16
	height    uint16
	sizeImage uint32
}

// fakeNode is an in-memory gadget node. Queued buffers are returned to the
// pump immediately and their payloads are published on frames, dropping the
// oldest when full.
type fakeNode struct {
	events    chan v4l2.Event
	responses chan response
	frames    chan []byte
	ready     chan int

	subscribeDelay time.Duration

	mu         sync.Mutex
	next       *v4l2.Event
	nextBuffer int
	hasBuffer  bool
	format     nodeFormat
	buffers    [][]byte
	streaming  bool
	streamOns  int
	closed     bool

	removed atomic.Bool
	// hold keeps queued buffers from coming back, like a host that stopped
	// reading.
	hold atomic.Bool
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		events:    make(chan v4l2.Event, 16),
		responses: make(chan response, 16),
		frames:    make(chan []byte, 256),
		ready:     make(chan int, 32),
	}
}

func (f *fakeNode) remove() { f.removed.Store(true) }

func (f *fakeNode) check() error {
	if f.removed.Load() {
		return fmt.Errorf("fake node: %w", v4l2.ErrDeviceRemoved)
	}
	return nil
}

func (f *fakeNode) Subscribe(types ...v4l2.EventType) error {
	if f.subscribeDelay > 0 {
		time.Sleep(f.subscribeDelay)
	}
	return f.check()
}

func (f *fakeNode) WaitEvent(timeout time.Duration) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	f.mu.Lock()
	pending := f.next != nil
	f.mu.Unlock()
	if pending {
		return true, nil
	}
	select {
	case ev := <-f.events:
		f.mu.Lock()
		f.next = &ev
		f.mu.Unlock()
		return true, nil
	case <-time.After(min(timeout, 20*time.Millisecond)):
		return false, nil
	}
}

func (f *fakeNode) DequeueEvent() (v4l2.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next == nil {
		return v4l2.Event{}, fmt.Errorf("no event pending")
	}
	ev := *f.next
	f.next = nil
	return ev, nil
}

func (f *fakeNode) SendResponse(data []byte, stall bool) error {
	f.responses <- response{data: append([]byte(nil), data...), stall: stall}
	return nil
}

func (f *fakeNode) SetFormat(fourcc uint32, width, height uint16, sizeImage uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.format = nodeFormat{fourcc, width, height, sizeImage}
	return nil
}

func (f *fakeNode) Format() nodeFormat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.format
}

func (f *fakeNode) RequestBuffers(count int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buffers = nil
	f.hasBuffer = false
	for len(f.ready) > 0 {
		<-f.ready
	}
	for i := 0; i < count; i++ {
		f.buffers = append(f.buffers, make([]byte, f.format.sizeImage))
	}
	return count, nil
}

func (f *fakeNode) Buffer(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffers[i]
}

func (f *fakeNode) WaitWritable(timeout time.Duration) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	f.mu.Lock()
	has := f.hasBuffer
	f.mu.Unlock()
	if has {
		return true, nil
	}
	select {
	case i := <-f.ready:
		f.mu.Lock()
		f.nextBuffer, f.hasBuffer = i, true
		f.mu.Unlock()
		return true, nil
	case <-time.After(min(timeout, 20*time.Millisecond)):
		return false, nil
	}
}

func (f *fakeNode) QueueBuffer(i, bytesUsed int) error {
	if err := f.check(); err != nil {
		return err
	}
	f.mu.Lock()
	payload := append([]byte(nil), f.buffers[i][:bytesUsed]...)
	f.mu.Unlock()
	for sent := false; !sent; {
		select {
		case f.frames <- payload:
			sent = true
		default:
			select {
			case <-f.frames:
			default:
			}
		}
	}
	if !f.hold.Load() {
		f.ready <- i
	}
	return nil
}

func (f *fakeNode) DequeueBuffer() (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasBuffer {
		return 0, fmt.Errorf("no buffer ready")
	}
	f.hasBuffer = false
	return f.nextBuffer, nil
}

func (f *fakeNode) StreamOn() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming = true
	f.streamOns++
	return nil
}

func (f *fakeNode) StreamOff() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming = false
	return nil
}

func (f *fakeNode) Streaming() (on bool, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming, f.streamOns
}

func (f *fakeNode) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeNode) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
