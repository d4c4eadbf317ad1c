package buffer

import (
	"errors"
	"sync"
	"time"

	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
	"go.uber.org/zap"
)

var (
	ErrTimedOut    = errors.New("no frame produced before timeout")
	ErrClosed      = errors.New("buffer channel closed")
	ErrInterrupted = errors.New("consume interrupted")
)

// DefaultStallThreshold is the number of consecutive consume timeouts that
// trigger the stall callback.
const DefaultStallThreshold = 120

// slotCount covers one ready slot, one held by the consumer and one being
// written by the producer.
const slotCount = 3

// Frame is one produced frame and the resolution it was captured at.
type Frame struct {
	Data   []byte
	Width  uint16
	Height uint16
	Format formats.Format
}

// Slot is a frame buffer handed to the consumer. It stays valid until it is
// passed back to Release.
type Slot struct {
	buf    []byte
	used   int
	gen    uint64
	Width  uint16
	Height uint16
	Format formats.Format
}

func (s *Slot) Bytes() []byte { return s.buf[:s.used] }
func (s *Slot) Len() int      { return s.used }
func (s *Slot) Cap() int      { return len(s.buf) }

type Stats struct {
	Produced    uint64
	Dropped     uint64
	Overwritten uint64
	Consumed    uint64
	Timeouts    uint64
	Recoveries  uint64
}

// Channel hands the most recent frame from a producer to a single consumer.
// A produce overwrites any frame that was not yet consumed and never blocks
// on the consumer. Frames are copied outside the lock; only slot ownership
// changes under it.
type Channel struct {
	logger *zap.Logger

	// produceMu serializes producers so only one slot is being written.
	produceMu sync.Mutex

	mu         sync.Mutex
	configured bool
	closed     bool
	gen        uint64
	width      uint16
	height     uint16
	capacity   int
	ready      *Slot
	held       *Slot
	free       []*Slot
	stalls     int
	threshold  int
	onStall    func()
	stats      Stats

	notify    chan struct{}
	interrupt chan struct{}
	done      chan struct{}
}

// NewChannel returns an unconfigured channel. onStall is called from the
// consumer's goroutine each time threshold consecutive consumes time out. A
// threshold of zero disables it.
func NewChannel(logger *zap.Logger, threshold int, onStall func()) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		logger:    logger,
		threshold: threshold,
		onStall:   onStall,
		notify:    make(chan struct{}, 1),
		interrupt: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Configure sizes the slots for a negotiated resolution. Frames produced for
// any other resolution are dropped from now on, including frames whose copy
// is already in flight.
func (c *Channel) Configure(width, height uint16, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.width = width
	c.height = height
	c.capacity = capacity
	c.ready = nil
	c.held = nil
	c.free = c.free[:0]
	for i := 0; i < slotCount; i++ {
		c.free = append(c.free, &Slot{buf: make([]byte, capacity), gen: c.gen})
	}
	c.stalls = 0
	c.configured = true

	select {
	case <-c.interrupt:
	default:
	}
	c.logger.Debug("buffer channel configured",
		zap.Uint16("width", width),
		zap.Uint16("height", height),
		zap.Int("capacity", capacity))
}

// Reset detaches the channel from any negotiated resolution. Produce drops
// everything until the next Configure.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.configured = false
	c.ready = nil
	c.held = nil
	c.free = nil
	c.stalls = 0
}

// Resolution returns the configured resolution.
func (c *Channel) Resolution() (width, height uint16, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height, c.configured
}

func (c *Channel) accepts(f Frame) bool {
	return !c.closed && c.configured && len(f.Data) <= c.capacity &&
		f.Width == c.width && f.Height == c.height
}

// Produce publishes a frame. It returns false if the frame was dropped
// because the channel is not configured, the frame does not fit a slot, or
// the frame's resolution is not the negotiated one.
func (c *Channel) Produce(f Frame) bool {
	c.produceMu.Lock()
	defer c.produceMu.Unlock()

	c.mu.Lock()
	if !c.accepts(f) || len(c.free) == 0 {
		c.stats.Dropped++
		c.mu.Unlock()
		return false
	}
	slot := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	gen := c.gen
	c.mu.Unlock()

	n := copy(slot.buf, f.Data)

	c.mu.Lock()
	if c.gen != gen || !c.accepts(f) {
		// Reconfigured during the copy. The slot belongs to the old
		// generation and is discarded with it.
		c.stats.Dropped++
		c.mu.Unlock()
		return false
	}
	slot.used = n
	slot.Width = f.Width
	slot.Height = f.Height
	slot.Format = f.Format
	if c.ready != nil {
		c.free = append(c.free, c.ready)
		c.stats.Overwritten++
	}
	c.ready = slot
	c.stalls = 0
	c.stats.Produced++
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// Consume waits up to timeout for a frame. The returned slot is owned by the
// caller until Release. A slot still held from a previous Consume is
// released implicitly.
func (c *Channel) Consume(timeout time.Duration) (*Slot, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		if slot := c.ready; slot != nil {
			c.ready = nil
			if c.held != nil {
				c.free = append(c.free, c.held)
			}
			c.held = slot
			c.stalls = 0
			c.stats.Consumed++
			c.mu.Unlock()
			return slot, nil
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-c.interrupt:
			return nil, ErrInterrupted
		case <-c.done:
			return nil, ErrClosed
		case <-timer.C:
			c.timedOut()
			return nil, ErrTimedOut
		}
	}
}

func (c *Channel) timedOut() {
	c.mu.Lock()
	c.stalls++
	c.stats.Timeouts++
	fire := c.threshold > 0 && c.stalls >= c.threshold
	if fire {
		c.stalls = 0
		c.stats.Recoveries++
	}
	onStall := c.onStall
	c.mu.Unlock()

	if fire {
		c.logger.Warn("producer stalled, requesting pipeline restart", zap.Int("threshold", c.threshold))
		if onStall != nil {
			onStall()
		}
	}
}

// Release returns a slot obtained from Consume.
func (c *Channel) Release(s *Slot) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held != s {
		return
	}
	c.held = nil
	if s.gen == c.gen {
		c.free = append(c.free, s)
	}
}

// Interrupt wakes a blocked Consume, which returns ErrInterrupted. If no
// consumer is waiting the next Consume returns immediately instead.
func (c *Channel) Interrupt() {
	select {
	case c.interrupt <- struct{}{}:
	default:
	}
}

// Close wakes any consumer and makes every later call fail or drop.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Stalls returns the current number of consecutive consume timeouts.
func (c *Channel) Stalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stalls
}

func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
