package uvc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kevmo314/go-uvc-gadget/pkg/buffer"
	"github.com/kevmo314/go-uvc-gadget/pkg/camera"
	"github.com/kevmo314/go-uvc-gadget/pkg/control"
	"github.com/kevmo314/go-uvc-gadget/pkg/hooks"
	"github.com/kevmo314/go-uvc-gadget/pkg/requests"
	"github.com/kevmo314/go-uvc-gadget/pkg/streaming"
	"github.com/kevmo314/go-uvc-gadget/pkg/v4l2"
	"go.uber.org/zap"
)

// Node is the kernel side of a UVC gadget function. *v4l2.Node implements it.
type Node interface {
	Subscribe(types ...v4l2.EventType) error
	WaitEvent(timeout time.Duration) (bool, error)
	DequeueEvent() (v4l2.Event, error)
	SendResponse(data []byte, stall bool) error

	SetFormat(fourcc uint32, width, height uint16, sizeImage uint32) error
	RequestBuffers(count int) (int, error)
	Buffer(i int) []byte
	WaitWritable(timeout time.Duration) (bool, error)
	QueueBuffer(i, bytesUsed int) error
	DequeueBuffer() (int, error)
	StreamOn() error
	StreamOff() error
	Close() error
}

type Options struct {
	// EventTimeout bounds each wait for a gadget event or writable buffer.
	EventTimeout time.Duration
	// ConsumeTimeout bounds each wait for a produced frame.
	ConsumeTimeout time.Duration
	WatchdogPeriod time.Duration
	ReadyTimeout   time.Duration
	StallThreshold int
	// BulkTimeoutLimit consecutive event timeouts without a writable buffer
	// while streaming over bulk fail the instance with ErrBulkStalled.
	BulkTimeoutLimit int
	NumBuffers       int

	// Open opens a function's video node. It defaults to the platform's
	// gadget node.
	Open func(path string) (Node, error)
}

func DefaultOptions() Options {
	return Options{
		EventTimeout:     2 * time.Second,
		ConsumeTimeout:   time.Second,
		WatchdogPeriod:   60 * time.Second,
		ReadyTimeout:     5 * time.Second,
		StallThreshold:   buffer.DefaultStallThreshold,
		BulkTimeoutLimit: 50,
		NumBuffers:       2,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.EventTimeout <= 0 {
		o.EventTimeout = d.EventTimeout
	}
	if o.ConsumeTimeout <= 0 {
		o.ConsumeTimeout = d.ConsumeTimeout
	}
	if o.WatchdogPeriod <= 0 {
		o.WatchdogPeriod = d.WatchdogPeriod
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = d.ReadyTimeout
	}
	if o.StallThreshold <= 0 {
		o.StallThreshold = d.StallThreshold
	}
	if o.BulkTimeoutLimit <= 0 {
		o.BulkTimeoutLimit = d.BulkTimeoutLimit
	}
	if o.NumBuffers <= 0 {
		o.NumBuffers = d.NumBuffers
	}
	if o.Open == nil {
		o.Open = openNode
	}
	return o
}

// Stats are the engine's progress counters.
type Stats struct {
	SetupEvents uint64
	DataEvents  uint64
	Queued      uint64
	Dequeued    uint64
	Frames      uint64
	Repeated    uint64
	Dropped     uint64
}

type target int

const (
	targetNone target = iota
	targetControl
	targetStreaming
)

// Engine runs the UVC protocol for one gadget function. The event loop owns
// the dispatcher and the probe/commit state; the data pump owns the kernel
// buffers while streaming.
type Engine struct {
	logger  *zap.Logger
	fn      camera.Function
	node    Node
	hooks   hooks.Hooks
	opts    Options
	channel *buffer.Channel

	dispatcher *control.Dispatcher
	extension  *control.Extension
	streaming  *streaming.Control
	target     target

	// onRestart asks the lifecycle manager to rebuild every instance.
	onRestart func()

	state         atomic.Int32
	shutdown      atomic.Bool
	stopRequested atomic.Bool
	ready         chan struct{}
	readyOnce     sync.Once

	// fmtMu guards the negotiated selection, which the data pump and
	// producers read.
	fmtMu     sync.Mutex
	selection streaming.Selection
	committed bool
	attached  bool

	pumpStop chan struct{}
	pumpDone chan struct{}
	last     []byte
	lastLen  int
	fault    atomic.Pointer[error]

	setupEvents atomic.Uint64
	dataEvents  atomic.Uint64
	queued      atomic.Uint64
	dequeued    atomic.Uint64
	frames      atomic.Uint64
	repeated    atomic.Uint64
	dropped     atomic.Uint64
}

// NewEngine builds the engine for fn on node. session is handed to the
// extension unit.
func NewEngine(logger *zap.Logger, fn camera.Function, node Node, h hooks.Hooks, session control.Session, channel *buffer.Channel, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if h == nil {
		h = hooks.Nop{}
	}
	e := &Engine{
		logger:     logger,
		fn:         fn,
		node:       node,
		hooks:      h,
		opts:       opts.withDefaults(),
		channel:    channel,
		dispatcher: control.NewDispatcher(logger.Named("control")),
		ready:      make(chan struct{}),
	}
	e.streaming = streaming.NewControl(fn.Negotiator())
	registerCameraTerminal(e.dispatcher)
	registerProcessingUnit(e.dispatcher, h, fn.ID)
	e.extension = control.NewExtension(logger.Named("xu"), h, session)
	e.extension.Register(e.dispatcher, EntityExtensionUnit)
	return e
}

func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	if old := State(e.state.Swap(int32(s))); old != s {
		e.logger.Debug("state change", zap.Stringer("from", old), zap.Stringer("to", s))
	}
}

// Ready is closed once the event subscriptions are installed.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

func (e *Engine) Stats() Stats {
	return Stats{
		SetupEvents: e.setupEvents.Load(),
		DataEvents:  e.dataEvents.Load(),
		Queued:      e.queued.Load(),
		Dequeued:    e.dequeued.Load(),
		Frames:      e.frames.Load(),
		Repeated:    e.repeated.Load(),
		Dropped:     e.dropped.Load(),
	}
}

// Selection returns the committed format. ok is false until a commit.
func (e *Engine) Selection() (streaming.Selection, bool) {
	e.fmtMu.Lock()
	defer e.fmtMu.Unlock()
	return e.selection, e.committed
}

// Shutdown asks Run to return. It does not wait.
func (e *Engine) Shutdown() {
	e.shutdown.Store(true)
	e.channel.Interrupt()
}

// requestStreamOff stops streaming once the current event is handled.
func (e *Engine) requestStreamOff() {
	e.stopRequested.Store(true)
}

func (e *Engine) requestRestart() {
	if e.onRestart != nil {
		e.onRestart()
	}
}

// fail records a fatal error from the data pump and stops the engine.
func (e *Engine) fail(err error) {
	e.fault.CompareAndSwap(nil, &err)
	e.Shutdown()
}

// Run processes gadget events until Shutdown, ctx is done or the node is
// removed. A removed node is returned as an error wrapping
// v4l2.ErrDeviceRemoved.
func (e *Engine) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, e.Shutdown)
	defer stop()

	if err := e.node.Subscribe(v4l2.Events...); err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	e.readyOnce.Do(func() { close(e.ready) })
	e.logger.Info("engine ready", zap.String("device", e.fn.DevicePath))

	defer e.teardown()

	for !e.shutdown.Load() {
		ok, err := e.node.WaitEvent(e.opts.EventTimeout)
		if err != nil {
			if v4l2.IsDeviceRemoved(err) {
				e.logger.Error("gadget node removed", zap.Error(err))
				return err
			}
			e.logger.Warn("event wait failed", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		ev, err := e.node.DequeueEvent()
		if err != nil {
			if v4l2.IsDeviceRemoved(err) {
				e.logger.Error("gadget node removed", zap.Error(err))
				return err
			}
			e.logger.Warn("dequeue event failed", zap.Error(err))
			continue
		}
		e.handleEvent(ev)
		if e.stopRequested.Swap(false) {
			e.stopStreaming()
		}
	}
	if err := e.fault.Load(); err != nil {
		return *err
	}
	return nil
}

func (e *Engine) teardown() {
	e.stopStreaming()
	e.setState(StateClosed)
}

func (e *Engine) handleEvent(ev v4l2.Event) {
	switch ev.Type {
	case v4l2.EventConnect:
		speed := streaming.SpeedFromKernel(ev.Speed)
		e.logger.Info("host connected", zap.Stringer("speed", speed))
		if speed != e.fn.Speed {
			e.fn.Speed = speed
			e.streaming = streaming.NewControl(e.fn.Negotiator())
		}
		if e.State() == StateClosed {
			e.setState(StateIdle)
		}
	case v4l2.EventDisconnect:
		e.logger.Info("host disconnected")
		e.stopStreaming()
		e.setState(StateClosed)
	case v4l2.EventStreamOn:
		e.logger.Debug("stream on")
		if e.fn.Transport == streaming.TransportBulk && e.State() == StateStreaming {
			return
		}
		e.startStreaming()
	case v4l2.EventStreamOff:
		e.logger.Debug("stream off")
		e.stopStreaming()
	case v4l2.EventSetup:
		e.setupEvents.Add(1)
		resp, err := e.handleSetup(&ev.Setup)
		if err := e.node.SendResponse(resp, err != nil); err != nil {
			e.logger.Warn("send response failed", zap.Error(err))
		}
	case v4l2.EventData:
		e.dataEvents.Add(1)
		e.handleData(ev.Data)
	default:
		e.logger.Debug("ignoring event", zap.Stringer("type", ev.Type))
	}
}

func (e *Engine) handleSetup(req *requests.ControlRequest) ([]byte, error) {
	e.target = targetNone
	e.logger.Debug("setup", zap.Stringer("request", req))

	if !req.RequestType.IsClass() || !req.RequestType.IsInterface() {
		e.dispatcher.Latch(requests.ErrorCodeInvalidRequest)
		return nil, control.ErrStall
	}

	switch req.Interface() {
	case e.fn.ControlInterface:
		resp, err := e.dispatcher.Handle(req.Entity(), req.Selector(), req.Request, req.Length)
		if err == nil && req.Request == requests.RequestCodeSetCur {
			e.target = targetControl
		}
		return resp, err
	case e.fn.StreamingInterface:
		resp, err := e.streaming.Request(req.Selector(), req.Request, req.Length)
		if err != nil {
			e.dispatcher.Latch(requests.ErrorCodeInvalidRequest)
			return nil, err
		}
		e.dispatcher.Latch(requests.ErrorCodeNone)
		if req.Request == requests.RequestCodeSetCur {
			e.target = targetStreaming
		}
		if len(resp) > int(req.Length) {
			resp = resp[:req.Length]
		}
		return resp, nil
	}
	e.dispatcher.Latch(requests.ErrorCodeInvalidUnit)
	return nil, control.ErrStall
}

func (e *Engine) handleData(b []byte) {
	t := e.target
	e.target = targetNone

	switch t {
	case targetControl:
		if err := e.dispatcher.Data(b); err != nil {
			e.logger.Warn("control data rejected", zap.Error(err))
		}
	case targetStreaming:
		committed, err := e.streaming.Data(b)
		if err != nil {
			e.logger.Warn("streaming data rejected", zap.Error(err))
			return
		}
		if committed {
			e.commit()
		} else {
			probe := e.streaming.Probe()
			e.logger.Debug("probe",
				zap.Uint8("format", probe.FormatIndex),
				zap.Uint8("frame", probe.FrameIndex),
				zap.Uint32("interval", probe.FrameInterval))
		}
	default:
		e.logger.Debug("data without a pending request", zap.Int("length", len(b)))
	}
}

// commit applies the committed format. A changed format while streaming
// restarts the stream. Bulk functions start streaming on every commit.
func (e *Engine) commit() {
	sel := e.streaming.Selection()
	e.fmtMu.Lock()
	changed := !e.committed || e.selection.Format != sel.Format ||
		e.selection.Width != sel.Width || e.selection.Height != sel.Height
	e.selection = sel
	e.committed = true
	e.fmtMu.Unlock()

	e.logger.Info("commit",
		zap.Stringer("format", sel.Format),
		zap.Uint16("width", sel.Width),
		zap.Uint16("height", sel.Height),
		zap.Uint32("interval", sel.Interval),
		zap.Uint32("frame_size", sel.FrameSize))

	bulk := e.fn.Transport == streaming.TransportBulk
	if e.State() == StateStreaming && (changed || bulk) {
		e.stopStreaming()
	}
	if changed || !e.attached {
		if !e.attach(sel) {
			return
		}
	}
	if e.State() != StateStreaming {
		e.setState(StateNegotiating)
	}
	if bulk {
		e.startStreaming()
	}
}

// attach sizes the buffer channel and the node for sel.
func (e *Engine) attach(sel streaming.Selection) bool {
	e.channel.Configure(sel.Width, sel.Height, int(sel.FrameSize))
	e.last = make([]byte, sel.FrameSize)
	e.lastLen = 0
	if err := e.node.SetFormat(sel.Format.FourCC(), sel.Width, sel.Height, sel.FrameSize); err != nil {
		e.logger.Warn("set format failed", zap.Error(err))
		if v4l2.IsDeviceRemoved(err) {
			e.fail(err)
		}
		return false
	}
	e.attached = true
	return true
}

func (e *Engine) startStreaming() {
	if e.State() == StateStreaming {
		return
	}
	if !e.attached {
		e.fmtMu.Lock()
		e.selection = e.streaming.Selection()
		e.committed = true
		sel := e.selection
		e.fmtMu.Unlock()
		if !e.attach(sel) {
			return
		}
	}

	n, err := e.node.RequestBuffers(e.opts.NumBuffers)
	if err != nil {
		e.logger.Warn("request buffers failed", zap.Error(err))
		if v4l2.IsDeviceRemoved(err) {
			e.fail(err)
		}
		return
	}
	if err := e.node.StreamOn(); err != nil {
		e.logger.Warn("stream on failed", zap.Error(err))
		e.node.RequestBuffers(0)
		if v4l2.IsDeviceRemoved(err) {
			e.fail(err)
		}
		return
	}
	e.hooks.StreamControl(e.fn.ID, true)
	e.setState(StateStreaming)
	e.logger.Info("streaming", zap.Int("buffers", n))

	e.pumpStop = make(chan struct{})
	e.pumpDone = make(chan struct{})
	go e.pump(n, e.pumpStop, e.pumpDone)
}

func (e *Engine) stopStreaming() {
	if e.State() != StateStreaming {
		return
	}
	e.setState(StateDraining)

	close(e.pumpStop)
	e.channel.Interrupt()
	<-e.pumpDone

	if err := e.node.StreamOff(); err != nil {
		e.logger.Warn("stream off failed", zap.Error(err))
	}
	if _, err := e.node.RequestBuffers(0); err != nil {
		e.logger.Warn("release buffers failed", zap.Error(err))
	}
	e.hooks.StreamControl(e.fn.ID, false)
	e.channel.Reset()
	e.attached = false
	e.setState(StateIdle)
	e.logger.Info("stream stopped")
}
