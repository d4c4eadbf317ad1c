package uvc

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevmo314/go-uvc-gadget/pkg/buffer"
	"github.com/kevmo314/go-uvc-gadget/pkg/camera"
	"github.com/kevmo314/go-uvc-gadget/pkg/control"
	"github.com/kevmo314/go-uvc-gadget/pkg/descriptors"
	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
	"github.com/kevmo314/go-uvc-gadget/pkg/hooks"
	"github.com/kevmo314/go-uvc-gadget/pkg/requests"
	"github.com/kevmo314/go-uvc-gadget/pkg/streaming"
	"github.com/kevmo314/go-uvc-gadget/pkg/v4l2"
	"go.uber.org/zap/zaptest"
)

var testTable = formats.Table{
	{
		Format: formats.FormatYUYV,
		Frames: []formats.Frame{
			{Width: 8, Height: 4, Intervals: []uint32{333333, 666666}},
			{Width: 16, Height: 8, Intervals: []uint32{666666}},
		},
	},
	{
		Format: formats.FormatMJPEG,
		Frames: []formats.Frame{
			{Width: 8, Height: 4, Intervals: []uint32{333333}},
		},
	},
}

func testFunction(id int, transport streaming.Transport) camera.Function {
	return camera.Function{
		ID:                 id,
		Name:               "uvc.rgb",
		DevicePath:         "/dev/video3",
		Role:               camera.RoleRGB,
		Formats:            testTable,
		ControlInterface:   requests.InterfaceControl,
		StreamingInterface: requests.InterfaceStreaming,
		Transport:          transport,
		Speed:              streaming.SpeedHigh,
	}
}

func testOptions() Options {
	return Options{
		EventTimeout:     50 * time.Millisecond,
		ConsumeTimeout:   10 * time.Millisecond,
		WatchdogPeriod:   time.Hour,
		ReadyTimeout:     time.Second,
		StallThreshold:   1000,
		BulkTimeoutLimit: 1000,
		NumBuffers:       2,
	}
}

type hookRecorder struct {
	hooks.Nop

	mu       sync.Mutex
	streams  []bool
	attrs    [][3]uint32
	restarts []camera.Role
}

func (h *hookRecorder) StreamControl(id int, on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams = append(h.streams, on)
}

func (h *hookRecorder) SetAttribute(id int, selector uint8, value uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attrs = append(h.attrs, [3]uint32{uint32(id), uint32(selector), value})
}

func (h *hookRecorder) RestartPipeline(role camera.Role) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restarts = append(h.restarts, role)
}

func (h *hookRecorder) Streams() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bool(nil), h.streams...)
}

func (h *hookRecorder) Attrs() [][3]uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][3]uint32(nil), h.attrs...)
}

func (h *hookRecorder) Restarts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.restarts)
}

func newTestInstance(t *testing.T, fn camera.Function, node *fakeNode, h hooks.Hooks, opts Options) *Instance {
	t.Helper()
	return newInstance(zaptest.NewLogger(t), fn, node, h, opts.withDefaults())
}

func startInstance(t *testing.T, inst *Instance) {
	t.Helper()
	inst.start(context.Background(), inst.engine.opts.WatchdogPeriod)
	t.Cleanup(inst.stop)
	select {
	case <-inst.engine.Ready():
	case <-time.After(time.Second):
		t.Fatalf("engine did not become ready")
	}
}

func runInstance(t *testing.T, fn camera.Function, node *fakeNode, h hooks.Hooks) *Instance {
	t.Helper()
	inst := newTestInstance(t, fn, node, h, testOptions())
	startInstance(t, inst)
	return inst
}

func setupEvent(rt requests.RequestType, code requests.RequestCode, intf, entity, selector uint8, length uint16) v4l2.Event {
	return v4l2.Event{
		Type: v4l2.EventSetup,
		Setup: requests.ControlRequest{
			RequestType: rt,
			Request:     code,
			Value:       uint16(selector) << 8,
			Index:       uint16(entity)<<8 | uint16(intf),
			Length:      length,
		},
	}
}

func getCur(intf, entity, selector uint8, length uint16) v4l2.Event {
	return setupEvent(requests.RequestTypeVideoInterfaceGetRequest, requests.RequestCodeGetCur, intf, entity, selector, length)
}

func setCur(intf, entity, selector uint8, length uint16) v4l2.Event {
	return setupEvent(requests.RequestTypeVideoInterfaceSetRequest, requests.RequestCodeSetCur, intf, entity, selector, length)
}

func dataEvent(b []byte) v4l2.Event {
	return v4l2.Event{Type: v4l2.EventData, Data: b}
}

func awaitResponse(t *testing.T, node *fakeNode) response {
	t.Helper()
	select {
	case r := <-node.responses:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("no response to setup event")
	}
	return response{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func awaitFrame(t *testing.T, node *fakeNode, want []byte) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-node.frames:
			if bytes.Equal(got, want) {
				return
			}
		case <-deadline:
			t.Fatalf("frame % x never reached the node", want)
		}
	}
}

func negotiate(t *testing.T, node *fakeNode, formatIndex, frameIndex uint8, interval uint32) {
	t.Helper()
	for _, cs := range []descriptors.VideoStreamingControlSelector{
		descriptors.VideoStreamingControlSelectorProbe,
		descriptors.VideoStreamingControlSelectorCommit,
	} {
		node.events <- setCur(requests.InterfaceStreaming, 0, uint8(cs), descriptors.ProbeCommitSize11)
		if r := awaitResponse(t, node); r.stall {
			t.Fatalf("SET_CUR selector %d stalled", cs)
		}
		ctrl := descriptors.VideoProbeCommitControl{
			FormatIndex:   formatIndex,
			FrameIndex:    frameIndex,
			FrameInterval: interval,
		}
		b, err := ctrl.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary failed: %v", err)
		}
		node.events <- dataEvent(b)
	}
}

func TestEngineBrightness(t *testing.T) {
	node := newFakeNode()
	runInstance(t, testFunction(3, streaming.TransportIsochronous), node, nil)

	selector := uint8(descriptors.ProcessingUnitBrightnessControl)
	node.events <- setCur(requests.InterfaceControl, EntityProcessingUnit, selector, 2)
	if r := awaitResponse(t, node); r.stall || len(r.data) != 2 {
		t.Fatalf("SET_CUR brightness = %+v, want 2 byte ack", r)
	}
	node.events <- dataEvent([]byte{200, 0})
	node.events <- getCur(requests.InterfaceControl, EntityProcessingUnit, selector, 2)

	r := awaitResponse(t, node)
	if r.stall {
		t.Fatalf("GET_CUR brightness stalled")
	}
	if !bytes.Equal(r.data, []byte{200, 0}) {
		t.Errorf("GET_CUR brightness = %v, want [200 0]", r.data)
	}
}

func TestEngineForwardsAttributes(t *testing.T) {
	node := newFakeNode()
	h := &hookRecorder{}
	runInstance(t, testFunction(3, streaming.TransportIsochronous), node, h)

	selector := uint8(descriptors.ProcessingUnitContrastControl)
	node.events <- setCur(requests.InterfaceControl, EntityProcessingUnit, selector, 2)
	awaitResponse(t, node)
	node.events <- dataEvent([]byte{0x34, 0x12})

	waitFor(t, "contrast forward", func() bool { return len(h.Attrs()) == 1 })
	want := [3]uint32{3, uint32(selector), 0x1234}
	if got := h.Attrs()[0]; got != want {
		t.Errorf("SetAttribute = %v, want %v", got, want)
	}
}

func requestErrorCode(t *testing.T, node *fakeNode) requests.ErrorCode {
	t.Helper()
	node.events <- getCur(requests.InterfaceControl, EntityInterface, uint8(descriptors.InterfaceControlSelectorRequestErrorCodeControl), 1)
	r := awaitResponse(t, node)
	if r.stall || len(r.data) != 1 {
		t.Fatalf("GET_CUR request error code = %+v", r)
	}
	return requests.ErrorCode(r.data[0])
}

func TestEngineStallsAndLatchesErrorCode(t *testing.T) {
	node := newFakeNode()
	runInstance(t, testFunction(3, streaming.TransportIsochronous), node, nil)

	node.events <- getCur(requests.InterfaceControl, 9, 1, 1)
	if r := awaitResponse(t, node); !r.stall {
		t.Errorf("GET_CUR on unknown entity did not stall")
	}
	if got := requestErrorCode(t, node); got != requests.ErrorCodeInvalidControl {
		t.Errorf("request error code = %d, want %d", got, requests.ErrorCodeInvalidControl)
	}

	node.events <- setupEvent(requests.RequestType(0x80), requests.RequestCode(0x06), 0, 0, 1, 18)
	if r := awaitResponse(t, node); !r.stall {
		t.Errorf("standard request did not stall")
	}
	if got := requestErrorCode(t, node); got != requests.ErrorCodeInvalidRequest {
		t.Errorf("request error code after standard request = %d, want %d", got, requests.ErrorCodeInvalidRequest)
	}

	node.events <- getCur(5, EntityProcessingUnit, uint8(descriptors.ProcessingUnitBrightnessControl), 2)
	if r := awaitResponse(t, node); !r.stall {
		t.Errorf("request for unknown interface did not stall")
	}
	if got := requestErrorCode(t, node); got != requests.ErrorCodeInvalidUnit {
		t.Errorf("request error code after unknown interface = %d, want %d", got, requests.ErrorCodeInvalidUnit)
	}

	// The engine keeps answering after stalls.
	node.events <- getCur(requests.InterfaceControl, EntityProcessingUnit, uint8(descriptors.ProcessingUnitBrightnessControl), 2)
	if r := awaitResponse(t, node); r.stall || !bytes.Equal(r.data, []byte{127, 0}) {
		t.Errorf("GET_CUR brightness = %+v, want [127 0]", r)
	}
	if got := requestErrorCode(t, node); got != requests.ErrorCodeNone {
		t.Errorf("request error code after success = %d, want 0", got)
	}

	node.events <- getCur(requests.InterfaceStreaming, 0, 0x0F, 1)
	if r := awaitResponse(t, node); !r.stall {
		t.Errorf("GET_CUR on unknown streaming selector did not stall")
	}
	if got := requestErrorCode(t, node); got != requests.ErrorCodeInvalidRequest {
		t.Errorf("request error code after streaming stall = %d, want %d", got, requests.ErrorCodeInvalidRequest)
	}
}

func TestEngineProbeIdempotent(t *testing.T) {
	node := newFakeNode()
	runInstance(t, testFunction(3, streaming.TransportIsochronous), node, nil)

	probe := uint8(descriptors.VideoStreamingControlSelectorProbe)
	node.events <- getCur(requests.InterfaceStreaming, 0, probe, descriptors.ProbeCommitSize11)
	first := awaitResponse(t, node)
	node.events <- getCur(requests.InterfaceStreaming, 0, probe, descriptors.ProbeCommitSize11)
	second := awaitResponse(t, node)
	if first.stall || !bytes.Equal(first.data, second.data) {
		t.Errorf("GET_CUR probe = % x then % x, want identical", first.data, second.data)
	}
	if len(first.data) != descriptors.ProbeCommitSize11 {
		t.Errorf("len(probe) = %d, want %d", len(first.data), descriptors.ProbeCommitSize11)
	}
}

func TestEngineIsochronousStream(t *testing.T) {
	node := newFakeNode()
	h := &hookRecorder{}
	inst := runInstance(t, testFunction(3, streaming.TransportIsochronous), node, h)

	negotiate(t, node, 1, 1, 1)
	waitFor(t, "negotiating", func() bool { return inst.State() == StateNegotiating })

	sel, ok := inst.engine.Selection()
	if !ok {
		t.Fatalf("Selection not committed")
	}
	if sel.Interval != 333333 {
		t.Errorf("Interval = %d, want 333333", sel.Interval)
	}
	if f := node.Format(); f.fourcc != formats.FormatYUYV.FourCC() || f.width != 8 || f.height != 4 || f.sizeImage != 64 {
		t.Errorf("node format = %+v, want YUYV 8x4 64 bytes", f)
	}
	if fourcc, w, hh := inst.Output(); fourcc != formats.FormatYUYV.FourCC() || w != 8 || hh != 4 {
		t.Errorf("Output() = %#x %dx%d, want YUYV 8x4", fourcc, w, hh)
	}
	if on, _ := node.Streaming(); on {
		t.Errorf("isochronous commit started streaming")
	}

	node.events <- v4l2.Event{Type: v4l2.EventStreamOn}
	waitFor(t, "streaming", func() bool { return inst.State() == StateStreaming })

	black := bytes.Repeat([]byte{0x10, 0x80}, 32)
	awaitFrame(t, node, black)

	payload := bytes.Repeat([]byte{0x42}, 64)
	if !inst.Produce(buffer.Frame{Data: payload, Width: 8, Height: 4, Format: formats.FormatYUYV}) {
		t.Fatalf("Produce dropped a frame at the negotiated resolution")
	}
	awaitFrame(t, node, payload)
	waitFor(t, "repeated frames", func() bool { return inst.Stats().Repeated > 0 && inst.Stats().Frames == 1 })
	awaitFrame(t, node, payload)

	if inst.Produce(buffer.Frame{Data: make([]byte, 256), Width: 16, Height: 8, Format: formats.FormatYUYV}) {
		t.Errorf("Produce accepted a frame at a stale resolution")
	}

	node.events <- v4l2.Event{Type: v4l2.EventStreamOff}
	waitFor(t, "idle", func() bool { return inst.State() == StateIdle })
	if on, _ := node.Streaming(); on {
		t.Errorf("node still streaming after STREAMOFF")
	}
	if got := h.Streams(); len(got) != 2 || !got[0] || got[1] {
		t.Errorf("StreamControl calls = %v, want [true false]", got)
	}
	if s := inst.Stats(); s.Queued == 0 || s.Dequeued == 0 {
		t.Errorf("Stats = %+v, want buffer traffic", s)
	}
}

func TestEngineBulkCommitStreams(t *testing.T) {
	node := newFakeNode()
	inst := runInstance(t, testFunction(3, streaming.TransportBulk), node, nil)

	negotiate(t, node, 1, 1, 0)
	waitFor(t, "streaming", func() bool { return inst.State() == StateStreaming })
	if _, n := node.Streaming(); n != 1 {
		t.Errorf("stream on count = %d, want 1", n)
	}

	negotiate(t, node, 1, 2, 0)
	waitFor(t, "restarted stream", func() bool {
		_, n := node.Streaming()
		return n == 2 && inst.State() == StateStreaming
	})
	if f := node.Format(); f.width != 16 || f.height != 8 {
		t.Errorf("node format = %dx%d, want 16x8", f.width, f.height)
	}

	payload := bytes.Repeat([]byte{0x07}, 256)
	if !inst.Produce(buffer.Frame{Data: payload, Width: 16, Height: 8, Format: formats.FormatYUYV}) {
		t.Fatalf("Produce dropped a frame at the negotiated resolution")
	}
	awaitFrame(t, node, payload)
}

func TestEngineConvertsNV12(t *testing.T) {
	node := newFakeNode()
	inst := runInstance(t, testFunction(3, streaming.TransportBulk), node, nil)

	negotiate(t, node, 1, 1, 0)
	waitFor(t, "streaming", func() bool { return inst.State() == StateStreaming })

	src := make([]byte, 8*4*3/2)
	for i := range src {
		src[i] = byte(i + 1)
	}
	want := make([]byte, 64)
	if n := formats.NV12ToYUYV(want, src, 8, 4); n != 64 {
		t.Fatalf("NV12ToYUYV = %d, want 64", n)
	}
	if !inst.Produce(buffer.Frame{Data: src, Width: 8, Height: 4, Format: formats.FormatNV12}) {
		t.Fatalf("Produce dropped an NV12 frame")
	}
	awaitFrame(t, node, want)
}

func TestEngineExtensionStreamClose(t *testing.T) {
	node := newFakeNode()
	inst := runInstance(t, testFunction(3, streaming.TransportIsochronous), node, nil)

	negotiate(t, node, 1, 1, 0)
	node.events <- v4l2.Event{Type: v4l2.EventStreamOn}
	waitFor(t, "streaming", func() bool { return inst.State() == StateStreaming })

	node.events <- setCur(requests.InterfaceControl, EntityExtensionUnit, uint8(descriptors.ExtensionUnitControlSelectorCommand), control.CommandSize)
	awaitResponse(t, node)
	cmd := make([]byte, 4)
	binary.LittleEndian.PutUint32(cmd, control.CommandStreamClose)
	node.events <- dataEvent(cmd)

	waitFor(t, "idle", func() bool { return inst.State() == StateIdle })
}

func TestEngineDisconnect(t *testing.T) {
	node := newFakeNode()
	inst := runInstance(t, testFunction(3, streaming.TransportIsochronous), node, nil)

	negotiate(t, node, 1, 1, 0)
	node.events <- v4l2.Event{Type: v4l2.EventStreamOn}
	waitFor(t, "streaming", func() bool { return inst.State() == StateStreaming })

	node.events <- v4l2.Event{Type: v4l2.EventDisconnect}
	waitFor(t, "closed", func() bool { return inst.State() == StateClosed })
	if on, _ := node.Streaming(); on {
		t.Errorf("node still streaming after disconnect")
	}

	node.events <- v4l2.Event{Type: v4l2.EventConnect, Speed: 3}
	waitFor(t, "idle", func() bool { return inst.State() == StateIdle })
}

func TestEngineShutdownWhileStreaming(t *testing.T) {
	node := newFakeNode()
	inst := runInstance(t, testFunction(3, streaming.TransportBulk), node, nil)

	negotiate(t, node, 1, 1, 0)
	waitFor(t, "streaming", func() bool { return inst.State() == StateStreaming })

	start := time.Now()
	inst.stop()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stop took %v", elapsed)
	}
	if err := inst.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	if s := inst.State(); s != StateClosed {
		t.Errorf("State() = %s, want closed", s)
	}
	if on, _ := node.Streaming(); on {
		t.Errorf("node still streaming after shutdown")
	}
}

func TestEngineDeviceRemoved(t *testing.T) {
	for _, streamFirst := range []bool{false, true} {
		node := newFakeNode()
		inst := runInstance(t, testFunction(3, streaming.TransportBulk), node, nil)
		if streamFirst {
			negotiate(t, node, 1, 1, 0)
			waitFor(t, "streaming", func() bool { return inst.State() == StateStreaming })
		}

		node.remove()
		select {
		case <-inst.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("engine kept running after device removal")
		}
		if !v4l2.IsDeviceRemoved(inst.Err()) {
			t.Errorf("Err() = %v, want device removed", inst.Err())
		}
		if s := inst.State(); s != StateClosed {
			t.Errorf("State() = %s, want closed", s)
		}
	}
}

func TestEngineBulkTimeoutFailsInstance(t *testing.T) {
	node := newFakeNode()
	node.hold.Store(true)
	opts := testOptions()
	opts.BulkTimeoutLimit = 3
	inst := newTestInstance(t, testFunction(3, streaming.TransportBulk), node, nil, opts)
	var restarts atomic.Int32
	inst.engine.onRestart = func() { restarts.Add(1) }
	startInstance(t, inst)

	negotiate(t, node, 1, 1, 0)
	select {
	case <-inst.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("engine kept running with a stalled bulk endpoint")
	}
	if !errors.Is(inst.Err(), ErrBulkStalled) {
		t.Errorf("Err() = %v, want ErrBulkStalled", inst.Err())
	}
	if n := restarts.Load(); n != 0 {
		t.Errorf("restart requests = %d, want 0", n)
	}
	if on, _ := node.Streaming(); on {
		t.Errorf("node still streaming after bulk stall")
	}
}

func TestWatchdogRestartsStalledStream(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t), testFunction(3, streaming.TransportBulk), newFakeNode(), nil, nil, buffer.NewChannel(nil, 0, nil), testOptions())
	e.setState(StateStreaming)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var restarts atomic.Int32
	go func() {
		defer close(done)
		watch(ctx, zaptest.NewLogger(t), e, 10*time.Millisecond, func() { restarts.Add(1) })
	}()
	waitFor(t, "watchdog restart", func() bool { return restarts.Load() > 0 })
	cancel()
	<-done
}

func TestStalled(t *testing.T) {
	prev := Stats{Queued: 4, Dequeued: 2, DataEvents: 5, Frames: 3, SetupEvents: 7}
	if !stalled(prev, prev) {
		t.Errorf("stalled(same) = false, want true")
	}
	tests := []struct {
		name string
		step func(*Stats)
		want bool
	}{
		{"dequeued", func(s *Stats) { s.Dequeued++ }, false},
		{"queued", func(s *Stats) { s.Queued++ }, false},
		{"data events", func(s *Stats) { s.DataEvents++ }, false},
		{"frames", func(s *Stats) { s.Frames++ }, false},
		{"setup events", func(s *Stats) { s.SetupEvents++ }, true},
	}
	for _, tt := range tests {
		cur := prev
		tt.step(&cur)
		if got := stalled(prev, cur); got != tt.want {
			t.Errorf("stalled(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
