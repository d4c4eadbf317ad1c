package uvc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kevmo314/go-uvc-gadget/pkg/buffer"
	"github.com/kevmo314/go-uvc-gadget/pkg/camera"
	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
	"github.com/kevmo314/go-uvc-gadget/pkg/hooks"
	"go.uber.org/zap"
)

// Instance is one running gadget function: its node, engine and buffer
// channel. Producers feed it through Produce.
type Instance struct {
	Function camera.Function
	// Session identifies this run of the function in logs. It changes on
	// every restart.
	Session uuid.UUID

	logger  *zap.Logger
	node    Node
	hooks   hooks.Hooks
	engine  *Engine
	channel *buffer.Channel

	mu     sync.Mutex
	mirror uint8
	crop   bool

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newInstance(logger *zap.Logger, fn camera.Function, node Node, h hooks.Hooks, opts Options) *Instance {
	if h == nil {
		h = hooks.Nop{}
	}
	session := uuid.New()
	logger = logger.With(
		zap.Int("instance", fn.ID),
		zap.String("function", fn.Name),
		zap.String("session", session.String()))

	inst := &Instance{
		Function: fn,
		Session:  session,
		logger:   logger,
		node:     node,
		hooks:    h,
		done:     make(chan struct{}),
	}
	inst.channel = buffer.NewChannel(logger.Named("buffer"), opts.StallThreshold, func() {
		h.RestartPipeline(fn.Role)
	})
	inst.engine = NewEngine(logger.Named("engine"), fn, node, h, inst, inst.channel, opts)
	return inst
}

// start runs the engine and the watchdog until ctx is done or the engine
// exits.
func (i *Instance) start(ctx context.Context, period time.Duration) {
	ctx, i.cancel = context.WithCancel(ctx)
	i.hooks.OpenCamera(i.Function.ID)
	go watch(ctx, i.logger.Named("watchdog"), i.engine, period, func() {
		i.hooks.RestartPipeline(i.Function.Role)
	})
	go func() {
		defer close(i.done)
		i.err = i.engine.Run(ctx)
		i.cancel()
		i.channel.Close()
		i.hooks.CloseCamera(i.Function.ID)
		if i.err != nil {
			i.logger.Error("instance stopped", zap.Error(i.err))
		} else {
			i.logger.Info("instance stopped")
		}
	}()
}

// stop shuts the engine down and waits for it.
func (i *Instance) stop() {
	i.engine.Shutdown()
	<-i.done
}

func (i *Instance) ID() int { return i.Function.ID }

// Done is closed when the instance's engine has exited.
func (i *Instance) Done() <-chan struct{} { return i.done }

// Err returns the error the engine exited with. It is valid after Done.
func (i *Instance) Err() error { return i.err }

func (i *Instance) State() State { return i.engine.State() }

func (i *Instance) Stats() Stats { return i.engine.Stats() }

func (i *Instance) BufferStats() buffer.Stats { return i.channel.Stats() }

// Output returns the committed format as a fourcc and resolution. It is all
// zeros before the first commit.
func (i *Instance) Output() (fourcc uint32, width, height uint16) {
	sel, ok := i.engine.Selection()
	if !ok {
		return 0, 0, 0
	}
	return sel.Format.FourCC(), sel.Width, sel.Height
}

// Negotiated returns the committed format for producers.
func (i *Instance) Negotiated() (f formats.Format, width, height uint16, ok bool) {
	sel, ok := i.engine.Selection()
	return sel.Format, sel.Width, sel.Height, ok
}

// Produce offers a frame to the engine. It returns false if the frame was
// dropped.
func (i *Instance) Produce(f buffer.Frame) bool {
	return i.channel.Produce(f)
}

func (i *Instance) SetMirror(mode uint8) {
	i.mu.Lock()
	i.mirror = mode
	i.mu.Unlock()
}

func (i *Instance) Mirror() uint8 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mirror
}

func (i *Instance) SetDigitalCrop(on bool) {
	i.mu.Lock()
	i.crop = on
	i.mu.Unlock()
	i.logger.Info("digital crop", zap.Bool("enabled", on))
}

func (i *Instance) DigitalCrop() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.crop
}

func (i *Instance) StopStream() { i.engine.requestStreamOff() }

func (i *Instance) RequestRestart() { i.engine.requestRestart() }
