package uvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kevmo314/go-uvc-gadget/pkg/camera"
	"github.com/kevmo314/go-uvc-gadget/pkg/hooks"
	"go.uber.org/zap"
)

// Registry owns the running instances, keyed by function ID and kept in the
// order they were added.
type Registry struct {
	logger *zap.Logger
	hooks  hooks.Hooks
	opts   Options

	mu        sync.Mutex
	instances map[int]*Instance
	order     []int
	starting  map[int]bool
	onRestart func()
}

func NewRegistry(logger *zap.Logger, h hooks.Hooks, opts Options) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if h == nil {
		h = hooks.Nop{}
	}
	return &Registry{
		logger:    logger,
		hooks:     h,
		opts:      opts.withDefaults(),
		instances: make(map[int]*Instance),
		starting:  make(map[int]bool),
	}
}

// OnRestart sets the callback instances use to request a full restart.
func (r *Registry) OnRestart(f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRestart = f
}

func (r *Registry) requestRestart() {
	r.mu.Lock()
	f := r.onRestart
	r.mu.Unlock()
	if f != nil {
		f()
	}
}

// Add opens fn's video node and starts an instance for it. It returns once
// the instance's event subscriptions are installed, or ErrReadyTimeout.
func (r *Registry) Add(fn camera.Function) (int, error) {
	r.mu.Lock()
	if _, ok := r.instances[fn.ID]; ok || r.starting[fn.ID] {
		r.mu.Unlock()
		return 0, fmt.Errorf("video%d: %w", fn.ID, ErrDuplicateInstance)
	}
	r.starting[fn.ID] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.starting, fn.ID)
		r.mu.Unlock()
	}()

	node, err := r.opts.Open(fn.DevicePath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", fn.DevicePath, err)
	}

	inst := newInstance(r.logger, fn, node, r.hooks, r.opts)
	inst.engine.onRestart = r.requestRestart
	inst.start(context.Background(), r.opts.WatchdogPeriod)

	timer := time.NewTimer(r.opts.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-inst.engine.Ready():
	case <-inst.Done():
		node.Close()
		return 0, fmt.Errorf("start %s: %w", fn, inst.Err())
	case <-timer.C:
		inst.stop()
		node.Close()
		return 0, fmt.Errorf("start %s: %w", fn, ErrReadyTimeout)
	}

	r.mu.Lock()
	r.instances[fn.ID] = inst
	r.order = append(r.order, fn.ID)
	r.mu.Unlock()

	r.logger.Info("instance added",
		zap.Int("id", fn.ID),
		zap.String("function", fn.Name),
		zap.Stringer("role", fn.Role),
		zap.String("device", fn.DevicePath))
	return fn.ID, nil
}

// Remove shuts the instance down, waits for its goroutines and closes its
// node.
func (r *Registry) Remove(id int) error {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("video%d: %w", id, ErrUnknownInstance)
	}
	delete(r.instances, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	inst.stop()
	if err := inst.node.Close(); err != nil {
		r.logger.Warn("close node failed", zap.Int("id", id), zap.Error(err))
	}
	r.logger.Info("instance removed", zap.Int("id", id))
	return nil
}

// RemoveAll removes every instance in the order they were added.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	ids := append([]int(nil), r.order...)
	r.mu.Unlock()
	for _, id := range ids {
		if err := r.Remove(id); err != nil {
			r.logger.Debug("instance already removed", zap.Int("id", id))
		}
	}
}

// Get returns the ID of the seq'th instance in insertion order.
func (r *Registry) Get(seq int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq < 0 || seq >= len(r.order) {
		return 0, false
	}
	return r.order[seq], true
}

func (r *Registry) Lookup(id int) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// ForEach calls f for each instance present when it is called, in insertion
// order. f may add or remove instances.
func (r *Registry) ForEach(f func(*Instance)) {
	r.mu.Lock()
	snapshot := make([]*Instance, 0, len(r.order))
	for _, id := range r.order {
		snapshot = append(snapshot, r.instances[id])
	}
	r.mu.Unlock()
	for _, inst := range snapshot {
		f(inst)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
