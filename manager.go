package uvc

import (
	"context"
	"errors"
	"time"

	"github.com/kevmo314/go-uvc-gadget/pkg/camera"
	"github.com/kevmo314/go-uvc-gadget/pkg/configfs"
	"github.com/kevmo314/go-uvc-gadget/pkg/v4l2"
	"go.uber.org/zap"
)

// Discoverer returns the currently configured gadget functions.
// *configfs.Scanner implements it.
type Discoverer interface {
	Discover() ([]camera.Function, error)
}

// StaticFunctions is a fixed function list.
type StaticFunctions []camera.Function

func (s StaticFunctions) Discover() ([]camera.Function, error) {
	if len(s) == 0 {
		return nil, configfs.ErrNoFunctions
	}
	return s, nil
}

// Manager keeps the registry in step with the configured gadget functions.
type Manager struct {
	logger     *zap.Logger
	registry   *Registry
	discoverer Discoverer
	interval   time.Duration
	restart    chan struct{}
	resync     chan struct{}

	// OnInstance is called for each started instance. ctx is cancelled when
	// the instance stops.
	OnInstance func(ctx context.Context, inst *Instance)
}

func NewManager(logger *zap.Logger, registry *Registry, d Discoverer, interval time.Duration) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:     logger,
		registry:   registry,
		discoverer: d,
		interval:   interval,
		restart:    make(chan struct{}, 1),
		resync:     make(chan struct{}, 1),
	}
	registry.OnRestart(m.Restart)
	return m
}

// Restart asks Run to tear every instance down and rediscover. It does not
// block.
func (m *Manager) Restart() {
	select {
	case m.restart <- struct{}{}:
	default:
	}
}

// rebuild asks Run to replace failed instances without waiting for the next
// tick. Healthy instances are left alone.
func (m *Manager) rebuild() {
	select {
	case m.resync <- struct{}{}:
	default:
	}
}

// Run discovers functions every interval until ctx is done, then removes
// all instances.
func (m *Manager) Run(ctx context.Context) error {
	defer m.registry.RemoveAll()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sync(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.restart:
			m.logger.Warn("restarting all instances")
			m.registry.RemoveAll()
			m.sync(ctx)
		case <-m.resync:
			m.sync(ctx)
		case <-ticker.C:
			m.sync(ctx)
		}
	}
}

func (m *Manager) sync(ctx context.Context) {
	fns, err := m.discoverer.Discover()
	if err != nil {
		if errors.Is(err, configfs.ErrNoFunctions) {
			m.logger.Info("no gadget functions configured, retrying", zap.Duration("interval", m.interval))
		} else {
			m.logger.Warn("discovery failed", zap.Error(err))
		}
		return
	}

	want := make(map[int]bool, len(fns))
	for _, fn := range fns {
		want[fn.ID] = true
	}
	var stale []int
	m.registry.ForEach(func(inst *Instance) {
		select {
		case <-inst.Done():
			stale = append(stale, inst.ID())
			return
		default:
		}
		if !want[inst.ID()] {
			stale = append(stale, inst.ID())
		}
	})
	for _, id := range stale {
		m.registry.Remove(id)
	}

	for _, fn := range fns {
		if _, ok := m.registry.Lookup(fn.ID); ok {
			continue
		}
		if _, err := m.registry.Add(fn); err != nil {
			m.logger.Warn("instance failed to start", zap.Stringer("function", fn), zap.Error(err))
			continue
		}
		inst, ok := m.registry.Lookup(fn.ID)
		if !ok {
			continue
		}
		m.attach(ctx, inst)
	}
}

func (m *Manager) attach(ctx context.Context, inst *Instance) {
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		select {
		case <-inst.Done():
		case <-ictx.Done():
			return
		}
		switch err := inst.Err(); {
		case v4l2.IsDeviceRemoved(err):
			m.logger.Warn("gadget node removed, rebuilding instance", zap.Stringer("function", inst.Function))
			m.rebuild()
		case err != nil:
			m.logger.Warn("instance failed, rebuilding", zap.Stringer("function", inst.Function), zap.Error(err))
			m.rebuild()
		}
	}()
	if m.OnInstance != nil {
		m.OnInstance(ictx, inst)
	}
}
