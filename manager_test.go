package uvc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevmo314/go-uvc-gadget/pkg/camera"
	"github.com/kevmo314/go-uvc-gadget/pkg/configfs"
	"go.uber.org/zap/zaptest"
)

// lateDiscoverer reports no functions for its first misses calls.
type lateDiscoverer struct {
	misses atomic.Int32
	fns    []camera.Function
}

func (d *lateDiscoverer) Discover() ([]camera.Function, error) {
	if d.misses.Add(-1) >= 0 {
		return nil, configfs.ErrNoFunctions
	}
	return d.fns, nil
}

func TestStaticFunctionsEmpty(t *testing.T) {
	if _, err := StaticFunctions(nil).Discover(); err != configfs.ErrNoFunctions {
		t.Errorf("Discover() = %v, want ErrNoFunctions", err)
	}
}

type managerRun struct {
	registry *Registry
	nodes    *fakeNodes
	mu       sync.Mutex
	started  map[int]int
	cancel   context.CancelFunc
	done     chan error
}

func startManager(t *testing.T, misses int32, fns ...camera.Function) *managerRun {
	t.Helper()
	mr := &managerRun{nodes: &fakeNodes{}, started: make(map[int]int), done: make(chan error, 1)}
	opts := testOptions()
	opts.Open = mr.nodes.open
	mr.registry = NewRegistry(zaptest.NewLogger(t), nil, opts)

	d := &lateDiscoverer{fns: fns}
	d.misses.Store(misses)
	m := NewManager(zaptest.NewLogger(t), mr.registry, d, 10*time.Millisecond)
	m.OnInstance = func(ctx context.Context, inst *Instance) {
		mr.mu.Lock()
		defer mr.mu.Unlock()
		mr.started[inst.ID()]++
	}

	ctx, cancel := context.WithCancel(context.Background())
	mr.cancel = cancel
	go func() { mr.done <- m.Run(ctx) }()
	return mr
}

func (mr *managerRun) count(id int) int {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return mr.started[id]
}

func (mr *managerRun) stop(t *testing.T) {
	t.Helper()
	mr.cancel()
	if err := <-mr.done; err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
	if n := mr.registry.Len(); n != 0 {
		t.Errorf("Len() after Run = %d, want 0", n)
	}
}

func TestManagerDiscoversAndRestarts(t *testing.T) {
	mr := startManager(t, 2, functionAt(2), functionAt(3))
	r := mr.registry

	waitFor(t, "discovery", func() bool { return r.Len() == 2 })
	if id, ok := r.Get(0); !ok || id != 2 {
		t.Errorf("Get(0) = %d, %v, want 2, true", id, ok)
	}

	// An extension unit restart command reaches the manager through the
	// registry and rebuilds every instance.
	inst, _ := r.Lookup(2)
	inst.RequestRestart()
	waitFor(t, "restart", func() bool { return mr.count(2) == 2 && mr.count(3) == 2 && r.Len() == 2 })

	mr.stop(t)
}

func TestManagerRebuildsOnlyFailedInstance(t *testing.T) {
	mr := startManager(t, 0, functionAt(2), functionAt(3))
	r := mr.registry

	waitFor(t, "discovery", func() bool { return r.Len() == 2 })
	sibling, _ := r.Lookup(2)
	failed, _ := r.Lookup(3)

	mr.nodes.get("/dev/video3").remove()
	waitFor(t, "rebuild", func() bool {
		cur, ok := r.Lookup(3)
		return ok && cur != failed && mr.count(3) == 2
	})

	select {
	case <-sibling.Done():
		t.Fatalf("instance 2 stopped after instance 3 lost its node: %v", sibling.Err())
	case <-time.After(100 * time.Millisecond):
	}
	if cur, ok := r.Lookup(2); !ok || cur != sibling {
		t.Errorf("instance 2 was replaced")
	}
	if n := mr.count(2); n != 1 {
		t.Errorf("instance 2 started %d times, want 1", n)
	}

	mr.stop(t)
}
