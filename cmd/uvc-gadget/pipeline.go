//go:build linux

package main

import (
	"context"
	"sync"
	"time"

	"github.com/kevmo314/go-uvc-gadget"
	"github.com/kevmo314/go-uvc-gadget/pkg/camera"
	"github.com/kevmo314/go-uvc-gadget/pkg/source"
	"go.uber.org/zap"
)

const producerRetryDelay = time.Second

// pipelines runs one producer per instance and restarts them on request.
type pipelines struct {
	logger      *zap.Logger
	newProducer func(*uvc.Instance) source.Producer

	mu      sync.Mutex
	running map[camera.Role][]chan struct{}
}

func newPipelines(logger *zap.Logger, newProducer func(*uvc.Instance) source.Producer) *pipelines {
	return &pipelines{
		logger:      logger,
		newProducer: newProducer,
		running:     make(map[camera.Role][]chan struct{}),
	}
}

func (p *pipelines) attach(ctx context.Context, inst *uvc.Instance) {
	if p.newProducer == nil {
		return
	}
	restart := make(chan struct{}, 1)
	role := inst.Function.Role

	p.mu.Lock()
	p.running[role] = append(p.running[role], restart)
	p.mu.Unlock()

	go func() {
		defer p.detach(role, restart)
		p.run(ctx, inst, restart)
	}()
}

func (p *pipelines) detach(role camera.Role, restart chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	chans := p.running[role]
	for i, c := range chans {
		if c == restart {
			p.running[role] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
}

func (p *pipelines) run(ctx context.Context, inst *uvc.Instance, restart <-chan struct{}) {
	logger := p.logger.With(zap.Int("instance", inst.ID()), zap.Stringer("role", inst.Function.Role))
	for {
		pctx, cancel := context.WithCancel(ctx)
		errc := make(chan error, 1)
		go func() { errc <- p.newProducer(inst).Run(pctx, inst) }()

		select {
		case <-ctx.Done():
			cancel()
			<-errc
			return
		case <-restart:
			logger.Warn("restarting producer")
			cancel()
			<-errc
		case err := <-errc:
			cancel()
			if ctx.Err() != nil {
				return
			}
			logger.Warn("producer exited", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(producerRetryDelay):
			}
		}
	}
}

// restart restarts every producer feeding an instance of role.
func (p *pipelines) restart(role camera.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.running[role] {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}
