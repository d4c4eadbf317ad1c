package uvc

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// watch calls restart whenever a streaming engine makes no buffer progress
// for a whole period.
func watch(ctx context.Context, logger *zap.Logger, e *Engine, period time.Duration, restart func()) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var last Stats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cur := e.Stats()
		if e.State() == StateStreaming && stalled(last, cur) {
			logger.Warn("no buffer progress while streaming, restarting pipeline",
				zap.Duration("period", period),
				zap.Uint64("queued", cur.Queued),
				zap.Uint64("data_events", cur.DataEvents),
				zap.Uint64("frames", cur.Frames))
			restart()
		}
		last = cur
	}
}

// stalled reports whether neither the kernel queue, the host's data phases
// nor the producer moved between two samples.
func stalled(prev, cur Stats) bool {
	return prev.Queued == cur.Queued && prev.Dequeued == cur.Dequeued &&
		prev.DataEvents == cur.DataEvents && prev.Frames == cur.Frames
}
