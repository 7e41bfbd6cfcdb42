package timer

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Runner ticks an Engine on a fixed interval until its context ends.
type Runner struct {
	Engine   *Engine
	Interval time.Duration
	Logger   hclog.Logger
	// OnTick, when set, sees every tick that touched an item.
	OnTick func(TickResult)
}

func (r *Runner) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	logger := r.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Debug("timer runner started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("timer runner stopped")
			return ctx.Err()
		case <-ticker.C:
			res := r.Engine.Tick()
			if res.ItemID == "" {
				continue
			}
			if res.Completed {
				logger.Info("session completed", "item", res.ItemID)
			}
			if r.OnTick != nil {
				r.OnTick(res)
			}
		}
	}
}
