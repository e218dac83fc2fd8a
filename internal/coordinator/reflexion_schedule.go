package coordinator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ReflexionSchedule runs the Reflexion sweep every
// cfg.ReflexionIntervalMinutes until ctx is canceled or Stop is called.
// An interval of zero disables the sweep entirely (spec §4.5.3). Meant
// to be launched with `go c.ReflexionSchedule(ctx)`.
func (c *Coordinator) ReflexionSchedule(ctx context.Context) {
	c.mu.RLock()
	minutes := c.cfg.ReflexionIntervalMinutes
	c.mu.RUnlock()
	if minutes <= 0 {
		return
	}

	c.mu.Lock()
	if c.reflexionStop == nil {
		c.reflexionStop = make(chan struct{})
	}
	stop := c.reflexionStop
	c.mu.Unlock()

	ticker := time.NewTicker(time.Duration(minutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			c.mu.RLock()
			reflexion := c.reflexion
			c.mu.RUnlock()
			if err := reflexion.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("coordinator: reflexion sweep failed")
			}
		}
	}
}

// StopReflexionSchedule signals a running ReflexionSchedule goroutine to
// return.
func (c *Coordinator) StopReflexionSchedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reflexionStop != nil {
		close(c.reflexionStop)
		c.reflexionStop = nil
	}
}
