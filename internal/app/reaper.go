package app

import (
	"context"
	"time"

	"github.com/dkeye/CallRelay/internal/core"
	"github.com/rs/zerolog/log"
)

// Reaper periodically ends sessions that saw no activity for MaxIdle.
// Removal side effects (metrics, watcher shutdown) run through the store's evict hook.
type Reaper struct {
	Store    core.SessionStore
	Interval time.Duration
	MaxIdle  time.Duration
}

func NewReaper(store core.SessionStore, interval, maxIdle time.Duration) *Reaper {
	return &Reaper{Store: store, Interval: interval, MaxIdle: maxIdle}
}

// SweepOnce runs a single pass and returns how many sessions were removed.
func (r *Reaper) SweepOnce() int {
	n := r.Store.SweepExpired(r.MaxIdle)
	if n > 0 {
		log.Info().Str("module", "app.reaper").Int("expired", n).Int("remaining", r.Store.Len()).Msg("reaped idle sessions")
	}
	return n
}

// Run sweeps every Interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	log.Info().Str("module", "app.reaper").Dur("interval", r.Interval).Dur("max_idle", r.MaxIdle).Msg("reaper started")
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.reaper").Msg("reaper stopped")
			return nil
		case <-t.C:
			r.SweepOnce()
		}
	}
}
