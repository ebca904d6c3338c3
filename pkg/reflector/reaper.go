package reflector

import (
	"context"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/logger"
)

// sweepLoop closes calls whose hang time has run out and, when a peer
// timeout is configured, removes silent peers
func (e *Engine) sweepLoop(ctx context.Context) {
	calls := time.NewTicker(e.cfg.SweepInterval)
	defer calls.Stop()

	var reap <-chan time.Time
	if e.cfg.Timeout > 0 {
		reaper := time.NewTicker(e.cfg.ReapInterval)
		defer reaper.Stop()
		reap = reaper.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-calls.C:
			e.expireCalls(now)
		case now := <-reap:
			e.reap(now)
		}
	}
}

func (e *Engine) expireCalls(now time.Time) {
	for _, p := range e.registry.Snapshot() {
		if call := p.ExpireTransmission(now); call != nil {
			e.log.Debug("Call timed out without terminator", logger.String("peer", p.Callsign))
			e.callEnded(p, call)
		}
	}
}

// reap removes every peer silent for longer than the timeout. One roster
// report is emitted per pass that removed anything.
func (e *Engine) reap(now time.Time) int {
	if e.cfg.Timeout <= 0 {
		return 0
	}
	removed := e.registry.RemoveExpired(e.cfg.Timeout, now)
	for _, p := range removed {
		e.log.Info("Removing peer due to inactivity",
			logger.String("callsign", p.Callsign),
			logger.Addr("addr", p.Address),
			logger.Duration("idle", now.Sub(p.LastActive())))
		if call := p.EndTransmission(now); call != nil {
			e.callEnded(p, call)
		}
	}
	if len(removed) > 0 {
		e.rosterChanged()
	}
	return len(removed)
}
