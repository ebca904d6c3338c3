package database

import (
	"context"
	"sync"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

const (
	// MinCallDuration is the shortest call worth keeping; anything shorter
	// is a key-up or a duplicate stream
	MinCallDuration = 500 * time.Millisecond

	recorderQueueSize      = 256
	defaultCleanupInterval = time.Hour
)

// RecorderConfig controls the call recorder
type RecorderConfig struct {
	// Retention is how long calls are kept; zero keeps them forever
	Retention       time.Duration
	CleanupInterval time.Duration
}

// CallRecorder is a report sink that stores finished calls
type CallRecorder struct {
	repo   *CallRepository
	cfg    RecorderConfig
	logger *logger.Logger
	queue  chan report.Report

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

var _ report.Sink = (*CallRecorder)(nil)

// NewCallRecorder creates a recorder writing to repo
func NewCallRecorder(repo *CallRepository, cfg RecorderConfig, log *logger.Logger) *CallRecorder {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	return &CallRecorder{
		repo:   repo,
		cfg:    cfg,
		logger: log.WithComponent("database.recorder"),
		queue:  make(chan report.Report, recorderQueueSize),
	}
}

// Send queues CallEnd reports for storage. It never blocks; reports are
// dropped when the queue is full.
func (r *CallRecorder) Send(rep report.Report) {
	if rep.Type != report.CallEnd {
		return
	}
	select {
	case r.queue <- rep:
	default:
		r.logger.Warn("Call recorder queue full, dropping call",
			logger.String("mode", rep.Mode.String()),
			logger.String("src", rep.SrcID))
	}
}

// Start runs the writer and the retention cleanup until ctx is done
func (r *CallRecorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Wait blocks until the recorder stopped and the queue was drained
func (r *CallRecorder) Wait() {
	r.wg.Wait()
}

func (r *CallRecorder) run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	r.cleanup(time.Now())
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case rep := <-r.queue:
			r.record(rep)
		case now := <-ticker.C:
			r.cleanup(now)
		}
	}
}

func (r *CallRecorder) drain() {
	for {
		select {
		case rep := <-r.queue:
			r.record(rep)
		default:
			return
		}
	}
}

func (r *CallRecorder) record(rep report.Report) {
	if rep.Duration < MinCallDuration {
		r.logger.Debug("Skipped saving very short call",
			logger.String("src", rep.SrcID),
			logger.Duration("duration", rep.Duration),
			logger.Int("frames", rep.Frames))
		return
	}

	end := rep.DateTime
	if end.IsZero() {
		end = time.Now()
	}
	c := &Call{
		Mode:      rep.Mode.String(),
		SrcID:     rep.SrcID,
		DstID:     rep.DstID,
		Peer:      rep.Peer,
		StreamID:  rep.StreamID,
		Duration:  rep.Duration.Seconds(),
		Frames:    rep.Frames,
		StartTime: end.Add(-rep.Duration),
		EndTime:   end,
	}
	if err := r.repo.Create(c); err != nil {
		r.logger.Error("Failed to save call",
			logger.Error(err),
			logger.Uint32("stream_id", rep.StreamID))
		return
	}
	r.logger.Debug("Saved call",
		logger.String("mode", c.Mode),
		logger.String("src", c.SrcID),
		logger.String("dst", c.DstID),
		logger.Float64("duration", c.Duration))
}

func (r *CallRecorder) cleanup(now time.Time) {
	if r.cfg.Retention <= 0 {
		return
	}
	n, err := r.repo.DeleteOlderThan(now.Add(-r.cfg.Retention))
	if err != nil {
		r.logger.Error("Failed to delete old calls", logger.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("Deleted old calls", logger.Int64("count", n))
	}
}
