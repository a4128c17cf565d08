package settlement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/betx/exchange-engine/internal/store"
)

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	Interval   time.Duration // time between sweeps (default: 1m)
	RunTimeout time.Duration // deadline of one event's run (default: 2m)
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   time.Minute,
		RunTimeout: 2 * time.Minute,
	}
}

// Scheduler periodically settles every event that still has pending bets.
// Events are settled one after the other; each Settle already fans out
// over the feed.
type Scheduler struct {
	cfg    SchedulerConfig
	engine *Engine
	bets   store.BetStore
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg SchedulerConfig, engine *Engine, bets store.BetStore, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, engine: engine, bets: bets, logger: logger}
}

// Start begins the settlement loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("settlement scheduler started", "interval", s.cfg.Interval)
	return nil
}

// Stop waits for the current sweep to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("settlement scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep settles each event with pending bets once.
func (s *Scheduler) sweep() {
	start := time.Now()

	events, err := s.bets.PendingEventIDs(s.ctx)
	if err != nil {
		s.logger.Error("list pending events", "err", err)
		return
	}
	if len(events) == 0 {
		s.logger.Debug("no pending events to settle")
		return
	}

	var settled, failed int
	for _, eventID := range events {
		if s.ctx.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RunTimeout)
		report, err := s.engine.Settle(ctx, eventID)
		cancel()
		if err != nil {
			failed++
			s.logger.Error("settlement run failed", "event_id", eventID, "err", err)
			continue
		}
		settled += report.Settled()
	}

	s.logger.Info("settlement sweep complete",
		"events", len(events),
		"bets_settled", settled,
		"failed_events", failed,
		"duration", time.Since(start),
	)
}
