// Package scheduler periodically checks installed apps for updates and,
// when configured, applies the ones that are available and compatible.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/planner"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
)

// Planner is the part of the update planner the scheduler drives
type Planner interface {
	CheckForUpdate(ctx context.Context, appID string) (*planner.UpdateCheck, error)
	Update(ctx context.Context, appID string) (*planner.Result, error)
}

// Lister enumerates installed apps
type Lister interface {
	List() []registry.AppRecord
}

// Config controls the check loop
type Config struct {
	Interval    time.Duration
	Concurrency int
	AutoUpdate  bool
}

// Summary counts the outcome of one sweep
type Summary struct {
	Checked   int `json:"checked"`
	Available int `json:"available"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Scheduler runs update sweeps
type Scheduler struct {
	planner Planner
	apps    Lister
	cfg     Config
	logger  *zap.Logger

	mu   sync.Mutex
	last *Summary
	at   time.Time
}

// New creates a scheduler
func New(p Planner, apps Lister, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &Scheduler{planner: p, apps: apps, cfg: cfg, logger: logger}
}

// Run sweeps every interval until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Update scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("concurrency", s.cfg.Concurrency),
		zap.Bool("auto_update", s.cfg.AutoUpdate))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Update scheduler stopped")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce checks every installed app that has an update url
func (s *Scheduler) RunOnce(ctx context.Context) Summary {
	var (
		mu      sync.Mutex
		summary Summary
	)
	count := func(fn func(*Summary)) {
		mu.Lock()
		defer mu.Unlock()
		fn(&summary)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, rec := range s.apps.List() {
		if rec.State != registry.StateInstalled || rec.UpdateURL == "" {
			continue
		}
		appID := rec.ID
		g.Go(func() error {
			s.sweep(gctx, appID, count)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	s.last = &summary
	s.at = time.Now()
	s.mu.Unlock()

	s.logger.Info("Update sweep finished",
		zap.Int("checked", summary.Checked),
		zap.Int("available", summary.Available),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary
}

// Last returns the summary of the most recent sweep
func (s *Scheduler) Last() (Summary, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Summary{}, time.Time{}, false
	}
	return *s.last, s.at, true
}

func (s *Scheduler) sweep(ctx context.Context, appID string, count func(func(*Summary))) {
	log := s.logger.With(zap.String("app_id", appID))

	check, err := s.planner.CheckForUpdate(ctx, appID)
	if err != nil {
		log.Warn("Update check failed", zap.String("kind", string(planner.KindOf(err))), zap.Error(err))
		count(func(sm *Summary) { sm.Failed++ })
		return
	}
	count(func(sm *Summary) { sm.Checked++ })

	if !check.Available || !check.Compatible {
		return
	}
	count(func(sm *Summary) { sm.Available++ })
	if !s.cfg.AutoUpdate {
		return
	}

	_, err = s.planner.Update(ctx, appID)
	switch planner.KindOf(err) {
	case "":
		count(func(sm *Summary) { sm.Updated++ })
	case planner.KindConflict:
		log.Debug("App busy, skipping update")
		count(func(sm *Summary) { sm.Skipped++ })
	default:
		log.Warn("Automatic update failed", zap.Error(err))
		count(func(sm *Summary) { sm.Failed++ })
	}
}
