package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"coderoom/internal/generationlog"
	"coderoom/internal/session"
)

const jobTimeout = time.Minute

// Pruner deletes generation records older than a cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Summary(ctx context.Context, since time.Time) (map[generationlog.Status]int64, error)
}

// StatsSource reports hub occupancy.
type StatsSource interface {
	Stats() session.Stats
}

// Config contains the schedules for maintenance jobs
type Config struct {
	PruneSchedule string        // cron spec, e.g. "0 3 * * *"
	StatsSchedule string        // cron spec, e.g. "@every 5m"
	Retention     time.Duration // generation records older than this are pruned
}

// Scheduler runs periodic maintenance: generation log pruning and hub stats.
type Scheduler struct {
	cron   *cron.Cron
	config Config
	pruner Pruner
	stats  StatsSource
	logger *zap.Logger
	now    func() time.Time
}

// pruner may be nil when the generation log is disabled.
func NewScheduler(config Config, pruner Pruner, stats StatsSource, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		config: config,
		pruner: pruner,
		stats:  stats,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.pruner != nil && s.config.PruneSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.PruneSchedule, func() {
			if _, err := s.RunPrune(); err != nil {
				s.logger.Error("prune job failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule prune job: %w", err)
		}
	}

	if s.config.StatsSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.StatsSchedule, s.RunStats); err != nil {
			return fmt.Errorf("failed to schedule stats job: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("prune_schedule", s.config.PruneSchedule),
		zap.String("stats_schedule", s.config.StatsSchedule),
		zap.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop stops scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunPrune removes generation records past retention.
func (s *Scheduler) RunPrune() (int64, error) {
	if s.pruner == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.config.Retention)
	removed, err := s.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info("pruned generation records", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	return removed, nil
}

// RunStats logs hub occupancy and, when available, the last day of
// generation outcomes.
func (s *Scheduler) RunStats() {
	stats := s.stats.Stats()
	fields := []zap.Field{
		zap.Int("rooms", stats.Rooms),
		zap.Int("connections", stats.Connections),
		zap.Int("members", stats.Members),
		zap.Int("generating", stats.Generating),
	}

	if s.pruner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		summary, err := s.pruner.Summary(ctx, s.now().Add(-24*time.Hour))
		if err != nil {
			s.logger.Warn("failed to summarise generations", zap.Error(err))
		} else {
			for status, count := range summary {
				fields = append(fields, zap.Int64("generations_"+string(status), count))
			}
		}
	}

	s.logger.Info("hub stats", fields...)
}
