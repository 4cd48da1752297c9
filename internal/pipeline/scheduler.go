package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nouslabs/nous/internal/analysis"
	"github.com/nouslabs/nous/internal/domain"
)

// SchedulerConfig tunes how many actions one run may schedule and the trading
// parameters baked into each task.
type SchedulerConfig struct {
	RunCap       int
	OrderQty     int
	SafetyMargin float64
	AnalysisRate rate.Limit
}

// Scheduler walks created actions through the analysis gate and enqueues a
// delayed execution task for each one that survives. Analysis calls are
// throttled with a token bucket. One failing action never stops the run.
type Scheduler struct {
	store   domain.ActionStore
	gate    *analysis.Gate
	queue   domain.TaskQueue
	limiter *rate.Limiter
	cfg     SchedulerConfig
	logger  *slog.Logger
}

// NewScheduler wires the scheduler's collaborators.
func NewScheduler(store domain.ActionStore, gate *analysis.Gate, queue domain.TaskQueue, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.RunCap <= 0 {
		cfg.RunCap = 5
	}
	if cfg.OrderQty <= 0 {
		cfg.OrderQty = 1
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = 0.01
	}
	if cfg.AnalysisRate <= 0 {
		cfg.AnalysisRate = rate.Every(time.Second)
	}
	return &Scheduler{
		store:   store,
		gate:    gate,
		queue:   queue,
		limiter: rate.NewLimiter(cfg.AnalysisRate, 1),
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "scheduler")),
	}
}

// Run analyzes created actions in execute-time order until the per-run cap of
// scheduled actions is reached. Canceled actions do not count against the
// cap.
func (s *Scheduler) Run(ctx context.Context) error {
	created, err := s.store.ListByStatus(ctx, domain.StatusCreated)
	if err != nil {
		return fmt.Errorf("pipeline: list created actions: %w", err)
	}

	scheduled := 0
	for _, a := range created {
		if scheduled >= s.cfg.RunCap {
			break
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("pipeline: analysis throttle: %w", err)
		}

		status, err := s.gate.Evaluate(ctx, a)
		if err != nil {
			s.logger.Error("analysis failed",
				slog.String("action_id", a.ID),
				slog.String("symbol", a.Symbol),
				slog.String("error", err.Error()))
			continue
		}
		if status != domain.StatusOrderCreated {
			continue
		}

		if err := s.schedule(ctx, a); err != nil {
			s.logger.Error("schedule failed",
				slog.String("action_id", a.ID),
				slog.String("symbol", a.Symbol),
				slog.String("error", err.Error()))
			continue
		}
		scheduled++
	}

	s.logger.Info("schedule run complete",
		slog.Int("examined", len(created)),
		slog.Int("scheduled", scheduled))
	return nil
}

// schedule enqueues the delayed execution task and advances the action to
// scheduled. The task carries band multipliers, not absolute prices; the
// executor re-quotes at fire time.
func (s *Scheduler) schedule(ctx context.Context, a domain.Action) error {
	fresh, err := s.store.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	if fresh.Analysis == nil {
		return fmt.Errorf("pipeline: action %s has no analysis: %w", a.ID, domain.ErrStaleTransition)
	}

	upper, lower := domain.BandsForStance(fresh.Analysis.Stance)
	task := domain.Task{
		ID:          fresh.ID,
		Symbol:      fresh.Symbol,
		Amount:      s.cfg.OrderQty,
		Upper:       upper,
		Lower:       lower,
		LowerSafety: lower - s.cfg.SafetyMargin,
	}

	if err := s.queue.EnqueueAt(ctx, task, fresh.ExecuteTime); err != nil {
		return err
	}
	if err := s.store.MarkScheduled(ctx, fresh.ID); err != nil {
		return err
	}

	s.logger.Info("action scheduled",
		slog.String("action_id", fresh.ID),
		slog.String("symbol", fresh.Symbol),
		slog.Time("execute_time", fresh.ExecuteTime))
	return nil
}
