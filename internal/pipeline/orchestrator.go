package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// TaskWorker drains the delayed queue until its context is cancelled.
type TaskWorker interface {
	Run(ctx context.Context) error
}

// CronSchedules holds the cron expressions for the periodic jobs.
type CronSchedules struct {
	Formulate string
	Reconcile string
	Archive   string
}

// Orchestrator runs the full pipeline: the queue worker plus the periodic
// formulate, reconcile, and archive jobs. Any job returning a non-cancel
// error brings the whole group down.
type Orchestrator struct {
	aggregator *Aggregator
	scheduler  *Scheduler
	reconciler *Reconciler
	archiver   *Archiver
	worker     TaskWorker
	schedules  CronSchedules
	logger     *slog.Logger
}

// NewOrchestrator wires the orchestrator. archiver may be nil when cold
// storage is disabled.
func NewOrchestrator(
	aggregator *Aggregator,
	scheduler *Scheduler,
	reconciler *Reconciler,
	archiver *Archiver,
	worker TaskWorker,
	schedules CronSchedules,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		aggregator: aggregator,
		scheduler:  scheduler,
		reconciler: reconciler,
		archiver:   archiver,
		worker:     worker,
		schedules:  schedules,
		logger:     logger.With(slog.String("component", "orchestrator")),
	}
}

// Formulate runs one aggregation pass followed by one scheduling pass.
func (o *Orchestrator) Formulate(ctx context.Context) error {
	if _, err := o.aggregator.FormulateOrders(ctx); err != nil {
		return err
	}
	return o.scheduler.Run(ctx)
}

// Reconcile runs one reconciliation pass.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	return o.reconciler.Run(ctx)
}

// Run blocks until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return o.worker.Run(ctx)
	})
	g.Go(func() error {
		return runCron(ctx, "formulate", o.schedules.Formulate, o.logger, o.Formulate)
	})
	g.Go(func() error {
		return runCron(ctx, "reconcile", o.schedules.Reconcile, o.logger, o.Reconcile)
	})
	if o.archiver != nil {
		g.Go(func() error {
			return runCron(ctx, "archive", o.schedules.Archive, o.logger, o.archiver.Run)
		})
	}

	o.logger.Info("pipeline started")
	return g.Wait()
}
