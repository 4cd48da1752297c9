package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nouslabs/nous/internal/analysis"
	"github.com/nouslabs/nous/internal/pipeline"
	redisq "github.com/nouslabs/nous/internal/queue/redis"
	"github.com/nouslabs/nous/internal/server"
	"github.com/nouslabs/nous/internal/server/handler"
)

// stages holds the pipeline components built from wired dependencies.
type stages struct {
	aggregator *pipeline.Aggregator
	scheduler  *pipeline.Scheduler
	executor   *pipeline.Executor
	reconciler *pipeline.Reconciler
	archiver   *pipeline.Archiver
}

// buildStages constructs the pipeline stages shared by the operating modes.
func (a *App) buildStages(deps *Dependencies) stages {
	gate := analysis.NewGate(
		deps.News,
		deps.Gemini,
		deps.Store,
		time.Duration(a.cfg.News.LookbackDays)*24*time.Hour,
		a.logger,
	)

	aggregator := pipeline.NewAggregator(deps.Finnhub, deps.Alpaca, deps.Store,
		pipeline.AggregatorConfig{
			LookaheadDays:  a.cfg.Finnhub.LookaheadDays,
			CandidateLimit: a.cfg.Trading.CandidateLimit,
			MarketOffset:   a.cfg.MarketOffset(),
		}, a.logger)

	scheduler := pipeline.NewScheduler(deps.Store, gate, deps.Queue,
		pipeline.SchedulerConfig{
			RunCap:       a.cfg.Trading.RunCap,
			OrderQty:     a.cfg.Trading.OrderQty,
			SafetyMargin: a.cfg.Trading.SafetyMargin,
		}, a.logger)

	executor := pipeline.NewExecutor(deps.Store, deps.Alpaca, deps.RateLimiter,
		pipeline.ExecutorConfig{}, a.logger)

	var poster pipeline.Poster
	if deps.Notifier != nil {
		poster = deps.Notifier
	}
	reconciler := pipeline.NewReconciler(deps.Store, deps.Alpaca, poster, a.logger)

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Schedule.ArchiveRetentionDays, a.logger)
	}

	return stages{
		aggregator: aggregator,
		scheduler:  scheduler,
		executor:   executor,
		reconciler: reconciler,
		archiver:   archiver,
	}
}

// RunMode starts the full pipeline: the queue worker, the periodic formulate,
// reconcile, and archive jobs, and the HTTP API when enabled.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting run mode")

	st := a.buildStages(deps)

	worker := redisq.NewWorker(deps.Queue, st.executor.HandleTask,
		redisq.WorkerConfig{
			MaxAttempts:    a.cfg.Queue.MaxAttempts,
			RetryMinWait:   a.cfg.Queue.RetryMinWait.Duration,
			MaxConcurrency: a.cfg.Queue.MaxConcurrency,
			PollInterval:   a.cfg.Queue.PollInterval.Duration,
		}, a.logger)

	orch := pipeline.NewOrchestrator(
		st.aggregator, st.scheduler, st.reconciler, st.archiver, worker,
		pipeline.CronSchedules{
			Formulate: a.cfg.Schedule.FormulateCron,
			Reconcile: a.cfg.Schedule.ReconcileCron,
			Archive:   a.cfg.Schedule.ArchiveCron,
		}, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(ctx) })

	if a.cfg.Server.Enabled {
		g.Go(func() error { return a.runServer(ctx, deps, st) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// ScheduleMode runs one aggregation and scheduling pass, then exits.
func (a *App) ScheduleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting schedule mode")

	st := a.buildStages(deps)
	if _, err := st.aggregator.FormulateOrders(ctx); err != nil {
		return err
	}
	return st.scheduler.Run(ctx)
}

// ReconcileMode runs one reconciliation pass, then exits.
func (a *App) ReconcileMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting reconcile mode")

	st := a.buildStages(deps)
	return st.reconciler.Run(ctx)
}

// ServeMode runs only the HTTP API, for deployments where an external
// scheduler pushes execution tasks.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	st := a.buildStages(deps)
	return a.runServer(ctx, deps, st)
}

// runServer starts the HTTP server and shuts it down when the context is
// cancelled.
func (a *App) runServer(ctx context.Context, deps *Dependencies, st stages) error {
	srv := server.NewServer(
		server.Config{
			Port:   a.cfg.Server.Port,
			APIKey: a.cfg.Server.ApiKey,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Execute: handler.NewExecuteHandler(st.executor, a.logger),
			Actions: handler.NewActionHandler(deps.Store, a.logger),
		},
		a.logger,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
