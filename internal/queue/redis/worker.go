package redis

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nouslabs/nous/internal/domain"
)

//go:embed scripts/claim_due.lua
var claimDueLua string

// Handler processes one claimed task. Returning an error requeues the task
// with backoff until its attempts are exhausted.
type Handler func(ctx context.Context, task domain.Task) error

// WorkerConfig tunes the dispatch loop.
type WorkerConfig struct {
	MaxAttempts    int
	RetryMinWait   time.Duration
	MaxConcurrency int
	PollInterval   time.Duration
}

// taskSink is where dispatch puts tasks that failed: back on the queue with a
// later fire time, or on the dead-letter list once retries are exhausted.
type taskSink interface {
	enqueue(ctx context.Context, env envelope, at time.Time) error
	deadLetter(ctx context.Context, env envelope) error
}

// Worker polls the delayed queue and dispatches due tasks to a handler.
// Delivery is at-least-once: a crash between claim and completion loses the
// claim but the downstream status guards make redelivery harmless.
type Worker struct {
	queue    *Queue
	sink     taskSink
	handler  Handler
	cfg      WorkerConfig
	claimDue *redis.Script
	logger   *slog.Logger
}

// NewWorker creates a Worker reading from queue and invoking handler for each
// due task.
func NewWorker(queue *Queue, handler Handler, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryMinWait <= 0 {
		cfg.RetryMinWait = time.Minute
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Worker{
		queue:    queue,
		sink:     queue,
		handler:  handler,
		cfg:      cfg,
		claimDue: redis.NewScript(claimDueLua),
		logger:   logger.With(slog.String("component", "queue_worker")),
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.MaxConcurrency)

	for {
		select {
		case <-ctx.Done():
			if err := g.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
		}

		payloads, err := w.claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("claim due tasks", slog.String("error", err.Error()))
			continue
		}

		for _, payload := range payloads {
			payload := payload
			g.Go(func() error {
				w.dispatch(ctx, payload)
				return nil
			})
		}
	}
}

func (w *Worker) claim(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	due, err := w.claimDue.Run(
		ctx,
		w.queue.rdb,
		[]string{w.queue.key},
		now,
		w.cfg.MaxConcurrency,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("redis: claim due: %w", err)
	}
	return due, nil
}

func (w *Worker) dispatch(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		w.logger.Error("unmarshal task payload",
			slog.String("error", err.Error()))
		return
	}

	log := w.logger.With(
		slog.String("task_id", env.Task.ID),
		slog.String("symbol", env.Task.Symbol),
		slog.Int("attempt", env.Attempt),
	)

	err := w.handler(ctx, env.Task)
	if err == nil {
		log.Info("task handled")
		return
	}

	env.Attempt++
	if env.Attempt >= w.cfg.MaxAttempts {
		log.Error("task exhausted retries, dead-lettering",
			slog.String("error", err.Error()))
		if dlErr := w.sink.deadLetter(ctx, env); dlErr != nil {
			log.Error("dead-letter failed", slog.String("error", dlErr.Error()))
		}
		return
	}

	wait := w.backoff(env.Attempt)
	log.Warn("task failed, requeueing",
		slog.String("error", err.Error()),
		slog.Duration("retry_in", wait))
	if rqErr := w.sink.enqueue(ctx, env, time.Now().Add(wait)); rqErr != nil {
		log.Error("requeue failed", slog.String("error", rqErr.Error()))
	}
}

func (w *Worker) backoff(attempt int) time.Duration {
	wait := time.Duration(attempt) * w.cfg.RetryMinWait
	if wait < w.cfg.RetryMinWait {
		wait = w.cfg.RetryMinWait
	}
	return wait
}
