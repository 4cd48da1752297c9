package domain

import (
	"context"
	"io"
	"time"
)

// ActionStore persists trade actions. Updates are merge-style: each method
// writes only the field group its pipeline stage owns, guarded so a status
// never moves backward. Methods that advance status return ErrStaleTransition
// when the record is no longer in the expected state.
type ActionStore interface {
	Create(ctx context.Context, a Action) error
	GetByID(ctx context.Context, id string) (Action, error)
	ListByStatus(ctx context.Context, status ActionStatus) ([]Action, error)

	// ActiveSymbols returns the symbols that currently have a non-terminal
	// action; the aggregator excludes these before creating new actions.
	ActiveSymbols(ctx context.Context) (map[string]struct{}, error)

	// SetAnalysis records the analysis verdict and predicted band, moving the
	// action from created to order_created or one of the canceled statuses.
	SetAnalysis(ctx context.Context, id string, analysis Analysis, spread PredSpread, status ActionStatus) error

	// Cancel moves a created action directly to a canceled terminal status,
	// recording the article sources inspected so far.
	Cancel(ctx context.Context, id string, status ActionStatus, sources []string) error

	// MarkScheduled advances order_created to scheduled.
	MarkScheduled(ctx context.Context, id string) error

	// SetExecution records the brokerage order and absolute target prices,
	// advancing scheduled to executed.
	SetExecution(ctx context.Context, id string, spread ExecSpread, assoc AssociatedAction) error

	// SetExecutionInfo records the realized result, advancing executed to
	// complete. followupPostID is the social-post id, or "failed".
	SetExecutionInfo(ctx context.Context, id string, info ExecutionInfo, followupPostID string) error

	// ListTerminalBefore returns terminal actions created strictly before the
	// cutoff, for cold-storage archival.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Action, error)
}

// Task is the payload of one delayed dispatch: everything the order executor
// needs to place the bracket order at fire time.
type Task struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	Amount      int     `json:"amount"`
	Upper       float64 `json:"upper"`
	Lower       float64 `json:"lower"`
	LowerSafety float64 `json:"lower_safety"`
}

// TaskQueue durably schedules a task to run no earlier than the given time.
// Delivery is at-least-once; handlers must tolerate redelivery.
type TaskQueue interface {
	EnqueueAt(ctx context.Context, task Task, at time.Time) error
}

// RateLimiter provides distributed rate limiting for outbound collaborator
// calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// BlobWriter uploads an object to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
