package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ActionArchiver moves terminal actions older than a cutoff into cold
// storage.
type ActionArchiver interface {
	ArchiveActions(ctx context.Context, cutoff time.Time) (int64, error)
}

// Archiver runs periodic archive sweeps of terminal actions.
type Archiver struct {
	blobArchiver  ActionArchiver
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver ActionArchiver, retentionDays int, logger *slog.Logger) *Archiver {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive sweep. The cutoff is now minus the retention
// window.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	archived, err := a.blobArchiver.ArchiveActions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archiving actions before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete", slog.Int64("actions_archived", archived))
	return nil
}
