package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nouslabs/nous/internal/domain"
)

// ActionArchiveStore provides read access to terminal actions for archival
// purposes. The Postgres action store satisfies this implicitly.
type ActionArchiveStore interface {
	ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Action, error)
}

// ArchiveImpl queries terminal actions older than the cutoff, serializes
// them to JSONL, and uploads the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here; the terminal statuses remain the audit trail of
// record.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	actions ActionArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, actions ActionArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		actions: actions,
	}
}

// ArchiveActions uploads all terminal actions created before the cutoff to
// archive/actions/YYYY-MM.jsonl and returns the count of archived records.
func (a *ArchiveImpl) ArchiveActions(ctx context.Context, before time.Time) (int64, error) {
	actions, err := a.actions.ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive actions query: %w", err)
	}
	if len(actions) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, act := range actions {
		if err := enc.Encode(act); err != nil {
			return 0, fmt.Errorf("s3blob: encode action %s: %w", act.ID, err)
		}
	}

	path := archivePath("actions", before)
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload actions archive: %w", err)
	}

	return int64(len(actions)), nil
}

// archivePath builds the object key for an archive file, partitioned by
// cutoff month: archive/<kind>/YYYY-MM.jsonl.
func archivePath(kind string, cutoff time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, cutoff.UTC().Format("2006-01"))
}
