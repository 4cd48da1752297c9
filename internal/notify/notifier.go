// Package notify publishes short status updates to social channels.
// Completion posts are dispatched to every registered sender; the pipeline
// keeps the id of the first successful post as the action's followup
// reference.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is the interface each channel must implement.
type Sender interface {
	// Post publishes the text and returns the channel's post id.
	Post(ctx context.Context, text string) (string, error)
	// Name returns a human-readable identifier for the sender (e.g. "twitter").
	Name() string
}

// Notifier dispatches posts to one or more Senders.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Post publishes to all senders and returns the id from the first one that
// succeeds. A single sender failure does not prevent delivery to the rest;
// an error is returned only when every sender fails.
func (n *Notifier) Post(ctx context.Context, text string) (string, error) {
	if len(n.senders) == 0 {
		return "", fmt.Errorf("notify: no senders configured")
	}

	var (
		postID string
		errs   []string
	)
	for _, s := range n.senders {
		id, err := s.Post(ctx, text)
		if err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "post published",
			slog.String("sender", s.Name()),
			slog.String("post_id", id),
		)
		if postID == "" {
			postID = id
		}
	}

	if postID == "" {
		return "", fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return postID, nil
}
