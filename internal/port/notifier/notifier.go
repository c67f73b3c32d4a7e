// Package notifier defines the progress sink port and its adapter registry.
package notifier

import (
	"context"
	"errors"

	"github.com/Strob0t/CodeCouncil/internal/domain/event"
)

// ErrNotConfigured is returned when a sink is missing required settings.
var ErrNotConfigured = errors.New("notifier: not configured")

// Sink receives progress events. Delivery is best-effort: callers log a
// returned error and move on.
type Sink interface {
	// Name returns the unique identifier for this sink (e.g. "webhook", "ws").
	Name() string

	// Notify delivers one progress event.
	Notify(ctx context.Context, ev event.Progress) error
}
