// Package notifier fans out job state changes to interested listeners.
// Delivery is fire-and-forget: clients treat the job record as the source
// of truth and a lost notification only delays a re-fetch.
package notifier

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"photorevive/internal/domain"
)

// Event describes one observed job state change.
type Event struct {
	JobID      string          `json:"job_id"`
	OwnerID    string          `json:"owner_id"`
	Kind       domain.JobKind  `json:"kind"`
	State      domain.JobState `json:"state"`
	Progress   string          `json:"progress,omitempty"`
	ResultRefs []string        `json:"result_refs,omitempty"`
	Error      string          `json:"error,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Notifier publishes events. Implementations must never block the
// reconciliation path; failures are logged and dropped.
type Notifier interface {
	Publish(ctx context.Context, event Event)
}

// LogNotifier writes events to the service log.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Publish(ctx context.Context, event Event) {
	n.Logger.Info().
		Str("job_id", event.JobID).
		Str("owner_id", event.OwnerID).
		Str("kind", string(event.Kind)).
		Str("state", string(event.State)).
		Msg("job state changed")
}

// Multi fans one event out to several notifiers.
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, event Event) {
	for _, n := range m {
		n.Publish(ctx, event)
	}
}
