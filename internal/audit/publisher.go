package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "ballotgate/pkg/domain"
)

// Publisher is the port services emit through.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store is an append-only event sink.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByVoter(ctx context.Context, voterID id.VoterID) ([]Event, error)
}

// StorePublisher writes events straight to a store. It backs tests and
// single-process deployments.
type StorePublisher struct {
	store Store
}

func NewStorePublisher(store Store) *StorePublisher {
	return &StorePublisher{store: store}
}

func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	stamp(&event)
	return p.store.Append(ctx, event)
}

// Log emits an event through an optional publisher and always logs it.
// Services call this on their side-effect paths; a nil publisher or a failed
// emit degrades to the log line alone.
func Log(ctx context.Context, logger *slog.Logger, publisher Publisher, event Event) {
	stamp(&event)
	if logger != nil {
		logger.InfoContext(ctx, "audit",
			"action", event.Action,
			"voter_id", event.VoterID,
			"credential_id", event.CredentialID,
			"credential_kind", event.CredentialKind,
			"reason", event.Reason,
		)
	}
	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err.Error(),
		)
	}
}

func stamp(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
}
