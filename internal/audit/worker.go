package audit

import (
	"context"
	"log/slog"
)

// Worker drains an inbox channel into a publisher so services never block on
// the audit sink. Dropped-on-full is acceptable: the trail is best-effort.
type Worker struct {
	publisher Publisher
	inbox     chan Event
	logger    *slog.Logger
}

func NewWorker(publisher Publisher, buffer int, logger *slog.Logger) *Worker {
	if buffer <= 0 {
		buffer = 256
	}
	return &Worker{
		publisher: publisher,
		inbox:     make(chan Event, buffer),
		logger:    logger,
	}
}

// Emit queues an event, dropping it if the inbox is full.
func (w *Worker) Emit(ctx context.Context, event Event) error {
	stamp(&event)
	select {
	case w.inbox <- event:
	default:
		if w.logger != nil {
			w.logger.WarnContext(ctx, "audit inbox full, event dropped",
				"action", event.Action,
			)
		}
	}
	return nil
}

// Run consumes the inbox until ctx is done, then drains what is buffered.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.publish(event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.publish(event)
		default:
			return
		}
	}
}

func (w *Worker) publish(event Event) {
	// Detached context: the run context is already done during drain.
	if err := w.publisher.Emit(context.Background(), event); err != nil && w.logger != nil {
		w.logger.Warn("audit publish failed",
			"action", event.Action,
			"error", err.Error(),
		)
	}
}
