package events

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/crm-backend/internal"
)

// RegisterAuditLogger writes every audited event to logger.
func RegisterAuditLogger(bus *EventBus, logger *slog.Logger) {
	handler := func(ctx context.Context, event Event) error {
		logger.InfoContext(ctx, "audit",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"occurred_at", event.OccurredAt(),
			"trace_id", internal.TraceIDFromContext(ctx),
			"payload", event.Payload(),
		)
		return nil
	}
	for _, eventType := range AuditedEventTypes {
		bus.Subscribe(eventType, handler)
	}
}
