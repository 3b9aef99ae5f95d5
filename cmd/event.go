package cmd

import (
	"context"
	"fmt"
	"slices"

	"github.com/frahmantamala/crm-backend/internal/core/events"
	"github.com/frahmantamala/crm-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Inspect the domain event bus: list audited event types, publish a test event through the audit subscriber`,
}

var listEventsCmd = &cobra.Command{
	Use:   "list",
	Short: "List audited event types",
	Run: func(cmd *cobra.Command, args []string) {
		for _, eventType := range events.AuditedEventTypes {
			fmt.Println(eventType)
		}
	},
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test event",
	Long:  `Publish a test domain event and run the audit subscriber on it synchronously`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(cmd.Context(), args[0])
	},
}

var eventData string

func publishTestEvent(ctx context.Context, eventType string) error {
	if !slices.Contains(events.AuditedEventTypes, eventType) {
		return fmt.Errorf("unknown event type %q, see `event list`", eventType)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	lg := logger.LoggerWrapper()
	bus := events.NewEventBus(lg)
	events.RegisterAuditLogger(bus, lg)

	event := events.NewDomainEvent(eventType, uuid.Nil, uuid.Nil, map[string]interface{}{
		"message": eventData,
		"source":  "cli-command",
	})
	lg.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())

	if err := bus.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	lg.Info("test event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", "test message", "Event data message")

	eventCmd.AddCommand(listEventsCmd)
	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
