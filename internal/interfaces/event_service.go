package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventAggregateRecompute asks the aggregator to recompute a market's
	// pipeline status. Delivered at-least-once; handlers must be idempotent.
	EventAggregateRecompute EventType = "aggregate_recompute"
	// EventJobCompleted announces a terminal completed job.
	EventJobCompleted EventType = "job_completed"
	// EventJobFailed announces a terminal failed job.
	EventJobFailed EventType = "job_failed"
	// EventAlertCreated announces a new operator alert.
	EventAlertCreated EventType = "alert_created"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the in-process pub/sub event bus
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish sends the event to all subscribers asynchronously
	// (fire-and-forget).
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes and waits for all handlers to complete.
	PublishSync(ctx context.Context, event Event) error

	Close() error
}
