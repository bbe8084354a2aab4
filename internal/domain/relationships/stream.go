package relationships

import (
	"context"
)

// EventPublisher publishes a JSON payload on a subject
type EventPublisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// StreamNotifier publishes relationship events as domain events on
// social.relationship.<action>.
type StreamNotifier struct {
	publisher EventPublisher
}

// NewStreamNotifier wraps a publisher
func NewStreamNotifier(publisher EventPublisher) *StreamNotifier {
	return &StreamNotifier{publisher: publisher}
}

func (n *StreamNotifier) Notify(ctx context.Context, event *Event) error {
	return n.publisher.Publish(ctx, EventSubject(event.Action), event)
}

// EventSubject returns the subject an action's events are published on
func EventSubject(action Action) string {
	return "social.relationship." + action.String()
}
