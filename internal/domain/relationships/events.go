package relationships

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType for relationship events
type EventType string

const (
	EventRelationshipChanged EventType = "relationship_changed"
)

// Event tells subscribers that the relationship between two accounts changed
// and any state they hold for the pair is stale.
type Event struct {
	Type       EventType `json:"type"`
	Action     Action    `json:"action"`
	ActorID    uuid.UUID `json:"actor_id"`
	TargetID   uuid.UUID `json:"target_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier receives relationship events after a successful action
type Notifier interface {
	Notify(ctx context.Context, event *Event) error
}

// Notifiers fans an event out to several notifiers
type Notifiers []Notifier

// Notify delivers to every notifier and returns the first error
func (n Notifiers) Notify(ctx context.Context, event *Event) error {
	var firstErr error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StateCache memoizes resolved states per ordered pair. Every pair carries a
// generation that Invalidate bumps; a state computed from edges read before
// an invalidation must not be stored after it.
type StateCache interface {
	Get(ctx context.Context, viewerID, targetID uuid.UUID) (*State, bool)
	// Generation is read before querying the store
	Generation(ctx context.Context, a, b uuid.UUID) int64
	// Set stores state only if the pair is still at generation gen
	Set(ctx context.Context, viewerID, targetID uuid.UUID, state State, gen int64)
	// Invalidate bumps the generation and drops both directions of the pair
	Invalidate(ctx context.Context, a, b uuid.UUID)
}
