package relationships

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testEvent(actor, target uuid.UUID) *Event {
	return &Event{
		Type:       EventRelationshipChanged,
		Action:     ActionFollow,
		ActorID:    actor,
		TargetID:   target,
		OccurredAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func receive(t *testing.T, sub *Subscription) *Event {
	t.Helper()
	select {
	case data, ok := <-sub.Events:
		if !ok {
			t.Fatal("subscription closed")
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return &ev
	default:
		t.Fatal("expected an event")
	}
	return nil
}

func TestHubDeliversToActorAndTarget(t *testing.T) {
	h := NewHub(nil)
	defer h.Shutdown()

	actor, target, other := uuid.New(), uuid.New(), uuid.New()
	actorSub := h.Subscribe(actor)
	targetSub := h.Subscribe(target)
	otherSub := h.Subscribe(other)

	if err := h.Notify(context.Background(), testEvent(actor, target)); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	for _, sub := range []*Subscription{actorSub, targetSub} {
		ev := receive(t, sub)
		if ev.Action != ActionFollow || ev.ActorID != actor || ev.TargetID != target {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
	if len(otherSub.Events) != 0 {
		t.Fatal("unrelated subscriber must not receive the event")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(nil)
	defer h.Shutdown()

	id := uuid.New()
	sub := h.Subscribe(id)
	if got := h.SubscriberCount(id); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)

	if _, ok := <-sub.Events; ok {
		t.Fatal("expected closed channel")
	}
	if got := h.SubscriberCount(id); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}

	// delivery after unsubscribe must not panic on the closed channel
	if err := h.Notify(context.Background(), testEvent(id, uuid.New())); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	h := NewHub(nil)
	defer h.Shutdown()

	actor := uuid.New()
	sub := h.Subscribe(actor)

	dropped := hubEventsDroppedTotal.Value()
	for i := 0; i < subscriberBuffer+5; i++ {
		if err := h.Notify(context.Background(), testEvent(actor, uuid.New())); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}

	if got := len(sub.Events); got != subscriberBuffer {
		t.Fatalf("expected full buffer of %d, got %d", subscriberBuffer, got)
	}
	if got := hubEventsDroppedTotal.Value() - dropped; got != 5 {
		t.Fatalf("expected 5 dropped events, got %d", got)
	}
}

func TestHubFanOutEnvelope(t *testing.T) {
	sender := NewHubWithInstanceID(nil, "instance-a")
	receiver := NewHubWithInstanceID(nil, "instance-b")
	defer sender.Shutdown()
	defer receiver.Shutdown()

	var published []byte
	sender.publishFn = func(ctx context.Context, payload []byte) error {
		published = payload
		return nil
	}

	actor, target := uuid.New(), uuid.New()
	remoteSub := receiver.Subscribe(target)
	localSub := sender.Subscribe(actor)

	if err := sender.Notify(context.Background(), testEvent(actor, target)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if published == nil {
		t.Fatal("expected envelope to be published")
	}

	// the sender ignores its own envelope, so the local subscriber sees one event
	sender.handleRemotePayload(string(published))
	receive(t, localSub)
	if len(localSub.Events) != 0 {
		t.Fatal("sender delivered its own envelope twice")
	}

	receiver.handleRemotePayload(string(published))
	if ev := receive(t, remoteSub); ev.TargetID != target {
		t.Fatalf("unexpected remote event %+v", ev)
	}

	receiver.handleRemotePayload("not json")
}

func TestHubShutdownClosesSubscriptions(t *testing.T) {
	h := NewHub(nil)
	sub := h.Subscribe(uuid.New())

	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	h.Shutdown()

	if _, ok := <-sub.Events; ok {
		t.Fatal("expected closed channel after shutdown")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after shutdown")
	}
}
