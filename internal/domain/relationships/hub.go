package relationships

import (
	"context"
	"encoding/json"
	"expvar"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	eventsChannel    = "social:relationship_events"
	subscriberBuffer = 64
)

var (
	hubSubscribersGauge   = expvar.NewInt("relationship_subscribers")
	hubEventsSentTotal    = expvar.NewInt("relationship_events_sent_total")
	hubEventsDroppedTotal = expvar.NewInt("relationship_events_dropped_total")
)

type hubEnvelope struct {
	Recipients       []uuid.UUID     `json:"recipients"`
	Payload          json.RawMessage `json:"payload"`
	SenderInstanceID string          `json:"sender_instance_id"`
}

// Subscription receives the events of one account until it is unsubscribed.
// Events is closed by Unsubscribe.
type Subscription struct {
	AccountID uuid.UUID
	Events    chan []byte
}

// Hub delivers relationship events to subscribed accounts. With a Redis client
// events are fanned out to every instance; without one delivery is local.
type Hub struct {
	subscribers map[uuid.UUID]map[*Subscription]bool
	mu          sync.RWMutex

	redis  *redis.Client
	pubsub *redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
	publishFn  func(ctx context.Context, payload []byte) error
}

// NewHub creates a relationship event hub
func NewHub(redisClient *redis.Client) *Hub {
	return NewHubWithInstanceID(redisClient, uuid.NewString())
}

// NewHubWithInstanceID creates a hub with an explicit instance identifier
func NewHubWithInstanceID(redisClient *redis.Client, instanceID string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		subscribers: make(map[uuid.UUID]map[*Subscription]bool),
		redis:       redisClient,
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  instanceID,
	}

	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, eventsChannel)
		h.publishFn = func(ctx context.Context, payload []byte) error {
			return redisClient.Publish(ctx, eventsChannel, payload).Err()
		}
	}

	return h
}

// Run consumes events published by other instances (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub == nil {
		<-h.ctx.Done()
		return
	}

	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleRemotePayload(msg.Payload)
		}
	}
}

// Subscribe registers a new subscription for accountID
func (h *Hub) Subscribe(accountID uuid.UUID) *Subscription {
	sub := &Subscription{
		AccountID: accountID,
		Events:    make(chan []byte, subscriberBuffer),
	}

	h.mu.Lock()
	if h.subscribers[accountID] == nil {
		h.subscribers[accountID] = make(map[*Subscription]bool)
	}
	h.subscribers[accountID][sub] = true
	h.mu.Unlock()

	hubSubscribersGauge.Add(1)
	log.Debug().Str("account_id", accountID.String()).Msg("Relationship subscriber added")
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[sub.AccountID]
	if !ok {
		return
	}
	if _, exists := subs[sub]; !exists {
		return
	}
	delete(subs, sub)
	close(sub.Events)
	hubSubscribersGauge.Add(-1)
	if len(subs) == 0 {
		delete(h.subscribers, sub.AccountID)
	}
}

// SubscriberCount returns the number of local subscriptions for accountID
func (h *Hub) SubscriberCount(accountID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[accountID])
}

// Notify delivers the event to the actor and the target of the action
func (h *Hub) Notify(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	recipients := []uuid.UUID{event.ActorID, event.TargetID}
	for _, id := range recipients {
		h.deliverLocal(id, data)
	}

	if h.publishFn == nil {
		return nil
	}
	payload, err := json.Marshal(hubEnvelope{
		Recipients:       recipients,
		Payload:          data,
		SenderInstanceID: h.instanceID,
	})
	if err != nil {
		return err
	}
	return h.publishFn(ctx, payload)
}

// Shutdown stops the Redis subscriber and closes every subscription
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, subs := range h.subscribers {
		for sub := range subs {
			close(sub.Events)
			hubSubscribersGauge.Add(-1)
		}
		delete(h.subscribers, id)
	}
}

func (h *Hub) handleRemotePayload(payload string) {
	var env hubEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return
	}
	if env.SenderInstanceID == h.instanceID {
		return
	}
	for _, id := range env.Recipients {
		h.deliverLocal(id, env.Payload)
	}
}

// deliverLocal never blocks: a full subscriber buffer drops the event
func (h *Hub) deliverLocal(accountID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[accountID] {
		select {
		case sub.Events <- data:
			hubEventsSentTotal.Add(1)
		default:
			hubEventsDroppedTotal.Add(1)
			log.Warn().Str("account_id", accountID.String()).Msg("Relationship event buffer full")
		}
	}
}
