package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"helpdesk/internal/logger"

	"github.com/redis/go-redis/v9"
)

type eventMessage struct {
	Event     Event      `json:"event"`
	Principal *Principal `json:"principal,omitempty"`
}

// Broker fans auth-state changes out over redis pub/sub, one channel per
// browser client, so a sign-out handled by one server instance reaches the
// subscriber wherever it lives.
type Broker struct {
	client *redis.Client
	prefix string
}

func NewBroker(client *redis.Client) *Broker {
	return &Broker{
		client: client,
		prefix: "auth:events:",
	}
}

func (b *Broker) channel(clientID string) string {
	return b.prefix + clientID
}

// Publish sends an event to the client's channel.
func (b *Broker) Publish(ctx context.Context, clientID string, event Event, principal *Principal) error {
	data, err := json.Marshal(eventMessage{Event: event, Principal: principal})
	if err != nil {
		return fmt.Errorf("gateway: marshal event: %w", err)
	}
	return b.client.Publish(ctx, b.channel(clientID), data).Err()
}

// Subscribe registers handler for the client's channel. The subscription is
// confirmed by redis before Subscribe returns, so events published afterwards
// are not missed. Events are dispatched one at a time in delivery order.
func (b *Broker) Subscribe(ctx context.Context, clientID string, handler AuthHandler) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(clientID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("gateway: subscribe %s: %w", clientID, err)
	}

	sub := &brokerSubscription{
		ps:   ps,
		done: make(chan struct{}),
	}
	go sub.dispatch(clientID, handler)
	return sub, nil
}

type brokerSubscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

func (s *brokerSubscription) dispatch(clientID string, handler AuthHandler) {
	defer close(s.done)
	for msg := range s.ps.Channel() {
		var m eventMessage
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			logger.Warn("dropping malformed auth event", map[string]any{
				"client_id": clientID,
				"error":     err.Error(),
			})
			continue
		}
		handler(m.Event, m.Principal)
	}
}

// Unsubscribe closes the pubsub connection and waits for the dispatcher to
// finish the event it may be handling. It must not be called from inside
// the handler.
func (s *brokerSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		<-s.done
	})
	return s.err
}
