// Package events fans ticket changes out to connected operator panels.
package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

// subscriberBufferSize is the channel buffer for each subscriber
const subscriberBufferSize = 64

// Publisher publishes ticket events
type Publisher interface {
	Publish(event *domain.TicketEvent)
}

// Broadcaster is an in-memory pub/sub for ticket events. Every subscriber
// receives every event; slow subscribers lose events rather than block
// publishers, and rely on a full listing to catch up.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan *domain.TicketEvent
	closed      bool
	logger      *zap.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for a no-op logger.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan *domain.TicketEvent),
		logger:      logger.With(zap.String("component", "broadcaster")),
	}
}

// Subscribe registers a subscriber. The subscription is removed and its
// channel closed when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan *domain.TicketEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *domain.TicketEvent, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", zap.String("sub_id", subID))

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish implements Publisher. Non-blocking.
func (b *Broadcaster) Publish(event *domain.TicketEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				zap.String("sub_id", id),
				zap.String("escalation_id", event.EscalationID))
		}
	}
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", zap.String("sub_id", subID))
}

// Subscribers returns the number of active subscriptions
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels. Later subscriptions receive a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.closed = true
}

// Nop discards events
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(*domain.TicketEvent) {}
