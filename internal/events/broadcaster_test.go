package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, _ := b.Subscribe(ctx)
	second, _ := b.Subscribe(ctx)

	ev := &domain.TicketEvent{Kind: domain.TicketEventCreated, EscalationID: "e1", Status: domain.StatusPending}
	b.Publish(ev)

	for _, ch := range []<-chan *domain.TicketEvent{first, second} {
		select {
		case got := <-ch:
			assert.Equal(t, "e1", got.EscalationID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	require.Equal(t, 1, b.Subscribers())

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.Equal(t, 0, b.Subscribers())
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := b.Subscribe(ctx)

	for i := 0; i < subscriberBufferSize+10; i++ {
		b.Publish(&domain.TicketEvent{EscalationID: "e"})
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestSubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster(nil)
	b.Close()

	ch, _ := b.Subscribe(context.Background())
	_, ok := <-ch
	assert.False(t, ok)

	b.Unsubscribe("missing")
	Nop{}.Publish(&domain.TicketEvent{})
}
