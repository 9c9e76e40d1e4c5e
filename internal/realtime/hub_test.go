package realtime

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubDeliversOnlyToOwner(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine, _ := hub.Subscribe(ctx, "acc_a")
	theirs, _ := hub.Subscribe(ctx, "acc_b")

	require.NoError(t, hub.Publish(ctx, ResourceChanged("acc_a", ResourcePages)))

	got := receive(t, mine)
	assert.Equal(t, EventResourceChanged, got.Type)
	assert.Equal(t, []string{ResourcePages}, got.Resources)
	select {
	case event := <-theirs:
		t.Fatalf("unexpected event for other owner: %+v", event)
	default:
	}
}

func TestHubPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := hub.Subscribe(ctx, "acc_a")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			_ = hub.Publish(ctx, ResourceChanged("acc_a", ResourcePages))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestHubUnsubscribesWhenContextEnds(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := hub.Subscribe(ctx, "acc_a")
	require.Equal(t, 1, hub.SubscriberCount("acc_a"))

	cancel()

	require.Eventually(t, func() bool { return hub.SubscriberCount("acc_a") == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestHubUnsubscribeReleasesWatcher(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	before := runtime.NumGoroutine()
	channels := make([]<-chan Event, 0, 20)
	for i := 0; i < 20; i++ {
		ch, subID := hub.Subscribe(ctx, "acc_a")
		channels = append(channels, ch)
		hub.Unsubscribe("acc_a", subID)
	}

	assert.Equal(t, 0, hub.SubscriberCount("acc_a"))
	for _, ch := range channels {
		_, ok := <-ch
		assert.False(t, ok)
	}
	require.Eventually(t, func() bool { return runtime.NumGoroutine() <= before }, time.Second, 5*time.Millisecond)
	require.NoError(t, ctx.Err())
}

func TestHubCloseClosesSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ch, subID := hub.Subscribe(context.Background(), "acc_a")
	hub.Close()

	_, ok := <-ch
	assert.False(t, ok)
	hub.Unsubscribe("acc_a", subID)
	assert.Equal(t, 0, hub.SubscriberCount("acc_a"))
}
