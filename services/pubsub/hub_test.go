package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/foundi/core/chat"
)

func receive(t *testing.T, sub *Subscription) (chat.Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		return ev, ok
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return chat.Event{}, false
	}
}

func TestHub_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	defer func() { _ = hub.Close() }()

	global, err := hub.Subscribe(ctx, chat.TopicGlobal)
	require.NoError(t, err)
	private, err := hub.Subscribe(ctx, chat.PrivateTopic("a_b"))
	require.NoError(t, err)

	m := chat.Message{ID: "1", Channel: chat.ChannelGlobal, Text: "salut"}
	require.NoError(t, hub.Publish(ctx, chat.Event{Type: chat.EventCreated, Topic: chat.TopicGlobal, Message: &m}))

	ev, ok := receive(t, global)
	require.True(t, ok)
	assert.Equal(t, chat.EventCreated, ev.Type)
	assert.Equal(t, "salut", ev.Message.Text)

	// other topics receive nothing
	select {
	case ev := <-private.C:
		t.Fatalf("unexpected event on private topic: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	global.Close()
	_, ok = receive(t, global)
	assert.False(t, ok, "closed subscription channel")
	global.Close() // closing twice is a no-op
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	defer func() { _ = hub.Close() }()

	sub, err := hub.Subscribe(ctx, chat.TopicGlobal)
	require.NoError(t, err)

	// one event over the buffer drops the subscriber. run takes an event only once the
	// previous one is fanned out, so the extra publish returns after the drop.
	for i := 0; i < SubscriberBuffer+2; i++ {
		require.NoError(t, hub.Publish(ctx, chat.Event{Type: chat.EventCreated, Topic: chat.TopicGlobal}))
	}

	var n int
	for {
		_, ok := receive(t, sub)
		if !ok {
			break
		}
		n++
	}
	assert.Equal(t, SubscriberBuffer, n)
	sub.Close()
}

func TestHub_Close(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	sub, err := hub.Subscribe(ctx, chat.TopicGlobal)
	require.NoError(t, err)
	require.NoError(t, hub.Close())

	_, ok := receive(t, sub)
	assert.False(t, ok)
	assert.Equal(t, ErrClosed, hub.Publish(ctx, chat.Event{Topic: chat.TopicGlobal}))
	_, err = hub.Subscribe(ctx, chat.TopicGlobal)
	assert.Equal(t, ErrClosed, err)
	sub.Close()
}
