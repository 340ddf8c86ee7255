// Package pubsub fans chat events out to the live feed subscribers, in process or through Redis.
package pubsub

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core/chat"
)

// SubscriberBuffer is how many events a subscriber may lag behind before being dropped.
const SubscriberBuffer = 64

var ErrClosed = errors.New("broker closed")

// Broker is what the feed handlers need: publish accepted writes and follow a topic.
type Broker interface {
	chat.Publisher
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

// Subscription receives the events of one topic on C. C is closed when the subscription is
// closed, when the broker shuts down, or when the subscriber lags too far behind.
type Subscription struct {
	C     <-chan chat.Event
	send  chan chat.Event
	topic string
	hub   *Hub
	once  sync.Once
}

func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) Close() {
	s.once.Do(func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.quit:
		}
	})
}

// Hub is the in-process broker. Every registration, removal and broadcast goes through Run,
// so an event published after Subscribe returns always reaches the new subscriber.
type Hub struct {
	// topic -> registered subscriptions
	topics map[string]map[*Subscription]bool

	broadcast  chan chat.Event
	register   chan *Subscription
	unregister chan *Subscription

	quit      chan struct{}
	closeOnce sync.Once
}

var _ Broker = (*Hub)(nil) // interface compliance check

// NewHub returns a running Hub.
func NewHub() *Hub {
	h := &Hub{
		topics:     make(map[string]map[*Subscription]bool),
		broadcast:  make(chan chat.Event),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		quit:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if h.topics[sub.topic] == nil {
				h.topics[sub.topic] = make(map[*Subscription]bool)
			}
			h.topics[sub.topic][sub] = true
		case sub := <-h.unregister:
			h.drop(sub)
		case ev := <-h.broadcast:
			for sub := range h.topics[ev.Topic] {
				select {
				case sub.send <- ev:
				default:
					// too slow: the subscriber has to resync from a snapshot
					h.drop(sub)
				}
			}
		case <-h.quit:
			for _, subs := range h.topics {
				for sub := range subs {
					close(sub.send)
				}
			}
			h.topics = nil
			return
		}
	}
}

func (h *Hub) drop(sub *Subscription) {
	subs, ok := h.topics[sub.topic]
	if !ok || !subs[sub] {
		return
	}
	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
}

func (h *Hub) Publish(ctx context.Context, ev chat.Event) error {
	select {
	case h.broadcast <- ev:
		return nil
	case <-h.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	send := make(chan chat.Event, SubscriberBuffer)
	sub := &Subscription{C: send, send: send, topic: topic, hub: h}
	select {
	case h.register <- sub:
		return sub, nil
	case <-h.quit:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Close() error {
	h.closeOnce.Do(func() { close(h.quit) })
	return nil
}
