package pubsub

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/chat"
)

const channelPrefix = "feed:"

// RedisBroker shares the feed between API instances: events are published on Redis and every
// instance relays what it receives to its local subscribers.
type RedisBroker struct {
	cli    *redis.Client
	ps     *redis.PubSub
	hub    *Hub
	logger core.Logger
	done   chan struct{}
}

var _ Broker = (*RedisBroker)(nil) // interface compliance check

// NewRedisClient parses url and checks that the server answers within 5 seconds.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	cli := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = cli.Ping(pingCtx).Err(); err != nil {
		_ = cli.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return cli, nil
}

func NewRedisBroker(ctx context.Context, cli *redis.Client, logger core.Logger) (*RedisBroker, error) {
	ps := cli.PSubscribe(ctx, channelPrefix+"*")
	// wait for the confirmation so no event published from now on is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "subscribing to feed channels")
	}

	b := &RedisBroker{
		cli:    cli,
		ps:     ps,
		hub:    NewHub(),
		logger: logger,
		done:   make(chan struct{}),
	}
	go b.relay()
	return b, nil
}

func (b *RedisBroker) relay() {
	defer close(b.done)
	for msg := range b.ps.Channel() {
		var ev chat.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.logger.Error("decoding feed event", errors.Wrap(err, msg.Channel))
			continue
		}
		ev.Topic = strings.TrimPrefix(msg.Channel, channelPrefix)
		if err := b.hub.Publish(context.Background(), ev); err != nil {
			return
		}
	}
}

func (b *RedisBroker) Publish(ctx context.Context, ev chat.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encoding feed event")
	}
	return errors.Wrap(b.cli.Publish(ctx, channelPrefix+ev.Topic, payload).Err(), "publishing feed event")
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	return b.hub.Subscribe(ctx, topic)
}

// Close stops relaying. The redis client is left open for its owner to close.
func (b *RedisBroker) Close() error {
	err := b.ps.Close()
	_ = b.hub.Close()
	<-b.done
	return errors.Wrap(err, "closing feed subscription")
}
