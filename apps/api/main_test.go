package main

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/chat"
	"github.com/trezcool/foundi/services/pubsub"
	"github.com/trezcool/foundi/tests"
)

func Test_setUpBroker_inProcess(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	conf.RedisURL = ""

	broker, closeBroker, err := setUpBroker(ctx, conf, testutil.NewLogger(conf))
	require.NoError(t, err)
	_, ok := broker.(*pubsub.Hub)
	assert.True(t, ok)

	require.NoError(t, closeBroker())
	assert.Equal(t, pubsub.ErrClosed, broker.Publish(ctx, chat.Event{Topic: chat.TopicGlobal}))
}

func Test_setUpBroker_badRedisURL(t *testing.T) {
	conf := core.NewTestConfig()
	conf.RedisURL = "lol://nowhere"

	_, _, err := setUpBroker(context.Background(), conf, testutil.NewLogger(conf))
	assert.Error(t, err)
}

func Test_brokerCloser(t *testing.T) {
	ctx := context.Background()
	hub := pubsub.NewHub()
	// never dialed: go-redis connects lazily
	cli := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})

	require.NoError(t, brokerCloser(hub, cli)())
	assert.Equal(t, pubsub.ErrClosed, hub.Publish(ctx, chat.Event{Topic: chat.TopicGlobal}))
	assert.ErrorIs(t, cli.Ping(ctx).Err(), redis.ErrClosed)
}
