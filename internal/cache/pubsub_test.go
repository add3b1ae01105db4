package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aman-zulfiqar/orbital-amm/internal/constants"
	"github.com/aman-zulfiqar/orbital-amm/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolChannel(t *testing.T) {
	assert.Equal(t, "trades:pool:abc", PoolChannel("abc"))
}

func TestPublishReachesBothChannels(t *testing.T) {
	client := newTestRedis(t)
	logger, _ := test.NewNullLogger()
	p := NewPubSubManagerFromClient(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	all := client.Subscribe(ctx, constants.PubSubChannelTrades)
	defer all.Close()
	_, err := all.Receive(ctx)
	require.NoError(t, err)

	pattern := client.PSubscribe(ctx, constants.PubSubPatternPools)
	defer pattern.Close()
	_, err = pattern.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, p.PublishTrade(ctx, testTrade("pool-a", 1)))

	// Other packages may publish on the same server, so skip unrelated messages.
	waitFor := func(ch <-chan *redis.Message, match func(*redis.Message) bool) bool {
		for {
			select {
			case msg := <-ch:
				if match(msg) {
					return true
				}
			case <-ctx.Done():
				return false
			}
		}
	}
	assert.True(t, waitFor(all.Channel(), func(m *redis.Message) bool {
		return strings.Contains(m.Payload, `"id":"trd_1"`)
	}), "no message on trades:all")
	assert.True(t, waitFor(pattern.Channel(), func(m *redis.Message) bool {
		return m.Channel == PoolChannel("pool-a")
	}), "no message on the pool channel")
}

func TestSubscribeDeliversTrades(t *testing.T) {
	client := newTestRedis(t)
	logger, hook := test.NewNullLogger()
	p := NewPubSubManagerFromClient(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *models.TradeEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- p.Subscribe(ctx, PoolChannel("pool-a"), func(tr *models.TradeEvent) {
			got <- tr
		})
	}()

	// Publish until the subscription is live; Redis drops messages sent
	// before it.
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, PoolChannel("pool-a")).Result()
		return err == nil && n[PoolChannel("pool-a")] > 0
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, client.Publish(ctx, PoolChannel("pool-a"), "{bad").Err())
	require.NoError(t, p.PublishTrade(ctx, testTrade("pool-a", 7)))

	select {
	case tr := <-got:
		assert.Equal(t, "trd_7", tr.ID)
		assert.Equal(t, "USDC/USDT", tr.Pair())
	case <-ctx.Done():
		t.Fatal("trade not delivered")
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "dropping malformed trade event" {
			warned = true
		}
	}
	assert.True(t, warned)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
