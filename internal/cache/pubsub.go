package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aman-zulfiqar/orbital-amm/internal/constants"
	"github.com/aman-zulfiqar/orbital-amm/internal/models"
	"github.com/aman-zulfiqar/orbital-amm/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type PubSubManager struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewPubSubManager(addr string, logger *logrus.Logger) *PubSubManager {
	return NewPubSubManagerFromClient(redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	}), logger)
}

func NewPubSubManagerFromClient(client *redis.Client, logger *logrus.Logger) *PubSubManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &PubSubManager{client: client, logger: logger}
}

// PoolChannel is the channel carrying one pool's trades.
func PoolChannel(poolID string) string {
	return constants.PubSubChannelPoolTrade + poolID
}

// PublishTrade sends the event to the global and the per-pool channel.
func (p *PubSubManager) PublishTrade(ctx context.Context, trade *models.TradeEvent) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}

	channels := []string{
		constants.PubSubChannelTrades,
		PoolChannel(trade.PoolID),
	}

	pipe := p.client.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, data)
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish trade: %w", err)
	}
	return nil
}

// Subscribe delivers events from channel until ctx is cancelled.
func (p *PubSubManager) Subscribe(ctx context.Context, channel string, handler storage.TradeHandler) error {
	pubsub := p.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	p.logger.WithField("channel", channel).Info("subscribed")

	return p.consume(ctx, pubsub.Channel(), handler)
}

// PSubscribe is Subscribe for a pattern such as trades:pool:*.
func (p *PubSubManager) PSubscribe(ctx context.Context, pattern string, handler storage.TradeHandler) error {
	pubsub := p.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe %s: %w", pattern, err)
	}
	p.logger.WithField("pattern", pattern).Info("subscribed")

	return p.consume(ctx, pubsub.Channel(), handler)
}

func (p *PubSubManager) consume(ctx context.Context, ch <-chan *redis.Message, handler storage.TradeHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var trade models.TradeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &trade); err != nil {
				p.logger.WithError(err).WithField("channel", msg.Channel).Warn("dropping malformed trade event")
				continue
			}
			handler(&trade)
		}
	}
}

func (p *PubSubManager) Close() error {
	return p.client.Close()
}
