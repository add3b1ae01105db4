package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/aman-zulfiqar/orbital-amm/internal/cache"
	"github.com/aman-zulfiqar/orbital-amm/internal/config"
	"github.com/aman-zulfiqar/orbital-amm/internal/constants"
	"github.com/aman-zulfiqar/orbital-amm/internal/models"
	"github.com/sirupsen/logrus"
)

// main logs every trade event published by the API. With --pool it
// follows a single pool, otherwise all of them.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	fs := config.Flags("subscriber")
	pool := fs.String("pool", "", "pool ID to follow; empty follows every pool")
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.WithError(err).Fatal("invalid flags")
	}
	cfg, err := config.Load("", fs)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.RedisAddr == "" {
		logger.Fatal("redis addr is required (--redis-addr or AMM_REDIS_ADDR)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pubsub := cache.NewPubSubManager(cfg.RedisAddr, logger)
	defer func() {
		_ = pubsub.Close()
	}()

	handle := func(trade *models.TradeEvent) {
		logger.WithFields(logrus.Fields{
			"id":         trade.ID,
			"pool":       trade.Pool,
			"pair":       trade.Pair(),
			"amount_in":  trade.AmountIn,
			"amount_out": trade.AmountOut,
			"rate":       trade.ExchangeRate,
			"impact_bp":  trade.PriceImpactBP,
			"segments":   trade.Segments,
		}).Info("trade")
	}

	if *pool != "" {
		logger.WithField("channel", cache.PoolChannel(*pool)).Info("starting subscriber")
		err = pubsub.Subscribe(ctx, cache.PoolChannel(*pool), handle)
	} else {
		logger.WithField("pattern", constants.PubSubPatternPools).Info("starting subscriber")
		err = pubsub.PSubscribe(ctx, constants.PubSubPatternPools, handle)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("subscription failed")
	}
	logger.Info("subscriber stopped")
}
