package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/aman-zulfiqar/orbital-amm/internal/cache"
	"github.com/aman-zulfiqar/orbital-amm/internal/config"
	"github.com/aman-zulfiqar/orbital-amm/internal/constants"
	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/aman-zulfiqar/orbital-amm/internal/flags"
	"github.com/aman-zulfiqar/orbital-amm/internal/metrics"
	"github.com/aman-zulfiqar/orbital-amm/internal/registry"
	"github.com/aman-zulfiqar/orbital-amm/internal/server"
	"github.com/aman-zulfiqar/orbital-amm/internal/storage"
	"github.com/aman-zulfiqar/orbital-amm/internal/stream"
	"github.com/aman-zulfiqar/orbital-amm/internal/swapengine"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main is the entry point for the API server
// It loads the pools, wires the optional Redis and ClickHouse sinks and
// serves the HTTP API until SIGINT or SIGTERM
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE viper reads the environment
	loadEnv(logger)

	fs := config.Flags("api")
	cfgFile := fs.String("config", "", "optional config file (yaml, json or toml)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.WithError(err).Fatal("invalid flags")
	}

	cfg, err := config.Load(*cfgFile, fs)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Pools
	reg := registry.New(logger)
	reg.SetDefaultTolerance(cfg.ToleranceBP)
	n, err := reg.LoadFile(cfg.PoolsFile)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{"file": cfg.PoolsFile, "loaded": n}).Fatal("failed to load pools")
	}

	m := metrics.New(prometheus.DefaultRegisterer, "amm")
	m.PoolsRegistered.Set(float64(reg.Len()))

	// Interface-typed so a disabled sink stays a true nil
	var (
		halts     storage.HaltStore
		publisher storage.TradePublisher
		tradeLog  storage.TradeCache
		store     storage.TradeStore
		feed      *stream.Feed
	)

	if cfg.RedisAddr != "" {
		rclient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, constants.PingTimeout)
		err := rclient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to Redis")
		}
		defer func() {
			_ = rclient.Close()
		}()

		haltStore, err := flags.NewStore(rclient)
		if err != nil {
			logger.WithError(err).Fatal("failed to create halt store")
		}
		halts = haltStore
		if cfg.EnableTradePublishing {
			pubsub := cache.NewPubSubManagerFromClient(rclient, logger)
			publisher = pubsub
			tradeLog = cache.NewRedisCacheFromClient(rclient, logger)
			if feed, err = stream.NewFeed(stream.FeedConfig{Subscriber: pubsub, Logger: logger}); err != nil {
				logger.WithError(err).Fatal("failed to create trade feed")
			}
		}
	} else {
		logger.Warn("redis disabled: no halts, trade events or recent trades")
	}

	if cfg.ClickHouseAddr != "" && cfg.EnableTradeRecording {
		chCtx, chCancel := context.WithTimeout(ctx, constants.PingTimeout)
		ch, err := cache.NewClickHouseStore(chCtx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		}, logger)
		if err == nil {
			err = ch.EnsureSchema(chCtx)
		}
		chCancel()
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize ClickHouse")
		}
		defer func() {
			_ = ch.Close()
		}()
		store = ch
	}

	risk := swapengine.DefaultRiskConfig()
	risk.DefaultSlippageBps = cfg.DefaultSlippageBps
	risk.MaxSlippageBps = cfg.MaxSlippageBps
	risk.MaxPriceImpactBps = cfg.MaxPriceImpactBps
	if cfg.MaxAmountIn != "" {
		risk.MaxAmountIn = mustAmount(logger, "max-amount-in", cfg.MaxAmountIn)
	}
	if cfg.DailyLimit != "" {
		risk.DailyLimit = mustAmount(logger, "daily-limit", cfg.DailyLimit)
	}
	risk.AllowedTokens = cfg.AllowedTokens

	engine, err := swapengine.NewEngine(swapengine.EngineDeps{
		Registry:       reg,
		Halts:          halts,
		Publisher:      publisher,
		Cache:          tradeLog,
		Store:          store,
		Metrics:        m,
		Logger:         logger,
		Risk:           risk,
		PublishTimeout: cfg.PublishTimeout,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create swap engine")
	}

	h := &server.Handlers{
		Registry:       reg,
		Engine:         engine,
		Halts:          halts,
		Feed:           feed,
		DevMode:        cfg.DevMode,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	}

	srv, err := server.New(server.Deps{
		Handlers: h,
		Config: server.Config{
			Addr:          cfg.APIAddr,
			DevMode:       cfg.DevMode,
			APIKey:        cfg.APIKey,
			SwapRateLimit: cfg.SwapRateLimit,
			SwapRateBurst: cfg.SwapRateBurst,
		},
		Gatherer: prometheus.DefaultGatherer,
		Metrics:  m,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	// Setup graceful shutdown in a separate goroutine
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithFields(logrus.Fields{
		"addr":  cfg.APIAddr,
		"pools": reg.Len(),
	}).Info("api server starting")
	if err := srv.Start(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			if err := srv.WaitClosed(context.Background()); err != nil {
				fmt.Println(err)
			}
			return
		}
		logger.WithError(err).Fatal("api server failed")
	}
}

func mustAmount(logger *logrus.Logger, name, s string) *uint256.Int {
	v, err := fixedpoint.Parse(s)
	if err != nil || v.IsZero() {
		logger.WithError(err).WithField(name, s).Fatal("invalid risk limit")
	}
	return v
}
