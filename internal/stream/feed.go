package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aman-zulfiqar/orbital-amm/internal/models"
	"github.com/aman-zulfiqar/orbital-amm/internal/storage"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Subscriber delivers trades published on a channel until ctx ends.
// cache.PubSubManager implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler storage.TradeHandler) error
}

// FeedConfig holds configuration for the websocket trade feed
type FeedConfig struct {
	Subscriber   Subscriber
	Logger       *logrus.Logger
	PingInterval time.Duration // Keepalive pings; defaults to 30s
	WriteTimeout time.Duration // Per-frame write deadline; defaults to 10s
	Buffer       int           // Trades queued per client before drops; defaults to 64
}

// Feed relays published trades to websocket clients. Each client gets its
// own subscription, so a slow client only drops its own messages.
type Feed struct {
	sub          Subscriber
	logger       *logrus.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration
	buffer       int

	clients atomic.Int64
}

func NewFeed(cfg FeedConfig) (*Feed, error) {
	if cfg.Subscriber == nil {
		return nil, errors.New("stream: subscriber is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Feed{
		sub:          cfg.Subscriber,
		logger:       cfg.Logger,
		upgrader:     websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
		buffer:       cfg.Buffer,
	}, nil
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int64 {
	return f.clients.Load()
}

// Serve upgrades the request and streams trades from channel as JSON text
// frames until the client goes away. Once the upgrade succeeds the
// connection is owned by Serve; a nil error means a normal disconnect.
func (f *Feed) Serve(w http.ResponseWriter, r *http.Request, channel string) error {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	defer conn.Close()

	f.clients.Add(1)
	defer f.clients.Add(-1)

	log := f.logger.WithFields(logrus.Fields{"channel": channel, "remote": r.RemoteAddr})
	log.Debug("feed client connected")

	// The request context is not cancelled when a hijacked connection
	// closes, so the read loop owns cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan *models.TradeEvent, f.buffer)
	subErr := make(chan error, 1)
	go func() {
		subErr <- f.sub.Subscribe(ctx, channel, func(t *models.TradeEvent) {
			select {
			case events <- t:
			default:
				log.WithField("trade_id", t.ID).Warn("feed client too slow, dropping trade")
			}
		})
	}()

	go func() {
		defer cancel()
		for {
			// Clients only send control frames; anything else is ignored.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("feed client disconnected")
			return nil

		case err := <-subErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Warn("feed subscription ended")
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
					time.Now().Add(f.writeTimeout))
				return err
			}
			return nil

		case t := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
			if err := conn.WriteJSON(t); err != nil {
				log.WithError(err).Debug("feed write failed")
				return nil
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(f.writeTimeout)); err != nil {
				return nil
			}
		}
	}
}
