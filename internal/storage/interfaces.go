package storage

import (
	"context"
	"io"

	"github.com/aman-zulfiqar/orbital-amm/internal/flags"
	"github.com/aman-zulfiqar/orbital-amm/internal/models"
)

// TradePublisher fans committed trades out to live subscribers
type TradePublisher interface {
	// PublishTrade publishes a trade event to the Pub/Sub channels
	PublishTrade(ctx context.Context, trade *models.TradeEvent) error
}

// TradeCache keeps a short per-pool history for the API
type TradeCache interface {
	// AddRecentTrade pushes a trade onto its pool's recent list
	AddRecentTrade(ctx context.Context, trade *models.TradeEvent) error

	// GetRecentTrades retrieves the most recent trades of a pool, newest first
	GetRecentTrades(ctx context.Context, poolID string, limit int64) ([]*models.TradeEvent, error)

	// Ping checks if the cache is reachable
	Ping(ctx context.Context) error

	io.Closer
}

// TradeStore is the append-only trade log
type TradeStore interface {
	// InsertTrade inserts a trade event into the store
	InsertTrade(ctx context.Context, trade *models.TradeEvent) error

	// RecentTrades reads back the latest trades of a pool
	RecentTrades(ctx context.Context, poolID string, limit int) ([]*models.TradeEvent, error)

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	io.Closer
}

// HaltStore holds per-pool trading switches
type HaltStore interface {
	IsHalted(ctx context.Context, poolID string) (bool, error)
	Get(ctx context.Context, poolID string) (*flags.Halt, error)
	Set(ctx context.Context, poolID string, halted bool, reason string) (*flags.Halt, error)
	List(ctx context.Context) ([]*flags.Halt, error)
	Delete(ctx context.Context, poolID string) error
}

// TradeHandler is a function that processes trade events
type TradeHandler func(*models.TradeEvent)
