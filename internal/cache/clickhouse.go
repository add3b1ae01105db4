package cache

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/aman-zulfiqar/orbital-amm/internal/constants"
	"github.com/aman-zulfiqar/orbital-amm/internal/models"
	"github.com/sirupsen/logrus"
)

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseStore is the append-only trade log.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig, logger *logrus.Logger) (*ClickHouseStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.WithFields(logrus.Fields{"addr": cfg.Addr, "database": cfg.Database}).Info("connected to ClickHouse")

	return &ClickHouseStore{conn: conn, logger: logger}, nil
}

const createTradesTable = `
	CREATE TABLE IF NOT EXISTS ` + constants.ClickHouseTradesTable + ` (
		id String,
		pool_id String,
		pool String,
		curve String,
		timestamp DateTime64(3, 'UTC'),
		token_in String,
		token_out String,
		amount_in String,
		amount_out String,
		price_before String,
		price_after String,
		exchange_rate String,
		price_impact_bp UInt64,
		segments UInt32,
		ticks_crossed UInt32
	) ENGINE = MergeTree
	ORDER BY (pool_id, timestamp)
`

// EnsureSchema creates the trades table when it is missing.
func (c *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, createTradesTable); err != nil {
		return fmt.Errorf("create trades table: %w", err)
	}
	return nil
}

func (c *ClickHouseStore) InsertTrade(ctx context.Context, trade *models.TradeEvent) error {
	query := `
		INSERT INTO ` + constants.ClickHouseTradesTable + ` (
			id, pool_id, pool, curve, timestamp, token_in, token_out,
			amount_in, amount_out, price_before, price_after, exchange_rate,
			price_impact_bp, segments, ticks_crossed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		trade.ID,
		trade.PoolID,
		trade.Pool,
		trade.Curve,
		trade.Timestamp,
		trade.TokenIn,
		trade.TokenOut,
		trade.AmountIn,
		trade.AmountOut,
		trade.PriceBefore,
		trade.PriceAfter,
		trade.ExchangeRate,
		trade.PriceImpactBP,
		uint32(trade.Segments),
		uint32(trade.TicksCrossed),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	return nil
}

func (c *ClickHouseStore) RecentTrades(ctx context.Context, poolID string, limit int) ([]*models.TradeEvent, error) {
	if limit <= 0 || limit > constants.MaxRecentTrades {
		limit = constants.MaxRecentTrades
	}

	rows, err := c.conn.Query(ctx, `
		SELECT id, pool_id, pool, curve, timestamp, token_in, token_out,
			amount_in, amount_out, price_before, price_after, exchange_rate,
			price_impact_bp, segments, ticks_crossed
		FROM `+constants.ClickHouseTradesTable+`
		WHERE pool_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, poolID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []*models.TradeEvent
	for rows.Next() {
		var (
			t        models.TradeEvent
			segments uint32
			crossed  uint32
		)
		if err := rows.Scan(
			&t.ID, &t.PoolID, &t.Pool, &t.Curve, &t.Timestamp, &t.TokenIn, &t.TokenOut,
			&t.AmountIn, &t.AmountOut, &t.PriceBefore, &t.PriceAfter, &t.ExchangeRate,
			&t.PriceImpactBP, &segments, &crossed,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Segments = int(segments)
		t.TicksCrossed = int(crossed)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read trades: %w", err)
	}
	return out, nil
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
