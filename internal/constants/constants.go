package constants

import "time"

// Redis keys
const (
	RedisKeyHaltPrefix   = "halt:pool:"
	RedisKeyHaltIndex    = "halt:pools"
	RedisKeyRecentPrefix = "trades:recent:" // followed by the pool ID
)

// Redis Pub/Sub channels
const (
	PubSubChannelTrades    = "trades:all"
	PubSubChannelPoolTrade = "trades:pool:" // followed by the pool ID
	PubSubPatternPools     = "trades:pool:*"
)

// ClickHouse
const (
	ClickHouseTradesTable = "trades"
)

// Limits
const (
	MaxRecentTrades  = 100
	MaxPoolsListed   = 500
	MaxSlippageBps   = 10_000
	MaxRequestBody   = "64K"
	DefaultQuoteSize = "1"
)

// Timeouts
const (
	ShutdownTimeout = 10 * time.Second
	PingTimeout     = 5 * time.Second
)
