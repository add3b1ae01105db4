package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	// API settings
	APIAddr  string
	APIKey   string
	DevMode  bool
	LogLevel string

	// Pools
	PoolsFile   string
	ToleranceBP uint64

	// Redis settings
	RedisAddr string
	RedisDB   int

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// Swap rate limiting
	SwapRateLimit float64
	SwapRateBurst int

	// Risk defaults
	DefaultSlippageBps    uint64
	MaxSlippageBps        uint64
	MaxPriceImpactBps     uint64
	MaxAmountIn           string   // decimal token units; empty means no cap
	DailyLimit            string   // per pool, decimal token units; empty means no cap
	AllowedTokens         []string // empty allows every token
	RequestTimeout        time.Duration
	PublishTimeout        time.Duration
	EnableTradeRecording  bool
	EnableTradePublishing bool
}

// Load merges defaults, an optional config file, AMM_* environment
// variables and flags. Flags win over the environment.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("api-addr", ":8090")
	v.SetDefault("api-key", "")
	v.SetDefault("dev-mode", false)
	v.SetDefault("log-level", "info")
	v.SetDefault("pools-file", "./configs/pools.json")
	v.SetDefault("tolerance-bp", uint64(10))
	v.SetDefault("redis-addr", "")
	v.SetDefault("redis-db", 0)
	v.SetDefault("clickhouse-addr", "")
	v.SetDefault("clickhouse-database", "amm")
	v.SetDefault("clickhouse-username", "default")
	v.SetDefault("clickhouse-password", "")
	v.SetDefault("swap-rate-limit", 20.0)
	v.SetDefault("swap-rate-burst", 40)
	v.SetDefault("default-slippage-bps", uint64(50))
	v.SetDefault("max-slippage-bps", uint64(500))
	v.SetDefault("max-price-impact-bps", uint64(300))
	v.SetDefault("max-amount-in", "")
	v.SetDefault("daily-limit", "")
	v.SetDefault("allowed-tokens", []string{})
	v.SetDefault("request-timeout", 10*time.Second)
	v.SetDefault("publish-timeout", 2*time.Second)
	v.SetDefault("record-trades", true)
	v.SetDefault("publish-trades", true)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("amm")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return &Config{
		APIAddr:  v.GetString("api-addr"),
		APIKey:   v.GetString("api-key"),
		DevMode:  v.GetBool("dev-mode"),
		LogLevel: v.GetString("log-level"),

		PoolsFile:   v.GetString("pools-file"),
		ToleranceBP: v.GetUint64("tolerance-bp"),

		RedisAddr: v.GetString("redis-addr"),
		RedisDB:   v.GetInt("redis-db"),

		ClickHouseAddr:     v.GetString("clickhouse-addr"),
		ClickHouseDatabase: v.GetString("clickhouse-database"),
		ClickHouseUsername: v.GetString("clickhouse-username"),
		ClickHousePassword: v.GetString("clickhouse-password"),

		SwapRateLimit: v.GetFloat64("swap-rate-limit"),
		SwapRateBurst: v.GetInt("swap-rate-burst"),

		DefaultSlippageBps:    v.GetUint64("default-slippage-bps"),
		MaxSlippageBps:        v.GetUint64("max-slippage-bps"),
		MaxPriceImpactBps:     v.GetUint64("max-price-impact-bps"),
		MaxAmountIn:           v.GetString("max-amount-in"),
		DailyLimit:            v.GetString("daily-limit"),
		AllowedTokens:         v.GetStringSlice("allowed-tokens"),
		RequestTimeout:        v.GetDuration("request-timeout"),
		PublishTimeout:        v.GetDuration("publish-timeout"),
		EnableTradeRecording:  v.GetBool("record-trades"),
		EnableTradePublishing: v.GetBool("publish-trades"),
	}, nil
}

// Validate checks the fields every binary depends on.
func (c *Config) Validate() error {
	if c.APIAddr == "" {
		return errors.New("api addr is required")
	}
	if c.PoolsFile == "" {
		return errors.New("pools file is required")
	}
	if c.DefaultSlippageBps > c.MaxSlippageBps {
		return fmt.Errorf("default slippage %d bps exceeds max %d bps", c.DefaultSlippageBps, c.MaxSlippageBps)
	}
	if c.MaxSlippageBps > 10_000 {
		return fmt.Errorf("max slippage %d bps exceeds 100%%", c.MaxSlippageBps)
	}
	if c.SwapRateLimit <= 0 || c.SwapRateBurst <= 0 {
		return errors.New("swap rate limit and burst must be positive")
	}
	if c.ClickHouseAddr != "" && c.ClickHouseDatabase == "" {
		return errors.New("clickhouse database is required when clickhouse addr is set")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// Flags returns the flag set the binaries register; names match the
// viper keys so BindPFlags picks them up.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("api-addr", ":8090", "HTTP listen address")
	fs.String("pools-file", "./configs/pools.json", "pool definitions (JSON)")
	fs.String("redis-addr", "", "Redis address; empty disables events and halts")
	fs.String("clickhouse-addr", "", "ClickHouse address; empty disables the trade log")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Bool("dev-mode", false, "include error details in API responses")
	return fs
}
