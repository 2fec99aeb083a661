package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"payPlanner/internal/chain"
)

// Storage backends.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPC                map[uint64]string
	PricingURL         string
	IndexerURL         string
	HTTPTimeout        time.Duration
	SpokePools         map[uint64]common.Address
	WrappedTokens      map[uint64]common.Address
	Slippage           decimal.Decimal
	SwapSlippage       decimal.Decimal
	USDBuffer          decimal.Decimal
	SwapCandidates     int
	ShowUnavailable    bool
	BalanceCacheTTL    time.Duration
	PollInterval       time.Duration
	LogLookbackBlocks  uint64
	LogBatchSize       uint64
	MultiBalanceMethod string
	Storage            string
	StorageDir         string
	PGDSN              string
	RedisURL           string
	IndexerRetries     int
	IndexerBackoff     time.Duration
	MetricsAddr        string
	LogLevel           string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAYPLANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("pricing-url", "https://app.across.to/api")
	v.SetDefault("indexer-url", "https://indexer.api.across.to")
	v.SetDefault("http-timeout", 15*time.Second)
	v.SetDefault("slippage", "0.005")
	v.SetDefault("swap-slippage", "0.01")
	v.SetDefault("usd-buffer", "0.98")
	v.SetDefault("swap-candidates", 5)
	v.SetDefault("show-unavailable", false)
	v.SetDefault("balance-cache-ttl", 15*time.Second)
	v.SetDefault("poll-interval", 10*time.Second)
	v.SetDefault("log-lookback-blocks", uint64(50000))
	v.SetDefault("log-batch-size", uint64(5000))
	v.SetDefault("multi-balance-method", chain.DefaultBalanceMethod)
	v.SetDefault("storage", StorageFile)
	v.SetDefault("storage-dir", "./data/history")
	v.SetDefault("indexer-retries", 3)
	v.SetDefault("indexer-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	rpcs, err := ParseChainURLs(getStringSlice(v, "rpc"))
	if err != nil {
		return Config{}, fmt.Errorf("parse rpc: %w", err)
	}
	spokePools, err := ParseChainAddresses(getStringSlice(v, "spoke-pools"))
	if err != nil {
		return Config{}, fmt.Errorf("parse spoke-pools: %w", err)
	}
	wrapped, err := ParseChainAddresses(getStringSlice(v, "wrapped-tokens"))
	if err != nil {
		return Config{}, fmt.Errorf("parse wrapped-tokens: %w", err)
	}

	cfg := Config{
		RPC:                rpcs,
		PricingURL:         v.GetString("pricing-url"),
		IndexerURL:         v.GetString("indexer-url"),
		HTTPTimeout:        v.GetDuration("http-timeout"),
		SpokePools:         spokePools,
		WrappedTokens:      wrapped,
		SwapCandidates:     v.GetInt("swap-candidates"),
		ShowUnavailable:    v.GetBool("show-unavailable"),
		BalanceCacheTTL:    v.GetDuration("balance-cache-ttl"),
		PollInterval:       v.GetDuration("poll-interval"),
		LogLookbackBlocks:  v.GetUint64("log-lookback-blocks"),
		LogBatchSize:       v.GetUint64("log-batch-size"),
		MultiBalanceMethod: v.GetString("multi-balance-method"),
		Storage:            strings.ToLower(strings.TrimSpace(v.GetString("storage"))),
		StorageDir:         v.GetString("storage-dir"),
		PGDSN:              v.GetString("pg-dsn"),
		RedisURL:           v.GetString("redis-url"),
		IndexerRetries:     v.GetInt("indexer-retries"),
		IndexerBackoff:     v.GetDuration("indexer-backoff"),
		MetricsAddr:        v.GetString("metrics-addr"),
		LogLevel:           v.GetString("log-level"),
	}
	if cfg.Slippage, err = getFraction(v, "slippage"); err != nil {
		return Config{}, err
	}
	if cfg.SwapSlippage, err = getFraction(v, "swap-slippage"); err != nil {
		return Config{}, err
	}
	if cfg.USDBuffer, err = getFraction(v, "usd-buffer"); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a command.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageFile:
		if c.StorageDir == "" {
			return fmt.Errorf("storage-dir is required for file storage")
		}
	case StoragePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for postgres storage")
		}
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis-url is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.SwapCandidates < 0 {
		return fmt.Errorf("swap-candidates must not be negative")
	}
	if c.USDBuffer.IsNegative() || c.USDBuffer.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("usd-buffer must be within [0, 1]")
	}
	return nil
}

// ChainIDs returns the chains with an RPC endpoint, ascending.
func (c Config) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(c.RPC))
	for id := range c.RPC {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ChainClients returns the dial configuration of every chain.
func (c Config) ChainClients() []chain.ClientConfig {
	ids := c.ChainIDs()
	out := make([]chain.ClientConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, chain.ClientConfig{
			ChainID:       id,
			RPCURL:        c.RPC[id],
			BalanceMethod: c.MultiBalanceMethod,
		})
	}
	return out
}

func getFraction(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
