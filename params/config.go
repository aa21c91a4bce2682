// Package params holds process configuration: pool defaults, API listen
// address, and storage paths. Values load from an optional .env file with
// environment variables taking priority.
package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/deepdex/deepdex/pkg/clob"
)

type Node struct {
	// DataDir is the Pebble database directory.
	DataDir string
	// TradeLog, when set, mirrors every fill to a JSON-lines file.
	TradeLog string
	// LogFile, when set, tees structured logs to a file next to stderr.
	LogFile string
	// SnapshotIntervalMs is how often pool state is flushed to disk.
	SnapshotIntervalMs uint64
}

type API struct {
	ListenAddr     string
	AllowedOrigins []string
}

type Config struct {
	Node  Node
	API   API
	Pools []clob.Params
}

func Default() Config {
	return Config{
		Node: Node{
			DataDir:            "data/deepdex",
			SnapshotIntervalMs: 5_000,
		},
		API: API{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Pools: []clob.Params{
			{
				Symbol:          "ETH-USDC",
				BaseAsset:       "ETH",
				QuoteAsset:      "USDC",
				TickSize:        1,
				LotSize:         1,
				MinSize:         1,
				TakerFeeRate:    5_000_000, // 0.5% of quote notional
				MakerRebateRate: 2_500_000, // 0.25%
			},
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and the
// environment. Priority: env > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("DEEPDEX_DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("DEEPDEX_TRADE_LOG"); v != "" {
		cfg.Node.TradeLog = v
	}
	if v := os.Getenv("DEEPDEX_LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("DEEPDEX_SNAPSHOT_INTERVAL_MS"); v != "" {
		if ms, err := strconv.ParseUint(v, 10, 64); err == nil && ms > 0 {
			cfg.Node.SnapshotIntervalMs = ms
		}
	}
	if v := os.Getenv("DEEPDEX_API_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("DEEPDEX_CORS_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = strings.Split(v, ",")
	}

	// Single-pool overrides for the default pool. Multi-pool deployments
	// create pools through the API instead.
	pool := &cfg.Pools[0]
	if v := os.Getenv("DEEPDEX_POOL_SYMBOL"); v != "" {
		pool.Symbol = v
		if base, quote, ok := strings.Cut(v, "-"); ok {
			pool.BaseAsset = base
			pool.QuoteAsset = quote
		}
	}
	if v, ok := envUint("DEEPDEX_POOL_TICK_SIZE"); ok {
		pool.TickSize = v
	}
	if v, ok := envUint("DEEPDEX_POOL_LOT_SIZE"); ok {
		pool.LotSize = v
	}
	if v, ok := envUint("DEEPDEX_POOL_MIN_SIZE"); ok {
		pool.MinSize = v
	}
	if v, ok := envUint("DEEPDEX_POOL_TAKER_FEE_RATE"); ok {
		pool.TakerFeeRate = v
	}
	if v, ok := envUint("DEEPDEX_POOL_MAKER_REBATE_RATE"); ok {
		pool.MakerRebateRate = v
	}

	return cfg
}

func envUint(key string) (uint64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
