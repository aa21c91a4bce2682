package params

import "testing"

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.API.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %q", cfg.API.ListenAddr)
	}
	if len(cfg.Pools) != 1 {
		t.Fatalf("default pools = %d, want 1", len(cfg.Pools))
	}
	pool := cfg.Pools[0]
	if err := pool.Validate(); err != nil {
		t.Fatalf("default pool params invalid: %v", err)
	}
	if pool.Symbol != "ETH-USDC" || pool.BaseAsset != "ETH" || pool.QuoteAsset != "USDC" {
		t.Fatalf("default pool = %+v", pool)
	}
	if pool.TakerFeeRate != 5_000_000 || pool.MakerRebateRate != 2_500_000 {
		t.Fatalf("default fee schedule = %d/%d", pool.TakerFeeRate, pool.MakerRebateRate)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DEEPDEX_DATA_DIR", "/tmp/dex-test")
	t.Setenv("DEEPDEX_API_ADDR", ":9999")
	t.Setenv("DEEPDEX_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("DEEPDEX_POOL_SYMBOL", "BTC-USDT")
	t.Setenv("DEEPDEX_POOL_TICK_SIZE", "100")
	t.Setenv("DEEPDEX_POOL_TAKER_FEE_RATE", "1000000")
	t.Setenv("DEEPDEX_POOL_MAKER_REBATE_RATE", "500000")
	t.Setenv("DEEPDEX_SNAPSHOT_INTERVAL_MS", "250")

	cfg := LoadFromEnv("/nonexistent/.env")
	if cfg.Node.DataDir != "/tmp/dex-test" {
		t.Fatalf("data dir = %q", cfg.Node.DataDir)
	}
	if cfg.Node.SnapshotIntervalMs != 250 {
		t.Fatalf("snapshot interval = %d", cfg.Node.SnapshotIntervalMs)
	}
	if cfg.API.ListenAddr != ":9999" {
		t.Fatalf("listen addr = %q", cfg.API.ListenAddr)
	}
	if len(cfg.API.AllowedOrigins) != 2 || cfg.API.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %v", cfg.API.AllowedOrigins)
	}

	pool := cfg.Pools[0]
	if pool.Symbol != "BTC-USDT" || pool.BaseAsset != "BTC" || pool.QuoteAsset != "USDT" {
		t.Fatalf("pool assets not derived from symbol: %+v", pool)
	}
	if pool.TickSize != 100 || pool.TakerFeeRate != 1_000_000 || pool.MakerRebateRate != 500_000 {
		t.Fatalf("pool overrides not applied: %+v", pool)
	}
}

func TestLoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("DEEPDEX_POOL_TICK_SIZE", "not-a-number")
	t.Setenv("DEEPDEX_SNAPSHOT_INTERVAL_MS", "0")

	cfg := LoadFromEnv("/nonexistent/.env")
	def := Default()
	if cfg.Pools[0].TickSize != def.Pools[0].TickSize {
		t.Fatalf("tick size = %d, want default %d", cfg.Pools[0].TickSize, def.Pools[0].TickSize)
	}
	if cfg.Node.SnapshotIntervalMs != def.Node.SnapshotIntervalMs {
		t.Fatalf("snapshot interval = %d, want default", cfg.Node.SnapshotIntervalMs)
	}
}
