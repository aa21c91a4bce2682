package main

import (
	"context"
	"encoding/hex"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deepdex/deepdex/params"
	"github.com/deepdex/deepdex/pkg/api"
	"github.com/deepdex/deepdex/pkg/clob"
	"github.com/deepdex/deepdex/pkg/storage"
	"github.com/deepdex/deepdex/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load .env from current directory

	level := zapcore.InfoLevel
	if os.Getenv("VERBOSE") == "true" {
		level = zapcore.DebugLevel
	}

	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, level)
	} else {
		logger, err = util.NewLogger(level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	store, err := storage.NewPebbleStore(cfg.Node.DataDir)
	if err != nil {
		logger.Fatal("open store", zap.String("dir", cfg.Node.DataDir), zap.Error(err))
	}
	defer store.Close()

	var fileJournal *storage.FileJournal
	if cfg.Node.TradeLog != "" {
		fileJournal, err = storage.NewFileJournal(cfg.Node.TradeLog)
		if err != nil {
			logger.Fatal("open trade log", zap.String("path", cfg.Node.TradeLog), zap.Error(err))
		}
		defer fileJournal.Close()
	}

	reg := clob.NewRegistry()
	server := api.NewServer(reg, logger,
		api.WithTradeHistory(store),
		api.WithAllowedOrigins(cfg.API.AllowedOrigins),
	)

	sinkFor := func(symbol string) clob.TradeSink {
		sinks := storage.MultiJournal{store, server.Sink(symbol)}
		if fileJournal != nil {
			sinks = append(sinks, fileJournal)
		}
		return sinks
	}

	// Restore persisted pools first, then create any configured pool that
	// has no snapshot yet.
	states, err := store.ListPoolStates()
	if err != nil {
		logger.Fatal("list pool states", zap.Error(err))
	}
	for _, st := range states {
		pool, err := clob.RestorePool(st,
			clob.WithLogger(logger),
			clob.WithTradeSink(sinkFor(st.Params.Symbol)),
		)
		if err != nil {
			logger.Fatal("restore pool", zap.String("symbol", st.Params.Symbol), zap.Error(err))
		}
		if err := reg.Register(pool); err != nil {
			logger.Fatal("register pool", zap.String("symbol", st.Params.Symbol), zap.Error(err))
		}
		logger.Info("pool restored",
			zap.String("symbol", st.Params.Symbol),
			zap.Int("orders", len(st.Orders)))
	}

	for _, poolParams := range cfg.Pools {
		if _, err := reg.Pool(poolParams.Symbol); err == nil {
			continue
		}
		_, ownerCap, err := reg.CreatePool(poolParams,
			clob.WithLogger(logger),
			clob.WithTradeSink(sinkFor(poolParams.Symbol)),
		)
		if err != nil {
			logger.Fatal("create pool", zap.String("symbol", poolParams.Symbol), zap.Error(err))
		}
		// The owner token gates fee withdrawal and is printed exactly once.
		logger.Info("pool created",
			zap.String("symbol", poolParams.Symbol),
			zap.String("ownerToken", hex.EncodeToString(ownerCap.Token[:])))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshot := func() {
		for _, pool := range reg.List() {
			if err := store.SavePoolState(pool.ExportState()); err != nil {
				logger.Error("save pool state",
					zap.String("symbol", pool.Params().Symbol), zap.Error(err))
			}
		}
	}

	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Node.SnapshotIntervalMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				snapshot()
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := server.Start(cfg.API.ListenAddr); err != nil {
			logger.Fatal("api server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down, taking final snapshot")
	snapshot()
}
