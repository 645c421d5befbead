package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("dev", "outbox-relay")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "outbox-relay")
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.RelayInterval).
		Int("batch_size", cfg.RelayBatchSize).
		Msg("outbox-relay starting up")

	writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
	if writer == nil {
		logger.Warn().Msg("outbox relay disabled (no KAFKA_BROKERS configured)")
		return
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing kafka writer")
		}
	}()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgresWith(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2, MinConns: 1})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	relay := outbox.NewRelay(outbox.NewPgStore(pgPool), writer, logger, outbox.Config{
		Interval:  cfg.RelayInterval,
		BatchSize: cfg.RelayBatchSize,
	})
	relay.Run(rootCtx)
}
