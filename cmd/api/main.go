package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/handler"
	"marketplace/internal/infra/db"
	"marketplace/internal/infra/redisx"
	infraRepo "marketplace/internal/infra/repository"
	"marketplace/internal/observability"
	repo "marketplace/internal/repository"
	"marketplace/internal/server"
	"marketplace/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	//.envはローカル用。無くても環境変数で動く
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Error().Err(err).Msg("api stopped")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	zerolog.DefaultContextLogger = &logger

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	if err := db.Migrate(gormDB); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}

	//二重送信防止（REDIS_ADDRがあるときだけ）
	var idem repo.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb, err := redisx.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		idem = redisx.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)
	} else {
		logger.Warn().Msg("REDIS_ADDR is empty: checkout idempotency disabled")
	}

	//Repository（GORM実装）
	txm := infraRepo.NewTxManagerGorm(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)

	//Usecase
	clock := usecase.SystemClock{}
	cartUC := usecase.NewCartUsecase(txm, clock)
	checkoutUC := usecase.NewCheckoutUsecase(txm, idem, clock)
	fulfillmentUC := usecase.NewFulfillmentUsecase(txm, clock)
	auditUC := usecase.NewAuditLogUsecase(auditRepo)

	//Handler
	srv := server.New(cfg, logger, server.Handlers{
		Cart:        handler.NewCartHandler(cartUC),
		Checkout:    handler.NewCheckoutHandler(checkoutUC),
		Fulfillment: handler.NewFulfillmentHandler(fulfillmentUC, auditUC),
	})

	//Server起動
	return srv.Start(ctx)
}
