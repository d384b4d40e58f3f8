package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	investgo "github.com/russianinvestments/invest-api-go-sdk/investgo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quanttradingfs/QuantFSA/internal/application/service/aggregation"
	"github.com/quanttradingfs/QuantFSA/internal/application/service/rebalance"
	"github.com/quanttradingfs/QuantFSA/internal/application/service/universe"
	"github.com/quanttradingfs/QuantFSA/internal/config"
	"github.com/quanttradingfs/QuantFSA/internal/infrastructure/dataset"
	"github.com/quanttradingfs/QuantFSA/internal/infrastructure/invest"
	"github.com/quanttradingfs/QuantFSA/internal/infrastructure/reference"
	"github.com/quanttradingfs/QuantFSA/internal/infrastructure/yahoo"
	infrahttp "github.com/quanttradingfs/QuantFSA/internal/interfaces/http"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.RequireInvest(); err != nil {
		logger.Fatalf("config error: %v", err)
	}

	store, err := dataset.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init dataset repo: %v", err)
	}
	defer store.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	investClient, err := investgo.NewClient(ctx, investgo.Config{
		EndPoint:           cfg.Invest.Endpoint,
		Token:              cfg.Invest.Token,
		AppName:            cfg.Invest.AppName,
		InsecureSkipVerify: cfg.Invest.SkipTLSVerify,
	}, logger)
	if err != nil {
		logger.Fatalf("create invest api client: %v", err)
	}
	defer func() {
		if stopErr := investClient.Stop(); stopErr != nil {
			logger.Errorf("stop invest api client: %v", stopErr)
		}
	}()

	primary := invest.NewMarketDataClient(investClient, cfg.Invest.Exchange, logger)
	trading := invest.NewTradingClient(investClient, cfg.Invest.AccountID, logger)
	secondary := yahoo.NewClient(logger)
	tickers := reference.NewFileSource(cfg.Data.TickersFile)

	aggregationService := aggregation.NewService(primary, primary, secondary, store, logger, aggregation.Options{
		Group:       cfg.Data.Group,
		FilterLabel: cfg.Data.FilterLabel,
	})
	universeService := universe.NewService(trading, tickers)
	rebalanceService := rebalance.NewService(trading, nil, logger, rebalance.Options{
		OrderTypeBuy:        cfg.Trading.OrderTypeBuy,
		OrderTypeSell:       cfg.Trading.OrderTypeSell,
		TimeInForce:         cfg.Trading.TimeInForce,
		StrictOpenOrderType: cfg.Trading.StrictOpenOrderType,
		InitialEquity:       cfg.Trading.InitialEquity,
	})

	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	handler := infrahttp.NewHandler(aggregationService, universeService, rebalanceService, store, redisClient, cacheTTL)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("server stopped with error: %v", err)
	}
	logger.Info("server stopped")
}
