package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	investgo "github.com/russianinvestments/invest-api-go-sdk/investgo"
	"github.com/sirupsen/logrus"

	"github.com/quanttradingfs/QuantFSA/internal/application/service/aggregation"
	"github.com/quanttradingfs/QuantFSA/internal/application/service/universe"
	"github.com/quanttradingfs/QuantFSA/internal/config"
	"github.com/quanttradingfs/QuantFSA/internal/infrastructure/dataset"
	"github.com/quanttradingfs/QuantFSA/internal/infrastructure/invest"
	"github.com/quanttradingfs/QuantFSA/internal/infrastructure/reference"
	"github.com/quanttradingfs/QuantFSA/internal/infrastructure/yahoo"
)

type runParams struct {
	StartYear int
	EndYear   int
	Symbols   []string
	Restrict  bool
	Source    aggregation.Source
}

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

	params, err := loadRunParams()
	if err != nil {
		logger.Fatalf("run params error: %v", err)
	}

	store, err := dataset.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init dataset repo: %v", err)
	}
	defer store.Close()

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

	symbols, err := universe.NewService(trading, tickers).Resolve(ctx, params.Symbols, params.Restrict)
	if err != nil {
		logger.Fatalf("resolve universe: %v", err)
	}
	logger.WithField("symbols", len(symbols)).Info("universe resolved")

	service := aggregation.NewService(primary, primary, secondary, store, logger, aggregation.Options{
		Group:       cfg.Data.Group,
		FilterLabel: cfg.Data.FilterLabel,
	})

	artifacts, err := service.Aggregate(ctx, params.StartYear, params.EndYear, symbols, params.Source, params.Restrict)
	if err != nil {
		logger.Fatalf("aggregation failed: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"artifacts": artifacts,
		"source":    string(params.Source),
	}).Info("aggregation finished")
}

func loadRunParams() (*runParams, error) {
	startYear, err := requireIntEnv("AGGREGATE_START_YEAR")
	if err != nil {
		return nil, err
	}
	endYear, err := requireIntEnv("AGGREGATE_END_YEAR")
	if err != nil {
		return nil, err
	}

	source := aggregation.Source(strings.ToLower(strings.TrimSpace(os.Getenv("AGGREGATE_SOURCE"))))
	if source == "" {
		source = aggregation.SourcePrimary
	}

	restrict := false
	if raw := strings.TrimSpace(os.Getenv("AGGREGATE_RESTRICT")); raw != "" {
		restrict, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parse AGGREGATE_RESTRICT: %w", err)
		}
	}

	var symbols []string
	for _, symbol := range strings.Split(os.Getenv("AGGREGATE_SYMBOLS"), ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol != "" {
			symbols = append(symbols, symbol)
		}
	}

	return &runParams{
		StartYear: startYear,
		EndYear:   endYear,
		Symbols:   symbols,
		Restrict:  restrict,
		Source:    source,
	}, nil
}

func requireIntEnv(key string) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0, errors.New(key + " is required")
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
