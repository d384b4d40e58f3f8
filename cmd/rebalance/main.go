package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	investgo "github.com/russianinvestments/invest-api-go-sdk/investgo"
	"github.com/sirupsen/logrus"

	"github.com/quanttradingfs/QuantFSA/internal/application/service/rebalance"
	"github.com/quanttradingfs/QuantFSA/internal/config"
	portfolio "github.com/quanttradingfs/QuantFSA/internal/domain/entity/portfolio"
	"github.com/quanttradingfs/QuantFSA/internal/domain/interfaces"
	"github.com/quanttradingfs/QuantFSA/internal/infrastructure/broker"
	"github.com/quanttradingfs/QuantFSA/internal/infrastructure/invest"
)

const defaultTargetFile = "configs/target.json"

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

	targetFile := strings.TrimSpace(os.Getenv("TARGET_FILE"))
	if targetFile == "" {
		targetFile = defaultTargetFile
	}
	target, err := readTarget(targetFile)
	if err != nil {
		logger.Fatalf("read target allocation: %v", err)
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

	trading := invest.NewTradingClient(investClient, cfg.Invest.AccountID, logger)

	var events interfaces.OrderEventPublisher
	if cfg.Rabbit.URL != "" {
		publisher, err := broker.NewPublisher(cfg.Rabbit.URL, cfg.Rabbit.OrdersExchange, logger)
		if err != nil {
			logger.Fatalf("init order publisher: %v", err)
		}
		defer publisher.Close()
		events = publisher
	}

	service := rebalance.NewService(trading, events, logger, rebalance.Options{
		OrderTypeBuy:        cfg.Trading.OrderTypeBuy,
		OrderTypeSell:       cfg.Trading.OrderTypeSell,
		TimeInForce:         cfg.Trading.TimeInForce,
		StrictOpenOrderType: cfg.Trading.StrictOpenOrderType,
		InitialEquity:       cfg.Trading.InitialEquity,
	})

	report, err := service.Rebalance(ctx, target)
	if err != nil {
		logger.WithError(err).Warn("some orders were rejected")
	}
	if report != nil {
		logger.WithFields(logrus.Fields{
			"closed":   len(report.Closed),
			"adjusted": len(report.Adjusted),
			"failures": len(report.Failures),
		}).Info("rebalance finished")
	}

	ratio, err := service.Performance(ctx)
	if err != nil {
		logger.Fatalf("read performance: %v", err)
	}
	logger.WithField("return", ratio).Info("performance since inception")
}

// The target file is an ordered array; entry order decides instruction
// order within the non-close phase.
func readTarget(path string) (*portfolio.TargetAllocation, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read target file: %w", err)
	}

	var entries []struct {
		Symbol   string  `json:"symbol"`
		Quantity float64 `json:"quantity"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse target file: %w", err)
	}

	target := portfolio.NewTargetAllocation()
	for _, entry := range entries {
		symbol := strings.TrimSpace(entry.Symbol)
		if symbol == "" {
			continue
		}
		target.Set(symbol, entry.Quantity)
	}
	if target.Len() == 0 {
		return nil, fmt.Errorf("target file %s holds no symbols", path)
	}
	return target, nil
}
