package yahoo

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	marketdata "github.com/quanttradingfs/QuantFSA/internal/domain/entity/marketdata"
	"github.com/quanttradingfs/QuantFSA/internal/domain/interfaces"
)

const providerLabel = "Yahoo"

// Client serves historical daily bars from Yahoo Finance. Bars are
// auto-adjusted for splits and dividends, so Close already carries the
// adjusted value.
type Client struct {
	logger *logrus.Entry
}

func NewClient(logger *logrus.Logger) *Client {
	return &Client{logger: logger.WithField("component", "yahoo")}
}

func (c *Client) Label() string {
	return providerLabel
}

// DailyBars fetches the full daily history per symbol and keeps bars
// inside [from, to]. Symbols Yahoo does not know are skipped with a
// warning so one unknown ticker does not abort the batch.
func (c *Client) DailyBars(ctx context.Context, symbols []string, from, to time.Time) ([]marketdata.Bar, error) {
	fromDate := marketdata.DateOnly(from)
	toDate := marketdata.DateOnly(to)

	var bars []marketdata.Bar
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		history, err := c.symbolHistory(symbol)
		if err != nil {
			if isNotFound(err) {
				c.logger.WithField("symbol", symbol).WithError(err).Warn("symbol not listed by provider")
				continue
			}
			return nil, &interfaces.ProviderError{Provider: providerLabel, Op: "history " + symbol, Err: err}
		}

		for _, item := range history {
			date := marketdata.DateOnly(item.Date.UTC())
			if date.Before(fromDate) || date.After(toDate) {
				continue
			}
			bars = append(bars, marketdata.Bar{
				Symbol: symbol,
				Date:   date,
				Open:   item.Open,
				High:   item.High,
				Low:    item.Low,
				Close:  item.Close,
				Volume: int64(item.Volume),
			})
		}
	}
	return bars, nil
}

func (c *Client) symbolHistory(symbol string) ([]models.Bar, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	return t.History(models.HistoryParams{
		Period:     "max",
		Interval:   "1d",
		AutoAdjust: true,
	})
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no data")
}
