package invest

import (
	"context"
	"time"

	investgo "github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/sirupsen/logrus"

	marketdata "github.com/quanttradingfs/QuantFSA/internal/domain/entity/marketdata"
	"github.com/quanttradingfs/QuantFSA/internal/domain/interfaces"
)

const providerLabel = "Invest"

// MarketDataClient serves historical daily candles and the exchange
// trading schedule. One instance is safe for concurrent use.
type MarketDataClient struct {
	md          *investgo.MarketDataServiceClient
	instruments *investgo.InstrumentsServiceClient
	index       *symbolIndex
	exchange    string
	logger      *logrus.Entry
}

func NewMarketDataClient(client *investgo.Client, exchange string, logger *logrus.Logger) *MarketDataClient {
	instruments := client.NewInstrumentsServiceClient()
	return &MarketDataClient{
		md:          client.NewMarketDataServiceClient(),
		instruments: instruments,
		index:       newSymbolIndex(instruments),
		exchange:    exchange,
		logger:      logger.WithField("component", "invest_marketdata"),
	}
}

func (c *MarketDataClient) Label() string {
	return providerLabel
}

// DailyBars fetches day candles for each symbol in turn. Symbols the
// provider does not list are skipped with a warning so one unknown
// ticker does not abort a whole batch.
func (c *MarketDataClient) DailyBars(ctx context.Context, symbols []string, from, to time.Time) ([]marketdata.Bar, error) {
	if err := c.index.ensure(); err != nil {
		return nil, &interfaces.ProviderError{Provider: providerLabel, Op: "list instruments", Err: err}
	}

	var bars []marketdata.Bar
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		uid, ok := c.index.uidFor(symbol)
		if !ok {
			c.logger.WithField("symbol", symbol).Warn("symbol not listed by provider")
			continue
		}

		resp, err := c.md.GetHistoricCandles(&investgo.GetHistoricCandlesRequest{
			Instrument: uid,
			Interval:   pb.CandleInterval_CANDLE_INTERVAL_DAY,
			From:       from,
			To:         to,
		})
		if err != nil {
			return nil, &interfaces.ProviderError{Provider: providerLabel, Op: "get historic candles " + symbol, Err: err}
		}

		for _, candle := range resp {
			if candle == nil || candle.GetTime() == nil {
				continue
			}
			bars = append(bars, candleToBar(symbol, candle))
		}
	}
	return bars, nil
}

// The schedule window is a wide fixed range so every aggregation year,
// past or scheduled, resolves against the same calendar.
var (
	calendarFrom = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	calendarTo   = time.Date(2029, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// Calendar returns past and scheduled trading days for the configured
// exchange, close times normalized to dates downstream.
func (c *MarketDataClient) Calendar(ctx context.Context) (marketdata.Calendar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	from := calendarFrom
	to := calendarTo

	resp, err := c.instruments.TradingSchedules(c.exchange, from, to)
	if err != nil {
		return nil, &interfaces.ProviderError{Provider: providerLabel, Op: "trading schedules", Err: err}
	}

	var calendar marketdata.Calendar
	for _, schedule := range resp.GetExchanges() {
		if schedule == nil {
			continue
		}
		for _, day := range schedule.GetDays() {
			if day == nil || !day.GetIsTradingDay() {
				continue
			}
			date := time.Time{}
			if ts := day.GetDate(); ts != nil {
				date = ts.AsTime().UTC()
			}
			closeAt := date
			if ts := day.GetEndTime(); ts != nil {
				closeAt = ts.AsTime().UTC()
			}
			calendar = append(calendar, marketdata.TradingDay{
				Date:  date,
				Close: closeAt,
			})
		}
	}
	return calendar, nil
}

// Day candles carry no trade count or vwap, those fields stay zero.
func candleToBar(symbol string, candle *pb.HistoricCandle) marketdata.Bar {
	return marketdata.Bar{
		Symbol: symbol,
		Date:   candle.GetTime().AsTime().UTC(),
		Open:   quotationToFloat(candle.GetOpen()),
		High:   quotationToFloat(candle.GetHigh()),
		Low:    quotationToFloat(candle.GetLow()),
		Close:  quotationToFloat(candle.GetClose()),
		Volume: candle.GetVolume(),
	}
}

func quotationToFloat(q *pb.Quotation) float64 {
	if q == nil {
		return 0
	}
	return q.ToFloat()
}
