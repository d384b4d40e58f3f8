package invest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	investgo "github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/sirupsen/logrus"

	portfolio "github.com/quanttradingfs/QuantFSA/internal/domain/entity/portfolio"
	"github.com/quanttradingfs/QuantFSA/internal/domain/interfaces"
)

var ErrNoOpenPosition = errors.New("no open position for symbol")

// TradingClient is the brokerage surface for one account: asset listing,
// position snapshots, market orders and account equity.
type TradingClient struct {
	orders     *investgo.OrdersServiceClient
	operations *investgo.OperationsServiceClient
	index      *symbolIndex
	accountID  string
	logger     *logrus.Entry
}

func NewTradingClient(client *investgo.Client, accountID string, logger *logrus.Logger) *TradingClient {
	instruments := client.NewInstrumentsServiceClient()
	return &TradingClient{
		orders:     client.NewOrdersServiceClient(),
		operations: client.NewOperationsServiceClient(),
		index:      newSymbolIndex(instruments),
		accountID:  accountID,
		logger:     logger.WithField("component", "invest_trading"),
	}
}

// ListAssets returns every listed share with its trade permissions, in
// the provider's enumeration order.
func (c *TradingClient) ListAssets(ctx context.Context) ([]portfolio.AssetDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.index.ensure(); err != nil {
		return nil, &interfaces.ProviderError{Provider: providerLabel, Op: "list instruments", Err: err}
	}

	shares := c.index.listShares()
	assets := make([]portfolio.AssetDescriptor, 0, len(shares))
	for _, share := range shares {
		assets = append(assets, portfolio.AssetDescriptor{
			Symbol:    share.GetTicker(),
			Name:      share.GetName(),
			Tradable:  share.GetBuyAvailableFlag() && share.GetSellAvailableFlag(),
			Shortable: share.GetShortEnabledFlag(),
		})
	}
	return assets, nil
}

// Positions reads the current security balances of the account. Balances
// whose instrument is unknown to the symbol index are skipped with a
// warning rather than failing the snapshot.
func (c *TradingClient) Positions(ctx context.Context) ([]portfolio.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.index.ensure(); err != nil {
		return nil, &interfaces.ProviderError{Provider: providerLabel, Op: "list instruments", Err: err}
	}

	resp, err := c.operations.GetPositions(c.accountID)
	if err != nil {
		return nil, &interfaces.ProviderError{Provider: providerLabel, Op: "get positions", Err: err}
	}

	var positions []portfolio.Position
	for _, security := range resp.GetSecurities() {
		if security == nil || security.GetBalance() == 0 {
			continue
		}
		ticker, ok := c.index.tickerFor(security.GetInstrumentUid())
		if !ok {
			c.logger.WithField("instrument_uid", security.GetInstrumentUid()).Warn("position for unknown instrument")
			continue
		}
		positions = append(positions, portfolio.Position{
			Symbol:   ticker,
			Quantity: float64(security.GetBalance()),
		})
	}
	return positions, nil
}

func (c *TradingClient) SubmitOrder(ctx context.Context, instruction portfolio.TradeInstruction) (*portfolio.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.index.ensure(); err != nil {
		return nil, &interfaces.ProviderError{Provider: providerLabel, Op: "list instruments", Err: err}
	}

	uid, ok := c.index.uidFor(instruction.Symbol)
	if !ok {
		return nil, fmt.Errorf("unknown symbol %q", instruction.Symbol)
	}

	direction, err := mapSide(instruction.Side)
	if err != nil {
		return nil, err
	}
	orderType, err := mapOrderType(instruction.OrderType)
	if err != nil {
		return nil, err
	}

	return c.postOrder(uid, instruction, direction, orderType)
}

// ClosePosition liquidates the full balance of a symbol with an opposite
// market order.
func (c *TradingClient) ClosePosition(ctx context.Context, symbol string) (*portfolio.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	positions, err := c.Positions(ctx)
	if err != nil {
		return nil, err
	}

	var balance float64
	found := false
	for _, position := range positions {
		if position.Symbol == symbol {
			balance = position.Quantity
			found = true
			break
		}
	}
	if !found || balance == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoOpenPosition, symbol)
	}

	side := portfolio.SideSell
	direction := pb.OrderDirection_ORDER_DIRECTION_SELL
	if balance < 0 {
		side = portfolio.SideBuy
		direction = pb.OrderDirection_ORDER_DIRECTION_BUY
	}

	uid, _ := c.index.uidFor(symbol)
	instruction := portfolio.TradeInstruction{
		Symbol:    symbol,
		Action:    portfolio.ActionClose,
		Side:      side,
		Quantity:  math.Abs(balance),
		OrderType: "market",
	}
	return c.postOrder(uid, instruction, direction, pb.OrderType_ORDER_TYPE_MARKET)
}

// AccountEquity returns the total portfolio value in account currency.
func (c *TradingClient) AccountEquity(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	resp, err := c.operations.GetPortfolio(c.accountID, pb.PortfolioRequest_RUB)
	if err != nil {
		return 0, &interfaces.ProviderError{Provider: providerLabel, Op: "get portfolio", Err: err}
	}

	total := resp.GetTotalAmountPortfolio()
	if total == nil {
		return 0, nil
	}
	return total.ToFloat(), nil
}

func (c *TradingClient) postOrder(uid string, instruction portfolio.TradeInstruction, direction pb.OrderDirection, orderType pb.OrderType) (*portfolio.OrderResult, error) {
	quantity := int64(math.Round(instruction.Quantity))
	if quantity <= 0 {
		return nil, fmt.Errorf("order quantity must be positive, got %v", instruction.Quantity)
	}

	resp, err := c.orders.PostOrder(&investgo.PostOrderRequest{
		InstrumentId: uid,
		Quantity:     quantity,
		Direction:    direction,
		AccountId:    c.accountID,
		OrderType:    orderType,
		OrderId:      uuid.New().String(),
	})
	if err != nil {
		return nil, &interfaces.ProviderError{Provider: providerLabel, Op: "post order " + instruction.Symbol, Err: err}
	}

	c.logger.WithFields(logrus.Fields{
		"symbol":   instruction.Symbol,
		"action":   instruction.Action,
		"side":     instruction.Side,
		"quantity": quantity,
	}).Info("order submitted")

	return &portfolio.OrderResult{
		OrderID:     resp.GetOrderId(),
		Symbol:      instruction.Symbol,
		Action:      instruction.Action,
		Side:        instruction.Side,
		Quantity:    float64(quantity),
		OrderType:   instruction.OrderType,
		Status:      resp.GetExecutionReportStatus().String(),
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func mapSide(side portfolio.Side) (pb.OrderDirection, error) {
	switch side {
	case portfolio.SideBuy:
		return pb.OrderDirection_ORDER_DIRECTION_BUY, nil
	case portfolio.SideSell:
		return pb.OrderDirection_ORDER_DIRECTION_SELL, nil
	default:
		return pb.OrderDirection_ORDER_DIRECTION_UNSPECIFIED, fmt.Errorf("unsupported order side: %q", side)
	}
}

func mapOrderType(orderType string) (pb.OrderType, error) {
	switch strings.ToLower(strings.TrimSpace(orderType)) {
	case "", "market":
		return pb.OrderType_ORDER_TYPE_MARKET, nil
	case "limit":
		return pb.OrderType_ORDER_TYPE_LIMIT, nil
	case "bestprice":
		return pb.OrderType_ORDER_TYPE_BESTPRICE, nil
	default:
		return pb.OrderType_ORDER_TYPE_UNSPECIFIED, fmt.Errorf("unsupported order type: %q", orderType)
	}
}
