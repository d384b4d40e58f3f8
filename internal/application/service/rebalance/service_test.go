package rebalance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	portfolio "github.com/quanttradingfs/QuantFSA/internal/domain/entity/portfolio"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allocation(entries ...any) *portfolio.TargetAllocation {
	target := portfolio.NewTargetAllocation()
	for i := 0; i < len(entries); i += 2 {
		target.Set(entries[i].(string), entries[i+1].(float64))
	}
	return target
}

func TestReconcileIdempotent(t *testing.T) {
	current := []portfolio.Position{{Symbol: "AAA", Quantity: 10}, {Symbol: "BBB", Quantity: -5}}
	target := allocation("AAA", 10.0, "BBB", -5.0)

	assert.Empty(t, Reconcile(current, target, Options{}))
}

func TestReconcileNilTargetClosesEverything(t *testing.T) {
	current := []portfolio.Position{{Symbol: "AAA", Quantity: 10}, {Symbol: "BBB", Quantity: -5}}

	instructions := Reconcile(current, nil, Options{})
	require.Len(t, instructions, 2)
	assert.Equal(t, portfolio.TradeInstruction{Symbol: "AAA", Action: portfolio.ActionClose}, instructions[0])
	assert.Equal(t, portfolio.TradeInstruction{Symbol: "BBB", Action: portfolio.ActionClose}, instructions[1])
}

func TestReconcileCloseAndOpen(t *testing.T) {
	current := []portfolio.Position{{Symbol: "AAA", Quantity: 10}, {Symbol: "BBB", Quantity: 5}}
	target := allocation("AAA", 10.0, "CCC", 3.0)

	instructions := Reconcile(current, target, Options{})
	require.Len(t, instructions, 2)

	assert.Equal(t, portfolio.TradeInstruction{Symbol: "BBB", Action: portfolio.ActionClose}, instructions[0])
	assert.Equal(t, portfolio.TradeInstruction{
		Symbol:      "CCC",
		Action:      portfolio.ActionOpen,
		Side:        portfolio.SideBuy,
		Quantity:    3,
		OrderType:   "market",
		TimeInForce: "day",
	}, instructions[1])
}

func TestReconcileAdjustDown(t *testing.T) {
	current := []portfolio.Position{{Symbol: "AAA", Quantity: 10}}
	target := allocation("AAA", 4.0)

	instructions := Reconcile(current, target, Options{})
	require.Len(t, instructions, 1)
	assert.Equal(t, portfolio.ActionAdjust, instructions[0].Action)
	assert.Equal(t, portfolio.SideSell, instructions[0].Side)
	assert.Equal(t, 6.0, instructions[0].Quantity)
}

func TestReconcileAdjustUpUsesBuyOrderType(t *testing.T) {
	current := []portfolio.Position{{Symbol: "AAA", Quantity: 2}}
	target := allocation("AAA", 9.0)

	instructions := Reconcile(current, target, Options{OrderTypeBuy: "limit", OrderTypeSell: "stop"})
	require.Len(t, instructions, 1)
	assert.Equal(t, portfolio.SideBuy, instructions[0].Side)
	assert.Equal(t, 7.0, instructions[0].Quantity)
	assert.Equal(t, "limit", instructions[0].OrderType)
}

func TestReconcileOpenShortLegacyOrderType(t *testing.T) {
	target := allocation("SSS", -8.0)

	// legacy behavior keeps the buy order type on a short open
	instructions := Reconcile(nil, target, Options{OrderTypeBuy: "limit", OrderTypeSell: "stop"})
	require.Len(t, instructions, 1)
	assert.Equal(t, portfolio.SideSell, instructions[0].Side)
	assert.Equal(t, 8.0, instructions[0].Quantity)
	assert.Equal(t, "limit", instructions[0].OrderType)

	strict := Reconcile(nil, target, Options{OrderTypeBuy: "limit", OrderTypeSell: "stop", StrictOpenOrderType: true})
	require.Len(t, strict, 1)
	assert.Equal(t, "stop", strict[0].OrderType)
}

func TestReconcileClosePrecedesAdjustsAndNoDoubleReference(t *testing.T) {
	current := []portfolio.Position{
		{Symbol: "DDD", Quantity: 1},
		{Symbol: "AAA", Quantity: 10},
		{Symbol: "EEE", Quantity: 2},
	}
	target := allocation("AAA", 12.0, "FFF", 1.0)

	instructions := Reconcile(current, target, Options{})
	require.Len(t, instructions, 4)
	// closes first, in holdings order
	assert.Equal(t, portfolio.ActionClose, instructions[0].Action)
	assert.Equal(t, "DDD", instructions[0].Symbol)
	assert.Equal(t, portfolio.ActionClose, instructions[1].Action)
	assert.Equal(t, "EEE", instructions[1].Symbol)

	seen := make(map[string]int)
	for _, instruction := range instructions {
		seen[instruction.Symbol]++
	}
	for symbol, count := range seen {
		assert.Equal(t, 1, count, "symbol %s referenced more than once", symbol)
	}
}

// fakeTrading records dispatch calls and can fail specific symbols.
type fakeTrading struct {
	calls     []string
	positions []portfolio.Position
	equity    float64
	failFor   map[string]error
}

func (f *fakeTrading) ListAssets(ctx context.Context) ([]portfolio.AssetDescriptor, error) {
	return nil, nil
}

func (f *fakeTrading) Positions(ctx context.Context) ([]portfolio.Position, error) {
	return f.positions, nil
}

func (f *fakeTrading) SubmitOrder(ctx context.Context, instruction portfolio.TradeInstruction) (*portfolio.OrderResult, error) {
	f.calls = append(f.calls, fmt.Sprintf("submit:%s", instruction.Symbol))
	if err, ok := f.failFor[instruction.Symbol]; ok {
		return nil, err
	}
	return &portfolio.OrderResult{
		OrderID:     "ord-" + instruction.Symbol,
		Symbol:      instruction.Symbol,
		Side:        instruction.Side,
		Quantity:    instruction.Quantity,
		OrderType:   instruction.OrderType,
		Status:      "accepted",
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeTrading) ClosePosition(ctx context.Context, symbol string) (*portfolio.OrderResult, error) {
	f.calls = append(f.calls, fmt.Sprintf("close:%s", symbol))
	if err, ok := f.failFor[symbol]; ok {
		return nil, err
	}
	return &portfolio.OrderResult{OrderID: "cls-" + symbol, Symbol: symbol, Status: "accepted"}, nil
}

func (f *fakeTrading) AccountEquity(ctx context.Context) (float64, error) {
	return f.equity, nil
}

type recordingPublisher struct {
	published []string
}

func (r *recordingPublisher) PublishOrder(ctx context.Context, result *portfolio.OrderResult) error {
	r.published = append(r.published, result.Symbol)
	return nil
}

func (r *recordingPublisher) Close() {}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestDispatchOrderAndRouting(t *testing.T) {
	trading := &fakeTrading{positions: []portfolio.Position{{Symbol: "AAA", Quantity: 10}, {Symbol: "BBB", Quantity: 5}}}
	events := &recordingPublisher{}
	svc := NewService(trading, events, testLogger(), Options{})

	report, err := svc.Rebalance(context.Background(), allocation("AAA", 10.0, "CCC", 3.0))
	require.NoError(t, err)

	assert.Equal(t, []string{"close:BBB", "submit:CCC"}, trading.calls)
	require.Len(t, report.Closed, 1)
	require.Len(t, report.Adjusted, 1)
	assert.Equal(t, portfolio.ActionClose, report.Closed[0].Action)
	assert.Equal(t, portfolio.ActionOpen, report.Adjusted[0].Action)
	assert.Equal(t, []string{"BBB", "CCC"}, events.published)
}

func TestDispatchCollectsFailuresAndContinues(t *testing.T) {
	trading := &fakeTrading{failFor: map[string]error{"BAD": errors.New("rejected")}}
	svc := NewService(trading, nil, testLogger(), Options{})

	instructions := []portfolio.TradeInstruction{
		{Symbol: "AAA", Action: portfolio.ActionOpen, Side: portfolio.SideBuy, Quantity: 1, OrderType: "market"},
		{Symbol: "BAD", Action: portfolio.ActionOpen, Side: portfolio.SideBuy, Quantity: 1, OrderType: "market"},
		{Symbol: "CCC", Action: portfolio.ActionOpen, Side: portfolio.SideBuy, Quantity: 1, OrderType: "market"},
	}

	report, err := svc.Dispatch(context.Background(), instructions)
	require.Error(t, err)
	assert.ErrorContains(t, err, "BAD")

	// the failing submission does not abort the batch
	assert.Equal(t, []string{"submit:AAA", "submit:BAD", "submit:CCC"}, trading.calls)
	require.Len(t, report.Adjusted, 2)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "BAD", report.Failures[0].Instruction.Symbol)
}

func TestPlanDoesNotSubmit(t *testing.T) {
	trading := &fakeTrading{positions: []portfolio.Position{{Symbol: "AAA", Quantity: 1}}}
	svc := NewService(trading, nil, testLogger(), Options{})

	instructions, err := svc.Plan(context.Background(), allocation("AAA", 5.0))
	require.NoError(t, err)
	require.Len(t, instructions, 1)
	assert.Empty(t, trading.calls)
}

func TestPerformance(t *testing.T) {
	trading := &fakeTrading{equity: 112500}
	svc := NewService(trading, nil, testLogger(), Options{})

	ratio, err := svc.Performance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.125, ratio, 1e-9)
}

func TestPerformanceCustomBaseline(t *testing.T) {
	trading := &fakeTrading{equity: 50000}
	svc := NewService(trading, nil, testLogger(), Options{InitialEquity: 200000})

	ratio, err := svc.Performance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -0.75, ratio, 1e-9)
}
