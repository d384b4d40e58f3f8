package rebalance

import (
	"context"
	"errors"
	"fmt"
	"math"

	portfolio "github.com/quanttradingfs/QuantFSA/internal/domain/entity/portfolio"
	interfaces "github.com/quanttradingfs/QuantFSA/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

var ErrNilTarget = errors.New("target allocation is nil")

const (
	defaultOrderType     = "market"
	defaultTimeInForce   = "day"
	defaultInitialEquity = 100000
)

// Options control order parameters and the performance baseline.
type Options struct {
	OrderTypeBuy  string
	OrderTypeSell string
	TimeInForce   string
	// StrictOpenOrderType makes the order type of an open instruction
	// follow its resolved side. The default (false) preserves the legacy
	// behavior where opens always use the buy order type, even when a
	// negative target quantity resolves the side to sell.
	StrictOpenOrderType bool
	// InitialEquity is the fixed baseline for the performance ratio.
	InitialEquity float64
}

func (o Options) withDefaults() Options {
	if o.OrderTypeBuy == "" {
		o.OrderTypeBuy = defaultOrderType
	}
	if o.OrderTypeSell == "" {
		o.OrderTypeSell = defaultOrderType
	}
	if o.TimeInForce == "" {
		o.TimeInForce = defaultTimeInForce
	}
	if o.InitialEquity == 0 {
		o.InitialEquity = defaultInitialEquity
	}
	return o
}

// Reconcile compares current holdings to the target allocation and produces
// one instruction per affected symbol. Pure: no provider calls. Close
// instructions come first in current-holdings order, then adjust/open
// instructions in target insertion order. Symbols whose quantity already
// matches produce nothing, so re-running with an unchanged account is a
// no-op.
func Reconcile(current []portfolio.Position, target *portfolio.TargetAllocation, opts Options) []portfolio.TradeInstruction {
	opts = opts.withDefaults()
	if target == nil {
		// a nil target reads as an empty allocation: close everything
		target = portfolio.NewTargetAllocation()
	}
	held := make(map[string]float64, len(current))
	for _, position := range current {
		held[position.Symbol] = position.Quantity
	}

	var instructions []portfolio.TradeInstruction
	for _, position := range current {
		if !target.Has(position.Symbol) {
			instructions = append(instructions, portfolio.TradeInstruction{
				Symbol: position.Symbol,
				Action: portfolio.ActionClose,
			})
		}
	}

	for _, symbol := range target.Symbols() {
		desired, _ := target.Get(symbol)
		owned, holding := held[symbol]

		switch {
		case holding && owned == desired:
			// already at target

		case holding:
			side, orderType := portfolio.SideSell, opts.OrderTypeSell
			if desired > owned {
				side, orderType = portfolio.SideBuy, opts.OrderTypeBuy
			}
			instructions = append(instructions, portfolio.TradeInstruction{
				Symbol:      symbol,
				Action:      portfolio.ActionAdjust,
				Side:        side,
				Quantity:    math.Abs(desired - owned),
				OrderType:   orderType,
				TimeInForce: opts.TimeInForce,
			})

		default:
			side := portfolio.SideBuy
			if desired < 0 {
				side = portfolio.SideSell
			}
			orderType := opts.OrderTypeBuy
			if opts.StrictOpenOrderType && side == portfolio.SideSell {
				orderType = opts.OrderTypeSell
			}
			instructions = append(instructions, portfolio.TradeInstruction{
				Symbol:      symbol,
				Action:      portfolio.ActionOpen,
				Side:        side,
				Quantity:    math.Abs(desired),
				OrderType:   orderType,
				TimeInForce: opts.TimeInForce,
			})
		}
	}
	return instructions
}

// DispatchFailure records one instruction the provider rejected.
type DispatchFailure struct {
	Instruction portfolio.TradeInstruction `json:"instruction"`
	Err         error                      `json:"-"`
	Reason      string                     `json:"reason"`
}

// DispatchReport collects submission results in instruction order. Closed
// and adjusted results are kept apart, matching how they were reconciled.
type DispatchReport struct {
	Closed   []portfolio.OrderResult `json:"closed"`
	Adjusted []portfolio.OrderResult `json:"adjusted"`
	Failures []DispatchFailure       `json:"failures,omitempty"`
}

// Service executes the trading path: decide once (Reconcile), then execute
// (Dispatch). The two phases are not transactional; a fill landing between
// the position snapshot and an order submission is an accepted limitation.
type Service struct {
	trading interfaces.TradingProvider
	events  interfaces.OrderEventPublisher
	logger  *logrus.Entry
	opts    Options
}

func NewService(trading interfaces.TradingProvider, events interfaces.OrderEventPublisher, logger *logrus.Logger, opts Options) *Service {
	return &Service{
		trading: trading,
		events:  events,
		logger:  logger.WithField("component", "rebalance"),
		opts:    opts.withDefaults(),
	}
}

// Plan reads the current position snapshot and returns the instructions a
// rebalance would dispatch, without submitting anything.
func (s *Service) Plan(ctx context.Context, target *portfolio.TargetAllocation) ([]portfolio.TradeInstruction, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	current, err := s.trading.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return Reconcile(current, target, s.opts), nil
}

// Rebalance reads positions once, reconciles against the target, and
// dispatches the resulting instructions.
func (s *Service) Rebalance(ctx context.Context, target *portfolio.TargetAllocation) (*DispatchReport, error) {
	instructions, err := s.Plan(ctx, target)
	if err != nil {
		return nil, err
	}
	return s.Dispatch(ctx, instructions)
}

// Dispatch submits every instruction sequentially, collecting results in
// order. Failed submissions are recorded and do not stop the batch; prior
// fills stand. The returned error joins all submission failures and is nil
// when every order was accepted.
func (s *Service) Dispatch(ctx context.Context, instructions []portfolio.TradeInstruction) (*DispatchReport, error) {
	report := &DispatchReport{}
	var errs []error

	for _, instruction := range instructions {
		var (
			result *portfolio.OrderResult
			err    error
		)
		if instruction.Action == portfolio.ActionClose {
			result, err = s.trading.ClosePosition(ctx, instruction.Symbol)
		} else {
			result, err = s.trading.SubmitOrder(ctx, instruction)
		}
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"symbol": instruction.Symbol,
				"action": instruction.Action,
			}).WithError(err).Warn("order submission failed")
			report.Failures = append(report.Failures, DispatchFailure{
				Instruction: instruction,
				Err:         err,
				Reason:      err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s %s: %w", instruction.Action, instruction.Symbol, err))
			continue
		}

		result.Action = instruction.Action
		if instruction.Action == portfolio.ActionClose {
			report.Closed = append(report.Closed, *result)
		} else {
			report.Adjusted = append(report.Adjusted, *result)
		}
		s.publish(ctx, result)
	}
	return report, errors.Join(errs...)
}

// Positions returns the current account holdings snapshot.
func (s *Service) Positions(ctx context.Context) ([]portfolio.Position, error) {
	positions, err := s.trading.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return positions, nil
}

// Performance reports return since inception: equity over the fixed
// baseline, minus one.
func (s *Service) Performance(ctx context.Context) (float64, error) {
	equity, err := s.trading.AccountEquity(ctx)
	if err != nil {
		return 0, fmt.Errorf("get account equity: %w", err)
	}
	return equity/s.opts.InitialEquity - 1, nil
}

func (s *Service) publish(ctx context.Context, result *portfolio.OrderResult) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrder(ctx, result); err != nil {
		s.logger.WithField("symbol", result.Symbol).WithError(err).Warn("publish order event")
	}
}
