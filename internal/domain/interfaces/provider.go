package interfaces

import (
	"context"
	"fmt"
	"time"

	marketdata "github.com/quanttradingfs/QuantFSA/internal/domain/entity/marketdata"
	portfolio "github.com/quanttradingfs/QuantFSA/internal/domain/entity/portfolio"
)

// MarketDataProvider fetches historical daily bars. Implementations block
// until a response or error arrives; this layer performs no retries.
type MarketDataProvider interface {
	// Label identifies the provider in artifact names.
	Label() string
	// DailyBars returns daily bars for the symbols within [from, to].
	// An empty result is not an error.
	DailyBars(ctx context.Context, symbols []string, from, to time.Time) ([]marketdata.Bar, error)
}

// CalendarProvider exposes the provider trading schedule used to anchor
// calendar-aligned datasets.
type CalendarProvider interface {
	Calendar(ctx context.Context) (marketdata.Calendar, error)
}

// TradingProvider is the brokerage account surface: asset listing,
// position reads, order submission, and account equity.
type TradingProvider interface {
	ListAssets(ctx context.Context) ([]portfolio.AssetDescriptor, error)
	// Positions returns current holdings as a single snapshot, in the
	// provider's enumeration order.
	Positions(ctx context.Context) ([]portfolio.Position, error)
	SubmitOrder(ctx context.Context, instruction portfolio.TradeInstruction) (*portfolio.OrderResult, error)
	ClosePosition(ctx context.Context, symbol string) (*portfolio.OrderResult, error)
	AccountEquity(ctx context.Context) (float64, error)
}

// ReferenceSource supplies the static list of exchange-listed tickers used
// when the universe is neither restricted nor given explicitly.
type ReferenceSource interface {
	ListedSymbols(ctx context.Context) ([]string, error)
}

// ProviderError wraps a failed collaborator call so callers can tell
// provider failures apart from local validation errors.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
