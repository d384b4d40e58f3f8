package universe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	portfolio "github.com/quanttradingfs/QuantFSA/internal/domain/entity/portfolio"
	interfaces "github.com/quanttradingfs/QuantFSA/internal/domain/interfaces"
)

var ErrNoReferenceSource = errors.New("reference source is not configured")

// InvalidUniverseError reports explicitly requested symbols that are outside
// the investable universe. Every offending symbol is enumerated; none are
// silently dropped.
type InvalidUniverseError struct {
	Symbols []string
}

func (e *InvalidUniverseError) Error() string {
	return fmt.Sprintf("requested symbols are not in investable universe: %s", strings.Join(e.Symbols, ", "))
}

// Service resolves the authoritative symbol set to operate on.
type Service struct {
	trading   interfaces.TradingProvider
	reference interfaces.ReferenceSource
}

func NewService(trading interfaces.TradingProvider, reference interfaces.ReferenceSource) *Service {
	return &Service{trading: trading, reference: reference}
}

// Resolve produces the symbol universe, preserving the order of explicit
// requests. With restrict set, the universe is limited to tradable,
// shortable non-ETF equities and explicit symbols are validated against it.
// Without restrict and without explicit symbols, the static reference list
// of exchange-listed tickers is used.
func (s *Service) Resolve(ctx context.Context, symbols []string, restrict bool) ([]string, error) {
	if !restrict {
		if len(symbols) > 0 {
			return symbols, nil
		}
		if s.reference == nil {
			return nil, ErrNoReferenceSource
		}
		return s.reference.ListedSymbols(ctx)
	}

	assets, err := s.trading.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	investable := make(map[string]struct{}, len(assets))
	var available []string
	for _, asset := range assets {
		if !asset.Investable() {
			continue
		}
		investable[asset.Symbol] = struct{}{}
		available = append(available, asset.Symbol)
	}

	if len(symbols) == 0 {
		return available, nil
	}

	var offending []string
	for _, symbol := range symbols {
		if _, ok := investable[symbol]; !ok {
			offending = append(offending, symbol)
		}
	}
	if len(offending) > 0 {
		return nil, &InvalidUniverseError{Symbols: offending}
	}
	return symbols, nil
}

// Investable filters asset descriptors down to the restricted universe.
// Exposed for callers that already hold a descriptor list.
func Investable(assets []portfolio.AssetDescriptor) []string {
	var symbols []string
	for _, asset := range assets {
		if asset.Investable() {
			symbols = append(symbols, asset.Symbol)
		}
	}
	return symbols
}
