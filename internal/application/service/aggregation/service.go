package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	marketdata "github.com/quanttradingfs/QuantFSA/internal/domain/entity/marketdata"
	interfaces "github.com/quanttradingfs/QuantFSA/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// Source selects which provider strategy builds the yearly datasets.
type Source string

const (
	// SourcePrimary anchors rows on the provider trading calendar and
	// fetches bars for all symbols in one batched request per year.
	SourcePrimary Source = "primary"
	// SourceSecondary lets the provider's own returned dates define the
	// rows, requesting full daily history per symbol.
	SourceSecondary Source = "secondary"
)

var (
	ErrUnknownSource = errors.New("unknown aggregation source")
	ErrNoSymbols     = errors.New("symbol universe is empty")
	ErrYearRange     = errors.New("start year is after end year")
)

const (
	defaultGroup = "US_Stocks"

	filterLabelRestricted   = "filtered"
	filterLabelUnrestricted = "non_filtered"
)

// Options tune artifact naming.
type Options struct {
	// Group is the exchange-group prefix of artifact names.
	Group string
	// FilterLabel, when set, replaces the restrict-derived suffix on
	// secondary artifacts. Primary artifacts carry no suffix.
	FilterLabel string
}

// Service assembles per-year multi-ticker datasets from historical daily
// bars and persists one artifact per year. The year loop is strictly
// sequential; every provider call blocks.
type Service struct {
	primary   interfaces.MarketDataProvider
	calendars interfaces.CalendarProvider
	secondary interfaces.MarketDataProvider
	store     interfaces.DatasetStore
	logger    *logrus.Entry
	opts      Options
}

func NewService(
	primary interfaces.MarketDataProvider,
	calendars interfaces.CalendarProvider,
	secondary interfaces.MarketDataProvider,
	store interfaces.DatasetStore,
	logger *logrus.Logger,
	opts Options,
) *Service {
	if opts.Group == "" {
		opts.Group = defaultGroup
	}
	return &Service{
		primary:   primary,
		calendars: calendars,
		secondary: secondary,
		store:     store,
		logger:    logger.WithField("component", "aggregation"),
		opts:      opts,
	}
}

// Aggregate builds and persists one dataset per year in [startYear, endYear]
// using the selected source strategy. The restricted flag records which
// universe mode produced the symbol set; secondary artifact names carry it
// as a "filtered"/"non_filtered" suffix. Years with no returned bars are
// skipped without error. Returns the emitted artifact names.
func (s *Service) Aggregate(ctx context.Context, startYear, endYear int, symbols []string, source Source, restricted bool) ([]string, error) {
	if startYear > endYear {
		return nil, ErrYearRange
	}
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	switch source {
	case SourcePrimary:
		return s.aggregatePrimary(ctx, startYear, endYear, symbols)
	case SourceSecondary:
		return s.aggregateSecondary(ctx, startYear, endYear, symbols, restricted)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
}

func (s *Service) secondaryFilterLabel(restricted bool) string {
	if s.opts.FilterLabel != "" {
		return s.opts.FilterLabel
	}
	if restricted {
		return filterLabelRestricted
	}
	return filterLabelUnrestricted
}

func (s *Service) aggregatePrimary(ctx context.Context, startYear, endYear int, symbols []string) ([]string, error) {
	// the calendar is fetched fresh once per invocation and reused for
	// every year in the range
	calendar, err := s.calendars.Calendar(ctx)
	if err != nil {
		return nil, fmt.Errorf("get calendar: %w", err)
	}

	var artifacts []string
	for year := startYear; year <= endYear; year++ {
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

		bars, err := s.primary.DailyBars(ctx, symbols, from, to)
		if err != nil {
			return artifacts, fmt.Errorf("get bars for %d: %w", year, err)
		}
		if len(bars) == 0 {
			s.logger.WithFields(logrus.Fields{"year": year, "source": s.primary.Label()}).
				Info("no bars returned, skipping year")
			continue
		}

		dataset := marketdata.NewAnchoredDataset(year, s.opts.Group, s.primary.Label(), "", calendar.DatesForYear(year))
		mergeBySymbol(dataset, symbols, bars)

		if err := s.store.SaveDataset(ctx, dataset); err != nil {
			return artifacts, fmt.Errorf("save dataset %s: %w", dataset.Name(), err)
		}
		artifacts = append(artifacts, dataset.Name())
		s.logger.WithFields(logrus.Fields{
			"artifact": dataset.Name(),
			"rows":     dataset.RowCount(),
			"symbols":  len(dataset.Symbols()),
		}).Info("dataset persisted")
	}
	return artifacts, nil
}

func (s *Service) aggregateSecondary(ctx context.Context, startYear, endYear int, symbols []string, restricted bool) ([]string, error) {
	filterLabel := s.secondaryFilterLabel(restricted)

	var artifacts []string
	for year := startYear; year <= endYear; year++ {
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

		bars, err := s.secondary.DailyBars(ctx, symbols, from, to)
		if err != nil {
			return artifacts, fmt.Errorf("get bars for %d: %w", year, err)
		}
		if len(bars) == 0 {
			s.logger.WithFields(logrus.Fields{"year": year, "source": s.secondary.Label()}).
				Info("no bars returned, skipping year")
			continue
		}

		dataset := marketdata.NewUnanchoredDataset(year, s.opts.Group, s.secondary.Label(), filterLabel)
		mergeBySymbol(dataset, symbols, bars)

		if err := s.store.SaveDataset(ctx, dataset); err != nil {
			return artifacts, fmt.Errorf("save dataset %s: %w", dataset.Name(), err)
		}
		artifacts = append(artifacts, dataset.Name())
		s.logger.WithFields(logrus.Fields{
			"artifact": dataset.Name(),
			"rows":     dataset.RowCount(),
			"symbols":  len(dataset.Symbols()),
		}).Info("dataset persisted")
	}
	return artifacts, nil
}

// mergeBySymbol groups bars by symbol and merges each group into the
// dataset following the insertion order of the symbol set. Symbols with no
// bars for the year contribute no columns.
func mergeBySymbol(dataset *marketdata.YearlyDataset, symbols []string, bars []marketdata.Bar) {
	grouped := make(map[string][]marketdata.Bar, len(symbols))
	for _, bar := range bars {
		grouped[bar.Symbol] = append(grouped[bar.Symbol], bar)
	}
	for _, symbol := range symbols {
		if group, ok := grouped[symbol]; ok {
			dataset.AddSymbolBars(symbol, group)
		}
	}
}
