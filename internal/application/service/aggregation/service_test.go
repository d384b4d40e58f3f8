package aggregation

import (
	"context"
	"errors"
	"testing"
	"time"

	marketdata "github.com/quanttradingfs/QuantFSA/internal/domain/entity/marketdata"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBarProvider struct {
	label string
	bars  map[int][]marketdata.Bar // keyed by year of the requested window
	err   error
	calls int
}

func (f *fakeBarProvider) Label() string { return f.label }

func (f *fakeBarProvider) DailyBars(ctx context.Context, symbols []string, from, to time.Time) ([]marketdata.Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars[from.Year()], nil
}

type fakeCalendarProvider struct {
	calendar marketdata.Calendar
	calls    int
}

func (f *fakeCalendarProvider) Calendar(ctx context.Context) (marketdata.Calendar, error) {
	f.calls++
	return f.calendar, nil
}

type memoryStore struct {
	saved map[string]*marketdata.YearlyDataset
	order []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[string]*marketdata.YearlyDataset)}
}

func (m *memoryStore) SaveDataset(ctx context.Context, dataset *marketdata.YearlyDataset) error {
	if _, ok := m.saved[dataset.Name()]; !ok {
		m.order = append(m.order, dataset.Name())
	}
	m.saved[dataset.Name()] = dataset
	return nil
}

func (m *memoryStore) LoadDataset(ctx context.Context, name string) (*marketdata.YearlyDataset, error) {
	d, ok := m.saved[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (m *memoryStore) ListArtifacts(ctx context.Context) ([]marketdata.ArtifactInfo, error) {
	var infos []marketdata.ArtifactInfo
	for _, name := range m.order {
		infos = append(infos, m.saved[name].Info())
	}
	return infos, nil
}

func (m *memoryStore) Close() {}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func sessionDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func calendarFor(year int, days int) marketdata.Calendar {
	var cal marketdata.Calendar
	for d := 1; d <= days; d++ {
		date := sessionDate(year, 1, d)
		cal = append(cal, marketdata.TradingDay{
			Date:  date,
			Close: date.Add(16 * time.Hour),
		})
	}
	return cal
}

func fullYearBars(year int, days int, symbols ...string) []marketdata.Bar {
	var bars []marketdata.Bar
	for _, symbol := range symbols {
		for d := 1; d <= days; d++ {
			bars = append(bars, marketdata.Bar{
				Symbol: symbol,
				// provider timestamps carry the session cutoff time
				Date:   time.Date(year, time.January, d, 16, 0, 0, 0, time.UTC),
				Open:   1, High: 2, Low: 0.5, Close: 1.5,
				Volume: 100, TradeCount: 7, VWAP: 1.2,
			})
		}
	}
	return bars
}

func TestAggregatePrimaryRoundTripShape(t *testing.T) {
	const year, days = 2021, 5
	provider := &fakeBarProvider{
		label: "Alpha",
		bars:  map[int][]marketdata.Bar{year: fullYearBars(year, days, "AAA", "BBB", "CCC")},
	}
	calendars := &fakeCalendarProvider{calendar: calendarFor(year, days)}
	store := newMemoryStore()
	svc := NewService(provider, calendars, nil, store, testLogger(), Options{})

	artifacts, err := svc.Aggregate(context.Background(), year, year, []string{"AAA", "BBB", "CCC"}, SourcePrimary, false)
	require.NoError(t, err)
	require.Equal(t, []string{"US_Stocks_2021_Alpha"}, artifacts)

	dataset, err := store.LoadDataset(context.Background(), "US_Stocks_2021_Alpha")
	require.NoError(t, err)
	assert.Equal(t, days, dataset.RowCount())
	assert.Len(t, dataset.Columns(), 1+7*3)
}

func TestAggregatePrimaryMissingDataKeepsCalendarRows(t *testing.T) {
	const year, days = 2021, 4
	bars := fullYearBars(year, days, "AAA")
	// BBB trades only on the first two sessions
	bars = append(bars, fullYearBars(year, 2, "BBB")...)
	provider := &fakeBarProvider{label: "Alpha", bars: map[int][]marketdata.Bar{year: bars}}
	calendars := &fakeCalendarProvider{calendar: calendarFor(year, days)}
	store := newMemoryStore()
	svc := NewService(provider, calendars, nil, store, testLogger(), Options{})

	_, err := svc.Aggregate(context.Background(), year, year, []string{"AAA", "BBB"}, SourcePrimary, false)
	require.NoError(t, err)

	dataset, err := store.LoadDataset(context.Background(), "US_Stocks_2021_Alpha")
	require.NoError(t, err)
	require.Equal(t, days, dataset.RowCount())

	rows := dataset.Rows()
	// BBB cells start after AAA's seven fields
	assert.NotNil(t, rows[1].Cells[7])
	assert.Nil(t, rows[2].Cells[7])
	assert.Nil(t, rows[3].Cells[7])
}

func TestAggregatePrimarySkipsEmptyYears(t *testing.T) {
	provider := &fakeBarProvider{
		label: "Alpha",
		bars: map[int][]marketdata.Bar{
			2020: fullYearBars(2020, 3, "AAA"),
			// 2021 returns nothing
			2022: fullYearBars(2022, 3, "AAA"),
		},
	}
	calendars := &fakeCalendarProvider{
		calendar: append(calendarFor(2020, 3), append(calendarFor(2021, 3), calendarFor(2022, 3)...)...),
	}
	store := newMemoryStore()
	svc := NewService(provider, calendars, nil, store, testLogger(), Options{})

	artifacts, err := svc.Aggregate(context.Background(), 2020, 2022, []string{"AAA"}, SourcePrimary, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"US_Stocks_2020_Alpha", "US_Stocks_2022_Alpha"}, artifacts)
	assert.Equal(t, 1, calendars.calls, "calendar fetched once per invocation")
	assert.Equal(t, 3, provider.calls, "one batched bar request per year")
}

func TestAggregatePrimaryMergeOrderFollowsSymbolSet(t *testing.T) {
	const year, days = 2021, 2
	provider := &fakeBarProvider{
		label: "Alpha",
		bars:  map[int][]marketdata.Bar{year: fullYearBars(year, days, "CCC", "AAA")},
	}
	calendars := &fakeCalendarProvider{calendar: calendarFor(year, days)}
	store := newMemoryStore()
	svc := NewService(provider, calendars, nil, store, testLogger(), Options{})

	// requested order drives column order, not the order bars arrive in
	_, err := svc.Aggregate(context.Background(), year, year, []string{"AAA", "CCC"}, SourcePrimary, false)
	require.NoError(t, err)

	dataset, err := store.LoadDataset(context.Background(), "US_Stocks_2021_Alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "CCC"}, dataset.Symbols())
}

func TestAggregateSecondaryUsesProviderDates(t *testing.T) {
	const year = 2021
	provider := &fakeBarProvider{
		label: "Beta",
		bars:  map[int][]marketdata.Bar{year: fullYearBars(year, 3, "AAA")},
	}
	store := newMemoryStore()
	svc := NewService(nil, nil, provider, store, testLogger(), Options{})

	artifacts, err := svc.Aggregate(context.Background(), year, year, []string{"AAA"}, SourceSecondary, false)
	require.NoError(t, err)
	require.Equal(t, []string{"US_Stocks_2021_Beta_non_filtered"}, artifacts)

	dataset, err := store.LoadDataset(context.Background(), artifacts[0])
	require.NoError(t, err)
	assert.Equal(t, 3, dataset.RowCount())
	assert.Len(t, dataset.Columns(), 1+7)
}

func TestAggregateSecondaryFilterLabelFollowsRestrictFlag(t *testing.T) {
	const year = 2021
	tests := []struct {
		name       string
		restricted bool
		opts       Options
		want       string
	}{
		{name: "unrestricted", restricted: false, want: "US_Stocks_2021_Beta_non_filtered"},
		{name: "restricted", restricted: true, want: "US_Stocks_2021_Beta_filtered"},
		{name: "explicit override wins", restricted: true, opts: Options{FilterLabel: "custom"}, want: "US_Stocks_2021_Beta_custom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeBarProvider{
				label: "Beta",
				bars:  map[int][]marketdata.Bar{year: fullYearBars(year, 1, "AAA")},
			}
			svc := NewService(nil, nil, provider, newMemoryStore(), testLogger(), tt.opts)

			artifacts, err := svc.Aggregate(context.Background(), year, year, []string{"AAA"}, SourceSecondary, tt.restricted)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, artifacts)
		})
	}
}

func TestAggregatePrimaryArtifactsCarryNoFilterSuffix(t *testing.T) {
	const year, days = 2021, 2
	provider := &fakeBarProvider{
		label: "Alpha",
		bars:  map[int][]marketdata.Bar{year: fullYearBars(year, days, "AAA")},
	}
	calendars := &fakeCalendarProvider{calendar: calendarFor(year, days)}
	svc := NewService(provider, calendars, nil, newMemoryStore(), testLogger(), Options{FilterLabel: "custom"})

	artifacts, err := svc.Aggregate(context.Background(), year, year, []string{"AAA"}, SourcePrimary, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"US_Stocks_2021_Alpha"}, artifacts)
}

func TestAggregatePropagatesProviderErrors(t *testing.T) {
	provider := &fakeBarProvider{label: "Alpha", err: errors.New("auth expired")}
	calendars := &fakeCalendarProvider{calendar: calendarFor(2021, 1)}
	svc := NewService(provider, calendars, nil, newMemoryStore(), testLogger(), Options{})

	_, err := svc.Aggregate(context.Background(), 2021, 2021, []string{"AAA"}, SourcePrimary, false)
	assert.ErrorContains(t, err, "auth expired")
}

func TestAggregateArgumentValidation(t *testing.T) {
	svc := NewService(nil, nil, nil, newMemoryStore(), testLogger(), Options{})

	_, err := svc.Aggregate(context.Background(), 2022, 2020, []string{"AAA"}, SourcePrimary, false)
	assert.ErrorIs(t, err, ErrYearRange)

	_, err = svc.Aggregate(context.Background(), 2020, 2021, nil, SourcePrimary, false)
	assert.ErrorIs(t, err, ErrNoSymbols)

	_, err = svc.Aggregate(context.Background(), 2020, 2021, []string{"AAA"}, Source("tertiary"), false)
	assert.ErrorIs(t, err, ErrUnknownSource)
}
