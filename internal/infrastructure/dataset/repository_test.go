package dataset

import (
	"testing"
	"time"

	marketdata "github.com/quanttradingfs/QuantFSA/internal/domain/entity/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset(t *testing.T) *marketdata.YearlyDataset {
	t.Helper()
	dates := []time.Time{
		time.Date(2022, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2022, time.March, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2022, time.March, 3, 0, 0, 0, 0, time.UTC),
	}
	ds := marketdata.NewAnchoredDataset(2022, "US_Stocks", "Alpha", "filtered", dates)
	ds.AddSymbolBars("AAA", []marketdata.Bar{
		{Symbol: "AAA", Date: dates[0], Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, TradeCount: 3, VWAP: 1.2},
		{Symbol: "AAA", Date: dates[2], Open: 2, High: 3, Low: 1.5, Close: 2.5, Volume: 20, TradeCount: 6, VWAP: 2.2},
	})
	ds.AddSymbolBars("BBB", []marketdata.Bar{
		{Symbol: "BBB", Date: dates[1], Open: 9, High: 9, Low: 9, Close: 9, Volume: 1, TradeCount: 1, VWAP: 9},
	})
	return ds
}

// The flatten/rebuild pair must reproduce the exact column set and row
// count, which is the round-trip guarantee the store advertises.
func TestModelRoundTrip(t *testing.T) {
	original := sampleDataset(t)

	artifact, bars, err := toModels(original)
	require.NoError(t, err)
	assert.Equal(t, "US_Stocks_2022_Alpha_filtered", artifact.Name)
	require.Len(t, bars, 3)

	dates, symbols, err := decodeIndexes(artifact.Dates, artifact.Symbols)
	require.NoError(t, err)

	grouped := make(map[string][]marketdata.Bar)
	for _, bar := range bars {
		grouped[bar.Symbol] = append(grouped[bar.Symbol], barToDomain(bar))
	}
	rebuilt := marketdata.NewAnchoredDataset(artifact.Year, artifact.GroupLabel, artifact.Source, artifact.FilterLabel, dates)
	for _, symbol := range symbols {
		rebuilt.AddSymbolBars(symbol, grouped[symbol])
	}

	assert.Equal(t, original.Name(), rebuilt.Name())
	assert.Equal(t, original.RowCount(), rebuilt.RowCount())
	assert.Equal(t, original.Columns(), rebuilt.Columns())

	bar, ok := rebuilt.Bar("AAA", dates[2])
	require.True(t, ok)
	assert.Equal(t, 2.5, bar.Close)
	_, ok = rebuilt.Bar("BBB", dates[0])
	assert.False(t, ok)
}

// A symbol whose every bar was dropped at the calendar boundary must not
// leak into the stored symbol index, otherwise the rebuilt dataset would
// come back with a narrower column set than the one that was saved.
func TestModelRoundTripKeepsColumnsWhenBarsFellOffCalendar(t *testing.T) {
	original := sampleDataset(t)
	original.AddSymbolBars("CCC", []marketdata.Bar{
		{Symbol: "CCC", Date: time.Date(2022, time.July, 4, 0, 0, 0, 0, time.UTC), Open: 1, Close: 1},
	})

	artifact, bars, err := toModels(original)
	require.NoError(t, err)

	dates, symbols, err := decodeIndexes(artifact.Dates, artifact.Symbols)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, symbols)

	grouped := make(map[string][]marketdata.Bar)
	for _, bar := range bars {
		grouped[bar.Symbol] = append(grouped[bar.Symbol], barToDomain(bar))
	}
	rebuilt := marketdata.NewAnchoredDataset(artifact.Year, artifact.GroupLabel, artifact.Source, artifact.FilterLabel, dates)
	for _, symbol := range symbols {
		rebuilt.AddSymbolBars(symbol, grouped[symbol])
	}

	assert.Equal(t, original.Columns(), rebuilt.Columns())
}

func TestToModelsSkipsMissingCells(t *testing.T) {
	_, bars, err := toModels(sampleDataset(t))
	require.NoError(t, err)
	// only present (date, symbol) cells are stored long-form
	assert.Len(t, bars, 3)
}
