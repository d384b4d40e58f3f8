package marketdata

import (
	"fmt"
	"sort"
	"time"
)

// YearlyDataset is one year of daily bars for many symbols, modeled as a
// table keyed by (date, symbol, field). It only flattens into wide
// `{field}_{symbol}` columns at the persistence/serialization boundary.
//
// Anchored datasets fix their row set to a trading calendar up front:
// per-symbol bars are left-joined onto those dates and bars outside the
// calendar are dropped. Unanchored datasets grow their row set from whatever
// dates the provider returns, kept in ascending order.
type YearlyDataset struct {
	Year   int
	Group  string
	Source string
	Filter string

	anchored bool
	dates    []time.Time
	dateSet  map[time.Time]struct{}
	symbols  []string
	bars     map[string]map[time.Time]Bar
}

// NewAnchoredDataset builds a dataset whose rows are fixed to the given
// trading-calendar dates.
func NewAnchoredDataset(year int, group, source, filter string, dates []time.Time) *YearlyDataset {
	d := &YearlyDataset{
		Year:     year,
		Group:    group,
		Source:   source,
		Filter:   filter,
		anchored: true,
		dateSet:  make(map[time.Time]struct{}, len(dates)),
		bars:     make(map[string]map[time.Time]Bar),
	}
	for _, date := range dates {
		date = DateOnly(date)
		if _, ok := d.dateSet[date]; ok {
			continue
		}
		d.dates = append(d.dates, date)
		d.dateSet[date] = struct{}{}
	}
	return d
}

// NewUnanchoredDataset builds a dataset whose row set is defined by the
// dates of the bars added to it.
func NewUnanchoredDataset(year int, group, source, filter string) *YearlyDataset {
	return &YearlyDataset{
		Year:    year,
		Group:   group,
		Source:  source,
		Filter:  filter,
		dateSet: make(map[time.Time]struct{}),
		bars:    make(map[string]map[time.Time]Bar),
	}
}

// Name renders the deterministic artifact name:
// {Group}_{Year}_{Source} plus an optional _{Filter} suffix.
func (d *YearlyDataset) Name() string {
	name := fmt.Sprintf("%s_%d_%s", d.Group, d.Year, d.Source)
	if d.Filter != "" {
		name += "_" + d.Filter
	}
	return name
}

// AddSymbolBars merges one symbol's bars into the dataset. Symbols keep
// their insertion order; re-adding a symbol merges into its existing cells.
// Bar timestamps are normalized to dates before alignment. A symbol is only
// registered once at least one of its bars lands in the row set, so a
// symbol whose bars all fall off-calendar contributes no columns and the
// stored symbol index never references empty cell sets.
func (d *YearlyDataset) AddSymbolBars(symbol string, bars []Bar) {
	if symbol == "" || len(bars) == 0 {
		return
	}
	cells, known := d.bars[symbol]
	grew := false
	for _, bar := range bars {
		bar = bar.NormalizeDate()
		if _, ok := d.dateSet[bar.Date]; !ok {
			if d.anchored {
				continue
			}
			d.dates = append(d.dates, bar.Date)
			d.dateSet[bar.Date] = struct{}{}
			grew = true
		}
		if cells == nil {
			cells = make(map[time.Time]Bar, len(bars))
		}
		cells[bar.Date] = bar
	}
	if cells != nil && !known {
		d.bars[symbol] = cells
		d.symbols = append(d.symbols, symbol)
	}
	if grew {
		sort.Slice(d.dates, func(i, j int) bool { return d.dates[i].Before(d.dates[j]) })
	}
}

// Dates returns the row index in order.
func (d *YearlyDataset) Dates() []time.Time {
	out := make([]time.Time, len(d.dates))
	copy(out, d.dates)
	return out
}

// Symbols returns the symbols in merge order.
func (d *YearlyDataset) Symbols() []string {
	out := make([]string, len(d.symbols))
	copy(out, d.symbols)
	return out
}

// Bar returns the bar for (symbol, date) if present.
func (d *YearlyDataset) Bar(symbol string, date time.Time) (Bar, bool) {
	cells, ok := d.bars[symbol]
	if !ok {
		return Bar{}, false
	}
	bar, ok := cells[DateOnly(date)]
	return bar, ok
}

// RowCount is the number of dated rows.
func (d *YearlyDataset) RowCount() int {
	return len(d.dates)
}

// Columns returns the flattened column names: "date" first, then every
// bar field suffixed with the symbol, per symbol in merge order.
func (d *YearlyDataset) Columns() []string {
	columns := make([]string, 0, 1+len(BarFields)*len(d.symbols))
	columns = append(columns, "date")
	for _, symbol := range d.symbols {
		for _, field := range BarFields {
			columns = append(columns, field+"_"+symbol)
		}
	}
	return columns
}

// WideRow is one flattened dated row. Cells follow Columns() minus the
// leading date column; nil marks a symbol with no bar on that date.
type WideRow struct {
	Date  time.Time  `json:"date"`
	Cells []*float64 `json:"cells"`
}

// Rows flattens the dataset into wide rows, one per calendar date.
func (d *YearlyDataset) Rows() []WideRow {
	rows := make([]WideRow, 0, len(d.dates))
	for _, date := range d.dates {
		cells := make([]*float64, 0, len(BarFields)*len(d.symbols))
		for _, symbol := range d.symbols {
			bar, ok := d.bars[symbol][date]
			for _, field := range BarFields {
				if !ok {
					cells = append(cells, nil)
					continue
				}
				value := bar.Field(field)
				cells = append(cells, &value)
			}
		}
		rows = append(rows, WideRow{Date: date, Cells: cells})
	}
	return rows
}

// ArtifactInfo summarizes one persisted dataset.
type ArtifactInfo struct {
	Name      string    `json:"name"`
	Year      int       `json:"year"`
	Source    string    `json:"source"`
	Filter    string    `json:"filter,omitempty"`
	Rows      int       `json:"rows"`
	Columns   int       `json:"columns"`
	CreatedAt time.Time `json:"created_at"`
}

// Info summarizes the dataset as its stored artifact.
func (d *YearlyDataset) Info() ArtifactInfo {
	return ArtifactInfo{
		Name:    d.Name(),
		Year:    d.Year,
		Source:  d.Source,
		Filter:  d.Filter,
		Rows:    d.RowCount(),
		Columns: len(d.Columns()),
	}
}
