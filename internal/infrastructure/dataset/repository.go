package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	marketdata "github.com/quanttradingfs/QuantFSA/internal/domain/entity/marketdata"
	"github.com/quanttradingfs/QuantFSA/internal/domain/interfaces"
	"github.com/quanttradingfs/QuantFSA/internal/infrastructure/dataset/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dateLayout = "2006-01-02"

// Repository persists yearly datasets in Postgres, keyed by artifact name.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

const insertArtifactQuery = `
	INSERT INTO dataset_artifacts (artifact_id, name, year, source, group_label, filter_label, dates, symbols)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

// SaveDataset replaces any artifact with the same name and writes the
// flattened cells in one transaction, so a partially written artifact is
// never observable.
func (r *Repository) SaveDataset(ctx context.Context, ds *marketdata.YearlyDataset) error {
	if ds == nil {
		return errors.New("nil dataset")
	}
	artifact, bars, err := toModels(ds)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM dataset_bars WHERE artifact_id IN (SELECT artifact_id FROM dataset_artifacts WHERE name=$1)`,
		artifact.Name,
	); err != nil {
		return fmt.Errorf("drop stale bars: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM dataset_artifacts WHERE name=$1`, artifact.Name); err != nil {
		return fmt.Errorf("drop stale artifact: %w", err)
	}

	if _, err := tx.Exec(ctx, insertArtifactQuery,
		artifact.ArtifactID,
		artifact.Name,
		artifact.Year,
		artifact.Source,
		artifact.GroupLabel,
		artifact.FilterLabel,
		artifact.Dates,
		artifact.Symbols,
	); err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}

	rows := make([][]interface{}, 0, len(bars))
	for i := range bars {
		rows = append(rows, []interface{}{
			bars[i].ArtifactID,
			bars[i].Symbol,
			bars[i].Date,
			bars[i].Open,
			bars[i].High,
			bars[i].Low,
			bars[i].Close,
			bars[i].Volume,
			bars[i].TradeCount,
			bars[i].VWAP,
		})
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"dataset_bars"},
			[]string{"artifact_id", "symbol", "date", "open", "high", "low", "close", "volume", "trade_count", "vwap"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy bars: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// LoadDataset rebuilds a dataset from its stored date/symbol index and
// long-form cells.
func (r *Repository) LoadDataset(ctx context.Context, name string) (*marketdata.YearlyDataset, error) {
	const query = `
		SELECT artifact_id, name, year, source, group_label, filter_label, dates, symbols
		FROM dataset_artifacts
		WHERE name=$1`

	artifact := models.ArtifactModel{}
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&artifact.ArtifactID,
		&artifact.Name,
		&artifact.Year,
		&artifact.Source,
		&artifact.GroupLabel,
		&artifact.FilterLabel,
		&artifact.Dates,
		&artifact.Symbols,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrArtifactNotFound
		}
		return nil, err
	}

	dates, symbols, err := decodeIndexes(artifact.Dates, artifact.Symbols)
	if err != nil {
		return nil, err
	}

	const barsQuery = `
		SELECT symbol, date, open, high, low, close, volume, trade_count, vwap
		FROM dataset_bars
		WHERE artifact_id=$1
		ORDER BY date ASC`
	rows, err := r.pool.Query(ctx, barsQuery, artifact.ArtifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grouped := make(map[string][]marketdata.Bar, len(symbols))
	for rows.Next() {
		bar := models.BarModel{}
		if err := rows.Scan(
			&bar.Symbol,
			&bar.Date,
			&bar.Open,
			&bar.High,
			&bar.Low,
			&bar.Close,
			&bar.Volume,
			&bar.TradeCount,
			&bar.VWAP,
		); err != nil {
			return nil, err
		}
		grouped[bar.Symbol] = append(grouped[bar.Symbol], barToDomain(bar))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ds := marketdata.NewAnchoredDataset(artifact.Year, artifact.GroupLabel, artifact.Source, artifact.FilterLabel, dates)
	for _, symbol := range symbols {
		ds.AddSymbolBars(symbol, grouped[symbol])
	}
	return ds, nil
}

// ListArtifacts returns stored artifact summaries, newest first.
func (r *Repository) ListArtifacts(ctx context.Context) ([]marketdata.ArtifactInfo, error) {
	const query = `
		SELECT name, year, source, filter_label, dates, symbols, created_at
		FROM dataset_artifacts
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []marketdata.ArtifactInfo
	for rows.Next() {
		var (
			info      marketdata.ArtifactInfo
			datesRaw  []byte
			symbolRaw []byte
		)
		if err := rows.Scan(&info.Name, &info.Year, &info.Source, &info.Filter, &datesRaw, &symbolRaw, &info.CreatedAt); err != nil {
			return nil, err
		}
		dates, symbols, err := decodeIndexes(datesRaw, symbolRaw)
		if err != nil {
			return nil, err
		}
		info.Rows = len(dates)
		info.Columns = 1 + len(marketdata.BarFields)*len(symbols)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func toModels(ds *marketdata.YearlyDataset) (models.ArtifactModel, []models.BarModel, error) {
	dates := ds.Dates()
	encodedDates := make([]string, 0, len(dates))
	for _, date := range dates {
		encodedDates = append(encodedDates, date.Format(dateLayout))
	}
	datesJSON, err := json.Marshal(encodedDates)
	if err != nil {
		return models.ArtifactModel{}, nil, fmt.Errorf("marshal dates: %w", err)
	}
	symbolsJSON, err := json.Marshal(ds.Symbols())
	if err != nil {
		return models.ArtifactModel{}, nil, fmt.Errorf("marshal symbols: %w", err)
	}

	artifact := models.ArtifactModel{
		ArtifactID:  uuid.New(),
		Name:        ds.Name(),
		Year:        ds.Year,
		Source:      ds.Source,
		GroupLabel:  ds.Group,
		FilterLabel: ds.Filter,
		Dates:       datesJSON,
		Symbols:     symbolsJSON,
	}

	var bars []models.BarModel
	for _, symbol := range ds.Symbols() {
		for _, date := range dates {
			bar, ok := ds.Bar(symbol, date)
			if !ok {
				continue
			}
			bars = append(bars, models.BarModel{
				ArtifactID: artifact.ArtifactID,
				Symbol:     symbol,
				Date:       bar.Date,
				Open:       bar.Open,
				High:       bar.High,
				Low:        bar.Low,
				Close:      bar.Close,
				Volume:     bar.Volume,
				TradeCount: bar.TradeCount,
				VWAP:       bar.VWAP,
			})
		}
	}
	return artifact, bars, nil
}

func barToDomain(bar models.BarModel) marketdata.Bar {
	return marketdata.Bar{
		Symbol:     bar.Symbol,
		Date:       bar.Date,
		Open:       bar.Open,
		High:       bar.High,
		Low:        bar.Low,
		Close:      bar.Close,
		Volume:     bar.Volume,
		TradeCount: bar.TradeCount,
		VWAP:       bar.VWAP,
	}
}

func decodeIndexes(datesRaw, symbolsRaw []byte) ([]time.Time, []string, error) {
	var encoded []string
	if err := json.Unmarshal(datesRaw, &encoded); err != nil {
		return nil, nil, fmt.Errorf("unmarshal dates: %w", err)
	}
	dates := make([]time.Time, 0, len(encoded))
	for _, value := range encoded {
		date, err := time.ParseInLocation(dateLayout, value, time.UTC)
		if err != nil {
			return nil, nil, fmt.Errorf("parse date %q: %w", value, err)
		}
		dates = append(dates, date)
	}

	var symbols []string
	if err := json.Unmarshal(symbolsRaw, &symbols); err != nil {
		return nil, nil, fmt.Errorf("unmarshal symbols: %w", err)
	}
	return dates, symbols, nil
}
