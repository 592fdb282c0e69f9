package output

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/fx-rate-scraper/pkg/logging"
)

// PostgresSink stores tables in a Postgres table with one row per data row.
type PostgresSink struct {
	pool   *pgxpool.Pool
	table  string
	logger zerolog.Logger
}

// OpenPostgresSink connects to dsn and creates the target table if needed.
func OpenPostgresSink(ctx context.Context, dsn, table string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns < 2 {
		cfg.MaxConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sink := NewPostgresSink(pool, table)
	if err := sink.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

// NewPostgresSink wraps an existing pool.
func NewPostgresSink(pool *pgxpool.Pool, table string) *PostgresSink {
	if table == "" {
		table = "fx_rates"
	}
	return &PostgresSink{
		pool:   pool,
		table:  pgx.Identifier{table}.Sanitize(),
		logger: logging.NewLogger("postgres-sink"),
	}
}

// EnsureSchema creates the rates table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		currency   text        NOT NULL,
		low_date   date        NOT NULL,
		high_date  date        NOT NULL,
		row_index  integer     NOT NULL,
		header     text[],
		cells      text[]      NOT NULL,
		no_data    boolean     NOT NULL DEFAULT false,
		written_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (currency, low_date, high_date, row_index)
	)`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Write implements Sink. Rows previously stored for the same currency and
// range are replaced atomically.
func (s *PostgresSink) Write(ctx context.Context, t *Table) (err error) {
	defer func() { observeWrite("postgres", t, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	low, high := dateOnly(t.Range.Low), dateOnly(t.Range.High)

	if _, err := tx.Exec(ctx,
		`DELETE FROM `+s.table+` WHERE currency = $1 AND low_date = $2 AND high_date = $3`,
		t.Currency, low, high,
	); err != nil {
		return fmt.Errorf("delete previous rows: %w", err)
	}

	insert := `INSERT INTO ` + s.table + ` (currency, low_date, high_date, row_index, header, cells, no_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	b := &pgx.Batch{}
	if t.NoData() {
		b.Queue(insert, t.Currency, low, high, 0, nil, []string{NoRecordsMarker}, true)
	} else {
		for i, row := range t.Rows {
			b.Queue(insert, t.Currency, low, high, i, t.Header, row, false)
		}
	}

	if b.Len() > 0 {
		br := tx.SendBatch(ctx, b)
		for i := 0; i < b.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert row %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info().
		Str("currency", t.Currency).
		Str("range", t.Range.String()).
		Int("rows", len(t.Rows)).
		Bool("no_data", t.NoData()).
		Msg("Rows stored")
	return nil
}

// Rows returns the stored cells for a currency and range in row order.
func (s *PostgresSink) Rows(ctx context.Context, currency string, r DateRange) ([][]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cells FROM `+s.table+` WHERE currency = $1 AND low_date = $2 AND high_date = $3 ORDER BY row_index`,
		currency, dateOnly(r.Low), dateOnly(r.High),
	)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}

	cells, err := pgx.CollectRows(rows, pgx.RowTo[[]string])
	if err != nil {
		return nil, fmt.Errorf("collect rows: %w", err)
	}
	return cells, nil
}

// Close releases the pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
