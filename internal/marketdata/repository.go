package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sonatalabs/sonata/internal/contracts"
)

// PostgresBarRepository implements contracts.BarRepository on a pgx pool.
// Bars live in data.daily_bars keyed by (symbol, bar_date); saving the
// same day twice overwrites the close.
type PostgresBarRepository struct {
	pool *pgxpool.Pool
}

var _ contracts.BarRepository = (*PostgresBarRepository)(nil)

// NewPostgresBarRepository creates a repository on the given pool.
func NewPostgresBarRepository(pool *pgxpool.Pool) *PostgresBarRepository {
	return &PostgresBarRepository{pool: pool}
}

// Save upserts a batch of bars.
func (r *PostgresBarRepository) Save(ctx context.Context, bars []contracts.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO data.daily_bars (symbol, bar_date, close_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, bar_date) DO UPDATE SET
			close_price = EXCLUDED.close_price
	`

	for _, bar := range bars {
		if _, err := r.pool.Exec(ctx, query, bar.Symbol, bar.Date, bar.Close); err != nil {
			return fmt.Errorf("failed to save bar %s %s: %w",
				bar.Symbol, bar.Date.Format("2006-01-02"), err)
		}
	}
	return nil
}

// Range returns the bars for a symbol in [from, to], ascending by date.
func (r *PostgresBarRepository) Range(ctx context.Context, symbol string, from, to time.Time) ([]contracts.DailyBar, error) {
	query := `
		SELECT symbol, bar_date, close_price
		FROM data.daily_bars
		WHERE symbol = $1 AND bar_date BETWEEN $2 AND $3
		ORDER BY bar_date ASC
	`

	rows, err := r.pool.Query(ctx, query, symbol, contracts.Day(from), contracts.Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []contracts.DailyBar
	for rows.Next() {
		var b contracts.DailyBar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Close); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Date = contracts.Day(b.Date)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Latest returns the n most recent bars for a symbol, ascending by date.
func (r *PostgresBarRepository) Latest(ctx context.Context, symbol string, n int) ([]contracts.DailyBar, error) {
	if n < 1 {
		return nil, fmt.Errorf("latest bar count must be positive, got %d", n)
	}

	query := `
		SELECT symbol, bar_date, close_price
		FROM data.daily_bars
		WHERE symbol = $1
		ORDER BY bar_date DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []contracts.DailyBar
	for rows.Next() {
		var b contracts.DailyBar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Close); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Date = contracts.Day(b.Date)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Flip from query order back to chronological.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}
