package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/huduma/answer-service/internal/entities"
)

// DB is the subset of *pgxpool.Pool the repositories use, so tests can
// substitute pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UsageRepository keeps per-day answer counts. No message text is stored.
type UsageRepository struct {
	db  DB
	now func() time.Time
}

func NewUsageRepository(db DB) *UsageRepository {
	return &UsageRepository{db: db, now: time.Now}
}

const createUsageTable = `
	CREATE TABLE IF NOT EXISTS answer_usage (
		date DATE NOT NULL,
		channel VARCHAR(20) NOT NULL,
		source VARCHAR(32) NOT NULL,
		count BIGINT NOT NULL DEFAULT 0,
		total_latency_ms BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (date, channel, source)
	)`

// EnsureSchema creates the usage table when it does not exist yet.
func (r *UsageRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createUsageTable); err != nil {
		return fmt.Errorf("create answer_usage: %w", err)
	}
	return nil
}

// Record adds one answered query to today's row for its channel and source.
func (r *UsageRepository) Record(ctx context.Context, e entities.UsageEvent) error {
	day := e.At.UTC().Format("2006-01-02")
	_, err := r.db.Exec(ctx, `
		INSERT INTO answer_usage (date, channel, source, count, total_latency_ms)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (date, channel, source)
		DO UPDATE SET count = answer_usage.count + 1,
			total_latency_ms = answer_usage.total_latency_ms + EXCLUDED.total_latency_ms
	`, day, e.Channel, string(e.Source), e.Latency.Milliseconds())
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// DailyUsage returns the rows of the last days days, oldest first.
func (r *UsageRepository) DailyUsage(ctx context.Context, days int) ([]entities.DailyUsage, error) {
	startDate := r.now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := r.db.Query(ctx, `
		SELECT date, channel, source, count, COALESCE(total_latency_ms / NULLIF(count, 0), 0)
		FROM answer_usage
		WHERE date > $1
		ORDER BY date ASC, channel ASC, source ASC
	`, startDate)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	usage := []entities.DailyUsage{}
	for rows.Next() {
		var u entities.DailyUsage
		var source string
		if err := rows.Scan(&u.Date, &u.Channel, &source, &u.Count, &u.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		u.Source = entities.Source(source)
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage: %w", err)
	}
	return usage, nil
}

// SourceTotals sums answers per provenance over the last days days.
func (r *UsageRepository) SourceTotals(ctx context.Context, days int) (map[entities.Source]int64, error) {
	startDate := r.now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := r.db.Query(ctx, `
		SELECT source, COALESCE(SUM(count), 0)
		FROM answer_usage
		WHERE date > $1
		GROUP BY source
	`, startDate)
	if err != nil {
		return nil, fmt.Errorf("query usage totals: %w", err)
	}
	defer rows.Close()

	totals := map[entities.Source]int64{}
	for rows.Next() {
		var source string
		var count int64
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scan usage totals: %w", err)
		}
		totals[entities.Source(source)] = count
	}
	return totals, rows.Err()
}
