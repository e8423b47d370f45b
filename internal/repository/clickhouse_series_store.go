package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SalesPulse/internal/domain/models"
	domrepo "SalesPulse/internal/domain/repository"
	pkgch "SalesPulse/pkg/clickhouse"
	applogger "SalesPulse/pkg/logger"
)

// SeriesSchema returns the DDL for the metric points table.
func SeriesSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.metric_points (
    metric String,
    entity String,
    ts     DateTime('UTC'),
    value  Float64
) ENGINE = MergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (metric, entity, ts)`, database),
	}
}

// CHSeriesStore implements SeriesStore backed by ClickHouse.
type CHSeriesStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHSeriesStore(ch *pkgch.Client, l *applogger.Logger) *CHSeriesStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSeriesStore{
		db:    ch.DB(),
		table: ch.Database() + ".metric_points",
		l:     l.With(applogger.String("store", "clickhouse")),
	}
}

// bucketExpr maps a granularity to the ClickHouse bucketing function.
func bucketExpr(g domrepo.Granularity) string {
	switch g {
	case domrepo.GranRaw:
		return ""
	case domrepo.GranWeek:
		return "toStartOfWeek(ts, 1)"
	case domrepo.GranMonth:
		return "toStartOfMonth(ts)"
	default:
		return "toStartOfDay(ts)"
	}
}

func seriesQuery(table string, g domrepo.Granularity) string {
	expr := bucketExpr(g)
	if expr == "" {
		return fmt.Sprintf(`SELECT ts, value FROM %s
WHERE metric = ? AND entity = ? AND ts >= ? AND ts < ?
ORDER BY ts ASC`, table)
	}
	// toStartOfWeek/Month return Date; cast back so every bucket scans as time
	return fmt.Sprintf(`SELECT toDateTime(%s, 'UTC') AS bucket, sum(value) AS value FROM %s
WHERE metric = ? AND entity = ? AND ts >= ? AND ts < ?
GROUP BY bucket
ORDER BY bucket ASC`, expr, table)
}

func latestQuery(table string) string {
	return fmt.Sprintf(`SELECT ts, value FROM %s
WHERE metric = ? AND entity = ?
ORDER BY ts DESC
LIMIT ?`, table)
}

func (s *CHSeriesStore) GetSeries(ctx context.Context, key models.SeriesKey, from, to time.Time, g domrepo.Granularity) ([]models.SeriesPoint, error) {
	start := time.Now()
	points, err := s.query(ctx, seriesQuery(s.table, g), key.Metric, key.Entity, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse get_series failed",
			applogger.String("series", key.String()),
			applogger.String("granularity", string(g)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get series %s: %w", key, err)
	}
	s.l.Debug("clickhouse get_series ok",
		applogger.String("series", key.String()),
		applogger.String("granularity", string(g)),
		applogger.Int("rows", len(points)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return points, nil
}

// GetLatestN returns up to n most recent raw points in ascending time order.
func (s *CHSeriesStore) GetLatestN(ctx context.Context, key models.SeriesKey, n int) ([]models.SeriesPoint, error) {
	if n <= 0 {
		return nil, nil
	}
	points, err := s.query(ctx, latestQuery(s.table), key.Metric, key.Entity, n)
	if err != nil {
		s.l.Error("clickhouse latest_points failed",
			applogger.String("series", key.String()),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest points %s: %w", key, err)
	}
	reverse(points)
	return points, nil
}

func (s *CHSeriesStore) Append(ctx context.Context, o *models.Observation) error {
	q := fmt.Sprintf("INSERT INTO %s (metric, entity, ts, value) VALUES (?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q, o.Metric, o.Entity, o.Time(), o.V); err != nil {
		return fmt.Errorf("append %s: %w", o.Key(), err)
	}
	return nil
}

func (s *CHSeriesStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHSeriesStore) query(ctx context.Context, q string, args ...interface{}) ([]models.SeriesPoint, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.SeriesPoint, 0, 256)
	for rows.Next() {
		var p models.SeriesPoint
		if err := rows.Scan(&p.Time, &p.Value); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		p.Time = p.Time.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func reverse(points []models.SeriesPoint) {
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
}

var _ domrepo.SeriesStore = (*CHSeriesStore)(nil)
