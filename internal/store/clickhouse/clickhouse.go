// Package clickhouse implements the event store contract on top of a
// ClickHouse events table.
package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	sq "github.com/Masterminds/squirrel"

	"statlens/internal/query"
	"statlens/internal/store"
)

// Options configures the ClickHouse connection.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Store executes the engine's aggregate/breakdown/timeseries calls against a
// single ClickHouse events table.
type Store struct {
	conn   driver.Conn
	db     string
	logger *slog.Logger
	now    func() time.Time
}

// Connect opens and pings a ClickHouse connection.
func Connect(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	logger.Info("connected to ClickHouse", slog.String("addr", opts.Addr))

	return &Store{conn: conn, db: opts.Database, logger: logger, now: time.Now}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// dimensionColumns maps namespaced dimension keys to event table columns.
var dimensionColumns = map[string]string{
	"visit:source":          "referrer_source",
	"visit:referrer":        "referrer",
	"visit:utm_medium":      "utm_medium",
	"visit:utm_source":      "utm_source",
	"visit:utm_campaign":    "utm_campaign",
	"visit:utm_content":     "utm_content",
	"visit:utm_term":        "utm_term",
	"visit:screen":          "screen",
	"visit:device":          "device",
	"visit:browser":         "browser",
	"visit:browser_version": "browser_version",
	"visit:os":              "os",
	"visit:os_version":      "os_version",
	"visit:country":         "country",
	"visit:region":          "region",
	"visit:city":            "city",
	"visit:entry_page":      "entry_page",
	"visit:exit_page":       "exit_page",
	"event:page":            "pathname",
	"event:hostname":        "hostname",
	"event:name":            "name",
	"event:goal":            "name",
}

const propsPrefix = "event:props:"

func dimensionColumn(dimension string) (string, error) {
	if key, ok := strings.CutPrefix(dimension, propsPrefix); ok {
		return fmt.Sprintf("props['%s']", strings.ReplaceAll(key, "'", "\\'")), nil
	}
	if col, ok := dimensionColumns[dimension]; ok {
		return col, nil
	}
	return "", fmt.Errorf("no column for dimension %q", dimension)
}

// metricExprs are the aggregate expressions per first-class metric.
// sample_percent is synthesized after scanning, not computed here.
var metricExprs = map[store.Metric]string{
	store.MetricVisitors:      "uniq(user_id)",
	store.MetricVisits:        "uniq(session_id)",
	store.MetricPageviews:     "countIf(name = 'pageview')",
	store.MetricEvents:        "count()",
	store.MetricBounceRate:    "round(100 * avg(is_bounce))",
	store.MetricVisitDuration: "round(avg(duration))",
	store.MetricTimeOnPage:    "round(avg(duration))",
	store.MetricViewsPerVisit: "round(countIf(name = 'pageview') / uniq(session_id), 2)",
}

func (s *Store) table(q query.Query) string {
	return fmt.Sprintf("%s.events SAMPLE %d", s.db, q.SampleThreshold)
}

// timeBounds converts the query's civil date range into instants in the site
// timezone. Realtime queries narrow to the rolling window instead.
func (s *Store) timeBounds(q query.Query) (time.Time, time.Time) {
	if q.Period == query.PeriodRealtime {
		return q.RealtimeBounds(s.now())
	}
	loc := q.Location()
	start := q.Range.Start
	end := q.Range.End
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	to := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)
	return from, to
}

func (s *Store) baseSelect(site store.Site, q query.Query, columns ...string) (sq.SelectBuilder, error) {
	from, to := s.timeBounds(q)
	b := sq.Select(columns...).
		From(s.table(q)).
		Where(sq.Eq{"site_id": site.ID}).
		Where(sq.GtOrEq{"timestamp": from}).
		Where(sq.LtOrEq{"timestamp": to})

	for _, f := range q.Filters {
		var err error
		b, err = applyFilter(b, f)
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

// applyFilter translates one filter clause into WHERE predicates. Goal
// filters special-case page goals ("Visit /path") onto the pathname column.
func applyFilter(b sq.SelectBuilder, f query.Filter) (sq.SelectBuilder, error) {
	if f.Dimension == "event:goal" {
		return applyGoalFilter(b, f), nil
	}

	col, err := dimensionColumn(f.Dimension)
	if err != nil {
		return b, err
	}

	switch f.Kind {
	case query.FilterIs:
		return b.Where(sq.Eq{col: f.Value()}), nil
	case query.FilterIsNot:
		return b.Where(sq.NotEq{col: f.Value()}), nil
	case query.FilterMember:
		return b.Where(sq.Eq{col: f.Values}), nil
	case query.FilterIsNotMember:
		return b.Where(sq.NotEq{col: f.Values}), nil
	case query.FilterContains:
		return b.Where(sq.Like{col: "%" + f.Value() + "%"}), nil
	case query.FilterDoesNotContain:
		return b.Where(sq.NotLike{col: "%" + f.Value() + "%"}), nil
	default:
		return b, fmt.Errorf("unknown filter kind %d", f.Kind)
	}
}

func applyGoalFilter(b sq.SelectBuilder, f query.Filter) sq.SelectBuilder {
	var or sq.Or
	for _, v := range f.Values {
		if page, ok := strings.CutPrefix(v, "Visit "); ok {
			or = append(or, sq.And{sq.Eq{"name": "pageview"}, sq.Eq{"pathname": page}})
		} else {
			or = append(or, sq.Eq{"name": v})
		}
	}
	if f.Negated() {
		sql, args, _ := or.ToSql()
		return b.Where("NOT ("+sql+")", args...)
	}
	return b.Where(or)
}

// Aggregate computes the requested metrics over the query window in one call.
func (s *Store) Aggregate(ctx context.Context, site store.Site, q query.Query, metrics []store.Metric) (map[store.Metric]store.AggregateValue, error) {
	columns := make([]string, 0, len(metrics))
	scanned := make([]store.Metric, 0, len(metrics))
	for _, m := range metrics {
		if expr, ok := metricExprs[m]; ok {
			columns = append(columns, fmt.Sprintf("%s AS %s", expr, m))
			scanned = append(scanned, m)
		}
	}

	results := make(map[store.Metric]store.AggregateValue, len(metrics))
	if len(columns) > 0 {
		b, err := s.baseSelect(site, q, columns...)
		if err != nil {
			return nil, store.WrapError("aggregate", err)
		}
		sql, args, err := b.ToSql()
		if err != nil {
			return nil, store.WrapError("aggregate", err)
		}

		dest := make([]float64, len(scanned))
		ptrs := make([]any, len(scanned))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := s.conn.QueryRow(ctx, sql, args...).Scan(ptrs...); err != nil {
			return nil, store.WrapError("aggregate", err)
		}
		for i, m := range scanned {
			results[m] = store.AggregateValue{Value: dest[i]}
		}
	}

	for _, m := range metrics {
		if m == store.MetricSamplePercent {
			results[m] = store.AggregateValue{Value: 100}
		}
	}
	return results, nil
}

// Breakdown groups the requested metrics by one dimension, ordered by the
// first metric descending.
func (s *Store) Breakdown(ctx context.Context, site store.Site, q query.Query, dimension string, metrics []store.Metric, pagination store.Pagination) ([]store.Row, error) {
	col, err := dimensionColumn(dimension)
	if err != nil {
		return nil, store.WrapError("breakdown", err)
	}

	columns := []string{fmt.Sprintf("%s AS dimension_value", col)}
	scanned := make([]store.Metric, 0, len(metrics))
	for _, m := range metrics {
		if expr, ok := metricExprs[m]; ok {
			columns = append(columns, fmt.Sprintf("%s AS %s", expr, m))
			scanned = append(scanned, m)
		}
	}
	if len(scanned) == 0 {
		return nil, store.WrapError("breakdown", fmt.Errorf("no computable metrics requested"))
	}

	b, err := s.baseSelect(site, q, columns...)
	if err != nil {
		return nil, store.WrapError("breakdown", err)
	}
	b = b.Where(fmt.Sprintf("%s != ''", col)).
		GroupBy(col).
		OrderBy(string(scanned[0]) + " DESC").
		Limit(uint64(pagination.Limit)).
		Offset(uint64(pagination.Offset()))

	sql, args, err := b.ToSql()
	if err != nil {
		return nil, store.WrapError("breakdown", err)
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, store.WrapError("breakdown", err)
	}
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		var value string
		dest := make([]float64, len(scanned))
		ptrs := make([]any, 0, len(scanned)+1)
		ptrs = append(ptrs, &value)
		for i := range dest {
			ptrs = append(ptrs, &dest[i])
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, store.WrapError("breakdown", err)
		}
		row := store.Row{Value: value, Metrics: make(map[store.Metric]float64, len(scanned))}
		for i, m := range scanned {
			row.Metrics[m] = dest[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, store.WrapError("breakdown", err)
	}
	return out, nil
}

// bucketExpr returns the ClickHouse grouping expression for an interval in
// the site timezone, formatted to match the engine's bucket labels.
func bucketExpr(iv query.Interval, tz string) string {
	switch iv {
	case query.IntervalMinute:
		return fmt.Sprintf("formatDateTime(toStartOfMinute(timestamp, '%s'), '%%Y-%%m-%%d %%H:%%i:00')", tz)
	case query.IntervalHour:
		return fmt.Sprintf("formatDateTime(toStartOfHour(timestamp, '%s'), '%%Y-%%m-%%d %%H:00:00')", tz)
	case query.IntervalWeek:
		return fmt.Sprintf("toString(toMonday(timestamp, '%s'))", tz)
	case query.IntervalMonth:
		return fmt.Sprintf("toString(toStartOfMonth(timestamp, '%s'))", tz)
	default:
		return fmt.Sprintf("toString(toDate(timestamp, '%s'))", tz)
	}
}

// Timeseries groups the requested metrics by time bucket, ascending.
func (s *Store) Timeseries(ctx context.Context, site store.Site, q query.Query, metrics []store.Metric) ([]store.TimePoint, error) {
	bucket := bucketExpr(q.Interval, q.Location().String())

	columns := []string{bucket + " AS bucket"}
	scanned := make([]store.Metric, 0, len(metrics))
	for _, m := range metrics {
		if expr, ok := metricExprs[m]; ok {
			columns = append(columns, fmt.Sprintf("%s AS %s", expr, m))
			scanned = append(scanned, m)
		}
	}

	b, err := s.baseSelect(site, q, columns...)
	if err != nil {
		return nil, store.WrapError("timeseries", err)
	}
	b = b.GroupBy("bucket").OrderBy("bucket ASC")

	sql, args, err := b.ToSql()
	if err != nil {
		return nil, store.WrapError("timeseries", err)
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, store.WrapError("timeseries", err)
	}
	defer rows.Close()

	var out []store.TimePoint
	for rows.Next() {
		var date string
		dest := make([]float64, len(scanned))
		ptrs := make([]any, 0, len(scanned)+1)
		ptrs = append(ptrs, &date)
		for i := range dest {
			ptrs = append(ptrs, &dest[i])
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, store.WrapError("timeseries", err)
		}
		point := store.TimePoint{Date: date, Metrics: make(map[store.Metric]float64, len(scanned))}
		for i, m := range scanned {
			point.Metrics[m] = dest[i]
		}
		out = append(out, point)
	}
	if err := rows.Err(); err != nil {
		return nil, store.WrapError("timeseries", err)
	}
	return out, nil
}

// CurrentVisitors counts distinct visitors active in the last five minutes.
func (s *Store) CurrentVisitors(ctx context.Context, site store.Site) (int64, error) {
	sql, args, err := sq.Select("uniq(user_id)").
		From(s.db + ".events").
		Where(sq.Eq{"site_id": site.ID}).
		Where(sq.GtOrEq{"timestamp": s.now().Add(-5 * time.Minute)}).
		ToSql()
	if err != nil {
		return 0, store.WrapError("current_visitors", err)
	}

	var count uint64
	if err := s.conn.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, store.WrapError("current_visitors", err)
	}
	return int64(count), nil
}

// Props lists the custom-property keys seen per goal within the query window.
func (s *Store) Props(ctx context.Context, site store.Site, q query.Query) (map[string][]string, error) {
	b, err := s.baseSelect(site, q, "name", "groupUniqArray(arrayJoin(mapKeys(props))) AS keys")
	if err != nil {
		return nil, store.WrapError("props", err)
	}
	sql, args, err := b.Where("name != 'pageview'").GroupBy("name").ToSql()
	if err != nil {
		return nil, store.WrapError("props", err)
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, store.WrapError("props", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var name string
		var keys []string
		if err := rows.Scan(&name, &keys); err != nil {
			return nil, store.WrapError("props", err)
		}
		out[name] = keys
	}
	if err := rows.Err(); err != nil {
		return nil, store.WrapError("props", err)
	}
	return out, nil
}

// FilterSuggestions returns dimension values matching a partial string, for
// filter autocompletion.
func (s *Store) FilterSuggestions(ctx context.Context, site store.Site, q query.Query, filterName, partial string) ([]string, error) {
	dimension, err := query.NormalizeDimension(filterName)
	if err != nil {
		return nil, err
	}
	col, err := dimensionColumn(dimension)
	if err != nil {
		return nil, store.WrapError("filter_suggestions", err)
	}

	b, err := s.baseSelect(site, q, fmt.Sprintf("DISTINCT %s AS suggestion", col))
	if err != nil {
		return nil, store.WrapError("filter_suggestions", err)
	}
	b = b.Where(fmt.Sprintf("%s != ''", col)).Limit(25)
	if partial != "" {
		b = b.Where(sq.ILike{col: "%" + partial + "%"})
	}

	sql, args, err := b.ToSql()
	if err != nil {
		return nil, store.WrapError("filter_suggestions", err)
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, store.WrapError("filter_suggestions", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, store.WrapError("filter_suggestions", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, store.WrapError("filter_suggestions", err)
	}
	return out, nil
}
