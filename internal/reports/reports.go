// Package reports orchestrates store calls for one analytics request and
// enriches the raw results into response-ready shapes. Every report either
// completes with all of its inputs or fails as a whole; there are no partial
// results and no retries.
package reports

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"statlens/internal/query"
	"statlens/internal/sites"
	"statlens/internal/store"
)

// Engine runs reports against the event store and the site registry.
type Engine struct {
	store  store.Store
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine wires a report engine. db is the site/goal registry connection.
func NewEngine(st store.Store, db *gorm.DB, logger *slog.Logger) *Engine {
	return &Engine{store: st, db: db, logger: logger, now: time.Now}
}

// WithClock overrides the engine clock, for deterministic tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Now returns the engine's current instant. Queries built for this engine
// should anchor on it so "today" agrees across construction and execution.
func (e *Engine) Now() time.Time {
	return e.now()
}

// storeSite converts a registry site into the store's identifier pair.
func storeSite(site *sites.Site) store.Site {
	id, domain := site.StoreSite()
	return store.Site{ID: id, Domain: domain}
}

// compareOrSkip derives the comparison query, treating "not supported" as an
// absent comparison rather than a failure.
func compareOrSkip(base query.Query, siteCtx query.SiteContext, directive query.ComparisonDirective) (query.Query, bool, error) {
	cmp, err := query.Compare(base, siteCtx, directive)
	if err != nil {
		if errors.Is(err, query.ErrComparisonNotSupported) {
			return query.Query{}, false, nil
		}
		return query.Query{}, false, err
	}
	return cmp, true, nil
}

// CurrentVisitors passes the live visitor count through from the store.
func (e *Engine) CurrentVisitors(ctx context.Context, site *sites.Site) (int64, error) {
	return e.store.CurrentVisitors(ctx, storeSite(site))
}

// FilterSuggestions validates the filter name and passes the lookup through.
func (e *Engine) FilterSuggestions(ctx context.Context, site *sites.Site, q query.Query, filterName, partial string) ([]string, error) {
	if _, err := query.NormalizeDimension(filterName); err != nil {
		return nil, err
	}
	return e.store.FilterSuggestions(ctx, storeSite(site), q, filterName, partial)
}

// Props passes through the goal → custom property names mapping.
func (e *Engine) Props(ctx context.Context, site *sites.Site, q query.Query) (map[string][]string, error) {
	return e.store.Props(ctx, storeSite(site), q)
}

// ReportMeta describes the window a report actually executed over.
type ReportMeta struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Interval query.Interval `json:"interval"`
	Imported bool           `json:"imported"`
}

func metaFor(q query.Query) ReportMeta {
	return ReportMeta{
		From:     q.Range.Start.Format("2006-01-02"),
		To:       q.Range.End.Format("2006-01-02"),
		Interval: q.Interval,
		Imported: q.IncludeImported,
	}
}
