package testsupport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"statlens/internal/query"
	"statlens/internal/sites"
	"statlens/internal/store"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// allModels returns all statlens registry models for migration
func allModels() []any {
	return []any{
		&sites.Site{},
		&sites.Goal{},
	}
}

// SetupTestDB creates a test registry database with all models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by test name so multiple calls within the same test return the same one.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateTestSite inserts a site with the given domain and timezone.
func CreateTestSite(t *testing.T, db *gorm.DB, domain, timezone string) *sites.Site {
	t.Helper()

	site := &sites.Site{Domain: domain, Timezone: timezone}
	if err := db.Create(site).Error; err != nil {
		t.Fatalf("testsupport: failed to create site: %v", err)
	}
	return site
}

// CreateTestGoal inserts a goal for the site. Exactly one of eventName or
// pagePath should be non-empty.
func CreateTestGoal(t *testing.T, db *gorm.DB, siteID uint, eventName, pagePath string) *sites.Goal {
	t.Helper()

	goal := &sites.Goal{SiteID: siteID, EventName: eventName, PagePath: pagePath}
	if err := db.Create(goal).Error; err != nil {
		t.Fatalf("testsupport: failed to create goal: %v", err)
	}
	return goal
}

// FakeStore is an in-memory store.Store used by report engine tests. Each
// response field is returned verbatim; Calls records the order the store's
// methods were invoked in.
type FakeStore struct {
	mu    sync.Mutex
	Calls []string

	AggregateFunc   func(q query.Query, metrics []store.Metric) (map[store.Metric]store.AggregateValue, error)
	BreakdownFunc   func(q query.Query, dimension string, metrics []store.Metric) ([]store.Row, error)
	TimeseriesFunc  func(q query.Query, metrics []store.Metric) ([]store.TimePoint, error)
	Visitors        int64
	VisitorsErr     error
	PropsResult     map[string][]string
	Suggestions     []string
	SuggestionsErr  error
}

func (f *FakeStore) record(name string) {
	f.mu.Lock()
	f.Calls = append(f.Calls, name)
	f.mu.Unlock()
}

func (f *FakeStore) Aggregate(ctx context.Context, site store.Site, q query.Query, metrics []store.Metric) (map[store.Metric]store.AggregateValue, error) {
	f.record("aggregate")
	if f.AggregateFunc == nil {
		return map[store.Metric]store.AggregateValue{}, nil
	}
	return f.AggregateFunc(q, metrics)
}

func (f *FakeStore) Breakdown(ctx context.Context, site store.Site, q query.Query, dimension string, metrics []store.Metric, pagination store.Pagination) ([]store.Row, error) {
	f.record("breakdown")
	if f.BreakdownFunc == nil {
		return nil, nil
	}
	return f.BreakdownFunc(q, dimension, metrics)
}

func (f *FakeStore) Timeseries(ctx context.Context, site store.Site, q query.Query, metrics []store.Metric) ([]store.TimePoint, error) {
	f.record("timeseries")
	if f.TimeseriesFunc == nil {
		return nil, nil
	}
	return f.TimeseriesFunc(q, metrics)
}

func (f *FakeStore) CurrentVisitors(ctx context.Context, site store.Site) (int64, error) {
	f.record("current_visitors")
	return f.Visitors, f.VisitorsErr
}

func (f *FakeStore) Props(ctx context.Context, site store.Site, q query.Query) (map[string][]string, error) {
	f.record("props")
	return f.PropsResult, nil
}

func (f *FakeStore) FilterSuggestions(ctx context.Context, site store.Site, q query.Query, filterName, partial string) ([]string, error) {
	f.record("filter_suggestions")
	return f.Suggestions, f.SuggestionsErr
}

var _ store.Store = (*FakeStore)(nil)
