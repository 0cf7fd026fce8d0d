package http

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"statlens/internal/config"
	"statlens/internal/query"
	"statlens/internal/reports"
	"statlens/internal/sites"
	"statlens/internal/store"
)

// StatsHandler serves the report API. Each request builds its own Query and
// shares nothing with other requests beyond the read-only registry.
type StatsHandler struct {
	engine *reports.Engine
	db     *gorm.DB
	cfg    *config.Config
	logger *slog.Logger
}

// NewStatsHandler wires the report API handler.
func NewStatsHandler(engine *reports.Engine, db *gorm.DB, cfg *config.Config, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{engine: engine, db: db, cfg: cfg, logger: logger}
}

// TopStats serves the headline aggregate report.
func (h *StatsHandler) TopStats(c *fiber.Ctx) error {
	site, q, err := h.resolveRequest(c)
	if err != nil {
		return h.handleError(c, err)
	}

	result, err := h.engine.TopStats(c.Context(), site, q, comparisonDirective(c))
	if err != nil {
		return h.handleError(c, err)
	}

	if wantsCSV(c) {
		return writeCSV(c, "top_stats.csv", reports.TopStatsCSV(result))
	}
	return c.JSON(result)
}

// Timeseries serves the main-graph report.
func (h *StatsHandler) Timeseries(c *fiber.Ctx) error {
	site, q, err := h.resolveRequest(c)
	if err != nil {
		return h.handleError(c, err)
	}

	metric, err := parseMetric(c.Query("metric"))
	if err != nil {
		return h.handleError(c, err)
	}

	result, err := h.engine.Timeseries(c.Context(), site, q, reports.TimeseriesParams{
		Metric:     metric,
		Comparison: comparisonDirective(c),
	})
	if err != nil {
		return h.handleError(c, err)
	}

	if wantsCSV(c) {
		return writeCSV(c, "visitors.csv", reports.TimeseriesCSV(result))
	}
	return c.JSON(result)
}

// Breakdown serves a single-dimension grouped report.
func (h *StatsHandler) Breakdown(c *fiber.Ctx) error {
	site, q, err := h.resolveRequest(c)
	if err != nil {
		return h.handleError(c, err)
	}

	dimension := c.Params("dimension")
	if property := c.Query("property"); property != "" {
		dimension = "props:" + property
	}

	metrics, err := parseMetrics(c.Query("metrics"))
	if err != nil {
		return h.handleError(c, err)
	}

	result, err := h.engine.Breakdown(c.Context(), site, q, reports.BreakdownParams{
		Dimension:  dimension,
		Metrics:    metrics,
		Pagination: h.pagination(c),
		Comparison: comparisonDirective(c),
	})
	if err != nil {
		return h.handleError(c, err)
	}

	if wantsCSV(c) {
		_, goalActive := q.GoalFilter()
		doc := reports.BreakdownCSV(result, metrics, goalActive)
		return writeCSV(c, reports.DimensionShortName(result.Dimension)+".csv", doc)
	}
	return c.JSON(result)
}

// CurrentVisitors serves the live visitor count.
func (h *StatsHandler) CurrentVisitors(c *fiber.Ctx) error {
	site, err := h.resolveSite(c)
	if err != nil {
		return h.handleError(c, err)
	}

	count, err := h.engine.CurrentVisitors(c.Context(), site)
	if err != nil {
		return h.handleError(c, err)
	}
	return c.JSON(count)
}

// Props serves the custom property names seen for the queried events.
func (h *StatsHandler) Props(c *fiber.Ctx) error {
	site, q, err := h.resolveRequest(c)
	if err != nil {
		return h.handleError(c, err)
	}

	props, err := h.engine.Props(c.Context(), site, q)
	if err != nil {
		return h.handleError(c, err)
	}
	return c.JSON(props)
}

// Suggestions serves filter autocompletion values.
func (h *StatsHandler) Suggestions(c *fiber.Ctx) error {
	site, q, err := h.resolveRequest(c)
	if err != nil {
		return h.handleError(c, err)
	}

	suggestions, err := h.engine.FilterSuggestions(c.Context(), site, q, c.Params("filter_name"), c.Query("q"))
	if err != nil {
		return h.handleError(c, err)
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	return c.JSON(suggestions)
}

func (h *StatsHandler) resolveSite(c *fiber.Ctx) (*sites.Site, error) {
	return sites.GetSiteByDomain(h.db, c.Params("domain"))
}

func (h *StatsHandler) resolveRequest(c *fiber.Ctx) (*sites.Site, query.Query, error) {
	site, err := h.resolveSite(c)
	if err != nil {
		return nil, query.Query{}, err
	}

	q, err := query.Build(query.BuildParams{
		Period:          c.Query("period"),
		Date:            c.Query("date"),
		From:            c.Query("from"),
		To:              c.Query("to"),
		Interval:        c.Query("interval"),
		Filters:         c.Query("filters"),
		WithImported:    c.QueryBool("with_imported", true),
		SampleThreshold: h.cfg.SampleThreshold,
	}, site.QueryContext(), h.engine.Now())
	if err != nil {
		return nil, query.Query{}, err
	}
	return site, q, nil
}

func (h *StatsHandler) pagination(c *fiber.Ctx) store.Pagination {
	limit := c.QueryInt("limit", h.cfg.BreakdownLimit)
	if limit <= 0 || limit > 1000 {
		limit = h.cfg.BreakdownLimit
	}
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	return store.Pagination{Limit: limit, Page: page}
}

func comparisonDirective(c *fiber.Ctx) query.ComparisonDirective {
	return query.ComparisonDirective{
		Mode:           query.ComparisonMode(c.Query("comparison", string(query.ComparisonOff))),
		From:           c.Query("compare_from"),
		To:             c.Query("compare_to"),
		MatchDayOfWeek: c.QueryBool("match_day_of_week", false),
	}
}

var knownMetrics = map[store.Metric]bool{
	store.MetricVisitors:      true,
	store.MetricVisits:        true,
	store.MetricPageviews:     true,
	store.MetricEvents:        true,
	store.MetricBounceRate:    true,
	store.MetricVisitDuration: true,
	store.MetricTimeOnPage:    true,
	store.MetricViewsPerVisit: true,
	store.MetricSamplePercent: true,
}

func parseMetric(raw string) (store.Metric, error) {
	if raw == "" {
		return "", nil
	}
	m := store.Metric(raw)
	if !knownMetrics[m] {
		return "", &query.ValidationError{Reason: fmt.Sprintf("unknown metric %q", raw)}
	}
	return m, nil
}

func parseMetrics(raw string) ([]store.Metric, error) {
	if raw == "" {
		return nil, nil
	}
	var metrics []store.Metric
	for _, part := range strings.Split(raw, ",") {
		m, err := parseMetric(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if m != "" {
			metrics = append(metrics, m)
		}
	}
	return metrics, nil
}

func wantsCSV(c *fiber.Ctx) bool {
	return c.Query("format") == "csv"
}

func writeCSV(c *fiber.Ctx, filename string, doc reports.CSVDocument) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(doc.Headers); err != nil {
		return err
	}
	if err := w.WriteAll(doc.Rows); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(buf.Bytes())
}

func (h *StatsHandler) handleError(c *fiber.Ctx, err error) error {
	var notFound *sites.SiteNotFoundError
	switch {
	case query.IsValidationError(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	default:
		h.logger.Error("report failed",
			slog.String("path", c.Path()),
			slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "report failed"})
	}
}
