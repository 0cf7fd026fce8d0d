package query

import (
	"strings"
	"time"
)

// DefaultSampleThreshold is the row count above which the store may switch to
// statistical sampling. The engine only carries the value through.
const DefaultSampleThreshold int64 = 20_000_000

// ImportWindow describes the span of externally imported historical data a
// site carries, if any.
type ImportWindow struct {
	Start  time.Time
	End    time.Time
	Status string
}

// ImportStatusOK marks an import that finished successfully and may be merged
// into query results.
const ImportStatusOK = "ok"

// SiteContext is the read-only site reference data query construction needs.
type SiteContext struct {
	Timezone   *time.Location
	StatsStart time.Time
	Import     ImportWindow
}

// Query is the immutable, fully-resolved description of one analytics
// question. Mutating operations return a fresh value; a Query is never shared
// across requests.
type Query struct {
	Period          Period
	Range           DateRange
	Interval        Interval
	Filters         []Filter
	SampleThreshold int64
	IncludeImported bool
	Timezone        *time.Location

	// derived marks a comparison query so it cannot itself be compared.
	derived bool
	// importRequested preserves the caller's with_imported choice so derived
	// queries can re-decide IncludeImported for their own range.
	importRequested bool
}

// BuildParams are the raw request fields a Query is assembled from.
type BuildParams struct {
	Period          string
	Date            string
	From            string
	To              string
	Interval        string
	Filters         string
	WithImported    bool
	SampleThreshold int64
}

// Build resolves the period and filters into a Query, computed against the
// site's local calendar. now is injected for deterministic construction.
func Build(params BuildParams, site SiteContext, now time.Time) (Query, error) {
	loc := site.Timezone
	if loc == nil {
		loc = time.UTC
	}

	resolved, err := ResolvePeriod(PeriodParams{
		Period:   params.Period,
		Date:     params.Date,
		From:     params.From,
		To:       params.To,
		Interval: params.Interval,
	}, loc, site.StatsStart, now)
	if err != nil {
		return Query{}, err
	}

	filters, err := ParseFilters(params.Filters)
	if err != nil {
		return Query{}, err
	}

	threshold := params.SampleThreshold
	if threshold <= 0 {
		threshold = DefaultSampleThreshold
	}

	q := Query{
		Period:          resolved.Period,
		Range:           resolved.Range,
		Interval:        resolved.Interval,
		Filters:         filters,
		SampleThreshold: threshold,
		Timezone:        loc,
	}
	q.importRequested = params.WithImported
	q.IncludeImported = includeImported(q, site, params.WithImported)
	return q, nil
}

// includeImported decides whether imported data may be merged. Imported data
// cannot be partially filtered, so any filter disables it, as does an import
// that is missing, unfinished, or entirely before the queried range.
func includeImported(q Query, site SiteContext, requested bool) bool {
	if !requested || len(q.Filters) > 0 {
		return false
	}
	if site.Import.Status != ImportStatusOK {
		return false
	}
	return !q.Range.Start.After(Civil(site.Import.End))
}

// PutFilter returns a copy with the clause set, replacing any existing clause
// on the same dimension.
func (q Query) PutFilter(f Filter) Query {
	filters := make([]Filter, len(q.Filters))
	copy(filters, q.Filters)
	q.Filters = putFilter(filters, f)
	q.IncludeImported = false
	return q
}

// EventFilterKind selects which event-level filters RemoveEventFilters drops.
type EventFilterKind int

const (
	EventFilterGoal EventFilterKind = 1 << iota
	EventFilterProps
)

// RemoveEventFilters returns a copy without the selected event-level clauses.
// Used to derive the denominator query for conversion rates.
func (q Query) RemoveEventFilters(kinds EventFilterKind) Query {
	var kept []Filter
	for _, f := range q.Filters {
		drop := false
		if kinds&EventFilterGoal != 0 && f.Dimension == "event:goal" {
			drop = true
		}
		if kinds&EventFilterProps != 0 && strings.HasPrefix(f.Dimension, propsPrefix) {
			drop = true
		}
		if !drop {
			kept = append(kept, f)
		}
	}
	q.Filters = kept
	return q
}

// HasEventFilters reports whether a goal or custom-property clause is active.
func (q Query) HasEventFilters() bool {
	for _, f := range q.Filters {
		if f.Dimension == "event:goal" || strings.HasPrefix(f.Dimension, propsPrefix) {
			return true
		}
	}
	return false
}

// GoalFilter returns the goal clause if one is active.
func (q Query) GoalFilter() (Filter, bool) {
	return q.FindFilterByPrefix("event:goal")
}

// FindFilterByPrefix returns the first clause whose dimension starts with the
// given prefix.
func (q Query) FindFilterByPrefix(prefix string) (Filter, bool) {
	for _, f := range q.Filters {
		if strings.HasPrefix(f.Dimension, prefix) {
			return f, true
		}
	}
	return Filter{}, false
}

// Location returns the site timezone the query was resolved in.
func (q Query) Location() *time.Location {
	if q.Timezone == nil {
		return time.UTC
	}
	return q.Timezone
}
