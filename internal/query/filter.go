package query

import (
	"fmt"
	"strings"
)

// FilterKind enumerates the supported filter operations. The set is closed;
// every switch over it handles all six cases.
type FilterKind int

const (
	FilterIs FilterKind = iota
	FilterIsNot
	FilterMember
	FilterIsNotMember
	FilterContains
	FilterDoesNotContain
)

// Filter is a single clause over one dimension. Is/IsNot/Contains/
// DoesNotContain carry exactly one value; Member/IsNotMember carry the full
// set.
type Filter struct {
	Dimension string
	Kind      FilterKind
	Values    []string
}

// Value returns the single value of a non-member clause.
func (f Filter) Value() string {
	if len(f.Values) == 0 {
		return ""
	}
	return f.Values[0]
}

// Negated reports whether the clause excludes rather than selects.
func (f Filter) Negated() bool {
	return f.Kind == FilterIsNot || f.Kind == FilterIsNotMember || f.Kind == FilterDoesNotContain
}

const propsPrefix = "event:props:"

// dimensionNamespaces maps bare dimension names from the request surface to
// their namespaced keys. Session-level dimensions live under visit:,
// event-level ones under event:.
var dimensionNamespaces = map[string]string{
	"source":          "visit:source",
	"referrer":        "visit:referrer",
	"utm_medium":      "visit:utm_medium",
	"utm_source":      "visit:utm_source",
	"utm_campaign":    "visit:utm_campaign",
	"utm_content":     "visit:utm_content",
	"utm_term":        "visit:utm_term",
	"screen":          "visit:screen",
	"device":          "visit:device",
	"browser":         "visit:browser",
	"browser_version": "visit:browser_version",
	"os":              "visit:os",
	"os_version":      "visit:os_version",
	"country":         "visit:country",
	"region":          "visit:region",
	"city":            "visit:city",
	"entry_page":      "visit:entry_page",
	"exit_page":       "visit:exit_page",
	"page":            "event:page",
	"hostname":        "event:hostname",
	"goal":            "event:goal",
	"name":            "event:name",
}

// NormalizeDimension resolves a raw dimension key to its namespaced form.
// Already-prefixed keys pass through after a membership check; props keys are
// accepted with either the bare or full prefix.
func NormalizeDimension(key string) (string, error) {
	if strings.HasPrefix(key, propsPrefix) {
		return key, nil
	}
	if name, ok := strings.CutPrefix(key, "props:"); ok {
		return propsPrefix + name, nil
	}
	if full, ok := dimensionNamespaces[key]; ok {
		return full, nil
	}
	for _, full := range dimensionNamespaces {
		if key == full {
			return full, nil
		}
	}
	return "", &ValidationError{Reason: fmt.Sprintf("unknown filter dimension %q", key)}
}

// ParseFilters parses the serialized filter expression from the request
// surface. Clauses are separated by ';', values inside a clause by '|':
//
//	country==US;page!=/blog;source~google
//
// '==' selects, '!=' excludes, '~' matches substrings, '!~' excludes
// substrings. Multiple '|'-separated values turn '==' into a member clause
// and '!=' into its negation. A later clause for the same dimension replaces
// the earlier one.
func ParseFilters(expr string) ([]Filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	var filters []Filter
	for _, clause := range strings.Split(expr, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		f, err := parseClause(clause)
		if err != nil {
			return nil, err
		}
		filters = putFilter(filters, f)
	}
	return filters, nil
}

func parseClause(clause string) (Filter, error) {
	key, rest, op, err := splitOperator(clause)
	if err != nil {
		return Filter{}, err
	}

	dimension, err := NormalizeDimension(key)
	if err != nil {
		return Filter{}, err
	}

	values := strings.Split(rest, "|")
	for i := range values {
		values[i] = strings.TrimSpace(values[i])
	}

	kind := op
	if len(values) > 1 {
		switch op {
		case FilterIs:
			kind = FilterMember
		case FilterIsNot:
			kind = FilterIsNotMember
		}
	}
	return Filter{Dimension: dimension, Kind: kind, Values: values}, nil
}

func splitOperator(clause string) (key, rest string, kind FilterKind, err error) {
	for _, op := range []struct {
		token string
		kind  FilterKind
	}{
		{"!~", FilterDoesNotContain},
		{"==", FilterIs},
		{"!=", FilterIsNot},
		{"~", FilterContains},
	} {
		if k, v, found := strings.Cut(clause, op.token); found {
			return strings.TrimSpace(k), strings.TrimSpace(v), op.kind, nil
		}
	}
	return "", "", 0, &ValidationError{Reason: fmt.Sprintf("malformed filter clause %q", clause)}
}

// putFilter replaces any existing clause on the same dimension, preserving
// the position of the first occurrence for display ordering.
func putFilter(filters []Filter, f Filter) []Filter {
	for i := range filters {
		if filters[i].Dimension == f.Dimension {
			filters[i] = f
			return filters
		}
	}
	return append(filters, f)
}
