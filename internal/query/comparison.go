package query

import "fmt"

// ComparisonMode selects how the comparison window relates to the base query.
type ComparisonMode string

const (
	ComparisonOff            ComparisonMode = "off"
	ComparisonPreviousPeriod ComparisonMode = "previous_period"
	ComparisonYearOverYear   ComparisonMode = "year_over_year"
	ComparisonCustom         ComparisonMode = "custom"
)

// ComparisonDirective is built once per request from raw parameters and
// consumed once to derive the comparison query.
type ComparisonDirective struct {
	Mode           ComparisonMode
	From           string
	To             string
	MatchDayOfWeek bool
}

// ParseComparisonMode validates the comparison selector. An empty selector
// means off.
func ParseComparisonMode(s string) (ComparisonMode, error) {
	switch m := ComparisonMode(s); m {
	case "":
		return ComparisonOff, nil
	case ComparisonOff, ComparisonPreviousPeriod, ComparisonYearOverYear, ComparisonCustom:
		return m, nil
	default:
		return "", &ValidationError{Reason: fmt.Sprintf("invalid comparison mode %q", s)}
	}
}

// Compare derives the time-shifted query the base is measured against.
// Filters, interval and sampling threshold carry over unchanged; the imported
// flag is recomputed for the new range. Returns ErrComparisonNotSupported for
// realtime bases, already-derived queries, and mode off.
func Compare(base Query, site SiteContext, d ComparisonDirective) (Query, error) {
	if d.Mode == ComparisonOff || base.Period == PeriodRealtime || base.derived {
		return Query{}, ErrComparisonNotSupported
	}

	var rng DateRange
	switch d.Mode {
	case ComparisonPreviousPeriod:
		length := base.Range.Days()
		rng = base.Range.Shift(-length)
	case ComparisonYearOverYear:
		rng = base.Range.ShiftYears(-1)
	case ComparisonCustom:
		from, err := ParseDate(d.From)
		if err != nil {
			return Query{}, err
		}
		to, err := ParseDate(d.To)
		if err != nil {
			return Query{}, err
		}
		if from.After(to) {
			return Query{}, &ValidationError{Reason: "compare_from must not be after compare_to"}
		}
		rng = DateRange{Start: from, End: to}
	default:
		return Query{}, &ValidationError{Reason: fmt.Sprintf("invalid comparison mode %q", d.Mode)}
	}

	if d.MatchDayOfWeek && d.Mode != ComparisonCustom {
		rng = matchDayOfWeek(rng, base.Range)
	}

	cmp := base
	cmp.Range = rng
	cmp.derived = true
	cmp.IncludeImported = includeImported(cmp, site, base.importRequested)
	return cmp, nil
}

// matchDayOfWeek shifts the comparison window by up to six days so its start
// falls on the same weekday as the base start. The length never changes, and
// the window is kept from drifting into the base range.
func matchDayOfWeek(rng, base DateRange) DateRange {
	diff := (int(base.Start.Weekday()) - int(rng.Start.Weekday()) + 7) % 7
	if diff == 0 {
		return rng
	}

	forward := rng.Shift(diff)
	backward := rng.Shift(diff - 7)
	if diff <= 3 && forward.End.Before(base.Start) {
		return forward
	}
	if backward.End.Before(base.Start) {
		return backward
	}
	return forward
}
