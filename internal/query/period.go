package query

import (
	"fmt"
	"time"
)

// Period identifies the shape of the calendar window a query covers.
type Period string

const (
	PeriodRealtime Period = "realtime"
	PeriodDay      Period = "day"
	Period7Days    Period = "7d"
	Period30Days   Period = "30d"
	PeriodMonth    Period = "month"
	Period6Months  Period = "6mo"
	Period12Months Period = "12mo"
	PeriodYear     Period = "year"
	PeriodAll      Period = "all"
	PeriodCustom   Period = "custom"
)

// Interval is the bucket granularity used when grouping a period over time.
type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDate   Interval = "date"
	IntervalWeek   Interval = "week"
	IntervalMonth  Interval = "month"
)

// validIntervals lists the bucket sizes each period may be grouped by.
// Requesting anything outside the set is a validation error, not a fallback.
var validIntervals = map[Period][]Interval{
	PeriodRealtime: {IntervalMinute},
	PeriodDay:      {IntervalMinute, IntervalHour},
	Period7Days:    {IntervalHour, IntervalDate},
	Period30Days:   {IntervalDate, IntervalWeek},
	PeriodMonth:    {IntervalDate, IntervalWeek},
	Period6Months:  {IntervalDate, IntervalWeek, IntervalMonth},
	Period12Months: {IntervalDate, IntervalWeek, IntervalMonth},
	PeriodYear:     {IntervalDate, IntervalWeek, IntervalMonth},
	PeriodAll:      {IntervalDate, IntervalWeek, IntervalMonth},
	PeriodCustom:   {IntervalDate, IntervalWeek, IntervalMonth},
}

var defaultIntervals = map[Period]Interval{
	PeriodRealtime: IntervalMinute,
	PeriodDay:      IntervalHour,
	Period7Days:    IntervalDate,
	Period30Days:   IntervalDate,
	PeriodMonth:    IntervalDate,
	Period6Months:  IntervalMonth,
	Period12Months: IntervalMonth,
	PeriodYear:     IntervalMonth,
	PeriodAll:      IntervalMonth,
	PeriodCustom:   IntervalDate,
}

// ParsePeriod validates a period keyword. Unrecognized keywords are rejected
// rather than silently defaulting to a 30-day window.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodRealtime, PeriodDay, Period7Days, Period30Days, PeriodMonth,
		Period6Months, Period12Months, PeriodYear, PeriodAll, PeriodCustom:
		return p, nil
	case "":
		return Period30Days, nil
	default:
		return "", &ValidationError{Reason: fmt.Sprintf("invalid period %q", s)}
	}
}

// ValidateInterval checks that the requested interval is recognized and no
// coarser than the period's natural grouping.
func ValidateInterval(p Period, iv Interval) error {
	allowed, ok := validIntervals[p]
	if !ok {
		return &ValidationError{Reason: fmt.Sprintf("invalid period %q", p)}
	}
	for _, a := range allowed {
		if a == iv {
			return nil
		}
	}
	return &ValidationError{Reason: fmt.Sprintf("invalid interval %q for period %q", iv, p)}
}

// DefaultInterval returns the interval a period is grouped by when the caller
// does not request one.
func DefaultInterval(p Period) Interval {
	return defaultIntervals[p]
}

// PeriodParams carries the raw request fields the resolver consumes. Dates are
// "2006-01-02" strings interpreted in the site's timezone; an empty Date
// anchors the period at today.
type PeriodParams struct {
	Period   string
	Date     string
	From     string
	To       string
	Interval string
}

// ResolvedPeriod is the concrete window a period keyword expands into.
type ResolvedPeriod struct {
	Period   Period
	Range    DateRange
	Interval Interval
}

// ResolvePeriod turns a period keyword plus anchor date into an inclusive
// civil date range and bucket interval, all computed in the site's local
// calendar. statsStart is the site's earliest recorded date, used by the
// "all" period.
func ResolvePeriod(params PeriodParams, loc *time.Location, statsStart time.Time, now time.Time) (ResolvedPeriod, error) {
	period, err := ParsePeriod(params.Period)
	if err != nil {
		return ResolvedPeriod{}, err
	}

	today := Today(now, loc)
	anchor := today
	if params.Date != "" {
		anchor, err = ParseDate(params.Date)
		if err != nil {
			return ResolvedPeriod{}, err
		}
	}

	var rng DateRange
	interval := DefaultInterval(period)

	switch period {
	case PeriodRealtime:
		// Execution later narrows this to a rolling 30-minute window; the
		// stored range is just today.
		rng = DateRange{Start: today, End: today}
	case PeriodDay:
		rng = DateRange{Start: anchor, End: anchor}
	case Period7Days:
		rng = DateRange{Start: anchor.AddDate(0, 0, -6), End: anchor}
	case Period30Days:
		rng = DateRange{Start: anchor.AddDate(0, 0, -30), End: anchor}
	case PeriodMonth:
		start := StartOfMonth(anchor)
		rng = DateRange{Start: start, End: EndOfMonth(anchor)}
	case Period6Months, Period12Months:
		months := 5
		if period == Period12Months {
			months = 11
		}
		end := EndOfMonth(anchor)
		rng = DateRange{Start: StartOfMonth(end).AddDate(0, -months, 0), End: end}
	case PeriodYear:
		rng = DateRange{
			Start: time.Date(anchor.Year(), 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(anchor.Year(), 12, 31, 0, 0, 0, 0, time.UTC),
		}
	case PeriodAll:
		start := statsStart
		if start.IsZero() {
			start = today
		} else {
			start = Civil(start.In(loc))
		}
		rng = DateRange{Start: start, End: today}
		interval = allTimeInterval(rng)
	case PeriodCustom:
		if params.From == "" || params.To == "" {
			return ResolvedPeriod{}, &ValidationError{Reason: "custom period requires from and to dates"}
		}
		from, err := ParseDate(params.From)
		if err != nil {
			return ResolvedPeriod{}, err
		}
		to, err := ParseDate(params.To)
		if err != nil {
			return ResolvedPeriod{}, err
		}
		if from.After(to) {
			return ResolvedPeriod{}, &ValidationError{Reason: "from date must not be after to date"}
		}
		rng = DateRange{Start: from, End: to}
	}

	if params.Interval != "" {
		interval = Interval(params.Interval)
	}
	if err := ValidateInterval(period, interval); err != nil {
		// The single-day "all" window groups by hour like a day period.
		if !(period == PeriodAll && interval == IntervalHour && params.Interval == "") {
			return ResolvedPeriod{}, err
		}
	}

	return ResolvedPeriod{Period: period, Range: rng, Interval: interval}, nil
}

// allTimeInterval picks a grouping for the open-ended "all" period by span:
// months for multi-month history, days for multi-day history, hours for a
// site that started today.
func allTimeInterval(rng DateRange) Interval {
	switch {
	case MonthsApart(rng.Start, rng.End) > 0:
		return IntervalMonth
	case rng.Days() > 1:
		return IntervalDate
	default:
		return IntervalHour
	}
}
