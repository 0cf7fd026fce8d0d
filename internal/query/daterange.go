package query

import (
	"fmt"
	"time"
)

// Civil dates are carried as midnight-UTC instants so that a "date" compares
// and formats identically regardless of the site timezone it was derived in.

// Civil collapses an instant to the civil date it falls on, dropping the
// original location.
func Civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current civil date in the given location.
func Today(now time.Time, loc *time.Location) time.Time {
	return Civil(now.In(loc))
}

// ParseDate parses a "2006-01-02" date string into a civil date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, &ValidationError{Reason: fmt.Sprintf("invalid date %q", s)}
	}
	return t, nil
}

func StartOfMonth(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func EndOfMonth(d time.Time) time.Time {
	return StartOfMonth(d).AddDate(0, 1, -1)
}

// StartOfWeek snaps a date to the Monday beginning its ISO week.
func StartOfWeek(d time.Time) time.Time {
	weekday := int(d.Weekday())
	if weekday == 0 { // Sunday
		weekday = 7
	}
	return d.AddDate(0, 0, -(weekday - 1))
}

// MonthsApart counts whole calendar months between two dates.
func MonthsApart(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// DateRange is an inclusive [Start, End] span of civil dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days the range covers, inclusive.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Shift moves both bounds by the given number of days.
func (r DateRange) Shift(days int) DateRange {
	return DateRange{Start: r.Start.AddDate(0, 0, days), End: r.End.AddDate(0, 0, days)}
}

// ShiftYears moves both bounds back or forward by whole calendar years.
func (r DateRange) ShiftYears(years int) DateRange {
	return DateRange{Start: shiftYears(r.Start, years), End: shiftYears(r.End, years)}
}

// shiftYears clamps a leap day to the target month's last day instead of
// letting date normalization spill it into the next month.
func shiftYears(d time.Time, years int) time.Time {
	shifted := d.AddDate(years, 0, 0)
	if shifted.Month() != d.Month() {
		shifted = EndOfMonth(shifted.AddDate(0, -1, 0))
	}
	return shifted
}

// Contains reports whether the civil date d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r DateRange) String() string {
	return r.Start.Format("2006-01-02") + ".." + r.End.Format("2006-01-02")
}
