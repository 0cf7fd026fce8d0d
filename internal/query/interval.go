package query

import "time"

// Label formats used for time buckets. Dates and week/month starts use the
// plain date form; sub-day buckets carry a time component.
const (
	labelDate   = "2006-01-02"
	labelHour   = "2006-01-02 15:00:00"
	labelMinute = "2006-01-02 15:04:00"
)

// realtimeWindow is the rolling span a realtime query is narrowed to at
// execution time.
const realtimeWindow = 30 * time.Minute

// Labels produces the ordered bucket labels for the query's interval across
// its date range. Minute labels cover the rolling realtime window ending at
// now instead, since a realtime range is only nominally "today".
func (q Query) Labels(now time.Time) []string {
	var labels []string

	switch q.Interval {
	case IntervalMinute:
		cur := now.In(q.Location()).Add(-realtimeWindow).Truncate(time.Minute)
		for i := 0; i <= int(realtimeWindow/time.Minute); i++ {
			labels = append(labels, cur.Format(labelMinute))
			cur = cur.Add(time.Minute)
		}
	case IntervalHour:
		for day := q.Range.Start; !day.After(q.Range.End); day = day.AddDate(0, 0, 1) {
			for h := 0; h < 24; h++ {
				labels = append(labels, day.Add(time.Duration(h)*time.Hour).Format(labelHour))
			}
		}
	case IntervalDate:
		for day := q.Range.Start; !day.After(q.Range.End); day = day.AddDate(0, 0, 1) {
			labels = append(labels, day.Format(labelDate))
		}
	case IntervalWeek:
		// The first bucket starts at the range start even mid-week; later
		// buckets snap to Mondays.
		labels = append(labels, q.Range.Start.Format(labelDate))
		for cur := StartOfWeek(q.Range.Start).AddDate(0, 0, 7); !cur.After(q.Range.End); cur = cur.AddDate(0, 0, 7) {
			labels = append(labels, cur.Format(labelDate))
		}
	case IntervalMonth:
		for cur := StartOfMonth(q.Range.Start); !cur.After(q.Range.End); cur = cur.AddDate(0, 1, 0) {
			labels = append(labels, cur.Format(labelDate))
		}
	}

	return labels
}

// CurrentLabel formats "now" in the site timezone exactly as the bucket
// labels are formatted, so it can be located in a label sequence. Week
// buckets snap to the week start only when that start falls inside the range.
func (q Query) CurrentLabel(now time.Time) string {
	local := now.In(q.Location())
	today := Civil(local)

	switch q.Interval {
	case IntervalMinute:
		return local.Truncate(time.Minute).Format(labelMinute)
	case IntervalHour:
		return local.Format(labelHour)
	case IntervalWeek:
		weekStart := StartOfWeek(today)
		if q.Range.Contains(weekStart) {
			return weekStart.Format(labelDate)
		}
		return today.Format(labelDate)
	case IntervalMonth:
		return StartOfMonth(today).Format(labelDate)
	default:
		return today.Format(labelDate)
	}
}

// CurrentLabelIndex locates the bucket containing now within labels. The
// second return is false when now falls outside the produced sequence.
func (q Query) CurrentLabelIndex(labels []string, now time.Time) (int, bool) {
	want := q.CurrentLabel(now)
	for i, l := range labels {
		if l == want {
			return i, true
		}
	}
	return 0, false
}

// FullIntervalFlags reports, per label, whether the bucket's whole calendar
// span falls inside the query range. Only week and month buckets can be
// partial; finer intervals return nil and are treated as full.
func (q Query) FullIntervalFlags(labels []string) map[string]bool {
	switch q.Interval {
	case IntervalWeek, IntervalMonth:
	default:
		return nil
	}

	flags := make(map[string]bool, len(labels))
	for _, l := range labels {
		start, err := ParseDate(l)
		if err != nil {
			flags[l] = false
			continue
		}
		var end time.Time
		if q.Interval == IntervalWeek {
			end = start.AddDate(0, 0, 6)
			flags[l] = start.Equal(StartOfWeek(start)) && q.Range.Contains(start) && q.Range.Contains(end)
		} else {
			end = EndOfMonth(start)
			flags[l] = start.Equal(StartOfMonth(start)) && q.Range.Contains(start) && q.Range.Contains(end)
		}
	}
	return flags
}

// RealtimeBounds returns the rolling window a realtime query executes over.
func (q Query) RealtimeBounds(now time.Time) (time.Time, time.Time) {
	return now.Add(-realtimeWindow), now
}
