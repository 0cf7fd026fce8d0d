package reports

import (
	"strconv"

	"statlens/internal/store"
)

// CSV shaping: each report type exports a fixed header list, and rows are
// rendered by ordered lookup against it. Fields outside the header list are
// never exported, even when present on the enriched rows.

// CSVDocument is a header row plus data rows, ready for delimited encoding.
type CSVDocument struct {
	Headers []string
	Rows    [][]string
}

// BreakdownCSV renders a breakdown report for delimited export. Under a goal
// filter the visitors column exports as "conversions" and the conversion
// rate joins the header list.
func BreakdownCSV(result *BreakdownResult, metrics []store.Metric, goalActive bool) CSVDocument {
	if len(metrics) == 0 {
		metrics = []store.Metric{store.MetricVisitors}
	}

	headers := []string{DimensionShortName(result.Dimension)}
	for _, m := range metrics {
		name := string(m)
		if goalActive && m == store.MetricVisitors {
			name = "conversions"
		}
		headers = append(headers, name)
	}
	if goalActive {
		headers = append(headers, "conversion_rate")
	}

	rows := make([][]string, 0, len(result.Results))
	for _, row := range result.Results {
		record := []string{row.Value}
		for _, m := range metrics {
			record = append(record, formatCSVNumber(row.Metrics[m]))
		}
		if goalActive {
			rate := 0.0
			if row.ConversionRate != nil {
				rate = *row.ConversionRate
			}
			record = append(record, strconv.FormatFloat(rate, 'f', 1, 64))
		}
		rows = append(rows, record)
	}

	return CSVDocument{Headers: headers, Rows: rows}
}

// TimeseriesCSV renders the main-graph series as date,value pairs.
func TimeseriesCSV(result *TimeseriesResult) CSVDocument {
	headers := []string{"date", string(result.Metric)}

	rows := make([][]string, 0, len(result.Labels))
	for i, label := range result.Labels {
		if label == BlankLabel {
			continue
		}
		rows = append(rows, []string{label, formatCSVNumber(result.Plot[i])})
	}
	return CSVDocument{Headers: headers, Rows: rows}
}

// TopStatsCSV renders the headline numbers as name,value pairs.
func TopStatsCSV(result *TopStatsResult) CSVDocument {
	headers := []string{"name", "value"}

	rows := make([][]string, 0, len(result.TopStats))
	for _, stat := range result.TopStats {
		rows = append(rows, []string{stat.Name, formatCSVNumber(stat.Value)})
	}
	return CSVDocument{Headers: headers, Rows: rows}
}

// formatCSVNumber renders whole values without a decimal part and fractional
// ones with minimal digits.
func formatCSVNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
