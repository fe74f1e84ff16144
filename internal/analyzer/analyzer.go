// Package analyzer derives chart-ready visualizations, summary metrics and
// textual insights from the shape of a ResultSet. Everything here is
// deterministic: no network call is made, so a failing completion service
// can never take the analysis down with it.
package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/queryscope/queryscope/internal/database"
	"github.com/queryscope/queryscope/internal/qerr"
)

// Options tunes the analysis heuristics. The label/value column choices are
// overridable because the first-categorical/first-numeric default is only a
// reasonable guess for multi-numeric results.
type Options struct {
	MaxChartRows      int    // above this, visualizations are suppressed
	PieMaxSlices      int    // pie labels kept, truncated not re-aggregated
	PieLabelBound     int    // max label cardinality for a pie to be offered
	MaxVisualizations int    // distinct (label, value) pairs proposed
	LabelColumn       string // force label axis; empty = first categorical
	ValueColumn       string // force first value axis; empty = first numeric
}

// DefaultOptions returns the stock heuristics.
func DefaultOptions() Options {
	return Options{
		MaxChartRows:      50,
		PieMaxSlices:      10,
		PieLabelBound:     8,
		MaxVisualizations: 3,
	}
}

// VisualizationSpec is one proposed chart. Labels and values are always the
// same length.
type VisualizationSpec struct {
	ChartType string    `json:"chart_type"`
	Title     string    `json:"title"`
	Labels    []string  `json:"labels"`
	Values    []float64 `json:"values"`
}

// Metric is one headline number derived from a numeric column.
type Metric struct {
	Title string `json:"title"`
	Value any    `json:"value"`
}

// ChartSuggestion describes a proposed chart for callers that render their
// own visuals.
type ChartSuggestion struct {
	ChartType   string `json:"chart_type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Report aggregates everything the analyzer produces for one ResultSet.
type Report struct {
	Metrics          []Metric            `json:"metrics"`
	Visualizations   []VisualizationSpec `json:"visualizations"`
	Insights         []string            `json:"insights"`
	ChartSuggestions []ChartSuggestion   `json:"chart_suggestions"`
}

// EmptyReport returns a report with empty (non-nil) collections, used both
// for empty result sets and for the degraded data-only response.
func EmptyReport() *Report {
	return &Report{
		Metrics:          []Metric{},
		Visualizations:   []VisualizationSpec{},
		Insights:         []string{},
		ChartSuggestions: []ChartSuggestion{},
	}
}

// Analyze inspects the result set and produces metrics, visualizations,
// insights and chart suggestions. An empty result set yields empty
// collections, not an error.
func Analyze(rs *database.ResultSet, opts Options) (*Report, error) {
	if rs == nil {
		return nil, qerr.New(qerr.KindAnalysis, "no result set to analyze")
	}
	report := EmptyReport()
	if len(rs.Rows) == 0 {
		return report, nil
	}

	profiles := profileColumns(rs)
	labelIdx := chooseLabelColumn(profiles, opts)
	valueIdxs := chooseValueColumns(profiles, labelIdx, opts)

	report.Metrics = buildMetrics(profiles, valueIdxs, len(rs.Rows))
	report.Insights = buildInsights(profiles, labelIdx, valueIdxs, len(rs.Rows))

	// Charts beyond the row cap are assumed unreadable; the table and
	// metrics still carry the answer.
	if opts.MaxChartRows > 0 && len(rs.Rows) > opts.MaxChartRows {
		return report, nil
	}

	if labelIdx >= 0 {
		for _, vi := range valueIdxs {
			if len(report.Visualizations) >= opts.MaxVisualizations {
				break
			}
			spec, ok := buildVisualization(rs, profiles, labelIdx, vi, opts)
			if !ok {
				continue
			}
			report.Visualizations = append(report.Visualizations, spec)
			report.ChartSuggestions = append(report.ChartSuggestions, ChartSuggestion{
				ChartType:   spec.ChartType,
				Title:       spec.Title,
				Description: fmt.Sprintf("%s chart of %s grouped by %s", spec.ChartType, humanize(profiles[vi].name), humanize(profiles[labelIdx].name)),
			})
		}
	}

	return report, nil
}

// columnProfile summarizes one column across all rows.
type columnProfile struct {
	name     string
	numeric  bool
	timeLike bool
	distinct int
	nums     []float64      // non-null numeric values in row order
	counts   map[string]int // display value -> occurrences
	nonNull  int
}

var timeNameHint = regexp.MustCompile(`(?i)(^|_)(date|month|year|day|time|week|quarter|period)($|_)`)
var timeValueHint = regexp.MustCompile(`^\d{4}[-/]\d{1,2}([-/]\d{1,2})?`)

func profileColumns(rs *database.ResultSet) []columnProfile {
	profiles := make([]columnProfile, len(rs.Columns))
	for i, name := range rs.Columns {
		p := columnProfile{name: name, counts: make(map[string]int)}
		numCount, timeCount, timeValued := 0, 0, 0
		for _, row := range rs.Rows {
			v := row[name]
			if v.IsNull() {
				continue
			}
			p.nonNull++
			display := v.Display()
			p.counts[display]++
			switch v.Kind {
			case database.ScalarNumber:
				numCount++
				p.nums = append(p.nums, v.Num)
			case database.ScalarTime:
				timeCount++
			case database.ScalarString:
				if timeValueHint.MatchString(display) {
					timeValued++
				}
			}
		}
		p.distinct = len(p.counts)
		p.numeric = p.nonNull > 0 && numCount == p.nonNull
		p.timeLike = (p.nonNull > 0 && (timeCount == p.nonNull || timeValued == p.nonNull)) ||
			timeNameHint.MatchString(name)
		profiles[i] = p
	}
	return profiles
}

// isCategorical reports whether a column works as a label axis: non-numeric
// values, or a numeric column whose cardinality is low relative to the row
// count while another numeric column exists to plot against.
func isCategorical(profiles []columnProfile, idx, rows int) bool {
	p := profiles[idx]
	if !p.numeric {
		return true
	}
	threshold := rows / 5
	if threshold < 2 {
		threshold = 2
	}
	if p.distinct > threshold {
		return false
	}
	for i := range profiles {
		if i != idx && profiles[i].numeric {
			return true
		}
	}
	return false
}

// chooseLabelColumn returns the label axis index: the override if set, else
// the first categorical column by position, else -1.
func chooseLabelColumn(profiles []columnProfile, opts Options) int {
	if opts.LabelColumn != "" {
		for i, p := range profiles {
			if p.name == opts.LabelColumn {
				return i
			}
		}
	}
	rows := 0
	for _, p := range profiles {
		if p.nonNull > rows {
			rows = p.nonNull
		}
	}
	for i := range profiles {
		if isCategorical(profiles, i, rows) {
			return i
		}
	}
	return -1
}

// chooseValueColumns returns numeric column indices in position order,
// excluding the label axis, with the override (if any) first.
func chooseValueColumns(profiles []columnProfile, labelIdx int, opts Options) []int {
	var idxs []int
	for i, p := range profiles {
		if i == labelIdx || !p.numeric {
			continue
		}
		if opts.ValueColumn != "" && p.name == opts.ValueColumn {
			idxs = append([]int{i}, idxs...)
			continue
		}
		idxs = append(idxs, i)
	}
	return idxs
}

func buildVisualization(rs *database.ResultSet, profiles []columnProfile, labelIdx, valueIdx int, opts Options) (VisualizationSpec, bool) {
	labelCol := profiles[labelIdx].name
	valueCol := profiles[valueIdx].name

	var labels []string
	var values []float64
	for _, row := range rs.Rows {
		lv, vv := row[labelCol], row[valueCol]
		if lv.IsNull() || vv.Kind != database.ScalarNumber {
			continue
		}
		labels = append(labels, lv.Display())
		values = append(values, vv.Num)
	}
	if len(labels) == 0 {
		return VisualizationSpec{}, false
	}

	chartType := pickChartType(profiles[labelIdx], values, opts)
	if chartType == "pie" && len(labels) > opts.PieMaxSlices {
		// Truncated in original order, never re-aggregated.
		labels = labels[:opts.PieMaxSlices]
		values = values[:opts.PieMaxSlices]
	}

	return VisualizationSpec{
		ChartType: chartType,
		Title:     fmt.Sprintf("%s by %s", humanize(valueCol), humanize(labelCol)),
		Labels:    labels,
		Values:    values,
	}, true
}

// pickChartType applies the selection heuristic: time-like labels get a
// line, low-cardinality labels whose values form a meaningful whole get a
// pie, everything else a bar.
func pickChartType(label columnProfile, values []float64, opts Options) string {
	if label.timeLike {
		return "line"
	}
	if label.distinct <= opts.PieLabelBound && sumsToWhole(values) {
		return "pie"
	}
	return "bar"
}

// sumsToWhole reports whether the values read as shares of a total: all
// non-negative with at least two non-zero entries.
func sumsToWhole(values []float64) bool {
	nonZero := 0
	for _, v := range values {
		if v < 0 {
			return false
		}
		if v != 0 {
			nonZero++
		}
	}
	return nonZero >= 2
}

var sumNameHint = regexp.MustCompile(`(?i)(^|_)(total|sum|amount|sales|revenue|count|qty|quantity)($|_)`)

func buildMetrics(profiles []columnProfile, valueIdxs []int, rowCount int) []Metric {
	metrics := []Metric{{Title: "Total Records", Value: rowCount}}

	limit := 3
	for _, vi := range valueIdxs {
		if limit == 0 {
			break
		}
		p := profiles[vi]
		if len(p.nums) == 0 {
			continue
		}
		limit--

		if sumNameHint.MatchString(p.name) {
			title := humanize(p.name)
			if !strings.HasPrefix(title, "Total") {
				title = "Total " + title
			}
			metrics = append(metrics, Metric{Title: title, Value: sum(p.nums)})
		} else {
			metrics = append(metrics, Metric{Title: "Average " + humanize(p.name), Value: round2(mean(p.nums))})
		}
	}
	return metrics
}

func buildInsights(profiles []columnProfile, labelIdx int, valueIdxs []int, rowCount int) []string {
	insights := []string{fmt.Sprintf("The query returned %d rows across %d columns.", rowCount, len(profiles))}

	limit := 2
	for _, vi := range valueIdxs {
		if limit == 0 {
			break
		}
		p := profiles[vi]
		if len(p.nums) == 0 {
			continue
		}
		limit--

		lo, hi := minMax(p.nums)
		insights = append(insights, fmt.Sprintf("%s ranges from %s to %s, averaging %s.",
			humanize(p.name), formatNumber(lo), formatNumber(hi), formatNumber(round2(mean(p.nums)))))

		if outlier, ok := findOutlier(p.nums); ok {
			insights = append(insights, fmt.Sprintf("%s contains an outlier: %s is far above the average of %s.",
				humanize(p.name), formatNumber(outlier), formatNumber(round2(mean(p.nums)))))
		}
	}

	// Trend direction only makes sense on a time-ordered label axis.
	if labelIdx >= 0 && profiles[labelIdx].timeLike && len(valueIdxs) > 0 {
		nums := profiles[valueIdxs[0]].nums
		if len(nums) >= 3 {
			first, last := nums[0], nums[len(nums)-1]
			name := humanize(profiles[valueIdxs[0]].name)
			switch {
			case last > first:
				insights = append(insights, fmt.Sprintf("%s trends upward over the period, from %s to %s.", name, formatNumber(first), formatNumber(last)))
			case last < first:
				insights = append(insights, fmt.Sprintf("%s trends downward over the period, from %s to %s.", name, formatNumber(first), formatNumber(last)))
			}
		}
	}

	if labelIdx >= 0 && !profiles[labelIdx].numeric && profiles[labelIdx].distinct > 0 {
		p := profiles[labelIdx]
		if value, n := mostCommon(p.counts); n > 1 {
			insights = append(insights, fmt.Sprintf("The most common %s is %q (%d of %d rows).", humanize(p.name), value, n, rowCount))
		} else {
			insights = append(insights, fmt.Sprintf("%s has %d distinct values across %d rows.", humanize(p.name), p.distinct, rowCount))
		}
	}

	return insights
}

// mostCommon returns the modal value. Ties break lexicographically so the
// insight text is stable across runs.
func mostCommon(counts map[string]int) (string, int) {
	value, best := "", 0
	for v, n := range counts {
		if n > best || (n == best && v < value) {
			value, best = v, n
		}
	}
	return value, best
}

// findOutlier flags a value exceeding the mean by more than three standard
// deviations. Needs enough samples for the deviation to mean anything.
func findOutlier(nums []float64) (float64, bool) {
	if len(nums) < 4 {
		return 0, false
	}
	m := mean(nums)
	sd := stddev(nums, m)
	if sd == 0 {
		return 0, false
	}
	_, hi := minMax(nums)
	if hi > m+3*sd {
		return hi, true
	}
	return 0, false
}

var titleCaser = cases.Title(language.English)

// humanize turns a column name into display text: snake/dot separators to
// spaces, title-cased.
func humanize(column string) string {
	s := strings.NewReplacer("_", " ", ".", " ").Replace(column)
	return titleCaser.String(strings.TrimSpace(s))
}

func sum(nums []float64) float64 {
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total
}

func mean(nums []float64) float64 {
	if len(nums) == 0 {
		return 0
	}
	return sum(nums) / float64(len(nums))
}

func stddev(nums []float64, m float64) float64 {
	if len(nums) < 2 {
		return 0
	}
	var variance float64
	for _, n := range nums {
		variance += (n - m) * (n - m)
	}
	return math.Sqrt(variance / float64(len(nums)))
}

func minMax(nums []float64) (lo, hi float64) {
	lo, hi = nums[0], nums[0]
	for _, n := range nums[1:] {
		if n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	return lo, hi
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprintf("%.2f", f)
}
