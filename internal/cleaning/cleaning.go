// Package cleaning prepares a history table for analysis: missing values
// are imputed with the column mean, then z-score outliers are replaced
// with the column median. Columns are treated independently.
package cleaning

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/smukkama/carbon-footprint/internal/history"
)

// DefaultZThreshold is the absolute z-score above which a value is an outlier
const DefaultZThreshold = 3.0

// Options configures the cleaning pass
type Options struct {
	ZThreshold float64
}

// DefaultOptions returns the default cleaning options
func DefaultOptions() Options {
	return Options{ZThreshold: DefaultZThreshold}
}

// Report counts the cells changed per column
type Report struct {
	Imputed    map[string]int `json:"imputed,omitempty"`
	Suppressed map[string]int `json:"suppressed,omitempty"`
}

// Clean returns a cleaned copy of t. Imputation runs before outlier
// suppression since z-scores need complete columns. A column with no
// values at all stays NaN.
func Clean(t *history.Table, opts Options) (*history.Table, Report) {
	out := t.Clone()
	report := Report{
		Imputed:    make(map[string]int),
		Suppressed: make(map[string]int),
	}

	for _, name := range out.Columns() {
		values, _ := out.Column(name)
		if n := ImputeMissing(values); n > 0 {
			report.Imputed[name] = n
		}
		if n := SuppressOutliers(values, opts.ZThreshold); n > 0 {
			report.Suppressed[name] = n
		}
	}

	return out, report
}

// ImputeMissing replaces NaN entries in place with the mean of the
// remaining entries and returns how many were replaced. When every entry
// is missing the mean is undefined and the column is left as NaN.
func ImputeMissing(values []float64) int {
	present := presentValues(values)
	if len(present) == len(values) {
		return 0
	}

	mean := math.NaN()
	if len(present) > 0 {
		mean = stat.Mean(present, nil)
	}

	replaced := 0
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = mean
			replaced++
		}
	}
	if len(present) == 0 {
		return 0
	}
	return replaced
}

// SuppressOutliers replaces, in place, values whose absolute population
// z-score exceeds threshold with the median of the values that were not
// flagged, and returns how many were replaced. Columns with fewer than two
// values, zero variance or remaining NaN entries are left untouched.
func SuppressOutliers(values []float64, threshold float64) int {
	if len(values) < 2 {
		return 0
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}

	flagged := make([]bool, len(values))
	kept := make([]float64, 0, len(values))
	count := 0
	for i, v := range values {
		if math.Abs((v-mean)/std) > threshold {
			flagged[i] = true
			count++
			continue
		}
		kept = append(kept, v)
	}
	if count == 0 || len(kept) == 0 {
		return 0
	}

	replacement := Median(kept)
	for i := range values {
		if flagged[i] {
			values[i] = replacement
		}
	}
	return count
}

// Median returns the median of values, averaging the middle pair for an
// even count. It returns NaN for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func presentValues(values []float64) []float64 {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	return present
}
