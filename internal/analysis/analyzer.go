// Package analysis derives trend statistics and a one-step backtest
// prediction from the accumulated emissions history.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/smukkama/carbon-footprint/internal/cleaning"
	"github.com/smukkama/carbon-footprint/internal/forest"
	"github.com/smukkama/carbon-footprint/internal/history"
)

// ErrMalformedColumn is returned when a column needed for analysis holds
// values that cannot be used, even after cleaning.
var ErrMalformedColumn = errors.New("analysis: malformed column")

// Options configures Analyze
type Options struct {
	MinRecords           int
	MinRegressionRecords int
	Cleaning             cleaning.Options
	Forest               forest.Params
}

// DefaultOptions returns the default analysis options
func DefaultOptions() Options {
	return Options{
		MinRecords:           2,
		MinRegressionRecords: 5,
		Cleaning:             cleaning.DefaultOptions(),
		Forest:               forest.DefaultParams(),
	}
}

// WithDefaults fills every unset field with its default. A zero
// Forest.Trees marks the forest parameters as unset, except Seed, MaxDepth
// and MaxFeatures which keep their values.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.MinRecords == 0 {
		o.MinRecords = def.MinRecords
	}
	if o.MinRegressionRecords == 0 {
		o.MinRegressionRecords = def.MinRegressionRecords
	}
	if o.Cleaning.ZThreshold == 0 {
		o.Cleaning.ZThreshold = def.Cleaning.ZThreshold
	}
	if o.Forest.Trees == 0 {
		o.Forest.Trees = def.Forest.Trees
		o.Forest.Bootstrap = def.Forest.Bootstrap
	}
	if o.Forest.MinSamplesSplit == 0 {
		o.Forest.MinSamplesSplit = def.Forest.MinSamplesSplit
	}
	if o.Forest.MinSamplesLeaf == 0 {
		o.Forest.MinSamplesLeaf = def.Forest.MinSamplesLeaf
	}
	return o
}

// Result is the outcome of an analysis. NextPrediction and
// FeatureImportance are only set when enough history exists.
type Result struct {
	Records           int                `json:"records"`
	RecentEmissions   float64            `json:"recent_emissions"`
	AvgEmissions      float64            `json:"avg_emissions"`
	Trend             float64            `json:"trend"`
	NextPrediction    *float64           `json:"next_prediction,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	Cleaning          cleaning.Report    `json:"cleaning"`
}

// HasPrediction reports whether the regression step ran
func (r *Result) HasPrediction() bool {
	return r.NextPrediction != nil
}

// Analyze cleans t and computes recent, average and trend statistics.
// It returns nil without error when there are fewer than
// opts.MinRecords rows.
func Analyze(t *history.Table, opts Options) (*Result, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Len() < opts.MinRecords || t.Len() < 2 {
		return nil, nil
	}
	if !t.Has(history.ColTotalEmissions) {
		return nil, fmt.Errorf("%w: %s not present", ErrMalformedColumn, history.ColTotalEmissions)
	}

	cleaned, report := cleaning.Clean(t, opts.Cleaning)

	totals, _ := cleaned.Column(history.ColTotalEmissions)
	if err := checkFinite(history.ColTotalEmissions, totals); err != nil {
		return nil, err
	}

	recent := totals[len(totals)-1]
	avg := stat.Mean(totals, nil)
	result := &Result{
		Records:         cleaned.Len(),
		RecentEmissions: recent,
		AvgEmissions:    avg,
		Trend:           recent - avg,
		Cleaning:        report,
	}

	if cleaned.Len() < opts.MinRegressionRecords {
		return result, nil
	}

	prediction, importance, err := predict(cleaned, opts.Forest)
	if err != nil {
		return nil, err
	}
	if importance != nil {
		result.NextPrediction = &prediction
		result.FeatureImportance = importance
	}
	return result, nil
}

// predict trains on every row but the last and predicts the held-out
// last row from its features.
func predict(t *history.Table, params forest.Params) (float64, map[string]float64, error) {
	var features []string
	for _, name := range history.FeatureColumns {
		if t.Has(name) {
			features = append(features, name)
		}
	}
	if len(features) == 0 {
		return 0, nil, nil
	}

	columns := make([][]float64, len(features))
	for j, name := range features {
		values, _ := t.Column(name)
		if err := checkFinite(name, values); err != nil {
			return 0, nil, err
		}
		columns[j] = values
	}
	labels, _ := t.Column(history.ColTotalEmissions)

	n := t.Len()
	X := make([][]float64, n)
	for i := range X {
		X[i] = make([]float64, len(features))
		for j := range features {
			X[i][j] = columns[j][i]
		}
	}

	model, err := forest.Fit(X[:n-1], labels[:n-1], params)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to fit prediction model: %w", err)
	}

	prediction, err := model.Predict(X[n-1])
	if err != nil {
		return 0, nil, fmt.Errorf("failed to predict: %w", err)
	}

	importances := model.FeatureImportances()
	importance := make(map[string]float64, len(features))
	for j, name := range features {
		importance[name] = importances[j]
	}
	return prediction, importance, nil
}

func checkFinite(name string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s has non-numeric value at row %d", ErrMalformedColumn, name, i)
		}
	}
	return nil
}
