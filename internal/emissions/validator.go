package emissions

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Raw input field names
const (
	FieldCarKm       = "car_km"
	FieldBusKm       = "bus_km"
	FieldTrainKm     = "train_km"
	FieldElectricity = "electricity"
	FieldMeatMeals   = "meat_meals"
	FieldVegMeals    = "veg_meals"
	FieldVeganMeals  = "vegan_meals"
)

// Fields lists the seven required input fields in display order
var Fields = []string{
	FieldCarKm,
	FieldBusKm,
	FieldTrainKm,
	FieldElectricity,
	FieldMeatMeals,
	FieldVegMeals,
	FieldVeganMeals,
}

// RawInput is untrusted user input keyed by field name
type RawInput map[string]any

// ValidatedInput holds the seven activity values, all non-negative
type ValidatedInput struct {
	CarKm       float64 `json:"car_km"`
	BusKm       float64 `json:"bus_km"`
	TrainKm     float64 `json:"train_km"`
	Electricity float64 `json:"electricity"`
	MeatMeals   float64 `json:"meat_meals"`
	VegMeals    float64 `json:"veg_meals"`
	VeganMeals  float64 `json:"vegan_meals"`
}

// Get returns the value for a field name
func (v ValidatedInput) Get(field string) (float64, bool) {
	switch field {
	case FieldCarKm:
		return v.CarKm, true
	case FieldBusKm:
		return v.BusKm, true
	case FieldTrainKm:
		return v.TrainKm, true
	case FieldElectricity:
		return v.Electricity, true
	case FieldMeatMeals:
		return v.MeatMeals, true
	case FieldVegMeals:
		return v.VegMeals, true
	case FieldVeganMeals:
		return v.VeganMeals, true
	default:
		return 0, false
	}
}

func (v *ValidatedInput) set(field string, value float64) {
	switch field {
	case FieldCarKm:
		v.CarKm = value
	case FieldBusKm:
		v.BusKm = value
	case FieldTrainKm:
		v.TrainKm = value
	case FieldElectricity:
		v.Electricity = value
	case FieldMeatMeals:
		v.MeatMeals = value
	case FieldVegMeals:
		v.VegMeals = value
	case FieldVeganMeals:
		v.VeganMeals = value
	}
}

// Raw converts v back to a RawInput
func (v ValidatedInput) Raw() RawInput {
	raw := make(RawInput, len(Fields))
	for _, f := range Fields {
		raw[f], _ = v.Get(f)
	}
	return raw
}

// Reason explains why a field was replaced with zero
type Reason string

const (
	ReasonMissing    Reason = "missing"
	ReasonNotNumeric Reason = "not_numeric"
	ReasonNotFinite  Reason = "not_finite"
	ReasonNegative   Reason = "negative"
)

// Correction records one field that was defaulted to zero
type Correction struct {
	Field  string `json:"field"`
	Value  any    `json:"value"`
	Reason Reason `json:"reason"`
}

// Diagnostics reports which fields Validate corrected
type Diagnostics struct {
	Corrections []Correction `json:"corrections,omitempty"`
}

// Clean reports whether every field was accepted as given
func (d Diagnostics) Clean() bool {
	return len(d.Corrections) == 0
}

// Defaulted returns the names of the corrected fields
func (d Diagnostics) Defaulted() []string {
	names := make([]string, 0, len(d.Corrections))
	for _, c := range d.Corrections {
		names = append(names, c.Field)
	}
	return names
}

// Validate coerces each required field to a non-negative float. Fields
// that are absent, non-numeric, non-finite or negative become 0 and are
// listed in the returned Diagnostics; Validate itself never fails.
// Keys outside Fields are ignored.
func Validate(raw RawInput) (ValidatedInput, Diagnostics) {
	var (
		valid ValidatedInput
		diag  Diagnostics
	)

	for _, field := range Fields {
		value, ok := raw[field]
		if !ok || value == nil {
			diag.Corrections = append(diag.Corrections, Correction{Field: field, Value: value, Reason: ReasonMissing})
			continue
		}

		f, ok := toFloat(value)
		switch {
		case !ok:
			diag.Corrections = append(diag.Corrections, Correction{Field: field, Value: value, Reason: ReasonNotNumeric})
		case math.IsNaN(f) || math.IsInf(f, 0):
			diag.Corrections = append(diag.Corrections, Correction{Field: field, Value: value, Reason: ReasonNotFinite})
		case f < 0:
			diag.Corrections = append(diag.Corrections, Correction{Field: field, Value: value, Reason: ReasonNegative})
		default:
			valid.set(field, f)
		}
	}

	return valid, diag
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
