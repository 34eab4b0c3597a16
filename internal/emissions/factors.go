package emissions

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Emission factor categories
const (
	CategoryCar         = "car"
	CategoryBus         = "bus"
	CategoryTrain       = "train"
	CategoryElectricity = "electricity"
	CategoryMeat        = "meat"
	CategoryVegetarian  = "vegetarian"
	CategoryVegan       = "vegan"
)

// Categories lists every category a factor table may carry
var Categories = []string{
	CategoryCar,
	CategoryBus,
	CategoryTrain,
	CategoryElectricity,
	CategoryMeat,
	CategoryVegetarian,
	CategoryVegan,
}

// defaultFactors holds kg CO2 per unit (km, kWh or meal)
var defaultFactors = map[string]float64{
	CategoryCar:         0.12,
	CategoryBus:         0.089,
	CategoryTrain:       0.041,
	CategoryElectricity: 0.233,
	CategoryMeat:        2.5,
	CategoryVegetarian:  1.0,
	CategoryVegan:       0.5,
}

// Factors maps a category to its kg CO2 per unit coefficient. A Factors
// value may be partial: Lookup falls back to the default table for any
// category it does not carry.
type Factors map[string]float64

// DefaultFactors returns a copy of the static factor table
func DefaultFactors() Factors {
	f := make(Factors, len(defaultFactors))
	for k, v := range defaultFactors {
		f[k] = v
	}
	return f
}

// Lookup returns the coefficient for category, using the default table
// when f omits it.
func (f Factors) Lookup(category string) float64 {
	if v, ok := f[category]; ok {
		return v
	}
	return defaultFactors[category]
}

// Merge overlays overrides onto base key by key. Neither argument is modified.
func Merge(base, overrides Factors) Factors {
	merged := make(Factors, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// LoadFactorsFile reads a YAML mapping of category to coefficient, e.g.
//
//	car: 0.11
//	electricity: 0.2
//
// Categories left out of the file keep their default values at lookup time.
func LoadFactorsFile(path string) (Factors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read factors file: %w", err)
	}
	return ParseFactors(data)
}

// ParseFactors decodes a YAML factor table and checks every entry
func ParseFactors(data []byte) (Factors, error) {
	var raw map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse factors: %w", err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := make(Factors, len(raw))
	for _, k := range keys {
		v := raw[k]
		if _, known := defaultFactors[k]; !known {
			return nil, fmt.Errorf("unknown emission category %q", k)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid factor for %s: %v", k, v)
		}
		f[k] = v
	}
	return f, nil
}
