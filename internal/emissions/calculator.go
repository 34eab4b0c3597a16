package emissions

// DaysPerYear scales a daily total to a yearly estimate
const DaysPerYear = 365

// Breakdown is the emissions estimate for one day of activity, in kg CO2
type Breakdown struct {
	Transport     float64        `json:"transport"`
	Energy        float64        `json:"energy"`
	Diet          float64        `json:"diet"`
	Total         float64        `json:"total"`
	YearlyTotal   float64        `json:"yearly_total"`
	GridIntensity float64        `json:"grid_intensity"`
	AirQuality    map[string]any `json:"air_quality,omitempty"`
}

// Calculate computes the emissions breakdown. gridIntensity (kg CO2 per
// kWh) is used for electricity instead of the factor table; callers pick
// between a live value and factors.Lookup(CategoryElectricity).
func Calculate(v ValidatedInput, factors Factors, gridIntensity float64) Breakdown {
	transport := v.CarKm*factors.Lookup(CategoryCar) +
		v.BusKm*factors.Lookup(CategoryBus) +
		v.TrainKm*factors.Lookup(CategoryTrain)

	energy := v.Electricity * gridIntensity

	diet := v.MeatMeals*factors.Lookup(CategoryMeat) +
		v.VegMeals*factors.Lookup(CategoryVegetarian) +
		v.VeganMeals*factors.Lookup(CategoryVegan)

	total := transport + energy + diet

	return Breakdown{
		Transport:     transport,
		Energy:        energy,
		Diet:          diet,
		Total:         total,
		YearlyTotal:   total * DaysPerYear,
		GridIntensity: gridIntensity,
	}
}
