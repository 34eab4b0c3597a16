package history

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/carbon-footprint/internal/emissions"
)

// Persisted column names
const (
	ColRecordID       = "record_id"
	ColTimestamp      = "timestamp"
	ColCarKm          = "car_km"
	ColBusKm          = "bus_km"
	ColTrainKm        = "train_km"
	ColElectricityKWh = "electricity_kwh"
	ColMeatMeals      = "meat_meals"
	ColVegMeals       = "veg_meals"
	ColVeganMeals     = "vegan_meals"
	ColTotalEmissions = "total_emissions"
)

// FeatureColumns are the seven activity columns, in persisted order
var FeatureColumns = []string{
	ColCarKm,
	ColBusKm,
	ColTrainKm,
	ColElectricityKWh,
	ColMeatMeals,
	ColVegMeals,
	ColVeganMeals,
}

// NumericColumns are every persisted column except the timestamp
var NumericColumns = append(append([]string{}, FeatureColumns...), ColTotalEmissions)

// Record is one stored submission. A NaN value marks a missing entry,
// which only occurs in rows read back from external storage.
type Record struct {
	ID             uuid.UUID `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	CarKm          float64   `json:"car_km"`
	BusKm          float64   `json:"bus_km"`
	TrainKm        float64   `json:"train_km"`
	ElectricityKWh float64   `json:"electricity_kwh"`
	MeatMeals      float64   `json:"meat_meals"`
	VegMeals       float64   `json:"veg_meals"`
	VeganMeals     float64   `json:"vegan_meals"`
	TotalEmissions float64   `json:"total_emissions"`
}

// NewRecord builds the record for a validated submission
func NewRecord(v emissions.ValidatedInput, total float64, ts time.Time) Record {
	return Record{
		ID:             uuid.New(),
		Timestamp:      ts,
		CarKm:          v.CarKm,
		BusKm:          v.BusKm,
		TrainKm:        v.TrainKm,
		ElectricityKWh: v.Electricity,
		MeatMeals:      v.MeatMeals,
		VegMeals:       v.VegMeals,
		VeganMeals:     v.VeganMeals,
		TotalEmissions: total,
	}
}

// Value returns a numeric column of the record
func (r Record) Value(column string) float64 {
	switch column {
	case ColCarKm:
		return r.CarKm
	case ColBusKm:
		return r.BusKm
	case ColTrainKm:
		return r.TrainKm
	case ColElectricityKWh:
		return r.ElectricityKWh
	case ColMeatMeals:
		return r.MeatMeals
	case ColVegMeals:
		return r.VegMeals
	case ColVeganMeals:
		return r.VeganMeals
	case ColTotalEmissions:
		return r.TotalEmissions
	default:
		return math.NaN()
	}
}

func (r *Record) setValue(column string, value float64) {
	switch column {
	case ColCarKm:
		r.CarKm = value
	case ColBusKm:
		r.BusKm = value
	case ColTrainKm:
		r.TrainKm = value
	case ColElectricityKWh:
		r.ElectricityKWh = value
	case ColMeatMeals:
		r.MeatMeals = value
	case ColVegMeals:
		r.VegMeals = value
	case ColVeganMeals:
		r.VeganMeals = value
	case ColTotalEmissions:
		r.TotalEmissions = value
	}
}

// Store is an append-only log of records
type Store interface {
	// Append adds rec after every existing record
	Append(ctx context.Context, rec Record) error
	// All returns every record in insertion order
	All(ctx context.Context) ([]Record, error)
}

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append adds a record
func (m *MemoryStore) Append(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// All returns a copy of the stored records
func (m *MemoryStore) All(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

// Len returns the number of stored records
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
