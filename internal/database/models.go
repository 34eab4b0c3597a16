package database

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/carbon-footprint/internal/history"
)

// HistoryRow is a row of the user_data table. Nil numeric fields are
// missing values.
type HistoryRow struct {
	ID             int64
	RecordID       uuid.UUID
	Timestamp      time.Time
	CarKm          *float64
	BusKm          *float64
	TrainKm        *float64
	ElectricityKWh *float64
	MeatMeals      *float64
	VegMeals       *float64
	VeganMeals     *float64
	TotalEmissions *float64
}

// RowFromRecord converts a record, mapping NaN to NULL
func RowFromRecord(r history.Record) *HistoryRow {
	return &HistoryRow{
		RecordID:       r.ID,
		Timestamp:      r.Timestamp,
		CarKm:          nullable(r.CarKm),
		BusKm:          nullable(r.BusKm),
		TrainKm:        nullable(r.TrainKm),
		ElectricityKWh: nullable(r.ElectricityKWh),
		MeatMeals:      nullable(r.MeatMeals),
		VegMeals:       nullable(r.VegMeals),
		VeganMeals:     nullable(r.VeganMeals),
		TotalEmissions: nullable(r.TotalEmissions),
	}
}

// Record converts the row back, mapping NULL to NaN
func (h *HistoryRow) Record() history.Record {
	return history.Record{
		ID:             h.RecordID,
		Timestamp:      h.Timestamp,
		CarKm:          valueOrNaN(h.CarKm),
		BusKm:          valueOrNaN(h.BusKm),
		TrainKm:        valueOrNaN(h.TrainKm),
		ElectricityKWh: valueOrNaN(h.ElectricityKWh),
		MeatMeals:      valueOrNaN(h.MeatMeals),
		VegMeals:       valueOrNaN(h.VegMeals),
		VeganMeals:     valueOrNaN(h.VeganMeals),
		TotalEmissions: valueOrNaN(h.TotalEmissions),
	}
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
