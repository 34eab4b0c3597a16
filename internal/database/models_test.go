package database

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/carbon-footprint/internal/history"
)

func TestRowFromRecord_MissingValuesBecomeNull(t *testing.T) {
	rec := history.Record{
		ID:             uuid.New(),
		Timestamp:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		CarKm:          12,
		BusKm:          math.NaN(),
		TotalEmissions: 1.44,
	}

	row := RowFromRecord(rec)
	if row.BusKm != nil {
		t.Errorf("Expected NULL bus_km, got %v", *row.BusKm)
	}
	if row.CarKm == nil || *row.CarKm != 12 {
		t.Errorf("Expected car_km 12, got %v", row.CarKm)
	}

	back := row.Record()
	if back.ID != rec.ID || !back.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("Expected identity to survive, got %+v", back)
	}
	if !math.IsNaN(back.BusKm) {
		t.Errorf("Expected NaN bus_km, got %v", back.BusKm)
	}
	if back.TotalEmissions != 1.44 {
		t.Errorf("Expected total 1.44, got %v", back.TotalEmissions)
	}
}

func TestRowFromRecord_DoesNotAlias(t *testing.T) {
	rec := history.Record{CarKm: 5}
	row := RowFromRecord(rec)
	rec.CarKm = 7
	if *row.CarKm != 5 {
		t.Errorf("Expected row to keep 5, got %v", *row.CarKm)
	}
}
