package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of event on the emissions topic
type EventType string

const (
	EventEmissionsRecorded EventType = "emissions_recorded"
)

// BaseEvent is the common structure for all events
type BaseEvent struct {
	Type EventType `json:"type"`
}

// Inputs are the validated activity values behind a submission
type Inputs struct {
	CarKm          float64 `json:"car_km"`
	BusKm          float64 `json:"bus_km"`
	TrainKm        float64 `json:"train_km"`
	ElectricityKWh float64 `json:"electricity_kwh"`
	MeatMeals      float64 `json:"meat_meals"`
	VegMeals       float64 `json:"veg_meals"`
	VeganMeals     float64 `json:"vegan_meals"`
}

// EmissionsEvent is published once per accepted submission
type EmissionsEvent struct {
	Type          EventType `json:"type"`
	RecordID      uuid.UUID `json:"record_id"`
	RecordedAt    time.Time `json:"recorded_at"`
	Inputs        Inputs    `json:"inputs"`
	Transport     float64   `json:"transport"`
	Energy        float64   `json:"energy"`
	Diet          float64   `json:"diet"`
	Total         float64   `json:"total"`
	GridIntensity float64   `json:"grid_intensity"`
}

// EncodeEmissionsEvent encodes an EmissionsEvent to JSON
func EncodeEmissionsEvent(ev *EmissionsEvent) ([]byte, error) {
	if ev.Type == "" {
		ev.Type = EventEmissionsRecorded
	}
	return json.Marshal(ev)
}

// DecodeEmissionsEvent decodes and validates an EmissionsEvent
func DecodeEmissionsEvent(data []byte) (*EmissionsEvent, error) {
	var base BaseEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if base.Type != EventEmissionsRecorded {
		return nil, fmt.Errorf("unknown event type: %q", base.Type)
	}

	var ev EmissionsEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("invalid emissions event: %w", err)
	}
	if err := validateEmissions(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func validateEmissions(ev *EmissionsEvent) error {
	if ev.RecordID == uuid.Nil {
		return fmt.Errorf("record_id is required")
	}
	if ev.RecordedAt.IsZero() {
		return fmt.Errorf("recorded_at is required")
	}
	return nil
}
