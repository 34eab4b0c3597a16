// Package influxdb exports emissions events as time series points.
package influxdb

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/smukkama/carbon-footprint/internal/protocol"
	"github.com/smukkama/carbon-footprint/pkg/config"
)

// Measurement is the InfluxDB measurement emissions are written to
const Measurement = "emissions"

// Client writes emissions events to an InfluxDB v2 bucket
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewClient creates the client and verifies the server is reachable
func NewClient(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	return &Client{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// WriteEvents writes one point per event in a single request
func (c *Client) WriteEvents(ctx context.Context, events []*protocol.EmissionsEvent) error {
	points := make([]*write.Point, 0, len(events))
	for _, ev := range events {
		points = append(points, EventPoint(ev))
	}
	if err := c.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}
	return nil
}

// Close releases the client's resources
func (c *Client) Close() {
	c.client.Close()
}

// EventPoint converts an event to a point tagged with its largest category
func EventPoint(ev *protocol.EmissionsEvent) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{
			"dominant": dominantCategory(ev),
		},
		map[string]interface{}{
			"transport":       ev.Transport,
			"energy":          ev.Energy,
			"diet":            ev.Diet,
			"total":           ev.Total,
			"grid_intensity":  ev.GridIntensity,
			"car_km":          ev.Inputs.CarKm,
			"bus_km":          ev.Inputs.BusKm,
			"train_km":        ev.Inputs.TrainKm,
			"electricity_kwh": ev.Inputs.ElectricityKWh,
			"meat_meals":      ev.Inputs.MeatMeals,
			"veg_meals":       ev.Inputs.VegMeals,
			"vegan_meals":     ev.Inputs.VeganMeals,
		},
		ev.RecordedAt,
	)
}

func dominantCategory(ev *protocol.EmissionsEvent) string {
	name, max := "none", 0.0
	for _, c := range []struct {
		name  string
		value float64
	}{{"transport", ev.Transport}, {"energy", ev.Energy}, {"diet", ev.Diet}} {
		if c.value > max {
			name, max = c.name, c.value
		}
	}
	return name
}
