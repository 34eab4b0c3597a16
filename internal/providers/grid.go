package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// GridIntensitySource returns electricity carbon intensity in kg CO2 per kWh
type GridIntensitySource interface {
	GridIntensity(ctx context.Context) (float64, error)
}

// AirQualitySource returns local air quality data as reported by the provider
type AirQualitySource interface {
	AirQuality(ctx context.Context) (map[string]any, error)
}

// CarbonInterfaceClient fetches live grid intensity for a region
type CarbonInterfaceClient struct {
	http    *HTTPClient
	baseURL string
	apiKey  string
	country string
	region  string
}

// NewCarbonInterfaceClient creates a grid intensity client
func NewCarbonInterfaceClient(h *HTTPClient, baseURL, apiKey, country, region string) *CarbonInterfaceClient {
	return &CarbonInterfaceClient{
		http:    h,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		country: country,
		region:  region,
	}
}

type gridIntensityResponse struct {
	CarbonIntensity *float64 `json:"carbon_intensity"` // gCO2/kWh
}

// GridIntensity returns the regional intensity converted to kg CO2 per kWh
func (c *CarbonInterfaceClient) GridIntensity(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("country", c.country)
	q.Set("region", c.region)

	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
		"Content-Type":  "application/json",
	}

	var resp gridIntensityResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/grid_intensity?"+q.Encode(), headers, &resp); err != nil {
		return 0, fmt.Errorf("failed to fetch grid intensity: %w", err)
	}
	if resp.CarbonIntensity == nil || *resp.CarbonIntensity <= 0 {
		return 0, fmt.Errorf("%w: no carbon intensity for %s/%s", ErrBadResponse, c.country, c.region)
	}
	return *resp.CarbonIntensity / 1000, nil
}

// AirNowClient fetches air quality for a coordinate
type AirNowClient struct {
	http      *HTTPClient
	baseURL   string
	apiKey    string
	latitude  float64
	longitude float64
}

// NewAirNowClient creates an air quality client
func NewAirNowClient(h *HTTPClient, baseURL, apiKey string, latitude, longitude float64) *AirNowClient {
	return &AirNowClient{
		http:      h,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		latitude:  latitude,
		longitude: longitude,
	}
}

// AirQuality returns the provider payload unchanged
func (a *AirNowClient) AirQuality(ctx context.Context) (map[string]any, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%g", a.latitude))
	q.Set("longitude", fmt.Sprintf("%g", a.longitude))
	q.Set("api_key", a.apiKey)

	var resp map[string]any
	if err := a.http.GetJSON(ctx, a.baseURL+"/airnow?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch air quality: %w", err)
	}
	return resp, nil
}
