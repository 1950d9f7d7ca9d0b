package solar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/config"

	"go.uber.org/zap"
)

const (
	openMeteoURL = "https://api.open-meteo.com/v1/forecast"

	maxAttempts = 3
	retryDelay  = 5 * time.Second

	// Wh per 0.01 MJ, open-meteo reports shortwave radiation in MJ/m2
	radiationToWh = 1000.0 / 3.6

	// empirical panel yield factor applied to the irradiance sum
	panelYieldFactor = 0.25
)

// Forecast is the aggregated production outlook over all configured panels.
// Sunrise and sunset are local "YYYY-MM-DDTHH:MM" strings as delivered by the
// API.
type Forecast struct {
	Sunrise         string
	Sunset          string
	DaylightMinutes float64
	CurrentHourW    float64
	CurrentDayWh    float64
	TomorrowDayWh   float64
	PeakPowerKw     float64
}

// Client queries the Open-Meteo forecast API for every enabled panel plane
// and folds the results into one Forecast.
type Client struct {
	baseURL  string
	client   *http.Client
	panels   []config.PanelConfig
	timeZone string
	location *time.Location
	logger   *zap.Logger
}

func NewClient(panels []config.PanelConfig, timeZone string, location *time.Location, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  openMeteoURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		panels:   panels,
		timeZone: timeZone,
		location: location,
		logger:   logger,
	}
}

type openMeteoResponse struct {
	Hourly struct {
		GlobalTiltedIrradiance []*float64 `json:"global_tilted_irradiance"`
	} `json:"hourly"`
	Daily struct {
		Time                  []string  `json:"time"`
		Sunrise               []string  `json:"sunrise"`
		Sunset                []string  `json:"sunset"`
		DaylightDuration      []float64 `json:"daylight_duration"`
		ShortwaveRadiationSum []float64 `json:"shortwave_radiation_sum"`
	} `json:"daily"`
}

// Forecast fetches the two-day production outlook. Panels that fail after
// retries degrade the forecast instead of aborting it.
func (c *Client) Forecast(ctx context.Context, now time.Time) (*Forecast, error) {
	local := now.In(c.location)
	today := local.Format("2006-01-02")
	tomorrow := local.AddDate(0, 0, 1).Format("2006-01-02")

	forecast := &Forecast{}
	var totalArea float64
	var radiationTodayWh, radiationTomorrowWh float64
	queried := 0

	for _, panel := range c.panels {
		if !panel.Enabled {
			continue
		}
		data, err := c.fetchPanel(ctx, panel)
		if err != nil {
			c.logger.Error("solar: panel forecast failed", zap.String("panel", panel.Name), zap.Error(err))
			continue
		}
		queried++
		forecast.PeakPowerKw += panel.PeakPowerKw
		totalArea += panel.TotalAreaSqm

		if idx := indexOfDay(data.Daily.Time, today); idx >= 0 {
			radiationTodayWh += data.Daily.ShortwaveRadiationSum[idx] * radiationToWh
			if forecast.Sunrise == "" {
				forecast.Sunrise = data.Daily.Sunrise[idx]
				forecast.Sunset = data.Daily.Sunset[idx]
				forecast.DaylightMinutes = data.Daily.DaylightDuration[idx] / 60
			}
		}
		if idx := indexOfDay(data.Daily.Time, tomorrow); idx >= 0 {
			radiationTomorrowWh += data.Daily.ShortwaveRadiationSum[idx] * radiationToWh
		}
		if hour := local.Hour(); hour < len(data.Hourly.GlobalTiltedIrradiance) {
			if w := data.Hourly.GlobalTiltedIrradiance[hour]; w != nil {
				forecast.CurrentHourW += *w
			}
		}
	}
	if queried == 0 {
		return nil, fmt.Errorf("solar: no panel forecast available")
	}

	forecast.CurrentDayWh = radiationTodayWh * totalArea * panelYieldFactor
	forecast.TomorrowDayWh = radiationTomorrowWh * totalArea * panelYieldFactor
	return forecast, nil
}

func (c *Client) fetchPanel(ctx context.Context, panel config.PanelConfig) (*openMeteoResponse, error) {
	query := url.Values{}
	query.Set("latitude", panel.Latitude)
	query.Set("longitude", panel.Longitude)
	query.Set("hourly", "global_tilted_irradiance")
	query.Set("daily", "sunrise,sunset,daylight_duration,shortwave_radiation_sum")
	query.Set("timezone", c.timeZone)
	query.Set("forecast_days", "2")
	query.Set("tilt", strconv.Itoa(panel.Angle))
	query.Set("azimuth", strconv.Itoa(panel.Direction))

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		data, err := c.fetchOnce(ctx, query)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			c.logger.Warn("solar: retrying panel forecast",
				zap.String("panel", panel.Name), zap.Int("attempt", attempt), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, query url.Values) (*openMeteoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var data openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

func indexOfDay(days []string, day string) int {
	for i, d := range days {
		if d == day {
			return i
		}
	}
	return -1
}
