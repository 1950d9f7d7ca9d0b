package server

import (
	"net/http"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type statusResponse struct {
	ChargingActive       bool   `json:"charging_active"`
	ChargingCondition    string `json:"charging_condition"`
	DischargingActive    bool   `json:"discharging_active"`
	DischargingCondition string `json:"discharging_condition"`
	ForceCharge          bool   `json:"force_charge"`
	ForceDischarge       bool   `json:"force_discharge"`
	LastRun              string `json:"last_run"`

	CurrentPrice               string                        `json:"current_price,omitempty"`
	AverageHourlyConsumptionWh float64                       `json:"average_hourly_consumption_wh"`
	Stats                      map[string]map[string]float64 `json:"stats,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.DecisionStatusRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "status: FAIL")
	}
	status, ok := res.(domain.DecisionStatusResponse)
	if !ok {
		return c.String(http.StatusServiceUnavailable, "status: FAIL")
	}
	return c.JSON(http.StatusOK, statusResponse{
		ChargingActive:       status.ChargingActive,
		ChargingCondition:    status.ChargingCondition,
		DischargingActive:    status.DischargingActive,
		DischargingCondition: status.DischargingCondition,
		ForceCharge:          status.ForceCharge,
		ForceDischarge:       status.ForceDischarge,
		LastRun:              status.LastRun,

		CurrentPrice:               status.CurrentPrice,
		AverageHourlyConsumptionWh: status.AverageHourlyConsumptionWh,
		Stats:                      status.Stats,
	})
}
