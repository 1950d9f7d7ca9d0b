package domain

import "fmt"

// DecisionRequest

type DecisionRequest interface {
	ActorRequest
	DecisionCommand() string
}

type DecisionRequestMixIn struct {
	ActorRequestMixIn
}

func (r DecisionRequestMixIn) DecisionCommand() string {
	return fmt.Sprintf("%T", r)
}

// DecisionResponse

type DecisionResponse interface {
	ActorResponse
	DecisionResponse() string
}

type DecisionResponseMixIn struct {
	ActorResponse
}

func (r DecisionResponseMixIn) DecisionResponse() string {
	return fmt.Sprintf("%T", r)
}

// Decision commands

type DecisionForceChargeRequest struct {
	DecisionRequestMixIn
	Enable bool
}

type DecisionForceChargeResponse struct {
	DecisionResponseMixIn
	Changed bool
}

type DecisionForceDischargeRequest struct {
	DecisionRequestMixIn
	Enable bool
}

type DecisionForceDischargeResponse struct {
	DecisionResponseMixIn
	Changed bool
}

type DecisionReportConsumptionRequest struct {
	DecisionRequestMixIn
	EnergyWh float64
}

type RunDecisionRequest struct {
	DecisionRequestMixIn
}

type DecisionStatusRequest struct {
	DecisionRequestMixIn
}

type DecisionStatusResponse struct {
	ActorResponseMixIn
	ChargingActive     bool
	ChargingCondition  string
	DischargingActive  bool
	DischargingCondition string
	ForceCharge        bool
	ForceDischarge     bool
	LastRun            string

	CurrentPrice               string
	AverageHourlyConsumptionWh float64
	Stats                      map[string]map[string]float64
}

// Production reports go to the solar actor for efficiency tracking.

type SolarReportProductionRequest struct {
	ActorRequestMixIn
	EnergyWh float64
}

// ensure interface compliance
var _ DecisionRequest = (*DecisionForceChargeRequest)(nil)
