package domain

const (
	ACTOR_ID_MASTER   = "master"
	ACTOR_ID_MQTT     = "mqtt"
	ACTOR_ID_MARKET   = "market"
	ACTOR_ID_SOLAR    = "solar"
	ACTOR_ID_ESS      = "ess"
	ACTOR_ID_DECISION = "decision"
)

type GetPriceListRequest struct {
	ActorRequestMixIn
}

type GetPriceListResponse struct {
	ActorResponseMixIn
	List *PriceList
}

type RefreshPriceListRequest struct {
	ActorRequestMixIn
}

type GetSolarForecastRequest struct {
	ActorRequestMixIn
}

// GetSolarForecastResponse carries the folded per-day forecast plus the
// stats-derived charge target.
type GetSolarForecastResponse struct {
	ActorResponseMixIn
	Sunrise         string
	Sunset          string
	DaylightMinutes float64
	CurrentDayWh    float64
	TomorrowDayWh   float64
	NeedSoc         float64
}

type GetBatteryTelemetryRequest struct {
	ActorRequestMixIn
}

// GetBatteryTelemetryResponse mirrors the raw unit reading. Nil fields were
// not delivered this tick.
type GetBatteryTelemetryResponse struct {
	ActorResponseMixIn
	Soc             *float64
	CapacityAh      *float64
	MinimumSocLimit *float64
	Voltage         *float64
}

type SetChargeRequest struct {
	ActorRequestMixIn
	Enable bool
}

type SetChargeResponse struct {
	ActorResponseMixIn
	Enabled bool
}

type SetDischargeRequest struct {
	ActorRequestMixIn
	Enable bool
}

type SetDischargeResponse struct {
	ActorResponseMixIn
	Enabled bool
}

type SetMaxDischargePowerRequest struct {
	ActorRequestMixIn
	Watts uint
}

type SetMaxDischargePowerResponse struct {
	ActorResponseMixIn
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
