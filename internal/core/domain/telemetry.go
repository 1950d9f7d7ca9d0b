package domain

// TelemetrySnapshot is the read-only per-tick aggregate of battery, solar and
// consumption figures. It is assembled once before the condition engine runs
// and never mutated mid-tick.
type TelemetrySnapshot struct {
	// Battery state. Pointers are nil when the source did not deliver the
	// value this tick; the forecaster degrades conservatively in that case.
	Soc                    *float64 // %
	BatteryCapacityAh      *float64
	BatteryMinimumSocLimit *float64 // %
	BatteryCurrentVoltage  *float64 // V

	// Local "YYYY-MM-DDTHH:MM" strings, may be empty or malformed; the
	// forecaster falls back to fixed defaults.
	SunriseCurrentDay string
	SunsetCurrentDay  string

	// Solar forecast totals in Wh.
	TotalCurrentDayWh  float64
	TotalTomorrowDayWh float64

	// Charging SOC targets in %.
	NeedSoc      float64
	SchedulerSoc float64

	// Rolling average hourly consumption in Wh, 0 when unavailable.
	AverageHourlyConsumptionWh float64
}
