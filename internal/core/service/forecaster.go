package service

import (
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

const (
	// consumptionSafetyFactor pads every required-capacity figure by 10%.
	consumptionSafetyFactor = 1.10
	// surplusReserveFraction keeps 10% of the current charge out of the
	// dischargeable surplus.
	surplusReserveFraction = 0.10

	sunriseSunsetLayout = "2006-01-02T15:04"

	defaultSunriseHour = 6
	defaultSunsetHour  = 18
)

// Forecaster converts a telemetry snapshot and consumption statistics into
// watt-hour budgets: minimum reserve, required capacity until the next
// sunrise/sunset/midnight boundary, and the dischargeable surplus.
//
// All methods degrade to conservative zero budgets on missing or invalid
// telemetry. Nothing here returns an error or panics.
type Forecaster struct {
	snapshot       domain.TelemetrySnapshot
	nominalVoltage float64
	now            time.Time
	location       *time.Location
	logger         *zap.Logger
}

func NewForecaster(snapshot domain.TelemetrySnapshot, nominalVoltage float64, now time.Time, location *time.Location, logger *zap.Logger) *Forecaster {
	return &Forecaster{
		snapshot:       snapshot,
		nominalVoltage: nominalVoltage,
		now:            now,
		location:       location,
		logger:         logger,
	}
}

// CurrentSocWh returns the battery's current charge, full capacity and
// minimum reserve in Wh. Missing or negative SOC, capacity or minimum-SOC
// telemetry yields (0, 0, 0): no forecast means no surplus and no assumed
// charging headroom.
func (f *Forecaster) CurrentSocWh() (currentSocWh, fullCapacityWh, minSocWh float64) {
	soc := f.snapshot.Soc
	capacityAh := f.snapshot.BatteryCapacityAh
	minLimit := f.snapshot.BatteryMinimumSocLimit
	if soc == nil || capacityAh == nil || minLimit == nil || *soc < 0 || *capacityAh < 0 || *minLimit < 0 {
		f.logger.Warn("forecaster: incomplete battery telemetry, assuming zero budgets",
			zap.Bool("soc", soc != nil), zap.Bool("capacity", capacityAh != nil), zap.Bool("min_soc_limit", minLimit != nil))
		return 0, 0, 0
	}
	voltage := f.nominalVoltage
	if f.snapshot.BatteryCurrentVoltage != nil && *f.snapshot.BatteryCurrentVoltage > 0 {
		voltage = *f.snapshot.BatteryCurrentVoltage
	}
	if *soc > 0 {
		fullCapacityWh = (*capacityAh / *soc) * 100 * voltage
	}
	currentSocWh = fullCapacityWh * *soc / 100
	minSocWh = fullCapacityWh * *minLimit / 100
	return currentSocWh, fullCapacityWh, minSocWh
}

// RequiredCapacity returns the energy needed to cover the given number of
// hours of average consumption, padded by the safety factor. Hours may be
// fractional.
func (f *Forecaster) RequiredCapacity(hours float64) float64 {
	if hours < 0 {
		hours = 0
	}
	return hours * f.snapshot.AverageHourlyConsumptionWh * consumptionSafetyFactor
}

// RequiredCapacityForPeriod partitions now against the day's sunrise/sunset
// boundaries and returns the required capacity until the next boundary:
// before sunrise the budget runs to the next midnight reduced by the solar
// energy still expected today, between sunrise and sunset it runs to sunset,
// after sunset it runs to midnight. The three cases cover every instant of
// the day, since midnight here is always the upcoming one.
func (f *Forecaster) RequiredCapacityForPeriod() float64 {
	now := f.now.In(f.location)
	sunrise := f.parseSunTime(f.snapshot.SunriseCurrentDay, defaultSunriseHour, "sunrise")
	sunset := f.parseSunTime(f.snapshot.SunsetCurrentDay, defaultSunsetHour, "sunset")
	midnight := startOfDay(now).AddDate(0, 0, 1)

	switch {
	case now.Before(sunrise):
		required := f.RequiredCapacity(midnight.Sub(now).Hours()) - f.snapshot.TotalCurrentDayWh
		if required < 0 {
			required = 0
		}
		return required
	case now.Before(sunset):
		return f.RequiredCapacity(sunset.Sub(now).Hours())
	default:
		return f.RequiredCapacity(midnight.Sub(now).Hours())
	}
}

// AvailableSurplus returns the Wh dischargeable beyond the minimum reserve, a
// 10% charge buffer and the consumption expected during the upcoming
// high-price slots. Never negative.
func (f *Forecaster) AvailableSurplus(upcomingHighPriceItems []domain.PriceItem) float64 {
	currentSocWh, _, minSocWh := f.CurrentSocWh()
	surplus := currentSocWh - minSocWh - surplusReserveFraction*currentSocWh - f.RequiredCapacity(float64(len(upcomingHighPriceItems)))
	if surplus < 0 {
		return 0
	}
	return surplus
}

// DischargeAllowed reports whether discharging into the grid is permitted
// given the upcoming high-price slots.
func (f *Forecaster) DischargeAllowed(upcomingHighPriceItems []domain.PriceItem) bool {
	surplus := f.AvailableSurplus(upcomingHighPriceItems)
	if len(upcomingHighPriceItems) == 0 {
		return surplus > 0
	}
	currentSocWh, _, minSocWh := f.CurrentSocWh()
	remainder := currentSocWh - (f.RequiredCapacity(float64(len(upcomingHighPriceItems))) + minSocWh)
	if remainder < 0 {
		return false
	}
	usable := surplus
	if remainder < usable {
		usable = remainder
	}
	return usable > 0
}

// parseSunTime parses a local "YYYY-MM-DDTHH:MM" string. Malformed or empty
// strings fall back to a fixed default hour on the current day, with a
// warning.
func (f *Forecaster) parseSunTime(value string, defaultHour int, which string) time.Time {
	if value != "" {
		t, err := time.ParseInLocation(sunriseSunsetLayout, value, f.location)
		if err == nil {
			return t
		}
		f.logger.Warn("forecaster: unparseable sun time, using default",
			zap.String("kind", which), zap.String("value", value), zap.Int("default_hour", defaultHour))
	}
	day := startOfDay(f.now.In(f.location))
	return day.Add(time.Duration(defaultHour) * time.Hour)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
