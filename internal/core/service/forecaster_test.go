package service

import (
	"testing"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testNominalVoltage = 48.0

func f64(v float64) *float64 {
	return &v
}

func testSnapshot() domain.TelemetrySnapshot {
	return domain.TelemetrySnapshot{
		Soc:                        f64(50),
		BatteryCapacityAh:          f64(100),
		BatteryMinimumSocLimit:     f64(10),
		AverageHourlyConsumptionWh: 500,
	}
}

func forecasterAt(t *testing.T, snapshot domain.TelemetrySnapshot, now time.Time) *Forecaster {
	t.Helper()
	vienna, err := time.LoadLocation("Europe/Vienna")
	require.NoError(t, err)
	return NewForecaster(snapshot, testNominalVoltage, now, vienna, zap.NewNop())
}

func TestCurrentSocWh(t *testing.T) {
	f := forecasterAt(t, testSnapshot(), time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))

	current, full, min := f.CurrentSocWh()
	// (100 Ah / 50%) * 100 * 48 V = 9600 Wh full capacity
	assert.InDelta(t, 9600, full, 0.01)
	assert.InDelta(t, 4800, current, 0.01)
	assert.InDelta(t, 960, min, 0.01)
}

func TestCurrentSocWhUsesLiveVoltage(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.BatteryCurrentVoltage = f64(52)
	f := forecasterAt(t, snapshot, time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))

	_, full, _ := f.CurrentSocWh()
	assert.InDelta(t, 10400, full, 0.01)
}

func TestCurrentSocWhConservativeDegradation(t *testing.T) {
	now := time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC)

	for name, mutate := range map[string]func(*domain.TelemetrySnapshot){
		"missing soc":       func(s *domain.TelemetrySnapshot) { s.Soc = nil },
		"missing capacity":  func(s *domain.TelemetrySnapshot) { s.BatteryCapacityAh = nil },
		"missing min limit": func(s *domain.TelemetrySnapshot) { s.BatteryMinimumSocLimit = nil },
		"negative soc":      func(s *domain.TelemetrySnapshot) { s.Soc = f64(-1) },
		"negative capacity": func(s *domain.TelemetrySnapshot) { s.BatteryCapacityAh = f64(-5) },
	} {
		t.Run(name, func(t *testing.T) {
			snapshot := testSnapshot()
			mutate(&snapshot)
			f := forecasterAt(t, snapshot, now)

			current, full, min := f.CurrentSocWh()
			assert.Zero(t, current)
			assert.Zero(t, full)
			assert.Zero(t, min)
			assert.Zero(t, f.AvailableSurplus(nil))
			assert.False(t, f.DischargeAllowed(nil))
		})
	}
}

func TestCurrentSocWhZeroSoc(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Soc = f64(0)
	f := forecasterAt(t, snapshot, time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))

	// SOC of zero must not divide by zero
	current, full, min := f.CurrentSocWh()
	assert.Zero(t, current)
	assert.Zero(t, full)
	assert.Zero(t, min)
}

func TestRequiredCapacityFractionalHours(t *testing.T) {
	f := forecasterAt(t, testSnapshot(), time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))

	// 2.5 h * 500 Wh/h * 1.10
	assert.InDelta(t, 1375, f.RequiredCapacity(2.5), 0.01)
	assert.Zero(t, f.RequiredCapacity(-1))
}

func TestRequiredCapacityForPeriodBeforeSunset(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.SunriseCurrentDay = "2026-03-10T06:30"
	snapshot.SunsetCurrentDay = "2026-03-10T18:00"
	// 12:30 local, 5.5 h until sunset
	f := forecasterAt(t, snapshot, time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))

	assert.InDelta(t, 5.5*500*1.10, f.RequiredCapacityForPeriod(), 0.01)
}

func TestRequiredCapacityForPeriodSunsetToMidnight(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.SunriseCurrentDay = "2026-03-10T06:30"
	snapshot.SunsetCurrentDay = "2026-03-10T18:00"
	// 22:30 local, 1.5 h until midnight
	f := forecasterAt(t, snapshot, time.Date(2026, 3, 10, 21, 30, 0, 0, time.UTC))

	assert.InDelta(t, 1.5*500*1.10, f.RequiredCapacityForPeriod(), 0.01)
}

func TestRequiredCapacityForPeriodBeforeSunrise(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.SunriseCurrentDay = "2026-03-10T06:30"
	snapshot.SunsetCurrentDay = "2026-03-10T18:00"
	snapshot.TotalCurrentDayWh = 5000
	// 02:00 local, 22 h until the next midnight, reduced by today's forecast
	f := forecasterAt(t, snapshot, time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC))

	assert.InDelta(t, 22*500*1.10-5000, f.RequiredCapacityForPeriod(), 0.01)
}

func TestRequiredCapacityForPeriodFlooredAtZero(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.SunriseCurrentDay = "2026-03-10T06:30"
	snapshot.TotalCurrentDayWh = 50000
	f := forecasterAt(t, snapshot, time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC))

	assert.Zero(t, f.RequiredCapacityForPeriod())
}

func TestRequiredCapacityForPeriodMalformedSunset(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.SunriseCurrentDay = "2026-03-10T06:30"
	snapshot.SunsetCurrentDay = "tea time"
	// must not panic: falls back to the 18:00 default sunset
	f := forecasterAt(t, snapshot, time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))

	assert.InDelta(t, 5.5*500*1.10, f.RequiredCapacityForPeriod(), 0.01)
}

func TestAvailableSurplus(t *testing.T) {
	f := forecasterAt(t, testSnapshot(), time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))

	// 4800 - 960 - 480 - 2*500*1.10
	upcoming := []domain.PriceItem{{}, {}}
	assert.InDelta(t, 4800-960-480-1100, f.AvailableSurplus(upcoming), 0.01)
}

func TestDischargeAllowedNoUpcomingSlots(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Soc = f64(15)
	snapshot.BatteryCapacityAh = f64(30)
	f := forecasterAt(t, snapshot, time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))

	// surplus > 0 is all that is needed without upcoming high-price slots
	assert.True(t, f.DischargeAllowed(nil))

	snapshot.BatteryMinimumSocLimit = f64(15)
	f = forecasterAt(t, snapshot, time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))
	assert.False(t, f.DischargeAllowed(nil))
}

func TestDischargeAllowedWithUpcomingSlots(t *testing.T) {
	f := forecasterAt(t, testSnapshot(), time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))
	upcoming := []domain.PriceItem{{}, {}}
	assert.True(t, f.DischargeAllowed(upcoming))

	// with consumption so high the remainder goes negative, discharge is vetoed
	snapshot := testSnapshot()
	snapshot.AverageHourlyConsumptionWh = 2000
	f = forecasterAt(t, snapshot, time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))
	assert.False(t, f.DischargeAllowed(upcoming))
}
