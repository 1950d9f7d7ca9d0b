package service

import (
	"testing"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var engineNow = time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

func engineSlot(t *testing.T, hour int, price string) domain.PriceItem {
	t.Helper()
	start := time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC)
	item, err := domain.NewPriceItem(start, time.Time{}, price, domain.ScaleCentKWh)
	require.NoError(t, err)
	return item
}

func fp(t *testing.T, price string) int64 {
	t.Helper()
	v, err := domain.ToFixedPoint(price, domain.ScaleCentKWh)
	require.NoError(t, err)
	return v
}

func engineSnapshot() domain.TelemetrySnapshot {
	s := testSnapshot()
	s.SunriseCurrentDay = "2026-03-10T06:00"
	s.SunsetCurrentDay = "2026-03-10T18:00"
	return s
}

func buildEngine(t *testing.T, items []domain.PriceItem, snapshot domain.TelemetrySnapshot,
	cfg EngineConfig, now time.Time) *Engine {
	t.Helper()
	list := domain.NewPriceList(items, "awattar", "tibber")
	forecaster := NewForecaster(snapshot, testNominalVoltage, now, time.UTC, zap.NewNop())
	return NewEngine(list, snapshot, forecaster, cfg, now, time.UTC, zap.NewNop())
}

// today averages 10.00 Cent/kWh with a cheap 7.50 slot at 12:00
func scenarioItems(t *testing.T) []domain.PriceItem {
	return []domain.PriceItem{
		engineSlot(t, 10, "12.50"),
		engineSlot(t, 12, "7.50"),
		engineSlot(t, 14, "10.00"),
	}
}

func TestChargingPriceLimit(t *testing.T) {
	cfg := EngineConfig{ChargingPriceLimit: fp(t, "8.00")}
	e := buildEngine(t, scenarioItems(t), engineSnapshot(), cfg, engineNow)

	result := e.Evaluate(domain.ModeCharging)
	assert.True(t, result.Execute)
	assert.Contains(t, result.Condition, "price_limit")
}

func TestChargingAbovePriceLimit(t *testing.T) {
	cfg := EngineConfig{ChargingPriceLimit: fp(t, "7.00")}
	e := buildEngine(t, scenarioItems(t), engineSnapshot(), cfg, engineNow)

	result := e.Evaluate(domain.ModeCharging)
	assert.False(t, result.Execute)
	assert.Empty(t, result.Condition)
}

func TestChargingHardCapAborts(t *testing.T) {
	cfg := EngineConfig{
		ChargingPriceLimit:   fp(t, "8.00"),
		ChargingPriceHardCap: fp(t, "7.00"),
	}
	e := buildEngine(t, scenarioItems(t), engineSnapshot(), cfg, engineNow)

	result := e.Evaluate(domain.ModeCharging)
	assert.False(t, result.Execute)
	assert.Contains(t, result.Condition, "price_above_hard_cap")
}

func TestChargingUnsetHardCapNeverAborts(t *testing.T) {
	cfg := EngineConfig{ChargingPriceLimit: fp(t, "8.00")}
	e := buildEngine(t, scenarioItems(t), engineSnapshot(), cfg, engineNow)

	result := e.Evaluate(domain.ModeCharging)
	assert.True(t, result.Execute)
}

func TestChargingFirstMatchWins(t *testing.T) {
	lowest, err := domain.ParseSlotSelection("1")
	require.NoError(t, err)
	cfg := EngineConfig{
		ChargingPriceLimit: fp(t, "8.00"),
		LowestForCharging:  lowest,
	}
	// the current slot is both below the limit and the day's lowest; the
	// earlier condition in the list names the result
	e := buildEngine(t, scenarioItems(t), engineSnapshot(), cfg, engineNow)
	result := e.Evaluate(domain.ModeCharging)
	assert.True(t, result.Execute)
	assert.Contains(t, result.Condition, "price_limit")

	cfg.FullSweep = true
	e = buildEngine(t, scenarioItems(t), engineSnapshot(), cfg, engineNow)
	sweep := e.Evaluate(domain.ModeCharging)
	assert.Equal(t, result, sweep)
}

func TestChargingLowestSlotEquality(t *testing.T) {
	lowest, err := domain.ParseSlotSelection("1")
	require.NoError(t, err)
	// limit below the current price so only the slot equality can match
	cfg := EngineConfig{
		ChargingPriceLimit: fp(t, "5.00"),
		LowestForCharging:  lowest,
	}
	e := buildEngine(t, scenarioItems(t), engineSnapshot(), cfg, engineNow)

	result := e.Evaluate(domain.ModeCharging)
	assert.True(t, result.Execute)
	assert.Contains(t, result.Condition, "lowestprice_1")
}

func TestChargingCheaperPriceAheadAborts(t *testing.T) {
	items := []domain.PriceItem{
		engineSlot(t, 12, "7.50"),
		engineSlot(t, 14, "5.00"),
	}
	cfg := EngineConfig{
		ChargingPriceLimit:      fp(t, "8.00"),
		UseSolarForecastToAbort: true,
	}
	e := buildEngine(t, items, engineSnapshot(), cfg, engineNow)

	result := e.Evaluate(domain.ModeCharging)
	assert.False(t, result.Execute)
	assert.Equal(t, "cheaper_price_ahead", result.Condition)
}

func TestDischargingBudget(t *testing.T) {
	highest, err := domain.ParseSlotSelection("1")
	require.NoError(t, err)
	cfg := EngineConfig{HighestForDischarging: highest}
	e := buildEngine(t, scenarioItems(t), engineSnapshot(), cfg, engineNow)

	// the day's highest slot already passed, so only the budget rule applies
	result := e.Evaluate(domain.ModeDischarging)
	assert.True(t, result.Execute)
	assert.Equal(t, "discharge_allowed", result.Condition)
}

func TestDischargingHighestSlotEquality(t *testing.T) {
	items := []domain.PriceItem{
		engineSlot(t, 10, "7.50"),
		engineSlot(t, 12, "12.50"),
		engineSlot(t, 14, "10.00"),
	}
	highest, err := domain.ParseSlotSelection("1")
	require.NoError(t, err)
	cfg := EngineConfig{HighestForDischarging: highest}
	e := buildEngine(t, items, engineSnapshot(), cfg, engineNow)

	result := e.Evaluate(domain.ModeDischarging)
	assert.True(t, result.Execute)
	assert.Contains(t, result.Condition, "highestprice_1")
}

func TestDischargingSocFloorAborts(t *testing.T) {
	snapshot := engineSnapshot()
	snapshot.Soc = f64(10)
	items := []domain.PriceItem{
		engineSlot(t, 10, "7.50"),
		engineSlot(t, 12, "12.50"),
	}
	highest, err := domain.ParseSlotSelection("1")
	require.NoError(t, err)
	cfg := EngineConfig{HighestForDischarging: highest}
	e := buildEngine(t, items, snapshot, cfg, engineNow)

	result := e.Evaluate(domain.ModeDischarging)
	assert.False(t, result.Execute)
	assert.Equal(t, "soc_at_minimum_reserve", result.Condition)
}

func TestDischargingSocFloorOnMissingTelemetry(t *testing.T) {
	snapshot := engineSnapshot()
	snapshot.Soc = nil
	items := []domain.PriceItem{
		engineSlot(t, 12, "12.50"),
	}
	highest, err := domain.ParseSlotSelection("1")
	require.NoError(t, err)
	cfg := EngineConfig{HighestForDischarging: highest}
	e := buildEngine(t, items, snapshot, cfg, engineNow)

	// unknown SOC counts as at-reserve
	result := e.Evaluate(domain.ModeDischarging)
	assert.False(t, result.Execute)
	assert.Equal(t, "soc_at_minimum_reserve", result.Condition)
}

func TestDischargingOutsideDaylightAborts(t *testing.T) {
	night := time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC)
	snapshot := engineSnapshot()
	snapshot.NeedSoc = 80
	items := []domain.PriceItem{
		engineSlot(t, 22, "12.50"),
	}
	highest, err := domain.ParseSlotSelection("1")
	require.NoError(t, err)
	cfg := EngineConfig{
		HighestForDischarging:   highest,
		UseSolarForecastToAbort: true,
	}
	e := buildEngine(t, items, snapshot, cfg, night)

	result := e.Evaluate(domain.ModeDischarging)
	assert.False(t, result.Execute)
	assert.Equal(t, "outside_daylight_soc_below_target", result.Condition)
}

func TestEvaluateWithoutCurrentPrice(t *testing.T) {
	items := []domain.PriceItem{
		engineSlot(t, 8, "7.50"),
	}
	cfg := EngineConfig{ChargingPriceLimit: fp(t, "8.00")}
	e := buildEngine(t, items, engineSnapshot(), cfg, engineNow)

	result := e.Evaluate(domain.ModeCharging)
	assert.False(t, result.Execute)
	assert.Empty(t, result.Condition)
}

func TestEvaluateInvalidMode(t *testing.T) {
	cfg := EngineConfig{ChargingPriceLimit: fp(t, "8.00")}
	e := buildEngine(t, scenarioItems(t), engineSnapshot(), cfg, engineNow)

	result := e.Evaluate(domain.OperationMode("standby"))
	assert.False(t, result.Execute)
	assert.Empty(t, result.Condition)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	cfg := EngineConfig{ChargingPriceLimit: fp(t, "8.00")}
	e := buildEngine(t, scenarioItems(t), engineSnapshot(), cfg, engineNow)

	first := e.Evaluate(domain.ModeCharging)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Evaluate(domain.ModeCharging))
	}
}

func TestBuildCountsCheapSlotsRemainingToday(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	snapshot := engineSnapshot()
	list := domain.NewPriceList(scenarioItems(t), "awattar", "tibber")
	forecaster := NewForecaster(snapshot, testNominalVoltage, engineNow, time.UTC, zap.NewNop())
	cfg := EngineConfig{LowestForCharging: domain.SlotSelection{Count: 2}}
	NewEngine(list, snapshot, forecaster, cfg, engineNow, time.UTC, logger)

	// the 12:00 and 14:00 cheap slots both end before the next midnight
	entries := logs.FilterMessage("engine: cheap price slots still available today").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 2, entries[0].ContextMap()["count"])
}

func TestEvaluateRecoversFromPanic(t *testing.T) {
	cfg := EngineConfig{}
	e := buildEngine(t, scenarioItems(t), engineSnapshot(), cfg, engineNow)
	// force the discharge budget predicate to panic
	e.forecaster = nil

	result := e.Evaluate(domain.ModeDischarging)
	assert.False(t, result.Execute)
	assert.Empty(t, result.Condition)
}
