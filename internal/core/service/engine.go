package service

import (
	"fmt"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

type conditionKind int

const (
	condPriceBelowLimit conditionKind = iota
	condPriceEqualsSlot
	condDischargeBudget

	condPriceAboveHardCap
	condCheaperPriceAhead
	condOutsideDaylightBelowTarget
	condSocAtMinimumReserve
)

// conditionSpec is one named rule. Conditions carry their parameters instead
// of closing over live state, so a built engine is internally consistent for
// the whole tick and the evaluation order stays explicit.
type conditionSpec struct {
	name      string
	kind      conditionKind
	threshold int64
	slot      domain.PriceItem
}

// EngineConfig is the per-tick, read-only condition configuration.
type EngineConfig struct {
	ChargingPriceLimit   int64
	ChargingPriceHardCap int64
	LowestForCharging    domain.SlotSelection
	HighestForDischarging domain.SlotSelection
	UseSolarForecastToAbort bool
	// FullSweep evaluates every primary condition for diagnostics instead of
	// stopping at the first match. The first match still wins. Abort
	// conditions always short-circuit regardless.
	FullSweep bool
}

// Engine builds and evaluates the per-tick rule set for both operation modes.
// All inputs are captured at construction time.
type Engine struct {
	primary map[domain.OperationMode][]conditionSpec
	aborts  map[domain.OperationMode][]conditionSpec

	currentPrice    int64
	hasCurrentPrice bool
	snapshot        domain.TelemetrySnapshot
	forecaster      *Forecaster
	upcomingHigh    []domain.PriceItem
	laterCheaper    bool
	sunrise         time.Time
	sunset          time.Time
	now             time.Time

	cfg    EngineConfig
	logger *zap.Logger
}

// NewEngine captures the price window, telemetry snapshot and forecaster
// outputs and builds the ordered condition lists for both modes.
func NewEngine(list *domain.PriceList, snapshot domain.TelemetrySnapshot, forecaster *Forecaster,
	cfg EngineConfig, now time.Time, location *time.Location, logger *zap.Logger) *Engine {

	currentPrice, hasCurrentPrice := list.CurrentPrice(now)
	if !hasCurrentPrice {
		logger.Error("engine: no price slot matches the current time")
	}

	e := &Engine{
		primary:         make(map[domain.OperationMode][]conditionSpec),
		aborts:          make(map[domain.OperationMode][]conditionSpec),
		currentPrice:    currentPrice,
		hasCurrentPrice: hasCurrentPrice,
		snapshot:        snapshot,
		forecaster:      forecaster,
		now:             now.UTC(),
		cfg:             cfg,
		logger:          logger,
	}
	e.sunrise = forecaster.parseSunTime(snapshot.SunriseCurrentDay, defaultSunriseHour, "sunrise")
	e.sunset = forecaster.parseSunTime(snapshot.SunsetCurrentDay, defaultSunsetHour, "sunset")

	lowest := list.LowestPrices(cfg.LowestForCharging, now)
	logger.Info("engine: cheap price slots still available today",
		zap.Int("count", list.ValidItemsUntilMidnight(lowest, now, location)))
	highest := list.HighestPrices(cfg.HighestForDischarging, now)
	for _, item := range highest {
		if item.End.After(e.now) {
			e.upcomingHigh = append(e.upcomingHigh, item)
		}
	}
	if hasCurrentPrice {
		for _, item := range list.Items() {
			if item.Start.After(e.now) && list.IsToday(item, now) && item.Price < currentPrice {
				e.laterCheaper = true
				break
			}
		}
	}

	e.buildChargingConditions(lowest, location)
	e.buildDischargingConditions(highest, location)
	return e
}

func (e *Engine) buildChargingConditions(lowest []domain.PriceItem, location *time.Location) {
	e.primary[domain.ModeCharging] = append(e.primary[domain.ModeCharging], conditionSpec{
		name: fmt.Sprintf("price_limit (%s) > %s Cent/kWh",
			domain.FromFixedPoint(e.cfg.ChargingPriceLimit), domain.FromFixedPoint(e.currentPrice)),
		kind:      condPriceBelowLimit,
		threshold: e.cfg.ChargingPriceLimit,
	})
	for i, item := range lowest {
		e.primary[domain.ModeCharging] = append(e.primary[domain.ModeCharging], conditionSpec{
			name: fmt.Sprintf("lowestprice_%d %s (%s Cent/kWh) == %s Cent/kWh",
				i+1, item.Start.In(location).Format("2006-01-02 15:04"), item.PriceString(),
				domain.FromFixedPoint(e.currentPrice)),
			kind: condPriceEqualsSlot,
			slot: item,
		})
	}

	if e.cfg.ChargingPriceHardCap > 0 {
		e.aborts[domain.ModeCharging] = append(e.aborts[domain.ModeCharging], conditionSpec{
			name: fmt.Sprintf("price_above_hard_cap (%s) < %s Cent/kWh",
				domain.FromFixedPoint(e.cfg.ChargingPriceHardCap), domain.FromFixedPoint(e.currentPrice)),
			kind:      condPriceAboveHardCap,
			threshold: e.cfg.ChargingPriceHardCap,
		})
	}
	if e.cfg.UseSolarForecastToAbort {
		e.aborts[domain.ModeCharging] = append(e.aborts[domain.ModeCharging], conditionSpec{
			name: "cheaper_price_ahead",
			kind: condCheaperPriceAhead,
		})
	}
}

func (e *Engine) buildDischargingConditions(highest []domain.PriceItem, location *time.Location) {
	for i, item := range highest {
		e.primary[domain.ModeDischarging] = append(e.primary[domain.ModeDischarging], conditionSpec{
			name: fmt.Sprintf("highestprice_%d %s (%s Cent/kWh) == %s Cent/kWh",
				i+1, item.Start.In(location).Format("2006-01-02 15:04"), item.PriceString(),
				domain.FromFixedPoint(e.currentPrice)),
			kind: condPriceEqualsSlot,
			slot: item,
		})
	}
	e.primary[domain.ModeDischarging] = append(e.primary[domain.ModeDischarging], conditionSpec{
		name: "discharge_allowed",
		kind: condDischargeBudget,
	})

	// The SOC floor is the unconditional safety veto and goes first.
	e.aborts[domain.ModeDischarging] = append(e.aborts[domain.ModeDischarging], conditionSpec{
		name: "soc_at_minimum_reserve",
		kind: condSocAtMinimumReserve,
	})
	if e.cfg.UseSolarForecastToAbort {
		e.aborts[domain.ModeDischarging] = append(e.aborts[domain.ModeDischarging], conditionSpec{
			name: "outside_daylight_soc_below_target",
			kind: condOutsideDaylightBelowTarget,
		})
	}
}

// Evaluate runs the primary sweep and, on a match, the abort sweep for the
// given mode. The returned result is final for the tick.
func (e *Engine) Evaluate(mode domain.OperationMode) domain.ConditionResult {
	var result domain.ConditionResult
	if !mode.Valid() {
		e.logger.Error("engine: invalid operation mode", zap.String("mode", string(mode)))
		return result
	}

	for _, spec := range e.primary[mode] {
		matched := e.evaluateSafe(spec)
		e.logger.Debug("engine: evaluated condition",
			zap.String("mode", string(mode)), zap.String("condition", spec.name), zap.Bool("result", matched))
		if matched && result.Condition == "" {
			result.Execute = true
			result.Condition = spec.name
			if !e.cfg.FullSweep {
				break
			}
		}
	}

	if !result.Execute {
		// an unmatched primary result is already "do nothing"
		return result
	}

	// Abort evaluation always stops at the first applicable veto, even at
	// debug level: only the first reason is meaningful.
	for _, spec := range e.aborts[mode] {
		if e.evaluateSafe(spec) {
			e.logger.Info("engine: abort condition fired",
				zap.String("mode", string(mode)), zap.String("condition", spec.name))
			result.Execute = false
			result.Condition = spec.name
			break
		}
	}
	return result
}

// evaluateSafe evaluates one condition, converting any panic into a logged
// false so a single broken predicate cannot stop the sweep.
func (e *Engine) evaluateSafe(spec conditionSpec) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine: error while evaluating condition",
				zap.String("condition", spec.name), zap.Any("error", r))
			matched = false
		}
	}()
	return e.evaluate(spec)
}

func (e *Engine) evaluate(spec conditionSpec) bool {
	switch spec.kind {
	case condPriceBelowLimit:
		return e.hasCurrentPrice && e.currentPrice < spec.threshold
	case condPriceEqualsSlot:
		// fixed-point integer equality, never floating point
		return e.hasCurrentPrice && spec.slot.Price == e.currentPrice
	case condDischargeBudget:
		return e.forecaster.DischargeAllowed(e.upcomingHigh)
	case condPriceAboveHardCap:
		return e.hasCurrentPrice && e.currentPrice > spec.threshold
	case condCheaperPriceAhead:
		return e.laterCheaper
	case condOutsideDaylightBelowTarget:
		if e.snapshot.Soc == nil {
			return true
		}
		outsideDaylight := e.now.Before(e.sunrise.UTC()) || !e.now.Before(e.sunset.UTC())
		return outsideDaylight && *e.snapshot.Soc < e.snapshot.NeedSoc
	case condSocAtMinimumReserve:
		if e.snapshot.Soc == nil || e.snapshot.BatteryMinimumSocLimit == nil {
			return true
		}
		return *e.snapshot.Soc <= *e.snapshot.BatteryMinimumSocLimit
	default:
		return false
	}
}
