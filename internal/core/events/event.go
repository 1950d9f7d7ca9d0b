package events

import (
	"time"

	. "github.com/berfenger/spotmarket2mqtt/internal/core/domain"

	"github.com/shopspring/decimal"
)

func PriceListToUpdateEvents(list *PriceList, now time.Time) []any {
	var events []any

	if list == nil {
		return events
	}

	// Current price
	if price, ok := list.CurrentPrice(now); ok {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_CURRENT_PRICE,
			},
			Value:    fixedPointToFloat(price),
			Decimals: 4,
		})
	}
	// Active market source
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_ACTIVE_MARKET_SOURCE,
		},
		Value: list.ActiveSource,
	})
	// Day averages
	today, tomorrow := list.AveragePriceByDate(now)
	if today != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_AVERAGE_PRICE_TODAY,
			},
			Value:    decimalToFloat(*today),
			Decimals: 4,
		})
	}
	if tomorrow != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_AVERAGE_PRICE_TOMORROW,
			},
			Value:    decimalToFloat(*tomorrow),
			Decimals: 4,
		})
	}
	// Slot count
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PRICE_SLOT_COUNT,
		},
		Value:    float64(list.Len()),
		Decimals: 0,
	})

	return events
}

func BatteryTelemetryToUpdateEvents(t GetBatteryTelemetryResponse) []any {
	var events []any

	if t.Soc != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BATTERY_SOC,
			},
			Value:    *t.Soc,
			Decimals: 1,
		})
	}
	if t.Voltage != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BATTERY_VOLTAGE,
			},
			Value:    *t.Voltage,
			Decimals: 2,
		})
	}
	if t.CapacityAh != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BATTERY_CAPACITY_AH,
			},
			Value:    *t.CapacityAh,
			Decimals: 1,
		})
	}
	if t.MinimumSocLimit != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BATTERY_MIN_SOC_LIMIT,
			},
			Value:    *t.MinimumSocLimit,
			Decimals: 1,
		})
	}

	return events
}

func SolarForecastToUpdateEvents(f GetSolarForecastResponse) []any {
	var events []any

	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SOLAR_FORECAST_TODAY,
		},
		Value:    f.CurrentDayWh,
		Decimals: 0,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SOLAR_FORECAST_TOMORROW,
		},
		Value:    f.TomorrowDayWh,
		Decimals: 0,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SOLAR_NEED_SOC,
		},
		Value:    f.NeedSoc,
		Decimals: 1,
	})

	return events
}

func DecisionToUpdateEvents(mode OperationMode, result ConditionResult) []any {
	var events []any

	activeId := SENSOR_ID_CHARGING_ACTIVE
	conditionId := SENSOR_ID_CHARGING_CONDITION
	if mode == ModeDischarging {
		activeId = SENSOR_ID_DISCHARGING_ACTIVE
		conditionId = SENSOR_ID_DISCHARGING_CONDITION
	}

	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: activeId,
		},
		Value: result.Execute,
	})
	condition := result.Condition
	if condition == "" {
		condition = "none"
	}
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: conditionId,
		},
		Value: condition,
	})

	return events
}

func SolarEfficiencyUpdateEvent(efficiency float64) any {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SOLAR_EFFICIENCY,
		},
		Value:    efficiency,
		Decimals: 1,
	}
}

func fixedPointToFloat(price int64) float64 {
	return decimal.New(price, -ScaleCentKWh).InexactFloat64()
}

func decimalToFloat(d decimal.Decimal) float64 {
	return d.Shift(-ScaleCentKWh).InexactFloat64()
}
