package domain

const (
	SENSOR_ID_BRIDGE_STATE            = "bridge"
	SENSOR_ID_CURRENT_PRICE           = "current_price"
	SENSOR_ID_AVERAGE_PRICE_TODAY     = "average_price_today"
	SENSOR_ID_AVERAGE_PRICE_TOMORROW  = "average_price_tomorrow"
	SENSOR_ID_ACTIVE_MARKET_SOURCE    = "active_market_source"
	SENSOR_ID_PRICE_SLOT_COUNT        = "price_slot_count"
	SENSOR_ID_BATTERY_SOC             = "battery_soc"
	SENSOR_ID_BATTERY_VOLTAGE         = "battery_voltage"
	SENSOR_ID_BATTERY_CAPACITY_AH     = "battery_capacity_ah"
	SENSOR_ID_BATTERY_MIN_SOC_LIMIT   = "battery_min_soc_limit"
	SENSOR_ID_SOLAR_FORECAST_TODAY    = "solar_forecast_today_wh"
	SENSOR_ID_SOLAR_FORECAST_TOMORROW = "solar_forecast_tomorrow_wh"
	SENSOR_ID_SOLAR_NEED_SOC          = "solar_need_soc"
	SENSOR_ID_SOLAR_EFFICIENCY        = "solar_efficiency"
	SENSOR_ID_CHARGING_ACTIVE         = "charging_active"
	SENSOR_ID_CHARGING_CONDITION      = "charging_condition"
	SENSOR_ID_DISCHARGING_ACTIVE      = "discharging_active"
	SENSOR_ID_DISCHARGING_CONDITION   = "discharging_condition"

	SWITCH_ID_FORCE_CHARGE    = "force_charge"
	SWITCH_ID_FORCE_DISCHARGE = "force_discharge"

	INPUT_NUMBER_ID_MAX_DISCHARGE_POWER = "max_discharge_power"
	INPUT_NUMBER_ID_GRID_CONSUMED_HOUR  = "grid_consumed_hour_wh"
	INPUT_NUMBER_ID_SOLAR_PRODUCED_DAY  = "solar_produced_day_wh"
)
