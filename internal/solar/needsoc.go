package solar

// NeedSoc estimates the battery share, in percent, of the daily consumption
// that solar production will not cover. dailyConsumptionWh is the expected
// daily consumption in Wh, efficiency the rolling production/forecast
// percentage.
func NeedSoc(forecast *Forecast, dailyConsumptionWh, efficiency float64) float64 {
	if forecast == nil || dailyConsumptionWh <= 0 {
		return 0
	}
	// peak power comes in kW, everything else in Wh
	maxSolarHourlyWh := forecast.PeakPowerKw * 1000 * efficiency / 100
	actualDuringDaylight := maxSolarHourlyWh * forecast.DaylightMinutes / 60
	if actualDuringDaylight > forecast.CurrentDayWh {
		actualDuringDaylight = forecast.CurrentDayWh
	}
	if actualDuringDaylight >= dailyConsumptionWh {
		return 0
	}
	needed := dailyConsumptionWh - actualDuringDaylight
	percentage := needed / dailyConsumptionWh * 100
	if percentage > 100 {
		return 100
	}
	if percentage < 0 {
		return 0
	}
	return percentage
}

// EfficiencyPercent relates the measured production to the forecast. The
// second return value is false when the forecast cannot be related.
func EfficiencyPercent(producedWh, forecastWh float64) (float64, bool) {
	if forecastWh <= 0 || producedWh <= 0 {
		return 0, false
	}
	return producedWh / forecastWh * 100, true
}
