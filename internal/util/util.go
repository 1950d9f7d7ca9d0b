package util

import (
	"github.com/berfenger/spotmarket2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		TimeZone: "Europe/Vienna",
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "spotmarket",
		},
		Markets: []config.MarketConfig{
			{
				Name:    "awattar",
				Country: "AT",
				Primary: true,
				Enabled: true,
			},
		},
		Battery: config.BatteryConfig{
			NominalVoltage: 48,
		},
		Victron: config.VictronConfig{
			UnitId:     "c0619ab4fd1e",
			Host:       "-.-.-.-",
			Port:       1883,
			ModbusHost: "-.-.-.-",
			ModbusPort: 502,

			BatteryUnitId:     225,
			MaxDischargePower: 4000,
		},
		Conditions: config.ConditionsConfig{
			ChargingPriceLimit:                  "8.0",
			NumberOfLowestPricesForCharging:     "3",
			NumberOfHighestPricesForDischarging: "3",
		},
		Stats: config.StatsConfig{
			FilePath: "stats.json",
		},
		DecisionCron:      "0 0 * * * *",
		MarketRefreshCron: "0 30 * * * *",
		SolarRefreshCron:  "0 15 * * * *",
		Port:              8080,
	}
}
