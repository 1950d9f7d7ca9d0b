package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	TimeZone string `mapstructure:"time_zone"`

	MQTT    MQTTConfig     `mapstructure:"mqtt"`
	Markets []MarketConfig `mapstructure:"markets"`
	Panels  []PanelConfig  `mapstructure:"pv_panels"`

	Battery    BatteryConfig    `mapstructure:"battery"`
	Victron    VictronConfig    `mapstructure:"victron"`
	Conditions ConditionsConfig `mapstructure:"conditions"`
	Stats      StatsConfig      `mapstructure:"stats"`

	DecisionCron      string `mapstructure:"decision_cron"`
	MarketRefreshCron string `mapstructure:"market_refresh_cron"`
	SolarRefreshCron  string `mapstructure:"solar_refresh_cron"`

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`
}

type MQTTConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string `mapstructure:"base_topic"`
}

// MarketConfig describes one spot-market data source. Exactly one enabled
// market should be primary; the first enabled non-primary market acts as
// failback.
type MarketConfig struct {
	Name      string
	Country   string
	ApiToken  string `mapstructure:"api_token"`
	PriceUnit string `mapstructure:"price_unit"`
	InDomain  string `mapstructure:"in_domain"`
	OutDomain string `mapstructure:"out_domain"`
	Primary   bool
	Enabled   bool
}

type PanelConfig struct {
	Name      string
	Latitude  string `mapstructure:"loc_lat"`
	Longitude string `mapstructure:"loc_long"`
	// Angle of the panels: 0 (horizontal) to 90 (vertical)
	Angle int
	// Plane azimuth, -180 to 180 (-90 = east, 0 = south, 90 = west)
	Direction    int
	PeakPowerKw  float64 `mapstructure:"peak_power_kw"`
	TotalAreaSqm float64 `mapstructure:"total_area_sqm"`
	Enabled      bool
}

type BatteryConfig struct {
	// NominalVoltage converts amp-hours to watt-hours. Overridden by live
	// voltage telemetry when available.
	NominalVoltage float64 `mapstructure:"nominal_voltage"`
}

// VictronConfig points at a Victron GX device. Control writes go through the
// GX MQTT broker, telemetry reads through its Modbus-TCP endpoint.
type VictronConfig struct {
	UnitId   string `mapstructure:"unit_id"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string
	Password string

	ModbusHost string `mapstructure:"modbus_host"`
	ModbusPort uint   `mapstructure:"modbus_port"`
	// Modbus unit id of the battery monitor service. The system service is
	// always unit 100.
	BatteryUnitId     uint8 `mapstructure:"battery_unit_id"`
	MaxDischargePower int   `mapstructure:"max_discharge_power"`
}

type ConditionsConfig struct {
	// Prices are decimal strings (Cent/kWh) so fixed-point conversion stays
	// exact. See domain.ToFixedPoint.
	ChargingPriceLimit   string `mapstructure:"charging_price_limit"`
	ChargingPriceHardCap string `mapstructure:"charging_price_hard_cap"`

	// Either an absolute slot count ("3") or a ratio of the day average
	// ("0.8", "1.2").
	NumberOfLowestPricesForCharging     string `mapstructure:"number_of_lowest_prices_for_charging"`
	NumberOfHighestPricesForDischarging string `mapstructure:"number_of_highest_prices_for_discharging"`

	UseSolarForecastToAbort bool `mapstructure:"use_solar_forecast_to_abort"`
	UseSecondDay            bool `mapstructure:"use_second_day"`
}

type StatsConfig struct {
	FilePath string `mapstructure:"file_path"`
}

// PrimaryMarket returns the enabled primary market config, or nil.
func (c *Config) PrimaryMarket() *MarketConfig {
	for i := range c.Markets {
		if c.Markets[i].Enabled && c.Markets[i].Primary {
			return &c.Markets[i]
		}
	}
	return nil
}

// FailbackMarket returns the first enabled non-primary market config, or nil.
func (c *Config) FailbackMarket() *MarketConfig {
	for i := range c.Markets {
		if c.Markets[i].Enabled && !c.Markets[i].Primary {
			return &c.Markets[i]
		}
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
