package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/spotmarket2mqtt/internal/adapter/actor"
	"github.com/berfenger/spotmarket2mqtt/internal/config"
	"github.com/berfenger/spotmarket2mqtt/internal/core/actor"
	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/core/port"
	"github.com/berfenger/spotmarket2mqtt/internal/ess"
	"github.com/berfenger/spotmarket2mqtt/internal/market"
	"github.com/berfenger/spotmarket2mqtt/internal/server"
	"github.com/berfenger/spotmarket2mqtt/internal/solar"
	"github.com/berfenger/spotmarket2mqtt/internal/stats"
	"github.com/berfenger/spotmarket2mqtt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/reugn/go-quartz/quartz"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	slog.Info("spotmarket2mqtt", "version", versioninfo.Short())

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	statsStore := stats.NewStore(cfg.Stats.FilePath, logger)

	marketProv, err := marketActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}
	solarProv, err := solarActorProvider(cfg, statsStore, logger)
	if err != nil {
		panic(err)
	}
	essProv, err := essActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, mqttActorProvider(cfg, logger), marketProv,
			solarProv, essProv, statsStore, logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SPOTMARKET_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SPOTMARKET_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("spotmarket")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check time zone
	if _, err := time.LoadLocation(cfg.TimeZone); err != nil {
		return nil, fmt.Errorf("invalid time_zone %q", cfg.TimeZone)
	}

	// check markets
	if cfg.PrimaryMarket() == nil {
		return nil, errors.New("config param markets needs one enabled primary market")
	}

	// check condition params
	if cfg.Conditions.ChargingPriceLimit != "" {
		if _, err := domain.ToFixedPoint(cfg.Conditions.ChargingPriceLimit, domain.ScaleCentKWh); err != nil {
			return nil, errors.New("config param conditions.charging_price_limit is not a valid price")
		}
	}
	if cfg.Conditions.ChargingPriceHardCap != "" {
		if _, err := domain.ToFixedPoint(cfg.Conditions.ChargingPriceHardCap, domain.ScaleCentKWh); err != nil {
			return nil, errors.New("config param conditions.charging_price_hard_cap is not a valid price")
		}
	}
	if _, err := domain.ParseSlotSelection(cfg.Conditions.NumberOfLowestPricesForCharging); err != nil {
		return nil, errors.New("config param conditions.number_of_lowest_prices_for_charging is not a valid count or ratio")
	}
	if _, err := domain.ParseSlotSelection(cfg.Conditions.NumberOfHighestPricesForDischarging); err != nil {
		return nil, errors.New("config param conditions.number_of_highest_prices_for_discharging is not a valid count or ratio")
	}

	// check cron expressions
	for _, cron := range []string{cfg.DecisionCron, cfg.MarketRefreshCron, cfg.SolarRefreshCron} {
		if _, err := quartz.NewCronTrigger(cron); err != nil {
			return nil, fmt.Errorf("invalid cron expression %q", cron)
		}
	}

	// check battery and victron params
	if cfg.Battery.NominalVoltage <= 0 {
		return nil, errors.New("config param battery.nominal_voltage should be > 0")
	}
	if cfg.Victron.Host == "" || cfg.Victron.UnitId == "" {
		return nil, errors.New("config params victron.host and victron.unit_id are required")
	}
	if cfg.Victron.ModbusHost == "" {
		cfg.Victron.ModbusHost = cfg.Victron.Host
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func marketActorProvider(cfg *config.Config, logger *zap.Logger) (actor.MarketActorProvider, error) {

	primary, err := market.NewSource(*cfg.PrimaryMarket(), nil, logger)
	if err != nil {
		return nil, err
	}

	var failback port.MarketSource
	if failbackCfg := cfg.FailbackMarket(); failbackCfg != nil {
		failback, err = market.NewSource(*failbackCfg, nil, logger)
		if err != nil {
			return nil, err
		}
	}

	service := market.NewService(primary, failback, cfg.Conditions.UseSecondDay, logger)

	return func(es *eventstream.EventStream) *adactor.MarketActor {
		return adactor.NewMarketActor(service, cfg.MarketRefreshCron, es, logger)
	}, nil
}

func solarActorProvider(cfg *config.Config, statsStore *stats.Store, logger *zap.Logger) (actor.SolarActorProvider, error) {

	location, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, err
	}
	client := solar.NewClient(cfg.Panels, cfg.TimeZone, location, logger)

	return func(es *eventstream.EventStream) *adactor.SolarActor {
		return adactor.NewSolarActor(client, statsStore, cfg.SolarRefreshCron, es, logger)
	}, nil
}

func essActorProvider(cfg *config.Config, logger *zap.Logger) (actor.EssActorProvider, error) {

	reader, err := ess.CreateGXModbusReader(cfg.Victron.ModbusHost, cfg.Victron.ModbusPort,
		cfg.Victron.BatteryUnitId, 1*time.Second, logger)
	if err != nil {
		return nil, err
	}
	unit := ess.NewVictronUnit(cfg.Victron, reader, logger)

	return func(es *eventstream.EventStream) *adactor.EssActor {
		return adactor.NewEssActor(unit, es, logger)
	}, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("time_zone", "Local")
	viper.SetDefault("mqtt.base_topic", "spotmarket")
	viper.SetDefault("battery.nominal_voltage", 48)
	viper.SetDefault("victron.port", 1883)
	viper.SetDefault("victron.modbus_port", 502)
	viper.SetDefault("victron.battery_unit_id", 225)
	viper.SetDefault("victron.max_discharge_power", -1)
	viper.SetDefault("conditions.number_of_lowest_prices_for_charging", "3")
	viper.SetDefault("conditions.number_of_highest_prices_for_discharging", "3")
	viper.SetDefault("stats.file_path", "spotmarket_stats.json")
	viper.SetDefault("decision_cron", "0 0 * * * *")
	viper.SetDefault("market_refresh_cron", "0 45 * * * *")
	viper.SetDefault("solar_refresh_cron", "0 15 * * * *")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Victron.Username = "*redacted*"
	cfg.Victron.Password = "*redacted*"
	for i := range cfg.Markets {
		if cfg.Markets[i].ApiToken != "" {
			cfg.Markets[i].ApiToken = "*redacted*"
		}
	}
	slog.Info("Using", "config", cfg)
}
