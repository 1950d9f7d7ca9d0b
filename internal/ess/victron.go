package ess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/config"
	"github.com/berfenger/spotmarket2mqtt/internal/core/port"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	// charge schedule slot 0 on the GX settings service
	schedulePath = "settings/0/Settings/CGwacs/BatteryLife/Schedule/Charge/0"
	dischargePath = "settings/0/Settings/CGwacs/MaxDischargePower"

	// Day 7 arms the daily charge window, -7 disarms it
	scheduleDayOn  = 7
	scheduleDayOff = -7

	// all-day charge window at full target SOC
	scheduleDurationSeconds = 86340
	scheduleTargetSoc       = 100

	publishTimeout = 10 * time.Second
)

// VictronUnit drives a Victron GX ESS: control writes over the GX MQTT
// broker, telemetry reads over Modbus-TCP.
type VictronUnit struct {
	cfg       config.VictronConfig
	client    mqtt.Client
	telemetry *GXModbusReader
	logger    *zap.Logger
}

func NewVictronUnit(cfg config.VictronConfig, telemetry *GXModbusReader, logger *zap.Logger) *VictronUnit {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("spotmarket_gx_%d", rand.Intn(1000)))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectRetry(true)
	return &VictronUnit{
		cfg:       cfg,
		client:    mqtt.NewClient(opts),
		telemetry: telemetry,
		logger:    logger,
	}
}

var _ port.EnergyStorage = (*VictronUnit)(nil)

func (v *VictronUnit) Connect(ctx context.Context) error {
	return v.waitToken(ctx, v.client.Connect())
}

func (v *VictronUnit) Disconnect() {
	v.client.Disconnect(uint(publishTimeout.Milliseconds()))
}

// SetCharge arms or disarms the GX charge schedule. Arming also writes the
// window duration and target SOC so a factory-fresh schedule slot works.
func (v *VictronUnit) SetCharge(ctx context.Context, on bool) error {
	if on {
		if err := v.writeValue(ctx, schedulePath+"/Duration", scheduleDurationSeconds); err != nil {
			return err
		}
		if err := v.writeValue(ctx, schedulePath+"/Soc", scheduleTargetSoc); err != nil {
			return err
		}
		return v.writeValue(ctx, schedulePath+"/Day", scheduleDayOn)
	}
	return v.writeValue(ctx, schedulePath+"/Day", scheduleDayOff)
}

// SetDischarge opens or closes the discharge path by setting the maximum
// discharge power. Off is 0 W; on restores the configured limit (-1 means
// unlimited).
func (v *VictronUnit) SetDischarge(ctx context.Context, on bool) error {
	if on {
		return v.writeValue(ctx, dischargePath, v.cfg.MaxDischargePower)
	}
	return v.writeValue(ctx, dischargePath, 0)
}

// SetMaxDischargePower replaces the configured discharge limit used by
// SetDischarge(on).
func (v *VictronUnit) SetMaxDischargePower(watts int) {
	v.cfg.MaxDischargePower = watts
}

func (v *VictronUnit) ReadTelemetry(ctx context.Context) (*port.BatteryTelemetry, error) {
	if v.telemetry == nil {
		return nil, errors.New("ess: no telemetry reader configured")
	}
	if err := v.telemetry.Open(); err != nil {
		return nil, err
	}
	defer func() {
		if err := v.telemetry.Close(); err != nil {
			v.logger.Warn("ess: modbus close failed", zap.Error(err))
		}
	}()
	return v.telemetry.ReadBattery()
}

// writeValue publishes a GX settings write: W/<unit id>/<path> with a
// {"value": x} payload.
func (v *VictronUnit) writeValue(ctx context.Context, path string, value int) error {
	payload, err := json.Marshal(map[string]int{"value": value})
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("W/%s/%s", v.cfg.UnitId, path)
	v.logger.Debug("ess: gx write", zap.String("topic", topic), zap.Int("value", value))
	return v.waitToken(ctx, v.client.Publish(topic, 1, false, payload))
}

func (v *VictronUnit) waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(publishTimeout):
		return errors.New("ess: gx broker timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}
