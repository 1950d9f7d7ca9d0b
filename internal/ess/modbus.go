package ess

import (
	"fmt"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/port"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Victron GX Modbus-TCP register map. The system and settings services live
// on unit 100, the battery monitor on its own unit id.
const (
	gxSystemUnitId = 100

	regBatteryVoltage  = 840 // com.victronenergy.system, V x10
	regBatterySoc      = 843 // com.victronenergy.system, %
	regMinimumSocLimit = 2901 // com.victronenergy.settings, % x10
	regBatteryCapacity = 309 // com.victronenergy.battery, Ah x10
)

// GXModbusReader reads battery telemetry from a Victron GX device. A reading
// that fails leaves its field nil instead of failing the whole snapshot.
type GXModbusReader struct {
	client        *modbus.ModbusClient
	batteryUnitId uint8
	logger        *zap.Logger
}

func CreateGXModbusReader(host string, port uint, batteryUnitId uint8, timeout time.Duration,
	logger *zap.Logger) (*GXModbusReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return &GXModbusReader{
		client:        client,
		batteryUnitId: batteryUnitId,
		logger:        logger,
	}, nil
}

func (r *GXModbusReader) Open() error {
	return r.client.Open()
}

func (r *GXModbusReader) Close() error {
	return r.client.Close()
}

// ReadBattery collects SOC, voltage, minimum SOC limit and capacity. The
// returned telemetry may be partial; only a dead connection is an error.
func (r *GXModbusReader) ReadBattery() (*port.BatteryTelemetry, error) {
	if err := r.client.SetUnitId(gxSystemUnitId); err != nil {
		return nil, err
	}

	telemetry := &port.BatteryTelemetry{}
	read := 0

	if regs, err := r.client.ReadRegisters(regBatteryVoltage, 4, modbus.HOLDING_REGISTER); err == nil {
		voltage := float64(regs[0]) / 10
		soc := float64(regs[regBatterySoc-regBatteryVoltage])
		telemetry.Voltage = &voltage
		telemetry.Soc = &soc
		read++
	} else {
		r.logger.Warn("ess: could not read battery voltage/soc", zap.Error(err))
	}

	if reg, err := r.client.ReadRegister(regMinimumSocLimit, modbus.HOLDING_REGISTER); err == nil {
		minSoc := float64(reg) / 10
		telemetry.MinimumSocLimit = &minSoc
		read++
	} else {
		r.logger.Warn("ess: could not read minimum soc limit", zap.Error(err))
	}

	if err := r.client.SetUnitId(r.batteryUnitId); err == nil {
		if reg, err := r.client.ReadRegister(regBatteryCapacity, modbus.HOLDING_REGISTER); err == nil {
			capacity := float64(reg) / 10
			telemetry.CapacityAh = &capacity
			read++
		} else {
			r.logger.Warn("ess: could not read battery capacity", zap.Error(err))
		}
	}

	if read == 0 {
		return nil, fmt.Errorf("ess: no battery telemetry readable")
	}
	return telemetry, nil
}
