package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/core/port"
	"github.com/berfenger/spotmarket2mqtt/internal/ess"
	"github.com/berfenger/spotmarket2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func f64(v float64) *float64 {
	return &v
}

func TestEssActorTelemetryAndControl(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	unit := &ess.TestUnit{
		Telemetry: port.BatteryTelemetry{
			Soc:             f64(55),
			CapacityAh:      f64(200),
			MinimumSocLimit: f64(10),
			Voltage:         f64(51.2),
		},
	}
	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewEssActor(unit, &es, logger) })
	pid := context.Spawn(props)

	// health check
	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	health, ok := res.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.True(health.Healthy)

	// telemetry
	res, err = context.RequestFuture(pid, domain.GetBatteryTelemetryRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	telemetry, ok := res.(domain.GetBatteryTelemetryResponse)
	require.True(t, ok)
	assert.False(telemetry.HasResponseError())
	require.NotNil(t, telemetry.Soc)
	assert.Equal(55.0, *telemetry.Soc)
	require.NotNil(t, telemetry.Voltage)
	assert.Equal(51.2, *telemetry.Voltage)

	// charge on
	res, err = context.RequestFuture(pid, domain.SetChargeRequest{Enable: true}, 2*time.Second).Result()
	require.NoError(t, err)
	charge, ok := res.(domain.SetChargeResponse)
	require.True(t, ok)
	assert.False(charge.HasResponseError())
	assert.True(charge.Enabled)
	require.NotNil(t, unit.ChargeOn)
	assert.True(*unit.ChargeOn)

	// discharge off
	res, err = context.RequestFuture(pid, domain.SetDischargeRequest{Enable: false}, 2*time.Second).Result()
	require.NoError(t, err)
	discharge, ok := res.(domain.SetDischargeResponse)
	require.True(t, ok)
	assert.False(discharge.Enabled)
	require.NotNil(t, unit.DischargeOn)
	assert.False(*unit.DischargeOn)

	// discharge limit
	res, err = context.RequestFuture(pid, domain.SetMaxDischargePowerRequest{Watts: 3500}, 2*time.Second).Result()
	require.NoError(t, err)
	_, ok = res.(domain.SetMaxDischargePowerResponse)
	assert.True(ok)
	assert.Equal(3500, unit.MaxDischargePower)

	context.Stop(pid)
	as.Shutdown()
}

func TestEssActorTelemetryError(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	unit := &ess.TestUnit{
		ReadErr: errors.New("modbus read failed"),
	}
	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewEssActor(unit, &es, logger) })
	pid := context.Spawn(props)

	res, err := context.RequestFuture(pid, domain.GetBatteryTelemetryRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	telemetry, ok := res.(domain.GetBatteryTelemetryResponse)
	require.True(t, ok)
	assert.True(telemetry.HasResponseError())
	assert.Nil(telemetry.Soc)

	context.Stop(pid)
	as.Shutdown()
}
