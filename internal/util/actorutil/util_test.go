package actorutil

import (
	"testing"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/mqtt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsedMQTTCommandToCommand(t *testing.T) {
	assert := assert.New(t)

	cmd, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.SWITCH_ID_FORCE_CHARGE,
		Payload:  "on",
	})
	require.NoError(t, err)
	charge, ok := cmd.(domain.DecisionForceChargeRequest)
	require.True(t, ok)
	assert.True(charge.Enable)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.SWITCH_ID_FORCE_DISCHARGE,
		Payload:  "off",
	})
	require.NoError(t, err)
	discharge, ok := cmd.(domain.DecisionForceDischargeRequest)
	require.True(t, ok)
	assert.False(discharge.Enable)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.INPUT_NUMBER_ID_MAX_DISCHARGE_POWER,
		Payload:  "3500",
	})
	require.NoError(t, err)
	power, ok := cmd.(domain.SetMaxDischargePowerRequest)
	require.True(t, ok)
	assert.Equal(uint(3500), power.Watts)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.INPUT_NUMBER_ID_GRID_CONSUMED_HOUR,
		Payload:  "1250.5",
	})
	require.NoError(t, err)
	consumed, ok := cmd.(domain.DecisionReportConsumptionRequest)
	require.True(t, ok)
	assert.Equal(1250.5, consumed.EnergyWh)

	_, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.INPUT_NUMBER_ID_MAX_DISCHARGE_POWER,
		Payload:  "-100",
	})
	assert.Error(err)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: "unknown_device",
		Payload:  "on",
	})
	assert.NoError(err)
	assert.Nil(cmd)
}
