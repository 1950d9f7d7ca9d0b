package ess

import (
	"context"
	"testing"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type publishedMessage struct {
	topic   string
	payload string
}

type fakeToken struct {
	done chan struct{}
}

func newFakeToken() *fakeToken {
	t := &fakeToken{done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return nil }

type fakeClient struct {
	mqtt.Client
	published []publishedMessage
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, publishedMessage{topic: topic, payload: string(payload.([]byte))})
	return newFakeToken()
}

func testUnit() (*VictronUnit, *fakeClient) {
	client := &fakeClient{}
	unit := &VictronUnit{
		cfg: config.VictronConfig{
			UnitId:            "c0619ab4fd1e",
			MaxDischargePower: 4000,
		},
		client: client,
		logger: zap.NewNop(),
	}
	return unit, client
}

func TestSetChargeOn(t *testing.T) {
	unit, client := testUnit()

	require.NoError(t, unit.SetCharge(context.Background(), true))
	require.Len(t, client.published, 3)

	assert.Equal(t, "W/c0619ab4fd1e/settings/0/Settings/CGwacs/BatteryLife/Schedule/Charge/0/Duration",
		client.published[0].topic)
	assert.JSONEq(t, `{"value": 86340}`, client.published[0].payload)
	assert.JSONEq(t, `{"value": 100}`, client.published[1].payload)
	assert.Equal(t, "W/c0619ab4fd1e/settings/0/Settings/CGwacs/BatteryLife/Schedule/Charge/0/Day",
		client.published[2].topic)
	assert.JSONEq(t, `{"value": 7}`, client.published[2].payload)
}

func TestSetChargeOff(t *testing.T) {
	unit, client := testUnit()

	require.NoError(t, unit.SetCharge(context.Background(), false))
	require.Len(t, client.published, 1)
	assert.JSONEq(t, `{"value": -7}`, client.published[0].payload)
}

func TestSetDischarge(t *testing.T) {
	unit, client := testUnit()

	require.NoError(t, unit.SetDischarge(context.Background(), true))
	require.NoError(t, unit.SetDischarge(context.Background(), false))
	require.Len(t, client.published, 2)

	assert.Equal(t, "W/c0619ab4fd1e/settings/0/Settings/CGwacs/MaxDischargePower", client.published[0].topic)
	assert.JSONEq(t, `{"value": 4000}`, client.published[0].payload)
	assert.JSONEq(t, `{"value": 0}`, client.published[1].payload)
}

func TestReadTelemetryWithoutReader(t *testing.T) {
	unit, _ := testUnit()
	_, err := unit.ReadTelemetry(context.Background())
	assert.Error(t, err)
}
