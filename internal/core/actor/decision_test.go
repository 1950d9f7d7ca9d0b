package actor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/stats"
	"github.com/berfenger/spotmarket2mqtt/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func cheapPriceList(t *testing.T) *domain.PriceList {
	now := time.Now().UTC().Truncate(time.Hour)
	item, err := domain.NewPriceItem(now, now.Add(1*time.Hour), "5.00", domain.ScaleCentKWh)
	require.NoError(t, err)
	return domain.NewPriceList([]domain.PriceItem{item}, "awattar", "")
}

func stubMarketProps(list *domain.PriceList) *actor.Props {
	return actor.PropsFromFunc(func(ctx actor.Context) {
		switch ctx.Message().(type) {
		case domain.GetPriceListRequest:
			ctx.Respond(domain.GetPriceListResponse{List: list})
		}
	})
}

func stubSolarProps() *actor.Props {
	return actor.PropsFromFunc(func(ctx actor.Context) {
		switch ctx.Message().(type) {
		case domain.GetSolarForecastRequest:
			ctx.Respond(domain.GetSolarForecastResponse{
				Sunrise:         "2026-02-10T07:21",
				Sunset:          "2026-02-10T17:10",
				DaylightMinutes: 589,
				CurrentDayWh:    12000,
				TomorrowDayWh:   9000,
				NeedSoc:         40,
			})
		}
	})
}

func stubEssProps(soc float64, charge, discharge chan bool) *actor.Props {
	capacity := 200.0
	minSoc := 10.0
	voltage := 51.2
	return actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.GetBatteryTelemetryRequest:
			ctx.Respond(domain.GetBatteryTelemetryResponse{
				Soc:             &soc,
				CapacityAh:      &capacity,
				MinimumSocLimit: &minSoc,
				Voltage:         &voltage,
			})
		case domain.SetChargeRequest:
			charge <- msg.Enable
			ctx.Respond(domain.SetChargeResponse{Enabled: msg.Enable})
		case domain.SetDischargeRequest:
			discharge <- msg.Enable
			ctx.Respond(domain.SetDischargeResponse{Enabled: msg.Enable})
		}
	})
}

func awaitBool(t *testing.T, ch chan bool, what string) bool {
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return false
	}
}

func TestDecisionActorRunAndStatus(t *testing.T) {
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.Stats.FilePath = filepath.Join(t.TempDir(), "stats.json")
	logger := zap.Must(zap.NewDevelopment())

	as := actor.NewActorSystem()
	context := as.Root

	chargeCh := make(chan bool, 8)
	dischargeCh := make(chan bool, 8)

	marketPID := context.Spawn(stubMarketProps(cheapPriceList(t)))
	solarPID := context.Spawn(stubSolarProps())
	essPID := context.Spawn(stubEssProps(55, chargeCh, dischargeCh))

	statsStore := stats.NewStore(cfg.Stats.FilePath, logger)
	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewDecisionActor(&cfg, marketPID, solarPID, essPID, statsStore, &es, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	context.Send(pid, domain.DecisionReportConsumptionRequest{EnergyWh: 450})

	// a 5 Cent/kWh slot sits below the 8 Cent/kWh charging limit
	context.Send(pid, domain.RunDecisionRequest{})

	assert.True(awaitBool(t, chargeCh, "charge actuation"))
	awaitBool(t, dischargeCh, "discharge actuation")

	res, err := context.RequestFuture(pid, domain.DecisionStatusRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	status, ok := res.(domain.DecisionStatusResponse)
	require.True(t, ok)
	assert.True(status.ChargingActive)
	assert.NotEmpty(status.ChargingCondition)
	assert.NotEmpty(status.LastRun)
	assert.False(status.ForceCharge)
	assert.Equal("5.0000", status.CurrentPrice)
	require.Contains(t, status.Stats, "gridmeters")
	assert.Equal(status.AverageHourlyConsumptionWh, status.Stats["gridmeters"]["average"])

	context.Stop(pid)
	as.Shutdown()
}

func TestDecisionActorForceSwitches(t *testing.T) {
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.Stats.FilePath = filepath.Join(t.TempDir(), "stats.json")
	logger := zap.Must(zap.NewDevelopment())

	as := actor.NewActorSystem()
	context := as.Root

	chargeCh := make(chan bool, 8)
	dischargeCh := make(chan bool, 8)

	marketPID := context.Spawn(stubMarketProps(cheapPriceList(t)))
	solarPID := context.Spawn(stubSolarProps())
	essPID := context.Spawn(stubEssProps(55, chargeCh, dischargeCh))

	statsStore := stats.NewStore(cfg.Stats.FilePath, logger)
	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewDecisionActor(&cfg, marketPID, solarPID, essPID, statsStore, &es, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	res, err := context.RequestFuture(pid, domain.DecisionForceDischargeRequest{Enable: true}, 2*time.Second).Result()
	require.NoError(t, err)
	forced, ok := res.(domain.DecisionForceDischargeResponse)
	require.True(t, ok)
	assert.True(forced.Changed)
	assert.True(awaitBool(t, dischargeCh, "forced discharge actuation"))

	res, err = context.RequestFuture(pid, domain.DecisionStatusRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	status, ok := res.(domain.DecisionStatusResponse)
	require.True(t, ok)
	assert.True(status.ForceDischarge)
	assert.True(status.DischargingActive)

	// repeating the same state is not a change
	res, err = context.RequestFuture(pid, domain.DecisionForceDischargeRequest{Enable: true}, 2*time.Second).Result()
	require.NoError(t, err)
	forced, ok = res.(domain.DecisionForceDischargeResponse)
	require.True(t, ok)
	assert.False(forced.Changed)

	context.Stop(pid)
	as.Shutdown()
}
