package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/core/events"
	"github.com/berfenger/spotmarket2mqtt/internal/solar"
	"github.com/berfenger/spotmarket2mqtt/internal/stats"
	"github.com/berfenger/spotmarket2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	solarRefreshTimeout = 60 * time.Second

	statsGroupSolar      = "solar"
	statsGroupGridMeters = "gridmeters"
	statsKeyEfficiency   = "efficiency"
	statsKeyProducedDay  = "produced_day"
	statsKeyAverage      = "average"
)

type SolarActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	scheduler *scheduler.TimerScheduler

	client      *solar.Client
	stats       *stats.Store
	refreshCron string
	trigger     *quartz.CronTrigger
	forecast    *solar.Forecast
	eventStream *eventstream.EventStream

	logger *zap.Logger
}

type solarRefreshTick struct {
}

type solarRefreshResult struct {
	forecast *solar.Forecast
	err      error
}

func NewSolarActor(client *solar.Client, statsStore *stats.Store, refreshCron string,
	eventStream *eventstream.EventStream, logger *zap.Logger) *SolarActor {
	act := &SolarActor{
		client:      client,
		stats:       statsStore,
		refreshCron: refreshCron,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_SOLAR, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *SolarActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *SolarActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("solar@starting started")

		trigger, err := quartz.NewCronTrigger(state.refreshCron)
		if err != nil {
			panic(err)
		}
		state.trigger = trigger
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		state.startRefreshTask(ctx)
		state.scheduleNextRefresh(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("solar@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *SolarActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("solar@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SOLAR,
			Healthy: true,
			State:   "idle",
		})
	case solarRefreshTick:
		state.logger.Debug("solar@default tick")
		state.startRefreshTask(ctx)
		state.scheduleNextRefresh(ctx)
	case solarRefreshResult:
		if msg.err != nil {
			// keep the previous forecast, the engine degrades on its own
			state.logger.Error("solar@default refresh error", zap.Error(msg.err))
			return
		}
		state.logger.Debug("solar@default refresh done")
		state.forecast = msg.forecast
		for _, ev := range events.SolarForecastToUpdateEvents(state.forecastResponse()) {
			state.eventStream.Publish(ev)
		}
	case domain.GetSolarForecastRequest:
		state.logger.Debug("solar@default GetSolarForecastRequest")
		actorutil.ForRequest(msg).Respond(ctx, state.forecastResponse())
	case domain.SolarReportProductionRequest:
		state.logger.Sugar().Debugf("solar@default production report %.0f Wh", msg.EnergyWh)
		state.recordProduction(msg.EnergyWh)
	default:
		state.logger.Debug("solar@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SolarActor) startRefreshTask(ctx actor.Context) {
	actorutil.NewBackgroundTaskNoError(ctx, func() *solarRefreshResult {
		taskCtx, cancel := context.WithTimeout(context.Background(), solarRefreshTimeout)
		defer cancel()
		forecast, err := state.client.Forecast(taskCtx, time.Now())
		return &solarRefreshResult{forecast: forecast, err: err}
	}).PipeTo(ctx.Self())
}

func (state *SolarActor) scheduleNextRefresh(ctx actor.Context) {
	delay, err := actorutil.DelayToNextFire(state.trigger, time.Now())
	if err != nil {
		state.logger.Error("solar: cron trigger error", zap.Error(err))
		delay = 1 * time.Hour
	}
	state.scheduler.RequestOnce(delay, ctx.Self(), solarRefreshTick{})
}

// forecastResponse folds the latest forecast with the stats-derived charge
// target. A missing forecast yields the zero response, which the forecaster
// treats conservatively.
func (state *SolarActor) forecastResponse() domain.GetSolarForecastResponse {
	if state.forecast == nil {
		return domain.GetSolarForecastResponse{}
	}
	efficiency, ok := state.stats.Get(statsGroupSolar, statsKeyEfficiency)
	if !ok {
		efficiency = 100
	}
	averageHourly, _ := state.stats.Get(statsGroupGridMeters, statsKeyAverage)
	return domain.GetSolarForecastResponse{
		Sunrise:         state.forecast.Sunrise,
		Sunset:          state.forecast.Sunset,
		DaylightMinutes: state.forecast.DaylightMinutes,
		CurrentDayWh:    state.forecast.CurrentDayWh,
		TomorrowDayWh:   state.forecast.TomorrowDayWh,
		NeedSoc:         solar.NeedSoc(state.forecast, averageHourly*24, efficiency),
	}
}

func (state *SolarActor) recordProduction(energyWh float64) {
	state.stats.PutDaily(statsGroupSolar, statsKeyProducedDay, energyWh)
	if state.forecast == nil {
		return
	}
	if pct, ok := solar.EfficiencyPercent(energyWh, state.forecast.CurrentDayWh); ok {
		avg := state.stats.UpdatePercent(statsGroupSolar, statsKeyEfficiency, pct)
		state.eventStream.Publish(events.SolarEfficiencyUpdateEvent(avg))
	}
}
