package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/config"
	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/core/events"
	"github.com/berfenger/spotmarket2mqtt/internal/core/service"
	"github.com/berfenger/spotmarket2mqtt/internal/stats"
	. "github.com/berfenger/spotmarket2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gatherResponses  = 3
	gatherTimeout    = 30 * time.Second
	priceListTimeout = 10 * time.Second
	solarTimeout     = 5 * time.Second
	telemetryTimeout = 20 * time.Second

	// target SOC of the GX charge schedule armed by SetCharge(on)
	scheduleTargetSoc = 100
)

type DecisionActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	config      *config.Config
	engineCfg   service.EngineConfig
	location    *time.Location
	trigger     *quartz.CronTrigger
	stats       *stats.Store
	eventStream *eventstream.EventStream

	marketActor *actor.PID
	solarActor  *actor.PID
	essActor    *actor.PID

	gather          tickGather
	forceCharge     bool
	forceDischarge  bool
	lastCharging    domain.ConditionResult
	lastDischarging domain.ConditionResult
	lastRun         time.Time

	logger *zap.Logger
}

type decisionTick struct {
}

type tickGather struct {
	list      *domain.PriceList
	telemetry *domain.GetBatteryTelemetryResponse
	solar     *domain.GetSolarForecastResponse
	received  int
}

func NewDecisionActor(cfg *config.Config, marketActor, solarActor, essActor *actor.PID,
	statsStore *stats.Store, eventStream *eventstream.EventStream, logger *zap.Logger) *DecisionActor {
	act := &DecisionActor{
		config:      cfg,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		stats:       statsStore,
		eventStream: eventStream,
		marketActor: marketActor,
		solarActor:  solarActor,
		essActor:    essActor,
		logger:      ActorLogger(domain.ACTOR_ID_DECISION, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *DecisionActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *DecisionActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("decision@starting started")

		engineCfg, err := engineConfigFromConditions(state.config)
		if err != nil {
			panic(err)
		}
		state.engineCfg = engineCfg

		location, err := time.LoadLocation(state.config.TimeZone)
		if err != nil {
			panic(err)
		}
		state.location = location

		trigger, err := quartz.NewCronTrigger(state.config.DecisionCron)
		if err != nil {
			panic(err)
		}
		state.trigger = trigger
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		state.scheduleNextTick(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("decision@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DecisionActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("decision@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DECISION,
			Healthy: true,
			State:   "idle",
		})
	case decisionTick:
		state.logger.Debug("decision@default tick")
		state.scheduleNextTick(ctx)
		state.startGather(ctx)
	case domain.RunDecisionRequest:
		state.logger.Debug("decision@default RunDecisionRequest")
		state.startGather(ctx)
	case domain.DecisionForceChargeRequest:
		state.logger.Sugar().Debugf("decision@default force charge %t", msg.Enable)
		changed := state.forceCharge != msg.Enable
		state.forceCharge = msg.Enable
		state.actuateCharging(ctx)
		state.eventStream.Publish(domain.SwitchSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SWITCH_ID_FORCE_CHARGE},
			Value:                  msg.Enable,
		})
		if ctx.Sender() != nil {
			ForRequest(msg).Respond(ctx, domain.DecisionForceChargeResponse{Changed: changed})
		}
	case domain.DecisionForceDischargeRequest:
		state.logger.Sugar().Debugf("decision@default force discharge %t", msg.Enable)
		changed := state.forceDischarge != msg.Enable
		state.forceDischarge = msg.Enable
		state.actuateDischarging(ctx)
		state.eventStream.Publish(domain.SwitchSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SWITCH_ID_FORCE_DISCHARGE},
			Value:                  msg.Enable,
		})
		if ctx.Sender() != nil {
			ForRequest(msg).Respond(ctx, domain.DecisionForceDischargeResponse{Changed: changed})
		}
	case domain.DecisionReportConsumptionRequest:
		state.logger.Sugar().Debugf("decision@default consumption report %.0f Wh", msg.EnergyWh)
		state.stats.UpdatePercent("gridmeters", "average", msg.EnergyWh)
	case domain.DecisionStatusRequest:
		ForRequest(msg).Respond(ctx, state.statusResponse())
	case domain.SetChargeResponse:
		if msg.HasResponseError() {
			state.logger.Error("decision@default SetChargeResponse error", zap.Error(msg.GetResponseError()))
		}
	case domain.SetDischargeResponse:
		if msg.HasResponseError() {
			state.logger.Error("decision@default SetDischargeResponse error", zap.Error(msg.GetResponseError()))
		}
	default:
		state.logger.Debug("decision@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DecisionActor) GatheringReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetPriceListResponse:
		if msg.HasResponseError() {
			state.logger.Error("decision@gathering GetPriceListResponse error", zap.Error(msg.GetResponseError()))
		}
		state.gather.list = msg.List
		state.gather.received++
		state.maybeRunDecision(ctx)
	case domain.GetSolarForecastResponse:
		if msg.HasResponseError() {
			state.logger.Error("decision@gathering GetSolarForecastResponse error", zap.Error(msg.GetResponseError()))
		} else {
			resp := msg
			state.gather.solar = &resp
		}
		state.gather.received++
		state.maybeRunDecision(ctx)
	case domain.GetBatteryTelemetryResponse:
		if msg.HasResponseError() {
			state.logger.Error("decision@gathering GetBatteryTelemetryResponse error", zap.Error(msg.GetResponseError()))
		} else {
			resp := msg
			state.gather.telemetry = &resp
		}
		state.gather.received++
		state.maybeRunDecision(ctx)
	case *actor.ReceiveTimeout:
		// run with whatever arrived, missing inputs degrade conservatively
		state.logger.Warn("decision@gathering timed out waiting for siblings")
		state.finishGather(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DECISION,
			Healthy: true,
			State:   "gathering",
		})
	default:
		state.logger.Debug("decision@gathering stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DecisionActor) startGather(ctx actor.Context) {
	state.gather = tickGather{}

	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.marketActor, domain.GetPriceListRequest{}, priceListTimeout), func(err error) any {
		return domain.GetPriceListResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
	})
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.solarActor, domain.GetSolarForecastRequest{}, solarTimeout), func(err error) any {
		return domain.GetSolarForecastResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
	})
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.essActor, domain.GetBatteryTelemetryRequest{}, telemetryTimeout), func(err error) any {
		return domain.GetBatteryTelemetryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
	})

	ctx.SetReceiveTimeout(gatherTimeout)
	state.behavior.BecomeStacked(state.GatheringReceive)
}

func (state *DecisionActor) maybeRunDecision(ctx actor.Context) {
	if state.gather.received >= gatherResponses {
		state.finishGather(ctx)
	}
}

func (state *DecisionActor) finishGather(ctx actor.Context) {
	ctx.SetReceiveTimeout(0)
	state.runDecision(ctx)
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

// runDecision assembles the immutable per-tick snapshot, evaluates both
// operation modes and pushes the outcome to the ESS actor.
func (state *DecisionActor) runDecision(ctx actor.Context) {
	now := time.Now().UTC()
	snapshot := state.buildSnapshot()

	list := state.gather.list
	if list == nil {
		list = domain.NewPriceList(nil, "", "")
	}

	forecaster := service.NewForecaster(snapshot, state.config.Battery.NominalVoltage, now, state.location, state.logger)
	engine := service.NewEngine(list, snapshot, forecaster, state.engineCfg, now, state.location, state.logger)

	state.lastCharging = engine.Evaluate(domain.ModeCharging)
	state.lastDischarging = engine.Evaluate(domain.ModeDischarging)
	state.lastRun = now

	state.logger.Info("decision: tick evaluated",
		zap.Bool("charging", state.lastCharging.Execute), zap.String("charging_condition", state.lastCharging.Condition),
		zap.Bool("discharging", state.lastDischarging.Execute), zap.String("discharging_condition", state.lastDischarging.Condition))

	state.actuateCharging(ctx)
	state.actuateDischarging(ctx)

	for _, ev := range events.DecisionToUpdateEvents(domain.ModeCharging, state.lastCharging) {
		state.eventStream.Publish(ev)
	}
	for _, ev := range events.DecisionToUpdateEvents(domain.ModeDischarging, state.lastDischarging) {
		state.eventStream.Publish(ev)
	}
}

func (state *DecisionActor) buildSnapshot() domain.TelemetrySnapshot {
	var snapshot domain.TelemetrySnapshot
	if t := state.gather.telemetry; t != nil {
		snapshot.Soc = t.Soc
		snapshot.BatteryCapacityAh = t.CapacityAh
		snapshot.BatteryMinimumSocLimit = t.MinimumSocLimit
		snapshot.BatteryCurrentVoltage = t.Voltage
	}
	if s := state.gather.solar; s != nil {
		snapshot.SunriseCurrentDay = s.Sunrise
		snapshot.SunsetCurrentDay = s.Sunset
		snapshot.TotalCurrentDayWh = s.CurrentDayWh
		snapshot.TotalTomorrowDayWh = s.TomorrowDayWh
		snapshot.NeedSoc = s.NeedSoc
	}
	snapshot.SchedulerSoc = scheduleTargetSoc
	if avg, ok := state.stats.Get("gridmeters", "average"); ok {
		snapshot.AverageHourlyConsumptionWh = avg
	}
	return snapshot
}

func (state *DecisionActor) actuateCharging(ctx actor.Context) {
	ctx.Request(state.essActor, domain.SetChargeRequest{
		Enable: state.forceCharge || state.lastCharging.Execute,
	})
}

func (state *DecisionActor) actuateDischarging(ctx actor.Context) {
	ctx.Request(state.essActor, domain.SetDischargeRequest{
		Enable: state.forceDischarge || state.lastDischarging.Execute,
	})
}

func (state *DecisionActor) scheduleNextTick(ctx actor.Context) {
	delay, err := DelayToNextFire(state.trigger, time.Now())
	if err != nil {
		state.logger.Error("decision: cron trigger error", zap.Error(err))
		delay = 1 * time.Hour
	}
	state.scheduler.RequestOnce(delay, ctx.Self(), decisionTick{})
}

func (state *DecisionActor) statusResponse() domain.DecisionStatusResponse {
	var lastRun string
	if !state.lastRun.IsZero() {
		lastRun = state.lastRun.Format(time.RFC3339)
	}
	var currentPrice string
	if state.gather.list != nil {
		if price, ok := state.gather.list.CurrentPrice(time.Now().UTC()); ok {
			currentPrice = domain.FromFixedPoint(price)
		}
	}
	averageConsumption, _ := state.stats.Get("gridmeters", "average")
	return domain.DecisionStatusResponse{
		ChargingActive:       state.forceCharge || state.lastCharging.Execute,
		ChargingCondition:    state.lastCharging.Condition,
		DischargingActive:    state.forceDischarge || state.lastDischarging.Execute,
		DischargingCondition: state.lastDischarging.Condition,
		ForceCharge:          state.forceCharge,
		ForceDischarge:       state.forceDischarge,
		LastRun:              lastRun,

		CurrentPrice:               currentPrice,
		AverageHourlyConsumptionWh: averageConsumption,
		Stats:                      state.stats.Snapshot(),
	}
}

func engineConfigFromConditions(cfg *config.Config) (service.EngineConfig, error) {
	var engineCfg service.EngineConfig

	if cfg.Conditions.ChargingPriceLimit != "" {
		limit, err := domain.ToFixedPoint(cfg.Conditions.ChargingPriceLimit, domain.ScaleCentKWh)
		if err != nil {
			return engineCfg, err
		}
		engineCfg.ChargingPriceLimit = limit
	}
	if cfg.Conditions.ChargingPriceHardCap != "" {
		hardCap, err := domain.ToFixedPoint(cfg.Conditions.ChargingPriceHardCap, domain.ScaleCentKWh)
		if err != nil {
			return engineCfg, err
		}
		engineCfg.ChargingPriceHardCap = hardCap
	}
	lowest, err := domain.ParseSlotSelection(cfg.Conditions.NumberOfLowestPricesForCharging)
	if err != nil {
		return engineCfg, err
	}
	engineCfg.LowestForCharging = lowest
	highest, err := domain.ParseSlotSelection(cfg.Conditions.NumberOfHighestPricesForDischarging)
	if err != nil {
		return engineCfg, err
	}
	engineCfg.HighestForDischarging = highest
	engineCfg.UseSolarForecastToAbort = cfg.Conditions.UseSolarForecastToAbort
	engineCfg.FullSweep = cfg.LogLevel == zapcore.DebugLevel
	return engineCfg, nil
}
