package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/spotmarket2mqtt/internal/adapter/actor"
	"github.com/berfenger/spotmarket2mqtt/internal/config"
	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/stats"
	. "github.com/berfenger/spotmarket2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type MarketActorProvider func(*eventstream.EventStream) *adactor.MarketActor

type SolarActorProvider func(*eventstream.EventStream) *adactor.SolarActor

type EssActorProvider func(*eventstream.EventStream) *adactor.EssActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	stats              *stats.Store

	mqttActor     *actor.PID
	marketActor   *actor.PID
	solarActor    *actor.PID
	essActor      *actor.PID
	decisionActor *actor.PID

	mqttActorProvider   MQTTActorProvider
	marketActorProvider MarketActorProvider
	solarActorProvider  SolarActorProvider
	essActorProvider    EssActorProvider

	logger *zap.Logger
}

type healthCheckResult struct {
	mqttActorHealthy     bool
	marketActorHealthy   bool
	solarActorHealthy    bool
	essActorHealthy      bool
	decisionActorHealthy bool
	checksReceived       int
	respondTo            *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, mqttActorProvider MQTTActorProvider,
	marketActorProvider MarketActorProvider, solarActorProvider SolarActorProvider,
	essActorProvider EssActorProvider, statsStore *stats.Store, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         &eventstream.EventStream{},
		stats:               statsStore,
		mqttActorProvider:   mqttActorProvider,
		marketActorProvider: marketActorProvider,
		solarActorProvider:  solarActorProvider,
		essActorProvider:    essActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start market child
		marketActorPID, err := state.startMarketActor(ctx)
		if err != nil {
			panic(err)
		}
		state.marketActor = marketActorPID

		// start solar child
		solarActorPID, err := state.startSolarActor(ctx)
		if err != nil {
			panic(err)
		}
		state.solarActor = solarActorPID

		// start ESS child
		essActorPID, err := state.startEssActor(ctx)
		if err != nil {
			panic(err)
		}
		state.essActor = essActorPID

		// start decision child
		decisionActorPID, err := state.startDecisionActor(ctx)
		if err != nil {
			panic(err)
		}
		state.decisionActor = decisionActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		// MQTT actor request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// market actor request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.marketActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MARKET,
				Healthy: false,
			}
		})
		// solar actor request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.solarActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_SOLAR,
				Healthy: false,
			}
		})
		// ESS actor request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.essActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_ESS,
				Healthy: false,
			}
		})
		// decision actor request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.decisionActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_DECISION,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsed MQTT command to the owning actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err != nil || cmd == nil {
				return
			}
			switch pcmd := cmd.(type) {
			case domain.DecisionRequest:
				ctx.Send(state.decisionActor, pcmd)
			case domain.SolarReportProductionRequest:
				ctx.Send(state.solarActor, pcmd)
			case domain.SetMaxDischargePowerRequest:
				ctx.Send(state.essActor, pcmd)
			}
		}
	case domain.DecisionStatusRequest:
		// forwarded from the HTTP status endpoint
		ctx.RequestWithCustomSender(state.decisionActor, msg, ctx.Sender())
	case *actor.Terminated:
		// if the ESS actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_ESS) {
			state.logger.Error("master@default ess error")
			panic(errors.New("ess terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttActorHealthy = true
			case domain.ACTOR_ID_MARKET:
				state.currentHealthCheck.marketActorHealthy = true
			case domain.ACTOR_ID_SOLAR:
				state.currentHealthCheck.solarActorHealthy = true
			case domain.ACTOR_ID_ESS:
				state.currentHealthCheck.essActorHealthy = true
			case domain.ACTOR_ID_DECISION:
				state.currentHealthCheck.decisionActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startMarketActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	marketProps := actor.PropsFromProducer(func() actor.Actor {
		return state.marketActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	marketActorPID, err := ctx.SpawnNamed(marketProps, domain.ACTOR_ID_MARKET)
	if err != nil {
		return nil, err
	}

	return marketActorPID, nil
}

func (state *MasterOfPuppetsActor) startSolarActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	solarProps := actor.PropsFromProducer(func() actor.Actor {
		return state.solarActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	solarActorPID, err := ctx.SpawnNamed(solarProps, domain.ACTOR_ID_SOLAR)
	if err != nil {
		return nil, err
	}

	return solarActorPID, nil
}

func (state *MasterOfPuppetsActor) startEssActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	essProps := actor.PropsFromProducer(func() actor.Actor {
		return state.essActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	essActorPID, err := ctx.SpawnNamed(essProps, domain.ACTOR_ID_ESS)
	if err != nil {
		return nil, err
	}

	return essActorPID, nil
}

func (state *MasterOfPuppetsActor) startDecisionActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	decisionProps := actor.PropsFromProducer(func() actor.Actor {
		return NewDecisionActor(&state.config, state.marketActor, state.solarActor, state.essActor,
			state.stats, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	decisionActorPID, err := ctx.SpawnNamed(decisionProps, domain.ACTOR_ID_DECISION)
	if err != nil {
		return nil, err
	}

	return decisionActorPID, nil
}

func (state *healthCheckResult) reset() {
	state.mqttActorHealthy = false
	state.marketActorHealthy = false
	state.solarActorHealthy = false
	state.essActorHealthy = false
	state.decisionActorHealthy = false
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 5
}

func (state *healthCheckResult) allHealthy() bool {
	return state.mqttActorHealthy && state.marketActorHealthy && state.solarActorHealthy &&
		state.essActorHealthy && state.decisionActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
