package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/core/events"
	"github.com/berfenger/spotmarket2mqtt/internal/ess"
	"github.com/berfenger/spotmarket2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const essRequestTimeout = 15 * time.Second

type EssActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash

	unit        ess.Unit
	eventStream *eventstream.EventStream
	logger      *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewEssActor(unit ess.Unit, eventStream *eventstream.EventStream, logger *zap.Logger) *EssActor {
	act := &EssActor{
		unit:        unit,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_ESS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *EssActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *EssActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("ess@starting started")
		connCtx, cancel := context.WithTimeout(context.Background(), essRequestTimeout)
		defer cancel()
		if err := state.unit.Connect(connCtx); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.unit.Disconnect()
	default:
		state.logger.Debug("ess@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *EssActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("ess@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_ESS,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetBatteryTelemetryRequest:
		state.logger.Debug("ess@default: GetBatteryTelemetryRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.readTelemetry),
			mapTaskResult[domain.GetBatteryTelemetryResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetBatteryTelemetryResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(essRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingUnit)
	case domain.SetChargeRequest:
		state.logger.Sugar().Debugf("ess@default: SetChargeRequest %t", msg.Enable)
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetChargeResponse, error) {
			taskCtx, cancel := context.WithTimeout(context.Background(), essRequestTimeout)
			defer cancel()
			err := state.unit.SetCharge(taskCtx, msg.Enable)
			return &domain.SetChargeResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				Enabled:            msg.Enable && err == nil,
			}, nil
		}), mapTaskResult[domain.SetChargeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetChargeResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(essRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingUnit)
	case domain.SetDischargeRequest:
		state.logger.Sugar().Debugf("ess@default: SetDischargeRequest %t", msg.Enable)
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetDischargeResponse, error) {
			taskCtx, cancel := context.WithTimeout(context.Background(), essRequestTimeout)
			defer cancel()
			err := state.unit.SetDischarge(taskCtx, msg.Enable)
			return &domain.SetDischargeResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				Enabled:            msg.Enable && err == nil,
			}, nil
		}), mapTaskResult[domain.SetDischargeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetDischargeResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(essRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingUnit)
	case domain.SetMaxDischargePowerRequest:
		state.logger.Sugar().Debugf("ess@default: SetMaxDischargePowerRequest %d", msg.Watts)
		state.unit.SetMaxDischargePower(int(msg.Watts))
		if msg.ReplyToRef != nil || ctx.Sender() != nil {
			actorutil.ForRequest(msg).Respond(ctx, domain.SetMaxDischargePowerResponse{})
		}
	case *actor.Stopping:
		state.unit.Disconnect()
	default:
		state.logger.Debug("ess@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *EssActor) WaitingUnit(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("ess@waitingUnit backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		if telemetry, ok := msg.message.(domain.GetBatteryTelemetryResponse); ok && !telemetry.HasResponseError() {
			for _, ev := range events.BatteryTelemetryToUpdateEvents(telemetry) {
				state.eventStream.Publish(ev)
			}
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.unit.Disconnect()
	default:
		state.logger.Debug("ess@waitingUnit stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *EssActor) readTelemetry() (*domain.GetBatteryTelemetryResponse, error) {
	taskCtx, cancel := context.WithTimeout(context.Background(), essRequestTimeout)
	defer cancel()
	telemetry, err := state.unit.ReadTelemetry(taskCtx)
	if err != nil {
		return nil, err
	}
	return &domain.GetBatteryTelemetryResponse{
		Soc:             telemetry.Soc,
		CapacityAh:      telemetry.CapacityAh,
		MinimumSocLimit: telemetry.MinimumSocLimit,
		Voltage:         telemetry.Voltage,
	}, nil
}

func mapTaskResult[T any](replyTo *actor.PID) func(*T) *backgroundTaskResult {
	return func(value *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *value,
			replyTo: replyTo,
		}
	}
}
