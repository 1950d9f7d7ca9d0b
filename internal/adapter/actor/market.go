package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/core/events"
	"github.com/berfenger/spotmarket2mqtt/internal/market"
	"github.com/berfenger/spotmarket2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const marketRefreshTimeout = 60 * time.Second

type MarketActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	scheduler *scheduler.TimerScheduler

	service     *market.Service
	refreshCron string
	trigger     *quartz.CronTrigger
	list        *domain.PriceList
	eventStream *eventstream.EventStream

	logger *zap.Logger
}

type marketRefreshTick struct {
}

type marketRefreshResult struct {
	list *domain.PriceList
}

func NewMarketActor(service *market.Service, refreshCron string, eventStream *eventstream.EventStream, logger *zap.Logger) *MarketActor {
	act := &MarketActor{
		service:     service,
		refreshCron: refreshCron,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MARKET, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MarketActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MarketActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("market@starting started")

		trigger, err := quartz.NewCronTrigger(state.refreshCron)
		if err != nil {
			panic(err)
		}
		state.trigger = trigger
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		state.startRefreshTask(ctx)
		state.behavior.Become(state.FirstRefreshReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("market@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MarketActor) FirstRefreshReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case marketRefreshResult:
		state.logger.Debug("market@firstRefresh marketRefreshResult")
		state.applyRefresh(msg.list)
		state.scheduleNextRefresh(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("market@firstRefresh stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MarketActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("market@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MARKET,
			Healthy: state.list != nil && state.list.Len() > 0,
			State:   "idle",
		})
	case marketRefreshTick:
		state.logger.Debug("market@default tick")
		state.startRefreshTask(ctx)
		state.scheduleNextRefresh(ctx)
		state.behavior.BecomeStacked(state.RefreshingReceive)
	case domain.RefreshPriceListRequest:
		state.logger.Debug("market@default RefreshPriceListRequest")
		state.startRefreshTask(ctx)
		state.behavior.BecomeStacked(state.RefreshingReceive)
	case domain.GetPriceListRequest:
		state.logger.Debug("market@default GetPriceListRequest")
		actorutil.ForRequest(msg).Respond(ctx, domain.GetPriceListResponse{
			List: state.listSnapshot(),
		})
	default:
		state.logger.Debug("market@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MarketActor) RefreshingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case marketRefreshResult:
		state.logger.Debug("market@refreshing marketRefreshResult")
		state.applyRefresh(msg.list)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.GetPriceListRequest:
		// serve the previous window, a refresh must not starve the decision tick
		actorutil.ForRequest(msg).Respond(ctx, domain.GetPriceListResponse{
			List: state.listSnapshot(),
		})
	default:
		state.logger.Debug("market@refreshing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MarketActor) startRefreshTask(ctx actor.Context) {
	list := state.list
	if list == nil {
		list = state.service.NewList()
	}
	actorutil.NewBackgroundTaskNoError(ctx, func() *marketRefreshResult {
		taskCtx, cancel := context.WithTimeout(context.Background(), marketRefreshTimeout)
		defer cancel()
		return &marketRefreshResult{
			list: state.service.Refresh(taskCtx, list, time.Now().UTC()),
		}
	}).OnError(func(err error) {
		state.logger.Error("market: refresh task error", zap.Error(err))
		ctx.Send(ctx.Self(), marketRefreshResult{list: list})
	}).PipeTo(ctx.Self())
}

func (state *MarketActor) applyRefresh(list *domain.PriceList) {
	state.list = list
	if list == nil {
		return
	}
	for _, ev := range events.PriceListToUpdateEvents(list, time.Now().UTC()) {
		state.eventStream.Publish(ev)
	}
}

func (state *MarketActor) scheduleNextRefresh(ctx actor.Context) {
	delay, err := actorutil.DelayToNextFire(state.trigger, time.Now())
	if err != nil {
		state.logger.Error("market: cron trigger error", zap.Error(err))
		delay = 1 * time.Hour
	}
	state.scheduler.RequestOnce(delay, ctx.Self(), marketRefreshTick{})
}

func (state *MarketActor) listSnapshot() *domain.PriceList {
	if state.list == nil {
		return nil
	}
	clone := domain.NewPriceList(state.list.Items(), state.list.PrimarySource, state.list.FailbackSource)
	clone.ActiveSource = state.list.ActiveSource
	return clone
}
