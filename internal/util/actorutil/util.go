package actorutil

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// DelayToNextFire returns the time until a cron trigger fires next, relative
// to now.
func DelayToNextFire(trigger *quartz.CronTrigger, now time.Time) (time.Duration, error) {
	next, err := trigger.NextFireTime(now.UnixNano())
	if err != nil {
		return 0, err
	}
	return time.Duration(next - now.UnixNano()), nil
}

func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	if cmd.DeviceId == domain.SWITCH_ID_FORCE_CHARGE {
		return domain.DecisionForceChargeRequest{
			Enable: cmd.Payload == "on",
		}, nil
	} else if cmd.DeviceId == domain.SWITCH_ID_FORCE_DISCHARGE {
		return domain.DecisionForceDischargeRequest{
			Enable: cmd.Payload == "on",
		}, nil
	} else if cmd.DeviceId == domain.INPUT_NUMBER_ID_MAX_DISCHARGE_POWER {
		value, err := strconv.ParseUint(cmd.Payload, 10, 32)
		if err != nil {
			return nil, err
		}
		return domain.SetMaxDischargePowerRequest{
			Watts: uint(value),
		}, nil
	} else if cmd.DeviceId == domain.INPUT_NUMBER_ID_GRID_CONSUMED_HOUR {
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil || value < 0 {
			return nil, err
		}
		return domain.DecisionReportConsumptionRequest{
			EnergyWh: value,
		}, nil
	} else if cmd.DeviceId == domain.INPUT_NUMBER_ID_SOLAR_PRODUCED_DAY {
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil || value < 0 {
			return nil, err
		}
		return domain.SolarReportProductionRequest{
			EnergyWh: value,
		}, nil
	}
	return nil, nil
}
