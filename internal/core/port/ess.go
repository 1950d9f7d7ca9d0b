package port

import (
	"context"

	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
)

// BatteryTelemetry is the raw battery reading from the ESS unit. Nil fields
// were not delivered by the unit.
type BatteryTelemetry struct {
	Soc             *float64 // %
	CapacityAh      *float64
	MinimumSocLimit *float64 // %
	Voltage         *float64 // V
}

// EnergyStorage is the actuation and telemetry port of an ESS unit.
type EnergyStorage interface {
	SetCharge(ctx context.Context, on bool) error
	SetDischarge(ctx context.Context, on bool) error
	ReadTelemetry(ctx context.Context) (*BatteryTelemetry, error)
}

// MarketSource loads spot-market price slots.
type MarketSource interface {
	Name() string
	LoadPriceItems(ctx context.Context, useSecondDay bool) ([]domain.PriceItem, error)
}

// StatsReader is the read side of the rolling-statistics store used by the
// core. Values must be treated as an immutable read for the tick.
type StatsReader interface {
	Get(group, key string) (float64, bool)
}

// StatsStore extends StatsReader with the mutations used by the background
// collaborators. Implementations serialize their own writes.
type StatsStore interface {
	StatsReader
	Put(group, key string, value float64)
	// UpdatePercent folds value into a bounded running average and returns
	// the new average.
	UpdatePercent(group, key string, value float64) float64
}
