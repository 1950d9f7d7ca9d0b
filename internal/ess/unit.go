package ess

import (
	"context"

	"github.com/berfenger/spotmarket2mqtt/internal/core/port"
)

// Unit is the full ESS contract the actor layer drives: the core actuation
// and telemetry port plus connection lifecycle and the runtime-adjustable
// discharge limit.
type Unit interface {
	port.EnergyStorage
	Connect(ctx context.Context) error
	Disconnect()
	SetMaxDischargePower(watts int)
}

var _ Unit = (*VictronUnit)(nil)

// TestUnit is an in-memory Unit for actor tests.
type TestUnit struct {
	Telemetry port.BatteryTelemetry

	ChargeOn          *bool
	DischargeOn       *bool
	MaxDischargePower int
	ReadErr           error
}

var _ Unit = (*TestUnit)(nil)

func (u *TestUnit) Connect(ctx context.Context) error {
	return nil
}

func (u *TestUnit) Disconnect() {
}

func (u *TestUnit) SetCharge(ctx context.Context, on bool) error {
	u.ChargeOn = &on
	return nil
}

func (u *TestUnit) SetDischarge(ctx context.Context, on bool) error {
	u.DischargeOn = &on
	return nil
}

func (u *TestUnit) SetMaxDischargePower(watts int) {
	u.MaxDischargePower = watts
}

func (u *TestUnit) ReadTelemetry(ctx context.Context) (*port.BatteryTelemetry, error) {
	if u.ReadErr != nil {
		return nil, u.ReadErr
	}
	t := u.Telemetry
	return &t, nil
}
