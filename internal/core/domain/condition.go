package domain

// OperationMode is one of the two independent per-tick decisions.
type OperationMode string

const (
	ModeCharging    OperationMode = "charging"
	ModeDischarging OperationMode = "discharging"
)

func (m OperationMode) Valid() bool {
	return m == ModeCharging || m == ModeDischarging
}

// ConditionResult is the outcome of one mode's evaluation. Condition doubles
// as the human-readable justification for logs.
type ConditionResult struct {
	Execute   bool
	Condition string
}
