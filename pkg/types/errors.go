package types

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrInvalidParameter matches any *ParameterError via errors.Is
var ErrInvalidParameter = errors.New("invalid parameter")

// ErrBalanceOverflow reports a batch whose balances left the float64 range
var ErrBalanceOverflow = errors.New("balance overflowed: lower the risk, reward/risk ratio or number of trades")

// ParameterError describes one rejected simulation input
type ParameterError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidParameter) succeed.
func (e *ParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// ParameterErrors flattens a validation error into its individual field errors.
func ParameterErrors(err error) []*ParameterError {
	var out []*ParameterError
	for _, e := range multierr.Errors(err) {
		var pe *ParameterError
		if errors.As(e, &pe) {
			out = append(out, pe)
		}
	}
	return out
}
