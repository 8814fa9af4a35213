package blocksync

import (
	"fmt"
	"time"

	"github.com/ethersync/ethersync/types"
)

// HeaderValidator runs per-header checks on headers received from remote
// peers, before they enter the reassembly queue. Consensus-level validation
// (difficulty, signatures, gas rules) lives with the importer; the injected
// validator only has to be cheap and stateless.
type HeaderValidator interface {
	Validate(header *types.Header) error
}

// ValidatorFunc adapts a plain function to the HeaderValidator interface.
type ValidatorFunc func(*types.Header) error

func (f ValidatorFunc) Validate(header *types.Header) error { return f(header) }

// DefaultClockDrift is how far in the future a header timestamp may lie
// before the header is considered invalid.
const DefaultClockDrift = 15 * time.Second

// BasicHeaderValidator checks the stateless well-formedness of a header:
// field shapes and a bounded clock drift.
type BasicHeaderValidator struct {
	ClockDrift time.Duration
}

// NewBasicHeaderValidator returns a validator with the default clock drift.
func NewBasicHeaderValidator() *BasicHeaderValidator {
	return &BasicHeaderValidator{ClockDrift: DefaultClockDrift}
}

func (v *BasicHeaderValidator) Validate(header *types.Header) error {
	if err := header.ValidateBasic(); err != nil {
		return err
	}
	if drift := time.Until(header.Time); drift > v.ClockDrift {
		return fmt.Errorf("header %v is %v in the future", header.ShortDescr(), drift)
	}
	return nil
}
