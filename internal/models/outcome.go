package models

import "fmt"

// Outcome is the binary resolution of a yes/no market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// OutcomeFromPrice derives the resolution outcome from a market's final yes
// price. A price of exactly 0.5 resolves NO.
func OutcomeFromPrice(yesPrice float64) Outcome {
	if yesPrice > 0.5 {
		return OutcomeYes
	}
	return OutcomeNo
}

// Opposite returns the other outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Validate checks that the outcome is one of the two known values.
func (o Outcome) Validate() error {
	if o != OutcomeYes && o != OutcomeNo {
		return fmt.Errorf("outcome must be %q or %q, got %q", OutcomeYes, OutcomeNo, string(o))
	}
	return nil
}
