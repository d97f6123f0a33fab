package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        Step
		to          Step
		shouldAllow bool
	}{
		{"date to time", StepSelectingDate, StepSelectingTime, true},
		{"time to details", StepSelectingTime, StepEnteringDetails, true},
		{"details to confirmed", StepEnteringDetails, StepConfirmed, true},
		{"reselect date from time", StepSelectingTime, StepSelectingTime, true},
		{"reselect time from details", StepEnteringDetails, StepEnteringDetails, true},
		// Back transitions
		{"details back to time", StepEnteringDetails, StepSelectingTime, true},
		{"time back to date", StepSelectingTime, StepSelectingDate, true},
		// Abandon
		{"abandon from date", StepSelectingDate, StepCancelled, true},
		{"abandon from details", StepEnteringDetails, StepCancelled, true},
		// Invalid transitions
		{"date to details", StepSelectingDate, StepEnteringDetails, false},
		{"date to confirmed", StepSelectingDate, StepConfirmed, false},
		{"time to confirmed", StepSelectingTime, StepConfirmed, false},
		{"confirmed to cancelled", StepConfirmed, StepCancelled, false},
		{"cancelled to date", StepCancelled, StepSelectingDate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldAllow, fsm.CanTransition(tt.from, tt.to),
				"transition %s -> %s", tt.from, tt.to)
		})
	}
}

func TestStep_IsTerminal(t *testing.T) {
	assert.True(t, StepConfirmed.IsTerminal())
	assert.True(t, StepCancelled.IsTerminal())
	assert.False(t, StepSelectingDate.IsTerminal())
	assert.False(t, StepEnteringDetails.IsTerminal())
}
