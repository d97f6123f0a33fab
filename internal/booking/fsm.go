// Package booking drives the multi-step visit booking dialog.
package booking

// Step is the current step of a booking session.
type Step string

const (
	StepSelectingDate   Step = "selecting_date"
	StepSelectingTime   Step = "selecting_time"
	StepEnteringDetails Step = "entering_details"
	StepConfirmed       Step = "confirmed"
	StepCancelled       Step = "cancelled"
)

// IsTerminal reports whether no further transition leaves the step.
func (s Step) IsTerminal() bool {
	return s == StepConfirmed || s == StepCancelled
}

// FSM manages step transitions for the booking dialog.
type FSM struct {
	transitions map[Step][]Step
}

// NewFSM creates a new FSM with predefined transitions.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[Step][]Step{
			StepSelectingDate:   {StepSelectingTime, StepCancelled},
			StepSelectingTime:   {StepSelectingTime, StepEnteringDetails, StepSelectingDate, StepCancelled},
			StepEnteringDetails: {StepEnteringDetails, StepSelectingTime, StepConfirmed, StepCancelled},
			StepConfirmed:       {},
			StepCancelled:       {},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to Step) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// backTargets maps a step to the one Back returns to.
var backTargets = map[Step]Step{
	StepEnteringDetails: StepSelectingTime,
	StepSelectingTime:   StepSelectingDate,
}
