package form

import "fmt"

// Phase is the lifecycle state of a form.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseEditing    Phase = "editing"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
	PhaseClosed     Phase = "closed"
)

// transitions lists the phases reachable from each phase. Closed is
// terminal.
var transitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseEditing, PhaseClosed},
	PhaseEditing:    {PhaseSubmitting, PhaseClosed},
	PhaseSubmitting: {PhaseSuccess, PhaseError},
	PhaseSuccess:    {PhaseClosed},
	PhaseError:      {PhaseEditing},
	PhaseClosed:     {},
}

// validateTransition checks whether moving from current to target is
// allowed.
func validateTransition(current, target Phase) error {
	allowed, ok := transitions[current]
	if !ok {
		return fmt.Errorf("unknown form phase: %s", current)
	}
	for _, p := range allowed {
		if p == target {
			return nil
		}
	}
	return fmt.Errorf("transition from %q to %q is not allowed", current, target)
}
