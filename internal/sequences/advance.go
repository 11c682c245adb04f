package sequences

import "time"

// Transition is the outcome of advancing an enrollment once.
type Transition struct {
	// Send is set when a step message must go out; Step is that step.
	Send      bool
	Step      Step
	StepIndex int

	CurrentStep int
	Status      EnrollmentStatus
	NextStepAt  *time.Time
	LastSentAt  *time.Time
}

// Completed reports whether the enrollment ends in this transition.
func (t Transition) Completed() bool {
	return t.Status == StatusCompleted
}

// Advance computes the next state of e. It has no side effects.
//
// When the enrollment has steps left, the current step is sent, the pointer
// moves forward and the next step is scheduled from now. Sending the final
// step completes the enrollment in the same transition, so a finished
// enrollment always has next_step_at unset. There is deliberately no extra
// call between the last send and completion.
func Advance(e Enrollment, seq Sequence, now time.Time) Transition {
	if e.CurrentStep >= len(seq.Steps) {
		return Transition{
			CurrentStep: len(seq.Steps),
			Status:      StatusCompleted,
			LastSentAt:  e.LastSentAt,
		}
	}

	step := seq.Steps[e.CurrentStep]
	next := e.CurrentStep + 1
	sentAt := now

	t := Transition{
		Send:        true,
		Step:        step,
		StepIndex:   e.CurrentStep,
		CurrentStep: next,
		LastSentAt:  &sentAt,
	}

	if next < len(seq.Steps) {
		at := now.Add(seq.Steps[next].Delay())
		t.Status = StatusActive
		t.NextStepAt = &at
	} else {
		t.Status = StatusCompleted
	}
	return t
}

// FirstStepAt is when a new enrollment's first step becomes due.
func FirstStepAt(seq Sequence, enrolledAt time.Time) time.Time {
	if len(seq.Steps) == 0 {
		return enrolledAt
	}
	return enrolledAt.Add(seq.Steps[0].Delay())
}
