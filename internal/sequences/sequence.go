// Package sequences drives timed outreach sequences (drip and breakup) for
// enrolled contacts.
package sequences

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind selects which automation pass owns a sequence.
type Kind string

const (
	KindDrip    Kind = "drip"
	KindBreakup Kind = "breakup"
)

// BreakupStepCount is the fixed length of a breakup sequence. Finishing the
// last step marks the contact Dead.
const BreakupStepCount = 3

// EnrollmentStatus is the state of one contact's progress through a sequence.
type EnrollmentStatus string

const (
	StatusActive    EnrollmentStatus = "active"
	StatusCompleted EnrollmentStatus = "completed"
)

// Payload is the message sent for one step. Subject and Body may contain
// {{.FirstName}}-style placeholders.
type Payload struct {
	Subject string `json:"subject" yaml:"subject"`
	Body    string `json:"body" yaml:"body"`
}

// Step is one timed message in a sequence.
type Step struct {
	DelayDays int     `json:"delayDays" yaml:"delayDays"`
	Payload   Payload `json:"payload" yaml:"payload"`
}

// Delay is the step delay as a duration.
func (s Step) Delay() time.Duration {
	return time.Duration(s.DelayDays) * 24 * time.Hour
}

// Sequence is an ordered list of steps owned by a tenant.
type Sequence struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenantId"`
	Name     string    `json:"name" yaml:"name"`
	Kind     Kind      `json:"kind" yaml:"kind"`
	Steps    []Step    `json:"steps" yaml:"steps"`
}

var (
	ErrNoSteps          = errors.New("sequence has no steps")
	ErrNegativeDelay    = errors.New("step delay cannot be negative")
	ErrUnknownKind      = errors.New("unknown sequence kind")
	ErrBreakupStepCount = fmt.Errorf("breakup sequence must have exactly %d steps", BreakupStepCount)
	ErrEmptyStepSubject = errors.New("step subject is required")
)

// Validate checks the structural rules for a sequence definition.
func (s Sequence) Validate() error {
	switch s.Kind {
	case KindDrip, KindBreakup:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	if len(s.Steps) == 0 {
		return ErrNoSteps
	}
	if s.Kind == KindBreakup && len(s.Steps) != BreakupStepCount {
		return ErrBreakupStepCount
	}
	for i, step := range s.Steps {
		if step.DelayDays < 0 {
			return fmt.Errorf("step %d: %w", i, ErrNegativeDelay)
		}
		if strings.TrimSpace(step.Payload.Subject) == "" {
			return fmt.Errorf("step %d: %w", i, ErrEmptyStepSubject)
		}
	}
	return nil
}

// Enrollment links one contact to one sequence.
type Enrollment struct {
	ID          uuid.UUID        `json:"id"`
	TenantID    uuid.UUID        `json:"tenantId"`
	ContactID   uuid.UUID        `json:"contactId"`
	SequenceID  uuid.UUID        `json:"sequenceId"`
	CurrentStep int              `json:"currentStep"`
	Status      EnrollmentStatus `json:"status"`
	NextStepAt  *time.Time       `json:"nextStepAt,omitempty"`
	LastSentAt  *time.Time       `json:"lastSentAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}
