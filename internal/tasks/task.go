// Package tasks processes scheduled follow-up tasks. Every task is claimed by
// a conditional write before any side effect runs.
package tasks

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type names a scheduled task handler.
type Type string

const (
	TypeFollowUpEmail    Type = "follow_up_email"
	TypeFollowUpReminder Type = "follow_up_reminder"
)

// Status is the processing state of a scheduled task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultMaxAttempts bounds retries of transient failures.
const DefaultMaxAttempts = 5

// ErrNotFound is returned by stores for missing tasks.
var ErrNotFound = errors.New("scheduled task not found")

type Task struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenantId"`
	ContactID    uuid.UUID       `json:"contactId"`
	Type         Type            `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	ScheduledFor time.Time       `json:"scheduledFor"`
	Status       Status          `json:"status"`
	Attempts     int             `json:"attempts"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// FollowUpPayload is the payload of both follow-up task types. Subject and
// Body are text templates over the contact's fields.
type FollowUpPayload struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
	Note    string `json:"note,omitempty"`
}

// DecodePayload parses the task payload. An empty payload decodes to zero.
func (t Task) DecodePayload() (FollowUpPayload, error) {
	var p FollowUpPayload
	if len(t.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return FollowUpPayload{}, err
	}
	return p, nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
