// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"github.com/google/uuid"

	"crm_engine_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Contact Identity Events
// =============================================================================

// ContactsMerged is published after source contacts were folded into a target.
// SourcesDeleted is false when the final delete step failed and cleanup is pending.
type ContactsMerged struct {
	BaseEvent
	TenantID       uuid.UUID   `json:"tenantId"`
	TargetID       uuid.UUID   `json:"targetContactId"`
	SourceIDs      []uuid.UUID `json:"sourceContactIds"`
	SourcesDeleted bool        `json:"sourcesDeleted"`
}

func (e ContactsMerged) EventName() string { return "contacts.merged" }

// IntakeMatchedAmbiguous is published when an inbound signal matched several
// contacts by email and needs a human merge review.
type IntakeMatchedAmbiguous struct {
	BaseEvent
	TenantID     uuid.UUID   `json:"tenantId"`
	ContactID    uuid.UUID   `json:"contactId"`
	CandidateIDs []uuid.UUID `json:"candidateIds"`
	Email        string      `json:"email"`
}

func (e IntakeMatchedAmbiguous) EventName() string { return "contacts.intake.ambiguous" }

// =============================================================================
// Lifecycle Events
// =============================================================================

// ContactMarkedDead is published once per contact, by whichever breakup run
// won the conditional status write.
type ContactMarkedDead struct {
	BaseEvent
	TenantID    uuid.UUID `json:"tenantId"`
	ContactID   uuid.UUID `json:"contactId"`
	ContactName string    `json:"contactName"`
}

func (e ContactMarkedDead) EventName() string { return "contacts.lifecycle.dead" }
