// Package contacts holds the contact record shared by the identity and
// lifecycle services. Persistence lives in contacts/repository.
package contacts

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when a contact does not exist.
var ErrNotFound = errors.New("contact not found")

// Status is the lifecycle status of a contact.
type Status string

const (
	StatusNew         Status = "New"
	StatusHot         Status = "Hot"
	StatusWithering   Status = "Withering"
	StatusDead        Status = "Dead"
	StatusNeedsUpdate Status = "Needs Update"
	StatusRetouch     Status = "Retouch"
	StatusRecapture   Status = "Recapture"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusHot, StatusWithering, StatusDead, StatusNeedsUpdate, StatusRetouch, StatusRecapture:
		return true
	}
	return false
}

// Address is the postal address of a contact.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Contact is a person tracked by a tenant.
type Contact struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         uuid.UUID  `json:"tenantId"`
	Email            *string    `json:"email,omitempty"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	Company          string     `json:"company"`
	Phone            string     `json:"phone"`
	JobTitle         string     `json:"jobTitle"`
	Industry         string     `json:"industry"`
	Address          Address    `json:"address"`
	Demeanor         string     `json:"demeanor"`
	PreferredChannel string     `json:"preferredChannel"`
	Source           string     `json:"source"`
	Interests        []string   `json:"interests"`
	Hobbies          []string   `json:"hobbies"`
	OutreachChannels []string   `json:"outreachChannels"`
	Notes            string     `json:"notes"`
	EngagementScore  float64    `json:"engagementScore"`
	Status           Status     `json:"status"`
	LastContactDate  *time.Time `json:"lastContactDate,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// EmailAddress returns the trimmed email or "" when none is on file.
func (c Contact) EmailAddress() string {
	if c.Email == nil {
		return ""
	}
	return strings.TrimSpace(*c.Email)
}

// IsSkeletal reports whether the contact has no email on file.
func (c Contact) IsSkeletal() bool {
	return c.EmailAddress() == ""
}

// DisplayName returns "First Last", falling back to the email address.
func (c Contact) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
	if name != "" {
		return name
	}
	if email := c.EmailAddress(); email != "" {
		return email
	}
	return c.ID.String()
}

// LastTouched is the moment staleness is measured from.
func (c Contact) LastTouched() time.Time {
	if c.LastContactDate != nil {
		return *c.LastContactDate
	}
	return c.CreatedAt
}

// Activity types written to the audit log.
const (
	ActivityContactMerged  = "contact_merged"
	ActivityIntakeReceived = "intake_received"
	ActivityEmailSent      = "email_sent"
	ActivityStatusChanged  = "status_changed"
)

// Activity is an audit log entry attached to a contact.
type Activity struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenantId"`
	ContactID   uuid.UUID      `json:"contactId"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
}
