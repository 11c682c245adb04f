// Package intake is the single entry point for inbound signals (forms, widget
// chats, lead searches). Every channel resolves its contact through the same
// matcher.
package intake

import (
	"context"
	"strings"
	"time"

	"crm_engine_backend/internal/contacts"
	contactrepo "crm_engine_backend/internal/contacts/repository"
	"crm_engine_backend/internal/events"
	"crm_engine_backend/internal/matching"
	"crm_engine_backend/platform/apperr"
	"crm_engine_backend/platform/logger"
	"crm_engine_backend/platform/metrics"
	"crm_engine_backend/platform/phone"
	"crm_engine_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	opReceive = "intake.service.receive"

	ChannelForm       = "form"
	ChannelChat       = "chat"
	ChannelLeadSearch = "lead_search"
	ChannelManual     = "manual"

	matchedByCreated = "created"
)

// Store is the contact persistence intake needs on top of matching.
type Store interface {
	matching.ContactFinder
	Create(ctx context.Context, p contactrepo.CreateParams) (contacts.Contact, error)
	Update(ctx context.Context, c contacts.Contact) error
	TouchLastContact(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error
	CreateActivity(ctx context.Context, p contactrepo.CreateActivityParams) (contacts.Activity, error)
}

// Signal is one inbound interaction.
type Signal struct {
	TenantID  uuid.UUID
	Channel   string
	Email     string
	FirstName string
	LastName  string
	Company   string
	Phone     string
	JobTitle  string
	Message   string
	Interests []string
}

// Result tells the caller which contact the signal landed on.
type Result struct {
	ContactID        uuid.UUID   `json:"contactId"`
	Created          bool        `json:"created"`
	MatchedBy        string      `json:"matchedBy"`
	NeedsMergeReview bool        `json:"needsMergeReview"`
	CandidateIDs     []uuid.UUID `json:"candidateIds"`
}

type Service struct {
	store    Store
	matcher  *matching.Service
	eventBus events.Bus
	log      *logger.Logger
}

func New(store Store, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		matcher:  matching.New(store),
		eventBus: eventBus,
		log:      log,
	}
}

// Receive matches the signal to a contact or creates one, fills empty fields
// on a match, moves last_contact_date forward and records an activity.
func (s *Service) Receive(ctx context.Context, sig Signal, now time.Time) (Result, error) {
	if sig.TenantID == uuid.Nil {
		return Result{}, apperr.Unauthorized("tenant is required").WithOp(opReceive)
	}
	sig = clean(sig)
	if sig.Email == "" && (sig.FirstName == "" || sig.LastName == "") {
		return Result{}, apperr.Validation("email or first and last name is required").WithOp(opReceive)
	}

	match, err := s.matcher.Resolve(ctx, sig.TenantID, sig.Email, sig.FirstName, sig.LastName)
	if err != nil {
		return Result{}, err
	}

	var contact contacts.Contact
	result := Result{MatchedBy: match.MatchedBy, CandidateIDs: match.CandidateIDs}
	if match.Found {
		contact, err = s.enrich(ctx, match.Contact, sig)
		if err != nil {
			return Result{}, err
		}
		if err := s.store.TouchLastContact(ctx, sig.TenantID, contact.ID, now); err != nil {
			return Result{}, apperr.Wrap(apperr.KindInternal, "failed to touch contact", err).WithOp(opReceive)
		}
		result.NeedsMergeReview = match.Ambiguous
	} else {
		contact, err = s.create(ctx, sig, now)
		if err != nil {
			return Result{}, err
		}
		result.Created = true
		result.MatchedBy = matchedByCreated
	}
	result.ContactID = contact.ID
	if result.CandidateIDs == nil {
		result.CandidateIDs = []uuid.UUID{}
	}

	if _, err := s.store.CreateActivity(ctx, contactrepo.CreateActivityParams{
		TenantID:    sig.TenantID,
		ContactID:   contact.ID,
		Type:        contacts.ActivityIntakeReceived,
		Title:       "Inbound " + sig.Channel,
		Description: sig.Message,
		Metadata: map[string]any{
			"channel":   sig.Channel,
			"matchedBy": result.MatchedBy,
			"created":   result.Created,
		},
	}); err != nil {
		s.log.Warn("intake activity not recorded", "error", err, "contactId", contact.ID)
	}

	if result.NeedsMergeReview && s.eventBus != nil {
		s.eventBus.Publish(ctx, events.IntakeMatchedAmbiguous{
			BaseEvent:    events.NewBaseEvent(),
			TenantID:     sig.TenantID,
			ContactID:    contact.ID,
			CandidateIDs: match.CandidateIDs,
			Email:        sig.Email,
		})
	}
	metrics.RecordIntake(result.MatchedBy)

	return result, nil
}

func (s *Service) create(ctx context.Context, sig Signal, now time.Time) (contacts.Contact, error) {
	var emailAddr *string
	if sig.Email != "" {
		e := sig.Email
		emailAddr = &e
	}
	touched := now
	c, err := s.store.Create(ctx, contactrepo.CreateParams{
		TenantID:        sig.TenantID,
		Email:           emailAddr,
		FirstName:       sig.FirstName,
		LastName:        sig.LastName,
		Company:         sig.Company,
		Phone:           sig.Phone,
		JobTitle:        sig.JobTitle,
		Source:          sig.Channel,
		Interests:       sig.Interests,
		LastContactDate: &touched,
	})
	if err != nil {
		return contacts.Contact{}, apperr.Wrap(apperr.KindInternal, "failed to create contact", err).WithOp(opReceive)
	}
	return c, nil
}

// enrich fills fields the matched contact is missing. Existing values win.
func (s *Service) enrich(ctx context.Context, c contacts.Contact, sig Signal) (contacts.Contact, error) {
	changed := false
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	if c.IsSkeletal() && sig.Email != "" {
		e := sig.Email
		c.Email = &e
		changed = true
	}
	fill(&c.FirstName, sig.FirstName)
	fill(&c.LastName, sig.LastName)
	fill(&c.Company, sig.Company)
	fill(&c.Phone, sig.Phone)
	fill(&c.JobTitle, sig.JobTitle)
	fill(&c.Source, sig.Channel)

	seen := make(map[string]struct{}, len(c.Interests))
	for _, v := range c.Interests {
		seen[contacts.NameKey(v)] = struct{}{}
	}
	for _, v := range sig.Interests {
		if _, ok := seen[contacts.NameKey(v)]; ok {
			continue
		}
		seen[contacts.NameKey(v)] = struct{}{}
		c.Interests = append(c.Interests, v)
		changed = true
	}

	if !changed {
		return c, nil
	}
	if err := s.store.Update(ctx, c); err != nil {
		return contacts.Contact{}, apperr.Wrap(apperr.KindInternal, "failed to update contact", err).WithOp(opReceive)
	}
	return c, nil
}

func clean(sig Signal) Signal {
	sig.Channel = strings.ToLower(strings.TrimSpace(sig.Channel))
	if sig.Channel == "" {
		sig.Channel = ChannelManual
	}
	sig.Email = strings.TrimSpace(sig.Email)
	sig.FirstName = sanitize.Text(sig.FirstName)
	sig.LastName = sanitize.Text(sig.LastName)
	sig.Company = sanitize.Text(sig.Company)
	sig.JobTitle = sanitize.Text(sig.JobTitle)
	sig.Message = sanitize.Multiline(sig.Message)

	sig.Phone = phone.NormalizeE164(sanitize.Text(sig.Phone))

	interests := make([]string, 0, len(sig.Interests))
	for _, v := range sig.Interests {
		if v = sanitize.Text(v); v != "" {
			interests = append(interests, v)
		}
	}
	sig.Interests = interests
	return sig
}
