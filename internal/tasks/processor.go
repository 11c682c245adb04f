package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_engine_backend/internal/contacts"
	contactrepo "crm_engine_backend/internal/contacts/repository"
	"crm_engine_backend/internal/email"
	"crm_engine_backend/internal/notification/inapp"
	"crm_engine_backend/internal/shared/batch"
	"crm_engine_backend/platform/logger"

	"github.com/google/uuid"
)

const passFollowUps = "followUps"

// Store persists scheduled tasks. Claim is the only transition out of pending.
type Store interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]Task, error)
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, now time.Time) error
	Fail(ctx context.Context, id uuid.UUID, message string, now time.Time) error
	Release(ctx context.Context, id uuid.UUID) error
}

// ContactStore is the contact access follow-ups need.
type ContactStore interface {
	Get(ctx context.Context, id uuid.UUID) (contacts.Contact, error)
	TouchLastContact(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error
	CreateActivity(ctx context.Context, p contactrepo.CreateActivityParams) (contacts.Activity, error)
}

// Notifier fans a notice out to every member of a tenant.
type Notifier interface {
	NotifyTenant(ctx context.Context, n inapp.Notice) (int, error)
}

type Processor struct {
	store       Store
	contacts    ContactStore
	sender      email.Sender
	notifier    Notifier
	log         *logger.Logger
	workers     int
	maxAttempts int
}

func NewProcessor(store Store, contactStore ContactStore, sender email.Sender, notifier Notifier, log *logger.Logger, workers, maxAttempts int) *Processor {
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Processor{
		store:       store,
		contacts:    contactStore,
		sender:      sender,
		notifier:    notifier,
		log:         log,
		workers:     workers,
		maxAttempts: maxAttempts,
	}
}

// RunDue processes up to limit pending tasks that are due at now.
func (p *Processor) RunDue(ctx context.Context, now time.Time, limit int) batch.Result {
	due, err := p.store.ListDue(ctx, now, limit)
	if err != nil {
		p.log.AutomationItemFailed(passFollowUps, "list", err)
		return batch.Result{Errors: 1}
	}

	return batch.Run(ctx, due, p.workers, func(ctx context.Context, t Task) batch.Outcome {
		return p.processOne(ctx, t, now)
	})
}

func (p *Processor) processOne(ctx context.Context, t Task, now time.Time) batch.Outcome {
	itemID := t.ID.String()

	won, err := p.store.Claim(ctx, t.ID, now)
	if err != nil {
		p.log.AutomationItemFailed(passFollowUps, itemID, err)
		return batch.Failed
	}
	if !won {
		return batch.Skipped
	}
	attempts := t.Attempts + 1

	execErr := p.execute(ctx, t, now)
	if execErr == nil {
		if err := p.store.Complete(ctx, t.ID, now); err != nil {
			p.log.AutomationItemFailed(passFollowUps, itemID, err)
			return batch.Failed
		}
		return batch.Processed
	}

	p.log.AutomationItemFailed(passFollowUps, itemID, execErr)
	if IsPermanent(execErr) || attempts >= p.maxAttempts {
		if err := p.store.Fail(ctx, t.ID, execErr.Error(), now); err != nil {
			p.log.AutomationItemFailed(passFollowUps, itemID, err)
		}
		return batch.Failed
	}
	if err := p.store.Release(ctx, t.ID); err != nil {
		p.log.AutomationItemFailed(passFollowUps, itemID, err)
	}
	return batch.Failed
}

func (p *Processor) execute(ctx context.Context, t Task, now time.Time) error {
	payload, err := t.DecodePayload()
	if err != nil {
		return Permanent(fmt.Errorf("decode payload: %w", err))
	}

	contact, err := p.contacts.Get(ctx, t.ContactID)
	if errors.Is(err, contacts.ErrNotFound) {
		return Permanent(err)
	}
	if err != nil {
		return err
	}
	if contact.TenantID != t.TenantID {
		return Permanent(contacts.ErrNotFound)
	}

	switch t.Type {
	case TypeFollowUpEmail:
		return p.sendFollowUpEmail(ctx, t, contact, payload, now)
	case TypeFollowUpReminder:
		return p.remind(ctx, t, contact, payload)
	default:
		return Permanent(fmt.Errorf("unknown task type %q", t.Type))
	}
}

func (p *Processor) sendFollowUpEmail(ctx context.Context, t Task, c contacts.Contact, payload FollowUpPayload, now time.Time) error {
	if c.IsSkeletal() {
		return Permanent(email.ErrNoRecipient)
	}

	data := map[string]string{
		"FirstName": c.FirstName,
		"LastName":  c.LastName,
		"Company":   c.Company,
	}
	subject, err := email.Personalize(payload.Subject, data)
	if err != nil {
		return Permanent(err)
	}
	body, err := email.Personalize(payload.Body, data)
	if err != nil {
		return Permanent(err)
	}

	ack, err := p.sender.Send(ctx, email.Message{
		To:      c.EmailAddress(),
		ToName:  c.DisplayName(),
		Subject: subject,
		Body:    body,
		Tags:    map[string]string{"taskId": t.ID.String()},
	})
	if errors.Is(err, email.ErrNoRecipient) {
		return Permanent(err)
	}
	if err != nil {
		return err
	}

	// The email is out; bookkeeping failures below must not cause a resend.
	if err := p.contacts.TouchLastContact(ctx, t.TenantID, c.ID, now); err != nil {
		p.log.AutomationItemFailed(passFollowUps, t.ID.String(), err)
	}
	if _, err := p.contacts.CreateActivity(ctx, contactrepo.CreateActivityParams{
		TenantID:    t.TenantID,
		ContactID:   c.ID,
		Type:        contacts.ActivityEmailSent,
		Title:       subject,
		Description: "Follow-up email sent",
		Metadata: map[string]any{
			"taskId":    t.ID.String(),
			"messageId": ack.MessageID,
			"provider":  ack.Provider,
		},
	}); err != nil {
		p.log.AutomationItemFailed(passFollowUps, t.ID.String(), err)
	}
	return nil
}

func (p *Processor) remind(ctx context.Context, t Task, c contacts.Contact, payload FollowUpPayload) error {
	if p.notifier == nil {
		return nil
	}
	content := payload.Note
	if content == "" {
		content = fmt.Sprintf("Follow up with %s.", c.DisplayName())
	}
	contactID := c.ID
	_, err := p.notifier.NotifyTenant(ctx, inapp.Notice{
		TenantID:  t.TenantID,
		ContactID: &contactID,
		Title:     "Follow-up reminder: " + c.DisplayName(),
		Content:   content,
		Category:  "info",
	})
	return err
}
