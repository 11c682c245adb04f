package sequences

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_engine_backend/internal/contacts"
	"crm_engine_backend/internal/email"
	"crm_engine_backend/internal/events"
	"crm_engine_backend/internal/shared/batch"
	"crm_engine_backend/platform/apperr"
	"crm_engine_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	opEnroll         = "sequences.engine.enroll"
	opCreateSequence = "sequences.engine.create_sequence"
)

// ErrNotFound is returned by stores for missing sequences or enrollments.
var ErrNotFound = errors.New("sequence not found")

// Recipient is the contact data needed to address and personalize a step.
type Recipient struct {
	Email     string
	FirstName string
	LastName  string
	Company   string
}

// DueEnrollment is an enrollment selected for advancement together with its
// sequence definition and recipient.
type DueEnrollment struct {
	Enrollment Enrollment
	Sequence   Sequence
	Recipient  Recipient
}

// Store persists sequences and enrollments.
type Store interface {
	ListDue(ctx context.Context, kind Kind, now time.Time, limit int) ([]DueEnrollment, error)
	// ApplyTransition writes t only if the enrollment is still active, still at
	// e.CurrentStep and still due at now. It reports whether the write happened.
	ApplyTransition(ctx context.Context, e Enrollment, t Transition, now time.Time) (bool, error)
	GetSequence(ctx context.Context, id uuid.UUID) (Sequence, error)
	CreateSequence(ctx context.Context, seq Sequence) (Sequence, error)
	CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
}

// ContactStore is the contact access the engine needs.
type ContactStore interface {
	Get(ctx context.Context, id uuid.UUID) (contacts.Contact, error)
	MarkDead(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
}

type Engine struct {
	store    Store
	contacts ContactStore
	sender   email.Sender
	eventBus events.Bus
	log      *logger.Logger
	workers  int
}

func NewEngine(store Store, contactStore ContactStore, sender email.Sender, eventBus events.Bus, log *logger.Logger, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		store:    store,
		contacts: contactStore,
		sender:   sender,
		eventBus: eventBus,
		log:      log,
		workers:  workers,
	}
}

// RunDue advances up to limit due enrollments of sequences of the given kind.
// Each advancement is claimed with a conditional write; an enrollment claimed
// by a concurrent run is counted as skipped and sends nothing.
func (e *Engine) RunDue(ctx context.Context, kind Kind, now time.Time, limit int) batch.Result {
	due, err := e.store.ListDue(ctx, kind, now, limit)
	if err != nil {
		e.log.AutomationItemFailed(string(kind), "list", err)
		return batch.Result{Errors: 1}
	}

	return batch.Run(ctx, due, e.workers, func(ctx context.Context, d DueEnrollment) batch.Outcome {
		return e.advanceOne(ctx, kind, d, now)
	})
}

func (e *Engine) advanceOne(ctx context.Context, kind Kind, d DueEnrollment, now time.Time) batch.Outcome {
	itemID := d.Enrollment.ID.String()
	t := Advance(d.Enrollment, d.Sequence, now)

	// Dead is written before the enrollment closes so a failed write leaves it due.
	if kind == KindBreakup && t.Completed() && t.CurrentStep >= BreakupStepCount {
		if err := e.markDead(ctx, d); err != nil {
			e.log.AutomationItemFailed(string(kind), itemID, err)
			return batch.Failed
		}
	}

	won, err := e.store.ApplyTransition(ctx, d.Enrollment, t, now)
	if err != nil {
		e.log.AutomationItemFailed(string(kind), itemID, err)
		return batch.Failed
	}
	if !won {
		return batch.Skipped
	}

	outcome := batch.Processed
	if t.Send {
		if err := e.sendStep(ctx, d, t); err != nil {
			// The step stays consumed so a broken address cannot loop forever.
			e.log.AutomationItemFailed(string(kind), itemID, err)
			outcome = batch.Failed
		}
	}

	return outcome
}

func (e *Engine) sendStep(ctx context.Context, d DueEnrollment, t Transition) error {
	data := map[string]string{
		"FirstName": d.Recipient.FirstName,
		"LastName":  d.Recipient.LastName,
		"Company":   d.Recipient.Company,
	}
	subject, err := email.Personalize(t.Step.Payload.Subject, data)
	if err != nil {
		return err
	}
	body, err := email.Personalize(t.Step.Payload.Body, data)
	if err != nil {
		return err
	}

	_, err = e.sender.Send(ctx, email.Message{
		To:      d.Recipient.Email,
		ToName:  d.Recipient.FirstName + " " + d.Recipient.LastName,
		Subject: subject,
		Body:    body,
		Tags: map[string]string{
			"sequenceId":   d.Sequence.ID.String(),
			"enrollmentId": d.Enrollment.ID.String(),
			"step":         fmt.Sprint(t.StepIndex),
		},
	})
	return err
}

func (e *Engine) markDead(ctx context.Context, d DueEnrollment) error {
	changed, err := e.contacts.MarkDead(ctx, d.Enrollment.TenantID, d.Enrollment.ContactID)
	if err != nil {
		return err
	}
	if !changed || e.eventBus == nil {
		return nil
	}
	e.eventBus.Publish(ctx, events.ContactMarkedDead{
		BaseEvent:   events.NewBaseEvent(),
		TenantID:    d.Enrollment.TenantID,
		ContactID:   d.Enrollment.ContactID,
		ContactName: displayName(d.Recipient),
	})
	return nil
}

// Enroll starts a contact on a sequence. The first step becomes due after its
// own delay.
func (e *Engine) Enroll(ctx context.Context, tenantID, contactID, sequenceID uuid.UUID, now time.Time) (Enrollment, error) {
	if tenantID == uuid.Nil {
		return Enrollment{}, apperr.Unauthorized("tenant is required").WithOp(opEnroll)
	}

	seq, err := e.store.GetSequence(ctx, sequenceID)
	if errors.Is(err, ErrNotFound) {
		return Enrollment{}, apperr.NotFound("sequence not found").WithOp(opEnroll)
	}
	if err != nil {
		return Enrollment{}, apperr.Wrap(apperr.KindInternal, "failed to load sequence", err).WithOp(opEnroll)
	}
	if seq.TenantID != tenantID {
		return Enrollment{}, apperr.CrossTenant("sequence belongs to another tenant").WithOp(opEnroll)
	}
	if err := seq.Validate(); err != nil {
		return Enrollment{}, apperr.Validation(err.Error()).WithOp(opEnroll)
	}

	contact, err := e.contacts.Get(ctx, contactID)
	if err != nil {
		if errors.Is(err, contacts.ErrNotFound) {
			return Enrollment{}, apperr.NotFound("contact not found").WithOp(opEnroll)
		}
		return Enrollment{}, apperr.Wrap(apperr.KindInternal, "failed to load contact", err).WithOp(opEnroll)
	}
	if contact.TenantID != tenantID {
		return Enrollment{}, apperr.CrossTenant("contact belongs to another tenant").WithOp(opEnroll)
	}

	first := FirstStepAt(seq, now)
	created, err := e.store.CreateEnrollment(ctx, Enrollment{
		TenantID:    tenantID,
		ContactID:   contactID,
		SequenceID:  sequenceID,
		CurrentStep: 0,
		Status:      StatusActive,
		NextStepAt:  &first,
	})
	if err != nil {
		return Enrollment{}, apperr.Wrap(apperr.KindInternal, "failed to create enrollment", err).WithOp(opEnroll)
	}
	return created, nil
}

// CreateSequence validates and stores a sequence definition.
func (e *Engine) CreateSequence(ctx context.Context, seq Sequence) (Sequence, error) {
	if seq.TenantID == uuid.Nil {
		return Sequence{}, apperr.Unauthorized("tenant is required").WithOp(opCreateSequence)
	}
	if err := seq.Validate(); err != nil {
		return Sequence{}, apperr.Validation(err.Error()).WithOp(opCreateSequence)
	}
	created, err := e.store.CreateSequence(ctx, seq)
	if err != nil {
		return Sequence{}, apperr.Wrap(apperr.KindInternal, "failed to create sequence", err).WithOp(opCreateSequence)
	}
	return created, nil
}

func displayName(r Recipient) string {
	c := contacts.Contact{FirstName: r.FirstName, LastName: r.LastName}
	if r.Email != "" {
		addr := r.Email
		c.Email = &addr
	}
	return c.DisplayName()
}
