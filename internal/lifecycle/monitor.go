// Package lifecycle detects disengaged contacts and moves them to Withering.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"crm_engine_backend/internal/contacts"
	"crm_engine_backend/internal/notification/inapp"
	"crm_engine_backend/internal/shared/batch"
	"crm_engine_backend/platform/apperr"
	"crm_engine_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	passWithering = "withering"

	// DefaultThresholdDays is how long a contact may go untouched.
	DefaultThresholdDays = 14

	sweepPageSize = 200
)

// ContactStore selects and flips stale contacts.
type ContactStore interface {
	ListStale(ctx context.Context, tenantID *uuid.UUID, cutoff time.Time, limit int) ([]contacts.Contact, error)
	MarkWithering(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error)
}

// Notifier fans a notice out to every member of a tenant.
type Notifier interface {
	NotifyTenant(ctx context.Context, n inapp.Notice) (int, error)
}

type Monitor struct {
	contacts      ContactStore
	notifier      Notifier
	log           *logger.Logger
	workers       int
	thresholdDays int
}

func NewMonitor(contactStore ContactStore, notifier Notifier, log *logger.Logger, workers, thresholdDays int) *Monitor {
	if workers < 1 {
		workers = 1
	}
	if thresholdDays < 1 {
		thresholdDays = DefaultThresholdDays
	}
	return &Monitor{
		contacts:      contactStore,
		notifier:      notifier,
		log:           log,
		workers:       workers,
		thresholdDays: thresholdDays,
	}
}

// Cutoff is the instant before which a contact counts as stale.
func Cutoff(now time.Time, thresholdDays int) time.Time {
	return now.AddDate(0, 0, -thresholdDays)
}

// SweepWithering flips every stale contact of one tenant and returns how many
// flips this call won. Running it again without new staleness returns 0.
func (m *Monitor) SweepWithering(ctx context.Context, tenantID uuid.UUID, thresholdDays int, now time.Time) (int, error) {
	if tenantID == uuid.Nil {
		return 0, apperr.Unauthorized("tenant is required").WithOp("lifecycle.monitor.sweep_withering")
	}
	if thresholdDays < 1 {
		thresholdDays = DefaultThresholdDays
	}
	cutoff := Cutoff(now, thresholdDays)

	flipped := 0
	for {
		candidates, err := m.contacts.ListStale(ctx, &tenantID, cutoff, sweepPageSize)
		if err != nil {
			return flipped, fmt.Errorf("list stale contacts: %w", err)
		}
		res := m.flipAll(ctx, candidates, cutoff)
		flipped += res.Processed

		// Processed and Skipped rows are no longer stale; failed rows are, so a
		// page where nothing changed would be returned again.
		if len(candidates) < sweepPageSize || res.Processed+res.Skipped == 0 {
			return flipped, nil
		}
	}
}

// SweepDue flips up to limit stale contacts across all tenants using the
// configured threshold.
func (m *Monitor) SweepDue(ctx context.Context, now time.Time, limit int) batch.Result {
	cutoff := Cutoff(now, m.thresholdDays)
	candidates, err := m.contacts.ListStale(ctx, nil, cutoff, limit)
	if err != nil {
		m.log.AutomationItemFailed(passWithering, "list", err)
		return batch.Result{Errors: 1}
	}
	return m.flipAll(ctx, candidates, cutoff)
}

func (m *Monitor) flipAll(ctx context.Context, candidates []contacts.Contact, cutoff time.Time) batch.Result {
	return batch.Run(ctx, candidates, m.workers, func(ctx context.Context, c contacts.Contact) batch.Outcome {
		return m.flipOne(ctx, c, cutoff)
	})
}

func (m *Monitor) flipOne(ctx context.Context, c contacts.Contact, cutoff time.Time) batch.Outcome {
	won, err := m.contacts.MarkWithering(ctx, c.ID, cutoff)
	if err != nil {
		m.log.AutomationItemFailed(passWithering, c.ID.String(), err)
		return batch.Failed
	}
	if !won {
		return batch.Skipped
	}

	if m.notifier == nil {
		return batch.Processed
	}
	contactID := c.ID
	_, err = m.notifier.NotifyTenant(ctx, inapp.Notice{
		TenantID:  c.TenantID,
		ContactID: &contactID,
		Title:     "Contact is withering",
		Content:   fmt.Sprintf("%s has not been contacted since %s.", c.DisplayName(), c.LastTouched().Format("2006-01-02")),
		Category:  "warning",
	})
	if err != nil {
		// The flip is committed; only the announcement is lost.
		m.log.Warn("withering notification failed", "contactId", c.ID, "tenantId", c.TenantID, "error", err)
	}
	return batch.Processed
}
