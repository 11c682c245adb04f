package repository

import (
	"context"
	"time"

	"crm_engine_backend/internal/contacts"

	"github.com/google/uuid"
)

// ListStale returns contacts last touched before cutoff that are neither
// Withering nor Dead. A nil tenantID scans every tenant.
func (r *Repository) ListStale(ctx context.Context, tenantID *uuid.UUID, cutoff time.Time, limit int) ([]contacts.Contact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE ($1::uuid IS NULL OR tenant_id = $1)
			AND COALESCE(last_contact_date, created_at) < $2
			AND status NOT IN ('Withering', 'Dead')
		ORDER BY COALESCE(last_contact_date, created_at) ASC, id ASC
		LIMIT $3
	`, tenantID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectContacts(rows)
}

// MarkWithering flips a contact to Withering only if it still satisfies the
// staleness predicate. It reports whether this call made the change.
func (r *Repository) MarkWithering(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contacts
		SET status = 'Withering', updated_at = now()
		WHERE id = $1
			AND status NOT IN ('Withering', 'Dead')
			AND COALESCE(last_contact_date, created_at) < $2
	`, id, cutoff)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDead sets the contact to Dead unless it already is. It reports whether
// this call made the change.
func (r *Repository) MarkDead(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contacts
		SET status = 'Dead', updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status <> 'Dead'
	`, id, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
