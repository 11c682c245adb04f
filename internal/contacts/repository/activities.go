package repository

import (
	"context"
	"encoding/json"

	"crm_engine_backend/internal/contacts"

	"github.com/google/uuid"
)

type CreateActivityParams struct {
	TenantID    uuid.UUID
	ContactID   uuid.UUID
	Type        string
	Title       string
	Description string
	Metadata    map[string]any
}

func (r *Repository) CreateActivity(ctx context.Context, p CreateActivityParams) (contacts.Activity, error) {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return contacts.Activity{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return contacts.Activity{}, err
	}

	a := contacts.Activity{
		ID:          id,
		TenantID:    p.TenantID,
		ContactID:   p.ContactID,
		Type:        p.Type,
		Title:       p.Title,
		Description: p.Description,
		Metadata:    metadata,
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO activities (id, tenant_id, contact_id, type, title, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, id, p.TenantID, p.ContactID, p.Type, p.Title, p.Description, metadataJSON).Scan(&a.CreatedAt)
	if err != nil {
		return contacts.Activity{}, err
	}
	return a, nil
}

// mergeMetadata is the shape of the metadata written by a contact_merged activity.
type mergeMetadata struct {
	SourceIDs []uuid.UUID `json:"sourceIds"`
}

// MergedSourceIDs returns every source id recorded by contact_merged
// activities on the target.
func (r *Repository) MergedSourceIDs(ctx context.Context, tenantID, targetID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT metadata
		FROM activities
		WHERE tenant_id = $1 AND contact_id = $2 AND type = $3
		ORDER BY created_at ASC
	`, tenantID, targetID, contacts.ActivityContactMerged)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var meta mergeMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		ids = append(ids, meta.SourceIDs...)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
