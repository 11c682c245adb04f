package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crm_engine_backend/internal/sequences"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func decodeSteps(raw []byte) ([]sequences.Step, error) {
	steps := make([]sequences.Step, 0)
	if len(raw) == 0 {
		return steps, nil
	}
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return steps, nil
}

func (r *Repository) GetSequence(ctx context.Context, id uuid.UUID) (sequences.Sequence, error) {
	var seq sequences.Sequence
	var kind string
	var rawSteps []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, kind, steps FROM sequences WHERE id = $1
	`, id).Scan(&seq.ID, &seq.TenantID, &seq.Name, &kind, &rawSteps)
	if errors.Is(err, pgx.ErrNoRows) {
		return sequences.Sequence{}, sequences.ErrNotFound
	}
	if err != nil {
		return sequences.Sequence{}, err
	}
	seq.Kind = sequences.Kind(kind)
	seq.Steps, err = decodeSteps(rawSteps)
	return seq, err
}

func (r *Repository) CreateSequence(ctx context.Context, seq sequences.Sequence) (sequences.Sequence, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return sequences.Sequence{}, err
	}
	rawSteps, err := json.Marshal(seq.Steps)
	if err != nil {
		return sequences.Sequence{}, err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO sequences (id, tenant_id, name, kind, steps) VALUES ($1, $2, $3, $4, $5)
	`, id, seq.TenantID, seq.Name, string(seq.Kind), rawSteps)
	if err != nil {
		return sequences.Sequence{}, err
	}
	seq.ID = id
	return seq, nil
}

func (r *Repository) CreateEnrollment(ctx context.Context, e sequences.Enrollment) (sequences.Enrollment, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return sequences.Enrollment{}, err
	}
	e.ID = id
	err = r.pool.QueryRow(ctx, `
		INSERT INTO contact_sequences (id, tenant_id, contact_id, sequence_id, current_step, status, next_step_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, e.ID, e.TenantID, e.ContactID, e.SequenceID, e.CurrentStep, string(e.Status), e.NextStepAt).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return sequences.Enrollment{}, err
	}
	return e, nil
}

// ListDue returns active enrollments of the given sequence kind whose next
// step is due, oldest schedule first.
func (r *Repository) ListDue(ctx context.Context, kind sequences.Kind, now time.Time, limit int) ([]sequences.DueEnrollment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cs.id, cs.tenant_id, cs.contact_id, cs.sequence_id, cs.current_step, cs.status,
			cs.next_step_at, cs.last_sent_at, cs.created_at, cs.updated_at,
			s.name, s.kind, s.steps,
			COALESCE(c.email, ''), c.first_name, c.last_name, c.company
		FROM contact_sequences cs
		JOIN sequences s ON s.id = cs.sequence_id
		JOIN contacts c ON c.id = cs.contact_id AND c.tenant_id = cs.tenant_id
		WHERE cs.status = 'active'
			AND s.kind = $1
			AND (cs.next_step_at IS NULL OR cs.next_step_at <= $2)
		ORDER BY cs.next_step_at ASC NULLS FIRST, cs.id ASC
		LIMIT $3
	`, string(kind), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]sequences.DueEnrollment, 0)
	for rows.Next() {
		var d sequences.DueEnrollment
		var status, seqKind string
		var rawSteps []byte
		if err := rows.Scan(
			&d.Enrollment.ID, &d.Enrollment.TenantID, &d.Enrollment.ContactID, &d.Enrollment.SequenceID,
			&d.Enrollment.CurrentStep, &status, &d.Enrollment.NextStepAt, &d.Enrollment.LastSentAt,
			&d.Enrollment.CreatedAt, &d.Enrollment.UpdatedAt,
			&d.Sequence.Name, &seqKind, &rawSteps,
			&d.Recipient.Email, &d.Recipient.FirstName, &d.Recipient.LastName, &d.Recipient.Company,
		); err != nil {
			return nil, err
		}
		d.Enrollment.Status = sequences.EnrollmentStatus(status)
		d.Sequence.ID = d.Enrollment.SequenceID
		d.Sequence.TenantID = d.Enrollment.TenantID
		d.Sequence.Kind = sequences.Kind(seqKind)
		if d.Sequence.Steps, err = decodeSteps(rawSteps); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ApplyTransition is a compare-and-swap on (status, current_step, due).
func (r *Repository) ApplyTransition(ctx context.Context, e sequences.Enrollment, t sequences.Transition, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contact_sequences
		SET current_step = $3, status = $4, next_step_at = $5, last_sent_at = $6, updated_at = now()
		WHERE id = $1
			AND status = 'active'
			AND current_step = $2
			AND (next_step_at IS NULL OR next_step_at <= $7)
	`, e.ID, e.CurrentStep, t.CurrentStep, string(t.Status), t.NextStepAt, t.LastSentAt, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
