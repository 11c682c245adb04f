package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm_engine_backend/internal/contacts"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = contacts.ErrNotFound

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const contactColumns = `
	id, tenant_id, email, first_name, last_name, company, phone, job_title, industry,
	address_street, address_city, address_state, address_zip, address_country,
	demeanor, preferred_channel, source, interests, hobbies, outreach_channels,
	notes, engagement_score, status, last_contact_date, created_at, updated_at`

func scanContact(row pgx.Row) (contacts.Contact, error) {
	var c contacts.Contact
	var status string
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Email, &c.FirstName, &c.LastName, &c.Company, &c.Phone, &c.JobTitle, &c.Industry,
		&c.Address.Street, &c.Address.City, &c.Address.State, &c.Address.Zip, &c.Address.Country,
		&c.Demeanor, &c.PreferredChannel, &c.Source, &c.Interests, &c.Hobbies, &c.OutreachChannels,
		&c.Notes, &c.EngagementScore, &status, &c.LastContactDate, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Status = contacts.Status(status)
	return c, err
}

func collectContacts(rows pgx.Rows) ([]contacts.Contact, error) {
	defer rows.Close()

	items := make([]contacts.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Get loads a contact by id without tenant filtering; callers compare the
// tenant themselves so a foreign id can be reported as such.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (contacts.Contact, error) {
	c, err := scanContact(r.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return contacts.Contact{}, ErrNotFound
	}
	return c, err
}

// ListByIDs returns the contacts that exist among ids, ordered by id.
func (r *Repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]contacts.Contact, error) {
	if len(ids) == 0 {
		return []contacts.Contact{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ANY($1) ORDER BY id ASC`, ids)
	if err != nil {
		return nil, err
	}
	return collectContacts(rows)
}

// FindByEmail returns the tenant's contacts whose email equals email
// case-insensitively, oldest first.
func (r *Repository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) ([]contacts.Contact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE tenant_id = $1 AND lower(email) = lower($2)
		ORDER BY id ASC
	`, tenantID, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	return collectContacts(rows)
}

// FindSkeletalByName returns the tenant's contacts without an email whose
// first and last names match case-insensitively, oldest first.
func (r *Repository) FindSkeletalByName(ctx context.Context, tenantID uuid.UUID, firstName, lastName string) ([]contacts.Contact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE tenant_id = $1
			AND (email IS NULL OR btrim(email) = '')
			AND lower(first_name) = lower($2)
			AND lower(last_name) = lower($3)
		ORDER BY id ASC
	`, tenantID, strings.TrimSpace(firstName), strings.TrimSpace(lastName))
	if err != nil {
		return nil, err
	}
	return collectContacts(rows)
}

// ListWithEmail returns every contact of the tenant that has an email.
func (r *Repository) ListWithEmail(ctx context.Context, tenantID uuid.UUID) ([]contacts.Contact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE tenant_id = $1 AND email IS NOT NULL AND btrim(email) <> ''
		ORDER BY id ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return collectContacts(rows)
}

type CreateParams struct {
	TenantID        uuid.UUID
	Email           *string
	FirstName       string
	LastName        string
	Company         string
	Phone           string
	JobTitle        string
	Source          string
	Interests       []string
	Notes           string
	LastContactDate *time.Time
}

// Create inserts a contact with a time-ordered id.
func (r *Repository) Create(ctx context.Context, p CreateParams) (contacts.Contact, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return contacts.Contact{}, err
	}
	interests := p.Interests
	if interests == nil {
		interests = []string{}
	}

	return scanContact(r.pool.QueryRow(ctx, `
		INSERT INTO contacts (id, tenant_id, email, first_name, last_name, company, phone, job_title, source,
			interests, notes, status, last_contact_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+contactColumns,
		id, p.TenantID, p.Email, p.FirstName, p.LastName, p.Company, p.Phone, p.JobTitle, p.Source,
		interests, p.Notes, string(contacts.StatusNew), p.LastContactDate,
	))
}

// Update writes every mutable field of c. The row must belong to c.TenantID.
func (r *Repository) Update(ctx context.Context, c contacts.Contact) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contacts SET
			email = $3, first_name = $4, last_name = $5, company = $6, phone = $7, job_title = $8, industry = $9,
			address_street = $10, address_city = $11, address_state = $12, address_zip = $13, address_country = $14,
			demeanor = $15, preferred_channel = $16, source = $17, interests = $18, hobbies = $19,
			outreach_channels = $20, notes = $21, engagement_score = $22, last_contact_date = $23,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`,
		c.ID, c.TenantID, c.Email, c.FirstName, c.LastName, c.Company, c.Phone, c.JobTitle, c.Industry,
		c.Address.Street, c.Address.City, c.Address.State, c.Address.Zip, c.Address.Country,
		c.Demeanor, c.PreferredChannel, c.Source, nonNil(c.Interests), nonNil(c.Hobbies),
		nonNil(c.OutreachChannels), c.Notes, c.EngagementScore, c.LastContactDate,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastContact moves last_contact_date forward to at; it never moves it back.
func (r *Repository) TouchLastContact(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contacts
		SET last_contact_date = GREATEST(COALESCE(last_contact_date, $3), $3), updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, at)
	return err
}

// relationTables hold a contact_id column that merge re-points.
var relationTables = []string{
	"activities",
	"scheduled_tasks",
	"contact_sequences",
	"chat_sessions",
	"conversations",
	"deals",
}

// RepointRelations moves dependent rows from the sources to the target.
// Each table is updated by its own statement.
func (r *Repository) RepointRelations(ctx context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID) (int64, error) {
	if len(sourceIDs) == 0 {
		return 0, nil
	}
	var total int64
	for _, table := range relationTables {
		tag, err := r.pool.Exec(ctx, fmt.Sprintf(
			`UPDATE %s SET contact_id = $1 WHERE tenant_id = $2 AND contact_id = ANY($3)`, table,
		), targetID, tenantID, sourceIDs)
		if err != nil {
			return total, fmt.Errorf("repoint %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// DeleteContacts hard-deletes the tenant's contacts among ids. Missing ids are ignored.
func (r *Repository) DeleteContacts(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
