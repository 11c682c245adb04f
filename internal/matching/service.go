// Package matching resolves whether an inbound signal refers to an existing
// contact. It never writes.
package matching

import (
	"context"
	"strings"

	"crm_engine_backend/internal/contacts"
	"crm_engine_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	opResolve = "matching.service.resolve"

	MatchedByEmail = "email"
	MatchedByName  = "name"
	MatchedByNone  = "none"
)

// ContactFinder is the read side of the contact store used for matching.
type ContactFinder interface {
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) ([]contacts.Contact, error)
	FindSkeletalByName(ctx context.Context, tenantID uuid.UUID, firstName, lastName string) ([]contacts.Contact, error)
}

// Match is the outcome of Resolve. When Ambiguous is set, Contact is the
// oldest candidate and CandidateIDs lists every candidate.
type Match struct {
	Found        bool
	Contact      contacts.Contact
	Ambiguous    bool
	CandidateIDs []uuid.UUID
	MatchedBy    string
}

// ContactID returns the matched id or uuid.Nil.
func (m Match) ContactID() uuid.UUID {
	if !m.Found {
		return uuid.Nil
	}
	return m.Contact.ID
}

type Service struct {
	finder ContactFinder
}

func New(finder ContactFinder) *Service {
	return &Service{finder: finder}
}

// Resolve looks for the contact an inbound signal belongs to: email first,
// then first+last name among contacts without an email.
func (s *Service) Resolve(ctx context.Context, tenantID uuid.UUID, email, firstName, lastName string) (Match, error) {
	if tenantID == uuid.Nil {
		return Match{}, apperr.Unauthorized("tenant is required").WithOp(opResolve)
	}

	if key := contacts.EmailKey(email); key != "" {
		found, err := s.finder.FindByEmail(ctx, tenantID, email)
		if err != nil {
			return Match{}, apperr.Wrap(apperr.KindInternal, "email lookup failed", err).WithOp(opResolve)
		}
		candidates := make([]contacts.Contact, 0, len(found))
		for _, c := range found {
			if c.TenantID != tenantID {
				return Match{}, apperr.CrossTenant("contact belongs to another tenant").WithOp(opResolve)
			}
			if contacts.EmailKey(c.EmailAddress()) == key {
				candidates = append(candidates, c)
			}
		}
		if len(candidates) > 0 {
			return buildMatch(candidates, MatchedByEmail), nil
		}
	}

	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(lastName) == "" {
		return Match{MatchedBy: MatchedByNone}, nil
	}

	found, err := s.finder.FindSkeletalByName(ctx, tenantID, firstName, lastName)
	if err != nil {
		return Match{}, apperr.Wrap(apperr.KindInternal, "name lookup failed", err).WithOp(opResolve)
	}
	firstKey, lastKey := contacts.NameKey(firstName), contacts.NameKey(lastName)
	candidates := make([]contacts.Contact, 0, len(found))
	for _, c := range found {
		if c.TenantID != tenantID {
			return Match{}, apperr.CrossTenant("contact belongs to another tenant").WithOp(opResolve)
		}
		if !c.IsSkeletal() {
			continue
		}
		if contacts.NameKey(c.FirstName) == firstKey && contacts.NameKey(c.LastName) == lastKey {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return Match{MatchedBy: MatchedByNone}, nil
	}
	// Only email matches are flagged for merge review.
	m := buildMatch(candidates, MatchedByName)
	m.Ambiguous = false
	return m, nil
}

func buildMatch(candidates []contacts.Contact, matchedBy string) Match {
	contacts.SortByID(candidates)
	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return Match{
		Found:        true,
		Contact:      candidates[0],
		Ambiguous:    len(candidates) > 1,
		CandidateIDs: ids,
		MatchedBy:    matchedBy,
	}
}
