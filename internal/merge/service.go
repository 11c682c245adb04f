// Package merge consolidates duplicate contacts into a single target record.
package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm_engine_backend/internal/contacts"
	contactrepo "crm_engine_backend/internal/contacts/repository"
	"crm_engine_backend/internal/events"
	"crm_engine_backend/platform/apperr"
	"crm_engine_backend/platform/logger"
	"crm_engine_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	opMerge      = "merge.service.merge"
	opCleanup    = "merge.service.cleanup_sources"
	opDuplicates = "merge.service.find_duplicate_groups"

	errTenantRequired = "tenant is required"
)

// Store is the contact persistence the merge service needs. Each call commits
// on its own; there is no transaction spanning them.
type Store interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]contacts.Contact, error)
	ListWithEmail(ctx context.Context, tenantID uuid.UUID) ([]contacts.Contact, error)
	Update(ctx context.Context, c contacts.Contact) error
	RepointRelations(ctx context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID) (int64, error)
	CreateActivity(ctx context.Context, p contactrepo.CreateActivityParams) (contacts.Activity, error)
	MergedSourceIDs(ctx context.Context, tenantID, targetID uuid.UUID) ([]uuid.UUID, error)
	DeleteContacts(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int64, error)
}

// CleanupScheduler enqueues a delayed retry of CleanupSources.
type CleanupScheduler interface {
	ScheduleMergeCleanup(ctx context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID) error
}

// Result describes a completed merge.
type Result struct {
	TargetContactID uuid.UUID        `json:"targetContactId"`
	MergedCount     int              `json:"mergedCount"`
	RepointedRows   int64            `json:"repointedRows"`
	Contact         contacts.Contact `json:"contact"`
}

// PartialDetails is attached to a PartialFailure error.
type PartialDetails struct {
	Stage            string      `json:"stage"`
	CleanupRequired  bool        `json:"cleanupRequired"`
	CleanupScheduled bool        `json:"cleanupScheduled"`
	PendingSourceIDs []uuid.UUID `json:"pendingSourceIds"`
}

// CleanupResult describes a CleanupSources run.
type CleanupResult struct {
	TargetContactID uuid.UUID   `json:"targetContactId"`
	Deleted         int64       `json:"deleted"`
	Skipped         []uuid.UUID `json:"skipped"`
}

// DuplicateGroup is a set of contacts sharing one email.
type DuplicateGroup struct {
	Email    string             `json:"email"`
	Contacts []contacts.Contact `json:"contacts"`
}

type Service struct {
	store    Store
	eventBus events.Bus
	cleanup  CleanupScheduler
	log      *logger.Logger
}

func New(store Store, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, eventBus: eventBus, log: log}
}

// SetCleanupScheduler wires the delayed retry used when source deletion fails.
func (s *Service) SetCleanupScheduler(c CleanupScheduler) {
	s.cleanup = c
}

// Merge folds sourceIDs into targetID. Preconditions are checked before any
// write. The writes (target update, relation re-point, audit entry, source
// delete) commit independently; a failure after the first write returns a
// PartialFailure describing what is left.
func (s *Service) Merge(ctx context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID) (Result, error) {
	if tenantID == uuid.Nil {
		return Result{}, apperr.Unauthorized(errTenantRequired).WithOp(opMerge)
	}

	sources := dedupeIDs(sourceIDs)
	if len(sources) == 0 {
		return Result{}, apperr.Validation("at least one source contact is required").WithOp(opMerge)
	}
	for _, id := range sources {
		if id == targetID {
			return Result{}, apperr.Validation("target contact cannot also be a source").WithOp(opMerge)
		}
	}

	target, sourceContacts, err := s.loadParticipants(ctx, tenantID, targetID, sources)
	if err != nil {
		metrics.RecordMerge("rejected")
		return Result{}, err
	}

	merged := Consolidate(target, sourceContacts)
	if err := s.store.Update(ctx, merged); err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "failed to update target contact", err).WithOp(opMerge)
	}

	repointed, err := s.store.RepointRelations(ctx, tenantID, targetID, sources)
	if err != nil {
		metrics.RecordMerge("partial")
		return Result{}, partial("repoint", "failed to move related records", err, sources, false, false)
	}

	names := make([]string, len(sourceContacts))
	orderedIDs := make([]uuid.UUID, len(sourceContacts))
	for i, c := range sourceContacts {
		names[i] = c.DisplayName()
		orderedIDs[i] = c.ID
	}
	_, err = s.store.CreateActivity(ctx, contactrepo.CreateActivityParams{
		TenantID:    tenantID,
		ContactID:   targetID,
		Type:        contacts.ActivityContactMerged,
		Title:       fmt.Sprintf("Merged %d contact(s)", len(sourceContacts)),
		Description: "Merged from " + strings.Join(names, ", "),
		Metadata: map[string]any{
			"sourceIds":   orderedIDs,
			"sourceNames": names,
			"count":       len(sourceContacts),
		},
	})
	if err != nil {
		metrics.RecordMerge("partial")
		return Result{}, partial("audit", "failed to record merge activity", err, sources, false, false)
	}

	if _, err := s.store.DeleteContacts(ctx, tenantID, orderedIDs); err != nil {
		metrics.RecordMerge("partial")
		scheduled := s.scheduleCleanup(ctx, tenantID, targetID, orderedIDs)
		s.publish(ctx, tenantID, targetID, orderedIDs, false)
		return Result{}, partial("delete", "contacts merged but sources were not deleted", err, orderedIDs, true, scheduled)
	}

	metrics.RecordMerge("ok")
	s.publish(ctx, tenantID, targetID, orderedIDs, true)

	return Result{
		TargetContactID: targetID,
		MergedCount:     len(orderedIDs),
		RepointedRows:   repointed,
		Contact:         merged,
	}, nil
}

// CleanupSources finishes a merge whose delete step failed. Only ids recorded
// by a prior merge into targetID are eligible; relations are re-pointed again
// before deleting. Running it twice is harmless.
func (s *Service) CleanupSources(ctx context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID) (CleanupResult, error) {
	if tenantID == uuid.Nil {
		return CleanupResult{}, apperr.Unauthorized(errTenantRequired).WithOp(opCleanup)
	}
	sources := dedupeIDs(sourceIDs)
	if len(sources) == 0 {
		return CleanupResult{}, apperr.Validation("at least one source contact is required").WithOp(opCleanup)
	}

	found, err := s.store.ListByIDs(ctx, []uuid.UUID{targetID})
	if err != nil {
		return CleanupResult{}, apperr.Wrap(apperr.KindInternal, "failed to load target contact", err).WithOp(opCleanup)
	}
	if len(found) == 0 {
		return CleanupResult{}, apperr.NotFound("target contact not found").WithOp(opCleanup)
	}
	if found[0].TenantID != tenantID {
		return CleanupResult{}, apperr.CrossTenant("target contact belongs to another tenant").WithOp(opCleanup)
	}

	recorded, err := s.store.MergedSourceIDs(ctx, tenantID, targetID)
	if err != nil {
		return CleanupResult{}, apperr.Wrap(apperr.KindInternal, "failed to load merge history", err).WithOp(opCleanup)
	}
	allowed := make(map[uuid.UUID]struct{}, len(recorded))
	for _, id := range recorded {
		allowed[id] = struct{}{}
	}

	eligible := make([]uuid.UUID, 0, len(sources))
	skipped := make([]uuid.UUID, 0)
	for _, id := range sources {
		if _, ok := allowed[id]; ok && id != targetID {
			eligible = append(eligible, id)
		} else {
			skipped = append(skipped, id)
		}
	}
	result := CleanupResult{TargetContactID: targetID, Skipped: skipped}
	if len(eligible) == 0 {
		return result, nil
	}

	if _, err := s.store.RepointRelations(ctx, tenantID, targetID, eligible); err != nil {
		return result, apperr.Wrap(apperr.KindInternal, "failed to move related records", err).WithOp(opCleanup)
	}
	deleted, err := s.store.DeleteContacts(ctx, tenantID, eligible)
	if err != nil {
		return result, apperr.Transient("failed to delete merged contacts", err).WithOp(opCleanup)
	}
	result.Deleted = deleted
	return result, nil
}

// FindDuplicateGroups lists groups of two or more contacts sharing an email,
// keyed by the lower-cased address. Contacts inside a group are oldest first.
func (s *Service) FindDuplicateGroups(ctx context.Context, tenantID uuid.UUID) ([]DuplicateGroup, error) {
	if tenantID == uuid.Nil {
		return nil, apperr.Unauthorized(errTenantRequired).WithOp(opDuplicates)
	}
	all, err := s.store.ListWithEmail(ctx, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list contacts", err).WithOp(opDuplicates)
	}

	byKey := make(map[string][]contacts.Contact)
	order := make([]string, 0)
	labels := make(map[string]string)
	for _, c := range all {
		if c.TenantID != tenantID {
			return nil, apperr.CrossTenant("contact belongs to another tenant").WithOp(opDuplicates)
		}
		key := contacts.EmailKey(c.EmailAddress())
		if key == "" {
			continue
		}
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
			labels[key] = strings.ToLower(c.EmailAddress())
		}
		byKey[key] = append(byKey[key], c)
	}

	groups := make([]DuplicateGroup, 0)
	for _, key := range order {
		members := byKey[key]
		if len(members) < 2 {
			continue
		}
		contacts.SortByID(members)
		groups = append(groups, DuplicateGroup{Email: labels[key], Contacts: members})
	}
	return groups, nil
}

func (s *Service) loadParticipants(ctx context.Context, tenantID, targetID uuid.UUID, sources []uuid.UUID) (contacts.Contact, []contacts.Contact, error) {
	ids := append([]uuid.UUID{targetID}, sources...)
	found, err := s.store.ListByIDs(ctx, ids)
	if err != nil {
		return contacts.Contact{}, nil, apperr.Wrap(apperr.KindInternal, "failed to load contacts", err).WithOp(opMerge)
	}

	byID := make(map[uuid.UUID]contacts.Contact, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	missing := make([]uuid.UUID, 0)
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if c.TenantID != tenantID {
			return contacts.Contact{}, nil, apperr.CrossTenant("contact belongs to another tenant").WithOp(opMerge)
		}
	}
	if len(missing) > 0 {
		return contacts.Contact{}, nil, apperr.NotFound("contact not found").
			WithOp(opMerge).
			WithDetails(map[string]any{"missingContactIds": missing})
	}

	sourceContacts := make([]contacts.Contact, 0, len(sources))
	for _, id := range sources {
		sourceContacts = append(sourceContacts, byID[id])
	}
	contacts.SortByID(sourceContacts)
	return byID[targetID], sourceContacts, nil
}

func (s *Service) scheduleCleanup(ctx context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID) bool {
	if s.cleanup == nil {
		return false
	}
	if err := s.cleanup.ScheduleMergeCleanup(ctx, tenantID, targetID, sourceIDs); err != nil {
		if s.log != nil {
			s.log.Error("failed to schedule merge cleanup", "error", err, "targetContactId", targetID)
		}
		return false
	}
	return true
}

func (s *Service) publish(ctx context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID, deleted bool) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(ctx, events.ContactsMerged{
		BaseEvent:      events.BaseEvent{Timestamp: time.Now()},
		TenantID:       tenantID,
		TargetID:       targetID,
		SourceIDs:      sourceIDs,
		SourcesDeleted: deleted,
	})
}

func partial(stage, message string, err error, pending []uuid.UUID, cleanupRequired, scheduled bool) error {
	return apperr.PartialFailure(message, err).
		WithOp(opMerge).
		WithDetails(PartialDetails{
			Stage:            stage,
			CleanupRequired:  cleanupRequired,
			CleanupScheduled: scheduled,
			PendingSourceIDs: pending,
		})
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
