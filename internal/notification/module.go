// Package notification fans domain events out to tenant members as in-app
// notifications. Domain modules publish events and never call this package
// directly.
package notification

import (
	"context"
	"fmt"
	"strings"

	"crm_engine_backend/internal/events"
	apphttp "crm_engine_backend/internal/http"
	notifhandler "crm_engine_backend/internal/notification/handler"
	"crm_engine_backend/internal/notification/inapp"
	"crm_engine_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	categoryWarning = "warning"
	categoryInfo    = "info"
)

// Module wires the in-app notification service, its HTTP handler and the
// event subscriptions.
type Module struct {
	inApp   *inapp.Service
	handler *notifhandler.HTTPHandler
	log     *logger.Logger
}

// New builds the module on top of the Postgres-backed repository.
func New(pool *pgxpool.Pool, log *logger.Logger) *Module {
	return NewWithStore(inapp.NewRepository(pool), log)
}

// NewWithStore builds the module on an arbitrary store.
func NewWithStore(store inapp.Store, log *logger.Logger) *Module {
	svc := inapp.NewService(store, log)
	return &Module{
		inApp:   svc,
		handler: notifhandler.NewHTTPHandler(svc),
		log:     log,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes mounts the notification inbox for the calling user.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/notifications"))
}

// InAppService exposes the service for passes that notify synchronously.
func (m *Module) InAppService() *inapp.Service { return m.inApp }

// RegisterHandlers subscribes to the contact domain events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ContactMarkedDead{}.EventName(), m)
	bus.Subscribe(events.IntakeMatchedAmbiguous{}.EventName(), m)
	bus.Subscribe(events.ContactsMerged{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ContactMarkedDead:
		return m.handleContactMarkedDead(ctx, e)
	case events.IntakeMatchedAmbiguous:
		return m.handleIntakeMatchedAmbiguous(ctx, e)
	case events.ContactsMerged:
		return m.handleContactsMerged(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleContactMarkedDead(ctx context.Context, e events.ContactMarkedDead) error {
	name := strings.TrimSpace(e.ContactName)
	if name == "" {
		name = "A contact"
	}
	contactID := e.ContactID
	_, err := m.inApp.NotifyTenant(ctx, inapp.Notice{
		TenantID:  e.TenantID,
		ContactID: &contactID,
		Title:     "Contact marked as dead",
		Content:   fmt.Sprintf("%s completed the breakup sequence without responding and is now marked Dead.", name),
		Category:  categoryWarning,
	})
	return err
}

func (m *Module) handleIntakeMatchedAmbiguous(ctx context.Context, e events.IntakeMatchedAmbiguous) error {
	contactID := e.ContactID
	_, err := m.inApp.NotifyTenant(ctx, inapp.Notice{
		TenantID:  e.TenantID,
		ContactID: &contactID,
		Title:     "Possible duplicate contacts",
		Content:   fmt.Sprintf("%d contacts share the email %s. Review them for a merge.", len(e.CandidateIDs), e.Email),
		Category:  categoryWarning,
	})
	return err
}

// Only incomplete merges need attention; a clean merge is already audited.
func (m *Module) handleContactsMerged(ctx context.Context, e events.ContactsMerged) error {
	if e.SourcesDeleted {
		return nil
	}
	targetID := e.TargetID
	_, err := m.inApp.NotifyTenant(ctx, inapp.Notice{
		TenantID:  e.TenantID,
		ContactID: &targetID,
		Title:     "Merge cleanup pending",
		Content:   fmt.Sprintf("%d merged source contacts could not be deleted yet. A cleanup has been scheduled.", len(e.SourceIDs)),
		Category:  categoryInfo,
	})
	return err
}
