package sequences

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crm_engine_backend/platform/apperr"
	"crm_engine_backend/platform/httpkit"
	"crm_engine_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubManager struct {
	created   Sequence
	enrollErr error
	gotTenant uuid.UUID
	gotSeq    uuid.UUID
}

func (s *stubManager) CreateSequence(_ context.Context, seq Sequence) (Sequence, error) {
	seq.ID = uuid.New()
	s.created = seq
	return seq, nil
}

func (s *stubManager) Enroll(_ context.Context, tenantID, contactID, sequenceID uuid.UUID, now time.Time) (Enrollment, error) {
	s.gotTenant = tenantID
	s.gotSeq = sequenceID
	if s.enrollErr != nil {
		return Enrollment{}, s.enrollErr
	}
	return Enrollment{ID: uuid.New(), TenantID: tenantID, ContactID: contactID, SequenceID: sequenceID, Status: StatusActive}, nil
}

func newSequenceRouter(svc Manager, tenantID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/api/v1/sequences")
	group.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, uuid.New())
		c.Set(httpkit.ContextTenantIDKey, tenantID)
		c.Next()
	})
	NewHandler(svc, validator.New()).RegisterRoutes(group)
	return r
}

func post(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateSequenceUsesCallerTenant(t *testing.T) {
	tenant := uuid.New()
	svc := &stubManager{}

	rec := post(t, newSequenceRouter(svc, tenant), "/api/v1/sequences", map[string]any{
		"name": "Welcome",
		"kind": "drip",
		"steps": []map[string]any{
			{"delayDays": 0, "subject": "Hi {{.FirstName}}", "body": "Welcome aboard"},
			{"delayDays": 3, "subject": "Checking in", "body": ""},
		},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, tenant, svc.created.TenantID)
	assert.Equal(t, KindDrip, svc.created.Kind)
	require.Len(t, svc.created.Steps, 2)
	assert.Equal(t, 3, svc.created.Steps[1].DelayDays)
	assert.Equal(t, "Hi {{.FirstName}}", svc.created.Steps[0].Payload.Subject)
}

func TestCreateSequenceRejectsUnknownKind(t *testing.T) {
	svc := &stubManager{}

	rec := post(t, newSequenceRouter(svc, uuid.New()), "/api/v1/sequences", map[string]any{
		"name":  "Bad",
		"kind":  "nurture",
		"steps": []map[string]any{{"delayDays": 1, "subject": "x"}},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, svc.created.TenantID)
}

func TestEnrollPassesPathSequence(t *testing.T) {
	tenant, seqID := uuid.New(), uuid.New()
	svc := &stubManager{}

	rec := post(t, newSequenceRouter(svc, tenant), "/api/v1/sequences/"+seqID.String()+"/enrollments", map[string]any{
		"contactId": uuid.New(),
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, tenant, svc.gotTenant)
	assert.Equal(t, seqID, svc.gotSeq)
}

func TestEnrollForeignContactLooksMissing(t *testing.T) {
	svc := &stubManager{enrollErr: apperr.CrossTenant("contact belongs to another tenant")}

	rec := post(t, newSequenceRouter(svc, uuid.New()), "/api/v1/sequences/"+uuid.NewString()+"/enrollments", map[string]any{
		"contactId": uuid.New(),
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnrollRejectsBadSequenceID(t *testing.T) {
	rec := post(t, newSequenceRouter(&stubManager{}, uuid.New()), "/api/v1/sequences/not-a-uuid/enrollments", map[string]any{
		"contactId": uuid.New(),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
