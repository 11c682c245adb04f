package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crm_engine_backend/platform/apperr"
	"crm_engine_backend/platform/httpkit"
	"crm_engine_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMerger struct {
	mergeErr   error
	gotTenant  uuid.UUID
	gotSources []uuid.UUID
}

func (s *stubMerger) Merge(_ context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID) (Result, error) {
	s.gotTenant = tenantID
	s.gotSources = sourceIDs
	if s.mergeErr != nil {
		return Result{}, s.mergeErr
	}
	return Result{TargetContactID: targetID, MergedCount: len(sourceIDs)}, nil
}

func (s *stubMerger) CleanupSources(_ context.Context, _, targetID uuid.UUID, _ []uuid.UUID) (CleanupResult, error) {
	return CleanupResult{TargetContactID: targetID, Deleted: 1}, nil
}

func (s *stubMerger) FindDuplicateGroups(context.Context, uuid.UUID) ([]DuplicateGroup, error) {
	return []DuplicateGroup{}, nil
}

func newTestRouter(svc Merger, tenantID uuid.UUID, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/api/v1/merge")
	group.Use(func(c *gin.Context) {
		if authenticated {
			c.Set(httpkit.ContextUserIDKey, uuid.New())
			c.Set(httpkit.ContextTenantIDKey, tenantID)
		}
		c.Next()
	})
	NewHandler(svc, validator.New()).RegisterRoutes(group)
	return r
}

func postJSON(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMergeHandlerSuccess(t *testing.T) {
	tenant := uuid.New()
	svc := &stubMerger{}
	target, source := uuid.New(), uuid.New()

	rec := postJSON(t, newTestRouter(svc, tenant, true), "/api/v1/merge", map[string]any{
		"targetContactId":  target,
		"sourceContactIds": []uuid.UUID{source},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp MergeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.MergedCount)
	assert.Equal(t, target, resp.TargetContactID)
	assert.Equal(t, tenant, svc.gotTenant)
}

func TestMergeHandlerRejectsAnonymous(t *testing.T) {
	rec := postJSON(t, newTestRouter(&stubMerger{}, uuid.New(), false), "/api/v1/merge", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMergeHandlerValidatesBody(t *testing.T) {
	r := newTestRouter(&stubMerger{}, uuid.New(), true)

	rec := postJSON(t, r, "/api/v1/merge", map[string]any{
		"targetContactId":  uuid.New(),
		"sourceContactIds": []uuid.UUID{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, r, "/api/v1/merge", map[string]any{"targetContactId": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMergeHandlerMapsDomainErrors(t *testing.T) {
	body := map[string]any{
		"targetContactId":  uuid.New(),
		"sourceContactIds": []uuid.UUID{uuid.New()},
	}

	notFound := &stubMerger{mergeErr: apperr.NotFound("contact not found")}
	rec := postJSON(t, newTestRouter(notFound, uuid.New(), true), "/api/v1/merge", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	crossTenant := &stubMerger{mergeErr: apperr.CrossTenant("contact belongs to another tenant")}
	rec = postJSON(t, newTestRouter(crossTenant, uuid.New(), true), "/api/v1/merge", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	pending := []uuid.UUID{uuid.New()}
	partialErr := partial("delete", "contacts merged but sources were not deleted", nil, pending, true, false)
	rec = postJSON(t, newTestRouter(&stubMerger{mergeErr: partialErr}, uuid.New(), true), "/api/v1/merge", body)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp struct {
		Error   string         `json:"error"`
		Details PartialDetails `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Details.CleanupRequired)
	assert.Equal(t, pending, resp.Details.PendingSourceIDs)
}
