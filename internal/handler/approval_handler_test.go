package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/middleware"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/internal/service"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
)

type approvalServiceMock struct {
	resp       *dto.ItemStatusResponse
	err        error
	history    *dto.HistoryResponse
	batch      []dto.BatchItemResult
	lastItemID string
	lastActor  models.Actor
	decision   dto.DecisionRequest
	submit     dto.SubmitRequest
	batchReq   dto.BatchDecisionRequest
}

func (m *approvalServiceMock) Submit(_ context.Context, itemID string, req dto.SubmitRequest, actor models.Actor) (*dto.ItemStatusResponse, error) {
	m.lastItemID, m.lastActor, m.submit = itemID, actor, req
	return m.resp, m.err
}

func (m *approvalServiceMock) Decide(_ context.Context, itemID string, req dto.DecisionRequest, actor models.Actor) (*dto.ItemStatusResponse, error) {
	m.lastItemID, m.lastActor, m.decision = itemID, actor, req
	return m.resp, m.err
}

func (m *approvalServiceMock) Edit(_ context.Context, itemID string, _ dto.EditRequest, actor models.Actor) (*dto.ItemStatusResponse, error) {
	m.lastItemID, m.lastActor = itemID, actor
	return m.resp, m.err
}

func (m *approvalServiceMock) Reopen(_ context.Context, itemID string, _ dto.ReopenRequest, actor models.Actor) (*dto.ItemStatusResponse, error) {
	m.lastItemID, m.lastActor = itemID, actor
	return m.resp, m.err
}

func (m *approvalServiceMock) Status(_ context.Context, itemID string) (*dto.ItemStatusResponse, error) {
	m.lastItemID = itemID
	return m.resp, m.err
}

func (m *approvalServiceMock) History(_ context.Context, itemID string) (*dto.HistoryResponse, error) {
	m.lastItemID = itemID
	return m.history, m.err
}

func (m *approvalServiceMock) DecideBatch(_ context.Context, req dto.BatchDecisionRequest, actor models.Actor) ([]dto.BatchItemResult, error) {
	m.batchReq, m.lastActor = req, actor
	return m.batch, m.err
}

func (m *approvalServiceMock) EditBatch(_ context.Context, _ dto.BatchEditRequest, actor models.Actor) ([]dto.BatchItemResult, error) {
	m.lastActor = actor
	return m.batch, m.err
}

type historyExporterMock struct {
	export *service.HistoryExport
	err    error
	format service.HistoryFormat
}

func (m *historyExporterMock) Export(_ context.Context, _ string, format service.HistoryFormat) (*service.HistoryExport, error) {
	m.format = format
	return m.export, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withTeacher(c *gin.Context, id string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: id, FullName: "Ana", Role: role})
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func pendingResponse() *dto.ItemStatusResponse {
	return &dto.ItemStatusResponse{
		Item:  &models.ApprovableItem{ID: "obj-1", Kind: models.ItemKindObjective, Status: models.ApprovalStatusPending},
		Tally: models.ApprovalTally{Status: models.ApprovalStatusPending, Outstanding: []string{"T2"}},
	}
}

func TestApprovalHandlerDecide(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &approvalServiceMock{resp: pendingResponse()}
	handler := NewApprovalHandler(mockSvc, nil)

	payload, _ := json.Marshal(dto.DecisionRequest{Action: models.ApprovalActionApproved, Notes: "fine"})
	c, w := newGinContext(http.MethodPost, "/approvals/items/obj-1/decision", payload)
	c.Params = gin.Params{{Key: "id", Value: "obj-1"}}
	withTeacher(c, "T1", models.RoleTeacher)

	handler.Decide(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "obj-1", mockSvc.lastItemID)
	assert.Equal(t, "T1", mockSvc.lastActor.TeacherID)
	assert.Equal(t, models.ApprovalActionApproved, mockSvc.decision.Action)
	assert.Contains(t, decodeEnvelope(t, w), "data")
}

func TestApprovalHandlerDecideRequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(&approvalServiceMock{resp: pendingResponse()}, nil)

	payload, _ := json.Marshal(dto.DecisionRequest{Action: models.ApprovalActionApproved})
	c, w := newGinContext(http.MethodPost, "/approvals/items/obj-1/decision", payload)
	c.Params = gin.Params{{Key: "id", Value: "obj-1"}}

	handler.Decide(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApprovalHandlerDecideInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(&approvalServiceMock{}, nil)

	c, w := newGinContext(http.MethodPost, "/approvals/items/obj-1/decision", []byte(`{"action":`))
	withTeacher(c, "T1", models.RoleTeacher)

	handler.Decide(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprovalHandlerMapsConcurrentModification(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(&approvalServiceMock{err: appErrors.Clone(appErrors.ErrConcurrentModification, "")}, nil)

	payload, _ := json.Marshal(dto.EditRequest{Description: "new text"})
	c, w := newGinContext(http.MethodPut, "/approvals/items/obj-1/description", payload)
	withTeacher(c, "T1", models.RoleTeacher)

	handler.Edit(c)
	require.Equal(t, http.StatusConflict, w.Code)
	var envelope struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "CONCURRENT_MODIFICATION", envelope.Error.Code)
}

func TestApprovalHandlerSubmitWithoutBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &approvalServiceMock{resp: pendingResponse()}
	handler := NewApprovalHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodPost, "/approvals/items/obj-1/submit", nil)
	c.Params = gin.Params{{Key: "id", Value: "obj-1"}}
	withTeacher(c, "T1", models.RoleTeacher)

	handler.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, mockSvc.submit.ExpectedLastEventID)

	token := "evt-1"
	payload, _ := json.Marshal(dto.SubmitRequest{ExpectedLastEventID: &token})
	c, w = newGinContext(http.MethodPost, "/approvals/items/obj-1/submit", payload)
	withTeacher(c, "T1", models.RoleTeacher)
	handler.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.submit.ExpectedLastEventID)
	assert.Equal(t, "evt-1", *mockSvc.submit.ExpectedLastEventID)
}

func TestApprovalHandlerStatusNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(&approvalServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "item not found")}, nil)

	c, w := newGinContext(http.MethodGet, "/approvals/items/missing/status", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Status(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestApprovalHandlerDecideBatchMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &approvalServiceMock{batch: []dto.BatchItemResult{
		{ItemID: "obj-1", Status: models.ApprovalStatusPending},
		{ItemID: "obj-2", Error: &dto.BatchItemError{Code: "NOT_FOUND", Message: "item not found"}},
	}}
	handler := NewApprovalHandler(mockSvc, nil)

	payload, _ := json.Marshal(dto.BatchDecisionRequest{ItemIDs: []string{"obj-1", "obj-2"}, Action: models.ApprovalActionApproved})
	c, w := newGinContext(http.MethodPost, "/approvals/items/batch/decision", payload)
	withTeacher(c, "T1", models.RoleTeacher)

	handler.DecideBatch(c)
	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Meta map[string]int `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, map[string]int{"total": 2, "succeeded": 1, "failed": 1}, envelope.Meta)
	assert.Equal(t, []string{"obj-1", "obj-2"}, mockSvc.batchReq.ItemIDs)
}

func TestApprovalHandlerExportHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exporter := &historyExporterMock{export: &service.HistoryExport{
		Filename:    "approval-history-obj-1.pdf",
		ContentType: "application/pdf",
		Body:        []byte("%PDF-1.3"),
	}}
	handler := NewApprovalHandler(&approvalServiceMock{}, exporter)

	c, w := newGinContext(http.MethodGet, "/approvals/items/obj-1/history/export?format=pdf", nil)
	c.Params = gin.Params{{Key: "id", Value: "obj-1"}}

	handler.ExportHistory(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.HistoryFormatPDF, exporter.format)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "approval-history-obj-1.pdf")
	assert.Equal(t, "%PDF-1.3", w.Body.String())
}

func TestApprovalRoutesReopenRequiresElevatedRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &approvalServiceMock{resp: pendingResponse()}
	handler := NewApprovalHandler(mockSvc, nil)

	role := models.RoleTeacher
	r := gin.New()
	r.Use(func(c *gin.Context) {
		withTeacher(c, "T1", role)
		c.Next()
	})
	items := r.Group("/approvals/items")
	items.POST("/batch/decision", handler.DecideBatch)
	items.POST("/:id/decision", handler.Decide)
	items.POST("/:id/reopen", middleware.RequireRoles(models.RoleCoordinator, models.RoleAdmin), handler.Reopen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/approvals/items/obj-1/reopen", nil))
	require.Equal(t, http.StatusForbidden, w.Code)

	role = models.RoleCoordinator
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/approvals/items/obj-1/reopen", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "obj-1", mockSvc.lastItemID)

	body, _ := json.Marshal(dto.BatchDecisionRequest{ItemIDs: []string{"obj-9"}, Action: models.ApprovalActionRejected})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/approvals/items/batch/decision", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"obj-9"}, mockSvc.batchReq.ItemIDs)
}
