package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/internal/service"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/response"
)

type approvalService interface {
	Submit(ctx context.Context, itemID string, req dto.SubmitRequest, actor models.Actor) (*dto.ItemStatusResponse, error)
	Decide(ctx context.Context, itemID string, req dto.DecisionRequest, actor models.Actor) (*dto.ItemStatusResponse, error)
	Edit(ctx context.Context, itemID string, req dto.EditRequest, actor models.Actor) (*dto.ItemStatusResponse, error)
	Reopen(ctx context.Context, itemID string, req dto.ReopenRequest, actor models.Actor) (*dto.ItemStatusResponse, error)
	Status(ctx context.Context, itemID string) (*dto.ItemStatusResponse, error)
	History(ctx context.Context, itemID string) (*dto.HistoryResponse, error)
	DecideBatch(ctx context.Context, req dto.BatchDecisionRequest, actor models.Actor) ([]dto.BatchItemResult, error)
	EditBatch(ctx context.Context, req dto.BatchEditRequest, actor models.Actor) ([]dto.BatchItemResult, error)
}

type historyExporter interface {
	Export(ctx context.Context, itemID string, format service.HistoryFormat) (*service.HistoryExport, error)
}

// ApprovalHandler exposes the review workflow of individual items.
type ApprovalHandler struct {
	service  approvalService
	exporter historyExporter
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(service approvalService, exporter historyExporter) *ApprovalHandler {
	return &ApprovalHandler{service: service, exporter: exporter}
}

// Submit godoc
// @Summary Submit a draft item for review
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body dto.SubmitRequest false "Optimistic concurrency token"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/items/{id}/submit [post]
func (h *ApprovalHandler) Submit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req dto.SubmitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid submit payload"))
			return
		}
	}
	result, err := h.service.Submit(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Decide godoc
// @Summary Approve or reject an item
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body dto.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/items/{id}/decision [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	result, err := h.service.Decide(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Edit godoc
// @Summary Replace an item's description
// @Description Earlier votes stop counting once the text changes.
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body dto.EditRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Router /approvals/items/{id}/description [put]
func (h *ApprovalHandler) Edit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req dto.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid edit payload"))
		return
	}
	result, err := h.service.Edit(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reopen godoc
// @Summary Reopen an approved item
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body dto.ReopenRequest false "Reopen payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /approvals/items/{id}/reopen [post]
func (h *ApprovalHandler) Reopen(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req dto.ReopenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid reopen payload"))
			return
		}
	}
	result, err := h.service.Reopen(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Status godoc
// @Summary Current approval status of an item
// @Tags Approvals
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/items/{id}/status [get]
func (h *ApprovalHandler) Status(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "approval service not configured"))
		return
	}
	result, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// History godoc
// @Summary Approval ledger and description versions of an item
// @Tags Approvals
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/items/{id}/history [get]
func (h *ApprovalHandler) History(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "approval service not configured"))
		return
	}
	result, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ExportHistory godoc
// @Summary Download the approval ledger of an item
// @Tags Approvals
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Item ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /approvals/items/{id}/history/export [get]
func (h *ApprovalHandler) ExportHistory(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history export not configured"))
		return
	}
	result, err := h.exporter.Export(c.Request.Context(), c.Param("id"), service.HistoryFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}

// DecideBatch godoc
// @Summary Apply one decision to many items
// @Description Each item is processed independently; per-item errors are reported in the result.
// @Tags Approvals
// @Accept json
// @Produce json
// @Param payload body dto.BatchDecisionRequest true "Batch decision payload"
// @Success 200 {object} response.Envelope
// @Router /approvals/items/batch/decision [post]
func (h *ApprovalHandler) DecideBatch(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req dto.BatchDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid batch decision payload"))
		return
	}
	results, err := h.service.DecideBatch(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil, batchMeta(results))
}

// EditBatch godoc
// @Summary Edit many items
// @Tags Approvals
// @Accept json
// @Produce json
// @Param payload body dto.BatchEditRequest true "Batch edit payload"
// @Success 200 {object} response.Envelope
// @Router /approvals/items/batch/description [post]
func (h *ApprovalHandler) EditBatch(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req dto.BatchEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid batch edit payload"))
		return
	}
	results, err := h.service.EditBatch(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil, batchMeta(results))
}

func (h *ApprovalHandler) actor(c *gin.Context) (models.Actor, bool) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "approval service not configured"))
		return models.Actor{}, false
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

func batchMeta(results []dto.BatchItemResult) map[string]interface{} {
	failed := 0
	for _, result := range results {
		if result.Error != nil {
			failed++
		}
	}
	return map[string]interface{}{
		"total":     len(results),
		"succeeded": len(results) - failed,
		"failed":    failed,
	}
}
