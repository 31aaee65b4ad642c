package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/middleware"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/response"
)

type skillService interface {
	SkillRollup(ctx context.Context, key models.SkillKey) (*dto.SkillRollupResponse, bool, error)
	Rubrics(ctx context.Context, objectiveID string) (*dto.ObjectiveComposite, error)
	GenerationStatus(ctx context.Context, objectiveID string) (*models.DispatchRecord, error)
	GenerateObjectives(ctx context.Context, req dto.GenerateObjectivesRequest, actor models.Actor) (*dto.GenerateObjectivesResponse, error)
}

// SkillHandler exposes skill group rollups and objective generation.
type SkillHandler struct {
	service skillService
}

// NewSkillHandler constructs the handler.
func NewSkillHandler(service skillService) *SkillHandler {
	return &SkillHandler{service: service}
}

// Rollup godoc
// @Summary Aggregated approval status of a skill group
// @Tags Skills
// @Produce json
// @Param bnccCode query string true "BNCC skill code"
// @Param disciplineId query int true "Discipline ID"
// @Param yearLevel query int true "Year level"
// @Param bimester query int true "Bimester (1-4)"
// @Success 200 {object} response.Envelope
// @Router /approvals/skills/rollup [get]
func (h *SkillHandler) Rollup(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var key models.SkillKey
	if err := c.ShouldBindQuery(&key); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid skill key"))
		return
	}
	rollup, cacheHit, err := h.service.SkillRollup(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, rollup, nil)
}

// Rubrics godoc
// @Summary Objective with its rubric levels and composite status
// @Tags Skills
// @Produce json
// @Param id path string true "Objective ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/objectives/{id}/rubrics [get]
func (h *SkillHandler) Rubrics(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	composite, err := h.service.Rubrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, composite, nil)
}

// GenerationStatus godoc
// @Summary Rubric generation state of an objective
// @Tags Skills
// @Produce json
// @Param id path string true "Objective ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /approvals/objectives/{id}/rubric-generation [get]
func (h *SkillHandler) GenerationStatus(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	record, err := h.service.GenerationStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// GenerateObjectives godoc
// @Summary Generate draft objectives for a skill
// @Tags Skills
// @Accept json
// @Produce json
// @Param payload body dto.GenerateObjectivesRequest true "Generation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /approvals/skills/objectives/generate [post]
func (h *SkillHandler) GenerateObjectives(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.GenerateObjectivesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid generation payload"))
		return
	}
	result, err := h.service.GenerateObjectives(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
