package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
)

type rubricGenerator interface {
	GenerateRubricLevels(ctx context.Context, input RubricGenerationInput) (map[int]string, error)
}

type rubricLevelCreator interface {
	RubricLevelsExist(ctx context.Context, objectiveID string) (bool, error)
	CreateRubricLevels(ctx context.Context, objectiveID string, levels map[int]string, actor models.Actor) ([]models.ApprovableItem, error)
}

// RubricGenerationReaction asks the generation service for the four rubric levels of
// an objective that just became approved and submits them for review.
type RubricGenerationReaction struct {
	items     itemLookup
	generator rubricGenerator
	creator   rubricLevelCreator
	logger    *zap.Logger
}

// NewRubricGenerationReaction constructs the reaction.
func NewRubricGenerationReaction(items itemLookup, generator rubricGenerator, creator rubricLevelCreator, logger *zap.Logger) *RubricGenerationReaction {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RubricGenerationReaction{items: items, generator: generator, creator: creator, logger: logger}
}

// Name identifies the reaction in logs and metrics.
func (r *RubricGenerationReaction) Name() string {
	return "rubric_generation"
}

// React generates rubric levels unless the objective already has them.
func (r *RubricGenerationReaction) React(ctx context.Context, transition models.StatusTransition) error {
	exists, err := r.creator.RubricLevelsExist(ctx, transition.ItemID)
	if err != nil {
		return err
	}
	if exists {
		r.logger.Info("rubric levels already present", zap.String("objective_id", transition.ItemID))
		return ErrReactionSkipped
	}
	objective, err := r.items.GetByID(ctx, transition.ItemID)
	if err != nil {
		return err
	}
	if objective.Kind != models.ItemKindObjective {
		return ErrReactionSkipped
	}
	levels, err := r.generator.GenerateRubricLevels(ctx, RubricGenerationInput{
		ObjectiveID: objective.ID,
		BnccCode:    objective.BnccCode,
		Objective:   objective.Description,
	})
	if err != nil {
		return err
	}
	actor := models.Actor{TeacherID: transition.ActorID, Name: transition.ActorName, Role: models.RoleTeacher}
	created, err := r.creator.CreateRubricLevels(ctx, objective.ID, levels, actor)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrPreconditionFailed) || appErrors.Is(err, appErrors.ErrConflict) {
			r.logger.Info("rubric generation no longer applicable",
				zap.String("objective_id", objective.ID), zap.String("reason", err.Error()))
			return ErrReactionSkipped
		}
		return err
	}
	r.logger.Info("rubric levels generated",
		zap.String("objective_id", objective.ID), zap.Int("levels", len(created)), zap.String("actor_id", actor.TeacherID))
	return nil
}
