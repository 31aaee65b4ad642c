package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/internal/repository"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/logger"
)

type approvalEventStore interface {
	Append(ctx context.Context, params repository.AppendEventParams) error
	List(ctx context.Context, itemID string) ([]models.ApprovalEvent, error)
	ListByItems(ctx context.Context, itemIDs []string) (map[string][]models.ApprovalEvent, error)
}

type approvableItemStore interface {
	GetByID(ctx context.Context, id string) (*models.ApprovableItem, error)
	CreateMany(ctx context.Context, items []*models.ApprovableItem) error
	ListObjectivesBySkill(ctx context.Context, key models.SkillKey) ([]models.ApprovableItem, error)
	ListByParents(ctx context.Context, parentIDs []string) ([]models.ApprovableItem, error)
	CountObjectivesForSkill(ctx context.Context, bnccCode string, disciplineID int64) (int, error)
}

type requiredApproverResolver interface {
	Resolve(ctx context.Context, item *models.ApprovableItem) ([]models.TeacherRef, error)
}

type transitionDispatcher interface {
	Dispatch(ctx context.Context, transition models.StatusTransition)
	Latest(ctx context.Context, itemID string) (*models.DispatchRecord, error)
}

type objectiveGenerator interface {
	GenerateObjectives(ctx context.Context, input ObjectiveGenerationInput) ([]dto.GeneratedText, error)
}

// ApprovalService runs the review workflow of objectives and rubric levels. Every
// status it returns is recomputed from the event ledger and current staffing; the
// status column on items is only a cache for listings.
type ApprovalService struct {
	items      approvableItemStore
	events     approvalEventStore
	resolver   requiredApproverResolver
	dispatcher transitionDispatcher
	generator  objectiveGenerator
	cache      *CacheService
	cacheTTL   time.Duration
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time

	autoApproveSubmitter bool
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithApprovalCache enables caching of skill rollups.
func WithApprovalCache(cache *CacheService, ttl time.Duration) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithApprovalMetrics records append and conflict counters.
func WithApprovalMetrics(metrics *MetricsService) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.metrics = metrics
	}
}

// WithTransitionDispatcher routes status transitions to side effects.
func WithTransitionDispatcher(dispatcher transitionDispatcher) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.dispatcher = dispatcher
	}
}

// WithObjectiveGenerator enables GenerateObjectives.
func WithObjectiveGenerator(generator objectiveGenerator) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.generator = generator
	}
}

// WithAutoApproveSubmitter counts a submission as the submitter's own approval.
func WithAutoApproveSubmitter(enabled bool) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.autoApproveSubmitter = enabled
	}
}

// WithApprovalClock overrides the clock used to timestamp events.
func WithApprovalClock(now func() time.Time) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewApprovalService constructs the service with defaults.
func NewApprovalService(items approvableItemStore, events approvalEventStore, resolver requiredApproverResolver, validate *validator.Validate, logger *zap.Logger, opts ...ApprovalServiceOption) *ApprovalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApprovalService{
		items:     items,
		events:    events,
		resolver:  resolver,
		validator: validate,
		logger:    logger,
		cacheTTL:  30 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// itemState is everything needed to evaluate one item.
type itemState struct {
	item      *models.ApprovableItem
	events    []models.ApprovalEvent
	approvers []models.TeacherRef
	required  []string
}

type appendInput struct {
	action      models.ApprovalAction
	notes       *string
	previous    *string
	description *string
	expected    *string
}

// Submit moves a draft into review.
func (s *ApprovalService) Submit(ctx context.Context, itemID string, req dto.SubmitRequest, actor models.Actor) (*dto.ItemStatusResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	state, err := s.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if status := ApprovalStatusOf(state.events, state.required); status != models.ApprovalStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("item is %s, only drafts can be submitted", status))
	}
	resp, err := s.append(ctx, state, actor, appendInput{action: models.ApprovalActionSubmit, expected: req.ExpectedLastEventID})
	if err != nil {
		return nil, err
	}
	if s.autoApproveSubmitter {
		approved, err := s.append(ctx, state, actor, appendInput{action: models.ApprovalActionApproved})
		if err != nil {
			s.logger.Warn("submitter approval not recorded", zap.String("item_id", itemID), zap.Error(err))
		} else {
			if approved.Transition == nil {
				approved.Transition = resp.Transition
			}
			resp = approved
		}
	}
	resp.Message = progressMessage(resp.Tally, actor.TeacherID, state.required)
	return resp, nil
}

// Decide records the actor's approval or rejection. Only the latest vote of each
// teacher in the current epoch counts.
func (s *ApprovalService) Decide(ctx context.Context, itemID string, req dto.DecisionRequest, actor models.Actor) (*dto.ItemStatusResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	state, err := s.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if ApprovalStatusOf(state.events, state.required) == models.ApprovalStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, "item has not been submitted for review")
	}
	resp, err := s.append(ctx, state, actor, appendInput{
		action:   req.Action,
		notes:    trimmedOrNil(req.Notes),
		expected: req.ExpectedLastEventID,
	})
	if err != nil {
		return nil, err
	}
	resp.Message = progressMessage(resp.Tally, actor.TeacherID, state.required)
	return resp, nil
}

// Edit replaces the item's description. Every earlier vote stops counting.
func (s *ApprovalService) Edit(ctx context.Context, itemID string, req dto.EditRequest, actor models.Actor) (*dto.ItemStatusResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid edit payload")
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "description must not be empty")
	}
	state, err := s.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if description == state.item.Description {
		return nil, appErrors.Clone(appErrors.ErrValidation, "description is unchanged")
	}
	previous := state.item.Description
	resp, err := s.append(ctx, state, actor, appendInput{
		action:      models.ApprovalActionEdited,
		notes:       trimmedOrNil(req.Notes),
		previous:    &previous,
		description: &description,
		expected:    req.ExpectedLastEventID,
	})
	if err != nil {
		return nil, err
	}
	resp.Message = "description updated, earlier votes no longer count"
	return resp, nil
}

// Reopen returns an approved item to review. Only elevated roles may reopen.
func (s *ApprovalService) Reopen(ctx context.Context, itemID string, req dto.ReopenRequest, actor models.Actor) (*dto.ItemStatusResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.Elevated() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only coordinators or administrators can reopen items")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reopen payload")
	}
	state, err := s.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if status := ApprovalStatusOf(state.events, state.required); status != models.ApprovalStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("item is %s, only approved items can be reopened", status))
	}
	resp, err := s.append(ctx, state, actor, appendInput{
		action:   models.ApprovalActionReopen,
		notes:    trimmedOrNil(req.Notes),
		expected: req.ExpectedLastEventID,
	})
	if err != nil {
		return nil, err
	}
	resp.Message = "item reopened for review"
	return resp, nil
}

// Status evaluates an item against its ledger and current staffing. Reading the
// status also schedules any approval side effect that was missed.
func (s *ApprovalService) Status(ctx context.Context, itemID string) (*dto.ItemStatusResponse, error) {
	state, err := s.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	tally := EvaluateApproval(state.events, state.required)
	s.dispatchApproved(ctx, state, tally.Status)
	resp := s.statusResponse(state, tally, nil)
	resp.Message = progressMessage(tally, "", state.required)
	return resp, nil
}

// History returns the ledger and every version of the description.
func (s *ApprovalService) History(ctx context.Context, itemID string) (*dto.HistoryResponse, error) {
	item, err := s.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	events, err := s.listEvents(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return &dto.HistoryResponse{
		ItemID:    item.ID,
		Events:    SortApprovalEvents(events),
		Revisions: DescriptionRevisions(item.Description, events),
	}, nil
}

// SkillRollup aggregates every objective of a skill group together with its rubric
// levels. The boolean reports whether the result came from cache.
func (s *ApprovalService) SkillRollup(ctx context.Context, key models.SkillKey) (*dto.SkillRollupResponse, bool, error) {
	if err := s.validator.Struct(key); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid skill key")
	}
	cacheKey, cacheable, err := s.rollupCacheKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if cacheable {
		var cached dto.SkillRollupResponse
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}
	store := func(resp *dto.SkillRollupResponse) {
		if cacheable {
			_ = s.cache.Set(ctx, cacheKey, resp, s.cacheTTL)
		}
	}

	objectives, err := s.items.ListObjectivesBySkill(ctx, key)
	if err != nil {
		return nil, false, storageError(err, "failed to load skill objectives")
	}
	resp := &dto.SkillRollupResponse{Key: key, Status: models.ApprovalStatusDraft, Objectives: []dto.ObjectiveComposite{}}
	if len(objectives) == 0 {
		store(resp)
		return resp, false, nil
	}
	composites, err := s.composites(ctx, objectives)
	if err != nil {
		return nil, false, err
	}
	members := make([]SkillGroupMember, len(composites))
	statuses := make([]models.ApprovalStatus, len(composites))
	for i := range composites {
		members[i] = SkillGroupMember{Objective: composites[i].Objective.Status}
		for _, rubric := range composites[i].RubricLevels {
			members[i].Rubrics = append(members[i].Rubrics, rubric.Status)
		}
		statuses[i] = composites[i].Objective.Status
	}
	resp.Status = SkillRollupStatus(members)
	resp.Counts = CountObjectiveStatuses(statuses)
	resp.Objectives = composites
	store(resp)
	return resp, false, nil
}

// Rubrics returns an objective with its rubric levels and composite status.
func (s *ApprovalService) Rubrics(ctx context.Context, objectiveID string) (*dto.ObjectiveComposite, error) {
	objective, err := s.getItem(ctx, objectiveID)
	if err != nil {
		return nil, err
	}
	if objective.Kind != models.ItemKindObjective {
		return nil, appErrors.Clone(appErrors.ErrValidation, "item is not an objective")
	}
	composites, err := s.composites(ctx, []models.ApprovableItem{*objective})
	if err != nil {
		return nil, err
	}
	return &composites[0], nil
}

// GenerationStatus reports the rubric generation dispatch for an objective.
func (s *ApprovalService) GenerationStatus(ctx context.Context, objectiveID string) (*models.DispatchRecord, error) {
	if s.dispatcher == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation is not configured")
	}
	if _, err := s.getItem(ctx, objectiveID); err != nil {
		return nil, err
	}
	return s.dispatcher.Latest(ctx, objectiveID)
}

// GenerateObjectives creates draft objectives for a skill from the generation
// service. A skill can be generated only once per discipline.
func (s *ApprovalService) GenerateObjectives(ctx context.Context, req dto.GenerateObjectivesRequest, actor models.Actor) (*dto.GenerateObjectivesResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	if s.generator == nil {
		return nil, appErrors.Clone(appErrors.ErrGenerationFailed, "generation service is not configured")
	}
	existing, err := s.items.CountObjectivesForSkill(ctx, req.BnccCode, req.DisciplineID)
	if err != nil {
		return nil, storageError(err, "failed to check existing objectives")
	}
	if existing > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "objectives already exist for this skill and discipline")
	}
	texts, err := s.generator.GenerateObjectives(ctx, ObjectiveGenerationInput{
		BnccCode:     req.BnccCode,
		DisciplineID: req.DisciplineID,
		YearLevel:    req.YearLevel,
		Bimester:     req.Bimester,
		Quantity:     req.Quantity,
	})
	if err != nil {
		return nil, err
	}
	if len(texts) > req.Quantity {
		texts = texts[:req.Quantity]
	}
	creator := actor.TeacherID
	created := make([]*models.ApprovableItem, len(texts))
	for i, text := range texts {
		created[i] = &models.ApprovableItem{
			Kind:          models.ItemKindObjective,
			Description:   text.Description,
			Status:        models.ApprovalStatusDraft,
			OrderIndex:    i + 1,
			BnccCode:      req.BnccCode,
			DisciplineID:  req.DisciplineID,
			YearLevel:     req.YearLevel,
			Bimester:      req.Bimester,
			AIExplanation: trimmedOrNil(text.Explanation),
			CreatedBy:     &creator,
		}
	}
	if err := s.items.CreateMany(ctx, created); err != nil {
		return nil, storageError(err, "failed to store generated objectives")
	}
	s.invalidateRollup(ctx, req.SkillKey)
	resp := &dto.GenerateObjectivesResponse{Objectives: make([]models.ApprovableItem, len(created))}
	for i, item := range created {
		resp.Objectives[i] = *item
	}
	s.logger.Info("objectives generated",
		zap.String("skill", req.SkillKey.String()), zap.Int("count", len(created)), zap.String("actor_id", actor.TeacherID))
	return resp, nil
}

// RubricLevelsExist reports whether an objective already has rubric levels.
func (s *ApprovalService) RubricLevelsExist(ctx context.Context, objectiveID string) (bool, error) {
	levels, err := s.items.ListByParents(ctx, []string{objectiveID})
	if err != nil {
		return false, storageError(err, "failed to load rubric levels")
	}
	return len(levels) > 0, nil
}

// CreateRubricLevels stores the levels of an approved objective as drafts and
// submits each of them on behalf of actor.
func (s *ApprovalService) CreateRubricLevels(ctx context.Context, objectiveID string, levels map[int]string, actor models.Actor) ([]models.ApprovableItem, error) {
	state, err := s.load(ctx, objectiveID)
	if err != nil {
		return nil, err
	}
	objective := state.item
	if objective.Kind != models.ItemKindObjective {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rubric levels belong to objectives")
	}
	if status := ApprovalStatusOf(state.events, state.required); status != models.ApprovalStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("objective is %s, rubric levels need an approved objective", status))
	}
	exists, err := s.RubricLevelsExist(ctx, objectiveID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "objective already has rubric levels")
	}
	created := make([]*models.ApprovableItem, 0, 4)
	for level := 1; level <= 4; level++ {
		text := strings.TrimSpace(levels[level])
		if text == "" {
			continue
		}
		lvl := level
		parent := objective.ID
		created = append(created, &models.ApprovableItem{
			Kind:         models.ItemKindRubricLevel,
			Description:  text,
			Status:       models.ApprovalStatusDraft,
			OrderIndex:   level,
			Level:        &lvl,
			ParentID:     &parent,
			BnccCode:     objective.BnccCode,
			DisciplineID: objective.DisciplineID,
			YearLevel:    objective.YearLevel,
			Bimester:     objective.Bimester,
			CreatedBy:    trimmedOrNil(actor.TeacherID),
		})
	}
	if len(created) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no rubric level text provided")
	}
	if err := s.items.CreateMany(ctx, created); err != nil {
		return nil, storageError(err, "failed to store rubric levels")
	}
	result := make([]models.ApprovableItem, 0, len(created))
	for _, item := range created {
		if actor.TeacherID != "" {
			resp, err := s.Submit(ctx, item.ID, dto.SubmitRequest{}, actor)
			if err != nil {
				s.logger.Warn("rubric level submission failed", zap.String("item_id", item.ID), zap.Error(err))
			} else {
				item = resp.Item
			}
		}
		result = append(result, *item)
	}
	s.invalidateRollup(ctx, objective.SkillKey())
	return result, nil
}

// DecideBatch applies one decision to many items. Items are processed independently;
// one failure does not affect the others.
func (s *ApprovalService) DecideBatch(ctx context.Context, req dto.BatchDecisionRequest, actor models.Actor) ([]dto.BatchItemResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch decision payload")
	}
	results := make([]dto.BatchItemResult, 0, len(req.ItemIDs))
	for _, itemID := range req.ItemIDs {
		resp, err := s.Decide(ctx, itemID, dto.DecisionRequest{Action: req.Action, Notes: req.Notes}, actor)
		results = append(results, batchResult(itemID, resp, err))
	}
	return results, nil
}

// EditBatch edits many items independently.
func (s *ApprovalService) EditBatch(ctx context.Context, req dto.BatchEditRequest, actor models.Actor) ([]dto.BatchItemResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch edit payload")
	}
	results := make([]dto.BatchItemResult, 0, len(req.Items))
	for _, entry := range req.Items {
		resp, err := s.Edit(ctx, entry.ItemID, dto.EditRequest{Description: entry.Description, Notes: req.Notes}, actor)
		results = append(results, batchResult(entry.ItemID, resp, err))
	}
	return results, nil
}

func (s *ApprovalService) append(ctx context.Context, state *itemState, actor models.Actor, in appendInput) (*dto.ItemStatusResponse, error) {
	item := state.item
	if in.expected != nil && !sameEventToken(in.expected, item.LastEventID) {
		s.metrics.RecordAppendConflict()
		return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "")
	}
	before := EvaluateApproval(state.events, state.required)
	event := models.ApprovalEvent{
		ID:                  uuid.NewString(),
		ItemID:              item.ID,
		TeacherID:           actor.TeacherID,
		TeacherName:         actor.Name,
		Action:              in.action,
		PreviousDescription: in.previous,
		Notes:               in.notes,
		CreatedAt:           s.eventTime(state.events),
	}
	candidate := make([]models.ApprovalEvent, 0, len(state.events)+1)
	candidate = append(candidate, state.events...)
	candidate = append(candidate, event)
	after := EvaluateApproval(candidate, state.required)
	approvedEventID := approvingEventID(item.ApprovedEventID, event.ID, after.Status)

	if err := s.events.Append(ctx, repository.AppendEventParams{
		Event:               &event,
		ExpectedLastEventID: item.LastEventID,
		Status:              after.Status,
		Description:         in.description,
		ApprovedEventID:     approvedEventID,
	}); err != nil {
		if errors.Is(err, repository.ErrStaleEventToken) {
			s.metrics.RecordAppendConflict()
			logger.FromContext(ctx, s.logger).Info("approval append lost race", zap.String("item_id", item.ID), zap.String("action", string(in.action)))
			return nil, appErrors.Wrap(err, appErrors.ErrConcurrentModification.Code, appErrors.ErrConcurrentModification.Status, appErrors.ErrConcurrentModification.Message)
		}
		return nil, storageError(err, "failed to append approval event")
	}
	candidate[len(candidate)-1] = event
	state.events = candidate
	eventID := event.ID
	item.LastEventID = &eventID
	item.ApprovedEventID = approvedEventID
	item.Status = after.Status
	item.UpdatedAt = event.CreatedAt
	if in.description != nil {
		item.Description = *in.description
	}

	s.metrics.RecordAppend(item.Kind, in.action, before.Status, after.Status)
	s.invalidateRollup(ctx, item.SkillKey())

	var transition *models.StatusTransition
	if before.Status != after.Status {
		transition = &models.StatusTransition{
			ItemID:    item.ID,
			Kind:      item.Kind,
			EventID:   event.ID,
			ActorID:   actor.TeacherID,
			ActorName: actor.Name,
			From:      before.Status,
			To:        after.Status,
		}
		logger.FromContext(ctx, s.logger).Info("approval status changed",
			zap.String("item_id", item.ID), zap.String("kind", string(item.Kind)),
			zap.String("from", string(before.Status)), zap.String("to", string(after.Status)),
			zap.String("event_id", event.ID), zap.String("actor_id", actor.TeacherID))
	}
	s.dispatchApproved(ctx, state, after.Status)
	return s.statusResponse(state, after, transition), nil
}

// approvingEventID returns the approving event to store after an append. The stored id
// survives while the item stays approved, so later staffing changes cannot move it.
func approvingEventID(stored *string, appended string, after models.ApprovalStatus) *string {
	if after != models.ApprovalStatusApproved {
		return nil
	}
	if stored != nil {
		return stored
	}
	return &appended
}

// dispatchApproved hands the stored approving event of an approved objective to the dispatcher.
// The dispatcher deduplicates, so calling it on every read heals side effects lost to
// a crash between append and dispatch.
func (s *ApprovalService) dispatchApproved(ctx context.Context, state *itemState, status models.ApprovalStatus) {
	item := state.item
	if s.dispatcher == nil || item.Kind != models.ItemKindObjective || item.ApprovedEventID == nil || status != models.ApprovalStatusApproved {
		return
	}
	transition := models.StatusTransition{
		ItemID:  item.ID,
		Kind:    item.Kind,
		EventID: *item.ApprovedEventID,
		To:      models.ApprovalStatusApproved,
	}
	for i := range state.events {
		if state.events[i].ID == transition.EventID {
			transition.ActorID = state.events[i].TeacherID
			transition.ActorName = state.events[i].TeacherName
			break
		}
	}
	s.dispatcher.Dispatch(ctx, transition)
}

func (s *ApprovalService) composites(ctx context.Context, objectives []models.ApprovableItem) ([]dto.ObjectiveComposite, error) {
	parentIDs := make([]string, len(objectives))
	for i := range objectives {
		parentIDs[i] = objectives[i].ID
	}
	rubrics, err := s.items.ListByParents(ctx, parentIDs)
	if err != nil {
		return nil, storageError(err, "failed to load rubric levels")
	}
	ids := append([]string{}, parentIDs...)
	for i := range rubrics {
		ids = append(ids, rubrics[i].ID)
	}
	events, err := s.events.ListByItems(ctx, ids)
	if err != nil {
		return nil, storageError(err, "failed to load approval events")
	}

	requiredByItem := make(map[string][]string)
	resolved := make(map[string][]string)
	resolve := func(item *models.ApprovableItem) ([]string, error) {
		staffingKey := fmt.Sprintf("%d:%d", item.DisciplineID, item.YearLevel)
		if ids, ok := resolved[staffingKey]; ok {
			return ids, nil
		}
		teachers, err := s.resolver.Resolve(ctx, item)
		if err != nil {
			return nil, err
		}
		ids := TeacherIDs(teachers)
		resolved[staffingKey] = ids
		return ids, nil
	}
	for i := range objectives {
		ids, err := resolve(&objectives[i])
		if err != nil {
			return nil, err
		}
		requiredByItem[objectives[i].ID] = ids
		objectives[i].Status = ApprovalStatusOf(events[objectives[i].ID], ids)
	}
	byParent := make(map[string][]models.ApprovableItem, len(objectives))
	for i := range rubrics {
		rubric := rubrics[i]
		if rubric.ParentID == nil {
			continue
		}
		ids, ok := requiredByItem[*rubric.ParentID]
		if !ok {
			continue
		}
		rubric.Status = ApprovalStatusOf(events[rubric.ID], ids)
		byParent[*rubric.ParentID] = append(byParent[*rubric.ParentID], rubric)
	}
	composites := make([]dto.ObjectiveComposite, len(objectives))
	for i := range objectives {
		composites[i] = BuildObjectiveComposite(objectives[i], byParent[objectives[i].ID])
	}
	return composites, nil
}

func (s *ApprovalService) load(ctx context.Context, itemID string) (*itemState, error) {
	item, err := s.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	events, err := s.listEvents(ctx, itemID)
	if err != nil {
		return nil, err
	}
	approvers, err := s.resolver.Resolve(ctx, item)
	if err != nil {
		return nil, err
	}
	return &itemState{item: item, events: events, approvers: approvers, required: TeacherIDs(approvers)}, nil
}

func (s *ApprovalService) getItem(ctx context.Context, itemID string) (*models.ApprovableItem, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "item id is required")
	}
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, storageError(err, "failed to load item")
	}
	return item, nil
}

func (s *ApprovalService) listEvents(ctx context.Context, itemID string) ([]models.ApprovalEvent, error) {
	events, err := s.events.List(ctx, itemID)
	if err != nil {
		return nil, storageError(err, "failed to load approval events")
	}
	return events, nil
}

// eventTime returns a timestamp strictly after every existing event, at the
// precision the database keeps, so replay order matches append order.
func (s *ApprovalService) eventTime(events []models.ApprovalEvent) time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)
	for _, event := range events {
		if !now.After(event.CreatedAt) {
			now = event.CreatedAt.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
		}
	}
	return now
}

func (s *ApprovalService) statusResponse(state *itemState, tally models.ApprovalTally, transition *models.StatusTransition) *dto.ItemStatusResponse {
	item := *state.item
	item.Status = tally.Status
	approvers := state.approvers
	if approvers == nil {
		approvers = []models.TeacherRef{}
	}
	return &dto.ItemStatusResponse{
		Item:              &item,
		Tally:             tally,
		RequiredApprovers: approvers,
		Transition:        transition,
	}
}

func progressMessage(tally models.ApprovalTally, actorID string, required []string) string {
	nonBinding := ""
	if actorID != "" && len(required) > 0 && !containsString(required, actorID) {
		nonBinding = "; your vote was recorded but you are not a required approver"
	}
	switch tally.Status {
	case models.ApprovalStatusDraft:
		return "item is a draft" + nonBinding
	case models.ApprovalStatusApproved:
		return "item approved" + nonBinding
	case models.ApprovalStatusRejected:
		return "item rejected" + nonBinding
	}
	if len(required) == 0 {
		return "waiting for one approval" + nonBinding
	}
	return fmt.Sprintf("waiting for %d of %d teacher(s)%s", len(tally.Outstanding), len(required), nonBinding)
}

func batchResult(itemID string, resp *dto.ItemStatusResponse, err error) dto.BatchItemResult {
	if err != nil {
		appErr := appErrors.FromError(err)
		return dto.BatchItemResult{ItemID: itemID, Error: &dto.BatchItemError{Code: appErr.Code, Message: appErr.Message}}
	}
	tally := resp.Tally
	return dto.BatchItemResult{ItemID: itemID, Status: tally.Status, Tally: &tally, Item: resp.Item}
}

func rollupVersionKey(key models.SkillKey) string {
	return "approval:rollup-version:" + key.String()
}

// rollupCacheKey names the cache entry for a skill group. The key carries the
// group's version counter, so a rollup computed before an invalidation lands under a
// key nobody reads again, and a fingerprint of current staffing, so staffing changes
// miss without any write path having to invalidate.
func (s *ApprovalService) rollupCacheKey(ctx context.Context, key models.SkillKey) (string, bool, error) {
	version, ok := s.cache.Version(ctx, rollupVersionKey(key))
	if !ok {
		return "", false, nil
	}
	teachers, err := s.resolver.Resolve(ctx, &models.ApprovableItem{
		Kind:         models.ItemKindObjective,
		BnccCode:     key.BnccCode,
		DisciplineID: key.DisciplineID,
		YearLevel:    key.YearLevel,
		Bimester:     key.Bimester,
	})
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("approval:rollup:%s:v%d:%s", key.String(), version, staffingFingerprint(TeacherIDs(teachers))), true, nil
}

func (s *ApprovalService) invalidateRollup(ctx context.Context, key models.SkillKey) {
	_ = s.cache.Bump(ctx, rollupVersionKey(key))
}

// staffingFingerprint hashes sorted teacher ids.
func staffingFingerprint(ids []string) string {
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:6])
}

func requireActor(actor models.Actor) error {
	if strings.TrimSpace(actor.TeacherID) == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "actor identity is required")
	}
	return nil
}

func storageError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, message)
}

func sameEventToken(expected, current *string) bool {
	if expected == nil || current == nil {
		return (expected == nil || *expected == "") && current == nil
	}
	return *expected == *current
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func trimmedOrNil(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
