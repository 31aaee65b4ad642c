package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/jobs"
)

// JobTypeApprovalTransition tags queue jobs carrying a StatusTransition.
const JobTypeApprovalTransition = "approval_transition"

// ErrReactionSkipped signals that a reaction found nothing to do.
var ErrReactionSkipped = errors.New("reaction skipped")

type dispatchLedger interface {
	Claim(ctx context.Context, record models.DispatchRecord, ttl time.Duration) (bool, error)
	Update(ctx context.Context, record models.DispatchRecord, ttl time.Duration) error
	Latest(ctx context.Context, itemID string) (*models.DispatchRecord, error)
}

// TransitionJob is the queue job carrying one transition.
type TransitionJob = jobs.Job[models.StatusTransition]

type jobDispatcher interface {
	Enqueue(ctx context.Context, job TransitionJob) error
}

// TransitionReaction is a side effect bound to a (kind, status) pair.
type TransitionReaction interface {
	Name() string
	React(ctx context.Context, transition models.StatusTransition) error
}

type reactionKey struct {
	kind models.ItemKind
	to   models.ApprovalStatus
}

// ApprovalDispatcher fires reactions at most once per (item, transition event). The
// ledger claim happens before enqueueing so concurrent evaluators of the same
// transition cannot both schedule work.
type ApprovalDispatcher struct {
	ledger    dispatchLedger
	queue     jobDispatcher
	reactions map[reactionKey][]TransitionReaction
	ttl       time.Duration
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewApprovalDispatcher constructs a dispatcher. ttl bounds how long the latest dispatch
// status of an item stays readable; claims never expire. The queue may be attached later
// with AttachQueue because the queue handler is the dispatcher itself.
func NewApprovalDispatcher(ledger dispatchLedger, ttl time.Duration, metrics *MetricsService, logger *zap.Logger) *ApprovalDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &ApprovalDispatcher{
		ledger:    ledger,
		reactions: make(map[reactionKey][]TransitionReaction),
		ttl:       ttl,
		metrics:   metrics,
		logger:    logger,
	}
}

// AttachQueue sets the worker queue used for asynchronous execution.
func (d *ApprovalDispatcher) AttachQueue(queue jobDispatcher) {
	d.queue = queue
}

// Register binds a reaction to transitions of kind into status to.
func (d *ApprovalDispatcher) Register(kind models.ItemKind, to models.ApprovalStatus, reaction TransitionReaction) {
	key := reactionKey{kind: kind, to: to}
	d.reactions[key] = append(d.reactions[key], reaction)
}

// Dispatch schedules the reactions of a transition. Failures are logged and never
// surface to the caller; the mutation that produced the transition already committed.
func (d *ApprovalDispatcher) Dispatch(ctx context.Context, transition models.StatusTransition) {
	if d == nil {
		return
	}
	reactions := d.reactions[reactionKey{kind: transition.Kind, to: transition.To}]
	if len(reactions) == 0 || transition.EventID == "" {
		return
	}
	record := models.DispatchRecord{
		ItemID:    transition.ItemID,
		EventID:   transition.EventID,
		State:     models.DispatchStateQueued,
		UpdatedAt: time.Now().UTC(),
	}
	claimed, err := d.ledger.Claim(ctx, record, d.ttl)
	if err != nil {
		d.logger.Warn("dispatch ledger claim failed",
			zap.String("item_id", transition.ItemID), zap.String("event_id", transition.EventID), zap.Error(err))
		d.metrics.RecordDispatch(string(transition.To), "ledger_error")
		return
	}
	if !claimed {
		d.metrics.RecordDispatch(string(transition.To), "duplicate")
		return
	}
	job := TransitionJob{
		ID:      transition.ItemID + ":" + transition.EventID,
		Type:    JobTypeApprovalTransition,
		Payload: transition,
	}
	if d.queue == nil {
		d.run(ctx, job, transition, true)
		return
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		// the approval already committed; report the reaction as failed instead of waiting
		if errors.Is(err, jobs.ErrQueueFull) {
			d.logger.Warn("transition queue saturated",
				zap.String("item_id", transition.ItemID), zap.String("event_id", transition.EventID))
		} else {
			d.logger.Error("failed to enqueue transition reaction",
				zap.String("item_id", transition.ItemID), zap.String("event_id", transition.EventID), zap.Error(err))
		}
		d.finish(context.WithoutCancel(ctx), transition, models.DispatchStateFailed, err)
		return
	}
	d.logger.Info("transition reaction queued",
		zap.String("item_id", transition.ItemID), zap.String("event_id", transition.EventID),
		zap.String("to", string(transition.To)))
}

// Handle is the queue handler. A returned error makes the queue retry the job.
func (d *ApprovalDispatcher) Handle(ctx context.Context, job TransitionJob) error {
	return d.run(ctx, job, job.Payload, false)
}

func (d *ApprovalDispatcher) run(ctx context.Context, job TransitionJob, transition models.StatusTransition, final bool) error {
	reactions := d.reactions[reactionKey{kind: transition.Kind, to: transition.To}]
	skipped := 0
	for _, reaction := range reactions {
		err := reaction.React(ctx, transition)
		switch {
		case err == nil:
		case errors.Is(err, ErrReactionSkipped):
			skipped++
		default:
			d.logger.Warn("transition reaction failed",
				zap.String("reaction", reaction.Name()), zap.String("item_id", transition.ItemID),
				zap.String("event_id", transition.EventID), zap.Int("attempt", job.Attempt), zap.Error(err))
			d.finish(ctx, transition, models.DispatchStateFailed, fmt.Errorf("%s: %w", reaction.Name(), err))
			if final {
				return nil
			}
			return err
		}
	}
	state := models.DispatchStateCompleted
	if skipped == len(reactions) {
		state = models.DispatchStateSkipped
	}
	d.finish(ctx, transition, state, nil)
	return nil
}

func (d *ApprovalDispatcher) finish(ctx context.Context, transition models.StatusTransition, state string, cause error) {
	record := models.DispatchRecord{
		ItemID:    transition.ItemID,
		EventID:   transition.EventID,
		State:     state,
		UpdatedAt: time.Now().UTC(),
	}
	if cause != nil {
		record.Error = cause.Error()
	}
	if err := d.ledger.Update(ctx, record, d.ttl); err != nil {
		d.logger.Warn("failed to update dispatch ledger",
			zap.String("item_id", transition.ItemID), zap.String("event_id", transition.EventID), zap.Error(err))
	}
	d.metrics.RecordDispatch(string(transition.To), state)
}

// Latest returns the most recent dispatch record for an item.
func (d *ApprovalDispatcher) Latest(ctx context.Context, itemID string) (*models.DispatchRecord, error) {
	record, err := d.ledger.Latest(ctx, itemID)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no generation recorded for item")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to read dispatch ledger")
	}
	return record, nil
}
