package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
)

const dispatchKeyPrefix = "approval:dispatch:"

// DispatchLedgerRepository remembers which transitions already produced side effects.
type DispatchLedgerRepository struct {
	client *redis.Client
}

// NewDispatchLedgerRepository constructs the ledger.
func NewDispatchLedgerRepository(client *redis.Client) *DispatchLedgerRepository {
	return &DispatchLedgerRepository{client: client}
}

func dispatchKey(itemID, eventID string) string {
	return dispatchKeyPrefix + itemID + ":" + eventID
}

func dispatchLatestKey(itemID string) string {
	return dispatchKeyPrefix + "latest:" + itemID
}

// Claim records the transition if nobody did before. It returns false when the
// transition was already claimed by any evaluator. Claims are kept forever; ttl only
// applies to the latest pointer of the item.
func (r *DispatchLedgerRepository) Claim(ctx context.Context, record models.DispatchRecord, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("marshal dispatch record: %w", err)
	}
	claimed, err := r.client.SetNX(ctx, dispatchKey(record.ItemID, record.EventID), payload, 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim dispatch %s/%s: %w", record.ItemID, record.EventID, err)
	}
	if claimed {
		if err := r.client.Set(ctx, dispatchLatestKey(record.ItemID), payload, ttl).Err(); err != nil {
			return true, fmt.Errorf("record latest dispatch %s: %w", record.ItemID, err)
		}
	}
	return claimed, nil
}

// Update overwrites the state of an already claimed transition.
func (r *DispatchLedgerRepository) Update(ctx context.Context, record models.DispatchRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal dispatch record: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, dispatchKey(record.ItemID, record.EventID), payload, 0)
	pipe.Set(ctx, dispatchLatestKey(record.ItemID), payload, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update dispatch %s/%s: %w", record.ItemID, record.EventID, err)
	}
	return nil
}

// Latest returns the most recent dispatch of an item.
func (r *DispatchLedgerRepository) Latest(ctx context.Context, itemID string) (*models.DispatchRecord, error) {
	raw, err := r.client.Get(ctx, dispatchLatestKey(itemID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("get latest dispatch %s: %w", itemID, err)
	}
	var record models.DispatchRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshal dispatch record: %w", err)
	}
	return &record, nil
}
