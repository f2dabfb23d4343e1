package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/internal/observer"
	"github.com/daniel-neiva/nexcrm-sub000/internal/tenant"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// InsertRawEvent stores an incoming event in the raw event log. Duplicate
// deliveries of the same event key are silently absorbed; the return value
// reports whether this call actually created a row.
func (r *PostgresRepo) InsertRawEvent(ctx context.Context, event *model.RawEvent) (bool, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var inserted bool
	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_key"}},
			DoNothing: true,
		}).Create(event)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		inserted = result.RowsAffected > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "InsertRawEvent Commit", operation)
	observer.ObserveDbOperationDuration("insert", "raw_event", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to insert raw event after retries",
			zap.String("event_key", event.EventKey), zap.Error(commitErr))
		return false, commitErr
	}
	return inserted, nil
}

// FindRawEventByID fetches a raw event by its primary key.
func (r *PostgresRepo) FindRawEventByID(ctx context.Context, id string) (*model.RawEvent, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var event model.RawEvent
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).First(&event)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "FindRawEventByID Read", operation)
	observer.ObserveDbOperationDuration("read", "raw_event", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return &event, nil
}

// FindRawEventByKey fetches a raw event by its deduplication key.
func (r *PostgresRepo) FindRawEventByKey(ctx context.Context, eventKey string) (*model.RawEvent, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var event model.RawEvent
	operation := func() error {
		result := r.db.WithContext(ctx).Where("event_key = ?", eventKey).First(&event)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "FindRawEventByKey Read", operation)
	observer.ObserveDbOperationDuration("read", "raw_event", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return &event, nil
}

// MarkEventProcessed flags an event as fully processed and clears any
// previously recorded error.
func (r *PostgresRepo) MarkEventProcessed(ctx context.Context, id string) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	now := utils.Now()
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.RawEvent{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"processed":    true,
				"processed_at": now,
				"error":        "",
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: raw event %s not found", apperrors.ErrNotFound, id)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkEventProcessed Commit", operation)
	observer.ObserveDbOperationDuration("update", "raw_event", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark event processed after retries",
			zap.String("event_id", id), zap.Error(commitErr))
	}
	return commitErr
}

// MarkEventIgnored closes an event out as processed while keeping the reason
// it was skipped on the error column, so benign ignores stay visible without
// ever being retried.
func (r *PostgresRepo) MarkEventIgnored(ctx context.Context, id string, reason string) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	now := utils.Now()
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.RawEvent{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"processed":    true,
				"processed_at": now,
				"error":        utils.TruncateString(reason, 2000),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: raw event %s not found", apperrors.ErrNotFound, id)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkEventIgnored Commit", operation)
	observer.ObserveDbOperationDuration("update", "raw_event", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark event ignored after retries",
			zap.String("event_id", id), zap.Error(commitErr))
	}
	return commitErr
}

// RecordEventError stores the latest processing failure on the event row so
// operators can inspect poisoned events.
func (r *PostgresRepo) RecordEventError(ctx context.Context, id string, processingErr string) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.RawEvent{}).
			Where("id = ?", id).
			Update("error", utils.TruncateString(processingErr, 2000))
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "RecordEventError Commit", operation)
	observer.ObserveDbOperationDuration("update", "raw_event", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to record event error after retries",
			zap.String("event_id", id), zap.Error(commitErr))
	}
	return commitErr
}
