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

// SaveInbox stores an inbox, upserting on the instance name.
func (r *PostgresRepo) SaveInbox(ctx context.Context, inbox *model.Inbox) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}
	if inbox.AccountID != "" && inbox.AccountID != accountID {
		return fmt.Errorf("%w: inbox AccountID %s does not match account %s", apperrors.ErrBadRequest, inbox.AccountID, accountID)
	}
	inbox.AccountID = accountID
	inbox.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance"}},
			DoUpdates: clause.AssignmentColumns(model.InboxUpdateColumns()),
		}).Create(inbox)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveInbox Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "inbox", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save inbox after retries",
			zap.String("instance", inbox.Instance), zap.Error(commitErr))
	}
	return commitErr
}

// FindInboxByInstance resolves an inbox by the gateway instance name.
func (r *PostgresRepo) FindInboxByInstance(ctx context.Context, instance string) (*model.Inbox, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var inbox model.Inbox
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("instance = ? AND account_id = ?", instance, accountID).
			First(&inbox)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "FindInboxByInstance Read", operation)
	observer.ObserveDbOperationDuration("read", "inbox", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return &inbox, nil
}

// UpdateInboxStatus sets the connection status. The WHERE clause skips the
// write when the status is already current, so the returned flag doubles as
// a transition detector.
func (r *PostgresRepo) UpdateInboxStatus(ctx context.Context, inboxID string, status string) (bool, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var changed bool
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Inbox{}).
			Where("inbox_id = ? AND account_id = ? AND status <> ?", inboxID, accountID, status).
			Updates(map[string]interface{}{
				"status":     status,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		changed = result.RowsAffected > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateInboxStatus Commit", operation)
	observer.ObserveDbOperationDuration("update", "inbox", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update inbox status after retries",
			zap.String("inbox_id", inboxID), zap.String("status", status), zap.Error(commitErr))
		return false, commitErr
	}
	return changed, nil
}
