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

// InsertMessage stores a message. Duplicate gateway deliveries carry the
// same external message ID and are silently absorbed; the return value
// reports whether this call actually created a row. Side effects such as
// unread increments and AI dispatch must be gated on that flag.
func (r *PostgresRepo) InsertMessage(ctx context.Context, message *model.Message) (bool, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}
	if message.AccountID != "" && message.AccountID != accountID {
		return false, fmt.Errorf("%w: message AccountID %s does not match account %s", apperrors.ErrBadRequest, message.AccountID, accountID)
	}
	message.AccountID = accountID
	message.UpdatedAt = utils.Now()

	var inserted bool
	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_message_id"}},
			DoNothing: true,
		}).Create(message)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		inserted = result.RowsAffected > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "InsertMessage Commit", operation)
	observer.ObserveDbOperationDuration("insert", "message", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to insert message after retries",
			zap.String("external_message_id", message.ExternalMessageID), zap.Error(commitErr))
		return false, commitErr
	}
	return inserted, nil
}

// HasReplyForSource reports whether an AI reply was already stored for the
// given inbound external message ID.
func (r *PostgresRepo) HasReplyForSource(ctx context.Context, sourceMessageID string) (bool, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var count int64
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("source_message_id = ? AND sender = ?", sourceMessageID, model.MessageSenderAIAgent).
			Count(&count)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "HasReplyForSource Read", operation)
	observer.ObserveDbOperationDuration("read", "message", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return false, readErr
	}
	return count > 0, nil
}

// ListRecentMessages returns up to limit messages of a conversation, oldest
// first, suitable as LLM history.
func (r *PostgresRepo) ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var messages []model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("conversation_id = ?", conversationID).
			Order("timestamp DESC, id DESC").
			Limit(limit).
			Find(&messages)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "ListRecentMessages Read", operation)
	observer.ObserveDbOperationDuration("read", "message", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}

	// Reverse so callers see chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkConversationRead flags all unread inbound messages of a conversation
// as read.
func (r *PostgresRepo) MarkConversationRead(ctx context.Context, conversationID int64) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("conversation_id = ? AND is_read = ? AND from_me = ?", conversationID, false, false).
			Updates(map[string]interface{}{
				"is_read":    true,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkConversationRead Commit", operation)
	observer.ObserveDbOperationDuration("update", "message", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark conversation read after retries",
			zap.Int64("conversation_id", conversationID), zap.Error(commitErr))
	}
	return commitErr
}

// DeleteConversationMessages removes all messages of a conversation and
// returns how many rows were deleted.
func (r *PostgresRepo) DeleteConversationMessages(ctx context.Context, conversationID int64) (int64, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var deleted int64
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("conversation_id = ?", conversationID).
			Delete(&model.Message{})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		deleted = result.RowsAffected
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "DeleteConversationMessages Commit", operation)
	observer.ObserveDbOperationDuration("delete", "message", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to delete conversation messages after retries",
			zap.Int64("conversation_id", conversationID), zap.Error(commitErr))
		return 0, commitErr
	}
	return deleted, nil
}
