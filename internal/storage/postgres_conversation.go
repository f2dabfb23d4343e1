package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/internal/observer"
	"github.com/daniel-neiva/nexcrm-sub000/internal/tenant"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// UpsertConversation creates or refreshes a conversation keyed by
// (external_thread_id, inbox_id) and returns the stored row.
func (r *PostgresRepo) UpsertConversation(ctx context.Context, convo *model.Conversation) (*model.Conversation, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}
	if convo.AccountID != "" && convo.AccountID != accountID {
		return nil, fmt.Errorf("%w: conversation AccountID %s does not match account %s", apperrors.ErrBadRequest, convo.AccountID, accountID)
	}
	convo.AccountID = accountID
	convo.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_thread_id"}, {Name: "inbox_id"}},
			DoUpdates: clause.AssignmentColumns(model.ConversationUpdateColumns()),
		}).Create(convo)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpsertConversation Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "conversation", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to upsert conversation after retries",
			zap.String("external_thread_id", convo.ExternalThreadID), zap.Error(commitErr))
		return nil, commitErr
	}

	return r.FindConversationByThread(ctx, convo.InboxID, convo.ExternalThreadID)
}

// FindConversationByThread fetches a conversation by its thread within an inbox.
func (r *PostgresRepo) FindConversationByThread(ctx context.Context, inboxID int64, externalThreadID string) (*model.Conversation, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var convo model.Conversation
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("external_thread_id = ? AND inbox_id = ?", externalThreadID, inboxID).
			First(&convo)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "FindConversationByThread Read", operation)
	observer.ObserveDbOperationDuration("read", "conversation", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return &convo, nil
}

// IncrementUnread bumps the unread counter atomically and returns the
// resulting value.
func (r *PostgresRepo) IncrementUnread(ctx context.Context, conversationID int64) (int32, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var newCount int32
	operation := func() error {
		result := r.db.WithContext(ctx).
			Raw("UPDATE conversations SET unread_count = unread_count + 1, updated_at = ? WHERE id = ? RETURNING unread_count",
				utils.Now(), conversationID).
			Scan(&newCount)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: conversation %d not found", apperrors.ErrNotFound, conversationID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "IncrementUnread Commit", operation)
	observer.ObserveDbOperationDuration("update", "conversation", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to increment unread count after retries",
			zap.Int64("conversation_id", conversationID), zap.Error(commitErr))
		return 0, commitErr
	}
	return newCount, nil
}

// SetUnread sets the unread counter to an explicit value.
func (r *PostgresRepo) SetUnread(ctx context.Context, conversationID int64, count int32) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]interface{}{
				"unread_count": count,
				"updated_at":   utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: conversation %d not found", apperrors.ErrNotFound, conversationID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SetUnread Commit", operation)
	observer.ObserveDbOperationDuration("update", "conversation", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to set unread count after retries",
			zap.Int64("conversation_id", conversationID), zap.Error(commitErr))
	}
	return commitErr
}

// AssignAgent sets the agent on a conversation only when none is assigned.
// The guard in the WHERE clause makes concurrent routing attempts safe: the
// first writer wins and later ones observe changed=false.
func (r *PostgresRepo) AssignAgent(ctx context.Context, conversationID int64, agentID int64) (bool, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var assigned bool
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("id = ? AND agent_id = 0", conversationID).
			Updates(map[string]interface{}{
				"agent_id":   agentID,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		assigned = result.RowsAffected > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "AssignAgent Commit", operation)
	observer.ObserveDbOperationDuration("update", "conversation", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to assign agent after retries",
			zap.Int64("conversation_id", conversationID), zap.Int64("agent_id", agentID), zap.Error(commitErr))
		return false, commitErr
	}
	return assigned, nil
}

// TouchLastMessage records the newest message snapshot on the conversation.
func (r *PostgresRepo) TouchLastMessage(ctx context.Context, conversationID int64, at time.Time, lastMessage datatypes.JSON) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]interface{}{
				"last_message_at": at,
				"last_message":    lastMessage,
				"updated_at":      utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "TouchLastMessage Commit", operation)
	observer.ObserveDbOperationDuration("update", "conversation", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to touch last message after retries",
			zap.Int64("conversation_id", conversationID), zap.Error(commitErr))
	}
	return commitErr
}
