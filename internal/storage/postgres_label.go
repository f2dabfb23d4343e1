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

// SaveLabel stores a label, upserting on (account, name).
func (r *PostgresRepo) SaveLabel(ctx context.Context, label *model.Label) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}
	if label.AccountID != "" && label.AccountID != accountID {
		return fmt.Errorf("%w: label AccountID %s does not match account %s", apperrors.ErrBadRequest, label.AccountID, accountID)
	}
	label.AccountID = accountID
	label.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"category", "description", "color", "updated_at"}),
		}).Create(label)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveLabel Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "label", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save label after retries",
			zap.String("name", label.Name), zap.Error(commitErr))
	}
	return commitErr
}

// FindLabelByName matches a label by name within the account. Matching is
// case-insensitive because label suggestions come back from an LLM.
func (r *PostgresRepo) FindLabelByName(ctx context.Context, name string) (*model.Label, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var label model.Label
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("account_id = ? AND LOWER(name) = LOWER(?)", accountID, name).
			First(&label)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "FindLabelByName Read", operation)
	observer.ObserveDbOperationDuration("read", "label", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return &label, nil
}

// ListLabels returns every label of the account.
func (r *PostgresRepo) ListLabels(ctx context.Context) ([]model.Label, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var labels []model.Label
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("account_id = ?", accountID).
			Order("id ASC").
			Find(&labels)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "ListLabels Read", operation)
	observer.ObserveDbOperationDuration("read", "label", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return labels, nil
}

// ApplyLabel attaches a label to a conversation and its contact inside one
// transaction. For STAGE labels every other STAGE attachment is removed from
// both the conversation and the contact first, so a conversation/contact
// pair sits in exactly one pipeline stage. The returned flag reports whether
// the attachment set actually changed.
func (r *PostgresRepo) ApplyLabel(ctx context.Context, conversationID, contactID int64, label *model.Label) (bool, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var changed bool
	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if rec := recover(); rec != nil {
				tx.Rollback()
				panic(rec)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback transaction after error",
						zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		var detached int64
		if label.Category == model.LabelCategoryStage {
			result := tx.Exec(`DELETE FROM conversation_labels
				WHERE conversation_id = ?
				AND label_id IN (SELECT id FROM labels WHERE account_id = ? AND category = ? AND id <> ?)`,
				conversationID, accountID, model.LabelCategoryStage, label.ID)
			if result.Error != nil {
				txErr = checkConstraintViolation(result.Error)
				return txErr
			}
			detached = result.RowsAffected

			result = tx.Exec(`DELETE FROM contact_labels
				WHERE contact_id = ?
				AND label_id IN (SELECT id FROM labels WHERE account_id = ? AND category = ? AND id <> ?)`,
				contactID, accountID, model.LabelCategoryStage, label.ID)
			if result.Error != nil {
				txErr = checkConstraintViolation(result.Error)
				return txErr
			}
			detached += result.RowsAffected
		}

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "label_id"}},
			DoNothing: true,
		}).Create(&model.ConversationLabel{
			ConversationID: conversationID,
			LabelID:        label.ID,
		})
		if result.Error != nil {
			txErr = checkConstraintViolation(result.Error)
			return txErr
		}
		attached := result.RowsAffected

		result = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contact_id"}, {Name: "label_id"}},
			DoNothing: true,
		}).Create(&model.ContactLabel{
			ContactID: contactID,
			LabelID:   label.ID,
		})
		if result.Error != nil {
			txErr = checkConstraintViolation(result.Error)
			return txErr
		}
		attached += result.RowsAffected

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit transaction: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}

		changed = detached > 0 || attached > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ApplyLabel Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "conversation_label", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to apply label after retries",
			zap.Int64("conversation_id", conversationID), zap.String("label", label.Name), zap.Error(commitErr))
		return false, commitErr
	}
	return changed, nil
}

// ListConversationLabelNames returns the names of all labels attached to a
// conversation.
func (r *PostgresRepo) ListConversationLabelNames(ctx context.Context, conversationID int64) ([]string, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var names []string
	operation := func() error {
		result := r.db.WithContext(ctx).
			Table("conversation_labels").
			Select("labels.name").
			Joins("JOIN labels ON labels.id = conversation_labels.label_id").
			Where("conversation_labels.conversation_id = ?", conversationID).
			Order("labels.id ASC").
			Scan(&names)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "ListConversationLabelNames Read", operation)
	observer.ObserveDbOperationDuration("read", "conversation_label", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return names, nil
}
